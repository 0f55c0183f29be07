package directory

import (
	"time"

	"github.com/smartsched/slotfinder/internal/platform/fhir"
)

var testNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func testLocation(id, state string) *Location {
	return &Location{
		ID:           id,
		Name:         "Clinic " + id,
		Address:      &fhir.Address{Line: []string{"1 Main St"}, City: "Boston", State: state, PostalCode: "02110"},
		PublisherURL: "https://pub.example.org",
		UpdatedAt:    testNow,
	}
}

func testRole(id, display string) *PractitionerRole {
	return &PractitionerRole{
		ID:           id,
		Practitioner: &fhir.Reference{Display: display},
		Specialty:    []fhir.CodeableConcept{{Text: "Dermatology"}},
		PublisherURL: "https://pub.example.org",
		UpdatedAt:    testNow,
	}
}

func testSlot(id, scheduleID string, start time.Time) *Slot {
	return &Slot{
		ID:           id,
		Schedule:     fhir.Reference{Reference: fhir.FormatReference(fhir.ResourceSchedule, scheduleID)},
		Status:       SlotStatusFree,
		Start:        start,
		End:          start.Add(30 * time.Minute),
		PublisherURL: "https://pub.example.org",
		UpdatedAt:    testNow,
	}
}
