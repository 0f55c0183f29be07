package search

import (
	"context"
	"testing"
	"time"

	"github.com/smartsched/slotfinder/internal/domain/directory"
	"github.com/smartsched/slotfinder/internal/platform/fhir"
)

var testNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func location(id, name, city, state, postal string) *directory.Location {
	return &directory.Location{
		ID:      id,
		Name:    name,
		Address: &fhir.Address{City: city, State: state, PostalCode: postal},
	}
}

func role(id, display, specialty string, locationIDs ...string) *directory.PractitionerRole {
	r := &directory.PractitionerRole{
		ID:           id,
		Practitioner: &fhir.Reference{Display: display},
		Specialty:    []fhir.CodeableConcept{{Coding: []fhir.Coding{{System: "http://nucc.org/provider-taxonomy", Display: specialty}}}},
	}
	for _, l := range locationIDs {
		r.Location = append(r.Location, fhir.Reference{Reference: fhir.FormatReference(fhir.ResourceLocation, l)})
	}
	return r
}

func enriched(r *directory.PractitionerRole, insurance, languages []string) *directory.PractitionerRole {
	r.Enrichment = &directory.Enrichment{NPI: "npi-" + r.ID, InsuranceAccepted: insurance, LanguagesSpoken: languages}
	return r
}

func schedule(id string, actors ...string) *directory.Schedule {
	s := &directory.Schedule{ID: id}
	for _, a := range actors {
		s.Actor = append(s.Actor, fhir.Reference{Reference: a})
	}
	return s
}

func slot(id, scheduleID, status string, start time.Time, exts ...fhir.Extension) *directory.Slot {
	s := &directory.Slot{
		ID:        id,
		Schedule:  fhir.Reference{Reference: fhir.FormatReference(fhir.ResourceSchedule, scheduleID)},
		Status:    status,
		Start:     start,
		End:       start.Add(30 * time.Minute),
		Extension: exts,
	}
	s.AppointmentType, s.IsVirtual = directory.DeriveSlotFields(exts)
	return s
}

func newStore(t *testing.T, resources ...directory.Resource) *directory.Store {
	t.Helper()
	store := directory.NewMemoryStore()
	b := &directory.Batch{}
	for _, r := range resources {
		b.Add(r)
	}
	if err := store.Upsert(context.Background(), b); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	return store
}

// fixtureStore holds two located specialists with schedules, an unlinked
// family practitioner without one, a location-only schedule and a slot with
// a dangling schedule reference.
func fixtureStore(t *testing.T) *directory.Store {
	day := 24 * time.Hour
	followUp := fhir.Extension{URL: directory.ExtURLAppointmentType, ValueString: "Follow-up"}
	virtual := fhir.Extension{URL: directory.ExtURLVirtualService, ValueBoolean: new(bool)}

	return newStore(t,
		location("loc-ma", "Back Bay Dermatology", "Boston", "MA", "02116"),
		location("loc-ny", "Midtown Heart Center", "New York", "NY", "10001"),
		enriched(role("r-derm", "Dr. Sarah Johnson", "Dermatology", "loc-ma"), []string{"Aetna", "Cigna"}, []string{"English", "Spanish"}),
		enriched(role("r-card", "Dr. Michael Chen", "Cardiology", "loc-ny"), []string{"Medicare"}, []string{"English"}),
		role("r-fam", "Dr. Priya Patel", "Family Medicine"),
		schedule("sch-derm", "PractitionerRole/r-derm", "Location/loc-ma"),
		schedule("sch-card", "PractitionerRole/r-card"),
		schedule("sch-orphan", "Location/loc-ma"),
		slot("s1", "sch-derm", directory.SlotStatusFree, testNow.Add(day), followUp),
		slot("s2", "sch-derm", directory.SlotStatusBusy, testNow.Add(2*day)),
		slot("s3", "sch-card", directory.SlotStatusFree, testNow.Add(3*day), virtual),
		slot("s4", "sch-orphan", directory.SlotStatusFree, testNow.Add(day)),
		slot("s5", "sch-card", directory.SlotStatusFree, testNow.Add(40*day)),
		slot("s6", "sch-missing", directory.SlotStatusFree, testNow.Add(day)),
	)
}

func newTestEngine(store *directory.Store) *Engine {
	e := NewEngine(store)
	e.now = func() time.Time { return testNow }
	return e
}

func ids[T directory.Resource](items []T) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ResourceID()
	}
	return out
}
