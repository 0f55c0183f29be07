package directory

import (
	"encoding/json"
	"testing"

	"github.com/smartsched/slotfinder/internal/platform/fhir"
)

var internalFields = []string{"publisherUrl", "updatedAt", "appointmentType", "isVirtual", "enrichment"}

func assertClean(t *testing.T, resource map[string]interface{}, wantType string) {
	t.Helper()
	// Round-trip through JSON the way the NDJSON export does.
	data, err := json.Marshal(resource)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var parsed map[string]interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if parsed["resourceType"] != wantType {
		t.Errorf("expected resourceType %s, got %v", wantType, parsed["resourceType"])
	}
	for _, f := range internalFields {
		if _, ok := parsed[f]; ok {
			t.Errorf("%s: internal field %q leaked into FHIR output", wantType, f)
		}
	}
}

func TestLocation_ToFHIR(t *testing.T) {
	l := testLocation("loc-1", "MA")
	l.Position = &fhir.Position{Latitude: 42.36, Longitude: -71.05}
	out := l.ToFHIR()
	assertClean(t, out, "Location")
	if out["name"] != "Clinic loc-1" {
		t.Errorf("expected name, got %v", out["name"])
	}
	if _, ok := out["position"]; !ok {
		t.Error("expected position")
	}
}

func TestPractitionerRole_ToFHIR_StripsEnrichment(t *testing.T) {
	r := testRole("pr-1", "Dr. Jane Smith")
	r.Enrichment = &Enrichment{NPI: "1234567890", LanguagesSpoken: []string{"English"}}
	assertClean(t, r.ToFHIR(), "PractitionerRole")
}

func TestSlot_ToFHIR_StripsDerivedFields(t *testing.T) {
	s := testSlot("s-1", "sch-1", testNow)
	at := "followup"
	s.AppointmentType = &at
	s.IsVirtual = true
	out := s.ToFHIR()
	assertClean(t, out, "Slot")
	if out["start"] != "2026-03-02T09:00:00Z" {
		t.Errorf("unexpected start %v", out["start"])
	}
}

func TestSchedule_ToFHIR(t *testing.T) {
	s := &Schedule{
		ID:           "sch-1",
		Actor:        []fhir.Reference{{Reference: "PractitionerRole/pr-1"}, {Reference: "Location/loc-1"}},
		PublisherURL: "https://pub.example.org",
	}
	assertClean(t, s.ToFHIR(), "Schedule")
}

func TestSchedule_ActorIDs(t *testing.T) {
	s := &Schedule{Actor: []fhir.Reference{
		{Reference: "PractitionerRole/pr-1"},
		{Reference: "Location/loc-1"},
		{Reference: "https://other.example.org/fhir/PractitionerRole/pr-2"},
		{Display: "no reference"},
	}}
	ids := s.ActorIDs(fhir.ResourcePractitionerRole)
	if len(ids) != 2 || ids[0] != "pr-1" || ids[1] != "pr-2" {
		t.Errorf("unexpected role actors %v", ids)
	}
	if locs := s.ActorIDs(fhir.ResourceLocation); len(locs) != 1 || locs[0] != "loc-1" {
		t.Errorf("unexpected location actors %v", locs)
	}
}

func TestSlot_ScheduleID_Dangling(t *testing.T) {
	s := &Slot{Schedule: fhir.Reference{Reference: "Location/oops"}}
	if id := s.ScheduleID(); id != "" {
		t.Errorf("expected empty schedule id for wrong type, got %q", id)
	}
}

func TestLocation_State(t *testing.T) {
	if got := testLocation("l", " ny ").State(); got != "NY" {
		t.Errorf("expected NY, got %q", got)
	}
	if got := (&Location{ID: "x"}).State(); got != "" {
		t.Errorf("expected empty state, got %q", got)
	}
}
