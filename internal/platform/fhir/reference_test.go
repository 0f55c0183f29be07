package fhir

import "testing"

func TestParseReference(t *testing.T) {
	tests := []struct {
		ref      string
		wantType string
		wantID   string
		wantOK   bool
	}{
		{"Schedule/abc", "Schedule", "abc", true},
		{"https://example.org/fhir/PractitionerRole/pr-1", "PractitionerRole", "pr-1", true},
		{"Slot/s1/_history/3", "Slot", "s1", true},
		{"Location/", "", "", false},
		{"#contained", "", "", false},
		{"", "", "", false},
		{"justanid", "", "", false},
	}
	for _, tt := range tests {
		rt, id, ok := ParseReference(tt.ref)
		if ok != tt.wantOK || rt != tt.wantType || id != tt.wantID {
			t.Errorf("ParseReference(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tt.ref, rt, id, ok, tt.wantType, tt.wantID, tt.wantOK)
		}
	}
}

func TestReferenceID_TypeMismatch(t *testing.T) {
	if _, ok := ReferenceID("Location/l1", ResourcePractitionerRole); ok {
		t.Error("expected type mismatch to be rejected")
	}
	id, ok := ReferenceID(FormatReference(ResourceSchedule, "sch-9"), ResourceSchedule)
	if !ok || id != "sch-9" {
		t.Errorf("expected sch-9, got %q (ok=%v)", id, ok)
	}
}

func TestCodeableConcept_LabelFallbacks(t *testing.T) {
	cc := CodeableConcept{Coding: []Coding{{Code: "394582007"}, {Display: "Dermatology"}}}
	if got := cc.Label(); got != "Dermatology" {
		t.Errorf("expected display fallback, got %q", got)
	}
	cc.Text = "Skin"
	if got := cc.Label(); got != "Skin" {
		t.Errorf("expected text, got %q", got)
	}
	if got := (CodeableConcept{Coding: []Coding{{Code: "x"}}}).Label(); got != "x" {
		t.Errorf("expected code fallback, got %q", got)
	}
}
