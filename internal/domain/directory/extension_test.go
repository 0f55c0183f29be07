package directory

import (
	"testing"

	"github.com/smartsched/slotfinder/internal/platform/fhir"
)

func TestDeriveSlotFields_ValueString(t *testing.T) {
	exts := []fhir.Extension{
		{URL: ExtURLBookingDeepLink, ValueURL: "https://book.example.org/s1"},
		{URL: ExtURLAppointmentType, ValueString: "Follow-up"},
	}
	at, virtual := DeriveSlotFields(exts)
	if at == nil || *at != "Follow-up" {
		t.Errorf("expected Follow-up, got %v", at)
	}
	if virtual {
		t.Error("expected not virtual")
	}
}

func TestDeriveSlotFields_CodeableConceptFallbacks(t *testing.T) {
	exts := []fhir.Extension{{
		URL:                  ExtURLAppointmentType,
		ValueCodeableConcept: &fhir.CodeableConcept{Text: "New patient"},
	}}
	if at, _ := DeriveSlotFields(exts); at == nil || *at != "New patient" {
		t.Errorf("expected concept text, got %v", at)
	}

	exts[0].ValueCodeableConcept = &fhir.CodeableConcept{Coding: []fhir.Coding{{Code: "ROUTINE", Display: "Routine"}}}
	if at, _ := DeriveSlotFields(exts); at == nil || *at != "Routine" {
		t.Errorf("expected coding display, got %v", at)
	}
}

func TestDeriveSlotFields_FirstMatchWins(t *testing.T) {
	exts := []fhir.Extension{
		{URL: ExtURLAppointmentType},
		{URL: ExtURLAppointmentType, ValueString: "second"},
		{URL: ExtURLAppointmentType, ValueString: "third"},
	}
	if at, _ := DeriveSlotFields(exts); at == nil || *at != "second" {
		t.Errorf("expected first non-empty value, got %v", at)
	}
}

func TestDeriveSlotFields_None(t *testing.T) {
	at, virtual := DeriveSlotFields([]fhir.Extension{{URL: "http://example.org/unknown", ValueString: "x"}})
	if at != nil || virtual {
		t.Errorf("expected no derived fields, got %v %v", at, virtual)
	}
}

func TestDeriveSlotFields_VirtualMarkerContained(t *testing.T) {
	exts := []fhir.Extension{{URL: ExtURLVirtualService + "|1.0.0"}}
	if _, virtual := DeriveSlotFields(exts); !virtual {
		t.Error("expected URL containing the marker to flag virtual")
	}
}

func TestBookingInfo_PhoneOnly(t *testing.T) {
	link, phone := BookingInfo([]fhir.Extension{{URL: ExtURLBookingPhone, ValueString: "555-0100"}})
	if link != "" {
		t.Errorf("expected no link, got %q", link)
	}
	if phone != "555-0100" {
		t.Errorf("expected phone, got %q", phone)
	}
}

func TestDecodeExtension_Unknown(t *testing.T) {
	d := DecodeExtension(fhir.Extension{URL: "http://example.org/x", ValueString: "y"})
	if d.Kind != ExtUnknown || d.Text != "" {
		t.Errorf("expected unknown extension to be ignored, got %+v", d)
	}
	if d.Kind.String() != "unknown" {
		t.Errorf("unexpected kind name %q", d.Kind.String())
	}
}

func TestCapacity(t *testing.T) {
	n := 4
	if got := Capacity([]fhir.Extension{{URL: ExtURLSlotCapacity, ValueInteger: &n}}); got != 4 {
		t.Errorf("expected capacity 4, got %d", got)
	}
	if got := Capacity(nil); got != 0 {
		t.Errorf("expected 0, got %d", got)
	}
}
