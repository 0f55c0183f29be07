package validation

import (
	"errors"
	"testing"
)

type sample struct {
	Name  string   `json:"name" validate:"required,max=5"`
	Tags  []string `json:"tags" validate:"max=2"`
	Since string   `json:"since" validate:"omitempty,fhirdate"`
}

func TestStruct(t *testing.T) {
	v := New()
	if err := v.Struct(sample{Name: "ok", Since: "2026-03-01"}); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}

	err := v.Struct(sample{Name: "too long", Tags: []string{"a", "b", "c"}, Since: "yesterday"})
	var verr *Error
	if !errors.As(err, &verr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if len(verr.Fields) != 3 {
		t.Fatalf("expected 3 field errors, got %+v", verr.Fields)
	}
	fields := map[string]string{}
	for _, f := range verr.Fields {
		fields[f.Field] = f.Rule
	}
	if fields["name"] != "max" || fields["tags"] != "max" || fields["since"] != "fhirdate" {
		t.Errorf("unexpected field errors %v", fields)
	}
}

func TestParseDate(t *testing.T) {
	for _, s := range []string{"2026-03-01", "2026-03-01T10:00:00Z", "2026-03-01T10:00:00-05:00", "2026-03-01T10:00:00"} {
		if _, err := ParseDate(s); err != nil {
			t.Errorf("ParseDate(%q): %v", s, err)
		}
	}
	if _, err := ParseDate("03/01/2026"); err == nil {
		t.Error("expected error for unsupported layout")
	}
	got, _ := ParseDate("2026-03-01T10:00:00-05:00")
	if got.Hour() != 15 {
		t.Errorf("expected UTC normalization, got %v", got)
	}
}
