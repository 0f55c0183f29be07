package search

import (
	"errors"
	"strings"
	"time"

	"github.com/smartsched/slotfinder/internal/platform/validation"
)

// DefaultWindow is the span used when only one date bound is given.
const DefaultWindow = 30 * 24 * time.Hour

// ErrInvalidWindow is returned when dateTo precedes dateFrom.
var ErrInvalidWindow = errors.New("dateTo must not be before dateFrom")

// Filter is the search predicate set. Empty fields do not filter.
type Filter struct {
	Query           string   `json:"query" query:"query" validate:"max=200"`
	Specialty       string   `json:"specialty" query:"specialty" validate:"max=100"`
	Location        string   `json:"location" query:"location" validate:"max=100"`
	Insurance       []string `json:"insurance" query:"insurance" validate:"max=20,dive,max=100"`
	Languages       []string `json:"languages" query:"languages" validate:"max=20,dive,max=100"`
	DateFrom        string   `json:"dateFrom" query:"dateFrom" validate:"omitempty,fhirdate"`
	DateTo          string   `json:"dateTo" query:"dateTo" validate:"omitempty,fhirdate"`
	AppointmentType string   `json:"appointmentType" query:"appointmentType" validate:"max=100"`
	AvailableOnly   bool     `json:"availableOnly" query:"availableOnly"`
}

// Normalize trims text fields, splits comma separated list entries and drops
// empty ones.
func (f *Filter) Normalize() {
	f.Query = strings.TrimSpace(f.Query)
	f.Specialty = strings.TrimSpace(f.Specialty)
	f.Location = strings.TrimSpace(f.Location)
	f.AppointmentType = strings.TrimSpace(f.AppointmentType)
	f.DateFrom = strings.TrimSpace(f.DateFrom)
	f.DateTo = strings.TrimSpace(f.DateTo)
	f.Insurance = splitList(f.Insurance)
	f.Languages = splitList(f.Languages)
}

// Validate checks field rules and the date order.
func (f *Filter) Validate(v *validation.Validator) error {
	if err := v.Struct(f); err != nil {
		return err
	}
	if f.DateFrom != "" && f.DateTo != "" {
		from, _ := validation.ParseDate(f.DateFrom)
		to, _ := validation.ParseDate(f.DateTo)
		if to.Before(from) {
			return ErrInvalidWindow
		}
	}
	return nil
}

// affectsPractitioners reports whether any filter narrows PractitionerRole
// directly. The location filter is handled separately since it only counts
// when it matched something.
func (f *Filter) affectsPractitioners() bool {
	return f.Query != "" || f.Specialty != "" || len(f.Insurance) > 0 || len(f.Languages) > 0
}

// Window resolves the date range. A missing bound defaults to now or to
// now plus DefaultWindow. ok is false when neither bound is set.
func (f *Filter) Window(now time.Time) (from, to time.Time, ok bool) {
	if f.DateFrom == "" && f.DateTo == "" {
		return time.Time{}, time.Time{}, false
	}
	from, to = now, now.Add(DefaultWindow)
	if f.DateFrom != "" {
		if t, err := validation.ParseDate(f.DateFrom); err == nil {
			from = t
		}
	}
	if f.DateTo != "" {
		if t, err := validation.ParseDate(f.DateTo); err == nil {
			to = t
			// a bare date covers the whole day
			if len(f.DateTo) == len("2006-01-02") {
				to = to.Add(24*time.Hour - time.Nanosecond)
			}
		}
	}
	return from, to, true
}

func splitList(in []string) []string {
	var out []string
	for _, v := range in {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
