// Package search answers cross-resource queries over the aggregated
// directory. Slots are narrowed through Schedule actors to the
// PractitionerRoles that survive the practitioner filters.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smartsched/slotfinder/internal/domain/directory"
	"github.com/smartsched/slotfinder/internal/platform/fhir"
)

// ErrSlotNotFound is returned by Booking for an unknown slot id.
var ErrSlotNotFound = errors.New("slot not found")

type Counts struct {
	Practitioners  int `json:"practitioners"`
	Locations      int `json:"locations"`
	AvailableSlots int `json:"availableSlots"`
}

// Result holds the narrowed collections. Empty results are not errors.
type Result struct {
	Practitioners  []*directory.PractitionerRole `json:"practitioners"`
	Locations      []*directory.Location         `json:"locations"`
	AvailableSlots []*directory.Slot             `json:"availableSlots"`
	Counts         Counts                        `json:"counts"`
}

// Booking is what a client needs to book a slot.
type Booking struct {
	Slot         *directory.Slot `json:"slot"`
	BookingLink  string          `json:"bookingLink,omitempty"`
	BookingPhone string          `json:"bookingPhone,omitempty"`
}

type Engine struct {
	store *directory.Store
	now   func() time.Time
}

func NewEngine(store *directory.Store) *Engine {
	return &Engine{store: store, now: time.Now}
}

// Search applies f. The filter is assumed to be normalized and valid.
func (e *Engine) Search(ctx context.Context, f Filter) (*Result, error) {
	roles, err := e.store.PractitionerRoles.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list practitioner roles: %w", err)
	}
	locations, err := e.store.Locations.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}

	// 1. specialty and free text
	if f.Specialty != "" {
		roles = filterSlice(roles, func(r *directory.PractitionerRole) bool {
			return matchesSpecialty(r, f.Specialty)
		})
	}
	if f.Query != "" {
		roles = filterSlice(roles, func(r *directory.PractitionerRole) bool {
			return matchesSpecialty(r, f.Query)
		})
	}

	// 2. locations, and the roles practicing at them
	practitionerFiltered := f.affectsPractitioners()
	if f.Location != "" {
		locations = filterSlice(locations, func(l *directory.Location) bool {
			return matchesLocation(l, f.Location)
		})
		if len(locations) > 0 {
			practitionerFiltered = true
			surviving := make(map[string]bool, len(locations))
			for _, l := range locations {
				surviving[l.ID] = true
			}
			roles = filterSlice(roles, func(r *directory.PractitionerRole) bool {
				ids := r.LocationIDs()
				if len(ids) == 0 {
					return true
				}
				for _, id := range ids {
					if surviving[id] {
						return true
					}
				}
				return false
			})
		}
	}

	// 3-4. enrichment attributes
	if len(f.Insurance) > 0 {
		roles = filterSlice(roles, func(r *directory.PractitionerRole) bool {
			return r.Enrichment != nil && anyMatch(f.Insurance, r.Enrichment.InsuranceAccepted)
		})
	}
	if len(f.Languages) > 0 {
		roles = filterSlice(roles, func(r *directory.PractitionerRole) bool {
			return r.Enrichment != nil && anyMatch(f.Languages, r.Enrichment.LanguagesSpoken)
		})
	}

	// 5-7. slots
	var slots []*directory.Slot
	if from, to, ok := f.Window(e.now()); ok {
		slots, err = e.store.Slots.ListByTimeRange(ctx, from, to)
	} else {
		slots, err = e.store.Slots.List(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	if f.AvailableOnly {
		slots = filterSlice(slots, func(s *directory.Slot) bool {
			return s.Status == directory.SlotStatusFree
		})
	}
	if f.AppointmentType != "" {
		slots = filterSlice(slots, func(s *directory.Slot) bool {
			return s.AppointmentType != nil && strings.EqualFold(*s.AppointmentType, f.AppointmentType)
		})
	}

	// 8. closure
	if practitionerFiltered {
		slots, err = e.closeOver(ctx, roles, slots)
		if err != nil {
			return nil, err
		}
	}

	res := &Result{
		Practitioners:  nonNil(roles),
		Locations:      nonNil(locations),
		AvailableSlots: nonNil(slots),
	}
	res.Counts = Counts{
		Practitioners:  len(res.Practitioners),
		Locations:      len(res.Locations),
		AvailableSlots: len(res.AvailableSlots),
	}
	return res, nil
}

// closeOver keeps the slots whose schedule has a surviving role as actor.
// Dangling references simply do not match.
func (e *Engine) closeOver(ctx context.Context, roles []*directory.PractitionerRole, slots []*directory.Slot) ([]*directory.Slot, error) {
	if len(roles) == 0 || len(slots) == 0 {
		return nil, nil
	}
	reachableRoles := make(map[string]bool, len(roles))
	for _, r := range roles {
		reachableRoles[r.ID] = true
	}

	schedules, err := e.store.Schedules.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	reachableSchedules := map[string]bool{}
	for _, s := range schedules {
		for _, id := range s.ActorIDs(fhir.ResourcePractitionerRole) {
			if reachableRoles[id] {
				reachableSchedules[s.ID] = true
				break
			}
		}
	}
	if len(reachableSchedules) == 0 {
		return nil, nil
	}
	return filterSlice(slots, func(s *directory.Slot) bool {
		return reachableSchedules[s.ScheduleID()]
	}), nil
}

// Booking returns the slot with its booking deep link and phone, if any.
func (e *Engine) Booking(ctx context.Context, slotID string) (*Booking, error) {
	slot, err := e.store.Slots.Get(ctx, slotID)
	if errors.Is(err, directory.ErrNotFound) {
		return nil, ErrSlotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get slot %s: %w", slotID, err)
	}
	link, phone := directory.BookingInfo(slot.Extension)
	return &Booking{Slot: slot, BookingLink: link, BookingPhone: phone}, nil
}

func matchesSpecialty(r *directory.PractitionerRole, term string) bool {
	for _, cc := range r.Specialty {
		if containsFold(cc.Text, term) {
			return true
		}
		for _, c := range cc.Coding {
			if containsFold(c.Display, term) || containsFold(c.Code, term) {
				return true
			}
		}
	}
	return containsFold(r.DisplayName(), term)
}

func matchesLocation(l *directory.Location, term string) bool {
	if containsFold(l.Name, term) {
		return true
	}
	if l.Address == nil {
		return false
	}
	a := l.Address
	return containsFold(a.City, term) || strings.EqualFold(strings.TrimSpace(a.State), term) ||
		strings.HasPrefix(a.PostalCode, term) || containsFold(a.Text, term)
}

// anyMatch reports whether some wanted value is a case-insensitive substring
// of some entry of have.
func anyMatch(wanted, have []string) bool {
	for _, w := range wanted {
		for _, h := range have {
			if containsFold(h, w) {
				return true
			}
		}
	}
	return false
}

func containsFold(s, substr string) bool {
	return substr != "" && strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func filterSlice[T any](in []T, keep func(T) bool) []T {
	out := make([]T, 0, len(in))
	for _, v := range in {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
