package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smartsched/slotfinder/internal/platform/fhir"
)

var ErrNotFound = errors.New("resource not found")

// Repository is the keyed collection of one resource kind. BulkUpsert is
// idempotent per id and last write wins.
type Repository[T Resource] interface {
	Get(ctx context.Context, id string) (T, error)
	List(ctx context.Context) ([]T, error)
	Count(ctx context.Context) (int, error)
	BulkUpsert(ctx context.Context, records []T) ([]T, error)
}

type LocationRepository = Repository[*Location]

type ScheduleRepository = Repository[*Schedule]

// PractitionerRoleRepository keeps the enrichment overlay of a role when an
// upsert carries none. ApplyEnrichment writes only when the stored role has
// no NPI yet and reports whether it did.
type PractitionerRoleRepository interface {
	Repository[*PractitionerRole]
	ApplyEnrichment(ctx context.Context, id string, e *Enrichment) (bool, error)
}

// SlotRepository adds a range scan on slot start, inclusive on both ends.
type SlotRepository interface {
	Repository[*Slot]
	ListByTimeRange(ctx context.Context, start, end time.Time) ([]*Slot, error)
}

// Store bundles the four collections. It is built once at startup and
// handed to every component that reads or writes directory data.
type Store struct {
	Locations         LocationRepository
	PractitionerRoles PractitionerRoleRepository
	Schedules         ScheduleRepository
	Slots             SlotRepository

	// inTx wraps multi-kind writes; nil runs them directly.
	inTx func(ctx context.Context, fn func(ctx context.Context) error) error
}

// Counts is the size of each collection.
type Counts struct {
	Locations         int `json:"locations"`
	PractitionerRoles int `json:"practitionerRoles"`
	Schedules         int `json:"schedules"`
	Slots             int `json:"slots"`
}

// ByType returns the count for a FHIR resource type name.
func (c Counts) ByType(resourceType string) int {
	switch resourceType {
	case fhir.ResourceLocation:
		return c.Locations
	case fhir.ResourcePractitionerRole:
		return c.PractitionerRoles
	case fhir.ResourceSchedule:
		return c.Schedules
	case fhir.ResourceSlot:
		return c.Slots
	}
	return 0
}

func (s *Store) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	var err error
	if c.Locations, err = s.Locations.Count(ctx); err != nil {
		return c, fmt.Errorf("count locations: %w", err)
	}
	if c.PractitionerRoles, err = s.PractitionerRoles.Count(ctx); err != nil {
		return c, fmt.Errorf("count practitioner roles: %w", err)
	}
	if c.Schedules, err = s.Schedules.Count(ctx); err != nil {
		return c, fmt.Errorf("count schedules: %w", err)
	}
	if c.Slots, err = s.Slots.Count(ctx); err != nil {
		return c, fmt.Errorf("count slots: %w", err)
	}
	return c, nil
}

// Batch groups decoded resources of every kind.
type Batch struct {
	Locations         []*Location
	PractitionerRoles []*PractitionerRole
	Schedules         []*Schedule
	Slots             []*Slot
}

// Add appends r to the slice for its kind.
func (b *Batch) Add(r Resource) {
	switch v := r.(type) {
	case *Location:
		b.Locations = append(b.Locations, v)
	case *PractitionerRole:
		b.PractitionerRoles = append(b.PractitionerRoles, v)
	case *Schedule:
		b.Schedules = append(b.Schedules, v)
	case *Slot:
		b.Slots = append(b.Slots, v)
	}
}

// Len is the number of resources in the batch.
func (b *Batch) Len() int {
	return len(b.Locations) + len(b.PractitionerRoles) + len(b.Schedules) + len(b.Slots)
}

// Upsert writes every kind in b in reference order (Location,
// PractitionerRole, Schedule, Slot). The Postgres store writes the batch in
// one transaction; readers of the memory store may observe it half applied.
func (s *Store) Upsert(ctx context.Context, b *Batch) error {
	if s.inTx != nil {
		return s.inTx(ctx, func(ctx context.Context) error { return s.upsert(ctx, b) })
	}
	return s.upsert(ctx, b)
}

func (s *Store) upsert(ctx context.Context, b *Batch) error {
	if len(b.Locations) > 0 {
		if _, err := s.Locations.BulkUpsert(ctx, b.Locations); err != nil {
			return fmt.Errorf("upsert locations: %w", err)
		}
	}
	if len(b.PractitionerRoles) > 0 {
		if _, err := s.PractitionerRoles.BulkUpsert(ctx, b.PractitionerRoles); err != nil {
			return fmt.Errorf("upsert practitioner roles: %w", err)
		}
	}
	if len(b.Schedules) > 0 {
		if _, err := s.Schedules.BulkUpsert(ctx, b.Schedules); err != nil {
			return fmt.Errorf("upsert schedules: %w", err)
		}
	}
	if len(b.Slots) > 0 {
		if _, err := s.Slots.BulkUpsert(ctx, b.Slots); err != nil {
			return fmt.Errorf("upsert slots: %w", err)
		}
	}
	return nil
}

// ListByType returns every stored resource of resourceType.
func (s *Store) ListByType(ctx context.Context, resourceType string) ([]Resource, error) {
	switch resourceType {
	case fhir.ResourceLocation:
		return listAs(ctx, s.Locations)
	case fhir.ResourcePractitionerRole:
		return listAs[*PractitionerRole](ctx, s.PractitionerRoles)
	case fhir.ResourceSchedule:
		return listAs(ctx, s.Schedules)
	case fhir.ResourceSlot:
		return listAs[*Slot](ctx, s.Slots)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, resourceType)
}

func listAs[T Resource](ctx context.Context, repo Repository[T]) ([]Resource, error) {
	items, err := repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Resource, len(items))
	for i, it := range items {
		out[i] = it
	}
	return out, nil
}
