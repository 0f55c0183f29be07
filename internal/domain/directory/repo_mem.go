package directory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// memRepo is an in-memory collection keyed by id. List order is the order in
// which ids were first inserted.
type memRepo[T Resource] struct {
	mu    sync.RWMutex
	items map[string]T
	order []string
	// merge, when set, combines a stored record with an incoming one.
	merge func(existing, incoming T) T
}

func newMemRepo[T Resource]() *memRepo[T] {
	return &memRepo[T]{items: make(map[string]T)}
}

func (m *memRepo[T]) Get(_ context.Context, id string) (T, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.items[id]
	if !ok {
		var zero T
		return zero, ErrNotFound
	}
	return it, nil
}

func (m *memRepo[T]) List(_ context.Context) ([]T, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]T, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.items[id])
	}
	return out, nil
}

func (m *memRepo[T]) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items), nil
}

func (m *memRepo[T]) BulkUpsert(_ context.Context, records []T) ([]T, error) {
	for i, rec := range records {
		if rec.ResourceID() == "" {
			return nil, fmt.Errorf("record %d: empty id", i)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]T, 0, len(records))
	for _, rec := range records {
		id := rec.ResourceID()
		existing, ok := m.items[id]
		if !ok {
			m.order = append(m.order, id)
		} else if m.merge != nil {
			rec = m.merge(existing, rec)
		}
		m.items[id] = rec
		out = append(out, rec)
	}
	return out, nil
}

type memRoleRepo struct {
	*memRepo[*PractitionerRole]
}

func newMemRoleRepo() *memRoleRepo {
	r := &memRoleRepo{memRepo: newMemRepo[*PractitionerRole]()}
	r.merge = keepEnrichment
	return r
}

// keepEnrichment carries a stored enrichment overlay over to an incoming
// role that has none.
func keepEnrichment(existing, incoming *PractitionerRole) *PractitionerRole {
	if incoming.Enrichment != nil || existing.Enrichment == nil {
		return incoming
	}
	cp := *incoming
	cp.Enrichment = existing.Enrichment
	return &cp
}

func (r *memRoleRepo) ApplyEnrichment(_ context.Context, id string, e *Enrichment) (bool, error) {
	if e == nil || e.NPI == "" {
		return false, fmt.Errorf("enrichment for %s: npi is required", id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.items[id]
	if !ok {
		return false, ErrNotFound
	}
	if existing.NPI() != "" {
		return false, nil
	}
	// Copy on write so readers holding the old pointer never see a change.
	cp := *existing
	cp.Enrichment = e
	r.items[id] = &cp
	return true, nil
}

type memSlotRepo struct {
	*memRepo[*Slot]
}

func (r *memSlotRepo) ListByTimeRange(_ context.Context, start, end time.Time) ([]*Slot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Slot
	for _, id := range r.order {
		s := r.items[id]
		if s.Start.Before(start) || s.Start.After(end) {
			continue
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

// NewMemoryStore returns a Store held entirely in process memory.
func NewMemoryStore() *Store {
	return &Store{
		Locations:         newMemRepo[*Location](),
		PractitionerRoles: newMemRoleRepo(),
		Schedules:         newMemRepo[*Schedule](),
		Slots:             &memSlotRepo{memRepo: newMemRepo[*Slot]()},
	}
}
