package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smartsched/slotfinder/internal/platform/db"
)

// pgColumn is a denormalized column written alongside the JSONB document.
type pgColumn[T Resource] struct {
	name  string
	value func(T) interface{}
}

// pgRepo stores one resource kind as JSONB documents keyed by id. The seq
// column preserves first-insert order for List.
type pgRepo[T Resource] struct {
	pool   *pgxpool.Pool
	table  string
	extra  []pgColumn[T]
	decode func([]byte) (T, error)
	// conflict overrides the ON CONFLICT SET clause.
	conflict string
}

func decodeJSON[T any](b []byte) (*T, error) {
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *pgRepo[T]) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

func (r *pgRepo[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	var data []byte
	err := r.conn(ctx).QueryRow(ctx, `SELECT data FROM `+r.table+` WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return zero, ErrNotFound
	}
	if err != nil {
		return zero, fmt.Errorf("get %s %s: %w", r.table, id, err)
	}
	return r.decode(data)
}

func (r *pgRepo[T]) List(ctx context.Context) ([]T, error) {
	return r.query(ctx, `SELECT data FROM `+r.table+` ORDER BY seq`)
}

func (r *pgRepo[T]) query(ctx context.Context, sql string, args ...interface{}) ([]T, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", r.table, err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan %s: %w", r.table, err)
		}
		it, err := r.decode(data)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", r.table, err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *pgRepo[T]) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT count(*) FROM `+r.table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", r.table, err)
	}
	return n, nil
}

func (r *pgRepo[T]) upsertSQL() string {
	cols := []string{"id", "publisher_url", "updated_at", "data"}
	for _, c := range r.extra {
		cols = append(cols, c.name)
	}
	params := make([]string, len(cols))
	for i := range cols {
		params[i] = fmt.Sprintf("$%d", i+1)
	}

	set := r.conflict
	if set == "" {
		var parts []string
		for _, c := range cols[1:] {
			parts = append(parts, c+" = EXCLUDED."+c)
		}
		set = strings.Join(parts, ", ")
	}
	return fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (id) DO UPDATE SET %s RETURNING data`,
		r.table, strings.Join(cols, ", "), strings.Join(params, ", "), set)
}

func (r *pgRepo[T]) BulkUpsert(ctx context.Context, records []T) ([]T, error) {
	if len(records) == 0 {
		return nil, nil
	}
	sql := r.upsertSQL()
	batch := &pgx.Batch{}
	for i, rec := range records {
		if rec.ResourceID() == "" {
			return nil, fmt.Errorf("record %d: empty id", i)
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("marshal %s %s: %w", r.table, rec.ResourceID(), err)
		}
		publisherURL, updatedAt := provenanceOf(rec)
		args := []interface{}{rec.ResourceID(), publisherURL, updatedAt, data}
		for _, c := range r.extra {
			args = append(args, c.value(rec))
		}
		batch.Queue(sql, args...)
	}

	br := r.conn(ctx).SendBatch(ctx, batch)
	defer br.Close()

	out := make([]T, 0, len(records))
	for range records {
		var data []byte
		if err := br.QueryRow().Scan(&data); err != nil {
			return nil, fmt.Errorf("upsert %s: %w", r.table, err)
		}
		it, err := r.decode(data)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, nil
}

func provenanceOf(r Resource) (string, time.Time) {
	switch v := r.(type) {
	case *Location:
		return v.PublisherURL, v.UpdatedAt
	case *PractitionerRole:
		return v.PublisherURL, v.UpdatedAt
	case *Schedule:
		return v.PublisherURL, v.UpdatedAt
	case *Slot:
		return v.PublisherURL, v.UpdatedAt
	}
	return "", time.Time{}
}

type pgRoleRepo struct {
	*pgRepo[*PractitionerRole]
}

func (r *pgRoleRepo) ApplyEnrichment(ctx context.Context, id string, e *Enrichment) (bool, error) {
	if e == nil || e.NPI == "" {
		return false, fmt.Errorf("enrichment for %s: npi is required", id)
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return false, fmt.Errorf("marshal enrichment: %w", err)
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE practitioner_roles
		SET data = jsonb_set(data, '{enrichment}', $2::jsonb), npi = $3
		WHERE id = $1 AND npi IS NULL`, id, payload, e.NPI)
	if err != nil {
		return false, fmt.Errorf("apply enrichment %s: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	if _, err := r.Get(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

type pgSlotRepo struct {
	*pgRepo[*Slot]
}

func (r *pgSlotRepo) ListByTimeRange(ctx context.Context, start, end time.Time) ([]*Slot, error) {
	return r.query(ctx, `SELECT data FROM slots WHERE start_time >= $1 AND start_time <= $2 ORDER BY start_time, seq`, start, end)
}

// roleConflict keeps the stored enrichment overlay and NPI when the incoming
// document carries none.
const roleConflict = `publisher_url = EXCLUDED.publisher_url,
	updated_at = EXCLUDED.updated_at,
	data = CASE
		WHEN EXCLUDED.data -> 'enrichment' IS NULL AND practitioner_roles.data ? 'enrichment'
		THEN jsonb_set(EXCLUDED.data, '{enrichment}', practitioner_roles.data -> 'enrichment')
		ELSE EXCLUDED.data
	END,
	npi = COALESCE(EXCLUDED.npi, practitioner_roles.npi)`

// NewPostgresStore returns a Store backed by the tables of migration
// 001_directory.sql.
func NewPostgresStore(pool *pgxpool.Pool) *Store {
	return &Store{
		Locations: &pgRepo[*Location]{
			pool: pool, table: "locations", decode: decodeJSON[Location],
			extra: []pgColumn[*Location]{
				{name: "state", value: func(l *Location) interface{} { return nullable(l.State()) }},
			},
		},
		PractitionerRoles: &pgRoleRepo{&pgRepo[*PractitionerRole]{
			pool: pool, table: "practitioner_roles", decode: decodeJSON[PractitionerRole],
			extra: []pgColumn[*PractitionerRole]{
				{name: "npi", value: func(r *PractitionerRole) interface{} { return nullable(r.NPI()) }},
			},
			conflict: roleConflict,
		}},
		Schedules: &pgRepo[*Schedule]{
			pool: pool, table: "schedules", decode: decodeJSON[Schedule],
		},
		Slots: &pgSlotRepo{&pgRepo[*Slot]{
			pool: pool, table: "slots", decode: decodeJSON[Slot],
			extra: []pgColumn[*Slot]{
				{name: "schedule_id", value: func(s *Slot) interface{} { return nullable(s.ScheduleID()) }},
				{name: "status", value: func(s *Slot) interface{} { return s.Status }},
				{name: "start_time", value: func(s *Slot) interface{} { return s.Start }},
			},
		}},
		inTx: func(ctx context.Context, fn func(ctx context.Context) error) error {
			return db.WithTx(ctx, pool, fn)
		},
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
