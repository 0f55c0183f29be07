// Package integration exercises the postgres store against a real database.
// Set SLOTFINDER_TEST_DATABASE_URL to use an existing server; otherwise a
// container is started with docker. Tests skip under -short or without docker.
package integration

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smartsched/slotfinder/internal/domain/directory"
	"github.com/smartsched/slotfinder/internal/platform/db"
	"github.com/smartsched/slotfinder/migrations"
)

var errNoDocker = errors.New("docker not available")

var (
	pool       *pgxpool.Pool
	skipReason string
)

func TestMain(m *testing.M) {
	flag.Parse()
	os.Exit(run(m))
}

func run(m *testing.M) int {
	if testing.Short() {
		skipReason = "integration tests disabled by -short"
		return m.Run()
	}

	ctx := context.Background()
	connStr := os.Getenv("SLOTFINDER_TEST_DATABASE_URL")
	if connStr == "" {
		cs, cleanup, err := startPostgres(ctx)
		if errors.Is(err, errNoDocker) {
			skipReason = err.Error()
			return m.Run()
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "start postgres: %v\n", err)
			return 1
		}
		defer cleanup()
		connStr = cs
	}

	p, err := db.NewPool(ctx, db.PoolConfig{URL: connStr, MaxConns: 8})
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		return 1
	}
	defer p.Close()
	if _, err := db.NewMigrator(p, migrations.FS).Up(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		return 1
	}
	pool = p
	return m.Run()
}

// newStore returns a postgres-backed store over empty tables.
func newStore(t *testing.T) *directory.Store {
	t.Helper()
	if pool == nil {
		t.Skip(skipReason)
	}
	_, err := pool.Exec(context.Background(),
		`TRUNCATE locations, practitioner_roles, schedules, slots`)
	if err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return directory.NewPostgresStore(pool)
}
