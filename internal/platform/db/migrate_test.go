package db

import (
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/smartsched/slotfinder/migrations"
)

func TestLoadMigrations_SortsAndFilters(t *testing.T) {
	fsys := fstest.MapFS{
		"010_slots_index.sql": {Data: []byte("CREATE INDEX x ON slots (start_time);")},
		"002_roles.sql":       {Data: []byte("CREATE TABLE roles ();")},
		"001_locations.sql":   {Data: []byte("CREATE TABLE locations ();")},
		"README.md":           {Data: []byte("notes")},
		"seed.sql":            {Data: []byte("INSERT ...")},
		"abc_bad.sql":         {Data: []byte("SELECT 1;")},
		"003_dir/nested.sql":  {Data: []byte("SELECT 1;")},
	}

	got, err := NewMigrator(nil, fsys).LoadMigrations()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 migrations, got %d: %+v", len(got), got)
	}
	for i, want := range []int{1, 2, 10} {
		if got[i].Version != want {
			t.Errorf("migration %d version = %d, want %d", i, got[i].Version, want)
		}
	}
	if got[0].Name != "001_locations.sql" || got[0].SQL != "CREATE TABLE locations ();" {
		t.Errorf("unexpected first migration: %+v", got[0])
	}
}

func TestLoadMigrations_DuplicateVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"001_a.sql":  {Data: []byte("SELECT 1;")},
		"0001_b.sql": {Data: []byte("SELECT 2;")},
	}
	_, err := NewMigrator(nil, fsys).LoadMigrations()
	if err == nil || !strings.Contains(err.Error(), "version 1") {
		t.Fatalf("expected duplicate version error, got %v", err)
	}
}

func TestLoadMigrations_Empty(t *testing.T) {
	got, err := NewMigrator(nil, fstest.MapFS{}).LoadMigrations()
	if err != nil || len(got) != 0 {
		t.Fatalf("got %v, %v", got, err)
	}
}

func TestPendingAndStatuses(t *testing.T) {
	migs := []Migration{{Version: 1, Name: "001_a.sql"}, {Version: 2, Name: "002_b.sql"}}
	at := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	done := map[int]time.Time{1: at}

	p := pending(migs, done)
	if len(p) != 1 || p[0].Version != 2 {
		t.Errorf("pending = %+v", p)
	}

	st := statuses(migs, done)
	if !st[0].Applied || !st[0].AppliedAt.Equal(at) {
		t.Errorf("first status = %+v", st[0])
	}
	if st[1].Applied || st[1].AppliedAt != nil {
		t.Errorf("second status = %+v", st[1])
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	got, err := NewMigrator(nil, migrations.FS).LoadMigrations()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) == 0 || got[0].Version != 1 {
		t.Fatalf("expected embedded directory migration, got %+v", got)
	}
	if !strings.Contains(got[0].SQL, "CREATE TABLE IF NOT EXISTS slots") {
		t.Error("directory migration should create the slots table")
	}
}
