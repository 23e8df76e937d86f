package migrations

import "testing"

func TestLoadMigrationsParsesIDAndDescription(t *testing.T) {
	m := &Migrator{}
	migrations, err := m.loadMigrations()
	if err != nil {
		t.Fatalf("loadMigrations: %v", err)
	}
	if len(migrations) == 0 {
		t.Fatalf("expected at least one embedded migration")
	}

	first := migrations[0]
	if first.ID != 1 {
		t.Fatalf("expected the first migration's id to be 1, got %d", first.ID)
	}
	if first.Filename != "001_initial_schema.sql" {
		t.Fatalf("unexpected filename %q", first.Filename)
	}
	if first.Description != "initial ingestion catalog schema" {
		t.Fatalf("expected description parsed from the leading '-- Description:' comment, got %q", first.Description)
	}
	if first.SQL == "" {
		t.Fatalf("expected non-empty SQL body")
	}
}

func TestLoadMigrationsSortedByID(t *testing.T) {
	m := &Migrator{}
	migrations, err := m.loadMigrations()
	if err != nil {
		t.Fatalf("loadMigrations: %v", err)
	}
	for i := 1; i < len(migrations); i++ {
		if migrations[i-1].ID >= migrations[i].ID {
			t.Fatalf("expected migrations sorted ascending by id, got %d before %d",
				migrations[i-1].ID, migrations[i].ID)
		}
	}
}
