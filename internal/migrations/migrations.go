// Package migrations applies the numbered SQL files embedded in sql/
// against a Postgres pool, tracking progress in a schema_migrations table
// keyed by a monotonically increasing id. Grounded on the teacher's
// migrations/migration.go for the embed.FS + numbered-filename convention,
// restructured around a high-water-mark check (migrations are applied
// strictly in order, so only the highest applied id needs tracking,
// not a full per-id set) and regexp-based filename/description parsing
// (github.com/sirupsen/logrus for progress, as in the rest of this repo).
package migrations

import (
	"context"
	"embed"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

//go:embed sql/*.sql
var migrationFiles embed.FS

var (
	filenamePattern    = regexp.MustCompile(`^(\d+)_.*\.sql$`)
	descriptionPattern = regexp.MustCompile(`(?m)^--\s*Description:\s*(.*)$`)
)

// Migration is one embedded SQL file, identified by the numeric prefix of
// its filename.
type Migration struct {
	ID          int
	Filename    string
	Description string
	SQL         string
}

// Migrator applies embedded migrations against db, recording each one's id
// in schema_migrations so repeated runs are idempotent.
type Migrator struct {
	db *pgxpool.Pool
}

func NewMigrator(db *pgxpool.Pool) *Migrator {
	return &Migrator{db: db}
}

// Migrate brings the schema up to date: it creates the bookkeeping table
// if absent, finds the highest id already recorded, and applies every
// embedded migration with a greater id, in ascending order, each inside
// its own transaction.
func (m *Migrator) Migrate(ctx context.Context) error {
	if _, err := m.db.Exec(ctx, schemaMigrationsDDL); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	highWater, err := m.highWaterMark(ctx)
	if err != nil {
		return fmt.Errorf("read migration high-water mark: %w", err)
	}

	all, err := m.loadMigrations()
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}

	var applied int
	for _, mig := range all {
		if mig.ID <= highWater {
			continue
		}
		logrus.WithFields(logrus.Fields{"id": mig.ID, "description": mig.Description}).Info("applying migration")
		if err := m.apply(ctx, mig); err != nil {
			return fmt.Errorf("migration %d (%s): %w", mig.ID, mig.Filename, err)
		}
		applied++
	}

	logrus.WithField("count", applied).Info("migrations applied")
	return nil
}

const schemaMigrationsDDL = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		id INTEGER PRIMARY KEY,
		filename VARCHAR(255) NOT NULL,
		description TEXT,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
`

// highWaterMark returns the largest migration id already recorded, or 0 if
// none have run. Migrations are always applied in ascending id order, so
// this single scalar is equivalent to tracking the full applied-id set.
func (m *Migrator) highWaterMark(ctx context.Context) (int, error) {
	var max int
	err := m.db.QueryRow(ctx, `SELECT COALESCE(MAX(id), 0) FROM schema_migrations`).Scan(&max)
	return max, err
}

// apply runs mig's SQL and records it in schema_migrations as a single
// transaction, so a failure partway through leaves neither applied.
func (m *Migrator) apply(ctx context.Context, mig Migration) error {
	tx, err := m.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, mig.SQL); err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO schema_migrations (id, filename, description) VALUES ($1, $2, $3)`,
		mig.ID, mig.Filename, mig.Description,
	); err != nil {
		return fmt.Errorf("record: %w", err)
	}
	return tx.Commit(ctx)
}

// loadMigrations reads every sql/*.sql file embedded at build time,
// parsing its leading numeric id from the filename and its description
// from a "-- Description:" comment line, sorted ascending by id.
func (m *Migrator) loadMigrations() ([]Migration, error) {
	entries, err := migrationFiles.ReadDir("sql")
	if err != nil {
		return nil, err
	}

	migrations := make([]Migration, 0, len(entries))
	for _, entry := range entries {
		mig, ok, err := parseMigrationFile(entry.Name())
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		migrations = append(migrations, mig)
	}

	sort.Slice(migrations, func(i, j int) bool { return migrations[i].ID < migrations[j].ID })
	return migrations, nil
}

// parseMigrationFile reads and parses a single embedded file. ok is false
// for directory entries or names that don't match the "<id>_*.sql"
// convention, which loadMigrations silently skips.
func parseMigrationFile(name string) (Migration, bool, error) {
	match := filenamePattern.FindStringSubmatch(name)
	if match == nil {
		return Migration{}, false, nil
	}

	id, err := strconv.Atoi(match[1])
	if err != nil {
		return Migration{}, false, nil
	}

	content, err := migrationFiles.ReadFile("sql/" + name)
	if err != nil {
		return Migration{}, false, fmt.Errorf("read %s: %w", name, err)
	}

	description := ""
	if m := descriptionPattern.FindStringSubmatch(string(content)); m != nil {
		description = strings.TrimSpace(m[1])
	}

	return Migration{ID: id, Filename: name, Description: description, SQL: string(content)}, true, nil
}
