// Package store is the Job Store of spec §3/§6.3: durable persistence for
// upload sessions, blobs, jobs, transcripts and artifacts, backed by
// Postgres through lib/pq, the way the teacher's database package does.
package store

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type Migrator struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewMigrator(db *sql.DB, log zerolog.Logger) *Migrator {
	return &Migrator{db: db, log: log}
}

// Run applies every migration under migrations/ not yet recorded in
// schema_migrations, each inside its own transaction, in filename order.
func (m *Migrator) Run() error {
	if err := m.createMigrationsTable(); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		applied, err := m.isApplied(name)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if applied {
			continue
		}

		sqlBytes, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		m.log.Info().Str("migration", name).Msg("applying migration")

		tx, err := m.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for %s: %w", name, err)
		}
		if _, err := tx.Exec(string(sqlBytes)); err != nil {
			tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", name, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (name, applied_at) VALUES ($1, NOW())`, name); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", name, err)
		}
	}

	return nil
}

// Down removes the applied record of the named migration only; schema
// changes in this pipeline are additive (§6.3), so there is no generated
// reverse SQL to run — this is an escape hatch for re-running a migration
// after a manual fix.
func (m *Migrator) Down(name string) error {
	_, err := m.db.Exec(`DELETE FROM schema_migrations WHERE name = $1`, name)
	return err
}

func (m *Migrator) createMigrationsTable() error {
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)
	`)
	return err
}

func (m *Migrator) isApplied(name string) (bool, error) {
	var count int
	err := m.db.QueryRow(`SELECT COUNT(*) FROM schema_migrations WHERE name = $1`, name).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
