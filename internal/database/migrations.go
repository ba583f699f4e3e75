package database

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/twmb/murmur3"

	"github.com/CodeMonkeyCybersecurity/tmdbscan/internal/logger"
)

// Migration represents a single database migration
type Migration struct {
	Version     int
	Description string
	Up          string
}

// dialect holds the few DDL fragments sqlite3 and postgres disagree on.
type dialect struct {
	serialPK string
}

func dialectFor(driver string) dialect {
	if driver == "postgres" {
		return dialect{serialPK: "BIGSERIAL PRIMARY KEY"}
	}
	return dialect{serialPK: "INTEGER PRIMARY KEY AUTOINCREMENT"}
}

// MigrationRunner handles database migrations
type MigrationRunner struct {
	db      *sqlx.DB
	dialect dialect
	log     *logger.Logger
}

func NewMigrationRunner(db *sqlx.DB, driver string, log *logger.Logger) *MigrationRunner {
	return &MigrationRunner{
		db:      db,
		dialect: dialectFor(driver),
		log:     log,
	}
}

// Migrations returns all migrations for the runner's dialect, in order.
func (mr *MigrationRunner) Migrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create discoveries table",
			Up: fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS discoveries (
					id %s,
					run_id TEXT NOT NULL,
					title_id TEXT NOT NULL,
					category TEXT NOT NULL,
					url TEXT NOT NULL,
					path TEXT NOT NULL,
					name TEXT NOT NULL DEFAULT '',
					icon TEXT NOT NULL DEFAULT '',
					size INTEGER NOT NULL,
					fingerprint TEXT NOT NULL,
					empty BOOLEAN NOT NULL DEFAULT FALSE,
					discovered_at TIMESTAMP NOT NULL
				);
			`, mr.dialect.serialPK),
		},
		{
			Version:     2,
			Description: "Index discoveries by title, run and fingerprint",
			Up: `
				CREATE INDEX IF NOT EXISTS idx_discoveries_title_id ON discoveries(title_id);
				CREATE INDEX IF NOT EXISTS idx_discoveries_run_id ON discoveries(run_id);
				CREATE INDEX IF NOT EXISTS idx_discoveries_fingerprint ON discoveries(fingerprint);
			`,
		},
		{
			Version:     3,
			Description: "Create runs table",
			Up: `
				CREATE TABLE IF NOT EXISTS runs (
					run_id TEXT PRIMARY KEY,
					mode TEXT NOT NULL,
					started_at TIMESTAMP NOT NULL,
					finished_at TIMESTAMP NOT NULL,
					batches INTEGER NOT NULL,
					attempted BIGINT NOT NULL,
					found BIGINT NOT NULL,
					not_found BIGINT NOT NULL,
					transport_errors BIGINT NOT NULL
				);
			`,
		},
	}
}

func (mr *MigrationRunner) ensureMigrationsTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL,
			checksum TEXT NOT NULL
		);
	`

	if _, err := mr.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	return nil
}

func (mr *MigrationRunner) appliedVersions(ctx context.Context) (map[int]bool, error) {
	var versions []int
	if err := mr.db.SelectContext(ctx, &versions, "SELECT version FROM schema_migrations ORDER BY version"); err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}

	applied := make(map[int]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}
	return applied, nil
}

// RunMigrations applies all pending migrations and returns how many ran.
func (mr *MigrationRunner) RunMigrations(ctx context.Context) (int, error) {
	if err := mr.ensureMigrationsTable(ctx); err != nil {
		return 0, err
	}

	applied, err := mr.appliedVersions(ctx)
	if err != nil {
		return 0, err
	}

	all := mr.Migrations()
	sort.Slice(all, func(i, j int) bool {
		return all[i].Version < all[j].Version
	})

	count := 0
	for _, m := range all {
		if applied[m.Version] {
			continue
		}
		if err := mr.applyMigration(ctx, m); err != nil {
			return count, fmt.Errorf("failed to apply migration %d: %w", m.Version, err)
		}
		count++
	}

	if count == 0 {
		mr.log.Debugw("Database schema is up to date",
			"latest_version", all[len(all)-1].Version,
		)
	} else {
		mr.log.Infow("Migrations applied", "migrations_applied", count)
	}

	return count, nil
}

func (mr *MigrationRunner) applyMigration(ctx context.Context, m Migration) error {
	mr.log.Infow("Applying migration",
		"version", m.Version,
		"description", m.Description,
	)

	tx, err := mr.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.Up); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	checksum := fmt.Sprintf("%08x", murmur3.Sum32([]byte(m.Up)))
	record := tx.Rebind(`
		INSERT INTO schema_migrations (version, description, applied_at, checksum)
		VALUES (?, ?, ?, ?)
	`)
	if _, err := tx.ExecContext(ctx, record, m.Version, m.Description, time.Now().UTC(), checksum); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}

	return nil
}
