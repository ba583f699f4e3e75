package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/CodeMonkeyCybersecurity/tmdbscan/internal/config"
	"github.com/CodeMonkeyCybersecurity/tmdbscan/internal/logger"
	"github.com/CodeMonkeyCybersecurity/tmdbscan/internal/recorder"
)

// Store is the discovery index: every found title, plus one summary row per
// run. It backs both sqlite3 and postgres.
type Store struct {
	db     *sqlx.DB
	cfg    config.DatabaseConfig
	logger *logger.Logger
}

// Run summarises a finished scan.
type Run struct {
	RunID           string    `db:"run_id"`
	Mode            string    `db:"mode"`
	StartedAt       time.Time `db:"started_at"`
	FinishedAt      time.Time `db:"finished_at"`
	Batches         int       `db:"batches"`
	Attempted       int64     `db:"attempted"`
	Found           int64     `db:"found"`
	NotFound        int64     `db:"not_found"`
	TransportErrors int64     `db:"transport_errors"`
}

// Query filters ListDiscoveries. Zero values match everything.
type Query struct {
	RunID    string
	Category string
	TitleID  string
	Limit    int
}

func NewStore(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.NewNop()
	}
	log = log.WithComponent("database")

	start := time.Now()
	ctx, span := log.StartOperation(ctx, "database.NewStore",
		"driver", cfg.Driver,
		"dsn_masked", maskDSN(cfg.DSN),
	)
	var err error
	defer func() {
		log.FinishOperation(ctx, span, "database.NewStore", start, err)
	}()

	var db *sqlx.DB
	db, err = sqlx.ConnectContext(ctx, cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// sqlite3 allows one writer; a single connection keeps concurrent
	// recorders from hitting SQLITE_BUSY.
	if cfg.Driver == "sqlite3" {
		db.SetMaxOpenConns(1)
	} else {
		if cfg.MaxConnections > 0 {
			db.SetMaxOpenConns(cfg.MaxConnections)
		}
		if cfg.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.MaxIdleConns)
		}
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if _, err = NewMigrationRunner(db, cfg.Driver, log).RunMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Infow("Database store initialized", "driver", cfg.Driver)

	return &Store{db: db, cfg: cfg, logger: log}, nil
}

// maskDSN masks sensitive information in DSN for logging
func maskDSN(dsn string) string {
	if len(dsn) > 10 {
		return dsn[:5] + "***" + dsn[len(dsn)-5:]
	}
	return "***"
}

// SaveDiscovery inserts one row. Repeated title IDs produce repeated rows.
func (s *Store) SaveDiscovery(ctx context.Context, d *recorder.Discovery) error {
	query := `
		INSERT INTO discoveries (
			run_id, title_id, category, url, path, name, icon,
			size, fingerprint, empty, discovered_at
		) VALUES (
			:run_id, :title_id, :category, :url, :path, :name, :icon,
			:size, :fingerprint, :empty, :discovered_at
		)`

	if _, err := s.db.NamedExecContext(ctx, query, d); err != nil {
		return fmt.Errorf("failed to save discovery %s: %w", d.TitleID, err)
	}
	return nil
}

// ListDiscoveries returns matching rows, newest first.
func (s *Store) ListDiscoveries(ctx context.Context, q Query) ([]recorder.Discovery, error) {
	var (
		where []string
		args  []interface{}
	)
	if q.RunID != "" {
		where = append(where, "run_id = ?")
		args = append(args, q.RunID)
	}
	if q.Category != "" {
		where = append(where, "category = ?")
		args = append(args, q.Category)
	}
	if q.TitleID != "" {
		where = append(where, "title_id = ?")
		args = append(args, strings.ToUpper(q.TitleID))
	}

	query := `SELECT run_id, title_id, category, url, path, name, icon,
		size, fingerprint, empty, discovered_at FROM discoveries`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY discovered_at DESC, id DESC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	var out []recorder.Discovery
	if err := s.db.SelectContext(ctx, &out, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list discoveries: %w", err)
	}
	return out, nil
}

// CountDiscoveries returns the number of rows, optionally for one run.
func (s *Store) CountDiscoveries(ctx context.Context, runID string) (int, error) {
	query := "SELECT COUNT(*) FROM discoveries"
	var args []interface{}
	if runID != "" {
		query += " WHERE run_id = ?"
		args = append(args, runID)
	}

	var n int
	if err := s.db.GetContext(ctx, &n, s.db.Rebind(query), args...); err != nil {
		return 0, fmt.Errorf("failed to count discoveries: %w", err)
	}
	return n, nil
}

// SaveRun records a finished run's totals.
func (s *Store) SaveRun(ctx context.Context, r Run) error {
	query := `
		INSERT INTO runs (
			run_id, mode, started_at, finished_at, batches,
			attempted, found, not_found, transport_errors
		) VALUES (
			:run_id, :mode, :started_at, :finished_at, :batches,
			:attempted, :found, :not_found, :transport_errors
		)`

	if _, err := s.db.NamedExecContext(ctx, query, r); err != nil {
		return fmt.Errorf("failed to save run %s: %w", r.RunID, err)
	}
	return nil
}

// GetRun loads a run summary by id.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, error) {
	var r Run
	query := s.db.Rebind(`SELECT run_id, mode, started_at, finished_at, batches,
		attempted, found, not_found, transport_errors FROM runs WHERE run_id = ?`)
	if err := s.db.GetContext(ctx, &r, query, runID); err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", runID, err)
	}
	return &r, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
