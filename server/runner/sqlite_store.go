package runner

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const sqliteQueryTimeout = 5 * time.Second

// SQLiteStore persists run history in a SQLite database.
type SQLiteStore struct {
	db       *sql.DB
	logger   *slog.Logger
	maxCount int
}

// NewSQLiteStore opens the database at path and applies pending migrations.
func NewSQLiteStore(ctx context.Context, path string, maxCount int, logger *slog.Logger) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}
	if maxCount <= 0 {
		maxCount = defaultMaxHistorySize
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger, maxCount: maxCount}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// History returns the stored runs, most recent first.
func (s *SQLiteStore) History() []RunSummary {
	ctx, cancel := context.WithTimeout(context.Background(), sqliteQueryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_trigger, chains, started_at, ended_at, result, error, left_behind
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?`, s.maxCount)
	if err != nil {
		s.logger.Error("failed to query run history", "error", err)
		return nil
	}
	defer rows.Close()

	out := make([]RunSummary, 0)
	for rows.Next() {
		var (
			sum     RunSummary
			chains  string
			started int64
			ended   sql.NullInt64
		)
		if err := rows.Scan(&sum.ID, &sum.Trigger, &chains, &started, &ended, &sum.Result, &sum.Error, &sum.LeftBehind); err != nil {
			s.logger.Error("failed to scan run", "error", err)
			return nil
		}
		if chains != "" {
			sum.Chains = strings.Split(chains, ",")
		}
		startedAt := time.Unix(0, started)
		sum.StartedAt = &startedAt
		if ended.Valid {
			endedAt := time.Unix(0, ended.Int64)
			sum.EndedAt = &endedAt
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		s.logger.Error("failed to read run history", "error", err)
		return nil
	}
	return out
}

// Record returns the full record of a run.
func (s *SQLiteStore) Record(id string) (RunRecord, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), sqliteQueryTimeout)
	defer cancel()

	var data string
	err := s.db.QueryRowContext(ctx, `SELECT record FROM runs WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, false
	}
	if err != nil {
		s.logger.Error("failed to get run", "id", id, "error", err)
		return RunRecord{}, false
	}
	var run RunRecord
	if err := json.Unmarshal([]byte(data), &run); err != nil {
		s.logger.Error("failed to decode run", "id", id, "error", err)
		return RunRecord{}, false
	}
	return run, true
}

// Save inserts or replaces a run and prunes runs beyond the history size.
func (s *SQLiteStore) Save(run RunRecord) error {
	if run.StartedAt == nil {
		return fmt.Errorf("cannot save run without start time")
	}
	if run.ID == "" {
		run.ID = run.CalculateID()
	}
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}
	var ended sql.NullInt64
	if run.EndedAt != nil {
		ended = sql.NullInt64{Int64: run.EndedAt.UnixNano(), Valid: true}
	}

	ctx, cancel := context.WithTimeout(context.Background(), sqliteQueryTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (id, run_trigger, chains, started_at, ended_at, result, error, left_behind, record)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Trigger, strings.Join(run.Chains, ","), run.StartedAt.UnixNano(), ended,
		run.Result, run.Error, run.LeftBehind, string(data))
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		DELETE FROM runs WHERE id NOT IN (
			SELECT id FROM runs ORDER BY started_at DESC LIMIT ?
		)`, s.maxCount)
	if err != nil {
		return fmt.Errorf("failed to prune runs: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	s.logger.Debug("saved run to database", "id", run.ID)
	return nil
}
