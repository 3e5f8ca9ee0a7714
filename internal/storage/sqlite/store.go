// Package sqlite stores finished simulation batches in an embedded SQLite
// database.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/cory-johannsen/duelsim/internal/game/sim"
	"github.com/cory-johannsen/duelsim/internal/report"
)

//go:embed schema.sql
var schema string

const batchColumns = `id, pc, monster, runs, seed, pc_win_rate, monster_win_rate, draw_rate,
	divergence_rate, mean_rounds, started_at, elapsed_ns, setup, stats`

// Store persists batch reports in SQLite. It implements report.Sink.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens the database at path, creating it and its schema if needed.
//
// Postcondition: Returns an open Store or a non-nil error.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Consume saves b.
func (s *Store) Consume(ctx context.Context, b *sim.Batch) error {
	return s.Save(ctx, b)
}

// Save inserts the summary, setup and aggregate statistics of b.
//
// Postcondition: Returns nil, report.ErrBatchExists for a duplicate ID, or
// another error.
func (s *Store) Save(ctx context.Context, b *sim.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	setup, stats, err := report.EncodeBatch(b)
	if err != nil {
		return err
	}
	sum := report.Summarize(b)
	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO simulation_batches (`+batchColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sum.ID.String(), sum.PC, sum.Monster, sum.Runs, sum.Seed,
		sum.PCWinRate, sum.MonsterWinRate, sum.DrawRate, sum.DivergenceRate, sum.MeanRounds,
		toMillis(sum.StartedAt), sum.Elapsed.Nanoseconds(), string(setup), string(stats),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", report.ErrBatchExists, sum.ID)
		}
		return fmt.Errorf("insert batch %s: %w", sum.ID, err)
	}
	return nil
}

// Get returns the stored batch with the given id, or report.ErrBatchNotFound.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*report.StoredBatch, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+batchColumns+` FROM simulation_batches WHERE id = ?`, id.String())
	sb, err := scanBatch(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, report.ErrBatchNotFound
		}
		return nil, fmt.Errorf("get batch %s: %w", id, err)
	}
	return sb, nil
}

// List returns up to limit stored batches, most recent first.
func (s *Store) List(ctx context.Context, limit int) ([]*report.StoredBatch, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+batchColumns+` FROM simulation_batches ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	out := make([]*report.StoredBatch, 0)
	for rows.Next() {
		sb, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan batch row: %w", err)
		}
		out = append(out, sb)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBatch(row scanner) (*report.StoredBatch, error) {
	var (
		sb                 report.StoredBatch
		id, setup, stats   string
		startedAt, elapsed int64
	)
	if err := row.Scan(
		&id, &sb.PC, &sb.Monster, &sb.Runs, &sb.Seed,
		&sb.PCWinRate, &sb.MonsterWinRate, &sb.DrawRate, &sb.DivergenceRate, &sb.MeanRounds,
		&startedAt, &elapsed, &setup, &stats,
	); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse batch id %q: %w", id, err)
	}
	sb.ID = parsed
	sb.StartedAt = fromMillis(startedAt)
	sb.Elapsed = time.Duration(elapsed)
	if err := report.DecodeBatch(&sb, []byte(setup), []byte(stats)); err != nil {
		return nil, err
	}
	return &sb, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
		return true
	}
	return false
}
