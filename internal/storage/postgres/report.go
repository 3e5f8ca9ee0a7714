package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/duelsim/internal/game/sim"
	"github.com/cory-johannsen/duelsim/internal/report"
)

const batchColumns = `id, pc, monster, runs, seed, pc_win_rate, monster_win_rate, draw_rate,
		       divergence_rate, mean_rounds, started_at, elapsed_ns, setup, stats`

// ReportRepository stores finished batches in the simulation_batches table.
// It implements report.Sink.
type ReportRepository struct {
	db *pgxpool.Pool
}

// NewReportRepository creates a ReportRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool with the
// simulation_batches migration applied.
func NewReportRepository(db *pgxpool.Pool) *ReportRepository {
	return &ReportRepository{db: db}
}

// Consume saves b.
func (r *ReportRepository) Consume(ctx context.Context, b *sim.Batch) error {
	return r.Save(ctx, b)
}

// Save inserts the summary, setup and aggregate statistics of b. Individual
// fights are not stored.
//
// Precondition: b.Stats must be non-nil.
// Postcondition: Returns nil once the row is committed, or
// report.ErrBatchExists when the ID is already stored.
func (r *ReportRepository) Save(ctx context.Context, b *sim.Batch) error {
	setup, stats, err := report.EncodeBatch(b)
	if err != nil {
		return err
	}
	s := report.Summarize(b)
	_, err = r.db.Exec(ctx, `
		INSERT INTO simulation_batches (`+batchColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		s.ID, s.PC, s.Monster, s.Runs, s.Seed, s.PCWinRate, s.MonsterWinRate, s.DrawRate,
		s.DivergenceRate, s.MeanRounds, s.StartedAt, s.Elapsed.Nanoseconds(), setup, stats,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: %s", report.ErrBatchExists, s.ID)
		}
		return fmt.Errorf("inserting batch %s: %w", s.ID, err)
	}
	return nil
}

// Get returns the stored batch with the given id.
//
// Postcondition: Returns the batch or report.ErrBatchNotFound.
func (r *ReportRepository) Get(ctx context.Context, id uuid.UUID) (*report.StoredBatch, error) {
	sb, err := scanBatch(r.db.QueryRow(ctx, `
		SELECT `+batchColumns+`
		FROM simulation_batches WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, report.ErrBatchNotFound
		}
		return nil, fmt.Errorf("querying batch %s: %w", id, err)
	}
	return sb, nil
}

// List returns up to limit stored batches, most recent first.
//
// Precondition: limit must be > 0.
// Postcondition: Returns a slice (may be empty) or a non-nil error.
func (r *ReportRepository) List(ctx context.Context, limit int) ([]*report.StoredBatch, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+batchColumns+`
		FROM simulation_batches ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing batches: %w", err)
	}
	defer rows.Close()

	out := make([]*report.StoredBatch, 0)
	for rows.Next() {
		sb, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning batch row: %w", err)
		}
		out = append(out, sb)
	}
	return out, rows.Err()
}

func scanBatch(row pgx.Row) (*report.StoredBatch, error) {
	var (
		sb           report.StoredBatch
		elapsed      int64
		setup, stats []byte
	)
	if err := row.Scan(
		&sb.ID, &sb.PC, &sb.Monster, &sb.Runs, &sb.Seed,
		&sb.PCWinRate, &sb.MonsterWinRate, &sb.DrawRate,
		&sb.DivergenceRate, &sb.MeanRounds, &sb.StartedAt, &elapsed, &setup, &stats,
	); err != nil {
		return nil, err
	}
	sb.Elapsed = time.Duration(elapsed)
	if err := report.DecodeBatch(&sb, setup, stats); err != nil {
		return nil, err
	}
	return &sb, nil
}
