// Package report publishes finished simulation batches: as a console
// summary, and to the batch stores in internal/storage.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cory-johannsen/duelsim/internal/game/sim"
)

// ErrBatchNotFound is returned by stores when no batch has the requested ID.
var ErrBatchNotFound = errors.New("report: batch not found")

// ErrBatchExists is returned by stores when a batch ID is saved twice.
var ErrBatchExists = errors.New("report: batch already stored")

// Sink consumes a finished batch.
type Sink interface {
	Consume(ctx context.Context, b *sim.Batch) error
}

// Store is a Sink that can list what it has kept.
type Store interface {
	Sink
	List(ctx context.Context, limit int) ([]*StoredBatch, error)
}

// SinkFunc adapts a function into a Sink.
type SinkFunc func(ctx context.Context, b *sim.Batch) error

// Consume calls f.
func (f SinkFunc) Consume(ctx context.Context, b *sim.Batch) error { return f(ctx, b) }

// MultiSink hands a batch to every sink in order.
type MultiSink []Sink

// Consume calls every sink, even after one fails.
//
// Postcondition: Returns nil or the joined errors of the failing sinks.
func (m MultiSink) Consume(ctx context.Context, b *sim.Batch) error {
	var errs []error
	for _, s := range m {
		if err := s.Consume(ctx, b); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Summary is the headline of a batch, as listed by the stores.
type Summary struct {
	ID             uuid.UUID     `json:"id"`
	PC             string        `json:"pc"`
	Monster        string        `json:"monster"`
	Runs           int           `json:"runs"`
	Seed           int64         `json:"seed"`
	PCWinRate      float64       `json:"pc_win_rate"`
	MonsterWinRate float64       `json:"monster_win_rate"`
	DrawRate       float64       `json:"draw_rate"`
	DivergenceRate float64       `json:"divergence_rate"`
	MeanRounds     float64       `json:"mean_rounds"`
	StartedAt      time.Time     `json:"started_at"`
	Elapsed        time.Duration `json:"elapsed"`
}

// Summarize extracts the headline of b.
//
// Precondition: b.Stats must be non-nil.
func Summarize(b *sim.Batch) Summary {
	return Summary{
		ID:             b.ID,
		PC:             b.PC,
		Monster:        b.Monster,
		Runs:           b.Stats.Runs,
		Seed:           b.Setup.Seed,
		PCWinRate:      b.Stats.WinRate(),
		MonsterWinRate: b.Stats.LossRate(),
		DrawRate:       b.Stats.DrawRate(),
		DivergenceRate: b.Stats.DivergenceRate(),
		MeanRounds:     b.Stats.MeanRounds(),
		StartedAt:      b.StartedAt,
		Elapsed:        b.Elapsed,
	}
}

// StoredBatch is a batch read back from a store. Individual fights are not
// persisted.
type StoredBatch struct {
	Summary
	Setup sim.Setup           `json:"setup"`
	Stats *sim.AggregateStats `json:"stats"`
}

// EncodeBatch returns the JSON documents stores keep for b.
func EncodeBatch(b *sim.Batch) (setup, stats []byte, err error) {
	if b == nil || b.Stats == nil {
		return nil, nil, errors.New("report: batch has no stats")
	}
	if setup, err = json.Marshal(b.Setup); err != nil {
		return nil, nil, fmt.Errorf("encoding setup: %w", err)
	}
	if stats, err = json.Marshal(b.Stats); err != nil {
		return nil, nil, fmt.Errorf("encoding stats: %w", err)
	}
	return setup, stats, nil
}

// DecodeBatch fills the setup and stats of sb from documents written by
// EncodeBatch.
func DecodeBatch(sb *StoredBatch, setup, stats []byte) error {
	if err := json.Unmarshal(setup, &sb.Setup); err != nil {
		return fmt.Errorf("decoding setup of batch %s: %w", sb.ID, err)
	}
	agg := sim.NewAggregateStats()
	if err := json.Unmarshal(stats, agg); err != nil {
		return fmt.Errorf("decoding stats of batch %s: %w", sb.ID, err)
	}
	sb.Stats = agg
	return nil
}
