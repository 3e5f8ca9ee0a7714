// Package sim runs Monte Carlo batches of duels and aggregates their outcomes.
package sim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cory-johannsen/duelsim/internal/game/combat"
	"github.com/cory-johannsen/duelsim/internal/game/dice"
)

// Options configures a batch. Every field is explicit; Run applies no
// defaults except a random seed when Seed is 0.
type Options struct {
	Runs     int
	Seed     int64
	RoundCap int
	// Workers bounds the number of fights resolved concurrently.
	Workers       int
	Tie           combat.TiePolicy
	PCPolicy      combat.AttackPolicy
	MonsterPolicy combat.AttackPolicy
	// KeepRecords retains every RoundRecord on the batch's fights. When false
	// only the per-fight tallies are kept.
	KeepRecords bool
	Logger      *zap.Logger
}

// Validate checks the options.
func (o Options) Validate() error {
	var errs []error
	if o.Runs < 1 {
		errs = append(errs, fmt.Errorf("runs must be >= 1, got %d", o.Runs))
	}
	if o.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be >= 1, got %d", o.Workers))
	}
	if err := o.fightConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (o Options) fightConfig() combat.FightConfig {
	return combat.FightConfig{
		RoundCap:      o.RoundCap,
		Tie:           o.Tie,
		PCPolicy:      o.PCPolicy,
		MonsterPolicy: o.MonsterPolicy,
	}
}

// Setup records the resolved options of a batch for reporting.
type Setup struct {
	Runs          int    `json:"runs"`
	Seed          int64  `json:"seed"`
	RoundCap      int    `json:"round_cap"`
	Workers       int    `json:"workers"`
	Tie           string `json:"initiative_tie"`
	PCPolicy      string `json:"pc_policy"`
	MonsterPolicy string `json:"monster_policy"`
}

// Batch is the complete output of one Monte Carlo run.
type Batch struct {
	ID        uuid.UUID
	PC        string
	Monster   string
	Setup     Setup
	Stats     *AggregateStats
	Fights    []combat.FightResult // in run-index order
	StartedAt time.Time
	Elapsed   time.Duration
}

// BatchError reports a batch aborted after it started.
type BatchError struct {
	// Completed is the length of the prefix of runs that finished
	// successfully; it never exceeds Run.
	Completed int
	// Run is the index of the first run that failed or never started.
	Run int
	Err error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch aborted at run %d after %d completed runs: %v", e.Run, e.Completed, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// Run plays opts.Runs independent fights between clones of pc and monster
// and aggregates the results.
//
// Run i draws every random number from dice.SubStream(seed, i) and results
// are folded in run-index order, so a fixed seed yields identical Stats and
// Fights for any worker count.
//
// Precondition: pc and monster are templates; Run validates them and
// otherwise only clones them.
// Postcondition: Returns a Batch whose Stats satisfy Consistent(), a
// validation error before any run starts, or a *BatchError.
func Run(ctx context.Context, pc, monster *combat.Combatant, opts Options) (*Batch, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("simulation options: %w", err)
	}
	for _, c := range []*combat.Combatant{pc, monster} {
		if c == nil {
			return nil, fmt.Errorf("%w: both combatants are required", combat.ErrInvalidCombatant)
		}
		if err := c.Validate(); err != nil {
			return nil, err
		}
	}
	if pc.Side != combat.SidePC || monster.Side != combat.SideMonster {
		return nil, fmt.Errorf("%w: expected a pc and a monster, got %s and %s", combat.ErrInvalidCombatant, pc.Side, monster.Side)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	seed := opts.Seed
	if seed == 0 {
		var err error
		if seed, err = dice.NewSeed(); err != nil {
			return nil, err
		}
	}

	batch := &Batch{
		ID:      uuid.New(),
		PC:      pc.Name,
		Monster: monster.Name,
		Setup: Setup{
			Runs:          opts.Runs,
			Seed:          seed,
			RoundCap:      opts.RoundCap,
			Workers:       opts.Workers,
			Tie:           opts.Tie.String(),
			PCPolicy:      opts.PCPolicy.Name(),
			MonsterPolicy: opts.MonsterPolicy.Name(),
		},
		StartedAt: time.Now(),
	}
	logger = logger.With(zap.String("batch_id", batch.ID.String()))
	logger.Info("batch started",
		zap.String("pc", pc.Name),
		zap.String("monster", monster.Name),
		zap.Int("runs", opts.Runs),
		zap.Int64("seed", seed),
		zap.Int("workers", opts.Workers),
	)

	results := make([]combat.FightResult, opts.Runs)
	done := make([]bool, opts.Runs)
	errs := make([]error, opts.Runs)
	cfg := opts.fightConfig()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i := 0; i < opts.Runs; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := runOne(pc, monster, seed, i, cfg, logger)
			if err != nil {
				errs[i] = fmt.Errorf("run %d: %w", i, err)
				return errs[i]
			}
			if !opts.KeepRecords {
				res.Records = nil
			}
			results[i] = res
			done[i] = true
			return nil
		})
	}
	waitErr := g.Wait()
	if waitErr == nil && !allDone(done) {
		waitErr = ctx.Err()
	}

	if waitErr != nil {
		berr := abortError(done, errs, waitErr)
		logger.Error("batch aborted",
			zap.Int("completed", berr.Completed),
			zap.Int("run", berr.Run),
			zap.Error(berr.Err),
		)
		return nil, berr
	}

	stats := NewAggregateStats()
	for _, r := range results {
		stats.Add(r)
	}
	batch.Stats = stats
	batch.Fights = results
	batch.Elapsed = time.Since(batch.StartedAt)

	logger.Info("batch finished",
		zap.Int("runs", stats.Runs),
		zap.Float64("pc_win_rate", stats.WinRate()),
		zap.Int("divergences", stats.Divergences),
		zap.Duration("elapsed", batch.Elapsed),
	)
	return batch, nil
}

// abortError picks the first failed run, or the first run that never
// completed when the batch was cancelled. Runs finished past the first gap
// are not counted.
func abortError(done []bool, errs []error, cause error) *BatchError {
	out := &BatchError{Err: cause}
	for out.Completed < len(done) && done[out.Completed] {
		out.Completed++
	}
	failed, missing := -1, -1
	for i := range done {
		switch {
		case done[i]:
		case errs[i] != nil && failed < 0:
			failed = i
		case missing < 0:
			missing = i
		}
	}
	if failed >= 0 {
		out.Run, out.Err = failed, errs[failed]
	} else {
		out.Run = missing
	}
	return out
}

func allDone(done []bool) bool {
	for _, d := range done {
		if !d {
			return false
		}
	}
	return true
}

func runOne(pc, monster *combat.Combatant, seed int64, i int, cfg combat.FightConfig, logger *zap.Logger) (combat.FightResult, error) {
	rl := logger
	if logger.Core().Enabled(zap.DebugLevel) {
		rl = logger.With(zap.Int("run", i))
	}
	roller := dice.NewLoggedRoller(dice.SubStream(seed, i), rl)
	res, err := combat.Resolve(pc.Clone(), monster.Clone(), roller, cfg)
	if err != nil {
		return combat.FightResult{}, err
	}
	res.Run = i
	return res, nil
}
