// Package main provides the duelsim binary: it runs a Monte Carlo batch of
// duels between a PC and a monster template and reports the outcome odds.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/cory-johannsen/duelsim/internal/config"
	"github.com/cory-johannsen/duelsim/internal/content"
	"github.com/cory-johannsen/duelsim/internal/game/combat"
	"github.com/cory-johannsen/duelsim/internal/game/sim"
	"github.com/cory-johannsen/duelsim/internal/observability"
	"github.com/cory-johannsen/duelsim/internal/report"
	"github.com/cory-johannsen/duelsim/internal/scripting"
	"github.com/cory-johannsen/duelsim/internal/storage/postgres"
	"github.com/cory-johannsen/duelsim/internal/storage/sqlite"
)

// flagKeys maps command-line flags onto the config keys they override.
var flagKeys = map[string]string{
	"runs":           "simulation.runs",
	"seed":           "simulation.seed",
	"round-cap":      "simulation.round_cap",
	"workers":        "simulation.workers",
	"tie":            "simulation.initiative_tie",
	"pc-policy":      "simulation.pc_policy",
	"monster-policy": "simulation.monster_policy",
	"pc-script":      "simulation.pc_policy_script",
	"monster-script": "simulation.monster_policy_script",
	"content":        "content.dir",
	"store":          "report.store",
	"replays":        "report.replays",
}

func main() {
	configPath := flag.String("config", "", "path to configuration file; empty uses defaults and DUELSIM_ env vars")
	pcRef := flag.String("pc", "", "PC template name or YAML path")
	monsterRef := flag.String("monster", "", "monster template name or YAML path")
	list := flag.Int("list", 0, "list the N most recent stored batches and exit")
	flag.Int("runs", 0, "number of fights")
	flag.Int64("seed", 0, "random seed; 0 picks one")
	flag.Int("round-cap", 0, "rounds before a fight is scored a draw")
	flag.Int("workers", 0, "fights resolved concurrently")
	flag.String("tie", "", "initiative tie policy: pc, monster or modifier")
	flag.String("pc-policy", "", "PC attack policy")
	flag.String("monster-policy", "", "monster attack policy")
	flag.String("pc-script", "", "Lua script for the lua PC policy")
	flag.String("monster-script", "", "Lua script for the lua monster policy")
	flag.String("content", "", "combatant template directory")
	flag.String("store", "", "report store: none, postgres or sqlite")
	flag.Int("replays", 0, "fights to narrate after the summary")
	flag.Parse()

	v, err := config.New(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	applyFlags(v, flag.CommandLine)
	cfg, err := config.LoadFromViper(v)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *list > 0 {
		if err := listBatches(ctx, cfg, *list, os.Stdout, logger); err != nil {
			logger.Fatal("listing batches", zap.Error(err))
		}
		return
	}

	if *pcRef == "" || *monsterRef == "" {
		fmt.Fprintln(os.Stderr, "usage: duelsim -pc <name|file.yaml> -monster <name|file.yaml> [-config <file>] [-runs N] [-seed S]")
		os.Exit(1)
	}
	if err := run(ctx, cfg, *pcRef, *monsterRef, os.Stdout, logger); err != nil {
		logger.Fatal("simulation failed", zap.Error(err))
	}
}

// applyFlags copies every flag set on the command line onto its config key.
func applyFlags(v *viper.Viper, fs *flag.FlagSet) {
	fs.Visit(func(f *flag.Flag) {
		if key, ok := flagKeys[f.Name]; ok {
			v.Set(key, f.Value.String())
		}
	})
}

// run resolves both combatants, plays the batch and hands it to the
// configured sinks.
func run(ctx context.Context, cfg config.Config, pcRef, monsterRef string, out io.Writer, logger *zap.Logger) error {
	start := time.Now()
	pc, err := content.Resolve(cfg.Content.Dir, pcRef, combat.SidePC)
	if err != nil {
		return fmt.Errorf("loading pc: %w", err)
	}
	monster, err := content.Resolve(cfg.Content.Dir, monsterRef, combat.SideMonster)
	if err != nil {
		return fmt.Errorf("loading monster: %w", err)
	}
	logger.Info("combatants loaded",
		zap.String("pc", pc.Name),
		zap.String("monster", monster.Name),
		zap.Duration("elapsed", time.Since(start)),
	)

	sc := cfg.Simulation
	pcPolicy, closePC, err := buildPolicy(sc.PCPolicy, sc.PCPolicyScript, sc.InstructionLimit, logger)
	if err != nil {
		return fmt.Errorf("pc policy: %w", err)
	}
	defer closePC()
	monsterPolicy, closeMonster, err := buildPolicy(sc.MonsterPolicy, sc.MonsterPolicyScript, sc.InstructionLimit, logger)
	if err != nil {
		return fmt.Errorf("monster policy: %w", err)
	}
	defer closeMonster()
	tie, err := combat.ParseTiePolicy(sc.InitiativeTie)
	if err != nil {
		return err
	}

	text := report.NewTextSink(out)
	text.Replays = cfg.Report.Replays
	sinks := report.MultiSink{text}
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	if store != nil {
		sinks = append(sinks, store)
	}

	batch, err := sim.Run(ctx, pc, monster, sim.Options{
		Runs:          sc.Runs,
		Seed:          sc.Seed,
		RoundCap:      sc.RoundCap,
		Workers:       sc.Workers,
		Tie:           tie,
		PCPolicy:      pcPolicy,
		MonsterPolicy: monsterPolicy,
		KeepRecords:   cfg.Report.Replays > 0,
		Logger:        logger,
	})
	if err != nil {
		return err
	}
	if rate := batch.Stats.DivergenceRate(); rate > sc.DivergenceWarnRate {
		logger.Warn("round cap reached in many fights; results are biased toward draws",
			zap.Float64("divergence_rate", rate),
			zap.Int("round_cap", sc.RoundCap),
		)
	}
	return sinks.Consume(ctx, batch)
}

// buildPolicy returns the named attack policy and a func releasing it.
func buildPolicy(name, script string, instLimit int, logger *zap.Logger) (combat.AttackPolicy, func(), error) {
	if name == config.PolicyLua {
		p, err := scripting.NewLuaPolicy(script, instLimit, logger)
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil
	}
	p, err := combat.PolicyByName(name)
	if err != nil {
		return nil, nil, err
	}
	return p, func() {}, nil
}

// openStore connects the configured report store; it returns a nil Store
// when storage is disabled.
func openStore(ctx context.Context, cfg config.Config) (report.Store, func(), error) {
	switch cfg.Report.Store {
	case config.StorePostgres:
		pool, err := postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to database: %w", err)
		}
		return pool.Reports(), pool.Close, nil
	case config.StoreSQLite:
		s, err := sqlite.Open(cfg.Report.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return nil, func() {}, nil
	}
}

func listBatches(ctx context.Context, cfg config.Config, n int, out io.Writer, logger *zap.Logger) error {
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	if store == nil {
		return fmt.Errorf("report.store is %q; nothing to list", cfg.Report.Store)
	}
	batches, err := store.List(ctx, n)
	if err != nil {
		return err
	}
	logger.Debug("listed batches", zap.Int("count", len(batches)))
	return report.WriteBatchList(out, batches)
}
