package main

import (
	"bytes"
	"context"
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cory-johannsen/duelsim/internal/config"
)

const fighterYAML = `
name: Fighter
side: pc
ac: 15
max_hp: 20
abilities: {dex: 1}
attacks:
  - {name: Longsword, to_hit: 5, damage: 1d8+3, damage_type: slashing}
`

const bugbearYAML = `
name: Bugbear
side: monster
ac: 13
max_hp: 15
abilities: {dex: 1}
attacks:
  - {name: Morningstar, to_hit: 4, damage: 2d6, damage_type: piercing}
`

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fighter.yaml"), []byte(fighterYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bugbear.yaml"), []byte(bugbearYAML), 0o644))

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Content.Dir = dir
	cfg.Simulation.Runs = 300
	cfg.Simulation.Seed = 11
	cfg.Simulation.Workers = 4
	return cfg
}

func TestRun_PrintsSummary(t *testing.T) {
	cfg := testConfig(t)
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), cfg, "Fighter", "bugbear", &out, zap.NewNop()))
	assert.Contains(t, out.String(), "Runs:       300")
	assert.Contains(t, out.String(), "Seed:       11")
	assert.Contains(t, out.String(), "Bugbear total attacks:")
}

func TestRun_StoresAndListsWithSQLite(t *testing.T) {
	cfg := testConfig(t)
	cfg.Report.Store = config.StoreSQLite
	cfg.Report.SQLitePath = filepath.Join(t.TempDir(), "batches.db")
	ctx := context.Background()

	require.NoError(t, run(ctx, cfg, "Fighter", "Bugbear", &bytes.Buffer{}, zap.NewNop()))
	require.NoError(t, run(ctx, cfg, "Fighter", "Bugbear", &bytes.Buffer{}, zap.NewNop()))

	var out bytes.Buffer
	require.NoError(t, listBatches(ctx, cfg, 10, &out, zap.NewNop()))
	assert.Equal(t, 3, bytes.Count(out.Bytes(), []byte("\n")), "header plus two batches")
}

func TestRun_LuaPolicy(t *testing.T) {
	cfg := testConfig(t)
	script := filepath.Join(t.TempDir(), "always_first.lua")
	require.NoError(t, os.WriteFile(script, []byte(`function select_attacks(self) return 1 end`), 0o644))
	cfg.Simulation.MonsterPolicy = config.PolicyLua
	cfg.Simulation.MonsterPolicyScript = script

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), cfg, "Fighter", "Bugbear", &out, zap.NewNop()))
	assert.Contains(t, out.String(), "Bugbear (lua:always_first)")
}

func TestRun_Errors(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	assert.Error(t, run(ctx, cfg, "Nobody", "Bugbear", &bytes.Buffer{}, zap.NewNop()))
	assert.Error(t, run(ctx, cfg, "Bugbear", "Fighter", &bytes.Buffer{}, zap.NewNop()), "sides swapped")

	cfg.Simulation.PCPolicy = config.PolicyLua
	cfg.Simulation.PCPolicyScript = filepath.Join(t.TempDir(), "missing.lua")
	assert.Error(t, run(ctx, cfg, "Fighter", "Bugbear", &bytes.Buffer{}, zap.NewNop()))
}

func TestListBatches_NoStore(t *testing.T) {
	cfg := testConfig(t)
	assert.Error(t, listBatches(context.Background(), cfg, 5, &bytes.Buffer{}, zap.NewNop()))
}

func TestApplyFlags(t *testing.T) {
	fs := flag.NewFlagSet("duelsim", flag.ContinueOnError)
	fs.Int("runs", 0, "")
	fs.Int64("seed", 0, "")
	fs.String("monster-policy", "", "")
	fs.String("pc", "", "")
	require.NoError(t, fs.Parse([]string{"-runs", "42", "-monster-policy", "multiattack", "-pc", "Fighter"}))

	v, err := config.New("")
	require.NoError(t, err)
	applyFlags(v, fs)
	cfg, err := config.LoadFromViper(v)
	require.NoError(t, err)

	assert.Equal(t, 42, cfg.Simulation.Runs)
	assert.Equal(t, int64(0), cfg.Simulation.Seed, "unset flags keep the configured value")
	assert.Equal(t, "multiattack", cfg.Simulation.MonsterPolicy)
}
