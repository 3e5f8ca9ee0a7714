package report_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/duelsim/internal/game/combat"
	"github.com/cory-johannsen/duelsim/internal/game/sim"
	"github.com/cory-johannsen/duelsim/internal/report"
)

func runBatch(t *testing.T, keepRecords bool) *sim.Batch {
	t.Helper()
	pc := &combat.Combatant{
		Name: "Fighter", Side: combat.SidePC, AC: 15, MaxHP: 20,
		Abilities: map[string]int{"dex": 1},
		Attacks:   []combat.Attack{{Name: "Longsword", ToHit: 5, Damage: "1d8+3", DamageType: "slashing"}},
	}
	monster := &combat.Combatant{
		Name: "Bugbear", Side: combat.SideMonster, AC: 13, MaxHP: 15,
		Abilities: map[string]int{"dex": 1},
		Attacks:   []combat.Attack{{Name: "Morningstar", ToHit: 4, Damage: "2d6", DamageType: "piercing"}},
	}
	b, err := sim.Run(context.Background(), pc, monster, sim.Options{
		Runs:          200,
		Seed:          99,
		RoundCap:      100,
		Workers:       2,
		Tie:           combat.TiePCFirst,
		PCPolicy:      combat.PreferRecharge{},
		MonsterPolicy: combat.PreferRecharge{},
		KeepRecords:   keepRecords,
	})
	require.NoError(t, err)
	return b
}

func TestTextSink_Summary(t *testing.T) {
	b := runBatch(t, false)
	var buf bytes.Buffer
	require.NoError(t, report.NewTextSink(&buf).Consume(context.Background(), b))

	out := buf.String()
	for _, want := range []string{
		"=== Combat Setup ===",
		"PC:         Fighter (prefer_recharge)",
		"Monster:    Bugbear (prefer_recharge)",
		"Runs:       200",
		"Seed:       99",
		"=== Wins and Losses ===",
		"=== Initiative ===",
		"P(first wins)",
		"=== Hits and Misses ===",
		"Fighter total attacks:",
		"Bugbear total attacks:",
		"Mean hit rate per fight:",
		"=== Attacks ===",
		"Longsword",
		"Morningstar",
		"Average number of rounds per replication:",
	} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "Replay of run")
}

func TestTextSink_Replays(t *testing.T) {
	b := runBatch(t, true)
	var buf bytes.Buffer
	sink := report.NewTextSink(&buf)
	sink.Replays = 2
	require.NoError(t, sink.Consume(context.Background(), b))

	out := buf.String()
	assert.Contains(t, out, "=== Replay of run 0 ===")
	assert.Contains(t, out, "=== Replay of run 1 ===")
	assert.NotContains(t, out, "=== Replay of run 2 ===")
	assert.Contains(t, out, "R1 ")
	assert.Contains(t, out, "acts first")
}

func TestTextSink_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var buf bytes.Buffer
	err := report.NewTextSink(&buf).Consume(ctx, runBatch(t, false))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, buf.Len())
}

func TestMultiSink_CallsEverySinkAndJoinsErrors(t *testing.T) {
	errA := errors.New("a failed")
	errC := errors.New("c failed")
	var calls []string
	sink := func(name string, err error) report.Sink {
		return report.SinkFunc(func(context.Context, *sim.Batch) error {
			calls = append(calls, name)
			return err
		})
	}
	m := report.MultiSink{sink("a", errA), sink("b", nil), sink("c", errC)}

	err := m.Consume(context.Background(), runBatch(t, false))
	assert.Equal(t, []string{"a", "b", "c"}, calls)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errC)

	assert.NoError(t, report.MultiSink{sink("d", nil)}.Consume(context.Background(), nil))
}

func TestSummarize(t *testing.T) {
	b := runBatch(t, false)
	s := report.Summarize(b)
	assert.Equal(t, b.ID, s.ID)
	assert.Equal(t, 200, s.Runs)
	assert.Equal(t, int64(99), s.Seed)
	assert.InDelta(t, 1.0, s.PCWinRate+s.MonsterWinRate+s.DrawRate, 1e-9)
}

func TestEncodeDecodeBatch_PreservesStats(t *testing.T) {
	b := runBatch(t, false)
	setup, stats, err := report.EncodeBatch(b)
	require.NoError(t, err)

	sb := report.StoredBatch{Summary: report.Summarize(b)}
	require.NoError(t, report.DecodeBatch(&sb, setup, stats))
	assert.Equal(t, b.Setup, sb.Setup)
	assert.Equal(t, b.Stats, sb.Stats)
	assert.True(t, sb.Stats.Consistent())

	_, _, err = report.EncodeBatch(&sim.Batch{})
	assert.Error(t, err)
	assert.Error(t, report.DecodeBatch(&sb, []byte("{"), stats))
}

func TestWriteBatchList(t *testing.T) {
	b := runBatch(t, false)
	sb := &report.StoredBatch{Summary: report.Summarize(b), Setup: b.Setup, Stats: b.Stats}

	var buf bytes.Buffer
	require.NoError(t, report.WriteBatchList(&buf, []*report.StoredBatch{sb}))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "mean rounds")
	assert.Contains(t, lines[1], b.ID.String())
	assert.Contains(t, lines[1], "Fighter")
	assert.Contains(t, lines[1], "Bugbear")
}
