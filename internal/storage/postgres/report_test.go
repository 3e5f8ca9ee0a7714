package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/duelsim/internal/game/combat"
	"github.com/cory-johannsen/duelsim/internal/game/sim"
	"github.com/cory-johannsen/duelsim/internal/report"
	"github.com/cory-johannsen/duelsim/internal/storage/postgres"
	"github.com/cory-johannsen/duelsim/internal/testutil"
)

func runBatch(t *testing.T, seed int64) *sim.Batch {
	t.Helper()
	pc := &combat.Combatant{
		Name: "Fighter", Side: combat.SidePC, AC: 15, MaxHP: 20,
		Attacks: []combat.Attack{{Name: "Longsword", ToHit: 5, Damage: "1d8+3", DamageType: "slashing"}},
	}
	monster := &combat.Combatant{
		Name: "Bugbear", Side: combat.SideMonster, AC: 13, MaxHP: 15,
		Attacks: []combat.Attack{{Name: "Morningstar", ToHit: 4, Damage: "2d6", DamageType: "piercing"}},
	}
	b, err := sim.Run(context.Background(), pc, monster, sim.Options{
		Runs:          100,
		Seed:          seed,
		RoundCap:      100,
		Workers:       2,
		PCPolicy:      combat.PreferRecharge{},
		MonsterPolicy: combat.PreferRecharge{},
	})
	require.NoError(t, err)
	return b
}

func TestReportRepository_SaveGetList(t *testing.T) {
	db := testutil.StartPostgres(t, true)
	repo := postgres.NewReportRepository(db.Pool.DB())
	ctx := context.Background()

	older := runBatch(t, 1)
	older.StartedAt = older.StartedAt.Add(-time.Hour)
	newer := runBatch(t, 2)
	require.NoError(t, repo.Save(ctx, older))
	require.NoError(t, repo.Consume(ctx, newer))

	got, err := repo.Get(ctx, newer.ID)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, got.ID)
	assert.Equal(t, "Fighter", got.PC)
	assert.Equal(t, newer.Setup, got.Setup)
	assert.Equal(t, newer.Stats, got.Stats)
	assert.Equal(t, newer.Elapsed, got.Elapsed)
	assert.WithinDuration(t, newer.StartedAt, got.StartedAt, time.Millisecond)
	assert.InDelta(t, newer.Stats.WinRate(), got.PCWinRate, 1e-12)

	list, err := repo.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)
	assert.Equal(t, older.ID, list[1].ID)

	list, err = repo.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestReportRepository_GetMissing(t *testing.T) {
	db := testutil.StartPostgres(t, true)
	repo := postgres.NewReportRepository(db.Pool.DB())

	_, err := repo.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, report.ErrBatchNotFound)
}

func TestReportRepository_DuplicateIDFails(t *testing.T) {
	db := testutil.StartPostgres(t, true)
	repo := db.Pool.Reports()
	ctx := context.Background()

	b := runBatch(t, 3)
	require.NoError(t, repo.Save(ctx, b))
	assert.ErrorIs(t, repo.Save(ctx, b), report.ErrBatchExists)
}

func TestPool_Health(t *testing.T) {
	db := testutil.StartPostgres(t, false)
	assert.NoError(t, db.Pool.Health(context.Background(), 5*time.Second))
}
