package combat_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/duelsim/internal/game/combat"
)

func TestRollInitiative_HigherGoesFirst(t *testing.T) {
	pc, gob := newPC(t), newGoblin(t)
	// pc 5+2, goblin 15+1
	ini := combat.RollInitiative(pc, gob, rollerOf(4, 14), combat.TiePCFirst)
	assert.Equal(t, 7, ini.PC)
	assert.Equal(t, 16, ini.Monster)
	assert.Equal(t, combat.SideMonster, ini.First)
	assert.False(t, ini.Tied)
}

func TestRollInitiative_Ties(t *testing.T) {
	cases := []struct {
		tie  combat.TiePolicy
		want combat.Side
	}{
		{combat.TiePCFirst, combat.SidePC},
		{combat.TieMonsterFirst, combat.SideMonster},
		{combat.TieHigherModifier, combat.SideMonster},
	}
	for _, tc := range cases {
		t.Run(tc.tie.String(), func(t *testing.T) {
			pc, gob := newPC(t), newGoblin(t)
			pc.Abilities["dex"] = 1
			bonus := 3
			gob.InitiativeBonus = &bonus
			// pc 12+1, goblin 10+3
			ini := combat.RollInitiative(pc, gob, rollerOf(11, 9), tc.tie)
			assert.True(t, ini.Tied)
			assert.Equal(t, 13, ini.PC)
			assert.Equal(t, 13, ini.Monster)
			assert.Equal(t, tc.want, ini.First)
		})
	}
}

func TestRollInitiative_ModifierTieFallsBackToPC(t *testing.T) {
	pc, gob := newPC(t), newGoblin(t)
	pc.Abilities["dex"] = 1
	ini := combat.RollInitiative(pc, gob, rollerOf(9), combat.TieHigherModifier)
	assert.True(t, ini.Tied)
	assert.Equal(t, combat.SidePC, ini.First)
}

func TestParseTiePolicy(t *testing.T) {
	for in, want := range map[string]combat.TiePolicy{
		"":         combat.TiePCFirst,
		"PC":       combat.TiePCFirst,
		"monster":  combat.TieMonsterFirst,
		"modifier": combat.TieHigherModifier,
	} {
		got, err := combat.ParseTiePolicy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := combat.ParseTiePolicy("reroll")
	assert.Error(t, err)
}
