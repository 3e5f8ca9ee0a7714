package combat_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cory-johannsen/duelsim/internal/game/combat"
)

func TestResolveAttack_HitAtExactAC(t *testing.T) {
	pc, gob := newPC(t), newGoblin(t)
	gob.AC = 15
	// d20 face 10 (+5 = 15), then d8 face 4.
	rec := combat.ResolveAttack(pc, gob, &pc.Attacks[0], rollerOf(9, 3))

	assert.Equal(t, combat.KindAttackRoll, rec.Kind)
	assert.Equal(t, 10, rec.Roll)
	assert.Equal(t, 15, rec.Total)
	assert.Equal(t, 15, rec.Target)
	assert.True(t, rec.Hit)
	assert.False(t, rec.Critical)
	assert.Equal(t, 7, rec.DamageRolled)
	assert.Equal(t, 7, rec.DamageDealt)
	assert.Equal(t, 8, gob.CurrentHP)
	assert.Equal(t, 8, rec.DefenderHP)
}

func TestResolveAttack_MissBelowAC(t *testing.T) {
	pc, gob := newPC(t), newGoblin(t)
	gob.AC = 15
	src := &seqSrc{vals: []int{8}}
	rec := combat.ResolveAttack(pc, gob, &pc.Attacks[0], newRoller(src))

	assert.False(t, rec.Hit)
	assert.Zero(t, rec.DamageRolled)
	assert.Equal(t, 15, gob.CurrentHP)
	assert.Equal(t, 1, src.i, "a miss draws no damage dice")
}

func TestResolveAttack_CriticalDoublesDice(t *testing.T) {
	pc, gob := newPC(t), newGoblin(t)
	gob.AC = 40
	// natural 20, then two d8 faces of 8: 8 + 8 + 3.
	rec := combat.ResolveAttack(pc, gob, &pc.Attacks[0], rollerOf(19, 7, 7))

	assert.True(t, rec.Hit)
	assert.True(t, rec.Critical)
	assert.Equal(t, 19, rec.DamageRolled)
	assert.Equal(t, 0, gob.CurrentHP)
	assert.Equal(t, 0, rec.DefenderHP)
}

func TestResolveAttack_NaturalOneMisses(t *testing.T) {
	pc, gob := newPC(t), newGoblin(t)
	gob.AC = 0
	pc.Attacks[0].ToHit = 30
	rec := combat.ResolveAttack(pc, gob, &pc.Attacks[0], rollerOf(0))

	assert.False(t, rec.Hit)
	assert.True(t, rec.Fumble)
	assert.Equal(t, 31, rec.Total)
	assert.Equal(t, 15, gob.CurrentHP)
}

func TestResolveAttack_Saves(t *testing.T) {
	cases := []struct {
		name     string
		vals     []int
		half     bool
		resist   []string
		wantHit  bool
		wantRoll int
		wantDeal int
		wantHP   int
	}{
		// d20 face 20 (+2 = 22) saves against DC 13; 4d6 all sixes = 24.
		{name: "saved half", vals: []int{19, 5, 5, 5, 5}, half: true, wantRoll: 12, wantDeal: 12, wantHP: 8},
		{name: "saved none", vals: []int{19, 5, 5, 5, 5}, half: false, wantRoll: 0, wantDeal: 0, wantHP: 20},
		{name: "failed", vals: []int{0, 5, 5, 5, 5}, half: true, wantHit: true, wantRoll: 24, wantDeal: 24, wantHP: 0},
		{name: "failed resisted", vals: []int{0, 5, 5, 5, 5}, half: true, resist: []string{"fire"}, wantHit: true, wantRoll: 24, wantDeal: 12, wantHP: 8},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pc, drake := newPC(t), newDrake(t)
			pc.Resistances = tc.resist
			breath := &drake.Attacks[1]
			breath.Save.Half = tc.half

			rec := combat.ResolveAttack(drake, pc, breath, rollerOf(tc.vals...))

			assert.Equal(t, combat.KindSave, rec.Kind)
			assert.Equal(t, 13, rec.Target)
			assert.Equal(t, tc.wantHit, rec.Hit)
			assert.Equal(t, tc.wantRoll, rec.DamageRolled)
			assert.Equal(t, tc.wantDeal, rec.DamageDealt)
			assert.Equal(t, tc.wantHP, pc.CurrentHP)
		})
	}
}

func TestResolveAttack_Immune(t *testing.T) {
	pc, drake := newPC(t), newDrake(t)
	pc.Attacks[0].DamageType = "Fire"
	rec := combat.ResolveAttack(pc, drake, &pc.Attacks[0], rollerOf(19, 7, 7))

	assert.True(t, rec.Hit)
	assert.Equal(t, 19, rec.DamageRolled)
	assert.Zero(t, rec.DamageDealt)
	assert.Equal(t, 30, drake.CurrentHP)
}

func TestRoundRecord_Narrative(t *testing.T) {
	rec := combat.RoundRecord{
		Round: 2, AttackerName: "Aeric", DefenderName: "Red Drake", AttackName: "Longsword",
		Kind: combat.KindAttackRoll, Total: 17, Target: 14, Hit: true,
		DamageRolled: 9, DamageDealt: 4, DefenderHP: 26,
	}
	assert.Equal(t, "R2 Aeric uses Longsword on Red Drake: hit (17 vs AC 14), 4 damage (9 rolled), Red Drake at 26 HP", rec.Narrative())

	rec = combat.RoundRecord{
		Round: 1, AttackerName: "Red Drake", DefenderName: "Aeric", AttackName: "Fire Breath",
		Kind: combat.KindSave, Total: 9, Target: 13, Hit: true,
		DamageRolled: 14, DamageDealt: 14, DefenderHP: 6,
	}
	assert.Equal(t, "R1 Red Drake uses Fire Breath on Aeric: save failed (9 vs DC 13), 14 damage, Aeric at 6 HP", rec.Narrative())
}
