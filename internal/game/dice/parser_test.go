package dice_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/duelsim/internal/game/dice"
)

func TestParse_ValidForms(t *testing.T) {
	tests := []struct {
		in                     string
		count, sides, mod, keep int
	}{
		{"d20", 1, 20, 0, 0},
		{"2d6", 2, 6, 0, 0},
		{"2d6+3", 2, 6, 3, 0},
		{"4d8-2", 4, 8, -2, 0},
		{"1D10 + 4", 1, 10, 4, 0},
		{"4d6kh3", 4, 6, 0, 3},
		{"4d6kh3+2", 4, 6, 2, 3},
		{"8d10", 8, 10, 0, 0},
	}
	for _, tc := range tests {
		e, err := dice.Parse(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.in, e.Raw)
		assert.Equal(t, tc.count, e.Count, tc.in)
		assert.Equal(t, tc.sides, e.Sides, tc.in)
		assert.Equal(t, tc.mod, e.Modifier, tc.in)
		assert.Equal(t, tc.keep, e.KeepHighest, tc.in)
	}
}

func TestParse_Malformed(t *testing.T) {
	for _, in := range []string{"", "   ", "6", "0d6", "-1d6", "2d0", "2d-3", "2d", "xd6", "2d6+", "2d6+3+1", "2d6kh2", "4d6kh0", "2d6*2",
		"9999999999999d6", "1001d6", "1d1001", "2d6+10001", "2d6-99999999999999999999"} {
		_, err := dice.Parse(in)
		require.Error(t, err, "expected %q to be rejected", in)
		assert.ErrorIs(t, err, dice.ErrMalformedExpression, in)
	}
}

func TestParse_AtBounds(t *testing.T) {
	e, err := dice.Parse("1000d1000+10000")
	require.NoError(t, err)
	assert.Equal(t, dice.MaxDice, e.Count)
	assert.Equal(t, dice.MaxSides, e.Sides)
	assert.Equal(t, dice.MaxDice*dice.MaxSides+dice.MaxModifier, e.Max())

	_, err = dice.Parse("1d6-10000")
	assert.NoError(t, err)
}

func TestMustParse_Panics(t *testing.T) {
	assert.Panics(t, func() { dice.MustParse("bogus") })
	assert.NotPanics(t, func() { dice.MustParse("1d4") })
}

func TestExpression_Bounds(t *testing.T) {
	e := dice.MustParse("2d6+3")
	assert.Equal(t, 5, e.Min())
	assert.Equal(t, 15, e.Max())
	assert.InDelta(t, 10.0, e.Average(), 1e-9)

	kh := dice.MustParse("4d6kh3")
	assert.Equal(t, 3, kh.Min())
	assert.Equal(t, 18, kh.Max())
}

func TestParse_Property_RoundTripComponents(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 50).Draw(rt, "n")
		m := rapid.IntRange(1, 100).Draw(rt, "m")
		k := rapid.IntRange(-50, 50).Draw(rt, "k")
		in := fmt.Sprintf("%dd%d%+d", n, m, k)

		e, err := dice.Parse(in)
		require.NoError(rt, err)
		assert.Equal(rt, n, e.Count)
		assert.Equal(rt, m, e.Sides)
		assert.Equal(rt, k, e.Modifier)
	})
}
