// Package dice provides the randomness abstraction, dice expression parsing,
// and roll-result types used by the duel simulator.
package dice

import (
	"errors"
	"fmt"
)

// ErrMalformedExpression is wrapped by every parse failure so callers can
// distinguish bad content from other errors with errors.Is.
var ErrMalformedExpression = errors.New("dice: malformed expression")

// RollResult holds the full audit trail for a single dice roll evaluation.
//
// Postcondition: Total() == sum(Dice) + Modifier.
type RollResult struct {
	Expression string // original expression string, e.g. "2d6+3"
	Dice       []int  // individual die results before modifier
	Modifier   int    // flat modifier (may be negative)
	Critical   bool   // dice were doubled
}

// Total returns the sum of all die results plus the modifier.
//
// Postcondition: return value == sum(r.Dice) + r.Modifier.
func (r RollResult) Total() int {
	total := r.Modifier
	for _, d := range r.Dice {
		total += d
	}
	return total
}

// String returns a human-readable audit string in the format:
//
//	"2d6+3 → [4 5] +3 = 12"
//
// Critical rolls carry a " (crit)" suffix.
//
// Precondition: r.Expression is non-empty.
func (r RollResult) String() string {
	if r.Expression == "" {
		panic("dice: RollResult.String() precondition violated: Expression must be non-empty")
	}
	s := fmt.Sprintf("%s → %v %+d = %d", r.Expression, r.Dice, r.Modifier, r.Total())
	if r.Critical {
		s += " (crit)"
	}
	return s
}

// Check is the outcome of a single d20 test.
type Check struct {
	Raw   int // unmodified d20 face
	Bonus int
	Total int // Raw + Bonus
}

// Natural20 reports whether the die showed its maximum face.
func (c Check) Natural20() bool { return c.Raw == 20 }

// Natural1 reports whether the die showed 1.
func (c Check) Natural1() bool { return c.Raw == 1 }

// D20Check draws one d20 from src and applies bonus.
//
// Precondition: src must be non-nil.
// Postcondition: 1 <= Raw <= 20 and Total == Raw + bonus.
func D20Check(src Source, bonus int) Check {
	raw := src.Intn(20) + 1
	return Check{Raw: raw, Bonus: bonus, Total: raw + bonus}
}

// Source is the randomness provider for dice rolls.
//
// The crypto source is safe for concurrent use; seeded sources are not and
// must be confined to a single fight.
type Source interface {
	// Intn returns a non-negative random int in [0, n).
	//
	// Precondition: n > 0.
	Intn(n int) int
}
