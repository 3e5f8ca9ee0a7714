package dice

import (
	"fmt"
	"strconv"
	"strings"
)

// Bounds on a parsed expression. Rolling allocates one slot per die.
const (
	MaxDice     = 1000
	MaxSides    = 1000
	MaxModifier = 10000
)

// Expression represents a parsed dice expression ready to be rolled.
// Invariant: 1 <= Count <= MaxDice, 1 <= Sides <= MaxSides and
// |Modifier| <= MaxModifier after successful Parse.
type Expression struct {
	Raw         string // original input string
	Count       int    // number of dice
	Sides       int    // faces per die
	Modifier    int    // flat modifier (may be negative)
	KeepHighest int    // if > 0, keep only the N highest dice (e.g. 4d6kh3)
}

// Min returns the smallest total the expression can produce.
func (e Expression) Min() int {
	return e.kept() + e.Modifier
}

// Max returns the largest total the expression can produce.
func (e Expression) Max() int {
	return e.kept()*e.Sides + e.Modifier
}

// Average returns the expected total, ignoring keep-highest skew.
func (e Expression) Average() float64 {
	return float64(e.kept())*float64(e.Sides+1)/2 + float64(e.Modifier)
}

func (e Expression) kept() int {
	if e.KeepHighest > 0 {
		return e.KeepHighest
	}
	return e.Count
}

func malformed(raw, format string, args ...any) error {
	return fmt.Errorf("%w: %q: %s", ErrMalformedExpression, raw, fmt.Sprintf(format, args...))
}

// Parse parses a dice expression string into an Expression.
// Supported forms: "d20", "2d6", "2d6+3", "4d8-2", "4d6kh3", " 1D10 + 4 ".
//
// Postcondition: Returns a valid Expression, or an error wrapping
// ErrMalformedExpression.
func Parse(expr string) (Expression, error) {
	raw := expr
	s := strings.ToLower(strings.Join(strings.Fields(expr), ""))
	if s == "" {
		return Expression{}, malformed(raw, "empty expression")
	}

	dIdx := strings.Index(s, "d")
	if dIdx < 0 {
		return Expression{}, malformed(raw, "missing 'd'")
	}

	// Count defaults to 1 when omitted.
	count := 1
	if countStr := s[:dIdx]; countStr != "" {
		n, err := strconv.Atoi(countStr)
		if err != nil {
			return Expression{}, malformed(raw, "invalid die count %q", countStr)
		}
		if n <= 0 {
			return Expression{}, malformed(raw, "die count must be >= 1")
		}
		if n > MaxDice {
			return Expression{}, malformed(raw, "die count %d exceeds %d", n, MaxDice)
		}
		count = n
	}

	rest := s[dIdx+1:]

	// Split the trailing modifier off; a sign at position 0 belongs to the sides.
	modStr := ""
	for i := 1; i < len(rest); i++ {
		if rest[i] == '+' || rest[i] == '-' {
			modStr = rest[i:]
			rest = rest[:i]
			break
		}
	}

	keepHighest := 0
	if khIdx := strings.Index(rest, "kh"); khIdx >= 0 {
		khStr := rest[khIdx+2:]
		rest = rest[:khIdx]
		kh, err := strconv.Atoi(khStr)
		if err != nil {
			return Expression{}, malformed(raw, "invalid kh value %q", khStr)
		}
		if kh <= 0 || kh >= count {
			return Expression{}, malformed(raw, "kh value %d must be > 0 and < count %d", kh, count)
		}
		keepHighest = kh
	}

	sides, err := strconv.Atoi(rest)
	if err != nil {
		return Expression{}, malformed(raw, "invalid die sides %q", rest)
	}
	if sides <= 0 {
		return Expression{}, malformed(raw, "die sides must be >= 1")
	}
	if sides > MaxSides {
		return Expression{}, malformed(raw, "die sides %d exceed %d", sides, MaxSides)
	}

	modifier := 0
	if modStr != "" {
		modifier, err = strconv.Atoi(modStr)
		if err != nil {
			return Expression{}, malformed(raw, "invalid modifier %q", modStr)
		}
		if modifier > MaxModifier || modifier < -MaxModifier {
			return Expression{}, malformed(raw, "modifier %d out of range", modifier)
		}
	}

	return Expression{
		Raw:         raw,
		Count:       count,
		Sides:       sides,
		Modifier:    modifier,
		KeepHighest: keepHighest,
	}, nil
}

// MustParse parses expr and panics on error. Useful for package-level constants.
//
// Precondition: expr must be a valid dice expression.
func MustParse(expr string) Expression {
	e, err := Parse(expr)
	if err != nil {
		panic("dice: MustParse failed for expression " + expr + ": " + err.Error())
	}
	return e
}
