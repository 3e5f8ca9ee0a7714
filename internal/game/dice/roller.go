package dice

import "sort"

// Roll evaluates an Expression using the given Source and returns a RollResult.
//
// Precondition: expr must come from Parse; src must be non-nil.
// Postcondition: expr.Min() <= result.Total() <= expr.Max().
func Roll(expr Expression, src Source) RollResult {
	return roll(expr, src, expr.Count, expr.KeepHighest, false)
}

// RollCritical evaluates expr with its dice doubled. The modifier is added once.
// The first expr.Count dice are drawn exactly as Roll would draw them, so a
// critical never totals less than the normal roll made from the same stream.
//
// Precondition: expr must come from Parse; src must be non-nil.
// Postcondition: len(result.Dice) == 2*expr.Count (or 2*KeepHighest).
func RollCritical(expr Expression, src Source) RollResult {
	return roll(expr, src, expr.Count*2, expr.KeepHighest*2, true)
}

func roll(expr Expression, src Source, count, keep int, critical bool) RollResult {
	rolled := make([]int, count)
	for i := range rolled {
		rolled[i] = src.Intn(expr.Sides) + 1
	}

	kept := rolled
	if keep > 0 {
		sorted := make([]int, len(rolled))
		copy(sorted, rolled)
		sort.Sort(sort.Reverse(sort.IntSlice(sorted)))
		kept = sorted[:keep]
	}

	return RollResult{
		Expression: expr.Raw,
		Dice:       kept,
		Modifier:   expr.Modifier,
		Critical:   critical,
	}
}

// RollExpr parses expr and rolls it using src in a single call.
//
// Precondition: src must be non-nil.
// Postcondition: Returns a RollResult or an error wrapping ErrMalformedExpression.
func RollExpr(expr string, src Source) (RollResult, error) {
	e, err := Parse(expr)
	if err != nil {
		return RollResult{}, err
	}
	return Roll(e, src), nil
}
