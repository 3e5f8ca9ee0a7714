package dice

import "go.uber.org/zap"

// Roller wraps a Source and logger to provide logged dice rolling.
// All rolls are logged at debug level with expression, dice values, modifier, and total.
type Roller struct {
	src    Source
	logger *zap.Logger
}

// NewLoggedRoller creates a Roller that rolls with src and logs each roll to logger.
// A nil logger disables logging.
//
// Precondition: src must be non-nil.
func NewLoggedRoller(src Source, logger *zap.Logger) *Roller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Roller{src: src, logger: logger}
}

// Source returns the underlying randomness source.
func (r *Roller) Source() Source { return r.src }

// Roll evaluates expr and logs the result at debug level.
//
// Precondition: expr must come from Parse.
func (r *Roller) Roll(expr Expression) RollResult {
	return r.logRoll(Roll(expr, r.src))
}

// RollCritical evaluates expr with doubled dice and logs the result.
//
// Precondition: expr must come from Parse.
func (r *Roller) RollCritical(expr Expression) RollResult {
	return r.logRoll(RollCritical(expr, r.src))
}

// RollExpr parses expr and rolls it, logging the result.
//
// Postcondition: Returns a RollResult or an error wrapping ErrMalformedExpression.
func (r *Roller) RollExpr(expr string) (RollResult, error) {
	e, err := Parse(expr)
	if err != nil {
		return RollResult{}, err
	}
	return r.Roll(e), nil
}

// D20 performs a d20 check with bonus and logs it.
func (r *Roller) D20(bonus int) Check {
	c := D20Check(r.src, bonus)
	if ce := r.logger.Check(zap.DebugLevel, "d20 check"); ce != nil {
		ce.Write(
			zap.Int("raw", c.Raw),
			zap.Int("bonus", c.Bonus),
			zap.Int("total", c.Total),
		)
	}
	return c
}

// Die rolls a single die with the given number of sides and logs it.
//
// Precondition: sides >= 1.
func (r *Roller) Die(sides int) int {
	v := r.src.Intn(sides) + 1
	if ce := r.logger.Check(zap.DebugLevel, "die roll"); ce != nil {
		ce.Write(zap.Int("sides", sides), zap.Int("value", v))
	}
	return v
}

func (r *Roller) logRoll(result RollResult) RollResult {
	if ce := r.logger.Check(zap.DebugLevel, "dice roll"); ce != nil {
		ce.Write(
			zap.String("expression", result.Expression),
			zap.Ints("dice", result.Dice),
			zap.Int("modifier", result.Modifier),
			zap.Int("total", result.Total()),
			zap.Bool("critical", result.Critical),
		)
	}
	return result
}
