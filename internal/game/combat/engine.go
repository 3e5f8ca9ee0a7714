package combat

import (
	"errors"
	"fmt"

	"github.com/cory-johannsen/duelsim/internal/game/dice"
)

// State is a Fight's position in the resolution state machine.
type State int

const (
	StateInit State = iota
	StateInitiativeRolled
	StateRoundInProgress
	StateRoundResolved
	StateFinished
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateInitiativeRolled:
		return "initiative_rolled"
	case StateRoundInProgress:
		return "round_in_progress"
	case StateRoundResolved:
		return "round_resolved"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// FightConfig holds the explicit per-fight rules. The resolver applies no
// defaults of its own.
type FightConfig struct {
	// RoundCap is the last round played; a fight still running after it is a draw.
	RoundCap      int
	Tie           TiePolicy
	PCPolicy      AttackPolicy
	MonsterPolicy AttackPolicy
}

// Validate checks the configuration.
func (c FightConfig) Validate() error {
	var errs []error
	if c.RoundCap < 1 {
		errs = append(errs, fmt.Errorf("round cap must be >= 1, got %d", c.RoundCap))
	}
	if c.Tie < TiePCFirst || c.Tie > TieHigherModifier {
		errs = append(errs, fmt.Errorf("unknown tie policy %d", c.Tie))
	}
	if c.PCPolicy == nil {
		errs = append(errs, errors.New("pc attack policy must not be nil"))
	}
	if c.MonsterPolicy == nil {
		errs = append(errs, errors.New("monster attack policy must not be nil"))
	}
	return errors.Join(errs...)
}

// Fight plays one duel between a PC and a monster.
// A Fight is single-use and not safe for concurrent use.
type Fight struct {
	cfg     FightConfig
	pc      *Combatant
	monster *Combatant
	roller  *dice.Roller

	state  State
	round  int
	order  [2]*Combatant
	result FightResult
}

// NewFight prepares a fight in StateInit. Both combatants are reset to full
// HP with every recharge attack available; pass clones, not templates.
//
// Precondition: pc.Side == SidePC; monster.Side == SideMonster; r non-nil.
// Postcondition: Returns a Fight in StateInit, or an error if a combatant or
// the configuration is invalid.
func NewFight(pc, monster *Combatant, r *dice.Roller, cfg FightConfig) (*Fight, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("fight config: %w", err)
	}
	if r == nil {
		return nil, errors.New("fight: roller must not be nil")
	}
	if pc == nil || monster == nil {
		return nil, fmt.Errorf("%w: both combatants are required", ErrInvalidCombatant)
	}
	if pc.Side != SidePC {
		return nil, fmt.Errorf("%w: %q is not a pc", ErrInvalidCombatant, pc.Name)
	}
	if monster.Side != SideMonster {
		return nil, fmt.Errorf("%w: %q is not a monster", ErrInvalidCombatant, monster.Name)
	}
	for _, c := range []*Combatant{pc, monster} {
		if !c.Validated() {
			if err := c.Validate(); err != nil {
				return nil, err
			}
		}
		c.Reset()
	}
	return &Fight{cfg: cfg, pc: pc, monster: monster, roller: r, state: StateInit}, nil
}

// State returns the current state.
func (f *Fight) State() State { return f.state }

// Round returns the current round number, 0 before the first round.
func (f *Fight) Round() int { return f.round }

// Done reports whether the fight has reached StateFinished.
func (f *Fight) Done() bool { return f.state == StateFinished }

// Step performs one state transition:
//
//	init → initiative_rolled → round_in_progress → round_resolved → round_in_progress ...
//
// and finally → finished when a side drops to 0 HP or the round cap is reached.
// Stepping a finished fight is a no-op.
//
// Postcondition: Returns an error only when an attack policy makes an invalid
// selection; the fight is then left unfinished.
func (f *Fight) Step() error {
	switch f.state {
	case StateInit:
		f.result.Initiative = RollInitiative(f.pc, f.monster, f.roller, f.cfg.Tie)
		if f.result.Initiative.First == SidePC {
			f.order = [2]*Combatant{f.pc, f.monster}
		} else {
			f.order = [2]*Combatant{f.monster, f.pc}
		}
		f.state = StateInitiativeRolled

	case StateInitiativeRolled:
		f.round = 1
		f.state = StateRoundInProgress

	case StateRoundInProgress:
		for _, actor := range f.order {
			ended, err := f.takeTurn(actor)
			if err != nil {
				return err
			}
			if ended {
				f.finish(WinnerFor(actor.Side), false)
				return nil
			}
		}
		f.state = StateRoundResolved

	case StateRoundResolved:
		if f.round >= f.cfg.RoundCap {
			f.finish(WinnerDraw, true)
			return nil
		}
		f.round++
		f.state = StateRoundInProgress

	case StateFinished:
	}
	return nil
}

// Run steps the fight to completion and returns its result.
//
// Postcondition: on success, result.Rounds <= RoundCap and the loser is at
// 0 HP unless the result is a draw.
func (f *Fight) Run() (FightResult, error) {
	for !f.Done() {
		if err := f.Step(); err != nil {
			return FightResult{}, err
		}
	}
	return f.Result(), nil
}

// Result returns the fight result. It is complete only once Done is true.
func (f *Fight) Result() FightResult { return f.result }

func (f *Fight) opponent(c *Combatant) *Combatant {
	if c == f.pc {
		return f.monster
	}
	return f.pc
}

func (f *Fight) policy(c *Combatant) AttackPolicy {
	if c.Side == SidePC {
		return f.cfg.PCPolicy
	}
	return f.cfg.MonsterPolicy
}

// takeTurn recharges, selects, and resolves the actor's attacks in order.
// It reports whether the defender dropped to 0 HP.
func (f *Fight) takeTurn(actor *Combatant) (bool, error) {
	defender := f.opponent(actor)
	actor.TryRecharge(f.roller)

	policy := f.policy(actor)
	idxs, err := policy.Select(actor)
	if err != nil {
		return false, fmt.Errorf("round %d: %s selecting attack: %w", f.round, actor.Name, err)
	}
	if err := checkSelection(actor, policy, idxs); err != nil {
		return false, fmt.Errorf("round %d: %w", f.round, err)
	}

	for _, i := range idxs {
		atk := &actor.Attacks[i]
		rec := ResolveAttack(actor, defender, atk, f.roller)
		rec.Round = f.round
		actor.MarkSpent(atk.Name)
		f.result.record(rec)
		if defender.IsDefeated() {
			return true, nil
		}
	}
	return false, nil
}

func (f *Fight) finish(w Winner, diverged bool) {
	f.result.Winner = w
	f.result.Diverged = diverged
	f.result.Rounds = f.round
	f.result.PCHP = f.pc.CurrentHP
	f.result.MonsterHP = f.monster.CurrentHP
	f.state = StateFinished
}

// Resolve plays a complete fight between pc and monster.
//
// Precondition: see NewFight.
func Resolve(pc, monster *Combatant, r *dice.Roller, cfg FightConfig) (FightResult, error) {
	f, err := NewFight(pc, monster, r, cfg)
	if err != nil {
		return FightResult{}, err
	}
	return f.Run()
}
