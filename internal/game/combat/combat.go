// Package combat implements the one-on-one duel resolver: the combatant
// model, attack resolution, recharge gating, and the round state machine.
package combat

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cory-johannsen/duelsim/internal/game/dice"
)

// ErrInvalidCombatant is wrapped by every validation failure for missing or
// contradictory combatant stats.
var ErrInvalidCombatant = errors.New("combat: invalid combatant")

// Side distinguishes the player character from the monster.
// The zero value (SideUnknown) is intentionally invalid.
type Side int

const (
	SideUnknown Side = iota
	SidePC
	SideMonster
)

// String returns "pc", "monster", or "unknown".
func (s Side) String() string {
	switch s {
	case SidePC:
		return "pc"
	case SideMonster:
		return "monster"
	default:
		return "unknown"
	}
}

// Opponent returns the other side.
func (s Side) Opponent() Side {
	switch s {
	case SidePC:
		return SideMonster
	case SideMonster:
		return SidePC
	default:
		return SideUnknown
	}
}

// ParseSide maps "pc" or "monster" (any case) to a Side.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pc", "player":
		return SidePC, nil
	case "monster", "npc":
		return SideMonster, nil
	default:
		return SideUnknown, fmt.Errorf("unknown side %q: must be pc or monster", s)
	}
}

// Winner is the terminal outcome of one fight.
type Winner int

const (
	WinnerDraw Winner = iota
	WinnerPC
	WinnerMonster
)

// String returns "pc", "monster", or "draw".
func (w Winner) String() string {
	switch w {
	case WinnerPC:
		return "pc"
	case WinnerMonster:
		return "monster"
	default:
		return "draw"
	}
}

// WinnerFor returns the Winner value for a victorious side.
func WinnerFor(s Side) Winner {
	switch s {
	case SidePC:
		return WinnerPC
	case SideMonster:
		return WinnerMonster
	default:
		return WinnerDraw
	}
}

// RechargeState is the per-ability gate for recharge attacks.
type RechargeState int

const (
	RechargeAvailable RechargeState = iota
	RechargeSpent
)

// String returns "available" or "spent".
func (r RechargeState) String() string {
	if r == RechargeSpent {
		return "spent"
	}
	return "available"
}

// Save turns an attack into a saving-throw effect.
type Save struct {
	Ability string // defender's saving throw ability, e.g. "dex"
	DC      int
	Half    bool // half damage on a successful save instead of none
}

// Attack is an immutable attack or effect definition.
type Attack struct {
	Name       string
	ToHit      int
	Damage     string // dice expression, e.g. "1d8+3"
	DamageType string
	// Recharge is the minimum d6 face that recharges the attack; 0 means the
	// attack is always available.
	Recharge int
	// Save is nil for attack-roll attacks.
	Save *Save

	damage dice.Expression
}

// DamageExpression returns the parsed damage expression.
//
// Precondition: the owning Combatant has passed Validate.
func (a *Attack) DamageExpression() dice.Expression { return a.damage }

// IsSave reports whether the attack is resolved with a saving throw.
func (a *Attack) IsSave() bool { return a.Save != nil }

// Combatant is the mutable simulation state for one side of a duel.
type Combatant struct {
	Name      string
	Side      Side
	AC        int
	MaxHP     int
	CurrentHP int
	// Abilities maps a three-letter ability ("str", "dex", ...) to its modifier.
	Abilities map[string]int
	// InitiativeAbility names the ability whose modifier drives initiative;
	// empty means "dex".
	InitiativeAbility string
	// InitiativeBonus, when non-nil, overrides the ability-derived modifier.
	InitiativeBonus *int
	// Saves maps an ability to its saving throw modifier; missing abilities
	// fall back to the ability modifier.
	Saves       map[string]int
	Resistances []string
	Immunities  []string
	Attacks     []Attack

	recharge  map[string]RechargeState
	validated bool
}

// abilityKey normalizes "Dexterity", "DEX" and "dex" to "dex".
func abilityKey(name string) string {
	k := strings.ToLower(strings.TrimSpace(name))
	if len(k) > 3 {
		k = k[:3]
	}
	return k
}

// Validate checks the combatant's static stats and parses every damage
// expression. It must succeed before the combatant enters a fight.
//
// Postcondition: Returns nil, an error wrapping ErrInvalidCombatant, or an
// error wrapping dice.ErrMalformedExpression.
func (c *Combatant) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: name must not be empty", ErrInvalidCombatant)
	}
	if c.Side != SidePC && c.Side != SideMonster {
		return fmt.Errorf("%w: %q: side must be pc or monster", ErrInvalidCombatant, c.Name)
	}
	if c.MaxHP <= 0 {
		return fmt.Errorf("%w: %q: max hp must be > 0, got %d", ErrInvalidCombatant, c.Name, c.MaxHP)
	}
	if c.AC < 0 {
		return fmt.Errorf("%w: %q: ac must be >= 0, got %d", ErrInvalidCombatant, c.Name, c.AC)
	}
	if len(c.Attacks) == 0 {
		return fmt.Errorf("%w: %q: at least one attack is required", ErrInvalidCombatant, c.Name)
	}

	seen := make(map[string]bool, len(c.Attacks))
	for i := range c.Attacks {
		a := &c.Attacks[i]
		if a.Name == "" {
			return fmt.Errorf("%w: %q: attack %d has no name", ErrInvalidCombatant, c.Name, i)
		}
		if seen[a.Name] {
			return fmt.Errorf("%w: %q: duplicate attack %q", ErrInvalidCombatant, c.Name, a.Name)
		}
		seen[a.Name] = true
		if a.Recharge != 0 && (a.Recharge < 2 || a.Recharge > 6) {
			return fmt.Errorf("%w: %q: attack %q recharge must be 2-6, got %d", ErrInvalidCombatant, c.Name, a.Name, a.Recharge)
		}
		if a.Save != nil {
			if a.Save.DC <= 0 {
				return fmt.Errorf("%w: %q: attack %q save dc must be > 0", ErrInvalidCombatant, c.Name, a.Name)
			}
			if abilityKey(a.Save.Ability) == "" {
				return fmt.Errorf("%w: %q: attack %q save ability must not be empty", ErrInvalidCombatant, c.Name, a.Name)
			}
		}
		expr, err := dice.Parse(a.Damage)
		if err != nil {
			return fmt.Errorf("combatant %q attack %q: %w", c.Name, a.Name, err)
		}
		a.damage = expr
	}

	c.validated = true
	c.Reset()
	return nil
}

// Validated reports whether Validate has succeeded on this combatant.
func (c *Combatant) Validated() bool { return c.validated }

// Reset restores full hit points and makes every recharge attack available.
func (c *Combatant) Reset() {
	c.CurrentHP = c.MaxHP
	c.recharge = make(map[string]RechargeState)
	for _, a := range c.Attacks {
		if a.Recharge > 0 {
			c.recharge[a.Name] = RechargeAvailable
		}
	}
}

// Clone returns an independent fresh copy: full HP, all recharge attacks
// available, and no maps or slices shared with c.
//
// Postcondition: mutating the clone never affects c.
func (c *Combatant) Clone() *Combatant {
	cp := *c
	cp.Abilities = copyMap(c.Abilities)
	cp.Saves = copyMap(c.Saves)
	cp.Resistances = append([]string(nil), c.Resistances...)
	cp.Immunities = append([]string(nil), c.Immunities...)
	cp.Attacks = make([]Attack, len(c.Attacks))
	for i, a := range c.Attacks {
		if a.Save != nil {
			s := *a.Save
			a.Save = &s
		}
		cp.Attacks[i] = a
	}
	if c.InitiativeBonus != nil {
		b := *c.InitiativeBonus
		cp.InitiativeBonus = &b
	}
	cp.Reset()
	return &cp
}

func copyMap(m map[string]int) map[string]int {
	if m == nil {
		return nil
	}
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// IsDefeated reports whether the combatant is at 0 HP.
func (c *Combatant) IsDefeated() bool { return c.CurrentHP == 0 }

// ApplyDamage reduces CurrentHP by amount, flooring at zero.
// Precondition: amount must be >= 0.
// Postcondition: 0 <= CurrentHP <= MaxHP.
func (c *Combatant) ApplyDamage(amount int) {
	if amount <= 0 {
		return
	}
	c.CurrentHP -= amount
	if c.CurrentHP < 0 {
		c.CurrentHP = 0
	}
}

// AbilityMod returns the modifier for ability, or 0 when unknown.
func (c *Combatant) AbilityMod(ability string) int {
	return c.Abilities[abilityKey(ability)]
}

// InitiativeModifier returns the explicit initiative bonus when set,
// otherwise the modifier of InitiativeAbility (default dex).
func (c *Combatant) InitiativeModifier() int {
	if c.InitiativeBonus != nil {
		return *c.InitiativeBonus
	}
	ability := c.InitiativeAbility
	if ability == "" {
		ability = "dex"
	}
	return c.AbilityMod(ability)
}

// SaveModifier returns the saving throw modifier for ability, falling back to
// the ability modifier when no explicit save is listed.
func (c *Combatant) SaveModifier(ability string) int {
	k := abilityKey(ability)
	if v, ok := c.Saves[k]; ok {
		return v
	}
	return c.Abilities[k]
}

// DamageAfterDefenses applies immunities (no damage) and resistances (half,
// rounded down) for damageType.
//
// Postcondition: 0 <= result <= max(amount, 0).
func (c *Combatant) DamageAfterDefenses(amount int, damageType string) int {
	if amount <= 0 {
		return 0
	}
	dt := strings.ToLower(strings.TrimSpace(damageType))
	if dt == "" {
		return amount
	}
	if containsFold(c.Immunities, dt) {
		return 0
	}
	if containsFold(c.Resistances, dt) {
		return amount / 2
	}
	return amount
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(strings.TrimSpace(s), v) {
			return true
		}
	}
	return false
}

// Usable reports whether the attack at index i may be used this turn.
func (c *Combatant) Usable(i int) bool {
	if i < 0 || i >= len(c.Attacks) {
		return false
	}
	if c.Attacks[i].Recharge == 0 {
		return true
	}
	return c.recharge[c.Attacks[i].Name] == RechargeAvailable
}

// RechargeStateOf returns the recharge state of the named attack; ok is false
// for attacks without a recharge requirement.
func (c *Combatant) RechargeStateOf(name string) (state RechargeState, ok bool) {
	state, ok = c.recharge[name]
	return state, ok
}

// MarkSpent flags a recharge attack as used. Attacks without a recharge
// requirement are ignored.
func (c *Combatant) MarkSpent(name string) {
	if _, ok := c.recharge[name]; ok {
		c.recharge[name] = RechargeSpent
	}
}

// TryRecharge rolls a d6 for every spent recharge attack, in attack order,
// and makes it available when the roll meets its threshold.
//
// Postcondition: Returns the names of attacks that recharged.
func (c *Combatant) TryRecharge(r *dice.Roller) []string {
	var recharged []string
	for _, a := range c.Attacks {
		if a.Recharge == 0 || c.recharge[a.Name] != RechargeSpent {
			continue
		}
		if r.Die(6) >= a.Recharge {
			c.recharge[a.Name] = RechargeAvailable
			recharged = append(recharged, a.Name)
		}
	}
	return recharged
}
