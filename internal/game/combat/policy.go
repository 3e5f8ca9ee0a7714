package combat

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrInvalidSelection is returned when a policy picks an attack that does not
// exist or is not usable this turn.
var ErrInvalidSelection = errors.New("combat: invalid attack selection")

// AttackPolicy chooses which attacks a combatant makes on its turn.
//
// Implementations must be deterministic given the combatant's state and safe
// for concurrent use by independent fights.
type AttackPolicy interface {
	// Name identifies the policy in reports.
	Name() string
	// Select returns indices into c.Attacks in execution order. An empty
	// selection forfeits the turn.
	Select(c *Combatant) ([]int, error)
}

// PolicyFunc adapts a function into an AttackPolicy.
type PolicyFunc struct {
	Label string
	Fn    func(c *Combatant) ([]int, error)
}

// Name returns the label.
func (p PolicyFunc) Name() string { return p.Label }

// Select calls the function.
func (p PolicyFunc) Select(c *Combatant) ([]int, error) { return p.Fn(c) }

// PreferRecharge uses the first available recharge attack, otherwise the
// first attack without a recharge requirement. One attack per turn.
type PreferRecharge struct{}

// Name returns "prefer_recharge".
func (PreferRecharge) Name() string { return "prefer_recharge" }

// Select implements AttackPolicy.
func (PreferRecharge) Select(c *Combatant) ([]int, error) {
	for i, a := range c.Attacks {
		if a.Recharge > 0 && c.Usable(i) {
			return []int{i}, nil
		}
	}
	for i, a := range c.Attacks {
		if a.Recharge == 0 {
			return []int{i}, nil
		}
	}
	return nil, nil
}

// FirstAttack uses the first usable attack in list order. One attack per turn.
type FirstAttack struct{}

// Name returns "first_attack".
func (FirstAttack) Name() string { return "first_attack" }

// Select implements AttackPolicy.
func (FirstAttack) Select(c *Combatant) ([]int, error) {
	for i := range c.Attacks {
		if c.Usable(i) {
			return []int{i}, nil
		}
	}
	return nil, nil
}

// Multiattack uses every usable attack in list order each turn.
type Multiattack struct{}

// Name returns "multiattack".
func (Multiattack) Name() string { return "multiattack" }

// Select implements AttackPolicy.
func (Multiattack) Select(c *Combatant) ([]int, error) {
	var out []int
	for i := range c.Attacks {
		if c.Usable(i) {
			out = append(out, i)
		}
	}
	return out, nil
}

var builtinPolicies = map[string]AttackPolicy{
	PreferRecharge{}.Name(): PreferRecharge{},
	FirstAttack{}.Name():    FirstAttack{},
	Multiattack{}.Name():    Multiattack{},
}

// PolicyNames returns the names of the built-in policies, sorted.
func PolicyNames() []string {
	names := make([]string, 0, len(builtinPolicies))
	for n := range builtinPolicies {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// PolicyByName returns the built-in policy registered under name.
func PolicyByName(name string) (AttackPolicy, error) {
	p, ok := builtinPolicies[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown attack policy %q: must be one of %v", name, PolicyNames())
	}
	return p, nil
}

// checkSelection verifies every index is in range, usable, and not repeated.
func checkSelection(c *Combatant, policy AttackPolicy, idxs []int) error {
	seen := make(map[int]bool, len(idxs))
	for _, i := range idxs {
		if i < 0 || i >= len(c.Attacks) {
			return fmt.Errorf("%w: policy %s chose index %d for %q with %d attacks", ErrInvalidSelection, policy.Name(), i, c.Name, len(c.Attacks))
		}
		if seen[i] {
			return fmt.Errorf("%w: policy %s chose %q twice", ErrInvalidSelection, policy.Name(), c.Attacks[i].Name)
		}
		seen[i] = true
		if !c.Usable(i) {
			return fmt.Errorf("%w: policy %s chose %q while it is recharging", ErrInvalidSelection, policy.Name(), c.Attacks[i].Name)
		}
	}
	return nil
}
