// Package content loads PC and monster stat blocks from YAML templates.
package content

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/duelsim/internal/game/combat"
)

// ErrInvalidTemplate is wrapped by template decoding failures that are not
// already combatant or dice errors.
var ErrInvalidTemplate = errors.New("content: invalid template")

// Template is a combatant stat block as written in YAML.
type Template struct {
	Name string `yaml:"name"`
	Side string `yaml:"side"`
	AC   int    `yaml:"ac"`
	// MaxHP also accepts the key "hp".
	MaxHP int `yaml:"max_hp"`
	HP    int `yaml:"hp"`
	// Abilities maps an ability to its modifier.
	Abilities map[string]int `yaml:"abilities"`
	// AbilityScores maps an ability to its raw score; modifiers are derived
	// as floor((score-10)/2) for abilities missing from Abilities.
	AbilityScores     map[string]int   `yaml:"ability_scores"`
	InitiativeAbility string           `yaml:"initiative_ability"`
	InitiativeBonus   *int             `yaml:"initiative_bonus"`
	Saves             map[string]int   `yaml:"saves"`
	Resistances       []string         `yaml:"resistances"`
	Immunities        []string         `yaml:"immunities"`
	Attacks           []AttackTemplate `yaml:"attacks"`

	// Source is the file the template was read from, if any.
	Source string `yaml:"-"`
}

// AttackTemplate is one attack or effect of a Template.
type AttackTemplate struct {
	Name       string        `yaml:"name"`
	ToHit      int           `yaml:"to_hit"`
	Damage     string        `yaml:"damage"`
	DamageType string        `yaml:"damage_type"`
	Recharge   Recharge      `yaml:"recharge"`
	Save       *SaveTemplate `yaml:"save"`
}

// SaveTemplate turns an attack into a saving-throw effect.
type SaveTemplate struct {
	Ability string `yaml:"ability"`
	DC      int    `yaml:"dc"`
	Half    bool   `yaml:"half"`
}

// Recharge is the minimum d6 face that recharges an attack; 0 means none.
// In YAML it may be an integer or a stat-block string such as "5-6" or "6".
type Recharge int

// UnmarshalYAML accepts an integer or a recharge string.
func (r *Recharge) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("%w: recharge must be a scalar at line %d", ErrInvalidTemplate, value.Line)
	}
	switch value.ShortTag() {
	case "!!null":
		*r = 0
		return nil
	case "!!int":
		var n int
		if err := value.Decode(&n); err != nil {
			return err
		}
		*r = Recharge(n)
		return nil
	}
	n, err := ParseRecharge(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*r = Recharge(n)
	return nil
}

// ParseRecharge returns the recharge threshold written in a stat block:
// "5-6" and "5–6" give 5, "6" gives 6, "Recharge 4-6" gives 4. An empty
// string gives 6.
//
// Postcondition: Returns a value in 2..6, or an error wrapping ErrInvalidTemplate.
func ParseRecharge(s string) (int, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, "–", "-"))
	if s == "" {
		return 6, nil
	}
	start := strings.IndexFunc(s, unicode.IsDigit)
	if start < 0 {
		return 0, fmt.Errorf("%w: recharge %q has no threshold", ErrInvalidTemplate, s)
	}
	end := start
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(s[start:end])
	if err != nil || n < 2 || n > 6 {
		return 0, fmt.Errorf("%w: recharge %q must name a d6 face from 2 to 6", ErrInvalidTemplate, s)
	}
	return n, nil
}

// AbilityModifier converts an ability score to its modifier.
func AbilityModifier(score int) int {
	d := score - 10
	if d < 0 && d%2 != 0 {
		return d/2 - 1
	}
	return d / 2
}

// Combatant builds a validated combat.Combatant from the template.
//
// Postcondition: Returns a combatant ready for simulation, or an error
// wrapping ErrInvalidTemplate, combat.ErrInvalidCombatant, or
// dice.ErrMalformedExpression.
func (t *Template) Combatant() (*combat.Combatant, error) {
	if strings.TrimSpace(t.Name) == "" {
		return nil, fmt.Errorf("%w: name must not be empty", ErrInvalidTemplate)
	}
	side, err := combat.ParseSide(t.Side)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidTemplate, t.Name, err)
	}

	maxHP := t.MaxHP
	if maxHP == 0 {
		maxHP = t.HP
	}

	abilities := make(map[string]int, len(t.Abilities)+len(t.AbilityScores))
	for k, score := range t.AbilityScores {
		abilities[abilityKey(k)] = AbilityModifier(score)
	}
	for k, mod := range t.Abilities {
		abilities[abilityKey(k)] = mod
	}
	var saves map[string]int
	if len(t.Saves) > 0 {
		saves = make(map[string]int, len(t.Saves))
		for k, v := range t.Saves {
			saves[abilityKey(k)] = v
		}
	}

	c := &combat.Combatant{
		Name:              t.Name,
		Side:              side,
		AC:                t.AC,
		MaxHP:             maxHP,
		Abilities:         abilities,
		InitiativeAbility: t.InitiativeAbility,
		Saves:             saves,
		Resistances:       lower(t.Resistances),
		Immunities:        lower(t.Immunities),
	}
	if t.InitiativeBonus != nil {
		b := *t.InitiativeBonus
		c.InitiativeBonus = &b
	}
	for _, a := range t.Attacks {
		atk := combat.Attack{
			Name:       a.Name,
			ToHit:      a.ToHit,
			Damage:     a.Damage,
			DamageType: strings.ToLower(strings.TrimSpace(a.DamageType)),
			Recharge:   int(a.Recharge),
		}
		if a.Save != nil {
			atk.Save = &combat.Save{Ability: a.Save.Ability, DC: a.Save.DC, Half: a.Save.Half}
		}
		c.Attacks = append(c.Attacks, atk)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("template %q: %w", t.Name, err)
	}
	return c, nil
}

// Validate reports whether the template converts to a valid combatant.
func (t *Template) Validate() error {
	_, err := t.Combatant()
	return err
}

func abilityKey(name string) string {
	k := strings.ToLower(strings.TrimSpace(name))
	if len(k) > 3 {
		k = k[:3]
	}
	return k
}

func lower(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
