package combat

import (
	"fmt"
	"strings"

	"github.com/cory-johannsen/duelsim/internal/game/dice"
)

// TiePolicy decides who acts first when initiative totals are equal.
// Every policy is deterministic; none rerolls.
type TiePolicy int

const (
	// TiePCFirst lets the PC act first on a tie. This is the default.
	TiePCFirst TiePolicy = iota
	// TieMonsterFirst lets the monster act first on a tie.
	TieMonsterFirst
	// TieHigherModifier lets the side with the higher initiative modifier act
	// first, falling back to the PC when the modifiers are also equal.
	TieHigherModifier
)

// String returns the configuration name of the policy.
func (p TiePolicy) String() string {
	switch p {
	case TieMonsterFirst:
		return "monster"
	case TieHigherModifier:
		return "modifier"
	default:
		return "pc"
	}
}

// ParseTiePolicy maps "pc", "monster" or "modifier" to a TiePolicy.
func ParseTiePolicy(s string) (TiePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "pc":
		return TiePCFirst, nil
	case "monster":
		return TieMonsterFirst, nil
	case "modifier":
		return TieHigherModifier, nil
	default:
		return TiePCFirst, fmt.Errorf("unknown initiative tie policy %q: must be pc, monster or modifier", s)
	}
}

// RollInitiative rolls d20 + initiative modifier for both sides, PC first,
// and decides who acts first.
//
// Precondition: pc.Side == SidePC, monster.Side == SideMonster; r must be non-nil.
// Postcondition: First is SidePC or SideMonster.
func RollInitiative(pc, monster *Combatant, r *dice.Roller, tie TiePolicy) Initiative {
	pcCheck := r.D20(pc.InitiativeModifier())
	monCheck := r.D20(monster.InitiativeModifier())
	out := Initiative{PC: pcCheck.Total, Monster: monCheck.Total}

	switch {
	case pcCheck.Total > monCheck.Total:
		out.First = SidePC
	case pcCheck.Total < monCheck.Total:
		out.First = SideMonster
	default:
		out.Tied = true
		out.First = breakTie(pc, monster, tie)
	}
	return out
}

func breakTie(pc, monster *Combatant, tie TiePolicy) Side {
	switch tie {
	case TieMonsterFirst:
		return SideMonster
	case TieHigherModifier:
		if monster.InitiativeModifier() > pc.InitiativeModifier() {
			return SideMonster
		}
		return SidePC
	default:
		return SidePC
	}
}
