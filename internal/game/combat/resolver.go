package combat

import "github.com/cory-johannsen/duelsim/internal/game/dice"

// ResolveAttack performs one attack or saving-throw effect by attacker
// against defender, applies the damage, and returns the record.
//
// Attack rolls: d20 + ToHit. A natural 20 always hits and doubles the damage
// dice; a natural 1 always misses; otherwise the attack hits when the total
// meets or beats the defender's AC.
//
// Saves: the defender rolls d20 + save modifier against the DC. A failed save
// takes full damage; a successful save takes half (Half) or nothing.
//
// Precondition: attacker and defender have passed Validate; atk belongs to
// attacker; r must be non-nil.
// Postcondition: defender.CurrentHP is reduced by the record's DamageDealt
// and never drops below 0.
func ResolveAttack(attacker, defender *Combatant, atk *Attack, r *dice.Roller) RoundRecord {
	rec := RoundRecord{
		Attacker:     attacker.Side,
		AttackerName: attacker.Name,
		DefenderName: defender.Name,
		AttackName:   atk.Name,
	}

	var rolled dice.RollResult
	if atk.IsSave() {
		rec.Kind = KindSave
		rec.Target = atk.Save.DC
		check := r.D20(defender.SaveModifier(atk.Save.Ability))
		rec.Roll, rec.Total = check.Raw, check.Total
		saved := check.Total >= atk.Save.DC
		rec.Hit = !saved
		rolled = r.Roll(atk.damage)
		rec.DamageRolled = max(rolled.Total(), 0)
		if saved {
			if atk.Save.Half {
				rec.DamageRolled /= 2
			} else {
				rec.DamageRolled = 0
			}
		}
	} else {
		rec.Kind = KindAttackRoll
		rec.Target = defender.AC
		check := r.D20(atk.ToHit)
		rec.Roll, rec.Total = check.Raw, check.Total
		rec.Critical = check.Natural20()
		rec.Fumble = check.Natural1()
		rec.Hit = rec.Critical || (!rec.Fumble && check.Total >= defender.AC)
		if rec.Hit {
			if rec.Critical {
				rolled = r.RollCritical(atk.damage)
			} else {
				rolled = r.Roll(atk.damage)
			}
			rec.DamageRolled = max(rolled.Total(), 0)
		}
	}

	rec.DamageDealt = defender.DamageAfterDefenses(rec.DamageRolled, atk.DamageType)
	defender.ApplyDamage(rec.DamageDealt)
	rec.DefenderHP = defender.CurrentHP
	return rec
}
