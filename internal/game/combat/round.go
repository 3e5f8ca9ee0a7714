package combat

import (
	"fmt"
	"strings"
)

// AttackKind distinguishes attack-roll actions from saving-throw effects.
type AttackKind int

const (
	KindAttackRoll AttackKind = iota
	KindSave
)

// String returns "attack" or "save".
func (k AttackKind) String() string {
	if k == KindSave {
		return "save"
	}
	return "attack"
}

// RoundRecord is the immutable log of one resolved action.
type RoundRecord struct {
	Round        int
	Attacker     Side
	AttackerName string
	DefenderName string
	AttackName   string
	Kind         AttackKind
	// Roll is the raw d20: the attacker's attack roll, or the defender's save.
	Roll int
	// Total is Roll plus the applicable modifier.
	Total int
	// Target is the defender's AC for attack rolls, or the DC for saves.
	Target   int
	Hit      bool
	Critical bool
	Fumble   bool
	// DamageRolled is the damage before resistances and immunities.
	DamageRolled int
	// DamageDealt is the damage actually subtracted from the defender.
	DamageDealt int
	DefenderHP  int
}

// Narrative renders the record as a single line for replay output.
func (r RoundRecord) Narrative() string {
	var b strings.Builder
	fmt.Fprintf(&b, "R%d %s uses %s on %s: ", r.Round, r.AttackerName, r.AttackName, r.DefenderName)
	switch {
	case r.Kind == KindSave && r.Hit:
		fmt.Fprintf(&b, "save failed (%d vs DC %d)", r.Total, r.Target)
	case r.Kind == KindSave:
		fmt.Fprintf(&b, "save succeeded (%d vs DC %d)", r.Total, r.Target)
	case r.Critical:
		fmt.Fprintf(&b, "critical hit (natural 20)")
	case r.Fumble:
		fmt.Fprintf(&b, "miss (natural 1)")
	case r.Hit:
		fmt.Fprintf(&b, "hit (%d vs AC %d)", r.Total, r.Target)
	default:
		fmt.Fprintf(&b, "miss (%d vs AC %d)", r.Total, r.Target)
	}
	if r.DamageDealt > 0 || r.DamageRolled > 0 {
		fmt.Fprintf(&b, ", %d damage", r.DamageDealt)
		if r.DamageDealt != r.DamageRolled {
			fmt.Fprintf(&b, " (%d rolled)", r.DamageRolled)
		}
	}
	fmt.Fprintf(&b, ", %s at %d HP", r.DefenderName, r.DefenderHP)
	return b.String()
}

// AttackKey identifies one attack of one side across fights.
type AttackKey struct {
	Side Side
	Name string
}

// String returns "side/name".
func (k AttackKey) String() string { return k.Side.String() + "/" + k.Name }

// MarshalText lets AttackKey serve as a JSON map key.
func (k AttackKey) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText parses the "side/name" form produced by MarshalText.
func (k *AttackKey) UnmarshalText(b []byte) error {
	side, name, ok := strings.Cut(string(b), "/")
	if !ok {
		return fmt.Errorf("attack key %q: missing '/'", b)
	}
	s, err := ParseSide(side)
	if err != nil {
		return fmt.Errorf("attack key %q: %w", b, err)
	}
	k.Side, k.Name = s, name
	return nil
}

// AttackTally accumulates usage of a single attack.
type AttackTally struct {
	Attempts    int   `json:"attempts"`
	Hits        int   `json:"hits"`
	Crits       int   `json:"crits"`
	DamageSum   int64 `json:"damage_sum"`
	DamageSumSq int64 `json:"damage_sum_sq"`
}

// Record folds one RoundRecord into the tally.
func (t *AttackTally) Record(r RoundRecord) {
	t.Attempts++
	if r.Hit {
		t.Hits++
	}
	if r.Critical {
		t.Crits++
	}
	d := int64(r.DamageDealt)
	t.DamageSum += d
	t.DamageSumSq += d * d
}

// Merge adds other into t.
func (t *AttackTally) Merge(other AttackTally) {
	t.Attempts += other.Attempts
	t.Hits += other.Hits
	t.Crits += other.Crits
	t.DamageSum += other.DamageSum
	t.DamageSumSq += other.DamageSumSq
}

// HitRate returns Hits/Attempts, or 0 when unused.
func (t AttackTally) HitRate() float64 {
	if t.Attempts == 0 {
		return 0
	}
	return float64(t.Hits) / float64(t.Attempts)
}

// MeanDamage returns the mean damage per attempt, misses included.
func (t AttackTally) MeanDamage() float64 {
	if t.Attempts == 0 {
		return 0
	}
	return float64(t.DamageSum) / float64(t.Attempts)
}

// MeanDamagePerHit returns the mean damage over hits only.
func (t AttackTally) MeanDamagePerHit() float64 {
	if t.Hits == 0 {
		return 0
	}
	return float64(t.DamageSum) / float64(t.Hits)
}

// SideTally summarizes one side's offence in a single fight.
type SideTally struct {
	Attacks int
	Hits    int
	Misses  int
	Crits   int
	Damage  int
}

func (t *SideTally) record(r RoundRecord) {
	t.Attacks++
	if r.Hit {
		t.Hits++
	} else {
		t.Misses++
	}
	if r.Critical {
		t.Crits++
	}
	t.Damage += r.DamageDealt
}

// Initiative is the rolled turn order of a fight.
type Initiative struct {
	PC      int // PC initiative total
	Monster int // monster initiative total
	First   Side
	Tied    bool
}

// FightResult is the immutable outcome of one resolved fight.
type FightResult struct {
	Run        int
	Winner     Winner
	Rounds     int
	Diverged   bool // round cap reached; Winner is WinnerDraw
	Initiative Initiative
	Records    []RoundRecord
	PC         SideTally
	Monster    SideTally
	Attacks    map[AttackKey]AttackTally
	// PCHP and MonsterHP are each side's hit points when the fight ended.
	PCHP      int
	MonsterHP int
}

// Tally returns the side's offence summary.
func (f *FightResult) Tally(s Side) SideTally {
	if s == SideMonster {
		return f.Monster
	}
	return f.PC
}

func (f *FightResult) record(r RoundRecord) {
	f.Records = append(f.Records, r)
	if r.Attacker == SidePC {
		f.PC.record(r)
	} else {
		f.Monster.record(r)
	}
	if f.Attacks == nil {
		f.Attacks = make(map[AttackKey]AttackTally)
	}
	key := AttackKey{Side: r.Attacker, Name: r.AttackName}
	t := f.Attacks[key]
	t.Record(r)
	f.Attacks[key] = t
}
