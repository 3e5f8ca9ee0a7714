package sim

import (
	"math"
	"sort"

	"github.com/cory-johannsen/duelsim/internal/game/combat"
)

// OutcomeCounts tallies fight winners.
type OutcomeCounts struct {
	PCWins      int `json:"pc_wins"`
	MonsterWins int `json:"monster_wins"`
	Draws       int `json:"draws"`
}

// Total returns the number of fights counted.
func (o OutcomeCounts) Total() int { return o.PCWins + o.MonsterWins + o.Draws }

func (o *OutcomeCounts) add(w combat.Winner) {
	switch w {
	case combat.WinnerPC:
		o.PCWins++
	case combat.WinnerMonster:
		o.MonsterWins++
	default:
		o.Draws++
	}
}

func (o *OutcomeCounts) merge(other OutcomeCounts) {
	o.PCWins += other.PCWins
	o.MonsterWins += other.MonsterWins
	o.Draws += other.Draws
}

// SideStats accumulates one side's results across fights.
type SideStats struct {
	Wins           int `json:"wins"`
	InitiativeWins int `json:"initiative_wins"`
	Attacks        int `json:"attacks"`
	Hits           int `json:"hits"`
	Misses         int `json:"misses"`
	Crits          int `json:"crits"`
	// DamageSum and DamageSumSq are over per-fight damage dealt.
	DamageSum   int64 `json:"damage_sum"`
	DamageSumSq int64 `json:"damage_sum_sq"`
	// FightHitRateMicros sums each fight's hit rate in millionths, rounded
	// to nearest. Fights without attacks add 0.
	FightHitRateMicros int64 `json:"fight_hit_rate_micros"`
}

func (s *SideStats) merge(o SideStats) {
	s.Wins += o.Wins
	s.InitiativeWins += o.InitiativeWins
	s.Attacks += o.Attacks
	s.Hits += o.Hits
	s.Misses += o.Misses
	s.Crits += o.Crits
	s.DamageSum += o.DamageSum
	s.DamageSumSq += o.DamageSumSq
	s.FightHitRateMicros += o.FightHitRateMicros
}

func (s *SideStats) addFight(t combat.SideTally) {
	s.Attacks += t.Attacks
	s.Hits += t.Hits
	s.Misses += t.Misses
	s.Crits += t.Crits
	d := int64(t.Damage)
	s.DamageSum += d
	s.DamageSumSq += d * d
	if t.Attacks > 0 {
		n := int64(t.Attacks)
		s.FightHitRateMicros += (int64(t.Hits)*1_000_000 + n/2) / n
	}
}

// HitRate returns Hits/Attacks, or 0 when no attacks were made.
func (s SideStats) HitRate() float64 { return ratio(int64(s.Hits), int64(s.Attacks)) }

// MeanDamagePerHit returns total damage over hits.
func (s SideStats) MeanDamagePerHit() float64 { return ratio(s.DamageSum, int64(s.Hits)) }

// AggregateStats is the running summary of a batch. Every accumulator is an
// integer, so Add and Merge are exact and the result does not depend on how
// runs were partitioned.
//
// Invariant: PC.Wins + Monster.Wins + Draws == Runs.
type AggregateStats struct {
	Runs        int       `json:"runs"`
	Draws       int       `json:"draws"`
	Divergences int       `json:"divergences"`
	PC          SideStats `json:"pc"`
	Monster     SideStats `json:"monster"`

	RoundsSum       int64       `json:"rounds_sum"`
	RoundsSumSq     int64       `json:"rounds_sum_sq"`
	RoundsHistogram map[int]int `json:"rounds_histogram"`

	Attacks map[combat.AttackKey]combat.AttackTally `json:"attacks"`

	// PCFirst and MonsterFirst cross-tabulate the side that won initiative
	// against the fight outcome.
	PCFirst      OutcomeCounts `json:"pc_first"`
	MonsterFirst OutcomeCounts `json:"monster_first"`
}

// NewAggregateStats returns an empty aggregate.
func NewAggregateStats() *AggregateStats {
	return &AggregateStats{
		RoundsHistogram: make(map[int]int),
		Attacks:         make(map[combat.AttackKey]combat.AttackTally),
	}
}

func (a *AggregateStats) ensureMaps() {
	if a.RoundsHistogram == nil {
		a.RoundsHistogram = make(map[int]int)
	}
	if a.Attacks == nil {
		a.Attacks = make(map[combat.AttackKey]combat.AttackTally)
	}
}

// Add folds one fight into the aggregate.
//
// Postcondition: Runs grows by one and the outcome invariant holds.
func (a *AggregateStats) Add(r combat.FightResult) {
	a.ensureMaps()
	a.Runs++
	switch r.Winner {
	case combat.WinnerPC:
		a.PC.Wins++
	case combat.WinnerMonster:
		a.Monster.Wins++
	default:
		a.Draws++
	}
	if r.Diverged {
		a.Divergences++
	}

	rounds := int64(r.Rounds)
	a.RoundsSum += rounds
	a.RoundsSumSq += rounds * rounds
	a.RoundsHistogram[r.Rounds]++

	a.PC.addFight(r.PC)
	a.Monster.addFight(r.Monster)

	if r.Initiative.First == combat.SidePC {
		a.PC.InitiativeWins++
		a.PCFirst.add(r.Winner)
	} else {
		a.Monster.InitiativeWins++
		a.MonsterFirst.add(r.Winner)
	}

	for k, t := range r.Attacks {
		cur := a.Attacks[k]
		cur.Merge(t)
		a.Attacks[k] = cur
	}
}

// Merge adds other into a. Merge is associative and commutative.
func (a *AggregateStats) Merge(other *AggregateStats) {
	if other == nil {
		return
	}
	a.ensureMaps()
	a.Runs += other.Runs
	a.Draws += other.Draws
	a.Divergences += other.Divergences
	a.PC.merge(other.PC)
	a.Monster.merge(other.Monster)
	a.RoundsSum += other.RoundsSum
	a.RoundsSumSq += other.RoundsSumSq
	for r, n := range other.RoundsHistogram {
		a.RoundsHistogram[r] += n
	}
	for k, t := range other.Attacks {
		cur := a.Attacks[k]
		cur.Merge(t)
		a.Attacks[k] = cur
	}
	a.PCFirst.merge(other.PCFirst)
	a.MonsterFirst.merge(other.MonsterFirst)
}

// Consistent reports whether the outcome counters agree with Runs.
func (a *AggregateStats) Consistent() bool {
	return a.PC.Wins+a.Monster.Wins+a.Draws == a.Runs &&
		a.PCFirst.Total()+a.MonsterFirst.Total() == a.Runs &&
		a.PC.InitiativeWins+a.Monster.InitiativeWins == a.Runs
}

// Side returns the stats for s.
func (a *AggregateStats) Side(s combat.Side) SideStats {
	if s == combat.SideMonster {
		return a.Monster
	}
	return a.PC
}

// WinRate is the fraction of runs the PC won.
func (a *AggregateStats) WinRate() float64 { return ratio(int64(a.PC.Wins), int64(a.Runs)) }

// LossRate is the fraction of runs the monster won.
func (a *AggregateStats) LossRate() float64 { return ratio(int64(a.Monster.Wins), int64(a.Runs)) }

// DrawRate is the fraction of runs that ended in a draw.
func (a *AggregateStats) DrawRate() float64 { return ratio(int64(a.Draws), int64(a.Runs)) }

// DivergenceRate is the fraction of runs that hit the round cap.
func (a *AggregateStats) DivergenceRate() float64 {
	return ratio(int64(a.Divergences), int64(a.Runs))
}

// MeanRounds returns the mean fight length.
func (a *AggregateStats) MeanRounds() float64 { return ratio(a.RoundsSum, int64(a.Runs)) }

// RoundsVariance returns the population variance of fight length.
func (a *AggregateStats) RoundsVariance() float64 {
	return variance(a.RoundsSum, a.RoundsSumSq, a.Runs)
}

// RoundsStdDev returns the population standard deviation of fight length.
func (a *AggregateStats) RoundsStdDev() float64 { return math.Sqrt(a.RoundsVariance()) }

// MeanDamage returns the mean damage side s dealt per fight.
func (a *AggregateStats) MeanDamage(s combat.Side) float64 {
	return ratio(a.Side(s).DamageSum, int64(a.Runs))
}

// DamageStdDev returns the standard deviation of per-fight damage for side s.
func (a *AggregateStats) DamageStdDev(s combat.Side) float64 {
	st := a.Side(s)
	return math.Sqrt(variance(st.DamageSum, st.DamageSumSq, a.Runs))
}

// PerFight returns the mean attacks, hits, and misses per fight for side s.
func (a *AggregateStats) PerFight(s combat.Side) (attacks, hits, misses float64) {
	st := a.Side(s)
	n := int64(a.Runs)
	return ratio(int64(st.Attacks), n), ratio(int64(st.Hits), n), ratio(int64(st.Misses), n)
}

// MeanFightHitRate returns the average over fights of each fight's hit
// rate for side s. Unlike SideStats.HitRate, short fights weigh as much as
// long ones.
func (a *AggregateStats) MeanFightHitRate(s combat.Side) float64 {
	return ratio(a.Side(s).FightHitRateMicros, int64(a.Runs)) / 1e6
}

// WinRateWhenFirst returns P(s wins | s won initiative), or 0 when s never
// acted first.
func (a *AggregateStats) WinRateWhenFirst(s combat.Side) float64 {
	if s == combat.SideMonster {
		return ratio(int64(a.MonsterFirst.MonsterWins), int64(a.MonsterFirst.Total()))
	}
	return ratio(int64(a.PCFirst.PCWins), int64(a.PCFirst.Total()))
}

// AttackKeys returns the tallied attacks, PC first, then by name.
func (a *AggregateStats) AttackKeys() []combat.AttackKey {
	keys := make([]combat.AttackKey, 0, len(a.Attacks))
	for k := range a.Attacks {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Side != keys[j].Side {
			return keys[i].Side < keys[j].Side
		}
		return keys[i].Name < keys[j].Name
	})
	return keys
}

// RoundBuckets returns the observed fight lengths in ascending order.
func (a *AggregateStats) RoundBuckets() []int {
	out := make([]int, 0, len(a.RoundsHistogram))
	for r := range a.RoundsHistogram {
		out = append(out, r)
	}
	sort.Ints(out)
	return out
}

func ratio(num, den int64) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func variance(sum, sumSq int64, n int) float64 {
	if n == 0 {
		return 0
	}
	mean := float64(sum) / float64(n)
	v := float64(sumSq)/float64(n) - mean*mean
	if v < 0 {
		return 0
	}
	return v
}
