package report

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/cory-johannsen/duelsim/internal/game/combat"
	"github.com/cory-johannsen/duelsim/internal/game/sim"
)

// TextSink writes a human-readable summary of each batch.
type TextSink struct {
	w io.Writer
	// Replays is the number of fights whose round records are narrated after
	// the summary. Fights without records are skipped.
	Replays int
}

// NewTextSink returns a TextSink writing to w.
func NewTextSink(w io.Writer) *TextSink {
	return &TextSink{w: w}
}

// Consume writes the summary of b.
func (s *TextSink) Consume(ctx context.Context, b *sim.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var sb strings.Builder
	writeSummary(&sb, b)
	if s.Replays > 0 {
		writeReplays(&sb, b, s.Replays)
	}
	if _, err := io.WriteString(s.w, sb.String()); err != nil {
		return fmt.Errorf("writing text report: %w", err)
	}
	return nil
}

func header(sb *strings.Builder, title string) {
	fmt.Fprintf(sb, "\n=== %s ===\n", title)
}

func pct(n, total int) string {
	if total == 0 {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", float64(n)/float64(total)*100)
}

func writeSummary(sb *strings.Builder, b *sim.Batch) {
	st := b.Stats
	total := st.Runs

	header(sb, "Combat Setup")
	fmt.Fprintf(sb, "Batch:      %s\n", b.ID)
	fmt.Fprintf(sb, "PC:         %s (%s)\n", b.PC, b.Setup.PCPolicy)
	fmt.Fprintf(sb, "Monster:    %s (%s)\n", b.Monster, b.Setup.MonsterPolicy)
	fmt.Fprintf(sb, "Runs:       %d\n", total)
	fmt.Fprintf(sb, "Seed:       %d\n", b.Setup.Seed)
	fmt.Fprintf(sb, "Round cap:  %d\n", b.Setup.RoundCap)
	fmt.Fprintf(sb, "Init ties:  %s\n", b.Setup.Tie)

	header(sb, "Wins and Losses")
	if total == 0 {
		sb.WriteString("No fights run.\n")
		return
	}
	fmt.Fprintf(sb, "PC wins:      %d (%s)\n", st.PC.Wins, pct(st.PC.Wins, total))
	fmt.Fprintf(sb, "Monster wins: %d (%s)\n", st.Monster.Wins, pct(st.Monster.Wins, total))
	fmt.Fprintf(sb, "Draws:        %d (%s)\n", st.Draws, pct(st.Draws, total))
	if st.Divergences > 0 {
		fmt.Fprintf(sb, "Round cap reached in %d fights (%s)\n", st.Divergences, pct(st.Divergences, total))
	}

	header(sb, "Initiative")
	fmt.Fprintf(sb, "PC wins init:      %d (%s)\n", st.PC.InitiativeWins, pct(st.PC.InitiativeWins, total))
	fmt.Fprintf(sb, "Monster wins init: %d (%s)\n", st.Monster.InitiativeWins, pct(st.Monster.InitiativeWins, total))
	tw := tabwriter.NewWriter(sb, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "first\tpc wins\tmonster wins\tdraws\tP(first wins)")
	fmt.Fprintf(tw, "pc\t%d\t%d\t%d\t%.1f%%\n", st.PCFirst.PCWins, st.PCFirst.MonsterWins, st.PCFirst.Draws, st.WinRateWhenFirst(combat.SidePC)*100)
	fmt.Fprintf(tw, "monster\t%d\t%d\t%d\t%.1f%%\n", st.MonsterFirst.PCWins, st.MonsterFirst.MonsterWins, st.MonsterFirst.Draws, st.WinRateWhenFirst(combat.SideMonster)*100)
	tw.Flush()

	header(sb, "Hits and Misses")
	for _, side := range []combat.Side{combat.SidePC, combat.SideMonster} {
		ss := st.Side(side)
		label := b.PC
		if side == combat.SideMonster {
			label = b.Monster
		}
		fmt.Fprintf(sb, "%s total attacks: %d\n", label, ss.Attacks)
		fmt.Fprintf(sb, "  Hits:   %d\n", ss.Hits)
		fmt.Fprintf(sb, "  Misses: %d\n", ss.Misses)
		fmt.Fprintf(sb, "  Crits:  %d\n", ss.Crits)
		if ss.Attacks > 0 {
			fmt.Fprintf(sb, "  Hit rate: %.1f%%\n", ss.HitRate()*100)
			fmt.Fprintf(sb, "  Mean hit rate per fight: %.1f%%\n", st.MeanFightHitRate(side)*100)
		} else {
			sb.WriteString("  Hit rate: n/a\n")
		}
		attacks, hits, misses := st.PerFight(side)
		fmt.Fprintf(sb, "  Per fight: %.2f attacks, %.2f hits, %.2f misses\n", attacks, hits, misses)
		fmt.Fprintf(sb, "  Damage per fight: %.2f (sd %.2f)\n", st.MeanDamage(side), st.DamageStdDev(side))
	}

	header(sb, "Attacks")
	tw = tabwriter.NewWriter(sb, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "side\tattack\tuses\thit rate\tcrits\tdmg/use\tdmg/hit")
	for _, k := range st.AttackKeys() {
		t := st.Attacks[k]
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.1f%%\t%d\t%.2f\t%.2f\n",
			k.Side, k.Name, t.Attempts, t.HitRate()*100, t.Crits, t.MeanDamage(), t.MeanDamagePerHit())
	}
	tw.Flush()

	header(sb, "Rounds per replication")
	fmt.Fprintf(sb, "Average number of rounds per replication: %.2f (sd %.2f)\n", st.MeanRounds(), st.RoundsStdDev())
	buckets := st.RoundBuckets()
	if len(buckets) > 0 {
		fmt.Fprintf(sb, "Shortest: %d  Longest: %d\n", buckets[0], buckets[len(buckets)-1])
	}
}

func writeReplays(sb *strings.Builder, b *sim.Batch, n int) {
	shown := 0
	for _, f := range b.Fights {
		if shown == n {
			return
		}
		if len(f.Records) == 0 {
			continue
		}
		header(sb, fmt.Sprintf("Replay of run %d", f.Run))
		first := b.PC
		if f.Initiative.First == combat.SideMonster {
			first = b.Monster
		}
		fmt.Fprintf(sb, "Initiative: %s %d, %s %d; %s acts first\n", b.PC, f.Initiative.PC, b.Monster, f.Initiative.Monster, first)
		for _, r := range f.Records {
			sb.WriteString(r.Narrative())
			sb.WriteByte('\n')
		}
		outcome := "Draw"
		switch f.Winner {
		case combat.WinnerPC:
			outcome = b.PC + " wins"
		case combat.WinnerMonster:
			outcome = b.Monster + " wins"
		}
		if f.Diverged {
			outcome += " (round cap)"
		}
		fmt.Fprintf(sb, "%s after %d rounds\n", outcome, f.Rounds)
		shown++
	}
}

// WriteBatchList writes one line per stored batch.
func WriteBatchList(w io.Writer, batches []*StoredBatch) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "id\tstarted\tpc\tmonster\truns\tpc win\tmonster win\tdraw\tmean rounds")
	for _, b := range batches {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%.1f%%\t%.1f%%\t%.1f%%\t%.2f\n",
			b.ID, b.StartedAt.Format("2006-01-02 15:04:05"), b.PC, b.Monster, b.Runs,
			b.PCWinRate*100, b.MonsterWinRate*100, b.DrawRate*100, b.MeanRounds)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("writing batch list: %w", err)
	}
	return nil
}
