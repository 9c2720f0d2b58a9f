// Package report renders the post-negotiation debrief as markdown, HTML and
// PDF.
package report

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joelkehle/negotiation-lab/internal/negotiation"
)

// Source is the slice of the engine a debrief reads.
type Source interface {
	Simulation(ctx context.Context, id uuid.UUID) (negotiation.Simulation, error)
	Rounds(ctx context.Context, simID uuid.UUID) ([]negotiation.Round, error)
	Offers(ctx context.Context, simID uuid.UUID) ([]negotiation.Offer, error)
	Events(ctx context.Context, simID uuid.UUID) ([]negotiation.Event, error)
	ArbitrationOutcome(ctx context.Context, simID uuid.UUID) (negotiation.ArbitrationOutcome, error)
	PerformanceScores(ctx context.Context, simID uuid.UUID) ([]negotiation.PerformanceScore, error)
}

type Debrief struct {
	Simulation negotiation.Simulation
	Rounds     []negotiation.Round
	Offers     []negotiation.Offer
	Events     []negotiation.Event
	Outcome    *negotiation.ArbitrationOutcome
	Scores     []negotiation.PerformanceScore
}

// Load gathers everything a debrief shows. A missing arbitration outcome is
// normal for settled cases.
func Load(ctx context.Context, src Source, simID uuid.UUID) (Debrief, error) {
	sim, err := src.Simulation(ctx, simID)
	if err != nil {
		return Debrief{}, err
	}
	d := Debrief{Simulation: sim}
	if d.Rounds, err = src.Rounds(ctx, simID); err != nil {
		return Debrief{}, err
	}
	if d.Offers, err = src.Offers(ctx, simID); err != nil {
		return Debrief{}, err
	}
	if d.Events, err = src.Events(ctx, simID); err != nil {
		return Debrief{}, err
	}
	if d.Scores, err = src.PerformanceScores(ctx, simID); err != nil {
		return Debrief{}, err
	}
	outcome, err := src.ArbitrationOutcome(ctx, simID)
	switch {
	case err == nil:
		d.Outcome = &outcome
	case !isNotFound(err):
		return Debrief{}, err
	}
	return d, nil
}

func isNotFound(err error) bool {
	var ne *negotiation.Error
	return errors.As(err, &ne) && ne.Code == negotiation.CodeNotFound
}

// Markdown writes the debrief. Client ranges appear only once the
// simulation has ended.
func Markdown(d Debrief) string {
	sim := d.Simulation
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Negotiation Debrief\n\n")
	fmt.Fprintf(&sb, "- **Simulation:** %s\n", sim.ID)
	if sim.CaseType != "" {
		fmt.Fprintf(&sb, "- **Case type:** %s\n", sim.CaseType)
	}
	fmt.Fprintf(&sb, "- **Status:** %s\n", sim.Status)
	fmt.Fprintf(&sb, "- **Rounds played:** %d of %d\n\n", roundsPlayed(d.Rounds), sim.TotalRounds)

	sb.WriteString("## Result\n\n")
	sb.WriteString(resultLine(d))
	sb.WriteString("\n\n")

	if sim.Terminal() {
		sb.WriteString("## Client Ranges\n\n")
		sb.WriteString("| Side | Walk-away | Ideal |\n|---|---|---|\n")
		fmt.Fprintf(&sb, "| Plaintiff | %s | %s |\n", money(sim.PlaintiffMinAcceptable), money(sim.PlaintiffIdeal))
		fmt.Fprintf(&sb, "| Defendant | %s | %s |\n\n", money(sim.DefendantMaxAcceptable), money(sim.DefendantIdeal))
	}

	if len(d.Offers) > 0 {
		sb.WriteString("## Offers\n\n")
		sb.WriteString("| Round | Side | Type | Amount | Quality |\n|---|---|---|---|---|\n")
		for _, o := range d.Offers {
			fmt.Fprintf(&sb, "| %d | %s | %s | %s | %d |\n", o.RoundNumber, o.Role, o.OfferType, money(o.Amount), o.QualityScore)
		}
		sb.WriteString("\n")
	}

	if applied := appliedEvents(d.Events); len(applied) > 0 {
		sb.WriteString("## Events\n\n")
		for _, ev := range applied {
			fmt.Fprintf(&sb, "- Round %d, %s", ev.TriggerRound, strings.ReplaceAll(string(ev.Type), "_", " "))
			if ev.Description != "" {
				fmt.Fprintf(&sb, ": %s", ev.Description)
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	if d.Outcome != nil {
		o := d.Outcome
		sb.WriteString("## Arbitration\n\n")
		fmt.Fprintf(&sb, "%s\n\n", o.Rationale)
		sb.WriteString("| Factor | Value |\n|---|---|\n")
		fmt.Fprintf(&sb, "| Evidence strength | %.2f |\n", o.EvidenceStrength)
		fmt.Fprintf(&sb, "| Argument quality | %.2f |\n", o.ArgumentQuality)
		fmt.Fprintf(&sb, "| Negotiation history | %.2f |\n", o.NegotiationHistory)
		fmt.Fprintf(&sb, "| Variance | %.2f |\n\n", o.RandomVariance)
		if len(o.LessonsLearned) > 0 {
			sb.WriteString("### Lessons\n\n")
			for _, l := range o.LessonsLearned {
				fmt.Fprintf(&sb, "- %s\n", l)
			}
			sb.WriteString("\n")
		}
	}

	if len(d.Scores) > 0 {
		sb.WriteString("## Performance\n\n")
		sb.WriteString("| Scope | Team | Total | Rank | Percentile |\n|---|---|---|---|---|\n")
		for _, s := range d.Scores {
			scope := "member " + shortID(s.UserID)
			if s.TeamLevel() {
				scope = "team"
			}
			fmt.Fprintf(&sb, "| %s | %s | %.1f | %d | %.0f |\n", scope, sideOf(sim, s.TeamID), s.TotalScore, s.Rank, s.Percentile)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func resultLine(d Debrief) string {
	sim := d.Simulation
	for _, r := range d.Rounds {
		if r.SettlementReached {
			return fmt.Sprintf("Settled in round %d.", r.RoundNumber)
		}
	}
	if d.Outcome != nil {
		return fmt.Sprintf("Arbitrated: %s, award %s.", strings.ReplaceAll(string(d.Outcome.OutcomeType), "_", " "), money(d.Outcome.AwardAmount))
	}
	if sim.Terminal() {
		return "Ended without settlement."
	}
	return fmt.Sprintf("In progress, round %d.", sim.CurrentRound)
}

func roundsPlayed(rounds []negotiation.Round) int {
	n := 0
	for _, r := range rounds {
		if r.Status != negotiation.RoundPending {
			n++
		}
	}
	return n
}

func appliedEvents(events []negotiation.Event) []negotiation.Event {
	var out []negotiation.Event
	for _, ev := range events {
		if ev.Applied() && ev.Type != negotiation.EventRoundAdvanced {
			out = append(out, ev)
		}
	}
	return out
}

func sideOf(sim negotiation.Simulation, teamID uuid.UUID) string {
	if role, ok := sim.RoleOf(teamID); ok {
		return string(role)
	}
	return shortID(teamID)
}

func shortID(id uuid.UUID) string {
	return id.String()[:8]
}

func money(d decimal.Decimal) string {
	s := d.Round(0).StringFixed(0)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	var out []byte
	for i := range len(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, s[i])
	}
	if neg {
		return "-$" + string(out)
	}
	return "$" + string(out)
}
