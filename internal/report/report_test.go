package report

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joelkehle/negotiation-lab/internal/negotiation"
)

func sampleDebrief(status negotiation.SimulationStatus) Debrief {
	now := time.Date(2026, 2, 17, 0, 0, 0, 0, time.UTC)
	sim := negotiation.Simulation{
		ID:                     uuid.New(),
		CaseType:               "personal_injury",
		PlaintiffTeamID:        uuid.New(),
		DefendantTeamID:        uuid.New(),
		PlaintiffMinAcceptable: decimal.NewFromInt(150000),
		PlaintiffIdeal:         decimal.NewFromInt(300000),
		DefendantIdeal:         decimal.NewFromInt(100000),
		DefendantMaxAcceptable: decimal.NewFromInt(250000),
		TotalRounds:            6,
		CurrentRound:           1,
		Status:                 status,
	}
	return Debrief{
		Simulation: sim,
		Rounds: []negotiation.Round{{
			ID: uuid.New(), SimulationID: sim.ID, RoundNumber: 1,
			Status: negotiation.RoundCompleted, SettlementReached: status == negotiation.SimulationCompleted,
		}},
		Offers: []negotiation.Offer{
			{RoundNumber: 1, Role: negotiation.RolePlaintiff, TeamID: sim.PlaintiffTeamID, OfferType: negotiation.OfferInitialDemand, Amount: decimal.NewFromInt(200000), QualityScore: 72},
			{RoundNumber: 1, Role: negotiation.RoleDefendant, TeamID: sim.DefendantTeamID, OfferType: negotiation.OfferInitialDemand, Amount: decimal.NewFromInt(195000), QualityScore: 64},
		},
		Events: []negotiation.Event{
			{Type: negotiation.EventMediaAttention, TriggerRound: 1, TriggeredAt: &now, Description: "Local press picked up the story."},
			{Type: negotiation.EventRoundAdvanced, TriggerRound: 1, TriggeredAt: &now},
		},
		Scores: []negotiation.PerformanceScore{
			{TeamID: sim.PlaintiffTeamID, TotalScore: 71.5, Rank: 1, Percentile: 100},
		},
	}
}

func TestMarkdownSettled(t *testing.T) {
	md := Markdown(sampleDebrief(negotiation.SimulationCompleted))
	for _, want := range []string{
		"# Negotiation Debrief",
		"Settled in round 1.",
		"| Plaintiff | $150,000 | $300,000 |",
		"| 1 | plaintiff | initial_demand | $200,000 | 72 |",
		"media attention: Local press picked up the story.",
		"| team | plaintiff | 71.5 | 1 | 100 |",
	} {
		if !strings.Contains(md, want) {
			t.Fatalf("markdown missing %q:\n%s", want, md)
		}
	}
	if strings.Contains(md, "round advanced") {
		t.Fatalf("round_advanced events should be left out:\n%s", md)
	}
}

func TestMarkdownHidesRangesWhileRunning(t *testing.T) {
	md := Markdown(sampleDebrief(negotiation.SimulationActive))
	if strings.Contains(md, "Client Ranges") || strings.Contains(md, "$300,000") {
		t.Fatalf("ranges must stay hidden before the end:\n%s", md)
	}
	if !strings.Contains(md, "In progress, round 1.") {
		t.Fatalf("expected in-progress result line:\n%s", md)
	}
}

func TestMarkdownArbitration(t *testing.T) {
	d := sampleDebrief(negotiation.SimulationArbitration)
	d.Outcome = &negotiation.ArbitrationOutcome{
		AwardAmount:    decimal.NewFromInt(187500),
		OutcomeType:    negotiation.OutcomeSplitDecision,
		Rationale:      "The arbitrator weighed the evidence.",
		LessonsLearned: []string{"Anchor early."},
	}
	md := Markdown(d)
	for _, want := range []string{"Arbitrated: split decision, award $187,500.", "## Arbitration", "- Anchor early."} {
		if !strings.Contains(md, want) {
			t.Fatalf("markdown missing %q:\n%s", want, md)
		}
	}
}

func TestHTMLRendersTablesAndPageBreak(t *testing.T) {
	d := sampleDebrief(negotiation.SimulationArbitration)
	d.Outcome = &negotiation.ArbitrationOutcome{OutcomeType: negotiation.OutcomeNoAward, Rationale: "No award."}
	out, err := HTML(Markdown(d))
	if err != nil {
		t.Fatalf("html: %v", err)
	}
	if !strings.Contains(out, "<table>") {
		t.Fatalf("expected GFM table, got: %s", out)
	}
	if !strings.Contains(out, `<h2 data-section="arbitration">Arbitration</h2>`) {
		t.Fatalf("expected arbitration page-break hook, got: %s", out)
	}
}

func TestMoney(t *testing.T) {
	for in, want := range map[int64]string{0: "$0", 999: "$999", 1000: "$1,000", 1234567: "$1,234,567", -2500: "-$2,500"} {
		if got := money(decimal.NewFromInt(in)); got != want {
			t.Fatalf("money(%d) = %q, want %q", in, got, want)
		}
	}
}
