package negotiation

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func settledHarness(t *testing.T) (*harness, Simulation) {
	t.Helper()
	h := newHarness(t)
	sim := h.startNew(6)
	h.mustOffer(sim.ID, h.plaintiff, 200000)
	h.mustOffer(sim.ID, h.defendant, 195000)
	return h, sim
}

func TestScorePerformanceTeamRows(t *testing.T) {
	h := newHarness(t)
	sim := h.startNew(6)
	_, err := h.e.ScorePerformance(h.ctx, sim.ID)
	wantCode(t, err, CodePrecondition)

	h.mustOffer(sim.ID, h.plaintiff, 200000)
	h.mustOffer(sim.ID, h.defendant, 195000)

	scores, err := h.e.ScorePerformance(h.ctx, sim.ID)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if len(scores) != 2 {
		t.Fatalf("expected one row per team, got %d", len(scores))
	}
	sawFirst := false
	for _, s := range scores {
		if !s.TeamLevel() {
			t.Fatalf("without members only team rows exist: %+v", s)
		}
		if s.TotalScore < 0 || s.TotalScore > 100 || s.Percentile < 0 || s.Percentile > 100 {
			t.Fatalf("score out of bounds: %+v", s)
		}
		if s.SettlementQuality <= 0 {
			t.Fatalf("a settled case earns settlement quality: %+v", s)
		}
		if s.Rank == 1 {
			sawFirst = true
		}
	}
	if !sawFirst {
		t.Fatal("some team must rank first")
	}

	again, _ := h.e.ScorePerformance(h.ctx, sim.ID)
	stored, _ := h.e.PerformanceScores(h.ctx, sim.ID)
	if len(again) != 2 || len(stored) != 2 {
		t.Fatalf("rescoring must replace, got %d returned and %d stored", len(again), len(stored))
	}
}

func TestScorePerformanceWithMembers(t *testing.T) {
	h := newHarness(t)
	alice, bob := uuid.New(), uuid.New()
	h.dir.members[h.plaintiff] = []uuid.UUID{alice, bob}
	sim := h.startNew(6)

	if _, err := h.e.SubmitOffer(h.ctx, SubmitOfferInput{SimulationID: sim.ID, TeamID: h.plaintiff, SubmittedBy: alice, Amount: dec(200000), Justification: testJustification}); err != nil {
		t.Fatalf("offer: %v", err)
	}
	h.mustOffer(sim.ID, h.defendant, 195000)

	scores, err := h.e.ScorePerformance(h.ctx, sim.ID)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	byUser := map[uuid.UUID]PerformanceScore{}
	teams := 0
	for _, s := range scores {
		if s.TeamLevel() {
			teams++
			continue
		}
		byUser[s.UserID] = s
	}
	if teams != 2 || len(byUser) != 2 {
		t.Fatalf("expected 2 team rows and 2 member rows, got %d and %d", teams, len(byUser))
	}
	if byUser[alice].Collaboration <= byUser[bob].Collaboration {
		t.Fatalf("the member who submitted should collaborate more: %v vs %v", byUser[alice].Collaboration, byUser[bob].Collaboration)
	}
	if byUser[alice].LegalStrategy <= byUser[bob].LegalStrategy {
		t.Fatal("own offers weigh more than team offers")
	}
}

func TestAdjustScore(t *testing.T) {
	h, sim := settledHarness(t)
	scores, err := h.e.ScorePerformance(h.ctx, sim.ID)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	target := scores[0]

	_, err = h.e.AdjustScore(h.ctx, target.ID, 11, "")
	wantCode(t, err, CodeValidation)
	_, err = h.e.AdjustScore(h.ctx, uuid.New(), 1, "")
	wantCode(t, err, CodeNotFound)

	adjusted, err := h.e.AdjustScore(h.ctx, target.ID, -5, "missed the client call")
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	want := target.TotalScore - 5
	if want < 0 {
		want = 0
	}
	if adjusted.TotalScore != want || adjusted.InstructorNote != "missed the client call" {
		t.Fatalf("adjusted total = %v, want %v", adjusted.TotalScore, want)
	}

	rescored, _ := h.e.ScorePerformance(h.ctx, sim.ID)
	kept := false
	for _, s := range rescored {
		if s.TeamID == target.TeamID && s.TeamLevel() && s.InstructorAdjustment == -5 {
			kept = true
		}
	}
	if !kept {
		t.Fatal("rescoring must keep instructor adjustments")
	}
}

func TestRankScoresSharesTies(t *testing.T) {
	scores := []PerformanceScore{
		{TotalScore: 80},
		{TotalScore: 80},
		{TotalScore: 60},
	}
	rankScores(scores)
	if scores[0].Rank != 1 || scores[1].Rank != 1 || scores[2].Rank != 3 {
		t.Fatalf("ranks = %d %d %d", scores[0].Rank, scores[1].Rank, scores[2].Rank)
	}
	if scores[0].Percentile != 100 || scores[2].Percentile != 0 {
		t.Fatalf("percentiles = %v %v", scores[0].Percentile, scores[2].Percentile)
	}
}

func TestSettlementAmountIsMidpoint(t *testing.T) {
	if got := settlementAmount(dec(200000), dec(195000)); !got.Equal(decimal.NewFromInt(197500)) {
		t.Fatalf("midpoint = %s", got)
	}
}
