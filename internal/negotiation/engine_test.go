package negotiation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var testStart = time.Date(2026, 2, 17, 0, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeDirectory struct {
	teams   map[uuid.UUID]Team
	members map[uuid.UUID][]uuid.UUID
}

func (d *fakeDirectory) Team(_ context.Context, id uuid.UUID) (Team, error) {
	t, ok := d.teams[id]
	if !ok {
		return Team{}, notFound("team")
	}
	return t, nil
}

func (d *fakeDirectory) AssignedToCase(_ context.Context, teamID, caseID uuid.UUID) (bool, error) {
	t, ok := d.teams[teamID]
	return ok && t.CaseID == caseID, nil
}

func (d *fakeDirectory) Membership(_ context.Context, userID, teamID uuid.UUID) (bool, error) {
	for _, u := range d.members[teamID] {
		if u == userID {
			return true, nil
		}
	}
	return false, nil
}

func (d *fakeDirectory) TeamMembers(_ context.Context, teamID uuid.UUID) ([]uuid.UUID, error) {
	return d.members[teamID], nil
}

type fakeDocuments struct {
	mu   sync.Mutex
	docs map[uuid.UUID]Document
}

func (s *fakeDocuments) Document(_ context.Context, id uuid.UUID) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok {
		return Document{}, notFound("document")
	}
	return d, nil
}

func (s *fakeDocuments) SetAccessLevel(_ context.Context, id uuid.UUID, level string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok {
		return notFound("document")
	}
	d.AccessLevel = level
	s.docs[id] = d
	return nil
}

type harness struct {
	t         *testing.T
	ctx       context.Context
	e         *Engine
	clock     *testClock
	dir       *fakeDirectory
	docs      *fakeDocuments
	caseID    uuid.UUID
	plaintiff uuid.UUID
	defendant uuid.UUID
}

type harnessOption func(*Config, *Deps)

func withNarrator(n Narrator) harnessOption {
	return func(_ *Config, d *Deps) { d.Narrator = n }
}

func withRepository(r Repository) harnessOption {
	return func(_ *Config, d *Deps) { d.Repository = r }
}

func withConfig(fn func(*Config)) harnessOption {
	return func(c *Config, _ *Deps) { fn(c) }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	clock := &testClock{now: testStart}
	caseID := uuid.New()
	p := Team{ID: uuid.New(), CaseID: caseID, Name: "Plaintiff counsel", Role: RolePlaintiff}
	d := Team{ID: uuid.New(), CaseID: caseID, Name: "Defense counsel", Role: RoleDefendant}
	dir := &fakeDirectory{
		teams:   map[uuid.UUID]Team{p.ID: p, d.ID: d},
		members: map[uuid.UUID][]uuid.UUID{},
	}
	docs := &fakeDocuments{docs: map[uuid.UUID]Document{}}
	cfg := Config{RandomSeed: 7, Clock: clock.Now, NarratorTimeout: 100 * time.Millisecond}
	deps := Deps{Directory: dir, Documents: docs}
	for _, opt := range opts {
		opt(&cfg, &deps)
	}
	e, err := NewEngine(context.Background(), cfg, deps)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return &harness{t: t, ctx: context.Background(), e: e, clock: clock, dir: dir, docs: docs, caseID: caseID, plaintiff: p.ID, defendant: d.ID}
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

// standardInput: plaintiff 150k..300k, defendant 100k..250k.
func (h *harness) standardInput(rounds int) CreateSimulationInput {
	return CreateSimulationInput{
		CaseID:                 h.caseID,
		CaseType:               "personal_injury",
		TotalRounds:            rounds,
		PlaintiffMinAcceptable: dec(150000),
		PlaintiffIdeal:         dec(300000),
		DefendantIdeal:         dec(100000),
		DefendantMaxAcceptable: dec(250000),
	}
}

func (h *harness) create(rounds int) Simulation {
	h.t.Helper()
	sim, err := h.e.CreateSimulation(h.ctx, h.standardInput(rounds))
	if err != nil {
		h.t.Fatalf("create simulation: %v", err)
	}
	return sim
}

func (h *harness) startNew(rounds int) Simulation {
	h.t.Helper()
	sim := h.create(rounds)
	for _, team := range []uuid.UUID{h.plaintiff, h.defendant} {
		if _, err := h.e.AssignTeam(h.ctx, sim.ID, team); err != nil {
			h.t.Fatalf("assign team: %v", err)
		}
	}
	sim, err := h.e.StartSimulation(h.ctx, sim.ID)
	if err != nil {
		h.t.Fatalf("start simulation: %v", err)
	}
	return sim
}

const testJustification = "Our client has documented damages and the liability evidence supports this figure in good faith."

func (h *harness) offer(simID, teamID uuid.UUID, amount int64) (SubmitOfferResult, error) {
	return h.e.SubmitOffer(h.ctx, SubmitOfferInput{
		SimulationID:  simID,
		TeamID:        teamID,
		Amount:        dec(amount),
		Justification: testJustification,
	})
}

func (h *harness) mustOffer(simID, teamID uuid.UUID, amount int64) SubmitOfferResult {
	h.t.Helper()
	res, err := h.offer(simID, teamID, amount)
	if err != nil {
		h.t.Fatalf("submit offer %d: %v", amount, err)
	}
	return res
}

func wantCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	if got := CodeOf(err); got != code {
		t.Fatalf("expected %s error, got %s (%v)", code, got, err)
	}
}

func TestSettlementCompletesSimulation(t *testing.T) {
	h := newHarness(t)
	sim := h.startNew(6)

	first := h.mustOffer(sim.ID, h.plaintiff, 200000)
	if first.Settled || first.Round.Status != RoundPlaintiffSubmitted {
		t.Fatalf("unexpected first result: settled=%v status=%s", first.Settled, first.Round.Status)
	}
	if first.Feedback == nil || first.Feedback.Source != SourceRange {
		t.Fatalf("expected range feedback on first offer, got %+v", first.Feedback)
	}
	if first.Offer.OfferType != OfferInitialDemand {
		t.Fatalf("round one offer type = %s", first.Offer.OfferType)
	}

	second := h.mustOffer(sim.ID, h.defendant, 195000)
	if !second.Settled {
		t.Fatal("expected settlement at 200k/195k")
	}
	if second.Simulation.Status != SimulationCompleted || second.Simulation.EndedAt == nil {
		t.Fatalf("simulation should be completed, got %s", second.Simulation.Status)
	}
	if second.Round.Status != RoundCompleted || !second.Round.SettlementReached {
		t.Fatalf("round should be completed with settlement: %+v", second.Round)
	}
	if second.Arbitration != nil {
		t.Fatal("settlement must not produce an arbitration outcome")
	}

	fb, err := h.e.Feedback(h.ctx, sim.ID, uuid.Nil)
	if err != nil {
		t.Fatalf("feedback: %v", err)
	}
	settlements := 0
	for _, f := range fb {
		if f.Type == FeedbackSettlementSatisfaction {
			settlements++
		}
	}
	if settlements != 2 {
		t.Fatalf("expected settlement feedback for both teams, got %d", settlements)
	}
	if _, err := h.e.ArbitrationOutcome(h.ctx, sim.ID); CodeOf(err) != CodeNotFound {
		t.Fatalf("settled simulation should have no outcome, got %v", err)
	}
}

func TestSixRoundsWithoutSettlementArbitrates(t *testing.T) {
	h := newHarness(t)
	sim := h.startNew(6)

	for round := 1; round <= 6; round++ {
		h.mustOffer(sim.ID, h.plaintiff, 300000)
		res := h.mustOffer(sim.ID, h.defendant, 100000)
		if round < 6 {
			if res.Round.Status != RoundBothSubmitted {
				t.Fatalf("round %d should wait in both_submitted, got %s", round, res.Round.Status)
			}
			if _, err := h.e.CompleteRound(h.ctx, sim.ID); err != nil {
				t.Fatalf("complete round %d: %v", round, err)
			}
			next, err := h.e.AdvanceRound(h.ctx, sim.ID)
			if err != nil {
				t.Fatalf("advance from round %d: %v", round, err)
			}
			if next.CurrentRound != round+1 {
				t.Fatalf("expected round %d, got %d", round+1, next.CurrentRound)
			}
			continue
		}
		if res.Arbitration == nil {
			t.Fatal("final round without settlement should arbitrate")
		}
		if res.Simulation.Status != SimulationArbitration {
			t.Fatalf("expected arbitration status, got %s", res.Simulation.Status)
		}
		if len(res.Arbitration.Rationale) < 100 {
			t.Fatalf("rationale too short: %q", res.Arbitration.Rationale)
		}
		if res.Offer.OfferType != OfferFinal {
			t.Fatalf("final round offer type = %s", res.Offer.OfferType)
		}
	}

	outcome, err := h.e.ArbitrationOutcome(h.ctx, sim.ID)
	if err != nil {
		t.Fatalf("outcome: %v", err)
	}
	ceiling := dec(450000)
	if outcome.AwardAmount.IsNegative() || outcome.AwardAmount.GreaterThan(ceiling) {
		t.Fatalf("award %s out of bounds", outcome.AwardAmount)
	}

	again, err := h.e.RecalculateArbitration(h.ctx, sim.ID)
	if err != nil {
		t.Fatalf("recalculate: %v", err)
	}
	if again.ID != outcome.ID {
		t.Fatal("recalculation must overwrite the single outcome")
	}
	if _, err := h.e.TriggerArbitration(h.ctx, sim.ID); CodeOf(err) != CodePrecondition {
		t.Fatalf("arbitrating an ended simulation should fail, got %v", err)
	}
}

func TestStartRequiresConsistentSetup(t *testing.T) {
	h := newHarness(t)
	in := h.standardInput(6)
	in.PlaintiffMinAcceptable = dec(260000)
	sim, err := h.e.CreateSimulation(h.ctx, in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, team := range []uuid.UUID{h.plaintiff, h.defendant} {
		if _, err := h.e.AssignTeam(h.ctx, sim.ID, team); err != nil {
			t.Fatalf("assign: %v", err)
		}
	}

	problems, err := h.e.Readiness(h.ctx, sim.ID)
	if err != nil {
		t.Fatalf("readiness: %v", err)
	}
	if len(problems) != 1 || problems[0] != "No overlap in acceptable settlement ranges" {
		t.Fatalf("unexpected problems: %v", problems)
	}

	_, err = h.e.StartSimulation(h.ctx, sim.ID)
	wantCode(t, err, CodeConsistency)
	var ne *Error
	if !errors.As(err, &ne) || len(ne.Problems) != 1 {
		t.Fatalf("consistency error should list the problem: %v", err)
	}
	got, _ := h.e.Simulation(h.ctx, sim.ID)
	if got.Status != SimulationSetup {
		t.Fatalf("status should stay setup, got %s", got.Status)
	}

	if _, err := h.e.UpdateThresholds(h.ctx, sim.ID, ThresholdsInput{
		PlaintiffMinAcceptable: dec(150000),
		PlaintiffIdeal:         dec(300000),
		DefendantIdeal:         dec(100000),
		DefendantMaxAcceptable: dec(250000),
	}); err != nil {
		t.Fatalf("update thresholds: %v", err)
	}
	if _, err := h.e.StartSimulation(h.ctx, sim.ID); err != nil {
		t.Fatalf("start after fix: %v", err)
	}
	_, err = h.e.UpdateThresholds(h.ctx, sim.ID, ThresholdsInput{})
	wantCode(t, err, CodePrecondition)
}

func TestReadinessListsEveryProblem(t *testing.T) {
	h := newHarness(t)
	sim, err := h.e.CreateSimulation(h.ctx, CreateSimulationInput{CaseID: h.caseID, TotalRounds: 3})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	problems, _ := h.e.Readiness(h.ctx, sim.ID)
	if len(problems) != 4 {
		t.Fatalf("expected four problems, got %v", problems)
	}
}

func TestCreateSimulationValidation(t *testing.T) {
	h := newHarness(t)

	in := h.standardInput(11)
	_, err := h.e.CreateSimulation(h.ctx, in)
	wantCode(t, err, CodeValidation)

	in = h.standardInput(6)
	in.DefendantIdeal = dec(-1)
	_, err = h.e.CreateSimulation(h.ctx, in)
	wantCode(t, err, CodeValidation)

	h.create(6)
	_, err = h.e.CreateSimulation(h.ctx, h.standardInput(6))
	wantCode(t, err, CodePrecondition)
}

func TestAssignTeamRejectsForeignTeam(t *testing.T) {
	h := newHarness(t)
	sim := h.create(6)
	stranger := Team{ID: uuid.New(), CaseID: uuid.New(), Role: RolePlaintiff}
	h.dir.teams[stranger.ID] = stranger

	_, err := h.e.AssignTeam(h.ctx, sim.ID, stranger.ID)
	wantCode(t, err, CodeValidation)
	_, err = h.e.AssignTeam(h.ctx, sim.ID, uuid.New())
	wantCode(t, err, CodeNotFound)
}

func TestSubmitOfferRejections(t *testing.T) {
	h := newHarness(t)
	sim := h.startNew(6)

	cases := []struct {
		name  string
		in    SubmitOfferInput
		code  string
		field string
	}{
		{"short justification", SubmitOfferInput{SimulationID: sim.ID, TeamID: h.plaintiff, Amount: dec(200000), Justification: "too short"}, CodeValidation, "justification"},
		{"blank justification", SubmitOfferInput{SimulationID: sim.ID, TeamID: h.plaintiff, Amount: dec(200000), Justification: strings.Repeat(" ", 60)}, CodeValidation, "justification"},
		{"zero amount", SubmitOfferInput{SimulationID: sim.ID, TeamID: h.plaintiff, Amount: decimal.Zero, Justification: testJustification}, CodeValidation, "amount"},
		{"foreign team", SubmitOfferInput{SimulationID: sim.ID, TeamID: uuid.New(), Amount: dec(200000), Justification: testJustification}, CodeValidation, "team_id"},
		{"implausible amount", SubmitOfferInput{SimulationID: sim.ID, TeamID: h.plaintiff, Amount: dec(700000), Justification: testJustification}, CodeValidation, "amount"},
		{"non member", SubmitOfferInput{SimulationID: sim.ID, TeamID: h.plaintiff, SubmittedBy: uuid.New(), Amount: dec(200000), Justification: testJustification}, CodeValidation, "submitted_by"},
		{"unknown simulation", SubmitOfferInput{SimulationID: uuid.New(), TeamID: h.plaintiff, Amount: dec(200000), Justification: testJustification}, CodeNotFound, ""},
	}
	for _, tc := range cases {
		_, err := h.e.SubmitOffer(h.ctx, tc.in)
		var ne *Error
		if !errors.As(err, &ne) || ne.Code != tc.code || ne.Field != tc.field {
			t.Fatalf("%s: got %v, want %s/%s", tc.name, err, tc.code, tc.field)
		}
	}

	h.mustOffer(sim.ID, h.plaintiff, 280000)
	_, err := h.offer(sim.ID, h.plaintiff, 270000)
	var ne *Error
	if !errors.As(err, &ne) || ne.Field != "team_id" {
		t.Fatalf("duplicate offer should be rejected on team_id, got %v", err)
	}
	offers, _ := h.e.Offers(h.ctx, sim.ID)
	if len(offers) != 1 {
		t.Fatalf("rejected offers must not be stored, got %d", len(offers))
	}
}

func TestSubmitAfterDeadlineRejected(t *testing.T) {
	h := newHarness(t)
	sim := h.startNew(6)
	h.clock.Advance(49 * time.Hour)

	_, err := h.offer(sim.ID, h.plaintiff, 280000)
	var ne *Error
	if !errors.As(err, &ne) || ne.Field != "deadline" {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestPauseBlocksOffersAndResumeExtendsDeadline(t *testing.T) {
	h := newHarness(t)
	sim := h.startNew(6)
	rounds, _ := h.e.Rounds(h.ctx, sim.ID)
	deadline := rounds[0].Deadline

	if _, err := h.e.PauseSimulation(h.ctx, sim.ID); err != nil {
		t.Fatalf("pause: %v", err)
	}
	_, err := h.offer(sim.ID, h.plaintiff, 280000)
	wantCode(t, err, CodePrecondition)

	h.clock.Advance(10 * time.Hour)
	if _, err := h.e.ResumeSimulation(h.ctx, sim.ID); err != nil {
		t.Fatalf("resume: %v", err)
	}
	rounds, _ = h.e.Rounds(h.ctx, sim.ID)
	if !rounds[0].Deadline.Equal(deadline.Add(10 * time.Hour)) {
		t.Fatalf("deadline should move by the paused span: %s -> %s", deadline, rounds[0].Deadline)
	}
	h.mustOffer(sim.ID, h.plaintiff, 280000)

	_, err = h.e.ResumeSimulation(h.ctx, sim.ID)
	wantCode(t, err, CodePrecondition)
}

func TestPausedRoundIsNeverOverdue(t *testing.T) {
	h := newHarness(t)
	sim := h.startNew(1)
	h.mustOffer(sim.ID, h.plaintiff, 280000)
	if _, err := h.e.PauseSimulation(h.ctx, sim.ID); err != nil {
		t.Fatalf("pause: %v", err)
	}

	h.clock.Advance(72 * time.Hour)
	_, err := h.e.CompleteRound(h.ctx, sim.ID)
	wantCode(t, err, CodePrecondition)
	got, _ := h.e.Simulation(h.ctx, sim.ID)
	if got.Status != SimulationPaused {
		t.Fatalf("paused simulation changed status to %s", got.Status)
	}
	_, err = h.e.ArbitrationOutcome(h.ctx, sim.ID)
	wantCode(t, err, CodeNotFound)

	if _, err := h.e.ResumeSimulation(h.ctx, sim.ID); err != nil {
		t.Fatalf("resume: %v", err)
	}
	h.clock.Advance(47 * time.Hour)
	_, err = h.e.CompleteRound(h.ctx, sim.ID)
	wantCode(t, err, CodePrecondition)

	h.clock.Advance(2 * time.Hour)
	if _, err := h.e.CompleteRound(h.ctx, sim.ID); err != nil {
		t.Fatalf("complete after the extended deadline: %v", err)
	}
	got, _ = h.e.Simulation(h.ctx, sim.ID)
	if got.Status != SimulationArbitration {
		t.Fatalf("overdue final round should arbitrate, got %s", got.Status)
	}
}

func TestCompleteRoundIsIdempotent(t *testing.T) {
	h := newHarness(t)
	sim := h.startNew(6)

	_, err := h.e.CompleteRound(h.ctx, sim.ID)
	wantCode(t, err, CodePrecondition)

	h.mustOffer(sim.ID, h.plaintiff, 300000)
	h.mustOffer(sim.ID, h.defendant, 100000)

	first, err := h.e.CompleteRound(h.ctx, sim.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	second, err := h.e.CompleteRound(h.ctx, sim.ID)
	if err != nil {
		t.Fatalf("second complete: %v", err)
	}
	if !first.CompletedAt.Equal(*second.CompletedAt) || second.Status != RoundCompleted {
		t.Fatalf("second completion should be a no-op: %+v vs %+v", first, second)
	}
	got, _ := h.e.Simulation(h.ctx, sim.ID)
	if got.Status != SimulationActive || got.CurrentRound != 1 {
		t.Fatalf("completing round 1 must not advance or end: %+v", got)
	}

	if _, err := h.e.AdvanceRound(h.ctx, sim.ID); err != nil {
		t.Fatalf("advance: %v", err)
	}
	_, err = h.e.AdvanceRound(h.ctx, sim.ID)
	wantCode(t, err, CodePrecondition)
}

func TestConcurrentOffersSettleOnce(t *testing.T) {
	h := newHarness(t)
	sim := h.startNew(6)

	var wg sync.WaitGroup
	results := make([]SubmitOfferResult, 2)
	errs := make([]error, 2)
	for i, tc := range []struct {
		team   uuid.UUID
		amount int64
	}{{h.plaintiff, 200000}, {h.defendant, 195000}} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = h.offer(sim.ID, tc.team, tc.amount)
		}()
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			t.Fatalf("offer: %v", err)
		}
	}
	if results[0].Settled == results[1].Settled {
		t.Fatalf("exactly one submission should observe the settlement: %v %v", results[0].Settled, results[1].Settled)
	}
	rounds, _ := h.e.Rounds(h.ctx, sim.ID)
	if len(rounds) != 1 || !rounds[0].SettlementReached {
		t.Fatalf("unexpected rounds: %+v", rounds)
	}
}

func TestGuidanceAfterBothSubmitWithoutSettlement(t *testing.T) {
	h := newHarness(t)
	sim := h.startNew(6)
	h.mustOffer(sim.ID, h.plaintiff, 280000)
	h.mustOffer(sim.ID, h.defendant, 150000)

	fb, _ := h.e.Feedback(h.ctx, sim.ID, h.defendant)
	guidance := 0
	for _, f := range fb {
		if f.Type == FeedbackStrategyGuidance {
			guidance++
			if !strings.Contains(f.Text, "Your client") {
				t.Fatalf("unexpected guidance text: %q", f.Text)
			}
		}
	}
	if guidance != 1 {
		t.Fatalf("expected one guidance message for the defendant, got %d", guidance)
	}
}

func TestCompleteSimulationAndDelete(t *testing.T) {
	h := newHarness(t)
	sim := h.startNew(6)
	h.mustOffer(sim.ID, h.plaintiff, 280000)

	done, err := h.e.CompleteSimulation(h.ctx, sim.ID)
	if err != nil {
		t.Fatalf("complete simulation: %v", err)
	}
	if done.Status != SimulationCompleted {
		t.Fatalf("status = %s", done.Status)
	}
	_, err = h.offer(sim.ID, h.defendant, 150000)
	wantCode(t, err, CodePrecondition)

	if err := h.e.DeleteSimulation(h.ctx, sim.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, err = h.e.Simulation(h.ctx, sim.ID)
	wantCode(t, err, CodeNotFound)
	_, err = h.e.Offers(h.ctx, sim.ID)
	wantCode(t, err, CodeNotFound)
	if len(h.e.Simulations(h.ctx)) != 0 {
		t.Fatal("deleted simulations must not be listed")
	}
	// The case is free again once its simulation is gone.
	h.create(6)
}

func TestTriggerArbitrationEarly(t *testing.T) {
	h := newHarness(t)
	sim := h.startNew(6)
	h.mustOffer(sim.ID, h.plaintiff, 280000)

	out, err := h.e.TriggerArbitration(h.ctx, sim.ID)
	if err != nil {
		t.Fatalf("trigger arbitration: %v", err)
	}
	if out.NegotiationHistory != 0.5 {
		t.Fatalf("no two-sided round should give a neutral history, got %v", out.NegotiationHistory)
	}
	got, _ := h.e.Simulation(h.ctx, sim.ID)
	if got.Status != SimulationArbitration {
		t.Fatalf("status = %s", got.Status)
	}
}
