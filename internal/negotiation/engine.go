package negotiation

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/joelkehle/negotiation-lab/internal/platform/logger"
)

// Deps are the collaborators an Engine works with. Only Repository is
// required; a nil Narrator means template feedback only.
type Deps struct {
	Repository Repository
	Directory  Directory
	Documents  DocumentStore
	Narrator   Narrator
	Logger     *logger.Logger
	Rand       *rand.Rand
}

// Engine runs simulations. Every mutating call holds the simulation's lock
// for its whole read-modify-write and commits through the Repository before
// the change becomes visible to readers.
type Engine struct {
	cfg      Config
	repo     Repository
	dir      Directory
	docs     DocumentStore
	feedback *FeedbackGenerator
	scorer   OfferScorer
	log      *logger.Logger
	tracer   trace.Tracer

	rngMu sync.Mutex
	rng   *rand.Rand
	arb   *ArbitrationCalculator

	mu       sync.Mutex
	simLocks map[uuid.UUID]*sync.Mutex
	state    state
}

type state struct {
	sims     map[uuid.UUID]Simulation
	rounds   map[uuid.UUID]Round
	offers   map[uuid.UUID]Offer
	feedback map[uuid.UUID]ClientFeedback
	events   map[uuid.UUID]Event
	outcomes map[uuid.UUID]ArbitrationOutcome
	scores   map[uuid.UUID]PerformanceScore
	releases map[uuid.UUID]EvidenceRelease
}

func newState() state {
	return state{
		sims:     map[uuid.UUID]Simulation{},
		rounds:   map[uuid.UUID]Round{},
		offers:   map[uuid.UUID]Offer{},
		feedback: map[uuid.UUID]ClientFeedback{},
		events:   map[uuid.UUID]Event{},
		outcomes: map[uuid.UUID]ArbitrationOutcome{},
		scores:   map[uuid.UUID]PerformanceScore{},
		releases: map[uuid.UUID]EvidenceRelease{},
	}
}

// NewEngine loads everything the repository holds and returns a ready engine.
func NewEngine(ctx context.Context, cfg Config, deps Deps) (*Engine, error) {
	cfg = cfg.withDefaults()
	if deps.Repository == nil {
		deps.Repository = NewMemoryRepository()
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}
	rng := deps.Rand
	if rng == nil {
		var err error
		rng, err = NewRand(cfg.RandomSeed)
		if err != nil {
			return nil, err
		}
	}
	e := &Engine{
		cfg:      cfg,
		repo:     deps.Repository,
		dir:      deps.Directory,
		docs:     deps.Documents,
		feedback: NewFeedbackGenerator(deps.Narrator, cfg.NarratorTimeout, deps.Logger, cfg.Clock),
		log:      deps.Logger,
		tracer:   otel.Tracer("negotiation"),
		rng:      rng,
		arb:      NewArbitrationCalculator(rng, cfg.CaseMultipliers),
		simLocks: map[uuid.UUID]*sync.Mutex{},
		state:    newState(),
	}

	snap, err := e.repo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load repository: %w", err)
	}
	for _, v := range snap.Simulations {
		e.state.sims[v.ID] = v
	}
	for _, v := range snap.Rounds {
		e.state.rounds[v.ID] = v
	}
	for _, v := range snap.Offers {
		e.state.offers[v.ID] = v
	}
	for _, v := range snap.Feedback {
		e.state.feedback[v.ID] = v
	}
	for _, v := range snap.Events {
		e.state.events[v.ID] = v
	}
	for _, v := range snap.Outcomes {
		e.state.outcomes[v.ID] = v
	}
	for _, v := range snap.Scores {
		e.state.scores[v.ID] = v
	}
	for _, v := range snap.Releases {
		e.state.releases[v.ID] = v
	}
	e.log.Info("engine loaded", "simulations", len(snap.Simulations), "rounds", len(snap.Rounds), "offers", len(snap.Offers))
	return e, nil
}

func (e *Engine) Close() error {
	return e.repo.Close()
}

func (e *Engine) Config() Config {
	return e.cfg
}

func (e *Engine) now() time.Time {
	return e.cfg.Clock().UTC()
}

// lockSimulation serializes every mutation of one simulation and everything
// it owns.
func (e *Engine) lockSimulation(id uuid.UUID) func() {
	e.mu.Lock()
	l, ok := e.simLocks[id]
	if !ok {
		l = &sync.Mutex{}
		e.simLocks[id] = l
	}
	e.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func (e *Engine) startSpan(ctx context.Context, op string, simID uuid.UUID) (context.Context, trace.Span) {
	ctx, span := e.tracer.Start(ctx, "negotiation."+op)
	if simID != uuid.Nil {
		span.SetAttributes(attribute.String("simulation.id", simID.String()))
	}
	return ctx, span
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (e *Engine) withRand(fn func()) {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	fn()
}

// --- transactions ---

// tx stages writes on top of the committed state. Reads see staged records
// first. Nothing is visible to other callers until commit succeeds.
type tx struct {
	e              *Engine
	now            time.Time
	staged         state
	scoresReplaced []uuid.UUID
	// undo reverts changes made on collaborators if the commit fails.
	undo []func(context.Context) error
}

func (e *Engine) begin() *tx {
	return &tx{e: e, now: e.now(), staged: newState()}
}

func (t *tx) rollback(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	for i := len(t.undo) - 1; i >= 0; i-- {
		if err := t.undo[i](ctx); err != nil {
			t.e.log.Error("rollback failed", "error", err)
		}
	}
	t.undo = nil
}

func (t *tx) commit(ctx context.Context) error {
	cs := ChangeSet{ScoresReplaced: t.scoresReplaced}
	for _, v := range t.staged.sims {
		cs.Simulations = append(cs.Simulations, v)
	}
	for _, v := range t.staged.rounds {
		cs.Rounds = append(cs.Rounds, v)
	}
	for _, v := range t.staged.offers {
		cs.Offers = append(cs.Offers, v)
	}
	for _, v := range t.staged.feedback {
		cs.Feedback = append(cs.Feedback, v)
	}
	for _, v := range t.staged.events {
		cs.Events = append(cs.Events, v)
	}
	for _, v := range t.staged.outcomes {
		cs.Outcomes = append(cs.Outcomes, v)
	}
	for _, v := range t.staged.scores {
		cs.Scores = append(cs.Scores, v)
	}
	for _, v := range t.staged.releases {
		cs.Releases = append(cs.Releases, v)
	}
	if cs.Empty() {
		return nil
	}
	if err := t.e.repo.Commit(ctx, cs); err != nil {
		t.rollback(ctx)
		return err
	}

	e := t.e
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, simID := range t.scoresReplaced {
		for id, s := range e.state.scores {
			if s.SimulationID == simID {
				delete(e.state.scores, id)
			}
		}
	}
	for k, v := range t.staged.sims {
		e.state.sims[k] = v
	}
	for k, v := range t.staged.rounds {
		e.state.rounds[k] = v
	}
	for k, v := range t.staged.offers {
		e.state.offers[k] = v
	}
	for k, v := range t.staged.feedback {
		e.state.feedback[k] = v
	}
	for k, v := range t.staged.events {
		e.state.events[k] = v
	}
	for k, v := range t.staged.outcomes {
		e.state.outcomes[k] = v
	}
	for k, v := range t.staged.scores {
		e.state.scores[k] = v
	}
	for k, v := range t.staged.releases {
		e.state.releases[k] = v
	}
	return nil
}

func lookup[T any](e *Engine, staged, base map[uuid.UUID]T, id uuid.UUID) (T, bool) {
	if v, ok := staged[id]; ok {
		return v, true
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := base[id]
	return v, ok
}

func collect[T any](e *Engine, staged, base map[uuid.UUID]T, keep func(T) bool) []T {
	var out []T
	e.mu.Lock()
	for id, v := range base {
		if _, shadowed := staged[id]; shadowed {
			continue
		}
		if keep(v) {
			out = append(out, v)
		}
	}
	e.mu.Unlock()
	for _, v := range staged {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}

// sim returns a live simulation; soft-deleted ones do not exist.
func (t *tx) sim(id uuid.UUID) (Simulation, error) {
	s, ok := lookup(t.e, t.staged.sims, t.e.state.sims, id)
	if !ok || s.DeletedAt != nil {
		return Simulation{}, notFound("simulation")
	}
	return s, nil
}

func (t *tx) putSim(s Simulation) {
	s.UpdatedAt = t.now
	t.staged.sims[s.ID] = s
}

func (t *tx) rounds(simID uuid.UUID) []Round {
	out := collect(t.e, t.staged.rounds, t.e.state.rounds, func(r Round) bool { return r.SimulationID == simID })
	sort.Slice(out, func(i, j int) bool { return out[i].RoundNumber < out[j].RoundNumber })
	return out
}

func (t *tx) roundByNumber(simID uuid.UUID, number int) (Round, bool) {
	for _, r := range t.rounds(simID) {
		if r.RoundNumber == number {
			return r, true
		}
	}
	return Round{}, false
}

func (t *tx) currentRound(sim Simulation) (Round, error) {
	r, ok := t.roundByNumber(sim.ID, sim.CurrentRound)
	if !ok {
		return Round{}, notFound("round")
	}
	return r, nil
}

func (t *tx) putRound(r Round) {
	t.staged.rounds[r.ID] = r
}

func (t *tx) offers(simID uuid.UUID) []Offer {
	out := collect(t.e, t.staged.offers, t.e.state.offers, func(o Offer) bool { return o.SimulationID == simID })
	sortOffers(out)
	return out
}

func (t *tx) roundOffers(roundID uuid.UUID) map[Role]Offer {
	out := map[Role]Offer{}
	for _, o := range collect(t.e, t.staged.offers, t.e.state.offers, func(o Offer) bool { return o.RoundID == roundID }) {
		out[o.Role] = o
	}
	return out
}

func (t *tx) putOffer(o Offer) {
	t.staged.offers[o.ID] = o
}

func (t *tx) putFeedback(fb ClientFeedback) {
	t.staged.feedback[fb.ID] = fb
}

func (t *tx) events(simID uuid.UUID) []Event {
	out := collect(t.e, t.staged.events, t.e.state.events, func(ev Event) bool { return ev.SimulationID == simID })
	sortEvents(out)
	return out
}

func (t *tx) putEvent(ev Event) {
	t.staged.events[ev.ID] = ev
}

func (t *tx) outcome(simID uuid.UUID) (ArbitrationOutcome, bool) {
	found := collect(t.e, t.staged.outcomes, t.e.state.outcomes, func(o ArbitrationOutcome) bool { return o.SimulationID == simID })
	if len(found) == 0 {
		return ArbitrationOutcome{}, false
	}
	return found[0], true
}

func (t *tx) putOutcome(o ArbitrationOutcome) {
	t.staged.outcomes[o.ID] = o
}

func (t *tx) scores(simID uuid.UUID) []PerformanceScore {
	return collect(t.e, t.staged.scores, t.e.state.scores, func(s PerformanceScore) bool { return s.SimulationID == simID })
}

func (t *tx) releases(simID uuid.UUID) []EvidenceRelease {
	out := collect(t.e, t.staged.releases, t.e.state.releases, func(r EvidenceRelease) bool { return r.SimulationID == simID })
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (t *tx) release(id uuid.UUID) (EvidenceRelease, error) {
	r, ok := lookup(t.e, t.staged.releases, t.e.state.releases, id)
	if !ok {
		return EvidenceRelease{}, notFound("evidence release")
	}
	if _, err := t.sim(r.SimulationID); err != nil {
		return EvidenceRelease{}, notFound("evidence release")
	}
	return r, nil
}

func (t *tx) putRelease(r EvidenceRelease) {
	t.staged.releases[r.ID] = r
}

func sortOffers(out []Offer) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].RoundNumber != out[j].RoundNumber {
			return out[i].RoundNumber < out[j].RoundNumber
		}
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
}

func sortEvents(out []Event) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].TriggerRound != out[j].TriggerRound {
			return out[i].TriggerRound < out[j].TriggerRound
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
}

// --- reads ---

func (e *Engine) Simulation(ctx context.Context, id uuid.UUID) (Simulation, error) {
	return e.begin().sim(id)
}

// Simulations lists live simulations, oldest first.
func (e *Engine) Simulations(ctx context.Context) []Simulation {
	t := e.begin()
	out := collect(e, t.staged.sims, e.state.sims, func(s Simulation) bool { return s.DeletedAt == nil })
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (e *Engine) Rounds(ctx context.Context, simID uuid.UUID) ([]Round, error) {
	t := e.begin()
	if _, err := t.sim(simID); err != nil {
		return nil, err
	}
	return t.rounds(simID), nil
}

func (e *Engine) Offers(ctx context.Context, simID uuid.UUID) ([]Offer, error) {
	t := e.begin()
	if _, err := t.sim(simID); err != nil {
		return nil, err
	}
	return t.offers(simID), nil
}

// Feedback lists feedback for one team, or for both when teamID is nil.
func (e *Engine) Feedback(ctx context.Context, simID, teamID uuid.UUID) ([]ClientFeedback, error) {
	t := e.begin()
	if _, err := t.sim(simID); err != nil {
		return nil, err
	}
	out := collect(e, t.staged.feedback, e.state.feedback, func(fb ClientFeedback) bool {
		return fb.SimulationID == simID && (teamID == uuid.Nil || fb.TeamID == teamID)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (e *Engine) Events(ctx context.Context, simID uuid.UUID) ([]Event, error) {
	t := e.begin()
	if _, err := t.sim(simID); err != nil {
		return nil, err
	}
	return t.events(simID), nil
}

func (e *Engine) ArbitrationOutcome(ctx context.Context, simID uuid.UUID) (ArbitrationOutcome, error) {
	t := e.begin()
	if _, err := t.sim(simID); err != nil {
		return ArbitrationOutcome{}, err
	}
	o, ok := t.outcome(simID)
	if !ok {
		return ArbitrationOutcome{}, notFound("arbitration outcome")
	}
	return o, nil
}

// PerformanceScores lists team rows first, each group by rank.
func (e *Engine) PerformanceScores(ctx context.Context, simID uuid.UUID) ([]PerformanceScore, error) {
	t := e.begin()
	if _, err := t.sim(simID); err != nil {
		return nil, err
	}
	out := t.scores(simID)
	sort.Slice(out, func(i, j int) bool {
		if out[i].TeamLevel() != out[j].TeamLevel() {
			return out[i].TeamLevel()
		}
		return out[i].Rank < out[j].Rank
	})
	return out, nil
}

func (e *Engine) EvidenceReleases(ctx context.Context, simID uuid.UUID) ([]EvidenceRelease, error) {
	t := e.begin()
	if _, err := t.sim(simID); err != nil {
		return nil, err
	}
	return t.releases(simID), nil
}
