package negotiation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventScheduleInput plans an instructor event. Without ScheduledFor it fires
// on entering TriggerRound; with it, the sweep fires it once the time has
// passed and the round has been reached.
type EventScheduleInput struct {
	SimulationID uuid.UUID  `validate:"required"`
	Type         EventType  `validate:"required"`
	TriggerRound int        `validate:"min=1"`
	ScheduledFor *time.Time
}

func (e *Engine) ScheduleEvent(ctx context.Context, in EventScheduleInput) (ev Event, err error) {
	ctx, span := e.startSpan(ctx, "ScheduleEvent", in.SimulationID)
	defer func() { finishSpan(span, err) }()

	if err := validateInput(in); err != nil {
		return Event{}, err
	}
	if !knownEventType(in.Type) || in.Type == EventRoundAdvanced || in.Type == EventEvidenceRelease {
		return Event{}, newFieldError("type", "unknown pressure event type")
	}
	unlock := e.lockSimulation(in.SimulationID)
	defer unlock()

	t := e.begin()
	sim, err := t.sim(in.SimulationID)
	if err != nil {
		return Event{}, err
	}
	if sim.Terminal() {
		return Event{}, newError(CodePrecondition, "simulation has ended")
	}
	if in.TriggerRound > sim.TotalRounds {
		return Event{}, newFieldError("trigger_round", "must be between 1 and total_rounds")
	}
	ev = newEvent(sim.ID, in.Type, in.TriggerRound, e.cfg.EventTemplates, t.now)
	ev.Automatic = false
	if in.ScheduledFor != nil {
		at := in.ScheduledFor.UTC()
		ev.ScheduledFor = &at
	}
	t.putEvent(ev)
	if err := t.commit(ctx); err != nil {
		return Event{}, err
	}
	e.log.Info("event scheduled", "simulation_id", sim.ID, "event_id", ev.ID, "type", ev.Type, "trigger_round", ev.TriggerRound)
	return ev, nil
}

// TriggerEvent applies a scheduled event right away. Triggering an applied
// event changes nothing.
func (e *Engine) TriggerEvent(ctx context.Context, simID, eventID uuid.UUID) (ev Event, err error) {
	ctx, span := e.startSpan(ctx, "TriggerEvent", simID)
	defer func() { finishSpan(span, err) }()

	unlock := e.lockSimulation(simID)
	defer unlock()

	t := e.begin()
	sim, err := t.sim(simID)
	if err != nil {
		return Event{}, err
	}
	found := false
	for _, candidate := range t.events(simID) {
		if candidate.ID == eventID {
			ev, found = candidate, true
			break
		}
	}
	if !found {
		return Event{}, notFound("event")
	}
	if ev.Applied() {
		return ev, nil
	}
	if !running(sim) {
		return Event{}, newError(CodePrecondition, "simulation is not running, status "+string(sim.Status))
	}
	t.applyEvent(&sim, ev)
	if err := t.commit(ctx); err != nil {
		return Event{}, err
	}
	applied, _ := lookup(e, t.staged.events, e.state.events, eventID)
	return applied, nil
}

// ScheduleEvidenceRelease plans an automatic release of case material.
func (e *Engine) ScheduleEvidenceRelease(ctx context.Context, in EvidenceScheduleInput) (rel EvidenceRelease, err error) {
	ctx, span := e.startSpan(ctx, "ScheduleEvidenceRelease", in.SimulationID)
	defer func() { finishSpan(span, err) }()

	if err := validateInput(in); err != nil {
		return EvidenceRelease{}, err
	}
	unlock := e.lockSimulation(in.SimulationID)
	defer unlock()

	t := e.begin()
	sim, err := t.sim(in.SimulationID)
	if err != nil {
		return EvidenceRelease{}, err
	}
	if err := e.checkReleasable(ctx, sim, in.DocumentID, in.ReleaseRound); err != nil {
		return EvidenceRelease{}, err
	}
	at := in.ScheduledFor.UTC()
	rel = EvidenceRelease{
		ID:           uuid.New(),
		SimulationID: sim.ID,
		DocumentID:   in.DocumentID,
		ReleaseRound: in.ReleaseRound,
		ScheduledFor: &at,
		Automatic:    true,
		Status:       ReleasePending,
		CreatedAt:    t.now,
	}
	t.putRelease(rel)
	if err := t.commit(ctx); err != nil {
		return EvidenceRelease{}, err
	}
	e.log.Info("evidence release scheduled", "simulation_id", sim.ID, "release_id", rel.ID, "document_id", rel.DocumentID)
	return rel, nil
}

// RequestEvidenceRelease records a team's request; it waits for approval.
func (e *Engine) RequestEvidenceRelease(ctx context.Context, in EvidenceRequestInput) (rel EvidenceRelease, err error) {
	ctx, span := e.startSpan(ctx, "RequestEvidenceRelease", in.SimulationID)
	defer func() { finishSpan(span, err) }()

	if err := validateInput(in); err != nil {
		return EvidenceRelease{}, err
	}
	unlock := e.lockSimulation(in.SimulationID)
	defer unlock()

	t := e.begin()
	sim, err := t.sim(in.SimulationID)
	if err != nil {
		return EvidenceRelease{}, err
	}
	if _, ok := sim.RoleOf(in.TeamID); !ok {
		return EvidenceRelease{}, newFieldError("team_id", "invalid_team: team is not assigned to this simulation")
	}
	if e.dir != nil {
		assigned, err := e.dir.AssignedToCase(ctx, in.TeamID, sim.CaseID)
		if err != nil {
			return EvidenceRelease{}, err
		}
		if !assigned {
			return EvidenceRelease{}, newFieldError("team_id", "invalid_team: team is not assigned to this case")
		}
	}
	if err := e.checkReleasable(ctx, sim, in.DocumentID, in.ReleaseRound); err != nil {
		return EvidenceRelease{}, err
	}
	rel = EvidenceRelease{
		ID:           uuid.New(),
		SimulationID: sim.ID,
		DocumentID:   in.DocumentID,
		RequestedBy:  in.TeamID,
		ReleaseRound: in.ReleaseRound,
		Status:       ReleasePending,
		CreatedAt:    t.now,
	}
	t.putRelease(rel)
	if err := t.commit(ctx); err != nil {
		return EvidenceRelease{}, err
	}
	e.log.Info("evidence release requested", "simulation_id", sim.ID, "release_id", rel.ID, "team_id", in.TeamID)
	return rel, nil
}

func (e *Engine) checkReleasable(ctx context.Context, sim Simulation, documentID uuid.UUID, round int) error {
	if sim.Terminal() {
		return newError(CodePrecondition, "simulation has ended")
	}
	if err := checkReleaseRound(sim, round); err != nil {
		return err
	}
	if e.docs == nil {
		return newError(CodeDependency, "document store is not configured")
	}
	doc, err := e.docs.Document(ctx, documentID)
	if err != nil {
		return err
	}
	if !doc.CaseMaterial() || doc.Owner.ID != sim.CaseID {
		return newFieldError("document_id", "document is not case material for this case")
	}
	if doc.AccessLevel == AccessReleased {
		return newError(CodePrecondition, "document is already released")
	}
	return nil
}

func (e *Engine) ApproveEvidenceRelease(ctx context.Context, releaseID uuid.UUID) (EvidenceRelease, error) {
	return e.decideRelease(ctx, "ApproveEvidenceRelease", releaseID, func(t *tx, rel *EvidenceRelease) error {
		switch rel.Status {
		case ReleaseReleased:
			return newError(CodePrecondition, "evidence is already released")
		case ReleaseApproved:
			return newError(CodePrecondition, "evidence release is already approved")
		case ReleaseDenied:
			return newError(CodePrecondition, "evidence release was denied")
		}
		now := t.now
		rel.Status = ReleaseApproved
		rel.ApprovedAt = &now
		return nil
	})
}

func (e *Engine) DenyEvidenceRelease(ctx context.Context, releaseID uuid.UUID) (EvidenceRelease, error) {
	return e.decideRelease(ctx, "DenyEvidenceRelease", releaseID, func(t *tx, rel *EvidenceRelease) error {
		switch rel.Status {
		case ReleaseReleased:
			return newError(CodePrecondition, "evidence is already released")
		case ReleaseDenied:
			return newError(CodePrecondition, "evidence release is already denied")
		}
		rel.Status = ReleaseDenied
		return nil
	})
}

// ReleaseEvidence opens a ready document to both teams and applies an
// evidence_release event.
func (e *Engine) ReleaseEvidence(ctx context.Context, releaseID uuid.UUID) (EvidenceRelease, error) {
	return e.decideRelease(ctx, "ReleaseEvidence", releaseID, func(t *tx, rel *EvidenceRelease) error {
		sim, err := t.sim(rel.SimulationID)
		if err != nil {
			return err
		}
		return t.releaseEvidence(ctx, &sim, rel)
	})
}

func (e *Engine) decideRelease(ctx context.Context, op string, releaseID uuid.UUID, decide func(*tx, *EvidenceRelease) error) (rel EvidenceRelease, err error) {
	probe, err := e.begin().release(releaseID)
	if err != nil {
		return EvidenceRelease{}, err
	}
	ctx, span := e.startSpan(ctx, op, probe.SimulationID)
	defer func() { finishSpan(span, err) }()

	unlock := e.lockSimulation(probe.SimulationID)
	defer unlock()

	t := e.begin()
	rel, err = t.release(releaseID)
	if err != nil {
		return EvidenceRelease{}, err
	}
	if err := decide(t, &rel); err != nil {
		return EvidenceRelease{}, err
	}
	t.putRelease(rel)
	if err := t.commit(ctx); err != nil {
		return EvidenceRelease{}, err
	}
	e.log.Info("evidence release updated", "simulation_id", rel.SimulationID, "release_id", rel.ID, "status", rel.Status)
	return rel, nil
}

func (t *tx) releaseEvidence(ctx context.Context, sim *Simulation, rel *EvidenceRelease) error {
	if !running(*sim) {
		return newError(CodePrecondition, "simulation is not running, status "+string(sim.Status))
	}
	if !rel.ReadyForRelease(t.now) {
		return newError(CodePrecondition, "evidence release is not ready")
	}
	if sim.CurrentRound < rel.ReleaseRound {
		return newError(CodePrecondition, "release round has not been reached")
	}
	if t.e.docs == nil {
		return newError(CodeDependency, "document store is not configured")
	}
	docID := rel.DocumentID
	doc, err := t.e.docs.Document(ctx, docID)
	if err != nil {
		return err
	}
	if err := t.e.docs.SetAccessLevel(ctx, docID, AccessReleased); err != nil {
		return err
	}
	t.undo = append(t.undo, func(ctx context.Context) error {
		return t.e.docs.SetAccessLevel(ctx, docID, doc.AccessLevel)
	})

	ev := newEvent(sim.ID, EventEvidenceRelease, sim.CurrentRound, t.e.cfg.EventTemplates, t.now)
	ev.Automatic = rel.Automatic
	t.applyEvent(sim, ev)

	now := t.now
	rel.Status = ReleaseReleased
	rel.ReleasedAt = &now
	rel.EventID = ev.ID
	t.putRelease(*rel)
	return nil
}
