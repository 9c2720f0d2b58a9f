package negotiation

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const noOverlapProblem = "No overlap in acceptable settlement ranges"

func (e *Engine) CreateSimulation(ctx context.Context, in CreateSimulationInput) (sim Simulation, err error) {
	ctx, span := e.startSpan(ctx, "CreateSimulation", uuid.Nil)
	defer func() { finishSpan(span, err) }()

	if err := validateInput(in); err != nil {
		return Simulation{}, err
	}
	if err := checkThresholdValues(in.PlaintiffMinAcceptable, in.PlaintiffIdeal, in.DefendantIdeal, in.DefendantMaxAcceptable); err != nil {
		return Simulation{}, err
	}

	// One live simulation per case; the case id doubles as the lock key so
	// two concurrent creates for the same case serialize.
	unlock := e.lockSimulation(in.CaseID)
	defer unlock()

	t := e.begin()
	existing := collect(e, t.staged.sims, e.state.sims, func(s Simulation) bool {
		return s.CaseID == in.CaseID && s.DeletedAt == nil
	})
	if len(existing) > 0 {
		return Simulation{}, newError(CodePrecondition, "case already has a simulation")
	}

	sim = Simulation{
		ID:                     uuid.New(),
		CaseID:                 in.CaseID,
		CaseType:               in.CaseType,
		PlaintiffMinAcceptable: in.PlaintiffMinAcceptable,
		PlaintiffIdeal:         in.PlaintiffIdeal,
		DefendantIdeal:         in.DefendantIdeal,
		DefendantMaxAcceptable: in.DefendantMaxAcceptable,
		TotalRounds:            in.TotalRounds,
		CurrentRound:           1,
		Status:                 SimulationSetup,
		Config:                 in.Config,
		CreatedAt:              t.now,
	}
	t.putSim(sim)
	if err := t.commit(ctx); err != nil {
		return Simulation{}, err
	}
	sim = t.staged.sims[sim.ID]
	e.log.Info("simulation created", "simulation_id", sim.ID, "case_id", sim.CaseID, "total_rounds", sim.TotalRounds)
	return sim, nil
}

func checkThresholdValues(values ...decimal.Decimal) error {
	fields := []string{"plaintiff_min_acceptable", "plaintiff_ideal", "defendant_ideal", "defendant_max_acceptable"}
	for i, v := range values {
		if v.IsNegative() {
			return newFieldError(fields[i], "must not be negative")
		}
	}
	return nil
}

// UpdateThresholds replaces all four thresholds while still in setup.
func (e *Engine) UpdateThresholds(ctx context.Context, simID uuid.UUID, in ThresholdsInput) (sim Simulation, err error) {
	ctx, span := e.startSpan(ctx, "UpdateThresholds", simID)
	defer func() { finishSpan(span, err) }()

	if err := checkThresholdValues(in.PlaintiffMinAcceptable, in.PlaintiffIdeal, in.DefendantIdeal, in.DefendantMaxAcceptable); err != nil {
		return Simulation{}, err
	}
	unlock := e.lockSimulation(simID)
	defer unlock()

	t := e.begin()
	sim, err = t.sim(simID)
	if err != nil {
		return Simulation{}, err
	}
	if sim.Status != SimulationSetup {
		return Simulation{}, newError(CodePrecondition, "thresholds can only change during setup")
	}
	sim.PlaintiffMinAcceptable = in.PlaintiffMinAcceptable
	sim.PlaintiffIdeal = in.PlaintiffIdeal
	sim.DefendantIdeal = in.DefendantIdeal
	sim.DefendantMaxAcceptable = in.DefendantMaxAcceptable
	t.putSim(sim)
	if err := t.commit(ctx); err != nil {
		return Simulation{}, err
	}
	e.log.Info("thresholds updated", "simulation_id", simID)
	return t.staged.sims[simID], nil
}

// AssignTeam seats a team on the side the directory says it plays.
func (e *Engine) AssignTeam(ctx context.Context, simID, teamID uuid.UUID) (sim Simulation, err error) {
	ctx, span := e.startSpan(ctx, "AssignTeam", simID)
	defer func() { finishSpan(span, err) }()

	if e.dir == nil {
		return Simulation{}, newError(CodeDependency, "team directory is not configured")
	}
	unlock := e.lockSimulation(simID)
	defer unlock()

	t := e.begin()
	sim, err = t.sim(simID)
	if err != nil {
		return Simulation{}, err
	}
	if sim.Status != SimulationSetup {
		return Simulation{}, newError(CodePrecondition, "teams can only be assigned during setup")
	}
	team, err := e.dir.Team(ctx, teamID)
	if err != nil {
		return Simulation{}, err
	}
	assigned, err := e.dir.AssignedToCase(ctx, teamID, sim.CaseID)
	if err != nil {
		return Simulation{}, err
	}
	if !assigned {
		return Simulation{}, newFieldError("team_id", "invalid_team: team is not assigned to this case")
	}
	switch team.Role {
	case RolePlaintiff:
		if sim.DefendantTeamID == teamID {
			return Simulation{}, newFieldError("team_id", "team already plays the defendant")
		}
		sim.PlaintiffTeamID = teamID
	case RoleDefendant:
		if sim.PlaintiffTeamID == teamID {
			return Simulation{}, newFieldError("team_id", "team already plays the plaintiff")
		}
		sim.DefendantTeamID = teamID
	default:
		return Simulation{}, newFieldError("team_id", "team has no case role")
	}
	t.putSim(sim)
	if err := t.commit(ctx); err != nil {
		return Simulation{}, err
	}
	e.log.Info("team assigned", "simulation_id", simID, "team_id", teamID, "role", team.Role)
	return t.staged.sims[simID], nil
}

// Readiness lists every reason the simulation cannot start yet.
func (e *Engine) Readiness(ctx context.Context, simID uuid.UUID) ([]string, error) {
	sim, err := e.begin().sim(simID)
	if err != nil {
		return nil, err
	}
	return readinessProblems(sim), nil
}

func readinessProblems(sim Simulation) []string {
	var problems []string
	plaintiffSet := sim.PlaintiffMinAcceptable.IsPositive() && sim.PlaintiffIdeal.IsPositive()
	defendantSet := sim.DefendantIdeal.IsPositive() && sim.DefendantMaxAcceptable.IsPositive()
	if !plaintiffSet {
		problems = append(problems, "Plaintiff thresholds are not set")
	}
	if !defendantSet {
		problems = append(problems, "Defendant thresholds are not set")
	}
	if sim.PlaintiffTeamID == uuid.Nil {
		problems = append(problems, "Plaintiff team is not assigned")
	}
	if sim.DefendantTeamID == uuid.Nil {
		problems = append(problems, "Defendant team is not assigned")
	}
	if plaintiffSet && sim.PlaintiffMinAcceptable.GreaterThan(sim.PlaintiffIdeal) {
		problems = append(problems, "Plaintiff minimum exceeds plaintiff ideal")
	}
	if defendantSet && sim.DefendantIdeal.GreaterThan(sim.DefendantMaxAcceptable) {
		problems = append(problems, "Defendant ideal exceeds defendant maximum")
	}
	if sim.PlaintiffMinAcceptable.GreaterThan(sim.DefendantMaxAcceptable) {
		problems = append(problems, noOverlapProblem)
	}
	return problems
}

func (e *Engine) StartSimulation(ctx context.Context, simID uuid.UUID) (sim Simulation, err error) {
	ctx, span := e.startSpan(ctx, "StartSimulation", simID)
	defer func() { finishSpan(span, err) }()

	unlock := e.lockSimulation(simID)
	defer unlock()

	t := e.begin()
	sim, err = t.sim(simID)
	if err != nil {
		return Simulation{}, err
	}
	if sim.Status != SimulationSetup {
		return Simulation{}, newError(CodePrecondition, "simulation already started, status "+string(sim.Status))
	}
	if problems := readinessProblems(sim); len(problems) > 0 {
		return Simulation{}, newConsistencyError("simulation is not ready to start", problems)
	}

	now := t.now
	sim.Status = SimulationActive
	sim.StartedAt = &now
	sim.CurrentRound = 1
	round, err := newRound(sim, 1, now, e.cfg.RoundDuration)
	if err != nil {
		return Simulation{}, err
	}
	if err := round.Start(now); err != nil {
		return Simulation{}, err
	}
	t.putRound(round)

	var scheduled []Event
	e.withRand(func() { scheduled = scheduleEvents(sim, e.cfg, e.rng, now) })
	for _, ev := range scheduled {
		t.putEvent(ev)
	}
	t.putSim(sim)
	if err := t.commit(ctx); err != nil {
		return Simulation{}, err
	}
	e.log.Info("simulation started", "simulation_id", simID, "deadline", round.Deadline, "scheduled_events", len(scheduled))
	return t.staged.sims[simID], nil
}

func (e *Engine) PauseSimulation(ctx context.Context, simID uuid.UUID) (sim Simulation, err error) {
	ctx, span := e.startSpan(ctx, "PauseSimulation", simID)
	defer func() { finishSpan(span, err) }()

	unlock := e.lockSimulation(simID)
	defer unlock()

	t := e.begin()
	sim, err = t.sim(simID)
	if err != nil {
		return Simulation{}, err
	}
	if sim.Status != SimulationActive {
		return Simulation{}, newError(CodePrecondition, "only an active simulation can be paused")
	}
	now := t.now
	sim.Status = SimulationPaused
	sim.PausedAt = &now
	if round, err := t.currentRound(sim); err == nil && round.Status != RoundCompleted {
		round.pause(now)
		t.putRound(round)
	}
	t.putSim(sim)
	if err := t.commit(ctx); err != nil {
		return Simulation{}, err
	}
	e.log.Info("simulation paused", "simulation_id", simID)
	return t.staged.sims[simID], nil
}

func (e *Engine) ResumeSimulation(ctx context.Context, simID uuid.UUID) (sim Simulation, err error) {
	ctx, span := e.startSpan(ctx, "ResumeSimulation", simID)
	defer func() { finishSpan(span, err) }()

	unlock := e.lockSimulation(simID)
	defer unlock()

	t := e.begin()
	sim, err = t.sim(simID)
	if err != nil {
		return Simulation{}, err
	}
	if sim.Status != SimulationPaused {
		return Simulation{}, newError(CodePrecondition, "only a paused simulation can be resumed")
	}
	sim.Status = SimulationActive
	sim.PausedAt = nil
	if round, err := t.currentRound(sim); err == nil && round.PausedAt != nil {
		round.resume(t.now)
		t.putRound(round)
	}
	t.putSim(sim)
	if err := t.commit(ctx); err != nil {
		return Simulation{}, err
	}
	e.log.Info("simulation resumed", "simulation_id", simID)
	return t.staged.sims[simID], nil
}

// CompleteSimulation ends a running simulation without arbitration.
func (e *Engine) CompleteSimulation(ctx context.Context, simID uuid.UUID) (sim Simulation, err error) {
	ctx, span := e.startSpan(ctx, "CompleteSimulation", simID)
	defer func() { finishSpan(span, err) }()

	unlock := e.lockSimulation(simID)
	defer unlock()

	t := e.begin()
	sim, err = t.sim(simID)
	if err != nil {
		return Simulation{}, err
	}
	if !running(sim) {
		return Simulation{}, newError(CodePrecondition, "simulation is not running, status "+string(sim.Status))
	}
	if round, err := t.currentRound(sim); err == nil {
		if round.complete(t.now, false) {
			t.putRound(round)
		}
	}
	t.complete(&sim)
	if err := t.commit(ctx); err != nil {
		return Simulation{}, err
	}
	e.log.Info("simulation completed", "simulation_id", simID)
	return t.staged.sims[simID], nil
}

// TriggerArbitration ends a running simulation and computes the award.
func (e *Engine) TriggerArbitration(ctx context.Context, simID uuid.UUID) (out ArbitrationOutcome, err error) {
	ctx, span := e.startSpan(ctx, "TriggerArbitration", simID)
	defer func() { finishSpan(span, err) }()

	unlock := e.lockSimulation(simID)
	defer unlock()

	t := e.begin()
	sim, err := t.sim(simID)
	if err != nil {
		return ArbitrationOutcome{}, err
	}
	if !running(sim) {
		return ArbitrationOutcome{}, newError(CodePrecondition, "simulation is not running, status "+string(sim.Status))
	}
	if round, err := t.currentRound(sim); err == nil {
		if round.complete(t.now, false) {
			t.putRound(round)
		}
	}
	out = t.arbitrate(&sim)
	if err := t.commit(ctx); err != nil {
		return ArbitrationOutcome{}, err
	}
	e.log.Info("arbitration triggered", "simulation_id", simID, "award", out.AwardAmount, "outcome", out.OutcomeType)
	return out, nil
}

// RecalculateArbitration reruns the calculator and overwrites the single
// outcome of a simulation already in arbitration.
func (e *Engine) RecalculateArbitration(ctx context.Context, simID uuid.UUID) (out ArbitrationOutcome, err error) {
	ctx, span := e.startSpan(ctx, "RecalculateArbitration", simID)
	defer func() { finishSpan(span, err) }()

	unlock := e.lockSimulation(simID)
	defer unlock()

	t := e.begin()
	sim, err := t.sim(simID)
	if err != nil {
		return ArbitrationOutcome{}, err
	}
	if sim.Status != SimulationArbitration {
		return ArbitrationOutcome{}, newError(CodePrecondition, "simulation is not in arbitration")
	}
	out = t.calculateOutcome(sim)
	if err := t.commit(ctx); err != nil {
		return ArbitrationOutcome{}, err
	}
	e.log.Info("arbitration recalculated", "simulation_id", simID, "award", out.AwardAmount, "outcome", out.OutcomeType)
	return out, nil
}

// DeleteSimulation soft-deletes a simulation; it and everything it owns
// disappear from every read.
func (e *Engine) DeleteSimulation(ctx context.Context, simID uuid.UUID) (err error) {
	ctx, span := e.startSpan(ctx, "DeleteSimulation", simID)
	defer func() { finishSpan(span, err) }()

	unlock := e.lockSimulation(simID)
	defer unlock()

	t := e.begin()
	sim, err := t.sim(simID)
	if err != nil {
		return err
	}
	now := t.now
	sim.DeletedAt = &now
	t.putSim(sim)
	if err := t.commit(ctx); err != nil {
		return err
	}
	e.log.Info("simulation deleted", "simulation_id", simID)
	return nil
}

func running(sim Simulation) bool {
	return sim.Status == SimulationActive || sim.Status == SimulationPaused
}

func (t *tx) complete(sim *Simulation) {
	now := t.now
	sim.Status = SimulationCompleted
	sim.EndedAt = &now
	sim.PausedAt = nil
	t.putSim(*sim)
}

// arbitrate moves sim into arbitration and computes the award. It is a no-op
// returning the stored outcome when sim is already there.
func (t *tx) arbitrate(sim *Simulation) ArbitrationOutcome {
	if sim.Status == SimulationArbitration {
		if o, ok := t.outcome(sim.ID); ok {
			return o
		}
	}
	now := t.now
	sim.Status = SimulationArbitration
	sim.EndedAt = &now
	sim.PausedAt = nil
	t.putSim(*sim)
	return t.calculateOutcome(*sim)
}

// calculateOutcome keeps the id of an existing outcome so a recalculation
// overwrites instead of adding a second one.
func (t *tx) calculateOutcome(sim Simulation) ArbitrationOutcome {
	in := ArbitrationInput{Simulation: sim, Rounds: t.rounds(sim.ID), Offers: t.offers(sim.ID)}
	var out ArbitrationOutcome
	t.e.withRand(func() { out = t.e.arb.Calculate(in, t.now) })
	if prev, ok := t.outcome(sim.ID); ok {
		out.ID = prev.ID
		out.CreatedAt = prev.CreatedAt
	}
	t.putOutcome(out)
	return out
}
