package negotiation

import (
	"context"
	"math"

	"github.com/google/uuid"
)

// ScorePerformance grades every member and both teams of an ended
// simulation, replacing earlier scores but keeping instructor adjustments.
func (e *Engine) ScorePerformance(ctx context.Context, simID uuid.UUID) (out []PerformanceScore, err error) {
	ctx, span := e.startSpan(ctx, "ScorePerformance", simID)
	defer func() { finishSpan(span, err) }()

	unlock := e.lockSimulation(simID)
	defer unlock()

	t := e.begin()
	sim, err := t.sim(simID)
	if err != nil {
		return nil, err
	}
	if !sim.Terminal() {
		return nil, newError(CodePrecondition, "performance is scored once the simulation has ended")
	}

	members := map[uuid.UUID][]uuid.UUID{}
	if e.dir != nil {
		for _, teamID := range []uuid.UUID{sim.PlaintiffTeamID, sim.DefendantTeamID} {
			users, err := e.dir.TeamMembers(ctx, teamID)
			if err != nil {
				return nil, err
			}
			members[teamID] = users
		}
	}
	adjustments := map[scoreKey]adjustment{}
	for _, s := range t.scores(simID) {
		if s.InstructorAdjustment != 0 || s.InstructorNote != "" {
			adjustments[scoreKey{team: s.TeamID, user: s.UserID}] = adjustment{delta: s.InstructorAdjustment, note: s.InstructorNote}
		}
	}
	in := PerformanceInput{
		Simulation:  sim,
		Rounds:      t.rounds(simID),
		Offers:      t.offers(simID),
		Members:     members,
		Adjustments: adjustments,
	}
	if o, ok := t.outcome(simID); ok {
		in.Outcome = &o
	}

	out = PerformanceScorer{}.Score(in, t.now)
	t.scoresReplaced = append(t.scoresReplaced, simID)
	for _, s := range out {
		t.staged.scores[s.ID] = s
	}
	if err := t.commit(ctx); err != nil {
		return nil, err
	}
	e.log.Info("performance scored", "simulation_id", simID, "scores", len(out))
	return out, nil
}

// AdjustScore sets the instructor adjustment of one score, bounded to ±10,
// and re-ranks the simulation.
func (e *Engine) AdjustScore(ctx context.Context, scoreID uuid.UUID, delta float64, note string) (score PerformanceScore, err error) {
	if math.IsNaN(delta) || math.Abs(delta) > maxInstructorAdjustment {
		return PerformanceScore{}, newFieldError("delta", "must be between -10 and 10")
	}
	probe, ok := lookup(e, nil, e.state.scores, scoreID)
	if !ok {
		return PerformanceScore{}, notFound("performance score")
	}
	ctx, span := e.startSpan(ctx, "AdjustScore", probe.SimulationID)
	defer func() { finishSpan(span, err) }()

	unlock := e.lockSimulation(probe.SimulationID)
	defer unlock()

	t := e.begin()
	if _, err := t.sim(probe.SimulationID); err != nil {
		return PerformanceScore{}, err
	}
	scores := t.scores(probe.SimulationID)
	found := false
	for i := range scores {
		if scores[i].ID == scoreID {
			scores[i].InstructorAdjustment = delta
			scores[i].InstructorNote = note
			scores[i].TotalScore = totalScore(scores[i])
			found = true
		}
	}
	if !found {
		return PerformanceScore{}, notFound("performance score")
	}
	rankScores(scores)
	for _, s := range scores {
		t.staged.scores[s.ID] = s
		if s.ID == scoreID {
			score = s
		}
	}
	if err := t.commit(ctx); err != nil {
		return PerformanceScore{}, err
	}
	e.log.Info("score adjusted", "simulation_id", probe.SimulationID, "score_id", scoreID, "delta", delta)
	return score, nil
}
