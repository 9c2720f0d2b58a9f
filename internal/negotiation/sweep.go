package negotiation

import (
	"context"

	"github.com/google/uuid"
)

// SweepReport counts what one Sweep pass changed.
type SweepReport struct {
	RoundsClosed     int `json:"rounds_closed"`
	RoundsAdvanced   int `json:"rounds_advanced"`
	Settlements      int `json:"settlements"`
	Arbitrations     int `json:"arbitrations"`
	EventsApplied    int `json:"events_applied"`
	EvidenceReleased int `json:"evidence_released"`
}

// Sweep is the time-driven half of the engine: it closes overdue rounds,
// advancing or arbitrating as the rules say, and fires time-scheduled events
// and automatic evidence releases that are due. Paused simulations are
// skipped. One simulation failing does not stop the pass.
func (e *Engine) Sweep(ctx context.Context) (report SweepReport, err error) {
	ctx, span := e.startSpan(ctx, "Sweep", uuid.Nil)
	defer func() { finishSpan(span, err) }()

	for _, sim := range e.Simulations(ctx) {
		if sim.Status != SimulationActive {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}
		r, serr := e.sweepSimulation(ctx, sim.ID)
		if serr != nil {
			e.log.Warn("sweep failed", "simulation_id", sim.ID, "error", serr)
			continue
		}
		report.RoundsClosed += r.RoundsClosed
		report.RoundsAdvanced += r.RoundsAdvanced
		report.Settlements += r.Settlements
		report.Arbitrations += r.Arbitrations
		report.EventsApplied += r.EventsApplied
		report.EvidenceReleased += r.EvidenceReleased
	}
	return report, nil
}

func (e *Engine) sweepSimulation(ctx context.Context, simID uuid.UUID) (SweepReport, error) {
	unlock := e.lockSimulation(simID)
	defer unlock()

	var r SweepReport
	t := e.begin()
	sim, err := t.sim(simID)
	if err != nil || sim.Status != SimulationActive {
		return r, err
	}

	round, err := t.currentRound(sim)
	if err != nil {
		return r, err
	}
	if round.Overdue(t.now) {
		if round.Status != RoundCompleted {
			outcome := t.finishRound(&sim, &round)
			r.RoundsClosed++
			switch {
			case outcome != nil:
				r.Arbitrations++
			case round.SettlementReached:
				r.Settlements++
			}
		}
		if sim.Status == SimulationActive && sim.CurrentRound < sim.TotalRounds {
			applied, err := t.advance(&sim)
			if err != nil {
				return SweepReport{}, err
			}
			r.RoundsAdvanced++
			r.EventsApplied += applied
		}
	}

	if sim.Status == SimulationActive {
		for _, ev := range dueByTime(t.events(simID), sim.CurrentRound, t.now) {
			if t.applyEvent(&sim, ev) {
				r.EventsApplied++
			}
		}
		for _, rel := range t.releases(simID) {
			if !rel.Automatic || !rel.ReadyForRelease(t.now) || sim.CurrentRound < rel.ReleaseRound {
				continue
			}
			if err := t.releaseEvidence(ctx, &sim, &rel); err != nil {
				e.log.Warn("automatic evidence release failed", "simulation_id", simID, "release_id", rel.ID, "error", err)
				continue
			}
			r.EvidenceReleased++
		}
	}

	if err := t.commit(ctx); err != nil {
		return SweepReport{}, err
	}
	if r != (SweepReport{}) {
		e.log.Info("sweep applied", "simulation_id", simID, "closed", r.RoundsClosed, "advanced", r.RoundsAdvanced, "events", r.EventsApplied, "evidence", r.EvidenceReleased)
	}
	return r, nil
}
