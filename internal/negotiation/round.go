package negotiation

import (
	"time"

	"github.com/google/uuid"
)

// newRound builds a pending round. The deadline must lie in the future and
// the number must fit inside the simulation.
func newRound(sim Simulation, number int, now time.Time, duration time.Duration) (Round, error) {
	if number < 1 || number > sim.TotalRounds {
		return Round{}, newFieldError("round_number", "must be between 1 and total_rounds")
	}
	deadline := now.Add(duration)
	if !deadline.After(now) {
		return Round{}, newFieldError("deadline", "must be in the future")
	}
	return Round{
		ID:           uuid.New(),
		SimulationID: sim.ID,
		RoundNumber:  number,
		Deadline:     deadline,
		Status:       RoundPending,
		CreatedAt:    now,
	}, nil
}

// Start moves a pending round to active.
func (r *Round) Start(now time.Time) error {
	if r.Status != RoundPending {
		return newError(CodePrecondition, "round can only be started from pending, current status "+string(r.Status))
	}
	t := now
	r.Status = RoundActive
	r.StartedAt = &t
	return nil
}

// Evaluate recomputes the status from which sides have an offer on file and
// reports whether this call moved the round into both_submitted. Completed
// and pending rounds are left alone.
func (r *Round) Evaluate(plaintiffSubmitted, defendantSubmitted bool) bool {
	if r.Status == RoundCompleted || r.Status == RoundPending {
		return false
	}
	prev := r.Status
	switch {
	case plaintiffSubmitted && defendantSubmitted:
		r.Status = RoundBothSubmitted
	case plaintiffSubmitted:
		r.Status = RoundPlaintiffSubmitted
	case defendantSubmitted:
		r.Status = RoundDefendantSubmitted
	default:
		r.Status = RoundActive
	}
	return prev != RoundBothSubmitted && r.Status == RoundBothSubmitted
}

// Overdue reports whether the deadline has passed. The clock stops while the
// round is paused.
func (r Round) Overdue(now time.Time) bool {
	return r.PausedAt == nil && r.Deadline.Before(now)
}

func (r Round) BothSubmitted() bool {
	return r.Status == RoundBothSubmitted
}

func (r Round) CanComplete(now time.Time) bool {
	return r.BothSubmitted() || r.Overdue(now)
}

// Open reports whether the round still accepts offers.
func (r Round) Open() bool {
	switch r.Status {
	case RoundActive, RoundPlaintiffSubmitted, RoundDefendantSubmitted:
		return true
	}
	return false
}

// complete stamps the round; it reports false when it was already completed
// so callers skip every downstream side effect.
func (r *Round) complete(now time.Time, settled bool) bool {
	if r.Status == RoundCompleted {
		return false
	}
	t := now
	r.Status = RoundCompleted
	r.CompletedAt = &t
	r.PausedAt = nil
	r.SettlementReached = settled
	return true
}

func (r *Round) pause(now time.Time) {
	if r.Status == RoundCompleted || r.PausedAt != nil {
		return
	}
	t := now
	r.PausedAt = &t
}

// resume pushes the deadline back by however long the round sat paused.
func (r *Round) resume(now time.Time) {
	if r.PausedAt == nil {
		return
	}
	if span := now.Sub(*r.PausedAt); span > 0 {
		r.Deadline = r.Deadline.Add(span)
	}
	r.PausedAt = nil
}

// RoundVerdict is what the completion check decides for a round that just
// reached both_submitted.
type RoundVerdict int

const (
	VerdictContinue RoundVerdict = iota
	VerdictSettle
	VerdictArbitrate
)

func (v RoundVerdict) String() string {
	switch v {
	case VerdictSettle:
		return "settle"
	case VerdictArbitrate:
		return "arbitrate"
	default:
		return "continue"
	}
}

// completionCheck decides the fate of a round with offers from both sides.
// Settlement wins over exhaustion.
func completionCheck(sim Simulation, round Round, plaintiff, defendant Offer, threshold float64) RoundVerdict {
	if SettlementReached(plaintiff.Amount, defendant.Amount, threshold) {
		return VerdictSettle
	}
	if round.RoundNumber >= sim.TotalRounds {
		return VerdictArbitrate
	}
	return VerdictContinue
}
