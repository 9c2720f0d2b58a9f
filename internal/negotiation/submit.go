package negotiation

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// pendingFeedback is narrator work deferred until the simulation lock is
// released.
type pendingFeedback struct {
	sim      Simulation
	offer    Offer
	res      RangeResult
	guidance bool
	round    Round
	byRole   map[Role]Offer
}

// SubmitOffer records an offer, re-evaluates the round and, when both sides
// are in, settles or arbitrates as the completion check decides. Client
// feedback is produced after the offer is committed so a slow narrator never
// holds up the write.
func (e *Engine) SubmitOffer(ctx context.Context, in SubmitOfferInput) (res SubmitOfferResult, err error) {
	ctx, span := e.startSpan(ctx, "SubmitOffer", in.SimulationID)
	defer func() { finishSpan(span, err) }()

	res, pending, err := e.recordOffer(ctx, in)
	if err != nil {
		return SubmitOfferResult{}, err
	}

	feedback := e.generateFeedback(ctx, pending)
	if len(feedback) > 0 {
		unlock := e.lockSimulation(in.SimulationID)
		t := e.begin()
		for _, fb := range feedback {
			t.putFeedback(fb)
		}
		cerr := t.commit(ctx)
		unlock()
		if cerr != nil {
			e.log.Error("feedback not saved", "simulation_id", in.SimulationID, "offer_id", res.Offer.ID, "error", cerr)
		} else {
			fb := feedback[0]
			res.Feedback = &fb
		}
	}
	return res, nil
}

func (e *Engine) recordOffer(ctx context.Context, in SubmitOfferInput) (SubmitOfferResult, pendingFeedback, error) {
	in.Justification = strings.TrimSpace(in.Justification)
	if err := validateInput(in); err != nil {
		return SubmitOfferResult{}, pendingFeedback{}, err
	}
	unlock := e.lockSimulation(in.SimulationID)
	defer unlock()

	t := e.begin()
	sim, err := t.sim(in.SimulationID)
	if err != nil {
		return SubmitOfferResult{}, pendingFeedback{}, err
	}
	switch sim.Status {
	case SimulationActive:
	case SimulationPaused:
		return SubmitOfferResult{}, pendingFeedback{}, newError(CodePrecondition, "simulation is paused")
	default:
		return SubmitOfferResult{}, pendingFeedback{}, newError(CodePrecondition, "simulation is not accepting offers, status "+string(sim.Status))
	}

	rangeRes, err := ValidateTeam(sim, in.TeamID, in.Amount)
	if err != nil {
		return SubmitOfferResult{}, pendingFeedback{}, err
	}
	role := rangeRes.Role
	if err := e.checkSubmitter(ctx, in); err != nil {
		return SubmitOfferResult{}, pendingFeedback{}, err
	}
	if limit := sanityLimit(sim); in.Amount.GreaterThan(limit) {
		return SubmitOfferResult{}, pendingFeedback{}, newFieldError("amount", "invalid_amount: amount is outside the plausible range for this case")
	}

	round, err := t.currentRound(sim)
	if err != nil {
		return SubmitOfferResult{}, pendingFeedback{}, err
	}
	if round.Overdue(t.now) {
		return SubmitOfferResult{}, pendingFeedback{}, newFieldError("deadline", "round deadline has passed")
	}
	byRole := t.roundOffers(round.ID)
	if _, dup := byRole[role]; dup {
		return SubmitOfferResult{}, pendingFeedback{}, newFieldError("team_id", "team already submitted an offer this round")
	}
	if !round.Open() {
		return SubmitOfferResult{}, pendingFeedback{}, newError(CodePrecondition, "round is not accepting offers, status "+string(round.Status))
	}

	quality := e.scorer.Score(ScoreInput{
		Role:             role,
		Amount:           in.Amount,
		Justification:    in.Justification,
		NonMonetaryTerms: in.NonMonetaryTerms,
		Thresholds:       ThresholdsOf(sim),
		Opposing:         latestOpposing(t.offers(sim.ID), role, round.RoundNumber),
	})
	offer := Offer{
		ID:               uuid.New(),
		SimulationID:     sim.ID,
		RoundID:          round.ID,
		RoundNumber:      round.RoundNumber,
		TeamID:           in.TeamID,
		Role:             role,
		SubmittedBy:      in.SubmittedBy,
		Amount:           in.Amount,
		Justification:    in.Justification,
		NonMonetaryTerms: in.NonMonetaryTerms,
		OfferType:        OfferTypeFor(round.RoundNumber, sim.TotalRounds),
		QualityScore:     quality.Total(),
		Quality:          quality,
		SubmittedAt:      t.now,
	}
	t.putOffer(offer)
	byRole[role] = offer

	_, hasP := byRole[RolePlaintiff]
	_, hasD := byRole[RoleDefendant]
	entered := round.Evaluate(hasP, hasD)
	t.putRound(round)

	out := SubmitOfferResult{Offer: offer}
	pending := pendingFeedback{sim: sim, offer: offer, res: rangeRes, round: round, byRole: byRole}
	if entered {
		verdict := completionCheck(sim, round, byRole[RolePlaintiff], byRole[RoleDefendant], e.cfg.SettlementThreshold)
		switch verdict {
		case VerdictContinue:
			pending.guidance = true
		default:
			outcome := t.closeRound(&sim, &round, verdict, byRole)
			out.Settled = verdict == VerdictSettle
			out.Arbitration = outcome
		}
		e.log.Info("round both submitted", "simulation_id", sim.ID, "round", round.RoundNumber, "verdict", verdict.String())
	}
	if err := t.commit(ctx); err != nil {
		return SubmitOfferResult{}, pendingFeedback{}, err
	}

	out.Round = round
	out.Simulation, _ = t.sim(sim.ID)
	pending.sim = out.Simulation
	e.log.Info("offer submitted", "simulation_id", sim.ID, "round", round.RoundNumber, "role", role, "quality", offer.QualityScore, "positioning", rangeRes.Positioning)
	return out, pending, nil
}

func (e *Engine) checkSubmitter(ctx context.Context, in SubmitOfferInput) error {
	if in.SubmittedBy == uuid.Nil || e.dir == nil {
		return nil
	}
	member, err := e.dir.Membership(ctx, in.SubmittedBy, in.TeamID)
	if err != nil {
		return err
	}
	if !member {
		return newFieldError("submitted_by", "user is not a member of the submitting team")
	}
	return nil
}

// sanityLimit is twice the larger of plaintiff ideal and defendant maximum.
func sanityLimit(sim Simulation) decimal.Decimal {
	top := sim.PlaintiffIdeal
	if sim.DefendantMaxAcceptable.GreaterThan(top) {
		top = sim.DefendantMaxAcceptable
	}
	return top.Mul(decimal.NewFromInt(2))
}

// latestOpposing finds the other side's most recent offer at or before round.
func latestOpposing(offers []Offer, role Role, round int) *Offer {
	var best *Offer
	for i := range offers {
		o := offers[i]
		if o.Role == role || o.RoundNumber > round {
			continue
		}
		if best == nil || o.RoundNumber > best.RoundNumber || (o.RoundNumber == best.RoundNumber && o.SubmittedAt.After(best.SubmittedAt)) {
			best = &o
		}
	}
	return best
}

// closeRound completes round and applies verdict to sim. It does nothing if
// the round was already completed, so a second caller can never produce a
// second outcome or advance.
func (t *tx) closeRound(sim *Simulation, round *Round, verdict RoundVerdict, byRole map[Role]Offer) *ArbitrationOutcome {
	if !round.complete(t.now, verdict == VerdictSettle) {
		return nil
	}
	t.putRound(*round)
	switch verdict {
	case VerdictSettle:
		t.complete(sim)
		amount := settlementAmount(byRole[RolePlaintiff].Amount, byRole[RoleDefendant].Amount)
		for _, role := range []Role{RolePlaintiff, RoleDefendant} {
			t.putFeedback(t.e.feedback.Settlement(*sim, round.RoundNumber, role, amount))
		}
		t.e.log.Info("settlement reached", "simulation_id", sim.ID, "round", round.RoundNumber, "amount", amount)
	case VerdictArbitrate:
		outcome := t.arbitrate(sim)
		t.e.log.Info("rounds exhausted, arbitration", "simulation_id", sim.ID, "award", outcome.AwardAmount)
		return &outcome
	}
	return nil
}

func (e *Engine) generateFeedback(ctx context.Context, p pendingFeedback) []ClientFeedback {
	if p.offer.ID == uuid.Nil {
		return nil
	}
	out := []ClientFeedback{e.feedback.ForOffer(ctx, p.sim, p.offer, p.res)}
	if !p.guidance {
		return out
	}
	plaintiff, defendant := p.byRole[RolePlaintiff], p.byRole[RoleDefendant]
	gap := AnalyzeGap(plaintiff.Amount, defendant.Amount, e.cfg.SettlementThreshold, e.cfg.NegotiableGapThreshold)
	rv := NewRangeValidator(ThresholdsOf(p.sim))
	for _, audience := range []Role{RolePlaintiff, RoleDefendant} {
		own := p.byRole[audience]
		res, err := rv.Validate(audience, own.Amount)
		if err != nil {
			continue
		}
		out = append(out, e.feedback.Guidance(ctx, p.sim, p.round.RoundNumber, audience, plaintiff, defendant, gap, res))
	}
	return out
}

// CompleteRound closes the current round once both sides have submitted or
// its deadline has passed. Completing a completed round is a no-op.
func (e *Engine) CompleteRound(ctx context.Context, simID uuid.UUID) (round Round, err error) {
	ctx, span := e.startSpan(ctx, "CompleteRound", simID)
	defer func() { finishSpan(span, err) }()

	unlock := e.lockSimulation(simID)
	defer unlock()

	t := e.begin()
	sim, err := t.sim(simID)
	if err != nil {
		return Round{}, err
	}
	round, err = t.currentRound(sim)
	if err != nil {
		return Round{}, err
	}
	if round.Status == RoundCompleted {
		return round, nil
	}
	if !running(sim) {
		return Round{}, newError(CodePrecondition, "simulation is not running, status "+string(sim.Status))
	}
	if !round.CanComplete(t.now) {
		return Round{}, newError(CodePrecondition, "round cannot complete before both teams submit or the deadline passes")
	}
	t.finishRound(&sim, &round)
	if err := t.commit(ctx); err != nil {
		return Round{}, err
	}
	e.log.Info("round completed", "simulation_id", simID, "round", round.RoundNumber, "settled", round.SettlementReached)
	return round, nil
}

// finishRound picks the verdict for a round being closed outside of an offer
// write: the usual check when both sides are in, otherwise arbitration on
// the final round and a plain close before it.
func (t *tx) finishRound(sim *Simulation, round *Round) *ArbitrationOutcome {
	byRole := t.roundOffers(round.ID)
	p, hasP := byRole[RolePlaintiff]
	d, hasD := byRole[RoleDefendant]
	verdict := VerdictContinue
	switch {
	case hasP && hasD:
		verdict = completionCheck(*sim, *round, p, d, t.e.cfg.SettlementThreshold)
	case round.RoundNumber >= sim.TotalRounds:
		verdict = VerdictArbitrate
	}
	return t.closeRound(sim, round, verdict, byRole)
}

// AdvanceRound opens the next round once the current one is completed,
// records the move and fires pressure events scheduled for the new round.
func (e *Engine) AdvanceRound(ctx context.Context, simID uuid.UUID) (sim Simulation, err error) {
	ctx, span := e.startSpan(ctx, "AdvanceRound", simID)
	defer func() { finishSpan(span, err) }()

	unlock := e.lockSimulation(simID)
	defer unlock()

	t := e.begin()
	sim, err = t.sim(simID)
	if err != nil {
		return Simulation{}, err
	}
	applied, err := t.advance(&sim)
	if err != nil {
		return Simulation{}, err
	}
	if err := t.commit(ctx); err != nil {
		return Simulation{}, err
	}
	e.log.Info("round advanced", "simulation_id", simID, "round", sim.CurrentRound, "events_applied", applied)
	return t.staged.sims[simID], nil
}

func (t *tx) advance(sim *Simulation) (int, error) {
	if sim.Status != SimulationActive {
		return 0, newError(CodePrecondition, "only an active simulation can advance, status "+string(sim.Status))
	}
	current, err := t.currentRound(*sim)
	if err != nil {
		return 0, err
	}
	if current.Status != RoundCompleted {
		return 0, newError(CodePrecondition, "current round is not completed")
	}
	if sim.CurrentRound >= sim.TotalRounds {
		return 0, newError(CodePrecondition, "simulation is already on its final round")
	}

	next, err := newRound(*sim, sim.CurrentRound+1, t.now, t.e.cfg.RoundDuration)
	if err != nil {
		return 0, err
	}
	if err := next.Start(t.now); err != nil {
		return 0, err
	}
	sim.CurrentRound = next.RoundNumber
	t.putRound(next)

	now := t.now
	t.putEvent(Event{
		ID:           uuid.New(),
		SimulationID: sim.ID,
		Type:         EventRoundAdvanced,
		TriggerRound: next.RoundNumber,
		TriggeredAt:  &now,
		Description:  eventDescriptions[EventRoundAdvanced],
		CreatedAt:    now,
	})

	applied := 0
	for _, ev := range dueForRound(t.events(sim.ID), next.RoundNumber) {
		t.applyEvent(sim, ev)
		applied++
	}
	t.putSim(*sim)
	return applied, nil
}

// applyEvent adjusts thresholds once and tells both teams how their clients
// react.
func (t *tx) applyEvent(sim *Simulation, ev Event) bool {
	if !ApplyAdjustment(sim, &ev, t.now) {
		return false
	}
	t.putEvent(ev)
	t.putSim(*sim)
	for _, role := range []Role{RolePlaintiff, RoleDefendant} {
		if sim.TeamFor(role) == uuid.Nil {
			continue
		}
		t.putFeedback(t.e.feedback.Pressure(*sim, ev, role))
	}
	t.e.log.Info("event applied", "simulation_id", sim.ID, "event_id", ev.ID, "type", ev.Type)
	return true
}
