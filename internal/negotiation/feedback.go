package negotiation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joelkehle/negotiation-lab/internal/platform/logger"
)

var moodOrder = []Mood{MoodVeryUnhappy, MoodUnhappy, MoodNeutral, MoodSatisfied, MoodVerySatisfied}

// ScoreToMood buckets a 0..100 satisfaction score into the five moods.
func ScoreToMood(score int) Mood {
	switch {
	case score >= 90:
		return MoodVerySatisfied
	case score >= 65:
		return MoodSatisfied
	case score >= 35:
		return MoodNeutral
	case score >= 10:
		return MoodUnhappy
	default:
		return MoodVeryUnhappy
	}
}

// MoodToScore is the linear inverse: 0, 25, 50, 75, 100.
func MoodToScore(m Mood) int {
	for i, candidate := range moodOrder {
		if candidate == m {
			return i * 25
		}
	}
	return 50
}

var errLeak = errors.New("narrative mentions a confidential threshold")

// FeedbackGenerator turns range results, events and settlements into client
// feedback. Narrator output is optional and always bounded by timeout.
type FeedbackGenerator struct {
	narrator Narrator
	timeout  time.Duration
	log      *logger.Logger
	clock    func() time.Time
}

func NewFeedbackGenerator(narrator Narrator, timeout time.Duration, log *logger.Logger, clock func() time.Time) *FeedbackGenerator {
	if log == nil {
		log = logger.NewNop()
	}
	if clock == nil {
		clock = time.Now
	}
	return &FeedbackGenerator{narrator: narrator, timeout: timeout, log: log, clock: clock}
}

func (g *FeedbackGenerator) narratorOn() bool {
	return g.narrator != nil && g.narrator.Enabled()
}

// FromRange builds deterministic feedback from a range result alone.
func (g *FeedbackGenerator) FromRange(sim Simulation, teamID uuid.UUID, roundNumber int, kind FeedbackType, res RangeResult) ClientFeedback {
	return ClientFeedback{
		ID:                uuid.New(),
		SimulationID:      sim.ID,
		TeamID:            teamID,
		RoundNumber:       roundNumber,
		Type:              kind,
		Mood:              res.Mood,
		SatisfactionScore: clampInt(res.SatisfactionScore, 0, 100),
		Text:              rangeText(res),
		Source:            SourceRange,
		CreatedAt:         g.clock().UTC(),
	}
}

// ForOffer reacts to a submitted offer. The narrator supplies the wording
// when it answers in time without leaking a threshold; mood and score always
// come from the range result.
func (g *FeedbackGenerator) ForOffer(ctx context.Context, sim Simulation, offer Offer, res RangeResult) ClientFeedback {
	fb := g.FromRange(sim, offer.TeamID, offer.RoundNumber, FeedbackOfferReaction, res)
	fb.OfferID = offer.ID
	if !g.narratorOn() {
		return fb
	}
	brief := OfferBrief{
		Role:          offer.Role,
		RoundNumber:   offer.RoundNumber,
		TotalRounds:   sim.TotalRounds,
		Amount:        offer.Amount,
		Justification: offer.Justification,
		Terms:         offer.NonMonetaryTerms,
		Range:         res,
	}
	narrative, err := callWithTimeout(ctx, g.timeout, func(ctx context.Context) (Narrative, error) {
		return g.narrator.GenerateFeedback(ctx, brief)
	})
	if err == nil {
		err = checkNarrative(narrative.Text, ThresholdsOf(sim))
	}
	if err != nil {
		g.log.Warn("narrator feedback fallback", "simulation_id", sim.ID, "offer_id", offer.ID, "error", err)
		return fb
	}
	fb.Text = strings.TrimSpace(narrative.Text)
	fb.Source = SourceNarrator
	return fb
}

// Guidance is strategy advice after both sides have put numbers down.
func (g *FeedbackGenerator) Guidance(ctx context.Context, sim Simulation, roundNumber int, audience Role, plaintiff, defendant Offer, gap GapAnalysis, res RangeResult) ClientFeedback {
	fb := g.FromRange(sim, sim.TeamFor(audience), roundNumber, FeedbackStrategyGuidance, res)
	fb.Text = guidanceText(audience, gap)
	if !g.narratorOn() {
		return fb
	}
	brief := NegotiationBrief{
		RoundNumber:     roundNumber,
		TotalRounds:     sim.TotalRounds,
		PlaintiffAmount: plaintiff.Amount,
		DefendantAmount: defendant.Amount,
		Gap:             gap,
		Audience:        audience,
	}
	advice, err := callWithTimeout(ctx, g.timeout, func(ctx context.Context) (Advice, error) {
		return g.narrator.AnalyzeNegotiationState(ctx, brief)
	})
	if err == nil {
		err = checkNarrative(advice.Advice, ThresholdsOf(sim))
	}
	if err != nil {
		g.log.Warn("narrator guidance fallback", "simulation_id", sim.ID, "round", roundNumber, "error", err)
		return fb
	}
	fb.Text = strings.TrimSpace(advice.Advice)
	fb.Source = SourceNarrator
	return fb
}

// Pressure tells one side how a scripted event changes its client's stance.
func (g *FeedbackGenerator) Pressure(sim Simulation, evt Event, role Role) ClientFeedback {
	score := 50
	if _, ok := evt.AdjustmentsApplied[AdjustPlaintiffMin]; ok && role == RolePlaintiff {
		score = 70
	}
	if _, ok := evt.AdjustmentsApplied[AdjustDefendantMax]; ok && role == RoleDefendant {
		score = 30
	}
	return ClientFeedback{
		ID:                uuid.New(),
		SimulationID:      sim.ID,
		TeamID:            sim.TeamFor(role),
		RoundNumber:       sim.CurrentRound,
		EventID:           evt.ID,
		Type:              FeedbackPressureResponse,
		Mood:              ScoreToMood(score),
		SatisfactionScore: score,
		Text:              pressureText(evt.Type, role),
		Source:            SourceRange,
		CreatedAt:         g.clock().UTC(),
	}
}

// Settlement reports how each client feels about the agreed amount.
func (g *FeedbackGenerator) Settlement(sim Simulation, roundNumber int, role Role, amount decimal.Decimal) ClientFeedback {
	res, err := NewRangeValidator(ThresholdsOf(sim)).Validate(role, amount)
	if err != nil {
		res = RangeResult{Role: role, SatisfactionScore: 50, Mood: MoodNeutral}
	}
	fb := g.FromRange(sim, sim.TeamFor(role), roundNumber, FeedbackSettlementSatisfaction, res)
	fb.Text = "The case has settled. " + rangeText(res)
	return fb
}

func callWithTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		ch <- result{v: v, err: err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func checkNarrative(text string, t Thresholds) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("empty narrative")
	}
	if leaksThreshold(text, t) {
		return errLeak
	}
	return nil
}

// leaksThreshold looks for any threshold written as a plain number, with
// thousands separators, or in "k" shorthand.
func leaksThreshold(text string, t Thresholds) bool {
	lower := strings.ToLower(text)
	compact := strings.ReplaceAll(lower, ",", "")
	for _, d := range []decimal.Decimal{t.PlaintiffMin, t.PlaintiffIdeal, t.DefendantIdeal, t.DefendantMax} {
		if !d.IsPositive() {
			continue
		}
		plain := d.Round(0).String()
		if strings.Contains(compact, plain) {
			return true
		}
		if d.Mod(decimal.NewFromInt(1000)).IsZero() {
			k := d.Div(decimal.NewFromInt(1000)).String() + "k"
			if strings.Contains(compact, k) {
				return true
			}
		}
	}
	return false
}

func rangeText(res RangeResult) string {
	var base string
	switch res.Positioning {
	case PositionTooAggressive:
		base = "Your client worries this demand overreaches. The other side may dismiss it outright and your credibility could suffer."
	case PositionStrong:
		base = "Your client is pleased. This demand captures the full value of the claim while staying credible."
	case PositionReasonableOpening:
		base = "Your client can live with this. It protects their core interests, though they hope you will push for more where the facts allow."
	case PositionBelowMinimum:
		base = "Your client is very upset. This figure falls short of what they told you they could ever accept."
	case PositionExcellent:
		base = "Leadership is delighted. This offer keeps the company's exposure well contained."
	case PositionIdealAmount:
		base = "Leadership is satisfied. This is right where they hoped to land."
	case PositionAcceptableCompromise:
		base = "Leadership accepts this as a fair compromise, though they would prefer you hold the line."
	case PositionConcerningAmount:
		base = "The board is uneasy. This figure is getting close to the limit of what they authorized."
	case PositionExceedsMaximum:
		base = "The board is alarmed. This offer goes beyond anything they authorized you to commit."
	default:
		base = "Your client is reviewing the latest developments."
	}
	switch res.PressureLevel {
	case PressureModerate:
		return base + " There is some pressure to adjust your approach."
	case PressureHigh:
		return base + " Expect your client to push for a change of course."
	case PressureExtreme:
		return base + " Your client expects an immediate change of course."
	default:
		return base
	}
}

func guidanceText(audience Role, gap GapAnalysis) string {
	side := "the defense"
	if audience == RoleDefendant {
		side = "the plaintiff"
	}
	switch gap.Category {
	case GapSettlementZone:
		return "Your client senses a deal is within reach. " + gap.Guidance + " Confirm the terms with " + side + " promptly."
	case GapNegotiable:
		return "Your client thinks there is room to talk. " + gap.Guidance
	default:
		return "Your client is worried the talks are stalling. " + gap.Guidance + " Consider what " + side + " needs to hear to move."
	}
}

func pressureText(t EventType, role Role) string {
	plaintiff := role == RolePlaintiff
	switch t {
	case EventMediaAttention:
		if plaintiff {
			return "The press coverage has emboldened your client. They now expect a stronger result."
		}
		return "The press coverage has rattled leadership. They want this resolved quietly and are more willing to pay."
	case EventIPODelay:
		if plaintiff {
			return "Word is the company's public offering is on hold until this case is resolved. Your client senses leverage."
		}
		return "The public offering is on hold until this case is gone. Leadership has loosened the purse strings."
	case EventCourtDeadline:
		if plaintiff {
			return "A firm court date is approaching. Your client is anxious about trial but feels their hand has strengthened."
		}
		return "A firm court date is approaching. Leadership wants to avoid the cost and risk of trial."
	case EventWitnessChange:
		if plaintiff {
			return "A new witness has come forward in support of your client. They are more confident than before."
		}
		return "A new witness supports the other side. Leadership recognizes the case has become riskier."
	case EventEvidenceRelease:
		if plaintiff {
			return "Newly released evidence has changed the picture. Your client believes the facts favor them."
		}
		return "Newly released evidence has weakened the defense. Leadership is reconsidering its limits."
	default:
		return "Developments in the case have shifted your client's outlook."
	}
}
