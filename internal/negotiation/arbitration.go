package negotiation

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	maxRationaleLen = 2000
	minRationaleLen = 100
)

// NewSeed reads a seed from crypto/rand.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

// NewRand returns a PCG source for seed; zero draws a fresh seed.
func NewRand(seed int64) (*rand.Rand, error) {
	if seed == 0 {
		s, err := NewSeed()
		if err != nil {
			return nil, err
		}
		seed = s
	}
	return rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15)), nil
}

// ArbitrationInput is the simulation as it stands when rounds run out.
type ArbitrationInput struct {
	Simulation Simulation
	Rounds     []Round
	Offers     []Offer
}

// ArbitrationCalculator computes a bounded award from weighted factors. It is
// not safe for concurrent use; the engine serializes calls.
type ArbitrationCalculator struct {
	rng         *rand.Rand
	multipliers map[string]float64
}

func NewArbitrationCalculator(rng *rand.Rand, multipliers map[string]float64) *ArbitrationCalculator {
	if multipliers == nil {
		multipliers = DefaultCaseMultipliers()
	}
	return &ArbitrationCalculator{rng: rng, multipliers: multipliers}
}

func (c *ArbitrationCalculator) Calculate(in ArbitrationInput, now time.Time) ArbitrationOutcome {
	sim := in.Simulation
	evidence := clampFloat(0.6+(c.rng.Float64()*0.4-0.2), 0.1, 0.9)
	argument := argumentQuality(in.Offers)
	history := negotiationHistory(in.Rounds, in.Offers)
	variance := 0.8 + c.rng.Float64()*0.4

	award := c.award(sim, evidence, argument, history, variance)
	outcome := ArbitrationOutcome{
		ID:                 uuid.New(),
		SimulationID:       sim.ID,
		AwardAmount:        award,
		OutcomeType:        classifyAward(award, sim),
		EvidenceStrength:   evidence,
		ArgumentQuality:    argument,
		NegotiationHistory: history,
		RandomVariance:     variance,
		CalculatedAt:       now,
		CreatedAt:          now,
	}
	outcome.Rationale = rationale(outcome)
	outcome.LessonsLearned = lessons(outcome, sim, in.Rounds, in.Offers)
	return outcome
}

func (c *ArbitrationCalculator) award(sim Simulation, evidence, argument, history, variance float64) decimal.Decimal {
	mult := 1.0
	if m, ok := c.multipliers[strings.ToLower(sim.CaseType)]; ok && m > 0 {
		mult = m
	}
	base := sim.PlaintiffMinAcceptable.Add(sim.DefendantMaxAcceptable).InexactFloat64() / 2 * mult
	adjusted := base * (1 + 0.30*(evidence-0.5) + 0.25*(argument-0.5) + 0.15*(history-0.5))
	adjusted = math.Max(adjusted, 0) * variance

	ceiling := sim.PlaintiffIdeal.Mul(decimal.NewFromFloat(1.5))
	award := decimal.NewFromFloat(adjusted).Round(0)
	if award.GreaterThan(ceiling) {
		award = ceiling.Floor()
	}
	if award.IsNegative() {
		award = decimal.Zero
	}
	return award
}

func argumentQuality(offers []Offer) float64 {
	if len(offers) == 0 {
		return 0.5
	}
	sum := 0
	for _, o := range offers {
		sum += o.QualityScore
	}
	return clampFloat(float64(sum)/float64(len(offers))/100, 0.1, 0.9)
}

// negotiationHistory scores the share of completed rounds that narrowed the
// gap. A round with no earlier gap counts when its relative gap is at most
// one half. With no completed two-sided round the factor is neutral.
func negotiationHistory(rounds []Round, offers []Offer) float64 {
	gaps := roundGaps(rounds, offers)
	if len(gaps) == 0 {
		return 0.5
	}
	reasonable := 0
	for i, g := range gaps {
		if i == 0 {
			if g.rel <= 0.5 {
				reasonable++
			}
			continue
		}
		if g.gap.LessThan(gaps[i-1].gap) {
			reasonable++
		}
	}
	frac := float64(reasonable) / float64(len(gaps))
	return clampFloat(0.3+0.4*frac, 0.1, 0.9)
}

type roundGap struct {
	number int
	gap    decimal.Decimal
	rel    float64
}

// roundGaps lists plaintiff minus defendant per completed round that has
// offers from both sides, in round order.
func roundGaps(rounds []Round, offers []Offer) []roundGap {
	byRound := map[uuid.UUID]map[Role]Offer{}
	for _, o := range offers {
		if byRound[o.RoundID] == nil {
			byRound[o.RoundID] = map[Role]Offer{}
		}
		byRound[o.RoundID][o.Role] = o
	}
	sorted := append([]Round(nil), rounds...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].RoundNumber < sorted[j].RoundNumber })

	var out []roundGap
	for _, r := range sorted {
		if r.Status != RoundCompleted {
			continue
		}
		p, okP := byRound[r.ID][RolePlaintiff]
		d, okD := byRound[r.ID][RoleDefendant]
		if !okP || !okD {
			continue
		}
		gap := p.Amount.Sub(d.Amount)
		out = append(out, roundGap{number: r.RoundNumber, gap: gap, rel: relativeGap(p.Amount, d.Amount, gap.Abs())})
	}
	return out
}

// classifyAward checks no_award first so a zero award is never a defendant
// victory.
func classifyAward(award decimal.Decimal, sim Simulation) OutcomeType {
	switch {
	case award.IsZero():
		return OutcomeNoAward
	case award.GreaterThanOrEqual(sim.PlaintiffIdeal.Mul(decimal.NewFromFloat(0.8))):
		return OutcomePlaintiffVictory
	case award.LessThanOrEqual(sim.DefendantIdeal.Mul(decimal.NewFromFloat(1.2))):
		return OutcomeDefendantVictory
	default:
		return OutcomeSplitDecision
	}
}

func rationale(o ArbitrationOutcome) string {
	var b strings.Builder
	b.WriteString("After the parties failed to reach a negotiated settlement, the arbitrator reviewed the record and ")
	switch o.OutcomeType {
	case OutcomeNoAward:
		b.WriteString("declined to make any award. ")
	case OutcomePlaintiffVictory:
		b.WriteString("found substantially in favor of the plaintiff with an award of " + o.AwardAmount.StringFixed(0) + ". ")
	case OutcomeDefendantVictory:
		b.WriteString("found largely in favor of the defendant with a limited award of " + o.AwardAmount.StringFixed(0) + ". ")
	default:
		b.WriteString("split the difference with an award of " + o.AwardAmount.StringFixed(0) + ". ")
	}

	switch {
	case o.EvidenceStrength >= 0.65:
		b.WriteString("The evidence supporting the claim was strong. ")
	case o.EvidenceStrength >= 0.45:
		b.WriteString("The evidence was mixed and left room for doubt on both sides. ")
	default:
		b.WriteString("The evidence supporting the claim was limited. ")
	}
	switch {
	case o.ArgumentQuality >= 0.65:
		b.WriteString("Counsel presented strong, well-reasoned arguments. ")
	case o.ArgumentQuality >= 0.45:
		b.WriteString("The written arguments were adequate but rarely persuasive. ")
	default:
		b.WriteString("The arguments offered were weak and thinly supported. ")
	}
	switch {
	case o.NegotiationHistory >= 0.55:
		b.WriteString("Both teams negotiated in good faith and moved toward each other over the rounds. ")
	case o.NegotiationHistory >= 0.45:
		b.WriteString("The negotiation showed some movement, though neither side committed to closing the gap. ")
	default:
		b.WriteString("The negotiation record reflects unreasonable positions that barely moved. ")
	}
	b.WriteString("The arbitrator weighed these factors together with the inherent uncertainty of any hearing.")

	s := b.String()
	if len(s) > maxRationaleLen {
		s = s[:maxRationaleLen]
	}
	return s
}

func lessons(o ArbitrationOutcome, sim Simulation, rounds []Round, offers []Offer) []string {
	var out []string
	if o.AwardAmount.LessThan(sim.PlaintiffMinAcceptable) {
		out = append(out, "The award fell below what the plaintiff would have accepted. A negotiated settlement would have served the plaintiff better.")
	}
	if o.AwardAmount.GreaterThan(sim.DefendantMaxAcceptable) {
		out = append(out, "The award exceeded what the defendant was prepared to pay. Settling would have capped the defendant's exposure.")
	}
	if !sim.PlaintiffMinAcceptable.GreaterThan(sim.DefendantMaxAcceptable) {
		out = append(out, "A settlement zone existed throughout the negotiation. Both teams missed a chance to control the outcome.")
	}
	if gaps := roundGaps(rounds, offers); len(gaps) > 0 {
		last := gaps[len(gaps)-1]
		if last.rel > 0.25 {
			out = append(out, "The final positions were still far apart. Earlier repositioning might have opened a path to agreement.")
		} else {
			out = append(out, "The final positions were within reach of each other. A modest concession could have closed the deal.")
		}
	}
	if o.ArgumentQuality < 0.45 {
		out = append(out, "Stronger legal reasoning in offer justifications would have carried more weight with the arbitrator.")
	}
	out = append(out, "Arbitration trades control for certainty of an end point; the award carried a variance no negotiated deal would.")
	return out
}
