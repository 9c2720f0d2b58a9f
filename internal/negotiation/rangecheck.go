package negotiation

import (
	"math"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Positioning string

const (
	PositionTooAggressive        Positioning = "too_aggressive"
	PositionStrong               Positioning = "strong_position"
	PositionReasonableOpening    Positioning = "reasonable_opening"
	PositionBelowMinimum         Positioning = "below_minimum"
	PositionExcellent            Positioning = "excellent_position"
	PositionIdealAmount          Positioning = "ideal_amount"
	PositionAcceptableCompromise Positioning = "acceptable_compromise"
	PositionConcerningAmount     Positioning = "concerning_amount"
	PositionExceedsMaximum       Positioning = "exceeds_maximum"
)

type PressureLevel string

const (
	PressureLow      PressureLevel = "low"
	PressureModerate PressureLevel = "moderate"
	PressureHigh     PressureLevel = "high"
	PressureExtreme  PressureLevel = "extreme"
)

type RangeResult struct {
	Role                  Role          `json:"role"`
	Positioning           Positioning   `json:"positioning"`
	SatisfactionScore     int           `json:"satisfaction_score"`
	Mood                  Mood          `json:"mood"`
	FeedbackTheme         string        `json:"feedback_theme"`
	PressureLevel         PressureLevel `json:"pressure_level"`
	WithinAcceptableRange bool          `json:"within_acceptable_range"`
}

// Thresholds is the private acceptability range of both sides.
type Thresholds struct {
	PlaintiffMin   decimal.Decimal
	PlaintiffIdeal decimal.Decimal
	DefendantIdeal decimal.Decimal
	DefendantMax   decimal.Decimal
}

func ThresholdsOf(s Simulation) Thresholds {
	return Thresholds{
		PlaintiffMin:   s.PlaintiffMinAcceptable,
		PlaintiffIdeal: s.PlaintiffIdeal,
		DefendantIdeal: s.DefendantIdeal,
		DefendantMax:   s.DefendantMaxAcceptable,
	}
}

// RangeValidator classifies an amount against one simulation's thresholds.
// It has no side effects.
type RangeValidator struct {
	t Thresholds
}

func NewRangeValidator(t Thresholds) RangeValidator {
	return RangeValidator{t: t}
}

// ValidateTeam resolves teamID to its role in sim before classifying.
func ValidateTeam(sim Simulation, teamID uuid.UUID, amount decimal.Decimal) (RangeResult, error) {
	role, ok := sim.RoleOf(teamID)
	if !ok {
		return RangeResult{}, newFieldError("team_id", "invalid_team: team is not assigned to this simulation")
	}
	return NewRangeValidator(ThresholdsOf(sim)).Validate(role, amount)
}

func (v RangeValidator) Validate(role Role, amount decimal.Decimal) (RangeResult, error) {
	if !amount.IsPositive() {
		return RangeResult{}, newFieldError("amount", "invalid_amount: amount must be positive")
	}
	switch role {
	case RolePlaintiff:
		return v.plaintiff(amount.InexactFloat64()), nil
	case RoleDefendant:
		return v.defendant(amount.InexactFloat64()), nil
	default:
		return RangeResult{}, newFieldError("team_id", "invalid_team: unknown role")
	}
}

func (v RangeValidator) plaintiff(amount float64) RangeResult {
	minimum := v.t.PlaintiffMin.InexactFloat64()
	ideal := v.t.PlaintiffIdeal.InexactFloat64()
	res := RangeResult{Role: RolePlaintiff, WithinAcceptableRange: amount >= minimum}

	switch {
	case amount < minimum:
		res.Positioning = PositionBelowMinimum
		res.SatisfactionScore = lerp(10, 25, fraction(amount, minimum))
		res.Mood = MoodVeryUnhappy
		res.FeedbackTheme = "client_disappointment"
	case amount >= ideal*1.05:
		// 40 down to 20 as the demand overshoots further past ideal.
		over := fraction(amount/ideal-1.05, 0.45)
		res.Positioning = PositionTooAggressive
		res.SatisfactionScore = lerp(40, 20, over)
		res.Mood = MoodUnhappy
		res.FeedbackTheme = "overreaching_demand"
	case amount >= ideal*0.95:
		res.Positioning = PositionStrong
		res.SatisfactionScore = lerp(80, 90, fraction(amount-ideal*0.95, ideal*0.10))
		res.Mood = MoodSatisfied
		res.FeedbackTheme = "strong_advocacy"
	default:
		res.Positioning = PositionReasonableOpening
		res.SatisfactionScore = lerp(70, 85, fraction(amount-minimum, ideal*0.95-minimum))
		res.Mood = MoodSatisfied
		res.FeedbackTheme = "reasonable_progress"
	}
	res.PressureLevel = pressureFor(amount, ideal, !res.WithinAcceptableRange)
	return res
}

func (v RangeValidator) defendant(amount float64) RangeResult {
	ideal := v.t.DefendantIdeal.InexactFloat64()
	maximum := v.t.DefendantMax.InexactFloat64()
	res := RangeResult{Role: RoleDefendant, WithinAcceptableRange: amount <= maximum}

	switch {
	case amount > maximum:
		res.Positioning = PositionExceedsMaximum
		res.SatisfactionScore = lerp(25, 10, fraction(amount-maximum, maximum))
		res.Mood = MoodVeryUnhappy
		res.FeedbackTheme = "budget_exceeded"
	case amount <= ideal:
		res.Positioning = PositionIdealAmount
		if amount < ideal*0.95 {
			res.Positioning = PositionExcellent
		}
		res.SatisfactionScore = lerp(95, 80, fraction(amount, ideal))
		res.Mood = ScoreToMood(res.SatisfactionScore)
		res.FeedbackTheme = "cost_savings"
	default:
		band := fraction(amount-ideal, maximum-ideal)
		if band <= 0.75 {
			res.Positioning = PositionAcceptableCompromise
			res.SatisfactionScore = lerp(75, 60, band/0.75)
			res.Mood = MoodNeutral
			res.FeedbackTheme = "compromise_acceptable"
		} else {
			res.Positioning = PositionConcerningAmount
			res.SatisfactionScore = lerp(50, 35, (band-0.75)/0.25)
			res.Mood = MoodUnhappy
			res.FeedbackTheme = "budget_concern"
		}
	}
	res.PressureLevel = pressureFor(amount, ideal, !res.WithinAcceptableRange)
	return res
}

// pressureFor tiers the relative distance from the acting side's ideal.
// Amounts outside the acceptable range are always extreme.
func pressureFor(amount, ideal float64, outside bool) PressureLevel {
	if outside {
		return PressureExtreme
	}
	if ideal <= 0 {
		return PressureModerate
	}
	d := math.Abs(amount-ideal) / ideal
	switch {
	case d <= 0.10:
		return PressureLow
	case d <= 0.25:
		return PressureModerate
	case d <= 0.50:
		return PressureHigh
	default:
		return PressureExtreme
	}
}

type GapCategory string

const (
	GapSettlementZone GapCategory = "settlement_zone"
	GapNegotiable     GapCategory = "negotiable_gap"
	GapLarge          GapCategory = "large_gap"
)

type GapAnalysis struct {
	Gap         decimal.Decimal `json:"gap"`
	RelativeGap float64         `json:"relative_gap"`
	Category    GapCategory     `json:"category"`
	Likelihood  string          `json:"likelihood"`
	Guidance    string          `json:"guidance"`
}

// AnalyzeGap compares a plaintiff demand with a defendant offer. A negative
// gap means the offers already cross.
func AnalyzeGap(plaintiffAmount, defendantAmount decimal.Decimal, settlementThreshold, negotiableThreshold float64) GapAnalysis {
	gap := plaintiffAmount.Sub(defendantAmount)
	rel := relativeGap(plaintiffAmount, defendantAmount, gap)
	out := GapAnalysis{Gap: gap, RelativeGap: rel}
	switch {
	case gap.IsNegative():
		out.Category = GapSettlementZone
		out.Likelihood = "very_likely"
		out.Guidance = "The positions already overlap. Lock in terms before the window closes."
	case rel <= settlementThreshold:
		out.Category = GapSettlementZone
		out.Likelihood = "likely"
		out.Guidance = "The sides are very close. A small concession should close the deal."
	case rel <= negotiableThreshold:
		out.Category = GapNegotiable
		out.Likelihood = "possible"
		out.Guidance = "A meaningful gap remains. Creative non-monetary terms could bridge it."
	default:
		out.Category = GapLarge
		out.Likelihood = "unlikely"
		out.Guidance = "The positions are far apart. Both sides need to reposition substantially."
	}
	return out
}

// SettlementReached is symmetric: only |a-b| ÷ average(a, b) matters.
func SettlementReached(a, b decimal.Decimal, threshold float64) bool {
	gap := a.Sub(b).Abs()
	return relativeGap(a, b, gap) <= threshold
}

func relativeGap(a, b, gap decimal.Decimal) float64 {
	avg := a.Add(b).Div(decimal.NewFromInt(2))
	if !avg.IsPositive() {
		if gap.IsZero() {
			return 0
		}
		return math.Inf(1)
	}
	return gap.Div(avg).InexactFloat64()
}

func fraction(num, den float64) float64 {
	if den <= 0 {
		return 1
	}
	return clampFloat(num/den, 0, 1)
}

func lerp(from, to int, t float64) int {
	return int(math.Round(float64(from) + float64(to-from)*clampFloat(t, 0, 1)))
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
