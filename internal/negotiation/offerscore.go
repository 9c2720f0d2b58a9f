package negotiation

import (
	"strings"

	"github.com/shopspring/decimal"
)

var legalKeywords = []string{
	"precedent", "liability", "damages", "evidence", "statute", "negligence",
	"breach", "testimony", "jurisdiction", "litigation", "exposure", "risk",
	"discrimination", "retaliation", "case law", "verdict",
}

var professionalMarkers = []string{
	"respectfully", "we propose", "in good faith", "our client", "we believe",
	"in light of", "we submit",
}

var creativeKeywords = []string{
	"apology", "training", "policy", "confidentiality", "reference", "mediation",
}

// OfferScorer rates an offer 0..100 from four 0..25 sub-scores.
type OfferScorer struct{}

// ScoreInput is everything the scorer needs; Opposing is the latest offer of
// the other side at or before this round, nil when there is none.
type ScoreInput struct {
	Role             Role
	Amount           decimal.Decimal
	Justification    string
	NonMonetaryTerms string
	Thresholds       Thresholds
	Opposing         *Offer
}

func (OfferScorer) Score(in ScoreInput) QualityBreakdown {
	return QualityBreakdown{
		Justification: justificationScore(in.Justification),
		Alignment:     alignmentScore(in.Role, in.Amount, in.Thresholds),
		Positioning:   positioningScore(in.Amount, in.Opposing),
		Creativity:    creativityScore(in.NonMonetaryTerms),
	}
}

func justificationScore(text string) int {
	text = strings.TrimSpace(text)
	lower := strings.ToLower(text)
	score := 0
	switch n := len([]rune(text)); {
	case n >= 200:
		score += 10
	case n >= 100:
		score += 5
	}
	score += min(countKeywords(lower, legalKeywords)*2, 10)
	if countKeywords(lower, professionalMarkers) > 0 {
		score += 5
	}
	return clampInt(score, 0, 25)
}

func alignmentScore(role Role, amount decimal.Decimal, t Thresholds) int {
	switch role {
	case RolePlaintiff:
		if amount.GreaterThanOrEqual(t.PlaintiffMin) {
			return 25
		}
	case RoleDefendant:
		if amount.LessThanOrEqual(t.DefendantMax) {
			return 25
		}
	}
	return 0
}

func positioningScore(amount decimal.Decimal, opposing *Offer) int {
	if opposing == nil {
		return 15
	}
	gap := amount.Sub(opposing.Amount).Abs().InexactFloat64()
	switch {
	case gap < 10000:
		return 25
	case gap < 50000:
		return 20
	case gap < 100000:
		return 15
	case gap < 200000:
		return 10
	default:
		return 5
	}
}

func creativityScore(terms string) int {
	terms = strings.TrimSpace(terms)
	if terms == "" {
		return 0
	}
	bonus := min(countKeywords(strings.ToLower(terms), creativeKeywords)*3, 15)
	return clampInt(10+bonus, 0, 25)
}

func countKeywords(lower string, keywords []string) int {
	n := 0
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			n++
		}
	}
	return n
}

// OfferTypeFor derives the offer type from the round position.
func OfferTypeFor(roundNumber, totalRounds int) OfferType {
	switch {
	case roundNumber <= 1:
		return OfferInitialDemand
	case roundNumber >= totalRounds:
		return OfferFinal
	default:
		return OfferCounteroffer
	}
}
