package negotiation

import (
	"strings"
	"testing"
)

func TestOfferScorerBounds(t *testing.T) {
	long := strings.Repeat("Respectfully, the evidence of negligence and liability supports damages under the statute. ", 3)
	opposing := &Offer{Amount: dec(295000)}

	best := OfferScorer{}.Score(ScoreInput{
		Role:             RolePlaintiff,
		Amount:           dec(300000),
		Justification:    long,
		NonMonetaryTerms: "Public apology, diversity training, a policy review, confidentiality and a neutral reference.",
		Thresholds:       standardThresholds,
		Opposing:         opposing,
	})
	if best != (QualityBreakdown{Justification: 25, Alignment: 25, Positioning: 25, Creativity: 25}) {
		t.Fatalf("unexpected best breakdown: %+v", best)
	}
	if best.Total() != 100 {
		t.Fatalf("total = %d", best.Total())
	}

	worst := OfferScorer{}.Score(ScoreInput{Role: RolePlaintiff, Amount: dec(100000), Thresholds: standardThresholds})
	if worst != (QualityBreakdown{Positioning: 15}) {
		t.Fatalf("unexpected worst breakdown: %+v", worst)
	}
}

func TestPositioningScoreTiers(t *testing.T) {
	tests := []struct {
		opposing int64
		want     int
	}{
		{205000, 25},
		{230000, 20},
		{280000, 15},
		{350000, 10},
		{500000, 5},
	}
	for _, tc := range tests {
		if got := positioningScore(dec(200000), &Offer{Amount: dec(tc.opposing)}); got != tc.want {
			t.Fatalf("opposing %d: got %d, want %d", tc.opposing, got, tc.want)
		}
	}
}

func TestDefendantAlignment(t *testing.T) {
	if alignmentScore(RoleDefendant, dec(250000), standardThresholds) != 25 {
		t.Fatal("offer at maximum is aligned")
	}
	if alignmentScore(RoleDefendant, dec(250001), standardThresholds) != 0 {
		t.Fatal("offer over maximum is not aligned")
	}
}

func TestOfferTypeFor(t *testing.T) {
	tests := []struct {
		round, total int
		want         OfferType
	}{
		{1, 6, OfferInitialDemand},
		{3, 6, OfferCounteroffer},
		{6, 6, OfferFinal},
		{1, 1, OfferInitialDemand},
	}
	for _, tc := range tests {
		if got := OfferTypeFor(tc.round, tc.total); got != tc.want {
			t.Fatalf("OfferTypeFor(%d, %d) = %s", tc.round, tc.total, got)
		}
	}
}
