package negotiation

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const maxInstructorAdjustment = 10

// PerformanceInput is a finished (or stopped) simulation as seen by the
// scorer. Members maps each team to its users.
type PerformanceInput struct {
	Simulation  Simulation
	Rounds      []Round
	Offers      []Offer
	Outcome     *ArbitrationOutcome
	Members     map[uuid.UUID][]uuid.UUID
	Adjustments map[scoreKey]adjustment
}

type scoreKey struct {
	team uuid.UUID
	user uuid.UUID
}

type adjustment struct {
	delta float64
	note  string
}

// PerformanceScorer grades conduct after the fact. Individual components are
// clamped to their caps; team rows average their members component by
// component.
type PerformanceScorer struct{}

func (PerformanceScorer) Score(in PerformanceInput, now time.Time) []PerformanceScore {
	sim := in.Simulation
	var out []PerformanceScore
	for _, role := range []Role{RolePlaintiff, RoleDefendant} {
		teamID := sim.TeamFor(role)
		if teamID == uuid.Nil {
			continue
		}
		teamOffers := offersBy(in.Offers, func(o Offer) bool { return o.TeamID == teamID })
		settlement := settlementQuality(role, sim, in.Rounds, in.Offers, in.Outcome)

		members := in.Members[teamID]
		var individuals []PerformanceScore
		for _, user := range members {
			own := offersBy(teamOffers, func(o Offer) bool { return o.SubmittedBy == user })
			ps := componentScore(sim, in.Rounds, own, teamOffers, len(members), settlement)
			ps.TeamID = teamID
			ps.UserID = user
			individuals = append(individuals, ps)
		}

		var team PerformanceScore
		if len(individuals) == 0 {
			team = componentScore(sim, in.Rounds, teamOffers, teamOffers, 1, settlement)
		} else {
			team = averageScores(individuals)
		}
		team.TeamID = teamID
		team.UserID = uuid.Nil
		out = append(out, individuals...)
		out = append(out, team)
	}

	for i := range out {
		out[i].ID = uuid.New()
		out[i].SimulationID = sim.ID
		out[i].CalculatedAt = now
		if adj, ok := in.Adjustments[scoreKey{team: out[i].TeamID, user: out[i].UserID}]; ok {
			out[i].InstructorAdjustment = adj.delta
			out[i].InstructorNote = adj.note
		}
		out[i].TotalScore = totalScore(out[i])
	}
	rankScores(out)
	return out
}

func offersBy(offers []Offer, keep func(Offer) bool) []Offer {
	var out []Offer
	for _, o := range offers {
		if keep(o) {
			out = append(out, o)
		}
	}
	return out
}

// settlementQuality is the role's range satisfaction at the final amount,
// scaled by how the case ended: full weight for a settlement, three quarters
// for an award, half when only the team's last offer is known.
func settlementQuality(role Role, sim Simulation, rounds []Round, offers []Offer, outcome *ArbitrationOutcome) float64 {
	amount, weight, ok := finalAmount(role, sim, rounds, offers, outcome)
	if !ok {
		return 0
	}
	res, err := NewRangeValidator(ThresholdsOf(sim)).Validate(role, amount)
	if err != nil {
		return 0
	}
	return clampFloat(float64(res.SatisfactionScore)*0.4*weight, 0, 40)
}

func finalAmount(role Role, sim Simulation, rounds []Round, offers []Offer, outcome *ArbitrationOutcome) (decimal.Decimal, float64, bool) {
	for _, r := range rounds {
		if !r.SettlementReached {
			continue
		}
		var p, d *Offer
		for i := range offers {
			if offers[i].RoundID != r.ID {
				continue
			}
			if offers[i].Role == RolePlaintiff {
				p = &offers[i]
			} else {
				d = &offers[i]
			}
		}
		if p != nil && d != nil {
			return settlementAmount(p.Amount, d.Amount), 1, true
		}
	}
	if outcome != nil && outcome.AwardAmount.IsPositive() {
		return outcome.AwardAmount, 0.75, true
	}
	var last *Offer
	for i := range offers {
		if offers[i].TeamID != sim.TeamFor(role) {
			continue
		}
		if last == nil || offers[i].RoundNumber > last.RoundNumber {
			last = &offers[i]
		}
	}
	if last == nil || !last.Amount.IsPositive() {
		return decimal.Zero, 0, false
	}
	return last.Amount, 0.5, true
}

// settlementAmount is the midpoint of the two agreeing offers.
func settlementAmount(plaintiff, defendant decimal.Decimal) decimal.Decimal {
	return plaintiff.Add(defendant).Div(decimal.NewFromInt(2)).Round(0)
}

func componentScore(sim Simulation, rounds []Round, own, team []Offer, members int, settlement float64) PerformanceScore {
	ps := PerformanceScore{SettlementQuality: settlement}

	switch {
	case len(own) > 0:
		ps.LegalStrategy = meanQuality(own) * 0.3
	case len(team) > 0:
		ps.LegalStrategy = meanQuality(team) * 0.3 * 0.5
	}
	ps.LegalStrategy = clampFloat(ps.LegalStrategy, 0, 30)

	ps.Collaboration = 10
	if len(team) > 0 && members > 0 {
		share := float64(len(team)) / float64(members)
		ps.Collaboration = clampFloat(10+10*clampFloat(float64(len(own))/share, 0, 1), 0, 20)
	}

	if sim.TotalRounds > 0 {
		used := clampInt(sim.CurrentRound, 1, sim.TotalRounds)
		ps.Efficiency = clampFloat(10*float64(sim.TotalRounds-used+1)/float64(sim.TotalRounds), 0, 10)
	}

	ps.SpeedBonus = clampFloat(10*meanTimeLeft(rounds, own), 0, 10)

	if len(own) > 0 {
		withTerms := len(offersBy(own, func(o Offer) bool { return o.NonMonetaryTerms != "" }))
		ps.CreativeTerms = clampFloat(10*float64(withTerms)/float64(len(own)), 0, 10)
	}
	return ps
}

func meanQuality(offers []Offer) float64 {
	if len(offers) == 0 {
		return 0
	}
	sum := 0
	for _, o := range offers {
		sum += o.QualityScore
	}
	return float64(sum) / float64(len(offers))
}

// meanTimeLeft is the average share of each round's window still left when
// the offer went in.
func meanTimeLeft(rounds []Round, offers []Offer) float64 {
	byID := map[uuid.UUID]Round{}
	for _, r := range rounds {
		byID[r.ID] = r
	}
	n := 0
	total := 0.0
	for _, o := range offers {
		r, ok := byID[o.RoundID]
		if !ok || r.StartedAt == nil {
			continue
		}
		window := r.Deadline.Sub(*r.StartedAt)
		if window <= 0 {
			continue
		}
		total += clampFloat(float64(r.Deadline.Sub(o.SubmittedAt))/float64(window), 0, 1)
		n++
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

func averageScores(scores []PerformanceScore) PerformanceScore {
	var avg PerformanceScore
	for _, s := range scores {
		avg.SettlementQuality += s.SettlementQuality
		avg.LegalStrategy += s.LegalStrategy
		avg.Collaboration += s.Collaboration
		avg.Efficiency += s.Efficiency
		avg.SpeedBonus += s.SpeedBonus
		avg.CreativeTerms += s.CreativeTerms
	}
	n := float64(len(scores))
	avg.SettlementQuality /= n
	avg.LegalStrategy /= n
	avg.Collaboration /= n
	avg.Efficiency /= n
	avg.SpeedBonus /= n
	avg.CreativeTerms /= n
	return avg
}

func totalScore(s PerformanceScore) float64 {
	sum := clampFloat(s.SettlementQuality, 0, 40) +
		clampFloat(s.LegalStrategy, 0, 30) +
		clampFloat(s.Collaboration, 0, 20) +
		clampFloat(s.Efficiency, 0, 10) +
		clampFloat(s.SpeedBonus, 0, 10) +
		clampFloat(s.CreativeTerms, 0, 10) +
		clampFloat(s.InstructorAdjustment, -maxInstructorAdjustment, maxInstructorAdjustment)
	return clampFloat(sum, 0, 100)
}

// rankScores ranks team rows against team rows and individual rows against
// individual rows. Ties share a rank.
func rankScores(scores []PerformanceScore) {
	for _, teamLevel := range []bool{true, false} {
		var idx []int
		for i := range scores {
			if scores[i].TeamLevel() == teamLevel {
				idx = append(idx, i)
			}
		}
		sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]].TotalScore > scores[idx[b]].TotalScore })
		n := len(idx)
		for pos, i := range idx {
			rank := pos + 1
			if pos > 0 && scores[i].TotalScore == scores[idx[pos-1]].TotalScore {
				rank = scores[idx[pos-1]].Rank
			}
			scores[i].Rank = rank
			if n == 1 {
				scores[i].Percentile = 100
			} else {
				scores[i].Percentile = float64(n-rank) / float64(n-1) * 100
			}
		}
	}
}
