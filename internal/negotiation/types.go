package negotiation

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Role string

const (
	RolePlaintiff Role = "plaintiff"
	RoleDefendant Role = "defendant"
)

func (r Role) Opponent() Role {
	if r == RolePlaintiff {
		return RoleDefendant
	}
	return RolePlaintiff
}

type SimulationStatus string

const (
	SimulationSetup       SimulationStatus = "setup"
	SimulationActive      SimulationStatus = "active"
	SimulationPaused      SimulationStatus = "paused"
	SimulationCompleted   SimulationStatus = "completed"
	SimulationArbitration SimulationStatus = "arbitration"
)

type RoundStatus string

const (
	RoundPending            RoundStatus = "pending"
	RoundActive             RoundStatus = "active"
	RoundPlaintiffSubmitted RoundStatus = "plaintiff_submitted"
	RoundDefendantSubmitted RoundStatus = "defendant_submitted"
	RoundBothSubmitted      RoundStatus = "both_submitted"
	RoundCompleted          RoundStatus = "completed"
)

type OfferType string

const (
	OfferInitialDemand OfferType = "initial_demand"
	OfferCounteroffer  OfferType = "counteroffer"
	OfferFinal         OfferType = "final_offer"
)

type Mood string

const (
	MoodVeryUnhappy   Mood = "very_unhappy"
	MoodUnhappy       Mood = "unhappy"
	MoodNeutral       Mood = "neutral"
	MoodSatisfied     Mood = "satisfied"
	MoodVerySatisfied Mood = "very_satisfied"
)

type FeedbackType string

const (
	FeedbackOfferReaction          FeedbackType = "offer_reaction"
	FeedbackStrategyGuidance       FeedbackType = "strategy_guidance"
	FeedbackPressureResponse       FeedbackType = "pressure_response"
	FeedbackSettlementSatisfaction FeedbackType = "settlement_satisfaction"
)

type FeedbackSource string

const (
	SourceRange    FeedbackSource = "range"
	SourceNarrator FeedbackSource = "narrator"
)

type EventType string

const (
	EventMediaAttention  EventType = "media_attention"
	EventWitnessChange   EventType = "witness_change"
	EventIPODelay        EventType = "ipo_delay"
	EventCourtDeadline   EventType = "court_deadline"
	EventEvidenceRelease EventType = "evidence_release"
	EventRoundAdvanced   EventType = "round_advanced"
)

// Pressure adjustment keys understood by ApplyAdjustment.
const (
	AdjustPlaintiffMin   = "plaintiff_min_increase"
	AdjustPlaintiffIdeal = "plaintiff_ideal_increase"
	AdjustDefendantIdeal = "defendant_ideal_increase"
	AdjustDefendantMax   = "defendant_max_increase"
)

type OutcomeType string

const (
	OutcomePlaintiffVictory OutcomeType = "plaintiff_victory"
	OutcomeDefendantVictory OutcomeType = "defendant_victory"
	OutcomeSplitDecision    OutcomeType = "split_decision"
	OutcomeNoAward          OutcomeType = "no_award"
)

type ReleaseStatus string

const (
	ReleasePending  ReleaseStatus = "pending"
	ReleaseApproved ReleaseStatus = "approved"
	ReleaseReleased ReleaseStatus = "released"
	ReleaseDenied   ReleaseStatus = "denied"
)

type Simulation struct {
	ID                     uuid.UUID        `json:"id"`
	CaseID                 uuid.UUID        `json:"case_id"`
	CaseType               string           `json:"case_type,omitempty"`
	PlaintiffTeamID        uuid.UUID        `json:"plaintiff_team_id"`
	DefendantTeamID        uuid.UUID        `json:"defendant_team_id"`
	PlaintiffMinAcceptable decimal.Decimal  `json:"plaintiff_min_acceptable"`
	PlaintiffIdeal         decimal.Decimal  `json:"plaintiff_ideal"`
	DefendantIdeal         decimal.Decimal  `json:"defendant_ideal"`
	DefendantMaxAcceptable decimal.Decimal  `json:"defendant_max_acceptable"`
	TotalRounds            int              `json:"total_rounds"`
	CurrentRound           int              `json:"current_round"`
	Status                 SimulationStatus `json:"status"`
	Config                 map[string]any   `json:"config,omitempty"`
	CreatedAt              time.Time        `json:"created_at"`
	UpdatedAt              time.Time        `json:"updated_at"`
	StartedAt              *time.Time       `json:"started_at,omitempty"`
	PausedAt               *time.Time       `json:"paused_at,omitempty"`
	EndedAt                *time.Time       `json:"ended_at,omitempty"`
	DeletedAt              *time.Time       `json:"deleted_at,omitempty"`
}

// RoleOf reports which side teamID plays in this simulation.
func (s Simulation) RoleOf(teamID uuid.UUID) (Role, bool) {
	switch {
	case teamID == uuid.Nil:
		return "", false
	case teamID == s.PlaintiffTeamID:
		return RolePlaintiff, true
	case teamID == s.DefendantTeamID:
		return RoleDefendant, true
	}
	return "", false
}

func (s Simulation) TeamFor(role Role) uuid.UUID {
	if role == RolePlaintiff {
		return s.PlaintiffTeamID
	}
	return s.DefendantTeamID
}

func (s Simulation) Terminal() bool {
	return s.Status == SimulationCompleted || s.Status == SimulationArbitration
}

func (s Simulation) FinalRound() bool {
	return s.CurrentRound >= s.TotalRounds
}

type Round struct {
	ID                uuid.UUID   `json:"id"`
	SimulationID      uuid.UUID   `json:"simulation_id"`
	RoundNumber       int         `json:"round_number"`
	Deadline          time.Time   `json:"deadline"`
	Status            RoundStatus `json:"status"`
	SettlementReached bool        `json:"settlement_reached"`
	CreatedAt         time.Time   `json:"created_at"`
	StartedAt         *time.Time  `json:"started_at,omitempty"`
	PausedAt          *time.Time  `json:"paused_at,omitempty"`
	CompletedAt       *time.Time  `json:"completed_at,omitempty"`
}

type QualityBreakdown struct {
	Justification int `json:"justification"`
	Alignment     int `json:"alignment"`
	Positioning   int `json:"positioning"`
	Creativity    int `json:"creativity"`
}

func (b QualityBreakdown) Total() int {
	return clampInt(b.Justification+b.Alignment+b.Positioning+b.Creativity, 0, 100)
}

type Offer struct {
	ID               uuid.UUID        `json:"id"`
	SimulationID     uuid.UUID        `json:"simulation_id"`
	RoundID          uuid.UUID        `json:"round_id"`
	RoundNumber      int              `json:"round_number"`
	TeamID           uuid.UUID        `json:"team_id"`
	Role             Role             `json:"role"`
	SubmittedBy      uuid.UUID        `json:"submitted_by,omitempty"`
	Amount           decimal.Decimal  `json:"amount"`
	Justification    string           `json:"justification"`
	NonMonetaryTerms string           `json:"non_monetary_terms,omitempty"`
	OfferType        OfferType        `json:"offer_type"`
	QualityScore     int              `json:"quality_score"`
	Quality          QualityBreakdown `json:"quality_breakdown"`
	SubmittedAt      time.Time        `json:"submitted_at"`
}

type ClientFeedback struct {
	ID                uuid.UUID      `json:"id"`
	SimulationID      uuid.UUID      `json:"simulation_id"`
	TeamID            uuid.UUID      `json:"team_id"`
	RoundNumber       int            `json:"round_number"`
	OfferID           uuid.UUID      `json:"offer_id,omitempty"`
	EventID           uuid.UUID      `json:"event_id,omitempty"`
	Type              FeedbackType   `json:"feedback_type"`
	Mood              Mood           `json:"mood_level"`
	SatisfactionScore int            `json:"satisfaction_score"`
	Text              string         `json:"text"`
	Source            FeedbackSource `json:"source"`
	CreatedAt         time.Time      `json:"created_at"`
}

type Event struct {
	ID                 uuid.UUID                  `json:"id"`
	SimulationID       uuid.UUID                  `json:"simulation_id"`
	Type               EventType                  `json:"event_type"`
	TriggerRound       int                        `json:"trigger_round"`
	ScheduledFor       *time.Time                 `json:"scheduled_for,omitempty"`
	TriggeredAt        *time.Time                 `json:"triggered_at,omitempty"`
	PressureAdjustment map[string]decimal.Decimal `json:"pressure_adjustment,omitempty"`
	AdjustmentsApplied map[string]decimal.Decimal `json:"adjustments_applied,omitempty"`
	Automatic          bool                       `json:"automatic"`
	Description        string                     `json:"description,omitempty"`
	CreatedAt          time.Time                  `json:"created_at"`
}

func (e Event) Applied() bool {
	return e.TriggeredAt != nil
}

type ArbitrationOutcome struct {
	ID                 uuid.UUID       `json:"id"`
	SimulationID       uuid.UUID       `json:"simulation_id"`
	AwardAmount        decimal.Decimal `json:"award_amount"`
	OutcomeType        OutcomeType     `json:"outcome_type"`
	Rationale          string          `json:"rationale"`
	LessonsLearned     []string        `json:"lessons_learned"`
	EvidenceStrength   float64         `json:"evidence_strength"`
	ArgumentQuality    float64         `json:"argument_quality"`
	NegotiationHistory float64         `json:"negotiation_history"`
	RandomVariance     float64         `json:"random_variance"`
	CalculatedAt       time.Time       `json:"calculated_at"`
	CreatedAt          time.Time       `json:"created_at"`
}

type PerformanceScore struct {
	ID                   uuid.UUID `json:"id"`
	SimulationID         uuid.UUID `json:"simulation_id"`
	TeamID               uuid.UUID `json:"team_id"`
	UserID               uuid.UUID `json:"user_id,omitempty"`
	SettlementQuality    float64   `json:"settlement_quality"`
	LegalStrategy        float64   `json:"legal_strategy"`
	Collaboration        float64   `json:"collaboration"`
	Efficiency           float64   `json:"efficiency"`
	SpeedBonus           float64   `json:"speed_bonus"`
	CreativeTerms        float64   `json:"creative_terms"`
	InstructorAdjustment float64   `json:"instructor_adjustment"`
	InstructorNote       string    `json:"instructor_note,omitempty"`
	TotalScore           float64   `json:"total_score"`
	Rank                 int       `json:"rank"`
	Percentile           float64   `json:"percentile"`
	CalculatedAt         time.Time `json:"calculated_at"`
}

// TeamLevel reports whether the score aggregates a whole team.
func (p PerformanceScore) TeamLevel() bool {
	return p.UserID == uuid.Nil
}

type EvidenceRelease struct {
	ID           uuid.UUID     `json:"id"`
	SimulationID uuid.UUID     `json:"simulation_id"`
	DocumentID   uuid.UUID     `json:"document_id"`
	RequestedBy  uuid.UUID     `json:"requested_by,omitempty"`
	ReleaseRound int           `json:"release_round"`
	ScheduledFor *time.Time    `json:"scheduled_for,omitempty"`
	Automatic    bool          `json:"automatic"`
	Status       ReleaseStatus `json:"status"`
	ApprovedAt   *time.Time    `json:"approved_at,omitempty"`
	ReleasedAt   *time.Time    `json:"released_at,omitempty"`
	EventID      uuid.UUID     `json:"event_id,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// ReadyForRelease: a team request once approved, an automatic release once
// its scheduled time has passed.
func (r EvidenceRelease) ReadyForRelease(now time.Time) bool {
	switch r.Status {
	case ReleaseReleased, ReleaseDenied:
		return false
	}
	if r.Automatic {
		return r.ScheduledFor != nil && !r.ScheduledFor.After(now)
	}
	return r.Status == ReleaseApproved
}

type CreateSimulationInput struct {
	CaseID                 uuid.UUID `validate:"required"`
	CaseType               string    `validate:"omitempty,max=64"`
	TotalRounds            int       `validate:"min=1,max=10"`
	PlaintiffMinAcceptable decimal.Decimal
	PlaintiffIdeal         decimal.Decimal
	DefendantIdeal         decimal.Decimal
	DefendantMaxAcceptable decimal.Decimal
	Config                 map[string]any
}

type ThresholdsInput struct {
	PlaintiffMinAcceptable decimal.Decimal
	PlaintiffIdeal         decimal.Decimal
	DefendantIdeal         decimal.Decimal
	DefendantMaxAcceptable decimal.Decimal
}

type SubmitOfferInput struct {
	SimulationID     uuid.UUID `validate:"required"`
	TeamID           uuid.UUID `validate:"required"`
	Justification    string    `validate:"min=50,max=2000"`
	NonMonetaryTerms string    `validate:"max=2000"`
	SubmittedBy      uuid.UUID
	Amount           decimal.Decimal
}

type SubmitOfferResult struct {
	Offer       Offer               `json:"offer"`
	Round       Round               `json:"round"`
	Simulation  Simulation          `json:"simulation"`
	Feedback    *ClientFeedback     `json:"feedback,omitempty"`
	Settled     bool                `json:"settled"`
	Arbitration *ArbitrationOutcome `json:"arbitration,omitempty"`
}

type EvidenceRequestInput struct {
	SimulationID uuid.UUID `validate:"required"`
	DocumentID   uuid.UUID `validate:"required"`
	TeamID       uuid.UUID `validate:"required"`
	ReleaseRound int       `validate:"min=1"`
}

type EvidenceScheduleInput struct {
	SimulationID uuid.UUID `validate:"required"`
	DocumentID   uuid.UUID `validate:"required"`
	ReleaseRound int       `validate:"min=1"`
	ScheduledFor time.Time `validate:"required"`
}
