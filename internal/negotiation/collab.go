package negotiation

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Team struct {
	ID     uuid.UUID `json:"id"`
	CaseID uuid.UUID `json:"case_id"`
	Name   string    `json:"name"`
	Role   Role      `json:"case_role"`
}

// Directory is the read-only view of teams and users owned elsewhere.
type Directory interface {
	Team(ctx context.Context, teamID uuid.UUID) (Team, error)
	AssignedToCase(ctx context.Context, teamID, caseID uuid.UUID) (bool, error)
	Membership(ctx context.Context, userID, teamID uuid.UUID) (bool, error)
	TeamMembers(ctx context.Context, teamID uuid.UUID) ([]uuid.UUID, error)
}

type OwnerKind string

const (
	OwnerCaseMaterial OwnerKind = "case_material"
	OwnerTeamMaterial OwnerKind = "team_material"
)

// DocumentOwner says what a document is attached to: a case or a team.
type DocumentOwner struct {
	Kind OwnerKind `json:"kind"`
	ID   uuid.UUID `json:"id"`
}

const (
	AccessRestricted = "restricted"
	AccessReleased   = "released"
)

type Document struct {
	ID          uuid.UUID     `json:"id"`
	Title       string        `json:"title"`
	Owner       DocumentOwner `json:"owner"`
	AccessLevel string        `json:"access_level"`
}

func (d Document) CaseMaterial() bool {
	return d.Owner.Kind == OwnerCaseMaterial
}

// DocumentStore is mutated only by evidence releases.
type DocumentStore interface {
	Document(ctx context.Context, id uuid.UUID) (Document, error)
	SetAccessLevel(ctx context.Context, id uuid.UUID, level string) error
}

// OfferBrief is what a Narrator sees of an offer. It carries
// the qualitative range result only, never the thresholds.
type OfferBrief struct {
	Role          Role            `json:"role"`
	RoundNumber   int             `json:"round_number"`
	TotalRounds   int             `json:"total_rounds"`
	Amount        decimal.Decimal `json:"amount"`
	Justification string          `json:"justification"`
	Terms         string          `json:"non_monetary_terms,omitempty"`
	Range         RangeResult     `json:"range"`
}

type NegotiationBrief struct {
	RoundNumber     int             `json:"round_number"`
	TotalRounds     int             `json:"total_rounds"`
	PlaintiffAmount decimal.Decimal `json:"plaintiff_amount"`
	DefendantAmount decimal.Decimal `json:"defendant_amount"`
	Gap             GapAnalysis     `json:"gap"`
	Audience        Role            `json:"audience"`
}

type Narrative struct {
	Text  string `json:"text"`
	Mood  Mood   `json:"mood"`
	Score int    `json:"score"`
}

type Advice struct {
	Advice string `json:"advice"`
}

// Narrator is an optional external text generator. The engine behaves the
// same, with template text, when it is nil or reports Enabled() == false.
type Narrator interface {
	Enabled() bool
	GenerateFeedback(ctx context.Context, brief OfferBrief) (Narrative, error)
	AnalyzeNegotiationState(ctx context.Context, brief NegotiationBrief) (Advice, error)
}
