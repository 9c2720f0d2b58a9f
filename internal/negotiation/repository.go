package negotiation

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists engine state. Commit must apply a whole ChangeSet or
// nothing.
type Repository interface {
	Load(ctx context.Context) (Snapshot, error)
	Commit(ctx context.Context, cs ChangeSet) error
	Close() error
}

// Snapshot is every stored record, used to warm the engine at startup.
type Snapshot struct {
	Simulations []Simulation         `json:"simulations"`
	Rounds      []Round              `json:"rounds"`
	Offers      []Offer              `json:"offers"`
	Feedback    []ClientFeedback     `json:"feedback"`
	Events      []Event              `json:"events"`
	Outcomes    []ArbitrationOutcome `json:"outcomes"`
	Scores      []PerformanceScore   `json:"scores"`
	Releases    []EvidenceRelease    `json:"releases"`
}

// ChangeSet holds upserts keyed by id. ScoresReplaced names simulations whose
// stored performance scores are dropped before Scores are written.
type ChangeSet struct {
	Simulations    []Simulation
	Rounds         []Round
	Offers         []Offer
	Feedback       []ClientFeedback
	Events         []Event
	Outcomes       []ArbitrationOutcome
	Scores         []PerformanceScore
	ScoresReplaced []uuid.UUID
	Releases       []EvidenceRelease
}

func (cs ChangeSet) Empty() bool {
	return len(cs.Simulations) == 0 && len(cs.Rounds) == 0 && len(cs.Offers) == 0 &&
		len(cs.Feedback) == 0 && len(cs.Events) == 0 && len(cs.Outcomes) == 0 &&
		len(cs.Scores) == 0 && len(cs.ScoresReplaced) == 0 && len(cs.Releases) == 0
}

// MemoryRepository keeps nothing; the engine's own maps are the only copy.
type MemoryRepository struct{}

func NewMemoryRepository() *MemoryRepository { return &MemoryRepository{} }

func (*MemoryRepository) Load(context.Context) (Snapshot, error) { return Snapshot{}, nil }

func (*MemoryRepository) Commit(ctx context.Context, _ ChangeSet) error { return ctx.Err() }

func (*MemoryRepository) Close() error { return nil }

var (
	_ Repository = (*MemoryRepository)(nil)
	_ Repository = (*FileRepository)(nil)
	_ Repository = (*SQLiteRepository)(nil)
)
