package negotiation

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config carries every tunable of the engine. Zero values are replaced by
// the defaults in withDefaults, so tests only set what they care about.
type Config struct {
	RoundDuration time.Duration `env:"NEGOTIATION_ROUND_DURATION" envDefault:"48h"`

	// SettlementThreshold is the largest gap ÷ average of two offers that
	// still counts as a settlement.
	SettlementThreshold float64 `env:"NEGOTIATION_SETTLEMENT_THRESHOLD" envDefault:"0.05"`
	// NegotiableGapThreshold separates negotiable_gap from large_gap.
	NegotiableGapThreshold float64 `env:"NEGOTIATION_NEGOTIABLE_GAP_THRESHOLD" envDefault:"0.25"`

	ScheduledEventCount int `env:"NEGOTIATION_EVENT_COUNT" envDefault:"2"`
	EventSpacingRounds  int `env:"NEGOTIATION_EVENT_SPACING_ROUNDS" envDefault:"2"`

	NarratorTimeout time.Duration `env:"NEGOTIATION_NARRATOR_TIMEOUT" envDefault:"8s"`

	// RandomSeed seeds arbitration and event selection. Zero draws a seed
	// from crypto/rand.
	RandomSeed int64 `env:"NEGOTIATION_RANDOM_SEED"`

	EventTemplates  map[EventType]map[string]decimal.Decimal `env:"-"`
	CaseMultipliers map[string]float64                       `env:"-"`

	Clock func() time.Time `env:"-"`
}

func DefaultEventTemplates() map[EventType]map[string]decimal.Decimal {
	return map[EventType]map[string]decimal.Decimal{
		EventMediaAttention: {
			AdjustPlaintiffMin: decimal.NewFromInt(25000),
			AdjustDefendantMax: decimal.NewFromInt(50000),
		},
		EventIPODelay: {
			AdjustDefendantMax: decimal.NewFromInt(100000),
		},
		EventCourtDeadline: {
			AdjustPlaintiffMin: decimal.NewFromInt(15000),
			AdjustDefendantMax: decimal.NewFromInt(40000),
		},
		EventWitnessChange: {
			AdjustPlaintiffMin: decimal.NewFromInt(10000),
			AdjustDefendantMax: decimal.NewFromInt(30000),
		},
		EventEvidenceRelease: {
			AdjustDefendantMax: decimal.NewFromInt(20000),
		},
	}
}

func DefaultCaseMultipliers() map[string]float64 {
	return map[string]float64{
		"harassment": 1.10,
	}
}

func (c Config) withDefaults() Config {
	if c.RoundDuration <= 0 {
		c.RoundDuration = 48 * time.Hour
	}
	if c.SettlementThreshold <= 0 {
		c.SettlementThreshold = 0.05
	}
	if c.NegotiableGapThreshold <= 0 {
		c.NegotiableGapThreshold = 0.25
	}
	if c.ScheduledEventCount < 0 {
		c.ScheduledEventCount = 0
	}
	if c.EventSpacingRounds <= 0 {
		c.EventSpacingRounds = 2
	}
	if c.NarratorTimeout <= 0 {
		c.NarratorTimeout = 8 * time.Second
	}
	if c.EventTemplates == nil {
		c.EventTemplates = DefaultEventTemplates()
	}
	if c.CaseMultipliers == nil {
		c.CaseMultipliers = DefaultCaseMultipliers()
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}
