package negotiation

import (
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// adjustmentKeys fixes the order adjustments are applied in.
var adjustmentKeys = []string{
	AdjustPlaintiffMin,
	AdjustPlaintiffIdeal,
	AdjustDefendantIdeal,
	AdjustDefendantMax,
}

// pressureEvents are the types drawn for automatic scheduling. Evidence
// releases are tied to a document and only come from release requests.
var pressureEvents = []EventType{
	EventMediaAttention,
	EventIPODelay,
	EventCourtDeadline,
	EventWitnessChange,
}

var eventDescriptions = map[EventType]string{
	EventMediaAttention:  "The case has drawn media attention.",
	EventIPODelay:        "The defendant's planned public offering is delayed pending resolution.",
	EventCourtDeadline:   "The court has set a firm trial date.",
	EventWitnessChange:   "A new witness has come forward.",
	EventEvidenceRelease: "New evidence has been released to both teams.",
	EventRoundAdvanced:   "The negotiation moved to the next round.",
}

func knownEventType(t EventType) bool {
	_, ok := eventDescriptions[t]
	return ok
}

// newEvent copies the configured template so later config edits never change
// an event already on file.
func newEvent(simID uuid.UUID, t EventType, triggerRound int, templates map[EventType]map[string]decimal.Decimal, now time.Time) Event {
	adj := map[string]decimal.Decimal{}
	for k, v := range templates[t] {
		adj[k] = v
	}
	return Event{
		ID:                 uuid.New(),
		SimulationID:       simID,
		Type:               t,
		TriggerRound:       triggerRound,
		PressureAdjustment: adj,
		Automatic:          true,
		Description:        eventDescriptions[t],
		CreatedAt:          now,
	}
}

// ApplyAdjustment applies evt to sim in one pass over the adjustment keys
// present. It returns false, changing nothing, when evt was already applied.
// Plaintiff ideal is raised to the new minimum and defendant ideal is capped
// at the maximum so both ranges stay ordered.
func ApplyAdjustment(sim *Simulation, evt *Event, now time.Time) bool {
	if evt.Applied() {
		return false
	}
	applied := map[string]decimal.Decimal{}
	for _, key := range adjustmentKeys {
		delta, ok := evt.PressureAdjustment[key]
		if !ok || !delta.IsPositive() {
			continue
		}
		delta = delta.Round(0)
		switch key {
		case AdjustPlaintiffMin:
			sim.PlaintiffMinAcceptable = sim.PlaintiffMinAcceptable.Add(delta)
		case AdjustPlaintiffIdeal:
			sim.PlaintiffIdeal = sim.PlaintiffIdeal.Add(delta)
		case AdjustDefendantIdeal:
			sim.DefendantIdeal = sim.DefendantIdeal.Add(delta)
		case AdjustDefendantMax:
			sim.DefendantMaxAcceptable = sim.DefendantMaxAcceptable.Add(delta)
		}
		applied[key] = delta
	}
	if sim.PlaintiffIdeal.LessThan(sim.PlaintiffMinAcceptable) {
		sim.PlaintiffIdeal = sim.PlaintiffMinAcceptable
	}
	if sim.DefendantIdeal.GreaterThan(sim.DefendantMaxAcceptable) {
		sim.DefendantIdeal = sim.DefendantMaxAcceptable
	}
	t := now
	evt.AdjustmentsApplied = applied
	evt.TriggeredAt = &t
	sim.UpdatedAt = now
	return true
}

// scheduleEvents plans count pressure events, spacing rounds apart, starting
// after the first round. Types are drawn without repetition while the pool
// lasts.
func scheduleEvents(sim Simulation, cfg Config, rng *rand.Rand, now time.Time) []Event {
	pool := append([]EventType(nil), pressureEvents...)
	var out []Event
	for i := 1; i <= cfg.ScheduledEventCount; i++ {
		trigger := 1 + i*cfg.EventSpacingRounds
		if trigger > sim.TotalRounds {
			break
		}
		if len(pool) == 0 {
			pool = append(pool, pressureEvents...)
		}
		j := rng.IntN(len(pool))
		t := pool[j]
		pool = append(pool[:j], pool[j+1:]...)
		out = append(out, newEvent(sim.ID, t, trigger, cfg.EventTemplates, now))
	}
	return out
}

// dueForRound lists unapplied events that fire on entering round.
func dueForRound(events []Event, round int) []Event {
	var out []Event
	for _, e := range events {
		if !e.Applied() && e.ScheduledFor == nil && e.TriggerRound == round && e.Type != EventRoundAdvanced {
			out = append(out, e)
		}
	}
	return out
}

// dueByTime lists unapplied time-scheduled events whose time has passed and
// whose round has been reached.
func dueByTime(events []Event, currentRound int, now time.Time) []Event {
	var out []Event
	for _, e := range events {
		if e.Applied() || e.ScheduledFor == nil || e.ScheduledFor.After(now) {
			continue
		}
		if e.TriggerRound > currentRound {
			continue
		}
		out = append(out, e)
	}
	return out
}

// checkReleaseRound gates evidence release rounds to the simulation bounds.
func checkReleaseRound(sim Simulation, round int) error {
	if round < 1 || round > sim.TotalRounds {
		return newFieldError("release_round", "must be between 1 and total_rounds")
	}
	return nil
}
