package negotiation

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestApplyAdjustmentOnce(t *testing.T) {
	sim := arbitrationSim("")
	evt := newEvent(sim.ID, EventMediaAttention, 3, DefaultEventTemplates(), testStart)

	if !ApplyAdjustment(&sim, &evt, testStart) {
		t.Fatal("first application should apply")
	}
	if !sim.PlaintiffMinAcceptable.Equal(dec(175000)) || !sim.DefendantMaxAcceptable.Equal(dec(300000)) {
		t.Fatalf("unexpected thresholds: min=%s max=%s", sim.PlaintiffMinAcceptable, sim.DefendantMaxAcceptable)
	}
	if evt.TriggeredAt == nil || len(evt.AdjustmentsApplied) != 2 {
		t.Fatalf("event should record what it applied: %+v", evt)
	}

	before := sim
	if ApplyAdjustment(&sim, &evt, testStart.Add(time.Hour)) {
		t.Fatal("second application must be a no-op")
	}
	if !sim.PlaintiffMinAcceptable.Equal(before.PlaintiffMinAcceptable) || !sim.DefendantMaxAcceptable.Equal(before.DefendantMaxAcceptable) {
		t.Fatal("thresholds changed on re-application")
	}
}

func TestApplyAdjustmentKeepsRangesOrdered(t *testing.T) {
	sim := arbitrationSim("")
	evt := Event{PressureAdjustment: map[string]decimal.Decimal{
		AdjustPlaintiffMin:   dec(200000),
		AdjustDefendantIdeal: dec(400000),
		AdjustDefendantMax:   dec(-50000),
	}}
	ApplyAdjustment(&sim, &evt, testStart)

	if !sim.PlaintiffIdeal.Equal(sim.PlaintiffMinAcceptable) {
		t.Fatalf("plaintiff ideal should rise to the new minimum, got %s", sim.PlaintiffIdeal)
	}
	if !sim.DefendantIdeal.Equal(sim.DefendantMaxAcceptable) {
		t.Fatalf("defendant ideal should be capped at maximum, got %s", sim.DefendantIdeal)
	}
	if _, ok := evt.AdjustmentsApplied[AdjustDefendantMax]; ok {
		t.Fatal("non-positive deltas are ignored")
	}
}

func TestScheduleEventsSpacingAndNoRepeats(t *testing.T) {
	rng, _ := NewRand(5)
	sim := arbitrationSim("")
	sim.TotalRounds = 10
	cfg := Config{ScheduledEventCount: 4, EventSpacingRounds: 2, EventTemplates: DefaultEventTemplates()}

	events := scheduleEvents(sim, cfg, rng, testStart)
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}
	seen := map[EventType]bool{}
	for i, ev := range events {
		if ev.TriggerRound != 1+(i+1)*2 {
			t.Fatalf("event %d triggers on round %d", i, ev.TriggerRound)
		}
		if ev.Type == EventEvidenceRelease || ev.Type == EventRoundAdvanced {
			t.Fatalf("scheduled a non-pressure event: %s", ev.Type)
		}
		if seen[ev.Type] {
			t.Fatalf("event type %s repeated", ev.Type)
		}
		seen[ev.Type] = true
		if !ev.Automatic || len(ev.PressureAdjustment) == 0 {
			t.Fatalf("scheduled event missing template: %+v", ev)
		}
	}

	sim.TotalRounds = 4
	if got := scheduleEvents(sim, cfg, rng, testStart); len(got) != 1 {
		t.Fatalf("only round 3 fits in four rounds, got %d events", len(got))
	}
}

func TestAdvanceAppliesScheduledEvent(t *testing.T) {
	h := newHarness(t)
	sim := h.startNew(6)

	ev, err := h.e.ScheduleEvent(h.ctx, EventScheduleInput{SimulationID: sim.ID, Type: EventIPODelay, TriggerRound: 2})
	if err != nil {
		t.Fatalf("schedule event: %v", err)
	}
	h.mustOffer(sim.ID, h.plaintiff, 300000)
	h.mustOffer(sim.ID, h.defendant, 100000)
	if _, err := h.e.CompleteRound(h.ctx, sim.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	advanced, err := h.e.AdvanceRound(h.ctx, sim.ID)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if !advanced.DefendantMaxAcceptable.Equal(dec(350000)) {
		t.Fatalf("ipo delay should raise the defendant maximum, got %s", advanced.DefendantMaxAcceptable)
	}

	events, _ := h.e.Events(h.ctx, sim.ID)
	var applied, markers int
	for _, e := range events {
		switch {
		case e.ID == ev.ID && e.Applied():
			applied++
		case e.Type == EventRoundAdvanced:
			markers++
		}
	}
	if applied != 1 || markers != 1 {
		t.Fatalf("applied=%d round markers=%d", applied, markers)
	}

	fb, _ := h.e.Feedback(h.ctx, sim.ID, uuid.Nil)
	pressure := 0
	for _, f := range fb {
		if f.Type == FeedbackPressureResponse && f.EventID == ev.ID {
			pressure++
		}
	}
	if pressure != 2 {
		t.Fatalf("both teams should hear about the event, got %d", pressure)
	}

	again, err := h.e.TriggerEvent(context.Background(), sim.ID, ev.ID)
	if err != nil {
		t.Fatalf("re-trigger: %v", err)
	}
	after, _ := h.e.Simulation(h.ctx, sim.ID)
	if !again.Applied() || !after.DefendantMaxAcceptable.Equal(dec(350000)) {
		t.Fatalf("re-triggering an applied event must change nothing, max=%s", after.DefendantMaxAcceptable)
	}
}

func TestScheduleEventRejectsUnknownTypes(t *testing.T) {
	h := newHarness(t)
	sim := h.startNew(6)
	for _, typ := range []EventType{"alien_invasion", EventRoundAdvanced, EventEvidenceRelease} {
		_, err := h.e.ScheduleEvent(h.ctx, EventScheduleInput{SimulationID: sim.ID, Type: typ, TriggerRound: 2})
		wantCode(t, err, CodeValidation)
	}
	_, err := h.e.ScheduleEvent(h.ctx, EventScheduleInput{SimulationID: sim.ID, Type: EventWitnessChange, TriggerRound: 7})
	wantCode(t, err, CodeValidation)
}
