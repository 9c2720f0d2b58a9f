package negotiation

import (
	"testing"
	"time"
)

func TestSweepClosesOverdueRoundAndAdvances(t *testing.T) {
	h := newHarness(t)
	sim := h.startNew(6)
	h.mustOffer(sim.ID, h.plaintiff, 280000)

	h.clock.Advance(49 * time.Hour)
	rep, err := h.e.Sweep(h.ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if rep.RoundsClosed != 1 || rep.RoundsAdvanced != 1 || rep.Arbitrations != 0 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	got, _ := h.e.Simulation(h.ctx, sim.ID)
	if got.CurrentRound != 2 || got.Status != SimulationActive {
		t.Fatalf("expected active round 2, got %+v", got)
	}
	rounds, _ := h.e.Rounds(h.ctx, sim.ID)
	if rounds[0].Status != RoundCompleted || rounds[0].SettlementReached {
		t.Fatalf("round 1 should be closed without settlement: %+v", rounds[0])
	}
	if !rounds[1].Deadline.Equal(h.clock.Now().Add(48 * time.Hour)) {
		t.Fatalf("round 2 deadline = %s", rounds[1].Deadline)
	}

	rep, _ = h.e.Sweep(h.ctx)
	if rep != (SweepReport{}) {
		t.Fatalf("second sweep should be a no-op: %+v", rep)
	}
}

func TestSweepArbitratesOverdueFinalRound(t *testing.T) {
	h := newHarness(t)
	sim := h.startNew(1)

	h.clock.Advance(49 * time.Hour)
	rep, err := h.e.Sweep(h.ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if rep.RoundsClosed != 1 || rep.Arbitrations != 1 || rep.RoundsAdvanced != 0 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	got, _ := h.e.Simulation(h.ctx, sim.ID)
	if got.Status != SimulationArbitration {
		t.Fatalf("status = %s", got.Status)
	}
	if _, err := h.e.ArbitrationOutcome(h.ctx, sim.ID); err != nil {
		t.Fatalf("outcome: %v", err)
	}
}

func TestSweepSkipsPausedSimulations(t *testing.T) {
	h := newHarness(t)
	sim := h.startNew(6)
	if _, err := h.e.PauseSimulation(h.ctx, sim.ID); err != nil {
		t.Fatalf("pause: %v", err)
	}
	h.clock.Advance(72 * time.Hour)
	rep, _ := h.e.Sweep(h.ctx)
	if rep != (SweepReport{}) {
		t.Fatalf("paused simulation was swept: %+v", rep)
	}
}

func TestSweepFiresTimedEvents(t *testing.T) {
	h := newHarness(t)
	sim := h.startNew(6)
	at := testStart.Add(time.Hour)
	ev, err := h.e.ScheduleEvent(h.ctx, EventScheduleInput{SimulationID: sim.ID, Type: EventCourtDeadline, TriggerRound: 1, ScheduledFor: &at})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}

	h.clock.Advance(2 * time.Hour)
	rep, _ := h.e.Sweep(h.ctx)
	if rep.EventsApplied != 1 {
		t.Fatalf("expected the timed event to fire: %+v", rep)
	}
	got, _ := h.e.Simulation(h.ctx, sim.ID)
	if !got.PlaintiffMinAcceptable.Equal(dec(165000)) || !got.DefendantMaxAcceptable.Equal(dec(290000)) {
		t.Fatalf("court deadline adjustments missing: %+v", got)
	}
	events, _ := h.e.Events(h.ctx, sim.ID)
	for _, e := range events {
		if e.ID == ev.ID && !e.Applied() {
			t.Fatal("event should be marked applied")
		}
	}
}
