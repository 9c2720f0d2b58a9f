package negotiation

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

type repoOpener func(t *testing.T, path string) Repository

var repoOpeners = map[string]struct {
	file string
	open repoOpener
}{
	"file": {"state.json", func(t *testing.T, path string) Repository {
		r, err := NewFileRepository(path)
		if err != nil {
			t.Fatalf("open file repository: %v", err)
		}
		return r
	}},
	"sqlite": {"negotiation.db", func(t *testing.T, path string) Repository {
		r, err := NewSQLiteRepository(path)
		if err != nil {
			t.Fatalf("open sqlite repository: %v", err)
		}
		return r
	}},
}

func TestRepositoriesSurviveRestart(t *testing.T) {
	for name, opener := range repoOpeners {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), opener.file)
			h := newHarness(t, withRepository(opener.open(t, path)))
			sim := h.startNew(6)
			h.mustOffer(sim.ID, h.plaintiff, 200000)
			h.mustOffer(sim.ID, h.defendant, 195000)
			scores, err := h.e.ScorePerformance(h.ctx, sim.ID)
			if err != nil {
				t.Fatalf("score: %v", err)
			}
			wantFeedback, _ := h.e.Feedback(h.ctx, sim.ID, uuid.Nil)
			if err := h.e.Close(); err != nil {
				t.Fatalf("close: %v", err)
			}

			reopened, err := NewEngine(context.Background(), Config{Clock: h.clock.Now}, Deps{
				Repository: opener.open(t, path),
				Directory:  h.dir,
				Documents:  h.docs,
			})
			if err != nil {
				t.Fatalf("reopen: %v", err)
			}
			defer reopened.Close()

			got, err := reopened.Simulation(h.ctx, sim.ID)
			if err != nil {
				t.Fatalf("simulation after restart: %v", err)
			}
			if got.Status != SimulationCompleted || got.EndedAt == nil || !got.EndedAt.Equal(testStart) {
				t.Fatalf("unexpected simulation after restart: %+v", got)
			}
			if !got.PlaintiffIdeal.Equal(dec(300000)) || got.PlaintiffTeamID != h.plaintiff {
				t.Fatalf("simulation fields lost: %+v", got)
			}

			offers, _ := reopened.Offers(h.ctx, sim.ID)
			if len(offers) != 2 || !offers[0].Amount.Add(offers[1].Amount).Equal(dec(395000)) {
				t.Fatalf("offers lost: %+v", offers)
			}
			rounds, _ := reopened.Rounds(h.ctx, sim.ID)
			if len(rounds) != 1 || !rounds[0].SettlementReached {
				t.Fatalf("rounds lost: %+v", rounds)
			}
			fb, _ := reopened.Feedback(h.ctx, sim.ID, uuid.Nil)
			if len(fb) != len(wantFeedback) {
				t.Fatalf("feedback count %d, want %d", len(fb), len(wantFeedback))
			}
			stored, _ := reopened.PerformanceScores(h.ctx, sim.ID)
			if len(stored) != len(scores) {
				t.Fatalf("scores count %d, want %d", len(stored), len(scores))
			}

			// The case stays taken across restarts.
			_, err = reopened.CreateSimulation(h.ctx, h.standardInput(6))
			wantCode(t, err, CodePrecondition)
		})
	}
}

func TestRepositoriesRejectDuplicates(t *testing.T) {
	for name, opener := range repoOpeners {
		t.Run(name, func(t *testing.T) {
			repo := opener.open(t, filepath.Join(t.TempDir(), opener.file))
			defer repo.Close()
			ctx := context.Background()
			simID := uuid.New()

			first := Round{ID: uuid.New(), SimulationID: simID, RoundNumber: 1, Status: RoundActive, Deadline: testStart, CreatedAt: testStart}
			if err := repo.Commit(ctx, ChangeSet{Rounds: []Round{first}}); err != nil {
				t.Fatalf("commit round: %v", err)
			}
			dup := first
			dup.ID = uuid.New()
			wantCode(t, repo.Commit(ctx, ChangeSet{Rounds: []Round{dup}}), CodeIntegrity)

			// Upserting the same id is an update, not a duplicate.
			first.Status = RoundCompleted
			if err := repo.Commit(ctx, ChangeSet{Rounds: []Round{first}}); err != nil {
				t.Fatalf("update round: %v", err)
			}

			teamID := uuid.New()
			offer := Offer{ID: uuid.New(), SimulationID: simID, RoundID: first.ID, RoundNumber: 1, TeamID: teamID, Role: RolePlaintiff, Amount: dec(1000), SubmittedAt: testStart}
			if err := repo.Commit(ctx, ChangeSet{Offers: []Offer{offer}}); err != nil {
				t.Fatalf("commit offer: %v", err)
			}
			offer.ID = uuid.New()
			wantCode(t, repo.Commit(ctx, ChangeSet{Offers: []Offer{offer}}), CodeIntegrity)

			snap, err := repo.Load(ctx)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if len(snap.Rounds) != 1 || snap.Rounds[0].Status != RoundCompleted || len(snap.Offers) != 1 {
				t.Fatalf("rejected commits must leave no trace: %d rounds, %d offers", len(snap.Rounds), len(snap.Offers))
			}
		})
	}
}
