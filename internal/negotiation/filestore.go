package negotiation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// FileRepository writes the whole state as one JSON document after every
// commit, via a temp file and rename.
type FileRepository struct {
	path  string
	mu    sync.Mutex
	state fileState
}

type fileState struct {
	Simulations map[uuid.UUID]Simulation         `json:"simulations"`
	Rounds      map[uuid.UUID]Round              `json:"rounds"`
	Offers      map[uuid.UUID]Offer              `json:"offers"`
	Feedback    map[uuid.UUID]ClientFeedback     `json:"feedback"`
	Events      map[uuid.UUID]Event              `json:"events"`
	Outcomes    map[uuid.UUID]ArbitrationOutcome `json:"outcomes"`
	Scores      map[uuid.UUID]PerformanceScore   `json:"scores"`
	Releases    map[uuid.UUID]EvidenceRelease    `json:"releases"`
}

func emptyFileState() fileState {
	return fileState{
		Simulations: map[uuid.UUID]Simulation{},
		Rounds:      map[uuid.UUID]Round{},
		Offers:      map[uuid.UUID]Offer{},
		Feedback:    map[uuid.UUID]ClientFeedback{},
		Events:      map[uuid.UUID]Event{},
		Outcomes:    map[uuid.UUID]ArbitrationOutcome{},
		Scores:      map[uuid.UUID]PerformanceScore{},
		Releases:    map[uuid.UUID]EvidenceRelease{},
	}
}

func NewFileRepository(path string) (*FileRepository, error) {
	r := &FileRepository{path: path, state: emptyFileState()}
	if err := r.load(); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return r, nil
}

func (r *FileRepository) load() error {
	blob, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	state := emptyFileState()
	if err := json.Unmarshal(blob, &state); err != nil {
		return err
	}
	r.state = state.filled()
	return nil
}

// filled replaces maps a hand-edited file may have left out.
func (s fileState) filled() fileState {
	empty := emptyFileState()
	if s.Simulations == nil {
		s.Simulations = empty.Simulations
	}
	if s.Rounds == nil {
		s.Rounds = empty.Rounds
	}
	if s.Offers == nil {
		s.Offers = empty.Offers
	}
	if s.Feedback == nil {
		s.Feedback = empty.Feedback
	}
	if s.Events == nil {
		s.Events = empty.Events
	}
	if s.Outcomes == nil {
		s.Outcomes = empty.Outcomes
	}
	if s.Scores == nil {
		s.Scores = empty.Scores
	}
	if s.Releases == nil {
		s.Releases = empty.Releases
	}
	return s
}

func (r *FileRepository) Load(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var snap Snapshot
	for _, v := range r.state.Simulations {
		snap.Simulations = append(snap.Simulations, v)
	}
	for _, v := range r.state.Rounds {
		snap.Rounds = append(snap.Rounds, v)
	}
	for _, v := range r.state.Offers {
		snap.Offers = append(snap.Offers, v)
	}
	for _, v := range r.state.Feedback {
		snap.Feedback = append(snap.Feedback, v)
	}
	for _, v := range r.state.Events {
		snap.Events = append(snap.Events, v)
	}
	for _, v := range r.state.Outcomes {
		snap.Outcomes = append(snap.Outcomes, v)
	}
	for _, v := range r.state.Scores {
		snap.Scores = append(snap.Scores, v)
	}
	for _, v := range r.state.Releases {
		snap.Releases = append(snap.Releases, v)
	}
	return snap, nil
}

// Commit builds the next state on a copy and only adopts it once the file
// write has succeeded.
func (r *FileRepository) Commit(ctx context.Context, cs ChangeSet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.state.clone()
	if err := next.apply(cs); err != nil {
		return err
	}
	if err := r.write(next); err != nil {
		return wrapInternal("persist state file", err)
	}
	r.state = next
	return nil
}

func (r *FileRepository) Close() error { return nil }

func (r *FileRepository) write(state fileState) error {
	blob, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return err
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, r.path)
}

func (s fileState) clone() fileState {
	out := emptyFileState()
	for k, v := range s.Simulations {
		out.Simulations[k] = v
	}
	for k, v := range s.Rounds {
		out.Rounds[k] = v
	}
	for k, v := range s.Offers {
		out.Offers[k] = v
	}
	for k, v := range s.Feedback {
		out.Feedback[k] = v
	}
	for k, v := range s.Events {
		out.Events[k] = v
	}
	for k, v := range s.Outcomes {
		out.Outcomes[k] = v
	}
	for k, v := range s.Scores {
		out.Scores[k] = v
	}
	for k, v := range s.Releases {
		out.Releases[k] = v
	}
	return out
}

// apply enforces the same uniqueness rules as the sqlite schema.
func (s fileState) apply(cs ChangeSet) error {
	for _, v := range cs.Simulations {
		s.Simulations[v.ID] = v
	}
	for _, v := range cs.Rounds {
		for id, existing := range s.Rounds {
			if id != v.ID && existing.SimulationID == v.SimulationID && existing.RoundNumber == v.RoundNumber {
				return newError(CodeIntegrity, "round number already exists for simulation")
			}
		}
		s.Rounds[v.ID] = v
	}
	for _, v := range cs.Offers {
		for id, existing := range s.Offers {
			if id != v.ID && existing.RoundID == v.RoundID && existing.TeamID == v.TeamID {
				return newError(CodeIntegrity, "team already submitted an offer this round")
			}
		}
		s.Offers[v.ID] = v
	}
	for _, v := range cs.Feedback {
		s.Feedback[v.ID] = v
	}
	for _, v := range cs.Events {
		s.Events[v.ID] = v
	}
	for _, v := range cs.Outcomes {
		for id, existing := range s.Outcomes {
			if id != v.ID && existing.SimulationID == v.SimulationID {
				return newError(CodeIntegrity, "simulation already has an arbitration outcome")
			}
		}
		s.Outcomes[v.ID] = v
	}
	for _, simID := range cs.ScoresReplaced {
		for id, existing := range s.Scores {
			if existing.SimulationID == simID {
				delete(s.Scores, id)
			}
		}
	}
	for _, v := range cs.Scores {
		s.Scores[v.ID] = v
	}
	for _, v := range cs.Releases {
		s.Releases[v.ID] = v
	}
	return nil
}
