// Package casefile is an in-memory team directory and document store for the
// server binary and tests. Real deployments plug their own user and document
// systems in behind the same interfaces.
package casefile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/joelkehle/negotiation-lab/internal/negotiation"
)

type Directory struct {
	mu          sync.Mutex
	teams       map[uuid.UUID]negotiation.Team
	members     map[uuid.UUID][]uuid.UUID
	memberIndex map[uuid.UUID]map[uuid.UUID]bool
}

func NewDirectory() *Directory {
	return &Directory{
		teams:       map[uuid.UUID]negotiation.Team{},
		members:     map[uuid.UUID][]uuid.UUID{},
		memberIndex: map[uuid.UUID]map[uuid.UUID]bool{},
	}
}

// AddTeam registers a team for a case. A zero ID gets a fresh one.
func (d *Directory) AddTeam(team negotiation.Team) negotiation.Team {
	if team.ID == uuid.Nil {
		team.ID = uuid.New()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.teams[team.ID] = team
	return team
}

// AddMember puts a user on a team; adding twice is harmless.
func (d *Directory) AddMember(teamID, userID uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.memberIndex[teamID] == nil {
		d.memberIndex[teamID] = map[uuid.UUID]bool{}
	}
	if d.memberIndex[teamID][userID] {
		return
	}
	d.memberIndex[teamID][userID] = true
	d.members[teamID] = append(d.members[teamID], userID)
}

func (d *Directory) Team(_ context.Context, teamID uuid.UUID) (negotiation.Team, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	team, ok := d.teams[teamID]
	if !ok {
		return negotiation.Team{}, negotiation.NewError(negotiation.CodeNotFound, "team not found")
	}
	return team, nil
}

func (d *Directory) AssignedToCase(_ context.Context, teamID, caseID uuid.UUID) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	team, ok := d.teams[teamID]
	return ok && team.CaseID == caseID, nil
}

func (d *Directory) Membership(_ context.Context, userID, teamID uuid.UUID) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.memberIndex[teamID][userID], nil
}

func (d *Directory) TeamMembers(_ context.Context, teamID uuid.UUID) ([]uuid.UUID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]uuid.UUID(nil), d.members[teamID]...), nil
}

type Documents struct {
	mu   sync.Mutex
	docs map[uuid.UUID]negotiation.Document
}

func NewDocuments() *Documents {
	return &Documents{docs: map[uuid.UUID]negotiation.Document{}}
}

// Add stores a document; it starts restricted unless an access level is set.
func (s *Documents) Add(doc negotiation.Document) negotiation.Document {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if doc.AccessLevel == "" {
		doc.AccessLevel = negotiation.AccessRestricted
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ID] = doc
	return doc
}

func (s *Documents) Document(_ context.Context, id uuid.UUID) (negotiation.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return negotiation.Document{}, negotiation.NewError(negotiation.CodeNotFound, "document not found")
	}
	return doc, nil
}

func (s *Documents) SetAccessLevel(_ context.Context, id uuid.UUID, level string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return negotiation.NewError(negotiation.CodeNotFound, "document not found")
	}
	doc.AccessLevel = level
	s.docs[id] = doc
	return nil
}

var (
	_ negotiation.Directory     = (*Directory)(nil)
	_ negotiation.DocumentStore = (*Documents)(nil)
)

// Fixture is the on-disk seed for a directory and document store.
type Fixture struct {
	Teams   []negotiation.Team `json:"teams"`
	Members []struct {
		TeamID uuid.UUID `json:"team_id"`
		UserID uuid.UUID `json:"user_id"`
	} `json:"members"`
	Documents []negotiation.Document `json:"documents"`
}

// LoadFixture seeds dir and docs from a JSON fixture file.
func LoadFixture(path string, dir *Directory, docs *Documents) error {
	blob, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read casefile fixture: %w", err)
	}
	var f Fixture
	if err := json.Unmarshal(blob, &f); err != nil {
		return fmt.Errorf("parse casefile fixture: %w", err)
	}
	for _, team := range f.Teams {
		dir.AddTeam(team)
	}
	for _, m := range f.Members {
		dir.AddMember(m.TeamID, m.UserID)
	}
	for _, doc := range f.Documents {
		docs.Add(doc)
	}
	return nil
}
