package negotiation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// SQLiteRepository stores every record in SQLite. Each Commit runs in one
// transaction, and the schema's UNIQUE constraints back up the engine's
// locking: a duplicate offer, round or outcome aborts the whole commit.
type SQLiteRepository struct {
	db *sqlx.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS simulations (
	id                       TEXT PRIMARY KEY,
	case_id                  TEXT NOT NULL,
	case_type                TEXT NOT NULL DEFAULT '',
	plaintiff_team_id        TEXT NOT NULL DEFAULT '',
	defendant_team_id        TEXT NOT NULL DEFAULT '',
	plaintiff_min_acceptable TEXT NOT NULL,
	plaintiff_ideal          TEXT NOT NULL,
	defendant_ideal          TEXT NOT NULL,
	defendant_max_acceptable TEXT NOT NULL,
	total_rounds             INTEGER NOT NULL,
	current_round            INTEGER NOT NULL,
	status                   TEXT NOT NULL,
	config                   TEXT NOT NULL DEFAULT '',
	created_at               TEXT NOT NULL,
	updated_at               TEXT NOT NULL,
	started_at               TEXT NOT NULL DEFAULT '',
	paused_at                TEXT NOT NULL DEFAULT '',
	ended_at                 TEXT NOT NULL DEFAULT '',
	deleted_at               TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS rounds (
	id                 TEXT PRIMARY KEY,
	simulation_id      TEXT NOT NULL,
	round_number       INTEGER NOT NULL,
	deadline           TEXT NOT NULL,
	status             TEXT NOT NULL,
	settlement_reached INTEGER NOT NULL DEFAULT 0,
	created_at         TEXT NOT NULL,
	started_at         TEXT NOT NULL DEFAULT '',
	paused_at          TEXT NOT NULL DEFAULT '',
	completed_at       TEXT NOT NULL DEFAULT '',
	UNIQUE (simulation_id, round_number)
);

CREATE TABLE IF NOT EXISTS offers (
	id                 TEXT PRIMARY KEY,
	simulation_id      TEXT NOT NULL,
	round_id           TEXT NOT NULL,
	round_number       INTEGER NOT NULL,
	team_id            TEXT NOT NULL,
	role               TEXT NOT NULL,
	submitted_by       TEXT NOT NULL DEFAULT '',
	amount             TEXT NOT NULL,
	justification      TEXT NOT NULL,
	non_monetary_terms TEXT NOT NULL DEFAULT '',
	offer_type         TEXT NOT NULL,
	quality_score      INTEGER NOT NULL,
	quality_breakdown  TEXT NOT NULL DEFAULT '{}',
	submitted_at       TEXT NOT NULL,
	UNIQUE (round_id, team_id)
);

CREATE TABLE IF NOT EXISTS client_feedback (
	id                 TEXT PRIMARY KEY,
	simulation_id      TEXT NOT NULL,
	team_id            TEXT NOT NULL,
	round_number       INTEGER NOT NULL,
	offer_id           TEXT NOT NULL DEFAULT '',
	event_id           TEXT NOT NULL DEFAULT '',
	feedback_type      TEXT NOT NULL,
	mood_level         TEXT NOT NULL,
	satisfaction_score INTEGER NOT NULL,
	text               TEXT NOT NULL,
	source             TEXT NOT NULL,
	created_at         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS simulation_events (
	id                  TEXT PRIMARY KEY,
	simulation_id       TEXT NOT NULL,
	event_type          TEXT NOT NULL,
	trigger_round       INTEGER NOT NULL,
	scheduled_for       TEXT NOT NULL DEFAULT '',
	triggered_at        TEXT NOT NULL DEFAULT '',
	pressure_adjustment TEXT NOT NULL DEFAULT '{}',
	adjustments_applied TEXT NOT NULL DEFAULT '{}',
	automatic           INTEGER NOT NULL DEFAULT 0,
	description         TEXT NOT NULL DEFAULT '',
	created_at          TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS arbitration_outcomes (
	id                  TEXT PRIMARY KEY,
	simulation_id       TEXT NOT NULL UNIQUE,
	award_amount        TEXT NOT NULL,
	outcome_type        TEXT NOT NULL,
	rationale           TEXT NOT NULL,
	lessons_learned     TEXT NOT NULL DEFAULT '[]',
	evidence_strength   REAL NOT NULL,
	argument_quality    REAL NOT NULL,
	negotiation_history REAL NOT NULL,
	random_variance     REAL NOT NULL,
	calculated_at       TEXT NOT NULL,
	created_at          TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS performance_scores (
	id                    TEXT PRIMARY KEY,
	simulation_id         TEXT NOT NULL,
	team_id               TEXT NOT NULL,
	user_id               TEXT NOT NULL DEFAULT '',
	settlement_quality    REAL NOT NULL,
	legal_strategy        REAL NOT NULL,
	collaboration         REAL NOT NULL,
	efficiency            REAL NOT NULL,
	speed_bonus           REAL NOT NULL,
	creative_terms        REAL NOT NULL,
	instructor_adjustment REAL NOT NULL DEFAULT 0,
	instructor_note       TEXT NOT NULL DEFAULT '',
	total_score           REAL NOT NULL,
	score_rank            INTEGER NOT NULL,
	percentile            REAL NOT NULL,
	calculated_at         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS evidence_releases (
	id            TEXT PRIMARY KEY,
	simulation_id TEXT NOT NULL,
	document_id   TEXT NOT NULL,
	requested_by  TEXT NOT NULL DEFAULT '',
	release_round INTEGER NOT NULL,
	scheduled_for TEXT NOT NULL DEFAULT '',
	automatic     INTEGER NOT NULL DEFAULT 0,
	status        TEXT NOT NULL,
	approved_at   TEXT NOT NULL DEFAULT '',
	released_at   TEXT NOT NULL DEFAULT '',
	event_id      TEXT NOT NULL DEFAULT '',
	created_at    TEXT NOT NULL
);
`

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	db, err := sqlx.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteRepository{db: db}, nil
}

func (s *SQLiteRepository) Close() error {
	return s.db.Close()
}

// --- rows ---

type simulationRow struct {
	ID              string `db:"id"`
	CaseID          string `db:"case_id"`
	CaseType        string `db:"case_type"`
	PlaintiffTeamID string `db:"plaintiff_team_id"`
	DefendantTeamID string `db:"defendant_team_id"`
	PlaintiffMin    string `db:"plaintiff_min_acceptable"`
	PlaintiffIdeal  string `db:"plaintiff_ideal"`
	DefendantIdeal  string `db:"defendant_ideal"`
	DefendantMax    string `db:"defendant_max_acceptable"`
	TotalRounds     int    `db:"total_rounds"`
	CurrentRound    int    `db:"current_round"`
	Status          string `db:"status"`
	Config          string `db:"config"`
	CreatedAt       string `db:"created_at"`
	UpdatedAt       string `db:"updated_at"`
	StartedAt       string `db:"started_at"`
	PausedAt        string `db:"paused_at"`
	EndedAt         string `db:"ended_at"`
	DeletedAt       string `db:"deleted_at"`
}

type roundRow struct {
	ID                string `db:"id"`
	SimulationID      string `db:"simulation_id"`
	RoundNumber       int    `db:"round_number"`
	Deadline          string `db:"deadline"`
	Status            string `db:"status"`
	SettlementReached int    `db:"settlement_reached"`
	CreatedAt         string `db:"created_at"`
	StartedAt         string `db:"started_at"`
	PausedAt          string `db:"paused_at"`
	CompletedAt       string `db:"completed_at"`
}

type offerRow struct {
	ID               string `db:"id"`
	SimulationID     string `db:"simulation_id"`
	RoundID          string `db:"round_id"`
	RoundNumber      int    `db:"round_number"`
	TeamID           string `db:"team_id"`
	Role             string `db:"role"`
	SubmittedBy      string `db:"submitted_by"`
	Amount           string `db:"amount"`
	Justification    string `db:"justification"`
	NonMonetaryTerms string `db:"non_monetary_terms"`
	OfferType        string `db:"offer_type"`
	QualityScore     int    `db:"quality_score"`
	Quality          string `db:"quality_breakdown"`
	SubmittedAt      string `db:"submitted_at"`
}

type feedbackRow struct {
	ID                string `db:"id"`
	SimulationID      string `db:"simulation_id"`
	TeamID            string `db:"team_id"`
	RoundNumber       int    `db:"round_number"`
	OfferID           string `db:"offer_id"`
	EventID           string `db:"event_id"`
	Type              string `db:"feedback_type"`
	Mood              string `db:"mood_level"`
	SatisfactionScore int    `db:"satisfaction_score"`
	Text              string `db:"text"`
	Source            string `db:"source"`
	CreatedAt         string `db:"created_at"`
}

type eventRow struct {
	ID                 string `db:"id"`
	SimulationID       string `db:"simulation_id"`
	Type               string `db:"event_type"`
	TriggerRound       int    `db:"trigger_round"`
	ScheduledFor       string `db:"scheduled_for"`
	TriggeredAt        string `db:"triggered_at"`
	PressureAdjustment string `db:"pressure_adjustment"`
	AdjustmentsApplied string `db:"adjustments_applied"`
	Automatic          int    `db:"automatic"`
	Description        string `db:"description"`
	CreatedAt          string `db:"created_at"`
}

type outcomeRow struct {
	ID                 string  `db:"id"`
	SimulationID       string  `db:"simulation_id"`
	AwardAmount        string  `db:"award_amount"`
	OutcomeType        string  `db:"outcome_type"`
	Rationale          string  `db:"rationale"`
	LessonsLearned     string  `db:"lessons_learned"`
	EvidenceStrength   float64 `db:"evidence_strength"`
	ArgumentQuality    float64 `db:"argument_quality"`
	NegotiationHistory float64 `db:"negotiation_history"`
	RandomVariance     float64 `db:"random_variance"`
	CalculatedAt       string  `db:"calculated_at"`
	CreatedAt          string  `db:"created_at"`
}

type scoreRow struct {
	ID                   string  `db:"id"`
	SimulationID         string  `db:"simulation_id"`
	TeamID               string  `db:"team_id"`
	UserID               string  `db:"user_id"`
	SettlementQuality    float64 `db:"settlement_quality"`
	LegalStrategy        float64 `db:"legal_strategy"`
	Collaboration        float64 `db:"collaboration"`
	Efficiency           float64 `db:"efficiency"`
	SpeedBonus           float64 `db:"speed_bonus"`
	CreativeTerms        float64 `db:"creative_terms"`
	InstructorAdjustment float64 `db:"instructor_adjustment"`
	InstructorNote       string  `db:"instructor_note"`
	TotalScore           float64 `db:"total_score"`
	Rank                 int     `db:"score_rank"`
	Percentile           float64 `db:"percentile"`
	CalculatedAt         string  `db:"calculated_at"`
}

type releaseRow struct {
	ID           string `db:"id"`
	SimulationID string `db:"simulation_id"`
	DocumentID   string `db:"document_id"`
	RequestedBy  string `db:"requested_by"`
	ReleaseRound int    `db:"release_round"`
	ScheduledFor string `db:"scheduled_for"`
	Automatic    int    `db:"automatic"`
	Status       string `db:"status"`
	ApprovedAt   string `db:"approved_at"`
	ReleasedAt   string `db:"released_at"`
	EventID      string `db:"event_id"`
	CreatedAt    string `db:"created_at"`
}

type table struct {
	name string
	cols []string
}

var (
	simulationsTable = table{"simulations", []string{"id", "case_id", "case_type", "plaintiff_team_id", "defendant_team_id",
		"plaintiff_min_acceptable", "plaintiff_ideal", "defendant_ideal", "defendant_max_acceptable", "total_rounds",
		"current_round", "status", "config", "created_at", "updated_at", "started_at", "paused_at", "ended_at", "deleted_at"}}
	roundsTable = table{"rounds", []string{"id", "simulation_id", "round_number", "deadline", "status",
		"settlement_reached", "created_at", "started_at", "paused_at", "completed_at"}}
	offersTable = table{"offers", []string{"id", "simulation_id", "round_id", "round_number", "team_id", "role",
		"submitted_by", "amount", "justification", "non_monetary_terms", "offer_type", "quality_score",
		"quality_breakdown", "submitted_at"}}
	feedbackTable = table{"client_feedback", []string{"id", "simulation_id", "team_id", "round_number", "offer_id",
		"event_id", "feedback_type", "mood_level", "satisfaction_score", "text", "source", "created_at"}}
	eventsTable = table{"simulation_events", []string{"id", "simulation_id", "event_type", "trigger_round",
		"scheduled_for", "triggered_at", "pressure_adjustment", "adjustments_applied", "automatic", "description",
		"created_at"}}
	outcomesTable = table{"arbitration_outcomes", []string{"id", "simulation_id", "award_amount", "outcome_type",
		"rationale", "lessons_learned", "evidence_strength", "argument_quality", "negotiation_history",
		"random_variance", "calculated_at", "created_at"}}
	scoresTable = table{"performance_scores", []string{"id", "simulation_id", "team_id", "user_id",
		"settlement_quality", "legal_strategy", "collaboration", "efficiency", "speed_bonus", "creative_terms",
		"instructor_adjustment", "instructor_note", "total_score", "score_rank", "percentile", "calculated_at"}}
	releasesTable = table{"evidence_releases", []string{"id", "simulation_id", "document_id", "requested_by",
		"release_round", "scheduled_for", "automatic", "status", "approved_at", "released_at", "event_id",
		"created_at"}}
)

func (t table) selectSQL() string {
	return "SELECT " + strings.Join(t.cols, ", ") + " FROM " + t.name
}

// upsertSQL inserts or updates by primary key only, so any other UNIQUE
// constraint still fails loudly instead of replacing a row.
func (t table) upsertSQL() string {
	named := make([]string, len(t.cols))
	var sets []string
	for i, c := range t.cols {
		named[i] = ":" + c
		if c != "id" {
			sets = append(sets, c+" = excluded."+c)
		}
	}
	return "INSERT INTO " + t.name + " (" + strings.Join(t.cols, ", ") + ") VALUES (" +
		strings.Join(named, ", ") + ") ON CONFLICT(id) DO UPDATE SET " + strings.Join(sets, ", ")
}

// --- load ---

func (s *SQLiteRepository) Load(ctx context.Context) (Snapshot, error) {
	var snap Snapshot

	var sims []simulationRow
	if err := s.db.SelectContext(ctx, &sims, simulationsTable.selectSQL()); err != nil {
		return Snapshot{}, fmt.Errorf("load simulations: %w", err)
	}
	for _, r := range sims {
		snap.Simulations = append(snap.Simulations, r.toSimulation())
	}

	var rounds []roundRow
	if err := s.db.SelectContext(ctx, &rounds, roundsTable.selectSQL()+" ORDER BY simulation_id, round_number"); err != nil {
		return Snapshot{}, fmt.Errorf("load rounds: %w", err)
	}
	for _, r := range rounds {
		snap.Rounds = append(snap.Rounds, r.toRound())
	}

	var offers []offerRow
	if err := s.db.SelectContext(ctx, &offers, offersTable.selectSQL()+" ORDER BY submitted_at"); err != nil {
		return Snapshot{}, fmt.Errorf("load offers: %w", err)
	}
	for _, r := range offers {
		snap.Offers = append(snap.Offers, r.toOffer())
	}

	var feedback []feedbackRow
	if err := s.db.SelectContext(ctx, &feedback, feedbackTable.selectSQL()+" ORDER BY created_at"); err != nil {
		return Snapshot{}, fmt.Errorf("load feedback: %w", err)
	}
	for _, r := range feedback {
		snap.Feedback = append(snap.Feedback, r.toFeedback())
	}

	var events []eventRow
	if err := s.db.SelectContext(ctx, &events, eventsTable.selectSQL()+" ORDER BY created_at"); err != nil {
		return Snapshot{}, fmt.Errorf("load events: %w", err)
	}
	for _, r := range events {
		snap.Events = append(snap.Events, r.toEvent())
	}

	var outcomes []outcomeRow
	if err := s.db.SelectContext(ctx, &outcomes, outcomesTable.selectSQL()); err != nil {
		return Snapshot{}, fmt.Errorf("load outcomes: %w", err)
	}
	for _, r := range outcomes {
		snap.Outcomes = append(snap.Outcomes, r.toOutcome())
	}

	var scores []scoreRow
	if err := s.db.SelectContext(ctx, &scores, scoresTable.selectSQL()); err != nil {
		return Snapshot{}, fmt.Errorf("load scores: %w", err)
	}
	for _, r := range scores {
		snap.Scores = append(snap.Scores, r.toScore())
	}

	var releases []releaseRow
	if err := s.db.SelectContext(ctx, &releases, releasesTable.selectSQL()+" ORDER BY created_at"); err != nil {
		return Snapshot{}, fmt.Errorf("load evidence releases: %w", err)
	}
	for _, r := range releases {
		snap.Releases = append(snap.Releases, r.toRelease())
	}
	return snap, nil
}

// --- commit ---

func (s *SQLiteRepository) Commit(ctx context.Context, cs ChangeSet) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return wrapInternal("begin transaction", err)
	}
	if err := s.commitTx(ctx, tx, cs); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return classifySQLiteError("commit transaction", err)
	}
	return nil
}

func (s *SQLiteRepository) commitTx(ctx context.Context, tx *sqlx.Tx, cs ChangeSet) error {
	for _, v := range cs.Simulations {
		if err := upsert(ctx, tx, simulationsTable, simulationToRow(v)); err != nil {
			return err
		}
	}
	for _, v := range cs.Rounds {
		if err := upsert(ctx, tx, roundsTable, roundToRow(v)); err != nil {
			return err
		}
	}
	for _, v := range cs.Offers {
		if err := upsert(ctx, tx, offersTable, offerToRow(v)); err != nil {
			return err
		}
	}
	for _, v := range cs.Feedback {
		if err := upsert(ctx, tx, feedbackTable, feedbackToRow(v)); err != nil {
			return err
		}
	}
	for _, v := range cs.Events {
		if err := upsert(ctx, tx, eventsTable, eventToRow(v)); err != nil {
			return err
		}
	}
	for _, v := range cs.Outcomes {
		if err := upsert(ctx, tx, outcomesTable, outcomeToRow(v)); err != nil {
			return err
		}
	}
	for _, simID := range cs.ScoresReplaced {
		if _, err := tx.ExecContext(ctx, "DELETE FROM performance_scores WHERE simulation_id = ?", simID.String()); err != nil {
			return classifySQLiteError("replace performance scores", err)
		}
	}
	for _, v := range cs.Scores {
		if err := upsert(ctx, tx, scoresTable, scoreToRow(v)); err != nil {
			return err
		}
	}
	for _, v := range cs.Releases {
		if err := upsert(ctx, tx, releasesTable, releaseToRow(v)); err != nil {
			return err
		}
	}
	return nil
}

func upsert(ctx context.Context, tx *sqlx.Tx, t table, row any) error {
	if _, err := tx.NamedExecContext(ctx, t.upsertSQL(), row); err != nil {
		return classifySQLiteError("save "+t.name, err)
	}
	return nil
}

func classifySQLiteError(op string, err error) error {
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		e := newError(CodeIntegrity, op+": duplicate record")
		e.Cause = err
		return e
	}
	return wrapInternal(op, err)
}

// --- conversions ---

func timeToString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func timePtrToString(t *time.Time) string {
	if t == nil {
		return ""
	}
	return timeToString(*t)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseTimePtr(s string) *time.Time {
	if s == "" {
		return nil
	}
	t := parseTime(s)
	return &t
}

func idToString(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}

func parseID(s string) uuid.UUID {
	if s == "" {
		return uuid.Nil
	}
	id, _ := uuid.Parse(s)
	return id
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func marshalJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func simulationToRow(v Simulation) simulationRow {
	cfg := ""
	if len(v.Config) > 0 {
		cfg = marshalJSON(v.Config)
	}
	return simulationRow{
		ID:              v.ID.String(),
		CaseID:          v.CaseID.String(),
		CaseType:        v.CaseType,
		PlaintiffTeamID: idToString(v.PlaintiffTeamID),
		DefendantTeamID: idToString(v.DefendantTeamID),
		PlaintiffMin:    v.PlaintiffMinAcceptable.String(),
		PlaintiffIdeal:  v.PlaintiffIdeal.String(),
		DefendantIdeal:  v.DefendantIdeal.String(),
		DefendantMax:    v.DefendantMaxAcceptable.String(),
		TotalRounds:     v.TotalRounds,
		CurrentRound:    v.CurrentRound,
		Status:          string(v.Status),
		Config:          cfg,
		CreatedAt:       timeToString(v.CreatedAt),
		UpdatedAt:       timeToString(v.UpdatedAt),
		StartedAt:       timePtrToString(v.StartedAt),
		PausedAt:        timePtrToString(v.PausedAt),
		EndedAt:         timePtrToString(v.EndedAt),
		DeletedAt:       timePtrToString(v.DeletedAt),
	}
}

func (r simulationRow) toSimulation() Simulation {
	v := Simulation{
		ID:                     parseID(r.ID),
		CaseID:                 parseID(r.CaseID),
		CaseType:               r.CaseType,
		PlaintiffTeamID:        parseID(r.PlaintiffTeamID),
		DefendantTeamID:        parseID(r.DefendantTeamID),
		PlaintiffMinAcceptable: parseDecimal(r.PlaintiffMin),
		PlaintiffIdeal:         parseDecimal(r.PlaintiffIdeal),
		DefendantIdeal:         parseDecimal(r.DefendantIdeal),
		DefendantMaxAcceptable: parseDecimal(r.DefendantMax),
		TotalRounds:            r.TotalRounds,
		CurrentRound:           r.CurrentRound,
		Status:                 SimulationStatus(r.Status),
		CreatedAt:              parseTime(r.CreatedAt),
		UpdatedAt:              parseTime(r.UpdatedAt),
		StartedAt:              parseTimePtr(r.StartedAt),
		PausedAt:               parseTimePtr(r.PausedAt),
		EndedAt:                parseTimePtr(r.EndedAt),
		DeletedAt:              parseTimePtr(r.DeletedAt),
	}
	if r.Config != "" {
		_ = json.Unmarshal([]byte(r.Config), &v.Config)
	}
	return v
}

func roundToRow(v Round) roundRow {
	return roundRow{
		ID:                v.ID.String(),
		SimulationID:      v.SimulationID.String(),
		RoundNumber:       v.RoundNumber,
		Deadline:          timeToString(v.Deadline),
		Status:            string(v.Status),
		SettlementReached: boolToInt(v.SettlementReached),
		CreatedAt:         timeToString(v.CreatedAt),
		StartedAt:         timePtrToString(v.StartedAt),
		PausedAt:          timePtrToString(v.PausedAt),
		CompletedAt:       timePtrToString(v.CompletedAt),
	}
}

func (r roundRow) toRound() Round {
	return Round{
		ID:                parseID(r.ID),
		SimulationID:      parseID(r.SimulationID),
		RoundNumber:       r.RoundNumber,
		Deadline:          parseTime(r.Deadline),
		Status:            RoundStatus(r.Status),
		SettlementReached: r.SettlementReached != 0,
		CreatedAt:         parseTime(r.CreatedAt),
		StartedAt:         parseTimePtr(r.StartedAt),
		PausedAt:          parseTimePtr(r.PausedAt),
		CompletedAt:       parseTimePtr(r.CompletedAt),
	}
}

func offerToRow(v Offer) offerRow {
	return offerRow{
		ID:               v.ID.String(),
		SimulationID:     v.SimulationID.String(),
		RoundID:          v.RoundID.String(),
		RoundNumber:      v.RoundNumber,
		TeamID:           v.TeamID.String(),
		Role:             string(v.Role),
		SubmittedBy:      idToString(v.SubmittedBy),
		Amount:           v.Amount.String(),
		Justification:    v.Justification,
		NonMonetaryTerms: v.NonMonetaryTerms,
		OfferType:        string(v.OfferType),
		QualityScore:     v.QualityScore,
		Quality:          marshalJSON(v.Quality),
		SubmittedAt:      timeToString(v.SubmittedAt),
	}
}

func (r offerRow) toOffer() Offer {
	v := Offer{
		ID:               parseID(r.ID),
		SimulationID:     parseID(r.SimulationID),
		RoundID:          parseID(r.RoundID),
		RoundNumber:      r.RoundNumber,
		TeamID:           parseID(r.TeamID),
		Role:             Role(r.Role),
		SubmittedBy:      parseID(r.SubmittedBy),
		Amount:           parseDecimal(r.Amount),
		Justification:    r.Justification,
		NonMonetaryTerms: r.NonMonetaryTerms,
		OfferType:        OfferType(r.OfferType),
		QualityScore:     r.QualityScore,
		SubmittedAt:      parseTime(r.SubmittedAt),
	}
	_ = json.Unmarshal([]byte(r.Quality), &v.Quality)
	return v
}

func feedbackToRow(v ClientFeedback) feedbackRow {
	return feedbackRow{
		ID:                v.ID.String(),
		SimulationID:      v.SimulationID.String(),
		TeamID:            idToString(v.TeamID),
		RoundNumber:       v.RoundNumber,
		OfferID:           idToString(v.OfferID),
		EventID:           idToString(v.EventID),
		Type:              string(v.Type),
		Mood:              string(v.Mood),
		SatisfactionScore: v.SatisfactionScore,
		Text:              v.Text,
		Source:            string(v.Source),
		CreatedAt:         timeToString(v.CreatedAt),
	}
}

func (r feedbackRow) toFeedback() ClientFeedback {
	return ClientFeedback{
		ID:                parseID(r.ID),
		SimulationID:      parseID(r.SimulationID),
		TeamID:            parseID(r.TeamID),
		RoundNumber:       r.RoundNumber,
		OfferID:           parseID(r.OfferID),
		EventID:           parseID(r.EventID),
		Type:              FeedbackType(r.Type),
		Mood:              Mood(r.Mood),
		SatisfactionScore: r.SatisfactionScore,
		Text:              r.Text,
		Source:            FeedbackSource(r.Source),
		CreatedAt:         parseTime(r.CreatedAt),
	}
}

func eventToRow(v Event) eventRow {
	return eventRow{
		ID:                 v.ID.String(),
		SimulationID:       v.SimulationID.String(),
		Type:               string(v.Type),
		TriggerRound:       v.TriggerRound,
		ScheduledFor:       timePtrToString(v.ScheduledFor),
		TriggeredAt:        timePtrToString(v.TriggeredAt),
		PressureAdjustment: marshalJSON(v.PressureAdjustment),
		AdjustmentsApplied: marshalJSON(v.AdjustmentsApplied),
		Automatic:          boolToInt(v.Automatic),
		Description:        v.Description,
		CreatedAt:          timeToString(v.CreatedAt),
	}
}

func (r eventRow) toEvent() Event {
	v := Event{
		ID:           parseID(r.ID),
		SimulationID: parseID(r.SimulationID),
		Type:         EventType(r.Type),
		TriggerRound: r.TriggerRound,
		ScheduledFor: parseTimePtr(r.ScheduledFor),
		TriggeredAt:  parseTimePtr(r.TriggeredAt),
		Automatic:    r.Automatic != 0,
		Description:  r.Description,
		CreatedAt:    parseTime(r.CreatedAt),
	}
	_ = json.Unmarshal([]byte(r.PressureAdjustment), &v.PressureAdjustment)
	_ = json.Unmarshal([]byte(r.AdjustmentsApplied), &v.AdjustmentsApplied)
	return v
}

func outcomeToRow(v ArbitrationOutcome) outcomeRow {
	return outcomeRow{
		ID:                 v.ID.String(),
		SimulationID:       v.SimulationID.String(),
		AwardAmount:        v.AwardAmount.String(),
		OutcomeType:        string(v.OutcomeType),
		Rationale:          v.Rationale,
		LessonsLearned:     marshalJSON(v.LessonsLearned),
		EvidenceStrength:   v.EvidenceStrength,
		ArgumentQuality:    v.ArgumentQuality,
		NegotiationHistory: v.NegotiationHistory,
		RandomVariance:     v.RandomVariance,
		CalculatedAt:       timeToString(v.CalculatedAt),
		CreatedAt:          timeToString(v.CreatedAt),
	}
}

func (r outcomeRow) toOutcome() ArbitrationOutcome {
	v := ArbitrationOutcome{
		ID:                 parseID(r.ID),
		SimulationID:       parseID(r.SimulationID),
		AwardAmount:        parseDecimal(r.AwardAmount),
		OutcomeType:        OutcomeType(r.OutcomeType),
		Rationale:          r.Rationale,
		EvidenceStrength:   r.EvidenceStrength,
		ArgumentQuality:    r.ArgumentQuality,
		NegotiationHistory: r.NegotiationHistory,
		RandomVariance:     r.RandomVariance,
		CalculatedAt:       parseTime(r.CalculatedAt),
		CreatedAt:          parseTime(r.CreatedAt),
	}
	_ = json.Unmarshal([]byte(r.LessonsLearned), &v.LessonsLearned)
	return v
}

func scoreToRow(v PerformanceScore) scoreRow {
	return scoreRow{
		ID:                   v.ID.String(),
		SimulationID:         v.SimulationID.String(),
		TeamID:               v.TeamID.String(),
		UserID:               idToString(v.UserID),
		SettlementQuality:    v.SettlementQuality,
		LegalStrategy:        v.LegalStrategy,
		Collaboration:        v.Collaboration,
		Efficiency:           v.Efficiency,
		SpeedBonus:           v.SpeedBonus,
		CreativeTerms:        v.CreativeTerms,
		InstructorAdjustment: v.InstructorAdjustment,
		InstructorNote:       v.InstructorNote,
		TotalScore:           v.TotalScore,
		Rank:                 v.Rank,
		Percentile:           v.Percentile,
		CalculatedAt:         timeToString(v.CalculatedAt),
	}
}

func (r scoreRow) toScore() PerformanceScore {
	return PerformanceScore{
		ID:                   parseID(r.ID),
		SimulationID:         parseID(r.SimulationID),
		TeamID:               parseID(r.TeamID),
		UserID:               parseID(r.UserID),
		SettlementQuality:    r.SettlementQuality,
		LegalStrategy:        r.LegalStrategy,
		Collaboration:        r.Collaboration,
		Efficiency:           r.Efficiency,
		SpeedBonus:           r.SpeedBonus,
		CreativeTerms:        r.CreativeTerms,
		InstructorAdjustment: r.InstructorAdjustment,
		InstructorNote:       r.InstructorNote,
		TotalScore:           r.TotalScore,
		Rank:                 r.Rank,
		Percentile:           r.Percentile,
		CalculatedAt:         parseTime(r.CalculatedAt),
	}
}

func releaseToRow(v EvidenceRelease) releaseRow {
	return releaseRow{
		ID:           v.ID.String(),
		SimulationID: v.SimulationID.String(),
		DocumentID:   v.DocumentID.String(),
		RequestedBy:  idToString(v.RequestedBy),
		ReleaseRound: v.ReleaseRound,
		ScheduledFor: timePtrToString(v.ScheduledFor),
		Automatic:    boolToInt(v.Automatic),
		Status:       string(v.Status),
		ApprovedAt:   timePtrToString(v.ApprovedAt),
		ReleasedAt:   timePtrToString(v.ReleasedAt),
		EventID:      idToString(v.EventID),
		CreatedAt:    timeToString(v.CreatedAt),
	}
}

func (r releaseRow) toRelease() EvidenceRelease {
	return EvidenceRelease{
		ID:           parseID(r.ID),
		SimulationID: parseID(r.SimulationID),
		DocumentID:   parseID(r.DocumentID),
		RequestedBy:  parseID(r.RequestedBy),
		ReleaseRound: r.ReleaseRound,
		ScheduledFor: parseTimePtr(r.ScheduledFor),
		Automatic:    r.Automatic != 0,
		Status:       ReleaseStatus(r.Status),
		ApprovedAt:   parseTimePtr(r.ApprovedAt),
		ReleasedAt:   parseTimePtr(r.ReleasedAt),
		EventID:      parseID(r.EventID),
		CreatedAt:    parseTime(r.CreatedAt),
	}
}
