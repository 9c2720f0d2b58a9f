package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joelkehle/negotiation-lab/internal/negotiation"
	"github.com/joelkehle/negotiation-lab/internal/platform/logger"
	"github.com/joelkehle/negotiation-lab/internal/report"
)

// PDFRenderer turns debrief markdown into a PDF.
type PDFRenderer interface {
	Render(ctx context.Context, markdown string) ([]byte, error)
}

type Server struct {
	engine *negotiation.Engine
	pdf    PDFRenderer
	log    *logger.Logger
}

// NewServer exposes the engine as JSON over HTTP. A nil pdf renderer turns
// off the PDF debrief format.
func NewServer(engine *negotiation.Engine, pdf PDFRenderer, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.NewNop()
	}
	s := &Server{engine: engine, pdf: pdf, log: log}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("POST /v1/sweep", s.handleSweep)

	mux.HandleFunc("POST /v1/simulations", s.handleCreateSimulation)
	mux.HandleFunc("GET /v1/simulations", s.handleListSimulations)
	mux.HandleFunc("GET /v1/simulations/{id}", s.handleGetSimulation)
	mux.HandleFunc("DELETE /v1/simulations/{id}", s.handleDeleteSimulation)
	mux.HandleFunc("PUT /v1/simulations/{id}/thresholds", s.handleUpdateThresholds)
	mux.HandleFunc("POST /v1/simulations/{id}/teams", s.handleAssignTeam)
	mux.HandleFunc("GET /v1/simulations/{id}/readiness", s.handleReadiness)
	mux.HandleFunc("POST /v1/simulations/{id}/start", s.simAction(s.engine.StartSimulation))
	mux.HandleFunc("POST /v1/simulations/{id}/pause", s.simAction(s.engine.PauseSimulation))
	mux.HandleFunc("POST /v1/simulations/{id}/resume", s.simAction(s.engine.ResumeSimulation))
	mux.HandleFunc("POST /v1/simulations/{id}/complete", s.simAction(s.engine.CompleteSimulation))
	mux.HandleFunc("POST /v1/simulations/{id}/arbitration", s.handleTriggerArbitration)
	mux.HandleFunc("POST /v1/simulations/{id}/arbitration/recalculate", s.handleRecalculateArbitration)
	mux.HandleFunc("GET /v1/simulations/{id}/arbitration", s.handleGetArbitration)

	mux.HandleFunc("GET /v1/simulations/{id}/rounds", s.handleListRounds)
	mux.HandleFunc("POST /v1/simulations/{id}/rounds/complete", s.handleCompleteRound)
	mux.HandleFunc("POST /v1/simulations/{id}/rounds/advance", s.simAction(s.engine.AdvanceRound))
	mux.HandleFunc("POST /v1/simulations/{id}/offers", s.handleSubmitOffer)
	mux.HandleFunc("GET /v1/simulations/{id}/offers", s.handleListOffers)
	mux.HandleFunc("GET /v1/simulations/{id}/feedback", s.handleListFeedback)

	mux.HandleFunc("GET /v1/simulations/{id}/events", s.handleListEvents)
	mux.HandleFunc("POST /v1/simulations/{id}/events", s.handleScheduleEvent)
	mux.HandleFunc("POST /v1/simulations/{id}/events/{eventID}/trigger", s.handleTriggerEvent)

	mux.HandleFunc("GET /v1/simulations/{id}/evidence", s.handleListEvidence)
	mux.HandleFunc("POST /v1/simulations/{id}/evidence/schedule", s.handleScheduleEvidence)
	mux.HandleFunc("POST /v1/simulations/{id}/evidence/requests", s.handleRequestEvidence)
	mux.HandleFunc("POST /v1/evidence/{releaseID}/approve", s.releaseAction(s.engine.ApproveEvidenceRelease))
	mux.HandleFunc("POST /v1/evidence/{releaseID}/deny", s.releaseAction(s.engine.DenyEvidenceRelease))
	mux.HandleFunc("POST /v1/evidence/{releaseID}/release", s.releaseAction(s.engine.ReleaseEvidence))

	mux.HandleFunc("POST /v1/simulations/{id}/scores", s.handleScorePerformance)
	mux.HandleFunc("GET /v1/simulations/{id}/scores", s.handleListScores)
	mux.HandleFunc("POST /v1/scores/{scoreID}/adjust", s.handleAdjustScore)

	mux.HandleFunc("GET /v1/simulations/{id}/report", s.handleReport)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	var ne *negotiation.Error
	if !errors.As(err, &ne) {
		ne = &negotiation.Error{Code: negotiation.CodeInternal, Message: err.Error()}
	}
	body := map[string]any{
		"code":    ne.Code,
		"message": ne.Message,
	}
	if ne.Field != "" {
		body["field"] = ne.Field
	}
	if len(ne.Problems) > 0 {
		body["problems"] = ne.Problems
	}
	writeJSON(w, negotiation.StatusOf(err), map[string]any{"ok": false, "error": body})
}

func validationError(field, message string) error {
	err := negotiation.NewError(negotiation.CodeValidation, message)
	err.Field = field
	return err
}

func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	blob, err := io.ReadAll(r.Body)
	if err != nil {
		return validationError("body", "unreadable request body")
	}
	if len(blob) == 0 {
		return nil
	}
	if err := json.Unmarshal(blob, dst); err != nil {
		return validationError("body", "invalid json: "+err.Error())
	}
	return nil
}

func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, validationError(name, "must be a uuid")
	}
	return id, nil
}

func parseOptionalID(raw, field string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, validationError(field, "must be a uuid")
	}
	return id, nil
}

func (s *Server) simAction(op func(context.Context, uuid.UUID) (negotiation.Simulation, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			writeError(w, err)
			return
		}
		sim, err := op(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "simulation": sim})
	}
}

func (s *Server) releaseAction(op func(context.Context, uuid.UUID) (negotiation.EvidenceRelease, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "releaseID")
		if err != nil {
			writeError(w, err)
			return
		}
		rel, err := op(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "release": rel})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	rep, err := s.engine.Sweep(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "sweep": rep})
}

type thresholdsRequest struct {
	PlaintiffMinAcceptable decimal.Decimal `json:"plaintiff_min_acceptable"`
	PlaintiffIdeal         decimal.Decimal `json:"plaintiff_ideal"`
	DefendantIdeal         decimal.Decimal `json:"defendant_ideal"`
	DefendantMaxAcceptable decimal.Decimal `json:"defendant_max_acceptable"`
}

func (s *Server) handleCreateSimulation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CaseID      uuid.UUID      `json:"case_id"`
		CaseType    string         `json:"case_type"`
		TotalRounds int            `json:"total_rounds"`
		Config      map[string]any `json:"config"`
		thresholdsRequest
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	sim, err := s.engine.CreateSimulation(r.Context(), negotiation.CreateSimulationInput{
		CaseID:                 req.CaseID,
		CaseType:               req.CaseType,
		TotalRounds:            req.TotalRounds,
		PlaintiffMinAcceptable: req.PlaintiffMinAcceptable,
		PlaintiffIdeal:         req.PlaintiffIdeal,
		DefendantIdeal:         req.DefendantIdeal,
		DefendantMaxAcceptable: req.DefendantMaxAcceptable,
		Config:                 req.Config,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "simulation": sim})
}

func (s *Server) handleListSimulations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"simulations": s.engine.Simulations(r.Context())})
}

func (s *Server) handleGetSimulation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	sim, err := s.engine.Simulation(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"simulation": sim})
}

func (s *Server) handleDeleteSimulation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.engine.DeleteSimulation(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleUpdateThresholds(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req thresholdsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	sim, err := s.engine.UpdateThresholds(r.Context(), id, negotiation.ThresholdsInput(req))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "simulation": sim})
}

func (s *Server) handleAssignTeam(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		TeamID uuid.UUID `json:"team_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	sim, err := s.engine.AssignTeam(r.Context(), id, req.TeamID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "simulation": sim})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	problems, err := s.engine.Readiness(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if problems == nil {
		problems = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ready": len(problems) == 0, "problems": problems})
}

func (s *Server) handleTriggerArbitration(w http.ResponseWriter, r *http.Request) {
	s.arbitrationAction(w, r, s.engine.TriggerArbitration)
}

func (s *Server) handleRecalculateArbitration(w http.ResponseWriter, r *http.Request) {
	s.arbitrationAction(w, r, s.engine.RecalculateArbitration)
}

func (s *Server) handleGetArbitration(w http.ResponseWriter, r *http.Request) {
	s.arbitrationAction(w, r, s.engine.ArbitrationOutcome)
}

func (s *Server) arbitrationAction(w http.ResponseWriter, r *http.Request, op func(context.Context, uuid.UUID) (negotiation.ArbitrationOutcome, error)) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	out, err := op(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "arbitration": out})
}

func (s *Server) handleListRounds(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	rounds, err := s.engine.Rounds(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rounds": rounds})
}

func (s *Server) handleCompleteRound(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	round, err := s.engine.CompleteRound(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "round": round})
}

func (s *Server) handleSubmitOffer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		TeamID           uuid.UUID       `json:"team_id"`
		SubmittedBy      uuid.UUID       `json:"submitted_by"`
		Amount           decimal.Decimal `json:"amount"`
		Justification    string          `json:"justification"`
		NonMonetaryTerms string          `json:"non_monetary_terms"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := s.engine.SubmitOffer(r.Context(), negotiation.SubmitOfferInput{
		SimulationID:     id,
		TeamID:           req.TeamID,
		SubmittedBy:      req.SubmittedBy,
		Amount:           req.Amount,
		Justification:    req.Justification,
		NonMonetaryTerms: req.NonMonetaryTerms,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleListOffers(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	offers, err := s.engine.Offers(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"offers": offers})
}

func (s *Server) handleListFeedback(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	teamID, err := parseOptionalID(r.URL.Query().Get("team_id"), "team_id")
	if err != nil {
		writeError(w, err)
		return
	}
	feedback, err := s.engine.Feedback(r.Context(), id, teamID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"feedback": feedback})
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	events, err := s.engine.Events(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleScheduleEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Type         negotiation.EventType `json:"event_type"`
		TriggerRound int                   `json:"trigger_round"`
		ScheduledFor *time.Time            `json:"scheduled_for"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	ev, err := s.engine.ScheduleEvent(r.Context(), negotiation.EventScheduleInput{
		SimulationID: id,
		Type:         req.Type,
		TriggerRound: req.TriggerRound,
		ScheduledFor: req.ScheduledFor,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "event": ev})
}

func (s *Server) handleTriggerEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	eventID, err := pathID(r, "eventID")
	if err != nil {
		writeError(w, err)
		return
	}
	ev, err := s.engine.TriggerEvent(r.Context(), id, eventID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "event": ev})
}

func (s *Server) handleListEvidence(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	releases, err := s.engine.EvidenceReleases(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"releases": releases})
}

func (s *Server) handleScheduleEvidence(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		DocumentID   uuid.UUID `json:"document_id"`
		ReleaseRound int       `json:"release_round"`
		ScheduledFor time.Time `json:"scheduled_for"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	rel, err := s.engine.ScheduleEvidenceRelease(r.Context(), negotiation.EvidenceScheduleInput{
		SimulationID: id,
		DocumentID:   req.DocumentID,
		ReleaseRound: req.ReleaseRound,
		ScheduledFor: req.ScheduledFor,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "release": rel})
}

func (s *Server) handleRequestEvidence(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		DocumentID   uuid.UUID `json:"document_id"`
		TeamID       uuid.UUID `json:"team_id"`
		ReleaseRound int       `json:"release_round"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	rel, err := s.engine.RequestEvidenceRelease(r.Context(), negotiation.EvidenceRequestInput{
		SimulationID: id,
		DocumentID:   req.DocumentID,
		TeamID:       req.TeamID,
		ReleaseRound: req.ReleaseRound,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "release": rel})
}

func (s *Server) handleScorePerformance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	scores, err := s.engine.ScorePerformance(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "scores": scores})
}

func (s *Server) handleListScores(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	scores, err := s.engine.PerformanceScores(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"scores": scores})
}

func (s *Server) handleAdjustScore(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "scoreID")
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Delta float64 `json:"delta"`
		Note  string  `json:"note"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	score, err := s.engine.AdjustScore(r.Context(), id, req.Delta, req.Note)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "score": score})
}

// handleReport serves the debrief as markdown (default), html or pdf.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	d, err := report.Load(r.Context(), s.engine, id)
	if err != nil {
		writeError(w, err)
		return
	}
	md := report.Markdown(d)
	switch format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format"))); format {
	case "", "md", "markdown":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, md)
	case "html":
		page, err := report.HTML(md)
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, page)
	case "pdf":
		if s.pdf == nil {
			writeError(w, negotiation.NewError(negotiation.CodeDependency, "pdf rendering is not configured"))
			return
		}
		blob, err := s.pdf.Render(r.Context(), md)
		if err != nil {
			s.log.Error("debrief pdf render failed", "simulation_id", id, "error", err)
			writeError(w, negotiation.NewError(negotiation.CodeDependency, "pdf rendering failed"))
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(blob)
	default:
		writeError(w, validationError("format", "must be md, html or pdf"))
	}
}
