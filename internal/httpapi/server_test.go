package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/joelkehle/negotiation-lab/internal/casefile"
	"github.com/joelkehle/negotiation-lab/internal/negotiation"
)

type fixture struct {
	h         http.Handler
	caseID    uuid.UUID
	plaintiff uuid.UUID
	defendant uuid.UUID
}

func newServerForTest(t *testing.T) fixture {
	t.Helper()
	now := time.Date(2026, 2, 17, 0, 0, 0, 0, time.UTC)
	dir := casefile.NewDirectory()
	caseID := uuid.New()
	p := dir.AddTeam(negotiation.Team{CaseID: caseID, Name: "Plaintiff counsel", Role: negotiation.RolePlaintiff})
	d := dir.AddTeam(negotiation.Team{CaseID: caseID, Name: "Defense counsel", Role: negotiation.RoleDefendant})
	engine, err := negotiation.NewEngine(context.Background(), negotiation.Config{
		RandomSeed: 42,
		Clock:      func() time.Time { return now },
	}, negotiation.Deps{Directory: dir, Documents: casefile.NewDocuments()})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return fixture{h: NewServer(engine, nil, nil), caseID: caseID, plaintiff: p.ID, defendant: d.ID}
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		blob, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(blob)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
	return out
}

func mustStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("status=%d want %d body=%s", rr.Code, want, rr.Body.String())
	}
}

func createSimulation(t *testing.T, f fixture) string {
	t.Helper()
	rr := do(t, f.h, http.MethodPost, "/v1/simulations", map[string]any{
		"case_id":                  f.caseID,
		"case_type":                "personal_injury",
		"total_rounds":             6,
		"plaintiff_min_acceptable": "150000",
		"plaintiff_ideal":          "300000",
		"defendant_ideal":          "100000",
		"defendant_max_acceptable": "250000",
	})
	mustStatus(t, rr, http.StatusCreated)
	sim := decode(t, rr)["simulation"].(map[string]any)
	if sim["status"] != "setup" {
		t.Fatalf("new simulation should be in setup: %v", sim)
	}
	return sim["id"].(string)
}

func startSimulation(t *testing.T, f fixture) string {
	t.Helper()
	id := createSimulation(t, f)
	for _, team := range []uuid.UUID{f.plaintiff, f.defendant} {
		mustStatus(t, do(t, f.h, http.MethodPost, "/v1/simulations/"+id+"/teams", map[string]any{"team_id": team}), http.StatusOK)
	}
	rr := do(t, f.h, http.MethodGet, "/v1/simulations/"+id+"/readiness", nil)
	mustStatus(t, rr, http.StatusOK)
	if decode(t, rr)["ready"] != true {
		t.Fatalf("expected ready, got %s", rr.Body.String())
	}
	mustStatus(t, do(t, f.h, http.MethodPost, "/v1/simulations/"+id+"/start", nil), http.StatusOK)
	return id
}

const justification = "Medical bills and lost wages are documented and the liability evidence is strong."

func TestHealth(t *testing.T) {
	f := newServerForTest(t)
	mustStatus(t, do(t, f.h, http.MethodGet, "/v1/health", nil), http.StatusOK)
}

func TestSettlementFlowOverHTTP(t *testing.T) {
	f := newServerForTest(t)
	id := startSimulation(t, f)

	rr := do(t, f.h, http.MethodPost, "/v1/simulations/"+id+"/offers", map[string]any{
		"team_id": f.plaintiff, "amount": "200000", "justification": justification,
	})
	mustStatus(t, rr, http.StatusCreated)
	first := decode(t, rr)
	if first["settled"] != false || first["feedback"] == nil {
		t.Fatalf("first offer should get feedback and not settle: %v", first)
	}

	rr = do(t, f.h, http.MethodPost, "/v1/simulations/"+id+"/offers", map[string]any{
		"team_id": f.defendant, "amount": "195000", "justification": justification,
	})
	mustStatus(t, rr, http.StatusCreated)
	second := decode(t, rr)
	if second["settled"] != true {
		t.Fatalf("close offers should settle: %v", second)
	}

	rr = do(t, f.h, http.MethodGet, "/v1/simulations/"+id, nil)
	mustStatus(t, rr, http.StatusOK)
	if got := decode(t, rr)["simulation"].(map[string]any)["status"]; got != "completed" {
		t.Fatalf("expected completed, got %v", got)
	}

	rr = do(t, f.h, http.MethodGet, "/v1/simulations/"+id+"/feedback?team_id="+f.defendant.String(), nil)
	mustStatus(t, rr, http.StatusOK)
	if fb := decode(t, rr)["feedback"].([]any); len(fb) < 2 {
		t.Fatalf("defendant should have offer and settlement feedback, got %d", len(fb))
	}

	rr = do(t, f.h, http.MethodGet, "/v1/simulations/"+id+"/report", nil)
	mustStatus(t, rr, http.StatusOK)
	if !strings.Contains(rr.Body.String(), "Settled in round 1.") {
		t.Fatalf("report missing result: %s", rr.Body.String())
	}

	rr = do(t, f.h, http.MethodGet, "/v1/simulations/"+id+"/report?format=html", nil)
	mustStatus(t, rr, http.StatusOK)
	if !strings.Contains(rr.Header().Get("Content-Type"), "text/html") {
		t.Fatalf("unexpected content type %q", rr.Header().Get("Content-Type"))
	}

	mustStatus(t, do(t, f.h, http.MethodPost, "/v1/simulations/"+id+"/scores", nil), http.StatusOK)
	rr = do(t, f.h, http.MethodGet, "/v1/simulations/"+id+"/scores", nil)
	mustStatus(t, rr, http.StatusOK)
	if scores := decode(t, rr)["scores"].([]any); len(scores) != 2 {
		t.Fatalf("expected two team scores without members, got %d", len(scores))
	}
}

func TestErrorEnvelope(t *testing.T) {
	f := newServerForTest(t)

	rr := do(t, f.h, http.MethodGet, "/v1/simulations/not-a-uuid", nil)
	mustStatus(t, rr, http.StatusBadRequest)
	errBody := decode(t, rr)["error"].(map[string]any)
	if errBody["code"] != negotiation.CodeValidation || errBody["field"] != "id" {
		t.Fatalf("unexpected error body: %v", errBody)
	}

	rr = do(t, f.h, http.MethodGet, "/v1/simulations/"+uuid.NewString(), nil)
	mustStatus(t, rr, http.StatusNotFound)
	if decode(t, rr)["error"].(map[string]any)["code"] != negotiation.CodeNotFound {
		t.Fatalf("expected not_found: %s", rr.Body.String())
	}

	rr = do(t, f.h, http.MethodPost, "/v1/simulations", "{")
	mustStatus(t, rr, http.StatusBadRequest)
}

func TestStartUnreadyListsProblems(t *testing.T) {
	f := newServerForTest(t)
	id := createSimulation(t, f)

	rr := do(t, f.h, http.MethodPost, "/v1/simulations/"+id+"/start", nil)
	mustStatus(t, rr, http.StatusUnprocessableEntity)
	errBody := decode(t, rr)["error"].(map[string]any)
	problems, _ := errBody["problems"].([]any)
	if len(problems) != 2 {
		t.Fatalf("expected both team problems, got %v", errBody)
	}
}

func TestShortJustificationRejected(t *testing.T) {
	f := newServerForTest(t)
	id := startSimulation(t, f)

	rr := do(t, f.h, http.MethodPost, "/v1/simulations/"+id+"/offers", map[string]any{
		"team_id": f.plaintiff, "amount": "200000", "justification": "too short",
	})
	mustStatus(t, rr, http.StatusBadRequest)
	if got := decode(t, rr)["error"].(map[string]any)["field"]; got != "justification" {
		t.Fatalf("expected justification field error, got %v", got)
	}
}

func TestPDFReportNeedsRenderer(t *testing.T) {
	f := newServerForTest(t)
	id := createSimulation(t, f)
	mustStatus(t, do(t, f.h, http.MethodGet, "/v1/simulations/"+id+"/report?format=pdf", nil), http.StatusServiceUnavailable)
	mustStatus(t, do(t, f.h, http.MethodGet, "/v1/simulations/"+id+"/report?format=docx", nil), http.StatusBadRequest)
}

func TestSweepEndpoint(t *testing.T) {
	f := newServerForTest(t)
	startSimulation(t, f)
	rr := do(t, f.h, http.MethodPost, "/v1/sweep", nil)
	mustStatus(t, rr, http.StatusOK)
	if decode(t, rr)["sweep"].(map[string]any)["rounds_closed"] != float64(0) {
		t.Fatalf("nothing is overdue yet: %s", rr.Body.String())
	}
}
