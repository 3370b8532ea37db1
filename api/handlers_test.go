package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/stellarlinkco/agent-evals/internal/app"
	"github.com/stellarlinkco/agent-evals/internal/config"
	"github.com/stellarlinkco/agent-evals/internal/scenario"
	"github.com/stellarlinkco/agent-evals/internal/services"
	"github.com/stellarlinkco/agent-evals/internal/state"
	"github.com/stellarlinkco/agent-evals/internal/store"
)

type fakeAgent struct{}

func (fakeAgent) Process(ctx context.Context, userID, message string, history []state.Turn, meta map[string]any) (*services.AgentReply, error) {
	return &services.AgentReply{Content: "bien reçu"}, nil
}

func writeScenarioFixture(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	payload := []byte(`dataset_key: core
scenarios:
  - id: greeting
    tags: [smoke]
    steps:
      - user: bonjour
  - id: followup
    steps:
      - user: comment ça va
`)
	if err := os.WriteFile(filepath.Join(dir, "core.yaml"), payload, 0o644); err != nil {
		t.Fatalf("WriteFile scenarios: %v", err)
	}
	return dir
}

func newTestServer(t *testing.T) (*Server, store.Store) {
	t.Helper()

	gin.SetMode(gin.TestMode)
	t.Setenv("AGENT_EVALS_API_KEY", "")
	t.Setenv("AGENT_EVALS_DISABLE_AUTH", "true")

	cfg := config.Default()
	cfg.Evals.ScenariosDir = writeScenarioFixture(t)

	st, err := store.Open("memory", "")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	runner := app.NewBatchRunner(cfg, st, nil)
	runner.Agent = fakeAgent{}

	s, err := NewServer(cfg, st, runner)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s, st
}

func TestHandlers_Health(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d want %d", rec.Code, http.StatusOK)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("status field: got %v want %q", body["status"], "ok")
	}
}

func TestHandlers_ListScenarios(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/scenarios?tag=smoke", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d want %d", rec.Code, http.StatusOK)
	}

	var out []scenario.Scenario
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(out) != 1 || out[0].ID != "greeting" {
		t.Fatalf("scenarios: %+v", out)
	}
}

func TestHandlers_StartBatchAndGetRun(t *testing.T) {
	s, st := newTestServer(t)

	body := strings.NewReader(`{"batch_id": "batch-api", "scenario_ids": ["greeting"]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/batches", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d want %d (body %s)", rec.Code, http.StatusOK, rec.Body.String())
	}

	var out struct {
		BatchID string `json:"batch_id"`
		Ran     int    `json:"ran"`
		Results []struct {
			EvalRunID string `json:"eval_run_id"`
		} `json:"results"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.BatchID != "batch-api" || out.Ran != 1 || len(out.Results) != 1 {
		t.Fatalf("batch response: %+v", out)
	}

	runs, err := st.ListRuns(req.Context(), "core", 10)
	if err != nil || len(runs) != 1 {
		t.Fatalf("ListRuns: %v (%d runs)", err, len(runs))
	}

	getReq := httptest.NewRequest(http.MethodGet, "/api/runs/"+out.Results[0].EvalRunID, nil)
	getRec := httptest.NewRecorder()
	s.router.ServeHTTP(getRec, getReq)

	if getRec.Code != http.StatusOK {
		t.Fatalf("get run status: got %d want %d", getRec.Code, http.StatusOK)
	}
	var run store.EvalRun
	if err := json.NewDecoder(getRec.Body).Decode(&run); err != nil {
		t.Fatalf("Decode run: %v", err)
	}
	if run.Status != store.RunStatusCompleted {
		t.Fatalf("run status = %q", run.Status)
	}
}

func TestHandlers_StartBatchWithoutScenarios(t *testing.T) {
	s, _ := newTestServer(t)

	body := strings.NewReader(`{"batch_id": "batch-empty", "scenario_ids": ["nope"]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/batches", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandlers_GetRunNotFound(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/runs/does-not-exist", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status: got %d want %d", rec.Code, http.StatusNotFound)
	}
}

func TestHandlers_ListRunsBadLimit(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/runs?limit=zero", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d want %d", rec.Code, http.StatusBadRequest)
	}
}
