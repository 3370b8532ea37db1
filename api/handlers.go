package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stellarlinkco/agent-evals/internal/app"
	"github.com/stellarlinkco/agent-evals/internal/evalutil"
	"github.com/stellarlinkco/agent-evals/internal/scenario"
	"github.com/stellarlinkco/agent-evals/internal/store"
)

type batchRequest struct {
	BatchID     string              `json:"batch_id,omitempty"`
	DatasetKey  string              `json:"dataset_key,omitempty"`
	Tag         string              `json:"tag,omitempty"`
	ScenarioIDs []string            `json:"scenario_ids,omitempty"`
	Scenarios   []scenario.Scenario `json:"scenarios,omitempty"`
	Limits      scenario.RunLimits  `json:"limits"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleListScenarios(c *gin.Context) {
	scenarios, err := app.LoadScenarios(s.config.Evals.ScenariosDir)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	scenarios = app.FilterScenarios(scenarios, c.Query("dataset"), c.Query("tag"), nil)
	c.JSON(http.StatusOK, scenarios)
}

// handleStartBatch runs a batch synchronously and returns its results.
// Re-posting the same batch_id resumes unfinished work instead of repeating
// completed scenarios.
func (s *Server) handleStartBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	batchID := strings.TrimSpace(req.BatchID)
	if batchID == "" {
		batchID = "batch_" + evalutil.NewID()
	}

	scenarios := req.Scenarios
	if len(scenarios) == 0 {
		loaded, err := app.LoadScenarios(s.config.Evals.ScenariosDir)
		if err != nil {
			respondError(c, http.StatusInternalServerError, err)
			return
		}
		scenarios = app.FilterScenarios(loaded, req.DatasetKey, req.Tag, req.ScenarioIDs)
	}
	if len(scenarios) == 0 {
		respondError(c, http.StatusBadRequest, errors.New("no scenarios selected"))
		return
	}

	resp, err := s.runner.Run(c.Request.Context(), &app.BatchInput{
		BatchID:   batchID,
		Scenarios: scenarios,
		Limits:    req.Limits,
	})
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"batch_id":       batchID,
		"ran":            resp.Ran,
		"stopped_reason": resp.StoppedReason,
		"results":        resp.Results,
		"total_cost_usd": resp.TotalCostUSD,
	})
}

func (s *Server) handleListRuns(c *gin.Context) {
	limit, err := parseLimitParam(c.Query("limit"), 50)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	runs, err := s.store.ListRuns(c.Request.Context(), strings.TrimSpace(c.Query("dataset")), limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, runs)
}

func (s *Server) handleGetRun(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		respondError(c, http.StatusBadRequest, errors.New("missing run id"))
		return
	}

	run, err := s.store.GetRun(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(c, http.StatusNotFound, fmt.Errorf("run %q not found", id))
			return
		}
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func respondError(c *gin.Context, status int, err error) {
	if err == nil {
		c.Status(status)
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func parseLimitParam(raw string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid limit %q", raw)
	}
	return n, nil
}
