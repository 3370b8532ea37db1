package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/stellarlinkco/agent-evals/internal/assert"
	"github.com/stellarlinkco/agent-evals/internal/driver"
	"github.com/stellarlinkco/agent-evals/internal/evalutil"
	"github.com/stellarlinkco/agent-evals/internal/fixture"
	"github.com/stellarlinkco/agent-evals/internal/scenario"
	"github.com/stellarlinkco/agent-evals/internal/services"
	"github.com/stellarlinkco/agent-evals/internal/state"
	"github.com/stellarlinkco/agent-evals/internal/store"
	"github.com/stellarlinkco/agent-evals/internal/template"
)

// BatchRequest is one batch invocation: a stable batch id plus the scenarios
// to run. Re-invoking with the same batch id resumes instead of re-running.
type BatchRequest struct {
	BatchID   string
	Scenarios []scenario.Scenario
	Limits    scenario.RunLimits
}

// ScenarioResult is one row of the batch response.
type ScenarioResult struct {
	DatasetKey       string  `json:"dataset_key"`
	ScenarioKey      string  `json:"scenario_key"`
	EvalRunID        string  `json:"eval_run_id"`
	Status           string  `json:"status"`
	TurnsExecuted    int     `json:"turns_executed"`
	IssuesCount      int     `json:"issues_count"`
	SuggestionsCount int     `json:"suggestions_count"`
	CostUSD          float64 `json:"cost_usd"`
}

// BatchResponse always carries partial results for everything completed so
// far, plus the stop reason when a policy tripped.
type BatchResponse struct {
	Ran           int              `json:"ran"`
	StoppedReason string           `json:"stopped_reason,omitempty"`
	Results       []ScenarioResult `json:"results"`
	TotalCostUSD  float64          `json:"total_cost_usd"`
}

// Orchestrator runs scenarios strictly sequentially. The lazily-built plan
// template and the cumulative cost counters are the only state shared across
// scenarios, and both are owned by this loop.
type Orchestrator struct {
	store     store.Store
	driver    *driver.Driver
	judge     services.Judge
	templates *template.Builder
	seeder    *fixture.Seeder
	logger    *slog.Logger
}

func New(st store.Store, drv *driver.Driver, judge services.Judge, templates *template.Builder, seeder *fixture.Seeder, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:     st,
		driver:    drv,
		judge:     judge,
		templates: templates,
		seeder:    seeder,
		logger:    logger,
	}
}

// RunBatch processes the batch. Per-scenario failures are recorded, not
// propagated; only a nil store or invalid limits fail the call itself.
func (o *Orchestrator) RunBatch(ctx context.Context, req *BatchRequest) (*BatchResponse, error) {
	if o == nil || o.store == nil {
		return nil, errors.New("orchestrator: nil orchestrator")
	}
	if req == nil {
		return nil, errors.New("orchestrator: nil request")
	}
	if strings.TrimSpace(req.BatchID) == "" {
		return nil, errors.New("orchestrator: empty batch id")
	}

	limits := req.Limits
	if err := limits.Normalize(); err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}

	scenarios := req.Scenarios
	if len(scenarios) > limits.MaxScenarios {
		scenarios = scenarios[:limits.MaxScenarios]
	}

	resp := &BatchResponse{}
	for i := range scenarios {
		sc := &scenarios[i]
		result, runErr := o.runScenario(ctx, req.BatchID, sc, limits)
		resp.Ran++
		if result != nil {
			resp.Results = append(resp.Results, *result)
			resp.TotalCostUSD += result.CostUSD
		}
		if runErr != nil {
			o.logger.Warn("orchestrator: scenario failed", "scenario", sc.Key(), "error", runErr)
		}

		failed := runErr != nil || (result != nil && result.IssuesCount > 0)
		if limits.StopOnFirstFailure && failed {
			resp.StoppedReason = fmt.Sprintf("stop_on_first_failure: %s", sc.Key())
			break
		}
		if limits.BudgetUSD > 0 && resp.TotalCostUSD >= limits.BudgetUSD {
			resp.StoppedReason = fmt.Sprintf("budget_exhausted: spent %.4f of %.4f USD", resp.TotalCostUSD, limits.BudgetUSD)
			break
		}
	}
	return resp, nil
}

// runScenario executes one scenario end to end: resume or seed, drive,
// assert, judge, persist. Any error marks the run failed and preserves the
// identity so a retry resumes.
func (o *Orchestrator) runScenario(ctx context.Context, batchID string, sc *scenario.Scenario, limits scenario.RunLimits) (*ScenarioResult, error) {
	requestID := evalutil.RequestID(batchID, sc.DatasetKey, sc.ID)

	run, err := o.store.FindByKey(ctx, requestID)
	switch {
	case err == nil && run.Status == store.RunStatusCompleted:
		// Already done in a previous invocation; report the stored outcome.
		return resultFromRun(run), nil
	case err == nil:
		run.Config.Resumed = true
		run.Status = store.RunStatusRunning
		run.Error = ""
	case errors.Is(err, store.ErrNotFound):
		run = &store.EvalRun{
			ID:          evalutil.NewID(),
			DatasetKey:  sc.DatasetKey,
			ScenarioKey: sc.Key(),
			Status:      store.RunStatusRunning,
			Config: store.RunConfig{
				RequestID:       requestID,
				TestUserID:      evalutil.NewID(),
				Channel:         sc.Channel,
				KickoffInjected: strings.TrimSpace(sc.Kickoff) != "",
			},
		}
	default:
		return nil, fmt.Errorf("orchestrator: lookup run: %w", err)
	}

	result, err := o.execute(ctx, run, sc, limits)
	if err != nil {
		run.Status = store.RunStatusFailed
		run.Error = err.Error()
		if upsertErr := o.store.Upsert(ctx, run); upsertErr != nil {
			o.logger.Error("orchestrator: record failure", "scenario", sc.Key(), "error", upsertErr)
		}
		return resultFromRun(run), err
	}
	return result, nil
}

func (o *Orchestrator) execute(ctx context.Context, run *store.EvalRun, sc *scenario.Scenario, limits scenario.RunLimits) (*ScenarioResult, error) {
	userID := run.Config.TestUserID

	var history []state.Turn
	if run.Config.Resumed {
		if _, err := o.store.GetIdentity(ctx, userID); err != nil {
			return nil, fmt.Errorf("orchestrator: resume identity: %w", err)
		}
		var err error
		history, err = o.store.GetTranscript(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: resume transcript: %w", err)
		}
		if err := o.store.Upsert(ctx, run); err != nil {
			return nil, fmt.Errorf("orchestrator: mark running: %w", err)
		}
	} else {
		if err := o.store.CreateIdentity(ctx, &store.Identity{ID: userID}); err != nil {
			return nil, fmt.Errorf("orchestrator: create identity: %w", err)
		}
		if err := o.seed(ctx, run, sc, limits); err != nil {
			return nil, err
		}
		run.StateBefore = o.snapshot(ctx, userID)
		if err := o.store.Upsert(ctx, run); err != nil {
			return nil, fmt.Errorf("orchestrator: insert run: %w", err)
		}
	}

	out, err := o.driver.Run(ctx, &driver.RunInput{
		UserID:          userID,
		Scenario:        sc,
		Limits:          limits,
		History:         history,
		KickoffInjected: run.Config.KickoffInjected,
	})
	if err != nil {
		return nil, err
	}
	run.Transcript = out.Transcript
	run.StateAfter = o.snapshot(ctx, userID)

	mechanical := assert.Evaluate(sc.Mechanical, run.StateAfter, run.Transcript)

	if o.judge == nil {
		return nil, errors.New("orchestrator: no judge configured")
	}
	verdict, err := o.judge.Judge(ctx, &services.JudgeRequest{
		ScenarioKey: sc.Key(),
		Transcript:  run.Transcript,
		StateBefore: run.StateBefore,
		StateAfter:  run.StateAfter,
		Assertions:  sc.Assertions,
		Objectives:  sc.Objectives,
	})
	if err != nil {
		// An unjudged run is indistinguishable from a broken one.
		return nil, fmt.Errorf("orchestrator: judge: %w", err)
	}

	run.Issues = append(verdict.Issues, mechanical...)
	run.Suggestions = verdict.Suggestions
	run.Metrics = verdict.Metrics
	run.Metrics.CostUSD += out.SimCostUSD
	run.Metrics.Turns = out.TurnsExecuted
	run.Status = store.RunStatusCompleted

	if err := o.store.Upsert(ctx, run); err != nil {
		return nil, fmt.Errorf("orchestrator: persist run: %w", err)
	}
	if err := o.store.DeleteIdentity(ctx, userID); err != nil {
		return nil, fmt.Errorf("orchestrator: delete identity: %w", err)
	}
	return resultFromRun(run), nil
}

func (o *Orchestrator) seed(ctx context.Context, run *store.EvalRun, sc *scenario.Scenario, limits scenario.RunLimits) error {
	if o.seeder == nil {
		return nil
	}

	var tmpl *template.PlanTemplate
	if o.templates != nil {
		var err error
		tmpl, err = o.templates.GetOrBuild(ctx)
		if err != nil {
			return fmt.Errorf("orchestrator: build template: %w", err)
		}
	}

	opts := fixture.Options{BilanActionsCount: limits.BilanActionsCount}
	if sc.Setup != nil {
		opts.ActiveActionsCount = sc.Setup.ActiveActionsCount
		opts.PreseedActions = sc.Setup.PreseedActions
		opts.PreseedActionEntries = sc.Setup.PreseedActionEntries
		opts.ForceVitalSignal = sc.Setup.ForceVitalSignal
		opts.IncludeVitalsInBilan = sc.Setup.IncludeVitalsInBilan
	}
	if sc.HasTag("force_vital") {
		opts.ForceVitalSignal = true
	}

	if _, err := o.seeder.Seed(ctx, tmpl, &store.Identity{ID: run.Config.TestUserID}, opts); err != nil {
		return fmt.Errorf("orchestrator: seed: %w", err)
	}
	return nil
}

func (o *Orchestrator) snapshot(ctx context.Context, userID string) *state.Snapshot {
	snap, err := o.store.GetStateSnapshot(ctx, userID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			o.logger.Warn("orchestrator: snapshot read failed", "error", err)
		}
		return nil
	}
	return snap
}

func resultFromRun(run *store.EvalRun) *ScenarioResult {
	if run == nil {
		return nil
	}
	return &ScenarioResult{
		DatasetKey:       run.DatasetKey,
		ScenarioKey:      run.ScenarioKey,
		EvalRunID:        run.ID,
		Status:           run.Status,
		TurnsExecuted:    run.Metrics.Turns,
		IssuesCount:      len(run.Issues),
		SuggestionsCount: len(run.Suggestions),
		CostUSD:          run.Metrics.CostUSD,
	}
}
