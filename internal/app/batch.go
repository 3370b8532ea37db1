package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/stellarlinkco/agent-evals/internal/config"
	"github.com/stellarlinkco/agent-evals/internal/driver"
	"github.com/stellarlinkco/agent-evals/internal/fixture"
	"github.com/stellarlinkco/agent-evals/internal/llm"
	"github.com/stellarlinkco/agent-evals/internal/orchestrator"
	"github.com/stellarlinkco/agent-evals/internal/scenario"
	"github.com/stellarlinkco/agent-evals/internal/services"
	"github.com/stellarlinkco/agent-evals/internal/store"
	"github.com/stellarlinkco/agent-evals/internal/template"
)

// BatchRunner assembles the stack for one batch invocation: agent client,
// simulator, judge, and template builder are picked from config plus the
// batch limits. A fresh template builder per batch means the memoized plan
// template lives for exactly one batch.
type BatchRunner struct {
	cfg    *config.Config
	store  store.Store
	logger *slog.Logger

	// Override points for tests. Nil fields fall back to the wiring
	// derived from config and limits.
	Agent     services.AgentClient
	Transport services.WebhookTransport
	Sim       services.Simulator
	Judge     services.Judge
}

func NewBatchRunner(cfg *config.Config, st store.Store, logger *slog.Logger) *BatchRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchRunner{cfg: cfg, store: st, logger: logger}
}

// BatchInput is one batch invocation as received from the API or CLI.
type BatchInput struct {
	BatchID   string
	Scenarios []scenario.Scenario
	Limits    scenario.RunLimits
}

// Run wires the batch stack and hands off to the orchestrator.
func (r *BatchRunner) Run(ctx context.Context, in *BatchInput) (*orchestrator.BatchResponse, error) {
	if r == nil || r.cfg == nil || r.store == nil {
		return nil, errors.New("app: nil batch runner")
	}
	if in == nil {
		return nil, errors.New("app: nil batch input")
	}

	limits := in.Limits
	r.applyConfigDefaults(&limits)

	var provider llm.Provider
	if limits.UseRealAI || limits.JudgeForceRealAI {
		var err error
		provider, err = llm.DefaultProviderFromConfig(r.cfg)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
	}

	agent := r.Agent
	transport := r.Transport
	if agent == nil {
		httpClient := services.NewHTTPAgentClient(r.cfg.Agent.BaseURL, r.cfg.Agent.APIKey, r.cfg.Agent.WebhookPath, r.cfg.Agent.Timeout)
		agent = httpClient
		if transport == nil {
			transport = httpClient
		}
	}

	sim := r.Sim
	if sim == nil {
		if limits.UseRealAI {
			sim = &services.LLMSimulator{Provider: provider, Model: limits.Model}
		} else {
			sim = services.StubSimulator{}
		}
	}

	judge := r.Judge
	if judge == nil {
		if limits.UseRealAI || limits.JudgeForceRealAI {
			judge = &services.LLMJudge{Provider: provider, Model: limits.Model}
		} else {
			judge = services.StubJudge{}
		}
	}

	templates := templateBuilderFor(in.Scenarios, provider, limits)
	drv := driver.New(agent, sim, transport, r.store, r.logger)
	seeder := fixture.NewSeeder(r.store, r.logger)
	orch := orchestrator.New(r.store, drv, judge, templates, seeder, r.logger)

	return orch.RunBatch(ctx, &orchestrator.BatchRequest{
		BatchID:   in.BatchID,
		Scenarios: in.Scenarios,
		Limits:    limits,
	})
}

func (r *BatchRunner) applyConfigDefaults(limits *scenario.RunLimits) {
	if limits.BudgetUSD == 0 {
		limits.BudgetUSD = r.cfg.Evals.BudgetUSD
	}
	if r.cfg.Evals.UseRealAI {
		limits.UseRealAI = true
	}
	if strings.TrimSpace(limits.Model) == "" {
		limits.Model = r.cfg.Evals.Model
	}
}

// templateBuilderFor picks the template source. An explicit theme anywhere in
// the batch pins the pre-baked bank; otherwise real-AI batches generate and
// stub batches draw from the bank unfiltered.
func templateBuilderFor(scenarios []scenario.Scenario, provider llm.Provider, limits scenario.RunLimits) *template.Builder {
	for i := range scenarios {
		if scenarios[i].Setup != nil && strings.TrimSpace(scenarios[i].Setup.TemplateTheme) != "" {
			return template.NewBankBuilder(template.Bank(), scenarios[i].Setup.TemplateTheme)
		}
	}
	if limits.UseRealAI && provider != nil {
		return template.NewGenerationBuilder(&template.LLMGenerator{Provider: provider, Model: limits.Model})
	}
	return template.NewBankBuilder(template.Bank(), "")
}
