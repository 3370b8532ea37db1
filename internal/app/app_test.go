package app

import (
	"context"
	"testing"

	"github.com/stellarlinkco/agent-evals/internal/config"
	"github.com/stellarlinkco/agent-evals/internal/scenario"
	"github.com/stellarlinkco/agent-evals/internal/services"
	"github.com/stellarlinkco/agent-evals/internal/state"
	"github.com/stellarlinkco/agent-evals/internal/store"
)

type fakeAgent struct{ calls int }

func (f *fakeAgent) Process(ctx context.Context, userID, message string, history []state.Turn, meta map[string]any) (*services.AgentReply, error) {
	f.calls++
	return &services.AgentReply{Content: "bien reçu"}, nil
}

func TestBatchRunner_RunsScriptedBatchWithStubs(t *testing.T) {
	t.Parallel()

	st, err := store.Open("memory", "")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	agent := &fakeAgent{}
	runner := NewBatchRunner(config.Default(), st, nil)
	runner.Agent = agent

	resp, err := runner.Run(context.Background(), &BatchInput{
		BatchID: "batch-app",
		Scenarios: []scenario.Scenario{{
			DatasetKey: "core",
			ID:         "greeting",
			Steps:      []scenario.Step{{User: "bonjour"}},
		}},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.Ran != 1 || resp.StoppedReason != "" {
		t.Fatalf("resp = %+v", resp)
	}
	if agent.calls != 1 {
		t.Fatalf("agent calls = %d, want 1", agent.calls)
	}

	run, err := st.GetRun(context.Background(), resp.Results[0].EvalRunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != store.RunStatusCompleted {
		t.Fatalf("status = %q", run.Status)
	}
}

func TestBatchRunner_RealAIWithoutProviderFails(t *testing.T) {
	t.Parallel()

	st, err := store.Open("memory", "")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	cfg := config.Default()
	cfg.LLM.Providers = map[string]config.ProviderConfig{}
	runner := NewBatchRunner(cfg, st, nil)

	_, err = runner.Run(context.Background(), &BatchInput{
		BatchID: "batch-real",
		Scenarios: []scenario.Scenario{{
			DatasetKey: "core", ID: "a",
			Steps: []scenario.Step{{User: "salut"}},
		}},
		Limits: scenario.RunLimits{UseRealAI: true},
	})
	if err == nil {
		t.Fatalf("expected provider wiring error")
	}
}

func TestTemplateBuilderFor_ThemePinsBank(t *testing.T) {
	t.Parallel()

	scenarios := []scenario.Scenario{
		{DatasetKey: "core", ID: "a"},
		{DatasetKey: "core", ID: "b", Setup: &scenario.Setup{TemplateTheme: "sleep"}},
	}
	b := templateBuilderFor(scenarios, nil, scenario.RunLimits{UseRealAI: true})

	tmpl, err := b.GetOrBuild(context.Background())
	if err != nil {
		t.Fatalf("GetOrBuild: %v", err)
	}
	if tmpl.Theme != "sleep" {
		t.Fatalf("theme = %q, want sleep", tmpl.Theme)
	}
}

func TestFilterScenarios(t *testing.T) {
	t.Parallel()

	scenarios := []scenario.Scenario{
		{DatasetKey: "core", ID: "a", Tags: []string{"smoke"}},
		{DatasetKey: "core", ID: "b"},
		{DatasetKey: "extra", ID: "a"},
	}

	{
		got := FilterScenarios(scenarios, "core", "", nil)
		if len(got) != 2 {
			t.Fatalf("dataset filter: %d scenarios, want 2", len(got))
		}
	}
	{
		got := FilterScenarios(scenarios, "", "smoke", nil)
		if len(got) != 1 || got[0].ID != "a" {
			t.Fatalf("tag filter: %+v", got)
		}
	}
	{
		got := FilterScenarios(scenarios, "core", "", []string{"b"})
		if len(got) != 1 || got[0].ID != "b" {
			t.Fatalf("id filter: %+v", got)
		}
	}
	{
		got := FilterScenarios(scenarios, "", "", nil)
		if len(got) != 3 {
			t.Fatalf("no filter: %d scenarios, want 3", len(got))
		}
	}
}

func TestFindScenario(t *testing.T) {
	t.Parallel()

	scenarios := []scenario.Scenario{
		{DatasetKey: "core", ID: "a"},
		{DatasetKey: "core", ID: "b"},
	}

	sc, err := FindScenario(scenarios, "core/b")
	if err != nil {
		t.Fatalf("FindScenario: %v", err)
	}
	if sc.ID != "b" {
		t.Fatalf("found %q, want b", sc.ID)
	}

	if _, err := FindScenario(scenarios, "core/missing"); err == nil {
		t.Fatalf("expected error for unknown key")
	}
	if _, err := FindScenario(scenarios, ""); err == nil {
		t.Fatalf("expected error for empty key")
	}
}
