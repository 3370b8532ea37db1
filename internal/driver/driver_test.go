package driver

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stellarlinkco/agent-evals/internal/scenario"
	"github.com/stellarlinkco/agent-evals/internal/services"
	"github.com/stellarlinkco/agent-evals/internal/state"
	"github.com/stellarlinkco/agent-evals/internal/store"
)

type fakeAgent struct {
	mu      sync.Mutex
	calls   []string
	replyFn func(call int, message string) (*services.AgentReply, error)
}

func (f *fakeAgent) Process(ctx context.Context, userID, message string, history []state.Turn, meta map[string]any) (*services.AgentReply, error) {
	f.mu.Lock()
	call := len(f.calls)
	f.calls = append(f.calls, message)
	f.mu.Unlock()
	if f.replyFn != nil {
		return f.replyFn(call, message)
	}
	return &services.AgentReply{Content: "reply to " + message}, nil
}

type scriptedSim struct {
	turns []services.SimTurn
	idx   int
}

func (s *scriptedSim) Simulate(ctx context.Context, req *services.SimRequest) (*services.SimTurn, error) {
	if s.idx >= len(s.turns) {
		return &services.SimTurn{NextMessage: "encore", Done: false}, nil
	}
	t := s.turns[s.idx]
	s.idx++
	return &t, nil
}

func newDriverStore(t *testing.T, userID string) store.Store {
	t.Helper()
	st, err := store.Open("memory", "")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	if err := st.CreateIdentity(context.Background(), &store.Identity{ID: userID}); err != nil {
		t.Fatalf("create identity: %v", err)
	}
	return st
}

func limits(maxTurns int) scenario.RunLimits {
	return scenario.RunLimits{MaxScenarios: 10, MaxTurnsPerScenario: maxTurns, UserDifficulty: "normal"}
}

func TestRun_ScriptedReplay(t *testing.T) {
	t.Parallel()

	st := newDriverStore(t, "u1")
	agent := &fakeAgent{}
	d := New(agent, nil, nil, st, nil)

	out, err := d.Run(context.Background(), &RunInput{
		UserID: "u1",
		Scenario: &scenario.Scenario{
			DatasetKey: "core", ID: "s1",
			Steps: []scenario.Step{{User: "bonjour"}, {User: "ça va"}},
		},
		Limits: limits(20),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.TurnsExecuted != 2 {
		t.Fatalf("turns = %d, want 2", out.TurnsExecuted)
	}
	if len(out.Transcript) != 4 {
		t.Fatalf("transcript = %d turns, want 4: %+v", len(out.Transcript), out.Transcript)
	}

	persisted, err := st.GetTranscript(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetTranscript: %v", err)
	}
	if len(persisted) != 4 {
		t.Fatalf("persisted = %d turns, want 4", len(persisted))
	}
}

func TestRun_ResumeSkipsReplayedSteps(t *testing.T) {
	t.Parallel()

	st := newDriverStore(t, "u1")
	agent := &fakeAgent{}
	d := New(agent, nil, nil, st, nil)

	// Persisted history: synthetic kickoff plus step one already executed.
	history := []state.Turn{
		{Role: state.RoleUser, Content: "kickoff"},
		{Role: state.RoleAgent, Content: "welcome"},
		{Role: state.RoleUser, Content: "step one"},
		{Role: state.RoleAgent, Content: "ack one"},
	}

	out, err := d.Run(context.Background(), &RunInput{
		UserID: "u1",
		Scenario: &scenario.Scenario{
			DatasetKey: "core", ID: "s1",
			Steps: []scenario.Step{{User: "step one"}, {User: "step two"}},
		},
		Limits:          limits(20),
		History:         history,
		KickoffInjected: true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(agent.calls) != 1 || agent.calls[0] != "step two" {
		t.Fatalf("agent calls = %v, want only step two", agent.calls)
	}
	if out.TurnsExecuted != 1 {
		t.Fatalf("turns = %d, want 1", out.TurnsExecuted)
	}
}

func TestRun_KickoffOpensFreshConversation(t *testing.T) {
	t.Parallel()

	st := newDriverStore(t, "u1")
	agent := &fakeAgent{}
	d := New(agent, nil, nil, st, nil)

	sc := &scenario.Scenario{
		DatasetKey: "core", ID: "s1",
		Kickoff: "Bonjour, on commence ?",
		Steps:   []scenario.Step{{User: "step one"}},
	}
	out, err := d.Run(context.Background(), &RunInput{
		UserID:   "u1",
		Scenario: sc,
		Limits:   limits(20),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(agent.calls) != 2 || agent.calls[0] != "Bonjour, on commence ?" {
		t.Fatalf("agent calls = %v, want kickoff first", agent.calls)
	}
	if out.Transcript[0].Role != state.RoleUser || out.Transcript[0].Content != "Bonjour, on commence ?" {
		t.Fatalf("transcript must open with the kickoff turn: %+v", out.Transcript[0])
	}

	// Resume with the persisted history: the kickoff must not fire again,
	// and the skip discount leaves no steps to replay.
	history, err := st.GetTranscript(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetTranscript: %v", err)
	}
	resumed := &fakeAgent{}
	d2 := New(resumed, nil, nil, st, nil)
	if _, err := d2.Run(context.Background(), &RunInput{
		UserID:          "u1",
		Scenario:        sc,
		Limits:          limits(20),
		History:         history,
		KickoffInjected: true,
	}); err != nil {
		t.Fatalf("resumed Run: %v", err)
	}
	if len(resumed.calls) != 0 {
		t.Fatalf("resume re-sent turns: %v", resumed.calls)
	}
}

func TestRun_BurstDropsAbortedReply(t *testing.T) {
	t.Parallel()

	st := newDriverStore(t, "u1")
	agent := &fakeAgent{
		replyFn: func(call int, message string) (*services.AgentReply, error) {
			if message == "first half" {
				// Lost the debounce race.
				return &services.AgentReply{Aborted: true}, nil
			}
			return &services.AgentReply{Content: "coalesced reply"}, nil
		},
	}
	d := New(agent, nil, nil, st, nil)

	out, err := d.Run(context.Background(), &RunInput{
		UserID: "u1",
		Scenario: &scenario.Scenario{
			DatasetKey: "core", ID: "s1",
			Steps: []scenario.Step{
				{User: "first half", BurstDelayMs: 10},
				{User: "second half"},
			},
		},
		Limits: limits(20),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.TurnsExecuted != 2 {
		t.Fatalf("turns = %d, want 2", out.TurnsExecuted)
	}
	if len(agent.calls) != 2 {
		t.Fatalf("agent calls = %v, want both fired", agent.calls)
	}

	agentTurns := 0
	for _, turn := range out.Transcript {
		if turn.Role == state.RoleAgent {
			agentTurns++
		}
	}
	if agentTurns != 1 {
		t.Fatalf("agent turns = %d, want 1 (aborted reply dropped)", agentTurns)
	}
}

func TestRun_SimulatedStopsOnDone(t *testing.T) {
	t.Parallel()

	st := newDriverStore(t, "u1")
	sim := &scriptedSim{turns: []services.SimTurn{
		{NextMessage: "première réponse", CostUSD: 0.01},
		{NextMessage: "dernière réponse", Done: true, CostUSD: 0.01},
	}}
	d := New(&fakeAgent{}, sim, nil, st, nil)

	out, err := d.Run(context.Background(), &RunInput{
		UserID: "u1",
		Scenario: &scenario.Scenario{
			DatasetKey: "core", ID: "s1",
			Persona:    "tired parent",
			Objectives: []string{"finish"},
		},
		Limits: limits(20),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.TurnsExecuted != 2 {
		t.Fatalf("turns = %d, want 2", out.TurnsExecuted)
	}
	if out.SimCostUSD != 0.02 {
		t.Fatalf("sim cost = %v, want 0.02", out.SimCostUSD)
	}
}

func TestRun_CheckupCompletionOverridesSimulator(t *testing.T) {
	t.Parallel()

	st := newDriverStore(t, "u1")
	ctx := context.Background()

	// Checkup with two pending items; each agent reply advances the cursor,
	// the way the agent under test would server-side.
	snap := &state.Snapshot{Checkup: &state.CheckupSnapshot{
		PendingItems: []state.PendingItem{
			{ID: "a", Title: "A", Kind: state.PendingAction},
			{ID: "b", Title: "B", Kind: state.PendingAction},
		},
	}}
	if err := st.SaveStateSnapshot(ctx, "u1", snap); err != nil {
		t.Fatalf("SaveStateSnapshot: %v", err)
	}

	agent := &fakeAgent{}
	agent.replyFn = func(call int, message string) (*services.AgentReply, error) {
		snap.Checkup.Cursor++
		if err := st.SaveStateSnapshot(ctx, "u1", snap); err != nil {
			return nil, err
		}
		return &services.AgentReply{Content: fmt.Sprintf("noted %d", call)}, nil
	}

	// Simulator claims done immediately; the in-progress checkup overrides it.
	sim := &scriptedSim{turns: []services.SimTurn{
		{NextMessage: "oui", Done: true},
		{NextMessage: "fait", Done: true},
		{NextMessage: "encore", Done: true},
	}}
	d := New(agent, sim, nil, st, nil)

	out, err := d.Run(ctx, &RunInput{
		UserID:   "u1",
		Scenario: &scenario.Scenario{DatasetKey: "core", ID: "s1", Persona: "p"},
		Limits:   limits(20),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.TurnsExecuted != 2 {
		t.Fatalf("turns = %d, want 2 (one per pending item)", out.TurnsExecuted)
	}
}

func TestRun_TurnBudgetExhaustion(t *testing.T) {
	t.Parallel()

	st := newDriverStore(t, "u1")
	sim := &scriptedSim{} // never done
	d := New(&fakeAgent{}, sim, nil, st, nil)

	out, err := d.Run(context.Background(), &RunInput{
		UserID:   "u1",
		Scenario: &scenario.Scenario{DatasetKey: "core", ID: "s1", Persona: "p"},
		Limits:   limits(3),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.TurnsExecuted != 3 {
		t.Fatalf("turns = %d, want 3", out.TurnsExecuted)
	}
}

type fakeTransport struct {
	st     store.Store
	userID string
	sent   []*services.InboundMessage
}

func (f *fakeTransport) Deliver(ctx context.Context, msg *services.InboundMessage) error {
	f.sent = append(f.sent, msg)
	text := msg.Text
	if text == "" {
		text = msg.InteractiveReplyID
	}
	return f.st.AppendTurns(ctx, f.userID, []state.Turn{
		{Role: state.RoleUser, Content: text},
		{Role: state.RoleAgent, Content: "webhook reply"},
	})
}

func TestRun_WebhookModeWithActivationHook(t *testing.T) {
	t.Parallel()

	st := newDriverStore(t, "u1")
	transport := &fakeTransport{st: st, userID: "u1"}
	sim := &scriptedSim{turns: []services.SimTurn{
		{NextMessage: "je commence"},
		{NextMessage: "Activer le plan", Done: true},
	}}
	d := New(nil, sim, transport, st, nil)

	hookFired := false
	d.ActivationHook = func(ctx context.Context, userID string) error {
		hookFired = true
		return nil
	}

	out, err := d.Run(context.Background(), &RunInput{
		UserID: "u1",
		Scenario: &scenario.Scenario{
			DatasetKey: "core", ID: "s1",
			Channel:          scenario.ChannelMessaging,
			Persona:          "new user",
			Steps:            []scenario.Step{{User: "salut"}},
			SuggestedReplies: []string{"Activer le plan"},
		},
		Limits: limits(20),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !hookFired {
		t.Fatalf("activation hook not fired on done signal")
	}
	if len(transport.sent) != 3 {
		t.Fatalf("delivered = %d, want 3", len(transport.sent))
	}
	last := transport.sent[len(transport.sent)-1]
	if last.InteractiveReplyID == "" || last.Text != "" {
		t.Fatalf("suggested reply must go out in interactive shape: %+v", last)
	}
	if len(out.Transcript) == 0 {
		t.Fatalf("transcript not reloaded from store")
	}
}
