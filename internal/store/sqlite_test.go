package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stellarlinkco/agent-evals/internal/assert"
	"github.com/stellarlinkco/agent-evals/internal/state"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestSQLiteStore_UpsertIsIdempotentByRequestID(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	ctx := context.Background()

	run := &EvalRun{
		ID:          "run_1",
		DatasetKey:  "core",
		ScenarioKey: "core/checkup_happy_path",
		Status:      RunStatusRunning,
		Config:      RunConfig{RequestID: "req_abc", TestUserID: "user_1"},
	}
	if err := st.Upsert(ctx, run); err != nil {
		t.Fatalf("first Upsert: %v", err)
	}

	// Same request id again, now completed with results.
	run.Status = RunStatusCompleted
	run.Transcript = []state.Turn{{Role: state.RoleUser, Content: "hello"}}
	run.Issues = []assert.Issue{{Severity: assert.SeverityHigh, Kind: assert.KindAssertionFailed, Message: "missed"}}
	run.Metrics = Metrics{CostUSD: 0.12, TotalTokens: 340, Turns: 4}
	if err := st.Upsert(ctx, run); err != nil {
		t.Fatalf("second Upsert: %v", err)
	}

	runs, err := st.ListRuns(ctx, "", 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected exactly one row after re-upsert, got %d", len(runs))
	}

	got, err := st.FindByKey(ctx, "req_abc")
	if err != nil {
		t.Fatalf("FindByKey: %v", err)
	}
	if got.Status != RunStatusCompleted {
		t.Fatalf("status = %q, want completed", got.Status)
	}
	if len(got.Transcript) != 1 || got.Transcript[0].Content != "hello" {
		t.Fatalf("transcript not round-tripped: %+v", got.Transcript)
	}
	if len(got.Issues) != 1 || got.Issues[0].Kind != assert.KindAssertionFailed {
		t.Fatalf("issues not round-tripped: %+v", got.Issues)
	}
	if got.Metrics.CostUSD != 0.12 || got.Metrics.Turns != 4 {
		t.Fatalf("metrics not round-tripped: %+v", got.Metrics)
	}
}

func TestSQLiteStore_FindByKeyNotFound(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	if _, err := st.FindByKey(context.Background(), "req_missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, err := st.GetRun(context.Background(), "run_missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStore_ListRunsFilter(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	ctx := context.Background()

	for _, r := range []*EvalRun{
		{ID: "r1", DatasetKey: "core", ScenarioKey: "core/a", Status: RunStatusCompleted, Config: RunConfig{RequestID: "k1"}},
		{ID: "r2", DatasetKey: "core", ScenarioKey: "core/b", Status: RunStatusFailed, Config: RunConfig{RequestID: "k2"}},
		{ID: "r3", DatasetKey: "edge", ScenarioKey: "edge/a", Status: RunStatusCompleted, Config: RunConfig{RequestID: "k3"}},
	} {
		if err := st.Upsert(ctx, r); err != nil {
			t.Fatalf("Upsert %s: %v", r.ID, err)
		}
	}

	core, err := st.ListRuns(ctx, "core", 10)
	if err != nil {
		t.Fatalf("ListRuns core: %v", err)
	}
	if len(core) != 2 {
		t.Fatalf("core runs = %d, want 2", len(core))
	}

	all, err := st.ListRuns(ctx, "", 0)
	if err != nil {
		t.Fatalf("ListRuns all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("all runs = %d, want 3", len(all))
	}
}

func TestSQLiteStore_IdentityLifecycleCascades(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	ctx := context.Background()

	ident := &Identity{ID: "user_1"}
	if err := st.CreateIdentity(ctx, ident); err != nil {
		t.Fatalf("CreateIdentity: %v", err)
	}
	if err := st.MarkOnboardingComplete(ctx, "user_1"); err != nil {
		t.Fatalf("MarkOnboardingComplete: %v", err)
	}
	got, err := st.GetIdentity(ctx, "user_1")
	if err != nil {
		t.Fatalf("GetIdentity: %v", err)
	}
	if !got.OnboardingDone {
		t.Fatalf("onboarding flag not set")
	}

	plan := &PlanRecord{ID: "plan_1", UserID: "user_1", Title: "Sleep better", Content: json.RawMessage(`{"phases":[]}`)}
	if err := st.InsertPlan(ctx, plan); err != nil {
		t.Fatalf("InsertPlan: %v", err)
	}
	items := []state.TrackedItem{
		{ID: "item_1", UserID: "user_1", PlanID: "plan_1", Title: "Walk", Kind: state.KindHabit,
			Tracking: state.TrackingCounter, TargetCount: 3, Status: state.StatusActive, Position: 0,
			ScheduledDays: []string{"mon", "wed"}},
		{ID: "item_2", UserID: "user_1", PlanID: "plan_1", Title: "Call doctor", Kind: state.KindOneShot,
			Tracking: state.TrackingBoolean, TargetCount: 1, Status: state.StatusPending, Position: 1},
	}
	if err := st.InsertTrackedItems(ctx, items); err != nil {
		t.Fatalf("InsertTrackedItems: %v", err)
	}
	entries := []state.ActionEntry{{ID: "e1", ItemID: "item_1", Date: "2026-08-29", Status: state.EntryCompleted}}
	if err := st.InsertActionEntries(ctx, entries); err != nil {
		t.Fatalf("InsertActionEntries: %v", err)
	}
	if err := st.SaveStateSnapshot(ctx, "user_1", &state.Snapshot{ChatState: map[string]any{"state": "checkup"}}); err != nil {
		t.Fatalf("SaveStateSnapshot: %v", err)
	}
	if err := st.AppendTurns(ctx, "user_1", []state.Turn{
		{Role: state.RoleUser, Content: "hi"},
		{Role: state.RoleAgent, Content: "hello"},
	}); err != nil {
		t.Fatalf("AppendTurns: %v", err)
	}

	listed, err := st.ListTrackedItems(ctx, "user_1")
	if err != nil {
		t.Fatalf("ListTrackedItems: %v", err)
	}
	if len(listed) != 2 || listed[0].Title != "Walk" || len(listed[0].ScheduledDays) != 2 {
		t.Fatalf("tracked items not round-tripped: %+v", listed)
	}

	turns, err := st.GetTranscript(ctx, "user_1")
	if err != nil {
		t.Fatalf("GetTranscript: %v", err)
	}
	if len(turns) != 2 || turns[1].Role != state.RoleAgent {
		t.Fatalf("transcript order wrong: %+v", turns)
	}

	// Deleting the identity must cascade to every fixture table.
	if err := st.DeleteIdentity(ctx, "user_1"); err != nil {
		t.Fatalf("DeleteIdentity: %v", err)
	}
	if _, err := st.GetIdentity(ctx, "user_1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("identity still present: %v", err)
	}
	left, err := st.ListTrackedItems(ctx, "user_1")
	if err != nil {
		t.Fatalf("ListTrackedItems after delete: %v", err)
	}
	if len(left) != 0 {
		t.Fatalf("tracked items not cascaded: %+v", left)
	}
	if _, err := st.GetStateSnapshot(ctx, "user_1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("snapshot not cascaded: %v", err)
	}
	turns, err = st.GetTranscript(ctx, "user_1")
	if err != nil {
		t.Fatalf("GetTranscript after delete: %v", err)
	}
	if len(turns) != 0 {
		t.Fatalf("turns not cascaded: %+v", turns)
	}
}

func TestSQLiteStore_CascadeAcrossPooledConnections(t *testing.T) {
	t.Parallel()

	// File-backed stores pool several connections; foreign keys must be on
	// for every one of them, not just the connection that ran schema init.
	st, err := NewSQLiteStore(filepath.Join(t.TempDir(), "evals.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	ctx := context.Background()

	if err := st.CreateIdentity(ctx, &Identity{ID: "user_1"}); err != nil {
		t.Fatalf("CreateIdentity: %v", err)
	}
	plan := &PlanRecord{ID: "plan_1", UserID: "user_1", Title: "Sleep better", Content: json.RawMessage(`{}`)}
	if err := st.InsertPlan(ctx, plan); err != nil {
		t.Fatalf("InsertPlan: %v", err)
	}
	items := []state.TrackedItem{
		{ID: "item_1", UserID: "user_1", PlanID: "plan_1", Title: "Walk", Kind: state.KindHabit,
			Tracking: state.TrackingBoolean, TargetCount: 1, Status: state.StatusActive},
	}
	if err := st.InsertTrackedItems(ctx, items); err != nil {
		t.Fatalf("InsertTrackedItems: %v", err)
	}

	// Pin one pooled connection so the delete below is served by a different
	// one.
	pinned, err := st.db.Conn(ctx)
	if err != nil {
		t.Fatalf("Conn: %v", err)
	}
	defer pinned.Close()
	var one int
	if err := pinned.QueryRowContext(ctx, `SELECT 1`).Scan(&one); err != nil {
		t.Fatalf("pinned query: %v", err)
	}

	if err := st.DeleteIdentity(ctx, "user_1"); err != nil {
		t.Fatalf("DeleteIdentity: %v", err)
	}

	var orphans int
	if err := pinned.QueryRowContext(ctx, `SELECT COUNT(*) FROM tracked_items WHERE user_id = 'user_1'`).Scan(&orphans); err != nil {
		t.Fatalf("count tracked_items: %v", err)
	}
	if orphans != 0 {
		t.Fatalf("tracked items orphaned after delete: %d", orphans)
	}
	if err := pinned.QueryRowContext(ctx, `SELECT COUNT(*) FROM plans WHERE user_id = 'user_1'`).Scan(&orphans); err != nil {
		t.Fatalf("count plans: %v", err)
	}
	if orphans != 0 {
		t.Fatalf("plans orphaned after delete: %d", orphans)
	}
}

func TestSQLiteStore_SnapshotOverwrite(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	ctx := context.Background()

	if err := st.CreateIdentity(ctx, &Identity{ID: "u"}); err != nil {
		t.Fatalf("CreateIdentity: %v", err)
	}
	if err := st.SaveStateSnapshot(ctx, "u", &state.Snapshot{ChatState: map[string]any{"state": "idle"}}); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if err := st.SaveStateSnapshot(ctx, "u", &state.Snapshot{ChatState: map[string]any{"state": "checkup"}}); err != nil {
		t.Fatalf("second save: %v", err)
	}
	snap, err := st.GetStateSnapshot(ctx, "u")
	if err != nil {
		t.Fatalf("GetStateSnapshot: %v", err)
	}
	if snap.ChatState["state"] != "checkup" {
		t.Fatalf("snapshot not overwritten: %v", snap.ChatState)
	}
}

func TestSQLiteStore_UpsertValidation(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	ctx := context.Background()

	if err := st.Upsert(ctx, nil); err == nil {
		t.Fatalf("expected nil-run error")
	}
	if err := st.Upsert(ctx, &EvalRun{ID: "x"}); err == nil {
		t.Fatalf("expected empty request id error")
	}
	if err := st.Upsert(ctx, &EvalRun{Config: RunConfig{RequestID: "k"}}); err == nil {
		t.Fatalf("expected empty id error")
	}
}

func TestOpen_Backends(t *testing.T) {
	t.Parallel()

	{
		st, err := Open("memory", "")
		if err != nil {
			t.Fatalf("Open memory: %v", err)
		}
		_ = st.Close()
	}
	{
		if _, err := Open("postgres", ""); err == nil {
			t.Fatalf("expected unknown backend error")
		}
	}
}
