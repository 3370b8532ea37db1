package fixture

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stellarlinkco/agent-evals/internal/scenario"
	"github.com/stellarlinkco/agent-evals/internal/state"
	"github.com/stellarlinkco/agent-evals/internal/store"
	"github.com/stellarlinkco/agent-evals/internal/template"
)

func newTestSeeder(t *testing.T) (*Seeder, store.Store) {
	t.Helper()
	st, err := store.Open("memory", "")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return NewSeeder(st, nil), st
}

func newIdentity(t *testing.T, st store.Store, id string) *store.Identity {
	t.Helper()
	ident := &store.Identity{ID: id}
	if err := st.CreateIdentity(context.Background(), ident); err != nil {
		t.Fatalf("create identity: %v", err)
	}
	return ident
}

func testTemplate() *template.PlanTemplate {
	return &template.PlanTemplate{
		Fingerprint: "fp1",
		Title:       "Plan test",
		Phases: []template.TemplatePhase{
			{ID: "p1", Title: "Phase 1", Items: []template.TemplateItem{
				{ID: "i1", Title: "Marcher 20 minutes", Kind: "habit", Tracking: "counter", TargetCount: 3, ScheduledDays: []string{"mon", "wed", "fri"}},
				{ID: "i2", Title: "Boire de l'eau", Kind: "habit", Tracking: "boolean", TargetCount: 7},
			}},
			{ID: "p2", Title: "Phase 2", Items: []template.TemplateItem{
				{ID: "i3", Title: "Appeler le médecin", Kind: "one_shot", Tracking: "boolean"},
			}},
		},
	}
}

func intPtr(v int) *int { return &v }

func TestSeed_PendingItemOrdering(t *testing.T) {
	t.Parallel()

	s, st := newTestSeeder(t)
	ident := newIdentity(t, st, "u1")

	res, err := s.Seed(context.Background(), testTemplate(), ident, Options{
		ActiveActionsCount:   intPtr(2),
		ForceVitalSignal:     true,
		IncludeVitalsInBilan: true,
	})
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}

	snap, err := st.GetStateSnapshot(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetStateSnapshot: %v", err)
	}
	pending := snap.Checkup.PendingItems
	if len(pending) != 3 {
		t.Fatalf("pending items = %d, want 3 (vital + 2 actions): %+v", len(pending), pending)
	}
	if pending[0].Kind != state.PendingVital {
		t.Fatalf("pending[0] must be the vital signal, got %+v", pending[0])
	}
	if pending[1].Title != "Marcher 20 minutes" || pending[2].Title != "Boire de l'eau" {
		t.Fatalf("actions out of insertion order: %+v", pending)
	}
	if snap.Checkup.Cursor != 0 {
		t.Fatalf("cursor = %d, want 0", snap.Checkup.Cursor)
	}
	if len(res.InsertedItems) != 3 {
		t.Fatalf("inserted = %d, want 3", len(res.InsertedItems))
	}
}

func TestSeed_ReassignsItemIDs(t *testing.T) {
	t.Parallel()

	s, st := newTestSeeder(t)
	tmpl := testTemplate()

	first, err := s.Seed(context.Background(), tmpl, newIdentity(t, st, "u1"), Options{ActiveActionsCount: intPtr(3)})
	if err != nil {
		t.Fatalf("first Seed: %v", err)
	}
	// Same template again for a second identity: template ids must not leak
	// into the store, or this insert would collide.
	second, err := s.Seed(context.Background(), tmpl, newIdentity(t, st, "u2"), Options{ActiveActionsCount: intPtr(3)})
	if err != nil {
		t.Fatalf("second Seed: %v", err)
	}

	seen := map[string]bool{}
	for _, item := range append(append([]state.TrackedItem{}, first.InsertedItems...), second.InsertedItems...) {
		if item.ID == "i1" || item.ID == "i2" || item.ID == "i3" {
			t.Fatalf("template id leaked into store: %q", item.ID)
		}
		if seen[item.ID] {
			t.Fatalf("duplicate item id across seeds: %q", item.ID)
		}
		seen[item.ID] = true
	}
}

func TestSeed_MarksOnboardingComplete(t *testing.T) {
	t.Parallel()

	s, st := newTestSeeder(t)
	ident := newIdentity(t, st, "u1")

	if _, err := s.Seed(context.Background(), nil, ident, Options{}); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	got, err := st.GetIdentity(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetIdentity: %v", err)
	}
	if !got.OnboardingDone {
		t.Fatalf("onboarding must be marked complete")
	}
}

func TestSeed_PendingPreseedNotMirrored(t *testing.T) {
	t.Parallel()

	s, st := newTestSeeder(t)
	ident := newIdentity(t, st, "u1")

	res, err := s.Seed(context.Background(), nil, ident, Options{
		PreseedActions: []scenario.PreseedAction{
			{Title: "Déjà actif", Kind: "habit", Tracking: "counter", TargetCount: 12},
			{Title: "À activer en conversation", Kind: "habit", Status: "pending"},
		},
	})
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}

	items, err := st.ListTrackedItems(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ListTrackedItems: %v", err)
	}
	if len(items) != 1 || items[0].Title != "Déjà actif" {
		t.Fatalf("pending preseed must not hit the live table: %+v", items)
	}
	if items[0].TargetCount != 7 {
		t.Fatalf("target count not clamped to 7: %d", items[0].TargetCount)
	}

	plan := string(mustPlanContent(t, st, res.PlanID))
	if !strings.Contains(plan, "À activer en conversation") {
		t.Fatalf("pending preseed missing from plan content")
	}
}

func mustPlanContent(t *testing.T, st store.Store, planID string) []byte {
	t.Helper()
	// Plan content is only reachable through the sqlite store in tests.
	type reader interface {
		PlanContent(ctx context.Context, id string) ([]byte, error)
	}
	r, ok := st.(reader)
	if !ok {
		t.Skip("store does not expose plan content")
	}
	b, err := r.PlanContent(context.Background(), planID)
	if err != nil {
		t.Fatalf("PlanContent: %v", err)
	}
	return b
}

func TestSeed_ActivationReachesPlanContent(t *testing.T) {
	t.Parallel()

	s, st := newTestSeeder(t)
	ident := newIdentity(t, st, "u1")

	res, err := s.Seed(context.Background(), testTemplate(), ident, Options{BilanActionsCount: 2})
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}

	var content struct {
		Items  []state.TrackedItem      `json:"items"`
		Phases []template.TemplatePhase `json:"phases"`
	}
	if err := json.Unmarshal(mustPlanContent(t, st, res.PlanID), &content); err != nil {
		t.Fatalf("unmarshal plan content: %v", err)
	}

	// The plan record must carry the same activation the live table got.
	if len(content.Items) != 3 {
		t.Fatalf("plan items = %d, want 3: %+v", len(content.Items), content.Items)
	}
	for i, item := range content.Items {
		if item.Position != i {
			t.Fatalf("item %d position = %d, want %d", i, item.Position, i)
		}
		want := state.StatusActive
		if i >= 2 {
			want = state.StatusPending
		}
		if item.Status != want {
			t.Fatalf("item %d (%s) status = %q, want %q", i, item.Title, item.Status, want)
		}
	}

	if len(content.Phases) != 2 {
		t.Fatalf("plan phases = %d, want 2", len(content.Phases))
	}
	if content.Phases[0].Status != template.PhaseActive {
		t.Fatalf("first phase status = %q, want active", content.Phases[0].Status)
	}
	if content.Phases[1].Status != template.PhaseLocked {
		t.Fatalf("second phase status = %q, want locked", content.Phases[1].Status)
	}
}

func TestSeed_BackfillEntries(t *testing.T) {
	t.Parallel()

	s, st := newTestSeeder(t)
	ident := newIdentity(t, st, "u1")

	_, err := s.Seed(context.Background(), testTemplate(), ident, Options{
		ActiveActionsCount: intPtr(2),
		PreseedActionEntries: []scenario.PreseedEntries{
			{Title: "marcher 20 minutes", Days: 3, Status: "completed"},
			{Title: "titre inconnu", Days: 5, Status: "missed"}, // skipped, non-fatal
		},
	})
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
}

func TestSeed_ActiveCountClamped(t *testing.T) {
	t.Parallel()

	s, st := newTestSeeder(t)
	ident := newIdentity(t, st, "u1")

	res, err := s.Seed(context.Background(), testTemplate(), ident, Options{
		ActiveActionsCount: intPtr(-5),
	})
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if len(res.InsertedItems) != 0 {
		t.Fatalf("negative count must clamp to zero actives: %+v", res.InsertedItems)
	}
}
