package fixture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/stellarlinkco/agent-evals/internal/evalutil"
	"github.com/stellarlinkco/agent-evals/internal/scenario"
	"github.com/stellarlinkco/agent-evals/internal/state"
	"github.com/stellarlinkco/agent-evals/internal/store"
	"github.com/stellarlinkco/agent-evals/internal/template"
)

const (
	maxActiveItems = 20
	minTargetCount = 1
	maxTargetCount = 7
)

// Options shapes one seeding pass. ActiveActionsCount wins over
// BilanActionsCount when both are set.
type Options struct {
	ActiveActionsCount   *int
	BilanActionsCount    int
	PreseedActions       []scenario.PreseedAction
	PreseedActionEntries []scenario.PreseedEntries
	ForceVitalSignal     bool
	IncludeVitalsInBilan bool
}

// Result is what a seeding pass produced.
type Result struct {
	PlanID        string
	InsertedItems []state.TrackedItem
}

// Seeder provisions fixture rows for one ephemeral identity.
type Seeder struct {
	store  store.Store
	logger *slog.Logger
}

func NewSeeder(st store.Store, logger *slog.Logger) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{store: st, logger: logger}
}

// Seed marks onboarding complete, materializes the plan from the template
// with freshly reassigned item ids, activates the first N items, applies
// preseeds, and writes the matching state snapshot.
func (s *Seeder) Seed(ctx context.Context, tmpl *template.PlanTemplate, identity *store.Identity, opts Options) (*Result, error) {
	if s == nil || s.store == nil {
		return nil, errors.New("fixture: nil seeder")
	}
	if identity == nil || strings.TrimSpace(identity.ID) == "" {
		return nil, errors.New("fixture: empty identity")
	}

	if err := s.store.MarkOnboardingComplete(ctx, identity.ID); err != nil {
		return nil, fmt.Errorf("fixture: mark onboarding: %w", err)
	}

	activeCount := clampInt(resolveActiveCount(opts), 0, maxActiveItems)

	// Template ids are placeholders shared across scenarios; reusing them
	// would collide on primary keys, so every id is reassigned.
	var planItems []state.TrackedItem
	var frameworkItems []state.TrackedItem
	planID := evalutil.NewID()
	if tmpl != nil {
		tmpl = tmpl.Clone()
		reassignTemplateIDs(tmpl)
		activatePhases(tmpl)
		planItems = flattenTemplateItems(tmpl, identity.ID, planID)
		for _, fi := range tmpl.FrameworkItems {
			frameworkItems = append(frameworkItems, templateItemToTracked(fi, identity.ID, planID))
		}
	}

	preseedActive, preseedPending := normalizePreseeds(opts.PreseedActions, identity.ID, planID)

	// Active preseeds go ahead of generated items; pending preseeds live in
	// the plan content only, so an in-conversation activation can be
	// asserted as the thing that creates the live row.
	ordered := append(append([]state.TrackedItem{}, preseedActive...), planItems...)
	var inserted []state.TrackedItem
	for i := range ordered {
		ordered[i].Position = i
		if i < len(preseedActive)+activeCount {
			ordered[i].Status = state.StatusActive
			inserted = append(inserted, ordered[i])
		} else {
			ordered[i].Status = state.StatusPending
		}
	}

	vital := s.resolveVitalSignal(tmpl, opts, identity.ID, planID)
	if vital != nil {
		inserted = append(inserted, *vital)
	}

	content, err := buildPlanContent(tmpl, ordered, preseedPending)
	if err != nil {
		return nil, err
	}
	plan := &store.PlanRecord{
		ID:      planID,
		UserID:  identity.ID,
		Title:   planTitle(tmpl),
		Content: content,
	}
	if err := s.store.InsertPlan(ctx, plan); err != nil {
		return nil, fmt.Errorf("fixture: insert plan: %w", err)
	}
	if err := s.store.InsertTrackedItems(ctx, inserted); err != nil {
		return nil, fmt.Errorf("fixture: insert items: %w", err)
	}

	if err := s.backfillEntries(ctx, inserted, opts.PreseedActionEntries); err != nil {
		return nil, err
	}

	if len(inserted) > 0 {
		snap := buildSnapshot(inserted, frameworkItems, opts)
		if err := s.store.SaveStateSnapshot(ctx, identity.ID, snap); err != nil {
			return nil, fmt.Errorf("fixture: save snapshot: %w", err)
		}
	}

	return &Result{PlanID: planID, InsertedItems: inserted}, nil
}

func resolveActiveCount(opts Options) int {
	if opts.ActiveActionsCount != nil {
		return *opts.ActiveActionsCount
	}
	return opts.BilanActionsCount
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func reassignTemplateIDs(tmpl *template.PlanTemplate) {
	for pi := range tmpl.Phases {
		tmpl.Phases[pi].ID = evalutil.NewID()
		for ii := range tmpl.Phases[pi].Items {
			tmpl.Phases[pi].Items[ii].ID = evalutil.NewID()
		}
	}
	for i := range tmpl.FrameworkItems {
		tmpl.FrameworkItems[i].ID = evalutil.NewID()
	}
	if tmpl.VitalSignal != nil {
		tmpl.VitalSignal.ID = evalutil.NewID()
	}
}

func activatePhases(tmpl *template.PlanTemplate) {
	for pi := range tmpl.Phases {
		if pi == 0 {
			tmpl.Phases[pi].Status = template.PhaseActive
		} else {
			tmpl.Phases[pi].Status = template.PhaseLocked
		}
	}
}

func flattenTemplateItems(tmpl *template.PlanTemplate, userID, planID string) []state.TrackedItem {
	var out []state.TrackedItem
	for _, phase := range tmpl.Phases {
		for _, item := range phase.Items {
			out = append(out, templateItemToTracked(item, userID, planID))
		}
	}
	return out
}

func templateItemToTracked(item template.TemplateItem, userID, planID string) state.TrackedItem {
	return state.TrackedItem{
		ID:            item.ID,
		UserID:        userID,
		PlanID:        planID,
		Title:         item.Title,
		Kind:          normalizeKind(item.Kind),
		Tracking:      normalizeTracking(item.Tracking),
		TargetCount:   item.TargetCount,
		Status:        state.StatusPending,
		ScheduledDays: item.ScheduledDays,
	}
}

func normalizePreseeds(preseeds []scenario.PreseedAction, userID, planID string) (active, pending []state.TrackedItem) {
	for _, p := range preseeds {
		item := state.TrackedItem{
			ID:            evalutil.NewID(),
			UserID:        userID,
			PlanID:        planID,
			Title:         p.Title,
			Kind:          normalizeKind(p.Kind),
			Tracking:      normalizeTracking(p.Tracking),
			TargetCount:   p.TargetCount,
			ScheduledDays: p.ScheduledDays,
		}
		if item.Kind == state.KindHabit {
			item.TargetCount = clampInt(item.TargetCount, minTargetCount, maxTargetCount)
		} else if item.TargetCount <= 0 {
			item.TargetCount = 1
		}
		if strings.EqualFold(strings.TrimSpace(p.Status), state.StatusPending) {
			item.Status = state.StatusPending
			pending = append(pending, item)
		} else {
			item.Status = state.StatusActive
			active = append(active, item)
		}
	}
	return active, pending
}

func normalizeKind(kind string) string {
	if strings.EqualFold(strings.TrimSpace(kind), state.KindOneShot) {
		return state.KindOneShot
	}
	return state.KindHabit
}

func normalizeTracking(tracking string) string {
	if strings.EqualFold(strings.TrimSpace(tracking), state.TrackingCounter) {
		return state.TrackingCounter
	}
	return state.TrackingBoolean
}

// forcedVitalTitle is the deterministic signal seeded when a scenario
// requests one explicitly.
const forcedVitalTitle = "Niveau d'énergie"

func (s *Seeder) resolveVitalSignal(tmpl *template.PlanTemplate, opts Options, userID, planID string) *state.TrackedItem {
	if opts.ForceVitalSignal {
		return &state.TrackedItem{
			ID:          evalutil.NewID(),
			UserID:      userID,
			PlanID:      planID,
			Title:       forcedVitalTitle,
			Kind:        state.KindHabit,
			Tracking:    state.TrackingCounter,
			TargetCount: maxTargetCount,
			Status:      state.StatusActive,
			IsVital:     true,
		}
	}
	if tmpl != nil && tmpl.VitalSignal != nil {
		item := templateItemToTracked(*tmpl.VitalSignal, userID, planID)
		item.Status = state.StatusActive
		item.IsVital = true
		return &item
	}
	return nil
}

func planTitle(tmpl *template.PlanTemplate) string {
	if tmpl != nil && strings.TrimSpace(tmpl.Title) != "" {
		return tmpl.Title
	}
	return "Plan"
}

func buildPlanContent(tmpl *template.PlanTemplate, items, pendingOnly []state.TrackedItem) (json.RawMessage, error) {
	content := map[string]any{
		"items": append(append([]state.TrackedItem{}, items...), pendingOnly...),
	}
	if tmpl != nil {
		content["phases"] = tmpl.Phases
		content["theme"] = tmpl.Theme
		content["fingerprint"] = tmpl.Fingerprint
	}
	b, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("fixture: marshal plan content: %w", err)
	}
	return b, nil
}

// backfillEntries inserts N consecutive days of history ending yesterday for
// each named item. Unmatched titles are logged and skipped; one bad preseed
// entry doesn't sink the whole fixture.
func (s *Seeder) backfillEntries(ctx context.Context, items []state.TrackedItem, specs []scenario.PreseedEntries) error {
	if len(specs) == 0 {
		return nil
	}

	byTitle := make(map[string]string, len(items))
	for _, item := range items {
		byTitle[strings.ToLower(strings.TrimSpace(item.Title))] = item.ID
	}

	var entries []state.ActionEntry
	yesterday := time.Now().AddDate(0, 0, -1)
	for _, spec := range specs {
		itemID, ok := byTitle[strings.ToLower(strings.TrimSpace(spec.Title))]
		if !ok {
			s.logger.Warn("fixture: preseed entries skipped, no item with title", "title", spec.Title)
			continue
		}
		status := strings.ToLower(strings.TrimSpace(spec.Status))
		switch status {
		case state.EntryCompleted, state.EntryMissed, state.EntryPartial:
		default:
			status = state.EntryCompleted
		}
		for d := spec.Days - 1; d >= 0; d-- {
			entries = append(entries, state.ActionEntry{
				ID:     evalutil.NewID(),
				ItemID: itemID,
				Date:   yesterday.AddDate(0, 0, -d).Format("2006-01-02"),
				Status: status,
			})
		}
	}

	if err := s.store.InsertActionEntries(ctx, entries); err != nil {
		return fmt.Errorf("fixture: backfill entries: %w", err)
	}
	return nil
}

// buildSnapshot materializes the checkup view the agent under test would
// compute from the same rows: vitals first, then actions and framework items
// in insertion order, cursor at zero.
func buildSnapshot(inserted, frameworkItems []state.TrackedItem, opts Options) *state.Snapshot {
	var pending []state.PendingItem
	if opts.IncludeVitalsInBilan {
		for _, item := range inserted {
			if item.IsVital {
				pending = append(pending, state.PendingItem{ID: item.ID, Title: item.Title, Kind: state.PendingVital})
			}
		}
	}
	for _, item := range inserted {
		if item.IsVital {
			continue
		}
		pending = append(pending, state.PendingItem{ID: item.ID, Title: item.Title, Kind: state.PendingAction})
	}
	for _, item := range frameworkItems {
		pending = append(pending, state.PendingItem{ID: item.ID, Title: item.Title, Kind: state.PendingFramework})
	}

	snap := &state.Snapshot{
		ChatState: map[string]any{"state": "idle"},
		Checkup: &state.CheckupSnapshot{
			PendingItems: pending,
			Cursor:       0,
		},
	}
	for _, item := range inserted {
		snap.PlanItems = append(snap.PlanItems, trackedItemView(item))
	}
	for _, item := range frameworkItems {
		snap.FrameworkItems = append(snap.FrameworkItems, trackedItemView(item))
	}
	return snap
}

func trackedItemView(item state.TrackedItem) map[string]any {
	view := map[string]any{
		"id":       item.ID,
		"title":    item.Title,
		"kind":     item.Kind,
		"tracking": item.Tracking,
		"status":   item.Status,
	}
	if item.TargetCount > 0 {
		view["target_count"] = item.TargetCount
	}
	if len(item.ScheduledDays) > 0 {
		view["scheduled_days"] = item.ScheduledDays
	}
	if item.IsVital {
		view["is_vital"] = true
	}
	return view
}
