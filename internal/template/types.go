package template

import "encoding/json"

// TemplateItem is one item inside a plan template. IDs here are template-local
// placeholders; the seeder reassigns every id before insertion.
type TemplateItem struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Kind          string   `json:"kind"`     // habit | one_shot
	Tracking      string   `json:"tracking"` // counter | boolean
	TargetCount   int      `json:"target_count,omitempty"`
	ScheduledDays []string `json:"scheduled_days,omitempty"`
}

// Phase statuses stamped by the seeder: the first phase opens active, every
// later phase stays locked until the plan progresses.
const (
	PhaseActive = "active"
	PhaseLocked = "locked"
)

// TemplatePhase groups items; the seeder activates the first phase and locks
// the rest.
type TemplatePhase struct {
	ID     string         `json:"id"`
	Title  string         `json:"title"`
	Status string         `json:"status,omitempty"`
	Items  []TemplateItem `json:"items"`
}

// PlanTemplate is a reusable plan fixture. Fingerprint identifies the content:
// computed from raw generated bytes in generation mode, supplied by the bank
// in bank mode.
type PlanTemplate struct {
	Fingerprint    string          `json:"fingerprint"`
	Title          string          `json:"title"`
	Theme          string          `json:"theme,omitempty"`
	Phases         []TemplatePhase `json:"phases"`
	FrameworkItems []TemplateItem  `json:"framework_items,omitempty"`
	VitalSignal    *TemplateItem   `json:"vital_signal,omitempty"`
}

// Clone returns a deep copy so per-scenario mutation never leaks into the
// memoized template.
func (t *PlanTemplate) Clone() *PlanTemplate {
	if t == nil {
		return nil
	}
	b, err := json.Marshal(t)
	if err != nil {
		return nil
	}
	var out PlanTemplate
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	return &out
}

// Items flattens every phase's items in order.
func (t *PlanTemplate) Items() []TemplateItem {
	if t == nil {
		return nil
	}
	var out []TemplateItem
	for _, phase := range t.Phases {
		out = append(out, phase.Items...)
	}
	return out
}
