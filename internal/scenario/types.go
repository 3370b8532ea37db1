package scenario

import (
	"fmt"
	"strings"

	"github.com/stellarlinkco/agent-evals/internal/assert"
)

// Conversation channels.
const (
	ChannelDirect    = "direct"
	ChannelMessaging = "messaging"
)

// Scenario is a single declarative test case: persona, objectives, scripted
// or simulated turns, and expected invariants. Immutable input; (dataset_key,
// id) is the business key, global uniqueness of id alone is not assumed.
type Scenario struct {
	DatasetKey       string      `yaml:"dataset_key" json:"dataset_key"`
	ID               string      `yaml:"id" json:"id"`
	Description      string      `yaml:"description,omitempty" json:"description,omitempty"`
	Tags             []string    `yaml:"tags,omitempty" json:"tags,omitempty"`
	Persona          string      `yaml:"persona" json:"persona"`
	Objectives       []string    `yaml:"objectives,omitempty" json:"objectives,omitempty"`
	Kickoff          string      `yaml:"kickoff,omitempty" json:"kickoff,omitempty"` // synthetic user turn opening a fresh conversation
	Steps            []Step      `yaml:"steps,omitempty" json:"steps,omitempty"`
	SuggestedReplies []string    `yaml:"suggested_replies,omitempty" json:"suggested_replies,omitempty"`
	Assertions       string      `yaml:"assertions,omitempty" json:"assertions,omitempty"`
	Mechanical       *assert.Set `yaml:"mechanical_assertions,omitempty" json:"mechanical_assertions,omitempty"`
	Channel          string      `yaml:"channel,omitempty" json:"channel,omitempty"`
	Setup            *Setup      `yaml:"setup,omitempty" json:"setup,omitempty"`
}

// Key returns the scenario's business key.
func (s *Scenario) Key() string {
	return s.DatasetKey + "/" + s.ID
}

// HasTag reports whether the scenario carries the given tag.
func (s *Scenario) HasTag(tag string) bool {
	for _, t := range s.Tags {
		if strings.EqualFold(strings.TrimSpace(t), tag) {
			return true
		}
	}
	return false
}

// Step is one scripted user turn. A non-zero BurstDelayMs flags a burst pair:
// this turn and the next are fired as two concurrently in-flight calls.
type Step struct {
	User         string `yaml:"user" json:"user"`
	BurstDelayMs int    `yaml:"burst_delay_ms,omitempty" json:"burst_delay_ms,omitempty"`
}

// PreseedAction is an explicit extra tracked item inserted ahead of the
// template's generated ones, so a test can assert against an item whose
// existence is a precondition rather than a conversation outcome.
type PreseedAction struct {
	Title         string   `yaml:"title" json:"title"`
	Kind          string   `yaml:"kind,omitempty" json:"kind,omitempty"`         // habit | one_shot
	Tracking      string   `yaml:"tracking,omitempty" json:"tracking,omitempty"` // counter | boolean
	TargetCount   int      `yaml:"target_count,omitempty" json:"target_count,omitempty"`
	Status        string   `yaml:"status,omitempty" json:"status,omitempty"` // active | pending
	ScheduledDays []string `yaml:"scheduled_days,omitempty" json:"scheduled_days,omitempty"`
}

// PreseedEntries backfills consecutive days of history ending yesterday for
// an already-seeded item, matched by title.
type PreseedEntries struct {
	Title  string `yaml:"title" json:"title"`
	Days   int    `yaml:"days" json:"days"`
	Status string `yaml:"status,omitempty" json:"status,omitempty"` // completed | missed | partial
}

// Setup describes the fixture the scenario starts from.
type Setup struct {
	ActiveActionsCount   *int             `yaml:"active_actions_count,omitempty" json:"active_actions_count,omitempty"`
	PreseedActions       []PreseedAction  `yaml:"preseed_actions,omitempty" json:"preseed_actions,omitempty"`
	PreseedActionEntries []PreseedEntries `yaml:"preseed_action_entries,omitempty" json:"preseed_action_entries,omitempty"`
	ForceVitalSignal     bool             `yaml:"force_vital_signal,omitempty" json:"force_vital_signal,omitempty"`
	ForceWebhookTurns    bool             `yaml:"force_webhook_turns,omitempty" json:"force_webhook_turns,omitempty"`
	IncludeVitalsInBilan bool             `yaml:"include_vitals_in_bilan,omitempty" json:"include_vitals_in_bilan,omitempty"`
	TemplateTheme        string           `yaml:"template_theme,omitempty" json:"template_theme,omitempty"`
}

// RunLimits governs batch-wide policy.
type RunLimits struct {
	MaxScenarios            int     `yaml:"max_scenarios" json:"max_scenarios"`
	MaxTurnsPerScenario     int     `yaml:"max_turns_per_scenario" json:"max_turns_per_scenario"`
	BilanActionsCount       int     `yaml:"bilan_actions_count,omitempty" json:"bilan_actions_count,omitempty"`
	TestPostCheckupDeferral bool    `yaml:"test_post_checkup_deferral,omitempty" json:"test_post_checkup_deferral,omitempty"`
	UserDifficulty          string  `yaml:"user_difficulty,omitempty" json:"user_difficulty,omitempty"`
	StopOnFirstFailure      bool    `yaml:"stop_on_first_failure,omitempty" json:"stop_on_first_failure,omitempty"`
	BudgetUSD               float64 `yaml:"budget_usd,omitempty" json:"budget_usd,omitempty"`
	UseRealAI               bool    `yaml:"use_real_ai,omitempty" json:"use_real_ai,omitempty"`
	JudgeForceRealAI        bool    `yaml:"judge_force_real_ai,omitempty" json:"judge_force_real_ai,omitempty"`
	Model                   string  `yaml:"model,omitempty" json:"model,omitempty"`
}

const (
	maxScenariosCeiling = 50
	maxTurnsCeiling     = 50
)

// Normalize applies defaults and bounds the limits on ingestion.
func (l *RunLimits) Normalize() error {
	if l == nil {
		return fmt.Errorf("scenario: nil limits")
	}
	if l.MaxScenarios <= 0 {
		l.MaxScenarios = 10
	}
	if l.MaxScenarios > maxScenariosCeiling {
		l.MaxScenarios = maxScenariosCeiling
	}
	if l.MaxTurnsPerScenario <= 0 {
		l.MaxTurnsPerScenario = 20
	}
	if l.MaxTurnsPerScenario > maxTurnsCeiling {
		l.MaxTurnsPerScenario = maxTurnsCeiling
	}
	if l.BilanActionsCount < 0 {
		l.BilanActionsCount = 0
	}
	if l.BudgetUSD < 0 {
		return fmt.Errorf("scenario: negative budget %v", l.BudgetUSD)
	}
	if strings.TrimSpace(l.UserDifficulty) == "" {
		l.UserDifficulty = "normal"
	}
	return nil
}
