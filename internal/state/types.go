package state

import (
	"encoding/json"
	"strings"
	"time"
)

const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

// Turn is a single message in a conversation transcript.
type Turn struct {
	Role    string `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

// Tracked item kinds and tracking modes.
const (
	KindHabit   = "habit"
	KindOneShot = "one_shot"

	TrackingCounter = "counter"
	TrackingBoolean = "boolean"

	StatusActive  = "active"
	StatusPending = "pending"
)

// TrackedItem is a live row in the tracked-items table owned by a test
// identity.
type TrackedItem struct {
	ID            string   `json:"id"`
	UserID        string   `json:"user_id"`
	PlanID        string   `json:"plan_id,omitempty"`
	Title         string   `json:"title"`
	Kind          string   `json:"kind"`
	Tracking      string   `json:"tracking"`
	TargetCount   int      `json:"target_count,omitempty"`
	Status        string   `json:"status"`
	Position      int      `json:"position"`
	IsVital       bool     `json:"is_vital,omitempty"`
	ScheduledDays []string `json:"scheduled_days,omitempty"`
}

// Action entry statuses.
const (
	EntryCompleted = "completed"
	EntryMissed    = "missed"
	EntryPartial   = "partial"
)

// ActionEntry is one day of history for a tracked item.
type ActionEntry struct {
	ID     string `json:"id"`
	ItemID string `json:"item_id"`
	Date   string `json:"date"` // YYYY-MM-DD
	Status string `json:"status"`
}

// Pending item kinds inside a checkup.
const (
	PendingVital     = "vital"
	PendingAction    = "action"
	PendingFramework = "framework"
)

// PendingItem is one entry in a checkup's unified pending-item list.
type PendingItem struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Kind  string `json:"kind"`
}

// CheckupSnapshot is the materialized view of the guided checkup flow as the
// agent under test computes it.
type CheckupSnapshot struct {
	PendingItems   []PendingItem `json:"pending_items"`
	Cursor         int           `json:"cursor"`
	DeferredTopics []string      `json:"deferred_topics,omitempty"`
	FullyDone      bool          `json:"fully_done,omitempty"` // deferred items revisited too
}

// Complete reports whether the pending-item cursor has exhausted the list.
func (c *CheckupSnapshot) Complete() bool {
	if c == nil {
		return false
	}
	return c.Cursor >= len(c.PendingItems)
}

// SessionEntry is one frame of the agent's session stack.
type SessionEntry struct {
	Topic            string    `json:"topic"`
	ResumableSummary string    `json:"resumable_summary"`
	LastActiveAt     time.Time `json:"last_active_at"`
}

// SchedulerState mirrors the agent's internal state machine.
type SchedulerState struct {
	ToolFlowActive      bool           `json:"tool_flow_active,omitempty"`
	ActiveFlow          string         `json:"active_flow,omitempty"`
	Mode                string         `json:"mode,omitempty"`
	SafetyOverrideMode  string         `json:"safety_override_mode,omitempty"`
	SessionStack        []SessionEntry `json:"session_stack,omitempty"`
	SupervisorUpdatedAt time.Time      `json:"supervisor_updated_at,omitempty"`
	WorkQueue           []string       `json:"work_queue,omitempty"`
	ExploratoryTopics   []string       `json:"exploratory_topics,omitempty"`
}

// Snapshot is the externally visible state of the agent under test for one
// identity, captured before and after a conversation.
type Snapshot struct {
	Profile        map[string]any   `json:"profile,omitempty"`
	ChatState      map[string]any   `json:"chat_state,omitempty"`
	WorkingMemory  json.RawMessage  `json:"working_memory,omitempty"`
	PlanItems      []map[string]any `json:"plan_items,omitempty"`
	FrameworkItems []map[string]any `json:"framework_items,omitempty"`
	Checkup        *CheckupSnapshot `json:"checkup,omitempty"`
	Scheduler      *SchedulerState  `json:"scheduler,omitempty"`
	LoggedIssues   []string         `json:"logged_issues,omitempty"`
}

// AgentText concatenates all agent-authored turn contents.
func AgentText(turns []Turn) string {
	var sb strings.Builder
	for _, t := range turns {
		if t.Role != RoleAgent {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(t.Content)
	}
	return sb.String()
}

// UserText concatenates all user-authored turn contents.
func UserText(turns []Turn) string {
	var sb strings.Builder
	for _, t := range turns {
		if t.Role != RoleUser {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(t.Content)
	}
	return sb.String()
}

// CountUserTurns returns the number of user-authored turns.
func CountUserTurns(turns []Turn) int {
	n := 0
	for _, t := range turns {
		if t.Role == RoleUser {
			n++
		}
	}
	return n
}
