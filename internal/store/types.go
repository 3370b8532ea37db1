package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/stellarlinkco/agent-evals/internal/assert"
	"github.com/stellarlinkco/agent-evals/internal/state"
)

// ErrNotFound is returned when a looked-up record does not exist.
var ErrNotFound = errors.New("store: not found")

// Run statuses.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// RunConfig is the per-run execution configuration. RequestID is the
// idempotency anchor: re-invoking the orchestrator with the same batch id
// must look up an existing row by this key rather than inserting a new one.
type RunConfig struct {
	RequestID       string `json:"request_id"`
	TestUserID      string `json:"test_user_id"`
	Resumed         bool   `json:"resumed"`
	Channel         string `json:"channel,omitempty"`
	KickoffInjected bool   `json:"kickoff_injected,omitempty"`
}

// Metrics aggregates cost and token usage for one run.
type Metrics struct {
	CostUSD      float64 `json:"cost_usd"`
	PromptTokens int     `json:"prompt_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	Turns        int     `json:"turns"`
}

// EvalRun is one row per scenario execution attempt. Created in running
// status on the first attempt, updated (never duplicated) on every retry.
type EvalRun struct {
	ID          string          `json:"id"`
	DatasetKey  string          `json:"dataset_key"`
	ScenarioKey string          `json:"scenario_key"`
	Status      string          `json:"status"`
	Config      RunConfig       `json:"config"`
	Transcript  []state.Turn    `json:"transcript,omitempty"`
	StateBefore *state.Snapshot `json:"state_before,omitempty"`
	StateAfter  *state.Snapshot `json:"state_after,omitempty"`
	Issues      []assert.Issue  `json:"issues,omitempty"`
	Suggestions []string        `json:"suggestions,omitempty"`
	Metrics     Metrics         `json:"metrics"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Identity is an ephemeral test identity owning all seeded fixture rows.
// Deleted only on successful completion; preserved across retries.
type Identity struct {
	ID             string
	OnboardingDone bool
	CreatedAt      time.Time
}

// PlanRecord is the top-level goal/plan record seeded from a template.
type PlanRecord struct {
	ID        string
	UserID    string
	Title     string
	Content   json.RawMessage
	CreatedAt time.Time
}

// RunRegistry is the lookup-by-deterministic-key surface the orchestrator
// resumes through. The persistence backend is swappable; unit tests use an
// in-memory fake.
type RunRegistry interface {
	FindByKey(ctx context.Context, requestID string) (*EvalRun, error)
	Upsert(ctx context.Context, run *EvalRun) error
	GetRun(ctx context.Context, id string) (*EvalRun, error)
	ListRuns(ctx context.Context, datasetKey string, limit int) ([]*EvalRun, error)
}

// IdentityStore manages ephemeral test identities.
type IdentityStore interface {
	CreateIdentity(ctx context.Context, ident *Identity) error
	GetIdentity(ctx context.Context, id string) (*Identity, error)
	DeleteIdentity(ctx context.Context, id string) error
	MarkOnboardingComplete(ctx context.Context, id string) error
}

// FixtureStore holds the seeded fixture rows and conversation state for one
// identity: tracked items, history entries, state snapshots, transcript.
type FixtureStore interface {
	InsertPlan(ctx context.Context, plan *PlanRecord) error
	InsertTrackedItems(ctx context.Context, items []state.TrackedItem) error
	ListTrackedItems(ctx context.Context, userID string) ([]state.TrackedItem, error)
	InsertActionEntries(ctx context.Context, entries []state.ActionEntry) error
	SaveStateSnapshot(ctx context.Context, userID string, snap *state.Snapshot) error
	GetStateSnapshot(ctx context.Context, userID string) (*state.Snapshot, error)
	AppendTurns(ctx context.Context, userID string, turns []state.Turn) error
	GetTranscript(ctx context.Context, userID string) ([]state.Turn, error)
}

// Store is the full backing-store contract.
type Store interface {
	RunRegistry
	IdentityStore
	FixtureStore
	Close() error
}
