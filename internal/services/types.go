package services

import (
	"context"
	"strings"

	"github.com/stellarlinkco/agent-evals/internal/assert"
	"github.com/stellarlinkco/agent-evals/internal/state"
	"github.com/stellarlinkco/agent-evals/internal/store"
)

// AgentReply is one response from the agent under test. Aborted is set when
// the agent coalesced this call away (debounce), in which case Content is
// not appended to history.
type AgentReply struct {
	Content string `json:"content"`
	Mode    string `json:"mode,omitempty"`
	Aborted bool   `json:"aborted,omitempty"`
}

// AgentClient calls the conversational agent under test directly.
type AgentClient interface {
	Process(ctx context.Context, userID, message string, history []state.Turn, meta map[string]any) (*AgentReply, error)
}

// SimRequest asks the user simulator for the next user line.
type SimRequest struct {
	Persona    string
	Objectives []string
	Transcript []state.Turn
	TurnIndex  int
	MaxTurns   int
	Difficulty string
	Context    string
}

// SimTurn is the simulator's answer. CostUSD covers only this call.
type SimTurn struct {
	NextMessage string
	Done        bool
	CostUSD     float64
}

// Simulator produces user turns for persona-driven scenarios.
type Simulator interface {
	Simulate(ctx context.Context, req *SimRequest) (*SimTurn, error)
}

// JudgeRequest carries everything the judge sees for one finished run.
type JudgeRequest struct {
	ScenarioKey string
	Transcript  []state.Turn
	StateBefore *state.Snapshot
	StateAfter  *state.Snapshot
	Assertions  string
	Objectives  []string
}

// Verdict is the judge's qualitative output plus its own usage metrics.
type Verdict struct {
	Issues      []assert.Issue
	Suggestions []string
	Metrics     store.Metrics
}

// Judge grades a finished conversation. Invoked once per scenario.
type Judge interface {
	Judge(ctx context.Context, req *JudgeRequest) (*Verdict, error)
}

// InboundMessage is a synthetic inbound webhook payload for the messaging
// channel: either plain text or an interactive reply.
type InboundMessage struct {
	UserID             string `json:"user_id"`
	Text               string `json:"text,omitempty"`
	InteractiveReplyID string `json:"interactive_reply_id,omitempty"`
}

// WebhookTransport delivers inbound messages to the agent's messaging
// webhook. Non-success is fatal for the scenario.
type WebhookTransport interface {
	Deliver(ctx context.Context, msg *InboundMessage) error
}

// RenderTranscript flattens turns into a readable block for prompts.
func RenderTranscript(turns []state.Turn) string {
	var sb strings.Builder
	for _, t := range turns {
		if t.Role == state.RoleAgent {
			sb.WriteString("agent: ")
		} else {
			sb.WriteString("user: ")
		}
		sb.WriteString(t.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}
