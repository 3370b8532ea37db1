package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/stellarlinkco/agent-evals/internal/llm"
	"github.com/stellarlinkco/agent-evals/internal/state"
)

const simulatorPromptTemplate = `You are role-playing a user talking to a coaching agent. Stay in character.

## Persona
{{.Persona}}

{{if .Objectives}}## Objectives for this conversation
{{range .Objectives}}- {{.}}
{{end}}
{{end}}## Difficulty
{{.Difficulty}}: easy users answer directly, normal users occasionally digress, difficult users resist, digress, and give vague answers.

{{if .Context}}## Extra context
{{.Context}}

{{end}}## Conversation so far (turn {{.TurnIndex}} of at most {{.MaxTurns}})
{{.Transcript}}

## Instructions
Write the user's next message, short and in character. Set "done" to true only when every objective has been addressed or the agent has clearly wrapped up.

Output ONLY valid JSON in this exact format:
{"next_message": "<text>", "done": <true|false>}`

var simulatorPromptTmpl = template.Must(template.New("simulator").Parse(simulatorPromptTemplate))

type simulatorPromptData struct {
	Persona    string
	Objectives []string
	Difficulty string
	Context    string
	TurnIndex  int
	MaxTurns   int
	Transcript string
}

type simulatorOutput struct {
	NextMessage string `json:"next_message"`
	Done        bool   `json:"done"`
}

// LLMSimulator plays the user via an LLM provider.
type LLMSimulator struct {
	Provider llm.Provider
	Model    string
}

func (s *LLMSimulator) Simulate(ctx context.Context, req *SimRequest) (*SimTurn, error) {
	if s == nil || s.Provider == nil {
		return nil, errors.New("services: simulator: nil provider")
	}
	if req == nil {
		return nil, errors.New("services: simulator: nil request")
	}

	difficulty := strings.TrimSpace(req.Difficulty)
	if difficulty == "" {
		difficulty = "normal"
	}

	var prompt bytes.Buffer
	err := simulatorPromptTmpl.Execute(&prompt, simulatorPromptData{
		Persona:    req.Persona,
		Objectives: req.Objectives,
		Difficulty: difficulty,
		Context:    req.Context,
		TurnIndex:  req.TurnIndex,
		MaxTurns:   req.MaxTurns,
		Transcript: RenderTranscript(req.Transcript),
	})
	if err != nil {
		return nil, fmt.Errorf("services: simulator: render prompt: %w", err)
	}

	resp, err := s.Provider.Complete(ctx, &llm.Request{
		Model:       s.Model,
		Messages:    []llm.Message{{Role: "user", Content: prompt.String()}},
		MaxTokens:   512,
		Temperature: 0.7,
	})
	if err != nil {
		return nil, fmt.Errorf("services: simulator: complete: %w", err)
	}

	var out simulatorOutput
	if err := llm.ParseJSON(resp.Text, &out); err != nil {
		return nil, fmt.Errorf("services: simulator: parse output: %w", err)
	}
	return &SimTurn{
		NextMessage: out.NextMessage,
		Done:        out.Done,
		CostUSD:     llm.CostUSD(resp.Model, resp.Usage),
	}, nil
}

// StubSimulator is the use_real_ai=false path: deterministic short answers,
// done once the turn budget is nearly spent.
type StubSimulator struct{}

var stubReplies = []string{"oui", "ok", "c'est fait", "yes", "done"}

func (StubSimulator) Simulate(ctx context.Context, req *SimRequest) (*SimTurn, error) {
	if req == nil {
		return nil, errors.New("services: simulator: nil request")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	done := req.MaxTurns > 0 && req.TurnIndex >= req.MaxTurns-1
	if !done && lastAgentTurnCloses(req.Transcript) {
		done = true
	}
	return &SimTurn{
		NextMessage: stubReplies[req.TurnIndex%len(stubReplies)],
		Done:        done,
	}, nil
}

func lastAgentTurnCloses(turns []state.Turn) bool {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role != state.RoleAgent {
			continue
		}
		text := strings.ToLower(turns[i].Content)
		return strings.Contains(text, "à demain") || strings.Contains(text, "see you") ||
			strings.Contains(text, "bonne journée")
	}
	return false
}
