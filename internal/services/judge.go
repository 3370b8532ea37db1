package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/stellarlinkco/agent-evals/internal/assert"
	"github.com/stellarlinkco/agent-evals/internal/llm"
	"github.com/stellarlinkco/agent-evals/internal/store"
)

const judgePromptTemplate = `You are an expert evaluator grading a conversation between a user and a coaching agent.

## Scenario
{{.ScenarioKey}}

{{if .Objectives}}## What the simulated user was trying to do
{{range .Objectives}}- {{.}}
{{end}}
{{end}}{{if .Assertions}}## Qualitative expectations
{{.Assertions}}

{{end}}## Transcript
{{.Transcript}}

{{if .StateBefore}}## Agent state before
{{.StateBefore}}

{{end}}{{if .StateAfter}}## Agent state after
{{.StateAfter}}

{{end}}## Instructions
Report concrete problems only. Severity is "low", "medium" or "high". Suggestions are optional improvements, not failures.

Output ONLY valid JSON in this exact format:
{"issues": [{"severity": "<low|medium|high>", "message": "<text>"}], "suggestions": ["<text>"]}`

var judgePromptTmpl = template.Must(template.New("judge").Parse(judgePromptTemplate))

type judgePromptData struct {
	ScenarioKey string
	Objectives  []string
	Assertions  string
	Transcript  string
	StateBefore string
	StateAfter  string
}

type judgeOutput struct {
	Issues []struct {
		Severity string `json:"severity"`
		Message  string `json:"message"`
	} `json:"issues"`
	Suggestions []string `json:"suggestions"`
}

// LLMJudge grades finished runs via an LLM provider.
type LLMJudge struct {
	Provider llm.Provider
	Model    string
}

func (j *LLMJudge) Judge(ctx context.Context, req *JudgeRequest) (*Verdict, error) {
	if j == nil || j.Provider == nil {
		return nil, errors.New("services: judge: nil provider")
	}
	if req == nil {
		return nil, errors.New("services: judge: nil request")
	}

	data := judgePromptData{
		ScenarioKey: req.ScenarioKey,
		Objectives:  req.Objectives,
		Assertions:  req.Assertions,
		Transcript:  RenderTranscript(req.Transcript),
	}
	if req.StateBefore != nil {
		b, err := json.Marshal(req.StateBefore)
		if err != nil {
			return nil, fmt.Errorf("services: judge: marshal state before: %w", err)
		}
		data.StateBefore = string(b)
	}
	if req.StateAfter != nil {
		b, err := json.Marshal(req.StateAfter)
		if err != nil {
			return nil, fmt.Errorf("services: judge: marshal state after: %w", err)
		}
		data.StateAfter = string(b)
	}

	var prompt bytes.Buffer
	if err := judgePromptTmpl.Execute(&prompt, data); err != nil {
		return nil, fmt.Errorf("services: judge: render prompt: %w", err)
	}

	resp, err := j.Provider.Complete(ctx, &llm.Request{
		Model:     j.Model,
		Messages:  []llm.Message{{Role: "user", Content: prompt.String()}},
		MaxTokens: 1024,
	})
	if err != nil {
		return nil, fmt.Errorf("services: judge: complete: %w", err)
	}

	var out judgeOutput
	if err := llm.ParseJSON(resp.Text, &out); err != nil {
		return nil, fmt.Errorf("services: judge: parse output: %w", err)
	}

	verdict := &Verdict{
		Suggestions: out.Suggestions,
		Metrics: store.Metrics{
			CostUSD:      llm.CostUSD(resp.Model, resp.Usage),
			PromptTokens: resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
			TotalTokens:  resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}
	for _, iss := range out.Issues {
		verdict.Issues = append(verdict.Issues, assert.Issue{
			Severity: normalizeSeverity(iss.Severity),
			Kind:     "judge_finding",
			Message:  iss.Message,
		})
	}
	return verdict, nil
}

func normalizeSeverity(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case assert.SeverityHigh:
		return assert.SeverityHigh
	case assert.SeverityLow:
		return assert.SeverityLow
	default:
		return assert.SeverityMedium
	}
}

// StubJudge is the use_real_ai=false path: no findings, zero cost.
type StubJudge struct{}

func (StubJudge) Judge(ctx context.Context, req *JudgeRequest) (*Verdict, error) {
	if req == nil {
		return nil, errors.New("services: judge: nil request")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Verdict{Metrics: store.Metrics{Turns: len(req.Transcript)}}, nil
}
