package llm

import "context"

// Provider is a text-completion backend. The simulator, the judge, and the
// template generator all speak through this interface so stub and real
// backends are interchangeable.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req *Request) (*Response, error)
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Request struct {
	Model       string
	Messages    []Message
	System      string
	MaxTokens   int
	Temperature float64
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type Response struct {
	Text       string
	Model      string
	StopReason string
	Usage      Usage
}
