package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/stellarlinkco/agent-evals/internal/state"
)

const (
	defaultAgentTimeout = 60 * time.Second
	defaultWebhookPath  = "/webhooks/messaging"
)

// HTTPAgentClient talks to the agent under test over its process endpoint.
type HTTPAgentClient struct {
	baseURL     string
	apiKey      string
	webhookPath string
	httpClient  *http.Client
}

func NewHTTPAgentClient(baseURL, apiKey, webhookPath string, timeout time.Duration) *HTTPAgentClient {
	if timeout <= 0 {
		timeout = defaultAgentTimeout
	}
	webhookPath = strings.TrimSpace(webhookPath)
	if webhookPath == "" {
		webhookPath = defaultWebhookPath
	}
	if !strings.HasPrefix(webhookPath, "/") {
		webhookPath = "/" + webhookPath
	}
	return &HTTPAgentClient{
		baseURL:     strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:      strings.TrimSpace(apiKey),
		webhookPath: webhookPath,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

type agentProcessRequest struct {
	UserID  string         `json:"user_id"`
	Message string         `json:"message"`
	History []state.Turn   `json:"history,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// Process sends one user message and returns the agent's reply.
func (c *HTTPAgentClient) Process(ctx context.Context, userID, message string, history []state.Turn, meta map[string]any) (*AgentReply, error) {
	if c == nil || c.httpClient == nil {
		return nil, errors.New("services: agent: nil client")
	}
	if c.baseURL == "" {
		return nil, errors.New("services: agent: missing base url")
	}

	body, err := c.post(ctx, c.baseURL+"/api/agent/process", agentProcessRequest{
		UserID:  userID,
		Message: message,
		History: history,
		Meta:    meta,
	}, "agent")
	if err != nil {
		return nil, err
	}

	var reply AgentReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, fmt.Errorf("services: agent: decode reply: %w", err)
	}
	return &reply, nil
}

// Deliver posts a synthetic inbound webhook payload, so HTTPAgentClient also
// serves as the messaging-channel transport.
func (c *HTTPAgentClient) Deliver(ctx context.Context, msg *InboundMessage) error {
	if c == nil || c.httpClient == nil {
		return errors.New("services: webhook: nil client")
	}
	if msg == nil {
		return errors.New("services: webhook: nil message")
	}
	_, err := c.post(ctx, c.baseURL+c.webhookPath, msg, "webhook")
	return err
}

func (c *HTTPAgentClient) post(ctx context.Context, url string, payload any, service string) ([]byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("services: %s: marshal request: %w", service, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("services: %s: build request: %w", service, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("services: %s: do request: %w", service, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("services: %s: read response: %w", service, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{Service: service, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
