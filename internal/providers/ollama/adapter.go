// Package ollama adapts a self-hosted Ollama (or compatible) chat endpoint to
// the orchestrator's Caller capability. Used for on-prem deployments where
// tender documents may not leave the network.
package ollama

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/procurehub/extracthub/internal/orchestrator"
	"github.com/procurehub/extracthub/internal/providers"
)

// Adapter implements orchestrator.Caller for Ollama.
type Adapter struct {
	name    string
	baseURL string
	client  *http.Client
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Adapter) {
		if c != nil {
			a.client = c
		}
	}
}

// New creates an Ollama adapter. Ollama has no API key; the endpoint still
// passes through the SSRF guard like every other provider.
func New(name, baseURL string, opts ...Option) *Adapter {
	a := &Adapter{
		name:    name,
		baseURL: baseURL,
		client:  &http.Client{},
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *Adapter) Name() string     { return a.name }
func (a *Adapter) Endpoint() string { return a.baseURL }

type chatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	PromptEvalCount int `json:"prompt_eval_count"`
	EvalCount       int `json:"eval_count"`
}

// Call sends one bounded, non-streaming request to /api/chat.
func (a *Adapter) Call(ctx context.Context, p orchestrator.Payload) (*orchestrator.Completion, error) {
	messages := []map[string]string{}
	if p.SystemPrompt != "" {
		messages = append(messages, map[string]string{"role": "system", "content": p.SystemPrompt})
	}
	messages = append(messages, map[string]string{"role": "user", "content": p.Prompt})

	options := map[string]any{}
	if p.Temperature > 0 {
		options["temperature"] = p.Temperature
	}
	if p.MaxTokens > 0 {
		options["num_predict"] = p.MaxTokens
	}

	payload := map[string]any{
		"model":    p.Model,
		"messages": messages,
		"stream":   false,
	}
	if len(options) > 0 {
		payload["options"] = options
	}

	body, err := providers.DoRequest(ctx, a.client, a.baseURL+"/api/chat", payload, nil)
	if err != nil {
		return nil, err
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &providers.MalformedError{Provider: a.name, Reason: "body is not valid JSON"}
	}
	if parsed.Message.Content == "" {
		return nil, &providers.MalformedError{Provider: a.name, Reason: "empty message content"}
	}

	return &orchestrator.Completion{
		Text:         parsed.Message.Content,
		InputTokens:  parsed.PromptEvalCount,
		OutputTokens: parsed.EvalCount,
	}, nil
}

var _ orchestrator.Caller = (*Adapter)(nil)
