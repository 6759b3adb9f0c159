// Package anthropic adapts the Anthropic Messages API to the orchestrator's
// Caller capability.
package anthropic

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/procurehub/extracthub/internal/orchestrator"
	"github.com/procurehub/extracthub/internal/providers"
)

const apiVersion = "2023-06-01"

// Adapter implements orchestrator.Caller for Anthropic.
type Adapter struct {
	name    string
	apiKey  string
	baseURL string
	client  *http.Client
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithHTTPClient replaces the underlying HTTP client (e.g. to instrument the
// transport). The client must not set its own timeout; deadlines come from
// the per-call context.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Adapter) {
		if c != nil {
			a.client = c
		}
	}
}

// New creates an Anthropic adapter named name against baseURL.
func New(name, apiKey, baseURL string, opts ...Option) *Adapter {
	a := &Adapter{
		name:    name,
		apiKey:  apiKey,
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

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Call sends one bounded request to /v1/messages and defensively parses the
// response. Any body that does not carry at least one text block becomes a
// MalformedError, never a decode panic or raw error.
func (a *Adapter) Call(ctx context.Context, p orchestrator.Payload) (*orchestrator.Completion, error) {
	maxTokens := p.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096 // the Messages API requires max_tokens
	}

	payload := map[string]any{
		"model":      p.Model,
		"max_tokens": maxTokens,
		"messages": []map[string]string{
			{"role": "user", "content": p.Prompt},
		},
	}
	if p.SystemPrompt != "" {
		payload["system"] = p.SystemPrompt
	}
	if p.Temperature > 0 {
		payload["temperature"] = p.Temperature
	}

	body, err := providers.DoRequest(ctx, a.client, a.baseURL+"/v1/messages", payload, map[string]string{
		"x-api-key":         a.apiKey,
		"anthropic-version": apiVersion,
	})
	if err != nil {
		return nil, err
	}

	var parsed messagesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &providers.MalformedError{Provider: a.name, Reason: "body is not valid JSON"}
	}

	var text string
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return nil, &providers.MalformedError{Provider: a.name, Reason: "no text content"}
	}

	return &orchestrator.Completion{
		Text:         text,
		InputTokens:  parsed.Usage.InputTokens,
		OutputTokens: parsed.Usage.OutputTokens,
	}, nil
}

var _ orchestrator.Caller = (*Adapter)(nil)
