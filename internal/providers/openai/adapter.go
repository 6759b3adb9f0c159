// Package openai adapts the OpenAI Chat Completions API to the
// orchestrator's Caller capability.
package openai

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/procurehub/extracthub/internal/orchestrator"
	"github.com/procurehub/extracthub/internal/providers"
)

// Adapter implements orchestrator.Caller for OpenAI-compatible endpoints.
type Adapter struct {
	name    string
	apiKey  string
	baseURL string
	client  *http.Client
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithHTTPClient replaces the underlying HTTP client. Deadlines come from the
// per-call context, not a client timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Adapter) {
		if c != nil {
			a.client = c
		}
	}
}

// New creates an OpenAI adapter named name against baseURL.
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

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Call sends one bounded request to /v1/chat/completions. Unparsable or
// empty responses become MalformedError results.
func (a *Adapter) Call(ctx context.Context, p orchestrator.Payload) (*orchestrator.Completion, error) {
	messages := []map[string]string{}
	if p.SystemPrompt != "" {
		messages = append(messages, map[string]string{"role": "system", "content": p.SystemPrompt})
	}
	messages = append(messages, map[string]string{"role": "user", "content": p.Prompt})

	payload := map[string]any{
		"model":    p.Model,
		"messages": messages,
	}
	if p.MaxTokens > 0 {
		payload["max_tokens"] = p.MaxTokens
	}
	if p.Temperature > 0 {
		payload["temperature"] = p.Temperature
	}

	body, err := providers.DoRequest(ctx, a.client, a.baseURL+"/v1/chat/completions", payload, map[string]string{
		"Authorization": "Bearer " + a.apiKey,
	})
	if err != nil {
		return nil, err
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &providers.MalformedError{Provider: a.name, Reason: "body is not valid JSON"}
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return nil, &providers.MalformedError{Provider: a.name, Reason: "no completion choices"}
	}

	return &orchestrator.Completion{
		Text:         parsed.Choices[0].Message.Content,
		InputTokens:  parsed.Usage.PromptTokens,
		OutputTokens: parsed.Usage.CompletionTokens,
	}, nil
}

var _ orchestrator.Caller = (*Adapter)(nil)
