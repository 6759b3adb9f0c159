package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/procurehub/extracthub/internal/orchestrator"
	"github.com/procurehub/extracthub/internal/providers"
)

func TestCallSuccess(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("missing x-api-key header")
		}
		if r.Header.Get("anthropic-version") == "" {
			t.Errorf("missing anthropic-version header")
		}
		if r.URL.Path != "/v1/messages" {
			t.Errorf("expected /v1/messages, got %s", r.URL.Path)
		}

		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		if payload["system"] != "extract tender fields" {
			t.Errorf("system prompt not forwarded: %v", payload["system"])
		}
		if _, ok := payload["max_tokens"]; !ok {
			t.Error("max_tokens must always be present")
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{{"type": "text", "text": "12TN2024"}},
			"usage":   map[string]int{"input_tokens": 10, "output_tokens": 3},
		})
	}))
	defer ts.Close()

	a := New("anthropic", "test-key", ts.URL)
	got, err := a.Call(context.Background(), orchestrator.Payload{
		Prompt:       "find the reference number",
		SystemPrompt: "extract tender fields",
		Model:        "claude-sonnet",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Text != "12TN2024" {
		t.Errorf("unexpected text: %q", got.Text)
	}
	if got.InputTokens != 10 || got.OutputTokens != 3 {
		t.Errorf("usage not parsed: %+v", got)
	}
}

func TestCallMalformedBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>gateway error</html>"))
	}))
	defer ts.Close()

	a := New("anthropic", "k", ts.URL)
	_, err := a.Call(context.Background(), orchestrator.Payload{Prompt: "p", Model: "m"})
	if err == nil {
		t.Fatal("expected error for non-JSON body")
	}
	var me *providers.MalformedError
	if !errors.As(err, &me) {
		t.Fatalf("expected MalformedError, got %T: %v", err, err)
	}
}

func TestCallEmptyContent(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"content":[]}`))
	}))
	defer ts.Close()

	a := New("anthropic", "k", ts.URL)
	_, err := a.Call(context.Background(), orchestrator.Payload{Prompt: "p", Model: "m"})
	var me *providers.MalformedError
	if !errors.As(err, &me) {
		t.Fatalf("expected MalformedError for empty content, got %v", err)
	}
}

func TestCallStatusError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded"}}`))
	}))
	defer ts.Close()

	a := New("anthropic", "k", ts.URL)
	_, err := a.Call(context.Background(), orchestrator.Payload{Prompt: "p", Model: "m"})
	var se *providers.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %T", err)
	}
	if se.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d", se.StatusCode)
	}
}

func TestMultipleTextBlocksConcatenated(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{
				{"type": "text", "text": "part one "},
				{"type": "tool_use", "text": "ignored"},
				{"type": "text", "text": "part two"},
			},
		})
	}))
	defer ts.Close()

	a := New("anthropic", "k", ts.URL)
	got, err := a.Call(context.Background(), orchestrator.Payload{Prompt: "p", Model: "m"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Text != "part one part two" {
		t.Errorf("unexpected concatenation: %q", got.Text)
	}
}
