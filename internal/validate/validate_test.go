package validate

import (
	"strings"
	"testing"
)

func TestPromptBounds(t *testing.T) {
	v := New(DefaultLimits())

	// Exactly at the limit passes.
	req := Request{Prompt: strings.Repeat("a", 10000)}
	if _, err := v.Validate(req); err != nil {
		t.Fatalf("10000-char prompt should validate: %v", err)
	}

	// One over fails.
	req.Prompt = strings.Repeat("a", 10001)
	if _, err := v.Validate(req); err == nil {
		t.Fatal("10001-char prompt should fail")
	}
}

func TestDocumentBounds(t *testing.T) {
	v := New(DefaultLimits())

	req := Request{Prompt: "extract fields", Document: strings.Repeat("x", 100001)}
	_, err := v.Validate(req)
	if err == nil {
		t.Fatal("100001-char document should fail")
	}
	ve, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *Error, got %T", err)
	}
	if ve.Field != "document" {
		t.Errorf("expected document field, got %s", ve.Field)
	}
}

func TestEmptyPromptRejected(t *testing.T) {
	v := New(DefaultLimits())
	for _, p := range []string{"", "   ", "\n\t"} {
		if _, err := v.Validate(Request{Prompt: p}); err == nil {
			t.Errorf("prompt %q should be rejected", p)
		}
	}
}

func TestControlCharsStripped(t *testing.T) {
	v := New(DefaultLimits())

	out, err := v.Validate(Request{
		Prompt:       "hello\x00world\x1b[31m",
		SystemPrompt: "keep\nnewline\tand tab\x07",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Prompt != "helloworld[31m" {
		t.Errorf("control bytes not stripped from prompt: %q", out.Prompt)
	}
	if out.SystemPrompt != "keep\nnewline\tand tab" {
		t.Errorf("newline/tab should survive: %q", out.SystemPrompt)
	}
}

func TestInputNotMutated(t *testing.T) {
	v := New(DefaultLimits())
	in := Request{Prompt: "dirty\x00prompt"}
	_, err := v.Validate(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if in.Prompt != "dirty\x00prompt" {
		t.Error("validator mutated caller's request")
	}
}

func TestTemperatureClamped(t *testing.T) {
	v := New(DefaultLimits())

	out, err := v.Validate(Request{Prompt: "p", Temperature: 3.5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Temperature != 2 {
		t.Errorf("expected clamp to 2, got %f", out.Temperature)
	}

	out, err = v.Validate(Request{Prompt: "p", Temperature: -1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Temperature != 0 {
		t.Errorf("expected clamp to 0, got %f", out.Temperature)
	}
}

func TestMaxTokensPolicy(t *testing.T) {
	v := New(Limits{MaxTokensCeiling: 4096})

	if _, err := v.Validate(Request{Prompt: "p", MaxTokens: 4097}); err == nil {
		t.Error("max_tokens over ceiling should be rejected, not clamped")
	}
	if _, err := v.Validate(Request{Prompt: "p", MaxTokens: -5}); err == nil {
		t.Error("negative max_tokens should be rejected")
	}
	if _, err := v.Validate(Request{Prompt: "p", MaxTokens: 4096}); err != nil {
		t.Errorf("max_tokens at ceiling should pass: %v", err)
	}
}
