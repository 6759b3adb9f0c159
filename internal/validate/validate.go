// Package validate sanitizes and bounds-checks extraction requests before any
// network activity. All text fields are stripped of control characters and all
// numeric parameters are range-checked, so downstream code (cache keys,
// provider payloads, logs) only ever sees clean input.
package validate

import (
	"fmt"
	"strings"
)

// Limits holds the size and range ceilings applied during validation.
type Limits struct {
	MaxPromptChars   int
	MaxDocumentChars int
	MaxTokensCeiling int
}

// DefaultLimits returns the standard production limits.
func DefaultLimits() Limits {
	return Limits{
		MaxPromptChars:   10000,
		MaxDocumentChars: 100000,
		MaxTokensCeiling: 8192,
	}
}

// Error describes a validation rejection. Field names the offending input.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Request is the caller-facing input to the orchestration layer.
// Prompt is required; Document carries extracted OCR text when present.
type Request struct {
	Prompt       string
	SystemPrompt string
	Document     string
	MaxTokens    int
	Temperature  float64
	TimeoutMs    int
}

// Validator applies Limits to incoming requests.
type Validator struct {
	limits Limits
}

// New creates a Validator. Zero or negative limit fields fall back to defaults.
func New(limits Limits) *Validator {
	def := DefaultLimits()
	if limits.MaxPromptChars <= 0 {
		limits.MaxPromptChars = def.MaxPromptChars
	}
	if limits.MaxDocumentChars <= 0 {
		limits.MaxDocumentChars = def.MaxDocumentChars
	}
	if limits.MaxTokensCeiling <= 0 {
		limits.MaxTokensCeiling = def.MaxTokensCeiling
	}
	return &Validator{limits: limits}
}

// Validate returns a sanitized copy of req or an *Error. The input is never
// mutated. Length limits are checked after control characters are stripped,
// so a prompt that only fits because of stripped bytes still passes.
//
// Per-field policy: temperature is clamped to [0,2]; max_tokens out of
// (0, ceiling] is rejected rather than clamped, because a silently reduced
// completion budget truncates extraction output in ways the caller cannot see.
func (v *Validator) Validate(req Request) (Request, error) {
	out := req
	out.Prompt = stripControl(req.Prompt)
	out.SystemPrompt = stripControl(req.SystemPrompt)
	out.Document = stripControl(req.Document)

	if strings.TrimSpace(out.Prompt) == "" {
		return Request{}, &Error{Field: "prompt", Reason: "must not be empty"}
	}
	if n := len(out.Prompt); n > v.limits.MaxPromptChars {
		return Request{}, &Error{
			Field:  "prompt",
			Reason: fmt.Sprintf("length %d exceeds limit %d", n, v.limits.MaxPromptChars),
		}
	}
	if n := len(out.Document); n > v.limits.MaxDocumentChars {
		return Request{}, &Error{
			Field:  "document",
			Reason: fmt.Sprintf("length %d exceeds limit %d", n, v.limits.MaxDocumentChars),
		}
	}

	if out.Temperature < 0 {
		out.Temperature = 0
	} else if out.Temperature > 2 {
		out.Temperature = 2
	}

	if out.MaxTokens < 0 {
		return Request{}, &Error{Field: "max_tokens", Reason: "must be > 0"}
	}
	if out.MaxTokens > v.limits.MaxTokensCeiling {
		return Request{}, &Error{
			Field:  "max_tokens",
			Reason: fmt.Sprintf("%d exceeds ceiling %d", out.MaxTokens, v.limits.MaxTokensCeiling),
		}
	}

	if out.TimeoutMs < 0 {
		out.TimeoutMs = 0
	}

	return out, nil
}

// stripControl removes bytes below 0x20 except newline and tab, plus DEL.
// These never belong in prompts and are a vector for log/terminal injection.
func stripControl(s string) string {
	if !hasControl(s) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\n' || r == '\t' {
			b.WriteRune(r)
			continue
		}
		if r < 0x20 || r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func hasControl(s string) bool {
	for _, r := range s {
		if (r < 0x20 && r != '\n' && r != '\t') || r == 0x7f {
			return true
		}
	}
	return false
}
