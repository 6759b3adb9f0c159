package orchestrator

import "context"

// Payload is the provider-agnostic request an adapter turns into its wire
// format. All fields are already sanitized by the validator.
type Payload struct {
	Prompt       string
	SystemPrompt string
	Model        string
	MaxTokens    int
	Temperature  float64
}

// Completion is the parsed output of one provider call.
type Completion struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Caller is the single capability a provider adapter exposes: send one
// payload within the context deadline and return the parsed completion.
// Defined here, at the consumer, so adapter packages depend on the
// orchestrator and not the other way round.
type Caller interface {
	Name() string
	Endpoint() string
	Call(ctx context.Context, p Payload) (*Completion, error)
}

// Provider pairs an adapter with its routing configuration. The list is fixed
// at startup and shared read-only by all requests.
type Provider struct {
	Caller   Caller
	Model    string
	Priority int // lower is tried first
}

// Result is the outcome of a successful orchestration.
type Result struct {
	Text         string `json:"text"`
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	Cached       bool   `json:"cached"`
	LatencyMs    int64  `json:"latency_ms"`
	InputTokens  int    `json:"input_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
}

// Record is one orchestration outcome handed to the Recorder for
// observability. ErrorCategory is empty on success.
type Record struct {
	Provider      string
	Model         string
	LatencyMs     float64
	CacheHit      bool
	Success       bool
	ErrorCategory string
}

// Recorder receives one Record per finished orchestration. Implementations
// must not block; the orchestrator calls them inline.
type Recorder interface {
	RecordExtraction(rec Record)
}

// RecorderFunc adapts a function to the Recorder interface.
type RecorderFunc func(rec Record)

func (f RecorderFunc) RecordExtraction(rec Record) { f(rec) }
