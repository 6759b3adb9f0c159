package temporal

import (
	"github.com/procurehub/extracthub/internal/orchestrator"
	"github.com/procurehub/extracthub/internal/validate"
)

// ExtractInput is the input for ExtractWorkflow.
type ExtractInput struct {
	RequestID string           `json:"request_id"`
	Request   validate.Request `json:"request"`
}

// ExtractOutput is the result of ExtractWorkflow.
type ExtractOutput struct {
	Result        *orchestrator.Result `json:"result,omitempty"`
	LatencyMs     int64                `json:"latency_ms"`
	Error         string               `json:"error,omitempty"`
	ErrorCategory string               `json:"error_category,omitempty"`
}

// LogInput is the input for the LogResult activity.
type LogInput struct {
	RequestID     string `json:"request_id"`
	Provider      string `json:"provider"`
	Model         string `json:"model"`
	LatencyMs     int64  `json:"latency_ms"`
	CacheHit      bool   `json:"cache_hit"`
	Success       bool   `json:"success"`
	ErrorCategory string `json:"error_category,omitempty"`
}
