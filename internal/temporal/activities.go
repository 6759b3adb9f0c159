package temporal

import (
	"context"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/procurehub/extracthub/internal/orchestrator"
	"github.com/procurehub/extracthub/internal/providers"
	"github.com/procurehub/extracthub/internal/store"
)

// Activities holds the dependencies for the workflow activity
// implementations.
type Activities struct {
	Orch  *orchestrator.Orchestrator
	Store store.Store
}

// RunExtraction executes one full orchestration. Validation, cache, breaker
// and fallback handling all happen inside the orchestrator; the activity is
// a thin durable shell around it and must not retry on its own. Extraction
// failures travel in the output, not as activity errors, so the caller can
// tell them apart from Temporal infrastructure faults.
func (a *Activities) RunExtraction(ctx context.Context, input ExtractInput) (ExtractOutput, error) {
	activity.RecordHeartbeat(ctx, "extracting")
	ctx = providers.WithRequestID(ctx, input.RequestID)

	start := time.Now()
	res, err := a.Orch.Extract(ctx, input.Request)
	latencyMs := time.Since(start).Milliseconds()

	if err != nil {
		return ExtractOutput{
			LatencyMs:     latencyMs,
			Error:         err.Error(),
			ErrorCategory: string(orchestrator.CategoryOf(err)),
		}, nil
	}
	return ExtractOutput{Result: res, LatencyMs: latencyMs}, nil
}

// LogResult persists one workflow outcome to the extraction log.
func (a *Activities) LogResult(ctx context.Context, input LogInput) error {
	if a.Store == nil {
		return nil
	}
	return a.Store.LogExtraction(ctx, store.ExtractionLog{
		Timestamp:     time.Now().UTC(),
		Provider:      input.Provider,
		Model:         input.Model,
		LatencyMs:     input.LatencyMs,
		CacheHit:      input.CacheHit,
		Success:       input.Success,
		ErrorCategory: input.ErrorCategory,
		RequestID:     input.RequestID,
	})
}
