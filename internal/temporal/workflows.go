package temporal

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	activityTimeout  = 90 * time.Second
	heartbeatTimeout = 30 * time.Second
)

// ExtractWorkflow runs one extraction as a durable workflow: a single
// RunExtraction activity followed by a LogResult bookend. Provider fallback
// and retry live inside the orchestrator, so the activity itself never
// retries.
func ExtractWorkflow(ctx workflow.Context, input ExtractInput) (ExtractOutput, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: activityTimeout,
		HeartbeatTimeout:    heartbeatTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	start := workflow.Now(ctx)

	var output ExtractOutput
	if err := workflow.ExecuteActivity(ctx, (*Activities).RunExtraction, input).Get(ctx, &output); err != nil {
		return ExtractOutput{}, err
	}
	if output.LatencyMs == 0 {
		output.LatencyMs = workflow.Now(ctx).Sub(start).Milliseconds()
	}

	logInput := LogInput{
		RequestID:     input.RequestID,
		LatencyMs:     output.LatencyMs,
		Success:       output.Error == "",
		ErrorCategory: output.ErrorCategory,
	}
	if output.Result != nil {
		logInput.Provider = output.Result.Provider
		logInput.Model = output.Result.Model
		logInput.CacheHit = output.Result.Cached
	}
	_ = workflow.ExecuteActivity(ctx, (*Activities).LogResult, logInput).Get(ctx, nil)

	return output, nil
}
