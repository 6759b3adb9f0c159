package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.temporal.io/sdk/client"

	"github.com/procurehub/extracthub/internal/orchestrator"
	"github.com/procurehub/extracthub/internal/providers"
	"github.com/procurehub/extracthub/internal/store"
	temporalpkg "github.com/procurehub/extracthub/internal/temporal"
	"github.com/procurehub/extracthub/internal/validate"
)

// jsonError writes a JSON error body: {"error": "<category>", "detail": "<msg>"}.
func jsonError(w http.ResponseWriter, category, detail string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": category, "detail": detail})
}

// warnOnErr logs a warning when a background store write fails. Log writes
// must not block or fail the response.
func warnOnErr(logger *slog.Logger, op string, err error) {
	if err != nil {
		logger.Warn("store operation failed", slog.String("op", op), slog.String("error", err.Error()))
	}
}

// ExtractRequest is the JSON body for POST /v1/extract.
type ExtractRequest struct {
	Prompt       string  `json:"prompt"`
	SystemPrompt string  `json:"system_prompt,omitempty"`
	Document     string  `json:"document,omitempty"`
	MaxTokens    int     `json:"max_tokens,omitempty"`
	Temperature  float64 `json:"temperature,omitempty"`
	TimeoutMs    int     `json:"timeout_ms,omitempty"`
}

// ExtractResponse is the JSON body returned on success.
type ExtractResponse struct {
	RequestID string `json:"request_id"`
	orchestrator.Result
}

// statusFor maps a failure category to an HTTP status.
func statusFor(cat orchestrator.Category) int {
	switch cat {
	case orchestrator.CategoryValidation:
		return http.StatusBadRequest
	case orchestrator.CategoryCancelled:
		// Client went away; the status is for the access log only.
		return 499
	case orchestrator.CategoryTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func ExtractHandler(d Dependencies) http.HandlerFunc {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := middleware.GetReqID(r.Context())

		var req ExtractRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			jsonError(w, string(orchestrator.CategoryValidation), "bad json", http.StatusBadRequest)
			return
		}

		vreq := validate.Request{
			Prompt:       req.Prompt,
			SystemPrompt: req.SystemPrompt,
			Document:     req.Document,
			MaxTokens:    req.MaxTokens,
			Temperature:  req.Temperature,
			TimeoutMs:    req.TimeoutMs,
		}

		// Durable path: dispatch through Temporal while its breaker is
		// closed; any service fault trips it and we orchestrate directly.
		if d.TemporalClient != nil && d.TemporalBreaker != nil && d.TemporalBreaker.Allow() {
			out, terr := runViaTemporal(r.Context(), d, reqID, vreq)
			if terr == nil {
				d.TemporalBreaker.RecordSuccess()
				if out.Error != "" {
					cat := orchestrator.Category(out.ErrorCategory)
					jsonError(w, out.ErrorCategory, out.Error, statusFor(cat))
					return
				}
				_ = json.NewEncoder(w).Encode(ExtractResponse{RequestID: reqID, Result: *out.Result})
				return
			}
			d.TemporalBreaker.RecordFailure()
			logger.Warn("durable dispatch unavailable, orchestrating directly",
				slog.String("request_id", reqID),
				slog.String("error", terr.Error()),
			)
		}

		ctx := providers.WithRequestID(r.Context(), reqID)
		res, err := d.Orch.Extract(ctx, vreq)
		latencyMs := time.Since(start).Milliseconds()

		if err != nil {
			cat := orchestrator.CategoryOf(err)
			if d.Store != nil {
				warnOnErr(logger, "log_extraction", d.Store.LogExtraction(r.Context(), store.ExtractionLog{
					Timestamp:     time.Now().UTC(),
					LatencyMs:     latencyMs,
					Success:       false,
					ErrorCategory: string(cat),
					RequestID:     reqID,
				}))
			}
			jsonError(w, string(cat), err.Error(), statusFor(cat))
			return
		}

		if d.Store != nil {
			warnOnErr(logger, "log_extraction", d.Store.LogExtraction(r.Context(), store.ExtractionLog{
				Timestamp: time.Now().UTC(),
				Provider:  res.Provider,
				Model:     res.Model,
				LatencyMs: latencyMs,
				CacheHit:  res.Cached,
				Success:   true,
				RequestID: reqID,
			}))
		}
		_ = json.NewEncoder(w).Encode(ExtractResponse{RequestID: reqID, Result: *res})
	}
}

// runViaTemporal starts ExtractWorkflow and waits for its result. Errors
// returned here are Temporal service faults, never extraction failures.
func runViaTemporal(ctx context.Context, d Dependencies, reqID string, vreq validate.Request) (temporalpkg.ExtractOutput, error) {
	input := temporalpkg.ExtractInput{RequestID: reqID, Request: vreq}
	run, err := d.TemporalClient.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        fmt.Sprintf("extract-%s", reqID),
		TaskQueue: d.TemporalTaskQueue,
	}, temporalpkg.ExtractWorkflow, input)
	if err != nil {
		return temporalpkg.ExtractOutput{}, err
	}
	var out temporalpkg.ExtractOutput
	if err := run.Get(ctx, &out); err != nil {
		return temporalpkg.ExtractOutput{}, err
	}
	return out, nil
}
