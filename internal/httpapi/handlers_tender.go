package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/procurehub/extracthub/internal/extract"
	"github.com/procurehub/extracthub/internal/orchestrator"
	"github.com/procurehub/extracthub/internal/providers"
	"github.com/procurehub/extracthub/internal/store"
	"github.com/procurehub/extracthub/internal/validate"
)

// TenderExtractRequest is the JSON body for POST /v1/extract/tender. The
// document is mandatory; the prompt pair is built server-side.
type TenderExtractRequest struct {
	Document   string `json:"document"`
	Department string `json:"department,omitempty"`
	MaxTokens  int    `json:"max_tokens,omitempty"`
	TimeoutMs  int    `json:"timeout_ms,omitempty"`
}

// TenderExtractResponse is the JSON body returned on success.
type TenderExtractResponse struct {
	RequestID string             `json:"request_id"`
	Provider  string             `json:"provider"`
	Model     string             `json:"model"`
	Cached    bool               `json:"cached"`
	LatencyMs int64              `json:"latency_ms"`
	Tender    extract.TenderData `json:"tender"`
}

// TenderExtractHandler handles POST /v1/extract/tender: one-shot structured
// tender extraction. The model answer is parsed defensively; fields the model
// missed are backfilled by pattern matching against the document.
func TenderExtractHandler(d Dependencies) http.HandlerFunc {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := middleware.GetReqID(r.Context())

		var req TenderExtractRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			jsonError(w, string(orchestrator.CategoryValidation), "bad json", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(req.Document) == "" {
			jsonError(w, string(orchestrator.CategoryValidation), "document is required", http.StatusBadRequest)
			return
		}

		vreq := validate.Request{
			Prompt:       extract.BuildPrompt(req.Department),
			SystemPrompt: extract.SystemPrompt,
			Document:     req.Document,
			MaxTokens:    req.MaxTokens,
			TimeoutMs:    req.TimeoutMs,
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

		_ = json.NewEncoder(w).Encode(TenderExtractResponse{
			RequestID: reqID,
			Provider:  res.Provider,
			Model:     res.Model,
			Cached:    res.Cached,
			LatencyMs: res.LatencyMs,
			Tender:    extract.ParseResponse(res.Text, req.Document),
		})
	}
}
