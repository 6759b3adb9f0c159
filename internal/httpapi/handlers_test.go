package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/require"

	"github.com/procurehub/extracthub/internal/cache"
	"github.com/procurehub/extracthub/internal/circuitbreaker"
	"github.com/procurehub/extracthub/internal/events"
	"github.com/procurehub/extracthub/internal/idempotency"
	"github.com/procurehub/extracthub/internal/orchestrator"
	"github.com/procurehub/extracthub/internal/ssrf"
	"github.com/procurehub/extracthub/internal/stats"
	"github.com/procurehub/extracthub/internal/store"
	"github.com/procurehub/extracthub/internal/validate"
	"github.com/procurehub/extracthub/internal/vault"
)

type fakeCaller struct {
	name  string
	mu    sync.Mutex
	calls int
	fail  bool
}

func (f *fakeCaller) Name() string     { return f.name }
func (f *fakeCaller) Endpoint() string { return "https://api.example.com/v1" }

func (f *fakeCaller) Call(_ context.Context, p orchestrator.Payload) (*orchestrator.Completion, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.fail {
		return nil, fmt.Errorf("upstream unavailable")
	}
	return &orchestrator.Completion{Text: `{"reference_number":"12TN2024"}`, InputTokens: 50, OutputTokens: 20}, nil
}

func (f *fakeCaller) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type staticResolver struct{}

func (staticResolver) LookupIPAddr(_ context.Context, _ string) ([]net.IPAddr, error) {
	return []net.IPAddr{{IP: net.ParseIP("93.184.216.34")}}, nil
}

// memStore is an in-memory store.Store for handler tests.
type memStore struct {
	mu          sync.Mutex
	extractions []store.ExtractionLog
	audits      []store.AuditEntry
	vaultBlob   map[string]string
}

func (m *memStore) LogExtraction(_ context.Context, e store.ExtractionLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.extractions = append(m.extractions, e)
	return nil
}

func (m *memStore) ListExtractionLogs(_ context.Context, _, _ int) ([]store.ExtractionLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.ExtractionLog(nil), m.extractions...), nil
}

func (m *memStore) RecentExtractionLogs(_ context.Context, _ time.Time) ([]store.ExtractionLog, error) {
	return m.ListExtractionLogs(context.Background(), 0, 0)
}

func (m *memStore) SaveVaultBlob(_ context.Context, data map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vaultBlob = data
	return nil
}

func (m *memStore) LoadVaultBlob(_ context.Context) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.vaultBlob, nil
}

func (m *memStore) LogAudit(_ context.Context, e store.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits = append(m.audits, e)
	return nil
}

func (m *memStore) ListAuditLogs(_ context.Context, _, _ int) ([]store.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.AuditEntry(nil), m.audits...), nil
}

func (m *memStore) Migrate(_ context.Context) error { return nil }
func (m *memStore) Close() error                    { return nil }

const testAdminToken = "test-admin-token"

type testEnv struct {
	router *chi.Mux
	caller *fakeCaller
	store  *memStore
	vault  *vault.Vault
	events *events.Bus
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	caller := &fakeCaller{name: "anthropic"}
	guard := ssrf.New(ssrf.WithResolver(staticResolver{}))
	c := cache.New(cache.WithMaxSize(16), cache.WithTTL(time.Minute))
	breakers := circuitbreaker.NewRegistry()
	orch := orchestrator.New(
		[]orchestrator.Provider{{Caller: caller, Model: "claude-sonnet-4-5", Priority: 1}},
		validate.New(validate.DefaultLimits()),
		guard, c, breakers,
	)

	ms := &memStore{}
	v := vault.New(true)
	bus := events.NewBus()
	idem := idempotency.New(time.Minute, 16)
	t.Cleanup(idem.Stop)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	MountRoutes(r, Dependencies{
		Orch:        orch,
		Vault:       v,
		Store:       ms,
		Stats:       stats.NewCollector(),
		Events:      bus,
		AdminToken:  &AdminTokenHolder{token: testAdminToken},
		Idempotency: idem,
	})
	return &testEnv{router: r, caller: caller, store: ms, vault: v, events: bus}
}

func postJSON(t *testing.T, r http.Handler, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(buf))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func adminHeaders() map[string]string {
	return map[string]string{"Authorization": "Bearer " + testAdminToken}
}

func TestExtractSuccess(t *testing.T) {
	env := newTestEnv(t)

	rec := postJSON(t, env.router, "/v1/extract", ExtractRequest{
		Prompt:   "Extract the tender fields.",
		Document: "Tender No: 12TN2024",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ExtractResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "anthropic", resp.Provider)
	require.Contains(t, resp.Text, "12TN2024")
	require.NotEmpty(t, resp.RequestID)
	require.False(t, resp.Cached)

	logs, _ := env.store.ListExtractionLogs(context.Background(), 0, 0)
	require.Len(t, logs, 1)
	require.True(t, logs[0].Success)
}

func TestExtractCachedSecondCall(t *testing.T) {
	env := newTestEnv(t)
	body := ExtractRequest{Prompt: "same prompt"}

	rec := postJSON(t, env.router, "/v1/extract", body, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = postJSON(t, env.router, "/v1/extract", body, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ExtractResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Cached)
	require.Equal(t, 1, env.caller.callCount())
}

func TestExtractValidationError(t *testing.T) {
	env := newTestEnv(t)

	rec := postJSON(t, env.router, "/v1/extract", ExtractRequest{Prompt: "   "}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "validation_error", body["error"])
	require.Zero(t, env.caller.callCount())
}

func TestTenderExtract(t *testing.T) {
	env := newTestEnv(t)

	rec := postJSON(t, env.router, "/v1/extract/tender", TenderExtractRequest{
		Document:   "Tender No: 12TN2024\nPosted: 01/03/2024\nClosing Date: 15-04-2024",
		Department: "Medical Supplies",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp TenderExtractResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "anthropic", resp.Provider)
	require.NotEmpty(t, resp.RequestID)

	// Reference comes from the model's JSON; the dates are backfilled from
	// the document and normalized.
	require.Equal(t, "12TN2024", resp.Tender.ReferenceNumber)
	require.Equal(t, "model", resp.Tender.ExtractionMethod)
	require.Equal(t, "15/04/2024", resp.Tender.ClosingDate)
	require.Equal(t, "01/03/2024", resp.Tender.PostingDate)
	require.Equal(t, "english", resp.Tender.Language)

	logs, _ := env.store.ListExtractionLogs(context.Background(), 0, 0)
	require.Len(t, logs, 1)
	require.True(t, logs[0].Success)
}

func TestTenderExtractRequiresDocument(t *testing.T) {
	env := newTestEnv(t)

	rec := postJSON(t, env.router, "/v1/extract/tender", TenderExtractRequest{Document: "  "}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "validation_error", body["error"])
	require.Zero(t, env.caller.callCount())
}

func TestExtractExhausted(t *testing.T) {
	env := newTestEnv(t)
	env.caller.fail = true

	rec := postJSON(t, env.router, "/v1/extract", ExtractRequest{Prompt: "hello"}, nil)
	require.Equal(t, http.StatusBadGateway, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "all_providers_exhausted", body["error"])
	require.NotContains(t, rec.Body.String(), "upstream unavailable")
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"ok"`)
}

func TestCacheStatsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	postJSON(t, env.router, "/v1/extract", ExtractRequest{Prompt: "p"}, nil)
	postJSON(t, env.router, "/v1/extract", ExtractRequest{Prompt: "p"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/cache/stats", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var s cache.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
	require.Equal(t, int64(1), s.Hits)
	require.Equal(t, int64(1), s.Misses)
	require.Equal(t, 1, s.Size)
}

func TestProvidersEndpoint(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/providers", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Providers []struct {
			Name         string `json:"name"`
			Model        string `json:"model"`
			CircuitState string `json:"circuit_state"`
		} `json:"providers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Providers, 1)
	require.Equal(t, "anthropic", body.Providers[0].Name)
	require.Equal(t, "closed", body.Providers[0].CircuitState)
}

func TestAdminRequiresToken(t *testing.T) {
	env := newTestEnv(t)

	rec := postJSON(t, env.router, "/admin/v1/cache/clear", nil, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postJSON(t, env.router, "/admin/v1/cache/clear", nil,
		map[string]string{"Authorization": "Bearer wrong"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postJSON(t, env.router, "/admin/v1/cache/clear", nil, adminHeaders())
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCacheClearForcesRefetch(t *testing.T) {
	env := newTestEnv(t)
	body := ExtractRequest{Prompt: "will be cached"}

	postJSON(t, env.router, "/v1/extract", body, nil)
	postJSON(t, env.router, "/v1/extract", body, nil)
	require.Equal(t, 1, env.caller.callCount())

	rec := postJSON(t, env.router, "/admin/v1/cache/clear", nil, adminHeaders())
	require.Equal(t, http.StatusOK, rec.Code)

	postJSON(t, env.router, "/v1/extract", body, nil)
	require.Equal(t, 2, env.caller.callCount())
}

func TestVaultLockUnlock(t *testing.T) {
	env := newTestEnv(t)

	rec := postJSON(t, env.router, "/admin/v1/vault/unlock",
		map[string]string{"passphrase": "operator passphrase"}, adminHeaders())
	require.Equal(t, http.StatusOK, rec.Code)
	require.False(t, env.vault.IsLocked())

	// The sealed blob is persisted on unlock.
	blob, _ := env.store.LoadVaultBlob(context.Background())
	require.NotNil(t, blob)

	rec = postJSON(t, env.router, "/admin/v1/vault/lock", nil, adminHeaders())
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, env.vault.IsLocked())

	// Wrong passphrase after a successful unlock is rejected.
	rec = postJSON(t, env.router, "/admin/v1/vault/unlock",
		map[string]string{"passphrase": "not the passphrase"}, adminHeaders())
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuditTrailWritten(t *testing.T) {
	env := newTestEnv(t)
	postJSON(t, env.router, "/admin/v1/cache/clear", nil, adminHeaders())

	req := httptest.NewRequest(http.MethodGet, "/admin/v1/audit", nil)
	req.Header.Set("Authorization", "Bearer "+testAdminToken)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "cache.clear")
}

func TestExtractionLogsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	postJSON(t, env.router, "/v1/extract", ExtractRequest{Prompt: "p"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/admin/v1/logs?limit=10", nil)
	req.Header.Set("Authorization", "Bearer "+testAdminToken)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "anthropic")
}

func TestExtractIdempotencyReplay(t *testing.T) {
	env := newTestEnv(t)
	headers := map[string]string{"Idempotency-Key": "req-42"}

	rec := postJSON(t, env.router, "/v1/extract", ExtractRequest{Prompt: "first"}, headers)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Header().Get("Idempotency-Replay"))
	firstBody := rec.Body.String()

	// Same key, different body: the stored response is replayed verbatim and
	// no second orchestration happens.
	rec = postJSON(t, env.router, "/v1/extract", ExtractRequest{Prompt: "second"}, headers)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "true", rec.Header().Get("Idempotency-Replay"))
	require.Equal(t, firstBody, rec.Body.String())
	require.Equal(t, 1, env.caller.callCount())
}

func TestCacheClearPublishesEvent(t *testing.T) {
	env := newTestEnv(t)
	sub := env.events.Subscribe(4)
	defer env.events.Unsubscribe(sub)

	rec := postJSON(t, env.router, "/admin/v1/cache/clear", nil, adminHeaders())
	require.Equal(t, http.StatusOK, rec.Code)

	select {
	case e := <-sub.C:
		require.Equal(t, events.EventCacheCleared, e.Type)
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}
}

func TestEventsStream(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/admin/v1/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer "+testAdminToken)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		env.router.ServeHTTP(rec, req)
		close(done)
	}()

	// Wait for the subscriber to register, then publish and close the stream.
	require.Eventually(t, func() bool { return env.events.SubscriberCount() == 1 },
		time.Second, 10*time.Millisecond)
	env.events.Publish(events.Event{Type: events.EventExtractionCompleted, Provider: "anthropic"})
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	body := rec.Body.String()
	require.Contains(t, body, "event: connected")
	require.Contains(t, body, "extraction_completed")
	require.Contains(t, body, `"provider":"anthropic"`)
}

func TestWorkflowsListWithoutTemporal(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/admin/v1/workflows", nil)
	req.Header.Set("Authorization", "Bearer "+testAdminToken)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"temporal_enabled":false`)
}
