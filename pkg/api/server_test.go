package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/audit"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/auth"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/config"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/delivery"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/dlq"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/execlog"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/models"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/ratelimit"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/sandbox"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/store"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/tenant"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/transform"
)

const testAPIKey = "operator-key"

type serverFixture struct {
	router *gin.Engine
	stores *store.Stores
	ledger *audit.Ledger
	dlq    *dlq.Service
}

func aliveProbes() WorkerProbes {
	alive := func() bool { return true }
	return WorkerProbes{Delivery: alive, Retry: alive, Scheduler: alive, Watchdog: alive}
}

func newServerFixture(t *testing.T, workers WorkerProbes, source Probe) *serverFixture {
	t.Helper()
	stores := store.NewMemoryStores()

	sb := sandbox.NewEngine(config.DefaultSandboxConfig())
	transformer := transform.NewEngine(sb,
		transform.NewResolver(stores.Lookups, tenant.NewHierarchy(stores.Tenants)))
	recorder := execlog.NewRecorder(stores.ExecLogs, config.DefaultRedactionConfig(), nil)
	dlqSvc := dlq.NewService(stores.DLQ, dlq.NewPolicy(config.DefaultRetryConfig()), nil)
	ledger := audit.NewLedger(stores.Audit, config.DefaultAuditConfig(), nil)
	engine := delivery.NewEngine(
		stores.Integrations, transformer, auth.NewProvider(stores.Integrations, nil, ""),
		ratelimit.NewMemoryLimiter(), recorder, dlqSvc, sb, nil, nil)

	cfg := &config.Config{Port: "0", APIKey: testAPIKey}
	srv := NewServer(cfg, nil, stores, ledger, dlqSvc, engine, workers, source, nil)
	return &serverFixture{router: srv.Router(), stores: stores, ledger: ledger, dlq: dlqSvc}
}

func (f *serverFixture) do(method, path string, body any, withKey bool) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if withKey {
		req.Header.Set(HeaderAPIKey, testAPIKey)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	f := newServerFixture(t, aliveProbes(), func() bool { return true })
	w := f.do(http.MethodGet, "/health", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
}

func TestHealthDeadWorkerIsCritical(t *testing.T) {
	probes := aliveProbes()
	probes.Retry = func() bool { return false }
	f := newServerFixture(t, probes, func() bool { return true })

	w := f.do(http.MethodGet, "/health", nil, false)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decode(t, w)
	assert.Equal(t, "critical", body["status"])
	workers := body["components"].(map[string]any)["workers"].(map[string]any)
	assert.Equal(t, "critical", workers["retry"])
	assert.Equal(t, "ok", workers["delivery"])
}

func TestHealthSourceDownIsDegraded(t *testing.T) {
	f := newServerFixture(t, aliveProbes(), func() bool { return false })
	w := f.do(http.MethodGet, "/health", nil, false)
	require.Equal(t, http.StatusOK, w.Code, "a dead source does not take the surface down")
	assert.Equal(t, "degraded", decode(t, w)["status"])
}

func TestAPIKeyRequired(t *testing.T) {
	f := newServerFixture(t, aliveProbes(), nil)

	w := f.do(http.MethodGet, "/api/v1/dlq", nil, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/dlq", nil)
	req.Header.Set(HeaderAPIKey, "wrong-key")
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(http.MethodGet, "/api/v1/dlq", nil, true)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequestIDEchoed(t *testing.T) {
	f := newServerFixture(t, aliveProbes(), nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(HeaderRequestID, "req-supplied")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, "req-supplied", w.Header().Get(HeaderRequestID))

	w = f.do(http.MethodGet, "/health", nil, false)
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID), "a request id is generated when absent")
}

func TestInjectEvents(t *testing.T) {
	f := newServerFixture(t, aliveProbes(), nil)

	w := f.do(http.MethodPost, "/api/v1/events/test-notification-queue", map[string]any{
		"tenantId":   10,
		"eventTypes": []string{"patient.created", "visit.closed"},
		"limit":      2,
		"payload":    map[string]any{"id": "synthetic"},
	}, true)
	require.Equal(t, http.StatusAccepted, w.Code)

	body := decode(t, w)
	assert.Equal(t, float64(4), body["ingested"])
	assert.Len(t, body["traceIds"], 4)
}

func TestInjectEventsValidation(t *testing.T) {
	f := newServerFixture(t, aliveProbes(), nil)
	w := f.do(http.MethodPost, "/api/v1/events/test-notification-queue", map[string]any{
		"tenantId": 10,
	}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code, "eventTypes is required")
}

func TestReleaseStuck(t *testing.T) {
	f := newServerFixture(t, aliveProbes(), nil)
	ctx := context.Background()

	event := &models.Event{EventID: "e", Source: "relational", SourceOffset: 42, TenantID: 1, EventType: "x",
		Payload: models.Payload{"id": "e"}}
	_, err := f.ledger.Ingest(ctx, event)
	require.NoError(t, err)
	_, err = f.ledger.Claim(ctx, "pod-a-worker-0", 1)
	require.NoError(t, err)
	require.NoError(t, f.ledger.RecoverOwn(ctx, "pod-a"))

	w := f.do(http.MethodPost, "/api/v1/events/relational/42/release", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "PENDING", decode(t, w)["status"])

	// Releasing again conflicts; unknown rows 404.
	w = f.do(http.MethodPost, "/api/v1/events/relational/42/release", nil, true)
	assert.Equal(t, http.StatusConflict, w.Code)
	w = f.do(http.MethodPost, "/api/v1/events/relational/999/release", nil, true)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = f.do(http.MethodPost, "/api/v1/events/relational/not-a-number/release", nil, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func seedDLQEntry(t *testing.T, f *serverFixture) *models.DLQEntry {
	t.Helper()
	entry := &models.DLQEntry{
		TraceID:       "trace-1",
		IntegrationID: "int-1",
		TenantID:      10,
		Payload:       models.Payload{"id": "evt-1"},
		Error:         models.ErrorDetail{Message: "boom", Category: models.CategoryServerError},
	}
	require.NoError(t, f.dlq.Record(context.Background(), entry))
	return entry
}

func TestDLQEndpoints(t *testing.T) {
	f := newServerFixture(t, aliveProbes(), nil)
	entry := seedDLQEntry(t, f)

	w := f.do(http.MethodGet, "/api/v1/dlq", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["count"])

	w = f.do(http.MethodGet, "/api/v1/dlq?status=resolved", nil, true)
	assert.Equal(t, float64(0), decode(t, w)["count"])

	w = f.do(http.MethodGet, "/api/v1/dlq?tenantId=abc", nil, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodGet, "/api/v1/dlq?category=NOT_A_CATEGORY", nil, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodGet, "/api/v1/dlq/"+entry.ID, nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, entry.ID, decode(t, w)["dlqId"])

	w = f.do(http.MethodGet, "/api/v1/dlq/missing", nil, true)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(http.MethodGet, "/api/v1/dlq/stats", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["pending"])
}

func TestDLQAbandonAndDelete(t *testing.T) {
	f := newServerFixture(t, aliveProbes(), nil)
	entry := seedDLQEntry(t, f)

	w := f.do(http.MethodPost, "/api/v1/dlq/"+entry.ID+"/abandon", map[string]any{
		"by": "oncall", "notes": "target gone",
	}, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abandoned", decode(t, w)["status"])

	// Abandoning a terminal entry conflicts.
	w = f.do(http.MethodPost, "/api/v1/dlq/"+entry.ID+"/abandon", nil, true)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(http.MethodDelete, "/api/v1/dlq/"+entry.ID, nil, true)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = f.do(http.MethodDelete, "/api/v1/dlq/"+entry.ID, nil, true)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDLQBulk(t *testing.T) {
	f := newServerFixture(t, aliveProbes(), nil)
	entry := seedDLQEntry(t, f)

	w := f.do(http.MethodPost, "/api/v1/dlq/bulk/abandon", map[string]any{
		"ids": []string{entry.ID, "missing"},
	}, true)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, []any{entry.ID}, body["succeeded"])
	assert.Equal(t, map[string]any{"missing": "not found"}, body["failed"])

	w = f.do(http.MethodPost, "/api/v1/dlq/bulk/retry", map[string]any{"ids": []string{}}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code, "empty id list rejected")

	ids := make([]string, dlq.BulkLimit+1)
	for i := range ids {
		ids[i] = "x"
	}
	w = f.do(http.MethodPost, "/api/v1/dlq/bulk/delete", map[string]any{"ids": ids}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExecutionLogEndpoints(t *testing.T) {
	f := newServerFixture(t, aliveProbes(), nil)
	recorder := execlog.NewRecorder(f.stores.ExecLogs, config.DefaultRedactionConfig(), nil)
	trace := recorder.Begin(models.ExecutionLog{
		TraceID: "trace-9", MessageID: "msg-9", IntegrationID: "int-1", TenantID: 10,
		Direction: models.DirectionOutbound,
	})
	_ = trace.Step("transform", func() (map[string]any, error) { return nil, nil })
	trace.Finish(context.Background(), models.ExecSuccess, nil)

	w := f.do(http.MethodGet, "/api/v1/execution-logs?tenantId=10", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["count"])

	w = f.do(http.MethodGet, "/api/v1/execution-logs/trace-9", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "trace-9", decode(t, w)["traceId"])

	w = f.do(http.MethodGet, "/api/v1/execution-logs/trace-9/timeline", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	timeline := decode(t, w)
	assert.Equal(t, "success", timeline["status"])
	assert.Len(t, timeline["steps"], 1)

	w = f.do(http.MethodGet, "/api/v1/execution-logs/missing", nil, true)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestInboundProxy(t *testing.T) {
	f := newServerFixture(t, aliveProbes(), nil)

	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"created":true}`))
	}))
	defer target.Close()

	ic := &models.IntegrationConfig{
		ID:          "inbound-1",
		TenantID:    77,
		Direction:   models.DirectionInbound,
		IsActive:    true,
		EventType:   "referral",
		TargetURL:   target.URL,
		InboundAuth: &models.AuthSpec{Type: models.AuthAPIKey, APIKey: "caller-key"},
	}
	require.NoError(t, f.stores.Integrations.Save(context.Background(), ic))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/integrations/referral?orgId=77",
		bytes.NewBufferString(`{"referralId":"r-1"}`))
	req.Header.Set("X-Api-Key", "caller-key")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"created":true}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))

	// Wrong caller credential maps to 401.
	req = httptest.NewRequest(http.MethodPost, "/api/v1/integrations/referral?orgId=77",
		bytes.NewBufferString(`{}`))
	req.Header.Set("X-Api-Key", "wrong")
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// No matching integration or missing orgId.
	w = f.do(http.MethodPost, "/api/v1/integrations/unknown-type?orgId=77", map[string]any{}, false)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = f.do(http.MethodPost, "/api/v1/integrations/referral", map[string]any{}, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSystemConfigEndpoints(t *testing.T) {
	f := newServerFixture(t, aliveProbes(), func() bool { return true })

	w := f.do(http.MethodGet, "/api/v1/system-config/features", nil, true)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(http.MethodPut, "/api/v1/system-config/features", map[string]any{"dlqAutoRetry": true}, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "features", decode(t, w)["key"])

	w = f.do(http.MethodGet, "/api/v1/system-config/features", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	value := decode(t, w)["value"].(map[string]any)
	assert.Equal(t, true, value["dlqAutoRetry"])

	w = f.do(http.MethodGet, "/api/v1/system-config", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["count"])

	w = f.do(http.MethodDelete, "/api/v1/system-config/features", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	w = f.do(http.MethodDelete, "/api/v1/system-config/features", nil, true)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(http.MethodGet, "/api/v1/system-config", nil, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
