package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ParalexLabs/hyvbase/internal/config"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Port:             "0",
		Env:              "test",
		LogLevel:         "error",
		SecurityLevel:    "medium",
		AuditLogPath:     filepath.Join(t.TempDir(), "audit.jsonl"),
		AuditMemoryLimit: 100,
		RateLimitRPM:     10000,
	}
	srv, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = srv.auditLog.Close()
	})

	// The default business-hours policy makes wall-clock tests flaky;
	// disable it so validation outcomes depend only on request content.
	w := doRequest(t, srv, http.MethodPost, "/v1/policies/time_restriction/disable", nil)
	require.Equal(t, http.StatusOK, w.Code)

	return srv
}

func doRequest(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealthEndpoints(t *testing.T) {
	srv := testServer(t)

	w := doRequest(t, srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, srv, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Readiness flips on only when Run starts
	w = doRequest(t, srv, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := testServer(t)
	w := doRequest(t, srv, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "hyvbase_")
}

func TestValidateApproves(t *testing.T) {
	srv := testServer(t)

	w := doRequest(t, srv, http.MethodPost, "/v1/validate", map[string]interface{}{
		"operation_type": "read",
		"context":        map[string]interface{}{"agent_id": "agent-1"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	out := decode(t, w)
	assert.Equal(t, true, out["approved"])
	assert.Less(t, out["risk_score"].(float64), 70.0)
}

func TestValidateRejectsSelfSwap(t *testing.T) {
	srv := testServer(t)

	w := doRequest(t, srv, http.MethodPost, "/v1/validate", map[string]interface{}{
		"operation_type": "swap",
		"payload": map[string]interface{}{
			"amount":     1.0,
			"token_from": "ETH",
			"token_to":   "ETH",
		},
		"context": map[string]interface{}{"agent_id": "agent-1"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	out := decode(t, w)
	assert.Equal(t, false, out["approved"])
	assert.Contains(t, out["violations"], "Cannot swap token to itself")
}

func TestValidateRequiresOperationType(t *testing.T) {
	srv := testServer(t)
	w := doRequest(t, srv, http.MethodPost, "/v1/validate", map[string]interface{}{
		"payload": map[string]interface{}{},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPolicyCRUD(t *testing.T) {
	srv := testServer(t)

	// Defaults are seeded
	w := doRequest(t, srv, http.MethodGet, "/v1/policies", nil)
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	assert.Equal(t, 3.0, out["count"])

	// Create
	w = doRequest(t, srv, http.MethodPost, "/v1/policies", map[string]interface{}{
		"id":   "amount_cap",
		"name": "Amount Cap",
		"kind": "amount_restriction",
		"parameters": map[string]interface{}{
			"max_amount": 500.0,
		},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	// Read back
	w = doRequest(t, srv, http.MethodGet, "/v1/policies/amount_cap", nil)
	require.Equal(t, http.StatusOK, w.Code)
	out = decode(t, w)
	assert.Equal(t, "Amount Cap", out["name"])

	// Duplicate id conflicts
	w = doRequest(t, srv, http.MethodPost, "/v1/policies", map[string]interface{}{
		"id":   "amount_cap",
		"name": "Amount Cap",
		"kind": "amount_restriction",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	// The new policy enforces
	w = doRequest(t, srv, http.MethodPost, "/v1/validate", map[string]interface{}{
		"operation_type": "transfer",
		"payload":        map[string]interface{}{"amount": 900.0, "token": "USDC"},
		"context":        map[string]interface{}{"agent_id": "agent-1"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	out = decode(t, w)
	assert.Equal(t, false, out["approved"])

	// Disable stops enforcement
	w = doRequest(t, srv, http.MethodPost, "/v1/policies/amount_cap/disable", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, srv, http.MethodPost, "/v1/validate", map[string]interface{}{
		"operation_type": "transfer",
		"payload":        map[string]interface{}{"amount": 900.0, "token": "USDC"},
		"context":        map[string]interface{}{"agent_id": "agent-1"},
	})
	out = decode(t, w)
	assert.Equal(t, true, out["approved"])

	// Delete
	w = doRequest(t, srv, http.MethodDelete, "/v1/policies/amount_cap", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, srv, http.MethodGet, "/v1/policies/amount_cap", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPolicyNotFound(t *testing.T) {
	srv := testServer(t)
	w := doRequest(t, srv, http.MethodGet, "/v1/policies/no_such_policy", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(t, srv, http.MethodPost, "/v1/policies/no_such_policy/enable", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPolicyInvalidKindRejected(t *testing.T) {
	srv := testServer(t)
	w := doRequest(t, srv, http.MethodPost, "/v1/policies", map[string]interface{}{
		"name": "Bad",
		"kind": "no_such_kind",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuditEventsEndpoint(t *testing.T) {
	srv := testServer(t)

	// Produce some events
	doRequest(t, srv, http.MethodPost, "/v1/validate", map[string]interface{}{
		"operation_type": "read",
		"context":        map[string]interface{}{"agent_id": "agent-1"},
	})

	w := doRequest(t, srv, http.MethodGet, "/v1/audit/events?event_type=operation_validation_complete", nil)
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	assert.GreaterOrEqual(t, out["count"].(float64), 1.0)

	// Bad filter values are rejected
	w = doRequest(t, srv, http.MethodGet, "/v1/audit/events?since=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, srv, http.MethodGet, "/v1/audit/events?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSecurityReportEndpoint(t *testing.T) {
	srv := testServer(t)
	w := doRequest(t, srv, http.MethodGet, "/v1/security/report", nil)
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	assert.Equal(t, "medium", out["security_level"])
	assert.Equal(t, 3.0, out["policy_count"])
}

func TestSecurityMetricsEndpoint(t *testing.T) {
	srv := testServer(t)
	w := doRequest(t, srv, http.MethodGet, "/v1/security/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	assert.Contains(t, out, "realtime")
	assert.Contains(t, out, "audit")
}

func TestRequestIDHeader(t *testing.T) {
	srv := testServer(t)
	w := doRequest(t, srv, http.MethodGet, "/health", nil)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestInvalidIDParamRejected(t *testing.T) {
	srv := testServer(t)
	w := doRequest(t, srv, http.MethodGet, "/v1/policies/bad%3Bid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
