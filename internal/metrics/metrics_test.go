package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gatherCounter(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, m := range fam.GetMetric() {
			if matchesLabels(m, labels) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func matchesLabels(m *dto.Metric, want map[string]string) bool {
	got := make(map[string]string, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

func TestMiddlewareRecordsRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/v1/validate", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	before := gatherCounter(t, "hyvbase_http_requests_total", map[string]string{
		"method": "GET", "path": "/v1/validate", "status": "2xx",
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/validate", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	after := gatherCounter(t, "hyvbase_http_requests_total", map[string]string{
		"method": "GET", "path": "/v1/validate", "status": "2xx",
	})
	if after != before+1 {
		t.Fatalf("requests counter = %v, want %v", after, before+1)
	}
}

func TestValidationCountersByOutcome(t *testing.T) {
	before := gatherCounter(t, "hyvbase_validations_total", map[string]string{
		"operation_type": "trade", "outcome": "rejected",
	})
	ValidationsTotal.WithLabelValues("trade", "rejected").Inc()
	after := gatherCounter(t, "hyvbase_validations_total", map[string]string{
		"operation_type": "trade", "outcome": "rejected",
	})
	if after != before+1 {
		t.Fatalf("validations counter = %v, want %v", after, before+1)
	}
}

func TestStatusBucket(t *testing.T) {
	cases := map[int]string{
		150: "1xx",
		200: "2xx",
		204: "2xx",
		301: "3xx",
		404: "4xx",
		429: "4xx",
		500: "5xx",
		503: "5xx",
	}
	for code, want := range cases {
		if got := statusBucket(code); got != want {
			t.Errorf("statusBucket(%d) = %q, want %q", code, got, want)
		}
	}
}

func TestMetricsHandlerExposesFamilies(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/metrics", Handler())

	ViolationsTotal.WithLabelValues("transaction_validation").Inc()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	for _, name := range []string{
		"hyvbase_validations_total",
		"hyvbase_violations_total",
		"hyvbase_active_websocket_clients",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}
