package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/sports-federation/federation-portal/internal/telemetry"
)

// collectCounter reads the current value from a CounterVec for the given labels.
// Returns 0 if no matching series has been observed yet.
func collectCounter(cv *prometheus.CounterVec, labels prometheus.Labels) float64 {
	ch := make(chan prometheus.Metric, 64)
	cv.Collect(ch)
	close(ch)
	for m := range ch {
		var dm dto.Metric
		if err := m.Write(&dm); err != nil {
			continue
		}
		if hasLabels(&dm, labels) {
			return dm.GetCounter().GetValue()
		}
	}
	return 0
}

// collectHistogramCount returns the sample count from a HistogramVec for the given labels.
func collectHistogramCount(hv *prometheus.HistogramVec, labels prometheus.Labels) uint64 {
	ch := make(chan prometheus.Metric, 64)
	hv.Collect(ch)
	close(ch)
	for m := range ch {
		var dm dto.Metric
		if err := m.Write(&dm); err != nil {
			continue
		}
		if hasLabels(&dm, labels) {
			return dm.GetHistogram().GetSampleCount()
		}
	}
	return 0
}

func hasLabels(dm *dto.Metric, labels prometheus.Labels) bool {
	for k, want := range labels {
		found := false
		for _, lp := range dm.GetLabel() {
			if lp.GetName() == k && lp.GetValue() == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func newMetricsRouter(status int) *gin.Engine {
	r := gin.New()
	r.Use(MetricsMiddleware("/health"))
	r.GET("/api/admin/sessions/:id", func(c *gin.Context) { c.Status(status) })
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func serve(r *gin.Engine, path string) {
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
}

func TestMetricsMiddleware_RecordsRouteTemplate(t *testing.T) {
	labels := prometheus.Labels{"method": "GET", "path": "/api/admin/sessions/:id", "status": "200"}
	before := collectCounter(telemetry.HTTPRequestsTotal, labels)
	beforeHist := collectHistogramCount(telemetry.HTTPRequestDuration, prometheus.Labels{"method": "GET", "path": "/api/admin/sessions/:id"})

	serve(newMetricsRouter(http.StatusOK), "/api/admin/sessions/42")

	if after := collectCounter(telemetry.HTTPRequestsTotal, labels); after-before != 1 {
		t.Errorf("http_requests_total delta = %.0f, want 1", after-before)
	}
	if after := collectHistogramCount(telemetry.HTTPRequestDuration, prometheus.Labels{"method": "GET", "path": "/api/admin/sessions/:id"}); after <= beforeHist {
		t.Errorf("http_request_duration_seconds sample count did not increase")
	}
	if v := collectCounter(telemetry.HTTPRequestsTotal, prometheus.Labels{"path": "/api/admin/sessions/42"}); v != 0 {
		t.Error("raw URL used as path label")
	}
}

func TestMetricsMiddleware_RecordsErrorStatus(t *testing.T) {
	labels := prometheus.Labels{"method": "GET", "path": "/api/admin/sessions/:id", "status": "500"}
	before := collectCounter(telemetry.HTTPRequestsTotal, labels)

	serve(newMetricsRouter(http.StatusInternalServerError), "/api/admin/sessions/err")

	if after := collectCounter(telemetry.HTTPRequestsTotal, labels); after-before != 1 {
		t.Errorf("http_requests_total{status=500} delta = %.0f, want 1", after-before)
	}
}

func TestMetricsMiddleware_NoRouteLabel(t *testing.T) {
	labels := prometheus.Labels{"method": "GET", "path": "<no-route>", "status": "404"}
	before := collectCounter(telemetry.HTTPRequestsTotal, labels)

	serve(newMetricsRouter(http.StatusOK), "/does-not-exist")

	if after := collectCounter(telemetry.HTTPRequestsTotal, labels); after-before != 1 {
		t.Errorf("<no-route> delta = %.0f, want 1", after-before)
	}
}

func TestMetricsMiddleware_SkipsProbePaths(t *testing.T) {
	labels := prometheus.Labels{"method": "GET", "path": "/health"}
	before := collectCounter(telemetry.HTTPRequestsTotal, labels)

	serve(newMetricsRouter(http.StatusOK), "/health")

	if after := collectCounter(telemetry.HTTPRequestsTotal, labels); after != before {
		t.Errorf("/health was recorded: before=%.0f after=%.0f", before, after)
	}
}
