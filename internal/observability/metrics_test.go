package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, metrics *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsHandlerExposesPrometheusMetrics(t *testing.T) {
	metrics := NewMetrics()
	metrics.SetBackendUp(true)

	body := scrape(t, metrics)
	require.Contains(t, body, "xuanji_backend_up 1")
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	require.Contains(t, body, `xuanji_http_requests_total{code="418",route="/test"} 1`)
	require.Contains(t, body, `xuanji_http_request_duration_seconds_bucket{route="/test"`)
}

func TestObserveSubmission(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveSubmission("ssq", "success", 300*time.Millisecond)
	metrics.ObserveSubmission("ssq", "validation_error", 0)
	metrics.ObserveSubmission("ssq", "validation_error", 0)

	body := scrape(t, metrics)
	require.Contains(t, body, `xuanji_panel_submissions_total{outcome="success",panel="ssq"} 1`)
	require.Contains(t, body, `xuanji_panel_submissions_total{outcome="validation_error",panel="ssq"} 2`)
	require.Contains(t, body, `xuanji_panel_submission_duration_seconds_count{panel="ssq"} 1`)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.ObserveSubmission("ssq", "success", time.Second)
	metrics.SetBackendUp(false)

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.True(t, strings.HasPrefix(rr.Header().Get("Content-Type"), "text/plain"))
}
