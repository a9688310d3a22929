package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"feedflow/config"
	"feedflow/internal/metrics"
	"feedflow/logger"
)

func newTestRouter(t *testing.T, srv *Server) http.Handler {
	t.Helper()

	router, err := srv.buildRouter("feedflow")
	if err != nil {
		t.Fatalf("buildRouter error: %v", err)
	}
	return router
}

func TestMetricsEndpointEmitsStoredMetrics(t *testing.T) {
	log := logger.Logger()
	srv, err := NewServer(config.DashboardConfig{Enabled: true, RefreshIntervalMs: 1000, MetricsHistory: 10, LogHistory: 10}, log)
	if err != nil {
		t.Fatalf("NewServer error: %v", err)
	}
	if srv == nil {
		t.Fatal("expected non-nil server")
	}
	t.Cleanup(srv.cleanup)

	metrics.EmitMetric(log, "channel_buffers", "bba_raw_buffer_length", 5, "gauge", logger.Fields{"capacity": 10})

	router := newTestRouter(t, srv)

	req := httptest.NewRequest(http.MethodGet, "/api/metrics", nil)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("unexpected status code: %d", res.Code)
	}
	if len(srv.metricStore.snapshot()) == 0 {
		t.Fatalf("metrics store empty")
	}
}

func TestHealthzEndpoint(t *testing.T) {
	srv, err := NewServer(config.DashboardConfig{Enabled: true}, logger.Logger())
	if err != nil {
		t.Fatalf("NewServer error: %v", err)
	}
	t.Cleanup(srv.cleanup)

	router := newTestRouter(t, srv)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("unexpected status code: %d", res.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid healthz body: %v", err)
	}
	if body["status"] != "ok" || body["app"] != "feedflow" {
		t.Fatalf("unexpected healthz body: %v", body)
	}
}

func TestStatsEndpointUsesConfiguredSource(t *testing.T) {
	srv, err := NewServer(config.DashboardConfig{Enabled: true}, logger.Logger())
	if err != nil {
		t.Fatalf("NewServer error: %v", err)
	}
	t.Cleanup(srv.cleanup)

	srv.SetStatsSource(func() map[string]any {
		return map[string]any{"events_published": 12}
	})

	router := newTestRouter(t, srv)

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("unexpected status code: %d", res.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid stats body: %v", err)
	}
	if body["events_published"] != float64(12) {
		t.Fatalf("unexpected stats body: %v", body)
	}
}

func TestPrometheusEndpoint(t *testing.T) {
	metrics.Init()
	metrics.IncrementDecoded("btcusdt")

	srv, err := NewServer(config.DashboardConfig{Enabled: true}, logger.Logger())
	if err != nil {
		t.Fatalf("NewServer error: %v", err)
	}
	t.Cleanup(srv.cleanup)

	router := newTestRouter(t, srv)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("unexpected status code: %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "feedflow_events_decoded_total") {
		t.Fatalf("prometheus output missing feed counters")
	}
}
