package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"pipelinewatch/internal/config"
	"pipelinewatch/internal/telemetry"
)

type staticReady bool

func (r staticReady) Ready() bool { return bool(r) }

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	rec := get(t, New(config.Config{}, staticReady(false)).Router(), "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", got)
	}
}

func TestReadyz(t *testing.T) {
	cfg := config.Config{Namespace: "greenroom"}

	if rec := get(t, New(cfg, staticReady(false)).Router(), "/readyz"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("not ready: status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	if rec := get(t, New(cfg, nil).Router(), "/readyz"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("nil checker: status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	rec := get(t, New(cfg, staticReady(true)).Router(), "/readyz")
	if rec.Code != http.StatusOK {
		t.Fatalf("ready: status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), "greenroom") {
		t.Errorf("body = %q, should name the namespace", rec.Body.String())
	}
}

func TestMetricsExposesWatcherCounters(t *testing.T) {
	telemetry.JobsReaped.Inc()
	rec := get(t, New(config.Config{}, staticReady(true)).Router(), "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), "pipelinewatch_jobs_reaped_total") {
		t.Errorf("metrics output missing pipelinewatch_jobs_reaped_total")
	}
}
