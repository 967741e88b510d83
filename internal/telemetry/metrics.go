package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	EventsReceived  = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "pipelinewatch_events_received_total", Help: "Job watch events received by type"}, []string{"type"})
	EventsSkipped   = prometheus.NewCounter(prometheus.CounterOpts{Name: "pipelinewatch_events_skipped_total", Help: "Events dropped by the modified/finalizer filter"})
	EventErrors     = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "pipelinewatch_event_errors_total", Help: "Per-event processing errors by kind"}, []string{"kind"})
	JobsReaped      = prometheus.NewCounter(prometheus.CounterOpts{Name: "pipelinewatch_jobs_reaped_total", Help: "Finished jobs deleted"})
	ReapErrors      = prometheus.NewCounter(prometheus.CounterOpts{Name: "pipelinewatch_reap_errors_total", Help: "Job deletions that failed"})
	FailuresHandled = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "pipelinewatch_failures_handled_total", Help: "Failed pipeline jobs reported by pipeline and zone"}, []string{"pipeline", "zone"})
	StatusUpdates   = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "pipelinewatch_status_updates_total", Help: "Task status updates by outcome"}, []string{"outcome"})
	Lookups         = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "pipelinewatch_resource_lookups_total", Help: "Resource lookups by strategy and outcome"}, []string{"strategy", "outcome"})
	WatchConnected  = prometheus.NewGauge(prometheus.GaugeOpts{Name: "pipelinewatch_watch_connected", Help: "1 while a job watch stream is open"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			EventsReceived,
			EventsSkipped,
			EventErrors,
			JobsReaped,
			ReapErrors,
			FailuresHandled,
			StatusUpdates,
			Lookups,
			WatchConnected,
		)
	})
	return promhttp.Handler()
}
