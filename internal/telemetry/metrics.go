package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	EnqueueCounter   = prometheus.NewCounter(prometheus.CounterOpts{Name: "audit_enqueued_total", Help: "Numbers accepted into the audit queue"})
	RateLimitRejects = prometheus.NewCounter(prometheus.CounterOpts{Name: "audit_rate_limit_rejects_total", Help: "Enqueue requests rejected by the rate limiter"})
	AuditProcessed   = prometheus.NewCounter(prometheus.CounterOpts{Name: "audit_processed_total", Help: "Checks that returned a parsable provider response"})
	AuditSkipped     = prometheus.NewCounter(prometheus.CounterOpts{Name: "audit_skipped_total", Help: "Checks skipped on HTTP/JSON/network failures"})
	AuditErrored     = prometheus.NewCounter(prometheus.CounterOpts{Name: "audit_errored_total", Help: "Checks that hit an unexpected fault"})
	QueueDepthGauge  = prometheus.NewGauge(prometheus.GaugeOpts{Name: "audit_queue_depth", Help: "Numbers waiting in the audit queue"})
	ReportRows       = prometheus.NewCounter(prometheus.CounterOpts{Name: "report_rows_total", Help: "Transaction rows labeled across report queries"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			EnqueueCounter,
			RateLimitRejects,
			AuditProcessed,
			AuditSkipped,
			AuditErrored,
			QueueDepthGauge,
			ReportRows,
		)
	})
	return promhttp.Handler()
}
