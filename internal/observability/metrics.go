package observability

import (
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/yungbote/atlas-ingest/internal/platform/envutil"
	"github.com/yungbote/atlas-ingest/internal/platform/logger"
)

type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *Gauge

	aggregateOps       *CounterVec
	aggregateLatency   *HistogramVec
	aggregateConflicts *CounterVec
	aggregateRetries   *CounterVec

	ingestOutcomes     *CounterVec
	validationDispatch *CounterVec
	eventsPublished    *CounterVec
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", false)
}

// Current returns the process metrics, or nil when metrics are disabled.
func Current() *Metrics {
	return instance
}

func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = newMetrics()
		if log != nil {
			log.Info("metrics enabled")
		}
	})
	return instance
}

func newMetrics() *Metrics {
	return &Metrics{
		apiRequests: NewCounterVec("atlas_api_requests_total", "Total API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency: NewHistogramVec(
			"atlas_api_request_duration_seconds",
			"API request latency in seconds by method/route/status.",
			[]string{"method", "route", "status"},
			[]float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		),
		apiInflight: NewGauge("atlas_api_inflight_requests", "In-flight API requests."),

		aggregateOps: NewCounterVec("atlas_aggregate_operations_total", "Aggregate write operations by name/status.", []string{"operation", "status"}),
		aggregateLatency: NewHistogramVec(
			"atlas_aggregate_operation_duration_seconds",
			"Aggregate write latency in seconds.",
			[]string{"operation"},
			nil,
		),
		aggregateConflicts: NewCounterVec("atlas_aggregate_conflicts_total", "Aggregate writes rejected as conflicts.", []string{"operation"}),
		aggregateRetries:   NewCounterVec("atlas_aggregate_retryable_total", "Aggregate writes failed with a retryable error.", []string{"operation"}),

		ingestOutcomes:     NewCounterVec("atlas_ingest_outcomes_total", "File notifications by outcome and file type.", []string{"outcome", "file_type"}),
		validationDispatch: NewCounterVec("atlas_validation_dispatch_total", "Validation job submissions by result.", []string{"result"}),
		eventsPublished:    NewCounterVec("atlas_events_published_total", "Ingest events published by result.", []string{"result"}),
	}
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	writers := []interface{ WritePrometheus(io.Writer) error }{
		m.apiRequests,
		m.apiLatency,
		m.apiInflight,
		m.aggregateOps,
		m.aggregateLatency,
		m.aggregateConflicts,
		m.aggregateRetries,
		m.ingestOutcomes,
		m.validationDispatch,
		m.eventsPublished,
	}
	for _, mw := range writers {
		if err := mw.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	if status == "" {
		status = "0"
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route, status)
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ObserveAggregateOperation(name, status string, dur time.Duration) {
	if m == nil {
		return
	}
	name = orUnknown(name)
	m.aggregateOps.Inc(name, orUnknown(status))
	m.aggregateLatency.Observe(dur.Seconds(), name)
}

func (m *Metrics) IncAggregateConflict(name string) {
	if m == nil {
		return
	}
	m.aggregateConflicts.Inc(orUnknown(name))
}

func (m *Metrics) IncAggregateRetry(name string) {
	if m == nil {
		return
	}
	m.aggregateRetries.Inc(orUnknown(name))
}

func (m *Metrics) IncIngestOutcome(outcome, fileType string) {
	if m == nil {
		return
	}
	m.ingestOutcomes.Inc(orUnknown(outcome), orUnknown(fileType))
}

func (m *Metrics) IncValidationDispatch(result string) {
	if m == nil {
		return
	}
	m.validationDispatch.Inc(orUnknown(result))
}

func (m *Metrics) IncEventPublished(result string) {
	if m == nil {
		return
	}
	m.eventsPublished.Inc(orUnknown(result))
}

func orUnknown(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "unknown"
	}
	return v
}
