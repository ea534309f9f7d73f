package aggregates

import (
	"time"

	"github.com/yungbote/atlas-ingest/internal/observability"
)

// Hooks receives one ObserveOperation per aggregate write, plus a counter bump when the
// write failed with a conflict or a retryable error.
type Hooks interface {
	ObserveOperation(op, status string, dur time.Duration)
	IncConflict(op string)
	IncRetry(op string)
}

type nopHooks struct{}

func (nopHooks) ObserveOperation(string, string, time.Duration) {}
func (nopHooks) IncConflict(string)                             {}
func (nopHooks) IncRetry(string)                                {}

type metricsHooks struct {
	m *observability.Metrics
}

// NewObservabilityHooks reports aggregate writes to m. A nil registry observes nothing.
func NewObservabilityHooks(m *observability.Metrics) Hooks {
	if m == nil {
		return nopHooks{}
	}
	return metricsHooks{m: m}
}

func (h metricsHooks) ObserveOperation(op, status string, dur time.Duration) {
	h.m.ObserveAggregateOperation(op, status, dur)
}

func (h metricsHooks) IncConflict(op string) { h.m.IncAggregateConflict(op) }
func (h metricsHooks) IncRetry(op string)    { h.m.IncAggregateRetry(op) }
