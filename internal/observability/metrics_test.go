package observability

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestMetrics_WritePrometheus(t *testing.T) {
	m := newMetrics()
	m.ObserveAPI("POST", "/sns", "200", 20*time.Millisecond)
	m.IncIngestOutcome("inserted", "source_dataset")
	m.IncIngestOutcome("inserted", "source_dataset")
	m.IncValidationDispatch("requested")
	m.ObserveAggregateOperation("atlas.file_ingestion.ingest", "success", time.Millisecond)

	var buf bytes.Buffer
	if err := m.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		`atlas_api_requests_total{method="POST",route="/sns",status="200"} 1.000000`,
		`atlas_ingest_outcomes_total{outcome="inserted",file_type="source_dataset"} 2.000000`,
		`atlas_validation_dispatch_total{result="requested"} 1.000000`,
		`atlas_aggregate_operation_duration_seconds_count{operation="atlas.file_ingestion.ingest"} 1`,
		"# TYPE atlas_api_inflight_requests gauge",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in output:\n%s", want, out)
		}
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveAPI("GET", "/", "200", time.Millisecond)
	m.IncIngestOutcome("discarded", "")
	m.ApiInflightInc()
	if err := m.WritePrometheus(&bytes.Buffer{}); err != nil {
		t.Fatalf("nil metrics should not error: %v", err)
	}
}

func TestHistogramVec_CumulativeBuckets(t *testing.T) {
	h := NewHistogramVec("h", "help", []string{"op"}, []float64{1, 2})
	h.Observe(0.5, "a")
	h.Observe(1.5, "a")
	h.Observe(3, "a")

	var buf bytes.Buffer
	if err := h.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		`h_bucket{op="a",le="1"} 1`,
		`h_bucket{op="a",le="2"} 2`,
		`h_bucket{op="a",le="+Inf"} 3`,
		`h_count{op="a"} 3`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in output:\n%s", want, out)
		}
	}
}

func TestGauge_IncDec(t *testing.T) {
	g := NewGauge("g", "help")
	g.Inc()
	g.Inc()
	g.Dec()
	if got := g.Value(); got != 1 {
		t.Fatalf("gauge: want=1 got=%v", got)
	}
}
