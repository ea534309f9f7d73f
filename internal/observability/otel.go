package observability

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/atlas-ingest/internal/platform/envutil"
	"github.com/yungbote/atlas-ingest/internal/platform/logger"
)

const defaultServiceName = "atlas-ingest"

type OtelConfig struct {
	ServiceName string
	Environment string
	Version     string
}

// traceExport is the exporter setup read from the standard OTEL_* variables.
type traceExport struct {
	Endpoint    string
	Insecure    bool
	Headers     map[string]string
	SampleRatio float64
}

func loadTraceExport() traceExport {
	return traceExport{
		Endpoint:    envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		Insecure:    envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", false),
		Headers:     parseHeaderList(envutil.String("OTEL_EXPORTER_OTLP_HEADERS", "")),
		SampleRatio: clampRatio(envutil.Float("OTEL_SAMPLER_RATIO", 0.1)),
	}
}

var (
	otelOnce     sync.Once
	otelShutdown = func(context.Context) error { return nil }
)

// InitOTel installs the global tracer provider when OTEL_ENABLED is set. Without an
// OTLP endpoint spans go to stdout. The returned shutdown func is never nil.
func InitOTel(ctx context.Context, log *logger.Logger, cfg OtelConfig) func(context.Context) error {
	otelOnce.Do(func() {
		if !envutil.Bool("OTEL_ENABLED", false) {
			return
		}
		if log == nil {
			log = logger.Nop()
		}
		name := strings.TrimSpace(cfg.ServiceName)
		if name == "" {
			name = defaultServiceName
		}
		exp := loadTraceExport()

		res, err := resource.New(ctx, resource.WithAttributes(
			semconv.ServiceNameKey.String(name),
			semconv.ServiceVersionKey.String(strings.TrimSpace(cfg.Version)),
			attribute.String("deployment.environment", strings.TrimSpace(cfg.Environment)),
		))
		if err != nil {
			log.Warn("OTel resource incomplete", "error", err)
		}

		opts := []sdktrace.TracerProviderOption{
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(exp.SampleRatio))),
			sdktrace.WithResource(res),
		}
		exporter, err := newSpanExporter(ctx, exp)
		if err != nil {
			log.Warn("OTel exporter unavailable, spans will be dropped", "error", err)
		} else {
			opts = append(opts, sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)))
		}

		tp := sdktrace.NewTracerProvider(opts...)
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
		otelShutdown = tp.Shutdown
		log.Info("OTel tracing enabled", "service", name, "endpoint", exp.Endpoint, "sample_ratio", exp.SampleRatio)
	})
	return otelShutdown
}

// Tracer returns a tracer from the global provider, which is a no-op until InitOTel runs.
func Tracer(component string) trace.Tracer {
	return otel.Tracer(defaultServiceName + "/" + strings.TrimSpace(component))
}

// ObjectAttributes tags a span with the storage location of an ingested object.
func ObjectAttributes(bucket, key string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("s3.bucket", bucket),
		attribute.String("s3.key", key),
	}
}

func newSpanExporter(ctx context.Context, exp traceExport) (sdktrace.SpanExporter, error) {
	if exp.Endpoint == "" {
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	}
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(exp.Endpoint)}
	if exp.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(exp.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(exp.Headers))
	}
	return otlptracehttp.New(ctx, opts...)
}

func clampRatio(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}

// parseHeaderList reads "k1=v1,k2=v2". Entries missing a key or value are skipped.
func parseHeaderList(raw string) map[string]string {
	var out map[string]string
	for _, part := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(part, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			continue
		}
		if out == nil {
			out = map[string]string{}
		}
		out[k] = v
	}
	return out
}
