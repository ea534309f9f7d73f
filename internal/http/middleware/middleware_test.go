package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/atlas-ingest/internal/observability"
	"github.com/yungbote/atlas-ingest/internal/platform/ctxutil"
	"github.com/yungbote/atlas-ingest/internal/platform/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestAttachTraceContext_UsesRelayMessageID(t *testing.T) {
	r := gin.New()
	r.Use(AttachTraceContext())
	var got *ctxutil.TraceData
	r.POST("/sns", func(c *gin.Context) {
		got = ctxutil.GetTraceData(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/sns", nil)
	req.Header.Set("x-amz-sns-message-id", "msg-123")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if got == nil {
		t.Fatalf("trace data not attached")
	}
	if got.RequestID != "msg-123" {
		t.Fatalf("request id = %q, want msg-123", got.RequestID)
	}
	if got.TraceID == "" {
		t.Fatalf("expected generated trace id")
	}
	if h := rec.Header().Get(headerRequestID); h != "msg-123" {
		t.Fatalf("response request id header = %q", h)
	}
}

func TestAttachTraceContext_ExplicitHeadersWin(t *testing.T) {
	r := gin.New()
	r.Use(AttachTraceContext())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(headerRequestID, "req-1")
	req.Header.Set(headerSNSMessageID, "msg-1")
	req.Header.Set(headerTraceID, "trace-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if h := rec.Header().Get(headerRequestID); h != "req-1" {
		t.Fatalf("request id = %q, want req-1", h)
	}
	if h := rec.Header().Get(headerTraceID); h != "trace-1" {
		t.Fatalf("trace id = %q, want trace-1", h)
	}
}

func TestLimitBody_FailsReadsPastCap(t *testing.T) {
	r := gin.New()
	var readErr error
	r.POST("/sns", LimitBody(8), func(c *gin.Context) {
		_, readErr = io.ReadAll(c.Request.Body)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/sns", bytes.NewBufferString(strings.Repeat("x", 32)))
	r.ServeHTTP(httptest.NewRecorder(), req)
	if readErr == nil {
		t.Fatalf("expected read error past the body cap")
	}

	req = httptest.NewRequest(http.MethodPost, "/sns", bytes.NewBufferString("small"))
	r.ServeHTTP(httptest.NewRecorder(), req)
	if readErr != nil {
		t.Fatalf("unexpected read error under the cap: %v", readErr)
	}
}

func TestRequestLogger_NilLoggerPassesThrough(t *testing.T) {
	r := gin.New()
	r.Use(RequestLogger(nil))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRequestLogger_LogsRelayHeaders(t *testing.T) {
	r := gin.New()
	r.Use(RequestLogger(logger.Nop()))
	r.POST("/sns", func(c *gin.Context) { c.Status(http.StatusBadRequest) })

	req := httptest.NewRequest(http.MethodPost, "/sns", nil)
	req.Header.Set(snsMessageTypeHeader, "Notification")
	req.Header.Set(snsTopicArnHeader, "arn:aws:sns:us-east-1:123456789012:atlas")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestMetrics_RecordsRouteTemplate(t *testing.T) {
	t.Setenv("METRICS_ENABLED", "true")
	m := observability.Init(nil)
	if m == nil {
		t.Fatalf("metrics not initialized")
	}

	r := gin.New()
	r.Use(Metrics(m))
	r.GET("/files/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/files/abc", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

	var buf bytes.Buffer
	if err := m.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		`atlas_api_requests_total{method="GET",route="/files/:id",status="200"} 1.000000`,
		`atlas_api_requests_total{method="GET",route="unmatched",status="404"} 1.000000`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in output:\n%s", want, out)
		}
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	r := gin.New()
	r.Use(Metrics(nil))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}
