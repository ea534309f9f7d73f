package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/atlas-ingest/internal/http/handlers"
	httpMW "github.com/yungbote/atlas-ingest/internal/http/middleware"
	"github.com/yungbote/atlas-ingest/internal/http/response"
	"github.com/yungbote/atlas-ingest/internal/observability"
	"github.com/yungbote/atlas-ingest/internal/platform/logger"
)

const defaultMaxBodyBytes = 1 << 20

type RouterConfig struct {
	Log          *logger.Logger
	Metrics      *observability.Metrics
	ServiceName  string
	MaxBodyBytes int64

	HealthHandler       *httpH.HealthHandler
	NotificationHandler *httpH.NotificationHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Recovery())
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "atlas-ingest"
	}
	r.Use(otelgin.Middleware(serviceName))
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))

	r.NoMethod(func(c *gin.Context) {
		response.RespondError(c, http.StatusMethodNotAllowed, "Method not allowed")
	})
	r.NoRoute(func(c *gin.Context) {
		response.RespondError(c, http.StatusNotFound, "Not found")
	})

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapF(cfg.Metrics.WriteHTTP))
	}

	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	api := r.Group("/api")
	{
		// Relay deliveries
		if cfg.NotificationHandler != nil {
			api.POST("/sns", httpMW.LimitBody(maxBody), cfg.NotificationHandler.Receive)
		}
	}

	return r
}
