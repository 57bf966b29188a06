package httpapi

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/dusk-indust/reportgen/internal/logger"
)

// RouterConfig wires the HTTP surface.
type RouterConfig struct {
	Reports *ReportsHandler

	// Events enables GET /v1/events when set.
	Events *EventsHandler

	// CORSOrigins enables CORS for the listed origins when non-empty.
	CORSOrigins []string

	// ServiceName names the otelgin server spans. Empty disables them.
	ServiceName string

	Logger *logger.Logger
}

// NewRouter builds the gin engine.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		router.Use(otelgin.Middleware(cfg.ServiceName))
	}
	router.Use(TraceContext(), RequestLogger(cfg.Logger))
	if len(cfg.CORSOrigins) > 0 {
		router.Use(CORS(cfg.CORSOrigins))
	}

	router.GET("/healthz", HealthCheck)

	v1 := router.Group("/v1")
	{
		v1.GET("/reports", cfg.Reports.List)

		reports := v1.Group("/reports/:subject/:variant")
		reports.POST("", cfg.Reports.Initiate)
		reports.GET("/progress", cfg.Reports.Progress)
		reports.GET("/document", cfg.Reports.Document)
		reports.POST("/sections/:section/regenerate", cfg.Reports.Regenerate)

		v1.POST("/admin/sweep", cfg.Reports.Sweep)

		if cfg.Events != nil {
			v1.GET("/events", cfg.Events.Stream)
		}
	}

	return router
}
