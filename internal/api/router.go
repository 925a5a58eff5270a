package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/visitrack/internal/api/handlers"
	"github.com/your-org/visitrack/internal/api/ws"
	"github.com/your-org/visitrack/internal/auth"
)

type RouterConfig struct {
	APIKeys   []string
	Runs      handlers.RunStore
	Publisher handlers.RunPublisher
	Reports   handlers.ReportReader
	Checks    map[string]handlers.Check
	Hub       *ws.Hub
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.Checks)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKeys))

	// WebSocket
	if cfg.Hub != nil {
		v1.GET("/ws", cfg.Hub.HandleWS)
	}

	// Runs
	runH := handlers.NewRunHandler(cfg.Runs, cfg.Publisher, cfg.Reports)
	v1.POST("/venues/:id/runs", runH.Create)
	v1.GET("/venues/:id/runs", runH.List)
	v1.GET("/runs/:id", runH.Get)
	v1.GET("/runs/:id/associations", runH.Associations)
	v1.GET("/runs/:id/journeys", runH.Journeys)
	v1.GET("/runs/:id/report", runH.Report)

	return r
}
