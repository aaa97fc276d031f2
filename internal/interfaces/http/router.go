// Package http wires the gin route tree and the HTTP server for the
// decision engine's API surface.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/PriorityCraft/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorityCraft/internal/interfaces/http/handlers"
	"github.com/turtacn/PriorityCraft/internal/interfaces/http/middleware"
)

// RouterConfig aggregates the handler and middleware dependencies for the
// complete route tree.
type RouterConfig struct {
	Weights      *handlers.WeightsHandler
	Calculations *handlers.CalculationHandler
	Items        *handlers.ItemsHandler
	Health       *handlers.HealthHandler

	// MetricsHandler serves GET /metrics when non-nil.
	MetricsHandler http.Handler
	// Metrics receives per-request telemetry.
	Metrics middleware.HTTPMetrics

	Mode   string // gin mode: "debug" | "release" | "test"
	Logger logging.Logger
}

// NewRouter builds the engine's route tree: public probes and metrics, then
// the /api/v1 resource groups.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}
	log := cfg.Logger
	if log == nil {
		log = logging.NewNopLogger()
	}

	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(log))
	r.Use(middleware.CORS())
	r.Use(middleware.RequestLogger(log, cfg.Metrics))

	if cfg.Health != nil {
		r.GET("/healthz", cfg.Health.Liveness)
		r.GET("/readyz", cfg.Health.Readiness)
	}
	if cfg.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(cfg.MetricsHandler))
	}

	api := r.Group("/api/v1")
	{
		if cfg.Weights != nil {
			api.POST("/comparisons", cfg.Weights.SubmitComparisons)

			weights := api.Group("/weights")
			{
				weights.GET("/latest", cfg.Weights.LatestApproved)
				weights.GET("/:id", cfg.Weights.Get)
				weights.POST("/:id/approvals", cfg.Weights.Approve)
				weights.GET("/:id/approvals", cfg.Weights.ListApprovals)
			}
		}

		if cfg.Calculations != nil {
			calcs := api.Group("/calculations")
			{
				calcs.POST("", cfg.Calculations.StartRun)
				calcs.GET("/:id", cfg.Calculations.Status)
				calcs.GET("/:id/result", cfg.Calculations.Result)
				calcs.GET("/:id/items", cfg.Calculations.Items)
				calcs.DELETE("/:id", cfg.Calculations.Cancel)
			}
			api.GET("/sensitivity", cfg.Calculations.Sensitivity)
		}

		if cfg.Items != nil {
			api.POST("/items/changed", cfg.Items.Changed)
		}
	}

	return r
}
