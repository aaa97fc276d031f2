package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/PriorityCraft/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorityCraft/pkg/types/common"
)

// CheckFunc probes one dependency.  A nil return means healthy.
type CheckFunc func(ctx context.Context) error

// HealthHandler serves liveness and readiness probes.  Liveness is
// unconditional; readiness fans out to the registered dependency checks.
type HealthHandler struct {
	checks map[string]CheckFunc
	logger logging.Logger
}

// NewHealthHandler builds the handler with named dependency checks.
func NewHealthHandler(checks map[string]CheckFunc, log logging.Logger) *HealthHandler {
	return &HealthHandler{checks: checks, logger: log.Named("health_handler")}
}

// Liveness reports that the process is up.
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": string(common.HealthUp)})
}

// readinessReport is the readiness probe response body.
type readinessReport struct {
	Status     common.HealthStatus      `json:"status"`
	Components []common.ComponentHealth `json:"components"`
}

// Readiness probes every dependency with a shared deadline; any failure
// flips the overall status and the response to 503.
func (h *HealthHandler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	report := readinessReport{Status: common.HealthUp}
	for name, check := range h.checks {
		start := time.Now()
		err := check(ctx)
		component := common.ComponentHealth{
			Name:    name,
			Status:  common.HealthUp,
			Latency: time.Since(start),
		}
		if err != nil {
			component.Status = common.HealthDown
			component.Message = err.Error()
			report.Status = common.HealthDown
			h.logger.Warn("readiness check failed",
				logging.String("component", name), logging.Err(err))
		}
		report.Components = append(report.Components, component)
	}

	status := http.StatusOK
	if report.Status != common.HealthUp {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}
