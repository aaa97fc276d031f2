package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/PriorityCraft/internal/domain/judgment"
	"github.com/turtacn/PriorityCraft/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorityCraft/pkg/types/decision"
)

// CalculationService is the orchestrator surface the handler depends on.
type CalculationService interface {
	StartRun(ctx context.Context, opts decision.CalculationOptions) (decision.RunStatus, error)
	Status(runID string) (decision.RunStatus, error)
	Result(runID string) (*decision.CalculationResult, error)
	Cancel(runID string) error
	Sensitivity(ctx context.Context, filter string) (map[string]judgment.Margin, error)
}

// CalculationHandler serves the calculation run lifecycle.
type CalculationHandler struct {
	service CalculationService
	logger  logging.Logger
}

// NewCalculationHandler builds the handler.
func NewCalculationHandler(service CalculationService, log logging.Logger) *CalculationHandler {
	return &CalculationHandler{service: service, logger: log.Named("calculation_handler")}
}

// StartRun kicks off an asynchronous calculation and returns 202 with the
// run's initial status.  The caller polls GET /calculations/:id.
func (h *CalculationHandler) StartRun(c *gin.Context) {
	var opts decision.CalculationOptions
	if err := c.ShouldBindJSON(&opts); err != nil && c.Request.ContentLength > 0 {
		respondBadRequest(c, err)
		return
	}

	status, err := h.service.StartRun(c.Request.Context(), opts)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusAccepted, status)
}

// Status reports a run's state and progress.
func (h *CalculationHandler) Status(c *gin.Context) {
	status, err := h.service.Status(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, status)
}

// Result returns a finished run's ranking and audit.  An unfinished run
// yields a conflict so the caller knows to keep polling.
func (h *CalculationHandler) Result(c *gin.Context) {
	result, err := h.service.Result(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, result)
}

// Items returns a finished run's ranked items without the audit wrapper.
func (h *CalculationHandler) Items(c *gin.Context) {
	result, err := h.service.Result(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	items := result.RankedItems
	if items == nil {
		items = []decision.RankedItem{}
	}
	respond(c, http.StatusOK, items)
}

// Cancel requests cooperative cancellation; items already scored survive as
// a partial result.
func (h *CalculationHandler) Cancel(c *gin.Context) {
	if err := h.service.Cancel(c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusAccepted, gin.H{"run_id": c.Param("id"), "cancelling": true})
}

// Sensitivity reports, per criterion, how far the active weights can move
// before the top-ranked items reorder.
func (h *CalculationHandler) Sensitivity(c *gin.Context) {
	margins, err := h.service.Sensitivity(c.Request.Context(), c.Query("filter"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, margins)
}
