package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/PriorityCraft/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorityCraft/pkg/types/common"
	"github.com/turtacn/PriorityCraft/pkg/types/decision"
)

// WeightsService is the application surface the handler depends on.
type WeightsService interface {
	SubmitComparisons(ctx context.Context, stakeholder common.StakeholderID, judgments []decision.Judgment) (decision.SubmitResult, error)
	ApproveWeights(ctx context.Context, id common.ID, approver common.StakeholderID) (decision.Approval, bool, error)
	GetVector(id common.ID) (decision.WeightVector, error)
	LatestApproved() (decision.WeightVector, error)
	Approvals(id common.ID) []decision.Approval
}

// WeightsHandler serves comparison submission and weight-vector lifecycle
// endpoints.
type WeightsHandler struct {
	service WeightsService
	logger  logging.Logger
}

// NewWeightsHandler builds the handler.
func NewWeightsHandler(service WeightsService, log logging.Logger) *WeightsHandler {
	return &WeightsHandler{service: service, logger: log.Named("weights_handler")}
}

// SubmitComparisonsRequest is the POST /comparisons body.
type SubmitComparisonsRequest struct {
	StakeholderID string              `json:"stakeholder_id" binding:"required"`
	Judgments     []decision.Judgment `json:"judgments" binding:"required,min=1"`
}

// SubmitComparisons derives a weight vector from pairwise judgments.
// An accepted (or flagged) submission returns 201 with the new vector; a
// consistency rejection returns 422 with the worst-offending pairs so the
// stakeholder can revise.
func (h *WeightsHandler) SubmitComparisons(c *gin.Context) {
	var req SubmitComparisonsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	result, err := h.service.SubmitComparisons(c.Request.Context(),
		common.StakeholderID(req.StakeholderID), req.Judgments)
	if err != nil {
		respondError(c, err)
		return
	}

	if !result.Accepted {
		respond(c, http.StatusUnprocessableEntity, result)
		return
	}
	respond(c, http.StatusCreated, result)
}

// ApproveRequest is the POST /weights/:id/approvals body.
type ApproveRequest struct {
	ApproverID string `json:"approver_id" binding:"required"`
}

// ApprovalResult is the approval endpoint's response payload.
type ApprovalResult struct {
	Approval decision.Approval `json:"approval"`
	Approved bool              `json:"approved"`
}

// Approve records a stakeholder sign-off on a weight vector.
func (h *WeightsHandler) Approve(c *gin.Context) {
	var req ApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	entry, approved, err := h.service.ApproveWeights(c.Request.Context(),
		common.ID(c.Param("id")), common.StakeholderID(req.ApproverID))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, ApprovalResult{Approval: entry, Approved: approved})
}

// Get returns one weight vector by ID.
func (h *WeightsHandler) Get(c *gin.Context) {
	wv, err := h.service.GetVector(common.ID(c.Param("id")))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, wv)
}

// LatestApproved returns the highest-version approved vector.
func (h *WeightsHandler) LatestApproved(c *gin.Context) {
	wv, err := h.service.LatestApproved()
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, wv)
}

// ListApprovals returns the approval audit trail for a vector.
func (h *WeightsHandler) ListApprovals(c *gin.Context) {
	id := common.ID(c.Param("id"))
	if _, err := h.service.GetVector(id); err != nil {
		respondError(c, err)
		return
	}
	approvals := h.service.Approvals(id)
	if approvals == nil {
		approvals = []decision.Approval{}
	}
	respond(c, http.StatusOK, approvals)
}
