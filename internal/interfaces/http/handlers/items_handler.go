package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/PriorityCraft/internal/infrastructure/monitoring/logging"
)

// ItemEventPublisher forwards item-change notifications onto the event
// stream; the worker consumes them and triggers incremental recalculation.
type ItemEventPublisher interface {
	ItemsChanged(ctx context.Context, itemIDs []string, source string) error
}

// ItemsHandler accepts change notifications from upstream item systems
// that cannot talk to Kafka directly.
type ItemsHandler struct {
	publisher ItemEventPublisher
	logger    logging.Logger
}

// NewItemsHandler builds the handler.
func NewItemsHandler(publisher ItemEventPublisher, log logging.Logger) *ItemsHandler {
	return &ItemsHandler{publisher: publisher, logger: log.Named("items_handler")}
}

// ItemsChangedRequest is the POST /items/changed body.
type ItemsChangedRequest struct {
	ItemIDs []string `json:"item_ids" binding:"required,min=1"`
	Source  string   `json:"source" binding:"required"`
}

// ItemsChangedResult acknowledges an accepted notification.
type ItemsChangedResult struct {
	Accepted int `json:"accepted"`
}

// Changed publishes an item-change event.  202: the recalculation happens
// asynchronously once a worker picks the event up.
func (h *ItemsHandler) Changed(c *gin.Context) {
	var req ItemsChangedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	if err := h.publisher.ItemsChanged(c.Request.Context(), req.ItemIDs, req.Source); err != nil {
		respondError(c, err)
		return
	}

	h.logger.Info("item change notification accepted",
		logging.Int("items", len(req.ItemIDs)),
		logging.String("source", req.Source),
	)
	respond(c, http.StatusAccepted, ItemsChangedResult{Accepted: len(req.ItemIDs)})
}
