// Package handlers implements the engine's HTTP endpoints: comparison
// submission and weight approval, calculation run lifecycle, sensitivity
// analysis, and health probes.
package handlers

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/PriorityCraft/internal/interfaces/http/middleware"
	"github.com/turtacn/PriorityCraft/pkg/errors"
	"github.com/turtacn/PriorityCraft/pkg/types/common"
)

// respond writes the standard success envelope.
func respond(c *gin.Context, status int, data interface{}) {
	resp := common.NewSuccessResponse(data)
	resp.RequestID = middleware.GetRequestID(c)
	c.JSON(status, resp)
}

// respondError maps an application error to its HTTP status and writes the
// standard error envelope.  Internal details are masked; the code and the
// top-level message survive.
func respondError(c *gin.Context, err error) {
	code := errors.GetCode(err)
	status := errors.HTTPStatusForCode(code)

	message := errors.DefaultMessageForCode(code)
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) && !errors.IsServerError(code) {
		message = appErr.Message
	}

	resp := common.NewErrorResponse(code.String(), message)
	resp.RequestID = middleware.GetRequestID(c)
	c.AbortWithStatusJSON(status, resp)
}

// respondBadRequest rejects an unparseable or invalid request body.
func respondBadRequest(c *gin.Context, err error) {
	resp := common.NewErrorResponse(errors.ErrCodeBadRequest.String(), err.Error())
	resp.RequestID = middleware.GetRequestID(c)
	c.AbortWithStatusJSON(http.StatusBadRequest, resp)
}
