package server

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/apperrors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	errorCodeInvalidRequest = "invalid_request"
	errorCodeInternal       = "internal_error"
	errorCodeUnauthorized   = "unauthorized"
)

type errorPayload struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// respondError renders domain errors with their own status and code; anything else is
// logged and reported as an opaque internal error.
func (h *httpHandler) respondError(c *gin.Context, err error) {
	appErr, ok := apperrors.As(err)
	if !ok || appErr.Kind == apperrors.KindInternal {
		fields := []zap.Field{zap.String("route", c.FullPath()), zap.Error(err)}
		if ok {
			fields = append(fields, zap.String("code", appErr.Code))
		}
		h.logger.Error("request failed", fields...)
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorPayload{Error: errorCodeInternal, Message: "Internal error"})
		return
	}
	c.AbortWithStatusJSON(appErr.StatusCode(), errorPayload{Error: appErr.Code, Message: appErr.Message})
}

func respondInvalidRequest(c *gin.Context, err error) {
	message := "Request body is invalid"
	if err != nil {
		message = err.Error()
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, errorPayload{Error: errorCodeInvalidRequest, Message: message})
}
