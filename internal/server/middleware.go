package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/auth"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// corsMiddleware allows the listed origins, or any origin when none (or "*") is configured.
// Credentials are always allowed so the session cookie works cross-origin.
func corsMiddleware(allowedOrigins ...string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if allowsAnyOrigin(allowedOrigins) {
		config.AllowOriginFunc = func(string) bool { return true }
	} else {
		config.AllowOrigins = allowedOrigins
	}
	return cors.New(config)
}

func allowsAnyOrigin(origins []string) bool {
	if len(origins) == 0 {
		return true
	}
	for _, origin := range origins {
		if origin == "*" {
			return true
		}
	}
	return false
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(started)),
		}
		if principal := principalFrom(c); principal.UserID != "" {
			fields = append(fields, zap.String("user_id", principal.UserID))
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Warn("http request", fields...)
			return
		}
		logger.Debug("http request", fields...)
	}
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	token, err := auth.TokenFromRequest(c.Request, h.cookieName)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorPayload{Error: errorCodeUnauthorized, Message: err.Error()})
		return
	}
	principal, err := h.tokens.ValidateToken(token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorPayload{Error: errorCodeUnauthorized, Message: "Access token is invalid"})
		return
	}
	c.Set(principalContextKey, principal)
	c.Next()
}
