package server

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type registerRequestPayload struct {
	Email    string `json:"email" binding:"required,email"`
	Name     string `json:"name" binding:"max=320"`
	Password string `json:"password" binding:"required"`
}

type loginRequestPayload struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type authResponsePayload struct {
	AccessToken string     `json:"access_token"`
	ExpiresIn   int64      `json:"expires_in"`
	TokenType   string     `json:"token_type"`
	User        users.User `json:"user"`
}

type pushTokenRequestPayload struct {
	Token string `json:"token"`
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	var request registerRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c, err)
		return
	}
	user, err := h.users.Register(c.Request.Context(), users.RegisterInput{
		Email:    request.Email,
		Name:     request.Name,
		Password: request.Password,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.issueSession(c, http.StatusCreated, user)
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c, err)
		return
	}
	user, err := h.users.Authenticate(c.Request.Context(), request.Email, request.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.issueSession(c, http.StatusOK, user)
}

func (h *httpHandler) issueSession(c *gin.Context, status int, user users.User) {
	token, expiresIn, err := h.tokens.IssueToken(c.Request.Context(), auth.Principal{UserID: user.ID, Email: user.Email})
	if err != nil {
		h.logger.Error("failed to issue access token", zap.String("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorPayload{Error: "token_issue_failed", Message: "Could not issue an access token"})
		return
	}
	if h.cookieName != "" {
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(h.cookieName, token, int(expiresIn), "/", "", c.Request.TLS != nil, true)
	}
	c.JSON(status, authResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
		User:        user,
	})
}

func (h *httpHandler) handleMe(c *gin.Context) {
	user, err := h.users.GetByID(c.Request.Context(), principalFrom(c).UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *httpHandler) handlePushToken(c *gin.Context) {
	var request pushTokenRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c, err)
		return
	}
	if err := h.users.UpdatePushToken(c.Request.Context(), principalFrom(c).UserID, request.Token); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
