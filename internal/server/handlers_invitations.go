package server

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/invitations"
	"github.com/gin-gonic/gin"
)

type invitePayload struct {
	Email string `json:"email" binding:"required,email"`
	Role  string `json:"role" binding:"omitempty,boardrole"`
}

type memberRolePayload struct {
	Role string `json:"role" binding:"required,boardrole"`
}

func responderFrom(c *gin.Context) invitations.Responder {
	principal := principalFrom(c)
	return invitations.Responder{UserID: principal.UserID, Email: principal.Email}
}

func (h *httpHandler) handleInvite(c *gin.Context) {
	var request invitePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	invitation, err := h.invitations.Invite(ctx, c.Param("boardId"), principalFrom(c).UserID, invitations.InviteInput{
		Email: request.Email,
		Role:  request.Role,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.broadcast(ctx, invitation.BoardID, actionInvitationCreated, []string{invitation.ID})
	c.JSON(http.StatusCreated, invitation)
}

func (h *httpHandler) handleAcceptInvitation(c *gin.Context) {
	h.respondToInvitation(c, true)
}

func (h *httpHandler) handleDeclineInvitation(c *gin.Context) {
	h.respondToInvitation(c, false)
}

func (h *httpHandler) respondToInvitation(c *gin.Context, accept bool) {
	ctx := c.Request.Context()
	responder := responderFrom(c)
	invitation, err := h.invitations.RespondByToken(ctx, c.Param("token"), responder, accept)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if accept {
		h.broadcast(ctx, invitation.BoardID, actionMemberJoined, []string{responder.UserID})
	} else {
		h.broadcast(ctx, invitation.BoardID, actionInvitationDeclined, []string{invitation.ID})
	}
	c.JSON(http.StatusOK, invitation)
}

func (h *httpHandler) handleListMembers(c *gin.Context) {
	members, err := h.invitations.ListMembers(c.Request.Context(), c.Param("boardId"), principalFrom(c).UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, members)
}

func (h *httpHandler) handleRemoveMember(c *gin.Context) {
	ctx := c.Request.Context()
	boardID := c.Param("boardId")
	targetUserID := c.Param("userId")
	if err := h.invitations.RemoveMember(ctx, boardID, targetUserID, principalFrom(c).UserID); err != nil {
		h.respondError(c, err)
		return
	}
	h.broadcast(ctx, boardID, actionMemberRemoved, []string{targetUserID}, targetUserID)
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleUpdateMemberRole(c *gin.Context) {
	var request memberRolePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	boardID := c.Param("boardId")
	member, err := h.invitations.UpdateMemberRole(ctx, boardID, c.Param("userId"), principalFrom(c).UserID, request.Role)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.broadcast(ctx, boardID, actionMemberRoleChanged, []string{member.UserID})
	c.JSON(http.StatusOK, member)
}

func (h *httpHandler) handleLeaveBoard(c *gin.Context) {
	ctx := c.Request.Context()
	boardID := c.Param("boardId")
	userID := principalFrom(c).UserID
	if err := h.invitations.Leave(ctx, boardID, userID); err != nil {
		h.respondError(c, err)
		return
	}
	h.broadcast(ctx, boardID, actionMemberRemoved, []string{userID}, userID)
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleBoardInvitations(c *gin.Context) {
	list, err := h.invitations.ListBoardInvitations(c.Request.Context(), c.Param("boardId"), principalFrom(c).UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if list == nil {
		list = []invitations.Invitation{}
	}
	c.JSON(http.StatusOK, list)
}

func (h *httpHandler) handleMyInvitations(c *gin.Context) {
	list, err := h.invitations.ListPendingFor(c.Request.Context(), responderFrom(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if list == nil {
		list = []invitations.Invitation{}
	}
	c.JSON(http.StatusOK, list)
}
