package server

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/apperrors"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/boards"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type boardRequestPayload struct {
	Title       string `json:"title" binding:"required,max=255"`
	Description string `json:"description"`
}

type boardUpdatePayload struct {
	Title       *string `json:"title" binding:"omitempty,max=255"`
	Description *string `json:"description"`
}

type boardView struct {
	boards.Board
	Role boards.Role `json:"role"`
}

func viewOf(access boards.Access) boardView {
	return boardView{Board: access.Board, Role: access.Role}
}

func (h *httpHandler) handleCreateBoard(c *gin.Context) {
	var request boardRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c, err)
		return
	}
	board, err := h.boards.Create(c.Request.Context(), principalFrom(c).UserID, boards.CreateInput{
		Title:       request.Title,
		Description: request.Description,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, boardView{Board: board, Role: boards.RoleOwner})
}

func (h *httpHandler) handleListBoards(c *gin.Context) {
	accesses, err := h.boards.List(c.Request.Context(), principalFrom(c).UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	views := make([]boardView, 0, len(accesses))
	for _, access := range accesses {
		views = append(views, viewOf(access))
	}
	c.JSON(http.StatusOK, views)
}

func (h *httpHandler) handleGetBoard(c *gin.Context) {
	access, err := h.boards.Get(c.Request.Context(), c.Param("boardId"), principalFrom(c).UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(access))
}

func (h *httpHandler) handleUpdateBoard(c *gin.Context) {
	var request boardUpdatePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	board, err := h.boards.Update(ctx, c.Param("boardId"), principalFrom(c).UserID, boards.UpdateInput{
		Title:       request.Title,
		Description: request.Description,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.broadcast(ctx, board.ID, actionBoardUpdated, []string{board.ID})
	c.JSON(http.StatusOK, board)
}

func (h *httpHandler) handleDeleteBoard(c *gin.Context) {
	ctx := c.Request.Context()
	boardID := c.Param("boardId")
	userID := principalFrom(c).UserID

	// Participants are gone once the board is, so resolve them first.
	participants, err := h.boards.ParticipantIDs(ctx, boardID)
	if err != nil && apperrors.KindOf(err) == apperrors.KindInternal {
		h.logger.Warn("board participants lookup failed", zap.String("board_id", boardID), zap.Error(err))
	}
	if err := h.boards.Delete(ctx, boardID, userID); err != nil {
		h.respondError(c, err)
		return
	}
	h.publishBoardEvent(participants, boardID, actionBoardDeleted, []string{boardID})
	c.Status(http.StatusNoContent)
}
