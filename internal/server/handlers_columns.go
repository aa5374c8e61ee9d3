package server

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/columns"
	"github.com/gin-gonic/gin"
)

type columnRequestPayload struct {
	BoardID string `json:"boardId" binding:"required"`
	Title   string `json:"title" binding:"required,max=255"`
}

type columnUpdatePayload struct {
	Title string `json:"title" binding:"required,max=255"`
}

// movePayload places an item after prevId and/or before nextId; both empty appends.
type movePayload struct {
	PrevID string `json:"prevId"`
	NextID string `json:"nextId"`
}

type columnPositionPayload struct {
	ID       string  `json:"id" binding:"required"`
	BoardID  string  `json:"boardId"`
	Position float64 `json:"position"`
}

func (h *httpHandler) handleCreateColumn(c *gin.Context) {
	var request columnRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	column, err := h.columns.Create(ctx, principalFrom(c).UserID, columns.CreateInput{
		BoardID: request.BoardID,
		Title:   request.Title,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.broadcast(ctx, column.BoardID, actionColumnCreated, []string{column.ID})
	c.JSON(http.StatusCreated, column)
}

func (h *httpHandler) handleListColumns(c *gin.Context) {
	list, err := h.columns.List(c.Request.Context(), c.Param("boardId"), principalFrom(c).UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if list == nil {
		list = []columns.Column{}
	}
	c.JSON(http.StatusOK, list)
}

func (h *httpHandler) handleUpdateColumn(c *gin.Context) {
	var request columnUpdatePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	column, err := h.columns.Update(ctx, c.Param("columnId"), principalFrom(c).UserID, request.Title)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.broadcast(ctx, column.BoardID, actionColumnUpdated, []string{column.ID})
	c.JSON(http.StatusOK, column)
}

func (h *httpHandler) handleDeleteColumn(c *gin.Context) {
	ctx := c.Request.Context()
	column, err := h.columns.Delete(ctx, c.Param("columnId"), principalFrom(c).UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.broadcast(ctx, column.BoardID, actionColumnDeleted, []string{column.ID})
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleMoveColumn(c *gin.Context) {
	var request movePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	column, err := h.columns.Move(ctx, c.Param("columnId"), principalFrom(c).UserID, request.PrevID, request.NextID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.broadcast(ctx, column.BoardID, actionColumnsReordered, []string{column.ID})
	c.JSON(http.StatusOK, column)
}

func (h *httpHandler) handleColumnPositions(c *gin.Context) {
	var request []columnPositionPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c, err)
		return
	}
	entries := make([]columns.PositionEntry, 0, len(request))
	for _, entry := range request {
		entries = append(entries, columns.PositionEntry{ID: entry.ID, BoardID: entry.BoardID, Position: entry.Position})
	}
	ctx := c.Request.Context()
	updated, err := h.columns.UpdatePositions(ctx, principalFrom(c).UserID, entries)
	if err != nil {
		h.respondError(c, err)
		return
	}
	touched := make(map[string][]string)
	order := make([]string, 0)
	for _, column := range updated {
		if _, ok := touched[column.BoardID]; !ok {
			order = append(order, column.BoardID)
		}
		touched[column.BoardID] = append(touched[column.BoardID], column.ID)
	}
	for _, boardID := range order {
		h.broadcast(ctx, boardID, actionColumnsReordered, touched[boardID])
	}
	c.JSON(http.StatusOK, updated)
}
