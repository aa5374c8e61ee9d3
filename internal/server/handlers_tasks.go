package server

import (
	"context"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/tasks"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type taskRequestPayload struct {
	ColumnID    string     `json:"columnId" binding:"required"`
	Title       string     `json:"title" binding:"required,max=255"`
	Description string     `json:"description"`
	Priority    string     `json:"priority" binding:"omitempty,priority"`
	Tags        []string   `json:"tags" binding:"omitempty,max=20,dive,max=50"`
	Deadline    *time.Time `json:"deadline"`
	AssigneeID  string     `json:"assigneeId"`
}

type taskUpdatePayload struct {
	Title         *string    `json:"title" binding:"omitempty,max=255"`
	Description   *string    `json:"description"`
	Priority      *string    `json:"priority" binding:"omitempty,priority"`
	Tags          *[]string  `json:"tags"`
	Deadline      *time.Time `json:"deadline"`
	ClearDeadline bool       `json:"clearDeadline"`
	IsCompleted   *bool      `json:"isCompleted"`
	AssigneeID    *string    `json:"assigneeId"`
}

type taskMovePayload struct {
	ColumnID string `json:"columnId"`
	PrevID   string `json:"prevId"`
	NextID   string `json:"nextId"`
}

type taskPositionPayload struct {
	ID       string  `json:"id" binding:"required"`
	ColumnID string  `json:"columnId" binding:"required"`
	Position float64 `json:"position"`
}

func (h *httpHandler) handleCreateTask(c *gin.Context) {
	var request taskRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	userID := principalFrom(c).UserID
	task, err := h.tasks.Create(ctx, userID, tasks.CreateInput{
		ColumnID:    request.ColumnID,
		Title:       request.Title,
		Description: request.Description,
		Priority:    request.Priority,
		Tags:        request.Tags,
		Deadline:    request.Deadline,
		AssigneeID:  request.AssigneeID,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.broadcastTask(ctx, task, userID, actionTaskCreated)
	c.JSON(http.StatusCreated, task)
}

func (h *httpHandler) handleListTasks(c *gin.Context) {
	list, err := h.tasks.ListByColumn(c.Request.Context(), c.Param("columnId"), principalFrom(c).UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if list == nil {
		list = []tasks.Task{}
	}
	c.JSON(http.StatusOK, list)
}

func (h *httpHandler) handleGetTask(c *gin.Context) {
	task, err := h.tasks.Get(c.Request.Context(), c.Param("taskId"), principalFrom(c).UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *httpHandler) handleUpdateTask(c *gin.Context) {
	var request taskUpdatePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	userID := principalFrom(c).UserID
	task, err := h.tasks.Update(ctx, c.Param("taskId"), userID, tasks.UpdateInput{
		Title:         request.Title,
		Description:   request.Description,
		Priority:      request.Priority,
		Tags:          request.Tags,
		Deadline:      request.Deadline,
		ClearDeadline: request.ClearDeadline,
		IsCompleted:   request.IsCompleted,
		AssigneeID:    request.AssigneeID,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.broadcastTask(ctx, task, userID, actionTaskUpdated)
	c.JSON(http.StatusOK, task)
}

func (h *httpHandler) handleDeleteTask(c *gin.Context) {
	ctx := c.Request.Context()
	task, boardID, err := h.tasks.Delete(ctx, c.Param("taskId"), principalFrom(c).UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.broadcast(ctx, boardID, actionTaskDeleted, []string{task.ID})
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleMoveTask(c *gin.Context) {
	var request taskMovePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	task, boardID, err := h.tasks.Move(ctx, c.Param("taskId"), principalFrom(c).UserID, tasks.MoveInput{
		TargetColumnID: request.ColumnID,
		PrevID:         request.PrevID,
		NextID:         request.NextID,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.broadcast(ctx, boardID, actionTasksReordered, []string{task.ID})
	c.JSON(http.StatusOK, task)
}

func (h *httpHandler) handleTaskPositions(c *gin.Context) {
	var request []taskPositionPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c, err)
		return
	}
	entries := make([]tasks.PositionEntry, 0, len(request))
	entityIDs := make([]string, 0, len(request))
	for _, entry := range request {
		entries = append(entries, tasks.PositionEntry{ID: entry.ID, ColumnID: entry.ColumnID, Position: entry.Position})
		entityIDs = append(entityIDs, entry.ID)
	}
	ctx := c.Request.Context()
	boardIDs, err := h.tasks.UpdatePositions(ctx, principalFrom(c).UserID, entries)
	if err != nil {
		h.respondError(c, err)
		return
	}
	for _, boardID := range boardIDs {
		h.broadcast(ctx, boardID, actionTasksReordered, entityIDs)
	}
	c.JSON(http.StatusOK, gin.H{"updated": len(entries), "boardIds": boardIDs})
}

func (h *httpHandler) broadcastTask(ctx context.Context, task tasks.Task, userID, action string) {
	boardID, err := h.tasks.BoardIDOf(ctx, task.ID, userID)
	if err != nil {
		h.logger.Warn("task board lookup failed", zap.String("task_id", task.ID), zap.Error(err))
		return
	}
	h.broadcast(ctx, boardID, action, []string{task.ID})
}
