package server

import (
	"net/http"
	"strconv"

	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/activity"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/boards"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/notifications"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/tasks"
	"github.com/gin-gonic/gin"
)

const searchResultLimit = 20

type searchResponsePayload struct {
	Boards []boards.Board `json:"boards"`
	Tasks  []tasks.Task   `json:"tasks"`
}

func (h *httpHandler) handleListNotifications(c *gin.Context) {
	options := notifications.ListOptions{UnreadOnly: c.Query("unread") == "true"}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			respondInvalidRequest(c, nil)
			return
		}
		options.Limit = limit
	}
	list, err := h.notifications.List(c.Request.Context(), principalFrom(c).UserID, options)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if list == nil {
		list = []notifications.Notification{}
	}
	c.JSON(http.StatusOK, list)
}

func (h *httpHandler) handleMarkNotificationRead(c *gin.Context) {
	if err := h.notifications.MarkRead(c.Request.Context(), principalFrom(c).UserID, c.Param("notificationId")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleMarkAllNotificationsRead(c *gin.Context) {
	updated, err := h.notifications.MarkAllRead(c.Request.Context(), principalFrom(c).UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

func (h *httpHandler) handleSearch(c *gin.Context) {
	ctx := c.Request.Context()
	userID := principalFrom(c).UserID
	query := c.Query("q")

	boardResults, err := h.boards.Search(ctx, userID, query, searchResultLimit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	taskResults, err := h.tasks.Search(ctx, userID, query, searchResultLimit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if boardResults == nil {
		boardResults = []boards.Board{}
	}
	if taskResults == nil {
		taskResults = []tasks.Task{}
	}
	c.JSON(http.StatusOK, searchResponsePayload{Boards: boardResults, Tasks: taskResults})
}

func (h *httpHandler) handleStats(c *gin.Context) {
	stats, err := h.activity.Stats(c.Request.Context(), principalFrom(c).UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *httpHandler) handleAchievements(c *gin.Context) {
	achievements, err := h.activity.Achievements(c.Request.Context(), principalFrom(c).UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if achievements == nil {
		achievements = []activity.Achievement{}
	}
	c.JSON(http.StatusOK, achievements)
}
