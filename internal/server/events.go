package server

import (
	"context"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/apperrors"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/notifications"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	actionBoardUpdated       = "board.updated"
	actionBoardDeleted       = "board.deleted"
	actionColumnCreated      = "column.created"
	actionColumnUpdated      = "column.updated"
	actionColumnDeleted      = "column.deleted"
	actionColumnsReordered   = "columns.reordered"
	actionTaskCreated        = "task.created"
	actionTaskUpdated        = "task.updated"
	actionTaskDeleted        = "task.deleted"
	actionTasksReordered     = "tasks.reordered"
	actionMemberJoined       = "member.joined"
	actionMemberRemoved      = "member.removed"
	actionMemberRoleChanged  = "member.role_changed"
	actionInvitationCreated  = "invitation.created"
	actionInvitationDeclined = "invitation.declined"
)

type eventPayload struct {
	Type      string    `json:"type"`
	BoardID   string    `json:"boardId,omitempty"`
	EntityIDs []string  `json:"entityIds"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}

// NotificationListener forwards stored notifications to the recipient's open streams.
func NotificationListener(dispatcher *RealtimeDispatcher) notifications.Listener {
	return func(notification notifications.Notification) {
		boardID := ""
		if notification.BoardID != nil {
			boardID = *notification.BoardID
		}
		dispatcher.Publish(RealtimeMessage{
			UserID:    notification.UserID,
			EventType: RealtimeEventNotification,
			Action:    string(notification.Type),
			BoardID:   boardID,
			EntityIDs: []string{notification.ID},
			Timestamp: notification.CreatedAt,
		})
	}
}

// broadcast tells every current participant of boardID, plus extra recipients, that the board changed.
func (h *httpHandler) broadcast(ctx context.Context, boardID, action string, entityIDs []string, extra ...string) {
	participants, err := h.boards.ParticipantIDs(ctx, boardID)
	if err != nil && apperrors.KindOf(err) == apperrors.KindInternal {
		h.logger.Warn("board participants lookup failed", zap.String("board_id", boardID), zap.String("action", action), zap.Error(err))
	}
	h.publishBoardEvent(append(participants, extra...), boardID, action, entityIDs)
}

func (h *httpHandler) publishBoardEvent(recipients []string, boardID, action string, entityIDs []string) {
	if len(recipients) == 0 {
		return
	}
	if h.metrics != nil {
		h.metrics.ObserveBoardEvent(action)
	}
	h.realtime.PublishAll(recipients, RealtimeMessage{
		EventType: RealtimeEventBoardChanged,
		Action:    action,
		BoardID:   boardID,
		EntityIDs: entityIDs,
		Timestamp: time.Now().UTC(),
	})
}

func (h *httpHandler) handleEventStream(c *gin.Context) {
	h.streamEvents(c, principalFrom(c).UserID, nil)
}

// handleBoardEventStream streams only the changes of one board; access is checked once on connect.
func (h *httpHandler) handleBoardEventStream(c *gin.Context) {
	boardID := c.Param("boardId")
	principal := principalFrom(c)
	if _, err := h.boards.RequireAccess(c.Request.Context(), boardID, principal.UserID); err != nil {
		h.respondError(c, err)
		return
	}
	h.streamEvents(c, principal.UserID, func(message RealtimeMessage) bool {
		return message.EventType == RealtimeEventBoardChanged && message.BoardID == boardID
	})
}

func (h *httpHandler) streamEvents(c *gin.Context, userID string, filter func(RealtimeMessage) bool) {
	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx, userID)
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.SSEvent(realtimeEventReady, eventPayload{Type: realtimeEventReady, EntityIDs: []string{}, Timestamp: time.Now().UTC(), Source: realtimeSourceBackend})
	c.Writer.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case message, ok := <-stream:
			if !ok {
				return
			}
			if filter != nil && !filter(message) {
				continue
			}
			entityIDs := message.EntityIDs
			if entityIDs == nil {
				entityIDs = []string{}
			}
			c.SSEvent(message.EventType, eventPayload{
				Type:      message.Action,
				BoardID:   message.BoardID,
				EntityIDs: entityIDs,
				Timestamp: message.Timestamp,
				Source:    realtimeSourceBackend,
			})
			c.Writer.Flush()
		case <-heartbeat.C:
			c.SSEvent(realtimeEventHeartbeat, eventPayload{Type: realtimeEventHeartbeat, EntityIDs: []string{}, Timestamp: time.Now().UTC(), Source: realtimeSourceBackend})
			c.Writer.Flush()
		}
	}
}
