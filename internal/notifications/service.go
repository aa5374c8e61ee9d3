package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/activity"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/apperrors"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/ids"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/push"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrNotificationNotFound = apperrors.NotFound("notification_not_found", "Notification not found")
	ErrInvalidNotification  = apperrors.BadRequest("invalid_notification", "Notification requires a recipient, type and title")
)

const (
	opNotify      = "notifications.notify"
	opList        = "notifications.list"
	opMarkRead    = "notifications.mark_read"
	opMarkAllRead = "notifications.mark_all_read"
	opExistsSince = "notifications.exists_since"

	defaultListLimit = 50
	maxListLimit     = 200
)

// Notifier is the dependency other services use to raise notifications.
type Notifier interface {
	Notify(ctx context.Context, input Input) error
}

// TokenSource resolves the device token registered for a user.
type TokenSource interface {
	PushToken(ctx context.Context, userID string) (string, error)
}

// Listener observes stored notifications, e.g. to stream them to connected clients.
type Listener func(Notification)

type ServiceConfig struct {
	Database   *gorm.DB
	IDProvider ids.Provider
	Clock      func() time.Time
	Logger     *zap.Logger
	Push       push.Sender
	Tokens     TokenSource
	Listener   Listener
}

type Service struct {
	db         *gorm.DB
	idProvider ids.Provider
	clock      func() time.Time
	logger     *zap.Logger
	push       push.Sender
	tokens     TokenSource
	listener   Listener
}

// ListOptions narrows List.
type ListOptions struct {
	UnreadOnly bool
	Limit      int
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("notifications: database connection required")
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = ids.NewUUIDProvider()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sender := cfg.Push
	if sender == nil {
		sender = push.Disabled()
	}
	return &Service{
		db:         cfg.Database,
		idProvider: idProvider,
		clock:      clock,
		logger:     logger,
		push:       sender,
		tokens:     cfg.Tokens,
		listener:   cfg.Listener,
	}, nil
}

// SetListener registers the observer notified after each stored notification.
func (s *Service) SetListener(listener Listener) {
	s.listener = listener
}

// Notify stores the notification, then forwards it to the recipient's device. Only the
// insert can fail the call; push delivery is best effort.
func (s *Service) Notify(ctx context.Context, input Input) error {
	_, err := s.Create(ctx, input)
	return err
}

// Create stores the notification and returns it.
func (s *Service) Create(ctx context.Context, input Input) (Notification, error) {
	if strings.TrimSpace(input.UserID) == "" || input.Type == "" || strings.TrimSpace(input.Title) == "" {
		return Notification{}, ErrInvalidNotification
	}
	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opNotify, "id_generation_failed", err)
		return Notification{}, apperrors.Internal(opNotify, "id_generation_failed", err)
	}

	notification := Notification{
		ID:        id,
		UserID:    input.UserID,
		Type:      input.Type,
		Title:     input.Title,
		Message:   input.Message,
		BoardID:   optional(input.BoardID),
		TaskID:    optional(input.TaskID),
		CreatedAt: s.clock().UTC(),
	}
	if len(input.Data) > 0 {
		notification.Data = datatypes.JSONMap(input.Data)
	}
	if err := s.db.WithContext(ctx).Create(&notification).Error; err != nil {
		s.logError(opNotify, "insert_failed", err, zap.String("user_id", input.UserID), zap.String("type", string(input.Type)))
		return Notification{}, apperrors.Internal(opNotify, "insert_failed", err)
	}

	if s.listener != nil {
		s.listener(notification)
	}
	s.deliver(ctx, notification)
	return notification, nil
}

// NotifyAll fans the inputs out and reports every failure together.
func (s *Service) NotifyAll(ctx context.Context, inputs []Input) error {
	var result error
	for _, input := range inputs {
		result = multierr.Append(result, s.Notify(ctx, input))
	}
	return result
}

func (s *Service) deliver(ctx context.Context, notification Notification) {
	if s.tokens == nil {
		return
	}
	token, err := s.tokens.PushToken(ctx, notification.UserID)
	if err != nil {
		s.logger.Warn("push token lookup failed", zap.String("user_id", notification.UserID), zap.Error(err))
		return
	}
	if token == "" {
		return
	}

	data := map[string]string{
		"notificationId": notification.ID,
		"type":           string(notification.Type),
	}
	if notification.BoardID != nil {
		data["boardId"] = *notification.BoardID
	}
	if notification.TaskID != nil {
		data["taskId"] = *notification.TaskID
	}
	err = s.push.Send(ctx, push.Message{
		Token: token,
		Title: notification.Title,
		Body:  notification.Message,
		Data:  data,
	})
	switch {
	case err == nil:
	case errors.Is(err, push.ErrPushDisabled):
		s.logger.Debug("push skipped: delivery disabled", zap.String("notification_id", notification.ID))
	default:
		s.logger.Warn("push delivery failed",
			zap.String("notification_id", notification.ID),
			zap.String("user_id", notification.UserID),
			zap.Error(err))
	}
}

// List returns the user's notifications, newest first.
func (s *Service) List(ctx context.Context, userID string, options ListOptions) ([]Notification, error) {
	limit := options.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if options.UnreadOnly {
		query = query.Where("is_read = ?", false)
	}
	var notifications []Notification
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&notifications).Error; err != nil {
		s.logError(opList, "select_failed", err, zap.String("user_id", userID))
		return nil, apperrors.Internal(opList, "select_failed", err)
	}
	return notifications, nil
}

// MarkRead flags one of the user's notifications as read.
func (s *Service) MarkRead(ctx context.Context, userID, notificationID string) error {
	result := s.db.WithContext(ctx).Model(&Notification{}).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Update("is_read", true)
	if result.Error != nil {
		s.logError(opMarkRead, "update_failed", result.Error, zap.String("notification_id", notificationID))
		return apperrors.Internal(opMarkRead, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// MarkAllRead flags every unread notification of the user and returns how many changed.
func (s *Service) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	result := s.db.WithContext(ctx).Model(&Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true)
	if result.Error != nil {
		s.logError(opMarkAllRead, "update_failed", result.Error, zap.String("user_id", userID))
		return 0, apperrors.Internal(opMarkAllRead, "update_failed", result.Error)
	}
	return result.RowsAffected, nil
}

// ExistsSince reports whether the user already received a notification of this type about the
// task at or after since. The reminder scan uses it to stay idempotent.
func (s *Service) ExistsSince(ctx context.Context, userID string, notificationType Type, taskID string, since time.Time) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&Notification{}).
		Where("user_id = ? AND type = ? AND task_id = ? AND created_at >= ?", userID, notificationType, taskID, since.UTC()).
		Count(&count).Error; err != nil {
		s.logError(opExistsSince, "count_failed", err, zap.String("user_id", userID), zap.String("task_id", taskID))
		return false, apperrors.Internal(opExistsSince, "count_failed", err)
	}
	return count > 0, nil
}

// AchievementUnlocked announces an unlocked achievement to its owner.
func (s *Service) AchievementUnlocked(ctx context.Context, userID string, code activity.AchievementCode) error {
	return s.Notify(ctx, Input{
		UserID:  userID,
		Type:    TypeAchievementUnlocked,
		Title:   "Achievement unlocked",
		Message: fmt.Sprintf("You unlocked %s", code),
		Data:    map[string]interface{}{"code": string(code)},
	})
}

func optional(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	if s.logger == nil {
		return
	}
	base := []zap.Field{zap.String("operation", operation), zap.String("reason", reason), zap.Error(err)}
	s.logger.Error("notification service failure", append(base, fields...)...)
}
