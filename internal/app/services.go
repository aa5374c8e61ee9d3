// Package app assembles the domain services over one database handle and wires their
// cross-service hooks (cascades, notifications, achievements).
package app

import (
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/activity"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/boards"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/columns"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/ids"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/invitations"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/notifications"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/push"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/tasks"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Config struct {
	Database         *gorm.DB
	Logger           *zap.Logger
	Clock            func() time.Time
	IDProvider       ids.Provider
	InvitationTTL    time.Duration
	InvitationTokens invitations.TokenGenerator
	InvitationMailer invitations.InvitationMailer
	Push             push.Sender
	Listener         notifications.Listener
}

// Services holds one instance of every domain service.
type Services struct {
	Users         *users.Service
	Boards        *boards.Service
	Columns       *columns.Service
	Tasks         *tasks.Service
	Invitations   *invitations.Service
	Notifications *notifications.Service
	Activity      *activity.Service
}

func NewServices(cfg Config) (*Services, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("app: database connection required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = ids.NewUUIDProvider()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	userService, err := users.NewService(users.ServiceConfig{
		Database:   cfg.Database,
		IDProvider: idProvider,
		Clock:      clock,
		Logger:     logging.Component(logger, "users"),
	})
	if err != nil {
		return nil, err
	}

	notificationService, err := notifications.NewService(notifications.ServiceConfig{
		Database:   cfg.Database,
		IDProvider: idProvider,
		Clock:      clock,
		Logger:     logging.Component(logger, "notifications"),
		Push:       cfg.Push,
		Tokens:     userService,
		Listener:   cfg.Listener,
	})
	if err != nil {
		return nil, err
	}

	activityService, err := activity.NewService(activity.ServiceConfig{
		Database:   cfg.Database,
		IDProvider: idProvider,
		Clock:      clock,
		Logger:     logging.Component(logger, "activity"),
		Announcer:  notificationService,
	})
	if err != nil {
		return nil, err
	}

	taskService, err := tasks.NewService(tasks.ServiceConfig{
		Database:   cfg.Database,
		IDProvider: idProvider,
		Clock:      clock,
		Logger:     logging.Component(logger, "tasks"),
		Activity:   activityService,
		Notifier:   notificationService,
	})
	if err != nil {
		return nil, err
	}

	columnService, err := columns.NewService(columns.ServiceConfig{
		Database:   cfg.Database,
		IDProvider: idProvider,
		Clock:      clock,
		Logger:     logging.Component(logger, "columns"),
		Activity:   activityService,
		Content:    taskService,
	})
	if err != nil {
		return nil, err
	}

	invitationService, err := invitations.NewService(invitations.ServiceConfig{
		Database:   cfg.Database,
		IDProvider: idProvider,
		Clock:      clock,
		Logger:     logging.Component(logger, "invitations"),
		TTL:        cfg.InvitationTTL,
		Tokens:     cfg.InvitationTokens,
		Directory:  userService,
		Mailer:     cfg.InvitationMailer,
		Notifier:   notificationService,
		Activity:   activityService,
	})
	if err != nil {
		return nil, err
	}

	boardService, err := boards.NewService(boards.ServiceConfig{
		Database:   cfg.Database,
		IDProvider: idProvider,
		Clock:      clock,
		Logger:     logging.Component(logger, "boards"),
		Activity:   activityService,
		Cascades:   []boards.Cascade{columnService, invitationService},
	})
	if err != nil {
		return nil, err
	}

	return &Services{
		Users:         userService,
		Boards:        boardService,
		Columns:       columnService,
		Tasks:         taskService,
		Invitations:   invitationService,
		Notifications: notificationService,
		Activity:      activityService,
	}, nil
}
