package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/activity"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/boards"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/columns"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/invitations"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/metrics"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/notifications"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/tasks"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	principalContextKey      = "taskboard_principal"
	defaultHeartbeatInterval = 25 * time.Second
)

var (
	errMissingTokenManager   = errors.New("token manager dependency required")
	errMissingUsers          = errors.New("users service dependency required")
	errMissingBoards         = errors.New("boards service dependency required")
	errMissingColumns        = errors.New("columns service dependency required")
	errMissingTasks          = errors.New("tasks service dependency required")
	errMissingInvitations    = errors.New("invitations service dependency required")
	errMissingNotifications  = errors.New("notifications service dependency required")
	errMissingActivity       = errors.New("activity service dependency required")
	errMissingRealtimeBroker = errors.New("realtime dispatcher dependency required")
)

// TokenManager issues and validates the access tokens carried by every protected request.
type TokenManager interface {
	IssueToken(ctx context.Context, principal auth.Principal) (string, int64, error)
	ValidateToken(token string) (auth.Principal, error)
}

type Dependencies struct {
	TokenManager      TokenManager
	Users             *users.Service
	Boards            *boards.Service
	Columns           *columns.Service
	Tasks             *tasks.Service
	Invitations       *invitations.Service
	Notifications     *notifications.Service
	Activity          *activity.Service
	Realtime          *RealtimeDispatcher
	Metrics           *metrics.Collectors
	AllowedOrigins    []string
	CookieName        string
	HeartbeatInterval time.Duration
	Logger            *zap.Logger
}

func (deps Dependencies) validate() error {
	switch {
	case deps.TokenManager == nil:
		return errMissingTokenManager
	case deps.Users == nil:
		return errMissingUsers
	case deps.Boards == nil:
		return errMissingBoards
	case deps.Columns == nil:
		return errMissingColumns
	case deps.Tasks == nil:
		return errMissingTasks
	case deps.Invitations == nil:
		return errMissingInvitations
	case deps.Notifications == nil:
		return errMissingNotifications
	case deps.Activity == nil:
		return errMissingActivity
	case deps.Realtime == nil:
		return errMissingRealtimeBroker
	}
	return nil
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}
	registerValidators()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	if deps.Metrics != nil {
		router.Use(deps.Metrics.Middleware())
	}
	router.Use(corsMiddleware(deps.AllowedOrigins...))

	handler := &httpHandler{
		tokens:        deps.TokenManager,
		users:         deps.Users,
		boards:        deps.Boards,
		columns:       deps.Columns,
		tasks:         deps.Tasks,
		invitations:   deps.Invitations,
		notifications: deps.Notifications,
		activity:      deps.Activity,
		realtime:      deps.Realtime,
		metrics:       deps.Metrics,
		cookieName:    deps.CookieName,
		heartbeat:     heartbeat,
		logger:        logger,
	}

	router.GET("/healthz", handler.handleHealth)
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}
	router.POST("/auth/register", handler.handleRegister)
	router.POST("/auth/login", handler.handleLogin)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)

	protected.GET("/auth/me", handler.handleMe)
	protected.PUT("/users/me/push-token", handler.handlePushToken)
	protected.GET("/events", handler.handleEventStream)

	protected.POST("/boards", handler.handleCreateBoard)
	protected.GET("/boards", handler.handleListBoards)
	protected.GET("/boards/:boardId", handler.handleGetBoard)
	protected.PATCH("/boards/:boardId", handler.handleUpdateBoard)
	protected.DELETE("/boards/:boardId", handler.handleDeleteBoard)
	protected.GET("/boards/:boardId/events", handler.handleBoardEventStream)
	protected.GET("/boards/:boardId/columns", handler.handleListColumns)

	protected.POST("/columns", handler.handleCreateColumn)
	protected.PUT("/columns/positions", handler.handleColumnPositions)
	protected.PATCH("/columns/:columnId", handler.handleUpdateColumn)
	protected.DELETE("/columns/:columnId", handler.handleDeleteColumn)
	protected.PUT("/columns/:columnId/move", handler.handleMoveColumn)
	protected.GET("/columns/:columnId/tasks", handler.handleListTasks)

	protected.POST("/tasks", handler.handleCreateTask)
	protected.PUT("/tasks/positions", handler.handleTaskPositions)
	protected.GET("/tasks/:taskId", handler.handleGetTask)
	protected.PATCH("/tasks/:taskId", handler.handleUpdateTask)
	protected.DELETE("/tasks/:taskId", handler.handleDeleteTask)
	protected.PUT("/tasks/:taskId/move", handler.handleMoveTask)

	invites := protected.Group("/boards-invitations")
	invites.GET("/mine", handler.handleMyInvitations)
	invites.GET("/accept/:token", handler.handleAcceptInvitation)
	invites.GET("/decline/:token", handler.handleDeclineInvitation)
	invites.POST("/:boardId/invite", handler.handleInvite)
	invites.GET("/:boardId/members", handler.handleListMembers)
	invites.DELETE("/:boardId/members/:userId", handler.handleRemoveMember)
	invites.PATCH("/:boardId/members/:userId", handler.handleUpdateMemberRole)
	invites.POST("/:boardId/leave", handler.handleLeaveBoard)
	invites.GET("/:boardId/pending", handler.handleBoardInvitations)

	protected.GET("/notifications", handler.handleListNotifications)
	protected.PATCH("/notifications/:notificationId/read", handler.handleMarkNotificationRead)
	protected.POST("/notifications/read-all", handler.handleMarkAllNotificationsRead)

	protected.GET("/search", handler.handleSearch)
	protected.GET("/stats/me", handler.handleStats)
	protected.GET("/achievements/me", handler.handleAchievements)

	return router, nil
}

type httpHandler struct {
	tokens        TokenManager
	users         *users.Service
	boards        *boards.Service
	columns       *columns.Service
	tasks         *tasks.Service
	invitations   *invitations.Service
	notifications *notifications.Service
	activity      *activity.Service
	realtime      *RealtimeDispatcher
	metrics       *metrics.Collectors
	cookieName    string
	heartbeat     time.Duration
	logger        *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func principalFrom(c *gin.Context) auth.Principal {
	value, ok := c.Get(principalContextKey)
	if !ok {
		return auth.Principal{}
	}
	principal, _ := value.(auth.Principal)
	return principal
}
