package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/apperrors"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/ids"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound       = apperrors.NotFound("user_not_found", "User not found")
	ErrEmailTaken         = apperrors.Conflict("email_taken", "Email is already registered")
	ErrInvalidCredentials = apperrors.Unauthorized("invalid_credentials", "Email or password is incorrect")
	ErrInvalidEmail       = apperrors.BadRequest("invalid_email", "Email is required")
	ErrWeakPassword       = apperrors.BadRequest("weak_password", "Password must be at least 8 characters")
)

const (
	opRegister        = "users.register"
	opAuthenticate    = "users.authenticate"
	opGetByID         = "users.get_by_id"
	opFindByEmail     = "users.find_by_email"
	opUpdatePushToken = "users.update_push_token"
)

// ServiceConfig describes the dependencies required for account management.
type ServiceConfig struct {
	Database   *gorm.DB
	IDProvider ids.Provider
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Service manages user accounts.
type Service struct {
	db         *gorm.DB
	idProvider ids.Provider
	now        func() time.Time
	logger     *zap.Logger
}

// RegisterInput carries the fields accepted at sign-up.
type RegisterInput struct {
	Email    string
	Name     string
	Password string
}

// NewService constructs the account service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
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
	return &Service{
		db:         cfg.Database,
		idProvider: idProvider,
		now:        clock,
		logger:     logger,
	}, nil
}

// Register creates an account with a bcrypt password hash.
func (s *Service) Register(ctx context.Context, input RegisterInput) (User, error) {
	email := NormalizeEmail(input.Email)
	if email == "" || !strings.Contains(email, "@") {
		return User{}, ErrInvalidEmail
	}
	hash, err := auth.HashPassword(input.Password)
	if errors.Is(err, auth.ErrPasswordTooShort) {
		return User{}, ErrWeakPassword
	} else if err != nil {
		s.logError(opRegister, "hash_failed", err)
		return User{}, apperrors.Internal(opRegister, "hash_failed", err)
	}

	if _, err := s.FindByEmail(ctx, email); err == nil {
		return User{}, ErrEmailTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return User{}, err
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opRegister, "id_generation_failed", err)
		return User{}, apperrors.Internal(opRegister, "id_generation_failed", err)
	}

	now := s.now().UTC()
	user := User{
		ID:           id,
		Email:        email,
		Name:         strings.TrimSpace(input.Name),
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return User{}, ErrEmailTaken
		}
		s.logError(opRegister, "insert_failed", err, zap.String("email", email))
		return User{}, apperrors.Internal(opRegister, "insert_failed", err)
	}
	return user, nil
}

// Authenticate verifies the email/password pair.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	user, err := s.FindByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return User{}, ErrInvalidCredentials
	} else if err != nil {
		return User{}, err
	}
	if !auth.VerifyPassword(user.PasswordHash, password) {
		s.logger.Debug("password mismatch", zap.String("operation", opAuthenticate), zap.String("user_id", user.ID))
		return User{}, ErrInvalidCredentials
	}
	return user, nil
}

// GetByID loads an account by id.
func (s *Service) GetByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		s.logError(opGetByID, "select_failed", err, zap.String("user_id", userID))
		return User{}, apperrors.Internal(opGetByID, "select_failed", err)
	}
	return user, nil
}

// FindByEmail loads an account by its normalized email.
func (s *Service) FindByEmail(ctx context.Context, email string) (User, error) {
	normalized := NormalizeEmail(email)
	if normalized == "" {
		return User{}, ErrUserNotFound
	}
	var user User
	err := s.db.WithContext(ctx).Where("email = ?", normalized).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		s.logError(opFindByEmail, "select_failed", err)
		return User{}, apperrors.Internal(opFindByEmail, "select_failed", err)
	}
	return user, nil
}

// UpdatePushToken stores the device token used for push delivery; an empty token clears it.
func (s *Service) UpdatePushToken(ctx context.Context, userID, token string) error {
	result := s.db.WithContext(ctx).Model(&User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{"push_token": strings.TrimSpace(token), "updated_at": s.now().UTC()})
	if result.Error != nil {
		s.logError(opUpdatePushToken, "update_failed", result.Error, zap.String("user_id", userID))
		return apperrors.Internal(opUpdatePushToken, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// PushToken returns the stored device token, or an empty string.
func (s *Service) PushToken(ctx context.Context, userID string) (string, error) {
	user, err := s.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.PushToken, nil
}

// DisplayName returns the name shown to other users, falling back to the email.
func (s *Service) DisplayName(ctx context.Context, userID string) string {
	user, err := s.GetByID(ctx, userID)
	if err != nil {
		return ""
	}
	if user.Name != "" {
		return user.Name
	}
	return user.Email
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	if s.logger == nil {
		return
	}
	base := []zap.Field{zap.String("operation", operation), zap.String("reason", reason), zap.Error(err)}
	s.logger.Error("user service failure", append(base, fields...)...)
}
