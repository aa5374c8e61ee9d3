package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/apperrors"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/ids"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opRecord       = "activity.record"
	opStats        = "activity.stats"
	opAchievements = "activity.achievements"
)

// Recorder accepts counter increments from the domain services.
type Recorder interface {
	Record(ctx context.Context, userID string, metric Metric)
}

// Announcer is told about freshly unlocked achievements.
type Announcer interface {
	AchievementUnlocked(ctx context.Context, userID string, code AchievementCode) error
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, string, Metric) {}

// NopRecorder returns a Recorder that discards every increment.
func NopRecorder() Recorder {
	return nopRecorder{}
}

// ServiceConfig describes the dependencies of the activity service.
type ServiceConfig struct {
	Database   *gorm.DB
	IDProvider ids.Provider
	Clock      func() time.Time
	Logger     *zap.Logger
	Announcer  Announcer
}

// Service persists counters and achievements.
type Service struct {
	db         *gorm.DB
	idProvider ids.Provider
	clock      func() time.Time
	logger     *zap.Logger
	announcer  Announcer
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("activity: database connection required")
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
		clock:      clock,
		logger:     logger,
		announcer:  cfg.Announcer,
	}, nil
}

// SetAnnouncer wires the achievement announcer after construction.
func (s *Service) SetAnnouncer(announcer Announcer) {
	s.announcer = announcer
}

// Record increments the counter and unlocks any achievement it crosses. Failures are logged
// and swallowed so bookkeeping never fails the triggering action.
func (s *Service) Record(ctx context.Context, userID string, metric Metric) {
	if userID == "" || !metric.valid() {
		return
	}
	unlocked, err := s.increment(ctx, userID, metric)
	if err != nil {
		s.logger.Warn("activity record failed",
			zap.String("operation", opRecord),
			zap.String("user_id", userID),
			zap.String("metric", string(metric)),
			zap.Error(err))
		return
	}
	if s.announcer == nil {
		return
	}
	for _, code := range unlocked {
		if err := s.announcer.AchievementUnlocked(ctx, userID, code); err != nil {
			s.logger.Warn("achievement announcement failed",
				zap.String("operation", opRecord),
				zap.String("user_id", userID),
				zap.String("achievement", string(code)),
				zap.Error(err))
		}
	}
}

func (s *Service) increment(ctx context.Context, userID string, metric Metric) ([]AchievementCode, error) {
	now := s.clock().UTC()
	var unlocked []AchievementCode
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&UserStats{UserID: userID, UpdatedAt: now}).Error; err != nil {
			return err
		}
		column := string(metric)
		if err := tx.Model(&UserStats{}).
			Where("user_id = ?", userID).
			Updates(map[string]interface{}{
				column:       gorm.Expr(column + " + 1"),
				"updated_at": now,
			}).Error; err != nil {
			return err
		}

		var stats UserStats
		if err := tx.Where("user_id = ?", userID).Take(&stats).Error; err != nil {
			return err
		}

		for _, candidate := range thresholds {
			if candidate.metric != metric || stats.value(metric) < candidate.value {
				continue
			}
			id, err := s.idProvider.NewID()
			if err != nil {
				return err
			}
			result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&Achievement{
				ID:         id,
				UserID:     userID,
				Code:       candidate.code,
				UnlockedAt: now,
			})
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 1 {
				unlocked = append(unlocked, candidate.code)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return unlocked, nil
}

// Stats returns the user's counters; users without activity get zeroed counters.
func (s *Service) Stats(ctx context.Context, userID string) (UserStats, error) {
	var stats UserStats
	result := s.db.WithContext(ctx).Where("user_id = ?", userID).Limit(1).Find(&stats)
	if result.Error != nil {
		s.logger.Error("stats select failed", zap.String("operation", opStats), zap.String("user_id", userID), zap.Error(result.Error))
		return UserStats{}, apperrors.Internal(opStats, "select_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return UserStats{UserID: userID}, nil
	}
	return stats, nil
}

// Achievements lists the user's unlocked achievements, oldest first.
func (s *Service) Achievements(ctx context.Context, userID string) ([]Achievement, error) {
	var achievements []Achievement
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("unlocked_at ASC, code ASC").
		Find(&achievements).Error; err != nil {
		s.logger.Error("achievements select failed", zap.String("operation", opAchievements), zap.String("user_id", userID), zap.Error(err))
		return nil, apperrors.Internal(opAchievements, "select_failed", err)
	}
	return achievements, nil
}
