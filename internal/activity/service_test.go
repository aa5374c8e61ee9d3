package activity

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

type recordingAnnouncer struct {
	mu    sync.Mutex
	codes []AchievementCode
	err   error
}

func (a *recordingAnnouncer) AchievementUnlocked(_ context.Context, _ string, code AchievementCode) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.codes = append(a.codes, code)
	return a.err
}

func newTestService(t *testing.T, announcer Announcer, logger *zap.Logger) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "activity.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&UserStats{}, &Achievement{}))

	service, err := NewService(ServiceConfig{
		Database:  db,
		Announcer: announcer,
		Logger:    logger,
		Clock: func() time.Time {
			return time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
		},
	})
	require.NoError(t, err)
	return service
}

func TestRecordIncrementsCountersAndUnlocksOnce(t *testing.T) {
	announcer := &recordingAnnouncer{}
	service := newTestService(t, announcer, nil)
	ctx := context.Background()

	service.Record(ctx, "user-1", MetricBoardsCreated)
	service.Record(ctx, "user-1", MetricBoardsCreated)

	stats, err := service.Stats(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(2), stats.BoardsCreated)
	require.Equal(t, []AchievementCode{AchievementFirstBoard}, announcer.codes)

	achievements, err := service.Achievements(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, achievements, 1)
	require.Equal(t, AchievementFirstBoard, achievements[0].Code)
}

func TestRecordUnlocksCompletionThreshold(t *testing.T) {
	announcer := &recordingAnnouncer{}
	service := newTestService(t, announcer, nil)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		service.Record(ctx, "user-1", MetricTasksCompleted)
	}

	require.Equal(t, []AchievementCode{AchievementTasksCompleted10}, announcer.codes)
	stats, err := service.Stats(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(10), stats.TasksCompleted)
}

func TestRecordSwallowsAnnouncerFailures(t *testing.T) {
	core, recorded := observer.New(zapcore.WarnLevel)
	announcer := &recordingAnnouncer{err: errors.New("push offline")}
	service := newTestService(t, announcer, zap.New(core))

	service.Record(context.Background(), "user-1", MetricInvitationsAccepted)

	require.Equal(t, []AchievementCode{AchievementTeamPlayer}, announcer.codes)
	require.Equal(t, 1, recorded.FilterMessage("achievement announcement failed").Len())
}

func TestStatsForUnknownUserAreZero(t *testing.T) {
	service := newTestService(t, nil, nil)

	stats, err := service.Stats(context.Background(), "nobody")
	require.NoError(t, err)
	require.Equal(t, UserStats{UserID: "nobody"}, stats)
}

func TestRecordIgnoresUnknownMetric(t *testing.T) {
	service := newTestService(t, nil, nil)
	service.Record(context.Background(), "user-1", Metric("bogus"))

	stats, err := service.Stats(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, UserStats{UserID: "user-1"}, stats)
}
