// Package activity keeps per-user counters and unlocks achievements when they cross thresholds.
package activity

import "time"

// Metric names a per-user counter; the value doubles as the column name.
type Metric string

const (
	MetricBoardsCreated       Metric = "boards_created"
	MetricColumnsCreated      Metric = "columns_created"
	MetricTasksCreated        Metric = "tasks_created"
	MetricTasksCompleted      Metric = "tasks_completed"
	MetricInvitationsSent     Metric = "invitations_sent"
	MetricInvitationsAccepted Metric = "invitations_accepted"
)

func (m Metric) valid() bool {
	switch m {
	case MetricBoardsCreated, MetricColumnsCreated, MetricTasksCreated,
		MetricTasksCompleted, MetricInvitationsSent, MetricInvitationsAccepted:
		return true
	}
	return false
}

// AchievementCode identifies an unlockable achievement.
type AchievementCode string

const (
	AchievementFirstBoard        AchievementCode = "FIRST_BOARD"
	AchievementFirstTask         AchievementCode = "FIRST_TASK"
	AchievementTasksCompleted10  AchievementCode = "TASKS_COMPLETED_10"
	AchievementTasksCompleted100 AchievementCode = "TASKS_COMPLETED_100"
	AchievementTeamPlayer        AchievementCode = "TEAM_PLAYER"
	AchievementRecruiter         AchievementCode = "RECRUITER"
)

type threshold struct {
	code   AchievementCode
	metric Metric
	value  int64
}

var thresholds = []threshold{
	{code: AchievementFirstBoard, metric: MetricBoardsCreated, value: 1},
	{code: AchievementFirstTask, metric: MetricTasksCreated, value: 1},
	{code: AchievementTasksCompleted10, metric: MetricTasksCompleted, value: 10},
	{code: AchievementTasksCompleted100, metric: MetricTasksCompleted, value: 100},
	{code: AchievementTeamPlayer, metric: MetricInvitationsAccepted, value: 1},
	{code: AchievementRecruiter, metric: MetricInvitationsSent, value: 5},
}

// UserStats holds the counters for one user.
type UserStats struct {
	UserID              string    `gorm:"column:user_id;primaryKey;size:64" json:"userId"`
	BoardsCreated       int64     `gorm:"column:boards_created;not null;default:0" json:"boardsCreated"`
	ColumnsCreated      int64     `gorm:"column:columns_created;not null;default:0" json:"columnsCreated"`
	TasksCreated        int64     `gorm:"column:tasks_created;not null;default:0" json:"tasksCreated"`
	TasksCompleted      int64     `gorm:"column:tasks_completed;not null;default:0" json:"tasksCompleted"`
	InvitationsSent     int64     `gorm:"column:invitations_sent;not null;default:0" json:"invitationsSent"`
	InvitationsAccepted int64     `gorm:"column:invitations_accepted;not null;default:0" json:"invitationsAccepted"`
	UpdatedAt           time.Time `gorm:"column:updated_at" json:"updatedAt"`
}

func (UserStats) TableName() string {
	return "user_stats"
}

func (s UserStats) value(metric Metric) int64 {
	switch metric {
	case MetricBoardsCreated:
		return s.BoardsCreated
	case MetricColumnsCreated:
		return s.ColumnsCreated
	case MetricTasksCreated:
		return s.TasksCreated
	case MetricTasksCompleted:
		return s.TasksCompleted
	case MetricInvitationsSent:
		return s.InvitationsSent
	case MetricInvitationsAccepted:
		return s.InvitationsAccepted
	}
	return 0
}

// Achievement is an unlocked achievement; (user_id, code) is unique.
type Achievement struct {
	ID         string          `gorm:"column:id;primaryKey;size:64" json:"id"`
	UserID     string          `gorm:"column:user_id;size:64;not null;uniqueIndex:idx_achievements_user_code" json:"userId"`
	Code       AchievementCode `gorm:"column:code;size:64;not null;uniqueIndex:idx_achievements_user_code" json:"code"`
	UnlockedAt time.Time       `gorm:"column:unlocked_at;not null" json:"unlockedAt"`
}

func (Achievement) TableName() string {
	return "achievements"
}
