package tasks

import (
	"time"

	"gorm.io/datatypes"
)

// Priority ranks task urgency.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// ParsePriority validates a raw priority; empty input yields MEDIUM.
func ParsePriority(raw string) (Priority, bool) {
	switch Priority(raw) {
	case "":
		return PriorityMedium, true
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return Priority(raw), true
	}
	return "", false
}

// Task is a card inside a column. Position orders tasks top to bottom.
type Task struct {
	ID          string                      `gorm:"column:id;primaryKey;size:64" json:"id"`
	ColumnID    string                      `gorm:"column:column_id;size:64;not null;index:idx_tasks_column_position,priority:1" json:"columnId"`
	Title       string                      `gorm:"column:title;size:255;not null" json:"title"`
	Description string                      `gorm:"column:description;type:text" json:"description"`
	Position    float64                     `gorm:"column:position;not null;index:idx_tasks_column_position,priority:2" json:"position"`
	Priority    Priority                    `gorm:"column:priority;size:16;not null;default:MEDIUM" json:"priority"`
	Tags        datatypes.JSONSlice[string] `gorm:"column:tags" json:"tags"`
	Deadline    *time.Time                  `gorm:"column:deadline;index" json:"deadline,omitempty"`
	IsCompleted bool                        `gorm:"column:is_completed;not null;default:false" json:"isCompleted"`
	CompletedAt *time.Time                  `gorm:"column:completed_at" json:"completedAt,omitempty"`
	AssigneeID  *string                     `gorm:"column:assignee_id;size:64;index" json:"assigneeId,omitempty"`
	UserID      *string                     `gorm:"column:user_id;size:64" json:"userId,omitempty"`
	CreatedAt   time.Time                   `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt   time.Time                   `gorm:"column:updated_at" json:"updatedAt"`
}

func (Task) TableName() string {
	return "tasks"
}

// DueTask is a task with the board it lives on, as returned by the deadline queries.
type DueTask struct {
	Task    `gorm:"embedded"`
	BoardID string `gorm:"column:board_id"`
}
