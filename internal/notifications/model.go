// Package notifications stores in-app notifications and forwards them to devices.
package notifications

import (
	"time"

	"gorm.io/datatypes"
)

// Type classifies a notification.
type Type string

const (
	TypeBoardInvitation     Type = "BOARD_INVITATION"
	TypeInvitationAccepted  Type = "INVITATION_ACCEPTED"
	TypeInvitationDeclined  Type = "INVITATION_DECLINED"
	TypeMemberRemoved       Type = "MEMBER_REMOVED"
	TypeTaskAssigned        Type = "TASK_ASSIGNED"
	TypeDeadlineApproaching Type = "DEADLINE_APPROACHING"
	TypeTaskOverdue         Type = "TASK_OVERDUE"
	TypeAchievementUnlocked Type = "ACHIEVEMENT_UNLOCKED"
)

// Notification is one in-app message addressed to a user.
type Notification struct {
	ID        string            `gorm:"column:id;primaryKey;size:64" json:"id"`
	UserID    string            `gorm:"column:user_id;size:64;not null;index:idx_notifications_user_created,priority:1" json:"userId"`
	Type      Type              `gorm:"column:type;size:32;not null" json:"type"`
	Title     string            `gorm:"column:title;size:255;not null" json:"title"`
	Message   string            `gorm:"column:message;type:text" json:"message"`
	BoardID   *string           `gorm:"column:board_id;size:64;index" json:"boardId,omitempty"`
	TaskID    *string           `gorm:"column:task_id;size:64;index" json:"taskId,omitempty"`
	Data      datatypes.JSONMap `gorm:"column:data" json:"data,omitempty"`
	IsRead    bool              `gorm:"column:is_read;not null;default:false" json:"isRead"`
	CreatedAt time.Time         `gorm:"column:created_at;not null;index:idx_notifications_user_created,priority:2" json:"createdAt"`
}

func (Notification) TableName() string {
	return "notifications"
}

// Input describes a notification to create.
type Input struct {
	UserID  string
	Type    Type
	Title   string
	Message string
	BoardID string
	TaskID  string
	Data    map[string]interface{}
}
