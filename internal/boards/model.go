// Package boards owns boards, their membership rows and the role resolution every
// board-scoped operation is gated on.
package boards

import "time"

// Role is a board-scoped permission level.
type Role string

const (
	RoleOwner Role = "OWNER"
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
)

// ParseRole validates a raw role name.
func ParseRole(raw string) (Role, bool) {
	role := Role(raw)
	switch role {
	case RoleOwner, RoleAdmin, RoleUser:
		return role, true
	}
	return "", false
}

func (r Role) rank() int {
	switch r {
	case RoleOwner:
		return 3
	case RoleAdmin:
		return 2
	case RoleUser:
		return 1
	}
	return 0
}

// AtLeast reports whether r grants at least the privileges of min.
func (r Role) AtLeast(min Role) bool {
	return r.rank() > 0 && r.rank() >= min.rank()
}

// Board is a kanban board owned by exactly one user.
type Board struct {
	ID          string    `gorm:"column:id;primaryKey;size:64" json:"id"`
	Title       string    `gorm:"column:title;size:255;not null" json:"title"`
	Description string    `gorm:"column:description;type:text" json:"description"`
	OwnerUserID string    `gorm:"column:owner_user_id;size:64;not null;index" json:"ownerUserId"`
	Position    float64   `gorm:"column:position;not null;default:0" json:"position"`
	CreatedAt   time.Time `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"column:updated_at" json:"updatedAt"`
}

func (Board) TableName() string {
	return "boards"
}

// Member grants a non-owner access to a board. The owner never has a row.
type Member struct {
	ID      string    `gorm:"column:id;primaryKey;size:64" json:"id"`
	BoardID string    `gorm:"column:board_id;size:64;not null;uniqueIndex:idx_board_members_board_user" json:"boardId"`
	UserID  string    `gorm:"column:user_id;size:64;not null;uniqueIndex:idx_board_members_board_user;index" json:"userId"`
	Role    Role      `gorm:"column:role;size:16;not null" json:"role"`
	AddedBy string    `gorm:"column:added_by;size:64" json:"addedBy"`
	AddedAt time.Time `gorm:"column:added_at;not null" json:"addedAt"`
}

func (Member) TableName() string {
	return "board_members"
}
