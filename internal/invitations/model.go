package invitations

import (
	"time"

	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/boards"
)

// Status is the lifecycle state of an invitation. Only PENDING has outgoing transitions.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusAccepted Status = "ACCEPTED"
	StatusRejected Status = "REJECTED"
	StatusExpired  Status = "EXPIRED"
)

// PendingIndexName names the partial unique index that keeps one PENDING invitation per (board, email).
const PendingIndexName = "idx_board_invitations_pending"

// PendingIndexSQL creates PendingIndexName on dialects with partial index support.
const PendingIndexSQL = "CREATE UNIQUE INDEX IF NOT EXISTS " + PendingIndexName +
	" ON board_invitations (board_id, email) WHERE status = 'PENDING'"

// Invitation grants Role on BoardID to whoever holds Token and matches Email or ReceiverID.
type Invitation struct {
	ID          string      `gorm:"column:id;primaryKey;size:64" json:"id"`
	BoardID     string      `gorm:"column:board_id;size:64;not null;index:idx_board_invitations_board_email,priority:1" json:"boardId"`
	SenderID    string      `gorm:"column:sender_id;size:64;not null" json:"senderId"`
	ReceiverID  *string     `gorm:"column:receiver_id;size:64;index" json:"receiverId,omitempty"`
	Email       string      `gorm:"column:email;size:320;not null;index:idx_board_invitations_board_email,priority:2" json:"email"`
	Role        boards.Role `gorm:"column:role;size:16;not null" json:"role"`
	Token       string      `gorm:"column:token;size:128;not null;uniqueIndex" json:"-"`
	Status      Status      `gorm:"column:status;size:16;not null;index" json:"status"`
	CreatedAt   time.Time   `gorm:"column:created_at;not null" json:"createdAt"`
	ExpiresAt   time.Time   `gorm:"column:expires_at;not null" json:"expiresAt"`
	RespondedAt *time.Time  `gorm:"column:responded_at" json:"respondedAt,omitempty"`
}

func (Invitation) TableName() string {
	return "board_invitations"
}

// Expired reports whether a PENDING invitation has run past its deadline at now.
func (i Invitation) Expired(now time.Time) bool {
	return i.Status == StatusPending && i.ExpiresAt.Before(now)
}

// MemberView is one participant of a board as listed to other participants.
type MemberView struct {
	UserID  string      `json:"userId"`
	Email   string      `json:"email"`
	Name    string      `json:"name"`
	Role    boards.Role `json:"role"`
	AddedBy string      `json:"addedBy,omitempty"`
	AddedAt time.Time   `json:"addedAt"`
}
