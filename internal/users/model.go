package users

import (
	"strings"
	"time"
)

// User is a registered account.
type User struct {
	ID           string    `gorm:"column:id;primaryKey;size:64" json:"id"`
	Email        string    `gorm:"column:email;size:320;not null;uniqueIndex" json:"email"`
	Name         string    `gorm:"column:name;size:320" json:"name"`
	PasswordHash string    `gorm:"column:password_hash;size:255;not null" json:"-"`
	PushToken    string    `gorm:"column:push_token;size:512" json:"-"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// TableName exposes the table backing user accounts.
func (User) TableName() string {
	return "users"
}

// NormalizeEmail lowercases and trims an address so lookups are case insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
