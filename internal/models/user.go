package models

import (
	"time"

	"docstack/internal/identity"
)

// User is a login identity. Credential handling (password hashing, token
// issuance) lives outside this service; the user row exists so memberships
// have something to point at. Rows are created lazily the first time an
// authenticated user id appears, so profile fields may be empty until the
// identity provider backfills them.
type User struct {
	ID    identity.UserID `gorm:"primaryKey;size:64"`
	Email string          `gorm:"index;size:255"`
	Name  string          `gorm:"size:255"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (User) TableName() string {
	return "users"
}
