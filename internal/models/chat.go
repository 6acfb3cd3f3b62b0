package models

import (
	"time"

	"gorm.io/gorm"

	"docstack/internal/identity"
)

// Chat belongs to exactly one membership (its creator). A chat bound to a
// collection retrieves passages from it ("chat with docs"); an unbound chat
// talks to the model directly. Chats are soft-deleted: messages keep
// referencing them, so rows are never physically removed.
type Chat struct {
	ID           identity.ChatID       `gorm:"primaryKey;size:64"`
	MembershipID identity.MembershipID `gorm:"index;not null;size:64"`

	// CollectionID is nil for chat-with-model mode.
	CollectionID *identity.CollectionID `gorm:"index;size:64"`

	Title string `gorm:"size:255"`

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

func (Chat) TableName() string {
	return "chats"
}

// ChatRole is the author role of a message.
type ChatRole string

const (
	ChatRoleSystem    ChatRole = "SYSTEM"
	ChatRoleUser      ChatRole = "USER"
	ChatRoleAssistant ChatRole = "ASSISTANT"
	ChatRoleFunction  ChatRole = "FUNCTION"
)

// ChatMessage is append-only: never mutated after creation.
type ChatMessage struct {
	ID      identity.MessageID `gorm:"primaryKey;size:64"`
	ChatID  identity.ChatID    `gorm:"index;not null;size:64"`
	Role    ChatRole           `gorm:"type:varchar(16);not null"`
	Content string             `gorm:"type:text;not null"`

	CreatedAt time.Time
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}
