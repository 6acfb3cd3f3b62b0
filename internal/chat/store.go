package chat

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"docstack/internal/identity"
	"docstack/internal/models"
)

// Store wraps all chat, message, and citation database operations. Chats are
// soft-deleted, so lookups naturally exclude deleted rows.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new Store instance.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Transaction runs fn against a transactional copy of the store.
func (s *Store) Transaction(ctx context.Context, fn func(ChatStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// CreateChat persists a chat row.
func (s *Store) CreateChat(ctx context.Context, chat *models.Chat) error {
	return s.db.WithContext(ctx).Create(chat).Error
}

// GetChat looks up a chat by ID. Soft-deleted chats are not found.
func (s *Store) GetChat(ctx context.Context, id identity.ChatID) (*models.Chat, error) {
	var chat models.Chat
	err := s.db.WithContext(ctx).First(&chat, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("chat '%s': %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

// ListChats returns the membership's chats, newest first.
func (s *Store) ListChats(ctx context.Context, membershipID identity.MembershipID) ([]models.Chat, error) {
	var chats []models.Chat
	err := s.db.WithContext(ctx).
		Where("membership_id = ?", membershipID).
		Order("created_at DESC").
		Find(&chats).Error
	if err != nil {
		return nil, err
	}
	return chats, nil
}

// DeleteChat soft-deletes a chat. Messages keep referencing it.
func (s *Store) DeleteChat(ctx context.Context, id identity.ChatID) error {
	res := s.db.WithContext(ctx).Delete(&models.Chat{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("chat '%s': %w", id, models.ErrNotFound)
	}
	return nil
}

// CreateMessage appends a message to a chat.
func (s *Store) CreateMessage(ctx context.Context, msg *models.ChatMessage) error {
	return s.db.WithContext(ctx).Create(msg).Error
}

// ListMessages returns the chat's messages in creation order.
func (s *Store) ListMessages(ctx context.Context, chatID identity.ChatID) ([]models.ChatMessage, error) {
	var msgs []models.ChatMessage
	err := s.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

// CreateCitation persists a citation row.
func (s *Store) CreateCitation(ctx context.Context, citation *models.Citation) error {
	return s.db.WithContext(ctx).Create(citation).Error
}

// ListCitations returns the citations attached to a message.
func (s *Store) ListCitations(ctx context.Context, messageID identity.MessageID) ([]models.Citation, error) {
	var citations []models.Citation
	err := s.db.WithContext(ctx).
		Where("chat_message_id = ?", messageID).
		Order("score DESC").
		Find(&citations).Error
	if err != nil {
		return nil, err
	}
	return citations, nil
}
