package models

import (
	"time"

	"docstack/internal/identity"
)

// Citation links an assistant message to the chunk that supported it. Created
// only as a side effect of a retrieval-backed reply, then immutable. Score is
// the similarity value the vector index returned, stored as-is. Positional
// metadata (page label, line range) is resolved from the chunk's stored
// descriptor at response-construction time, not duplicated here.
type Citation struct {
	ID            identity.CitationID `gorm:"primaryKey;size:64"`
	ChatMessageID identity.MessageID  `gorm:"index;not null;size:64"`
	DocumentID    identity.DocumentID `gorm:"index;not null;size:64"`

	// ChunkID is the external identifier of the chunk in the vector index.
	ChunkID string  `gorm:"not null;size:128"`
	Score   float64 `gorm:"not null"`

	CreatedAt time.Time
}

func (Citation) TableName() string {
	return "citations"
}
