package models

import (
	"time"

	"gorm.io/datatypes"

	"docstack/internal/identity"
)

// Organization is the tenant boundary. Every chat, document and collection
// belongs to an organization through a membership, never to a user directly.
type Organization struct {
	ID   identity.OrgID `gorm:"primaryKey;size:64"`
	Name string         `gorm:"not null;size:255"`

	// Slug is unique and usable interchangeably with the ID for lookups.
	Slug string `gorm:"uniqueIndex;not null;size:255"`

	// DefaultModel and DefaultModelType are used when a collection does not
	// override them.
	DefaultModel     string    `gorm:"not null;size:255"`
	DefaultModelType ModelType `gorm:"type:varchar(32);not null"`

	Settings datatypes.JSON

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Organization) TableName() string {
	return "organizations"
}

// ModelType identifies the family of model provider backing a collection.
type ModelType string

const (
	ModelTypeOpenAI ModelType = "openai"
	ModelTypeOllama ModelType = "ollama"
)
