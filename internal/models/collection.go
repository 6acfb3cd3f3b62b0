package models

import (
	"time"

	"docstack/internal/identity"
)

// DocumentCollection groups documents that share one embedding model and one
// vector-index collection. InternalName is the name of the backing Milvus
// collection; it is generated once, unique, and never changes. The Milvus
// collection is created in the same logical unit as this row; a collection
// row without a backing index must never become queryable.
type DocumentCollection struct {
	ID identity.CollectionID `gorm:"primaryKey;size:64"`

	// DisplayName is what users see; it may be empty.
	DisplayName string `gorm:"size:255"`

	// InternalName satisfies the vector index's naming constraints
	// (3-63 chars of [a-zA-Z0-9._-], alphanumeric ends, no "..", not an
	// IPv4 address).
	InternalName string `gorm:"uniqueIndex;not null;size:63"`

	OwnerMembershipID identity.MembershipID `gorm:"index;not null;size:64"`
	OrganizationID    identity.OrgID        `gorm:"index;not null;size:64"`

	Model     string    `gorm:"not null;size:255"`
	ModelType ModelType `gorm:"type:varchar(32);not null"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (DocumentCollection) TableName() string {
	return "document_collections"
}

// CollectionStats is the read model behind the UI progress indicator.
type CollectionStats struct {
	TotalDocumentCount   int64 `json:"totalDocumentCount"`
	IndexedDocumentCount int64 `json:"indexedDocumentCount"`
}
