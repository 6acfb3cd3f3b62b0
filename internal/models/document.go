package models

import (
	"time"

	"docstack/internal/identity"
)

// IndexingStatus tracks whether a document's chunks are present and queryable
// in the vector index, per (document, collection) pair.
type IndexingStatus string

const (
	// StatusNotIndexed is the initial state, and the state a FAILED document
	// returns to on explicit re-submission.
	StatusNotIndexed IndexingStatus = "NOT_INDEXED"
	// StatusIndexed means chunk+embed+upsert completed for the current cycle.
	StatusIndexed IndexingStatus = "INDEXED"
	// StatusFailed means processing hit a permanent error; it stays terminal
	// until an explicit re-submission.
	StatusFailed IndexingStatus = "FAILED"
)

// CanTransitionTo encodes the indexing state machine. Documents are never
// mutated in place, so the only way out of INDEXED is an explicit re-index,
// which resets to NOT_INDEXED. Same-state transitions are allowed so that
// redelivered messages converge instead of erroring.
func (s IndexingStatus) CanTransitionTo(next IndexingStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case StatusNotIndexed:
		return next == StatusIndexed || next == StatusFailed
	case StatusFailed, StatusIndexed:
		return next == StatusNotIndexed
	default:
		return false
	}
}

// Document is a single ingested item. Raw bytes live in object storage under
// a key derived from (org, collection, document); collection membership and
// per-collection indexing state live in DocumentToCollection.
type Document struct {
	ID       identity.DocumentID `gorm:"primaryKey;size:64"`
	Name     string              `gorm:"not null;size:255"`
	MimeType string              `gorm:"not null;size:255"`

	// ExternalID identifies the source item for documents linked from an
	// external data source rather than uploaded directly.
	ExternalID string `gorm:"size:512"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Document) TableName() string {
	return "documents"
}

// DocumentToCollection records that a document participates in a collection.
// A document shared across collections carries an independent indexing state
// in each.
type DocumentToCollection struct {
	ID           uint                  `gorm:"primaryKey"`
	DocumentID   identity.DocumentID   `gorm:"index:idx_doc_coll,unique,priority:1;not null;size:64"`
	CollectionID identity.CollectionID `gorm:"index:idx_doc_coll,unique,priority:2;index:idx_coll_status,priority:1;not null;size:64"`

	IndexingStatus IndexingStatus `gorm:"type:varchar(16);index:idx_coll_status,priority:2;not null;default:'NOT_INDEXED'"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (DocumentToCollection) TableName() string {
	return "documents_to_collections"
}
