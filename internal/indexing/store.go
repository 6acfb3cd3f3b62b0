package indexing

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"docstack/internal/identity"
	"docstack/internal/models"
)

// Store wraps all document and indexing-state database operations.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new Store instance.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Transaction runs fn against a transactional copy of the store.
func (s *Store) Transaction(ctx context.Context, fn func(DocumentStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// CreateDocument persists a document row.
func (s *Store) CreateDocument(ctx context.Context, doc *models.Document) error {
	return s.db.WithContext(ctx).Create(doc).Error
}

// CreateLink persists the (document, collection) join row.
func (s *Store) CreateLink(ctx context.Context, link *models.DocumentToCollection) error {
	return s.db.WithContext(ctx).Create(link).Error
}

// GetDocument looks up a document by ID.
func (s *Store) GetDocument(ctx context.Context, id identity.DocumentID) (*models.Document, error) {
	var doc models.Document
	err := s.db.WithContext(ctx).First(&doc, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("document '%s': %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// GetLink looks up the join row for a (document, collection) pair.
func (s *Store) GetLink(ctx context.Context, documentID identity.DocumentID, collectionID identity.CollectionID) (*models.DocumentToCollection, error) {
	var link models.DocumentToCollection
	err := s.db.WithContext(ctx).
		First(&link, "document_id = ? AND collection_id = ?", documentID, collectionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("document '%s' in collection '%s': %w", documentID, collectionID, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &link, nil
}

// ListDocuments returns the documents in a collection with their
// per-collection indexing status, newest first.
func (s *Store) ListDocuments(ctx context.Context, collectionID identity.CollectionID) ([]DocumentWithStatus, error) {
	var out []DocumentWithStatus
	err := s.db.WithContext(ctx).
		Model(&models.Document{}).
		Select("documents.*, documents_to_collections.indexing_status").
		Joins("JOIN documents_to_collections ON documents_to_collections.document_id = documents.id").
		Where("documents_to_collections.collection_id = ?", collectionID).
		Order("documents.created_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateIndexingStatus transitions the join row's status, enforcing the state
// machine. The read and write share one transaction so two concurrent
// transitions can't interleave into an illegal state.
func (s *Store) UpdateIndexingStatus(ctx context.Context, documentID identity.DocumentID, collectionID identity.CollectionID, next models.IndexingStatus) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var link models.DocumentToCollection
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&link, "document_id = ? AND collection_id = ?", documentID, collectionID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("document '%s' in collection '%s': %w", documentID, collectionID, models.ErrNotFound)
		}
		if err != nil {
			return err
		}
		if !link.IndexingStatus.CanTransitionTo(next) {
			return fmt.Errorf("illegal indexing transition %s -> %s for document '%s': %w",
				link.IndexingStatus, next, documentID, models.ErrInvalidArgument)
		}
		return tx.Model(&models.DocumentToCollection{}).
			Where("id = ?", link.ID).
			Update("indexing_status", next).Error
	})
}

// DocumentWithStatus is the read model for collection document listings.
type DocumentWithStatus struct {
	models.Document
	IndexingStatus models.IndexingStatus `json:"indexingStatus"`
}
