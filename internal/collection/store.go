package collection

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"docstack/internal/identity"
	"docstack/internal/models"
)

// Store wraps all document-collection database operations.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new Store instance.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Transaction runs fn against a transactional copy of the store.
func (s *Store) Transaction(ctx context.Context, fn func(CollectionStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// CreateCollection persists a new collection row.
func (s *Store) CreateCollection(ctx context.Context, coll *models.DocumentCollection) error {
	return s.db.WithContext(ctx).Create(coll).Error
}

// GetCollection looks up a collection by ID.
func (s *Store) GetCollection(ctx context.Context, id identity.CollectionID) (*models.DocumentCollection, error) {
	var coll models.DocumentCollection
	err := s.db.WithContext(ctx).First(&coll, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("collection '%s': %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &coll, nil
}

// ListCollections returns every collection in the organization, newest first.
func (s *Store) ListCollections(ctx context.Context, orgID identity.OrgID) ([]models.DocumentCollection, error) {
	var colls []models.DocumentCollection
	err := s.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("created_at DESC").
		Find(&colls).Error
	if err != nil {
		return nil, err
	}
	return colls, nil
}

// GetCollectionStats computes total and indexed document counts in one
// transaction, so a concurrent status transition can't produce a snapshot
// where indexed exceeds total.
func (s *Store) GetCollectionStats(ctx context.Context, id identity.CollectionID) (*models.CollectionStats, error) {
	var stats models.CollectionStats
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.DocumentToCollection{}).
			Where("collection_id = ?", id).
			Count(&stats.TotalDocumentCount).Error; err != nil {
			return err
		}
		return tx.Model(&models.DocumentToCollection{}).
			Where("collection_id = ? AND indexing_status = ?", id, models.StatusIndexed).
			Count(&stats.IndexedDocumentCount).Error
	})
	if err != nil {
		return nil, fmt.Errorf("unable to compute stats for collection '%s': %w", id, err)
	}
	return &stats, nil
}
