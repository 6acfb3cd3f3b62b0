// Package collection owns document collections and their binding to the
// vector index. Creating a collection creates the backing vector-index
// collection in the same logical unit as the database row.
package collection

import (
	"context"
	"fmt"

	"docstack/internal/identity"
	"docstack/internal/models"
	"docstack/pkg/logger"
)

// CollectionStore is the persistence surface the service needs.
type CollectionStore interface {
	Transaction(ctx context.Context, fn func(CollectionStore) error) error
	CreateCollection(ctx context.Context, coll *models.DocumentCollection) error
	GetCollection(ctx context.Context, id identity.CollectionID) (*models.DocumentCollection, error)
	ListCollections(ctx context.Context, orgID identity.OrgID) ([]models.DocumentCollection, error)
	GetCollectionStats(ctx context.Context, id identity.CollectionID) (*models.CollectionStats, error)
}

// VectorIndex is the slice of the vector database the service needs:
// per-collection create, plus drop to compensate a failed create.
type VectorIndex interface {
	CreateCollection(ctx context.Context, name string) error
	DropCollection(ctx context.Context, name string) error
}

// Tenancy is the slice of the tenancy service the collection service needs.
type Tenancy interface {
	GetOrganization(ctx context.Context, idOrSlug string) (*models.Organization, error)
	ActiveMembership(ctx context.Context, userID identity.UserID, orgID identity.OrgID) (*models.OrgMembership, error)
	IsActiveMember(ctx context.Context, userID identity.UserID, orgIDOrSlug string) (bool, error)
	HasReadDocumentCollectionPermission(ctx context.Context, userID identity.UserID, collectionID identity.CollectionID) (bool, error)
}

// Service implements document-collection operations.
type Service struct {
	store   CollectionStore
	vectors VectorIndex
	tenancy Tenancy
	log     *logger.Logger
}

// NewService creates a collection service.
func NewService(store CollectionStore, vectors VectorIndex, tenancy Tenancy, log *logger.Logger) *Service {
	return &Service{store: store, vectors: vectors, tenancy: tenancy, log: log}
}

// Create creates a collection and its backing vector-index collection as one
// logical unit. The vector-index create runs inside the database transaction,
// so a failed external create rolls the row back and no orphaned record is
// ever readable. Model and model type default to the organization's when left
// empty.
func (s *Service) Create(ctx context.Context, caller identity.UserID, orgIDOrSlug, displayName, model string, modelType models.ModelType) (*models.DocumentCollection, error) {
	org, err := s.tenancy.GetOrganization(ctx, orgIDOrSlug)
	if err != nil {
		return nil, err
	}
	membership, err := s.tenancy.ActiveMembership(ctx, caller, org.ID)
	if err != nil {
		return nil, err
	}

	if model == "" {
		model = org.DefaultModel
	}
	if modelType == "" {
		modelType = org.DefaultModelType
	}

	internalName, err := GenerateInternalName()
	if err != nil {
		return nil, err
	}

	coll := &models.DocumentCollection{
		ID:                identity.New[identity.CollectionID](),
		DisplayName:       displayName,
		InternalName:      internalName,
		OwnerMembershipID: membership.ID,
		OrganizationID:    org.ID,
		Model:             model,
		ModelType:         modelType,
	}

	indexCreated := false
	err = s.store.Transaction(ctx, func(tx CollectionStore) error {
		if err := tx.CreateCollection(ctx, coll); err != nil {
			return fmt.Errorf("unable to persist collection: %w", err)
		}
		if err := s.vectors.CreateCollection(ctx, internalName); err != nil {
			return fmt.Errorf("unable to create vector-index collection '%s': %w", internalName, err)
		}
		indexCreated = true
		return nil
	})
	if err != nil {
		// A commit failure after the external create succeeded would leave an
		// index with no row; drop it best-effort.
		if indexCreated {
			if dropErr := s.vectors.DropCollection(ctx, internalName); dropErr != nil {
				s.log.WithError(models.ErrorInfo{Message: dropErr.Error()}).
					Error("failed to drop vector-index collection after rollback")
			}
		}
		return nil, err
	}

	s.log.WithPayload(map[string]interface{}{
		"collection_id":   string(coll.ID),
		"internal_name":   internalName,
		"organization_id": string(org.ID),
	}).Info("collection created")
	return coll, nil
}

// Get returns the collection if the caller may read it.
func (s *Service) Get(ctx context.Context, caller identity.UserID, id identity.CollectionID) (*models.DocumentCollection, error) {
	ok, err := s.tenancy.HasReadDocumentCollectionPermission(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("caller may not read collection '%s': %w", id, models.ErrForbidden)
	}
	return s.store.GetCollection(ctx, id)
}

// List returns the organization's collections. Caller must be an active
// member of the organization.
func (s *Service) List(ctx context.Context, caller identity.UserID, orgIDOrSlug string) ([]models.DocumentCollection, error) {
	org, err := s.tenancy.GetOrganization(ctx, orgIDOrSlug)
	if err != nil {
		return nil, err
	}
	ok, err := s.tenancy.IsActiveMember(ctx, caller, string(org.ID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("caller is not a member of '%s': %w", org.Slug, models.ErrForbidden)
	}
	return s.store.ListCollections(ctx, org.ID)
}

// GetStats returns the document counts behind the indexing progress
// indicator. Permission-checked like any other collection read.
func (s *Service) GetStats(ctx context.Context, caller identity.UserID, id identity.CollectionID) (*models.CollectionStats, error) {
	ok, err := s.tenancy.HasReadDocumentCollectionPermission(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("caller may not read collection '%s': %w", id, models.ErrForbidden)
	}
	return s.store.GetCollectionStats(ctx, id)
}
