package tenancy

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"docstack/internal/identity"
	"docstack/internal/models"
)

// Store wraps all organization and membership database operations.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new Store instance.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Transaction runs fn against a transactional copy of the store.
func (s *Store) Transaction(ctx context.Context, fn func(MembershipStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// CreateOrganization persists a new organization.
func (s *Store) CreateOrganization(ctx context.Context, org *models.Organization) error {
	return s.db.WithContext(ctx).Create(org).Error
}

// GetOrganization looks up an organization by ID or slug; the two are
// interchangeable for lookup.
func (s *Store) GetOrganization(ctx context.Context, idOrSlug string) (*models.Organization, error) {
	var org models.Organization
	err := s.db.WithContext(ctx).Where("id = ? OR slug = ?", idOrSlug, idOrSlug).First(&org).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("organization '%s': %w", idOrSlug, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
}

// CreateUser persists a new user row.
func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	return s.db.WithContext(ctx).Create(user).Error
}

// GetUser looks up a user by ID.
func (s *Store) GetUser(ctx context.Context, id identity.UserID) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("user '%s': %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateMembership persists a membership row.
func (s *Store) CreateMembership(ctx context.Context, m *models.OrgMembership) error {
	return s.db.WithContext(ctx).Create(m).Error
}

// GetMembership looks up a membership by ID.
func (s *Store) GetMembership(ctx context.Context, id identity.MembershipID) (*models.OrgMembership, error) {
	var m models.OrgMembership
	err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("membership '%s': %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListActiveMemberships returns every ACTIVE membership for the pair. The
// caller enforces the at-most-one invariant; returning the full list is what
// lets it detect a violation instead of silently picking one.
func (s *Store) ListActiveMemberships(ctx context.Context, userID identity.UserID, orgID identity.OrgID) ([]models.OrgMembership, error) {
	var memberships []models.OrgMembership
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND organization_id = ? AND status = ?", userID, orgID, models.MembershipActive).
		Find(&memberships).Error
	if err != nil {
		return nil, err
	}
	return memberships, nil
}

// UpdateMembershipStatus toggles a membership between ACTIVE and INACTIVE.
func (s *Store) UpdateMembershipStatus(ctx context.Context, id identity.MembershipID, status models.MembershipStatus) error {
	res := s.db.WithContext(ctx).
		Model(&models.OrgMembership{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("membership '%s': %w", id, models.ErrNotFound)
	}
	return nil
}
