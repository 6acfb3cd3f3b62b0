// Package tenancy owns organizations, memberships, and every permission
// check in the system. All chat and collection ownership chains through a
// membership, so deactivating one instantly revokes access to everything
// created under it.
package tenancy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"docstack/internal/identity"
	"docstack/internal/models"
	"docstack/pkg/logger"
)

// membershipCacheTTL bounds how stale a cached ACTIVE-membership hit can be.
// Deactivation invalidates explicitly; the TTL covers writes from elsewhere.
const membershipCacheTTL = 30 * time.Second

// MembershipStore is the persistence surface the service needs.
type MembershipStore interface {
	Transaction(ctx context.Context, fn func(MembershipStore) error) error
	CreateOrganization(ctx context.Context, org *models.Organization) error
	GetOrganization(ctx context.Context, idOrSlug string) (*models.Organization, error)
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id identity.UserID) (*models.User, error)
	CreateMembership(ctx context.Context, m *models.OrgMembership) error
	GetMembership(ctx context.Context, id identity.MembershipID) (*models.OrgMembership, error)
	ListActiveMemberships(ctx context.Context, userID identity.UserID, orgID identity.OrgID) ([]models.OrgMembership, error)
	UpdateMembershipStatus(ctx context.Context, id identity.MembershipID, status models.MembershipStatus) error
}

// ChatGetter resolves chats for the chat-permission checks. Implemented by
// the chat store; declared here so tenancy stays a leaf.
type ChatGetter interface {
	GetChat(ctx context.Context, id identity.ChatID) (*models.Chat, error)
}

// CollectionGetter resolves collections for the collection-permission checks.
type CollectionGetter interface {
	GetCollection(ctx context.Context, id identity.CollectionID) (*models.DocumentCollection, error)
}

// Service implements the tenancy operations and permission checks.
type Service struct {
	store       MembershipStore
	chats       ChatGetter
	collections CollectionGetter
	cache       *redis.Client // nil disables caching
	log         *logger.Logger
}

// NewService creates a tenancy service. cache may be nil.
func NewService(store MembershipStore, chats ChatGetter, collections CollectionGetter, cache *redis.Client, log *logger.Logger) *Service {
	return &Service{store: store, chats: chats, collections: collections, cache: cache, log: log}
}

// CreateOrganization creates an organization and the creator's ADMIN
// membership in one transaction.
func (s *Service) CreateOrganization(ctx context.Context, name, slug string, defaultModel string, defaultModelType models.ModelType, creator identity.UserID) (*models.Organization, *models.OrgMembership, error) {
	if name == "" || slug == "" {
		return nil, nil, fmt.Errorf("organization name and slug are required: %w", models.ErrInvalidArgument)
	}

	org := &models.Organization{
		ID:               identity.New[identity.OrgID](),
		Name:             name,
		Slug:             slug,
		DefaultModel:     defaultModel,
		DefaultModelType: defaultModelType,
	}
	membership := &models.OrgMembership{
		ID:             identity.New[identity.MembershipID](),
		OrganizationID: org.ID,
		UserID:         creator,
		Role:           models.RoleAdmin,
		Status:         models.MembershipActive,
	}

	err := s.store.Transaction(ctx, func(tx MembershipStore) error {
		if err := ensureUser(ctx, tx, creator); err != nil {
			return err
		}
		if err := tx.CreateOrganization(ctx, org); err != nil {
			return fmt.Errorf("unable to create organization: %w", err)
		}
		if err := tx.CreateMembership(ctx, membership); err != nil {
			return fmt.Errorf("unable to create admin membership: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return org, membership, nil
}

// GetOrganization resolves an organization by ID or slug.
func (s *Service) GetOrganization(ctx context.Context, idOrSlug string) (*models.Organization, error) {
	return s.store.GetOrganization(ctx, idOrSlug)
}

// ensureUser creates the user row on first sight. Token issuance lives
// outside this service, so a caller can be authenticated before any row
// exists; membership rows need one to point at. Profile fields arrive out of
// band.
func ensureUser(ctx context.Context, store MembershipStore, id identity.UserID) error {
	_, err := store.GetUser(ctx, id)
	if err == nil {
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return err
	}
	return store.CreateUser(ctx, &models.User{ID: id})
}

// AddMember creates a membership for userID in the organization. Caller must
// hold an ADMIN membership there. Adding a user who already has an ACTIVE
// membership is rejected before anything is written.
func (s *Service) AddMember(ctx context.Context, caller identity.UserID, orgIDOrSlug string, userID identity.UserID, role models.MembershipRole) (*models.OrgMembership, error) {
	org, err := s.store.GetOrganization(ctx, orgIDOrSlug)
	if err != nil {
		return nil, err
	}

	admin, err := s.HasAdminPermission(ctx, caller, orgIDOrSlug)
	if err != nil {
		return nil, err
	}
	if !admin {
		return nil, fmt.Errorf("caller may not manage members of '%s': %w", org.Slug, models.ErrForbidden)
	}

	membership := &models.OrgMembership{
		ID:             identity.New[identity.MembershipID](),
		OrganizationID: org.ID,
		UserID:         userID,
		Role:           role,
		Status:         models.MembershipActive,
	}

	err = s.store.Transaction(ctx, func(tx MembershipStore) error {
		if err := ensureUser(ctx, tx, userID); err != nil {
			return err
		}
		existing, err := tx.ListActiveMemberships(ctx, userID, org.ID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return fmt.Errorf("user already has an active membership in '%s': %w", org.Slug, models.ErrInvalidArgument)
		}
		return tx.CreateMembership(ctx, membership)
	})
	if err != nil {
		return nil, err
	}
	return membership, nil
}

// SetMembershipStatus toggles a membership. Caller must be an admin of the
// membership's organization. The cache entry for the pair is invalidated so
// revocation takes effect immediately.
func (s *Service) SetMembershipStatus(ctx context.Context, caller identity.UserID, id identity.MembershipID, status models.MembershipStatus) error {
	if status != models.MembershipActive && status != models.MembershipInactive {
		return fmt.Errorf("unknown membership status '%s': %w", status, models.ErrInvalidArgument)
	}

	membership, err := s.store.GetMembership(ctx, id)
	if err != nil {
		return err
	}

	admin, err := s.HasAdminPermission(ctx, caller, string(membership.OrganizationID))
	if err != nil {
		return err
	}
	if !admin {
		return fmt.Errorf("caller may not manage members: %w", models.ErrForbidden)
	}

	// Reactivation must not create a duplicate ACTIVE pair.
	if status == models.MembershipActive {
		existing, err := s.store.ListActiveMemberships(ctx, membership.UserID, membership.OrganizationID)
		if err != nil {
			return err
		}
		for _, m := range existing {
			if m.ID != id {
				return fmt.Errorf("user already has an active membership: %w", models.ErrInvalidArgument)
			}
		}
	}

	if err := s.store.UpdateMembershipStatus(ctx, id, status); err != nil {
		return err
	}
	s.invalidateMembershipCache(ctx, membership.UserID, membership.OrganizationID)
	return nil
}

// IsActiveMember reports whether exactly one ACTIVE membership exists for
// (userID, org). No ACTIVE membership is an ordinary "no": deactivated and
// never-joined users both get false. More than one ACTIVE membership is
// corruption and surfaces as ErrDataIntegrity, never as a quiet yes or no.
func (s *Service) IsActiveMember(ctx context.Context, userID identity.UserID, orgIDOrSlug string) (bool, error) {
	org, err := s.store.GetOrganization(ctx, orgIDOrSlug)
	if err != nil {
		return false, err
	}

	if s.cacheHit(ctx, userID, org.ID) {
		return true, nil
	}

	memberships, err := s.store.ListActiveMemberships(ctx, userID, org.ID)
	if err != nil {
		return false, err
	}
	switch len(memberships) {
	case 0:
		return false, nil
	case 1:
		s.cacheStore(ctx, userID, org.ID)
		return true, nil
	default:
		s.log.WithPayload(map[string]interface{}{
			"user_id":         string(userID),
			"organization_id": string(org.ID),
			"active_count":    len(memberships),
		}).Error("duplicate ACTIVE memberships detected")
		return false, fmt.Errorf("found %d active memberships for user '%s' in organization '%s': %w",
			len(memberships), userID, org.ID, models.ErrDataIntegrity)
	}
}

// ActiveMembership returns the single ACTIVE membership for the pair, or
// ErrForbidden when there is none.
func (s *Service) ActiveMembership(ctx context.Context, userID identity.UserID, orgID identity.OrgID) (*models.OrgMembership, error) {
	memberships, err := s.store.ListActiveMemberships(ctx, userID, orgID)
	if err != nil {
		return nil, err
	}
	switch len(memberships) {
	case 0:
		return nil, fmt.Errorf("no active membership in organization '%s': %w", orgID, models.ErrForbidden)
	case 1:
		return &memberships[0], nil
	default:
		return nil, fmt.Errorf("found %d active memberships for user '%s' in organization '%s': %w",
			len(memberships), userID, orgID, models.ErrDataIntegrity)
	}
}

// HasAdminPermission reports whether the caller is an ACTIVE ADMIN member.
func (s *Service) HasAdminPermission(ctx context.Context, userID identity.UserID, orgIDOrSlug string) (bool, error) {
	org, err := s.store.GetOrganization(ctx, orgIDOrSlug)
	if err != nil {
		return false, err
	}
	membership, err := s.ActiveMembership(ctx, userID, org.ID)
	if errors.Is(err, models.ErrForbidden) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return membership.Role == models.RoleAdmin, nil
}

// HasReadChatPermission reports whether the caller may read the chat.
// Policy: creator-only, no sharing. The chat's membership must exist and
// belong to the caller, and still be ACTIVE.
func (s *Service) HasReadChatPermission(ctx context.Context, userID identity.UserID, chatID identity.ChatID) (bool, error) {
	chat, err := s.chats.GetChat(ctx, chatID)
	if err != nil {
		return false, err
	}
	membership, err := s.store.GetMembership(ctx, chat.MembershipID)
	if err != nil {
		// A chat pointing at a missing membership is a broken ownership
		// chain, not a not-found.
		return false, fmt.Errorf("chat '%s' references missing membership '%s': %w", chatID, chat.MembershipID, models.ErrDataIntegrity)
	}
	return membership.UserID == userID && membership.IsActive(), nil
}

// HasWriteChatPermission reports whether the caller may write to the chat.
// Identical to read today; kept separate so a sharing policy can diverge.
func (s *Service) HasWriteChatPermission(ctx context.Context, userID identity.UserID, chatID identity.ChatID) (bool, error) {
	return s.HasReadChatPermission(ctx, userID, chatID)
}

// HasReadDocumentCollectionPermission reports whether the caller may read the
// collection. Collection access is organization-scoped: any ACTIVE member of
// the owning organization qualifies, unlike chats.
func (s *Service) HasReadDocumentCollectionPermission(ctx context.Context, userID identity.UserID, collectionID identity.CollectionID) (bool, error) {
	coll, err := s.collections.GetCollection(ctx, collectionID)
	if err != nil {
		return false, err
	}
	return s.IsActiveMember(ctx, userID, string(coll.OrganizationID))
}

func membershipCacheKey(userID identity.UserID, orgID identity.OrgID) string {
	return fmt.Sprintf("tenancy:active:%s:%s", userID, orgID)
}

func (s *Service) cacheHit(ctx context.Context, userID identity.UserID, orgID identity.OrgID) bool {
	if s.cache == nil {
		return false
	}
	n, err := s.cache.Exists(ctx, membershipCacheKey(userID, orgID)).Result()
	return err == nil && n == 1
}

func (s *Service) cacheStore(ctx context.Context, userID identity.UserID, orgID identity.OrgID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, membershipCacheKey(userID, orgID), "1", membershipCacheTTL).Err(); err != nil {
		s.log.WithError(models.ErrorInfo{Message: err.Error()}).Warn("failed to cache membership lookup")
	}
}

func (s *Service) invalidateMembershipCache(ctx context.Context, userID identity.UserID, orgID identity.OrgID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, membershipCacheKey(userID, orgID)).Err(); err != nil {
		s.log.WithError(models.ErrorInfo{Message: err.Error()}).Warn("failed to invalidate membership cache")
	}
}
