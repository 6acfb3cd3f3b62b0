package tenancy

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"docstack/internal/identity"
	"docstack/internal/models"
	"docstack/pkg/logger"
)

// fakeStore is an in-memory MembershipStore.
type fakeStore struct {
	orgs        map[identity.OrgID]*models.Organization
	users       map[identity.UserID]*models.User
	memberships map[identity.MembershipID]*models.OrgMembership
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orgs:        make(map[identity.OrgID]*models.Organization),
		users:       make(map[identity.UserID]*models.User),
		memberships: make(map[identity.MembershipID]*models.OrgMembership),
	}
}

func (f *fakeStore) Transaction(ctx context.Context, fn func(MembershipStore) error) error {
	return fn(f)
}

func (f *fakeStore) CreateOrganization(_ context.Context, org *models.Organization) error {
	f.orgs[org.ID] = org
	return nil
}

func (f *fakeStore) GetOrganization(_ context.Context, idOrSlug string) (*models.Organization, error) {
	for _, org := range f.orgs {
		if string(org.ID) == idOrSlug || org.Slug == idOrSlug {
			return org, nil
		}
	}
	return nil, fmt.Errorf("organization '%s': %w", idOrSlug, models.ErrNotFound)
}

func (f *fakeStore) CreateUser(_ context.Context, user *models.User) error {
	f.users[user.ID] = user
	return nil
}

func (f *fakeStore) GetUser(_ context.Context, id identity.UserID) (*models.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, fmt.Errorf("user '%s': %w", id, models.ErrNotFound)
}

func (f *fakeStore) CreateMembership(_ context.Context, m *models.OrgMembership) error {
	cp := *m
	f.memberships[m.ID] = &cp
	return nil
}

func (f *fakeStore) GetMembership(_ context.Context, id identity.MembershipID) (*models.OrgMembership, error) {
	if m, ok := f.memberships[id]; ok {
		return m, nil
	}
	return nil, fmt.Errorf("membership '%s': %w", id, models.ErrNotFound)
}

func (f *fakeStore) ListActiveMemberships(_ context.Context, userID identity.UserID, orgID identity.OrgID) ([]models.OrgMembership, error) {
	var out []models.OrgMembership
	for _, m := range f.memberships {
		if m.UserID == userID && m.OrganizationID == orgID && m.Status == models.MembershipActive {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateMembershipStatus(_ context.Context, id identity.MembershipID, status models.MembershipStatus) error {
	m, ok := f.memberships[id]
	if !ok {
		return fmt.Errorf("membership '%s': %w", id, models.ErrNotFound)
	}
	m.Status = status
	return nil
}

type fakeChatGetter struct {
	chats map[identity.ChatID]*models.Chat
}

func (f *fakeChatGetter) GetChat(_ context.Context, id identity.ChatID) (*models.Chat, error) {
	if c, ok := f.chats[id]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("chat '%s': %w", id, models.ErrNotFound)
}

type fakeCollectionGetter struct {
	colls map[identity.CollectionID]*models.DocumentCollection
}

func (f *fakeCollectionGetter) GetCollection(_ context.Context, id identity.CollectionID) (*models.DocumentCollection, error) {
	if c, ok := f.colls[id]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("collection '%s': %w", id, models.ErrNotFound)
}

func newTestService(store *fakeStore, chats *fakeChatGetter, colls *fakeCollectionGetter) *Service {
	if chats == nil {
		chats = &fakeChatGetter{chats: map[identity.ChatID]*models.Chat{}}
	}
	if colls == nil {
		colls = &fakeCollectionGetter{colls: map[identity.CollectionID]*models.DocumentCollection{}}
	}
	return NewService(store, chats, colls, nil, logger.New("tenancy-test", "", ""))
}

func TestCreateOrganizationBootstrapsAdmin(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, nil, nil)
	user := identity.New[identity.UserID]()

	org, membership, err := svc.CreateOrganization(context.Background(), "Wayne Enterprises", "wayne-enterprises", "text-embedding-3-small", models.ModelTypeOpenAI, user)
	if err != nil {
		t.Fatalf("CreateOrganization() error = %v", err)
	}
	if membership.Role != models.RoleAdmin || membership.Status != models.MembershipActive {
		t.Errorf("creator membership = %s/%s, want ADMIN/ACTIVE", membership.Role, membership.Status)
	}

	ok, err := svc.IsActiveMember(context.Background(), user, org.Slug)
	if err != nil {
		t.Fatalf("IsActiveMember() error = %v", err)
	}
	if !ok {
		t.Error("creator should be an active member")
	}

	admin, err := svc.HasAdminPermission(context.Background(), user, string(org.ID))
	if err != nil {
		t.Fatalf("HasAdminPermission() error = %v", err)
	}
	if !admin {
		t.Error("creator should hold admin permission")
	}
}

func TestMembershipWritesBootstrapUserRows(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, nil, nil)
	creator := identity.New[identity.UserID]()
	invitee := identity.New[identity.UserID]()

	org, _, err := svc.CreateOrganization(context.Background(), "Wayne Enterprises", "wayne-enterprises", "text-embedding-3-small", models.ModelTypeOpenAI, creator)
	if err != nil {
		t.Fatalf("CreateOrganization() error = %v", err)
	}
	if _, err := store.GetUser(context.Background(), creator); err != nil {
		t.Errorf("creator user row missing: %v", err)
	}

	if _, err := svc.AddMember(context.Background(), creator, org.Slug, invitee, models.RoleUser); err != nil {
		t.Fatalf("AddMember() error = %v", err)
	}
	if _, err := store.GetUser(context.Background(), invitee); err != nil {
		t.Errorf("invitee user row missing: %v", err)
	}
	// A user seen before keeps the existing row.
	if _, _, err := svc.CreateOrganization(context.Background(), "LexCorp", "lexcorp", "text-embedding-3-small", models.ModelTypeOpenAI, creator); err != nil {
		t.Fatalf("second CreateOrganization() error = %v", err)
	}
	if len(store.users) != 2 {
		t.Errorf("user rows = %d, want 2", len(store.users))
	}
}

func TestIsActiveMemberNonMember(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, nil, nil)
	creator := identity.New[identity.UserID]()
	org, _, err := svc.CreateOrganization(context.Background(), "Org", "org", "m", models.ModelTypeOpenAI, creator)
	if err != nil {
		t.Fatalf("CreateOrganization() error = %v", err)
	}

	stranger := identity.New[identity.UserID]()
	ok, err := svc.IsActiveMember(context.Background(), stranger, string(org.ID))
	if err != nil {
		t.Fatalf("IsActiveMember() error = %v", err)
	}
	if ok {
		t.Error("non-member reported as active member")
	}
}

func TestIsActiveMemberDuplicateIsCorruption(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, nil, nil)
	user := identity.New[identity.UserID]()
	org, _, err := svc.CreateOrganization(context.Background(), "Org", "org", "m", models.ModelTypeOpenAI, user)
	if err != nil {
		t.Fatalf("CreateOrganization() error = %v", err)
	}

	// Inject a second ACTIVE row directly, bypassing the service guard.
	store.CreateMembership(context.Background(), &models.OrgMembership{
		ID:             identity.New[identity.MembershipID](),
		OrganizationID: org.ID,
		UserID:         user,
		Role:           models.RoleUser,
		Status:         models.MembershipActive,
	})

	_, err = svc.IsActiveMember(context.Background(), user, string(org.ID))
	if !errors.Is(err, models.ErrDataIntegrity) {
		t.Fatalf("IsActiveMember() error = %v, want ErrDataIntegrity", err)
	}
}

func TestAddMemberRejectsSecondActiveMembership(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, nil, nil)
	admin := identity.New[identity.UserID]()
	org, _, err := svc.CreateOrganization(context.Background(), "Org", "org", "m", models.ModelTypeOpenAI, admin)
	if err != nil {
		t.Fatalf("CreateOrganization() error = %v", err)
	}

	member := identity.New[identity.UserID]()
	if _, err := svc.AddMember(context.Background(), admin, org.Slug, member, models.RoleUser); err != nil {
		t.Fatalf("AddMember() error = %v", err)
	}
	if _, err := svc.AddMember(context.Background(), admin, org.Slug, member, models.RoleUser); !errors.Is(err, models.ErrInvalidArgument) {
		t.Fatalf("second AddMember() error = %v, want ErrInvalidArgument", err)
	}
}

func TestAddMemberRequiresAdmin(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, nil, nil)
	admin := identity.New[identity.UserID]()
	org, _, err := svc.CreateOrganization(context.Background(), "Org", "org", "m", models.ModelTypeOpenAI, admin)
	if err != nil {
		t.Fatalf("CreateOrganization() error = %v", err)
	}

	regular := identity.New[identity.UserID]()
	if _, err := svc.AddMember(context.Background(), admin, org.Slug, regular, models.RoleUser); err != nil {
		t.Fatalf("AddMember() error = %v", err)
	}

	// A USER-role member may not add members.
	_, err = svc.AddMember(context.Background(), regular, org.Slug, identity.New[identity.UserID](), models.RoleUser)
	if !errors.Is(err, models.ErrForbidden) {
		t.Fatalf("AddMember() by non-admin error = %v, want ErrForbidden", err)
	}
}

func TestDeactivationRevokesAccess(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, nil, nil)
	admin := identity.New[identity.UserID]()
	org, _, err := svc.CreateOrganization(context.Background(), "Org", "org", "m", models.ModelTypeOpenAI, admin)
	if err != nil {
		t.Fatalf("CreateOrganization() error = %v", err)
	}

	member := identity.New[identity.UserID]()
	membership, err := svc.AddMember(context.Background(), admin, org.Slug, member, models.RoleUser)
	if err != nil {
		t.Fatalf("AddMember() error = %v", err)
	}

	if err := svc.SetMembershipStatus(context.Background(), admin, membership.ID, models.MembershipInactive); err != nil {
		t.Fatalf("SetMembershipStatus() error = %v", err)
	}

	ok, err := svc.IsActiveMember(context.Background(), member, string(org.ID))
	if err != nil {
		t.Fatalf("IsActiveMember() error = %v", err)
	}
	if ok {
		t.Error("deactivated member still reported active")
	}
}

func TestChatPermissionIsCreatorOnly(t *testing.T) {
	store := newFakeStore()
	chats := &fakeChatGetter{chats: map[identity.ChatID]*models.Chat{}}
	svc := newTestService(store, chats, nil)

	admin := identity.New[identity.UserID]()
	org, adminMembership, err := svc.CreateOrganization(context.Background(), "Org", "org", "m", models.ModelTypeOpenAI, admin)
	if err != nil {
		t.Fatalf("CreateOrganization() error = %v", err)
	}
	other := identity.New[identity.UserID]()
	if _, err := svc.AddMember(context.Background(), admin, org.Slug, other, models.RoleUser); err != nil {
		t.Fatalf("AddMember() error = %v", err)
	}

	chatID := identity.New[identity.ChatID]()
	chats.chats[chatID] = &models.Chat{ID: chatID, MembershipID: adminMembership.ID}

	ok, err := svc.HasReadChatPermission(context.Background(), admin, chatID)
	if err != nil || !ok {
		t.Fatalf("creator HasReadChatPermission() = %v, %v; want true, nil", ok, err)
	}

	// Fellow org member, but not the creator: no access to the chat.
	ok, err = svc.HasReadChatPermission(context.Background(), other, chatID)
	if err != nil {
		t.Fatalf("HasReadChatPermission() error = %v", err)
	}
	if ok {
		t.Error("non-creator org member can read chat")
	}
}

func TestChatWithBrokenOwnershipChain(t *testing.T) {
	store := newFakeStore()
	chats := &fakeChatGetter{chats: map[identity.ChatID]*models.Chat{}}
	svc := newTestService(store, chats, nil)

	chatID := identity.New[identity.ChatID]()
	chats.chats[chatID] = &models.Chat{ID: chatID, MembershipID: identity.New[identity.MembershipID]()}

	_, err := svc.HasReadChatPermission(context.Background(), identity.New[identity.UserID](), chatID)
	if !errors.Is(err, models.ErrDataIntegrity) {
		t.Fatalf("HasReadChatPermission() error = %v, want ErrDataIntegrity", err)
	}
}

func TestCollectionPermissionIsOrgScoped(t *testing.T) {
	store := newFakeStore()
	colls := &fakeCollectionGetter{colls: map[identity.CollectionID]*models.DocumentCollection{}}
	svc := newTestService(store, nil, colls)

	admin := identity.New[identity.UserID]()
	org, adminMembership, err := svc.CreateOrganization(context.Background(), "Org", "org", "m", models.ModelTypeOpenAI, admin)
	if err != nil {
		t.Fatalf("CreateOrganization() error = %v", err)
	}
	member := identity.New[identity.UserID]()
	if _, err := svc.AddMember(context.Background(), admin, org.Slug, member, models.RoleUser); err != nil {
		t.Fatalf("AddMember() error = %v", err)
	}

	collID := identity.New[identity.CollectionID]()
	colls.colls[collID] = &models.DocumentCollection{
		ID:                collID,
		OrganizationID:    org.ID,
		OwnerMembershipID: adminMembership.ID,
	}

	// Any active member of the org may read the collection, not just the owner.
	ok, err := svc.HasReadDocumentCollectionPermission(context.Background(), member, collID)
	if err != nil || !ok {
		t.Fatalf("member HasReadDocumentCollectionPermission() = %v, %v; want true, nil", ok, err)
	}

	stranger := identity.New[identity.UserID]()
	ok, err = svc.HasReadDocumentCollectionPermission(context.Background(), stranger, collID)
	if err != nil {
		t.Fatalf("HasReadDocumentCollectionPermission() error = %v", err)
	}
	if ok {
		t.Error("stranger can read another organization's collection")
	}
}
