package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"docstack/internal/database/milvus"
	"docstack/internal/identity"
	"docstack/internal/models"
	"docstack/pkg/logger"
)

type fakeChatStore struct {
	chats     map[identity.ChatID]*models.Chat
	deleted   map[identity.ChatID]bool
	messages  []*models.ChatMessage
	citations []*models.Citation
}

func newFakeChatStore() *fakeChatStore {
	return &fakeChatStore{
		chats:   make(map[identity.ChatID]*models.Chat),
		deleted: make(map[identity.ChatID]bool),
	}
}

func (f *fakeChatStore) Transaction(_ context.Context, fn func(ChatStore) error) error {
	return fn(f)
}

func (f *fakeChatStore) CreateChat(_ context.Context, chat *models.Chat) error {
	f.chats[chat.ID] = chat
	return nil
}

func (f *fakeChatStore) GetChat(_ context.Context, id identity.ChatID) (*models.Chat, error) {
	if c, ok := f.chats[id]; ok && !f.deleted[id] {
		return c, nil
	}
	return nil, fmt.Errorf("chat '%s': %w", id, models.ErrNotFound)
}

func (f *fakeChatStore) ListChats(_ context.Context, membershipID identity.MembershipID) ([]models.Chat, error) {
	var out []models.Chat
	for id, c := range f.chats {
		if c.MembershipID == membershipID && !f.deleted[id] {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeChatStore) DeleteChat(_ context.Context, id identity.ChatID) error {
	if _, ok := f.chats[id]; !ok || f.deleted[id] {
		return fmt.Errorf("chat '%s': %w", id, models.ErrNotFound)
	}
	f.deleted[id] = true
	return nil
}

func (f *fakeChatStore) CreateMessage(_ context.Context, msg *models.ChatMessage) error {
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeChatStore) ListMessages(_ context.Context, chatID identity.ChatID) ([]models.ChatMessage, error) {
	var out []models.ChatMessage
	for _, m := range f.messages {
		if m.ChatID == chatID {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (f *fakeChatStore) CreateCitation(_ context.Context, citation *models.Citation) error {
	f.citations = append(f.citations, citation)
	return nil
}

func (f *fakeChatStore) ListCitations(_ context.Context, messageID identity.MessageID) ([]models.Citation, error) {
	var out []models.Citation
	for _, c := range f.citations {
		if c.ChatMessageID == messageID {
			out = append(out, *c)
		}
	}
	return out, nil
}

type fakeQuerier struct {
	hits    []milvus.ScoredChunk
	queried []string
}

func (f *fakeQuerier) Query(_ context.Context, collectionName string, _ []float32, _ int) ([]milvus.ScoredChunk, error) {
	f.queried = append(f.queried, collectionName)
	return f.hits, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

func (fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2}
	}
	return out, nil
}

type fakeLLM struct {
	prompt string
}

func (f *fakeLLM) Generate(_ context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return "the answer", nil
}

type fakeCollections struct {
	colls map[identity.CollectionID]*models.DocumentCollection
}

func (f *fakeCollections) GetCollection(_ context.Context, id identity.CollectionID) (*models.DocumentCollection, error) {
	if c, ok := f.colls[id]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("collection '%s': %w", id, models.ErrNotFound)
}

// fakeTenancy grants chat permissions to the chat's creator and collection
// permissions to listed members, mirroring the real policy.
type fakeTenancy struct {
	org        *models.Organization
	membership *models.OrgMembership
	store      *fakeChatStore
	members    map[identity.UserID]bool
}

func (f *fakeTenancy) GetOrganization(_ context.Context, idOrSlug string) (*models.Organization, error) {
	if f.org != nil && (string(f.org.ID) == idOrSlug || f.org.Slug == idOrSlug) {
		return f.org, nil
	}
	return nil, fmt.Errorf("organization '%s': %w", idOrSlug, models.ErrNotFound)
}

func (f *fakeTenancy) ActiveMembership(_ context.Context, userID identity.UserID, orgID identity.OrgID) (*models.OrgMembership, error) {
	if f.membership != nil && f.membership.UserID == userID && f.membership.OrganizationID == orgID {
		return f.membership, nil
	}
	return nil, fmt.Errorf("no active membership in organization '%s': %w", orgID, models.ErrForbidden)
}

func (f *fakeTenancy) HasReadChatPermission(ctx context.Context, userID identity.UserID, chatID identity.ChatID) (bool, error) {
	chat, err := f.store.GetChat(ctx, chatID)
	if err != nil {
		return false, err
	}
	return f.membership != nil && chat.MembershipID == f.membership.ID && f.membership.UserID == userID, nil
}

func (f *fakeTenancy) HasWriteChatPermission(ctx context.Context, userID identity.UserID, chatID identity.ChatID) (bool, error) {
	return f.HasReadChatPermission(ctx, userID, chatID)
}

func (f *fakeTenancy) HasReadDocumentCollectionPermission(_ context.Context, userID identity.UserID, _ identity.CollectionID) (bool, error) {
	return f.members[userID], nil
}

type chatFixture struct {
	svc     *Service
	store   *fakeChatStore
	querier *fakeQuerier
	model   *fakeLLM
	user    identity.UserID
	org     *models.Organization
	coll    *models.DocumentCollection
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	store := newFakeChatStore()
	user := identity.New[identity.UserID]()
	org := &models.Organization{ID: identity.New[identity.OrgID](), Name: "Acme", Slug: "acme"}
	membership := &models.OrgMembership{
		ID:             identity.New[identity.MembershipID](),
		OrganizationID: org.ID,
		UserID:         user,
		Role:           models.RoleUser,
		Status:         models.MembershipActive,
	}
	coll := &models.DocumentCollection{
		ID:             identity.New[identity.CollectionID](),
		InternalName:   "cresearch01",
		OrganizationID: org.ID,
	}
	tenancy := &fakeTenancy{
		org:        org,
		membership: membership,
		store:      store,
		members:    map[identity.UserID]bool{user: true},
	}
	querier := &fakeQuerier{}
	model := &fakeLLM{}
	colls := &fakeCollections{colls: map[identity.CollectionID]*models.DocumentCollection{coll.ID: coll}}

	svc := NewService(store, querier, fakeEmbedder{}, model, colls, tenancy, 5, logger.New("chat-test", "", ""))
	return &chatFixture{svc: svc, store: store, querier: querier, model: model, user: user, org: org, coll: coll}
}

func TestAskWithCollectionRecordsCitations(t *testing.T) {
	f := newChatFixture(t)
	docID := identity.New[identity.DocumentID]()
	f.querier.hits = []milvus.ScoredChunk{
		{ChunkID: string(docID) + "-0", DocumentID: string(docID), Text: "relevant passage", PageLabel: "3", Score: 0.92},
		{ChunkID: string(docID) + "-4", DocumentID: string(docID), Text: "another passage", PageLabel: "7", Score: 0.81},
	}

	chat, err := f.svc.CreateChat(context.Background(), f.user, "acme", "Research", &f.coll.ID)
	if err != nil {
		t.Fatalf("CreateChat() error = %v", err)
	}

	result, err := f.svc.Ask(context.Background(), f.user, chat.ID, "what do the papers say?")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}

	if result.Message.Role != models.ChatRoleAssistant || result.Message.Content != "the answer" {
		t.Errorf("assistant message = %+v", result.Message)
	}
	if len(result.Citations) != 2 {
		t.Fatalf("citations = %d, want 2", len(result.Citations))
	}
	first := result.Citations[0]
	if first.Citation.ChunkID != string(docID)+"-0" || first.Citation.Score != 0.92 || first.PageLabel != "3" {
		t.Errorf("citation = %+v", first)
	}
	if first.Citation.DocumentID != docID {
		t.Errorf("citation document = %s, want %s", first.Citation.DocumentID, docID)
	}

	// Retrieval went to the collection's internal name and the retrieved
	// passages made it into the prompt.
	if len(f.querier.queried) != 1 || f.querier.queried[0] != f.coll.InternalName {
		t.Errorf("queried = %v, want [%s]", f.querier.queried, f.coll.InternalName)
	}
	if !strings.Contains(f.model.prompt, "relevant passage") {
		t.Errorf("prompt missing retrieved passage: %q", f.model.prompt)
	}

	msgs, err := f.svc.ListMessages(context.Background(), f.user, chat.ID)
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if len(msgs) != 2 || msgs[0].Role != models.ChatRoleUser || msgs[1].Role != models.ChatRoleAssistant {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestAskWithoutCollectionSkipsRetrieval(t *testing.T) {
	f := newChatFixture(t)

	chat, err := f.svc.CreateChat(context.Background(), f.user, "acme", "Freestyle", nil)
	if err != nil {
		t.Fatalf("CreateChat() error = %v", err)
	}
	result, err := f.svc.Ask(context.Background(), f.user, chat.ID, "hello")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if len(result.Citations) != 0 {
		t.Errorf("citations = %d, want 0", len(result.Citations))
	}
	if len(f.querier.queried) != 0 {
		t.Error("unbound chat hit the vector index")
	}
	if f.model.prompt != "hello" {
		t.Errorf("prompt = %q, want the raw question", f.model.prompt)
	}
}

func TestAskForbiddenForNonCreator(t *testing.T) {
	f := newChatFixture(t)
	chat, err := f.svc.CreateChat(context.Background(), f.user, "acme", "Private", nil)
	if err != nil {
		t.Fatalf("CreateChat() error = %v", err)
	}

	stranger := identity.New[identity.UserID]()
	_, err = f.svc.Ask(context.Background(), stranger, chat.ID, "let me in")
	if !errors.Is(err, models.ErrForbidden) {
		t.Fatalf("Ask() by stranger error = %v, want ErrForbidden", err)
	}
}

func TestCreateChatRejectsForeignCollection(t *testing.T) {
	f := newChatFixture(t)
	foreign := &models.DocumentCollection{
		ID:             identity.New[identity.CollectionID](),
		InternalName:   "cother",
		OrganizationID: identity.New[identity.OrgID](),
	}
	f.svc.collections.(*fakeCollections).colls[foreign.ID] = foreign

	_, err := f.svc.CreateChat(context.Background(), f.user, "acme", "Cross-org", &foreign.ID)
	if !errors.Is(err, models.ErrInvalidArgument) {
		t.Fatalf("CreateChat() error = %v, want ErrInvalidArgument", err)
	}
}

func TestDeleteChatHidesItFromLookup(t *testing.T) {
	f := newChatFixture(t)
	chat, err := f.svc.CreateChat(context.Background(), f.user, "acme", "Ephemeral", nil)
	if err != nil {
		t.Fatalf("CreateChat() error = %v", err)
	}
	if err := f.svc.DeleteChat(context.Background(), f.user, chat.ID); err != nil {
		t.Fatalf("DeleteChat() error = %v", err)
	}
	if _, err := f.svc.GetChat(context.Background(), f.user, chat.ID); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("GetChat() after delete error = %v, want ErrNotFound", err)
	}
}
