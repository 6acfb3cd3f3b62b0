// Package chat owns conversations and the retrieval-backed reply flow.
// A chat bound to a document collection answers from retrieved passages and
// records a citation per passage used; an unbound chat talks to the model
// directly.
package chat

import (
	"context"
	"fmt"
	"strings"

	"docstack/internal/database/milvus"
	"docstack/internal/embedding"
	"docstack/internal/identity"
	"docstack/internal/llm"
	"docstack/internal/models"
	"docstack/pkg/logger"
)

// ChatStore is the persistence surface the service needs.
type ChatStore interface {
	Transaction(ctx context.Context, fn func(ChatStore) error) error
	CreateChat(ctx context.Context, chat *models.Chat) error
	GetChat(ctx context.Context, id identity.ChatID) (*models.Chat, error)
	ListChats(ctx context.Context, membershipID identity.MembershipID) ([]models.Chat, error)
	DeleteChat(ctx context.Context, id identity.ChatID) error
	CreateMessage(ctx context.Context, msg *models.ChatMessage) error
	ListMessages(ctx context.Context, chatID identity.ChatID) ([]models.ChatMessage, error)
	CreateCitation(ctx context.Context, citation *models.Citation) error
	ListCitations(ctx context.Context, messageID identity.MessageID) ([]models.Citation, error)
}

// VectorQuerier is the retrieval slice of the vector database.
type VectorQuerier interface {
	Query(ctx context.Context, collectionName string, vector []float32, topK int) ([]milvus.ScoredChunk, error)
}

// CollectionGetter resolves collections; implemented by the collection store.
type CollectionGetter interface {
	GetCollection(ctx context.Context, id identity.CollectionID) (*models.DocumentCollection, error)
}

// Tenancy is the slice of the tenancy service the chat service needs.
type Tenancy interface {
	GetOrganization(ctx context.Context, idOrSlug string) (*models.Organization, error)
	ActiveMembership(ctx context.Context, userID identity.UserID, orgID identity.OrgID) (*models.OrgMembership, error)
	HasReadChatPermission(ctx context.Context, userID identity.UserID, chatID identity.ChatID) (bool, error)
	HasWriteChatPermission(ctx context.Context, userID identity.UserID, chatID identity.ChatID) (bool, error)
	HasReadDocumentCollectionPermission(ctx context.Context, userID identity.UserID, collectionID identity.CollectionID) (bool, error)
}

// CitedChunk pairs a stored citation with the positional metadata resolved
// from the chunk descriptor at response-construction time.
type CitedChunk struct {
	Citation  models.Citation `json:"citation"`
	PageLabel string          `json:"pageLabel"`
	Snippet   string          `json:"snippet"`
}

// AskResult is a completed retrieval-backed reply.
type AskResult struct {
	Message   models.ChatMessage `json:"message"`
	Citations []CitedChunk       `json:"citations"`
}

// Service implements chat operations.
type Service struct {
	store       ChatStore
	vectors     VectorQuerier
	embedder    embedding.Embedding
	model       llm.LLM
	collections CollectionGetter
	tenancy     Tenancy
	topK        int
	log         *logger.Logger
}

// NewService creates a chat service.
func NewService(store ChatStore, vectors VectorQuerier, embedder embedding.Embedding, model llm.LLM, collections CollectionGetter, tenancy Tenancy, topK int, log *logger.Logger) *Service {
	return &Service{
		store:       store,
		vectors:     vectors,
		embedder:    embedder,
		model:       model,
		collections: collections,
		tenancy:     tenancy,
		topK:        topK,
		log:         log,
	}
}

// CreateChat creates a chat owned by the caller's membership in the
// organization. A bound collection must belong to the same organization and
// be readable by the caller.
func (s *Service) CreateChat(ctx context.Context, caller identity.UserID, orgIDOrSlug, title string, collectionID *identity.CollectionID) (*models.Chat, error) {
	org, err := s.tenancy.GetOrganization(ctx, orgIDOrSlug)
	if err != nil {
		return nil, err
	}
	membership, err := s.tenancy.ActiveMembership(ctx, caller, org.ID)
	if err != nil {
		return nil, err
	}

	if collectionID != nil {
		ok, err := s.tenancy.HasReadDocumentCollectionPermission(ctx, caller, *collectionID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("caller may not read collection '%s': %w", *collectionID, models.ErrForbidden)
		}
		coll, err := s.collections.GetCollection(ctx, *collectionID)
		if err != nil {
			return nil, err
		}
		if coll.OrganizationID != org.ID {
			return nil, fmt.Errorf("collection '%s' belongs to another organization: %w", *collectionID, models.ErrInvalidArgument)
		}
	}

	chat := &models.Chat{
		ID:           identity.New[identity.ChatID](),
		MembershipID: membership.ID,
		CollectionID: collectionID,
		Title:        title,
	}
	if err := s.store.CreateChat(ctx, chat); err != nil {
		return nil, fmt.Errorf("unable to create chat: %w", err)
	}
	return chat, nil
}

// GetChat returns the chat if the caller may read it.
func (s *Service) GetChat(ctx context.Context, caller identity.UserID, id identity.ChatID) (*models.Chat, error) {
	if err := s.requireRead(ctx, caller, id); err != nil {
		return nil, err
	}
	return s.store.GetChat(ctx, id)
}

// ListChats returns the caller's chats in the organization.
func (s *Service) ListChats(ctx context.Context, caller identity.UserID, orgIDOrSlug string) ([]models.Chat, error) {
	org, err := s.tenancy.GetOrganization(ctx, orgIDOrSlug)
	if err != nil {
		return nil, err
	}
	membership, err := s.tenancy.ActiveMembership(ctx, caller, org.ID)
	if err != nil {
		return nil, err
	}
	return s.store.ListChats(ctx, membership.ID)
}

// DeleteChat soft-deletes the chat.
func (s *Service) DeleteChat(ctx context.Context, caller identity.UserID, id identity.ChatID) error {
	ok, err := s.tenancy.HasWriteChatPermission(ctx, caller, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("caller may not delete chat '%s': %w", id, models.ErrForbidden)
	}
	return s.store.DeleteChat(ctx, id)
}

// ListMessages returns the chat's messages in order, each assistant message
// carrying its citations.
func (s *Service) ListMessages(ctx context.Context, caller identity.UserID, chatID identity.ChatID) ([]models.ChatMessage, error) {
	if err := s.requireRead(ctx, caller, chatID); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, chatID)
}

// ListCitations returns the citations attached to one message.
func (s *Service) ListCitations(ctx context.Context, caller identity.UserID, chatID identity.ChatID, messageID identity.MessageID) ([]models.Citation, error) {
	if err := s.requireRead(ctx, caller, chatID); err != nil {
		return nil, err
	}
	return s.store.ListCitations(ctx, messageID)
}

// Ask records the user's question, composes a reply (retrieval-backed when
// the chat is bound to a collection), and persists the assistant message with
// its citations in one transaction.
func (s *Service) Ask(ctx context.Context, caller identity.UserID, chatID identity.ChatID, question string) (*AskResult, error) {
	if question == "" {
		return nil, fmt.Errorf("question is empty: %w", models.ErrInvalidArgument)
	}
	ok, err := s.tenancy.HasWriteChatPermission(ctx, caller, chatID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("caller may not write to chat '%s': %w", chatID, models.ErrForbidden)
	}
	chat, err := s.store.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}

	userMsg := &models.ChatMessage{
		ID:      identity.New[identity.MessageID](),
		ChatID:  chat.ID,
		Role:    models.ChatRoleUser,
		Content: question,
	}
	if err := s.store.CreateMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("unable to record question: %w", err)
	}

	prompt := question
	var hits []milvus.ScoredChunk
	if chat.CollectionID != nil {
		hits, err = s.retrieve(ctx, *chat.CollectionID, question)
		if err != nil {
			return nil, err
		}
		prompt = buildPrompt(question, hits)
	}

	answer, err := s.model.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("unable to generate reply: %w", err)
	}

	assistantMsg := &models.ChatMessage{
		ID:      identity.New[identity.MessageID](),
		ChatID:  chat.ID,
		Role:    models.ChatRoleAssistant,
		Content: answer,
	}
	result := &AskResult{Message: *assistantMsg}

	err = s.store.Transaction(ctx, func(tx ChatStore) error {
		if err := tx.CreateMessage(ctx, assistantMsg); err != nil {
			return fmt.Errorf("unable to record reply: %w", err)
		}
		for _, hit := range hits {
			citation := models.Citation{
				ID:            identity.New[identity.CitationID](),
				ChatMessageID: assistantMsg.ID,
				DocumentID:    identity.DocumentID(hit.DocumentID),
				ChunkID:       hit.ChunkID,
				Score:         hit.Score,
			}
			if err := tx.CreateCitation(ctx, &citation); err != nil {
				return fmt.Errorf("unable to record citation: %w", err)
			}
			result.Citations = append(result.Citations, CitedChunk{
				Citation:  citation,
				PageLabel: hit.PageLabel,
				Snippet:   hit.Text,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) retrieve(ctx context.Context, collectionID identity.CollectionID, question string) ([]milvus.ScoredChunk, error) {
	coll, err := s.collections.GetCollection(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	vector, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("unable to embed question: %w", err)
	}
	hits, err := s.vectors.Query(ctx, coll.InternalName, vector, s.topK)
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}
	return hits, nil
}

func (s *Service) requireRead(ctx context.Context, caller identity.UserID, chatID identity.ChatID) error {
	ok, err := s.tenancy.HasReadChatPermission(ctx, caller, chatID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("caller may not read chat '%s': %w", chatID, models.ErrForbidden)
	}
	return nil
}

func buildPrompt(question string, hits []milvus.ScoredChunk) string {
	var b strings.Builder
	b.WriteString("Answer the question using only the passages below. Cite nothing outside them; say so when they don't contain the answer.\n\n")
	for i, hit := range hits {
		fmt.Fprintf(&b, "Passage %d:\n%s\n\n", i+1, hit.Text)
	}
	b.WriteString("Question: ")
	b.WriteString(question)
	return b.String()
}
