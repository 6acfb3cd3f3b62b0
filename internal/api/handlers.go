// Package api exposes the HTTP surface of the document pipeline. Handlers
// translate between HTTP and the services; every permission decision lives in
// the services, and unauthorized, forbidden, and not-found map to distinct
// status codes, never collapsed into each other.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"docstack/internal/chat"
	"docstack/internal/identity"
	"docstack/internal/indexing"
	"docstack/internal/models"
)

// TenancyService is the handler's view of organization and membership
// operations.
type TenancyService interface {
	CreateOrganization(ctx context.Context, name, slug, defaultModel string, defaultModelType models.ModelType, creator identity.UserID) (*models.Organization, *models.OrgMembership, error)
	GetOrganization(ctx context.Context, idOrSlug string) (*models.Organization, error)
	IsActiveMember(ctx context.Context, userID identity.UserID, orgIDOrSlug string) (bool, error)
	AddMember(ctx context.Context, caller identity.UserID, orgIDOrSlug string, userID identity.UserID, role models.MembershipRole) (*models.OrgMembership, error)
	SetMembershipStatus(ctx context.Context, caller identity.UserID, id identity.MembershipID, status models.MembershipStatus) error
}

// CollectionService is the handler's view of collection operations.
type CollectionService interface {
	Create(ctx context.Context, caller identity.UserID, orgIDOrSlug, displayName, model string, modelType models.ModelType) (*models.DocumentCollection, error)
	Get(ctx context.Context, caller identity.UserID, id identity.CollectionID) (*models.DocumentCollection, error)
	List(ctx context.Context, caller identity.UserID, orgIDOrSlug string) ([]models.DocumentCollection, error)
	GetStats(ctx context.Context, caller identity.UserID, id identity.CollectionID) (*models.CollectionStats, error)
}

// IndexingService is the handler's view of the ingestion pipeline.
type IndexingService interface {
	SubmitDocument(ctx context.Context, caller identity.UserID, collectionID identity.CollectionID, name, mimeType string, data []byte) (*models.Document, error)
	ResubmitDocument(ctx context.Context, caller identity.UserID, collectionID identity.CollectionID, documentID identity.DocumentID) error
	GetDocument(ctx context.Context, caller identity.UserID, collectionID identity.CollectionID, documentID identity.DocumentID) (*indexing.DocumentWithStatus, error)
	ListDocuments(ctx context.Context, caller identity.UserID, collectionID identity.CollectionID) ([]indexing.DocumentWithStatus, error)
}

// ChatService is the handler's view of chat operations.
type ChatService interface {
	CreateChat(ctx context.Context, caller identity.UserID, orgIDOrSlug, title string, collectionID *identity.CollectionID) (*models.Chat, error)
	GetChat(ctx context.Context, caller identity.UserID, id identity.ChatID) (*models.Chat, error)
	ListChats(ctx context.Context, caller identity.UserID, orgIDOrSlug string) ([]models.Chat, error)
	DeleteChat(ctx context.Context, caller identity.UserID, id identity.ChatID) error
	ListMessages(ctx context.Context, caller identity.UserID, chatID identity.ChatID) ([]models.ChatMessage, error)
	ListCitations(ctx context.Context, caller identity.UserID, chatID identity.ChatID, messageID identity.MessageID) ([]models.Citation, error)
	Ask(ctx context.Context, caller identity.UserID, chatID identity.ChatID, question string) (*chat.AskResult, error)
}

// HealthChecker reports whether one backing dependency is reachable.
type HealthChecker func(ctx context.Context) error

// Handler bundles the API endpoint handlers.
type Handler struct {
	tenancy     TenancyService
	collections CollectionService
	indexing    IndexingService
	chats       ChatService
	health      map[string]HealthChecker
}

// NewHandler creates a new Handler instance.
func NewHandler(tenancy TenancyService, collections CollectionService, indexing IndexingService, chats ChatService, health map[string]HealthChecker) *Handler {
	return &Handler{
		tenancy:     tenancy,
		collections: collections,
		indexing:    indexing,
		chats:       chats,
		health:      health,
	}
}

// respondError maps service errors onto status codes. Forbidden, not-found,
// and unauthorized stay distinct by contract.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidArgument):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// parseParam re-tags a path parameter as the expected identifier kind.
func parseParam[ID ~string](c *gin.Context, name string) (ID, bool) {
	id, err := identity.Parse[ID](c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return id, false
	}
	return id, true
}

func mustCaller(c *gin.Context) (identity.UserID, bool) {
	userID, ok := callerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing caller identity"})
	}
	return userID, ok
}

// Healthz reports per-dependency health; 503 when any check fails.
func (h *Handler) Healthz(c *gin.Context) {
	status := http.StatusOK
	results := gin.H{}
	for name, check := range h.health {
		if err := check(c.Request.Context()); err != nil {
			status = http.StatusServiceUnavailable
			results[name] = err.Error()
			continue
		}
		results[name] = "ok"
	}
	c.JSON(status, results)
}

// --- Organization handlers ---

// CreateOrganizationRequest is the JSON body for organization creation.
type CreateOrganizationRequest struct {
	Name             string `json:"name" binding:"required"`
	Slug             string `json:"slug" binding:"required"`
	DefaultModel     string `json:"defaultModel"`
	DefaultModelType string `json:"defaultModelType"`
}

// CreateOrganization creates an organization with the caller as admin.
func (h *Handler) CreateOrganization(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	var req CreateOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	org, membership, err := h.tenancy.CreateOrganization(c.Request.Context(), req.Name, req.Slug, req.DefaultModel, models.ModelType(req.DefaultModelType), caller)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"organization": org, "membership": membership})
}

// GetOrganization returns an organization by id or slug. Non-members get
// forbidden, not a peek at the row.
func (h *Handler) GetOrganization(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	idOrSlug := c.Param("orgId")
	member, err := h.tenancy.IsActiveMember(c.Request.Context(), caller, idOrSlug)
	if err != nil {
		respondError(c, err)
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "caller is not a member of this organization"})
		return
	}
	org, err := h.tenancy.GetOrganization(c.Request.Context(), idOrSlug)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, org)
}

// AddMemberRequest is the JSON body for adding a member.
type AddMemberRequest struct {
	UserID string `json:"userId" binding:"required"`
	Role   string `json:"role" binding:"required"`
}

// AddMember adds a user to the organization. Admin only.
func (h *Handler) AddMember(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	var req AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID, err := identity.Parse[identity.UserID](req.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid userId"})
		return
	}
	membership, err := h.tenancy.AddMember(c.Request.Context(), caller, c.Param("orgId"), userID, models.MembershipRole(req.Role))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, membership)
}

// SetMembershipStatusRequest is the JSON body for toggling a membership.
type SetMembershipStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// SetMembershipStatus activates or deactivates a membership. Admin only.
func (h *Handler) SetMembershipStatus(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	var req SetMembershipStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	membershipID, ok := parseParam[identity.MembershipID](c, "membershipId")
	if !ok {
		return
	}
	if err := h.tenancy.SetMembershipStatus(c.Request.Context(), caller, membershipID, models.MembershipStatus(req.Status)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "membership updated"})
}

// --- Collection handlers ---

// CreateCollectionRequest is the JSON body for collection creation.
type CreateCollectionRequest struct {
	DisplayName string `json:"displayName"`
	Model       string `json:"model"`
	ModelType   string `json:"modelType"`
}

// CreateCollection creates a collection with its backing vector index.
func (h *Handler) CreateCollection(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	var req CreateCollectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	coll, err := h.collections.Create(c.Request.Context(), caller, c.Param("orgId"), req.DisplayName, req.Model, models.ModelType(req.ModelType))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, coll)
}

// ListCollections returns the organization's collections.
func (h *Handler) ListCollections(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	colls, err := h.collections.List(c.Request.Context(), caller, c.Param("orgId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, colls)
}

// GetCollection returns one collection.
func (h *Handler) GetCollection(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	collID, ok := parseParam[identity.CollectionID](c, "collectionId")
	if !ok {
		return
	}
	coll, err := h.collections.Get(c.Request.Context(), caller, collID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, coll)
}

// GetCollectionStats returns the indexing progress counts.
func (h *Handler) GetCollectionStats(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	collID, ok := parseParam[identity.CollectionID](c, "collectionId")
	if !ok {
		return
	}
	stats, err := h.collections.GetStats(c.Request.Context(), caller, collID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// --- Document handlers ---

// UploadDocument accepts a multipart upload and submits it for indexing.
func (h *Handler) UploadDocument(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	collID, ok := parseParam[identity.CollectionID](c, "collectionId")
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file field"})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	name := c.PostForm("name")
	if name == "" {
		name = fileHeader.Filename
	}
	doc, err := h.indexing.SubmitDocument(c.Request.Context(), caller, collID, name, fileHeader.Header.Get("Content-Type"), data)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, doc)
}

// ListDocuments returns the collection's documents with indexing status.
func (h *Handler) ListDocuments(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	collID, ok := parseParam[identity.CollectionID](c, "collectionId")
	if !ok {
		return
	}
	docs, err := h.indexing.ListDocuments(c.Request.Context(), caller, collID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, docs)
}

// GetDocument returns one document with its indexing status. The status
// check is a non-blocking poll.
func (h *Handler) GetDocument(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	collID, ok := parseParam[identity.CollectionID](c, "collectionId")
	if !ok {
		return
	}
	docID, ok := parseParam[identity.DocumentID](c, "documentId")
	if !ok {
		return
	}
	doc, err := h.indexing.GetDocument(c.Request.Context(), caller, collID, docID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// ReindexDocument resets a document and enqueues a fresh indexing run.
func (h *Handler) ReindexDocument(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	collID, ok := parseParam[identity.CollectionID](c, "collectionId")
	if !ok {
		return
	}
	docID, ok := parseParam[identity.DocumentID](c, "documentId")
	if !ok {
		return
	}
	if err := h.indexing.ResubmitDocument(c.Request.Context(), caller, collID, docID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "re-indexing enqueued"})
}

// --- Chat handlers ---

// CreateChatRequest is the JSON body for chat creation.
type CreateChatRequest struct {
	Title        string `json:"title"`
	CollectionID string `json:"collectionId"`
}

// CreateChat creates a chat, optionally bound to a collection.
func (h *Handler) CreateChat(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	var req CreateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var collID *identity.CollectionID
	if req.CollectionID != "" {
		parsed, err := identity.Parse[identity.CollectionID](req.CollectionID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid collectionId"})
			return
		}
		collID = &parsed
	}
	created, err := h.chats.CreateChat(c.Request.Context(), caller, c.Param("orgId"), req.Title, collID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// ListChats returns the caller's chats in the organization.
func (h *Handler) ListChats(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	chats, err := h.chats.ListChats(c.Request.Context(), caller, c.Param("orgId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, chats)
}

// GetChat returns one chat.
func (h *Handler) GetChat(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	chatID, ok := parseParam[identity.ChatID](c, "chatId")
	if !ok {
		return
	}
	found, err := h.chats.GetChat(c.Request.Context(), caller, chatID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, found)
}

// DeleteChat soft-deletes a chat.
func (h *Handler) DeleteChat(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	chatID, ok := parseParam[identity.ChatID](c, "chatId")
	if !ok {
		return
	}
	if err := h.chats.DeleteChat(c.Request.Context(), caller, chatID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "chat deleted"})
}

// ListMessages returns the chat's messages in order.
func (h *Handler) ListMessages(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	chatID, ok := parseParam[identity.ChatID](c, "chatId")
	if !ok {
		return
	}
	msgs, err := h.chats.ListMessages(c.Request.Context(), caller, chatID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

// AskRequest is the JSON body for posting a question.
type AskRequest struct {
	Question string `json:"question" binding:"required"`
}

// Ask records a question and returns the assistant reply with citations.
func (h *Handler) Ask(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	chatID, ok := parseParam[identity.ChatID](c, "chatId")
	if !ok {
		return
	}
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := h.chats.Ask(c.Request.Context(), caller, chatID, req.Question)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListCitations returns the citations behind one assistant message.
func (h *Handler) ListCitations(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	chatID, ok := parseParam[identity.ChatID](c, "chatId")
	if !ok {
		return
	}
	messageID, ok := parseParam[identity.MessageID](c, "messageId")
	if !ok {
		return
	}
	citations, err := h.chats.ListCitations(c.Request.Context(), caller, chatID, messageID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, citations)
}
