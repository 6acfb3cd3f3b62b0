// Package indexing owns the document ingestion pipeline: submission persists
// the document and its raw bytes, enqueues an indexing message, and the
// worker-side consumer chunks, embeds, and upserts into the vector index.
// Delivery is at-least-once end to end, so every step is idempotent.
package indexing

import (
	"context"
	"fmt"

	"github.com/gabriel-vasile/mimetype"

	"docstack/internal/identity"
	"docstack/internal/models"
	"docstack/internal/storage"
	"docstack/pkg/logger"
)

// DocumentStore is the persistence surface the pipeline needs.
type DocumentStore interface {
	Transaction(ctx context.Context, fn func(DocumentStore) error) error
	CreateDocument(ctx context.Context, doc *models.Document) error
	CreateLink(ctx context.Context, link *models.DocumentToCollection) error
	GetDocument(ctx context.Context, id identity.DocumentID) (*models.Document, error)
	GetLink(ctx context.Context, documentID identity.DocumentID, collectionID identity.CollectionID) (*models.DocumentToCollection, error)
	ListDocuments(ctx context.Context, collectionID identity.CollectionID) ([]DocumentWithStatus, error)
	UpdateIndexingStatus(ctx context.Context, documentID identity.DocumentID, collectionID identity.CollectionID, next models.IndexingStatus) error
}

// MessagePublisher enqueues indexing work.
type MessagePublisher interface {
	Publish(ctx context.Context, msg IndexingMessage) error
	PublishDeadLetter(ctx context.Context, msg IndexingMessage, reason string) error
}

// CollectionGetter resolves collections; implemented by the collection store.
type CollectionGetter interface {
	GetCollection(ctx context.Context, id identity.CollectionID) (*models.DocumentCollection, error)
}

// Tenancy is the slice of the tenancy service the pipeline needs.
type Tenancy interface {
	HasReadDocumentCollectionPermission(ctx context.Context, userID identity.UserID, collectionID identity.CollectionID) (bool, error)
}

// Service implements document submission and re-submission.
type Service struct {
	store       DocumentStore
	objects     storage.Store
	publisher   MessagePublisher
	collections CollectionGetter
	tenancy     Tenancy
	log         *logger.Logger
}

// NewService creates an indexing service.
func NewService(store DocumentStore, objects storage.Store, publisher MessagePublisher, collections CollectionGetter, tenancy Tenancy, log *logger.Logger) *Service {
	return &Service{
		store:       store,
		objects:     objects,
		publisher:   publisher,
		collections: collections,
		tenancy:     tenancy,
		log:         log,
	}
}

// SubmitDocument stores the raw bytes, persists the document and its
// NOT_INDEXED link in one transaction, and enqueues the indexing message.
// An enqueue failure is surfaced, never swallowed: the document stays
// NOT_INDEXED and the caller re-submits, instead of silently never indexing.
func (s *Service) SubmitDocument(ctx context.Context, caller identity.UserID, collectionID identity.CollectionID, name, mimeType string, data []byte) (*models.Document, error) {
	ok, err := s.tenancy.HasReadDocumentCollectionPermission(ctx, caller, collectionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("caller may not add documents to collection '%s': %w", collectionID, models.ErrForbidden)
	}
	coll, err := s.collections.GetCollection(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("document '%s' is empty: %w", name, models.ErrInvalidArgument)
	}

	// Clients routinely send application/octet-stream for anything; sniff the
	// real type so the worker doesn't fail a perfectly supported document.
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = mimetype.Detect(data).String()
	}

	doc := &models.Document{
		ID:       identity.New[identity.DocumentID](),
		Name:     name,
		MimeType: mimeType,
	}
	key := storage.ObjectKey(coll.OrganizationID, coll.ID, doc.ID)

	// Bytes go in before the rows: a crash here leaves an unreferenced object,
	// which is harmless, while rows without bytes would poison the pipeline.
	if err := s.objects.Put(ctx, key, data); err != nil {
		return nil, fmt.Errorf("unable to store document bytes: %w", err)
	}

	err = s.store.Transaction(ctx, func(tx DocumentStore) error {
		if err := tx.CreateDocument(ctx, doc); err != nil {
			return fmt.Errorf("unable to persist document: %w", err)
		}
		return tx.CreateLink(ctx, &models.DocumentToCollection{
			DocumentID:     doc.ID,
			CollectionID:   coll.ID,
			IndexingStatus: models.StatusNotIndexed,
		})
	})
	if err != nil {
		return nil, err
	}

	msg := IndexingMessage{
		DocumentID:   doc.ID,
		CollectionID: coll.ID,
		MimeType:     mimeType,
		ObjectKey:    key,
		Attempt:      1,
	}
	if err := s.publisher.Publish(ctx, msg); err != nil {
		return nil, fmt.Errorf("document '%s' persisted but not enqueued, re-submit to index: %w", doc.ID, err)
	}

	s.log.WithPayload(map[string]interface{}{
		"document_id":   string(doc.ID),
		"collection_id": string(coll.ID),
		"mime_type":     mimeType,
	}).Info("document submitted for indexing")
	return doc, nil
}

// ResubmitDocument resets a document to NOT_INDEXED and enqueues a fresh
// indexing message. This is the only path out of FAILED, and doubles as
// explicit re-indexing for INDEXED documents.
func (s *Service) ResubmitDocument(ctx context.Context, caller identity.UserID, collectionID identity.CollectionID, documentID identity.DocumentID) error {
	ok, err := s.tenancy.HasReadDocumentCollectionPermission(ctx, caller, collectionID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("caller may not re-index documents in collection '%s': %w", collectionID, models.ErrForbidden)
	}
	coll, err := s.collections.GetCollection(ctx, collectionID)
	if err != nil {
		return err
	}
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if _, err := s.store.GetLink(ctx, documentID, collectionID); err != nil {
		return err
	}

	if err := s.store.UpdateIndexingStatus(ctx, documentID, collectionID, models.StatusNotIndexed); err != nil {
		return err
	}
	msg := IndexingMessage{
		DocumentID:   doc.ID,
		CollectionID: coll.ID,
		MimeType:     doc.MimeType,
		ObjectKey:    storage.ObjectKey(coll.OrganizationID, coll.ID, doc.ID),
		Attempt:      1,
	}
	if err := s.publisher.Publish(ctx, msg); err != nil {
		return fmt.Errorf("document '%s' reset but not enqueued, re-submit to index: %w", doc.ID, err)
	}
	return nil
}

// GetDocument returns a document with its per-collection status, permission
// checked against the collection.
func (s *Service) GetDocument(ctx context.Context, caller identity.UserID, collectionID identity.CollectionID, documentID identity.DocumentID) (*DocumentWithStatus, error) {
	ok, err := s.tenancy.HasReadDocumentCollectionPermission(ctx, caller, collectionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("caller may not read collection '%s': %w", collectionID, models.ErrForbidden)
	}
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	link, err := s.store.GetLink(ctx, documentID, collectionID)
	if err != nil {
		return nil, err
	}
	return &DocumentWithStatus{Document: *doc, IndexingStatus: link.IndexingStatus}, nil
}

// ListDocuments returns the collection's documents with indexing status.
func (s *Service) ListDocuments(ctx context.Context, caller identity.UserID, collectionID identity.CollectionID) ([]DocumentWithStatus, error) {
	ok, err := s.tenancy.HasReadDocumentCollectionPermission(ctx, caller, collectionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("caller may not read collection '%s': %w", collectionID, models.ErrForbidden)
	}
	return s.store.ListDocuments(ctx, collectionID)
}
