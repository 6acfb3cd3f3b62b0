package indexing

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"docstack/internal/chunking"
	"docstack/internal/database/milvus"
	"docstack/internal/embedding"
	"docstack/internal/models"
	"docstack/internal/storage"
	"docstack/pkg/logger"
)

// VectorUpserter is the slice of the vector database the processor needs.
type VectorUpserter interface {
	Upsert(ctx context.Context, collectionName string, records []milvus.ChunkRecord) error
}

// Processor runs the worker side of the pipeline for one message: fetch
// bytes, chunk, embed, upsert, commit the status transition. Every step is
// idempotent: chunk ids derive from (document, chunk index), so a
// redelivered message overwrites its own previous writes.
type Processor struct {
	store       DocumentStore
	objects     storage.Store
	chunker     chunking.Chunker
	embedder    embedding.Embedding
	vectors     VectorUpserter
	collections CollectionGetter
	log         *logger.Logger
}

// NewProcessor creates a processor.
func NewProcessor(store DocumentStore, objects storage.Store, chunker chunking.Chunker, embedder embedding.Embedding, vectors VectorUpserter, collections CollectionGetter, log *logger.Logger) *Processor {
	return &Processor{
		store:       store,
		objects:     objects,
		chunker:     chunker,
		embedder:    embedder,
		vectors:     vectors,
		collections: collections,
		log:         log,
	}
}

// ChunkID derives the deterministic vector-index primary key for one chunk.
// Reprocessing a document regenerates the same ids, so upsert overwrites
// instead of duplicating.
func ChunkID(documentID string, chunkIndex int) string {
	return fmt.Sprintf("%s-%d", documentID, chunkIndex)
}

// Process handles one indexing message to completion. A nil return means the
// end state is durably committed and the message may be acknowledged. A
// permanent error also means the message may be acknowledged: the FAILED
// transition is committed before it is returned. Any other error is
// transient and the message must be redelivered or republished.
func (p *Processor) Process(ctx context.Context, msg IndexingMessage) error {
	log := p.log.WithPayload(map[string]interface{}{
		"document_id":   string(msg.DocumentID),
		"collection_id": string(msg.CollectionID),
		"attempt":       msg.Attempt,
	})

	coll, err := p.collections.GetCollection(ctx, msg.CollectionID)
	if errors.Is(err, models.ErrNotFound) {
		// The collection is gone; nothing to index into. Stale message.
		log.Warn("dropping indexing message for missing collection")
		return nil
	}
	if err != nil {
		return err
	}
	if _, err := p.store.GetLink(ctx, msg.DocumentID, msg.CollectionID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			log.Warn("dropping indexing message for unlinked document")
			return nil
		}
		return err
	}

	if err := p.index(ctx, msg, coll.InternalName); err != nil {
		if !IsPermanentError(err) {
			return err
		}
		// Permanent: commit FAILED, then hand the original error back so the
		// consumer logs it and acknowledges.
		if serr := p.store.UpdateIndexingStatus(ctx, msg.DocumentID, msg.CollectionID, models.StatusFailed); serr != nil {
			if errors.Is(serr, models.ErrInvalidArgument) {
				// Already INDEXED by another delivery; the failure is stale.
				log.Warn("ignoring permanent failure for already-indexed document")
				return nil
			}
			return serr
		}
		return err
	}

	if err := p.store.UpdateIndexingStatus(ctx, msg.DocumentID, msg.CollectionID, models.StatusIndexed); err != nil {
		return err
	}
	log.Info("document indexed")
	return nil
}

// index runs fetch -> chunk -> embed -> upsert.
func (p *Processor) index(ctx context.Context, msg IndexingMessage, internalName string) error {
	data, err := p.objects.Get(ctx, msg.ObjectKey)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("document bytes missing at '%s': %w", msg.ObjectKey, chunking.ErrCorruptContent)
		}
		return err
	}

	chunks, err := p.chunker.Chunk(ctx, msg.MimeType, data)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return fmt.Errorf("document '%s' produced no chunks: %w", msg.DocumentID, chunking.ErrCorruptContent)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := p.embedAll(ctx, texts)
	if err != nil {
		return err
	}

	records := make([]milvus.ChunkRecord, len(chunks))
	for i, c := range chunks {
		records[i] = milvus.ChunkRecord{
			ChunkID:    ChunkID(string(msg.DocumentID), c.Index),
			DocumentID: string(msg.DocumentID),
			Text:       c.Text,
			PageLabel:  c.PageLabel,
			LineRange:  c.LineRange,
			Embedding:  vectors[i],
		}
	}
	return p.vectors.Upsert(ctx, internalName, records)
}

// embedBatchSize bounds one provider call; large documents are embedded in
// parallel batches.
const embedBatchSize = 64

// embedAll embeds every text, batching provider calls and running the
// batches concurrently. Each batch writes its own slice range, so the only
// coordination is the group wait.
func (p *Processor) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for start := 0; start < len(texts); start += embedBatchSize {
		start := start
		end := start + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		g.Go(func() error {
			batch, err := p.embedder.EmbedBatch(gctx, texts[start:end])
			if err != nil {
				return err
			}
			if len(batch) != end-start {
				return fmt.Errorf("embedder returned %d vectors for %d texts", len(batch), end-start)
			}
			copy(vectors[start:end], batch)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// IsPermanentError reports whether err means the document itself is
// unprocessable: unsupported or corrupt content, or input the embedding
// provider rejects. These mark the document FAILED; everything else is
// retried via redelivery.
func IsPermanentError(err error) bool {
	return chunking.IsPermanent(err) || errors.Is(err, embedding.ErrUnprocessable)
}
