package milvus

import (
	"context"
	"fmt"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"docstack/internal/config"
)

// Field names shared by every per-collection schema.
const (
	FieldChunkID    = "chunk_id"
	FieldDocumentID = "document_id"
	FieldChunk      = "chunk"
	FieldPageLabel  = "page_label"
	FieldLineRange  = "line_range"
	FieldEmbedding  = "embedding"
)

// ChunkRecord is one chunk as stored in the vector index. ChunkID is derived
// deterministically from (document, chunk index), so upserting the same
// record twice overwrites instead of duplicating.
type ChunkRecord struct {
	ChunkID    string
	DocumentID string
	Text       string
	PageLabel  string
	LineRange  string
	Embedding  []float32
}

// ScoredChunk is one retrieval hit.
type ScoredChunk struct {
	ChunkID    string
	DocumentID string
	Text       string
	PageLabel  string
	Score      float64
}

// Client wraps the Milvus SDK client. Unlike the fixed-collection layouts
// common elsewhere, every DocumentCollection here gets its own Milvus
// collection, created when the record is created.
type Client struct {
	Client client.Client
	Config *config.MilvusConfig
}

// New connects to Milvus.
func New(ctx context.Context, cfg *config.MilvusConfig) (*Client, error) {
	c, err := client.NewClient(ctx, client.Config{Address: cfg.Address})
	if err != nil {
		return nil, fmt.Errorf("unable to connect to Milvus: %w", err)
	}
	return &Client{Client: c, Config: cfg}, nil
}

// Close closes the connection to Milvus.
func (c *Client) Close() {
	if c.Client != nil {
		c.Client.Close()
	}
}

// HealthCheck verifies connectivity.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.Client == nil {
		return fmt.Errorf("milvus client is nil")
	}
	if _, err := c.Client.ListCollections(ctx); err != nil {
		return fmt.Errorf("milvus health check failed: %w", err)
	}
	return nil
}

// CreateCollection creates a collection under the given internal name with
// the chunk schema and an AUTOINDEX on the embedding field, then loads it.
// The name must already satisfy the naming constraints; Milvus enforces its
// own rules on top.
func (c *Client) CreateCollection(ctx context.Context, name string) error {
	schema := entity.NewSchema().
		WithName(name).
		WithDescription("document chunks").
		WithField(entity.NewField().WithName(FieldChunkID).WithDataType(entity.FieldTypeVarChar).WithMaxLength(128).WithIsPrimaryKey(true)).
		WithField(entity.NewField().WithName(FieldDocumentID).WithDataType(entity.FieldTypeVarChar).WithMaxLength(64)).
		WithField(entity.NewField().WithName(FieldChunk).WithDataType(entity.FieldTypeVarChar).WithMaxLength(65535)).
		WithField(entity.NewField().WithName(FieldPageLabel).WithDataType(entity.FieldTypeVarChar).WithMaxLength(64)).
		WithField(entity.NewField().WithName(FieldLineRange).WithDataType(entity.FieldTypeVarChar).WithMaxLength(64)).
		WithField(entity.NewField().WithName(FieldEmbedding).WithDataType(entity.FieldTypeFloatVector).WithDim(int64(c.Config.VectorDim)))

	if err := c.Client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("unable to create collection '%s': %w", name, err)
	}

	idx, err := entity.NewIndexAUTOINDEX(entity.MetricType(c.Config.MetricType))
	if err != nil {
		return fmt.Errorf("unable to build index for collection '%s': %w", name, err)
	}
	if err := c.Client.CreateIndex(ctx, name, FieldEmbedding, idx, false); err != nil {
		return fmt.Errorf("unable to create index for collection '%s': %w", name, err)
	}

	if err := c.Client.LoadCollection(ctx, name, false); err != nil {
		return fmt.Errorf("unable to load collection '%s': %w", name, err)
	}
	return nil
}

// HasCollection reports whether the named collection exists.
func (c *Client) HasCollection(ctx context.Context, name string) (bool, error) {
	return c.Client.HasCollection(ctx, name)
}

// DropCollection removes the named collection. Used only to compensate a
// failed create; there is no user-facing collection deletion.
func (c *Client) DropCollection(ctx context.Context, name string) error {
	return c.Client.DropCollection(ctx, name)
}

// Upsert writes chunk records into the named collection. Records sharing a
// chunk id with an existing row overwrite it, which makes redelivered
// indexing messages safe.
func (c *Client) Upsert(ctx context.Context, collectionName string, records []ChunkRecord) error {
	if len(records) == 0 {
		return nil
	}

	ids := make([]string, len(records))
	docIDs := make([]string, len(records))
	texts := make([]string, len(records))
	pages := make([]string, len(records))
	lines := make([]string, len(records))
	vectors := make([][]float32, len(records))
	for i, r := range records {
		ids[i] = r.ChunkID
		docIDs[i] = r.DocumentID
		texts[i] = r.Text
		pages[i] = r.PageLabel
		lines[i] = r.LineRange
		vectors[i] = r.Embedding
	}

	_, err := c.Client.Upsert(ctx, collectionName, "",
		entity.NewColumnVarChar(FieldChunkID, ids),
		entity.NewColumnVarChar(FieldDocumentID, docIDs),
		entity.NewColumnVarChar(FieldChunk, texts),
		entity.NewColumnVarChar(FieldPageLabel, pages),
		entity.NewColumnVarChar(FieldLineRange, lines),
		entity.NewColumnFloatVector(FieldEmbedding, c.Config.VectorDim, vectors),
	)
	if err != nil {
		return fmt.Errorf("unable to upsert %d chunks into '%s': %w", len(records), collectionName, err)
	}
	return nil
}

// searchParams builds the AUTOINDEX search params every Query uses.
func searchParams() (entity.SearchParam, error) {
	sp, err := entity.NewIndexAUTOINDEXSearchParam(1)
	if err != nil {
		return nil, fmt.Errorf("unable to build search params: %w", err)
	}
	return sp, nil
}

// Query runs a vector similarity search against the named collection and
// returns the topK chunks with their raw scores.
func (c *Client) Query(ctx context.Context, collectionName string, vector []float32, topK int) ([]ScoredChunk, error) {
	if err := c.Client.LoadCollection(ctx, collectionName, false); err != nil {
		return nil, fmt.Errorf("unable to load collection '%s': %w", collectionName, err)
	}

	sp, err := searchParams()
	if err != nil {
		return nil, err
	}
	results, err := c.Client.Search(
		ctx,
		collectionName,
		nil,
		"",
		[]string{FieldDocumentID, FieldChunk, FieldPageLabel},
		[]entity.Vector{entity.FloatVector(vector)},
		FieldEmbedding,
		entity.MetricType(c.Config.MetricType),
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("search in collection '%s' failed: %w", collectionName, err)
	}

	var hits []ScoredChunk
	for _, res := range results {
		idCol, ok := res.IDs.(*entity.ColumnVarChar)
		if !ok {
			return nil, fmt.Errorf("unexpected id column type %T", res.IDs)
		}
		for i := 0; i < res.ResultCount; i++ {
			hit := ScoredChunk{
				ChunkID: idCol.Data()[i],
				Score:   float64(res.Scores[i]),
			}
			for _, col := range res.Fields {
				vc, ok := col.(*entity.ColumnVarChar)
				if !ok {
					continue
				}
				switch col.Name() {
				case FieldDocumentID:
					hit.DocumentID = vc.Data()[i]
				case FieldChunk:
					hit.Text = vc.Data()[i]
				case FieldPageLabel:
					hit.PageLabel = vc.Data()[i]
				}
			}
			hits = append(hits, hit)
		}
	}
	return hits, nil
}
