package embedding

import (
	"context"
	"errors"
)

// ErrUnprocessable means the provider rejected the input itself (not a
// transient outage). The indexing pipeline treats it as a permanent failure;
// everything else coming out of this package is retryable.
var ErrUnprocessable = errors.New("embedding input unprocessable")

// Embedding is the contract every embedding model client implements.
type Embedding interface {
	// Embed generates an embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embedding vectors for a batch of texts, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}
