// Package chunking turns a document's raw bytes into an ordered list of
// chunks with stable positions. The error contract is part of the package's
// purpose: the pipeline cannot classify failures on its own, so loaders must
// distinguish "this input is unprocessable" (permanent) from everything else
// (transient, safe to retry via redelivery).
package chunking

import (
	"context"
	"errors"
)

// Permanent processing errors. A document failing with one of these is marked
// FAILED and is retried only on explicit re-submission.
var (
	ErrUnsupportedMime = errors.New("unsupported mime type")
	ErrCorruptContent  = errors.New("corrupt or unreadable content")
)

// IsPermanent reports whether err means the input itself is unprocessable.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrUnsupportedMime) || errors.Is(err, ErrCorruptContent)
}

// Chunk is one content-bearing slice of a document. Index is the chunk's
// position in document order and is stable across reprocessing, which is what
// makes upsert-by-derived-id idempotent.
type Chunk struct {
	Index     int
	Text      string
	PageLabel string
	LineRange string
}

// Chunker produces the full ordered chunk list for a document. The returned
// slice is fully materialized; callers may rely on its length.
type Chunker interface {
	Chunk(ctx context.Context, mimeType string, data []byte) ([]Chunk, error)
}
