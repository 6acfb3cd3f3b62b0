package chunking

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// TokenSplitter splits loaded pages into token-bounded chunks. Chunk indexes
// run across the whole document in page order, so the same input always
// yields the same (index, text) pairs.
type TokenSplitter struct {
	ChunkSize    int
	ChunkOverlap int
	tokenizer    *tiktoken.Tiktoken
}

// NewTokenSplitter builds a splitter using the cl100k_base encoding, the
// tokenizer behind the embedding models this system targets.
func NewTokenSplitter(chunkSize, chunkOverlap int) (*TokenSplitter, error) {
	if chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", chunkOverlap, chunkSize)
	}
	tke, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to get tiktoken encoding: %w", err)
	}
	return &TokenSplitter{
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
		tokenizer:    tke,
	}, nil
}

// Chunk implements the Chunker interface: load pages for the mime type, then
// split each page into overlapping token windows.
func (s *TokenSplitter) Chunk(ctx context.Context, mimeType string, data []byte) ([]Chunk, error) {
	pages, err := load(mimeType, data)
	if err != nil {
		return nil, err
	}

	var chunks []Chunk
	index := 0
	for _, pg := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tokens := s.tokenizer.Encode(pg.Text, nil, nil)
		step := s.ChunkSize - s.ChunkOverlap

		for start := 0; start < len(tokens); start += step {
			end := start + s.ChunkSize
			if end > len(tokens) {
				end = len(tokens)
			}

			text := s.tokenizer.Decode(tokens[start:end])
			prefix := s.tokenizer.Decode(tokens[:start])
			firstLine := strings.Count(prefix, "\n") + 1
			lastLine := firstLine + strings.Count(text, "\n")

			chunks = append(chunks, Chunk{
				Index:     index,
				Text:      text,
				PageLabel: pg.Label,
				LineRange: fmt.Sprintf("%d-%d", firstLine, lastLine),
			})
			index++

			if end == len(tokens) {
				break
			}
		}
	}
	return chunks, nil
}

var _ Chunker = (*TokenSplitter)(nil)
