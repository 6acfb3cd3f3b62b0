package embedding

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/meguminnnnnnnnn/go-openai"
)

// OpenAIModel is an embedding client for the OpenAI API (or any
// API-compatible endpoint via baseURL).
type OpenAIModel struct {
	client *openai.Client
	model  string
}

// NewOpenAIModel creates a new OpenAI embedding client.
func NewOpenAIModel(apiKey, baseURL, modelName string) (*OpenAIModel, error) {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIModel{client: openai.NewClientWithConfig(cfg), model: modelName}, nil
}

// Embed generates an embedding vector for a single text.
func (m *OpenAIModel) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := m.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// EmbedBatch generates embedding vectors for a batch of texts. A 4xx from
// the provider means the input is unprocessable and is wrapped with
// ErrUnprocessable so the pipeline does not retry it.
func (m *OpenAIModel) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(m.model),
	}

	resp, err := m.client.CreateEmbeddings(ctx, req)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode >= 400 && apiErr.HTTPStatusCode < 500 && apiErr.HTTPStatusCode != 429 {
			return nil, fmt.Errorf("%w: %v", ErrUnprocessable, err)
		}
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("provider returned %d embeddings for %d inputs", len(resp.Data), len(texts))
	}

	embeddings := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		embeddings[i] = d.Embedding
	}
	return embeddings, nil
}

var _ Embedding = (*OpenAIModel)(nil)
