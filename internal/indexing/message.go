package indexing

import (
	"encoding/json"
	"fmt"

	"docstack/internal/identity"
	"docstack/internal/models"
)

// IndexingMessage is the queue payload for one (document, collection) pair.
// Attempt starts at 1 and is incremented on every transient-failure
// republish; the consumer dead-letters the message once it exceeds the
// configured maximum.
type IndexingMessage struct {
	DocumentID   identity.DocumentID   `json:"documentId"`
	CollectionID identity.CollectionID `json:"collectionId"`
	MimeType     string                `json:"mimeType"`
	ObjectKey    string                `json:"objectKey"`
	Attempt      int                   `json:"attempt"`
}

// Encode serializes the message for the queue.
func (m IndexingMessage) Encode() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("unable to encode indexing message: %w", err)
	}
	return data, nil
}

// DecodeMessage parses a queue payload. A payload that does not parse or
// lacks its identifiers is poison, not retryable.
func DecodeMessage(data []byte) (IndexingMessage, error) {
	var m IndexingMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("malformed indexing message: %w: %s", models.ErrInvalidArgument, err)
	}
	if m.DocumentID == "" || m.CollectionID == "" || m.ObjectKey == "" {
		return m, fmt.Errorf("indexing message missing identifiers: %w", models.ErrInvalidArgument)
	}
	return m, nil
}
