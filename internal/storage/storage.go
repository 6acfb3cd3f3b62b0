// Package storage is the object storage collaborator: raw document bytes go
// in at upload time and come back out in the indexing worker. The backend is
// selected at startup; everything else consumes the capability interface.
//
// There is deliberately no Delete: upstream object deletion is unimplemented,
// and pretending otherwise here would hide the gap.
package storage

import (
	"context"
	"fmt"

	"docstack/internal/identity"
)

// Store is the object storage capability.
type Store interface {
	// Get returns the object's bytes, or models.ErrNotFound if absent.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put writes the object, overwriting any previous content.
	Put(ctx context.Context, key string, data []byte) error
}

// ObjectKey derives the storage key for a document's raw bytes. The pipeline
// owns this derivation: the same (org, collection, document) triple always
// maps to the same key, so reprocessing fetches the same object.
func ObjectKey(orgID identity.OrgID, collectionID identity.CollectionID, documentID identity.DocumentID) string {
	return fmt.Sprintf("org/%s/collection/%s/%s", orgID, collectionID, documentID)
}
