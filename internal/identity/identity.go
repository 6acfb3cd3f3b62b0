// Package identity generates and parses the opaque identifiers used by every
// entity in the system. Each entity kind gets its own defined string type so
// that, for example, a DocumentID cannot be passed where a ChatID is expected.
// The wire representation is the plain string; any boundary that deserializes
// an identifier must immediately re-tag it with Parse.
package identity

import (
	"fmt"

	"github.com/google/uuid"
)

// Identifier kinds. One defined type per entity; equality is plain ==,
// kind-checked at compile time only.
type (
	UserID       string
	OrgID        string
	MembershipID string
	CollectionID string
	DocumentID   string
	ChatID       string
	MessageID    string
	CitationID   string
)

// New generates a fresh collision-resistant identifier of the requested kind.
func New[ID ~string]() ID {
	return ID(uuid.NewString())
}

// Parse re-tags a raw string with the expected kind. It only rejects the
// empty string; kinds with stricter alphabets validate at their own layer.
func Parse[ID ~string](raw string) (ID, error) {
	if raw == "" {
		return "", fmt.Errorf("empty identifier")
	}
	return ID(raw), nil
}

// Equal reports whether two identifiers of the same kind are the same value.
func Equal[ID ~string](a, b ID) bool {
	return string(a) == string(b)
}
