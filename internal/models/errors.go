package models

import "errors"

// Shared sentinel errors. The API layer maps these to HTTP status codes;
// services wrap them with context via fmt.Errorf("...: %w", err).
//
// Forbidden and not-found are deliberately distinct: a caller who lacks
// permission on an existing entity gets ErrForbidden, never ErrNotFound.
var (
	// ErrUnauthorized means no valid caller identity was presented.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden means the caller is known but lacks permission.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound means the target entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument means the request was malformed and nothing was persisted.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrDataIntegrity marks a state the data model forbids, such as a
	// duplicate ACTIVE membership or a broken ownership chain. It is never
	// auto-corrected or downgraded to "no access"; operators must see it.
	ErrDataIntegrity = errors.New("data integrity violation")
)
