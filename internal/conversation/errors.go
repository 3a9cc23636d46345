package conversation

import "errors"

var (
	// ErrNotFound marks a conversation or message that does not exist or is
	// soft-deleted.
	ErrNotFound = errors.New("conversation: not found")

	// ErrAccessDenied marks an owner mismatch. Surfaced identically to
	// ErrNotFound at the API layer so ownership is not probeable.
	ErrAccessDenied = errors.New("conversation: access denied")
)
