package conversation

// Permissions decides whether an owner may act on a conversation. The store
// consults it on every read and mutation; a denial surfaces as
// ErrAccessDenied. An external authorization system can plug in a richer
// policy via WithPermissions.
type Permissions interface {
	CanView(conv Conversation, owner string) bool
	CanEdit(conv Conversation, owner string) bool
	CanDelete(conv Conversation, owner string) bool
}

// OwnerOnly grants every action to the conversation's owner and nothing to
// anyone else. This is the default policy.
type OwnerOnly struct{}

// CanView implements Permissions.
func (OwnerOnly) CanView(conv Conversation, owner string) bool { return conv.Owner == owner }

// CanEdit implements Permissions.
func (OwnerOnly) CanEdit(conv Conversation, owner string) bool { return conv.Owner == owner }

// CanDelete implements Permissions.
func (OwnerOnly) CanDelete(conv Conversation, owner string) bool { return conv.Owner == owner }
