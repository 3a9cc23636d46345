package tools

import "context"

type ownerKey struct{}

type conversationIDKey struct{}

// WithOwner tags ctx with the user a tool execution acts on behalf of.
func WithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerKey{}, owner)
}

// OwnerFromContext returns the acting user, or "" when none was attached.
func OwnerFromContext(ctx context.Context) string {
	owner, _ := ctx.Value(ownerKey{}).(string)
	return owner
}

// WithConversationID tags ctx with the conversation a tool execution
// belongs to.
func WithConversationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, conversationIDKey{}, id)
}

// ConversationIDFromContext returns the active conversation ID, or ""
// for stateless calls.
func ConversationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(conversationIDKey{}).(string)
	return id
}
