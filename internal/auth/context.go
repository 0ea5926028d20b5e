// Package auth carries the caller's owner scope through the request
// context. Authentication itself happens upstream; this package only
// propagates the resolved identity.
package auth

import "context"

type contextKey string

const ownerIDKey contextKey = "ownerID"

// AnonymousOwner is used when no identity header is present.
const AnonymousOwner = "anonymous"

// ContextWithOwnerID returns a new context carrying the owner scope.
func ContextWithOwnerID(ctx context.Context, ownerID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ownerIDKey, ownerID)
}

// OwnerIDFromContext retrieves the owner scope from the context, if any.
func OwnerIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	value, ok := ctx.Value(ownerIDKey).(string)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}
