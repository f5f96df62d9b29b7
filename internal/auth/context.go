// ABOUTME: Caller identity propagated through context
// ABOUTME: Provides WithIdentity/FromContext/UserID helpers

package auth

import (
	"context"
)

// Identity is the authenticated caller of a request.
type Identity struct {
	UserID string
	Source string // "jwt", "header" or "anonymous"
}

type identityKey struct{}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the Identity in ctx, or nil.
func FromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}

// UserID returns the caller's user id, or "" when ctx carries none.
func UserID(ctx context.Context) string {
	if id := FromContext(ctx); id != nil {
		return id.UserID
	}
	return ""
}
