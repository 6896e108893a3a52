// Package context provides request-scoped values extraction.
package context

import (
	"context"
)

// SystemActor is recorded as created_by when no caller identity is present
// (worker jobs, seed runs).
const SystemActor = "system"

// UserContext identifies the caller on whose behalf stock is moved.
// Authentication is performed upstream; the ledger only records the identity.
type UserContext struct {
	UserID string
	Email  string
}

type userContextKey struct{}

// WithUser adds UserContext to context.
func WithUser(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// GetUser returns UserContext from context.
func GetUser(ctx context.Context) *UserContext {
	if v, ok := ctx.Value(userContextKey{}).(*UserContext); ok {
		return v
	}
	return nil
}

// GetUserID returns user ID from context or empty string.
func GetUserID(ctx context.Context) string {
	if u := GetUser(ctx); u != nil {
		return u.UserID
	}
	return ""
}

// ActorOrSystem returns the caller id, or SystemActor when none is set.
func ActorOrSystem(ctx context.Context) string {
	if uid := GetUserID(ctx); uid != "" {
		return uid
	}
	return SystemActor
}
