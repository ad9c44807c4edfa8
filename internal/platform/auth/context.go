package auth

import (
	"context"

	"github.com/google/uuid"
)

// WithUserID returns a context carrying the authenticated user id. Exposed for
// tests and internal callers that bypass the HTTP middleware.
func WithUserID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, UserIDKey, id)
}

// WithRoles returns a context carrying the caller's platform roles.
func WithRoles(ctx context.Context, roles []string) context.Context {
	return context.WithValue(ctx, UserRolesKey, roles)
}
