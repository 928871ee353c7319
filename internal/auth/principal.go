package auth

import (
	"context"

	"github.com/google/uuid"
)

// Principal represents an authenticated caller. It is added to the
// request context after successful bearer verification.
type Principal struct {
	CoreUserID     uuid.UUID
	OrganizationID uuid.UUID
	IsGlobalAdmin  bool
}

type contextKey int

const (
	principalContextKey contextKey = iota
)

// WithPrincipal returns a context carrying the authenticated principal.
func WithPrincipal(ctx context.Context, principal *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, principal)
}

// PrincipalFromContext extracts the authenticated principal from the request context.
// Returns nil if no principal is present (unauthenticated request).
func PrincipalFromContext(ctx context.Context) *Principal {
	principal, _ := ctx.Value(principalContextKey).(*Principal)
	return principal
}
