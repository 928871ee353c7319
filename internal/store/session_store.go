package store

import (
	"context"
	"errors"

	"github.com/meshstack/coregate/internal/models"
)

// Sentinel errors for session store operations
var (
	ErrSessionNotFound = errors.New("session not found")
)

// SessionStore defines the interface for server-side session storage.
// Sessions back the opaque access tokens issued on login.
type SessionStore interface {
	// Create stores a new session.
	Create(ctx context.Context, session *models.Session) error

	// Get retrieves a session by its token.
	// Returns ErrSessionNotFound if the session doesn't exist or expired.
	Get(ctx context.Context, token string) (*models.Session, error)

	// Delete removes a session by its token.
	Delete(ctx context.Context, token string) error

	// DeleteExpired removes all expired sessions and returns the count.
	DeleteExpired(ctx context.Context) (int, error)
}
