package models

import (
	"time"

	"github.com/google/uuid"
)

// Session represents an authenticated session backing an opaque access token.
// The token itself is the only value handed to the client; all session data
// lives server-side.
type Session struct {
	Token          string // base58-encoded random token
	CoreUserID     uuid.UUID
	OrganizationID uuid.UUID
	IsGlobalAdmin  bool // snapshot of the user's flag at login

	CreatedAt  time.Time
	ExpiresAt  time.Time
	LastUsedAt time.Time

	// Optional audit metadata
	UserAgent string
	IPAddress string
}

// IsExpired returns true if the session has expired.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}
