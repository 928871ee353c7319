package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/mr-tron/base58"

	"github.com/meshstack/coregate/internal/models"
	"github.com/meshstack/coregate/internal/store"
	"github.com/meshstack/coregate/internal/telemetry"
)

// DefaultSessionTTL is the lifetime of opaque session tokens.
const DefaultSessionTTL = 24 * time.Hour

// NewSessionToken generates an opaque session token: 32 random bytes,
// base58 encoded so it stays URL and copy-paste safe.
func NewSessionToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}

	return base58.Encode(buf), nil
}

// SessionManager creates and resolves opaque sessions backed by the
// session store.
type SessionManager struct {
	sessions store.SessionStore
	ttl      time.Duration
}

// NewSessionManager creates a session manager.
func NewSessionManager(sessions store.SessionStore, ttl time.Duration) *SessionManager {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}

	return &SessionManager{sessions: sessions, ttl: ttl}
}

// Create mints a session for the core user and persists it.
func (m *SessionManager) Create(ctx context.Context, user *models.CoreUser, userAgent, ipAddress string) (*models.Session, error) {
	token, err := NewSessionToken()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	session := &models.Session{
		Token:          token,
		CoreUserID:     user.CoreUserID,
		OrganizationID: user.OrganizationID,
		IsGlobalAdmin:  user.IsGlobalAdmin,
		CreatedAt:      now,
		ExpiresAt:      now.Add(m.ttl),
		LastUsedAt:     now,
		UserAgent:      userAgent,
		IPAddress:      ipAddress,
	}

	if err := m.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	telemetry.GetMetrics().SessionsCreatedTotal.Add(ctx, 1)

	return session, nil
}

// Resolve returns the principal for a live session token.
func (m *SessionManager) Resolve(ctx context.Context, token string) (*Principal, error) {
	session, err := m.sessions.Get(ctx, token)
	if err != nil {
		return nil, err
	}

	return &Principal{
		CoreUserID:     session.CoreUserID,
		OrganizationID: session.OrganizationID,
		IsGlobalAdmin:  session.IsGlobalAdmin,
	}, nil
}

// Revoke deletes a session, ending it immediately.
func (m *SessionManager) Revoke(ctx context.Context, token string) error {
	return m.sessions.Delete(ctx, token)
}
