package memory

import (
	"context"
	"sync"
	"time"

	"github.com/meshstack/coregate/internal/models"
	"github.com/meshstack/coregate/internal/store"
)

// SessionStore implements store.SessionStore using in-memory storage.
type SessionStore struct {
	mu sync.RWMutex

	sessions map[string]*models.Session // token -> Session
}

// NewSessionStore creates a new in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*models.Session),
	}
}

// Create stores a new session.
func (s *SessionStore) Create(ctx context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *session
	s.sessions[session.Token] = &clone

	return nil
}

// Get retrieves a session by its token. Expired sessions are treated as
// missing and removed lazily.
func (s *SessionStore) Get(ctx context.Context, token string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[token]
	if !exists {
		return nil, store.ErrSessionNotFound
	}
	if session.IsExpired() {
		delete(s.sessions, token)
		return nil, store.ErrSessionNotFound
	}

	session.LastUsedAt = time.Now()

	clone := *session
	return &clone, nil
}

// Delete removes a session by its token.
func (s *SessionStore) Delete(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[token]; !exists {
		return store.ErrSessionNotFound
	}
	delete(s.sessions, token)

	return nil
}

// DeleteExpired removes all expired sessions and returns the count.
func (s *SessionStore) DeleteExpired(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for token, session := range s.sessions {
		if session.IsExpired() {
			delete(s.sessions, token)
			count++
		}
	}

	return count, nil
}
