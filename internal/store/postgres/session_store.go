package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meshstack/coregate/internal/models"
	"github.com/meshstack/coregate/internal/store"
)

// SessionStore implements store.SessionStore using PostgreSQL.
type SessionStore struct {
	pool *pgxpool.Pool
}

// NewSessionStore creates a new PostgreSQL-backed session store.
func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{pool: pool}
}

// Create stores a new session.
func (s *SessionStore) Create(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO sessions (
			token, core_user_id, organization_id, is_global_admin, created_at, expires_at, last_used_at, user_agent, ip_address
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
	`

	_, err := s.pool.Exec(ctx, query,
		session.Token,
		session.CoreUserID,
		session.OrganizationID,
		session.IsGlobalAdmin,
		session.CreatedAt,
		session.ExpiresAt,
		session.LastUsedAt,
		session.UserAgent,
		session.IPAddress,
	)

	if err != nil {
		return fmt.Errorf("failed to create session: %w", mapPostgresError(err))
	}

	return nil
}

// Get retrieves a session by its token. Expired sessions are treated as missing.
func (s *SessionStore) Get(ctx context.Context, token string) (*models.Session, error) {
	query := `
		UPDATE sessions SET last_used_at = now()
		WHERE token = $1 AND expires_at > now()
		RETURNING token, core_user_id, organization_id, is_global_admin, created_at, expires_at, last_used_at, user_agent, ip_address
	`

	var session models.Session
	err := s.pool.QueryRow(ctx, query, token).Scan(
		&session.Token,
		&session.CoreUserID,
		&session.OrganizationID,
		&session.IsGlobalAdmin,
		&session.CreatedAt,
		&session.ExpiresAt,
		&session.LastUsedAt,
		&session.UserAgent,
		&session.IPAddress,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", mapPostgresError(err))
	}

	return &session, nil
}

// Delete removes a session by its token.
func (s *SessionStore) Delete(ctx context.Context, token string) error {
	result, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE token = $1`, token)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrSessionNotFound
	}

	return nil
}

// DeleteExpired removes all expired sessions and returns the count.
func (s *SessionStore) DeleteExpired(ctx context.Context) (int, error) {
	result, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", mapPostgresError(err))
	}

	return int(result.RowsAffected()), nil
}
