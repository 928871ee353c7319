package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/meshstack/coregate/internal/models"
	"github.com/meshstack/coregate/internal/store"
)

// OrganizationStore implements store.OrganizationStore using PostgreSQL.
type OrganizationStore struct {
	pool *pgxpool.Pool
}

// NewOrganizationStore creates a new PostgreSQL-backed organization store.
// It shares the connection pool with the other stores.
func NewOrganizationStore(pool *pgxpool.Pool) *OrganizationStore {
	return &OrganizationStore{pool: pool}
}

// Create creates a new organization in the database.
func (s *OrganizationStore) Create(ctx context.Context, org *models.Organization) error {
	query := `
		INSERT INTO organizations (
			organization_id, name, oauth_domains, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5
		)
	`

	_, err := s.pool.Exec(ctx, query,
		org.OrganizationID,
		org.Name,
		org.OAuthDomains,
		org.CreatedAt,
		org.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrOrganizationAlreadyExists
		}
		return fmt.Errorf("failed to create organization: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("organization_id", org.OrganizationID.String()).
		Str("name", org.Name).
		Msg("Created organization")

	return nil
}

// Get retrieves an organization by ID.
func (s *OrganizationStore) Get(ctx context.Context, organizationID uuid.UUID) (*models.Organization, error) {
	query := `
		SELECT organization_id, name, oauth_domains, created_at, updated_at
		FROM organizations
		WHERE organization_id = $1
	`
	return s.queryOne(ctx, query, organizationID)
}

// GetByName retrieves an organization by its unique name.
func (s *OrganizationStore) GetByName(ctx context.Context, name string) (*models.Organization, error) {
	query := `
		SELECT organization_id, name, oauth_domains, created_at, updated_at
		FROM organizations
		WHERE name = $1
	`
	return s.queryOne(ctx, query, name)
}

// GetOrCreateByName resolves an organization by name, creating it when
// missing. The insert relies on the unique index on name: when a concurrent
// signup wins the race the unique violation falls back to a single re-read
// instead of surfacing a conflict.
func (s *OrganizationStore) GetOrCreateByName(ctx context.Context, name string) (*models.Organization, bool, error) {
	if org, err := s.GetByName(ctx, name); err == nil {
		return org, false, nil
	} else if !errors.Is(err, store.ErrOrganizationNotFound) {
		return nil, false, err
	}

	now := time.Now()
	org := &models.Organization{
		OrganizationID: uuid.New(),
		Name:           name,
		OAuthDomains:   []string{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := s.Create(ctx, org)
	if err == nil {
		return org, true, nil
	}
	if !errors.Is(err, store.ErrOrganizationAlreadyExists) {
		return nil, false, err
	}

	// Lost the race: another caller created the row between the read and
	// the insert. Retry the lookup once.
	org, lookupErr := s.GetByName(ctx, name)
	if lookupErr != nil {
		return nil, false, fmt.Errorf("failed to resolve organization after conflict: %w", lookupErr)
	}
	return org, false, nil
}

// Update updates an existing organization.
func (s *OrganizationStore) Update(ctx context.Context, org *models.Organization) error {
	org.UpdatedAt = time.Now()

	query := `
		UPDATE organizations SET
			name = $2,
			oauth_domains = $3,
			updated_at = $4
		WHERE organization_id = $1
	`

	result, err := s.pool.Exec(ctx, query,
		org.OrganizationID,
		org.Name,
		org.OAuthDomains,
		org.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrOrganizationAlreadyExists
		}
		return fmt.Errorf("failed to update organization: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrOrganizationNotFound
	}

	return nil
}

// ListByOAuthDomain returns all organizations claiming the given OAuth domain.
func (s *OrganizationStore) ListByOAuthDomain(ctx context.Context, domain string) ([]*models.Organization, error) {
	query := `
		SELECT organization_id, name, oauth_domains, created_at, updated_at
		FROM organizations
		WHERE $1 = ANY(oauth_domains)
		ORDER BY name
	`
	return s.queryMany(ctx, query, domain)
}

// List returns all organizations ordered by name.
func (s *OrganizationStore) List(ctx context.Context) ([]*models.Organization, error) {
	query := `
		SELECT organization_id, name, oauth_domains, created_at, updated_at
		FROM organizations
		ORDER BY name
	`
	return s.queryMany(ctx, query)
}

func (s *OrganizationStore) queryOne(ctx context.Context, query string, args ...any) (*models.Organization, error) {
	var org models.Organization
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&org.OrganizationID,
		&org.Name,
		&org.OAuthDomains,
		&org.CreatedAt,
		&org.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("failed to get organization: %w", mapPostgresError(err))
	}

	return &org, nil
}

func (s *OrganizationStore) queryMany(ctx context.Context, query string, args ...any) ([]*models.Organization, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var orgs []*models.Organization
	for rows.Next() {
		var org models.Organization
		err := rows.Scan(
			&org.OrganizationID,
			&org.Name,
			&org.OAuthDomains,
			&org.CreatedAt,
			&org.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		orgs = append(orgs, &org)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating organizations: %w", err)
	}

	return orgs, nil
}
