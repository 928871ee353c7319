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

// CoreGroupStore implements store.CoreGroupStore using PostgreSQL.
type CoreGroupStore struct {
	pool *pgxpool.Pool
}

// NewCoreGroupStore creates a new PostgreSQL-backed core group store.
func NewCoreGroupStore(pool *pgxpool.Pool) *CoreGroupStore {
	return &CoreGroupStore{pool: pool}
}

// Create creates a new core group. The partial unique index on
// (organization_id) WHERE is_org_level enforces one org-level group per
// organization.
func (s *CoreGroupStore) Create(ctx context.Context, group *models.CoreGroup) error {
	query := `
		INSERT INTO core_groups (
			group_id, organization_id, name, is_org_level, permissions, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
	`

	_, err := s.pool.Exec(ctx, query,
		group.GroupID,
		group.OrganizationID,
		group.Name,
		group.IsOrgLevel,
		group.Permissions,
		group.CreatedAt,
		group.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrCoreGroupAlreadyExists
		}
		return fmt.Errorf("failed to create core group: %w", mapPostgresError(err))
	}

	return nil
}

// Get retrieves a core group by ID.
func (s *CoreGroupStore) Get(ctx context.Context, groupID uuid.UUID) (*models.CoreGroup, error) {
	query := `
		SELECT group_id, organization_id, name, is_org_level, permissions, created_at, updated_at
		FROM core_groups
		WHERE group_id = $1
	`

	var g models.CoreGroup
	err := s.pool.QueryRow(ctx, query, groupID).Scan(
		&g.GroupID,
		&g.OrganizationID,
		&g.Name,
		&g.IsOrgLevel,
		&g.Permissions,
		&g.CreatedAt,
		&g.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrCoreGroupNotFound
		}
		return nil, fmt.Errorf("failed to get core group: %w", mapPostgresError(err))
	}

	return &g, nil
}

// GetOrCreateOrgAdmin resolves the org-level admin group for an organization,
// creating it when missing. The partial unique index backs the race: a
// conflicting insert falls back to a single re-read.
func (s *CoreGroupStore) GetOrCreateOrgAdmin(ctx context.Context, organizationID uuid.UUID) (*models.CoreGroup, error) {
	if group, err := s.getOrgLevel(ctx, organizationID); err == nil {
		return group, nil
	} else if !errors.Is(err, store.ErrCoreGroupNotFound) {
		return nil, err
	}

	now := time.Now()
	group := &models.CoreGroup{
		GroupID:        uuid.New(),
		OrganizationID: organizationID,
		Name:           models.OrgAdminGroupName,
		IsOrgLevel:     true,
		Permissions:    models.PermissionsOrgAdmin,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := s.Create(ctx, group)
	if err == nil {
		log.Debug().
			Str("organization_id", organizationID.String()).
			Str("group_id", group.GroupID.String()).
			Msg("Created org admin group")
		return group, nil
	}
	if !errors.Is(err, store.ErrCoreGroupAlreadyExists) {
		return nil, err
	}

	return s.getOrgLevel(ctx, organizationID)
}

// ListByOrganization returns all core groups in an organization.
func (s *CoreGroupStore) ListByOrganization(ctx context.Context, organizationID uuid.UUID) ([]*models.CoreGroup, error) {
	query := `
		SELECT group_id, organization_id, name, is_org_level, permissions, created_at, updated_at
		FROM core_groups
		WHERE organization_id = $1
		ORDER BY name
	`

	rows, err := s.pool.Query(ctx, query, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list core groups: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var groups []*models.CoreGroup
	for rows.Next() {
		var g models.CoreGroup
		err := rows.Scan(
			&g.GroupID,
			&g.OrganizationID,
			&g.Name,
			&g.IsOrgLevel,
			&g.Permissions,
			&g.CreatedAt,
			&g.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan core group: %w", err)
		}
		groups = append(groups, &g)
	}

	return groups, rows.Err()
}

func (s *CoreGroupStore) getOrgLevel(ctx context.Context, organizationID uuid.UUID) (*models.CoreGroup, error) {
	query := `
		SELECT group_id, organization_id, name, is_org_level, permissions, created_at, updated_at
		FROM core_groups
		WHERE organization_id = $1 AND is_org_level
	`

	var g models.CoreGroup
	err := s.pool.QueryRow(ctx, query, organizationID).Scan(
		&g.GroupID,
		&g.OrganizationID,
		&g.Name,
		&g.IsOrgLevel,
		&g.Permissions,
		&g.CreatedAt,
		&g.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrCoreGroupNotFound
		}
		return nil, fmt.Errorf("failed to get org admin group: %w", mapPostgresError(err))
	}

	return &g, nil
}
