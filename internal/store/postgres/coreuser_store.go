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

// CoreUserStore implements store.CoreUserStore using PostgreSQL.
type CoreUserStore struct {
	pool *pgxpool.Pool
}

// NewCoreUserStore creates a new PostgreSQL-backed core user store.
func NewCoreUserStore(pool *pgxpool.Pool) *CoreUserStore {
	return &CoreUserStore{pool: pool}
}

const coreUserColumns = `
	core_user_id, username, email, password_hash, first_name, last_name,
	organization_id, is_active, is_global_admin, created_at, updated_at
`

// Create creates a new core user in the database.
func (s *CoreUserStore) Create(ctx context.Context, user *models.CoreUser) error {
	query := `
		INSERT INTO core_users (
			core_user_id, username, email, password_hash, first_name, last_name,
			organization_id, is_active, is_global_admin, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
	`

	_, err := s.pool.Exec(ctx, query,
		user.CoreUserID,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.OrganizationID,
		user.IsActive,
		user.IsGlobalAdmin,
		user.CreatedAt,
		user.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrCoreUserAlreadyExists
		}
		return fmt.Errorf("failed to create core user: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("core_user_id", user.CoreUserID.String()).
		Str("username", user.Username).
		Str("organization_id", user.OrganizationID.String()).
		Msg("Created core user")

	return nil
}

// Get retrieves a core user by ID.
func (s *CoreUserStore) Get(ctx context.Context, coreUserID uuid.UUID) (*models.CoreUser, error) {
	query := `SELECT ` + coreUserColumns + ` FROM core_users WHERE core_user_id = $1`
	return s.queryOne(ctx, query, coreUserID)
}

// GetByUsername retrieves a core user by username.
func (s *CoreUserStore) GetByUsername(ctx context.Context, username string) (*models.CoreUser, error) {
	query := `SELECT ` + coreUserColumns + ` FROM core_users WHERE username = $1`
	return s.queryOne(ctx, query, username)
}

// GetByEmail retrieves a core user by email.
func (s *CoreUserStore) GetByEmail(ctx context.Context, email string) (*models.CoreUser, error) {
	query := `SELECT ` + coreUserColumns + ` FROM core_users WHERE email = $1`
	return s.queryOne(ctx, query, email)
}

// Update updates an existing core user.
func (s *CoreUserStore) Update(ctx context.Context, user *models.CoreUser) error {
	user.UpdatedAt = time.Now()

	query := `
		UPDATE core_users SET
			username = $2,
			email = $3,
			password_hash = $4,
			first_name = $5,
			last_name = $6,
			organization_id = $7,
			is_active = $8,
			is_global_admin = $9,
			updated_at = $10
		WHERE core_user_id = $1
	`

	result, err := s.pool.Exec(ctx, query,
		user.CoreUserID,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.OrganizationID,
		user.IsActive,
		user.IsGlobalAdmin,
		user.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrCoreUserAlreadyExists
		}
		return fmt.Errorf("failed to update core user: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrCoreUserNotFound
	}

	return nil
}

// ListByOrganization returns all core users in an organization.
func (s *CoreUserStore) ListByOrganization(ctx context.Context, organizationID uuid.UUID) ([]*models.CoreUser, error) {
	query := `SELECT ` + coreUserColumns + ` FROM core_users WHERE organization_id = $1 ORDER BY username`
	return s.queryMany(ctx, query, organizationID)
}

// List returns all core users.
func (s *CoreUserStore) List(ctx context.Context) ([]*models.CoreUser, error) {
	query := `SELECT ` + coreUserColumns + ` FROM core_users ORDER BY username`
	return s.queryMany(ctx, query)
}

// FilterRegisteredEmails returns the subset of emails that already have an account.
func (s *CoreUserStore) FilterRegisteredEmails(ctx context.Context, emails []string) ([]string, error) {
	query := `SELECT email FROM core_users WHERE email = ANY($1)`

	rows, err := s.pool.Query(ctx, query, emails)
	if err != nil {
		return nil, fmt.Errorf("failed to filter registered emails: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var registered []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("failed to scan email: %w", err)
		}
		registered = append(registered, email)
	}

	return registered, rows.Err()
}

// AddToGroup adds a core user to a core group.
func (s *CoreUserStore) AddToGroup(ctx context.Context, coreUserID, groupID uuid.UUID) error {
	query := `
		INSERT INTO core_user_groups (core_user_id, group_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`

	_, err := s.pool.Exec(ctx, query, coreUserID, groupID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return store.ErrCoreUserNotFound
		}
		return fmt.Errorf("failed to add core user to group: %w", mapPostgresError(err))
	}

	return nil
}

// ListGroups returns the core groups a user is a member of.
func (s *CoreUserStore) ListGroups(ctx context.Context, coreUserID uuid.UUID) ([]*models.CoreGroup, error) {
	query := `
		SELECT g.group_id, g.organization_id, g.name, g.is_org_level, g.permissions,
		       g.created_at, g.updated_at
		FROM core_groups g
		JOIN core_user_groups ug ON ug.group_id = g.group_id
		WHERE ug.core_user_id = $1
		ORDER BY g.name
	`

	rows, err := s.pool.Query(ctx, query, coreUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", mapPostgresError(err))
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
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, &g)
	}

	return groups, rows.Err()
}

func (s *CoreUserStore) queryOne(ctx context.Context, query string, args ...any) (*models.CoreUser, error) {
	var user models.CoreUser
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&user.CoreUserID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.FirstName,
		&user.LastName,
		&user.OrganizationID,
		&user.IsActive,
		&user.IsGlobalAdmin,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrCoreUserNotFound
		}
		return nil, fmt.Errorf("failed to get core user: %w", mapPostgresError(err))
	}

	return &user, nil
}

func (s *CoreUserStore) queryMany(ctx context.Context, query string, args ...any) ([]*models.CoreUser, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list core users: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var users []*models.CoreUser
	for rows.Next() {
		var user models.CoreUser
		err := rows.Scan(
			&user.CoreUserID,
			&user.Username,
			&user.Email,
			&user.PasswordHash,
			&user.FirstName,
			&user.LastName,
			&user.OrganizationID,
			&user.IsActive,
			&user.IsGlobalAdmin,
			&user.CreatedAt,
			&user.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan core user: %w", err)
		}
		users = append(users, &user)
	}

	return users, rows.Err()
}
