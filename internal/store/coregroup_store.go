package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/meshstack/coregate/internal/models"
)

// Sentinel errors for core group store operations
var (
	ErrCoreGroupNotFound      = errors.New("core group not found")
	ErrCoreGroupAlreadyExists = errors.New("core group already exists")
)

// CoreGroupStore defines the interface for core group storage operations.
type CoreGroupStore interface {
	// Create creates a new core group.
	// Returns ErrCoreGroupAlreadyExists when the group would violate the
	// one-org-level-group-per-organization constraint.
	Create(ctx context.Context, group *models.CoreGroup) error

	// Get retrieves a core group by ID.
	// Returns ErrCoreGroupNotFound if the group doesn't exist.
	Get(ctx context.Context, groupID uuid.UUID) (*models.CoreGroup, error)

	// GetOrCreateOrgAdmin resolves the org-level admin group for an
	// organization, creating it with PermissionsOrgAdmin when missing.
	// At most one org-level group exists per organization.
	GetOrCreateOrgAdmin(ctx context.Context, organizationID uuid.UUID) (*models.CoreGroup, error)

	// ListByOrganization returns all core groups in an organization.
	ListByOrganization(ctx context.Context, organizationID uuid.UUID) ([]*models.CoreGroup, error)
}
