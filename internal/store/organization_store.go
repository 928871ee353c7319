package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/meshstack/coregate/internal/models"
)

// Sentinel errors for organization store operations
var (
	ErrOrganizationNotFound      = errors.New("organization not found")
	ErrOrganizationAlreadyExists = errors.New("organization already exists")
)

// OrganizationStore defines the interface for organization storage operations.
// Organizations represent tenants in the system.
type OrganizationStore interface {
	// Create creates a new organization in the store.
	// Returns ErrOrganizationAlreadyExists if an organization with the same
	// ID or name already exists.
	Create(ctx context.Context, org *models.Organization) error

	// Get retrieves an organization by ID.
	// Returns ErrOrganizationNotFound if the organization doesn't exist.
	Get(ctx context.Context, organizationID uuid.UUID) (*models.Organization, error)

	// GetByName retrieves an organization by its unique name.
	// Returns ErrOrganizationNotFound if the organization doesn't exist.
	GetByName(ctx context.Context, name string) (*models.Organization, error)

	// GetOrCreateByName atomically resolves an organization by name,
	// creating it when missing. The boolean result reports whether a new
	// organization was created. Concurrent callers racing on the same name
	// must converge on a single row: implementations rely on the unique
	// index and retry the lookup once on conflict.
	GetOrCreateByName(ctx context.Context, name string) (*models.Organization, bool, error)

	// Update updates an existing organization.
	// Returns ErrOrganizationNotFound if the organization doesn't exist.
	Update(ctx context.Context, org *models.Organization) error

	// ListByOAuthDomain returns all organizations claiming the given OAuth
	// email domain. More than one result means the domain is ambiguous.
	ListByOAuthDomain(ctx context.Context, domain string) ([]*models.Organization, error)

	// List returns all organizations.
	List(ctx context.Context) ([]*models.Organization, error)
}
