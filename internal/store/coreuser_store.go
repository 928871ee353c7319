package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/meshstack/coregate/internal/models"
)

// Sentinel errors for core user store operations
var (
	ErrCoreUserNotFound      = errors.New("core user not found")
	ErrCoreUserAlreadyExists = errors.New("core user already exists")
)

// CoreUserStore defines the interface for core user storage operations.
type CoreUserStore interface {
	// Create creates a new core user in the store.
	// Returns ErrCoreUserAlreadyExists if a user with the same username or
	// email already exists.
	Create(ctx context.Context, user *models.CoreUser) error

	// Get retrieves a core user by ID.
	// Returns ErrCoreUserNotFound if the user doesn't exist.
	Get(ctx context.Context, coreUserID uuid.UUID) (*models.CoreUser, error)

	// GetByUsername retrieves a core user by username.
	// Returns ErrCoreUserNotFound if the user doesn't exist.
	GetByUsername(ctx context.Context, username string) (*models.CoreUser, error)

	// GetByEmail retrieves a core user by email.
	// Returns ErrCoreUserNotFound if the user doesn't exist.
	GetByEmail(ctx context.Context, email string) (*models.CoreUser, error)

	// Update updates an existing core user.
	// Returns ErrCoreUserNotFound if the user doesn't exist.
	Update(ctx context.Context, user *models.CoreUser) error

	// ListByOrganization returns all core users in an organization.
	ListByOrganization(ctx context.Context, organizationID uuid.UUID) ([]*models.CoreUser, error)

	// List returns all core users.
	List(ctx context.Context) ([]*models.CoreUser, error)

	// FilterRegisteredEmails returns the subset of emails that already have
	// an account. Used by the invitation flow to skip registered addresses.
	FilterRegisteredEmails(ctx context.Context, emails []string) ([]string, error)

	// AddToGroup adds a core user to a core group. Adding a user to a group
	// it is already a member of is a no-op.
	AddToGroup(ctx context.Context, coreUserID, groupID uuid.UUID) error

	// ListGroups returns the core groups a user is a member of.
	ListGroups(ctx context.Context, coreUserID uuid.UUID) ([]*models.CoreGroup, error)
}
