package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/meshstack/coregate/internal/models"
)

// Sentinel errors for logic module store operations
var (
	ErrLogicModuleNotFound      = errors.New("logic module not found")
	ErrLogicModuleAlreadyExists = errors.New("logic module already exists")
	ErrModelNotFound            = errors.New("logic module model not found")
	ErrModelAlreadyExists       = errors.New("logic module model already exists")
	ErrRelationshipNotFound     = errors.New("relationship not found")
	ErrRelationshipExists       = errors.New("relationship already exists")
)

// LogicModuleStore defines the interface for the logic module registry,
// including the data-mesh model and relationship graph.
type LogicModuleStore interface {
	// Create registers a new logic module.
	// Returns ErrLogicModuleAlreadyExists if the endpoint name is taken.
	Create(ctx context.Context, module *models.LogicModule) error

	// Get retrieves a logic module by ID.
	Get(ctx context.Context, moduleID uuid.UUID) (*models.LogicModule, error)

	// GetByEndpointName retrieves a logic module by its routing key.
	// Returns ErrLogicModuleNotFound if no module is registered.
	GetByEndpointName(ctx context.Context, endpointName string) (*models.LogicModule, error)

	// Update updates an existing logic module.
	Update(ctx context.Context, module *models.LogicModule) error

	// Delete removes a logic module by ID.
	Delete(ctx context.Context, moduleID uuid.UUID) error

	// List returns all registered logic modules ordered by name.
	List(ctx context.Context) ([]*models.LogicModule, error)

	// CreateModel registers a resource type exposed by a logic module.
	// Returns ErrModelAlreadyExists for a duplicate (module, model) pair.
	CreateModel(ctx context.Context, model *models.LogicModuleModel) error

	// GetModel retrieves a model by ID.
	GetModel(ctx context.Context, modelID uuid.UUID) (*models.LogicModuleModel, error)

	// GetModelByName retrieves a model by owning module endpoint name and
	// model name.
	GetModelByName(ctx context.Context, endpointName, model string) (*models.LogicModuleModel, error)

	// ListModels returns all registered models.
	ListModels(ctx context.Context) ([]*models.LogicModuleModel, error)

	// CreateRelationship registers a directed edge between two models.
	// Returns ErrRelationshipExists for a duplicate (origin, key) pair.
	CreateRelationship(ctx context.Context, rel *models.Relationship) error

	// ListRelationshipsByOrigin returns all relationship edges whose origin
	// is the given model, ordered by key.
	ListRelationshipsByOrigin(ctx context.Context, originModelID uuid.UUID) ([]*models.Relationship, error)

	// ListRelationships returns all relationship edges.
	ListRelationships(ctx context.Context) ([]*models.Relationship, error)
}
