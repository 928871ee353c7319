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

// LogicModuleStore implements store.LogicModuleStore using PostgreSQL.
type LogicModuleStore struct {
	pool *pgxpool.Pool
}

// NewLogicModuleStore creates a new PostgreSQL-backed logic module store.
func NewLogicModuleStore(pool *pgxpool.Pool) *LogicModuleStore {
	return &LogicModuleStore{pool: pool}
}

const logicModuleColumns = `
	module_id, name, endpoint_name, description, endpoint, github_repo, created_at, updated_at
`

// Create registers a new logic module.
func (s *LogicModuleStore) Create(ctx context.Context, module *models.LogicModule) error {
	query := `
		INSERT INTO logic_modules (
			module_id, name, endpoint_name, description, endpoint, github_repo, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
	`

	_, err := s.pool.Exec(ctx, query,
		module.ModuleID,
		module.Name,
		module.EndpointName,
		module.Description,
		module.Endpoint,
		module.GitHubRepo,
		module.CreatedAt,
		module.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrLogicModuleAlreadyExists
		}
		return fmt.Errorf("failed to create logic module: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("module_id", module.ModuleID.String()).
		Str("endpoint_name", module.EndpointName).
		Str("endpoint", module.Endpoint).
		Msg("Registered logic module")

	return nil
}

// Get retrieves a logic module by ID.
func (s *LogicModuleStore) Get(ctx context.Context, moduleID uuid.UUID) (*models.LogicModule, error) {
	query := `SELECT ` + logicModuleColumns + ` FROM logic_modules WHERE module_id = $1`
	return s.queryOne(ctx, query, moduleID)
}

// GetByEndpointName retrieves a logic module by its routing key.
func (s *LogicModuleStore) GetByEndpointName(ctx context.Context, endpointName string) (*models.LogicModule, error) {
	query := `SELECT ` + logicModuleColumns + ` FROM logic_modules WHERE endpoint_name = $1`
	return s.queryOne(ctx, query, endpointName)
}

// Update updates an existing logic module.
func (s *LogicModuleStore) Update(ctx context.Context, module *models.LogicModule) error {
	module.UpdatedAt = time.Now()

	query := `
		UPDATE logic_modules SET
			name = $2,
			endpoint_name = $3,
			description = $4,
			endpoint = $5,
			github_repo = $6,
			updated_at = $7
		WHERE module_id = $1
	`

	result, err := s.pool.Exec(ctx, query,
		module.ModuleID,
		module.Name,
		module.EndpointName,
		module.Description,
		module.Endpoint,
		module.GitHubRepo,
		module.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrLogicModuleAlreadyExists
		}
		return fmt.Errorf("failed to update logic module: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrLogicModuleNotFound
	}

	return nil
}

// Delete removes a logic module by ID. Models and relationships cascade via
// FK constraints.
func (s *LogicModuleStore) Delete(ctx context.Context, moduleID uuid.UUID) error {
	result, err := s.pool.Exec(ctx, `DELETE FROM logic_modules WHERE module_id = $1`, moduleID)
	if err != nil {
		return fmt.Errorf("failed to delete logic module: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrLogicModuleNotFound
	}

	log.Info().
		Str("module_id", moduleID.String()).
		Msg("Deleted logic module")

	return nil
}

// List returns all registered logic modules ordered by name.
func (s *LogicModuleStore) List(ctx context.Context) ([]*models.LogicModule, error) {
	query := `SELECT ` + logicModuleColumns + ` FROM logic_modules ORDER BY name`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list logic modules: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var modules []*models.LogicModule
	for rows.Next() {
		var m models.LogicModule
		err := rows.Scan(
			&m.ModuleID,
			&m.Name,
			&m.EndpointName,
			&m.Description,
			&m.Endpoint,
			&m.GitHubRepo,
			&m.CreatedAt,
			&m.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan logic module: %w", err)
		}
		modules = append(modules, &m)
	}

	return modules, rows.Err()
}

const modelColumns = `
	model_id, logic_module_endpoint_name, model, endpoint, lookup_field_name, created_at, updated_at
`

// CreateModel registers a resource type exposed by a logic module.
func (s *LogicModuleStore) CreateModel(ctx context.Context, model *models.LogicModuleModel) error {
	query := `
		INSERT INTO logic_module_models (
			model_id, logic_module_endpoint_name, model, endpoint, lookup_field_name, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
	`

	_, err := s.pool.Exec(ctx, query,
		model.ModelID,
		model.LogicModuleEndpointName,
		model.Model,
		model.Endpoint,
		model.LookupFieldName,
		model.CreatedAt,
		model.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrModelAlreadyExists
		}
		if isForeignKeyViolation(err) {
			return store.ErrLogicModuleNotFound
		}
		return fmt.Errorf("failed to create logic module model: %w", mapPostgresError(err))
	}

	return nil
}

// GetModel retrieves a model by ID.
func (s *LogicModuleStore) GetModel(ctx context.Context, modelID uuid.UUID) (*models.LogicModuleModel, error) {
	query := `SELECT ` + modelColumns + ` FROM logic_module_models WHERE model_id = $1`
	return s.queryOneModel(ctx, query, modelID)
}

// GetModelByName retrieves a model by owning module endpoint name and model name.
func (s *LogicModuleStore) GetModelByName(ctx context.Context, endpointName, model string) (*models.LogicModuleModel, error) {
	query := `SELECT ` + modelColumns + ` FROM logic_module_models WHERE logic_module_endpoint_name = $1 AND model = $2`
	return s.queryOneModel(ctx, query, endpointName, model)
}

// ListModels returns all registered models.
func (s *LogicModuleStore) ListModels(ctx context.Context) ([]*models.LogicModuleModel, error) {
	query := `SELECT ` + modelColumns + ` FROM logic_module_models ORDER BY logic_module_endpoint_name, model`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list logic module models: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var result []*models.LogicModuleModel
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}

	return result, rows.Err()
}

// CreateRelationship registers a directed edge between two models.
func (s *LogicModuleStore) CreateRelationship(ctx context.Context, rel *models.Relationship) error {
	query := `
		INSERT INTO relationships (
			relationship_id, origin_model_id, related_model_id, key, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
	`

	_, err := s.pool.Exec(ctx, query,
		rel.RelationshipID,
		rel.OriginModelID,
		rel.RelatedModelID,
		rel.Key,
		rel.CreatedAt,
		rel.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrRelationshipExists
		}
		if isForeignKeyViolation(err) {
			return store.ErrModelNotFound
		}
		return fmt.Errorf("failed to create relationship: %w", mapPostgresError(err))
	}

	return nil
}

// ListRelationshipsByOrigin returns all relationship edges from the given model.
func (s *LogicModuleStore) ListRelationshipsByOrigin(ctx context.Context, originModelID uuid.UUID) ([]*models.Relationship, error) {
	query := `
		SELECT relationship_id, origin_model_id, related_model_id, key, created_at, updated_at
		FROM relationships
		WHERE origin_model_id = $1
		ORDER BY key
	`
	return s.queryRelationships(ctx, query, originModelID)
}

// ListRelationships returns all relationship edges.
func (s *LogicModuleStore) ListRelationships(ctx context.Context) ([]*models.Relationship, error) {
	query := `
		SELECT relationship_id, origin_model_id, related_model_id, key, created_at, updated_at
		FROM relationships
		ORDER BY key
	`
	return s.queryRelationships(ctx, query)
}

func (s *LogicModuleStore) queryOne(ctx context.Context, query string, args ...any) (*models.LogicModule, error) {
	var m models.LogicModule
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&m.ModuleID,
		&m.Name,
		&m.EndpointName,
		&m.Description,
		&m.Endpoint,
		&m.GitHubRepo,
		&m.CreatedAt,
		&m.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrLogicModuleNotFound
		}
		return nil, fmt.Errorf("failed to get logic module: %w", mapPostgresError(err))
	}

	return &m, nil
}

func (s *LogicModuleStore) queryOneModel(ctx context.Context, query string, args ...any) (*models.LogicModuleModel, error) {
	var m models.LogicModuleModel
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&m.ModelID,
		&m.LogicModuleEndpointName,
		&m.Model,
		&m.Endpoint,
		&m.LookupFieldName,
		&m.CreatedAt,
		&m.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrModelNotFound
		}
		return nil, fmt.Errorf("failed to get logic module model: %w", mapPostgresError(err))
	}

	return &m, nil
}

func (s *LogicModuleStore) queryRelationships(ctx context.Context, query string, args ...any) ([]*models.Relationship, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list relationships: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var result []*models.Relationship
	for rows.Next() {
		var r models.Relationship
		err := rows.Scan(
			&r.RelationshipID,
			&r.OriginModelID,
			&r.RelatedModelID,
			&r.Key,
			&r.CreatedAt,
			&r.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan relationship: %w", err)
		}
		result = append(result, &r)
	}

	return result, rows.Err()
}

func scanModel(rows pgx.Rows) (*models.LogicModuleModel, error) {
	var m models.LogicModuleModel
	err := rows.Scan(
		&m.ModelID,
		&m.LogicModuleEndpointName,
		&m.Model,
		&m.Endpoint,
		&m.LookupFieldName,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan logic module model: %w", err)
	}
	return &m, nil
}
