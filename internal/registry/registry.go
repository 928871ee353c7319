package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/meshstack/coregate/internal/models"
	"github.com/meshstack/coregate/internal/store"
)

// Registry fronts the logic module store with a read-through cache
// keyed by endpoint name, so gateway routing stays O(1) per request.
// Writes go through the store and invalidate the cached entry.
type Registry struct {
	modules store.LogicModuleStore

	mu    sync.RWMutex
	cache map[string]*models.LogicModule
}

// New creates a registry over the given logic module store.
func New(modules store.LogicModuleStore) *Registry {
	return &Registry{
		modules: modules,
		cache:   make(map[string]*models.LogicModule),
	}
}

// Resolve returns the logic module registered under the endpoint name.
// Returns store.ErrLogicModuleNotFound when no module claims the name.
func (r *Registry) Resolve(ctx context.Context, endpointName string) (*models.LogicModule, error) {
	r.mu.RLock()
	cached, ok := r.cache[endpointName]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	module, err := r.modules.GetByEndpointName(ctx, endpointName)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[endpointName] = module
	r.mu.Unlock()

	return module, nil
}

// Register creates a new logic module and primes the cache.
func (r *Registry) Register(ctx context.Context, module *models.LogicModule) error {
	if module.ModuleID == uuid.Nil {
		module.ModuleID = uuid.New()
	}

	now := time.Now()
	if module.CreatedAt.IsZero() {
		module.CreatedAt = now
	}
	module.UpdatedAt = now

	if err := r.modules.Create(ctx, module); err != nil {
		return err
	}

	r.mu.Lock()
	r.cache[module.EndpointName] = module
	r.mu.Unlock()

	return nil
}

// Update rewrites a logic module and drops any stale cache entries.
func (r *Registry) Update(ctx context.Context, module *models.LogicModule) error {
	if err := r.modules.Update(ctx, module); err != nil {
		return err
	}

	r.invalidate()

	return nil
}

// Deregister removes a logic module and drops any stale cache entries.
func (r *Registry) Deregister(ctx context.Context, moduleID uuid.UUID) error {
	if err := r.modules.Delete(ctx, moduleID); err != nil {
		return err
	}

	r.invalidate()

	return nil
}

// Get retrieves a logic module by ID, bypassing the cache.
func (r *Registry) Get(ctx context.Context, moduleID uuid.UUID) (*models.LogicModule, error) {
	return r.modules.Get(ctx, moduleID)
}

// List returns all registered logic modules.
func (r *Registry) List(ctx context.Context) ([]*models.LogicModule, error) {
	return r.modules.List(ctx)
}

// invalidate drops the whole cache. Update and Deregister cannot know
// the old endpoint name, so the entire map goes.
func (r *Registry) invalidate() {
	r.mu.Lock()
	r.cache = make(map[string]*models.LogicModule)
	r.mu.Unlock()
}

// Seed loads a declarative set of modules, models and relationships
// into the store, skipping entries that already exist. Used at startup
// to provision a deployment from a config file.
func (r *Registry) Seed(ctx context.Context, seed *Seed) error {
	now := time.Now()

	for _, m := range seed.Modules {
		module := &models.LogicModule{
			ModuleID:     uuid.New(),
			Name:         m.Name,
			EndpointName: m.EndpointName,
			Description:  m.Description,
			Endpoint:     m.Endpoint,
			GitHubRepo:   m.GitHubRepo,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		err := r.modules.Create(ctx, module)
		switch {
		case err == nil:
			log.Info().
				Str("endpoint_name", module.EndpointName).
				Msg("Seeded logic module")
		case errors.Is(err, store.ErrLogicModuleAlreadyExists):
			log.Debug().
				Str("endpoint_name", module.EndpointName).
				Msg("Logic module already registered, skipping seed entry")
		default:
			return fmt.Errorf("failed to seed module %s: %w", m.EndpointName, err)
		}
	}

	modelIDs := make(map[string]uuid.UUID)

	for _, m := range seed.Models {
		existing, err := r.modules.GetModelByName(ctx, m.Module, m.Model)
		if err == nil {
			modelIDs[m.Module+"/"+m.Model] = existing.ModelID
			continue
		}
		if !errors.Is(err, store.ErrModelNotFound) {
			return fmt.Errorf("failed to look up model %s/%s: %w", m.Module, m.Model, err)
		}

		model := &models.LogicModuleModel{
			ModelID:                 uuid.New(),
			LogicModuleEndpointName: m.Module,
			Model:                   m.Model,
			Endpoint:                m.Endpoint,
			LookupFieldName:         m.LookupFieldName,
			CreatedAt:               now,
			UpdatedAt:               now,
		}
		if err := r.modules.CreateModel(ctx, model); err != nil {
			return fmt.Errorf("failed to seed model %s/%s: %w", m.Module, m.Model, err)
		}

		modelIDs[m.Module+"/"+m.Model] = model.ModelID
	}

	for _, rel := range seed.Relationships {
		originID, ok := modelIDs[rel.Origin]
		if !ok {
			return fmt.Errorf("relationship %s references unknown origin model %s", rel.Key, rel.Origin)
		}
		relatedID, ok := modelIDs[rel.Related]
		if !ok {
			return fmt.Errorf("relationship %s references unknown related model %s", rel.Key, rel.Related)
		}

		err := r.modules.CreateRelationship(ctx, &models.Relationship{
			RelationshipID: uuid.New(),
			OriginModelID:  originID,
			RelatedModelID: relatedID,
			Key:            rel.Key,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
		if err != nil && !errors.Is(err, store.ErrRelationshipExists) {
			return fmt.Errorf("failed to seed relationship %s: %w", rel.Key, err)
		}
	}

	return nil
}
