package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/meshstack/coregate/internal/models"
	"github.com/meshstack/coregate/internal/store"
)

// LogicModuleStore implements store.LogicModuleStore using in-memory storage.
type LogicModuleStore struct {
	mu sync.RWMutex

	modules        map[uuid.UUID]*models.LogicModule      // module_id -> LogicModule
	byEndpointName map[string]uuid.UUID                   // endpoint_name -> module_id
	modelDefs      map[uuid.UUID]*models.LogicModuleModel // model_id -> LogicModuleModel
	relationships  map[uuid.UUID]*models.Relationship     // relationship_id -> Relationship
}

// NewLogicModuleStore creates a new in-memory logic module store.
func NewLogicModuleStore() *LogicModuleStore {
	return &LogicModuleStore{
		modules:        make(map[uuid.UUID]*models.LogicModule),
		byEndpointName: make(map[string]uuid.UUID),
		modelDefs:      make(map[uuid.UUID]*models.LogicModuleModel),
		relationships:  make(map[uuid.UUID]*models.Relationship),
	}
}

// Create registers a new logic module.
func (s *LogicModuleStore) Create(ctx context.Context, module *models.LogicModule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.modules[module.ModuleID]; exists {
		return store.ErrLogicModuleAlreadyExists
	}
	if _, exists := s.byEndpointName[module.EndpointName]; exists {
		return store.ErrLogicModuleAlreadyExists
	}

	clone := *module
	s.modules[module.ModuleID] = &clone
	s.byEndpointName[module.EndpointName] = module.ModuleID

	return nil
}

// Get retrieves a logic module by ID.
func (s *LogicModuleStore) Get(ctx context.Context, moduleID uuid.UUID) (*models.LogicModule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	module, exists := s.modules[moduleID]
	if !exists {
		return nil, store.ErrLogicModuleNotFound
	}

	clone := *module
	return &clone, nil
}

// GetByEndpointName retrieves a logic module by its routing key.
func (s *LogicModuleStore) GetByEndpointName(ctx context.Context, endpointName string) (*models.LogicModule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.byEndpointName[endpointName]
	if !exists {
		return nil, store.ErrLogicModuleNotFound
	}

	clone := *s.modules[id]
	return &clone, nil
}

// Update updates an existing logic module.
func (s *LogicModuleStore) Update(ctx context.Context, module *models.LogicModule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.modules[module.ModuleID]
	if !exists {
		return store.ErrLogicModuleNotFound
	}

	if existing.EndpointName != module.EndpointName {
		if _, taken := s.byEndpointName[module.EndpointName]; taken {
			return store.ErrLogicModuleAlreadyExists
		}
		delete(s.byEndpointName, existing.EndpointName)
		s.byEndpointName[module.EndpointName] = module.ModuleID
	}

	module.UpdatedAt = time.Now()

	clone := *module
	s.modules[module.ModuleID] = &clone

	return nil
}

// Delete removes a logic module by ID.
func (s *LogicModuleStore) Delete(ctx context.Context, moduleID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	module, exists := s.modules[moduleID]
	if !exists {
		return store.ErrLogicModuleNotFound
	}

	delete(s.byEndpointName, module.EndpointName)
	delete(s.modules, moduleID)

	return nil
}

// List returns all registered logic modules ordered by name.
func (s *LogicModuleStore) List(ctx context.Context) ([]*models.LogicModule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.LogicModule, 0, len(s.modules))
	for _, module := range s.modules {
		clone := *module
		result = append(result, &clone)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })

	return result, nil
}

// CreateModel registers a resource type exposed by a logic module.
func (s *LogicModuleStore) CreateModel(ctx context.Context, model *models.LogicModuleModel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEndpointName[model.LogicModuleEndpointName]; !exists {
		return store.ErrLogicModuleNotFound
	}

	for _, m := range s.modelDefs {
		if m.LogicModuleEndpointName == model.LogicModuleEndpointName && m.Model == model.Model {
			return store.ErrModelAlreadyExists
		}
	}

	clone := *model
	s.modelDefs[model.ModelID] = &clone

	return nil
}

// GetModel retrieves a model by ID.
func (s *LogicModuleStore) GetModel(ctx context.Context, modelID uuid.UUID) (*models.LogicModuleModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	model, exists := s.modelDefs[modelID]
	if !exists {
		return nil, store.ErrModelNotFound
	}

	clone := *model
	return &clone, nil
}

// GetModelByName retrieves a model by owning module endpoint name and model name.
func (s *LogicModuleStore) GetModelByName(ctx context.Context, endpointName, model string) (*models.LogicModuleModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.modelDefs {
		if m.LogicModuleEndpointName == endpointName && m.Model == model {
			clone := *m
			return &clone, nil
		}
	}

	return nil, store.ErrModelNotFound
}

// ListModels returns all registered models.
func (s *LogicModuleStore) ListModels(ctx context.Context) ([]*models.LogicModuleModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.LogicModuleModel, 0, len(s.modelDefs))
	for _, m := range s.modelDefs {
		clone := *m
		result = append(result, &clone)
	}

	return result, nil
}

// CreateRelationship registers a directed edge between two models.
func (s *LogicModuleStore) CreateRelationship(ctx context.Context, rel *models.Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.modelDefs[rel.OriginModelID]; !exists {
		return store.ErrModelNotFound
	}
	if _, exists := s.modelDefs[rel.RelatedModelID]; !exists {
		return store.ErrModelNotFound
	}

	for _, r := range s.relationships {
		if r.OriginModelID == rel.OriginModelID && r.Key == rel.Key {
			return store.ErrRelationshipExists
		}
	}

	clone := *rel
	s.relationships[rel.RelationshipID] = &clone

	return nil
}

// ListRelationshipsByOrigin returns all relationship edges from the given model.
func (s *LogicModuleStore) ListRelationshipsByOrigin(ctx context.Context, originModelID uuid.UUID) ([]*models.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Relationship
	for _, r := range s.relationships {
		if r.OriginModelID == originModelID {
			clone := *r
			result = append(result, &clone)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })

	return result, nil
}

// ListRelationships returns all relationship edges.
func (s *LogicModuleStore) ListRelationships(ctx context.Context) ([]*models.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.Relationship, 0, len(s.relationships))
	for _, r := range s.relationships {
		clone := *r
		result = append(result, &clone)
	}

	return result, nil
}
