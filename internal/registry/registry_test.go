package registry

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/meshstack/coregate/internal/models"
	"github.com/meshstack/coregate/internal/store"
	"github.com/meshstack/coregate/internal/store/memory"
)

func newModule(endpointName, endpoint string) *models.LogicModule {
	now := time.Now()
	return &models.LogicModule{
		ModuleID:     uuid.New(),
		Name:         endpointName,
		EndpointName: endpointName,
		Endpoint:     endpoint,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestRegistry(t *testing.T) {
	ctx := context.Background()

	t.Run("resolve round trip", func(t *testing.T) {
		reg := New(memory.NewLogicModuleStore())

		module := newModule("documents", "http://documentservice:8080")
		require.NoError(t, reg.Register(ctx, module))

		resolved, err := reg.Resolve(ctx, "documents")
		require.NoError(t, err)
		require.Equal(t, module.ModuleID, resolved.ModuleID)

		// second resolve served from cache
		resolved, err = reg.Resolve(ctx, "documents")
		require.NoError(t, err)
		require.Equal(t, module.ModuleID, resolved.ModuleID)
	})

	t.Run("unknown endpoint name", func(t *testing.T) {
		reg := New(memory.NewLogicModuleStore())

		_, err := reg.Resolve(ctx, "nope")
		require.ErrorIs(t, err, store.ErrLogicModuleNotFound)
	})

	t.Run("duplicate endpoint name rejected", func(t *testing.T) {
		reg := New(memory.NewLogicModuleStore())

		require.NoError(t, reg.Register(ctx, newModule("documents", "http://one:8080")))
		err := reg.Register(ctx, newModule("documents", "http://two:8080"))
		require.ErrorIs(t, err, store.ErrLogicModuleAlreadyExists)
	})

	t.Run("update invalidates the cache", func(t *testing.T) {
		reg := New(memory.NewLogicModuleStore())

		module := newModule("documents", "http://old:8080")
		require.NoError(t, reg.Register(ctx, module))

		_, err := reg.Resolve(ctx, "documents")
		require.NoError(t, err)

		module.Endpoint = "http://new:8080"
		require.NoError(t, reg.Update(ctx, module))

		resolved, err := reg.Resolve(ctx, "documents")
		require.NoError(t, err)
		require.Equal(t, "http://new:8080", resolved.Endpoint)
	})

	t.Run("deregister removes routing", func(t *testing.T) {
		reg := New(memory.NewLogicModuleStore())

		module := newModule("documents", "http://documentservice:8080")
		require.NoError(t, reg.Register(ctx, module))

		_, err := reg.Resolve(ctx, "documents")
		require.NoError(t, err)

		require.NoError(t, reg.Deregister(ctx, module.ModuleID))

		_, err = reg.Resolve(ctx, "documents")
		require.ErrorIs(t, err, store.ErrLogicModuleNotFound)
	})
}

const seedYAML = `
modules:
  - name: Document Service
    endpoint_name: documents
    endpoint: http://documentservice:8080
  - endpoint_name: crm
    endpoint: http://crmservice:8080
models:
  - module: documents
    model: Document
    endpoint: /documents/
  - module: crm
    model: Contact
    endpoint: /contacts/
    lookup_field_name: uuid
relationships:
  - origin: documents/Document
    related: crm/Contact
    key: contact
`

func TestSeed(t *testing.T) {
	ctx := context.Background()

	t.Run("parse applies defaults", func(t *testing.T) {
		seed, err := ParseSeed([]byte(seedYAML))
		require.NoError(t, err)
		require.Len(t, seed.Modules, 2)
		require.Equal(t, "crm", seed.Modules[1].Name)
		require.Equal(t, "id", seed.Models[0].LookupFieldName)
		require.Equal(t, "uuid", seed.Models[1].LookupFieldName)
	})

	t.Run("missing endpoint is rejected", func(t *testing.T) {
		_, err := ParseSeed([]byte("modules:\n  - endpoint_name: broken\n"))
		require.Error(t, err)
	})

	t.Run("seed provisions modules models and relationships", func(t *testing.T) {
		modules := memory.NewLogicModuleStore()
		reg := New(modules)

		seed, err := ParseSeed([]byte(seedYAML))
		require.NoError(t, err)
		require.NoError(t, reg.Seed(ctx, seed))

		resolved, err := reg.Resolve(ctx, "documents")
		require.NoError(t, err)
		require.Equal(t, "http://documentservice:8080", resolved.Endpoint)

		origin, err := modules.GetModelByName(ctx, "documents", "Document")
		require.NoError(t, err)

		rels, err := modules.ListRelationshipsByOrigin(ctx, origin.ModelID)
		require.NoError(t, err)
		require.Len(t, rels, 1)
		require.Equal(t, "contact", rels[0].Key)
	})

	t.Run("seed is idempotent", func(t *testing.T) {
		modules := memory.NewLogicModuleStore()
		reg := New(modules)

		seed, err := ParseSeed([]byte(seedYAML))
		require.NoError(t, err)
		require.NoError(t, reg.Seed(ctx, seed))
		require.NoError(t, reg.Seed(ctx, seed))

		all, err := reg.List(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)

		rels, err := modules.ListRelationships(ctx)
		require.NoError(t, err)
		require.Len(t, rels, 1)
	})

	t.Run("relationship with unknown model fails", func(t *testing.T) {
		reg := New(memory.NewLogicModuleStore())

		seed, err := ParseSeed([]byte(`
relationships:
  - origin: nope/Missing
    related: also/Missing
    key: broken
`))
		require.NoError(t, err)
		require.Error(t, reg.Seed(ctx, seed))
	})
}
