package memory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/meshstack/coregate/internal/models"
	"github.com/meshstack/coregate/internal/store"
	"github.com/stretchr/testify/require"
)

func registerTestModule(t *testing.T, st *LogicModuleStore, name, endpoint string) *models.LogicModule {
	t.Helper()
	module := &models.LogicModule{
		ModuleID:     uuid.New(),
		Name:         name,
		EndpointName: name,
		Endpoint:     endpoint,
	}
	require.NoError(t, st.Create(context.Background(), module))
	return module
}

func TestLogicModuleStore_Create(t *testing.T) {
	t.Run("register module", func(t *testing.T) {
		st := NewLogicModuleStore()
		registerTestModule(t, st, "documents", "http://documentservice:8080")

		module, err := st.GetByEndpointName(context.Background(), "documents")
		require.NoError(t, err)
		require.Equal(t, "http://documentservice:8080", module.Endpoint)
	})

	t.Run("duplicate endpoint name returns error", func(t *testing.T) {
		st := NewLogicModuleStore()
		registerTestModule(t, st, "documents", "http://documentservice:8080")

		err := st.Create(context.Background(), &models.LogicModule{
			ModuleID:     uuid.New(),
			Name:         "documents v2",
			EndpointName: "documents",
		})
		require.ErrorIs(t, err, store.ErrLogicModuleAlreadyExists)
	})

	t.Run("unknown endpoint name", func(t *testing.T) {
		st := NewLogicModuleStore()
		_, err := st.GetByEndpointName(context.Background(), "missing")
		require.ErrorIs(t, err, store.ErrLogicModuleNotFound)
	})
}

func TestLogicModuleStore_Models(t *testing.T) {
	st := NewLogicModuleStore()
	ctx := context.Background()

	registerTestModule(t, st, "location", "http://locationservice:8080")

	model := &models.LogicModuleModel{
		ModelID:                 uuid.New(),
		LogicModuleEndpointName: "location",
		Model:                   "SiteProfile",
		Endpoint:                "/siteprofiles/",
		LookupFieldName:         "uuid",
	}
	require.NoError(t, st.CreateModel(ctx, model))

	t.Run("duplicate model returns error", func(t *testing.T) {
		err := st.CreateModel(ctx, &models.LogicModuleModel{
			ModelID:                 uuid.New(),
			LogicModuleEndpointName: "location",
			Model:                   "SiteProfile",
		})
		require.ErrorIs(t, err, store.ErrModelAlreadyExists)
	})

	t.Run("model for unknown module returns error", func(t *testing.T) {
		err := st.CreateModel(ctx, &models.LogicModuleModel{
			ModelID:                 uuid.New(),
			LogicModuleEndpointName: "missing",
			Model:                   "Thing",
		})
		require.ErrorIs(t, err, store.ErrLogicModuleNotFound)
	})

	t.Run("get model by name", func(t *testing.T) {
		got, err := st.GetModelByName(ctx, "location", "SiteProfile")
		require.NoError(t, err)
		require.Equal(t, model.ModelID, got.ModelID)
	})
}

func TestLogicModuleStore_Relationships(t *testing.T) {
	st := NewLogicModuleStore()
	ctx := context.Background()

	registerTestModule(t, st, "location", "http://locationservice:8080")
	registerTestModule(t, st, "documents", "http://documentservice:8080")

	origin := &models.LogicModuleModel{
		ModelID:                 uuid.New(),
		LogicModuleEndpointName: "location",
		Model:                   "SiteProfile",
		Endpoint:                "/siteprofiles/",
		LookupFieldName:         "uuid",
	}
	related := &models.LogicModuleModel{
		ModelID:                 uuid.New(),
		LogicModuleEndpointName: "documents",
		Model:                   "Document",
		Endpoint:                "/documents/",
		LookupFieldName:         "id",
	}
	require.NoError(t, st.CreateModel(ctx, origin))
	require.NoError(t, st.CreateModel(ctx, related))

	rel := &models.Relationship{
		RelationshipID: uuid.New(),
		OriginModelID:  origin.ModelID,
		RelatedModelID: related.ModelID,
		Key:            "documents",
	}
	require.NoError(t, st.CreateRelationship(ctx, rel))

	t.Run("duplicate key for origin returns error", func(t *testing.T) {
		err := st.CreateRelationship(ctx, &models.Relationship{
			RelationshipID: uuid.New(),
			OriginModelID:  origin.ModelID,
			RelatedModelID: related.ModelID,
			Key:            "documents",
		})
		require.ErrorIs(t, err, store.ErrRelationshipExists)
	})

	t.Run("list by origin", func(t *testing.T) {
		rels, err := st.ListRelationshipsByOrigin(ctx, origin.ModelID)
		require.NoError(t, err)
		require.Len(t, rels, 1)
		require.Equal(t, "documents", rels[0].Key)
	})
}
