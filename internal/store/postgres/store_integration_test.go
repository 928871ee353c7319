//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/meshstack/coregate/internal/models"
	"github.com/meshstack/coregate/internal/store"
)

func setupPostgresContainer(t *testing.T, ctx context.Context) (*pgxpool.Pool, func()) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	connString := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	pool, err := NewPool(ctx, &PoolConfig{
		ConnString:  connString,
		AutoMigrate: true,
	})
	require.NoError(t, err)

	cleanup := func() {
		pool.Close()
		_ = container.Terminate(ctx)
	}

	return pool, cleanup
}

func TestIntegration_OrganizationGetOrCreate(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	orgs := NewOrganizationStore(pool)

	t.Run("creates missing organization", func(t *testing.T) {
		org, created, err := orgs.GetOrCreateByName(ctx, "johnsnow")
		require.NoError(t, err)
		require.True(t, created)
		require.Equal(t, "johnsnow", org.Name)
	})

	t.Run("second call is idempotent", func(t *testing.T) {
		first, _, err := orgs.GetOrCreateByName(ctx, "humanitec")
		require.NoError(t, err)

		second, created, err := orgs.GetOrCreateByName(ctx, "humanitec")
		require.NoError(t, err)
		require.False(t, created)
		require.Equal(t, first.OrganizationID, second.OrganizationID)
	})

	t.Run("concurrent callers converge on one row", func(t *testing.T) {
		const workers = 8

		ids := make(chan uuid.UUID, workers)
		for range workers {
			go func() {
				org, _, err := orgs.GetOrCreateByName(ctx, "racy-org")
				require.NoError(t, err)
				ids <- org.OrganizationID
			}()
		}

		first := <-ids
		for range workers - 1 {
			require.Equal(t, first, <-ids)
		}
	})
}

func TestIntegration_CoreUserAndGroups(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	orgs := NewOrganizationStore(pool)
	users := NewCoreUserStore(pool)
	groups := NewCoreGroupStore(pool)

	org, _, err := orgs.GetOrCreateByName(ctx, "Test Org")
	require.NoError(t, err)

	now := time.Now()
	user := &models.CoreUser{
		CoreUserID:     uuid.New(),
		Username:       "johnsnow",
		Email:          "john@example.com",
		OrganizationID: org.OrganizationID,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, users.Create(ctx, user))

	t.Run("duplicate email rejected", func(t *testing.T) {
		err := users.Create(ctx, &models.CoreUser{
			CoreUserID:     uuid.New(),
			Username:       "other",
			Email:          "john@example.com",
			OrganizationID: org.OrganizationID,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
		require.ErrorIs(t, err, store.ErrCoreUserAlreadyExists)
	})

	t.Run("org admin group get-or-create is idempotent", func(t *testing.T) {
		first, err := groups.GetOrCreateOrgAdmin(ctx, org.OrganizationID)
		require.NoError(t, err)

		second, err := groups.GetOrCreateOrgAdmin(ctx, org.OrganizationID)
		require.NoError(t, err)
		require.Equal(t, first.GroupID, second.GroupID)
	})

	t.Run("group membership", func(t *testing.T) {
		group, err := groups.GetOrCreateOrgAdmin(ctx, org.OrganizationID)
		require.NoError(t, err)

		require.NoError(t, users.AddToGroup(ctx, user.CoreUserID, group.GroupID))
		require.NoError(t, users.AddToGroup(ctx, user.CoreUserID, group.GroupID)) // no-op

		memberships, err := users.ListGroups(ctx, user.CoreUserID)
		require.NoError(t, err)
		require.Len(t, memberships, 1)
		require.True(t, memberships[0].IsOrgAdmin())
	})

	t.Run("filter registered emails", func(t *testing.T) {
		registered, err := users.FilterRegisteredEmails(ctx, []string{"john@example.com", "paul@example.com"})
		require.NoError(t, err)
		require.Equal(t, []string{"john@example.com"}, registered)
	})
}

func TestIntegration_LogicModuleRegistry(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	modules := NewLogicModuleStore(pool)

	now := time.Now()
	module := &models.LogicModule{
		ModuleID:     uuid.New(),
		Name:         "documents",
		EndpointName: "documents",
		Endpoint:     "http://documentservice:8080",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, modules.Create(ctx, module))

	t.Run("lookup by endpoint name", func(t *testing.T) {
		got, err := modules.GetByEndpointName(ctx, "documents")
		require.NoError(t, err)
		require.Equal(t, module.ModuleID, got.ModuleID)
	})

	t.Run("duplicate endpoint name rejected", func(t *testing.T) {
		err := modules.Create(ctx, &models.LogicModule{
			ModuleID:     uuid.New(),
			Name:         "documents v2",
			EndpointName: "documents",
			CreatedAt:    now,
			UpdatedAt:    now,
		})
		require.ErrorIs(t, err, store.ErrLogicModuleAlreadyExists)
	})

	t.Run("model and relationship graph", func(t *testing.T) {
		origin := &models.LogicModuleModel{
			ModelID:                 uuid.New(),
			LogicModuleEndpointName: "documents",
			Model:                   "Document",
			Endpoint:                "/documents/",
			LookupFieldName:         "id",
			CreatedAt:               now,
			UpdatedAt:               now,
		}
		require.NoError(t, modules.CreateModel(ctx, origin))

		rel := &models.Relationship{
			RelationshipID: uuid.New(),
			OriginModelID:  origin.ModelID,
			RelatedModelID: origin.ModelID,
			Key:            "attachments",
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		require.NoError(t, modules.CreateRelationship(ctx, rel))

		rels, err := modules.ListRelationshipsByOrigin(ctx, origin.ModelID)
		require.NoError(t, err)
		require.Len(t, rels, 1)
	})
}
