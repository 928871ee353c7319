package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/meshstack/coregate/internal/models"
	"github.com/meshstack/coregate/internal/store/memory"
)

func newOrg(t *testing.T, orgs *memory.OrganizationStore, name string, domains ...string) *models.Organization {
	t.Helper()

	now := time.Now()
	org := &models.Organization{
		OrganizationID: uuid.New(),
		Name:           name,
		OAuthDomains:   domains,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, orgs.Create(context.Background(), org))

	return org
}

func TestAuthAllowed(t *testing.T) {
	ctx := context.Background()

	t.Run("whitelisted email is allowed regardless of domain config", func(t *testing.T) {
		orgs := memory.NewOrganizationStore()
		step := AuthAllowed(orgs)

		state := &State{
			Backend: Backend{WhitelistedEmails: []string{"john@example.com"}},
			Details: Details{Email: "john@example.com"},
		}

		result, err := step(ctx, state)
		require.NoError(t, err)
		require.Equal(t, KindContinue, result.Kind)
		require.Nil(t, state.Details.OrganizationUUID)
	})

	t.Run("whitelisted email match is case insensitive", func(t *testing.T) {
		orgs := memory.NewOrganizationStore()
		step := AuthAllowed(orgs)

		state := &State{
			Backend: Backend{WhitelistedEmails: []string{"John@Example.com"}},
			Details: Details{Email: "john@example.com"},
		}

		result, err := step(ctx, state)
		require.NoError(t, err)
		require.Equal(t, KindContinue, result.Kind)
	})

	t.Run("whitelisted domain is allowed", func(t *testing.T) {
		orgs := memory.NewOrganizationStore()
		step := AuthAllowed(orgs)

		state := &State{
			Backend: Backend{WhitelistedDomains: []string{"example.com"}},
			Details: Details{Email: "anyone@example.com"},
		}

		result, err := step(ctx, state)
		require.NoError(t, err)
		require.Equal(t, KindContinue, result.Kind)
	})

	t.Run("single organization domain match resolves the organization", func(t *testing.T) {
		orgs := memory.NewOrganizationStore()
		org := newOrg(t, orgs, "Acme", "acme.io")
		step := AuthAllowed(orgs)

		state := &State{
			Details: Details{Email: "jane@acme.io"},
		}

		result, err := step(ctx, state)
		require.NoError(t, err)
		require.Equal(t, KindContinue, result.Kind)
		require.NotNil(t, state.Details.OrganizationUUID)
		require.Equal(t, org.OrganizationID, *state.Details.OrganizationUUID)
	})

	t.Run("ambiguous domain claimed by two organizations is denied", func(t *testing.T) {
		orgs := memory.NewOrganizationStore()
		newOrg(t, orgs, "Acme", "shared.io")
		newOrg(t, orgs, "Globex", "shared.io")
		step := AuthAllowed(orgs)

		state := &State{
			Details: Details{Email: "jane@shared.io"},
		}

		result, err := step(ctx, state)
		require.NoError(t, err)
		require.Equal(t, KindDeny, result.Kind)
		require.Equal(t, AccessDeniedMessage, result.Message)
		require.Nil(t, state.Details.OrganizationUUID)
	})

	t.Run("unknown email is denied with explanatory text", func(t *testing.T) {
		orgs := memory.NewOrganizationStore()
		step := AuthAllowed(orgs)

		state := &State{
			Details: Details{Email: "stranger@nowhere.org"},
		}

		result, err := step(ctx, state)
		require.NoError(t, err)
		require.Equal(t, KindDeny, result.Kind)
		require.Equal(t, AccessDeniedMessage, result.Message)
	})

	t.Run("email without a domain is denied", func(t *testing.T) {
		orgs := memory.NewOrganizationStore()
		step := AuthAllowed(orgs)

		state := &State{
			Details: Details{Email: "not-an-email"},
		}

		result, err := step(ctx, state)
		require.NoError(t, err)
		require.Equal(t, KindDeny, result.Kind)
	})
}

func TestEnsureCoreUser(t *testing.T) {
	ctx := context.Background()

	t.Run("existing account is loaded", func(t *testing.T) {
		groups := memory.NewCoreGroupStore()
		users := memory.NewCoreUserStore(groups)

		now := time.Now()
		existing := &models.CoreUser{
			CoreUserID:     uuid.New(),
			Username:       "jane",
			Email:          "jane@acme.io",
			OrganizationID: uuid.New(),
			IsActive:       true,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		require.NoError(t, users.Create(ctx, existing))

		state := &State{Details: Details{Email: "jane@acme.io"}}

		result, err := EnsureCoreUser(users)(ctx, state)
		require.NoError(t, err)
		require.Equal(t, KindContinue, result.Kind)
		require.False(t, state.IsNewCoreUser)
		require.Equal(t, existing.CoreUserID, state.CoreUser.CoreUserID)
	})

	t.Run("unknown email builds a new unsaved user", func(t *testing.T) {
		groups := memory.NewCoreGroupStore()
		users := memory.NewCoreUserStore(groups)

		state := &State{Details: Details{Email: "Jane@acme.io", FirstName: "Jane", LastName: "Doe"}}

		result, err := EnsureCoreUser(users)(ctx, state)
		require.NoError(t, err)
		require.Equal(t, KindContinue, result.Kind)
		require.True(t, state.IsNewCoreUser)
		require.Equal(t, "jane", state.CoreUser.Username)
		require.Equal(t, "jane@acme.io", state.CoreUser.Email)
		require.Equal(t, "Jane", state.CoreUser.FirstName)

		// not persisted until the organization step runs
		_, err = users.GetByEmail(ctx, "jane@acme.io")
		require.Error(t, err)
	})
}

func TestCreateOrganization(t *testing.T) {
	ctx := context.Background()

	newUser := func() *models.CoreUser {
		now := time.Now()
		return &models.CoreUser{
			CoreUserID: uuid.New(),
			Username:   "johnsnow",
			Email:      "johnsnow@example.com",
			IsActive:   true,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
	}

	t.Run("no-op without a core user", func(t *testing.T) {
		orgs := memory.NewOrganizationStore()
		groups := memory.NewCoreGroupStore()
		users := memory.NewCoreUserStore(groups)

		state := &State{IsNewCoreUser: true}

		result, err := CreateOrganization(orgs, users)(ctx, state)
		require.NoError(t, err)
		require.Equal(t, KindContinue, result.Kind)
		require.Nil(t, state.Organization)
	})

	t.Run("no-op for existing users", func(t *testing.T) {
		orgs := memory.NewOrganizationStore()
		groups := memory.NewCoreGroupStore()
		users := memory.NewCoreUserStore(groups)

		state := &State{CoreUser: newUser(), IsNewCoreUser: false}

		result, err := CreateOrganization(orgs, users)(ctx, state)
		require.NoError(t, err)
		require.Equal(t, KindContinue, result.Kind)
		require.Nil(t, state.Organization)
	})

	t.Run("resolved domain organization wins", func(t *testing.T) {
		orgs := memory.NewOrganizationStore()
		groups := memory.NewCoreGroupStore()
		users := memory.NewCoreUserStore(groups)
		org := newOrg(t, orgs, "Acme", "acme.io")

		orgID := org.OrganizationID
		state := &State{
			Backend:       Backend{DefaultOrgName: "Default Org"},
			Details:       Details{OrganizationUUID: &orgID},
			CoreUser:      newUser(),
			IsNewCoreUser: true,
		}

		result, err := CreateOrganization(orgs, users)(ctx, state)
		require.NoError(t, err)
		require.Equal(t, KindContinue, result.Kind)
		require.False(t, state.IsNewOrg)
		require.Equal(t, org.OrganizationID, state.CoreUser.OrganizationID)

		persisted, err := users.GetByEmail(ctx, "johnsnow@example.com")
		require.NoError(t, err)
		require.Equal(t, org.OrganizationID, persisted.OrganizationID)
	})

	t.Run("existing default organization is reused", func(t *testing.T) {
		orgs := memory.NewOrganizationStore()
		groups := memory.NewCoreGroupStore()
		users := memory.NewCoreUserStore(groups)
		existing := newOrg(t, orgs, "Default Org")

		state := &State{
			Backend:       Backend{DefaultOrgName: "Default Org"},
			CoreUser:      newUser(),
			IsNewCoreUser: true,
		}

		result, err := CreateOrganization(orgs, users)(ctx, state)
		require.NoError(t, err)
		require.Equal(t, KindContinue, result.Kind)
		require.False(t, state.IsNewOrg)
		require.Equal(t, existing.OrganizationID, state.Organization.OrganizationID)
	})

	t.Run("no default creates organization named after the user", func(t *testing.T) {
		orgs := memory.NewOrganizationStore()
		groups := memory.NewCoreGroupStore()
		users := memory.NewCoreUserStore(groups)

		state := &State{
			CoreUser:      newUser(),
			IsNewCoreUser: true,
		}

		result, err := CreateOrganization(orgs, users)(ctx, state)
		require.NoError(t, err)
		require.Equal(t, KindContinue, result.Kind)
		require.True(t, state.IsNewOrg)
		require.Equal(t, "johnsnow", state.Organization.Name)

		all, err := orgs.List(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
	})

	t.Run("second signup resolving the same name reuses the organization", func(t *testing.T) {
		orgs := memory.NewOrganizationStore()
		groups := memory.NewCoreGroupStore()
		users := memory.NewCoreUserStore(groups)

		first := &State{CoreUser: newUser(), IsNewCoreUser: true}
		_, err := CreateOrganization(orgs, users)(ctx, first)
		require.NoError(t, err)
		require.True(t, first.IsNewOrg)

		now := time.Now()
		second := &State{
			CoreUser: &models.CoreUser{
				CoreUserID: uuid.New(),
				Username:   "johnsnow",
				Email:      "johnsnow@other.com",
				IsActive:   true,
				CreatedAt:  now,
				UpdatedAt:  now,
			},
			IsNewCoreUser: true,
		}
		_, err = CreateOrganization(orgs, users)(ctx, second)
		require.NoError(t, err)
		require.False(t, second.IsNewOrg)
		require.Equal(t, first.Organization.OrganizationID, second.Organization.OrganizationID)

		all, err := orgs.List(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
	})
}

func TestAssignOrgAdminGroup(t *testing.T) {
	ctx := context.Background()

	t.Run("first user of a new organization becomes org admin", func(t *testing.T) {
		orgs := memory.NewOrganizationStore()
		groups := memory.NewCoreGroupStore()
		users := memory.NewCoreUserStore(groups)
		org := newOrg(t, orgs, "Acme")

		now := time.Now()
		user := &models.CoreUser{
			CoreUserID:     uuid.New(),
			Username:       "jane",
			Email:          "jane@acme.io",
			OrganizationID: org.OrganizationID,
			IsActive:       true,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		require.NoError(t, users.Create(ctx, user))

		state := &State{CoreUser: user, IsNewOrg: true}

		result, err := AssignOrgAdminGroup(groups, users)(ctx, state)
		require.NoError(t, err)
		require.Equal(t, KindContinue, result.Kind)

		memberships, err := users.ListGroups(ctx, user.CoreUserID)
		require.NoError(t, err)
		require.Len(t, memberships, 1)
		require.True(t, memberships[0].IsOrgAdmin())
	})

	t.Run("existing organizations do not grant admin", func(t *testing.T) {
		groups := memory.NewCoreGroupStore()
		users := memory.NewCoreUserStore(groups)

		now := time.Now()
		user := &models.CoreUser{
			CoreUserID:     uuid.New(),
			Username:       "jane",
			Email:          "jane@acme.io",
			OrganizationID: uuid.New(),
			IsActive:       true,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		require.NoError(t, users.Create(ctx, user))

		state := &State{CoreUser: user, IsNewOrg: false}

		result, err := AssignOrgAdminGroup(groups, users)(ctx, state)
		require.NoError(t, err)
		require.Equal(t, KindContinue, result.Kind)

		memberships, err := users.ListGroups(ctx, user.CoreUserID)
		require.NoError(t, err)
		require.Empty(t, memberships)
	})
}
