package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/meshstack/coregate/internal/models"
	"github.com/meshstack/coregate/internal/store/memory"
)

func testUser() *models.CoreUser {
	now := time.Now()
	return &models.CoreUser{
		CoreUserID:     uuid.New(),
		Username:       "jane",
		Email:          "jane@acme.io",
		OrganizationID: uuid.New(),
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestJWTIssuer(t *testing.T) {
	issuer := NewJWTIssuer("test-secret", time.Hour)
	user := testUser()

	t.Run("round trip", func(t *testing.T) {
		token, err := issuer.Issue(user)
		require.NoError(t, err)

		principal, err := issuer.Verify(token)
		require.NoError(t, err)
		require.Equal(t, user.CoreUserID, principal.CoreUserID)
		require.Equal(t, user.OrganizationID, principal.OrganizationID)
		require.False(t, principal.IsGlobalAdmin)
	})

	t.Run("wrong secret rejected", func(t *testing.T) {
		other := NewJWTIssuer("other-secret", time.Hour)
		token, err := other.Issue(user)
		require.NoError(t, err)

		_, err = issuer.Verify(token)
		require.ErrorIs(t, err, ErrInvalidAccessToken)
	})

	t.Run("expired token rejected", func(t *testing.T) {
		issued := time.Now()
		issuer := NewJWTIssuer("test-secret", time.Minute)
		issuer.now = func() time.Time { return issued }

		token, err := issuer.Issue(user)
		require.NoError(t, err)

		issuer.now = func() time.Time { return issued.Add(2 * time.Minute) }

		_, err = issuer.Verify(token)
		require.ErrorIs(t, err, ErrInvalidAccessToken)
	})
}

func TestSessionManager(t *testing.T) {
	ctx := context.Background()
	user := testUser()

	t.Run("create and resolve", func(t *testing.T) {
		manager := NewSessionManager(memory.NewSessionStore(), time.Hour)

		session, err := manager.Create(ctx, user, "test-agent", "203.0.113.1")
		require.NoError(t, err)
		require.NotEmpty(t, session.Token)

		principal, err := manager.Resolve(ctx, session.Token)
		require.NoError(t, err)
		require.Equal(t, user.CoreUserID, principal.CoreUserID)
		require.Equal(t, user.OrganizationID, principal.OrganizationID)
	})

	t.Run("global admin flag carries over", func(t *testing.T) {
		manager := NewSessionManager(memory.NewSessionStore(), time.Hour)

		admin := testUser()
		admin.IsGlobalAdmin = true

		session, err := manager.Create(ctx, admin, "", "")
		require.NoError(t, err)

		// session bearers get the same privileges as JWT bearers
		principal, err := manager.Resolve(ctx, session.Token)
		require.NoError(t, err)
		require.True(t, principal.IsGlobalAdmin)
	})

	t.Run("revoked session no longer resolves", func(t *testing.T) {
		manager := NewSessionManager(memory.NewSessionStore(), time.Hour)

		session, err := manager.Create(ctx, user, "", "")
		require.NoError(t, err)
		require.NoError(t, manager.Revoke(ctx, session.Token))

		_, err = manager.Resolve(ctx, session.Token)
		require.Error(t, err)
	})

	t.Run("tokens are unique", func(t *testing.T) {
		first, err := NewSessionToken()
		require.NoError(t, err)
		second, err := NewSessionToken()
		require.NoError(t, err)
		require.NotEqual(t, first, second)
	})
}

func TestDualAuthMiddleware(t *testing.T) {
	ctx := context.Background()
	user := testUser()

	jwts := NewJWTIssuer("test-secret", time.Hour)
	sessions := NewSessionManager(memory.NewSessionStore(), time.Hour)

	var captured *Principal
	handler := DualAuthMiddleware(jwts, sessions)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("JWT bearer", func(t *testing.T) {
		token, err := jwts.Issue(user)
		require.NoError(t, err)

		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer "+token)

		handler.ServeHTTP(w, r)

		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, user.CoreUserID, captured.CoreUserID)
	})

	t.Run("session bearer", func(t *testing.T) {
		session, err := sessions.Create(ctx, user, "", "")
		require.NoError(t, err)

		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer "+session.Token)

		handler.ServeHTTP(w, r)

		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, user.CoreUserID, captured.CoreUserID)
	})

	t.Run("missing token", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/", nil)

		handler.ServeHTTP(w, r)

		require.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("invalid JWT does not fall back to session", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer not.a.jwt")

		handler.ServeHTTP(w, r)

		require.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unknown session token", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer unknowntoken")

		handler.ServeHTTP(w, r)

		require.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestRequireOrgAdmin(t *testing.T) {
	ctx := context.Background()

	groups := memory.NewCoreGroupStore()
	users := memory.NewCoreUserStore(groups)

	user := testUser()
	require.NoError(t, users.Create(ctx, user))

	handler := RequireOrgAdmin(users)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	serve := func(principal *Principal) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/", nil)
		if principal != nil {
			r = r.WithContext(WithPrincipal(r.Context(), principal))
		}
		handler.ServeHTTP(w, r)
		return w
	}

	t.Run("plain member is forbidden", func(t *testing.T) {
		w := serve(&Principal{CoreUserID: user.CoreUserID, OrganizationID: user.OrganizationID})
		require.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("org admin group member passes", func(t *testing.T) {
		group, err := groups.GetOrCreateOrgAdmin(ctx, user.OrganizationID)
		require.NoError(t, err)
		require.NoError(t, users.AddToGroup(ctx, user.CoreUserID, group.GroupID))

		w := serve(&Principal{CoreUserID: user.CoreUserID, OrganizationID: user.OrganizationID})
		require.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("global admin passes without membership", func(t *testing.T) {
		w := serve(&Principal{CoreUserID: uuid.New(), OrganizationID: uuid.New(), IsGlobalAdmin: true})
		require.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("unauthenticated is rejected", func(t *testing.T) {
		w := serve(nil)
		require.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
