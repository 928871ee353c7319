package auth

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/meshstack/coregate/internal/store"
)

// extractBearerToken pulls the token out of the Authorization header.
func extractBearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

// DualAuthMiddleware creates an HTTP middleware that accepts both JWT
// and opaque session bearer tokens. Tokens containing dots are treated
// as JWTs, everything else is looked up as a session. A provided but
// invalid token never falls through to the other scheme.
func DualAuthMiddleware(jwts *JWTIssuer, sessions *SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token := extractBearerToken(r)
			if token == "" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			var principal *Principal

			if strings.Contains(token, ".") {
				var err error
				principal, err = jwts.Verify(token)
				if err != nil {
					log.Debug().Err(err).Msg("Dual auth: JWT verification failed")
					http.Error(w, "unauthorized", http.StatusUnauthorized)
					return
				}
			} else {
				var err error
				principal, err = sessions.Resolve(ctx, token)
				if err != nil {
					log.Debug().Err(err).Msg("Dual auth: session lookup failed")
					http.Error(w, "unauthorized", http.StatusUnauthorized)
					return
				}
			}

			ctx = WithPrincipal(ctx, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireOrgAdmin creates an HTTP middleware that only lets through
// global admins and members of their organization's org-level admin
// group. Must run after DualAuthMiddleware.
func RequireOrgAdmin(users store.CoreUserStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			principal := PrincipalFromContext(ctx)
			if principal == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			if principal.IsGlobalAdmin {
				next.ServeHTTP(w, r)
				return
			}

			groups, err := users.ListGroups(ctx, principal.CoreUserID)
			if err != nil {
				log.Error().Err(err).Msg("Failed to list principal groups")
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}

			for _, group := range groups {
				if group.OrganizationID == principal.OrganizationID && group.IsOrgAdmin() {
					next.ServeHTTP(w, r)
					return
				}
			}

			http.Error(w, "forbidden", http.StatusForbidden)
		})
	}
}
