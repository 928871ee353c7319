package server

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/meshstack/coregate/internal/invite"
	"github.com/meshstack/coregate/internal/password"
	"github.com/meshstack/coregate/internal/registry"
	"github.com/meshstack/coregate/internal/store"
	"github.com/meshstack/coregate/internal/token"
)

// Server exposes the identity and registry REST API.
type Server struct {
	users    store.CoreUserStore
	orgs     store.OrganizationStore
	groups   store.CoreGroupStore
	modules  store.LogicModuleStore
	registry *registry.Registry
	inviter  *invite.Inviter
	resetter *password.Resetter
	tokens   *token.Issuer
}

// NewServer creates the REST API server.
func NewServer(
	users store.CoreUserStore,
	orgs store.OrganizationStore,
	groups store.CoreGroupStore,
	modules store.LogicModuleStore,
	reg *registry.Registry,
	inviter *invite.Inviter,
	resetter *password.Resetter,
	tokens *token.Issuer,
) *Server {
	return &Server{
		users:    users,
		orgs:     orgs,
		groups:   groups,
		modules:  modules,
		registry: reg,
		inviter:  inviter,
		resetter: resetter,
		tokens:   tokens,
	}
}

// Routes registers all REST handlers on the mux. requireAuth wraps
// endpoints needing any authenticated principal, requireOrgAdmin those
// needing organization admin rights.
func (s *Server) Routes(mux *http.ServeMux, requireAuth, requireOrgAdmin func(http.Handler) http.Handler) {
	mux.HandleFunc("GET /health", s.handleHealth)

	// registration and token checks happen before the caller has any credential
	mux.HandleFunc("POST /coreuser/", s.handleCreateCoreUser)
	mux.HandleFunc("GET /coreuser/invite_check/", s.handleInviteCheck)
	mux.HandleFunc("POST /coreuser/reset_password/", s.handleResetPassword)
	mux.HandleFunc("POST /coreuser/reset_password_check/", s.handleResetPasswordCheck)
	mux.HandleFunc("POST /coreuser/reset_password_confirm/", s.handleResetPasswordConfirm)

	mux.Handle("GET /coreuser/", requireAuth(http.HandlerFunc(s.handleListCoreUsers)))
	mux.Handle("GET /coreuser/{id}", requireAuth(http.HandlerFunc(s.handleGetCoreUser)))
	mux.Handle("PUT /coreuser/{id}", requireAuth(http.HandlerFunc(s.handleUpdateCoreUser)))
	mux.Handle("POST /coreuser/invite/", requireAuth(requireOrgAdmin(http.HandlerFunc(s.handleInvite))))

	mux.Handle("GET /organization/", requireAuth(http.HandlerFunc(s.handleListOrganizations)))
	mux.Handle("GET /organization/{id}", requireAuth(http.HandlerFunc(s.handleGetOrganization)))

	admin := func(h http.HandlerFunc) http.Handler {
		return requireAuth(requireOrgAdmin(h))
	}

	mux.Handle("GET /logicmodule/", requireAuth(http.HandlerFunc(s.handleListLogicModules)))
	mux.Handle("POST /logicmodule/", admin(s.handleCreateLogicModule))
	mux.Handle("GET /logicmodule/{id}", requireAuth(http.HandlerFunc(s.handleGetLogicModule)))
	mux.Handle("PUT /logicmodule/{id}", admin(s.handleUpdateLogicModule))
	mux.Handle("DELETE /logicmodule/{id}", admin(s.handleDeleteLogicModule))

	mux.Handle("GET /datamesh/models/", requireAuth(http.HandlerFunc(s.handleListModels)))
	mux.Handle("POST /datamesh/models/", admin(s.handleCreateModel))
	mux.Handle("GET /datamesh/relationships/", requireAuth(http.HandlerFunc(s.handleListRelationships)))
	mux.Handle("POST /datamesh/relationships/", admin(s.handleCreateRelationship))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// validationError carries field level validation messages, rendered as
// a 400 with a field-to-messages map.
type validationError map[string][]string

func (e validationError) Error() string {
	return "validation failed"
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func respondDetail(w http.ResponseWriter, status int, detail string) {
	respondJSON(w, status, map[string]string{"detail": detail})
}

func respondValidation(w http.ResponseWriter, errs validationError) {
	respondJSON(w, http.StatusBadRequest, errs)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondDetail(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}
