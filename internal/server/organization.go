package server

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/meshstack/coregate/internal/auth"
	"github.com/meshstack/coregate/internal/models"
	"github.com/meshstack/coregate/internal/store"
)

type organizationResponse struct {
	OrganizationUUID string   `json:"organization_uuid"`
	Name             string   `json:"name"`
	OAuthDomains     []string `json:"oauth_domains"`
}

func toOrganizationResponse(org *models.Organization) organizationResponse {
	return organizationResponse{
		OrganizationUUID: org.OrganizationID.String(),
		Name:             org.Name,
		OAuthDomains:     org.OAuthDomains,
	}
}

// handleListOrganizations returns the organizations visible to the
// caller: all of them for global admins, only their own otherwise.
func (s *Server) handleListOrganizations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal := auth.PrincipalFromContext(ctx)

	if principal.IsGlobalAdmin {
		orgs, err := s.orgs.List(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list organizations")
			respondDetail(w, http.StatusInternalServerError, "internal error")
			return
		}

		out := make([]organizationResponse, 0, len(orgs))
		for _, org := range orgs {
			out = append(out, toOrganizationResponse(org))
		}
		respondJSON(w, http.StatusOK, out)
		return
	}

	org, err := s.orgs.Get(ctx, principal.OrganizationID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to get principal organization")
		respondDetail(w, http.StatusInternalServerError, "internal error")
		return
	}

	respondJSON(w, http.StatusOK, []organizationResponse{toOrganizationResponse(org)})
}

func (s *Server) handleGetOrganization(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal := auth.PrincipalFromContext(ctx)

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondDetail(w, http.StatusBadRequest, "invalid organization id")
		return
	}

	if !principal.IsGlobalAdmin && principal.OrganizationID != id {
		respondDetail(w, http.StatusNotFound, "Not found.")
		return
	}

	org, err := s.orgs.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrOrganizationNotFound) {
			respondDetail(w, http.StatusNotFound, "Not found.")
			return
		}
		log.Error().Err(err).Msg("Failed to get organization")
		respondDetail(w, http.StatusInternalServerError, "internal error")
		return
	}

	respondJSON(w, http.StatusOK, toOrganizationResponse(org))
}
