package server

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/meshstack/coregate/internal/auth"
	"github.com/meshstack/coregate/internal/models"
	"github.com/meshstack/coregate/internal/password"
	"github.com/meshstack/coregate/internal/store"
)

// coreUserResponse is the JSON representation of a core user. The
// password hash never leaves the server.
type coreUserResponse struct {
	CoreUserUUID     string `json:"core_user_uuid"`
	Username         string `json:"username"`
	Email            string `json:"email"`
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	OrganizationUUID string `json:"organization_uuid"`
	IsActive         bool   `json:"is_active"`
}

func toCoreUserResponse(user *models.CoreUser) coreUserResponse {
	return coreUserResponse{
		CoreUserUUID:     user.CoreUserID.String(),
		Username:         user.Username,
		Email:            user.Email,
		FirstName:        user.FirstName,
		LastName:         user.LastName,
		OrganizationUUID: user.OrganizationID.String(),
		IsActive:         user.IsActive,
	}
}

type createCoreUserRequest struct {
	Username         string `json:"username"`
	Email            string `json:"email"`
	Password         string `json:"password"`
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	InvitationToken  string `json:"invitation_token"`
	OrganizationName string `json:"organization_name"`
}

// handleCreateCoreUser registers an account. With an invitation token
// the account joins the inviting organization; otherwise an
// organization name is required and resolved get-or-create.
func (s *Server) handleCreateCoreUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createCoreUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	errs := validationError{}
	if req.Username == "" {
		errs["username"] = append(errs["username"], "This field is required.")
	}
	if req.Email == "" {
		errs["email"] = append(errs["email"], "This field is required.")
	} else if _, err := mail.ParseAddress(req.Email); err != nil {
		errs["email"] = append(errs["email"], "Enter a valid email address.")
	}
	if len(req.Password) < password.MinPasswordLength {
		errs["password"] = append(errs["password"], "Password is too short.")
	}
	if req.InvitationToken == "" && req.OrganizationName == "" {
		errs["organization_name"] = append(errs["organization_name"], "This field is required without an invitation token.")
	}
	if len(errs) > 0 {
		respondValidation(w, errs)
		return
	}

	email := strings.ToLower(req.Email)

	var organizationID uuid.UUID
	if req.InvitationToken != "" {
		invitation, err := s.tokens.CheckInvitation(req.InvitationToken)
		if err != nil {
			respondDetail(w, http.StatusBadRequest, "Token is not valid.")
			return
		}
		if !strings.EqualFold(invitation.Email, email) {
			respondDetail(w, http.StatusBadRequest, "Token was issued for a different email address.")
			return
		}
		organizationID = invitation.OrganizationUUID
	} else {
		org, _, err := s.orgs.GetOrCreateByName(ctx, req.OrganizationName)
		if err != nil {
			log.Error().Err(err).Msg("Failed to resolve organization")
			respondDetail(w, http.StatusInternalServerError, "internal error")
			return
		}
		organizationID = org.OrganizationID
	}

	hash, err := password.Hash(req.Password)
	if err != nil {
		respondValidation(w, validationError{"password": {"Password is too short."}})
		return
	}

	now := time.Now()
	user := &models.CoreUser{
		CoreUserID:     uuid.New(),
		Username:       req.Username,
		Email:          email,
		PasswordHash:   hash,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		OrganizationID: organizationID,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrCoreUserAlreadyExists) {
			respondValidation(w, validationError{"email": {"A user with this email or username already exists."}})
			return
		}
		log.Error().Err(err).Msg("Failed to create core user")
		respondDetail(w, http.StatusInternalServerError, "internal error")
		return
	}

	log.Info().
		Str("core_user_id", user.CoreUserID.String()).
		Str("organization_id", organizationID.String()).
		Msg("Core user registered")

	respondJSON(w, http.StatusCreated, toCoreUserResponse(user))
}

// handleListCoreUsers lists users visible to the caller. Global admins
// see everyone, everyone else sees their own organization.
func (s *Server) handleListCoreUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal := auth.PrincipalFromContext(ctx)

	var (
		users []*models.CoreUser
		err   error
	)
	if principal.IsGlobalAdmin {
		users, err = s.users.List(ctx)
	} else {
		users, err = s.users.ListByOrganization(ctx, principal.OrganizationID)
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to list core users")
		respondDetail(w, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]coreUserResponse, 0, len(users))
	for _, user := range users {
		out = append(out, toCoreUserResponse(user))
	}

	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetCoreUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal := auth.PrincipalFromContext(ctx)

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondDetail(w, http.StatusBadRequest, "invalid core user id")
		return
	}

	user, err := s.users.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrCoreUserNotFound) {
			respondDetail(w, http.StatusNotFound, "Not found.")
			return
		}
		log.Error().Err(err).Msg("Failed to get core user")
		respondDetail(w, http.StatusInternalServerError, "internal error")
		return
	}

	if !principal.IsGlobalAdmin && user.OrganizationID != principal.OrganizationID {
		respondDetail(w, http.StatusNotFound, "Not found.")
		return
	}

	respondJSON(w, http.StatusOK, toCoreUserResponse(user))
}

type updateCoreUserRequest struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	IsActive  *bool   `json:"is_active"`
}

// handleUpdateCoreUser lets a user edit their own profile. Only org or
// global admins may edit other users or toggle is_active.
func (s *Server) handleUpdateCoreUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal := auth.PrincipalFromContext(ctx)

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondDetail(w, http.StatusBadRequest, "invalid core user id")
		return
	}

	user, err := s.users.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrCoreUserNotFound) {
			respondDetail(w, http.StatusNotFound, "Not found.")
			return
		}
		log.Error().Err(err).Msg("Failed to get core user")
		respondDetail(w, http.StatusInternalServerError, "internal error")
		return
	}

	isSelf := principal.CoreUserID == user.CoreUserID
	if !isSelf && !s.isOrgAdmin(r, user.OrganizationID) {
		respondDetail(w, http.StatusForbidden, "You do not have permission to perform this action.")
		return
	}

	var req updateCoreUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.FirstName != nil {
		user.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		user.LastName = *req.LastName
	}
	if req.IsActive != nil {
		if isSelf && !s.isOrgAdmin(r, user.OrganizationID) {
			respondDetail(w, http.StatusForbidden, "You do not have permission to perform this action.")
			return
		}
		user.IsActive = *req.IsActive
	}
	user.UpdatedAt = time.Now()

	if err := s.users.Update(ctx, user); err != nil {
		log.Error().Err(err).Msg("Failed to update core user")
		respondDetail(w, http.StatusInternalServerError, "internal error")
		return
	}

	respondJSON(w, http.StatusOK, toCoreUserResponse(user))
}

// isOrgAdmin reports whether the caller administers the given
// organization, either globally or through its admin group.
func (s *Server) isOrgAdmin(r *http.Request, organizationID uuid.UUID) bool {
	ctx := r.Context()
	principal := auth.PrincipalFromContext(ctx)
	if principal == nil {
		return false
	}
	if principal.IsGlobalAdmin {
		return true
	}
	if principal.OrganizationID != organizationID {
		return false
	}

	groups, err := s.users.ListGroups(ctx, principal.CoreUserID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list principal groups")
		return false
	}

	for _, group := range groups {
		if group.OrganizationID == organizationID && group.IsOrgAdmin() {
			return true
		}
	}
	return false
}
