package server

import (
	"errors"
	"net/http"
	"net/mail"

	"github.com/rs/zerolog/log"

	"github.com/meshstack/coregate/internal/auth"
	"github.com/meshstack/coregate/internal/password"
	"github.com/meshstack/coregate/internal/store"
	"github.com/meshstack/coregate/internal/token"
)

type inviteRequest struct {
	Emails []string `json:"emails"`
}

type inviteResponse struct {
	Detail      string   `json:"detail"`
	Invitations []string `json:"invitations"`
}

// handleInvite issues invitation links for the caller's organization.
func (s *Server) handleInvite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal := auth.PrincipalFromContext(ctx)

	var req inviteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if len(req.Emails) == 0 {
		respondValidation(w, validationError{"emails": {"This field is required."}})
		return
	}
	for _, email := range req.Emails {
		if _, err := mail.ParseAddress(email); err != nil {
			respondValidation(w, validationError{"emails": {"Enter a valid email address: " + email}})
			return
		}
	}

	links, err := s.inviter.Invite(ctx, principal.OrganizationID, req.Emails)
	if err != nil {
		log.Error().Err(err).Msg("Failed to issue invitations")
		respondDetail(w, http.StatusInternalServerError, "internal error")
		return
	}

	respondJSON(w, http.StatusOK, inviteResponse{
		Detail:      "The invitations were sent successfully.",
		Invitations: links,
	})
}

type inviteCheckOrganization struct {
	OrganizationUUID string `json:"organization_uuid"`
	Name             string `json:"name"`
}

type inviteCheckResponse struct {
	Email        string                   `json:"email"`
	Organization *inviteCheckOrganization `json:"organization"`
}

// handleInviteCheck verifies an invitation token for the registration
// frontend. Token failures come back as 401 with the matching detail
// message.
func (s *Server) handleInviteCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	invitation, err := s.tokens.CheckInvitation(r.URL.Query().Get("token"))
	if err != nil {
		respondDetail(w, http.StatusUnauthorized, tokenErrorDetail(err))
		return
	}

	resp := inviteCheckResponse{Email: invitation.Email}

	org, err := s.orgs.Get(ctx, invitation.OrganizationUUID)
	switch {
	case err == nil:
		resp.Organization = &inviteCheckOrganization{
			OrganizationUUID: org.OrganizationID.String(),
			Name:             org.Name,
		}
	case errors.Is(err, store.ErrOrganizationNotFound):
		// org deleted since the invitation went out; the email is still usable
	default:
		log.Error().Err(err).Msg("Failed to look up inviting organization")
		respondDetail(w, http.StatusInternalServerError, "internal error")
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// tokenErrorDetail maps token sentinel errors onto their response
// detail strings.
func tokenErrorDetail(err error) string {
	switch {
	case errors.Is(err, token.ErrTokenMissing):
		return "No token is provided."
	case errors.Is(err, token.ErrTokenExpired):
		return "Token is expired."
	default:
		return "Token is not valid."
	}
}

type resetPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordResponse struct {
	Detail string `json:"detail"`
	Count  int    `json:"count"`
}

// handleResetPassword mails a reset link. The response is identical
// for known and unknown emails apart from the count.
func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if _, err := mail.ParseAddress(req.Email); err != nil {
		respondValidation(w, validationError{"email": {"Enter a valid email address."}})
		return
	}

	count, err := s.resetter.Request(r.Context(), req.Email)
	if err != nil {
		log.Error().Err(err).Msg("Failed to request password reset")
		respondDetail(w, http.StatusInternalServerError, "internal error")
		return
	}

	respondJSON(w, http.StatusOK, resetPasswordResponse{
		Detail: "The reset password link was sent successfully.",
		Count:  count,
	})
}

type resetPasswordCheckRequest struct {
	Token string `json:"token"`
}

type resetPasswordCheckResponse struct {
	Success bool `json:"success"`
}

func (s *Server) handleResetPasswordCheck(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordCheckRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ok, err := s.resetter.Check(r.Context(), req.Token)
	if err != nil {
		log.Error().Err(err).Msg("Failed to check reset token")
		respondDetail(w, http.StatusInternalServerError, "internal error")
		return
	}

	respondJSON(w, http.StatusOK, resetPasswordCheckResponse{Success: ok})
}

type resetPasswordConfirmRequest struct {
	Token        string `json:"token"`
	NewPassword1 string `json:"new_password1"`
	NewPassword2 string `json:"new_password2"`
}

func (s *Server) handleResetPasswordConfirm(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordConfirmRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.NewPassword1 != req.NewPassword2 {
		respondValidation(w, validationError{"new_password2": {"The two password fields didn't match."}})
		return
	}

	err := s.resetter.Confirm(r.Context(), req.Token, req.NewPassword1)
	switch {
	case err == nil:
		respondDetail(w, http.StatusOK, "The password was changed successfully.")
	case errors.Is(err, password.ErrPasswordTooShort):
		respondValidation(w, validationError{"new_password1": {"Password is too short."}})
	case errors.Is(err, token.ErrTokenMissing), errors.Is(err, token.ErrTokenInvalid), errors.Is(err, token.ErrTokenExpired):
		respondDetail(w, http.StatusBadRequest, tokenErrorDetail(err))
	default:
		log.Error().Err(err).Msg("Failed to confirm password reset")
		respondDetail(w, http.StatusInternalServerError, "internal error")
	}
}
