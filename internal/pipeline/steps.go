package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/meshstack/coregate/internal/models"
	"github.com/meshstack/coregate/internal/store"
)

// AccessDeniedMessage is shown to callers whose email matches no
// whitelist entry and no single organization domain.
const AccessDeniedMessage = "You don't appear to have permissions to access the system. Please check with your organization to have access."

// emailDomain returns the lowercased domain part of an email address, or
// an empty string when the address has no domain.
func emailDomain(email string) string {
	_, domain, ok := strings.Cut(email, "@")
	if !ok {
		return ""
	}
	return strings.ToLower(domain)
}

// AuthAllowed gates the pipeline on the deployment access policy. An
// email passes when it is literally whitelisted, its domain is
// whitelisted, or exactly one organization claims the domain via its
// OAuth domain list. A single-organization match records the resolved
// organization for the later steps. A domain claimed by several
// organizations is ambiguous and never resolves to any of them.
func AuthAllowed(orgs store.OrganizationStore) Step {
	return func(ctx context.Context, state *State) (Result, error) {
		email := strings.ToLower(state.Details.Email)

		for _, whitelisted := range state.Backend.WhitelistedEmails {
			if strings.EqualFold(whitelisted, email) {
				return Continue(), nil
			}
		}

		domain := emailDomain(email)
		if domain != "" {
			for _, whitelisted := range state.Backend.WhitelistedDomains {
				if strings.EqualFold(whitelisted, domain) {
					return Continue(), nil
				}
			}

			matches, err := orgs.ListByOAuthDomain(ctx, domain)
			if err != nil {
				return Result{}, fmt.Errorf("failed to resolve oauth domain: %w", err)
			}

			switch len(matches) {
			case 0:
			case 1:
				orgID := matches[0].OrganizationID
				state.Details.OrganizationUUID = &orgID
				return Continue(), nil
			default:
				log.Warn().
					Str("domain", domain).
					Int("organizations", len(matches)).
					Msg("OAuth domain claimed by multiple organizations")
			}
		}

		return Deny(AccessDeniedMessage), nil
	}
}

// usernameFromEmail derives a username from the local part of an email
// address.
func usernameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return strings.ToLower(local)
}

// EnsureCoreUser resolves the core user for the authenticated email,
// building a new unsaved one when no account exists yet. New users are
// persisted by CreateOrganization once their organization is resolved.
func EnsureCoreUser(users store.CoreUserStore) Step {
	return func(ctx context.Context, state *State) (Result, error) {
		user, err := users.GetByEmail(ctx, strings.ToLower(state.Details.Email))
		if err == nil {
			state.CoreUser = user
			state.IsNewCoreUser = false
			return Continue(), nil
		}
		if !errors.Is(err, store.ErrCoreUserNotFound) {
			return Result{}, fmt.Errorf("failed to look up core user: %w", err)
		}

		now := time.Now()
		state.CoreUser = &models.CoreUser{
			CoreUserID: uuid.New(),
			Username:   usernameFromEmail(state.Details.Email),
			Email:      strings.ToLower(state.Details.Email),
			FirstName:  state.Details.FirstName,
			LastName:   state.Details.LastName,
			IsActive:   true,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		state.IsNewCoreUser = true

		return Continue(), nil
	}
}

// CreateOrganization attaches an organization to a newly created core
// user and persists the user record. Resolution order: the organization
// recorded by AuthAllowed, then the configured default organization
// name, then an organization named after the user. Get-or-create is
// backed by the unique name index so concurrent signups converge on a
// single row.
func CreateOrganization(orgs store.OrganizationStore, users store.CoreUserStore) Step {
	return func(ctx context.Context, state *State) (Result, error) {
		if state.CoreUser == nil || !state.IsNewCoreUser {
			return Continue(), nil
		}

		var (
			org     *models.Organization
			created bool
			err     error
		)

		switch {
		case state.Details.OrganizationUUID != nil:
			org, err = orgs.Get(ctx, *state.Details.OrganizationUUID)
		case state.Backend.DefaultOrgName != "":
			org, created, err = orgs.GetOrCreateByName(ctx, state.Backend.DefaultOrgName)
		default:
			org, created, err = orgs.GetOrCreateByName(ctx, state.CoreUser.Username)
		}
		if err != nil {
			return Result{}, fmt.Errorf("failed to resolve organization: %w", err)
		}

		state.CoreUser.OrganizationID = org.OrganizationID
		state.Organization = org
		state.IsNewOrg = created

		if err := users.Create(ctx, state.CoreUser); err != nil {
			return Result{}, fmt.Errorf("failed to persist core user: %w", err)
		}

		log.Debug().
			Str("core_user_id", state.CoreUser.CoreUserID.String()).
			Str("organization_id", org.OrganizationID.String()).
			Bool("is_new_org", created).
			Msg("Attached organization to core user")

		return Continue(), nil
	}
}

// AssignOrgAdminGroup makes the first user of a brand new organization
// its admin, via the org-level admin group.
func AssignOrgAdminGroup(groups store.CoreGroupStore, users store.CoreUserStore) Step {
	return func(ctx context.Context, state *State) (Result, error) {
		if !state.IsNewOrg || state.CoreUser == nil {
			return Continue(), nil
		}

		group, err := groups.GetOrCreateOrgAdmin(ctx, state.CoreUser.OrganizationID)
		if err != nil {
			return Result{}, fmt.Errorf("failed to resolve org admin group: %w", err)
		}

		if err := users.AddToGroup(ctx, state.CoreUser.CoreUserID, group.GroupID); err != nil {
			return Result{}, fmt.Errorf("failed to assign org admin group: %w", err)
		}

		return Continue(), nil
	}
}
