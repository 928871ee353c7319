package invite

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/meshstack/coregate/internal/store"
	"github.com/meshstack/coregate/internal/telemetry"
	"github.com/meshstack/coregate/internal/token"
)

// DefaultRegistrationPath is the frontend route an invitation link lands on.
const DefaultRegistrationPath = "/register"

// Inviter issues invitation links for new organization members.
type Inviter struct {
	users            store.CoreUserStore
	issuer           *token.Issuer
	mailer           Mailer
	frontendURL      string
	registrationPath string
}

// NewInviter creates an invitation service. frontendURL is the absolute
// base URL of the registration frontend.
func NewInviter(users store.CoreUserStore, issuer *token.Issuer, mailer Mailer, frontendURL, registrationPath string) *Inviter {
	if registrationPath == "" {
		registrationPath = DefaultRegistrationPath
	}

	return &Inviter{
		users:            users,
		issuer:           issuer,
		mailer:           mailer,
		frontendURL:      strings.TrimRight(frontendURL, "/"),
		registrationPath: registrationPath,
	}
}

// Invite issues one invitation link per email that has no account yet
// and dispatches it by mail. Already-registered emails are silently
// skipped. The generated links are returned to the caller.
func (i *Inviter) Invite(ctx context.Context, organizationID uuid.UUID, emails []string) ([]string, error) {
	registered, err := i.users.FilterRegisteredEmails(ctx, emails)
	if err != nil {
		return nil, fmt.Errorf("failed to filter registered emails: %w", err)
	}

	skip := make(map[string]struct{}, len(registered))
	for _, email := range registered {
		skip[strings.ToLower(email)] = struct{}{}
	}

	links := []string{}
	for _, email := range emails {
		if _, ok := skip[strings.ToLower(email)]; ok {
			log.Debug().
				Str("email", email).
				Msg("Skipping invitation for registered email")
			continue
		}

		tok, err := i.issuer.CreateInvitation(strings.ToLower(email), organizationID)
		if err != nil {
			return nil, fmt.Errorf("failed to create invitation token: %w", err)
		}

		link := i.frontendURL + i.registrationPath + "?token=" + tok

		if err := i.mailer.Send(ctx, email, "You have been invited",
			fmt.Sprintf(`<p>You have been invited to join. <a href=%q>Accept invitation</a></p>`, link)); err != nil {
			log.Warn().
				Err(err).
				Str("email", email).
				Msg("Failed to send invitation mail")
		} else {
			telemetry.GetMetrics().InvitationsSentTotal.Add(ctx, 1)
		}

		links = append(links, link)
	}

	return links, nil
}
