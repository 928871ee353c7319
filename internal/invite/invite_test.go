package invite

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/meshstack/coregate/internal/models"
	"github.com/meshstack/coregate/internal/store/memory"
	"github.com/meshstack/coregate/internal/token"
)

type recordingMailer struct {
	sent []string
}

func (m *recordingMailer) Send(ctx context.Context, to, subject, body string) error {
	m.sent = append(m.sent, to)
	return nil
}

func TestInvite(t *testing.T) {
	ctx := context.Background()
	orgID := uuid.New()

	newUsers := func(t *testing.T, registered ...string) *memory.CoreUserStore {
		t.Helper()

		groups := memory.NewCoreGroupStore()
		users := memory.NewCoreUserStore(groups)

		now := time.Now()
		for _, email := range registered {
			local, _, _ := strings.Cut(email, "@")
			require.NoError(t, users.Create(ctx, &models.CoreUser{
				CoreUserID:     uuid.New(),
				Username:       local,
				Email:          email,
				OrganizationID: orgID,
				IsActive:       true,
				CreatedAt:      now,
				UpdatedAt:      now,
			}))
		}

		return users
	}

	t.Run("registered emails are skipped", func(t *testing.T) {
		users := newUsers(t, "a@x.com")
		mailer := &recordingMailer{}
		issuer := token.NewIssuer("test-secret")
		inviter := NewInviter(users, issuer, mailer, "https://app.example.com", "")

		links, err := inviter.Invite(ctx, orgID, []string{"a@x.com", "b@x.com"})
		require.NoError(t, err)
		require.Len(t, links, 1)
		require.Equal(t, []string{"b@x.com"}, mailer.sent)
	})

	t.Run("link embeds a verifiable token", func(t *testing.T) {
		users := newUsers(t)
		mailer := &recordingMailer{}
		issuer := token.NewIssuer("test-secret")
		inviter := NewInviter(users, issuer, mailer, "https://app.example.com/", "/register")

		links, err := inviter.Invite(ctx, orgID, []string{"jane@acme.io"})
		require.NoError(t, err)
		require.Len(t, links, 1)

		prefix := "https://app.example.com/register?token="
		require.True(t, strings.HasPrefix(links[0], prefix))

		invitation, err := issuer.CheckInvitation(strings.TrimPrefix(links[0], prefix))
		require.NoError(t, err)
		require.Equal(t, "jane@acme.io", invitation.Email)
		require.Equal(t, orgID, invitation.OrganizationUUID)
	})

	t.Run("all registered yields no links", func(t *testing.T) {
		users := newUsers(t, "a@x.com", "b@x.com")
		mailer := &recordingMailer{}
		issuer := token.NewIssuer("test-secret")
		inviter := NewInviter(users, issuer, mailer, "https://app.example.com", "")

		links, err := inviter.Invite(ctx, orgID, []string{"a@x.com", "b@x.com"})
		require.NoError(t, err)
		require.Empty(t, links)
		require.Empty(t, mailer.sent)
	})
}
