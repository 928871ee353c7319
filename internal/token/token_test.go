package token

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/meshstack/coregate/internal/models"
)

func TestInvitationTokens(t *testing.T) {
	issuer := NewIssuer("test-secret")
	orgID := uuid.New()

	t.Run("round trip", func(t *testing.T) {
		tok, err := issuer.CreateInvitation("jane@acme.io", orgID)
		require.NoError(t, err)

		invitation, err := issuer.CheckInvitation(tok)
		require.NoError(t, err)
		require.Equal(t, "jane@acme.io", invitation.Email)
		require.Equal(t, orgID, invitation.OrganizationUUID)
	})

	t.Run("missing token", func(t *testing.T) {
		_, err := issuer.CheckInvitation("")
		require.ErrorIs(t, err, ErrTokenMissing)
	})

	t.Run("tampered token", func(t *testing.T) {
		tok, err := issuer.CreateInvitation("jane@acme.io", orgID)
		require.NoError(t, err)

		parts := strings.Split(tok, ".")
		require.Len(t, parts, 3)
		tampered := parts[0] + "." + parts[1] + ".invalidsignature"

		_, err = issuer.CheckInvitation(tampered)
		require.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewIssuer("other-secret")
		tok, err := other.CreateInvitation("jane@acme.io", orgID)
		require.NoError(t, err)

		_, err = issuer.CheckInvitation(tok)
		require.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("expired token", func(t *testing.T) {
		issued := time.Now()
		issuer := NewIssuer("test-secret")
		issuer.now = func() time.Time { return issued }

		tok, err := issuer.CreateInvitation("jane@acme.io", orgID)
		require.NoError(t, err)

		issuer.now = func() time.Time { return issued.Add(DefaultInvitationTTL + time.Minute) }

		_, err = issuer.CheckInvitation(tok)
		require.ErrorIs(t, err, ErrTokenExpired)
	})
}

func TestResetTokens(t *testing.T) {
	issuer := NewIssuer("test-secret")

	user := &models.CoreUser{
		CoreUserID:   uuid.New(),
		Username:     "jane",
		Email:        "jane@acme.io",
		PasswordHash: "$2a$10$original",
	}

	t.Run("round trip", func(t *testing.T) {
		tok, err := issuer.CreateReset(user)
		require.NoError(t, err)

		userID, fingerprint, err := issuer.CheckReset(tok)
		require.NoError(t, err)
		require.Equal(t, user.CoreUserID, userID)
		require.True(t, VerifyResetFingerprint(fingerprint, user))
	})

	t.Run("token dies with a password change", func(t *testing.T) {
		tok, err := issuer.CreateReset(user)
		require.NoError(t, err)

		_, fingerprint, err := issuer.CheckReset(tok)
		require.NoError(t, err)

		changed := *user
		changed.PasswordHash = "$2a$10$changed"
		require.False(t, VerifyResetFingerprint(fingerprint, &changed))
	})

	t.Run("missing token", func(t *testing.T) {
		_, _, err := issuer.CheckReset("")
		require.ErrorIs(t, err, ErrTokenMissing)
	})

	t.Run("expired token", func(t *testing.T) {
		issued := time.Now()
		issuer := NewIssuer("test-secret")
		issuer.now = func() time.Time { return issued }

		tok, err := issuer.CreateReset(user)
		require.NoError(t, err)

		issuer.now = func() time.Time { return issued.Add(DefaultResetTTL + time.Minute) }

		_, _, err = issuer.CheckReset(tok)
		require.ErrorIs(t, err, ErrTokenExpired)
	})
}
