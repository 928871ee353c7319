package password

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/meshstack/coregate/internal/invite"
	"github.com/meshstack/coregate/internal/store"
	"github.com/meshstack/coregate/internal/telemetry"
	"github.com/meshstack/coregate/internal/token"
)

// MinPasswordLength is the minimum accepted password length.
const MinPasswordLength = 8

// DefaultResetPath is the frontend route a reset link lands on.
const DefaultResetPath = "/reset-password"

// ErrPasswordTooShort is returned when a new password fails validation.
var ErrPasswordTooShort = errors.New("password is too short")

// Resetter drives the stateless password reset flow: a signed token is
// mailed out, checked by the frontend, then exchanged for a password
// change. Nothing is stored server-side.
type Resetter struct {
	users       store.CoreUserStore
	issuer      *token.Issuer
	mailer      invite.Mailer
	frontendURL string
	resetPath   string
}

// NewResetter creates a password reset service.
func NewResetter(users store.CoreUserStore, issuer *token.Issuer, mailer invite.Mailer, frontendURL, resetPath string) *Resetter {
	if resetPath == "" {
		resetPath = DefaultResetPath
	}

	return &Resetter{
		users:       users,
		issuer:      issuer,
		mailer:      mailer,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		resetPath:   resetPath,
	}
}

// Request mails a reset link to the account registered under email and
// returns how many messages went out. An unknown email is not an error:
// the count is zero and the caller cannot distinguish it from a
// delivery, so the endpoint does not leak which emails have accounts.
func (r *Resetter) Request(ctx context.Context, email string) (int, error) {
	user, err := r.users.GetByEmail(ctx, strings.ToLower(email))
	if err != nil {
		if errors.Is(err, store.ErrCoreUserNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to look up core user: %w", err)
	}

	tok, err := r.issuer.CreateReset(user)
	if err != nil {
		return 0, fmt.Errorf("failed to create reset token: %w", err)
	}

	link := r.frontendURL + r.resetPath + "?token=" + tok

	if err := r.mailer.Send(ctx, user.Email, "Reset your password",
		fmt.Sprintf(`<p>Follow the link to reset your password: <a href=%q>Reset password</a></p>`, link)); err != nil {
		return 0, fmt.Errorf("failed to send reset mail: %w", err)
	}

	telemetry.GetMetrics().PasswordResetsTotal.Add(ctx, 1)

	log.Debug().
		Str("core_user_id", user.CoreUserID.String()).
		Msg("Sent password reset mail")

	return 1, nil
}

// Check reports whether a reset token is still usable, without
// consuming it.
func (r *Resetter) Check(ctx context.Context, tokenStr string) (bool, error) {
	userID, fingerprint, err := r.issuer.CheckReset(tokenStr)
	if err != nil {
		return false, nil
	}

	user, err := r.users.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrCoreUserNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to look up core user: %w", err)
	}

	return token.VerifyResetFingerprint(fingerprint, user), nil
}

// Confirm exchanges a valid reset token for a password change. The
// token stops working afterwards because the fingerprint it binds to
// changes with the password hash.
func (r *Resetter) Confirm(ctx context.Context, tokenStr, newPassword string) error {
	if len(newPassword) < MinPasswordLength {
		return ErrPasswordTooShort
	}

	userID, fingerprint, err := r.issuer.CheckReset(tokenStr)
	if err != nil {
		return err
	}

	user, err := r.users.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrCoreUserNotFound) {
			return token.ErrTokenInvalid
		}
		return fmt.Errorf("failed to look up core user: %w", err)
	}

	if !token.VerifyResetFingerprint(fingerprint, user) {
		return token.ErrTokenInvalid
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	user.PasswordHash = string(hash)
	if err := r.users.Update(ctx, user); err != nil {
		return fmt.Errorf("failed to update core user: %w", err)
	}

	log.Info().
		Str("core_user_id", user.CoreUserID.String()).
		Msg("Password reset completed")

	return nil
}

// Verify compares a candidate password against a stored hash.
func Verify(passwordHash, candidate string) bool {
	return bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(candidate)) == nil
}

// Hash produces a bcrypt hash for a new password.
func Hash(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", ErrPasswordTooShort
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	return string(hash), nil
}
