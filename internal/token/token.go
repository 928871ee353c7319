package token

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/meshstack/coregate/internal/models"
)

// Sentinel errors for token validation. Handlers map these onto 401
// responses with the matching detail message.
var (
	ErrTokenMissing = errors.New("no token is provided")
	ErrTokenInvalid = errors.New("token is not valid")
	ErrTokenExpired = errors.New("token is expired")
)

const (
	issuerName = "coregate"

	// DefaultInvitationTTL is how long an invitation link stays valid.
	DefaultInvitationTTL = 7 * 24 * time.Hour

	// DefaultResetTTL is how long a password reset link stays valid.
	DefaultResetTTL = 24 * time.Hour
)

// Invitation is the decoded payload of a verified invitation token.
type Invitation struct {
	Email            string
	OrganizationUUID uuid.UUID
}

// Issuer mints and verifies stateless signed tokens. Nothing is ever
// persisted: validity is computed from signature and expiry alone.
type Issuer struct {
	secret        []byte
	invitationTTL time.Duration
	resetTTL      time.Duration
	now           func() time.Time
}

// NewIssuer creates a token issuer signing with the given server secret.
func NewIssuer(secret string) *Issuer {
	return &Issuer{
		secret:        []byte(secret),
		invitationTTL: DefaultInvitationTTL,
		resetTTL:      DefaultResetTTL,
		now:           time.Now,
	}
}

type invitationClaims struct {
	Email            string `json:"email"`
	OrganizationUUID string `json:"org_uuid"`
	jwt.RegisteredClaims
}

// CreateInvitation produces a signed token encoding the invitee email
// and the inviting organization.
func (i *Issuer) CreateInvitation(email string, organizationID uuid.UUID) (string, error) {
	now := i.now()
	claims := &invitationClaims{
		Email:            email,
		OrganizationUUID: organizationID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuerName,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.invitationTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign invitation token: %w", err)
	}

	return signed, nil
}

// CheckInvitation verifies a token from an invitation link and returns
// the decoded payload.
func (i *Issuer) CheckInvitation(tokenStr string) (*Invitation, error) {
	if tokenStr == "" {
		return nil, ErrTokenMissing
	}

	claims := &invitationClaims{}
	if err := i.parse(tokenStr, claims); err != nil {
		return nil, err
	}

	orgID, err := uuid.Parse(claims.OrganizationUUID)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	return &Invitation{Email: claims.Email, OrganizationUUID: orgID}, nil
}

type resetClaims struct {
	CoreUserUUID string `json:"core_user_uuid"`
	Fingerprint  string `json:"fp"`
	jwt.RegisteredClaims
}

// CreateReset produces a signed password reset token for a core user.
// The token binds to a fingerprint of the current password hash, so it
// stops working once the password changes.
func (i *Issuer) CreateReset(user *models.CoreUser) (string, error) {
	now := i.now()
	claims := &resetClaims{
		CoreUserUUID: user.CoreUserID.String(),
		Fingerprint:  passwordFingerprint(user.PasswordHash),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuerName,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.resetTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign reset token: %w", err)
	}

	return signed, nil
}

// CheckReset verifies a password reset token and returns the core user
// it was issued for. The fingerprint check rejects tokens issued before
// the last password change.
func (i *Issuer) CheckReset(tokenStr string) (uuid.UUID, string, error) {
	if tokenStr == "" {
		return uuid.Nil, "", ErrTokenMissing
	}

	claims := &resetClaims{}
	if err := i.parse(tokenStr, claims); err != nil {
		return uuid.Nil, "", err
	}

	userID, err := uuid.Parse(claims.CoreUserUUID)
	if err != nil {
		return uuid.Nil, "", ErrTokenInvalid
	}

	return userID, claims.Fingerprint, nil
}

// VerifyResetFingerprint reports whether a reset token fingerprint still
// matches the user's current password hash.
func VerifyResetFingerprint(fingerprint string, user *models.CoreUser) bool {
	return fingerprint == passwordFingerprint(user.PasswordHash)
}

func (i *Issuer) parse(tokenStr string, claims jwt.Claims) error {
	parsed, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("invalid signing method")
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return ErrTokenInvalid
	}

	if !parsed.Valid {
		return ErrTokenInvalid
	}

	return nil
}

func passwordFingerprint(passwordHash string) string {
	sum := sha256.Sum256([]byte(passwordHash))
	return hex.EncodeToString(sum[:8])
}
