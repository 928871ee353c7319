package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/meshstack/coregate/internal/models"
)

// ErrInvalidAccessToken is returned when a bearer JWT fails verification.
var ErrInvalidAccessToken = errors.New("invalid access token")

// DefaultAccessTokenTTL is the lifetime of issued access tokens.
const DefaultAccessTokenTTL = time.Hour

type accessClaims struct {
	CoreUserUUID     string `json:"core_user_uuid"`
	OrganizationUUID string `json:"organization_uuid"`
	IsGlobalAdmin    bool   `json:"is_global_admin"`
	jwt.RegisteredClaims
}

// JWTIssuer mints and verifies access token JWTs carrying the core user
// and organization identity.
type JWTIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTIssuer creates an access token issuer signing with the server
// secret.
func NewJWTIssuer(secret string, ttl time.Duration) *JWTIssuer {
	if ttl <= 0 {
		ttl = DefaultAccessTokenTTL
	}

	return &JWTIssuer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// TTL returns the configured access token lifetime.
func (i *JWTIssuer) TTL() time.Duration {
	return i.ttl
}

// Issue creates a signed access token for the core user.
func (i *JWTIssuer) Issue(user *models.CoreUser) (string, error) {
	now := i.now()
	claims := &accessClaims{
		CoreUserUUID:     user.CoreUserID.String(),
		OrganizationUUID: user.OrganizationID.String(),
		IsGlobalAdmin:    user.IsGlobalAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.CoreUserID.String(),
			Issuer:    "coregate",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}

	return signed, nil
}

// Verify parses an access token and returns the principal it encodes.
func (i *JWTIssuer) Verify(tokenStr string) (*Principal, error) {
	claims := &accessClaims{}
	parsed, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("invalid signing method")
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidAccessToken
	}

	coreUserID, err := uuid.Parse(claims.CoreUserUUID)
	if err != nil {
		return nil, ErrInvalidAccessToken
	}

	organizationID, err := uuid.Parse(claims.OrganizationUUID)
	if err != nil {
		return nil, ErrInvalidAccessToken
	}

	return &Principal{
		CoreUserID:     coreUserID,
		OrganizationID: organizationID,
		IsGlobalAdmin:  claims.IsGlobalAdmin,
	}, nil
}
