package models

import (
	"time"

	"github.com/google/uuid"
)

// CoreUser represents an identity record. A core user belongs to exactly one
// organization once authentication completes, and may be a member of zero or
// more core groups for authorization.
type CoreUser struct {
	CoreUserID     uuid.UUID
	Username       string // Unique
	Email          string // Unique
	PasswordHash   string // bcrypt
	FirstName      string
	LastName       string
	OrganizationID uuid.UUID
	IsActive       bool
	IsGlobalAdmin  bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Name returns the display name for the user.
func (u *CoreUser) Name() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.Username
	}
}
