package models

import (
	"time"

	"github.com/google/uuid"
)

// Organization represents a tenant boundary in the system.
// Each organization can have multiple core users and groups, and may claim
// OAuth email domains that auto-associate incoming users during login.
type Organization struct {
	OrganizationID uuid.UUID
	Name           string   // Unique per deployment
	OAuthDomains   []string // Email domains that resolve to this org at login
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ClaimsDomain returns true if the organization claims the given email domain.
func (o *Organization) ClaimsDomain(domain string) bool {
	for _, d := range o.OAuthDomains {
		if d == domain {
			return true
		}
	}
	return false
}
