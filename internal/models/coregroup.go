package models

import (
	"time"

	"github.com/google/uuid"
)

// Permission bits for core groups.
const (
	PermissionView = 1 << iota
	PermissionAdd
	PermissionEdit
	PermissionDelete

	// PermissionsOrgAdmin is the full permission set granted to the
	// organization admin group.
	PermissionsOrgAdmin = PermissionView | PermissionAdd | PermissionEdit | PermissionDelete
)

// OrgAdminGroupName is the name used when the org-level admin group is
// created on demand.
const OrgAdminGroupName = "Org Admin"

// CoreGroup is a named permission bundle scoped to an organization.
// At most one org-level group exists per organization.
type CoreGroup struct {
	GroupID        uuid.UUID
	OrganizationID uuid.UUID
	Name           string
	IsOrgLevel     bool
	Permissions    int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsOrgAdmin returns true if the group grants org-level admin permissions.
func (g *CoreGroup) IsOrgAdmin() bool {
	return g.IsOrgLevel && g.Permissions&PermissionsOrgAdmin == PermissionsOrgAdmin
}
