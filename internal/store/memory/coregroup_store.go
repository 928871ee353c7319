package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/meshstack/coregate/internal/models"
	"github.com/meshstack/coregate/internal/store"
)

// CoreGroupStore implements store.CoreGroupStore using in-memory storage.
type CoreGroupStore struct {
	mu sync.Mutex

	groups map[uuid.UUID]*models.CoreGroup // group_id -> CoreGroup
}

// NewCoreGroupStore creates a new in-memory core group store.
func NewCoreGroupStore() *CoreGroupStore {
	return &CoreGroupStore{
		groups: make(map[uuid.UUID]*models.CoreGroup),
	}
}

// Create creates a new core group.
func (s *CoreGroupStore) Create(ctx context.Context, group *models.CoreGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.groups[group.GroupID]; exists {
		return store.ErrCoreGroupAlreadyExists
	}

	// One org-level group per organization
	if group.IsOrgLevel {
		for _, g := range s.groups {
			if g.OrganizationID == group.OrganizationID && g.IsOrgLevel {
				return store.ErrCoreGroupAlreadyExists
			}
		}
	}

	clone := *group
	s.groups[group.GroupID] = &clone

	return nil
}

// Get retrieves a core group by ID.
func (s *CoreGroupStore) Get(ctx context.Context, groupID uuid.UUID) (*models.CoreGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	group, exists := s.groups[groupID]
	if !exists {
		return nil, store.ErrCoreGroupNotFound
	}

	clone := *group
	return &clone, nil
}

// GetOrCreateOrgAdmin resolves the org-level admin group for an organization,
// creating it when missing.
func (s *CoreGroupStore) GetOrCreateOrgAdmin(ctx context.Context, organizationID uuid.UUID) (*models.CoreGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, g := range s.groups {
		if g.OrganizationID == organizationID && g.IsOrgLevel {
			clone := *g
			return &clone, nil
		}
	}

	now := time.Now()
	group := &models.CoreGroup{
		GroupID:        uuid.New(),
		OrganizationID: organizationID,
		Name:           models.OrgAdminGroupName,
		IsOrgLevel:     true,
		Permissions:    models.PermissionsOrgAdmin,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.groups[group.GroupID] = group

	clone := *group
	return &clone, nil
}

// ListByOrganization returns all core groups in an organization.
func (s *CoreGroupStore) ListByOrganization(ctx context.Context, organizationID uuid.UUID) ([]*models.CoreGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*models.CoreGroup
	for _, g := range s.groups {
		if g.OrganizationID == organizationID {
			clone := *g
			result = append(result, &clone)
		}
	}

	return result, nil
}
