package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/meshstack/coregate/internal/models"
	"github.com/meshstack/coregate/internal/store"
)

// OrganizationStore implements store.OrganizationStore using in-memory storage.
// This implementation is for development and testing - data is lost on restart.
type OrganizationStore struct {
	mu sync.RWMutex

	organizations map[uuid.UUID]*models.Organization // organization_id -> Organization
	byName        map[string]uuid.UUID               // name -> organization_id
}

// NewOrganizationStore creates a new in-memory organization store.
func NewOrganizationStore() *OrganizationStore {
	return &OrganizationStore{
		organizations: make(map[uuid.UUID]*models.Organization),
		byName:        make(map[string]uuid.UUID),
	}
}

// Create creates a new organization in memory.
func (s *OrganizationStore) Create(ctx context.Context, org *models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.organizations[org.OrganizationID]; exists {
		return store.ErrOrganizationAlreadyExists
	}
	if _, exists := s.byName[org.Name]; exists {
		return store.ErrOrganizationAlreadyExists
	}

	// Clone to avoid external modifications
	clone := *org
	s.organizations[org.OrganizationID] = &clone
	s.byName[org.Name] = org.OrganizationID

	return nil
}

// Get retrieves an organization by ID.
func (s *OrganizationStore) Get(ctx context.Context, organizationID uuid.UUID) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	org, exists := s.organizations[organizationID]
	if !exists {
		return nil, store.ErrOrganizationNotFound
	}

	clone := *org
	return &clone, nil
}

// GetByName retrieves an organization by its unique name.
func (s *OrganizationStore) GetByName(ctx context.Context, name string) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.byName[name]
	if !exists {
		return nil, store.ErrOrganizationNotFound
	}

	clone := *s.organizations[id]
	return &clone, nil
}

// GetOrCreateByName resolves an organization by name, creating it when
// missing. The name index acts as the unique constraint, so concurrent
// callers converge on a single organization.
func (s *OrganizationStore) GetOrCreateByName(ctx context.Context, name string) (*models.Organization, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, exists := s.byName[name]; exists {
		clone := *s.organizations[id]
		return &clone, false, nil
	}

	now := time.Now()
	org := &models.Organization{
		OrganizationID: uuid.New(),
		Name:           name,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.organizations[org.OrganizationID] = org
	s.byName[name] = org.OrganizationID

	clone := *org
	return &clone, true, nil
}

// Update updates an existing organization.
func (s *OrganizationStore) Update(ctx context.Context, org *models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.organizations[org.OrganizationID]
	if !exists {
		return store.ErrOrganizationNotFound
	}

	if existing.Name != org.Name {
		delete(s.byName, existing.Name)
		s.byName[org.Name] = org.OrganizationID
	}

	org.UpdatedAt = time.Now()

	clone := *org
	s.organizations[org.OrganizationID] = &clone

	return nil
}

// ListByOAuthDomain returns all organizations claiming the given OAuth domain.
func (s *OrganizationStore) ListByOAuthDomain(ctx context.Context, domain string) ([]*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Organization
	for _, org := range s.organizations {
		if org.ClaimsDomain(domain) {
			clone := *org
			result = append(result, &clone)
		}
	}

	return result, nil
}

// List returns all organizations.
func (s *OrganizationStore) List(ctx context.Context) ([]*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.Organization, 0, len(s.organizations))
	for _, org := range s.organizations {
		clone := *org
		result = append(result, &clone)
	}

	return result, nil
}
