package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/meshstack/coregate/internal/models"
	"github.com/meshstack/coregate/internal/store"
)

// CoreUserStore implements store.CoreUserStore using in-memory storage.
// This implementation is for development and testing - data is lost on restart.
type CoreUserStore struct {
	mu sync.RWMutex

	users      map[uuid.UUID]*models.CoreUser   // core_user_id -> CoreUser
	byUsername map[string]uuid.UUID             // username -> core_user_id
	byEmail    map[string]uuid.UUID             // email -> core_user_id
	groups     map[uuid.UUID]map[uuid.UUID]bool // core_user_id -> set of group_ids

	groupStore *CoreGroupStore
}

// NewCoreUserStore creates a new in-memory core user store. Group records
// for ListGroups are resolved through groupStore under its own lock; a nil
// groupStore gets a fresh empty one.
func NewCoreUserStore(groupStore *CoreGroupStore) *CoreUserStore {
	if groupStore == nil {
		groupStore = NewCoreGroupStore()
	}
	return &CoreUserStore{
		users:      make(map[uuid.UUID]*models.CoreUser),
		byUsername: make(map[string]uuid.UUID),
		byEmail:    make(map[string]uuid.UUID),
		groups:     make(map[uuid.UUID]map[uuid.UUID]bool),
		groupStore: groupStore,
	}
}

// Create creates a new core user in memory.
func (s *CoreUserStore) Create(ctx context.Context, user *models.CoreUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[user.CoreUserID]; exists {
		return store.ErrCoreUserAlreadyExists
	}
	if _, exists := s.byUsername[user.Username]; exists {
		return store.ErrCoreUserAlreadyExists
	}
	if _, exists := s.byEmail[user.Email]; exists {
		return store.ErrCoreUserAlreadyExists
	}

	// Clone to avoid external modifications
	clone := *user
	s.users[user.CoreUserID] = &clone
	s.byUsername[user.Username] = user.CoreUserID
	s.byEmail[user.Email] = user.CoreUserID

	return nil
}

// Get retrieves a core user by ID.
func (s *CoreUserStore) Get(ctx context.Context, coreUserID uuid.UUID) (*models.CoreUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.users[coreUserID]
	if !exists {
		return nil, store.ErrCoreUserNotFound
	}

	clone := *user
	return &clone, nil
}

// GetByUsername retrieves a core user by username.
func (s *CoreUserStore) GetByUsername(ctx context.Context, username string) (*models.CoreUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.byUsername[username]
	if !exists {
		return nil, store.ErrCoreUserNotFound
	}

	clone := *s.users[id]
	return &clone, nil
}

// GetByEmail retrieves a core user by email.
func (s *CoreUserStore) GetByEmail(ctx context.Context, email string) (*models.CoreUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.byEmail[email]
	if !exists {
		return nil, store.ErrCoreUserNotFound
	}

	clone := *s.users[id]
	return &clone, nil
}

// Update updates an existing core user.
func (s *CoreUserStore) Update(ctx context.Context, user *models.CoreUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.users[user.CoreUserID]
	if !exists {
		return store.ErrCoreUserNotFound
	}

	// Keep lookup indexes consistent when username or email changed
	if existing.Username != user.Username {
		delete(s.byUsername, existing.Username)
		s.byUsername[user.Username] = user.CoreUserID
	}
	if existing.Email != user.Email {
		delete(s.byEmail, existing.Email)
		s.byEmail[user.Email] = user.CoreUserID
	}

	user.UpdatedAt = time.Now()

	clone := *user
	s.users[user.CoreUserID] = &clone

	return nil
}

// ListByOrganization returns all core users in an organization.
func (s *CoreUserStore) ListByOrganization(ctx context.Context, organizationID uuid.UUID) ([]*models.CoreUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.CoreUser
	for _, user := range s.users {
		if user.OrganizationID == organizationID {
			clone := *user
			result = append(result, &clone)
		}
	}

	return result, nil
}

// List returns all core users.
func (s *CoreUserStore) List(ctx context.Context) ([]*models.CoreUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.CoreUser, 0, len(s.users))
	for _, user := range s.users {
		clone := *user
		result = append(result, &clone)
	}

	return result, nil
}

// FilterRegisteredEmails returns the subset of emails that already have an account.
func (s *CoreUserStore) FilterRegisteredEmails(ctx context.Context, emails []string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var registered []string
	for _, email := range emails {
		if _, exists := s.byEmail[email]; exists {
			registered = append(registered, email)
		}
	}

	return registered, nil
}

// AddToGroup adds a core user to a core group.
func (s *CoreUserStore) AddToGroup(ctx context.Context, coreUserID, groupID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[coreUserID]; !exists {
		return store.ErrCoreUserNotFound
	}

	if s.groups[coreUserID] == nil {
		s.groups[coreUserID] = make(map[uuid.UUID]bool)
	}
	s.groups[coreUserID][groupID] = true

	return nil
}

// ListGroups returns the core groups a user is a member of.
func (s *CoreUserStore) ListGroups(ctx context.Context, coreUserID uuid.UUID) ([]*models.CoreGroup, error) {
	s.mu.RLock()

	if _, exists := s.users[coreUserID]; !exists {
		s.mu.RUnlock()
		return nil, store.ErrCoreUserNotFound
	}

	groupIDs := make([]uuid.UUID, 0, len(s.groups[coreUserID]))
	for groupID := range s.groups[coreUserID] {
		groupIDs = append(groupIDs, groupID)
	}

	// Resolve group records outside our lock; the group store locks itself.
	s.mu.RUnlock()

	var result []*models.CoreGroup
	for _, groupID := range groupIDs {
		group, err := s.groupStore.Get(ctx, groupID)
		if err != nil {
			continue
		}
		result = append(result, group)
	}

	return result, nil
}
