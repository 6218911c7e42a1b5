package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/stationhq/station/pkg/errors"
	"github.com/stationhq/station/pkg/models"
)

// UserRepository is an in-memory user repository.
type UserRepository struct {
	mu    sync.RWMutex
	users map[string]*models.User
}

// NewUserRepository creates a new in-memory user repository.
func NewUserRepository() *UserRepository {
	return &UserRepository{users: make(map[string]*models.User)}
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	copied := *user
	r.users[user.ID] = &copied
	return nil
}

func (r *UserRepository) Get(ctx context.Context, id string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[id]
	if !ok {
		return nil, errors.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (r *UserRepository) GetByIdentity(ctx context.Context, identity string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, user := range r.users {
		for _, id := range user.Identities {
			if id == identity {
				copied := *user
				return &copied, nil
			}
		}
	}
	return nil, errors.ErrNotFound
}

func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return errors.ErrNotFound
	}
	copied := *user
	r.users[user.ID] = &copied
	return nil
}

func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*models.User, 0, len(r.users))
	for _, user := range r.users {
		copied := *user
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	if offset > 0 {
		if offset >= len(result) {
			return nil, nil
		}
		result = result[offset:]
	}
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *UserRepository) ListByGroup(ctx context.Context, groupID string) ([]*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*models.User
	for _, user := range r.users {
		for _, g := range user.Groups {
			if g == groupID {
				copied := *user
				result = append(result, &copied)
				break
			}
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// GroupRepository is an in-memory user group repository.
type GroupRepository struct {
	mu     sync.RWMutex
	groups map[string]*models.UserGroup
}

// NewGroupRepository creates a new in-memory group repository.
func NewGroupRepository() *GroupRepository {
	return &GroupRepository{groups: make(map[string]*models.UserGroup)}
}

func (r *GroupRepository) Create(ctx context.Context, group *models.UserGroup) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	copied := *group
	r.groups[group.ID] = &copied
	return nil
}

func (r *GroupRepository) Get(ctx context.Context, id string) (*models.UserGroup, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	group, ok := r.groups[id]
	if !ok {
		return nil, errors.ErrNotFound
	}
	copied := *group
	return &copied, nil
}

func (r *GroupRepository) Update(ctx context.Context, group *models.UserGroup) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.groups[group.ID]; !ok {
		return errors.ErrNotFound
	}
	copied := *group
	r.groups[group.ID] = &copied
	return nil
}

func (r *GroupRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.groups[id]; !ok {
		return errors.ErrNotFound
	}
	delete(r.groups, id)
	return nil
}

func (r *GroupRepository) List(ctx context.Context, limit, offset int) ([]*models.UserGroup, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*models.UserGroup, 0, len(r.groups))
	for _, group := range r.groups {
		copied := *group
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	if offset > 0 {
		if offset >= len(result) {
			return nil, nil
		}
		result = result[offset:]
	}
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
