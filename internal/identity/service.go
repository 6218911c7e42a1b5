package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stationhq/station/pkg/errors"
	"github.com/stationhq/station/pkg/models"
)

// NewService creates a new identity service.
func NewService(users Repository, groups GroupRepository) Service {
	return &serviceImpl{users: users, groups: groups}
}

type serviceImpl struct {
	users  Repository
	groups GroupRepository
}

func (s *serviceImpl) CreateUser(ctx context.Context, req CreateUserRequest) (*models.User, error) {
	if req.Name == "" {
		return nil, errors.NewValidationError("name", "user name is required")
	}
	if len(req.Identities) == 0 {
		return nil, errors.NewValidationError("identities", "at least one identity required")
	}
	for _, identity := range req.Identities {
		if existing, err := s.users.GetByIdentity(ctx, identity); err == nil && existing != nil {
			return nil, fmt.Errorf("identity %s already registered: %w", identity, errors.ErrConflict)
		}
	}
	for _, groupID := range req.Groups {
		if _, err := s.groups.Get(ctx, groupID); err != nil {
			return nil, fmt.Errorf("group %s: %w", groupID, err)
		}
	}

	status := req.Status
	if status == "" {
		status = models.UserStatusActive
	}

	now := time.Now()
	user := &models.User{
		ID:         uuid.New().String(),
		Name:       req.Name,
		Identities: req.Identities,
		Groups:     req.Groups,
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func (s *serviceImpl) EditUser(ctx context.Context, user *models.User) (*models.User, error) {
	existing, err := s.users.Get(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user.Name != "" {
		existing.Name = user.Name
	}
	if len(user.Identities) > 0 {
		existing.Identities = user.Identities
	}
	if user.Groups != nil {
		for _, groupID := range user.Groups {
			if _, err := s.groups.Get(ctx, groupID); err != nil {
				return nil, fmt.Errorf("group %s: %w", groupID, err)
			}
		}
		existing.Groups = user.Groups
	}
	if user.Status != "" {
		existing.Status = user.Status
	}
	existing.UpdatedAt = time.Now()

	if err := s.users.Update(ctx, existing); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return existing, nil
}

func (s *serviceImpl) GetUser(ctx context.Context, id string) (*models.User, error) {
	return s.users.Get(ctx, id)
}

func (s *serviceImpl) ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error) {
	return s.users.List(ctx, limit, offset)
}

func (s *serviceImpl) CreateGroup(ctx context.Context, name string) (*models.UserGroup, error) {
	if name == "" {
		return nil, errors.NewValidationError("name", "group name is required")
	}
	group := &models.UserGroup{ID: uuid.New().String(), Name: name}
	if err := s.groups.Create(ctx, group); err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}
	return group, nil
}

func (s *serviceImpl) EditGroup(ctx context.Context, id, name string) (*models.UserGroup, error) {
	if name == "" {
		return nil, errors.NewValidationError("name", "group name is required")
	}
	group, err := s.groups.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	group.Name = name
	if err := s.groups.Update(ctx, group); err != nil {
		return nil, fmt.Errorf("update group: %w", err)
	}
	return group, nil
}

func (s *serviceImpl) ListGroups(ctx context.Context, limit, offset int) ([]*models.UserGroup, error) {
	return s.groups.List(ctx, limit, offset)
}

func (s *serviceImpl) RemoveGroup(ctx context.Context, id string) error {
	members, err := s.users.ListByGroup(ctx, id)
	if err != nil {
		return fmt.Errorf("list group members: %w", err)
	}
	if len(members) > 0 {
		return fmt.Errorf("group has %d members: %w", len(members), errors.ErrConflict)
	}
	return s.groups.Delete(ctx, id)
}

func (s *serviceImpl) MembersOf(ctx context.Context, groupID string) ([]string, error) {
	users, err := s.users.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("list group members: %w", err)
	}
	ids := make([]string, 0, len(users))
	for _, user := range users {
		if user.Status == models.UserStatusActive {
			ids = append(ids, user.ID)
		}
	}
	return ids, nil
}

func (s *serviceImpl) GroupsOf(ctx context.Context, userID string) ([]string, error) {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user.Groups, nil
}

func (s *serviceImpl) UserByIdentity(ctx context.Context, identity string) (*models.User, error) {
	return s.users.GetByIdentity(ctx, identity)
}

func (s *serviceImpl) ActiveUserIDs(ctx context.Context) ([]string, error) {
	users, err := s.users.List(ctx, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	ids := make([]string, 0, len(users))
	for _, user := range users {
		if user.Status == models.UserStatusActive {
			ids = append(ids, user.ID)
		}
	}
	return ids, nil
}
