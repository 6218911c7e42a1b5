// Package identity manages station users and groups and resolves caller
// identities to them.
package identity

import (
	"context"

	"github.com/stationhq/station/pkg/models"
)

// Anonymous is the caller identity of an unauthenticated principal.
const Anonymous = "anonymous"

// Repository defines user persistence operations.
type Repository interface {
	// Create persists a new user.
	Create(ctx context.Context, user *models.User) error
	// Get retrieves a user by ID.
	Get(ctx context.Context, id string) (*models.User, error)
	// GetByIdentity retrieves the user holding the given caller identity.
	GetByIdentity(ctx context.Context, identity string) (*models.User, error)
	// Update updates an existing user.
	Update(ctx context.Context, user *models.User) error
	// List returns all users.
	List(ctx context.Context, limit, offset int) ([]*models.User, error)
	// ListByGroup returns all users belonging to a group.
	ListByGroup(ctx context.Context, groupID string) ([]*models.User, error)
}

// GroupRepository defines user group persistence operations.
type GroupRepository interface {
	// Create persists a new group.
	Create(ctx context.Context, group *models.UserGroup) error
	// Get retrieves a group by ID.
	Get(ctx context.Context, id string) (*models.UserGroup, error)
	// Update updates an existing group.
	Update(ctx context.Context, group *models.UserGroup) error
	// Delete removes a group.
	Delete(ctx context.Context, id string) error
	// List returns all groups.
	List(ctx context.Context, limit, offset int) ([]*models.UserGroup, error)
}

// Directory answers membership questions for approver resolution and
// permission checks. Implementations read the live store; membership changes
// are reflected on the next call.
type Directory interface {
	// MembersOf returns the IDs of all active users in the group.
	MembersOf(ctx context.Context, groupID string) ([]string, error)
	// GroupsOf returns the group IDs the user belongs to.
	GroupsOf(ctx context.Context, userID string) ([]string, error)
	// UserByIdentity resolves a caller identity to its user record.
	UserByIdentity(ctx context.Context, identity string) (*models.User, error)
	// ActiveUserIDs returns the IDs of all active users.
	ActiveUserIDs(ctx context.Context) ([]string, error)
}

// CreateUserRequest represents a user creation request.
type CreateUserRequest struct {
	Name       string
	Identities []string
	Groups     []string
	Status     models.UserStatus
}

// Service handles user and group management.
type Service interface {
	Directory
	// CreateUser creates a new user.
	CreateUser(ctx context.Context, req CreateUserRequest) (*models.User, error)
	// EditUser updates an existing user.
	EditUser(ctx context.Context, user *models.User) (*models.User, error)
	// GetUser retrieves a user by ID.
	GetUser(ctx context.Context, id string) (*models.User, error)
	// ListUsers returns all users.
	ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error)
	// CreateGroup creates a new group.
	CreateGroup(ctx context.Context, name string) (*models.UserGroup, error)
	// EditGroup renames a group.
	EditGroup(ctx context.Context, id, name string) (*models.UserGroup, error)
	// RemoveGroup removes a group.
	RemoveGroup(ctx context.Context, id string) error
	// ListGroups returns all groups.
	ListGroups(ctx context.Context, limit, offset int) ([]*models.UserGroup, error)
}
