package inmemory

import (
	"context"
	"sync"

	"github.com/stationhq/station/pkg/errors"
	"github.com/stationhq/station/pkg/models"
)

// PermissionRepository is an in-memory permission repository keyed by the
// canonical resource key.
type PermissionRepository struct {
	mu          sync.RWMutex
	permissions map[string]*models.Permission
}

// NewPermissionRepository creates a new in-memory permission repository.
func NewPermissionRepository() *PermissionRepository {
	return &PermissionRepository{permissions: make(map[string]*models.Permission)}
}

func (r *PermissionRepository) GetByResource(ctx context.Context, resource models.Resource) (*models.Permission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	permission, ok := r.permissions[resource.Key()]
	if !ok {
		return nil, errors.ErrNotFound
	}
	copied := *permission
	return &copied, nil
}

func (r *PermissionRepository) Upsert(ctx context.Context, permission *models.Permission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *permission
	r.permissions[permission.Resource.Key()] = &copied
	return nil
}

func (r *PermissionRepository) Delete(ctx context.Context, resource models.Resource) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.permissions[resource.Key()]; !ok {
		return errors.ErrNotFound
	}
	delete(r.permissions, resource.Key())
	return nil
}

func (r *PermissionRepository) List(ctx context.Context) ([]*models.Permission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*models.Permission, 0, len(r.permissions))
	for _, permission := range r.permissions {
		copied := *permission
		result = append(result, &copied)
	}
	return result, nil
}
