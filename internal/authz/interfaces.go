// Package authz implements the resource-centric permission engine gating
// every station operation.
package authz

import (
	"context"

	"github.com/stationhq/station/pkg/models"
)

// Repository defines permission persistence operations. Permissions are
// keyed by their canonical resource key.
type Repository interface {
	// GetByResource retrieves the permission record for an exact resource.
	GetByResource(ctx context.Context, resource models.Resource) (*models.Permission, error)
	// Upsert creates or replaces the permission record for a resource.
	Upsert(ctx context.Context, permission *models.Permission) error
	// Delete removes the permission record for a resource.
	Delete(ctx context.Context, resource models.Resource) error
	// List returns all permission records.
	List(ctx context.Context) ([]*models.Permission, error)
}

// Engine answers whether an identity may perform an action on a resource,
// independent of the request workflow. Absence of a permission record denies.
type Engine interface {
	// Authorize returns nil when the caller identity may act on the
	// resource and ErrUnauthorized otherwise. Denial is never conflated
	// with ErrNotFound.
	Authorize(ctx context.Context, callerIdentity string, resource models.Resource) error
}

// Service handles permission administration.
type Service interface {
	Engine
	// SetReady marks the station as initialized; until then every resource
	// except the bootstrap read of system state is denied.
	SetReady()
	// EditPermission creates or replaces a permission record.
	EditPermission(ctx context.Context, permission *models.Permission) error
	// GetPermission retrieves the permission record for a resource.
	GetPermission(ctx context.Context, resource models.Resource) (*models.Permission, error)
	// ListPermissions returns all permission records.
	ListPermissions(ctx context.Context) ([]*models.Permission, error)
}
