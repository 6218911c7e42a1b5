package authz

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/stationhq/station/internal/identity"
	"github.com/stationhq/station/pkg/errors"
	"github.com/stationhq/station/pkg/models"
)

// AuditLogger records authorization denials. Best-effort.
type AuditLogger interface {
	Log(ctx context.Context, event *models.AuditEvent) error
}

// NewService creates a new authorization service.
func NewService(repo Repository, directory identity.Directory, audit AuditLogger) Service {
	s := &serviceImpl{repo: repo, directory: directory, audit: audit}
	return s
}

type serviceImpl struct {
	repo      Repository
	directory identity.Directory
	audit     AuditLogger
	ready     atomic.Bool
}

// SetReady marks the station as initialized. Until then every resource but
// the bootstrap read of system state is denied.
func (s *serviceImpl) SetReady() {
	s.ready.Store(true)
}

func (s *serviceImpl) Authorize(ctx context.Context, callerIdentity string, resource models.Resource) error {
	if err := s.authorize(ctx, callerIdentity, resource); err != nil {
		s.logDenied(ctx, callerIdentity, resource)
		return err
	}
	return nil
}

func (s *serviceImpl) authorize(ctx context.Context, callerIdentity string, resource models.Resource) error {
	if !s.ready.Load() {
		if resource.Kind == models.ResourceSystem && resource.Action == models.ActionRead {
			return nil
		}
		return fmt.Errorf("resource %s: %w", resource.Key(), errors.ErrNotInitialized)
	}

	permission, err := s.lookup(ctx, resource)
	if err != nil {
		if stderrors.Is(err, errors.ErrNotFound) {
			// No permission record: fail closed.
			return fmt.Errorf("no permission for resource %s: %w", resource.Key(), errors.ErrUnauthorized)
		}
		return fmt.Errorf("lookup permission: %w", err)
	}

	switch permission.AuthScope {
	case models.AuthScopePublic:
		return nil

	case models.AuthScopeAuthenticated:
		if callerIdentity == "" || callerIdentity == identity.Anonymous {
			return fmt.Errorf("resource %s requires authentication: %w", resource.Key(), errors.ErrUnauthorized)
		}
		return nil

	case models.AuthScopeRestricted:
		return s.authorizeRestricted(ctx, callerIdentity, resource, permission)

	default:
		return fmt.Errorf("resource %s has unknown auth scope %q: %w", resource.Key(), permission.AuthScope, errors.ErrUnauthorized)
	}
}

// lookup finds the permission record for the exact resource, falling back to
// the any-instance record of the same kind and action.
func (s *serviceImpl) lookup(ctx context.Context, resource models.Resource) (*models.Permission, error) {
	permission, err := s.repo.GetByResource(ctx, resource)
	if err == nil {
		return permission, nil
	}
	if !stderrors.Is(err, errors.ErrNotFound) {
		return nil, err
	}
	if resource.ID == "" || resource.ID == models.ResourceIDAny {
		return nil, err
	}
	return s.repo.GetByResource(ctx, resource.AnyID())
}

func (s *serviceImpl) authorizeRestricted(ctx context.Context, callerIdentity string, resource models.Resource, permission *models.Permission) error {
	if callerIdentity == "" || callerIdentity == identity.Anonymous {
		return fmt.Errorf("resource %s is restricted: %w", resource.Key(), errors.ErrUnauthorized)
	}

	user, err := s.directory.UserByIdentity(ctx, callerIdentity)
	if err != nil || user == nil || user.Status != models.UserStatusActive {
		return fmt.Errorf("resource %s is restricted: %w", resource.Key(), errors.ErrUnauthorized)
	}

	for _, allowed := range permission.Users {
		if allowed == user.ID {
			return nil
		}
	}
	for _, allowedGroup := range permission.Groups {
		for _, group := range user.Groups {
			if group == allowedGroup {
				return nil
			}
		}
	}
	return fmt.Errorf("resource %s is restricted: %w", resource.Key(), errors.ErrUnauthorized)
}

func (s *serviceImpl) EditPermission(ctx context.Context, permission *models.Permission) error {
	if err := permission.Validate(); err != nil {
		return errors.NewValidationError("permission", err.Error())
	}
	if err := s.repo.Upsert(ctx, permission); err != nil {
		return fmt.Errorf("upsert permission: %w", err)
	}
	if s.audit != nil {
		_ = s.audit.Log(ctx, &models.AuditEvent{
			ID:        uuid.New().String(),
			Timestamp: time.Now().UTC(),
			EventType: models.AuditEventTypePermissionChange,
			Actor:     "authz-service",
			Result:    models.AuditEventResultSuccess,
			Metadata:  map[string]any{"resource": permission.Resource.Key(), "auth_scope": string(permission.AuthScope)},
		})
	}
	return nil
}

func (s *serviceImpl) GetPermission(ctx context.Context, resource models.Resource) (*models.Permission, error) {
	return s.repo.GetByResource(ctx, resource)
}

func (s *serviceImpl) ListPermissions(ctx context.Context) ([]*models.Permission, error) {
	return s.repo.List(ctx)
}

func (s *serviceImpl) logDenied(ctx context.Context, callerIdentity string, resource models.Resource) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Log(ctx, &models.AuditEvent{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		EventType: models.AuditEventTypeAuthzDenied,
		Actor:     callerIdentity,
		Result:    models.AuditEventResultDenied,
		Metadata:  map[string]any{"resource": resource.Key()},
	})
}
