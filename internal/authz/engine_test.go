package authz_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stationhq/station/internal/authz"
	"github.com/stationhq/station/internal/identity"
	"github.com/stationhq/station/pkg/errors"
	"github.com/stationhq/station/pkg/models"
	"github.com/stationhq/station/tests/testutil"
	"github.com/stationhq/station/tests/testutil/inmemory"
)

type auditLogger struct {
	repo *inmemory.AuditRepository
}

func (l auditLogger) Log(ctx context.Context, event *models.AuditEvent) error {
	return l.repo.Create(ctx, event)
}

// newEngine wires an authorization service over in-memory stores populated
// with the given users. The engine is marked ready unless tests reset it.
func newEngine(t *testing.T, users ...*models.User) (authz.Service, *inmemory.AuditRepository) {
	t.Helper()
	ctx := testutil.TestContext(t)
	userRepo := inmemory.NewUserRepository()
	for _, user := range users {
		require.NoError(t, userRepo.Create(ctx, user))
	}
	directory := identity.NewService(userRepo, inmemory.NewGroupRepository())
	auditRepo := inmemory.NewAuditRepository()
	svc := authz.NewService(inmemory.NewPermissionRepository(), directory, auditLogger{auditRepo})
	return svc, auditRepo
}

func TestBootstrapGate(t *testing.T) {
	ctx := testutil.TestContext(t)
	svc, _ := newEngine(t)

	t.Run("system read is allowed before initialization", func(t *testing.T) {
		err := svc.Authorize(ctx, identity.Anonymous, models.Resource{
			Kind:   models.ResourceSystem,
			Action: models.ActionRead,
		})
		assert.NoError(t, err)
	})

	t.Run("everything else is denied before initialization", func(t *testing.T) {
		err := svc.Authorize(ctx, testutil.Identity("alice"), models.Resource{
			Kind:   models.ResourceRequest,
			Action: models.ActionCreate,
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrNotInitialized)
	})
}

func TestAuthorize(t *testing.T) {
	ctx := testutil.TestContext(t)

	t.Run("absence of a permission record denies", func(t *testing.T) {
		svc, auditRepo := newEngine(t, testutil.TestUser("alice"))
		svc.SetReady()

		err := svc.Authorize(ctx, testutil.Identity("alice"), models.Resource{
			Kind:   models.ResourceRequest,
			Action: models.ActionCreate,
		})

		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrUnauthorized)

		events := auditRepo.Events()
		require.Len(t, events, 1)
		assert.Equal(t, models.AuditEventTypeAuthzDenied, events[0].EventType)
		assert.Equal(t, testutil.Identity("alice"), events[0].Actor)
		assert.Equal(t, models.AuditEventResultDenied, events[0].Result)
	})

	t.Run("public resources admit anonymous callers", func(t *testing.T) {
		svc, _ := newEngine(t)
		svc.SetReady()
		require.NoError(t, svc.EditPermission(ctx, &models.Permission{
			Resource:  models.Resource{Kind: models.ResourceSystem, Action: models.ActionRead},
			AuthScope: models.AuthScopePublic,
		}))

		err := svc.Authorize(ctx, identity.Anonymous, models.Resource{
			Kind:   models.ResourceSystem,
			Action: models.ActionRead,
		})
		assert.NoError(t, err)
	})

	t.Run("authenticated resources reject anonymous callers", func(t *testing.T) {
		svc, _ := newEngine(t, testutil.TestUser("alice"))
		svc.SetReady()
		require.NoError(t, svc.EditPermission(ctx, &models.Permission{
			Resource:  models.Resource{Kind: models.ResourceRequest, Action: models.ActionList},
			AuthScope: models.AuthScopeAuthenticated,
		}))
		resource := models.Resource{Kind: models.ResourceRequest, Action: models.ActionList}

		assert.NoError(t, svc.Authorize(ctx, testutil.Identity("alice"), resource))
		assert.ErrorIs(t, svc.Authorize(ctx, identity.Anonymous, resource), errors.ErrUnauthorized)
		assert.ErrorIs(t, svc.Authorize(ctx, "", resource), errors.ErrUnauthorized)
	})

	t.Run("restricted resources admit listed users", func(t *testing.T) {
		svc, _ := newEngine(t, testutil.TestUser("alice"), testutil.TestUser("bob"))
		svc.SetReady()
		require.NoError(t, svc.EditPermission(ctx, &models.Permission{
			Resource:  models.Resource{Kind: models.ResourceRequestPolicy, Action: models.ActionCreate},
			AuthScope: models.AuthScopeRestricted,
			Users:     []string{"alice"},
		}))
		resource := models.Resource{Kind: models.ResourceRequestPolicy, Action: models.ActionCreate}

		assert.NoError(t, svc.Authorize(ctx, testutil.Identity("alice"), resource))
		assert.ErrorIs(t, svc.Authorize(ctx, testutil.Identity("bob"), resource), errors.ErrUnauthorized)
	})

	t.Run("restricted resources admit group members", func(t *testing.T) {
		svc, _ := newEngine(t, testutil.TestUser("alice", "admins"), testutil.TestUser("bob"))
		svc.SetReady()
		require.NoError(t, svc.EditPermission(ctx, &models.Permission{
			Resource:  models.Resource{Kind: models.ResourcePermission, Action: models.ActionUpdate},
			AuthScope: models.AuthScopeRestricted,
			Groups:    []string{"admins"},
		}))
		resource := models.Resource{Kind: models.ResourcePermission, Action: models.ActionUpdate}

		assert.NoError(t, svc.Authorize(ctx, testutil.Identity("alice"), resource))
		assert.ErrorIs(t, svc.Authorize(ctx, testutil.Identity("bob"), resource), errors.ErrUnauthorized)
	})

	t.Run("restricted resources reject inactive users", func(t *testing.T) {
		inactive := testutil.TestUser("alice")
		inactive.Status = models.UserStatusInactive
		svc, _ := newEngine(t, inactive)
		svc.SetReady()
		require.NoError(t, svc.EditPermission(ctx, &models.Permission{
			Resource:  models.Resource{Kind: models.ResourceRequest, Action: models.ActionCreate},
			AuthScope: models.AuthScopeRestricted,
			Users:     []string{"alice"},
		}))

		err := svc.Authorize(ctx, testutil.Identity("alice"), models.Resource{
			Kind:   models.ResourceRequest,
			Action: models.ActionCreate,
		})
		assert.ErrorIs(t, err, errors.ErrUnauthorized)
	})

	t.Run("restricted resources reject unknown identities", func(t *testing.T) {
		svc, _ := newEngine(t)
		svc.SetReady()
		require.NoError(t, svc.EditPermission(ctx, &models.Permission{
			Resource:  models.Resource{Kind: models.ResourceRequest, Action: models.ActionCreate},
			AuthScope: models.AuthScopeRestricted,
			Users:     []string{"alice"},
		}))

		err := svc.Authorize(ctx, "identity-ghost", models.Resource{
			Kind:   models.ResourceRequest,
			Action: models.ActionCreate,
		})
		assert.ErrorIs(t, err, errors.ErrUnauthorized)
	})
}

func TestPermissionLookupFallback(t *testing.T) {
	ctx := testutil.TestContext(t)

	t.Run("an instance permission overrides the any-instance record", func(t *testing.T) {
		svc, _ := newEngine(t, testutil.TestUser("alice"), testutil.TestUser("bob"))
		svc.SetReady()
		require.NoError(t, svc.EditPermission(ctx, &models.Permission{
			Resource:  models.Resource{Kind: models.ResourceRequest, Action: models.ActionRead, ID: models.ResourceIDAny},
			AuthScope: models.AuthScopeAuthenticated,
		}))
		require.NoError(t, svc.EditPermission(ctx, &models.Permission{
			Resource:  models.Resource{Kind: models.ResourceRequest, Action: models.ActionRead, ID: "req-1"},
			AuthScope: models.AuthScopeRestricted,
			Users:     []string{"alice"},
		}))

		// req-1 has its own record; only alice passes.
		specific := models.Resource{Kind: models.ResourceRequest, Action: models.ActionRead, ID: "req-1"}
		assert.NoError(t, svc.Authorize(ctx, testutil.Identity("alice"), specific))
		assert.ErrorIs(t, svc.Authorize(ctx, testutil.Identity("bob"), specific), errors.ErrUnauthorized)

		// req-2 falls back to the any-instance record.
		other := models.Resource{Kind: models.ResourceRequest, Action: models.ActionRead, ID: "req-2"}
		assert.NoError(t, svc.Authorize(ctx, testutil.Identity("bob"), other))
	})

	t.Run("resources without an instance never fall back", func(t *testing.T) {
		svc, _ := newEngine(t, testutil.TestUser("alice"))
		svc.SetReady()
		require.NoError(t, svc.EditPermission(ctx, &models.Permission{
			Resource:  models.Resource{Kind: models.ResourceRequest, Action: models.ActionCreate, ID: models.ResourceIDAny},
			AuthScope: models.AuthScopePublic,
		}))

		// Creation targets no instance; the any-instance record does not apply.
		err := svc.Authorize(ctx, testutil.Identity("alice"), models.Resource{
			Kind:   models.ResourceRequest,
			Action: models.ActionCreate,
		})
		assert.ErrorIs(t, err, errors.ErrUnauthorized)
	})
}

func TestEditPermission(t *testing.T) {
	ctx := testutil.TestContext(t)

	t.Run("rejects an unknown auth scope", func(t *testing.T) {
		svc, _ := newEngine(t)

		err := svc.EditPermission(ctx, &models.Permission{
			Resource:  models.Resource{Kind: models.ResourceRequest, Action: models.ActionRead},
			AuthScope: "everyone",
		})

		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrInvalidInput)
	})

	t.Run("rejects a permission without kind or action", func(t *testing.T) {
		svc, _ := newEngine(t)

		err := svc.EditPermission(ctx, &models.Permission{AuthScope: models.AuthScopePublic})

		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrInvalidInput)
	})

	t.Run("records the change in the audit log", func(t *testing.T) {
		svc, auditRepo := newEngine(t)

		require.NoError(t, svc.EditPermission(ctx, &models.Permission{
			Resource:  models.Resource{Kind: models.ResourceRequest, Action: models.ActionRead},
			AuthScope: models.AuthScopePublic,
		}))

		events := auditRepo.Events()
		require.Len(t, events, 1)
		assert.Equal(t, models.AuditEventTypePermissionChange, events[0].EventType)
	})

	t.Run("replaces the record for the same resource", func(t *testing.T) {
		svc, _ := newEngine(t)
		resource := models.Resource{Kind: models.ResourceRequest, Action: models.ActionRead}

		require.NoError(t, svc.EditPermission(ctx, &models.Permission{Resource: resource, AuthScope: models.AuthScopePublic}))
		require.NoError(t, svc.EditPermission(ctx, &models.Permission{Resource: resource, AuthScope: models.AuthScopeAuthenticated}))

		stored, err := svc.GetPermission(ctx, resource)
		require.NoError(t, err)
		assert.Equal(t, models.AuthScopeAuthenticated, stored.AuthScope)
	})
}
