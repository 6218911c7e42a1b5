package executor_test

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stationhq/station/internal/audit"
	"github.com/stationhq/station/internal/authz"
	"github.com/stationhq/station/internal/executor"
	"github.com/stationhq/station/internal/identity"
	"github.com/stationhq/station/internal/policy"
	"github.com/stationhq/station/internal/request"
	pkgerrors "github.com/stationhq/station/pkg/errors"
	"github.com/stationhq/station/pkg/models"
	"github.com/stationhq/station/tests/testutil"
	"github.com/stationhq/station/tests/testutil/inmemory"
)

type execHarness struct {
	registry *request.Registry
	identity identity.Service
	policies policy.Service
	authz    authz.Service
	accounts *executor.AccountStore
	system   *executor.SystemState
}

func newExecHarness(t *testing.T) *execHarness {
	t.Helper()

	identitySvc := identity.NewService(inmemory.NewUserRepository(), inmemory.NewGroupRepository())
	auditSvc := audit.NewService(inmemory.NewAuditRepository(), nil)
	authzSvc := authz.NewService(inmemory.NewPermissionRepository(), identitySvc, auditSvc)
	namedRules := inmemory.NewNamedRuleRepository()
	policySvc := policy.NewService(inmemory.NewPolicyRepository(), namedRules,
		policy.NewEvaluator(namedRules, identitySvc), auditSvc)

	accounts := executor.NewAccountStore()
	system := executor.NewSystemState()

	registry := executor.NewRegistry(executor.Deps{
		Identity:    identitySvc,
		Policy:      policySvc,
		Permissions: authzSvc,
		Accounts:    accounts,
		System:      system,
		Logger:      slog.Default(),
	})

	return &execHarness{
		registry: registry,
		identity: identitySvc,
		policies: policySvc,
		authz:    authzSvc,
		accounts: accounts,
		system:   system,
	}
}

func opRequest(op models.OperationType, input map[string]any) *models.Request {
	req := testutil.TestRequest("alice")
	req.Operation = models.RequestOperation{Type: op, Input: input}
	return req
}

func TestUserExecutors(t *testing.T) {
	ctx := testutil.TestContext(t)
	h := newExecHarness(t)

	t.Run("add user creates the user", func(t *testing.T) {
		result, err := h.registry.Execute(ctx, opRequest(models.OperationAddUser, map[string]any{
			"name":       "Alice",
			"identities": []string{"identity-alice"},
		}))
		require.NoError(t, err)

		userID, ok := result["user_id"].(string)
		require.True(t, ok)

		user, err := h.identity.GetUser(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, "Alice", user.Name)
		assert.Equal(t, models.UserStatusActive, user.Status)
	})

	t.Run("edit user requires user_id", func(t *testing.T) {
		_, err := h.registry.Execute(ctx, opRequest(models.OperationEditUser, map[string]any{
			"name": "Renamed",
		}))
		require.Error(t, err)
		assert.ErrorIs(t, err, pkgerrors.ErrExecutionFailed)
	})

	t.Run("group lifecycle", func(t *testing.T) {
		result, err := h.registry.Execute(ctx, opRequest(models.OperationAddUserGroup, map[string]any{
			"name": "Operators",
		}))
		require.NoError(t, err)
		groupID := result["group_id"].(string)

		_, err = h.registry.Execute(ctx, opRequest(models.OperationEditUserGroup, map[string]any{
			"group_id": groupID,
			"name":     "Treasury Operators",
		}))
		require.NoError(t, err)

		_, err = h.registry.Execute(ctx, opRequest(models.OperationRemoveUserGroup, map[string]any{
			"group_id": groupID,
		}))
		require.NoError(t, err)

		groups, err := h.identity.ListGroups(ctx, 0, 0)
		require.NoError(t, err)
		assert.Empty(t, groups)
	})
}

func TestGovernanceExecutors(t *testing.T) {
	ctx := testutil.TestContext(t)
	h := newExecHarness(t)

	t.Run("add and remove request policy", func(t *testing.T) {
		result, err := h.registry.Execute(ctx, opRequest(models.OperationAddRequestPolicy, map[string]any{
			"specifier": map[string]any{"kind": "any"},
			"rule":      map[string]any{"kind": "auto_approved"},
		}))
		require.NoError(t, err)
		policyID := result["policy_id"].(string)

		_, err = h.policies.GetPolicy(ctx, policyID)
		require.NoError(t, err)

		_, err = h.registry.Execute(ctx, opRequest(models.OperationRemoveRequestPolicy, map[string]any{
			"policy_id": policyID,
		}))
		require.NoError(t, err)
	})

	t.Run("named rule lifecycle", func(t *testing.T) {
		result, err := h.registry.Execute(ctx, opRequest(models.OperationAddNamedRule, map[string]any{
			"name": "auto",
			"rule": map[string]any{"kind": "auto_approved"},
		}))
		require.NoError(t, err)
		ruleID := result["named_rule_id"].(string)

		_, err = h.registry.Execute(ctx, opRequest(models.OperationRemoveNamedRule, map[string]any{
			"named_rule_id": ruleID,
		}))
		require.NoError(t, err)
	})

	t.Run("edit permission", func(t *testing.T) {
		_, err := h.registry.Execute(ctx, opRequest(models.OperationEditPermission, map[string]any{
			"resource":   map[string]any{"kind": "account", "action": "read", "id": "*"},
			"auth_scope": "authenticated",
		}))
		require.NoError(t, err)

		perm, err := h.authz.GetPermission(ctx, models.Resource{
			Kind: models.ResourceAccount, Action: models.ActionRead, ID: models.ResourceIDAny,
		})
		require.NoError(t, err)
		assert.Equal(t, models.AuthScopeAuthenticated, perm.AuthScope)
	})
}

func TestAccountExecutors(t *testing.T) {
	ctx := testutil.TestContext(t)
	h := newExecHarness(t)

	result, err := h.registry.Execute(ctx, opRequest(models.OperationAddAccount, map[string]any{
		"name":  "Treasury",
		"asset": "ICP",
	}))
	require.NoError(t, err)
	accountID := result["account_id"].(string)

	t.Run("edit account renames it", func(t *testing.T) {
		_, err := h.registry.Execute(ctx, opRequest(models.OperationEditAccount, map[string]any{
			"account_id": accountID,
			"name":       "Main Treasury",
		}))
		require.NoError(t, err)

		account, err := h.accounts.Get(accountID)
		require.NoError(t, err)
		assert.Equal(t, "Main Treasury", account.Name)
	})

	t.Run("transfer from a known account submits", func(t *testing.T) {
		result, err := h.registry.Execute(ctx, opRequest(models.OperationTransfer, map[string]any{
			"account_id": accountID,
			"to":         "addr-1",
			"amount":     "10",
		}))
		require.NoError(t, err)
		assert.Equal(t, "submitted", result["status"])
		assert.NotEmpty(t, result["transfer_id"])
	})

	t.Run("transfer from an unknown account fails", func(t *testing.T) {
		_, err := h.registry.Execute(ctx, opRequest(models.OperationTransfer, map[string]any{
			"account_id": "missing",
			"to":         "addr-1",
			"amount":     "10",
		}))
		require.Error(t, err)
		assert.ErrorIs(t, err, pkgerrors.ErrExecutionFailed)
	})

	t.Run("transfer requires destination and amount", func(t *testing.T) {
		_, err := h.registry.Execute(ctx, opRequest(models.OperationTransfer, map[string]any{
			"account_id": accountID,
		}))
		require.Error(t, err)
	})
}

func TestSystemExecutors(t *testing.T) {
	ctx := testutil.TestContext(t)
	h := newExecHarness(t)

	t.Run("manage system info", func(t *testing.T) {
		_, err := h.registry.Execute(ctx, opRequest(models.OperationManageSystemInfo, map[string]any{
			"name":    "treasury-station",
			"version": "1.2.0",
		}))
		require.NoError(t, err)

		name, version := h.system.Info()
		assert.Equal(t, "treasury-station", name)
		assert.Equal(t, "1.2.0", version)
	})

	t.Run("disaster recovery requires a committee", func(t *testing.T) {
		_, err := h.registry.Execute(ctx, opRequest(models.OperationSetDisasterRecovery, map[string]any{}))
		require.Error(t, err)

		_, err = h.registry.Execute(ctx, opRequest(models.OperationSetDisasterRecovery, map[string]any{
			"committee": map[string]any{"user_ids": []string{"alice"}, "quorum": 1},
		}))
		require.NoError(t, err)
		assert.NotEmpty(t, h.system.DisasterRecovery())
	})

	t.Run("canister calls validate their target", func(t *testing.T) {
		_, err := h.registry.Execute(ctx, opRequest(models.OperationCallExternalCanister, map[string]any{
			"method": "upgrade",
		}))
		require.Error(t, err)

		_, err = h.registry.Execute(ctx, opRequest(models.OperationChangeExternalCanister, map[string]any{
			"canister_id": "canister-1",
			"mode":        "upgrade",
		}))
		require.NoError(t, err)
	})
}

func TestUnregisteredOperation(t *testing.T) {
	ctx := testutil.TestContext(t)
	registry := request.NewRegistry()

	_, err := registry.Execute(ctx, opRequest(models.OperationTransfer, nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, pkgerrors.ErrExecutionFailed)
}
