package policy_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stationhq/station/internal/identity"
	"github.com/stationhq/station/internal/policy"
	"github.com/stationhq/station/pkg/errors"
	"github.com/stationhq/station/pkg/models"
	"github.com/stationhq/station/tests/testutil"
	"github.com/stationhq/station/tests/testutil/inmemory"
)

// newPolicyService wires a policy service against in-memory stores populated
// with the given users.
func newPolicyService(t *testing.T, users ...*models.User) (policy.Service, *inmemory.AuditRepository) {
	t.Helper()
	ctx := testutil.TestContext(t)
	userRepo := inmemory.NewUserRepository()
	for _, user := range users {
		require.NoError(t, userRepo.Create(ctx, user))
	}
	directory := identity.NewService(userRepo, inmemory.NewGroupRepository())
	namedRules := inmemory.NewNamedRuleRepository()
	auditRepo := inmemory.NewAuditRepository()
	evaluator := policy.NewEvaluator(namedRules, directory)
	svc := policy.NewService(inmemory.NewPolicyRepository(), namedRules, evaluator, auditLogger{auditRepo})
	return svc, auditRepo
}

type auditLogger struct {
	repo *inmemory.AuditRepository
}

func (l auditLogger) Log(ctx context.Context, event *models.AuditEvent) error {
	return l.repo.Create(ctx, event)
}

func TestPolicyManagement(t *testing.T) {
	ctx := testutil.TestContext(t)

	t.Run("creates a policy with a valid specifier and rule", func(t *testing.T) {
		svc, auditRepo := newPolicyService(t)

		created, err := svc.CreatePolicy(ctx, policy.CreatePolicyRequest{
			Specifier: models.RequestSpecifier{Kind: models.SpecifierAny},
			Rule:      testutil.QuorumRule(1, "alice"),
		})

		require.NoError(t, err)
		assert.NotEmpty(t, created.ID)

		retrieved, err := svc.GetPolicy(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.ID, retrieved.ID)

		events := auditRepo.Events()
		require.Len(t, events, 1)
		assert.Equal(t, models.AuditEventTypePolicyChange, events[0].EventType)
	})

	t.Run("rejects a malformed specifier", func(t *testing.T) {
		svc, _ := newPolicyService(t)

		_, err := svc.CreatePolicy(ctx, policy.CreatePolicyRequest{
			Specifier: models.RequestSpecifier{Kind: models.SpecifierOperation},
			Rule:      models.RequestPolicyRule{Kind: models.RuleAutoApproved},
		})

		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrInvalidInput)
	})

	t.Run("rejects a malformed rule", func(t *testing.T) {
		svc, _ := newPolicyService(t)

		_, err := svc.CreatePolicy(ctx, policy.CreatePolicyRequest{
			Specifier: models.RequestSpecifier{Kind: models.SpecifierAny},
			Rule:      models.RequestPolicyRule{Kind: models.RuleQuorum, MinApproved: 0},
		})

		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrInvalidInput)
	})

	t.Run("rejects a dangling named rule reference", func(t *testing.T) {
		svc, _ := newPolicyService(t)

		_, err := svc.CreatePolicy(ctx, policy.CreatePolicyRequest{
			Specifier: models.RequestSpecifier{Kind: models.SpecifierAny},
			Rule:      models.RequestPolicyRule{Kind: models.RuleNamed, NamedRuleID: "missing"},
		})

		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrInvalidInput)
	})

	t.Run("removes a policy", func(t *testing.T) {
		svc, _ := newPolicyService(t)
		created, err := svc.CreatePolicy(ctx, policy.CreatePolicyRequest{
			Specifier: models.RequestSpecifier{Kind: models.SpecifierAny},
			Rule:      models.RequestPolicyRule{Kind: models.RuleAutoApproved},
		})
		require.NoError(t, err)

		require.NoError(t, svc.RemovePolicy(ctx, created.ID))

		_, err = svc.GetPolicy(ctx, created.ID)
		assert.ErrorIs(t, err, errors.ErrNotFound)
	})
}

func TestNamedRuleManagement(t *testing.T) {
	ctx := testutil.TestContext(t)

	t.Run("rejects a direct self reference", func(t *testing.T) {
		svc, _ := newPolicyService(t)
		created, err := svc.CreateNamedRule(ctx, policy.CreateNamedRuleRequest{
			Name: "base",
			Rule: models.RequestPolicyRule{Kind: models.RuleAutoApproved},
		})
		require.NoError(t, err)

		created.Rule = models.RequestPolicyRule{Kind: models.RuleNamed, NamedRuleID: created.ID}
		_, err = svc.EditNamedRule(ctx, created)

		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrRuleCycle)
	})

	t.Run("rejects an indirect reference cycle", func(t *testing.T) {
		svc, _ := newPolicyService(t)
		first, err := svc.CreateNamedRule(ctx, policy.CreateNamedRuleRequest{
			Name: "first",
			Rule: models.RequestPolicyRule{Kind: models.RuleAutoApproved},
		})
		require.NoError(t, err)
		second, err := svc.CreateNamedRule(ctx, policy.CreateNamedRuleRequest{
			Name: "second",
			Rule: models.RequestPolicyRule{Kind: models.RuleNamed, NamedRuleID: first.ID},
		})
		require.NoError(t, err)

		// Closing the loop through second must fail.
		first.Rule = models.RequestPolicyRule{Kind: models.RuleNamed, NamedRuleID: second.ID}
		_, err = svc.EditNamedRule(ctx, first)

		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrRuleCycle)
	})

	t.Run("refuses to remove a rule referenced by a policy", func(t *testing.T) {
		svc, _ := newPolicyService(t)
		named, err := svc.CreateNamedRule(ctx, policy.CreateNamedRuleRequest{
			Name: "base",
			Rule: models.RequestPolicyRule{Kind: models.RuleAutoApproved},
		})
		require.NoError(t, err)
		_, err = svc.CreatePolicy(ctx, policy.CreatePolicyRequest{
			Specifier: models.RequestSpecifier{Kind: models.SpecifierAny},
			Rule:      models.RequestPolicyRule{Kind: models.RuleNamed, NamedRuleID: named.ID},
		})
		require.NoError(t, err)

		err = svc.RemoveNamedRule(ctx, named.ID)

		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrRuleInUse)
	})

	t.Run("refuses to remove a rule referenced by another named rule", func(t *testing.T) {
		svc, _ := newPolicyService(t)
		base, err := svc.CreateNamedRule(ctx, policy.CreateNamedRuleRequest{
			Name: "base",
			Rule: models.RequestPolicyRule{Kind: models.RuleAutoApproved},
		})
		require.NoError(t, err)
		_, err = svc.CreateNamedRule(ctx, policy.CreateNamedRuleRequest{
			Name: "wrapper",
			Rule: models.RequestPolicyRule{Kind: models.RuleNot, Rule: &models.RequestPolicyRule{Kind: models.RuleNamed, NamedRuleID: base.ID}},
		})
		require.NoError(t, err)

		err = svc.RemoveNamedRule(ctx, base.ID)

		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrRuleInUse)
	})

	t.Run("removes an unreferenced rule", func(t *testing.T) {
		svc, _ := newPolicyService(t)
		named, err := svc.CreateNamedRule(ctx, policy.CreateNamedRuleRequest{
			Name: "base",
			Rule: models.RequestPolicyRule{Kind: models.RuleAutoApproved},
		})
		require.NoError(t, err)

		require.NoError(t, svc.RemoveNamedRule(ctx, named.ID))

		_, err = svc.GetNamedRule(ctx, named.ID)
		assert.ErrorIs(t, err, errors.ErrNotFound)
	})
}

func TestEvaluateRequest(t *testing.T) {
	ctx := testutil.TestContext(t)

	t.Run("zero matched policies is a configuration error", func(t *testing.T) {
		svc, _ := newPolicyService(t)

		_, err := svc.EvaluateRequest(ctx, testutil.TestRequest("alice"))

		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrNoApplicablePolicy)
	})

	t.Run("every matched policy must adopt", func(t *testing.T) {
		svc, _ := newPolicyService(t, testutil.TestUser("alice"), testutil.TestUser("bob"))
		_, err := svc.CreatePolicy(ctx, policy.CreatePolicyRequest{
			Specifier: models.RequestSpecifier{Kind: models.SpecifierAny},
			Rule:      models.RequestPolicyRule{Kind: models.RuleAutoApproved},
		})
		require.NoError(t, err)
		_, err = svc.CreatePolicy(ctx, policy.CreatePolicyRequest{
			Specifier: models.RequestSpecifier{Kind: models.SpecifierOperation, Operations: []models.OperationType{models.OperationTransfer}},
			Rule:      testutil.QuorumRule(1, "bob"),
		})
		require.NoError(t, err)

		req := testutil.TestRequest("alice")
		outcome, err := svc.EvaluateRequest(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, models.RuleOutcomePending, outcome)

		req.Approvals = append(req.Approvals, testutil.Approval("bob", models.ApprovalDecisionApproved))
		outcome, err = svc.EvaluateRequest(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, models.RuleOutcomeAdopted, outcome)
	})

	t.Run("any rejecting policy rejects the request", func(t *testing.T) {
		svc, _ := newPolicyService(t, testutil.TestUser("alice"), testutil.TestUser("bob"))
		_, err := svc.CreatePolicy(ctx, policy.CreatePolicyRequest{
			Specifier: models.RequestSpecifier{Kind: models.SpecifierAny},
			Rule:      testutil.QuorumRule(1, "alice"),
		})
		require.NoError(t, err)
		_, err = svc.CreatePolicy(ctx, policy.CreatePolicyRequest{
			Specifier: models.RequestSpecifier{Kind: models.SpecifierAny},
			Rule:      testutil.QuorumRule(1, "bob"),
		})
		require.NoError(t, err)

		req := testutil.TestRequest("alice")
		req.Approvals = append(req.Approvals,
			testutil.Approval("alice", models.ApprovalDecisionApproved),
			testutil.Approval("bob", models.ApprovalDecisionRejected))

		outcome, err := svc.EvaluateRequest(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, models.RuleOutcomeRejected, outcome)
	})

	t.Run("non-matching policies are not consulted", func(t *testing.T) {
		svc, _ := newPolicyService(t, testutil.TestUser("alice"))
		_, err := svc.CreatePolicy(ctx, policy.CreatePolicyRequest{
			Specifier: models.RequestSpecifier{Kind: models.SpecifierOperation, Operations: []models.OperationType{models.OperationTransfer}},
			Rule:      models.RequestPolicyRule{Kind: models.RuleAutoApproved},
		})
		require.NoError(t, err)
		_, err = svc.CreatePolicy(ctx, policy.CreatePolicyRequest{
			Specifier: models.RequestSpecifier{Kind: models.SpecifierOperation, Operations: []models.OperationType{models.OperationAddUser}},
			Rule:      testutil.QuorumRule(1, "alice"),
		})
		require.NoError(t, err)

		outcome, err := svc.EvaluateRequest(ctx, testutil.TestRequest("alice"))
		require.NoError(t, err)
		assert.Equal(t, models.RuleOutcomeAdopted, outcome)
	})
}

func TestServicePossibleApprovers(t *testing.T) {
	ctx := testutil.TestContext(t)
	svc, _ := newPolicyService(t, testutil.TestUser("alice"), testutil.TestUser("bob"))

	_, err := svc.CreatePolicy(ctx, policy.CreatePolicyRequest{
		Specifier: models.RequestSpecifier{Kind: models.SpecifierAny},
		Rule:      testutil.QuorumRule(1, "alice"),
	})
	require.NoError(t, err)
	_, err = svc.CreatePolicy(ctx, policy.CreatePolicyRequest{
		Specifier: models.RequestSpecifier{Kind: models.SpecifierOperation, Operations: []models.OperationType{models.OperationTransfer}},
		Rule:      testutil.QuorumRule(1, "alice", "bob"),
	})
	require.NoError(t, err)

	approvers, err := svc.PossibleApprovers(ctx, testutil.TestRequest("alice"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, approvers)
}
