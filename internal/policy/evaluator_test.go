package policy_test

import (
	"fmt"
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

// newEvaluator wires an evaluator against in-memory stores populated with the
// given users.
func newEvaluator(t *testing.T, users ...*models.User) (*policy.Evaluator, *inmemory.NamedRuleRepository) {
	t.Helper()
	userRepo := inmemory.NewUserRepository()
	groupRepo := inmemory.NewGroupRepository()
	for _, user := range users {
		require.NoError(t, userRepo.Create(testutil.TestContext(t), user))
	}
	namedRules := inmemory.NewNamedRuleRepository()
	directory := identity.NewService(userRepo, groupRepo)
	return policy.NewEvaluator(namedRules, directory), namedRules
}

func TestEvaluateAutoApproved(t *testing.T) {
	ctx := testutil.TestContext(t)
	eval, _ := newEvaluator(t)

	req := testutil.TestRequest("alice")
	outcome, err := eval.Evaluate(ctx, models.RequestPolicyRule{Kind: models.RuleAutoApproved}, req)

	require.NoError(t, err)
	assert.Equal(t, models.RuleOutcomeAdopted, outcome)
}

func TestEvaluateQuorum(t *testing.T) {
	ctx := testutil.TestContext(t)

	t.Run("pending until the threshold is met", func(t *testing.T) {
		eval, _ := newEvaluator(t, testutil.TestUser("alice"), testutil.TestUser("bob"), testutil.TestUser("carol"))
		rule := testutil.QuorumRule(2, "alice", "bob", "carol")
		req := testutil.TestRequest("alice")

		outcome, err := eval.Evaluate(ctx, rule, req)
		require.NoError(t, err)
		assert.Equal(t, models.RuleOutcomePending, outcome)

		req.Approvals = append(req.Approvals, testutil.Approval("alice", models.ApprovalDecisionApproved))
		outcome, err = eval.Evaluate(ctx, rule, req)
		require.NoError(t, err)
		assert.Equal(t, models.RuleOutcomePending, outcome)

		req.Approvals = append(req.Approvals, testutil.Approval("bob", models.ApprovalDecisionApproved))
		outcome, err = eval.Evaluate(ctx, rule, req)
		require.NoError(t, err)
		assert.Equal(t, models.RuleOutcomeAdopted, outcome)
	})

	t.Run("rejected once the quorum is unreachable", func(t *testing.T) {
		eval, _ := newEvaluator(t, testutil.TestUser("alice"), testutil.TestUser("bob"), testutil.TestUser("carol"))
		rule := testutil.QuorumRule(2, "alice", "bob", "carol")
		req := testutil.TestRequest("alice")

		// One rejection of three still leaves two possible approvals.
		req.Approvals = append(req.Approvals, testutil.Approval("alice", models.ApprovalDecisionRejected))
		outcome, err := eval.Evaluate(ctx, rule, req)
		require.NoError(t, err)
		assert.Equal(t, models.RuleOutcomePending, outcome)

		req.Approvals = append(req.Approvals, testutil.Approval("bob", models.ApprovalDecisionRejected))
		outcome, err = eval.Evaluate(ctx, rule, req)
		require.NoError(t, err)
		assert.Equal(t, models.RuleOutcomeRejected, outcome)
	})

	t.Run("threshold is capped at the eligible set size", func(t *testing.T) {
		eval, _ := newEvaluator(t, testutil.TestUser("alice"))
		rule := testutil.QuorumRule(5, "alice")
		req := testutil.TestRequest("alice")

		req.Approvals = append(req.Approvals, testutil.Approval("alice", models.ApprovalDecisionApproved))
		outcome, err := eval.Evaluate(ctx, rule, req)
		require.NoError(t, err)
		assert.Equal(t, models.RuleOutcomeAdopted, outcome)
	})

	t.Run("inactive users drop out of the eligible set", func(t *testing.T) {
		bob := testutil.TestUser("bob")
		bob.Status = models.UserStatusInactive
		eval, _ := newEvaluator(t, testutil.TestUser("alice"), bob)
		rule := testutil.QuorumRule(2, "alice", "bob")
		req := testutil.TestRequest("alice")

		// Only alice is eligible, so the threshold caps at one.
		req.Approvals = append(req.Approvals, testutil.Approval("alice", models.ApprovalDecisionApproved))
		outcome, err := eval.Evaluate(ctx, rule, req)
		require.NoError(t, err)
		assert.Equal(t, models.RuleOutcomeAdopted, outcome)
	})

	t.Run("decisions from outside the eligible set are ignored", func(t *testing.T) {
		eval, _ := newEvaluator(t, testutil.TestUser("alice"), testutil.TestUser("bob"), testutil.TestUser("mallory"))
		rule := testutil.QuorumRule(2, "alice", "bob")
		req := testutil.TestRequest("alice")

		req.Approvals = append(req.Approvals,
			testutil.Approval("alice", models.ApprovalDecisionApproved),
			testutil.Approval("mallory", models.ApprovalDecisionApproved))
		outcome, err := eval.Evaluate(ctx, rule, req)
		require.NoError(t, err)
		assert.Equal(t, models.RuleOutcomePending, outcome)
	})
}

func TestEvaluateQuorumPercentage(t *testing.T) {
	ctx := testutil.TestContext(t)

	cases := []struct {
		name       string
		percentage int
		eligible   int
		approvals  int
		want       models.RuleOutcome
	}{
		{"51 percent of 3 needs 2, 1 approval pending", 51, 3, 1, models.RuleOutcomePending},
		{"51 percent of 3 needs 2, 2 approvals adopt", 51, 3, 2, models.RuleOutcomeAdopted},
		{"100 percent of 4 needs 4", 100, 4, 4, models.RuleOutcomeAdopted},
		{"100 percent of 4, 3 approvals pending", 100, 4, 3, models.RuleOutcomePending},
		{"zero percent still needs at least one", 0, 3, 0, models.RuleOutcomePending},
		{"zero percent adopts on one approval", 0, 3, 1, models.RuleOutcomeAdopted},
		{"50 percent of 2 needs 1", 50, 2, 1, models.RuleOutcomeAdopted},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var users []*models.User
			var ids []string
			for i := 0; i < tc.eligible; i++ {
				id := fmt.Sprintf("user-%d", i)
				users = append(users, testutil.TestUser(id))
				ids = append(ids, id)
			}
			eval, _ := newEvaluator(t, users...)
			rule := testutil.PercentageRule(tc.percentage, ids...)
			req := testutil.TestRequest(ids[0])
			for i := 0; i < tc.approvals; i++ {
				req.Approvals = append(req.Approvals, testutil.Approval(ids[i], models.ApprovalDecisionApproved))
			}

			outcome, err := eval.Evaluate(ctx, rule, req)
			require.NoError(t, err)
			assert.Equal(t, tc.want, outcome)
		})
	}
}

func TestEvaluateComposite(t *testing.T) {
	ctx := testutil.TestContext(t)
	auto := models.RequestPolicyRule{Kind: models.RuleAutoApproved}
	rejecting := models.RequestPolicyRule{
		Kind: models.RuleNot,
		Rule: &auto,
	}

	t.Run("all_of rejects when any child rejects", func(t *testing.T) {
		eval, _ := newEvaluator(t)
		rule := models.RequestPolicyRule{Kind: models.RuleAllOf, Rules: []models.RequestPolicyRule{auto, rejecting}}

		outcome, err := eval.Evaluate(ctx, rule, testutil.TestRequest("alice"))
		require.NoError(t, err)
		assert.Equal(t, models.RuleOutcomeRejected, outcome)
	})

	t.Run("all_of pends when a child pends and none reject", func(t *testing.T) {
		eval, _ := newEvaluator(t, testutil.TestUser("alice"))
		rule := models.RequestPolicyRule{Kind: models.RuleAllOf, Rules: []models.RequestPolicyRule{
			auto,
			testutil.QuorumRule(1, "alice"),
		}}

		outcome, err := eval.Evaluate(ctx, rule, testutil.TestRequest("alice"))
		require.NoError(t, err)
		assert.Equal(t, models.RuleOutcomePending, outcome)
	})

	t.Run("all_of rejection dominates a pending sibling", func(t *testing.T) {
		eval, _ := newEvaluator(t, testutil.TestUser("alice"))
		rule := models.RequestPolicyRule{Kind: models.RuleAllOf, Rules: []models.RequestPolicyRule{
			testutil.QuorumRule(1, "alice"),
			rejecting,
		}}

		outcome, err := eval.Evaluate(ctx, rule, testutil.TestRequest("alice"))
		require.NoError(t, err)
		assert.Equal(t, models.RuleOutcomeRejected, outcome)
	})

	t.Run("any_of adopts when any child adopts", func(t *testing.T) {
		eval, _ := newEvaluator(t, testutil.TestUser("alice"))
		rule := models.RequestPolicyRule{Kind: models.RuleAnyOf, Rules: []models.RequestPolicyRule{
			testutil.QuorumRule(1, "alice"),
			auto,
		}}

		outcome, err := eval.Evaluate(ctx, rule, testutil.TestRequest("alice"))
		require.NoError(t, err)
		assert.Equal(t, models.RuleOutcomeAdopted, outcome)
	})

	t.Run("any_of pends when no child adopts and one pends", func(t *testing.T) {
		eval, _ := newEvaluator(t, testutil.TestUser("alice"))
		rule := models.RequestPolicyRule{Kind: models.RuleAnyOf, Rules: []models.RequestPolicyRule{
			rejecting,
			testutil.QuorumRule(1, "alice"),
		}}

		outcome, err := eval.Evaluate(ctx, rule, testutil.TestRequest("alice"))
		require.NoError(t, err)
		assert.Equal(t, models.RuleOutcomePending, outcome)
	})

	t.Run("any_of rejects only when all children reject", func(t *testing.T) {
		eval, _ := newEvaluator(t)
		rule := models.RequestPolicyRule{Kind: models.RuleAnyOf, Rules: []models.RequestPolicyRule{rejecting, rejecting}}

		outcome, err := eval.Evaluate(ctx, rule, testutil.TestRequest("alice"))
		require.NoError(t, err)
		assert.Equal(t, models.RuleOutcomeRejected, outcome)
	})

	t.Run("not leaves pending untouched", func(t *testing.T) {
		eval, _ := newEvaluator(t, testutil.TestUser("alice"))
		pending := testutil.QuorumRule(1, "alice")
		rule := models.RequestPolicyRule{Kind: models.RuleNot, Rule: &pending}

		outcome, err := eval.Evaluate(ctx, rule, testutil.TestRequest("alice"))
		require.NoError(t, err)
		assert.Equal(t, models.RuleOutcomePending, outcome)
	})
}

func TestEvaluateNamedRule(t *testing.T) {
	ctx := testutil.TestContext(t)

	t.Run("resolves the stored rule", func(t *testing.T) {
		eval, namedRules := newEvaluator(t)
		require.NoError(t, namedRules.Create(ctx, &models.NamedRule{
			ID:   "auto",
			Name: "auto approve",
			Rule: models.RequestPolicyRule{Kind: models.RuleAutoApproved},
		}))
		rule := models.RequestPolicyRule{Kind: models.RuleNamed, NamedRuleID: "auto"}

		outcome, err := eval.Evaluate(ctx, rule, testutil.TestRequest("alice"))
		require.NoError(t, err)
		assert.Equal(t, models.RuleOutcomeAdopted, outcome)
	})

	t.Run("dangling reference is an evaluation error", func(t *testing.T) {
		eval, _ := newEvaluator(t)
		rule := models.RequestPolicyRule{Kind: models.RuleNamed, NamedRuleID: "missing"}

		_, err := eval.Evaluate(ctx, rule, testutil.TestRequest("alice"))
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrEvaluationFailed)
	})

	t.Run("deep nesting hits the depth backstop", func(t *testing.T) {
		eval, namedRules := newEvaluator(t)
		// Each named rule refers to the next; far more levels than the
		// evaluator tolerates.
		for i := 0; i < 40; i++ {
			rule := models.RequestPolicyRule{Kind: models.RuleNamed, NamedRuleID: fmt.Sprintf("chain-%d", i+1)}
			if i == 39 {
				rule = models.RequestPolicyRule{Kind: models.RuleAutoApproved}
			}
			require.NoError(t, namedRules.Create(ctx, &models.NamedRule{
				ID:   fmt.Sprintf("chain-%d", i),
				Name: fmt.Sprintf("chain %d", i),
				Rule: rule,
			}))
		}

		_, err := eval.Evaluate(ctx, models.RequestPolicyRule{Kind: models.RuleNamed, NamedRuleID: "chain-0"}, testutil.TestRequest("alice"))
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrEvaluationFailed)
	})
}

func TestEvaluateApproverSpecifiers(t *testing.T) {
	ctx := testutil.TestContext(t)

	t.Run("group approvers resolve to active members", func(t *testing.T) {
		userRepo := inmemory.NewUserRepository()
		groupRepo := inmemory.NewGroupRepository()
		require.NoError(t, groupRepo.Create(ctx, &models.UserGroup{ID: "ops", Name: "Operators"}))
		require.NoError(t, userRepo.Create(ctx, testutil.TestUser("alice", "ops")))
		inactive := testutil.TestUser("bob", "ops")
		inactive.Status = models.UserStatusInactive
		require.NoError(t, userRepo.Create(ctx, inactive))
		eval := policy.NewEvaluator(inmemory.NewNamedRuleRepository(), identity.NewService(userRepo, groupRepo))

		rule := models.RequestPolicyRule{
			Kind:        models.RuleQuorum,
			Approvers:   &models.ApproverSpecifier{Kind: models.ApproversGroups, GroupIDs: []string{"ops"}},
			MinApproved: 1,
		}
		req := testutil.TestRequest("alice")
		req.Approvals = append(req.Approvals, testutil.Approval("alice", models.ApprovalDecisionApproved))

		outcome, err := eval.Evaluate(ctx, rule, req)
		require.NoError(t, err)
		assert.Equal(t, models.RuleOutcomeAdopted, outcome)

		approvers, err := eval.PossibleApprovers(ctx, rule, req)
		require.NoError(t, err)
		assert.Contains(t, approvers, "alice")
		assert.NotContains(t, approvers, "bob")
	})

	t.Run("related approvers include the proposer and touched users", func(t *testing.T) {
		eval, _ := newEvaluator(t, testutil.TestUser("alice"), testutil.TestUser("bob"))
		rule := models.RequestPolicyRule{
			Kind:        models.RuleQuorum,
			Approvers:   &models.ApproverSpecifier{Kind: models.ApproversRelated},
			MinApproved: 1,
		}
		req := testutil.TestRequest("alice")
		req.Operation = models.RequestOperation{
			Type:  models.OperationEditUser,
			Input: map[string]any{"user_id": "bob"},
		}

		approvers, err := eval.PossibleApprovers(ctx, rule, req)
		require.NoError(t, err)
		assert.Contains(t, approvers, "alice")
		assert.Contains(t, approvers, "bob")
	})
}

func TestPossibleApprovers(t *testing.T) {
	ctx := testutil.TestContext(t)

	t.Run("composite rules union their leaves", func(t *testing.T) {
		eval, _ := newEvaluator(t, testutil.TestUser("alice"), testutil.TestUser("bob"))
		rule := models.RequestPolicyRule{Kind: models.RuleAllOf, Rules: []models.RequestPolicyRule{
			testutil.QuorumRule(1, "alice"),
			testutil.QuorumRule(1, "bob"),
		}}

		approvers, err := eval.PossibleApprovers(ctx, rule, testutil.TestRequest("alice"))
		require.NoError(t, err)
		assert.Len(t, approvers, 2)
		assert.Contains(t, approvers, "alice")
		assert.Contains(t, approvers, "bob")
	})

	t.Run("auto approved rules have no approvers", func(t *testing.T) {
		eval, _ := newEvaluator(t)

		approvers, err := eval.PossibleApprovers(ctx, models.RequestPolicyRule{Kind: models.RuleAutoApproved}, testutil.TestRequest("alice"))
		require.NoError(t, err)
		assert.Empty(t, approvers)
	})

	t.Run("not exposes the eligibility of its child", func(t *testing.T) {
		eval, _ := newEvaluator(t, testutil.TestUser("alice"))
		child := testutil.QuorumRule(1, "alice")
		rule := models.RequestPolicyRule{Kind: models.RuleNot, Rule: &child}

		approvers, err := eval.PossibleApprovers(ctx, rule, testutil.TestRequest("alice"))
		require.NoError(t, err)
		assert.Contains(t, approvers, "alice")
	})
}
