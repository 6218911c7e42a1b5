package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stationhq/station/pkg/models"
)

func TestRuleValidate(t *testing.T) {
	users := &models.ApproverSpecifier{Kind: models.ApproversUsers, UserIDs: []string{"alice"}}

	tests := []struct {
		name    string
		rule    models.RequestPolicyRule
		wantErr bool
	}{
		{"auto approved", models.RequestPolicyRule{Kind: models.RuleAutoApproved}, false},
		{"quorum", models.RequestPolicyRule{Kind: models.RuleQuorum, Approvers: users, MinApproved: 1}, false},
		{"quorum without approvers", models.RequestPolicyRule{Kind: models.RuleQuorum, MinApproved: 1}, true},
		{"quorum with zero threshold", models.RequestPolicyRule{Kind: models.RuleQuorum, Approvers: users}, true},
		{"percentage", models.RequestPolicyRule{Kind: models.RuleQuorumPercentage, Approvers: users, MinPercentage: 51}, false},
		{"percentage above 100", models.RequestPolicyRule{Kind: models.RuleQuorumPercentage, Approvers: users, MinPercentage: 150}, true},
		{"all_of with children", models.RequestPolicyRule{
			Kind:  models.RuleAllOf,
			Rules: []models.RequestPolicyRule{{Kind: models.RuleAutoApproved}},
		}, false},
		{"all_of without children", models.RequestPolicyRule{Kind: models.RuleAllOf}, true},
		{"any_of with an invalid child", models.RequestPolicyRule{
			Kind:  models.RuleAnyOf,
			Rules: []models.RequestPolicyRule{{Kind: models.RuleQuorum}},
		}, true},
		{"not", models.RequestPolicyRule{
			Kind: models.RuleNot,
			Rule: &models.RequestPolicyRule{Kind: models.RuleAutoApproved},
		}, false},
		{"not without child", models.RequestPolicyRule{Kind: models.RuleNot}, true},
		{"named", models.RequestPolicyRule{Kind: models.RuleNamed, NamedRuleID: "nr-1"}, false},
		{"named without id", models.RequestPolicyRule{Kind: models.RuleNamed}, true},
		{"unknown kind", models.RequestPolicyRule{Kind: "bogus"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestApproverSpecifierValidate(t *testing.T) {
	assert.Error(t, models.ApproverSpecifier{Kind: models.ApproversUsers}.Validate())
	assert.Error(t, models.ApproverSpecifier{Kind: models.ApproversGroups}.Validate())
	assert.NoError(t, models.ApproverSpecifier{Kind: models.ApproversRelated}.Validate())
	assert.Error(t, models.ApproverSpecifier{Kind: "bogus"}.Validate())
}

func TestNamedRuleRefs(t *testing.T) {
	rule := models.RequestPolicyRule{
		Kind: models.RuleAllOf,
		Rules: []models.RequestPolicyRule{
			{Kind: models.RuleNamed, NamedRuleID: "nr-1"},
			{Kind: models.RuleNot, Rule: &models.RequestPolicyRule{Kind: models.RuleNamed, NamedRuleID: "nr-2"}},
			{Kind: models.RuleAutoApproved},
		},
	}
	assert.ElementsMatch(t, []string{"nr-1", "nr-2"}, rule.NamedRuleRefs())
	assert.Empty(t, models.RequestPolicyRule{Kind: models.RuleAutoApproved}.NamedRuleRefs())
}

func TestRequestSpecifierValidate(t *testing.T) {
	tests := []struct {
		name      string
		specifier models.RequestSpecifier
		wantErr   bool
	}{
		{"any", models.RequestSpecifier{Kind: models.SpecifierAny}, false},
		{"operation", models.RequestSpecifier{
			Kind:       models.SpecifierOperation,
			Operations: []models.OperationType{models.OperationTransfer},
		}, false},
		{"operation without types", models.RequestSpecifier{Kind: models.SpecifierOperation}, true},
		{"account", models.RequestSpecifier{
			Kind:     models.SpecifierAccount,
			Accounts: &models.IDSelector{All: true},
		}, false},
		{"account with empty selector", models.RequestSpecifier{
			Kind:     models.SpecifierAccount,
			Accounts: &models.IDSelector{},
		}, true},
		{"proposer without selector", models.RequestSpecifier{Kind: models.SpecifierProposer}, true},
		{"metadata without key", models.RequestSpecifier{Kind: models.SpecifierOperationMetadata}, true},
		{"unknown kind", models.RequestSpecifier{Kind: "bogus"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.specifier.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIDSelector(t *testing.T) {
	assert.True(t, models.IDSelector{All: true}.Selects("anything"))
	assert.True(t, models.IDSelector{IDs: []string{"a", "b"}}.Selects("b"))
	assert.False(t, models.IDSelector{IDs: []string{"a"}}.Selects("c"))
	assert.False(t, models.IDSelector{}.Selects("a"))
}

func TestResourceKey(t *testing.T) {
	res := models.Resource{Kind: models.ResourceRequest, Action: models.ActionRead, ID: "req-1"}
	assert.Equal(t, "request:read:req-1", res.Key())
	assert.Equal(t, "request:read:*", res.AnyID().Key())

	res = models.Resource{Kind: models.ResourceUser, Action: models.ActionCreate}
	assert.Equal(t, "user:create", res.Key())

	parsed, err := models.ParseResourceKey("request:read:req-1")
	require.NoError(t, err)
	assert.Equal(t, models.ResourceRequest, parsed.Kind)
	assert.Equal(t, models.ActionRead, parsed.Action)
	assert.Equal(t, "req-1", parsed.ID)

	parsed, err = models.ParseResourceKey("user:create")
	require.NoError(t, err)
	assert.Empty(t, parsed.ID)

	_, err = models.ParseResourceKey("malformed")
	assert.Error(t, err)
}

func TestTerminalStatuses(t *testing.T) {
	terminal := []models.RequestStatus{
		models.RequestStatusRejected,
		models.RequestStatusCancelled,
		models.RequestStatusCompleted,
		models.RequestStatusFailed,
	}
	for _, status := range terminal {
		assert.True(t, status.Terminal(), string(status))
	}

	open := []models.RequestStatus{
		models.RequestStatusCreated,
		models.RequestStatusApproved,
		models.RequestStatusScheduled,
		models.RequestStatusProcessing,
	}
	for _, status := range open {
		assert.False(t, status.Terminal(), string(status))
	}
}

func TestRelatedIDs(t *testing.T) {
	transfer := models.RequestOperation{
		Type:  models.OperationTransfer,
		Input: map[string]any{"account_id": "acct-1"},
	}
	assert.Equal(t, []string{"acct-1"}, transfer.RelatedAccounts())
	assert.Empty(t, transfer.RelatedUsers())

	editUser := models.RequestOperation{
		Type:  models.OperationEditUser,
		Input: map[string]any{"user_id": "u-1"},
	}
	assert.Equal(t, []string{"u-1"}, editUser.RelatedUsers())

	addGroup := models.RequestOperation{
		Type:  models.OperationAddUserGroup,
		Input: map[string]any{"user_ids": []any{"u-1", "u-2"}},
	}
	assert.Equal(t, []string{"u-1", "u-2"}, addGroup.RelatedUsers())
}
