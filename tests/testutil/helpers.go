// Package testutil provides test utilities and helpers.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stationhq/station/pkg/models"
)

// =============================================================================
// Test Fixtures
// =============================================================================

// TestUser creates an active test user whose caller identity is
// "identity-<id>".
func TestUser(id string, groups ...string) *models.User {
	return &models.User{
		ID:         id,
		Name:       "Test User " + id,
		Identities: []string{"identity-" + id},
		Groups:     groups,
		Status:     models.UserStatusActive,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
}

// Identity returns the caller identity TestUser assigns to the given user ID.
func Identity(userID string) string {
	return "identity-" + userID
}

// TestRequest creates a pending transfer request proposed by the given user.
func TestRequest(proposerID string) *models.Request {
	now := time.Now()
	return &models.Request{
		ID: uuid.New().String(),
		Operation: models.RequestOperation{
			Type:  models.OperationTransfer,
			Input: map[string]any{"account_id": "acct-1", "to": "addr-1", "amount": "10"},
		},
		Title:          "transfer",
		RequestedBy:    proposerID,
		Status:         models.RequestStatusCreated,
		Approvals:      []models.RequestApproval{},
		CreatedAt:      now,
		LastModifiedAt: now,
		ExpirationAt:   now.Add(24 * time.Hour),
	}
}

// QuorumRule creates an absolute quorum rule over an explicit user list.
func QuorumRule(minApproved int, userIDs ...string) models.RequestPolicyRule {
	return models.RequestPolicyRule{
		Kind:        models.RuleQuorum,
		Approvers:   &models.ApproverSpecifier{Kind: models.ApproversUsers, UserIDs: userIDs},
		MinApproved: minApproved,
	}
}

// PercentageRule creates a percentage quorum rule over an explicit user list.
func PercentageRule(minPercentage int, userIDs ...string) models.RequestPolicyRule {
	return models.RequestPolicyRule{
		Kind:          models.RuleQuorumPercentage,
		Approvers:     &models.ApproverSpecifier{Kind: models.ApproversUsers, UserIDs: userIDs},
		MinPercentage: minPercentage,
	}
}

// Approval creates an approval entry for the given approver.
func Approval(approverID string, decision models.ApprovalDecision) models.RequestApproval {
	return models.RequestApproval{
		ApproverID: approverID,
		Decision:   decision,
		DecidedAt:  time.Now(),
	}
}

// TestAuditEvent creates a test audit event.
func TestAuditEvent(requestID string, eventType models.AuditEventType) *models.AuditEvent {
	return &models.AuditEvent{
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
		RequestID: requestID,
		EventType: eventType,
		Actor:     "test-user",
		Result:    models.AuditEventResultSuccess,
	}
}

// =============================================================================
// Context Helpers
// =============================================================================

// TestContext creates a context with a test timeout.
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestContextWithTimeout creates a context with a custom timeout.
func TestContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}
