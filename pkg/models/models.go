// Package models defines the core domain types for the station.
package models

import (
	"time"
)

// RequestStatus represents the lifecycle state of a request.
type RequestStatus string

const (
	RequestStatusCreated    RequestStatus = "created"
	RequestStatusApproved   RequestStatus = "approved"
	RequestStatusRejected   RequestStatus = "rejected"
	RequestStatusScheduled  RequestStatus = "scheduled"
	RequestStatusProcessing RequestStatus = "processing"
	RequestStatusCompleted  RequestStatus = "completed"
	RequestStatusFailed     RequestStatus = "failed"
	RequestStatusCancelled  RequestStatus = "cancelled"
)

// Terminal reports whether no further transitions are accepted from the status.
func (s RequestStatus) Terminal() bool {
	switch s {
	case RequestStatusRejected, RequestStatusCancelled, RequestStatusCompleted, RequestStatusFailed:
		return true
	}
	return false
}

// ApprovalDecision is the verdict an approver casts on a request.
type ApprovalDecision string

const (
	ApprovalDecisionApproved ApprovalDecision = "approved"
	ApprovalDecisionRejected ApprovalDecision = "rejected"
)

// RequestApproval is a single approver's decision on a request.
// A request holds at most one approval entry per approver.
type RequestApproval struct {
	ApproverID string           `json:"approver_id"`
	Decision   ApprovalDecision `json:"decision"`
	Reason     string           `json:"reason,omitempty"`
	DecidedAt  time.Time        `json:"decided_at"`
}

// OperationType identifies the action a request proposes.
type OperationType string

const (
	OperationAddUser                OperationType = "add_user"
	OperationEditUser               OperationType = "edit_user"
	OperationAddUserGroup           OperationType = "add_user_group"
	OperationEditUserGroup          OperationType = "edit_user_group"
	OperationRemoveUserGroup        OperationType = "remove_user_group"
	OperationAddAccount             OperationType = "add_account"
	OperationEditAccount            OperationType = "edit_account"
	OperationTransfer               OperationType = "transfer"
	OperationEditPermission         OperationType = "edit_permission"
	OperationAddRequestPolicy       OperationType = "add_request_policy"
	OperationEditRequestPolicy      OperationType = "edit_request_policy"
	OperationRemoveRequestPolicy    OperationType = "remove_request_policy"
	OperationAddNamedRule           OperationType = "add_named_rule"
	OperationEditNamedRule          OperationType = "edit_named_rule"
	OperationRemoveNamedRule        OperationType = "remove_named_rule"
	OperationChangeExternalCanister OperationType = "change_external_canister"
	OperationCallExternalCanister   OperationType = "call_external_canister"
	OperationSetDisasterRecovery    OperationType = "set_disaster_recovery"
	OperationManageSystemInfo       OperationType = "manage_system_info"
)

// RequestOperation carries the action-specific input of a request and, once
// the request has executed, the action-specific result. The type tag never
// changes after creation; only Result is filled in later.
type RequestOperation struct {
	Type   OperationType  `json:"type"`
	Input  map[string]any `json:"input,omitempty"`
	Result map[string]any `json:"result,omitempty"`
}

// inputIDs reads a string or list-of-strings input field.
func (op RequestOperation) inputIDs(keys ...string) []string {
	var out []string
	for _, key := range keys {
		switch v := op.Input[key].(type) {
		case string:
			if v != "" {
				out = append(out, v)
			}
		case []string:
			out = append(out, v...)
		case []any:
			for _, e := range v {
				if s, ok := e.(string); ok && s != "" {
					out = append(out, s)
				}
			}
		}
	}
	return out
}

// RelatedAccounts returns the account IDs the operation touches, used by
// specifier matching and related-approver resolution.
func (op RequestOperation) RelatedAccounts() []string {
	switch op.Type {
	case OperationEditAccount, OperationTransfer:
		return op.inputIDs("account_id")
	}
	return nil
}

// RelatedUsers returns the user IDs the operation touches.
func (op RequestOperation) RelatedUsers() []string {
	switch op.Type {
	case OperationEditUser:
		return op.inputIDs("user_id")
	case OperationAddUserGroup, OperationEditUserGroup:
		return op.inputIDs("user_ids")
	}
	return nil
}

// Request is a proposed, auditable change subject to approval before
// execution. Requests are never destroyed; terminal requests remain as an
// audit record.
type Request struct {
	ID             string            `json:"id"`
	Operation      RequestOperation  `json:"operation"`
	Title          string            `json:"title"`
	Summary        string            `json:"summary,omitempty"`
	RequestedBy    string            `json:"requested_by"`
	Status         RequestStatus     `json:"status"`
	StatusReason   string            `json:"status_reason,omitempty"`
	Approvals      []RequestApproval `json:"approvals"`
	CreatedAt      time.Time         `json:"created_at"`
	LastModifiedAt time.Time         `json:"last_modified_at"`
	ExpirationAt   time.Time         `json:"expiration_at"`
	ScheduledAt    *time.Time        `json:"scheduled_at,omitempty"`
}

// ApprovalBy returns the decision already cast by the given approver, if any.
func (r *Request) ApprovalBy(approverID string) *RequestApproval {
	for i := range r.Approvals {
		if r.Approvals[i].ApproverID == approverID {
			return &r.Approvals[i]
		}
	}
	return nil
}

// RequestPolicy binds a request specifier to an approval rule. Multiple
// policies may match the same request; all matched rules must independently
// adopt for the request to advance.
type RequestPolicy struct {
	ID        string            `json:"id"`
	Specifier RequestSpecifier  `json:"specifier"`
	Rule      RequestPolicyRule `json:"rule"`
}

// NamedRule is a stored, reusable approval rule referenced by ID from other
// rules. A named rule that is still referenced cannot be removed.
type NamedRule struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Rule        RequestPolicyRule `json:"rule"`
}

// UserStatus represents whether a user may act on the station.
type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusInactive UserStatus = "inactive"
)

// User is an authorized actor on the station. Identities are the caller
// principals that authenticate as this user.
type User struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Identities []string   `json:"identities"`
	Groups     []string   `json:"groups"`
	Status     UserStatus `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// UserGroup is a named set of users used by permissions and approver
// specifiers.
type UserGroup struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AuditEventType represents the type of audit event.
type AuditEventType string

const (
	AuditEventTypeRequestCreated    AuditEventType = "request.created"
	AuditEventTypeRequestApproval   AuditEventType = "request.approval"
	AuditEventTypeRequestTransition AuditEventType = "request.transition"
	AuditEventTypePolicyChange      AuditEventType = "policy.change"
	AuditEventTypePermissionChange  AuditEventType = "permission.change"
	AuditEventTypeAuthzDenied       AuditEventType = "authz.denied"
)

// AuditEventResult represents the result of an audited operation.
type AuditEventResult string

const (
	AuditEventResultSuccess AuditEventResult = "success"
	AuditEventResultError   AuditEventResult = "error"
	AuditEventResultDenied  AuditEventResult = "denied"
)

// AuditEvent represents an immutable audit log entry.
type AuditEvent struct {
	ID        string           `json:"id"`
	Timestamp time.Time        `json:"timestamp"`
	RequestID string           `json:"request_id,omitempty"`
	EventType AuditEventType   `json:"event_type"`
	Actor     string           `json:"actor"`
	Result    AuditEventResult `json:"result"`
	DataHash  string           `json:"data_hash,omitempty"`
	Metadata  map[string]any   `json:"metadata,omitempty"`
}

// HealthStatus represents the health status of a component.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// ComponentHealth represents the health of a single component.
type ComponentHealth struct {
	Name   string       `json:"name"`
	Status HealthStatus `json:"status"`
	Error  string       `json:"error,omitempty"`
}

// HealthResponse represents the overall system health.
type HealthResponse struct {
	Status     HealthStatus               `json:"status"`
	Version    string                     `json:"version"`
	Components map[string]ComponentHealth `json:"components"`
}
