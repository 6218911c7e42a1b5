// Package policy handles approval policies, the request specifier matcher
// and the policy rule evaluator.
package policy

import (
	"context"

	"github.com/stationhq/station/pkg/models"
)

// Repository defines request policy persistence operations.
type Repository interface {
	// Create persists a new request policy.
	Create(ctx context.Context, policy *models.RequestPolicy) error
	// Get retrieves a request policy by ID.
	Get(ctx context.Context, id string) (*models.RequestPolicy, error)
	// Update updates an existing request policy.
	Update(ctx context.Context, policy *models.RequestPolicy) error
	// Delete removes a request policy.
	Delete(ctx context.Context, id string) error
	// List returns all request policies.
	List(ctx context.Context) ([]*models.RequestPolicy, error)
}

// NamedRuleRepository defines named rule persistence operations.
type NamedRuleRepository interface {
	// Create persists a new named rule.
	Create(ctx context.Context, rule *models.NamedRule) error
	// Get retrieves a named rule by ID.
	Get(ctx context.Context, id string) (*models.NamedRule, error)
	// Update updates an existing named rule.
	Update(ctx context.Context, rule *models.NamedRule) error
	// Delete removes a named rule.
	Delete(ctx context.Context, id string) error
	// List returns all named rules.
	List(ctx context.Context) ([]*models.NamedRule, error)
}

// CreatePolicyRequest represents a request policy creation request.
type CreatePolicyRequest struct {
	Specifier models.RequestSpecifier
	Rule      models.RequestPolicyRule
}

// CreateNamedRuleRequest represents a named rule creation request.
type CreateNamedRuleRequest struct {
	Name        string
	Description string
	Rule        models.RequestPolicyRule
}

// Service handles policy and named rule management plus request-level
// evaluation across all matched policies.
type Service interface {
	// CreatePolicy creates a new request policy.
	CreatePolicy(ctx context.Context, req CreatePolicyRequest) (*models.RequestPolicy, error)
	// EditPolicy updates a request policy.
	EditPolicy(ctx context.Context, policy *models.RequestPolicy) (*models.RequestPolicy, error)
	// RemovePolicy removes a request policy.
	RemovePolicy(ctx context.Context, id string) error
	// GetPolicy retrieves a request policy by ID.
	GetPolicy(ctx context.Context, id string) (*models.RequestPolicy, error)
	// ListPolicies returns all request policies.
	ListPolicies(ctx context.Context) ([]*models.RequestPolicy, error)

	// CreateNamedRule creates a new named rule.
	CreateNamedRule(ctx context.Context, req CreateNamedRuleRequest) (*models.NamedRule, error)
	// EditNamedRule updates a named rule.
	EditNamedRule(ctx context.Context, rule *models.NamedRule) (*models.NamedRule, error)
	// RemoveNamedRule removes a named rule; removal is rejected while the
	// rule is still referenced by a policy or another named rule.
	RemoveNamedRule(ctx context.Context, id string) error
	// GetNamedRule retrieves a named rule by ID.
	GetNamedRule(ctx context.Context, id string) (*models.NamedRule, error)
	// ListNamedRules returns all named rules.
	ListNamedRules(ctx context.Context) ([]*models.NamedRule, error)

	// PoliciesForRequest returns the policies whose specifier matches the
	// request.
	PoliciesForRequest(ctx context.Context, req *models.Request) ([]*models.RequestPolicy, error)
	// EvaluateRequest computes the request-level outcome across all matched
	// policies: adopted iff every matched rule adopts, rejected iff any
	// rejects. A request matched by zero policies is a configuration error.
	EvaluateRequest(ctx context.Context, req *models.Request) (models.RuleOutcome, error)
	// PossibleApprovers returns the identities currently entitled to cast a
	// decision on the request, across all matched policies.
	PossibleApprovers(ctx context.Context, req *models.Request) ([]string, error)
}
