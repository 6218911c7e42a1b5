package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stationhq/station/pkg/errors"
	"github.com/stationhq/station/pkg/models"
)

// AuditLogger records policy administration events. Logging is best-effort
// and never fails the underlying change.
type AuditLogger interface {
	Log(ctx context.Context, event *models.AuditEvent) error
}

// NewService creates a new policy service.
func NewService(policies Repository, namedRules NamedRuleRepository, evaluator *Evaluator, audit AuditLogger) Service {
	return &serviceImpl{
		policies:   policies,
		namedRules: namedRules,
		evaluator:  evaluator,
		matcher:    NewMatcher(),
		audit:      audit,
	}
}

type serviceImpl struct {
	policies   Repository
	namedRules NamedRuleRepository
	evaluator  *Evaluator
	matcher    *Matcher
	audit      AuditLogger
}

func (s *serviceImpl) CreatePolicy(ctx context.Context, req CreatePolicyRequest) (*models.RequestPolicy, error) {
	if err := req.Specifier.Validate(); err != nil {
		return nil, errors.NewValidationError("specifier", err.Error())
	}
	if err := req.Rule.Validate(); err != nil {
		return nil, errors.NewValidationError("rule", err.Error())
	}
	if err := s.checkNamedRefsExist(ctx, req.Rule); err != nil {
		return nil, err
	}

	policy := &models.RequestPolicy{
		ID:        uuid.New().String(),
		Specifier: req.Specifier,
		Rule:      req.Rule,
	}
	if err := s.policies.Create(ctx, policy); err != nil {
		return nil, fmt.Errorf("create policy: %w", err)
	}
	s.logChange(ctx, "policy.create", policy.ID)
	return policy, nil
}

func (s *serviceImpl) EditPolicy(ctx context.Context, policy *models.RequestPolicy) (*models.RequestPolicy, error) {
	if err := policy.Specifier.Validate(); err != nil {
		return nil, errors.NewValidationError("specifier", err.Error())
	}
	if err := policy.Rule.Validate(); err != nil {
		return nil, errors.NewValidationError("rule", err.Error())
	}
	if err := s.checkNamedRefsExist(ctx, policy.Rule); err != nil {
		return nil, err
	}
	if _, err := s.policies.Get(ctx, policy.ID); err != nil {
		return nil, fmt.Errorf("get policy: %w", err)
	}
	if err := s.policies.Update(ctx, policy); err != nil {
		return nil, fmt.Errorf("update policy: %w", err)
	}
	s.logChange(ctx, "policy.update", policy.ID)
	return policy, nil
}

func (s *serviceImpl) RemovePolicy(ctx context.Context, id string) error {
	if _, err := s.policies.Get(ctx, id); err != nil {
		return fmt.Errorf("get policy: %w", err)
	}
	if err := s.policies.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete policy: %w", err)
	}
	s.logChange(ctx, "policy.delete", id)
	return nil
}

func (s *serviceImpl) GetPolicy(ctx context.Context, id string) (*models.RequestPolicy, error) {
	return s.policies.Get(ctx, id)
}

func (s *serviceImpl) ListPolicies(ctx context.Context) ([]*models.RequestPolicy, error) {
	return s.policies.List(ctx)
}

func (s *serviceImpl) CreateNamedRule(ctx context.Context, req CreateNamedRuleRequest) (*models.NamedRule, error) {
	if req.Name == "" {
		return nil, errors.NewValidationError("name", "named rule name is required")
	}
	if err := req.Rule.Validate(); err != nil {
		return nil, errors.NewValidationError("rule", err.Error())
	}
	rule := &models.NamedRule{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Description: req.Description,
		Rule:        req.Rule,
	}
	if err := s.checkNamedRefsExist(ctx, req.Rule); err != nil {
		return nil, err
	}
	// Reference cycles are rejected here, at write time, so the evaluator
	// never has to detect them.
	if err := s.checkNoCycle(ctx, rule.ID, req.Rule); err != nil {
		return nil, err
	}
	if err := s.namedRules.Create(ctx, rule); err != nil {
		return nil, fmt.Errorf("create named rule: %w", err)
	}
	s.logChange(ctx, "named_rule.create", rule.ID)
	return rule, nil
}

func (s *serviceImpl) EditNamedRule(ctx context.Context, rule *models.NamedRule) (*models.NamedRule, error) {
	if err := rule.Rule.Validate(); err != nil {
		return nil, errors.NewValidationError("rule", err.Error())
	}
	if _, err := s.namedRules.Get(ctx, rule.ID); err != nil {
		return nil, fmt.Errorf("get named rule: %w", err)
	}
	if err := s.checkNamedRefsExist(ctx, rule.Rule); err != nil {
		return nil, err
	}
	if err := s.checkNoCycle(ctx, rule.ID, rule.Rule); err != nil {
		return nil, err
	}
	if err := s.namedRules.Update(ctx, rule); err != nil {
		return nil, fmt.Errorf("update named rule: %w", err)
	}
	s.logChange(ctx, "named_rule.update", rule.ID)
	return rule, nil
}

func (s *serviceImpl) RemoveNamedRule(ctx context.Context, id string) error {
	if _, err := s.namedRules.Get(ctx, id); err != nil {
		return fmt.Errorf("get named rule: %w", err)
	}

	policies, err := s.policies.List(ctx)
	if err != nil {
		return fmt.Errorf("list policies: %w", err)
	}
	for _, policy := range policies {
		if containsRef(policy.Rule, id) {
			return fmt.Errorf("named rule %s is referenced by policy %s: %w", id, policy.ID, errors.ErrRuleInUse)
		}
	}

	rules, err := s.namedRules.List(ctx)
	if err != nil {
		return fmt.Errorf("list named rules: %w", err)
	}
	for _, other := range rules {
		if other.ID != id && containsRef(other.Rule, id) {
			return fmt.Errorf("named rule %s is referenced by named rule %s: %w", id, other.ID, errors.ErrRuleInUse)
		}
	}

	if err := s.namedRules.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete named rule: %w", err)
	}
	s.logChange(ctx, "named_rule.delete", id)
	return nil
}

func (s *serviceImpl) GetNamedRule(ctx context.Context, id string) (*models.NamedRule, error) {
	return s.namedRules.Get(ctx, id)
}

func (s *serviceImpl) ListNamedRules(ctx context.Context) ([]*models.NamedRule, error) {
	return s.namedRules.List(ctx)
}

func (s *serviceImpl) PoliciesForRequest(ctx context.Context, req *models.Request) ([]*models.RequestPolicy, error) {
	policies, err := s.policies.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	var matched []*models.RequestPolicy
	for _, policy := range policies {
		if s.matcher.Matches(req, policy.Specifier) {
			matched = append(matched, policy)
		}
	}
	return matched, nil
}

func (s *serviceImpl) EvaluateRequest(ctx context.Context, req *models.Request) (models.RuleOutcome, error) {
	matched, err := s.PoliciesForRequest(ctx, req)
	if err != nil {
		return "", err
	}
	if len(matched) == 0 {
		// A request nothing governs is a configuration error, never a
		// silent approval.
		return "", fmt.Errorf("request %s: %w", req.ID, errors.ErrNoApplicablePolicy)
	}

	outcome := models.RuleOutcomeAdopted
	for _, policy := range matched {
		policyOutcome, err := s.evaluator.Evaluate(ctx, policy.Rule, req)
		if err != nil {
			return "", err
		}
		switch policyOutcome {
		case models.RuleOutcomeRejected:
			return models.RuleOutcomeRejected, nil
		case models.RuleOutcomePending:
			outcome = models.RuleOutcomePending
		}
	}
	return outcome, nil
}

func (s *serviceImpl) PossibleApprovers(ctx context.Context, req *models.Request) ([]string, error) {
	matched, err := s.PoliciesForRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	union := make(map[string]struct{})
	for _, policy := range matched {
		set, err := s.evaluator.PossibleApprovers(ctx, policy.Rule, req)
		if err != nil {
			return nil, err
		}
		for userID := range set {
			union[userID] = struct{}{}
		}
	}
	approvers := make([]string, 0, len(union))
	for userID := range union {
		approvers = append(approvers, userID)
	}
	return approvers, nil
}

// checkNamedRefsExist verifies every named rule referenced by the tree is
// stored.
func (s *serviceImpl) checkNamedRefsExist(ctx context.Context, rule models.RequestPolicyRule) error {
	for _, ref := range rule.NamedRuleRefs() {
		if _, err := s.namedRules.Get(ctx, ref); err != nil {
			return errors.NewValidationError("rule", fmt.Sprintf("named rule %s does not exist", ref))
		}
	}
	return nil
}

// checkNoCycle walks named rule references starting from the candidate rule
// body and fails if the walk reaches the rule being written.
func (s *serviceImpl) checkNoCycle(ctx context.Context, ruleID string, rule models.RequestPolicyRule) error {
	visited := make(map[string]bool)
	stack := rule.NamedRuleRefs()
	for len(stack) > 0 {
		ref := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if ref == ruleID {
			return fmt.Errorf("named rule %s references itself: %w", ruleID, errors.ErrRuleCycle)
		}
		if visited[ref] {
			continue
		}
		visited[ref] = true
		named, err := s.namedRules.Get(ctx, ref)
		if err != nil {
			return errors.NewValidationError("rule", fmt.Sprintf("named rule %s does not exist", ref))
		}
		stack = append(stack, named.Rule.NamedRuleRefs()...)
	}
	return nil
}

func containsRef(rule models.RequestPolicyRule, id string) bool {
	for _, ref := range rule.NamedRuleRefs() {
		if ref == id {
			return true
		}
	}
	return false
}

func (s *serviceImpl) logChange(ctx context.Context, change, entityID string) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Log(ctx, &models.AuditEvent{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		EventType: models.AuditEventTypePolicyChange,
		Actor:     "policy-service",
		Result:    models.AuditEventResultSuccess,
		Metadata:  map[string]any{"change": change, "entity_id": entityID},
	})
}
