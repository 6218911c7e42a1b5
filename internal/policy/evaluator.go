package policy

import (
	"context"
	"fmt"

	"github.com/stationhq/station/internal/identity"
	"github.com/stationhq/station/pkg/errors"
	"github.com/stationhq/station/pkg/models"
)

// maxRuleDepth bounds named-rule indirection during evaluation. Cycles are
// rejected at write time; the bound is a backstop against stored state that
// predates that check.
const maxRuleDepth = 32

// Evaluator computes rule outcomes and approval rights over the same rule
// tree. Approver sets are resolved against the live directory at evaluation
// time so membership changes take effect immediately.
type Evaluator struct {
	namedRules NamedRuleRepository
	directory  identity.Directory
}

// NewEvaluator creates a new policy rule evaluator.
func NewEvaluator(namedRules NamedRuleRepository, directory identity.Directory) *Evaluator {
	return &Evaluator{namedRules: namedRules, directory: directory}
}

// Evaluate computes the outcome of a rule against the request's current
// decisions.
func (e *Evaluator) Evaluate(ctx context.Context, rule models.RequestPolicyRule, req *models.Request) (models.RuleOutcome, error) {
	return e.evaluate(ctx, rule, req, 0)
}

func (e *Evaluator) evaluate(ctx context.Context, rule models.RequestPolicyRule, req *models.Request, depth int) (models.RuleOutcome, error) {
	if depth > maxRuleDepth {
		return "", errors.NewEvaluationError(rule.NamedRuleID, fmt.Errorf("rule nesting exceeds %d levels", maxRuleDepth))
	}

	switch rule.Kind {
	case models.RuleAutoApproved:
		return models.RuleOutcomeAdopted, nil

	case models.RuleQuorum, models.RuleQuorumPercentage:
		return e.evaluateQuorum(ctx, rule, req)

	case models.RuleAllOf:
		// All children are evaluated even after the outcome is settled so
		// that re-evaluation on the next approval needs no memoized state.
		outcome := models.RuleOutcomeAdopted
		for _, child := range rule.Rules {
			childOutcome, err := e.evaluate(ctx, child, req, depth+1)
			if err != nil {
				return "", err
			}
			switch childOutcome {
			case models.RuleOutcomeRejected:
				outcome = models.RuleOutcomeRejected
			case models.RuleOutcomePending:
				if outcome != models.RuleOutcomeRejected {
					outcome = models.RuleOutcomePending
				}
			}
		}
		return outcome, nil

	case models.RuleAnyOf:
		outcome := models.RuleOutcomeRejected
		for _, child := range rule.Rules {
			childOutcome, err := e.evaluate(ctx, child, req, depth+1)
			if err != nil {
				return "", err
			}
			switch childOutcome {
			case models.RuleOutcomeAdopted:
				outcome = models.RuleOutcomeAdopted
			case models.RuleOutcomePending:
				if outcome != models.RuleOutcomeAdopted {
					outcome = models.RuleOutcomePending
				}
			}
		}
		return outcome, nil

	case models.RuleNot:
		childOutcome, err := e.evaluate(ctx, *rule.Rule, req, depth+1)
		if err != nil {
			return "", err
		}
		switch childOutcome {
		case models.RuleOutcomeAdopted:
			return models.RuleOutcomeRejected, nil
		case models.RuleOutcomeRejected:
			return models.RuleOutcomeAdopted, nil
		default:
			return models.RuleOutcomePending, nil
		}

	case models.RuleNamed:
		named, err := e.namedRules.Get(ctx, rule.NamedRuleID)
		if err != nil {
			return "", errors.NewEvaluationError(rule.NamedRuleID, fmt.Errorf("resolve named rule: %w", err))
		}
		return e.evaluate(ctx, named.Rule, req, depth+1)

	default:
		return "", errors.NewEvaluationError("", fmt.Errorf("unknown rule kind %q", rule.Kind))
	}
}

// evaluateQuorum applies the threshold arithmetic shared by absolute and
// percentage quorum rules.
func (e *Evaluator) evaluateQuorum(ctx context.Context, rule models.RequestPolicyRule, req *models.Request) (models.RuleOutcome, error) {
	eligible, err := e.resolveApprovers(ctx, *rule.Approvers, req)
	if err != nil {
		return "", err
	}

	required := 0
	switch rule.Kind {
	case models.RuleQuorum:
		required = rule.MinApproved
		if required > len(eligible) {
			required = len(eligible)
		}
	case models.RuleQuorumPercentage:
		required = (rule.MinPercentage*len(eligible) + 99) / 100
		if required < 1 {
			required = 1
		}
	}

	// Decisions from identities outside this leaf's eligible set are
	// ignored; an identity may be eligible for one leaf of a composite rule
	// and not another.
	approved, rejected := 0, 0
	for _, approval := range req.Approvals {
		if _, ok := eligible[approval.ApproverID]; !ok {
			continue
		}
		switch approval.Decision {
		case models.ApprovalDecisionApproved:
			approved++
		case models.ApprovalDecisionRejected:
			rejected++
		}
	}

	if approved >= required {
		return models.RuleOutcomeAdopted, nil
	}
	// Quorum is mathematically unreachable once too many eligible approvers
	// have rejected.
	if len(eligible)-rejected < required {
		return models.RuleOutcomeRejected, nil
	}
	return models.RuleOutcomePending, nil
}

// resolveApprovers resolves an approver specifier to the eligible user set.
func (e *Evaluator) resolveApprovers(ctx context.Context, spec models.ApproverSpecifier, req *models.Request) (map[string]struct{}, error) {
	eligible := make(map[string]struct{})

	switch spec.Kind {
	case models.ApproversUsers:
		active, err := e.activeSet(ctx)
		if err != nil {
			return nil, err
		}
		for _, userID := range spec.UserIDs {
			if _, ok := active[userID]; ok {
				eligible[userID] = struct{}{}
			}
		}

	case models.ApproversGroups:
		for _, groupID := range spec.GroupIDs {
			members, err := e.directory.MembersOf(ctx, groupID)
			if err != nil {
				return nil, errors.NewEvaluationError("", fmt.Errorf("resolve group %s: %w", groupID, err))
			}
			for _, userID := range members {
				eligible[userID] = struct{}{}
			}
		}

	case models.ApproversRelated:
		active, err := e.activeSet(ctx)
		if err != nil {
			return nil, err
		}
		related := append(req.Operation.RelatedUsers(), req.RequestedBy)
		for _, userID := range related {
			if _, ok := active[userID]; ok {
				eligible[userID] = struct{}{}
			}
		}

	default:
		return nil, errors.NewEvaluationError("", fmt.Errorf("unknown approver specifier kind %q", spec.Kind))
	}

	return eligible, nil
}

func (e *Evaluator) activeSet(ctx context.Context) (map[string]struct{}, error) {
	ids, err := e.directory.ActiveUserIDs(ctx)
	if err != nil {
		return nil, errors.NewEvaluationError("", fmt.Errorf("list active users: %w", err))
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}
