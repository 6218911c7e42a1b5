package policy

import (
	"context"
	"fmt"

	"github.com/stationhq/station/pkg/errors"
	"github.com/stationhq/station/pkg/models"
)

// PossibleApprovers returns the set of users currently entitled to cast a
// decision under the rule. This is a separate computation from Evaluate:
// recovering "who may approve" from the outcome would mean inverting quorum
// arithmetic. Every quorum leaf contributes its eligible set; Not contributes
// the same set as its child, since eligibility to vote is unaffected by how
// the vote is interpreted.
func (e *Evaluator) PossibleApprovers(ctx context.Context, rule models.RequestPolicyRule, req *models.Request) (map[string]struct{}, error) {
	return e.possibleApprovers(ctx, rule, req, 0)
}

func (e *Evaluator) possibleApprovers(ctx context.Context, rule models.RequestPolicyRule, req *models.Request, depth int) (map[string]struct{}, error) {
	if depth > maxRuleDepth {
		return nil, errors.NewEvaluationError(rule.NamedRuleID, fmt.Errorf("rule nesting exceeds %d levels", maxRuleDepth))
	}

	switch rule.Kind {
	case models.RuleAutoApproved:
		return map[string]struct{}{}, nil

	case models.RuleQuorum, models.RuleQuorumPercentage:
		return e.resolveApprovers(ctx, *rule.Approvers, req)

	case models.RuleAllOf, models.RuleAnyOf:
		union := make(map[string]struct{})
		for _, child := range rule.Rules {
			set, err := e.possibleApprovers(ctx, child, req, depth+1)
			if err != nil {
				return nil, err
			}
			for userID := range set {
				union[userID] = struct{}{}
			}
		}
		return union, nil

	case models.RuleNot:
		return e.possibleApprovers(ctx, *rule.Rule, req, depth+1)

	case models.RuleNamed:
		named, err := e.namedRules.Get(ctx, rule.NamedRuleID)
		if err != nil {
			return nil, errors.NewEvaluationError(rule.NamedRuleID, fmt.Errorf("resolve named rule: %w", err))
		}
		return e.possibleApprovers(ctx, named.Rule, req, depth+1)

	default:
		return nil, errors.NewEvaluationError("", fmt.Errorf("unknown rule kind %q", rule.Kind))
	}
}
