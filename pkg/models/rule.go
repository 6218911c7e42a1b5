package models

import (
	"fmt"
)

// RuleOutcome is the verdict of evaluating an approval rule against the
// current set of decisions on a request.
type RuleOutcome string

const (
	RuleOutcomeAdopted  RuleOutcome = "adopted"
	RuleOutcomeRejected RuleOutcome = "rejected"
	RuleOutcomePending  RuleOutcome = "pending"
)

// RuleKind tags the variant of a RequestPolicyRule.
type RuleKind string

const (
	RuleAutoApproved     RuleKind = "auto_approved"
	RuleQuorum           RuleKind = "quorum"
	RuleQuorumPercentage RuleKind = "quorum_percentage"
	RuleAllOf            RuleKind = "all_of"
	RuleAnyOf            RuleKind = "any_of"
	RuleNot              RuleKind = "not"
	RuleNamed            RuleKind = "named_rule"
)

// RequestPolicyRule is a recursive approval condition. Exactly the fields of
// the tagged kind are set; Validate enforces the shape.
type RequestPolicyRule struct {
	Kind RuleKind `json:"kind"`

	// Quorum and QuorumPercentage.
	Approvers     *ApproverSpecifier `json:"approvers,omitempty"`
	MinApproved   int                `json:"min_approved,omitempty"`
	MinPercentage int                `json:"min_percentage,omitempty"`

	// AllOf and AnyOf.
	Rules []RequestPolicyRule `json:"rules,omitempty"`

	// Not.
	Rule *RequestPolicyRule `json:"rule,omitempty"`

	// NamedRule.
	NamedRuleID string `json:"named_rule_id,omitempty"`
}

// Validate checks the structural shape of the rule tree.
func (r RequestPolicyRule) Validate() error {
	switch r.Kind {
	case RuleAutoApproved:
		return nil
	case RuleQuorum:
		if r.Approvers == nil {
			return fmt.Errorf("quorum rule requires an approver specifier")
		}
		if r.MinApproved < 1 {
			return fmt.Errorf("quorum rule requires min_approved >= 1, got %d", r.MinApproved)
		}
		return r.Approvers.Validate()
	case RuleQuorumPercentage:
		if r.Approvers == nil {
			return fmt.Errorf("quorum percentage rule requires an approver specifier")
		}
		if r.MinPercentage < 0 || r.MinPercentage > 100 {
			return fmt.Errorf("min_percentage must be within [0,100], got %d", r.MinPercentage)
		}
		return r.Approvers.Validate()
	case RuleAllOf, RuleAnyOf:
		if len(r.Rules) == 0 {
			return fmt.Errorf("%s rule requires at least one child rule", r.Kind)
		}
		for i, child := range r.Rules {
			if err := child.Validate(); err != nil {
				return fmt.Errorf("%s child %d: %w", r.Kind, i, err)
			}
		}
		return nil
	case RuleNot:
		if r.Rule == nil {
			return fmt.Errorf("not rule requires a child rule")
		}
		return r.Rule.Validate()
	case RuleNamed:
		if r.NamedRuleID == "" {
			return fmt.Errorf("named rule reference requires an id")
		}
		return nil
	default:
		return fmt.Errorf("unknown rule kind %q", r.Kind)
	}
}

// NamedRuleRefs returns the IDs of all named rules referenced anywhere in
// the tree. Used for write-time cycle and in-use detection.
func (r RequestPolicyRule) NamedRuleRefs() []string {
	var refs []string
	switch r.Kind {
	case RuleNamed:
		refs = append(refs, r.NamedRuleID)
	case RuleAllOf, RuleAnyOf:
		for _, child := range r.Rules {
			refs = append(refs, child.NamedRuleRefs()...)
		}
	case RuleNot:
		if r.Rule != nil {
			refs = append(refs, r.Rule.NamedRuleRefs()...)
		}
	}
	return refs
}

// ApproverKind tags the variant of an ApproverSpecifier.
type ApproverKind string

const (
	// ApproversUsers is an explicit list of user IDs.
	ApproversUsers ApproverKind = "users"
	// ApproversGroups is every active member of the listed groups.
	ApproversGroups ApproverKind = "groups"
	// ApproversRelated is every active user related to the request: the
	// users the operation touches, resolved at evaluation time.
	ApproversRelated ApproverKind = "related"
)

// ApproverSpecifier defines the eligible-approver set of a quorum-style rule.
// The set is resolved against the live directory at evaluation time, never
// cached at request creation.
type ApproverSpecifier struct {
	Kind     ApproverKind `json:"kind"`
	UserIDs  []string     `json:"user_ids,omitempty"`
	GroupIDs []string     `json:"group_ids,omitempty"`
}

// Validate checks the structural shape of the specifier.
func (a ApproverSpecifier) Validate() error {
	switch a.Kind {
	case ApproversUsers:
		if len(a.UserIDs) == 0 {
			return fmt.Errorf("users approver specifier requires at least one user id")
		}
		return nil
	case ApproversGroups:
		if len(a.GroupIDs) == 0 {
			return fmt.Errorf("groups approver specifier requires at least one group id")
		}
		return nil
	case ApproversRelated:
		return nil
	default:
		return fmt.Errorf("unknown approver specifier kind %q", a.Kind)
	}
}

// SpecifierKind tags the variant of a RequestSpecifier.
type SpecifierKind string

const (
	// SpecifierAny matches every request.
	SpecifierAny SpecifierKind = "any"
	// SpecifierOperation matches requests whose operation type is listed.
	SpecifierOperation SpecifierKind = "operation"
	// SpecifierAccount matches requests whose operation touches a selected
	// account.
	SpecifierAccount SpecifierKind = "account"
	// SpecifierUser matches requests whose operation touches a selected user.
	SpecifierUser SpecifierKind = "user"
	// SpecifierProposer matches requests proposed by a selected user.
	SpecifierProposer SpecifierKind = "proposer"
	// SpecifierOperationMetadata matches requests whose operation input
	// carries the given metadata key/value pair.
	SpecifierOperationMetadata SpecifierKind = "operation_metadata"
)

// IDSelector selects either every ID or an explicit list.
type IDSelector struct {
	All bool     `json:"all,omitempty"`
	IDs []string `json:"ids,omitempty"`
}

// Selects reports whether the selector covers the given ID.
func (s IDSelector) Selects(id string) bool {
	if s.All {
		return true
	}
	for _, candidate := range s.IDs {
		if candidate == id {
			return true
		}
	}
	return false
}

// Validate checks the selector selects something.
func (s IDSelector) Validate() error {
	if !s.All && len(s.IDs) == 0 {
		return fmt.Errorf("id selector must be 'all' or list at least one id")
	}
	return nil
}

// RequestSpecifier is a predicate over requests deciding whether a policy
// governs them. Matching is pure and total; a specifier that does not apply
// to a request's operation type simply does not match.
type RequestSpecifier struct {
	Kind SpecifierKind `json:"kind"`

	Operations []OperationType `json:"operations,omitempty"`
	Accounts   *IDSelector     `json:"accounts,omitempty"`
	Users      *IDSelector     `json:"users,omitempty"`
	Proposers  *IDSelector     `json:"proposers,omitempty"`

	MetadataKey   string `json:"metadata_key,omitempty"`
	MetadataValue string `json:"metadata_value,omitempty"`
}

// Validate checks the structural shape of the specifier.
func (s RequestSpecifier) Validate() error {
	switch s.Kind {
	case SpecifierAny:
		return nil
	case SpecifierOperation:
		if len(s.Operations) == 0 {
			return fmt.Errorf("operation specifier requires at least one operation type")
		}
		return nil
	case SpecifierAccount:
		if s.Accounts == nil {
			return fmt.Errorf("account specifier requires an account selector")
		}
		return s.Accounts.Validate()
	case SpecifierUser:
		if s.Users == nil {
			return fmt.Errorf("user specifier requires a user selector")
		}
		return s.Users.Validate()
	case SpecifierProposer:
		if s.Proposers == nil {
			return fmt.Errorf("proposer specifier requires a proposer selector")
		}
		return s.Proposers.Validate()
	case SpecifierOperationMetadata:
		if s.MetadataKey == "" {
			return fmt.Errorf("operation metadata specifier requires a key")
		}
		return nil
	default:
		return fmt.Errorf("unknown request specifier kind %q", s.Kind)
	}
}
