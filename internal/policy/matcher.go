package policy

import (
	"fmt"

	"github.com/stationhq/station/pkg/models"
)

// Matcher decides whether a request specifier governs a request. Matching is
// pure and total: an operation type the specifier does not apply to returns
// false, never an error.
type Matcher struct{}

// NewMatcher creates a new request specifier matcher.
func NewMatcher() *Matcher {
	return &Matcher{}
}

// Matches reports whether the specifier selects the request.
func (m *Matcher) Matches(req *models.Request, spec models.RequestSpecifier) bool {
	switch spec.Kind {
	case models.SpecifierAny:
		return true

	case models.SpecifierOperation:
		for _, op := range spec.Operations {
			if req.Operation.Type == op {
				return true
			}
		}
		return false

	case models.SpecifierAccount:
		if spec.Accounts == nil {
			return false
		}
		for _, accountID := range req.Operation.RelatedAccounts() {
			if spec.Accounts.Selects(accountID) {
				return true
			}
		}
		return false

	case models.SpecifierUser:
		if spec.Users == nil {
			return false
		}
		for _, userID := range req.Operation.RelatedUsers() {
			if spec.Users.Selects(userID) {
				return true
			}
		}
		return false

	case models.SpecifierProposer:
		return spec.Proposers != nil && spec.Proposers.Selects(req.RequestedBy)

	case models.SpecifierOperationMetadata:
		value, ok := req.Operation.Input[spec.MetadataKey]
		if !ok {
			return false
		}
		return fmt.Sprintf("%v", value) == spec.MetadataValue

	default:
		return false
	}
}
