package request

import (
	"fmt"

	"github.com/stationhq/station/pkg/errors"
	"github.com/stationhq/station/pkg/models"
)

// legalTransitions is the request state machine. Rejected, Cancelled,
// Completed and Failed are terminal.
var legalTransitions = map[models.RequestStatus][]models.RequestStatus{
	models.RequestStatusCreated: {
		models.RequestStatusApproved,
		models.RequestStatusRejected,
		models.RequestStatusCancelled,
	},
	models.RequestStatusApproved: {
		models.RequestStatusScheduled,
		models.RequestStatusProcessing,
	},
	models.RequestStatusScheduled: {
		models.RequestStatusProcessing,
	},
	models.RequestStatusProcessing: {
		models.RequestStatusCompleted,
		models.RequestStatusFailed,
	},
}

// canTransition reports whether the edge from one status to another is legal.
func canTransition(from, to models.RequestStatus) bool {
	for _, allowed := range legalTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// transition moves the request to a new status, enforcing the state machine.
// The caller persists the request afterwards.
func (s *serviceImpl) transition(req *models.Request, to models.RequestStatus, reason string) error {
	if !canTransition(req.Status, to) {
		return fmt.Errorf("request %s: illegal transition %s -> %s: %w",
			req.ID, req.Status, to, errors.ErrConflict)
	}
	req.Status = to
	req.StatusReason = reason
	req.LastModifiedAt = s.clock.Now()
	return nil
}
