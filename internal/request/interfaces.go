// Package request owns the lifecycle of custody requests from creation to a
// terminal state.
package request

import (
	"context"
	"time"

	"github.com/stationhq/station/pkg/models"
)

// Clock supplies the current time. Injectable for deterministic tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Repository defines request persistence operations. Implementations must
// keep every secondary access path (by status, by expiration, by schedule,
// by proposer) consistent with the primary record within the same write.
type Repository interface {
	// Create persists a new request.
	Create(ctx context.Context, req *models.Request) error
	// Get retrieves a request by ID.
	Get(ctx context.Context, id string) (*models.Request, error)
	// Update updates an existing request.
	Update(ctx context.Context, req *models.Request) error
	// List returns all requests, most recent first.
	List(ctx context.Context, limit, offset int) ([]*models.Request, error)
	// ListByStatus returns requests in the given status.
	ListByStatus(ctx context.Context, status models.RequestStatus) ([]*models.Request, error)
	// ListByProposer returns requests proposed by the given user.
	ListByProposer(ctx context.Context, userID string) ([]*models.Request, error)
	// ListExpirable returns created requests whose expiration has passed.
	ListExpirable(ctx context.Context, now time.Time) ([]*models.Request, error)
	// ListScheduledDue returns scheduled requests whose execution is due.
	ListScheduledDue(ctx context.Context, now time.Time) ([]*models.Request, error)
}

// Executor runs the operation of an adopted request. Executors are supplied
// per operation type by the surrounding system and invoked only by the state
// machine after adoption.
type Executor interface {
	// Execute performs the operation and returns its result payload.
	Execute(ctx context.Context, req *models.Request) (map[string]any, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, req *models.Request) (map[string]any, error)

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, req *models.Request) (map[string]any, error) {
	return f(ctx, req)
}

// Event describes a request lifecycle notification.
type Event struct {
	RequestID string               `json:"request_id"`
	Status    models.RequestStatus `json:"status"`
	Title     string               `json:"title"`
}

// NotificationSink receives request lifecycle events. Delivery is
// fire-and-forget; a failing sink never blocks or fails a transition.
type NotificationSink interface {
	Notify(ctx context.Context, userID string, event Event)
}

// CreateRequestInput is the caller-supplied portion of a new request.
type CreateRequestInput struct {
	Operation    models.RequestOperation
	Title        string
	Summary      string
	ExpirationAt *time.Time
	ScheduledAt  *time.Time
}

// Service is the request lifecycle engine surface exposed to the transport
// layer.
type Service interface {
	// CreateRequest validates, authorizes and stores a new request, then
	// runs the initial evaluation.
	CreateRequest(ctx context.Context, callerIdentity string, input CreateRequestInput) (*models.Request, error)
	// SubmitApproval records a decision from an eligible approver and
	// re-evaluates the request.
	SubmitApproval(ctx context.Context, callerIdentity, requestID string, decision models.ApprovalDecision, reason string) (*models.Request, error)
	// CancelRequest cancels a created request; only the proposer may cancel.
	CancelRequest(ctx context.Context, callerIdentity, requestID, reason string) (*models.Request, error)
	// Evaluate recomputes the outcome of a request. Idempotent: an
	// unchanged request yields the same outcome and no extra transition.
	Evaluate(ctx context.Context, requestID string) (models.RuleOutcome, error)
	// PossibleApprovers returns the identities currently entitled to cast a
	// decision on the request.
	PossibleApprovers(ctx context.Context, requestID string) ([]string, error)
	// GetRequest retrieves a request, subject to authorization.
	GetRequest(ctx context.Context, callerIdentity, requestID string) (*models.Request, error)
	// ListRequests returns requests, subject to authorization.
	ListRequests(ctx context.Context, callerIdentity string, limit, offset int) ([]*models.Request, error)

	// ExpireDueRequests cancels created requests whose expiration passed.
	// Called by the expiration job; one failing request never aborts the
	// sweep.
	ExpireDueRequests(ctx context.Context) (int, error)
	// ExecuteDueRequests executes scheduled requests whose time has come.
	ExecuteDueRequests(ctx context.Context) (int, error)
}
