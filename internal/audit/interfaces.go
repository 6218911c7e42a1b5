// Package audit handles immutable audit logging of request lifecycle and
// administrative changes.
package audit

import (
	"context"
	"time"

	"github.com/stationhq/station/pkg/models"
)

// Repository defines audit log persistence operations.
type Repository interface {
	// Create persists a new audit event.
	Create(ctx context.Context, event *models.AuditEvent) error
	// Get retrieves an audit event by ID.
	Get(ctx context.Context, id string) (*models.AuditEvent, error)
	// Query retrieves audit events matching criteria, most recent first.
	Query(ctx context.Context, query QueryParams) ([]*models.AuditEvent, error)
}

// QueryParams defines audit log query parameters.
type QueryParams struct {
	RequestID string
	EventType models.AuditEventType
	Actor     string
	Result    models.AuditEventResult
	Since     time.Time
	Until     time.Time
	Limit     int
	Offset    int
}

// Forwarder forwards audit events to an external sink.
type Forwarder interface {
	// Forward sends an audit event to an external system.
	Forward(ctx context.Context, event *models.AuditEvent) error
}

// Service handles audit business logic.
type Service interface {
	// Log records an audit event, chaining it to the previous one.
	Log(ctx context.Context, event *models.AuditEvent) error
	// Query retrieves audit events matching criteria.
	Query(ctx context.Context, query QueryParams) ([]*models.AuditEvent, error)
	// VerifyChain verifies the hash chain over the stored events.
	VerifyChain(ctx context.Context, since, until time.Time) (bool, error)
}
