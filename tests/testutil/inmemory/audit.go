package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/stationhq/station/internal/audit"
	"github.com/stationhq/station/pkg/errors"
	"github.com/stationhq/station/pkg/models"
)

// AuditRepository is an in-memory audit event repository.
type AuditRepository struct {
	mu     sync.RWMutex
	events []*models.AuditEvent
}

// NewAuditRepository creates a new in-memory audit repository.
func NewAuditRepository() *AuditRepository {
	return &AuditRepository{}
}

func (r *AuditRepository) Create(ctx context.Context, event *models.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *event
	r.events = append(r.events, &copied)
	return nil
}

func (r *AuditRepository) Get(ctx context.Context, id string) (*models.AuditEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, event := range r.events {
		if event.ID == id {
			copied := *event
			return &copied, nil
		}
	}
	return nil, errors.ErrNotFound
}

func (r *AuditRepository) Query(ctx context.Context, query audit.QueryParams) ([]*models.AuditEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*models.AuditEvent
	for _, event := range r.events {
		if query.RequestID != "" && event.RequestID != query.RequestID {
			continue
		}
		if query.EventType != "" && event.EventType != query.EventType {
			continue
		}
		if query.Actor != "" && event.Actor != query.Actor {
			continue
		}
		if query.Result != "" && event.Result != query.Result {
			continue
		}
		if !query.Since.IsZero() && event.Timestamp.Before(query.Since) {
			continue
		}
		if !query.Until.IsZero() && event.Timestamp.After(query.Until) {
			continue
		}
		copied := *event
		result = append(result, &copied)
	}

	// Most recent first, matching the SQL repository.
	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.After(result[j].Timestamp)
	})

	if query.Offset > 0 {
		if query.Offset >= len(result) {
			return nil, nil
		}
		result = result[query.Offset:]
	}
	if query.Limit > 0 && len(result) > query.Limit {
		result = result[:query.Limit]
	}
	return result, nil
}

// Events returns all recorded events in insertion order.
func (r *AuditRepository) Events() []*models.AuditEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*models.AuditEvent, 0, len(r.events))
	for _, event := range r.events {
		copied := *event
		result = append(result, &copied)
	}
	return result
}

// CaptureForwarder records forwarded audit events.
type CaptureForwarder struct {
	mu     sync.Mutex
	events []*models.AuditEvent
}

// NewCaptureForwarder creates a new capture forwarder.
func NewCaptureForwarder() *CaptureForwarder {
	return &CaptureForwarder{}
}

func (f *CaptureForwarder) Forward(ctx context.Context, event *models.AuditEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *event
	f.events = append(f.events, &copied)
	return nil
}

// Forwarded returns the forwarded events.
func (f *CaptureForwarder) Forwarded() []*models.AuditEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*models.AuditEvent(nil), f.events...)
}
