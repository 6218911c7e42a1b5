// Package inmemory provides in-memory implementations for testing.
package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/stationhq/station/pkg/errors"
	"github.com/stationhq/station/pkg/models"
)

// RequestRepository is an in-memory request repository.
type RequestRepository struct {
	mu       sync.RWMutex
	requests map[string]*models.Request
}

// NewRequestRepository creates a new in-memory request repository.
func NewRequestRepository() *RequestRepository {
	return &RequestRepository{requests: make(map[string]*models.Request)}
}

func (r *RequestRepository) Create(ctx context.Context, req *models.Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *req
	r.requests[req.ID] = &copied
	return nil
}

func (r *RequestRepository) Get(ctx context.Context, id string) (*models.Request, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	req, ok := r.requests[id]
	if !ok {
		return nil, errors.ErrNotFound
	}
	copied := *req
	copied.Approvals = append([]models.RequestApproval(nil), req.Approvals...)
	return &copied, nil
}

func (r *RequestRepository) Update(ctx context.Context, req *models.Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.requests[req.ID]; !ok {
		return errors.ErrNotFound
	}
	copied := *req
	copied.Approvals = append([]models.RequestApproval(nil), req.Approvals...)
	r.requests[req.ID] = &copied
	return nil
}

func (r *RequestRepository) list(filter func(*models.Request) bool) []*models.Request {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*models.Request
	for _, req := range r.requests {
		if filter == nil || filter(req) {
			copied := *req
			copied.Approvals = append([]models.RequestApproval(nil), req.Approvals...)
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

func (r *RequestRepository) List(ctx context.Context, limit, offset int) ([]*models.Request, error) {
	result := r.list(nil)
	if offset < len(result) {
		result = result[offset:]
	} else {
		result = nil
	}
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *RequestRepository) ListByStatus(ctx context.Context, status models.RequestStatus) ([]*models.Request, error) {
	return r.list(func(req *models.Request) bool {
		return req.Status == status
	}), nil
}

func (r *RequestRepository) ListByProposer(ctx context.Context, userID string) ([]*models.Request, error) {
	return r.list(func(req *models.Request) bool {
		return req.RequestedBy == userID
	}), nil
}

func (r *RequestRepository) ListExpirable(ctx context.Context, now time.Time) ([]*models.Request, error) {
	return r.list(func(req *models.Request) bool {
		return req.Status == models.RequestStatusCreated && !req.ExpirationAt.After(now)
	}), nil
}

func (r *RequestRepository) ListScheduledDue(ctx context.Context, now time.Time) ([]*models.Request, error) {
	return r.list(func(req *models.Request) bool {
		return req.Status == models.RequestStatusScheduled &&
			req.ScheduledAt != nil && !req.ScheduledAt.After(now)
	}), nil
}
