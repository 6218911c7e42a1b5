package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stationhq/station/pkg/errors"
	"github.com/stationhq/station/pkg/models"
)

// NewService creates a new audit service. The forwarder may be nil.
func NewService(repo Repository, forwarder Forwarder) Service {
	return &serviceImpl{repo: repo, forwarder: forwarder}
}

type serviceImpl struct {
	repo      Repository
	forwarder Forwarder
	mu        sync.Mutex
}

func (s *serviceImpl) Log(ctx context.Context, event *models.AuditEvent) error {
	if event.Actor == "" {
		return fmt.Errorf("actor is required: %w", errors.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	event.DataHash = computeEventHash(event)

	prevHash, err := s.previousChainHash(ctx)
	if err != nil {
		return fmt.Errorf("get previous chain hash: %w", err)
	}
	if event.Metadata == nil {
		event.Metadata = make(map[string]any)
	}
	event.Metadata["chain_hash"] = computeChainHash(event.DataHash, prevHash)
	event.Metadata["prev_hash"] = prevHash

	if err := s.repo.Create(ctx, event); err != nil {
		return fmt.Errorf("create audit event: %w", err)
	}

	if s.forwarder != nil {
		// Forward asynchronously; a failing sink never blocks the write.
		go func() {
			_ = s.forwarder.Forward(context.Background(), event)
		}()
	}
	return nil
}

func (s *serviceImpl) previousChainHash(ctx context.Context) (string, error) {
	events, err := s.repo.Query(ctx, QueryParams{Limit: 1})
	if err != nil {
		return "", err
	}
	if len(events) == 0 {
		return "genesis", nil
	}
	if events[0].Metadata != nil {
		if chainHash, ok := events[0].Metadata["chain_hash"].(string); ok {
			return chainHash, nil
		}
	}
	if events[0].DataHash != "" {
		return events[0].DataHash, nil
	}
	return "genesis", nil
}

func (s *serviceImpl) Query(ctx context.Context, query QueryParams) ([]*models.AuditEvent, error) {
	events, err := s.repo.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	return events, nil
}

func (s *serviceImpl) VerifyChain(ctx context.Context, since, until time.Time) (bool, error) {
	events, err := s.repo.Query(ctx, QueryParams{Since: since, Until: until, Limit: 100000})
	if err != nil {
		return false, fmt.Errorf("query audit events for verification: %w", err)
	}
	if len(events) == 0 {
		return true, nil
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})

	for _, event := range events {
		if event.DataHash != "" && event.DataHash != computeEventHash(event) {
			return false, nil
		}
		if event.Metadata == nil {
			continue
		}
		chainHash, hasChain := event.Metadata["chain_hash"].(string)
		prevHash, hasPrev := event.Metadata["prev_hash"].(string)
		if hasChain && hasPrev && chainHash != computeChainHash(event.DataHash, prevHash) {
			return false, nil
		}
	}
	return true, nil
}

// computeEventHash computes a SHA-256 hash over the immutable event fields.
func computeEventHash(event *models.AuditEvent) string {
	h := sha256.New()
	h.Write([]byte(event.ID))
	h.Write([]byte(event.Timestamp.Format(time.RFC3339Nano)))
	h.Write([]byte(event.RequestID))
	h.Write([]byte(event.EventType))
	h.Write([]byte(event.Actor))
	h.Write([]byte(event.Result))
	return hex.EncodeToString(h.Sum(nil))
}

func computeChainHash(currentHash, prevHash string) string {
	h := sha256.New()
	h.Write([]byte(prevHash))
	h.Write([]byte(currentHash))
	return hex.EncodeToString(h.Sum(nil))
}
