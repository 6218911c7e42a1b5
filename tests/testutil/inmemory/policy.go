package inmemory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/stationhq/station/pkg/errors"
	"github.com/stationhq/station/pkg/models"
)

// PolicyRepository is an in-memory request policy repository.
type PolicyRepository struct {
	mu       sync.RWMutex
	policies map[string]*models.RequestPolicy
}

// NewPolicyRepository creates a new in-memory policy repository.
func NewPolicyRepository() *PolicyRepository {
	return &PolicyRepository{policies: make(map[string]*models.RequestPolicy)}
}

func (r *PolicyRepository) Create(ctx context.Context, policy *models.RequestPolicy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if policy.ID == "" {
		policy.ID = uuid.New().String()
	}
	copied := *policy
	r.policies[policy.ID] = &copied
	return nil
}

func (r *PolicyRepository) Get(ctx context.Context, id string) (*models.RequestPolicy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	policy, ok := r.policies[id]
	if !ok {
		return nil, errors.ErrNotFound
	}
	copied := *policy
	return &copied, nil
}

func (r *PolicyRepository) Update(ctx context.Context, policy *models.RequestPolicy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.policies[policy.ID]; !ok {
		return errors.ErrNotFound
	}
	copied := *policy
	r.policies[policy.ID] = &copied
	return nil
}

func (r *PolicyRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.policies[id]; !ok {
		return errors.ErrNotFound
	}
	delete(r.policies, id)
	return nil
}

func (r *PolicyRepository) List(ctx context.Context) ([]*models.RequestPolicy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*models.RequestPolicy, 0, len(r.policies))
	for _, policy := range r.policies {
		copied := *policy
		result = append(result, &copied)
	}
	return result, nil
}

// NamedRuleRepository is an in-memory named rule repository.
type NamedRuleRepository struct {
	mu    sync.RWMutex
	rules map[string]*models.NamedRule
}

// NewNamedRuleRepository creates a new in-memory named rule repository.
func NewNamedRuleRepository() *NamedRuleRepository {
	return &NamedRuleRepository{rules: make(map[string]*models.NamedRule)}
}

func (r *NamedRuleRepository) Create(ctx context.Context, rule *models.NamedRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	copied := *rule
	r.rules[rule.ID] = &copied
	return nil
}

func (r *NamedRuleRepository) Get(ctx context.Context, id string) (*models.NamedRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.rules[id]
	if !ok {
		return nil, errors.ErrNotFound
	}
	copied := *rule
	return &copied, nil
}

func (r *NamedRuleRepository) Update(ctx context.Context, rule *models.NamedRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rules[rule.ID]; !ok {
		return errors.ErrNotFound
	}
	copied := *rule
	r.rules[rule.ID] = &copied
	return nil
}

func (r *NamedRuleRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rules[id]; !ok {
		return errors.ErrNotFound
	}
	delete(r.rules, id)
	return nil
}

func (r *NamedRuleRepository) List(ctx context.Context) ([]*models.NamedRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*models.NamedRule, 0, len(r.rules))
	for _, rule := range r.rules {
		copied := *rule
		result = append(result, &copied)
	}
	return result, nil
}
