package request

import (
	"context"
	"fmt"
	"sync"

	"github.com/stationhq/station/pkg/errors"
	"github.com/stationhq/station/pkg/models"
)

// Registry maps operation types to their executors. The surrounding system
// registers one executor per supported operation at startup; an adopted
// request whose operation has no executor fails execution.
type Registry struct {
	mu        sync.RWMutex
	executors map[models.OperationType]Executor
}

// NewRegistry creates an empty executor registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[models.OperationType]Executor)}
}

// Register binds an executor to an operation type, replacing any previous
// binding.
func (r *Registry) Register(op models.OperationType, executor Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[op] = executor
}

// Get returns the executor for an operation type.
func (r *Registry) Get(op models.OperationType) (Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	executor, ok := r.executors[op]
	return executor, ok
}

// Execute dispatches the request to its operation's executor.
func (r *Registry) Execute(ctx context.Context, req *models.Request) (map[string]any, error) {
	executor, ok := r.Get(req.Operation.Type)
	if !ok {
		return nil, errors.NewExecutionError(req.ID, string(req.Operation.Type),
			fmt.Errorf("no executor registered for operation"))
	}
	result, err := executor.Execute(ctx, req)
	if err != nil {
		return nil, errors.NewExecutionError(req.ID, string(req.Operation.Type), err)
	}
	return result, nil
}
