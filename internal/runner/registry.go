package runner

import (
	"context"
	"fmt"
	"sync"
)

// ActionFunc is an in-process action implementation.
type ActionFunc func(params any) (any, error)

// Registry is an in-process ActionInvoker that dispatches each action name to
// a registered Go function.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]ActionFunc
}

func NewRegistry() *Registry {
	return &Registry{actions: make(map[string]ActionFunc)}
}

func (r *Registry) Register(name string, fn ActionFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[name] = fn
}

func (r *Registry) Invoke(ctx context.Context, name string, params any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	fn, ok := r.actions[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("action %s is not registered", name)
	}
	return fn(params)
}

// EchoRegistry resolves every action to one that returns its input unchanged.
// It backs mock runs where only the control flow is of interest.
type EchoRegistry struct{}

func (EchoRegistry) Invoke(ctx context.Context, name string, params any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return params, nil
}
