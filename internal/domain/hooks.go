package domain

import (
	"context"
	"sync"
)

// HookEvent names a lifecycle point that runs after a transaction commits.
type HookEvent string

const (
	AfterCreate   HookEvent = "after_create"
	AfterValidate HookEvent = "after_validate"
	AfterCancel   HookEvent = "after_cancel"
	AfterSettle   HookEvent = "after_settle"
)

// Hook is a function that runs at specific lifecycle points.
type Hook[T any] func(ctx context.Context, entity T) error

// HookRegistry stores lifecycle hooks for an entity type.
// Hooks run after commit, so a failing hook cannot undo the operation;
// callers log hook errors.
type HookRegistry[T any] struct {
	mu    sync.RWMutex
	hooks map[HookEvent][]Hook[T]
}

// NewHookRegistry creates an empty hook registry.
func NewHookRegistry[T any]() *HookRegistry[T] {
	return &HookRegistry[T]{
		hooks: make(map[HookEvent][]Hook[T]),
	}
}

// On registers hook for event.
func (r *HookRegistry[T]) On(event HookEvent, hook Hook[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[event] = append(r.hooks[event], hook)
}

// Run executes the hooks of event in registration order and returns the
// first error.
func (r *HookRegistry[T]) Run(ctx context.Context, event HookEvent, entity T) error {
	r.mu.RLock()
	hooks := r.hooks[event]
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := h(ctx, entity); err != nil {
			return err
		}
	}
	return nil
}
