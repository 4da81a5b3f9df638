package tenant

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// OpenFunc builds the per-tenant value on first use.
type OpenFunc[T any] func(ctx context.Context, id string) (T, error)

// CloseFunc releases a per-tenant value.
type CloseFunc[T any] func(T) error

// Registry lazily opens and caches one T per tenant.
type Registry[T any] struct {
	open  OpenFunc[T]
	close CloseFunc[T]

	mu      sync.Mutex
	entries map[string]T
	closed  bool
}

// NewRegistry returns a registry. close may be nil.
func NewRegistry[T any](open OpenFunc[T], close CloseFunc[T]) *Registry[T] {
	return &Registry[T]{
		open:    open,
		close:   close,
		entries: make(map[string]T),
	}
}

// Get returns the value for tenant id, opening it if needed.
func (r *Registry[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	if err := Validate(id); err != nil {
		return zero, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return zero, errors.New("tenant registry closed")
	}
	if v, ok := r.entries[id]; ok {
		return v, nil
	}
	v, err := r.open(ctx, id)
	if err != nil {
		return zero, fmt.Errorf("open tenant %s: %w", id, err)
	}
	r.entries[id] = v
	return v, nil
}

// ForContext returns the value for the tenant carried by ctx.
func (r *Registry[T]) ForContext(ctx context.Context) (T, error) {
	id, err := Require(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	return r.Get(ctx, id)
}

// Tenants returns the ids opened so far in sorted order.
func (r *Registry[T]) Tenants() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close closes every opened value. The registry rejects Get afterwards.
func (r *Registry[T]) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	var errs []error
	for id, v := range r.entries {
		if r.close != nil {
			if err := r.close(v); err != nil {
				errs = append(errs, fmt.Errorf("close tenant %s: %w", id, err))
			}
		}
		delete(r.entries, id)
	}
	return errors.Join(errs...)
}
