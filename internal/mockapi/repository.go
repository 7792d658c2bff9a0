package mockapi

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/yigit/academydesk/internal/academy"
	"github.com/yigit/academydesk/internal/pkg/apperrors"
)

// Repository is an in-memory collection of T keyed by id, kept in
// insertion order.
type Repository[T academy.Record] struct {
	mu     sync.RWMutex
	name   string
	order  []string
	items  map[string]T
	withID func(T, string) T
}

// NewRepository creates an empty repository; withID stamps an id on a record
func NewRepository[T academy.Record](name string, withID func(T, string) T) *Repository[T] {
	return &Repository[T]{
		name:   name,
		items:  make(map[string]T),
		withID: withID,
	}
}

// List returns every record
func (r *Repository[T]) List(_ context.Context) ([]T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]T, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.items[id])
	}
	return out, nil
}

// Get returns the record id
func (r *Repository[T]) Get(_ context.Context, id string) (T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[id]
	if !ok {
		return item, fmt.Errorf("%s %s: %w", r.name, id, apperrors.ErrResourceNotFound)
	}
	return item, nil
}

// Create stores item under a fresh id
func (r *Repository[T]) Create(_ context.Context, item T) (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item = r.withID(item, uuid.New().String())
	r.items[item.RecordID()] = item
	r.order = append(r.order, item.RecordID())
	return item, nil
}

// Update replaces the record id
func (r *Repository[T]) Update(_ context.Context, id string, item T) (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		var zero T
		return zero, fmt.Errorf("%s %s: %w", r.name, id, apperrors.ErrResourceNotFound)
	}
	item = r.withID(item, id)
	r.items[id] = item
	return item, nil
}

// Delete removes the record id
func (r *Repository[T]) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return fmt.Errorf("%s %s: %w", r.name, id, apperrors.ErrResourceNotFound)
	}
	delete(r.items, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}
