// Package deferred provides a settle-once result handle.
//
// A Deferred is created before the work it represents starts, handed to
// whoever will eventually perform that work, and awaited by whoever asked
// for it. Only the first Resolve or Reject has any effect.
package deferred

import (
	"context"
	"sync"
)

// Deferred is a promise paired with externally callable Resolve/Reject.
type Deferred[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

// New creates a pending Deferred.
func New[T any]() *Deferred[T] {
	return &Deferred[T]{done: make(chan struct{})}
}

// Resolve fulfils the Deferred with v. It reports whether this call settled it.
func (d *Deferred[T]) Resolve(v T) bool {
	settled := false
	d.once.Do(func() {
		d.value = v
		close(d.done)
		settled = true
	})
	return settled
}

// Reject settles the Deferred with err. A nil err is ignored.
// It reports whether this call settled it.
func (d *Deferred[T]) Reject(err error) bool {
	if err == nil {
		return false
	}
	settled := false
	d.once.Do(func() {
		d.err = err
		close(d.done)
		settled = true
	})
	return settled
}

// Done is closed once the Deferred settles.
func (d *Deferred[T]) Done() <-chan struct{} {
	return d.done
}

// Settled reports whether Resolve or Reject has taken effect.
func (d *Deferred[T]) Settled() bool {
	select {
	case <-d.done:
		return true
	default:
		return false
	}
}

// Await blocks until the Deferred settles or ctx is done. Cancelling ctx
// abandons the wait only; the Deferred itself stays pending.
func (d *Deferred[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-d.done:
		return d.value, d.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Peek returns the settled outcome without blocking. ok is false while pending.
func (d *Deferred[T]) Peek() (v T, ok bool, err error) {
	if !d.Settled() {
		return v, false, nil
	}
	return d.value, true, d.err
}

// Then runs fn on its own goroutine once the Deferred settles.
func (d *Deferred[T]) Then(fn func(T, error)) {
	go func() {
		<-d.done
		fn(d.value, d.err)
	}()
}
