// Package store is a single-writer state container.
//
// State of type S is owned by the Store and only changes when a dispatched
// Action reaches the reducer. Reducer application is serialized; every
// dispatch passes through the middleware chain first, so a middleware can
// intercept an action and never let it reach the reducer.
package store

import (
	"errors"
	"fmt"
	"sync"

	"github.com/yigit/academydesk/internal/pkg/logger"
)

var (
	// ErrNilReducer is returned by New when no reducer is given.
	ErrNilReducer = errors.New("store: nil reducer")
	// ErrReducerPanic is returned by Dispatch when the reducer panicked.
	// The state is left as it was before the action.
	ErrReducerPanic = errors.New("store: reducer panicked")
)

// Action is a plain message describing a state change.
type Action struct {
	Type    string
	Payload any
}

// Reducer folds an action into state. It must be pure.
type Reducer[S any] func(state S, action Action) S

// DispatchFunc delivers an action to the next layer.
type DispatchFunc func(action Action) error

// Dispatcher is anything an action can be sent to.
type Dispatcher interface {
	Dispatch(action Action) error
}

// API is the view of the store a middleware receives.
type API[S any] struct {
	GetState func() S
	Dispatch DispatchFunc
}

// Middleware wraps the dispatch chain.
type Middleware[S any] func(api API[S]) func(next DispatchFunc) DispatchFunc

// Listener is called after each reduced action with the resulting state.
type Listener[S any] func(action Action, state S)

// Store holds state S.
type Store[S any] struct {
	mu      sync.Mutex
	state   S
	reducer Reducer[S]

	// pending holds reduced actions not yet delivered to listeners.
	// Exactly one goroutine drains it at a time so listeners observe
	// actions in reduction order and may dispatch without deadlocking.
	pending  []notification[S]
	draining bool

	listenersMu sync.RWMutex
	listeners   []subscription[S]
	nextID      int

	dispatch DispatchFunc
}

type notification[S any] struct {
	action Action
	state  S
}

type subscription[S any] struct {
	id int
	fn Listener[S]
}

// New creates a Store. Middlewares run in the given order, the first one
// seeing each action first.
func New[S any](initial S, reducer Reducer[S], middlewares ...Middleware[S]) (*Store[S], error) {
	if reducer == nil {
		return nil, ErrNilReducer
	}
	s := &Store[S]{
		state:   initial,
		reducer: reducer,
	}

	api := API[S]{
		GetState: s.GetState,
		Dispatch: func(action Action) error { return s.dispatch(action) },
	}
	s.dispatch = applyMiddleware(s.reduce, api, middlewares...)
	return s, nil
}

// applyMiddleware chains the middleware around the reducer stage.
func applyMiddleware[S any](base DispatchFunc, api API[S], middlewares ...Middleware[S]) DispatchFunc {
	next := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		next = middlewares[i](api)(next)
	}
	return next
}

// Dispatch sends an action through the middleware chain.
func (s *Store[S]) Dispatch(action Action) error {
	return s.dispatch(action)
}

// GetState returns the current state snapshot.
func (s *Store[S]) GetState() S {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers fn and returns a function removing it.
func (s *Store[S]) Subscribe(fn Listener[S]) func() {
	s.listenersMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners = append(s.listeners, subscription[S]{id: id, fn: fn})
	s.listenersMu.Unlock()

	return func() {
		s.listenersMu.Lock()
		defer s.listenersMu.Unlock()
		for i, sub := range s.listeners {
			if sub.id == id {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

func (s *Store[S]) reduce(action Action) error {
	startDrain, err := s.apply(action)
	if err != nil {
		return err
	}
	if startDrain {
		s.drain()
	}
	return nil
}

// apply runs the reducer under the lock and queues the notification.
// It reports whether the caller must drain the queue.
func (s *Store[S]) apply(action Action) (startDrain bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			startDrain, err = false, fmt.Errorf("%w: %s: %v", ErrReducerPanic, action.Type, r)
		}
	}()

	next := s.reducer(s.state, action)
	s.state = next
	s.pending = append(s.pending, notification[S]{action: action, state: next})
	if s.draining {
		return false, nil
	}
	s.draining = true
	return true, nil
}

func (s *Store[S]) drain() {
	done := false
	// an abnormal exit must not leave the queue owned by nobody
	defer func() {
		if !done {
			s.mu.Lock()
			s.draining = false
			s.mu.Unlock()
		}
	}()

	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.draining = false
			done = true
			s.mu.Unlock()
			return
		}
		n := s.pending[0]
		s.pending = s.pending[1:]
		s.mu.Unlock()

		s.listenersMu.RLock()
		subs := append([]subscription[S](nil), s.listeners...)
		s.listenersMu.RUnlock()

		for _, sub := range subs {
			notify(sub.fn, n)
		}
	}
}

// notify isolates a panicking listener from the others
func notify[S any](fn Listener[S], n notification[S]) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Str("action", n.action.Type).Interface("panic", r).Msg("Store listener panicked")
		}
	}()
	fn(n.action, n.state)
}
