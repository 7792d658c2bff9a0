// Package resource builds the request/success/failure reducer shared by
// every entity collection in the console state.
package resource

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yigit/academydesk/internal/pkg/apperrors"
	"github.com/yigit/academydesk/internal/remote"
	"github.com/yigit/academydesk/internal/store"
)

// Phase holds the three action types of one operation
type Phase struct {
	Request string
	Success string
	Failure string
}

// Types lists every action type a Slice reacts to
type Types struct {
	Fetch  Phase
	Add    Phase
	Update Phase
	Delete Phase
}

func phase(op, name string) Phase {
	prefix := op + "_" + name + "_"
	return Phase{
		Request: prefix + "REQUEST",
		Success: prefix + "SUCCESS",
		Failure: prefix + "FAILURE",
	}
}

// State is one entity collection plus its request bookkeeping.
// Data survives a failed fetch so the last known list stays visible.
type State[T any] struct {
	Data    []T                    `json:"data"`
	Loading bool                   `json:"loading"`
	Error   *apperrors.RemoteError `json:"error"`
	// Generation counts fetch requests. Responses still land last-write-wins.
	Generation uint64 `json:"generation"`

	Adding       bool                   `json:"adding"`
	AddSucceeded bool                   `json:"addSucceeded"`
	AddError     *apperrors.RemoteError `json:"addError"`

	Updating        bool                   `json:"updating"`
	UpdateSucceeded bool                   `json:"updateSucceeded"`
	UpdateError     *apperrors.RemoteError `json:"updateError"`

	Deleting        bool                   `json:"deleting"`
	DeleteSucceeded bool                   `json:"deleteSucceeded"`
	DeleteError     *apperrors.RemoteError `json:"deleteError"`
}

// Slice is the reducer factory for one entity type
type Slice[T any] struct {
	name  string
	idOf  func(T) string
	types Types
}

// New creates a Slice for name ("students" yields FETCH_STUDENTS_REQUEST and
// friends). idOf identifies records for update and delete.
func New[T any](name string, idOf func(T) string) *Slice[T] {
	upper := strings.ToUpper(strings.TrimSpace(name))
	return &Slice[T]{
		name: upper,
		idOf: idOf,
		types: Types{
			Fetch:  phase("FETCH", upper),
			Add:    phase("ADD", upper),
			Update: phase("UPDATE", upper),
			Delete: phase("DELETE", upper),
		},
	}
}

// Name returns the upper-cased entity name
func (s *Slice[T]) Name() string { return s.name }

// Types returns the action types of the slice
func (s *Slice[T]) Types() Types { return s.types }

// Reduce folds action into state. Unknown actions return state unchanged.
func (s *Slice[T]) Reduce(state State[T], action store.Action) State[T] {
	t := s.types
	switch action.Type {
	case remote.ActionLogout:
		// records go; requests still in flight keep their flags until they settle
		return State[T]{
			Loading:    state.Loading,
			Generation: state.Generation,
			Adding:     state.Adding,
			Updating:   state.Updating,
			Deleting:   state.Deleting,
		}

	case t.Fetch.Request:
		state.Loading = true
		state.Error = nil
		state.Generation++
	case t.Fetch.Success:
		data, err := coerce[[]T](action.Payload)
		state.Loading = false
		if err != nil {
			state.Error = apperrors.NewTransportError(err)
			break
		}
		state.Error = nil
		state.Data = data
	case t.Fetch.Failure:
		state.Loading = false
		state.Error = failure(action.Payload)

	case t.Add.Request:
		state.Adding, state.AddSucceeded, state.AddError = true, false, nil
	case t.Add.Success:
		item, err := coerce[T](action.Payload)
		state.Adding = false
		if err != nil {
			state.AddError = apperrors.NewTransportError(err)
			break
		}
		state.AddSucceeded = true
		state.Data = append(clone(state.Data), item)
	case t.Add.Failure:
		state.Adding = false
		state.AddError = failure(action.Payload)

	case t.Update.Request:
		state.Updating, state.UpdateSucceeded, state.UpdateError = true, false, nil
	case t.Update.Success:
		item, err := coerce[T](action.Payload)
		state.Updating = false
		if err != nil {
			state.UpdateError = apperrors.NewTransportError(err)
			break
		}
		state.UpdateSucceeded = true
		state.Data = s.replace(state.Data, item)
	case t.Update.Failure:
		state.Updating = false
		state.UpdateError = failure(action.Payload)

	case t.Delete.Request:
		state.Deleting, state.DeleteSucceeded, state.DeleteError = true, false, nil
	case t.Delete.Success:
		id, _ := action.Payload.(string)
		state.Deleting = false
		state.DeleteSucceeded = true
		state.Data = s.remove(state.Data, id)
	case t.Delete.Failure:
		state.Deleting = false
		state.DeleteError = failure(action.Payload)
	}
	return state
}

func (s *Slice[T]) replace(data []T, item T) []T {
	out := clone(data)
	id := s.idOf(item)
	for i := range out {
		if s.idOf(out[i]) == id {
			out[i] = item
			return out
		}
	}
	return append(out, item)
}

func (s *Slice[T]) remove(data []T, id string) []T {
	out := make([]T, 0, len(data))
	for _, item := range data {
		if s.idOf(item) != id {
			out = append(out, item)
		}
	}
	return out
}

// Fetch builds the authenticated list request for url
func (s *Slice[T]) Fetch(url string) remote.Request {
	return remote.Request{
		URL:          url,
		Method:       remote.GET,
		AuthRequired: true,
		OnStart:      remote.ActionHook(s.types.Fetch.Request),
		OnSuccess:    remote.ActionHook(s.types.Fetch.Success),
		OnFailure:    remote.ActionHook(s.types.Fetch.Failure),
		Decode:       remote.DecodeInto[[]T](),
		UnwrapData:   true,
	}
}

// Add builds the create request posting body to url
func (s *Slice[T]) Add(url string, body any) remote.Request {
	return remote.Request{
		URL:          url,
		Method:       remote.POST,
		Body:         body,
		AuthRequired: true,
		OnStart:      remote.ActionHook(s.types.Add.Request),
		OnSuccess:    remote.ActionHook(s.types.Add.Success),
		OnFailure:    remote.ActionHook(s.types.Add.Failure),
		Decode:       remote.DecodeInto[T](),
		UnwrapData:   true,
	}
}

// Update builds the replace request for the record id under url
func (s *Slice[T]) Update(url, id string, body any) remote.Request {
	return remote.Request{
		URL:          itemURL(url, id),
		Method:       remote.PUT,
		Body:         body,
		AuthRequired: true,
		OnStart:      remote.ActionHook(s.types.Update.Request),
		OnSuccess:    remote.ActionHook(s.types.Update.Success),
		OnFailure:    remote.ActionHook(s.types.Update.Failure),
		Decode:       remote.DecodeInto[T](),
		UnwrapData:   true,
	}
}

// Delete builds the delete request for id. The success payload is the id.
func (s *Slice[T]) Delete(url, id string) remote.Request {
	return remote.Request{
		URL:          itemURL(url, id),
		Method:       remote.DELETE,
		AuthRequired: true,
		OnStart:      remote.ActionHook(s.types.Delete.Request),
		OnSuccess:    remote.ActionHook(s.types.Delete.Success),
		OnFailure:    remote.ActionHook(s.types.Delete.Failure),
		Decode: func([]byte) (any, error) {
			return id, nil
		},
	}
}

func itemURL(base, id string) string {
	return strings.TrimRight(base, "/") + "/" + id
}

func failure(payload any) *apperrors.RemoteError {
	if err, ok := payload.(error); ok {
		return apperrors.AsRemote(err)
	}
	return apperrors.NewServerError(0, fmt.Sprint(payload))
}

// coerce accepts a typed payload as is and re-decodes anything else
// (e.g. a generic JSON tree) into V.
func coerce[V any](payload any) (V, error) {
	if v, ok := payload.(V); ok {
		return v, nil
	}
	var v V
	if payload == nil {
		return v, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return v, fmt.Errorf("encode payload: %w", err)
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("payload is %T: %w", payload, err)
	}
	return v, nil
}

func clone[T any](in []T) []T {
	return append(make([]T, 0, len(in)+1), in...)
}
