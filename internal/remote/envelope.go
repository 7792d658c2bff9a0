package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/yigit/academydesk/internal/pkg/apperrors"
	"github.com/yigit/academydesk/internal/pkg/deferred"
	"github.com/yigit/academydesk/internal/store"
)

// Action types owned by the dispatch layer
const (
	// CallType marks an action carrying an *Envelope
	CallType = "REMOTE_CALL"
	// ActionLogout clears the session; dispatched on 401/403
	ActionLogout = "LOGOUT"
	// ActionSessionError records an authentication problem on the session
	ActionSessionError = "SESSION_ERROR"
)

// DefaultTokenKey is the durable storage key of the bearer token
const DefaultTokenKey = "token"

// ErrEnvelopeConsumed is returned when an envelope is dispatched twice
var ErrEnvelopeConsumed = errors.New("remote call already dispatched")

// Method is an HTTP method accepted by the dispatch layer
type Method string

const (
	GET    Method = http.MethodGet
	POST   Method = http.MethodPost
	PUT    Method = http.MethodPut
	PATCH  Method = http.MethodPatch
	DELETE Method = http.MethodDelete
)

// Decoder turns a success body into the result payload
type Decoder func(body []byte) (any, error)

// Request describes one remote operation
type Request struct {
	URL          string `validate:"required"`
	Method       Method `validate:"required,oneof=GET POST PUT PATCH DELETE"`
	Body         any
	Header       http.Header
	AuthRequired bool

	OnStart   Hook
	OnSuccess Hook
	OnFailure Hook

	// Decode defaults to DecodeJSON
	Decode Decoder
	// UnwrapData decodes the "data" member of a {"data": ...} body
	UnwrapData bool
}

// Envelope is the dispatchable message for one Request. It is consumed
// exactly once by the middleware and never reaches a reducer.
type Envelope struct {
	ID string
	Request

	Deferred *deferred.Deferred[any]

	ctx      context.Context
	consumed atomic.Bool
}

var validate = validator.New()

// NewEnvelope builds an Envelope for req. The Deferred exists before the
// envelope can be dispatched; on a validation error it is returned already
// rejected along with the error.
func NewEnvelope(ctx context.Context, req Request) (*Envelope, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	env := &Envelope{
		ID:       uuid.New().String(),
		Request:  req,
		Deferred: deferred.New[any](),
		ctx:      ctx,
	}

	if err := validate.Struct(req); err != nil {
		err = fmt.Errorf("%w: %s", apperrors.ErrInvalidEnvelope, err.Error())
		env.Deferred.Reject(err)
		return env, err
	}
	return env, nil
}

// Action wraps the envelope for dispatch
func (e *Envelope) Action() store.Action {
	return store.Action{Type: CallType, Payload: e}
}

// Context returns the context the envelope was built with
func (e *Envelope) Context() context.Context {
	return e.ctx
}

func (e *Envelope) decode(body []byte) (any, error) {
	if e.UnwrapData {
		var wrapped struct {
			Data json.RawMessage `json:"data"`
		}
		// only objects can carry a data member; bare arrays pass through
		if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '{' {
			if err := json.Unmarshal(body, &wrapped); err != nil {
				return nil, err
			}
			if wrapped.Data != nil {
				body = wrapped.Data
			}
		}
	}
	if e.Decode != nil {
		return e.Decode(body)
	}
	return DecodeJSON(body)
}

// Dispatch builds an envelope for req, dispatches it into d and returns its
// Deferred. Build and dispatch failures come back as a rejected Deferred.
func Dispatch(ctx context.Context, d store.Dispatcher, req Request) *deferred.Deferred[any] {
	env, err := NewEnvelope(ctx, req)
	if err != nil {
		return env.Deferred
	}
	if err := d.Dispatch(env.Action()); err != nil {
		env.Deferred.Reject(err)
	}
	return env.Deferred
}

// Call dispatches req and waits for a result of type T. When req.Decode is
// unset the body is decoded into T.
func Call[T any](ctx context.Context, d store.Dispatcher, req Request) (T, error) {
	var zero T
	if req.Decode == nil {
		req.Decode = DecodeInto[T]()
	}

	v, err := Dispatch(ctx, d, req).Await(ctx)
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("remote: result is %T, want %T", v, zero)
	}
	return typed, nil
}

// DecodeJSON decodes any JSON document; an empty body decodes to nil
func DecodeJSON(body []byte) (any, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// DecodeInto returns a Decoder producing a T
func DecodeInto[T any]() Decoder {
	return func(body []byte) (any, error) {
		var v T
		if len(bytes.TrimSpace(body)) == 0 {
			return v, nil
		}
		if err := json.Unmarshal(body, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
}
