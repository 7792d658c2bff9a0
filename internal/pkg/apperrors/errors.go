package apperrors

import (
	"errors"
	"fmt"
)

// Remote call failure classes
var (
	// ErrPreflightAuth is returned when a call needs a bearer token and none is held
	ErrPreflightAuth = errors.New("authentication required")
	// ErrSessionInvalid is returned when the server answered 401 or 403
	ErrSessionInvalid = errors.New("session invalidated")
	// ErrServer is returned for any other non-success status
	ErrServer = errors.New("server error")
	// ErrTransport is returned when no status could be obtained
	ErrTransport = errors.New("network error")
)

// ErrInvalidEnvelope is returned for a malformed remote call
var ErrInvalidEnvelope = errors.New("invalid remote call")

// Durable storage errors
var (
	ErrKeyNotFound     = errors.New("key not found")
	ErrTokenDivergence = errors.New("durable token disagrees with session state")
)

// Mock API resource errors
var (
	ErrResourceNotFound   = errors.New("resource not found")
	ErrValidationFailed   = errors.New("validation failed")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrPermissionDenied   = errors.New("permission denied")
)

// Default messages surfaced to callers
const (
	MsgPreflightAuth  = "not authenticated, please log in"
	MsgSessionInvalid = "session expired, please log in again"
	MsgSessionEnded   = "session ended before the response arrived"
	MsgTransport      = "network error, please check your connection"
)

// Kind classifies a RemoteError
type Kind string

const (
	KindPreflightAuth  Kind = "preflight_auth"
	KindSessionInvalid Kind = "session_invalid"
	KindServer         Kind = "server_error"
	KindTransport      Kind = "transport_error"
)

// RemoteError is the error payload delivered both to the store (as a FAILURE
// action payload) and to the caller (as the deferred rejection).
// A zero Status means the failure happened before any status was obtained.
type RemoteError struct {
	Message string `json:"error"`
	Status  int    `json:"status,omitempty"`
	Kind    Kind   `json:"kind"`
	Raw     error  `json:"-"`
}

// Error implements error interface
func (e *RemoteError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Raw != nil {
		return e.Raw.Error()
	}
	return "unknown error"
}

// Unwrap implements errors.Unwrap interface
func (e *RemoteError) Unwrap() error {
	return e.Raw
}

// Is lets errors.Is match the class sentinels
func (e *RemoteError) Is(target error) bool {
	switch target {
	case ErrPreflightAuth:
		return e.Kind == KindPreflightAuth
	case ErrSessionInvalid:
		return e.Kind == KindSessionInvalid
	case ErrServer:
		return e.Kind == KindServer
	case ErrTransport:
		return e.Kind == KindTransport
	}
	return false
}

// HasStatus reports whether the server classified the failure
func (e *RemoteError) HasStatus() bool {
	return e.Status != 0
}

// NewPreflightAuthError creates the synthetic 401-shaped error used when no token is held
func NewPreflightAuthError() *RemoteError {
	return &RemoteError{
		Message: MsgPreflightAuth,
		Status:  401,
		Kind:    KindPreflightAuth,
		Raw:     ErrPreflightAuth,
	}
}

// NewSessionError creates a session invalidation error for a 401/403 response
func NewSessionError(status int, message string) *RemoteError {
	if message == "" {
		message = MsgSessionInvalid
	}
	return &RemoteError{
		Message: message,
		Status:  status,
		Kind:    KindSessionInvalid,
		Raw:     ErrSessionInvalid,
	}
}

// NewSessionEndedError marks a response that arrived after the session it was
// sent with had been replaced or cleared
func NewSessionEndedError() *RemoteError {
	return &RemoteError{
		Message: MsgSessionEnded,
		Kind:    KindSessionInvalid,
		Raw:     fmt.Errorf("%w: session changed while in flight", ErrSessionInvalid),
	}
}

// NewServerError creates an ordinary server failure
func NewServerError(status int, message string) *RemoteError {
	return &RemoteError{
		Message: message,
		Status:  status,
		Kind:    KindServer,
		Raw:     fmt.Errorf("%w: status %d", ErrServer, status),
	}
}

// NewTransportError wraps a failure that happened before a status was obtained
func NewTransportError(err error) *RemoteError {
	return &RemoteError{
		Message: MsgTransport,
		Kind:    KindTransport,
		Raw:     fmt.Errorf("%w: %w", ErrTransport, err),
	}
}

// AsRemote extracts a RemoteError from err, wrapping unknown errors as transport failures
func AsRemote(err error) *RemoteError {
	if err == nil {
		return nil
	}
	var re *RemoteError
	if errors.As(err, &re) {
		return re
	}
	return NewTransportError(err)
}

// Is returns whether target matches any of the errors in errList
func Is(err, target error, errList ...error) bool {
	if errors.Is(err, target) {
		return true
	}

	for _, e := range errList {
		if errors.Is(err, e) {
			return true
		}
	}

	return false
}
