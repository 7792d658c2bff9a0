package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/yigit/academydesk/internal/pkg/apperrors"
	"github.com/yigit/academydesk/internal/pkg/kvstore"
	"github.com/yigit/academydesk/internal/pkg/logger"
	"github.com/yigit/academydesk/internal/store"
)

// Doer executes HTTP requests; *http.Client satisfies it
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options configures the dispatch middleware
type Options[S any] struct {
	// BaseURL is joined with relative envelope URLs
	BaseURL string
	// Client defaults to http.DefaultClient
	Client Doer
	// Token reads the bearer token from store state
	Token func(S) string
	// Storage mirrors the token durably; cleared on session invalidation
	Storage  kvstore.Store
	TokenKey string

	Metrics *Metrics
	Logger  *zerolog.Logger
}

type middleware[S any] struct {
	base     *url.URL
	client   Doer
	token    func(S) string
	storage  kvstore.Store
	tokenKey string
	metrics  *Metrics
	log      zerolog.Logger
}

// Middleware returns the store middleware that executes remote calls.
// It fails only when BaseURL cannot be parsed.
func Middleware[S any](opts Options[S]) (store.Middleware[S], error) {
	m := &middleware[S]{
		client:   opts.Client,
		token:    opts.Token,
		storage:  opts.Storage,
		tokenKey: opts.TokenKey,
		metrics:  opts.Metrics,
	}
	if opts.BaseURL != "" {
		base, err := url.Parse(opts.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base url %q: %w", opts.BaseURL, err)
		}
		m.base = base
	}
	if m.client == nil {
		m.client = http.DefaultClient
	}
	if m.tokenKey == "" {
		m.tokenKey = DefaultTokenKey
	}
	if opts.Logger != nil {
		m.log = *opts.Logger
	} else {
		m.log = logger.For("remote")
	}

	return func(api store.API[S]) func(next store.DispatchFunc) store.DispatchFunc {
		return func(next store.DispatchFunc) store.DispatchFunc {
			return func(action store.Action) error {
				if action.Type != CallType {
					return next(action)
				}
				env, ok := action.Payload.(*Envelope)
				if !ok || env == nil {
					return fmt.Errorf("%w: payload is %T", apperrors.ErrInvalidEnvelope, action.Payload)
				}
				if !env.consumed.CompareAndSwap(false, true) {
					return ErrEnvelopeConsumed
				}
				m.handle(api, env)
				return nil
			}
		}
	}, nil
}

func (m *middleware[S]) handle(api store.API[S], env *Envelope) {
	started := time.Now()
	m.log.Debug().
		Str("envelope", env.ID).
		Str("method", string(env.Method)).
		Str("url", env.URL).
		Msg("Remote call started")

	m.fire(api.Dispatch, env, env.OnStart, nil)

	var token string
	if m.token != nil {
		token = m.token(api.GetState())
	}
	if env.AuthRequired && token == "" {
		rerr := apperrors.NewPreflightAuthError()
		m.dispatch(api.Dispatch, env, store.Action{Type: ActionSessionError, Payload: rerr})
		m.fail(api.Dispatch, env, rerr, started)
		return
	}

	go m.execute(api, env, token, started)
}

func (m *middleware[S]) execute(api store.API[S], env *Envelope, token string, started time.Time) {
	payload, rerr := m.roundTrip(env, token)

	// the answer belongs to a session that no longer exists: deliver it as a
	// failure so neither its data nor its 401 reach the current session
	if env.AuthRequired && m.sessionChanged(api, token) {
		m.log.Info().
			Str("envelope", env.ID).
			Str("url", env.URL).
			Msg("Discarding response for an ended session")
		m.fail(api.Dispatch, env, apperrors.NewSessionEndedError(), started)
		return
	}

	if rerr != nil {
		if rerr.Kind == apperrors.KindSessionInvalid {
			m.invalidateSession(api.Dispatch, env, rerr)
		}
		m.fail(api.Dispatch, env, rerr, started)
		return
	}
	m.succeed(api.Dispatch, env, payload, started)
}

func (m *middleware[S]) sessionChanged(api store.API[S], sentWith string) bool {
	return m.token != nil && m.token(api.GetState()) != sentWith
}

func (m *middleware[S]) roundTrip(env *Envelope, token string) (payload any, rerr *apperrors.RemoteError) {
	defer func() {
		if r := recover(); r != nil {
			payload = nil
			rerr = apperrors.NewTransportError(fmt.Errorf("panic during remote call: %v", r))
		}
	}()

	req, err := m.newRequest(env, token)
	if err != nil {
		return nil, apperrors.NewTransportError(err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, apperrors.NewTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.NewTransportError(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := serverMessage(body)
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return nil, apperrors.NewSessionError(resp.StatusCode, msg)
		default:
			if msg == "" {
				msg = http.StatusText(resp.StatusCode)
			}
			if msg == "" {
				msg = fmt.Sprintf("request failed with status %d", resp.StatusCode)
			}
			return nil, apperrors.NewServerError(resp.StatusCode, msg)
		}
	}

	payload, err = env.decode(body)
	if err != nil {
		return nil, apperrors.NewTransportError(fmt.Errorf("decode response: %w", err))
	}
	return payload, nil
}

func (m *middleware[S]) newRequest(env *Envelope, token string) (*http.Request, error) {
	target, err := m.resolve(env.URL)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if env.Body != nil {
		raw, err := json.Marshal(env.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(env.ctx, string(env.Method), target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range env.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", env.ID)
	if env.AuthRequired {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (m *middleware[S]) resolve(raw string) (string, error) {
	ref, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if ref.IsAbs() || m.base == nil {
		return ref.String(), nil
	}
	base := *m.base
	base.Path = strings.TrimRight(base.Path, "/") + "/" + strings.TrimLeft(ref.Path, "/")
	base.RawQuery = ref.RawQuery
	return base.String(), nil
}

// invalidateSession applies the forced-logout policy for a 401/403
func (m *middleware[S]) invalidateSession(dispatch store.DispatchFunc, env *Envelope, rerr *apperrors.RemoteError) {
	m.log.Error().
		Str("envelope", env.ID).
		Str("url", env.URL).
		Int("status", rerr.Status).
		Msg("Session invalidated by server, logging out")

	m.dispatch(dispatch, env, store.Action{Type: ActionSessionError, Payload: rerr})
	m.dispatch(dispatch, env, store.Action{Type: ActionLogout, Payload: rerr})

	if m.storage == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(env.ctx), 5*time.Second)
	defer cancel()
	if err := m.storage.Remove(ctx, m.tokenKey); err != nil {
		m.log.Error().Err(err).Str("key", m.tokenKey).Msg("Failed to clear durable token")
	}
}

func (m *middleware[S]) fail(dispatch store.DispatchFunc, env *Envelope, rerr *apperrors.RemoteError, started time.Time) {
	elapsed := time.Since(started)
	m.metrics.observe(env.Method, string(rerr.Kind), elapsed)
	m.log.Warn().
		Str("envelope", env.ID).
		Str("method", string(env.Method)).
		Str("url", env.URL).
		Int("status", rerr.Status).
		Str("kind", string(rerr.Kind)).
		Dur("latency", elapsed).
		Err(rerr.Raw).
		Msg("Remote call failed")

	m.fire(dispatch, env, env.OnFailure, rerr)
	env.Deferred.Reject(rerr)
}

func (m *middleware[S]) succeed(dispatch store.DispatchFunc, env *Envelope, payload any, started time.Time) {
	elapsed := time.Since(started)
	m.metrics.observe(env.Method, outcomeSuccess, elapsed)
	m.log.Debug().
		Str("envelope", env.ID).
		Str("method", string(env.Method)).
		Str("url", env.URL).
		Dur("latency", elapsed).
		Msg("Remote call succeeded")

	m.fire(dispatch, env, env.OnSuccess, payload)
	env.Deferred.Resolve(payload)
}

// fire resolves a Hook: action types are dispatched, callbacks invoked.
// A panicking callback is logged so the deferred still settles.
func (m *middleware[S]) fire(dispatch store.DispatchFunc, env *Envelope, h Hook, payload any) {
	switch h.kind {
	case hookAction:
		m.dispatch(dispatch, env, store.Action{Type: h.action, Payload: payload})
	case hookCallback:
		defer func() {
			if r := recover(); r != nil {
				m.log.Error().Str("envelope", env.ID).Interface("panic", r).Msg("Remote call hook panicked")
			}
		}()
		h.callback(payload, dispatch)
	}
}

func (m *middleware[S]) dispatch(dispatch store.DispatchFunc, env *Envelope, action store.Action) {
	if err := dispatch(action); err != nil {
		m.log.Error().Err(err).Str("envelope", env.ID).Str("action", action.Type).Msg("Follow-up dispatch failed")
	}
}

// serverMessage pulls a human message out of a JSON error body; "" when
// there is none
func serverMessage(body []byte) string {
	var parsed struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	// proxy error pages and other non-JSON bodies carry no usable message
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ""
	}
	if len(parsed.Error) > 0 {
		var s string
		if err := json.Unmarshal(parsed.Error, &s); err == nil && s != "" {
			return s
		}
		var detail struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(parsed.Error, &detail); err == nil && detail.Message != "" {
			return detail.Message
		}
	}
	return parsed.Message
}
