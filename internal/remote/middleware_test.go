package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yigit/academydesk/internal/pkg/apperrors"
	"github.com/yigit/academydesk/internal/pkg/kvstore"
	"github.com/yigit/academydesk/internal/store"
)

type testState struct {
	Token   string
	Actions []store.Action
}

func recordingReducer(s testState, a store.Action) testState {
	next := testState{Token: s.Token}
	next.Actions = append(append([]store.Action(nil), s.Actions...), a)
	if a.Type == ActionLogout {
		next.Token = ""
	}
	return next
}

func (s testState) types() []string {
	out := make([]string, 0, len(s.Actions))
	for _, a := range s.Actions {
		out = append(out, a.Type)
	}
	return out
}

func (s testState) count(actionType string) int {
	n := 0
	for _, a := range s.Actions {
		if a.Type == actionType {
			n++
		}
	}
	return n
}

type harness struct {
	store   *store.Store[testState]
	kv      kvstore.Store
	metrics *Metrics
	reg     *prometheus.Registry
}

func newHarness(t *testing.T, baseURL, token string) *harness {
	t.Helper()
	kv := kvstore.NewMemory()
	if token != "" {
		require.NoError(t, kv.Set(context.Background(), DefaultTokenKey, token))
	}
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	require.NoError(t, err)

	mw, err := Middleware(Options[testState]{
		BaseURL: baseURL,
		Token:   func(s testState) string { return s.Token },
		Storage: kv,
		Metrics: metrics,
	})
	require.NoError(t, err)

	s, err := store.New(testState{Token: token}, recordingReducer, mw)
	require.NoError(t, err)
	return &harness{store: s, kv: kv, metrics: metrics, reg: reg}
}

func await(t *testing.T, env *Envelope) (any, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return env.Deferred.Await(ctx)
}

func TestSuccessfulCallResolvesWithParsedBody(t *testing.T) {
	var gotAuth, gotRequestID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/students", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get("X-Request-ID")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"1","Name":"Asha"}]`))
	}))
	defer srv.Close()

	h := newHarness(t, srv.URL+"/api/v1", "valid-token")
	env, err := NewEnvelope(context.Background(), Request{
		URL:          "/students",
		Method:       GET,
		AuthRequired: true,
		OnStart:      ActionHook("FETCH_STUDENTS_REQUEST"),
		OnSuccess:    ActionHook("FETCH_STUDENTS_SUCCESS"),
		OnFailure:    ActionHook("FETCH_STUDENTS_FAILURE"),
	})
	require.NoError(t, err)
	require.NoError(t, h.store.Dispatch(env.Action()))

	v, err := await(t, env)
	require.NoError(t, err)
	assert.Equal(t, []any{map[string]any{"id": "1", "Name": "Asha"}}, v)
	assert.Equal(t, "Bearer valid-token", gotAuth)
	assert.Equal(t, env.ID, gotRequestID)

	state := h.store.GetState()
	assert.Equal(t, []string{"FETCH_STUDENTS_REQUEST", "FETCH_STUDENTS_SUCCESS"}, state.types())
	assert.Equal(t, v, state.Actions[1].Payload)
	assert.Equal(t, 0, state.count(CallType), "envelopes never reach the reducer")
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.calls.WithLabelValues("GET", outcomeSuccess)))
}

func TestStartHookIsDispatchedBeforeNetworkIO(t *testing.T) {
	release := make(chan struct{})
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()
	defer close(release)

	h := newHarness(t, srv.URL, "tok")
	env, err := NewEnvelope(context.Background(), Request{
		URL:       "/slow",
		Method:    GET,
		OnStart:   ActionHook("SLOW_REQUEST"),
		OnSuccess: ActionHook("SLOW_SUCCESS"),
	})
	require.NoError(t, err)
	require.NoError(t, h.store.Dispatch(env.Action()))

	// Dispatch has returned while the server is still holding the request.
	assert.Equal(t, []string{"SLOW_REQUEST"}, h.store.GetState().types())
	assert.False(t, env.Deferred.Settled())
}

func TestPreflightWithoutTokenMakesNoNetworkCall(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	h := newHarness(t, srv.URL, "")
	var callbackErr error
	env, err := NewEnvelope(context.Background(), Request{
		URL:          "/students",
		Method:       GET,
		AuthRequired: true,
		OnStart:      ActionHook("FETCH_STUDENTS_REQUEST"),
		OnFailure: CallbackHook(func(result any, _ store.DispatchFunc) {
			callbackErr, _ = result.(error)
		}),
	})
	require.NoError(t, err)
	require.NoError(t, h.store.Dispatch(env.Action()))

	// preflight settles synchronously
	require.True(t, env.Deferred.Settled())
	_, err = await(t, env)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrPreflightAuth)
	assert.Equal(t, err, callbackErr)

	rerr := apperrors.AsRemote(err)
	assert.Equal(t, http.StatusUnauthorized, rerr.Status)
	assert.Equal(t, int32(0), hits.Load())

	state := h.store.GetState()
	assert.Equal(t, []string{"FETCH_STUDENTS_REQUEST", ActionSessionError}, state.types())
	assert.Zero(t, state.count(ActionLogout))
}

func TestForbiddenForcesLogout(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
				_, _ = w.Write([]byte(`{"success":false,"error":{"code":"FORBIDDEN","message":"token revoked"}}`))
			}))
			defer srv.Close()

			h := newHarness(t, srv.URL, "stale-token")
			env, err := NewEnvelope(context.Background(), Request{
				URL:          "/students",
				Method:       GET,
				AuthRequired: true,
				OnStart:      ActionHook("FETCH_STUDENTS_REQUEST"),
				OnFailure:    ActionHook("FETCH_STUDENTS_FAILURE"),
			})
			require.NoError(t, err)
			require.NoError(t, h.store.Dispatch(env.Action()))

			_, err = await(t, env)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrSessionInvalid)
			rerr := apperrors.AsRemote(err)
			assert.Equal(t, status, rerr.Status)
			assert.Equal(t, "token revoked", rerr.Message)

			state := h.store.GetState()
			assert.Equal(t, []string{
				"FETCH_STUDENTS_REQUEST",
				ActionSessionError,
				ActionLogout,
				"FETCH_STUDENTS_FAILURE",
			}, state.types())
			assert.Equal(t, 1, state.count(ActionLogout))
			assert.Empty(t, state.Token)

			_, err = h.kv.Get(context.Background(), DefaultTokenKey)
			assert.ErrorIs(t, err, apperrors.ErrKeyNotFound)
		})
	}
}

func TestServerErrorDoesNotLogout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"phone is required"}`))
	}))
	defer srv.Close()

	h := newHarness(t, srv.URL, "tok")
	env, err := NewEnvelope(context.Background(), Request{
		URL:          "/students",
		Method:       POST,
		Body:         map[string]string{"Name": "Asha"},
		AuthRequired: true,
		OnFailure:    ActionHook("ADD_STUDENT_FAILURE"),
	})
	require.NoError(t, err)
	require.NoError(t, h.store.Dispatch(env.Action()))

	_, err = await(t, env)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrServer)
	assert.Equal(t, "phone is required", err.Error())

	state := h.store.GetState()
	assert.Equal(t, []string{"ADD_STUDENT_FAILURE"}, state.types())
	assert.Equal(t, "tok", state.Token)

	v, err := h.kv.Get(context.Background(), DefaultTokenKey)
	require.NoError(t, err)
	assert.Equal(t, "tok", v)
}

func TestServerErrorFallsBackToStatusText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	h := newHarness(t, srv.URL, "")
	env, err := NewEnvelope(context.Background(), Request{URL: "/boom", Method: GET})
	require.NoError(t, err)
	require.NoError(t, h.store.Dispatch(env.Action()))

	_, err = await(t, env)
	rerr := apperrors.AsRemote(err)
	require.NotNil(t, rerr)
	assert.Equal(t, http.StatusText(http.StatusInternalServerError), rerr.Message)
	assert.True(t, rerr.HasStatus())
}

func TestNonJSONErrorBodyIsNotSurfaced(t *testing.T) {
	page := []byte("<html><body><h1>502 Bad Gateway</h1></body></html>")

	t.Run("server error uses status text", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write(page)
		}))
		defer srv.Close()

		h := newHarness(t, srv.URL, "")
		env, err := NewEnvelope(context.Background(), Request{URL: "/students", Method: GET})
		require.NoError(t, err)
		require.NoError(t, h.store.Dispatch(env.Action()))

		_, err = await(t, env)
		rerr := apperrors.AsRemote(err)
		require.NotNil(t, rerr)
		assert.Equal(t, apperrors.KindServer, rerr.Kind)
		assert.Equal(t, http.StatusText(http.StatusBadGateway), rerr.Message)
	})

	t.Run("session error uses default message", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write(page)
		}))
		defer srv.Close()

		h := newHarness(t, srv.URL, "tok")
		env, err := NewEnvelope(context.Background(), Request{URL: "/students", Method: GET, AuthRequired: true})
		require.NoError(t, err)
		require.NoError(t, h.store.Dispatch(env.Action()))

		_, err = await(t, env)
		rerr := apperrors.AsRemote(err)
		require.NotNil(t, rerr)
		assert.Equal(t, apperrors.KindSessionInvalid, rerr.Kind)
		assert.Equal(t, apperrors.MsgSessionInvalid, rerr.Message)
	})
}

func TestServerMessage(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"error":"phone is required"}`, "phone is required"},
		{`{"error":{"code":"X","message":"nested"}}`, "nested"},
		{`{"message":"plain"}`, "plain"},
		{`{"success":false}`, ""},
		{`Bad Gateway`, ""},
		{``, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, serverMessage([]byte(tt.body)), tt.body)
	}
}

func TestTransportErrorHasNoStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	h := newHarness(t, url, "tok")
	env, err := NewEnvelope(context.Background(), Request{
		URL:       "/students",
		Method:    GET,
		OnFailure: ActionHook("FETCH_STUDENTS_FAILURE"),
	})
	require.NoError(t, err)
	require.NoError(t, h.store.Dispatch(env.Action()))

	_, err = await(t, env)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrTransport)
	rerr := apperrors.AsRemote(err)
	assert.False(t, rerr.HasStatus())
	assert.Equal(t, apperrors.MsgTransport, rerr.Message)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.calls.WithLabelValues("GET", string(apperrors.KindTransport))))
}

func TestMalformedSuccessBodyIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":`))
	}))
	defer srv.Close()

	h := newHarness(t, srv.URL, "")
	env, err := NewEnvelope(context.Background(), Request{URL: "/students", Method: GET})
	require.NoError(t, err)
	require.NoError(t, h.store.Dispatch(env.Action()))

	_, err = await(t, env)
	assert.ErrorIs(t, err, apperrors.ErrTransport)
}

func TestCancelledContextRejectsAsTransportError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	h := newHarness(t, srv.URL, "")
	ctx, cancel := context.WithCancel(context.Background())
	env, err := NewEnvelope(ctx, Request{URL: "/slow", Method: GET})
	require.NoError(t, err)
	require.NoError(t, h.store.Dispatch(env.Action()))
	cancel()

	_, err = await(t, env)
	assert.ErrorIs(t, err, apperrors.ErrTransport)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEnvelopeIsConsumedOnce(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	h := newHarness(t, srv.URL, "")
	env, err := NewEnvelope(context.Background(), Request{URL: "/ping", Method: GET})
	require.NoError(t, err)

	require.NoError(t, h.store.Dispatch(env.Action()))
	assert.ErrorIs(t, h.store.Dispatch(env.Action()), ErrEnvelopeConsumed)

	_, err = await(t, env)
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestNonEnvelopePayloadIsRejected(t *testing.T) {
	h := newHarness(t, "http://localhost", "")
	err := h.store.Dispatch(store.Action{Type: CallType, Payload: "not an envelope"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidEnvelope)
	assert.Empty(t, h.store.GetState().Actions)
}

func TestOrdinaryActionsPassThrough(t *testing.T) {
	h := newHarness(t, "http://localhost", "")
	require.NoError(t, h.store.Dispatch(store.Action{Type: "PLAIN"}))
	assert.Equal(t, []string{"PLAIN"}, h.store.GetState().types())
}

func TestCallbackHooksReceiveDispatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Empty(t, r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]string{"id": "7", "Name": in["Name"]}})
	}))
	defer srv.Close()

	h := newHarness(t, srv.URL, "tok")
	var started atomic.Bool
	env, err := NewEnvelope(context.Background(), Request{
		URL:        "/students",
		Method:     POST,
		Body:       map[string]string{"Name": "Ravi"},
		UnwrapData: true,
		OnStart: CallbackHook(func(result any, _ store.DispatchFunc) {
			assert.Nil(t, result)
			started.Store(true)
		}),
		OnSuccess: CallbackHook(func(result any, dispatch store.DispatchFunc) {
			_ = dispatch(store.Action{Type: "STUDENT_SAVED", Payload: result})
		}),
	})
	require.NoError(t, err)
	require.NoError(t, h.store.Dispatch(env.Action()))

	v, err := await(t, env)
	require.NoError(t, err)
	assert.True(t, started.Load())
	assert.Equal(t, map[string]any{"id": "7", "Name": "Ravi"}, v)
	assert.Equal(t, []string{"STUDENT_SAVED"}, h.store.GetState().types())
}

func TestPanickingCallbackStillSettles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`1`))
	}))
	defer srv.Close()

	h := newHarness(t, srv.URL, "")
	env, err := NewEnvelope(context.Background(), Request{
		URL:    "/n",
		Method: GET,
		OnSuccess: CallbackHook(func(any, store.DispatchFunc) {
			panic("boom")
		}),
	})
	require.NoError(t, err)
	require.NoError(t, h.store.Dispatch(env.Action()))

	v, err := await(t, env)
	require.NoError(t, err)
	assert.Equal(t, float64(1), v)
}

func TestInvalidRequestIsRejectedAtBuildTime(t *testing.T) {
	env, err := NewEnvelope(context.Background(), Request{URL: "/x", Method: "TRACE"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidEnvelope)
	require.NotNil(t, env)
	assert.True(t, env.Deferred.Settled())

	h := newHarness(t, "http://localhost", "")
	d := Dispatch(context.Background(), h.store, Request{Method: GET})
	_, err = d.Await(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrInvalidEnvelope)
}

func TestCallDecodesIntoType(t *testing.T) {
	type student struct {
		ID   string `json:"id"`
		Name string `json:"Name"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":"1","Name":"Asha"},{"id":"2","Name":"Ravi"}]`))
	}))
	defer srv.Close()

	h := newHarness(t, srv.URL, "")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got, err := Call[[]student](ctx, h.store, Request{URL: "/students", Method: GET})
	require.NoError(t, err)
	assert.Equal(t, []student{{"1", "Asha"}, {"2", "Ravi"}}, got)
}

func TestConcurrentCallsSettleIndependently(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`"` + r.URL.Query().Get("n") + `"`))
	}))
	defer srv.Close()

	h := newHarness(t, srv.URL, "")
	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q := string(rune('a' + i))
			v, err := Call[string](context.Background(), h.store, Request{URL: "/echo?n=" + q, Method: GET})
			if err == nil && v != q {
				err = errors.New("mismatched result " + v)
			}
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}
