package academy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yigit/academydesk/internal/pkg/apperrors"
	"github.com/yigit/academydesk/internal/pkg/kvstore"
	"github.com/yigit/academydesk/internal/remote"
	"github.com/yigit/academydesk/internal/session"
	"github.com/yigit/academydesk/internal/store"
)

func newConsole(t *testing.T, baseURL string, token string) (*Console, kvstore.Store) {
	t.Helper()
	kv := kvstore.NewMemory()
	sess := session.State{}
	if token != "" {
		require.NoError(t, kv.Set(context.Background(), remote.DefaultTokenKey, token))
		sess = session.State{Token: token, IsAuthenticated: true}
	}
	c, err := NewConsole(Options{BaseURL: baseURL, Storage: kv, Session: sess})
	require.NoError(t, err)
	return c, kv
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestFetchStudentsPopulatesSlice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer valid", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`[{"id":"1","Name":"Asha"}]`))
	}))
	defer srv.Close()

	c, _ := newConsole(t, srv.URL, "valid")
	got, err := c.FetchStudents(testCtx(t))
	require.NoError(t, err)

	want := []Student{{ID: "1", Name: "Asha"}}
	assert.Equal(t, want, got)

	slice := c.State().Students
	assert.False(t, slice.Loading)
	assert.Nil(t, slice.Error)
	assert.Equal(t, want, slice.Data)
}

func TestForbiddenFetchLogsOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"success":false,"error":{"code":"FORBIDDEN","message":"forbidden"}}`))
	}))
	defer srv.Close()

	c, kv := newConsole(t, srv.URL, "valid")
	var logouts atomic.Int32
	c.Subscribe(func(a store.Action, _ State) {
		if a.Type == remote.ActionLogout {
			logouts.Add(1)
		}
	})

	_, err := c.FetchStudents(testCtx(t))
	require.Error(t, err)
	rerr := apperrors.AsRemote(err)
	assert.Equal(t, http.StatusForbidden, rerr.Status)

	state := c.State()
	assert.Equal(t, int32(1), logouts.Load())
	assert.NotNil(t, state.Students.Error)
	assert.False(t, state.Students.Loading)
	assert.False(t, state.Session.IsAuthenticated)
	assert.True(t, state.Session.NeedsLoginRedirect)
	assert.Empty(t, state.Session.Token)

	_, err = kv.Get(context.Background(), remote.DefaultTokenKey)
	assert.ErrorIs(t, err, apperrors.ErrKeyNotFound)
	assert.NoError(t, c.VerifySession(context.Background()))

	require.NoError(t, c.AcknowledgeRedirect())
	assert.False(t, c.State().Session.NeedsLoginRedirect)
}

func TestFetchWithoutSessionNeverHitsNetwork(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	c, _ := newConsole(t, srv.URL, "")
	_, err := c.FetchStudents(testCtx(t))
	assert.ErrorIs(t, err, apperrors.ErrPreflightAuth)
	assert.Zero(t, hits.Load())

	state := c.State()
	assert.False(t, state.Session.NeedsLoginRedirect)
	require.NotNil(t, state.Session.Error)
	assert.ErrorIs(t, state.Session.Error, apperrors.ErrPreflightAuth)
}

func TestLastResponseWins(t *testing.T) {
	var hits atomic.Int32
	firstArrived := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			close(firstArrived)
			<-release
			_, _ = w.Write([]byte(`[{"id":"1","Name":"from first request"}]`))
			return
		}
		_, _ = w.Write([]byte(`[{"id":"2","Name":"from second request"}]`))
	}))
	defer srv.Close()

	c, _ := newConsole(t, srv.URL, "valid")
	ctx := testCtx(t)

	first := remote.Dispatch(ctx, c.Store(), Students.Fetch(PathStudents))
	<-firstArrived
	second := remote.Dispatch(ctx, c.Store(), Students.Fetch(PathStudents))

	_, err := second.Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, "from second request", c.State().Students.Data[0].Name)
	assert.False(t, c.State().Students.Loading)

	close(release)
	_, err = first.Await(ctx)
	require.NoError(t, err)

	slice := c.State().Students
	assert.Equal(t, []Student{{ID: "1", Name: "from first request"}}, slice.Data)
	assert.Equal(t, uint64(2), slice.Generation)
}

func TestUnauthorizedDuringPendingFetchDiscardsItsResponse(t *testing.T) {
	studentsArrived := make(chan struct{})
	release := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("GET /students", func(w http.ResponseWriter, r *http.Request) {
		close(studentsArrived)
		<-release
		_, _ = w.Write([]byte(`[{"id":"1","Name":"Asha"}]`))
	})
	mux.HandleFunc("GET /employees", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	var releaseOnce sync.Once
	unblock := func() { releaseOnce.Do(func() { close(release) }) }
	defer unblock()

	c, _ := newConsole(t, srv.URL, "tok-1")
	ctx := testCtx(t)
	var logouts atomic.Int32
	c.Subscribe(func(a store.Action, _ State) {
		if a.Type == remote.ActionLogout {
			logouts.Add(1)
		}
	})

	pending := remote.Dispatch(ctx, c.Store(), Students.Fetch(PathStudents))
	<-studentsArrived

	_, err := c.Employees.Fetch(ctx)
	require.ErrorIs(t, err, apperrors.ErrSessionInvalid)

	state := c.State()
	assert.False(t, state.Session.IsAuthenticated)
	assert.True(t, state.Students.Loading)

	unblock()
	_, err = pending.Await(ctx)
	require.ErrorIs(t, err, apperrors.ErrSessionInvalid)
	assert.Equal(t, apperrors.MsgSessionEnded, apperrors.AsRemote(err).Message)

	state = c.State()
	assert.False(t, state.Students.Loading)
	assert.Empty(t, state.Students.Data)
	assert.False(t, state.Session.IsAuthenticated)
	assert.True(t, state.Session.NeedsLoginRedirect)
	assert.Equal(t, int32(1), logouts.Load())
}

func TestLoginMirrorsTokenAndLogoutClearsIt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["password"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"success":false,"error":{"code":"INVALID_CREDENTIALS","message":"invalid email or password"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":{"token":"tok-1","user":{"id":"u1","email":"admin@academy.test","role":"admin"}}}`))
	}))
	defer srv.Close()

	c, kv := newConsole(t, srv.URL, "")
	ctx := testCtx(t)

	_, err := c.Login(ctx, "admin@academy.test", "wrong")
	require.Error(t, err)
	assert.Equal(t, "invalid email or password", err.Error())
	assert.False(t, c.State().Session.IsAuthenticated)

	res, err := c.Login(ctx, "admin@academy.test", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", res.Token)

	state := c.State().Session
	assert.True(t, state.IsAuthenticated)
	assert.Equal(t, "u1", state.User.ID)
	v, err := kv.Get(ctx, remote.DefaultTokenKey)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", v)
	assert.NoError(t, c.VerifySession(ctx))

	require.NoError(t, c.Logout())
	assert.False(t, c.State().Session.IsAuthenticated)
	_, err = kv.Get(ctx, remote.DefaultTokenKey)
	assert.ErrorIs(t, err, apperrors.ErrKeyNotFound)
}

func TestStudentCRUD(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /students", func(w http.ResponseWriter, r *http.Request) {
		var s Student
		require.NoError(t, json.NewDecoder(r.Body).Decode(&s))
		s.ID = "9"
		_ = json.NewEncoder(w).Encode(map[string]any{"data": s})
	})
	mux.HandleFunc("PUT /students/{id}", func(w http.ResponseWriter, r *http.Request) {
		var s Student
		require.NoError(t, json.NewDecoder(r.Body).Decode(&s))
		s.ID = r.PathValue("id")
		_ = json.NewEncoder(w).Encode(map[string]any{"data": s})
	})
	mux.HandleFunc("DELETE /students/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, _ := newConsole(t, srv.URL, "valid")
	ctx := testCtx(t)

	added, err := c.SaveStudent(ctx, Student{Name: "Meera", Class: "10A", Fees: 1200})
	require.NoError(t, err)
	assert.Equal(t, "9", added.ID)
	assert.True(t, c.State().Students.AddSucceeded)

	added.Class = "10B"
	updated, err := c.SaveStudent(ctx, added)
	require.NoError(t, err)
	assert.Equal(t, "10B", updated.Class)
	assert.Equal(t, []Student{updated}, c.State().Students.Data)

	require.NoError(t, c.DeleteStudent(ctx, "9"))
	assert.Empty(t, c.State().Students.Data)
	assert.True(t, c.State().Students.DeleteSucceeded)

	assert.Error(t, c.DeleteStudent(ctx, ""))
}

func TestEntitiesFetchAny(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"id":"e1","Name":"Kiran","Role":"teacher","Salary":900}]}`))
	}))
	defer srv.Close()

	c, _ := newConsole(t, srv.URL, "valid")
	entities := c.Entities()
	require.Len(t, entities, 7)

	v, err := entities["employees"].FetchAny(testCtx(t))
	require.NoError(t, err)
	assert.Equal(t, "EMPLOYEES", entities["employees"].Name())
	assert.Equal(t, []Employee{{ID: "e1", Name: "Kiran", Role: "teacher", Salary: 900}}, c.State().Employees.Data)
	assert.NotNil(t, v)
}

func TestLogoutResetsEveryCollection(t *testing.T) {
	st := State{
		Students:  Students.Reduce(State{}.Students, store.Action{Type: Students.Types().Fetch.Success, Payload: []Student{{ID: "1"}}}),
		Employees: Employees.Reduce(State{}.Employees, store.Action{Type: Employees.Types().Fetch.Success, Payload: []Employee{{ID: "2"}}}),
	}
	st = Reduce(st, store.Action{Type: remote.ActionLogout})
	assert.Empty(t, st.Students.Data)
	assert.Empty(t, st.Employees.Data)
	assert.True(t, st.Session.NeedsLoginRedirect)
}
