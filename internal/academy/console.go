package academy

import (
	"context"
	"errors"
	"fmt"

	"github.com/yigit/academydesk/internal/pkg/kvstore"
	"github.com/yigit/academydesk/internal/remote"
	"github.com/yigit/academydesk/internal/resource"
	"github.com/yigit/academydesk/internal/session"
	"github.com/yigit/academydesk/internal/store"
)

// Options configures a Console
type Options struct {
	BaseURL  string
	Client   remote.Doer
	Storage  kvstore.Store
	TokenKey string
	Metrics  *remote.Metrics
	// Session is the rehydrated starting session
	Session session.State
	// Middlewares run ahead of the dispatch middleware
	Middlewares []store.Middleware[State]
}

// Console is the academy client: one store, the remote dispatch layer
// and a typed accessor per entity.
type Console struct {
	store  *store.Store[State]
	mirror *session.Mirror

	Students     *Entity[Student]
	Employees    *Entity[Employee]
	Payments     *Entity[Payment]
	Timetable    *Entity[TimetableEntry]
	Exams        *Entity[Exam]
	Expenditures *Entity[Expenditure]
	Lectures     *Entity[LectureMaterial]
}

// NewConsole wires the store, the dispatch middleware and the token mirror
func NewConsole(opts Options) (*Console, error) {
	if opts.Storage == nil {
		opts.Storage = kvstore.NewMemory()
	}
	if opts.TokenKey == "" {
		opts.TokenKey = remote.DefaultTokenKey
	}

	dispatchMW, err := remote.Middleware(remote.Options[State]{
		BaseURL:  opts.BaseURL,
		Client:   opts.Client,
		Token:    SessionToken,
		Storage:  opts.Storage,
		TokenKey: opts.TokenKey,
		Metrics:  opts.Metrics,
	})
	if err != nil {
		return nil, err
	}

	mws := append(append([]store.Middleware[State](nil), opts.Middlewares...), dispatchMW)
	st, err := store.New(State{Session: opts.Session}, Reduce, mws...)
	if err != nil {
		return nil, err
	}

	c := &Console{
		store:  st,
		mirror: session.NewMirror(opts.Storage, opts.TokenKey, opts.Session.Token),
	}
	st.Subscribe(func(_ store.Action, s State) {
		c.mirror.Observe(s.Session)
	})

	c.Students = newEntity(c, Students, PathStudents, func(s State) resource.State[Student] { return s.Students })
	c.Employees = newEntity(c, Employees, PathEmployees, func(s State) resource.State[Employee] { return s.Employees })
	c.Payments = newEntity(c, Payments, PathPayments, func(s State) resource.State[Payment] { return s.Payments })
	c.Timetable = newEntity(c, Timetable, PathTimetable, func(s State) resource.State[TimetableEntry] { return s.Timetable })
	c.Exams = newEntity(c, Exams, PathExams, func(s State) resource.State[Exam] { return s.Exams })
	c.Expenditures = newEntity(c, Expenditures, PathExpenditures, func(s State) resource.State[Expenditure] { return s.Expenditures })
	c.Lectures = newEntity(c, Lectures, PathLectures, func(s State) resource.State[LectureMaterial] { return s.Lectures })
	return c, nil
}

// Store exposes the underlying store
func (c *Console) Store() *store.Store[State] { return c.store }

// State returns the current snapshot
func (c *Console) State() State { return c.store.GetState() }

// Dispatch sends an action through the store
func (c *Console) Dispatch(action store.Action) error { return c.store.Dispatch(action) }

// Subscribe registers a listener for reduced actions
func (c *Console) Subscribe(fn store.Listener[State]) func() { return c.store.Subscribe(fn) }

// Login exchanges credentials for a session
func (c *Console) Login(ctx context.Context, email, password string) (session.LoginResult, error) {
	return remote.Call[session.LoginResult](ctx, c.store, session.Login(email, password, PathLogin))
}

// Logout clears the session; the mirror removes the durable token
func (c *Console) Logout() error {
	return c.store.Dispatch(store.Action{Type: remote.ActionLogout})
}

// AcknowledgeRedirect lowers NeedsLoginRedirect once the login view is shown
func (c *Console) AcknowledgeRedirect() error {
	return c.store.Dispatch(store.Action{Type: session.ActionRedirectHandled})
}

// VerifySession checks the durable token against the in-memory session
func (c *Console) VerifySession(ctx context.Context) error {
	return c.mirror.Verify(ctx, c.State().Session)
}

// FetchStudents loads the student list
func (c *Console) FetchStudents(ctx context.Context) ([]Student, error) {
	return c.Students.Fetch(ctx)
}

// SaveStudent creates s when it has no id and replaces it otherwise
func (c *Console) SaveStudent(ctx context.Context, s Student) (Student, error) {
	if s.ID == "" {
		return c.Students.Add(ctx, s)
	}
	return c.Students.Update(ctx, s.ID, s)
}

// DeleteStudent removes the student with id
func (c *Console) DeleteStudent(ctx context.Context, id string) error {
	return c.Students.Delete(ctx, id)
}

// Entity is the typed accessor for one resource collection
type Entity[T Record] struct {
	console *Console
	slice   *resource.Slice[T]
	path    string
	sel     func(State) resource.State[T]
}

func newEntity[T Record](c *Console, slice *resource.Slice[T], path string, sel func(State) resource.State[T]) *Entity[T] {
	return &Entity[T]{console: c, slice: slice, path: path, sel: sel}
}

// Name returns the entity name as used in action types
func (e *Entity[T]) Name() string { return e.slice.Name() }

// State returns the entity's slice of the current snapshot
func (e *Entity[T]) State() resource.State[T] { return e.sel(e.console.State()) }

// Fetch loads the full collection
func (e *Entity[T]) Fetch(ctx context.Context) ([]T, error) {
	return remote.Call[[]T](ctx, e.console.store, e.slice.Fetch(e.path))
}

// Add creates v and returns the stored record
func (e *Entity[T]) Add(ctx context.Context, v T) (T, error) {
	return remote.Call[T](ctx, e.console.store, e.slice.Add(e.path, v))
}

// Update replaces the record id with v
func (e *Entity[T]) Update(ctx context.Context, id string, v T) (T, error) {
	if id == "" {
		var zero T
		return zero, errors.New("update requires an id")
	}
	return remote.Call[T](ctx, e.console.store, e.slice.Update(e.path, id, v))
}

// Delete removes the record id
func (e *Entity[T]) Delete(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("delete requires an id")
	}
	_, err := remote.Call[string](ctx, e.console.store, e.slice.Delete(e.path, id))
	return err
}

// Entities lists every accessor behind a common view, keyed by name
func (c *Console) Entities() map[string]Fetcher {
	return map[string]Fetcher{
		"students":     c.Students,
		"employees":    c.Employees,
		"payments":     c.Payments,
		"timetable":    c.Timetable,
		"exams":        c.Exams,
		"expenditures": c.Expenditures,
		"lectures":     c.Lectures,
	}
}

// Fetcher loads a collection without knowing its record type
type Fetcher interface {
	Name() string
	FetchAny(ctx context.Context) (any, error)
}

// FetchAny is Fetch returning the slice state as any
func (e *Entity[T]) FetchAny(ctx context.Context) (any, error) {
	if _, err := e.Fetch(ctx); err != nil {
		return e.State(), fmt.Errorf("fetch %s: %w", e.path, err)
	}
	return e.State(), nil
}
