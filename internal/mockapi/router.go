// Package mockapi is a local stand-in for the academy backend. It serves
// the login endpoint and CRUD over in-memory collections with the same
// response envelopes and 401/403 behaviour the console relies on.
package mockapi

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/yigit/academydesk/internal/academy"
	"github.com/yigit/academydesk/internal/pkg/auth"
	"github.com/yigit/academydesk/internal/pkg/logger"
	"github.com/yigit/academydesk/internal/pkg/validation"
)

// Options configures the stub API
type Options struct {
	Mode string
	JWT  auth.JWTConfig

	AdminEmail    string
	AdminPassword string
	// Accounts are extra users, e.g. read-only staff
	Accounts []Account
	// Seed fills the collections with sample records
	Seed bool

	Logger *zerolog.Logger
}

// Repositories holds one collection per entity
type Repositories struct {
	Students     *Repository[academy.Student]
	Employees    *Repository[academy.Employee]
	Payments     *Repository[academy.Payment]
	Timetable    *Repository[academy.TimetableEntry]
	Exams        *Repository[academy.Exam]
	Expenditures *Repository[academy.Expenditure]
	Lectures     *Repository[academy.LectureMaterial]
}

// NewRepositories creates empty collections
func NewRepositories() *Repositories {
	return &Repositories{
		Students: NewRepository("students", func(s academy.Student, id string) academy.Student {
			s.ID = id
			return s
		}),
		Employees: NewRepository("employees", func(e academy.Employee, id string) academy.Employee {
			e.ID = id
			return e
		}),
		Payments: NewRepository("payments", func(p academy.Payment, id string) academy.Payment {
			p.ID = id
			return p
		}),
		Timetable: NewRepository("timetable", func(t academy.TimetableEntry, id string) academy.TimetableEntry {
			t.ID = id
			return t
		}),
		Exams: NewRepository("exams", func(e academy.Exam, id string) academy.Exam {
			e.ID = id
			return e
		}),
		Expenditures: NewRepository("expenditures", func(e academy.Expenditure, id string) academy.Expenditure {
			e.ID = id
			return e
		}),
		Lectures: NewRepository("lectures", func(l academy.LectureMaterial, id string) academy.LectureMaterial {
			l.ID = id
			return l
		}),
	}
}

var (
	rulesOnce sync.Once
	rulesErr  error
)

// registerRules adds the academy rules to gin's shared validator
func registerRules() error {
	rulesOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			rulesErr = fmt.Errorf("unexpected binding validator %T", binding.Validator.Engine())
			return
		}
		rulesErr = validation.RegisterRules(v)
	})
	return rulesErr
}

// API is the assembled stub backend
type API struct {
	Router *gin.Engine
	Repos  *Repositories
}

// New hashes the admin password, builds repositories and routes
func New(opts Options) (*API, error) {
	lg := logger.For("mockapi")
	if opts.Logger != nil {
		lg = *opts.Logger
	}
	if opts.JWT.SecretKey == "" {
		return nil, fmt.Errorf("JWT secret is required")
	}

	if err := registerRules(); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(opts.AdminPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to hash admin password: %w", err)
	}
	accounts := append([]Account{{
		ID:           "admin",
		Email:        opts.AdminEmail,
		Name:         "Administrator",
		Role:         RoleAdmin,
		PasswordHash: hash,
	}}, opts.Accounts...)

	repos := NewRepositories()
	if opts.Seed {
		if err := Seed(repos); err != nil {
			return nil, fmt.Errorf("failed to seed data: %w", err)
		}
	}

	jwtService := auth.NewJWTService(opts.JWT)
	router := SetupRouter(opts.Mode, jwtService, NewAuthHandler(jwtService, accounts, lg), repos, lg)
	return &API{Router: router, Repos: repos}, nil
}

// SetupRouter registers every route under /api/v1
func SetupRouter(mode string, jwtService *auth.JWTService, authHandler *AuthHandler, repos *Repositories, lg zerolog.Logger) *gin.Engine {
	if mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(lg))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	v1.POST("/auth/login", authHandler.Login)

	authMW := NewAuthMiddleware(jwtService)
	protected := v1.Group("")
	protected.Use(authMW.JWTAuth())
	admin := authMW.RoleRequired(RoleAdmin)

	registerResource(protected, "/students", NewResourceHandler(repos.Students, lg), admin)
	registerResource(protected, "/employees", NewResourceHandler(repos.Employees, lg), admin)
	registerResource(protected, "/payments", NewResourceHandler(repos.Payments, lg), admin)
	registerResource(protected, "/timetable", NewResourceHandler(repos.Timetable, lg), admin)
	registerResource(protected, "/exams", NewResourceHandler(repos.Exams, lg), admin)
	registerResource(protected, "/expenditures", NewResourceHandler(repos.Expenditures, lg), admin)
	registerResource(protected, "/lectures", NewResourceHandler(repos.Lectures, lg), admin)

	return router
}

func registerResource[T academy.Record](g *gin.RouterGroup, path string, h *ResourceHandler[T], admin gin.HandlerFunc) {
	r := g.Group(path)
	r.GET("", h.List)
	r.GET("/:id", h.Get)
	r.POST("", admin, h.Create)
	r.PUT("/:id", admin, h.Update)
	r.DELETE("/:id", admin, h.Delete)
}
