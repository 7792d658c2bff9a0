package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/yigit/academydesk/internal/academy"
	"github.com/yigit/academydesk/internal/config"
	"github.com/yigit/academydesk/internal/db"
	"github.com/yigit/academydesk/internal/mockapi"
	"github.com/yigit/academydesk/internal/pkg/auth"
	"github.com/yigit/academydesk/internal/pkg/kvstore"
	"github.com/yigit/academydesk/internal/pkg/logger"
	"github.com/yigit/academydesk/internal/remote"
	"github.com/yigit/academydesk/internal/session"
)

// DefaultConfigPath is read when ACADEMYDESK_CONFIG is unset
var DefaultConfigPath = filepath.Join("configs", "config.yaml")

// Dependencies holds everything the console commands need
type Dependencies struct {
	Config   *config.Config
	Console  *academy.Console
	Storage  kvstore.Store
	Registry *prometheus.Registry
	Logger   zerolog.Logger

	closers []func() error
}

// Close releases storage connections
func (d *Dependencies) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			d.Logger.Warn().Err(err).Msg("Failed to release resource")
		}
	}
	d.closers = nil
}

// ConfigPath resolves the configuration file location
func ConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("ACADEMYDESK_CONFIG"); env != "" {
		return env
	}
	return DefaultConfigPath
}

// LoadConfigAndSetupLogger loads configuration and initializes the logger.
func LoadConfigAndSetupLogger(configPath string) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load configuration")
		return nil, zerolog.Logger{}, err
	}

	logLevel := logger.ParseLevel(cfg.Logging.Level)
	logger.Configure(logger.Config{
		Level:  logLevel,
		Pretty: strings.ToLower(cfg.Logging.Format) == "text",
	})

	lgr := logger.Get()
	lgr.Debug().Str("logLevel", string(logLevel)).Str("logFormat", cfg.Logging.Format).Msg("Logger configured")
	return cfg, lgr, nil
}

// SetupStorage opens the durable token store selected by storage.driver.
// The returned close function is never nil.
func SetupStorage(ctx context.Context, cfg *config.Config, lgr zerolog.Logger) (kvstore.Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Storage.Driver {
	case config.StorageMemory:
		lgr.Warn().Msg("Using in-memory token storage, sessions will not survive restarts")
		return kvstore.NewMemory(), noop, nil

	case config.StorageFile:
		store, err := kvstore.NewFile(cfg.Storage.Path)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to open file storage: %w", err)
		}
		lgr.Debug().Str("path", store.Path()).Msg("Using file token storage")
		return store, noop, nil

	case config.StorageRedis:
		store, err := kvstore.NewRedis(ctx, kvstore.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Storage.KeyPrefix,
		})
		if err != nil {
			return nil, noop, fmt.Errorf("failed to connect to redis: %w", err)
		}
		lgr.Debug().Str("addr", cfg.Redis.Addr).Msg("Using redis token storage")
		return store, store.Close, nil

	case config.StoragePostgres:
		pool, err := db.NewPool(ctx, cfg)
		if err != nil {
			return nil, noop, err
		}
		store := kvstore.NewPostgres(pool, kvstore.DefaultTable)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, noop, fmt.Errorf("failed to prepare token table: %w", err)
		}
		return store, store.Close, nil
	}
	return nil, noop, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

// BuildConsole rehydrates the session and assembles the console store
func BuildConsole(ctx context.Context, cfg *config.Config, lgr zerolog.Logger) (*Dependencies, error) {
	deps := &Dependencies{Config: cfg, Logger: lgr}

	storage, closeStorage, err := SetupStorage(ctx, cfg, lgr)
	if err != nil {
		return nil, err
	}
	deps.Storage = storage
	deps.closers = append(deps.closers, closeStorage)

	sess, err := session.Rehydrate(ctx, storage, cfg.Storage.TokenKey)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("failed to restore session: %w", err)
	}

	deps.Registry = prometheus.NewRegistry()
	deps.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := remote.NewMetrics(deps.Registry)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	deps.Console, err = academy.NewConsole(academy.Options{
		BaseURL:  cfg.API.BaseURL,
		Client:   &http.Client{Timeout: cfg.API.Timeout},
		Storage:  storage,
		TokenKey: cfg.Storage.TokenKey,
		Metrics:  metrics,
		Session:  sess,
	})
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("failed to build console: %w", err)
	}

	lgr.Debug().
		Str("baseURL", cfg.API.BaseURL).
		Str("storage", cfg.Storage.Driver).
		Bool("authenticated", sess.IsAuthenticated).
		Msg("Console ready")
	return deps, nil
}

// BuildMockAPI assembles the stub academy API from configuration
func BuildMockAPI(cfg *config.Config, lgr zerolog.Logger) (*mockapi.API, error) {
	if err := cfg.ValidateMockAPI(); err != nil {
		return nil, fmt.Errorf("invalid mock API configuration: %w", err)
	}

	return mockapi.New(mockapi.Options{
		Mode: cfg.MockAPI.Mode,
		JWT: auth.JWTConfig{
			SecretKey:      cfg.MockAPI.JWT.Secret,
			AccessTokenExp: cfg.AccessTokenTTL(),
			TokenIssuer:    cfg.MockAPI.JWT.Issuer,
		},
		AdminEmail:    cfg.MockAPI.AdminEmail,
		AdminPassword: cfg.MockAPI.AdminPassword,
		Seed:          true,
		Logger:        &lgr,
	})
}
