package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/yigit/academydesk/internal/pkg/helpers"
	"github.com/yigit/academydesk/internal/pkg/logger"
)

// Storage drivers
const (
	StorageMemory   = "memory"
	StorageFile     = "file"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
)

// Config structure represents the application configuration
type Config struct {
	API struct {
		BaseURL string        `yaml:"base_url" env:"API_BASE_URL"`
		Timeout time.Duration `yaml:"timeout" env:"API_TIMEOUT"`
	} `yaml:"api"`

	Storage struct {
		Driver    string `yaml:"driver" env:"STORAGE_DRIVER"`
		Path      string `yaml:"path" env:"STORAGE_PATH"`
		KeyPrefix string `yaml:"key_prefix" env:"STORAGE_KEY_PREFIX"`
		TokenKey  string `yaml:"token_key" env:"STORAGE_TOKEN_KEY"`
	} `yaml:"storage"`

	Redis struct {
		Addr     string `yaml:"addr" env:"REDIS_ADDR"`
		Password string `yaml:"password" env:"REDIS_PASSWORD"`
		DB       int    `yaml:"db" env:"REDIS_DB"`
	} `yaml:"redis"`

	Database struct {
		Host            string `yaml:"host" env:"DB_HOST"`
		Port            string `yaml:"port" env:"DB_PORT"`
		User            string `yaml:"user" env:"DB_USER"`
		Password        string `yaml:"password" env:"DB_PASSWORD"`
		DBName          string `yaml:"dbname" env:"DB_NAME"`
		SSLMode         string `yaml:"sslmode" env:"DB_SSLMODE"`
		MaxIdleConns    int    `yaml:"max_idle_conns" env:"DB_MAX_IDLE_CONNS"`
		MaxOpenConns    int    `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS"`
		ConnMaxLifetime string `yaml:"conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME"`
	} `yaml:"database"`

	Logging struct {
		Level  string `yaml:"level" env:"LOG_LEVEL"`
		Format string `yaml:"format" env:"LOG_FORMAT"`
	} `yaml:"logging"`

	Inspector struct {
		Enabled        bool     `yaml:"enabled" env:"INSPECTOR_ENABLED"`
		Addr           string   `yaml:"addr" env:"INSPECTOR_ADDR"`
		AllowedOrigins []string `yaml:"allowed_origins" env:"INSPECTOR_ALLOWED_ORIGINS"`
	} `yaml:"inspector"`

	MockAPI struct {
		Port string `yaml:"port" env:"MOCKAPI_PORT"`
		Mode string `yaml:"mode" env:"MOCKAPI_MODE"`

		JWT struct {
			Secret                string `yaml:"secret" env:"JWT_SECRET"`
			Issuer                string `yaml:"issuer" env:"JWT_ISSUER"`
			AccessTokenExpiration string `yaml:"access_token_expiration" env:"JWT_ACCESS_TOKEN_EXPIRATION"`
		} `yaml:"jwt"`

		AdminEmail    string `yaml:"admin_email" env:"MOCKAPI_ADMIN_EMAIL"`
		AdminPassword string `yaml:"admin_password" env:"MOCKAPI_ADMIN_PASSWORD"`
	} `yaml:"mockapi"`
}

// LoadConfig loads configuration from a .env file, a YAML file and
// environment variables, later sources winning
func LoadConfig(configPath string) (*Config, error) {
	// .env never overrides variables already set in the environment
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	config := &Config{}
	setDefaults(config)

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			file, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			if err := yaml.Unmarshal(file, config); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	if err := loadFromEnv(config); err != nil {
		return nil, fmt.Errorf("failed to load from environment: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// setDefaults sets default values for the configuration
func setDefaults(config *Config) {
	config.API.BaseURL = "http://localhost:8080/api/v1"

	config.Storage.Driver = StorageFile
	config.Storage.Path = defaultStoragePath()
	config.Storage.KeyPrefix = "academydesk:"
	config.Storage.TokenKey = "token"

	config.Redis.Addr = "localhost:6379"

	config.Database.Host = "localhost"
	config.Database.Port = "5432"
	config.Database.User = "postgres"
	config.Database.Password = "postgres"
	config.Database.DBName = "academydesk"
	config.Database.SSLMode = "disable"
	config.Database.MaxIdleConns = 2
	config.Database.MaxOpenConns = 5
	config.Database.ConnMaxLifetime = "1h"

	config.Logging.Level = "info"
	config.Logging.Format = "text"

	config.Inspector.Addr = "127.0.0.1:7070"

	config.MockAPI.Port = "8080"
	config.MockAPI.Mode = "development"
	config.MockAPI.JWT.Issuer = "academydesk.local"
	config.MockAPI.JWT.AccessTokenExpiration = "1h"
	config.MockAPI.AdminEmail = "admin@academy.local"
	config.MockAPI.AdminPassword = "admin123"
}

func defaultStoragePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".academydesk/session.json"
	}
	return dir + "/academydesk/session.json"
}

// loadFromEnv overrides configuration with environment variables
func loadFromEnv(config *Config) error {
	applied, err := applyEnv(reflect.ValueOf(config), os.LookupEnv)
	if err != nil {
		return err
	}
	if len(applied) > 0 {
		logger.Debug().Strs("vars", applied).Msg("Configuration overridden from environment")
	}
	return nil
}

// validateConfig ensures that the configuration is valid
func validateConfig(config *Config) error {
	base, err := url.Parse(config.API.BaseURL)
	if err != nil || !base.IsAbs() || base.Host == "" {
		return fmt.Errorf("api base url must be absolute, got %q", config.API.BaseURL)
	}

	if config.API.Timeout < 0 {
		return fmt.Errorf("api timeout must not be negative")
	}

	switch config.Storage.Driver {
	case StorageMemory, StorageRedis:
	case StorageFile:
		if config.Storage.Path == "" {
			return fmt.Errorf("storage path is required for the file driver")
		}
	case StoragePostgres:
		if config.Database.Host == "" {
			return fmt.Errorf("database host is required for the postgres driver")
		}
		if _, err := time.ParseDuration(config.Database.ConnMaxLifetime); err != nil {
			return fmt.Errorf("invalid database connection lifetime: %w", err)
		}
	default:
		return fmt.Errorf("unknown storage driver %q", config.Storage.Driver)
	}

	if config.Storage.TokenKey == "" {
		return fmt.Errorf("storage token key is required")
	}

	switch strings.ToLower(config.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("unknown log format %q", config.Logging.Format)
	}

	return nil
}

// ValidateMockAPI checks the settings only the stub API server needs
func (c *Config) ValidateMockAPI() error {
	if c.MockAPI.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if _, err := time.ParseDuration(c.MockAPI.JWT.AccessTokenExpiration); err != nil {
		return fmt.Errorf("invalid JWT access token expiration format: %w", err)
	}
	if c.MockAPI.AdminEmail == "" || c.MockAPI.AdminPassword == "" {
		return fmt.Errorf("mock API admin credentials are required")
	}
	return nil
}

// AccessTokenTTL returns the parsed token lifetime; ValidateMockAPI guarantees it parses
func (c *Config) AccessTokenTTL() time.Duration {
	d, _ := time.ParseDuration(c.MockAPI.JWT.AccessTokenExpiration)
	return d
}

// ConnMaxLifetime returns the parsed pool connection lifetime
func (c *Config) ConnMaxLifetime() time.Duration {
	return helpers.ParseDuration(c.Database.ConnMaxLifetime, time.Hour)
}

// GetPostgresConnectionString returns postgres connection string
func (c *Config) GetPostgresConnectionString() string {
	sslMode := c.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.DBName,
		sslMode,
	)
}
