package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/upb/report-gate/utils"
)

// Token modes supported by the credential verifier
const (
	TokenModeHS256 = "hs256"
	TokenModeJWKS  = "jwks"
	TokenModeOIDC  = "oidc"
)

// Role sources
const (
	RoleSourceStore  = "store"
	RoleSourceClaims = "claims"
)

// Audit sinks and delivery modes
const (
	AuditSinkDatabase = "database"
	AuditSinkHTTP     = "http"
	AuditSinkLog      = "log"

	AuditModeAsync = "async"
	AuditModeSync  = "sync"
)

// Database drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Auth          AuthConfig
	Audit         AuditConfig
	CORS          CORSConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds identity store and audit table configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	Driver           string `validate:"oneof=postgres sqlite"`
	ConnectionString string // From DATABASE_URL when set
	SQLitePath       string
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// AuthConfig is the immutable gate configuration: secured prefix, role allow-list,
// profile bypass and credential verification settings.
type AuthConfig struct {
	SecuredPath    string   `validate:"required,startswith=/"`
	AllowedRoles   []string `validate:"required,min=1,dive,required"`
	ActiveProfiles []string
	BypassProfile  string        `validate:"required"`
	TokenMode      string        `validate:"oneof=hs256 jwks oidc"`
	JWTSecret      string        // hs256
	JWKSURL        string        `validate:"omitempty,url"`
	Issuer         string        // jwks / oidc
	Audience       string        // jwks / oidc
	LoginClaim     string        `validate:"required"`
	RolesClaim     string        `validate:"required"`
	RoleSource     string        `validate:"oneof=store claims"`
	VerifyTimeout  time.Duration `validate:"gt=0"`
	Realm          string        `validate:"required"`
}

// AuditConfig holds audit emitter configuration
type AuditConfig struct {
	Sink         string        `validate:"oneof=database http log"`
	Mode         string        `validate:"oneof=async sync"`
	BufferSize   int           `validate:"gt=0"`
	Workers      int           `validate:"gt=0"`
	WriteTimeout time.Duration `validate:"gt=0"`
	CollectorURL string        `validate:"omitempty,url"`
}

// CORSConfig holds CORS settings for the router
type CORSConfig struct {
	AllowedOrigins []string
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or text
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	LoadDotEnv()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: loadDatabaseConfig(),
		Auth: AuthConfig{
			SecuredPath:    NormalizeSecuredPath(getEnv("APP_BASE_SECURED_PATH", "/api/v1")),
			AllowedRoles:   getEnvAsList("AUTH_ALLOWED_ROLES", nil),
			ActiveProfiles: getActiveProfiles(),
			BypassProfile:  getEnv("AUTH_BYPASS_PROFILE", "security-local"),
			TokenMode:      strings.ToLower(getEnv("AUTH_TOKEN_MODE", TokenModeHS256)),
			JWTSecret:      getEnv("AUTH_JWT_SECRET", ""),
			JWKSURL:        getEnv("AUTH_JWKS_URL", ""),
			Issuer:         getEnv("AUTH_ISSUER", ""),
			Audience:       getEnv("AUTH_AUDIENCE", ""),
			LoginClaim:     getEnv("AUTH_LOGIN_CLAIM", "preferred_username"),
			RolesClaim:     getEnv("AUTH_ROLES_CLAIM", "roles"),
			RoleSource:     strings.ToLower(getEnv("AUTH_ROLE_SOURCE", RoleSourceStore)),
			VerifyTimeout:  getEnvAsDuration("AUTH_VERIFY_TIMEOUT", 5*time.Second),
			Realm:          getEnv("AUTH_REALM", "report-gate"),
		},
		Audit: AuditConfig{
			Sink:         strings.ToLower(getEnv("AUDIT_SINK", AuditSinkDatabase)),
			Mode:         strings.ToLower(getEnv("AUDIT_MODE", AuditModeAsync)),
			BufferSize:   getEnvAsInt("AUDIT_BUFFER_SIZE", 1000),
			Workers:      getEnvAsInt("AUDIT_WORKERS", 2),
			WriteTimeout: getEnvAsDuration("AUDIT_WRITE_TIMEOUT", 5*time.Second),
			CollectorURL: getEnv("AUDIT_COLLECTOR_URL", ""),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:*"}),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Audit.Validate(); err != nil {
		return err
	}

	// Observability validation
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// Validate checks the database settings for the selected driver
func (c *DatabaseConfig) Validate() error {
	if err := utils.ValidateStruct(c); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	switch c.Driver {
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required when DB_DRIVER=sqlite")
		}
	case DriverPostgres:
		if c.ConnectionString == "" && c.Host == "" {
			return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
		}
		if c.ConnectionString == "" {
			if c.User == "" {
				return fmt.Errorf("database user is required")
			}
			if c.Database == "" {
				return fmt.Errorf("database name is required")
			}
		}
	}
	return nil
}

// Validate checks the gate settings, including token mode specific requirements
func (c *AuthConfig) Validate() error {
	if err := utils.ValidateStruct(c); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	switch c.TokenMode {
	case TokenModeHS256:
		if c.JWTSecret == "" {
			return fmt.Errorf("AUTH_JWT_SECRET is required for token mode %s", c.TokenMode)
		}
	case TokenModeJWKS:
		if c.JWKSURL == "" {
			return fmt.Errorf("AUTH_JWKS_URL is required for token mode %s", c.TokenMode)
		}
	case TokenModeOIDC:
		if c.Issuer == "" {
			return fmt.Errorf("AUTH_ISSUER is required for token mode %s", c.TokenMode)
		}
		if c.Audience == "" {
			return fmt.Errorf("AUTH_AUDIENCE is required for token mode %s", c.TokenMode)
		}
	}
	return nil
}

// Validate checks the audit emitter settings
func (c *AuditConfig) Validate() error {
	if err := utils.ValidateStruct(c); err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	if c.Sink == AuditSinkHTTP && c.CollectorURL == "" {
		return fmt.Errorf("AUDIT_COLLECTOR_URL is required when AUDIT_SINK=http")
	}
	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// NeedsDatabase reports whether any configured component talks to the database
func (c *Config) NeedsDatabase() bool {
	return c.Auth.RoleSource == RoleSourceStore || c.Audit.Sink == AuditSinkDatabase
}

// BypassActive reports whether the bypass profile is among the active profiles
func (c *AuthConfig) BypassActive() bool {
	for _, p := range c.ActiveProfiles {
		if p == c.BypassProfile {
			return true
		}
	}
	return false
}

// DSN returns the connection string for the configured driver.
// For postgres it uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == DriverSQLite {
		return c.SQLitePath
	}
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.Driver == DriverSQLite {
		return fmt.Sprintf("sqlite path=%s", c.SQLitePath)
	}
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// NormalizeSecuredPath turns an ant-style pattern such as "/api/v1/**" into a plain
// path prefix without a trailing slash. The root path stays "/".
func NormalizeSecuredPath(p string) string {
	p = strings.TrimSpace(p)
	p = strings.TrimSuffix(p, "**")
	p = strings.TrimSuffix(p, "*")
	for len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

// LoadDotEnv loads a .env file from the working directory if it exists.
// Variables already set in the environment win.
func LoadDotEnv() {
	_ = godotenv.Load(".env")
}

// LoadDatabase reads only the database settings, for tools that never serve requests
func LoadDatabase() DatabaseConfig {
	LoadDotEnv()
	return loadDatabaseConfig()
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars
func loadDatabaseConfig() DatabaseConfig {
	driver := strings.ToLower(getEnv("DB_DRIVER", DriverPostgres))
	pool := DatabaseConfig{
		Driver:          driver,
		SQLitePath:      getEnv("SQLITE_PATH", "report-gate.db"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}

	if dbURL := getEnv("DATABASE_URL", ""); dbURL != "" {
		pool.ConnectionString = dbURL
		return pool
	}
	pool.Host = getEnv("DB_HOST", "localhost")
	pool.Port = getEnvAsInt("DB_PORT", 5432)
	pool.User = getEnv("DB_USER", "report")
	pool.Password = getEnv("DB_PASSWORD", "report_password")
	pool.Database = getEnv("DB_NAME", "reports")
	pool.SSLMode = getEnv("DB_SSLMODE", "disable")
	return pool
}

// Helper functions

// getActiveProfiles reads SPRING_PROFILES_ACTIVE, falling back to ACTIVE_PROFILES
func getActiveProfiles() []string {
	if profiles := getEnvAsList("SPRING_PROFILES_ACTIVE", nil); len(profiles) > 0 {
		return profiles
	}
	return getEnvAsList("ACTIVE_PROFILES", []string{})
}

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated value, dropping blanks
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
