// Package sqlstore implements the repositories on database/sql for PostgreSQL (lib/pq)
// and SQLite (modernc.org/sqlite). Queries use only syntax both engines accept.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/upb/report-gate/config"
)

// DB wraps the sql.DB connection pool
type DB struct {
	*sql.DB
	driver string
	logger *zap.Logger
}

// NewDB creates a new database connection pool for the configured driver
func NewDB(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	driverName, err := sqlDriverName(cfg.Driver)
	if err != nil {
		return nil, err
	}

	dsn := cfg.DSN()
	if cfg.Driver == config.DriverSQLite {
		dsn = sqliteDSN(dsn)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.Driver == config.DriverSQLite {
		// sqlite allows a single writer
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		zap.String("driver", cfg.Driver),
		zap.String("connection", cfg.LogString()))

	return &DB{
		DB:     db,
		driver: cfg.Driver,
		logger: logger,
	}, nil
}

// NewFromSQL wraps an already opened pool (used with sqlmock in tests)
func NewFromSQL(db *sql.DB, driver string, logger *zap.Logger) *DB {
	return &DB{DB: db, driver: driver, logger: logger}
}

func sqlDriverName(driver string) (string, error) {
	switch driver {
	case config.DriverPostgres:
		return "postgres", nil
	case config.DriverSQLite:
		return "sqlite", nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

// sqliteDSN enables foreign keys and a busy timeout unless the path already carries options
func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// Driver returns the configured driver name
func (db *DB) Driver() string {
	return db.driver
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}

// HealthCheck performs a health check on the database
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	// Check if we can query
	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query check failed: %w", err)
	}

	return nil
}

// schemaStatements are executed one at a time; lib/pq and sqlite differ on multi-statement Exec.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		login VARCHAR(255) PRIMARY KEY,
		display_name VARCHAR(255) NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS user_roles (
		login VARCHAR(255) NOT NULL REFERENCES users(login) ON DELETE CASCADE,
		role VARCHAR(100) NOT NULL,
		PRIMARY KEY (login, role)
	)`,
	`CREATE TABLE IF NOT EXISTS audit_events (
		id VARCHAR(36) PRIMARY KEY,
		occurred_at TIMESTAMP NOT NULL,
		sub_type VARCHAR(50) NOT NULL,
		layer VARCHAR(50) NOT NULL,
		status VARCHAR(20) NOT NULL,
		message TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		login VARCHAR(255) NOT NULL DEFAULT '',
		request_id VARCHAR(255) NOT NULL DEFAULT '',
		method VARCHAR(16) NOT NULL DEFAULT '',
		path TEXT NOT NULL DEFAULT '',
		remote_addr VARCHAR(255) NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_user_roles_login ON user_roles(login)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_events_occurred_at ON audit_events(occurred_at)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_events_request_id ON audit_events(request_id)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_events_login ON audit_events(login)`,
}

// InitSchema initializes the identity store and audit tables
func (db *DB) InitSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	db.logger.Info("database schema initialized successfully", zap.String("driver", db.driver))
	return nil
}
