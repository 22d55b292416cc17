package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/upb/report-gate/config"
	"github.com/upb/report-gate/credentials"
	"github.com/upb/report-gate/middleware"
	"github.com/upb/report-gate/repositories"
	"github.com/upb/report-gate/repositories/sqlstore"
	"github.com/upb/report-gate/services/audit"
	"github.com/upb/report-gate/services/rolepolicy"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *sqlstore.DB
	Logger *zap.Logger

	// Repository Factory
	RepoFactory *sqlstore.RepositoryFactory

	// Repositories (nil when no database is configured)
	Identities repositories.IdentityRepository
	AuditLogs  repositories.AuditRepository
	TxManager  repositories.TransactionManager

	// Gate collaborators
	Verifier *credentials.Verifier
	Policy   *rolepolicy.Policy
	Audit    *audit.Service
	Gate     *middleware.Gate
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if cfg.NeedsDatabase() {
		if err := deps.initDatabase(ctx, cfg); err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		deps.initRepositories()
	}

	if err := deps.initAudit(cfg); err != nil {
		deps.closeDatabase()
		return nil, fmt.Errorf("failed to initialize audit: %w", err)
	}

	if err := deps.initAuth(ctx, cfg); err != nil {
		_ = deps.Audit.Stop(cfg.Server.ShutdownTimeout)
		deps.closeDatabase()
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initDatabase opens the configured store and creates the schema
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	factory, err := sqlstore.NewRepositoryFactory(ctx, cfg.Database, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	d.RepoFactory = factory
	d.DB = factory.GetDB()

	d.Logger.Info("database connection established",
		zap.String("connection", cfg.Database.LogString()))

	return nil
}

// initRepositories initializes all repository instances
func (d *Dependencies) initRepositories() {
	repos := d.RepoFactory.NewRepositories()

	d.Identities = repos.Identities
	d.AuditLogs = repos.AuditLog
	d.TxManager = repos.TxManager

	d.Logger.Info("repositories initialized")
}

// initAudit selects the sink and starts the audit service
func (d *Dependencies) initAudit(cfg *config.Config) error {
	var sink audit.Sink
	switch cfg.Audit.Sink {
	case config.AuditSinkDatabase:
		if d.AuditLogs == nil {
			return errors.New("database audit sink requires a database")
		}
		sink = audit.NewRepositorySink(d.AuditLogs)
	case config.AuditSinkHTTP:
		sink = audit.NewHTTPSink(cfg.Audit.CollectorURL, nil)
	case config.AuditSinkLog:
		sink = audit.NewLogSink(d.Logger)
	default:
		return fmt.Errorf("unsupported audit sink %q", cfg.Audit.Sink)
	}

	service := audit.NewService(sink, d.Logger, audit.ConfigFrom(cfg.Audit))
	if err := service.Start(); err != nil {
		return err
	}
	d.Audit = service
	return nil
}

// initAuth builds the verifier, the role policy and the gate
func (d *Dependencies) initAuth(ctx context.Context, cfg *config.Config) error {
	validator, err := credentials.NewTokenValidator(ctx, cfg.Auth)
	if err != nil {
		return fmt.Errorf("failed to create token validator: %w", err)
	}

	resolver, err := credentials.NewRoleResolver(cfg.Auth, d.Identities, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create role resolver: %w", err)
	}

	d.Verifier = credentials.NewVerifier(validator, resolver, cfg.Auth.VerifyTimeout, d.Logger)
	d.Policy = rolepolicy.FromConfig(cfg.Auth)
	d.Gate = middleware.NewGate(middleware.GateConfigFrom(cfg.Auth), d.Verifier, d.Policy, d.Audit, d.Logger)

	if d.Policy.BypassActive() {
		d.Logger.Warn("role enforcement disabled", zap.String("reason", d.Policy.BypassReason()))
	}
	d.Logger.Info("request gate initialized",
		zap.String("secured_path", config.NormalizeSecuredPath(cfg.Auth.SecuredPath)),
		zap.String("token_mode", cfg.Auth.TokenMode),
		zap.String("role_source", cfg.Auth.RoleSource),
		zap.Strings("allowed_roles", d.Policy.AllowedRoles()))

	return nil
}

// SQLDB returns the raw connection for health checks, or nil without a database
func (d *Dependencies) SQLDB() *sql.DB {
	if d.DB == nil {
		return nil
	}
	return d.DB.DB
}

func (d *Dependencies) closeDatabase() {
	if d.RepoFactory != nil {
		_ = d.RepoFactory.Close()
	}
}

// minAuditDrainTimeout bounds the audit drain when the shutdown context is already spent
const minAuditDrainTimeout = time.Second

// Close gracefully shuts down all dependencies. Pending audit events are drained first.
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.Audit != nil {
		timeout := d.Config.Server.ShutdownTimeout
		if deadline, ok := ctx.Deadline(); ok {
			timeout = max(time.Until(deadline), minAuditDrainTimeout)
		}
		if err := d.Audit.Stop(timeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop audit service: %w", err))
		}
	}

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %w", errors.Join(errs...))
	}

	return nil
}
