package sqlstore

import (
	"context"

	"go.uber.org/zap"

	"github.com/upb/report-gate/config"
	"github.com/upb/report-gate/repositories"
)

// RepositoryFactory creates and manages all repositories
type RepositoryFactory struct {
	db     *DB
	logger *zap.Logger
}

// NewRepositoryFactory opens the database and creates the schema
func NewRepositoryFactory(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*RepositoryFactory, error) {
	db, err := NewDB(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := db.InitSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &RepositoryFactory{db: db, logger: logger}, nil
}

// NewRepositoryFactoryFromDB builds a factory over an existing connection
func NewRepositoryFactoryFromDB(db *DB, logger *zap.Logger) *RepositoryFactory {
	return &RepositoryFactory{db: db, logger: logger}
}

// NewRepositories creates all repository instances
func (f *RepositoryFactory) NewRepositories() *repositories.Repositories {
	txManager := NewTransactionManager(f.db, f.logger)
	return &repositories.Repositories{
		Identities: NewIdentityRepository(f.db, txManager, f.logger),
		AuditLog:   NewAuditRepository(f.db, f.logger),
		TxManager:  txManager,
	}
}

// GetDB returns the underlying connection
func (f *RepositoryFactory) GetDB() *DB {
	return f.db
}

// Close closes the underlying connection
func (f *RepositoryFactory) Close() error {
	return f.db.Close()
}
