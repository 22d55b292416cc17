package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"github.com/upb/report-gate/config"
	"github.com/upb/report-gate/repositories"
)

// transactionContextKey is the context key for storing transactions
type transactionContextKey struct{}

// TransactionManager implements the repositories.TransactionManager interface
type TransactionManager struct {
	db     *DB
	logger *zap.Logger
}

// NewTransactionManager creates a new transaction manager
func NewTransactionManager(db *DB, logger *zap.Logger) repositories.TransactionManager {
	return &TransactionManager{
		db:     db,
		logger: logger,
	}
}

// InTransaction executes a function within a transaction
// Automatically commits if function succeeds, rolls back on error
func (tm *TransactionManager) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(transactionContextKey{}).(*sql.Tx); ok {
		// already inside a transaction
		return fn(ctx)
	}

	tx, err := tm.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	tm.logger.Debug("transaction started")

	txCtx := context.WithValue(ctx, transactionContextKey{}, tx)

	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			tm.logger.Error("failed to rollback transaction",
				zap.Error(rbErr),
				zap.NamedError("original_error", err),
			)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	tm.logger.Debug("transaction committed")
	return nil
}

// Executor is an interface that can execute queries (both *sql.DB and *sql.Tx)
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// GetExecutor returns the appropriate executor based on the context
// If a transaction is present in the context, it returns the transaction
// Otherwise, it returns the database connection
func GetExecutor(ctx context.Context, db *DB) Executor {
	var executor Executor = db.DB
	if tx, ok := ctx.Value(transactionContextKey{}).(*sql.Tx); ok {
		executor = tx
	}
	if db.driver == config.DriverSQLite {
		return sqliteExecutor{inner: executor}
	}
	return executor
}

var numberedPlaceholder = regexp.MustCompile(`\$\d+`)

// Rebind rewrites $1..$n placeholders to sqlite's positional "?". Queries in this
// package reference each placeholder once and in order.
func Rebind(query string) string {
	return numberedPlaceholder.ReplaceAllString(query, "?")
}

// sqliteExecutor rebinds placeholders before delegating
type sqliteExecutor struct {
	inner Executor
}

func (e sqliteExecutor) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return e.inner.ExecContext(ctx, Rebind(query), args...)
}

func (e sqliteExecutor) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return e.inner.QueryContext(ctx, Rebind(query), args...)
}

func (e sqliteExecutor) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return e.inner.QueryRowContext(ctx, Rebind(query), args...)
}
