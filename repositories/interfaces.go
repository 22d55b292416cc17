package repositories

import (
	"context"
	"errors"

	"github.com/upb/report-gate/models"
)

// ErrNotFound is returned when a looked-up record does not exist
var ErrNotFound = errors.New("record not found")

// TransactionManager manages database transactions
type TransactionManager interface {
	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// IdentityRepository is the identity store consulted on every verification.
// Implementations must not cache: every call reflects the current state.
type IdentityRepository interface {
	// GetByLogin returns the user with its current roles, or ErrNotFound
	GetByLogin(ctx context.Context, login string) (*models.User, error)

	// Upsert creates or updates the user row (roles untouched)
	Upsert(ctx context.Context, user *models.User) error

	// SetActive enables or disables an account
	SetActive(ctx context.Context, login string, active bool) error

	// GrantRole adds a role to a user; granting an existing role is a no-op
	GrantRole(ctx context.Context, login, role string) error

	// RevokeRole removes a role from a user
	RevokeRole(ctx context.Context, login, role string) error

	// ReplaceRoles atomically replaces the full role set of a user
	ReplaceRoles(ctx context.Context, login string, roles []string) error

	// List returns users ordered by login with pagination
	List(ctx context.Context, limit, offset int) ([]*models.User, error)
}

// AuditRepository persists gate audit events
type AuditRepository interface {
	// Insert inserts a new audit event
	Insert(ctx context.Context, event *models.AuditEvent) error

	// Recent returns the newest events first
	Recent(ctx context.Context, limit int) ([]*models.AuditEvent, error)

	// GetByRequestID retrieves at most limit events of one request, oldest first
	GetByRequestID(ctx context.Context, requestID string, limit int) ([]*models.AuditEvent, error)

	// GetByLogin retrieves the newest events of one login
	GetByLogin(ctx context.Context, login string, limit int) ([]*models.AuditEvent, error)
}

// Repositories holds all repository instances
type Repositories struct {
	Identities IdentityRepository
	AuditLog   AuditRepository
	TxManager  TransactionManager
}
