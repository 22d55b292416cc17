package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/upb/report-gate/models"
	"github.com/upb/report-gate/repositories"
)

// IdentityRepository implements the repositories.IdentityRepository interface
type IdentityRepository struct {
	db     *DB
	tx     repositories.TransactionManager
	logger *zap.Logger
}

// NewIdentityRepository creates a new identity repository
func NewIdentityRepository(db *DB, tx repositories.TransactionManager, logger *zap.Logger) repositories.IdentityRepository {
	return &IdentityRepository{
		db:     db,
		tx:     tx,
		logger: logger,
	}
}

// GetByLogin retrieves a user and its roles in a single query
func (r *IdentityRepository) GetByLogin(ctx context.Context, login string) (*models.User, error) {
	query := `
		SELECT u.login, u.display_name, u.active, u.created_at, u.updated_at, ur.role
		FROM users u
		LEFT JOIN user_roles ur ON ur.login = u.login
		WHERE u.login = $1
		ORDER BY ur.role
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, login)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	defer rows.Close()

	var user *models.User
	for rows.Next() {
		var (
			u    models.User
			role sql.NullString
		)
		if err := rows.Scan(&u.Login, &u.DisplayName, &u.Active, &u.CreatedAt, &u.UpdatedAt, &role); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		if user == nil {
			u.Roles = []string{}
			user = &u
		}
		if role.Valid {
			user.Roles = append(user.Roles, role.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user rows: %w", err)
	}

	if user == nil {
		return nil, fmt.Errorf("user %q: %w", login, repositories.ErrNotFound)
	}
	return user, nil
}

// Upsert creates or updates a user
func (r *IdentityRepository) Upsert(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (login, display_name, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (login) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at
	`

	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.UpdatedAt = time.Now().UTC()

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		user.Login,
		user.DisplayName,
		user.Active,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}

	r.logger.Debug("user upserted", zap.String("login", user.Login))
	return nil
}

// SetActive enables or disables an account
func (r *IdentityRepository) SetActive(ctx context.Context, login string, active bool) error {
	query := `UPDATE users SET active = $1, updated_at = $2 WHERE login = $3`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, active, time.Now().UTC(), login)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("user %q: %w", login, repositories.ErrNotFound)
	}

	r.logger.Debug("user activation changed", zap.String("login", login), zap.Bool("active", active))
	return nil
}

// GrantRole adds a role to an existing user
func (r *IdentityRepository) GrantRole(ctx context.Context, login, role string) error {
	return r.tx.InTransaction(ctx, func(ctx context.Context) error {
		if err := r.ensureExists(ctx, login); err != nil {
			return err
		}
		if err := r.insertRole(ctx, login, role); err != nil {
			return err
		}
		r.logger.Debug("role granted", zap.String("login", login), zap.String("role", role))
		return nil
	})
}

// RevokeRole removes a role from a user. Revoking a role the user does not hold is a no-op.
func (r *IdentityRepository) RevokeRole(ctx context.Context, login, role string) error {
	query := `DELETE FROM user_roles WHERE login = $1 AND role = $2`

	executor := GetExecutor(ctx, r.db)
	if _, err := executor.ExecContext(ctx, query, login, role); err != nil {
		return fmt.Errorf("failed to revoke role: %w", err)
	}

	r.logger.Debug("role revoked", zap.String("login", login), zap.String("role", role))
	return nil
}

// ReplaceRoles replaces the full role set of a user within one transaction
func (r *IdentityRepository) ReplaceRoles(ctx context.Context, login string, roles []string) error {
	return r.tx.InTransaction(ctx, func(ctx context.Context) error {
		if err := r.ensureExists(ctx, login); err != nil {
			return err
		}

		executor := GetExecutor(ctx, r.db)
		if _, err := executor.ExecContext(ctx, `DELETE FROM user_roles WHERE login = $1`, login); err != nil {
			return fmt.Errorf("failed to clear roles: %w", err)
		}
		for _, role := range roles {
			if err := r.insertRole(ctx, login, role); err != nil {
				return err
			}
		}
		return nil
	})
}

// List returns users ordered by login with pagination
func (r *IdentityRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	query := `
		SELECT login, display_name, active, created_at, updated_at
		FROM users
		ORDER BY login
		LIMIT $1 OFFSET $2
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	var users []*models.User
	for rows.Next() {
		u := &models.User{}
		if err := rows.Scan(&u.Login, &u.DisplayName, &u.Active, &u.CreatedAt, &u.UpdatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user rows: %w", err)
	}

	// roles are loaded after the cursor is closed; sqlite runs with one connection
	for _, u := range users {
		roles, err := r.listRoles(ctx, u.Login)
		if err != nil {
			return nil, err
		}
		u.Roles = roles
	}

	return users, nil
}

func (r *IdentityRepository) listRoles(ctx context.Context, login string) ([]string, error) {
	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, `SELECT role FROM user_roles WHERE login = $1 ORDER BY role`, login)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	roles := []string{}
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (r *IdentityRepository) ensureExists(ctx context.Context, login string) error {
	executor := GetExecutor(ctx, r.db)
	var found int
	err := executor.QueryRowContext(ctx, `SELECT 1 FROM users WHERE login = $1`, login).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("user %q: %w", login, repositories.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to check user: %w", err)
	}
	return nil
}

func (r *IdentityRepository) insertRole(ctx context.Context, login, role string) error {
	query := `
		INSERT INTO user_roles (login, role)
		VALUES ($1, $2)
		ON CONFLICT (login, role) DO NOTHING
	`
	executor := GetExecutor(ctx, r.db)
	if _, err := executor.ExecContext(ctx, query, login, role); err != nil {
		return fmt.Errorf("failed to grant role: %w", err)
	}
	return nil
}
