package sqlstore

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/upb/report-gate/models"
	"github.com/upb/report-gate/repositories"
)

const auditColumns = `id, occurred_at, sub_type, layer, status, message, reason,
		       login, request_id, method, path, remote_addr, user_agent`

// AuditRepository implements the repositories.AuditRepository interface
type AuditRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *DB, logger *zap.Logger) repositories.AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// Insert inserts a new audit event
func (r *AuditRepository) Insert(ctx context.Context, event *models.AuditEvent) error {
	query := `
		INSERT INTO audit_events (
			id, occurred_at, sub_type, layer, status, message, reason,
			login, request_id, method, path, remote_addr, user_agent
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		event.ID.String(),
		event.OccurredAt,
		string(event.SubType),
		string(event.Layer),
		string(event.Status),
		event.Message,
		event.Reason,
		event.Login,
		event.RequestID,
		event.Method,
		event.Path,
		event.RemoteAddr,
		event.UserAgent,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}

	r.logger.Debug("audit event inserted",
		zap.String("id", event.ID.String()),
		zap.String("sub_type", string(event.SubType)),
		zap.String("status", string(event.Status)))
	return nil
}

// Recent returns the newest events first
func (r *AuditRepository) Recent(ctx context.Context, limit int) ([]*models.AuditEvent, error) {
	query := `
		SELECT ` + auditColumns + `
		FROM audit_events
		ORDER BY occurred_at DESC
		LIMIT $1
	`
	return r.queryEvents(ctx, query, limit)
}

// GetByRequestID retrieves the events of one request in the order they happened
func (r *AuditRepository) GetByRequestID(ctx context.Context, requestID string, limit int) ([]*models.AuditEvent, error) {
	query := `
		SELECT ` + auditColumns + `
		FROM audit_events
		WHERE request_id = $1
		ORDER BY occurred_at ASC
		LIMIT $2
	`
	return r.queryEvents(ctx, query, requestID, limit)
}

// GetByLogin retrieves the newest events of one login
func (r *AuditRepository) GetByLogin(ctx context.Context, login string, limit int) ([]*models.AuditEvent, error) {
	query := `
		SELECT ` + auditColumns + `
		FROM audit_events
		WHERE login = $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`
	return r.queryEvents(ctx, query, login, limit)
}

// queryEvents is a helper method to query multiple audit events
func (r *AuditRepository) queryEvents(ctx context.Context, query string, args ...interface{}) ([]*models.AuditEvent, error) {
	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []*models.AuditEvent
	for rows.Next() {
		event := &models.AuditEvent{}
		var subType, layer, status string
		err := rows.Scan(
			&event.ID,
			&event.OccurredAt,
			&subType,
			&layer,
			&status,
			&event.Message,
			&event.Reason,
			&event.Login,
			&event.RequestID,
			&event.Method,
			&event.Path,
			&event.RemoteAddr,
			&event.UserAgent,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		event.SubType = models.AuditEventType(subType)
		event.Layer = models.AuditLayer(layer)
		event.Status = models.AuditStatus(status)
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit events: %w", err)
	}

	return events, nil
}
