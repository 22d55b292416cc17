package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/upb/report-gate/models"
	"github.com/upb/report-gate/repositories"
)

// Sink is the destination audit events are delivered to
type Sink interface {
	Write(ctx context.Context, event *models.AuditEvent) error
	Name() string
}

// RepositorySink stores events in the audit_events table
type RepositorySink struct {
	repo repositories.AuditRepository
}

// NewRepositorySink creates a sink backed by an AuditRepository
func NewRepositorySink(repo repositories.AuditRepository) *RepositorySink {
	return &RepositorySink{repo: repo}
}

func (s *RepositorySink) Write(ctx context.Context, event *models.AuditEvent) error {
	if err := s.repo.Insert(ctx, event); err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

func (s *RepositorySink) Name() string { return "database" }

// HTTPSink posts each event as JSON to a remote audit collector
type HTTPSink struct {
	url    string
	client *http.Client
}

// NewHTTPSink creates a collector sink. A nil client gets a 10 second timeout.
func NewHTTPSink(url string, client *http.Client) *HTTPSink {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPSink{url: url, client: client}
}

func (s *HTTPSink) Write(ctx context.Context, event *models.AuditEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode audit event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create collector request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post audit event: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("audit collector returned status %d", resp.StatusCode)
	}
	return nil
}

func (s *HTTPSink) Name() string { return "http" }

// LogSink writes events as structured log lines
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a sink that logs through zap
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("audit")}
}

func (s *LogSink) Write(_ context.Context, event *models.AuditEvent) error {
	fields := []zap.Field{
		zap.String("event_id", event.ID.String()),
		zap.Time("occurred_at", event.OccurredAt),
		zap.String("event_sub_type", string(event.SubType)),
		zap.String("layer", string(event.Layer)),
		zap.String("status", string(event.Status)),
		zap.String("login", event.Login),
		zap.String("request_id", event.RequestID),
		zap.String("method", event.Method),
		zap.String("path", event.Path),
	}
	if event.Reason != "" {
		fields = append(fields, zap.String("reason", event.Reason))
	}

	if event.IsFailure() {
		s.logger.Warn(event.Message, fields...)
	} else {
		s.logger.Info(event.Message, fields...)
	}
	return nil
}

func (s *LogSink) Name() string { return "log" }
