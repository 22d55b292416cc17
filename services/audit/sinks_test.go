package audit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/upb/report-gate/models"
)

// MockAuditRepository is a mock implementation of AuditRepository
type MockAuditRepository struct {
	mock.Mock
}

func (m *MockAuditRepository) Insert(ctx context.Context, event *models.AuditEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockAuditRepository) Recent(ctx context.Context, limit int) ([]*models.AuditEvent, error) {
	args := m.Called(ctx, limit)
	if events := args.Get(0); events != nil {
		return events.([]*models.AuditEvent), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAuditRepository) GetByRequestID(ctx context.Context, requestID string, limit int) ([]*models.AuditEvent, error) {
	args := m.Called(ctx, requestID, limit)
	if events := args.Get(0); events != nil {
		return events.([]*models.AuditEvent), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAuditRepository) GetByLogin(ctx context.Context, login string, limit int) ([]*models.AuditEvent, error) {
	args := m.Called(ctx, login, limit)
	if events := args.Get(0); events != nil {
		return events.([]*models.AuditEvent), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestRepositorySink(t *testing.T) {
	ctx := context.Background()
	event := SignInEvent("jdoe")

	t.Run("inserts event", func(t *testing.T) {
		repo := new(MockAuditRepository)
		repo.On("Insert", ctx, event).Return(nil)

		sink := NewRepositorySink(repo)
		require.NoError(t, sink.Write(ctx, event))
		assert.Equal(t, "database", sink.Name())
		repo.AssertExpectations(t)
	})

	t.Run("wraps insert error", func(t *testing.T) {
		repo := new(MockAuditRepository)
		repo.On("Insert", ctx, event).Return(errors.New("connection refused"))

		err := NewRepositorySink(repo).Write(ctx, event)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to insert audit event")
	})
}

func TestHTTPSink(t *testing.T) {
	t.Run("posts event as json", func(t *testing.T) {
		var received map[string]interface{}
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
			w.WriteHeader(http.StatusAccepted)
		}))
		defer server.Close()

		sink := NewHTTPSink(server.URL, server.Client())
		event := AuthenticationFailedEvent("invalid token").WithRequest("req-1", "GET", "/api/v1/me", "10.0.0.1", "curl")
		require.NoError(t, sink.Write(context.Background(), event))

		assert.Equal(t, "FAIL_SIGN_IN", received["event_sub_type"])
		assert.Equal(t, "FAIL", received["status"])
		assert.Equal(t, "Authentication error - invalid token", received["message"])
		assert.Equal(t, "invalid token", received["reason"])
		assert.Equal(t, "req-1", received["request_id"])
		assert.Equal(t, "http", sink.Name())
	})

	t.Run("non-2xx is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		err := NewHTTPSink(server.URL, nil).Write(context.Background(), SignInEvent("jdoe"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 503")
	})

	t.Run("honours context deadline", func(t *testing.T) {
		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer server.Close()
		defer close(release)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		err := NewHTTPSink(server.URL, server.Client()).Write(ctx, SignInEvent("jdoe"))
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestLogSink(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sink := NewLogSink(zap.New(core))

	require.NoError(t, sink.Write(context.Background(), SignInEvent("jdoe")))
	require.NoError(t, sink.Write(context.Background(), AuthorizationFailedEvent("jdoe", "user jdoe lacks required roles")))

	entries := logs.All()
	require.Len(t, entries, 2)

	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "principal authenticated", entries[0].Message)
	assert.Equal(t, "SIGN_IN", entries[0].ContextMap()["event_sub_type"])
	_, hasReason := entries[0].ContextMap()["reason"]
	assert.False(t, hasReason)

	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "user jdoe lacks required roles", entries[1].ContextMap()["reason"])
	assert.Equal(t, "audit", entries[1].LoggerName)
	assert.Equal(t, "log", sink.Name())
}
