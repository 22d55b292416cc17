package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/upb/report-gate/config"
	"github.com/upb/report-gate/models"
)

// MockSink is a mock implementation of Sink
type MockSink struct {
	mock.Mock
	mu      sync.Mutex
	written []*models.AuditEvent
}

func (m *MockSink) Write(ctx context.Context, event *models.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	args := m.Called(ctx, event)
	m.written = append(m.written, event)
	return args.Error(0)
}

func (m *MockSink) Name() string { return "mock" }

func (m *MockSink) Written() []*models.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.AuditEvent(nil), m.written...)
}

// blockingSink holds every write until release is closed
type blockingSink struct {
	release chan struct{}
}

func (b *blockingSink) Write(ctx context.Context, _ *models.AuditEvent) error {
	select {
	case <-b.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *blockingSink) Name() string { return "blocking" }

func TestService_StartStop(t *testing.T) {
	sink := new(MockSink)
	service := NewService(sink, zap.NewNop(), DefaultConfig())

	require.NoError(t, service.Start())
	assert.True(t, service.Stats().Started)

	err := service.Start()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already started")

	require.NoError(t, service.Stop(time.Second))
	assert.False(t, service.Stats().Started)

	assert.ErrorIs(t, service.Stop(time.Second), ErrNotStarted)
}

func TestService_EmitAsync(t *testing.T) {
	sink := new(MockSink)
	sink.On("Write", mock.Anything, mock.AnythingOfType("*models.AuditEvent")).Return(nil)

	service := NewService(sink, zap.NewNop(), Config{Mode: config.AuditModeAsync, BufferSize: 10, WorkerCount: 2, WriteTimeout: time.Second})
	require.NoError(t, service.Start())

	for i := 0; i < 5; i++ {
		require.NoError(t, service.Emit(SignInEvent("jdoe")))
	}

	require.NoError(t, service.Stop(5*time.Second))

	assert.Len(t, sink.Written(), 5)
	assert.Equal(t, uint64(5), service.Stats().Delivered)
	sink.AssertNumberOfCalls(t, "Write", 5)
}

func TestService_EmitBeforeStart(t *testing.T) {
	service := NewService(new(MockSink), zap.NewNop(), DefaultConfig())
	assert.ErrorIs(t, service.Emit(SignInEvent("jdoe")), ErrNotStarted)
}

func TestService_EmitAfterStop(t *testing.T) {
	sink := new(MockSink)
	service := NewService(sink, zap.NewNop(), DefaultConfig())
	require.NoError(t, service.Start())
	require.NoError(t, service.Stop(time.Second))

	assert.ErrorIs(t, service.Emit(SignInEvent("jdoe")), ErrNotStarted)
	sink.AssertNotCalled(t, "Write", mock.Anything, mock.Anything)
}

func TestService_EmitNil(t *testing.T) {
	service := NewService(new(MockSink), zap.NewNop(), DefaultConfig())
	require.NoError(t, service.Start())
	defer service.Stop(time.Second)

	assert.ErrorIs(t, service.Emit(nil), ErrNilEvent)
}

func TestService_BufferFullDropsEvent(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	sink := &blockingSink{release: make(chan struct{})}

	service := NewService(sink, zap.New(core), Config{Mode: config.AuditModeAsync, BufferSize: 1, WorkerCount: 1, WriteTimeout: 5 * time.Second})
	require.NoError(t, service.Start())

	// First event occupies the worker, second fills the buffer.
	require.NoError(t, service.Emit(SignInEvent("a")))
	require.Eventually(t, func() bool { return service.Stats().PendingEvents == 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, service.Emit(SignInEvent("b")))

	start := time.Now()
	err := service.Emit(SignInEvent("c"))
	assert.ErrorIs(t, err, ErrBufferFull)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, uint64(1), service.Stats().Dropped)
	assert.Equal(t, 1, logs.FilterMessage("audit event channel full, dropping event").Len())

	close(sink.release)
	require.NoError(t, service.Stop(5*time.Second))
	assert.Equal(t, uint64(2), service.Stats().Delivered)
}

func TestService_WorkerLogsSinkErrors(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	sink := new(MockSink)
	sink.On("Write", mock.Anything, mock.Anything).Return(errors.New("collector down"))

	service := NewService(sink, zap.New(core), DefaultConfig())
	require.NoError(t, service.Start())
	require.NoError(t, service.Emit(AuthenticationFailedEvent("invalid token")))
	require.NoError(t, service.Stop(5*time.Second))

	assert.Equal(t, uint64(1), service.Stats().Failed)
	entries := logs.FilterMessage("failed to process audit event").All()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].ContextMap()["error"], "collector down")
}

func TestService_EmitSync(t *testing.T) {
	t.Run("writes before returning", func(t *testing.T) {
		sink := new(MockSink)
		sink.On("Write", mock.Anything, mock.Anything).Return(nil)

		service := NewService(sink, zap.NewNop(), Config{Mode: config.AuditModeSync, WriteTimeout: time.Second})
		require.NoError(t, service.Start())

		event := SignInEvent("jdoe")
		require.NoError(t, service.Emit(event))
		require.Len(t, sink.Written(), 1)
		assert.Same(t, event, sink.Written()[0])

		require.NoError(t, service.Stop(time.Second))
	})

	t.Run("returns sink error", func(t *testing.T) {
		sink := new(MockSink)
		sink.On("Write", mock.Anything, mock.Anything).Return(errors.New("insert failed"))

		core, logs := observer.New(zap.ErrorLevel)
		service := NewService(sink, zap.New(core), Config{Mode: config.AuditModeSync, WriteTimeout: time.Second})
		require.NoError(t, service.Start())

		event := SignInEvent("jdoe")
		event.RequestID = "req-7"
		err := service.Emit(event)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mock sink: insert failed")
		assert.Equal(t, uint64(1), service.Stats().Failed)

		entries := logs.FilterMessage("failed to write audit event").All()
		require.Len(t, entries, 1)
		fields := entries[0].ContextMap()
		assert.Contains(t, fields["error"], "insert failed")
		assert.Equal(t, "SIGN_IN", fields["event_sub_type"])
		assert.Equal(t, "req-7", fields["request_id"])
	})

	t.Run("bounded by write timeout", func(t *testing.T) {
		sink := &blockingSink{release: make(chan struct{})}
		defer close(sink.release)

		service := NewService(sink, zap.NewNop(), Config{Mode: config.AuditModeSync, WriteTimeout: 20 * time.Millisecond})
		require.NoError(t, service.Start())

		err := service.Emit(SignInEvent("jdoe"))
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestService_Stats(t *testing.T) {
	service := NewService(new(MockSink), zap.NewNop(), Config{Mode: "unknown", BufferSize: 100, WorkerCount: 3})

	stats := service.Stats()
	assert.Equal(t, config.AuditModeAsync, stats.Mode)
	assert.Equal(t, "mock", stats.Sink)
	assert.Equal(t, 100, stats.BufferSize)
	assert.Equal(t, 3, stats.WorkerCount)
	assert.Equal(t, 0, stats.PendingEvents)
	assert.False(t, stats.Started)
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(config.AuditConfig{Mode: config.AuditModeSync, BufferSize: 50, Workers: 4, WriteTimeout: 2 * time.Second})
	assert.Equal(t, Config{Mode: config.AuditModeSync, BufferSize: 50, WorkerCount: 4, WriteTimeout: 2 * time.Second}, cfg)

	assert.Equal(t, DefaultConfig(), ConfigFrom(config.AuditConfig{}))
}

func TestEventConstructors(t *testing.T) {
	signIn := SignInEvent("jdoe")
	assert.Equal(t, models.AuditEventSignIn, signIn.SubType)
	assert.Equal(t, models.AuditLayerGate, signIn.Layer)
	assert.Equal(t, models.AuditStatusSuccess, signIn.Status)
	assert.Equal(t, "principal authenticated", signIn.Message)
	assert.Equal(t, "jdoe", signIn.Login)

	authn := AuthenticationFailedEvent("token expired")
	assert.Equal(t, models.AuditEventFailSignIn, authn.SubType)
	assert.Equal(t, models.AuditStatusFail, authn.Status)
	assert.Equal(t, "Authentication error - token expired", authn.Message)
	assert.Equal(t, "token expired", authn.Reason)

	authz := AuthorizationFailedEvent("jdoe", "user jdoe lacks required roles")
	assert.Equal(t, models.AuditEventFailSignIn, authz.SubType)
	assert.Equal(t, "Authorization error - user jdoe lacks required roles", authz.Message)
	assert.Equal(t, "jdoe", authz.Login)
}
