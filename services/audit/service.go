// Package audit delivers gate audit events to a sink, either through a buffered
// worker pool or inline with the request.
package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/upb/report-gate/config"
	"github.com/upb/report-gate/models"
)

var (
	ErrNotStarted = errors.New("audit service not started")
	ErrBufferFull = errors.New("audit event buffer full")
	ErrNilEvent   = errors.New("audit event is nil")
)

// Service handles audit event delivery
type Service struct {
	sink         Sink
	logger       *zap.Logger
	mode         string
	eventChan    chan *models.AuditEvent
	workerCount  int
	bufferSize   int
	writeTimeout time.Duration
	wg           sync.WaitGroup
	started      bool
	stopped      bool
	mu           sync.Mutex

	delivered atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

// Config holds configuration for the Service
type Config struct {
	Mode         string        // async or sync
	BufferSize   int           // Size of the event buffer channel
	WorkerCount  int           // Number of concurrent workers
	WriteTimeout time.Duration // Per-event sink timeout
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		Mode:         config.AuditModeAsync,
		BufferSize:   1000,
		WorkerCount:  2,
		WriteTimeout: 5 * time.Second,
	}
}

// ConfigFrom converts the application audit settings
func ConfigFrom(cfg config.AuditConfig) Config {
	c := DefaultConfig()
	if cfg.Mode != "" {
		c.Mode = cfg.Mode
	}
	if cfg.BufferSize > 0 {
		c.BufferSize = cfg.BufferSize
	}
	if cfg.Workers > 0 {
		c.WorkerCount = cfg.Workers
	}
	if cfg.WriteTimeout > 0 {
		c.WriteTimeout = cfg.WriteTimeout
	}
	return c
}

// NewService creates a new Service instance
func NewService(sink Sink, logger *zap.Logger, cfg Config) *Service {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultConfig().WriteTimeout
	}

	s := &Service{
		sink:         sink,
		logger:       logger,
		mode:         cfg.Mode,
		workerCount:  cfg.WorkerCount,
		bufferSize:   cfg.BufferSize,
		writeTimeout: cfg.WriteTimeout,
	}
	if s.mode != config.AuditModeSync {
		s.mode = config.AuditModeAsync
		s.eventChan = make(chan *models.AuditEvent, cfg.BufferSize)
	}
	return s
}

// Start starts the background workers. In sync mode no workers are started.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("audit service already started")
	}

	if s.mode == config.AuditModeAsync {
		for i := 0; i < s.workerCount; i++ {
			s.wg.Add(1)
			go s.worker(i)
		}
	}

	s.started = true
	s.logger.Info("started audit service",
		zap.String("mode", s.mode),
		zap.String("sink", s.sink.Name()),
		zap.Int("worker_count", s.workerCount),
		zap.Int("buffer_size", s.bufferSize))

	return nil
}

// Stop stops accepting events and waits for pending events to be written
func (s *Service) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.stopped = true
	if s.eventChan != nil {
		s.logger.Info("stopping audit service", zap.Int("pending_events", len(s.eventChan)))
		close(s.eventChan)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("audit service stopped gracefully",
			zap.Uint64("delivered", s.delivered.Load()),
			zap.Uint64("dropped", s.dropped.Load()),
			zap.Uint64("failed", s.failed.Load()))
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("audit service stop timeout after %v", timeout)
	}
}

// Emit hands an event to the sink. In async mode it never blocks: a full buffer
// drops the event. In sync mode the event is written before Emit returns.
func (s *Service) Emit(event *models.AuditEvent) error {
	if event == nil {
		return ErrNilEvent
	}

	if s.mode == config.AuditModeSync {
		s.mu.Lock()
		running := s.started && !s.stopped
		s.mu.Unlock()
		if !running {
			return ErrNotStarted
		}
		if err := s.write(event); err != nil {
			s.logger.Error("failed to write audit event",
				append([]zap.Field{zap.Error(err)}, eventFields(event)...)...)
			return err
		}
		return nil
	}

	// The lock keeps the send from racing with close in Stop.
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || s.stopped {
		return ErrNotStarted
	}

	select {
	case s.eventChan <- event:
		return nil
	default:
		s.dropped.Add(1)
		s.logger.Warn("audit event channel full, dropping event", eventFields(event)...)
		return ErrBufferFull
	}
}

func (s *Service) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("audit worker started", zap.Int("worker_id", id))

	for event := range s.eventChan {
		if err := s.write(event); err != nil {
			s.logger.Error("failed to process audit event",
				append([]zap.Field{zap.Int("worker_id", id), zap.Error(err)}, eventFields(event)...)...)
		}
	}

	s.logger.Debug("audit worker stopped", zap.Int("worker_id", id))
}

func (s *Service) write(event *models.AuditEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
	defer cancel()

	if err := s.sink.Write(ctx, event); err != nil {
		s.failed.Add(1)
		return fmt.Errorf("%s sink: %w", s.sink.Name(), err)
	}
	s.delivered.Add(1)
	return nil
}

func eventFields(event *models.AuditEvent) []zap.Field {
	return []zap.Field{
		zap.String("event_sub_type", string(event.SubType)),
		zap.String("status", string(event.Status)),
		zap.String("request_id", event.RequestID),
	}
}

// Stats returns statistics about the audit service
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		Mode:          s.mode,
		Sink:          s.sink.Name(),
		BufferSize:    s.bufferSize,
		PendingEvents: len(s.eventChan),
		WorkerCount:   s.workerCount,
		Started:       s.started && !s.stopped,
		Delivered:     s.delivered.Load(),
		Dropped:       s.dropped.Load(),
		Failed:        s.failed.Load(),
	}
}

// Stats represents audit service statistics
type Stats struct {
	Mode          string `json:"mode"`
	Sink          string `json:"sink"`
	BufferSize    int    `json:"buffer_size"`
	PendingEvents int    `json:"pending_events"`
	WorkerCount   int    `json:"worker_count"`
	Started       bool   `json:"started"`
	Delivered     uint64 `json:"delivered"`
	Dropped       uint64 `json:"dropped"`
	Failed        uint64 `json:"failed"`
}

// Convenience constructors for the events the gate emits

// SignInEvent records a successful authentication
func SignInEvent(login string) *models.AuditEvent {
	return models.NewAuditEvent(models.AuditEventSignIn, models.AuditLayerGate, models.AuditStatusSuccess, "principal authenticated").
		WithLogin(login)
}

// AuthenticationFailedEvent records a rejected credential
func AuthenticationFailedEvent(reason string) *models.AuditEvent {
	return failureEvent("Authentication error", reason)
}

// AuthorizationFailedEvent records a denied or failed authorization
func AuthorizationFailedEvent(login, reason string) *models.AuditEvent {
	return failureEvent("Authorization error", reason).WithLogin(login)
}

func failureEvent(prefix, reason string) *models.AuditEvent {
	return models.NewAuditEvent(models.AuditEventFailSignIn, models.AuditLayerGate, models.AuditStatusFail, FailureMessage(prefix, reason)).
		WithReason(reason)
}

// FailureMessage builds the caller-visible rejection message
func FailureMessage(prefix, reason string) string {
	return prefix + " - " + reason
}
