package main

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upb/report-gate/config"
)

func TestNewServer(t *testing.T) {
	handler := http.NotFoundHandler()
	srv := newServer(config.ServerConfig{
		Host:         "127.0.0.1",
		Port:         9090,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 4 * time.Second,
	}, handler)

	assert.Equal(t, "127.0.0.1:9090", srv.Addr)
	assert.Equal(t, 3*time.Second, srv.ReadTimeout)
	assert.Equal(t, 3*time.Second, srv.ReadHeaderTimeout)
	assert.Equal(t, 4*time.Second, srv.WriteTimeout)
	assert.NotNil(t, srv.Handler)
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("AUTH_ALLOWED_ROLES", "")
	t.Setenv("AUTH_JWT_SECRET", "secret")

	err := run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation failed")
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	t.Setenv("AUTH_ALLOWED_ROLES", "ADMIN")
	t.Setenv("AUTH_JWT_SECRET", "secret")
	t.Setenv("AUTH_ROLE_SOURCE", "claims")
	t.Setenv("AUDIT_SINK", "log")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("SERVER_HOST", "127.0.0.1")
	t.Setenv("PORT", "0")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}
