package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/report-gate/app"
	"github.com/upb/report-gate/config"
	"github.com/upb/report-gate/credentials"
	"github.com/upb/report-gate/models"
)

const testSecret = "routes-test-secret"

func setup(t *testing.T) (*app.Dependencies, http.Handler) {
	t.Helper()
	cfg := &config.Config{
		Environment: "test",
		Server:      config.ServerConfig{ShutdownTimeout: 5 * time.Second},
		Database:    config.DatabaseConfig{Driver: config.DriverSQLite, SQLitePath: filepath.Join(t.TempDir(), "routes.db")},
		Auth: config.AuthConfig{
			SecuredPath:   "/api/v1/**",
			AllowedRoles:  []string{"ADMIN", "AUDITOR"},
			BypassProfile: "security-local",
			TokenMode:     config.TokenModeHS256,
			JWTSecret:     testSecret,
			LoginClaim:    "preferred_username",
			RolesClaim:    "roles",
			RoleSource:    config.RoleSourceStore,
			VerifyTimeout: 2 * time.Second,
			Realm:         "reports",
		},
		Audit: config.AuditConfig{
			Sink:         config.AuditSinkDatabase,
			Mode:         config.AuditModeSync,
			BufferSize:   10,
			Workers:      1,
			WriteTimeout: 2 * time.Second,
		},
		CORS:          config.CORSConfig{AllowedOrigins: []string{"http://localhost:*"}},
		Observability: config.ObservabilityConfig{LogLevel: "info"},
	}

	deps, err := app.NewDependencies(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = deps.Close(context.Background()) })

	return deps, SetupRoutes(deps)
}

func seedUser(t *testing.T, deps *app.Dependencies, login string, roles ...string) string {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, deps.Identities.Upsert(ctx, models.NewUser(login, login)))
	require.NoError(t, deps.Identities.ReplaceRoles(ctx, login, roles))

	token, err := credentials.IssueToken(testSecret, credentials.IssueOptions{Login: login})
	require.NoError(t, err)
	return token
}

func get(handler http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestPublicHealthBypassesGate(t *testing.T) {
	deps, handler := setup(t)

	for _, path := range []string{"/public/health", "/healthz", "/readyz"} {
		w := get(handler, path, "")
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	events, err := deps.AuditLogs.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestMeRequiresCredential(t *testing.T) {
	deps, handler := setup(t)

	w := get(handler, "/api/v1/me", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{"message":"Authentication error - missing bearer token"}`, w.Body.String())
	assert.Equal(t, `Bearer realm="reports", error="invalid_token"`, w.Header().Get("WWW-Authenticate"))

	events, err := deps.AuditLogs.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.AuditEventFailSignIn, events[0].SubType)
	assert.NotEmpty(t, events[0].RequestID)
}

func TestMeReturnsPrincipal(t *testing.T) {
	deps, handler := setup(t)
	token := seedUser(t, deps, "jdoe", "ADMIN")

	w := get(handler, "/api/v1/me", token)
	require.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Data struct {
			Login    string   `json:"login"`
			Roles    []string `json:"roles"`
			Decision string   `json:"decision"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "jdoe", response.Data.Login)
	assert.Equal(t, []string{"ADMIN"}, response.Data.Roles)
	assert.Equal(t, "AUTHENTICATED_AND_AUTHORIZED", response.Data.Decision)
}

func TestMeDeniedWithoutAllowedRole(t *testing.T) {
	deps, handler := setup(t)
	token := seedUser(t, deps, "guest", "GUEST")

	w := get(handler, "/api/v1/me", token)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{"message":"Authorization error - user guest lacks required roles"}`, w.Body.String())
	assert.Empty(t, w.Header().Get("WWW-Authenticate"))
}

func TestUnknownSecuredPathIsGated(t *testing.T) {
	_, handler := setup(t)

	w := get(handler, "/api/v1/does-not-exist", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = get(handler, "/api/v10/does-not-exist", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAuditEventsEndpoint(t *testing.T) {
	deps, handler := setup(t)
	token := seedUser(t, deps, "auditor", "AUDITOR")

	w := get(handler, "/api/v1/audit/events?login=auditor", token)
	require.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Data []models.AuditEvent `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	require.Len(t, response.Data, 1)
	assert.Equal(t, models.AuditEventSignIn, response.Data[0].SubType)
	assert.Equal(t, "/api/v1/audit/events", response.Data[0].Path)
}
