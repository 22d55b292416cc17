package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/upb/report-gate/middleware"
	"github.com/upb/report-gate/models"
)

func TestHandleMe(t *testing.T) {
	handler := NewMeHandler(zap.NewNop())

	t.Run("returns principal", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
		ctx := middleware.WithPrincipal(req.Context(), models.NewPrincipal("jdoe", []string{"ADMIN", "AUDITOR"}))
		ctx = middleware.WithDecision(ctx, models.DecisionAuthenticatedAndAuthorized)
		w := httptest.NewRecorder()

		handler.HandleMe(w, req.WithContext(ctx))

		assert.Equal(t, http.StatusOK, w.Code)
		data := decodeData(t, w)
		assert.Equal(t, "jdoe", data["login"])
		assert.Equal(t, []interface{}{"ADMIN", "AUDITOR"}, data["roles"])
		assert.Equal(t, "AUTHENTICATED_AND_AUTHORIZED", data["decision"])
	})

	t.Run("empty roles encode as array", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
		ctx := middleware.WithPrincipal(req.Context(), models.NewPrincipal("jdoe", nil))
		w := httptest.NewRecorder()

		handler.HandleMe(w, req.WithContext(ctx))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []interface{}{}, decodeData(t, w)["roles"])
	})

	t.Run("forbidden without principal", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.HandleMe(w, httptest.NewRequest(http.MethodGet, "/api/v1/me", nil))

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Contains(t, w.Body.String(), "Access forbidden")
	})
}
