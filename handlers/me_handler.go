package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/report-gate/middleware"
	"github.com/upb/report-gate/models"
	"github.com/upb/report-gate/utils"
)

// MeResponse describes the principal the gate attached to the request
type MeResponse struct {
	Login    string              `json:"login"`
	Roles    []string            `json:"roles"`
	Decision models.GateDecision `json:"decision"`
}

// MeHandler serves the authenticated principal back to the caller
type MeHandler struct {
	logger *zap.Logger
}

// NewMeHandler creates a new MeHandler
func NewMeHandler(logger *zap.Logger) *MeHandler {
	return &MeHandler{logger: logger}
}

// HandleMe handles GET /api/v1/me
func (h *MeHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	principal := middleware.PrincipalFromContext(r.Context())
	if principal == nil {
		// only reachable when the route is mounted outside the gate
		h.logger.Error("principal not found in context", zap.String("path", r.URL.Path))
		_ = utils.WriteForbidden(w, "")
		return
	}

	roles := principal.Roles()
	if roles == nil {
		roles = []string{}
	}

	_ = utils.WriteOK(w, MeResponse{
		Login:    principal.Login(),
		Roles:    roles,
		Decision: middleware.DecisionFromContext(r.Context()),
	})
}
