package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/upb/report-gate/models"
	"github.com/upb/report-gate/repositories"
	"github.com/upb/report-gate/utils"
)

const defaultAuditLimit = 50

// AuditHandler serves stored gate audit events
type AuditHandler struct {
	repo   repositories.AuditRepository
	logger *zap.Logger
}

// NewAuditHandler creates a new AuditHandler
func NewAuditHandler(repo repositories.AuditRepository, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{repo: repo, logger: logger}
}

// HandleList handles GET /api/v1/audit/events
// Filters: request_id, login; limit defaults to 50
func (h *AuditHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit := defaultAuditLimit
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			_ = utils.WriteMessage(w, http.StatusBadRequest, "limit must be a number")
			return
		}
		limit = n
	}
	if err := utils.ValidateVar(limit, "limit", "min=1,max=500"); err != nil {
		_ = utils.WriteMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	var (
		events []*models.AuditEvent
		err    error
	)
	switch {
	case query.Get("request_id") != "":
		events, err = h.repo.GetByRequestID(r.Context(), query.Get("request_id"), limit)
	case query.Get("login") != "":
		events, err = h.repo.GetByLogin(r.Context(), query.Get("login"), limit)
	default:
		events, err = h.repo.Recent(r.Context(), limit)
	}
	if err != nil {
		h.logger.Error("failed to list audit events", zap.Error(err))
		_ = utils.WriteInternalServerError(w, "")
		return
	}

	if events == nil {
		events = []*models.AuditEvent{}
	}
	_ = utils.WriteOK(w, events)
}
