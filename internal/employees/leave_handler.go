package employees

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/clinicdesk/internal/apperr"
	"github.com/wolfman30/clinicdesk/internal/audit"
	"github.com/wolfman30/clinicdesk/internal/database"
	"github.com/wolfman30/clinicdesk/internal/http/httpx"
	"github.com/wolfman30/clinicdesk/internal/tenancy"
	"github.com/wolfman30/clinicdesk/pkg/logging"
)

// LeaveStore is the persistence used by LeaveHandler.
type LeaveStore interface {
	Create(ctx context.Context, orgID, employeeID string, req *LeaveRequest) (*Leave, error)
	ListForEmployee(ctx context.Context, orgID, employeeID, status string, params database.ListParams) ([]*Leave, int64, error)
	Decide(ctx context.Context, orgID, id, action, actorID string, req *DecisionRequest) (*Leave, error)
}

// LeaveHandler serves /api/v1/employees/{id}/leaves and /api/v1/leaves/{id}/{action}.
type LeaveHandler struct {
	store  LeaveStore
	audit  audit.Recorder
	logger *logging.Logger
}

func NewLeaveHandler(store LeaveStore, auditor audit.Recorder, logger *logging.Logger) *LeaveHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &LeaveHandler{store: store, audit: auditor, logger: logger}
}

// List handles GET /api/v1/employees/{id}/leaves?status=.
func (h *LeaveHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID, employeeID, err := httpx.ScopedID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	status := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status")))
	if status != "" && !validLeaveStatus(status) {
		httpx.WriteError(w, r, h.logger, apperr.Invalidf("unknown status %q", status))
		return
	}
	params := httpx.ListParams(r)
	items, total, err := h.store.ListForEmployee(r.Context(), orgID, employeeID, status, params)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, httpx.NewList(items, total, params))
}

// Create handles POST /api/v1/employees/{id}/leaves.
func (h *LeaveHandler) Create(w http.ResponseWriter, r *http.Request) {
	orgID, employeeID, err := httpx.ScopedID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	var req LeaveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	if err := req.Validate(); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	leave, err := h.store.Create(r.Context(), orgID, employeeID, &req)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	audit.Log(r.Context(), h.audit, h.logger, "leave.requested", "leave", leave.ID, map[string]any{
		"employee_id": employeeID, "days": leave.Days,
	})
	httpx.WriteJSON(w, http.StatusCreated, leave)
}

// Decide handles POST /api/v1/leaves/{id}/{action}.
func (h *LeaveHandler) Decide(w http.ResponseWriter, r *http.Request) {
	orgID, id, err := httpx.ScopedID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	action := chi.URLParam(r, "action")
	if _, ok := leaveTransitions[action]; !ok {
		httpx.WriteError(w, r, h.logger, apperr.NotFound("unknown leave action"))
		return
	}
	var req DecisionRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteError(w, r, h.logger, err)
			return
		}
	}
	if err := req.Validate(); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	actorID, _ := tenancy.UserIDFromContext(r.Context())
	leave, err := h.store.Decide(r.Context(), orgID, id, action, actorID, &req)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	audit.Log(r.Context(), h.audit, h.logger, "leave."+leave.Status, "leave", id, nil)
	httpx.WriteJSON(w, http.StatusOK, leave)
}
