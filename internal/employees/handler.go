package employees

import (
	"context"
	"net/http"
	"strings"

	"github.com/wolfman30/clinicdesk/internal/audit"
	"github.com/wolfman30/clinicdesk/internal/database"
	"github.com/wolfman30/clinicdesk/internal/http/httpx"
	"github.com/wolfman30/clinicdesk/pkg/logging"
)

// Store is the persistence used by Handler.
type Store interface {
	Create(ctx context.Context, orgID string, req *CreateRequest) (*Employee, error)
	Get(ctx context.Context, orgID, id string) (*Employee, error)
	List(ctx context.Context, orgID string, filter Filter, params database.ListParams) ([]*Employee, int64, error)
	Update(ctx context.Context, orgID, id string, req *UpdateRequest) (*Employee, error)
	Delete(ctx context.Context, orgID, id string) error
}

// Handler serves /api/v1/employees.
type Handler struct {
	store  Store
	audit  audit.Recorder
	logger *logging.Logger
}

func NewHandler(store Store, auditor audit.Recorder, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, audit: auditor, logger: logger}
}

// List handles GET /api/v1/employees.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	orgID, err := httpx.OrgID(r)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	params := httpx.ListParams(r)
	q := r.URL.Query()
	filter := Filter{
		Status:     strings.ToLower(strings.TrimSpace(q.Get("status"))),
		Department: strings.TrimSpace(q.Get("department")),
		Position:   strings.TrimSpace(q.Get("position")),
	}
	items, total, err := h.store.List(r.Context(), orgID, filter, params)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, httpx.NewList(items, total, params))
}

// Create handles POST /api/v1/employees.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	orgID, err := httpx.OrgID(r)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	var req CreateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	if err := req.Validate(); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	e, err := h.store.Create(r.Context(), orgID, &req)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	audit.Log(r.Context(), h.audit, h.logger, "employee.created", "employee", e.ID, map[string]string{"employee_number": e.EmployeeNumber})
	httpx.WriteJSON(w, http.StatusCreated, e)
}

// Get handles GET /api/v1/employees/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	orgID, id, ok := h.scope(w, r)
	if !ok {
		return
	}
	e, err := h.store.Get(r.Context(), orgID, id)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, e)
}

// Update handles PATCH /api/v1/employees/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	orgID, id, ok := h.scope(w, r)
	if !ok {
		return
	}
	var req UpdateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	if err := req.Validate(); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	e, err := h.store.Update(r.Context(), orgID, id, &req)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	audit.Log(r.Context(), h.audit, h.logger, "employee.updated", "employee", id, nil)
	httpx.WriteJSON(w, http.StatusOK, e)
}

// Delete handles DELETE /api/v1/employees/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	orgID, id, ok := h.scope(w, r)
	if !ok {
		return
	}
	if err := h.store.Delete(r.Context(), orgID, id); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	audit.Log(r.Context(), h.audit, h.logger, "employee.deleted", "employee", id, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) scope(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	orgID, id, err := httpx.ScopedID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return "", "", false
	}
	return orgID, id, true
}
