package patients

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/clinicdesk/internal/audit"
	"github.com/wolfman30/clinicdesk/internal/database"
	"github.com/wolfman30/clinicdesk/internal/http/httpx"
	"github.com/wolfman30/clinicdesk/pkg/logging"
)

// Store is the persistence used by Handler.
type Store interface {
	Create(ctx context.Context, orgID string, req *CreateRequest) (*Patient, error)
	Get(ctx context.Context, orgID, id string) (*Patient, error)
	List(ctx context.Context, orgID string, filter Filter, params database.ListParams) ([]*Patient, int64, error)
	Update(ctx context.Context, orgID, id string, req *UpdateRequest) (*Patient, error)
	Delete(ctx context.Context, orgID, id string) error
}

// Handler serves /api/v1/patients.
type Handler struct {
	store  Store
	audit  audit.Recorder
	logger *logging.Logger
	now    func() time.Time
}

func NewHandler(store Store, auditor audit.Recorder, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, audit: auditor, logger: logger, now: time.Now}
}

// List handles GET /api/v1/patients.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	orgID, err := httpx.OrgID(r)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	params := httpx.ListParams(r)
	q := r.URL.Query()
	filter := Filter{
		Status: strings.ToLower(strings.TrimSpace(q.Get("status"))),
		Gender: strings.ToLower(strings.TrimSpace(q.Get("gender"))),
	}
	items, total, err := h.store.List(r.Context(), orgID, filter, params)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, httpx.NewList(items, total, params))
}

// Create handles POST /api/v1/patients.
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
	if err := req.Validate(h.now()); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	p, err := h.store.Create(r.Context(), orgID, &req)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	audit.Log(r.Context(), h.audit, h.logger, "patient.created", "patient", p.ID, map[string]string{"patient_number": p.PatientNumber})
	httpx.WriteJSON(w, http.StatusCreated, p)
}

// Get handles GET /api/v1/patients/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	orgID, id, ok := h.scope(w, r)
	if !ok {
		return
	}
	p, err := h.store.Get(r.Context(), orgID, id)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}

// Update handles PATCH /api/v1/patients/{id}.
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
	if err := req.Validate(h.now()); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	p, err := h.store.Update(r.Context(), orgID, id, &req)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	audit.Log(r.Context(), h.audit, h.logger, "patient.updated", "patient", id, nil)
	httpx.WriteJSON(w, http.StatusOK, p)
}

// Delete handles DELETE /api/v1/patients/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	orgID, id, ok := h.scope(w, r)
	if !ok {
		return
	}
	if err := h.store.Delete(r.Context(), orgID, id); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	audit.Log(r.Context(), h.audit, h.logger, "patient.deleted", "patient", id, nil)
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
