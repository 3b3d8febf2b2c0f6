package visits

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/wolfman30/clinicdesk/internal/apperr"
	"github.com/wolfman30/clinicdesk/internal/audit"
	"github.com/wolfman30/clinicdesk/internal/database"
	"github.com/wolfman30/clinicdesk/internal/http/httpx"
	"github.com/wolfman30/clinicdesk/internal/observability/metrics"
	"github.com/wolfman30/clinicdesk/pkg/logging"
)

// Store is the persistence used by Handler.
type Store interface {
	Create(ctx context.Context, orgID string, req *CreateRequest) (*Visit, error)
	Get(ctx context.Context, orgID, id string) (*Visit, error)
	List(ctx context.Context, orgID string, filter Filter, params database.ListParams) ([]*Visit, int64, error)
	Update(ctx context.Context, orgID, id string, req *UpdateRequest) (*Visit, error)
	Delete(ctx context.Context, orgID, id string) error
	Transition(ctx context.Context, orgID, id, action string, outcome *CompleteRequest) (*Visit, error)
}

// Handler serves /api/v1/visits.
type Handler struct {
	store   Store
	audit   audit.Recorder
	metrics *metrics.DomainMetrics
	logger  *logging.Logger
}

func NewHandler(store Store, auditor audit.Recorder, m *metrics.DomainMetrics, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, audit: auditor, metrics: m, logger: logger}
}

// List handles GET /api/v1/visits.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	orgID, err := httpx.OrgID(r)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	q := r.URL.Query()
	filter := Filter{
		Status:        strings.ToLower(strings.TrimSpace(q.Get("status"))),
		PatientID:     strings.TrimSpace(q.Get("patient_id")),
		AppointmentID: strings.TrimSpace(q.Get("appointment_id")),
	}
	if filter.Status != "" && !validStatus(filter.Status) {
		httpx.WriteError(w, r, h.logger, apperr.Invalidf("unknown status %q", filter.Status))
		return
	}
	for _, id := range []string{filter.PatientID, filter.AppointmentID} {
		if _, err := uuid.Parse(id); id != "" && err != nil {
			httpx.WriteError(w, r, h.logger, apperr.Invalid("patient_id and appointment_id must be valid ids"))
			return
		}
	}
	params := httpx.ListParams(r)
	items, total, err := h.store.List(r.Context(), orgID, filter, params)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, httpx.NewList(items, total, params))
}

// Create handles POST /api/v1/visits.
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
	v, err := h.store.Create(r.Context(), orgID, &req)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	audit.Log(r.Context(), h.audit, h.logger, "visit.created", "visit", v.ID, map[string]any{"patient_id": v.PatientID})
	httpx.WriteJSON(w, http.StatusCreated, v)
}

// Get handles GET /api/v1/visits/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	orgID, id, err := httpx.ScopedID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	v, err := h.store.Get(r.Context(), orgID, id)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, v)
}

// Update handles PATCH /api/v1/visits/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	orgID, id, err := httpx.ScopedID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
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
	v, err := h.store.Update(r.Context(), orgID, id, &req)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	audit.Log(r.Context(), h.audit, h.logger, "visit.updated", "visit", id, nil)
	httpx.WriteJSON(w, http.StatusOK, v)
}

// Delete handles DELETE /api/v1/visits/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	orgID, id, err := httpx.ScopedID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	if err := h.store.Delete(r.Context(), orgID, id); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	audit.Log(r.Context(), h.audit, h.logger, "visit.deleted", "visit", id, nil)
	w.WriteHeader(http.StatusNoContent)
}

// Transition handles POST /api/v1/visits/{id}/{action}. Complete accepts an
// optional body with diagnosis and notes.
func (h *Handler) Transition(w http.ResponseWriter, r *http.Request) {
	orgID, id, err := httpx.ScopedID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	action := chi.URLParam(r, "action")
	t, known := transitions[action]
	if !known {
		httpx.WriteMessage(w, http.StatusNotFound, "unknown visit action")
		return
	}
	var outcome *CompleteRequest
	if action == ActionComplete && r.ContentLength != 0 {
		outcome = &CompleteRequest{}
		if err := httpx.DecodeJSON(r, outcome); err != nil {
			httpx.WriteError(w, r, h.logger, err)
			return
		}
		if err := outcome.Validate(); err != nil {
			httpx.WriteError(w, r, h.logger, err)
			return
		}
	}
	v, err := h.store.Transition(r.Context(), orgID, id, action, outcome)
	if err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			h.metrics.ObserveTransition("visit", t.to, false)
		}
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	h.metrics.ObserveTransition("visit", t.to, true)
	audit.Log(r.Context(), h.audit, h.logger, "visit."+v.Status, "visit", id, nil)
	httpx.WriteJSON(w, http.StatusOK, v)
}
