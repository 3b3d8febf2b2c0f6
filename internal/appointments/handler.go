package appointments

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/wolfman30/clinicdesk/internal/apperr"
	"github.com/wolfman30/clinicdesk/internal/audit"
	"github.com/wolfman30/clinicdesk/internal/database"
	"github.com/wolfman30/clinicdesk/internal/http/httpx"
	"github.com/wolfman30/clinicdesk/pkg/logging"
)

// Store is the appointment workflow used by Handler.
type Store interface {
	Create(ctx context.Context, orgID string, req *CreateRequest) (*Appointment, error)
	Get(ctx context.Context, orgID, id string) (*Appointment, error)
	List(ctx context.Context, orgID string, filter Filter, params database.ListParams) ([]*Appointment, int64, error)
	Update(ctx context.Context, orgID, id string, req *UpdateRequest) (*Appointment, error)
	Delete(ctx context.Context, orgID, id string) error
	Transition(ctx context.Context, orgID, id, action string, cancel *CancelRequest) (*Appointment, error)
}

// Handler serves /api/v1/appointments.
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

// List handles GET /api/v1/appointments?from=&to=&status=&patient_id=&employee_id=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	orgID, err := httpx.OrgID(r)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	params := httpx.ListParams(r)
	items, total, err := h.store.List(r.Context(), orgID, filter, params)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, httpx.NewList(items, total, params))
}

func parseFilter(r *http.Request) (Filter, error) {
	q := r.URL.Query()
	filter := Filter{
		Status:     strings.ToLower(strings.TrimSpace(q.Get("status"))),
		PatientID:  strings.TrimSpace(q.Get("patient_id")),
		EmployeeID: strings.TrimSpace(q.Get("employee_id")),
	}
	if filter.Status != "" && !validStatus(filter.Status) {
		return Filter{}, apperr.Invalidf("unknown status %q", filter.Status)
	}
	for _, id := range []string{filter.PatientID, filter.EmployeeID} {
		if id == "" {
			continue
		}
		if _, err := uuid.Parse(id); err != nil {
			return Filter{}, apperr.Invalid("patient_id and employee_id must be valid ids")
		}
	}
	var err error
	if filter.From, err = parseBound(q.Get("from"), "from"); err != nil {
		return Filter{}, err
	}
	if filter.To, err = parseBound(q.Get("to"), "to"); err != nil {
		return Filter{}, err
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return Filter{}, apperr.Invalid("to must not be before from")
	}
	return filter, nil
}

// parseBound accepts RFC3339 timestamps or plain dates, which mean midnight UTC.
func parseBound(raw, name string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, apperr.Invalidf("%s must be a date or RFC3339 timestamp", name)
	}
	return &t, nil
}

// Create handles POST /api/v1/appointments.
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
	a, err := h.store.Create(r.Context(), orgID, &req)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	audit.Log(r.Context(), h.audit, h.logger, "appointment.created", "appointment", a.ID, map[string]any{
		"patient_id": a.PatientID, "employee_id": a.EmployeeID, "starts_at": a.StartsAt,
	})
	httpx.WriteJSON(w, http.StatusCreated, a)
}

// Get handles GET /api/v1/appointments/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	orgID, id, ok := h.scope(w, r)
	if !ok {
		return
	}
	a, err := h.store.Get(r.Context(), orgID, id)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, a)
}

// Update handles PATCH /api/v1/appointments/{id}.
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
	a, err := h.store.Update(r.Context(), orgID, id, &req)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	audit.Log(r.Context(), h.audit, h.logger, "appointment.updated", "appointment", id, nil)
	httpx.WriteJSON(w, http.StatusOK, a)
}

// Delete handles DELETE /api/v1/appointments/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	orgID, id, ok := h.scope(w, r)
	if !ok {
		return
	}
	if err := h.store.Delete(r.Context(), orgID, id); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	audit.Log(r.Context(), h.audit, h.logger, "appointment.deleted", "appointment", id, nil)
	w.WriteHeader(http.StatusNoContent)
}

// Transition handles POST /api/v1/appointments/{id}/{action}.
func (h *Handler) Transition(w http.ResponseWriter, r *http.Request) {
	orgID, id, ok := h.scope(w, r)
	if !ok {
		return
	}
	action := chi.URLParam(r, "action")
	if _, known := transitions[action]; !known {
		httpx.WriteMessage(w, http.StatusNotFound, "unknown appointment action")
		return
	}
	var cancel *CancelRequest
	if action == ActionCancel {
		cancel = &CancelRequest{}
		if err := httpx.DecodeJSON(r, cancel); err != nil {
			httpx.WriteError(w, r, h.logger, err)
			return
		}
		if err := cancel.Validate(); err != nil {
			httpx.WriteError(w, r, h.logger, err)
			return
		}
	}
	a, err := h.store.Transition(r.Context(), orgID, id, action, cancel)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	var details any
	if cancel != nil {
		details = cancel
	}
	audit.Log(r.Context(), h.audit, h.logger, "appointment."+a.Status, "appointment", id, details)
	httpx.WriteJSON(w, http.StatusOK, a)
}

func (h *Handler) scope(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	orgID, id, err := httpx.ScopedID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return "", "", false
	}
	return orgID, id, true
}
