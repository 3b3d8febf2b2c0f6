package masterdata

import (
	"context"
	"net/http"
	"strconv"

	"github.com/wolfman30/clinicdesk/internal/audit"
	"github.com/wolfman30/clinicdesk/internal/database"
	"github.com/wolfman30/clinicdesk/internal/http/httpx"
	"github.com/wolfman30/clinicdesk/pkg/logging"
)

// Store is the persistence used by Handler.
type Store interface {
	ListAppointmentTypes(ctx context.Context, orgID string, activeOnly bool, params database.ListParams) ([]*AppointmentType, int64, error)
	CreateAppointmentType(ctx context.Context, orgID string, req *AppointmentTypeRequest) (*AppointmentType, error)
	UpdateAppointmentType(ctx context.Context, orgID, id string, req *AppointmentTypeRequest) (*AppointmentType, error)
	DeleteAppointmentType(ctx context.Context, orgID, id string) error

	ListCancelReasons(ctx context.Context, orgID string, activeOnly bool, params database.ListParams) ([]*CancelReason, int64, error)
	CreateCancelReason(ctx context.Context, orgID string, req *CancelReasonRequest) (*CancelReason, error)
	UpdateCancelReason(ctx context.Context, orgID, id string, req *CancelReasonRequest) (*CancelReason, error)
	DeleteCancelReason(ctx context.Context, orgID, id string) error

	ListLeaveTypes(ctx context.Context, orgID string, activeOnly bool, params database.ListParams) ([]*LeaveType, int64, error)
	CreateLeaveType(ctx context.Context, orgID string, req *LeaveTypeRequest) (*LeaveType, error)
	UpdateLeaveType(ctx context.Context, orgID, id string, req *LeaveTypeRequest) (*LeaveType, error)
	DeleteLeaveType(ctx context.Context, orgID, id string) error

	ListHolidays(ctx context.Context, orgID string, year int, params database.ListParams) ([]*Holiday, int64, error)
	CreateHoliday(ctx context.Context, orgID string, req *HolidayRequest) (*Holiday, error)
	UpdateHoliday(ctx context.Context, orgID, id string, req *HolidayRequest) (*Holiday, error)
	DeleteHoliday(ctx context.Context, orgID, id string) error
}

// SeedRunner seeds reference data for one organization.
type SeedRunner interface {
	Seed(ctx context.Context, orgID string) ([]SeedResult, error)
}

// RoleSeeder creates the built-in roles of an organization.
type RoleSeeder interface {
	SeedDefaultRoles(ctx context.Context, orgID string) (int, error)
}

type validator interface {
	Validate(create bool) error
}

// Handler serves /api/v1/master-data.
type Handler struct {
	store  Store
	seeder SeedRunner
	roles  RoleSeeder
	audit  audit.Recorder
	logger *logging.Logger
}

func NewHandler(store Store, seeder SeedRunner, roles RoleSeeder, auditor audit.Recorder, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, seeder: seeder, roles: roles, audit: auditor, logger: logger}
}

// Seed handles POST /api/v1/master-data/seed.
func (h *Handler) Seed(w http.ResponseWriter, r *http.Request) {
	orgID, err := httpx.OrgID(r)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	results, err := h.seeder.Seed(r.Context(), orgID)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	if h.roles != nil {
		n, err := h.roles.SeedDefaultRoles(r.Context(), orgID)
		if err != nil {
			httpx.WriteError(w, r, h.logger, err)
			return
		}
		results = append(results, SeedResult{Unit: "roles", Inserted: n, Skipped: n == 0})
	}
	audit.Log(r.Context(), h.audit, h.logger, "master_data.seeded", "organization", orgID, results)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"results": results})
}

// ListAppointmentTypes handles GET /api/v1/master-data/appointment-types.
func (h *Handler) ListAppointmentTypes(w http.ResponseWriter, r *http.Request) {
	orgID, params, activeOnly, ok := h.listScope(w, r)
	if !ok {
		return
	}
	items, total, err := h.store.ListAppointmentTypes(r.Context(), orgID, activeOnly, params)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, httpx.NewList(items, total, params))
}

// CreateAppointmentType handles POST /api/v1/master-data/appointment-types.
func (h *Handler) CreateAppointmentType(w http.ResponseWriter, r *http.Request) {
	var req AppointmentTypeRequest
	h.create(w, r, &req, "appointment_type", func(ctx context.Context, orgID string) (string, any, error) {
		t, err := h.store.CreateAppointmentType(ctx, orgID, &req)
		if err != nil {
			return "", nil, err
		}
		return t.ID, t, nil
	})
}

// UpdateAppointmentType handles PATCH /api/v1/master-data/appointment-types/{id}.
func (h *Handler) UpdateAppointmentType(w http.ResponseWriter, r *http.Request) {
	var req AppointmentTypeRequest
	h.update(w, r, &req, "appointment_type", func(ctx context.Context, orgID, id string) (any, error) {
		return h.store.UpdateAppointmentType(ctx, orgID, id, &req)
	})
}

// DeleteAppointmentType handles DELETE /api/v1/master-data/appointment-types/{id}.
func (h *Handler) DeleteAppointmentType(w http.ResponseWriter, r *http.Request) {
	h.remove(w, r, "appointment_type", h.store.DeleteAppointmentType)
}

func (h *Handler) ListCancelReasons(w http.ResponseWriter, r *http.Request) {
	orgID, params, activeOnly, ok := h.listScope(w, r)
	if !ok {
		return
	}
	items, total, err := h.store.ListCancelReasons(r.Context(), orgID, activeOnly, params)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, httpx.NewList(items, total, params))
}

func (h *Handler) CreateCancelReason(w http.ResponseWriter, r *http.Request) {
	var req CancelReasonRequest
	h.create(w, r, &req, "cancel_reason", func(ctx context.Context, orgID string) (string, any, error) {
		c, err := h.store.CreateCancelReason(ctx, orgID, &req)
		if err != nil {
			return "", nil, err
		}
		return c.ID, c, nil
	})
}

func (h *Handler) UpdateCancelReason(w http.ResponseWriter, r *http.Request) {
	var req CancelReasonRequest
	h.update(w, r, &req, "cancel_reason", func(ctx context.Context, orgID, id string) (any, error) {
		return h.store.UpdateCancelReason(ctx, orgID, id, &req)
	})
}

func (h *Handler) DeleteCancelReason(w http.ResponseWriter, r *http.Request) {
	h.remove(w, r, "cancel_reason", h.store.DeleteCancelReason)
}

func (h *Handler) ListLeaveTypes(w http.ResponseWriter, r *http.Request) {
	orgID, params, activeOnly, ok := h.listScope(w, r)
	if !ok {
		return
	}
	items, total, err := h.store.ListLeaveTypes(r.Context(), orgID, activeOnly, params)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, httpx.NewList(items, total, params))
}

func (h *Handler) CreateLeaveType(w http.ResponseWriter, r *http.Request) {
	var req LeaveTypeRequest
	h.create(w, r, &req, "leave_type", func(ctx context.Context, orgID string) (string, any, error) {
		l, err := h.store.CreateLeaveType(ctx, orgID, &req)
		if err != nil {
			return "", nil, err
		}
		return l.ID, l, nil
	})
}

func (h *Handler) UpdateLeaveType(w http.ResponseWriter, r *http.Request) {
	var req LeaveTypeRequest
	h.update(w, r, &req, "leave_type", func(ctx context.Context, orgID, id string) (any, error) {
		return h.store.UpdateLeaveType(ctx, orgID, id, &req)
	})
}

func (h *Handler) DeleteLeaveType(w http.ResponseWriter, r *http.Request) {
	h.remove(w, r, "leave_type", h.store.DeleteLeaveType)
}

// ListHolidays handles GET /api/v1/master-data/holidays?year=2026.
func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	orgID, err := httpx.OrgID(r)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	params := httpx.ListParams(r)
	year := httpx.QueryInt(r, "year", 0)
	items, total, err := h.store.ListHolidays(r.Context(), orgID, year, params)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, httpx.NewList(items, total, params))
}

func (h *Handler) CreateHoliday(w http.ResponseWriter, r *http.Request) {
	var req HolidayRequest
	h.create(w, r, &req, "holiday", func(ctx context.Context, orgID string) (string, any, error) {
		hol, err := h.store.CreateHoliday(ctx, orgID, &req)
		if err != nil {
			return "", nil, err
		}
		return hol.ID, hol, nil
	})
}

func (h *Handler) UpdateHoliday(w http.ResponseWriter, r *http.Request) {
	var req HolidayRequest
	h.update(w, r, &req, "holiday", func(ctx context.Context, orgID, id string) (any, error) {
		return h.store.UpdateHoliday(ctx, orgID, id, &req)
	})
}

func (h *Handler) DeleteHoliday(w http.ResponseWriter, r *http.Request) {
	h.remove(w, r, "holiday", h.store.DeleteHoliday)
}

func (h *Handler) listScope(w http.ResponseWriter, r *http.Request) (string, database.ListParams, bool, bool) {
	orgID, err := httpx.OrgID(r)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return "", database.ListParams{}, false, false
	}
	activeOnly, _ := strconv.ParseBool(r.URL.Query().Get("active"))
	return orgID, httpx.ListParams(r), activeOnly, true
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request, req validator, entity string,
	fn func(ctx context.Context, orgID string) (string, any, error)) {
	orgID, err := httpx.OrgID(r)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	if err := httpx.DecodeJSON(r, req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	if err := req.Validate(true); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	id, out, err := fn(r.Context(), orgID)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	audit.Log(r.Context(), h.audit, h.logger, entity+".created", entity, id, nil)
	httpx.WriteJSON(w, http.StatusCreated, out)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request, req validator, entity string,
	fn func(ctx context.Context, orgID, id string) (any, error)) {
	orgID, id, err := httpx.ScopedID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	if err := httpx.DecodeJSON(r, req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	if err := req.Validate(false); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	out, err := fn(r.Context(), orgID, id)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	audit.Log(r.Context(), h.audit, h.logger, entity+".updated", entity, id, nil)
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request, entity string, fn func(ctx context.Context, orgID, id string) error) {
	orgID, id, err := httpx.ScopedID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	if err := fn(r.Context(), orgID, id); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	audit.Log(r.Context(), h.audit, h.logger, entity+".deleted", entity, id, nil)
	w.WriteHeader(http.StatusNoContent)
}
