package invoices

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/clinicdesk/internal/apperr"
	"github.com/wolfman30/clinicdesk/internal/audit"
	"github.com/wolfman30/clinicdesk/internal/database"
	"github.com/wolfman30/clinicdesk/internal/http/httpx"
	"github.com/wolfman30/clinicdesk/pkg/logging"
)

// Store is the billing workflow used by Handler.
type Store interface {
	Create(ctx context.Context, orgID string, req *CreateRequest) (*Invoice, error)
	Get(ctx context.Context, orgID, id string) (*Invoice, error)
	List(ctx context.Context, orgID string, filter Filter, params database.ListParams) ([]*Invoice, int64, error)
	Update(ctx context.Context, orgID, id string, req *UpdateRequest) (*Invoice, error)
	Delete(ctx context.Context, orgID, id string) error
	Issue(ctx context.Context, orgID, id string) (*Invoice, error)
	Void(ctx context.Context, orgID, id string) (*Invoice, error)
	RecordPayment(ctx context.Context, orgID, id string, req *PaymentRequest) (*Payment, *Invoice, error)
	ListPayments(ctx context.Context, orgID, id string) ([]*Payment, error)
}

// Handler serves /api/v1/invoices.
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

// List handles GET /api/v1/invoices?status=&patient_id=&from=&to=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	orgID, err := httpx.OrgID(r)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	q := r.URL.Query()
	filter := Filter{
		Status:    strings.ToLower(strings.TrimSpace(q.Get("status"))),
		PatientID: strings.TrimSpace(q.Get("patient_id")),
	}
	if filter.Status != "" && !validStatus(filter.Status) {
		httpx.WriteError(w, r, h.logger, apperr.Invalidf("unknown status %q", filter.Status))
		return
	}
	if _, err := uuid.Parse(filter.PatientID); filter.PatientID != "" && err != nil {
		httpx.WriteError(w, r, h.logger, apperr.Invalid("patient_id must be a valid id"))
		return
	}
	for _, bound := range []struct {
		key string
		dst **time.Time
	}{{"from", &filter.From}, {"to", &filter.To}} {
		if *bound.dst, err = parseDate(ptrIfSet(q.Get(bound.key)), bound.key); err != nil {
			httpx.WriteError(w, r, h.logger, err)
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

func ptrIfSet(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Create handles POST /api/v1/invoices.
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
	inv, err := h.store.Create(r.Context(), orgID, &req)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	audit.Log(r.Context(), h.audit, h.logger, "invoice.created", "invoice", inv.ID, map[string]any{"number": inv.Number, "total_cents": inv.TotalCents})
	httpx.WriteJSON(w, http.StatusCreated, inv)
}

// Get handles GET /api/v1/invoices/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	orgID, id, ok := h.scope(w, r)
	if !ok {
		return
	}
	inv, err := h.store.Get(r.Context(), orgID, id)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, inv)
}

// Update handles PATCH /api/v1/invoices/{id}.
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
	inv, err := h.store.Update(r.Context(), orgID, id, &req)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	audit.Log(r.Context(), h.audit, h.logger, "invoice.updated", "invoice", id, nil)
	httpx.WriteJSON(w, http.StatusOK, inv)
}

// Delete handles DELETE /api/v1/invoices/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	orgID, id, ok := h.scope(w, r)
	if !ok {
		return
	}
	if err := h.store.Delete(r.Context(), orgID, id); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	audit.Log(r.Context(), h.audit, h.logger, "invoice.deleted", "invoice", id, nil)
	w.WriteHeader(http.StatusNoContent)
}

// Issue handles POST /api/v1/invoices/{id}/issue.
func (h *Handler) Issue(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "invoice.issued", h.store.Issue)
}

// Void handles POST /api/v1/invoices/{id}/void.
func (h *Handler) Void(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "invoice.voided", h.store.Void)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, action string, fn func(ctx context.Context, orgID, id string) (*Invoice, error)) {
	orgID, id, ok := h.scope(w, r)
	if !ok {
		return
	}
	inv, err := fn(r.Context(), orgID, id)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	audit.Log(r.Context(), h.audit, h.logger, action, "invoice", id, map[string]string{"number": inv.Number})
	httpx.WriteJSON(w, http.StatusOK, inv)
}

// ListPayments handles GET /api/v1/invoices/{id}/payments.
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	orgID, id, ok := h.scope(w, r)
	if !ok {
		return
	}
	payments, err := h.store.ListPayments(r.Context(), orgID, id)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, httpx.ListResponse[*Payment]{
		Data: payments,
		Meta: httpx.ListMeta{Total: int64(len(payments)), Page: 1, Limit: len(payments)},
	})
}

type paymentResponse struct {
	Payment *Payment `json:"payment"`
	Invoice *Invoice `json:"invoice"`
}

// RecordPayment handles POST /api/v1/invoices/{id}/payments.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	orgID, id, ok := h.scope(w, r)
	if !ok {
		return
	}
	var req PaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	if err := req.Validate(); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	payment, inv, err := h.store.RecordPayment(r.Context(), orgID, id, &req)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	audit.Log(r.Context(), h.audit, h.logger, "invoice.payment_recorded", "invoice", id, map[string]any{
		"payment_id": payment.ID, "amount_cents": payment.AmountCents, "method": payment.Method,
	})
	httpx.WriteJSON(w, http.StatusCreated, paymentResponse{Payment: payment, Invoice: inv})
}

func (h *Handler) scope(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	orgID, id, err := httpx.ScopedID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return "", "", false
	}
	return orgID, id, true
}
