package settings

import (
	"context"
	"net/http"

	"github.com/wolfman30/clinicdesk/internal/audit"
	"github.com/wolfman30/clinicdesk/internal/http/httpx"
	"github.com/wolfman30/clinicdesk/pkg/logging"
)

// Reader loads organization settings.
type Reader interface {
	Get(ctx context.Context, orgID string) (*Settings, error)
}

// ReadWriter loads and saves organization settings.
type ReadWriter interface {
	Reader
	Set(ctx context.Context, cfg *Settings) error
}

type Handler struct {
	store  ReadWriter
	audit  audit.Recorder
	logger *logging.Logger
}

func NewHandler(store ReadWriter, auditor audit.Recorder, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, audit: auditor, logger: logger}
}

// Get handles GET /api/v1/settings.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	orgID, err := httpx.OrgID(r)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	cfg, err := h.store.Get(r.Context(), orgID)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, cfg)
}

// Put handles PUT /api/v1/settings. The body replaces the stored settings.
func (h *Handler) Put(w http.ResponseWriter, r *http.Request) {
	orgID, err := httpx.OrgID(r)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	var cfg Settings
	if err := httpx.DecodeJSON(r, &cfg); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	cfg.OrgID = orgID
	cfg.UpdatedAt = nil
	if err := cfg.Validate(); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	if err := h.store.Set(r.Context(), &cfg); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	audit.Log(r.Context(), h.audit, h.logger, "settings.updated", "settings", orgID, nil)
	h.logger.Info("settings updated", "org_id", orgID)
	httpx.WriteJSON(w, http.StatusOK, &cfg)
}
