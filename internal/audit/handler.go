package audit

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/clinicdesk/internal/apperr"
	"github.com/wolfman30/clinicdesk/internal/http/httpx"
	"github.com/wolfman30/clinicdesk/pkg/logging"
)

// Querier reads audit entries.
type Querier interface {
	Query(ctx context.Context, filter Filter) ([]Entry, int64, error)
}

type Handler struct {
	trail  Querier
	logger *logging.Logger
}

func NewHandler(trail Querier, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{trail: trail, logger: logger}
}

// List handles GET /api/v1/audit-events.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	orgID, err := httpx.OrgID(r)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	params := httpx.ListParams(r)
	q := r.URL.Query()
	filter := Filter{
		OrgID:      orgID,
		ActorID:    strings.TrimSpace(q.Get("actor_id")),
		EntityType: strings.TrimSpace(q.Get("entity_type")),
		EntityID:   strings.TrimSpace(q.Get("entity_id")),
		Limit:      params.Limit,
		Offset:     params.Offset(),
	}
	if raw := strings.TrimSpace(q.Get("action")); raw != "" {
		for _, a := range strings.Split(raw, ",") {
			if a = strings.TrimSpace(a); a != "" {
				filter.Actions = append(filter.Actions, a)
			}
		}
	}
	if filter.Start, err = parseTime(q.Get("start")); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	if filter.End, err = parseTime(q.Get("end")); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	entries, total, err := h.trail.Query(r.Context(), filter)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, httpx.NewList(entries, total, params))
}

func parseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, apperr.Invalid("start and end must be RFC3339 timestamps")
	}
	return t, nil
}
