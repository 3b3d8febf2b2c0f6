package search

import (
	"context"
	"net/http"

	"github.com/wolfman30/clinicdesk/internal/http/httpx"
	"github.com/wolfman30/clinicdesk/pkg/logging"
)

// Searcher is implemented by Service.
type Searcher interface {
	Search(ctx context.Context, orgID, term string, limit int) (*Result, error)
}

// Handler serves GET /api/v1/global-search?search=&limit=.
type Handler struct {
	searcher     Searcher
	defaultLimit int
	logger       *logging.Logger
}

func NewHandler(searcher Searcher, defaultLimit int, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	return &Handler{searcher: searcher, defaultLimit: ClampLimit(defaultLimit), logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	orgID, err := httpx.OrgID(r)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	limit := httpx.QueryInt(r, "limit", h.defaultLimit)
	res, err := h.searcher.Search(r.Context(), orgID, r.URL.Query().Get("search"), limit)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}
