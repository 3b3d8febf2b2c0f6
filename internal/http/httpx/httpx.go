// Package httpx contains the JSON request/response helpers shared by handlers.
package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/wolfman30/clinicdesk/internal/apperr"
	"github.com/wolfman30/clinicdesk/internal/database"
	"github.com/wolfman30/clinicdesk/internal/tenancy"
	"github.com/wolfman30/clinicdesk/pkg/logging"
)

const maxBodyBytes = 1 << 20

var (
	errMissingOrg = apperr.Unauthorized("missing organization scope")
	errBadID      = apperr.Invalid("invalid id")
)

// ErrorBody is the JSON body of every error response.
type ErrorBody struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Error      string `json:"error"`
}

// ListMeta accompanies list responses.
type ListMeta struct {
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
}

// ListResponse is the envelope for list endpoints.
type ListResponse[T any] struct {
	Data []T      `json:"data"`
	Meta ListMeta `json:"meta"`
}

// NewList builds a list envelope, never emitting a null data array.
func NewList[T any](items []T, total int64, params database.ListParams) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{
		Data: items,
		Meta: ListMeta{Total: total, Page: params.Page, Limit: params.Limit},
	}
}

// WriteJSON encodes payload with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// WriteMessage writes an error body with an explicit status and message.
func WriteMessage(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorBody{
		StatusCode: status,
		Message:    message,
		Error:      http.StatusText(status),
	})
}

// StatusFor maps a domain error to an HTTP status and client-safe message.
func StatusFor(err error) (int, string) {
	kind, msg := apperr.KindOf(database.Classify(err))
	switch kind {
	case apperr.KindInvalid:
		return http.StatusBadRequest, msg
	case apperr.KindNotFound:
		return http.StatusNotFound, msg
	case apperr.KindConflict:
		return http.StatusConflict, msg
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized, msg
	case apperr.KindForbidden:
		return http.StatusForbidden, msg
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// WriteError maps err to a response. Server errors are logged, client errors are not.
func WriteError(w http.ResponseWriter, r *http.Request, logger *logging.Logger, err error) {
	status, msg := StatusFor(err)
	if status >= http.StatusInternalServerError && logger != nil {
		orgID, _ := tenancy.OrgIDFromContext(r.Context())
		logger.WithOrg(orgID).LogError(r.Context(), "request failed", err,
			"method", r.Method,
			"path", r.URL.Path,
		)
	}
	WriteMessage(w, status, msg)
}

// DecodeJSON reads a JSON body into dst, rejecting unknown fields.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Invalid("request body is required")
		}
		return apperr.Invalidf("invalid request body: %s", err.Error())
	}
	return nil
}

// OrgID returns the caller's organization or an unauthorized error.
func OrgID(r *http.Request) (string, error) {
	orgID, ok := tenancy.OrgIDFromContext(r.Context())
	if !ok {
		return "", errMissingOrg
	}
	return orgID, nil
}

// PathID reads a UUID route parameter.
func PathID(r *http.Request, name string) (string, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	if _, err := uuid.Parse(raw); err != nil {
		return "", errBadID
	}
	return raw, nil
}

// ScopedID returns the caller's organization and a UUID route parameter.
func ScopedID(r *http.Request, name string) (string, string, error) {
	orgID, err := OrgID(r)
	if err != nil {
		return "", "", err
	}
	id, err := PathID(r, name)
	if err != nil {
		return "", "", err
	}
	return orgID, id, nil
}

// QueryInt parses an integer query parameter, returning def when absent or malformed.
func QueryInt(r *http.Request, key string, def int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

// ListParams reads page, limit, sort, order and search from the query string.
func ListParams(r *http.Request) database.ListParams {
	q := r.URL.Query()
	return database.ListParams{
		Page:   QueryInt(r, "page", 1),
		Limit:  QueryInt(r, "limit", database.DefaultPageSize),
		Sort:   strings.TrimSpace(q.Get("sort")),
		Order:  q.Get("order"),
		Search: q.Get("search"),
	}.Normalize()
}
