package files

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/wolfman30/clinicdesk/internal/apperr"
	"github.com/wolfman30/clinicdesk/internal/audit"
	"github.com/wolfman30/clinicdesk/internal/database"
	"github.com/wolfman30/clinicdesk/internal/http/httpx"
	"github.com/wolfman30/clinicdesk/internal/tenancy"
	"github.com/wolfman30/clinicdesk/pkg/logging"
)

// Store is the file service used by Handler.
type Store interface {
	Upload(ctx context.Context, orgID string, up *Upload, body io.Reader) (*File, error)
	List(ctx context.Context, orgID, patientID, category string, params database.ListParams) ([]*File, int64, error)
	Open(ctx context.Context, orgID, id string) (*File, io.ReadCloser, error)
	Delete(ctx context.Context, orgID, id string) error
}

// Handler serves /api/v1/patients/{id}/files and /api/v1/files/{id}.
type Handler struct {
	store    Store
	audit    audit.Recorder
	logger   *logging.Logger
	maxBytes int64
}

func NewHandler(store Store, auditor audit.Recorder, maxUploadMB int, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	if maxUploadMB <= 0 {
		maxUploadMB = 20
	}
	return &Handler{store: store, audit: auditor, logger: logger, maxBytes: int64(maxUploadMB) << 20}
}

// List handles GET /api/v1/patients/{id}/files?category=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	orgID, patientID, err := httpx.ScopedID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	category := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("category")))
	if category != "" && !categories[category] {
		httpx.WriteError(w, r, h.logger, apperr.Invalidf("unknown category %q", category))
		return
	}
	params := httpx.ListParams(r)
	items, total, err := h.store.List(r.Context(), orgID, patientID, category, params)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, httpx.NewList(items, total, params))
}

// Upload handles multipart POST /api/v1/patients/{id}/files with a "file"
// part and an optional "category" field.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	orgID, patientID, err := httpx.ScopedID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	limit := h.maxBytes + 1<<20
	if r.ContentLength > limit {
		httpx.WriteError(w, r, h.logger, h.tooLarge())
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.WriteError(w, r, h.logger, h.tooLarge())
			return
		}
		httpx.WriteError(w, r, h.logger, apperr.Invalid("request must be multipart/form-data with a file part"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	part, header, err := r.FormFile("file")
	if err != nil {
		httpx.WriteError(w, r, h.logger, apperr.Invalid("file part is required"))
		return
	}
	defer part.Close()
	if header.Size > h.maxBytes {
		httpx.WriteError(w, r, h.logger, h.tooLarge())
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		sniff := make([]byte, 512)
		n, _ := io.ReadFull(part, sniff)
		contentType = http.DetectContentType(sniff[:n])
		if _, err := part.Seek(0, io.SeekStart); err != nil {
			httpx.WriteError(w, r, h.logger, err)
			return
		}
	}
	userID, _ := tenancy.UserIDFromContext(r.Context())
	up := &Upload{
		PatientID:   patientID,
		Name:        header.Filename,
		ContentType: contentType,
		Category:    r.FormValue("category"),
		Size:        header.Size,
		UploadedBy:  userID,
	}
	if err := up.Validate(); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	f, err := h.store.Upload(r.Context(), orgID, up, part)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	audit.Log(r.Context(), h.audit, h.logger, "file.uploaded", "file", f.ID, map[string]any{
		"patient_id": patientID, "name": f.Name, "size_bytes": f.SizeBytes,
	})
	httpx.WriteJSON(w, http.StatusCreated, f)
}

func (h *Handler) tooLarge() error {
	return apperr.Invalidf("file exceeds the %d MB upload limit", h.maxBytes>>20)
}

// Download handles GET /api/v1/files/{id} by streaming the stored object.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	orgID, id, err := httpx.ScopedID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	f, body, err := h.store.Open(r.Context(), orgID, id)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", f.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(f.SizeBytes, 10))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": f.Name}))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn("file download interrupted", "file_id", id, "error", err)
	}
}

// Delete handles DELETE /api/v1/files/{id}.
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
	audit.Log(r.Context(), h.audit, h.logger, "file.deleted", "file", id, nil)
	w.WriteHeader(http.StatusNoContent)
}
