// Package files stores patient documents in S3 with their metadata in Postgres.
package files

import (
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/wolfman30/clinicdesk/internal/apperr"
)

const (
	CategoryDocument  = "document"
	CategoryLabResult = "lab_result"
	CategoryImaging   = "imaging"
	CategoryConsent   = "consent"
	CategoryOther     = "other"
)

var categories = map[string]bool{
	CategoryDocument: true, CategoryLabResult: true, CategoryImaging: true, CategoryConsent: true, CategoryOther: true,
}

// File is the metadata of an uploaded object.
type File struct {
	ID          string    `json:"id"`
	OrgID       string    `json:"org_id"`
	PatientID   string    `json:"patient_id"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	Category    string    `json:"category"`
	StorageKey  string    `json:"-"`
	UploadedBy  *string   `json:"uploaded_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Upload describes an incoming file before it is stored.
type Upload struct {
	PatientID   string
	Name        string
	ContentType string
	Category    string
	Size        int64
	UploadedBy  string
}

func (u *Upload) Validate() error {
	u.Name = strings.TrimSpace(path.Base(strings.ReplaceAll(u.Name, "\\", "/")))
	if u.Name == "" || u.Name == "." || u.Name == "/" {
		return apperr.Invalid("file name is required")
	}
	if len(u.Name) > 255 {
		return apperr.Invalid("file name must be at most 255 characters")
	}
	u.Category = strings.ToLower(strings.TrimSpace(u.Category))
	if u.Category == "" {
		u.Category = CategoryDocument
	}
	if !categories[u.Category] {
		return apperr.Invalid("category must be one of document, lab_result, imaging, consent, other")
	}
	if u.Size <= 0 {
		return apperr.Invalid("file is empty")
	}
	if u.ContentType == "" {
		u.ContentType = "application/octet-stream"
	}
	return nil
}

// objectName keeps the name readable in the bucket without path separators
// or control characters.
func objectName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '/' || r == '\\' || unicode.IsControl(r):
			b.WriteRune('_')
		case unicode.IsSpace(r):
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
