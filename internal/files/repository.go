package files

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/wolfman30/clinicdesk/internal/apperr"
	"github.com/wolfman30/clinicdesk/internal/database"
)

var (
	ErrNotFound        = apperr.NotFound("file not found")
	ErrPatientNotFound = apperr.NotFound("patient not found")
)

const fileColumns = `id, org_id, patient_id, name, content_type, size_bytes, category, storage_key, uploaded_by, created_at`

var sortColumns = map[string]string{
	"name":       "name",
	"size_bytes": "size_bytes",
	"created_at": "created_at",
	"category":   "category",
}

type Repository struct {
	db database.Querier
}

func NewRepository(db database.Querier) *Repository {
	if db == nil {
		panic("files: database required")
	}
	return &Repository{db: db}
}

func scanFile(row pgx.Row) (*File, error) {
	var f File
	err := row.Scan(&f.ID, &f.OrgID, &f.PatientID, &f.Name, &f.ContentType, &f.SizeBytes, &f.Category, &f.StorageKey, &f.UploadedBy, &f.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *Repository) PatientExists(ctx context.Context, orgID, patientID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM patients WHERE id = $1 AND org_id = $2)`, patientID, orgID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("files: check patient: %w", err)
	}
	return exists, nil
}

func (r *Repository) Insert(ctx context.Context, f *File) (*File, error) {
	var uploadedBy *string
	if f.UploadedBy != nil && *f.UploadedBy != "" {
		uploadedBy = f.UploadedBy
	}
	out, err := scanFile(r.db.QueryRow(ctx, `
		INSERT INTO files (id, org_id, patient_id, name, content_type, size_bytes, category, storage_key, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+fileColumns,
		f.ID, f.OrgID, f.PatientID, f.Name, f.ContentType, f.SizeBytes, f.Category, f.StorageKey, uploadedBy))
	if err != nil {
		return nil, fmt.Errorf("files: insert: %w", database.Classify(err))
	}
	return out, nil
}

func (r *Repository) Get(ctx context.Context, orgID, id string) (*File, error) {
	f, err := scanFile(r.db.QueryRow(ctx, `SELECT `+fileColumns+` FROM files WHERE id = $1 AND org_id = $2`, id, orgID))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("files: select: %w", err)
	}
	return f, nil
}

func (r *Repository) ListForPatient(ctx context.Context, orgID, patientID, category string, params database.ListParams) ([]*File, int64, error) {
	where := database.NewWhere("org_id", orgID)
	where.Add("patient_id = ?", patientID)
	if category != "" {
		where.Add("category = ?", category)
	}
	if params.Search != "" {
		where.AddSearch(database.ContainsPattern(params.Search), "name")
	}

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM files`+where.SQL(), where.Args()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("files: count: %w", err)
	}
	query := `SELECT ` + fileColumns + ` FROM files` + where.SQL() +
		` ORDER BY ` + params.OrderBy(sortColumns, "created_at DESC") + ` LIMIT ` + where.Next(1) + ` OFFSET ` + where.Next(2)
	rows, err := r.db.Query(ctx, query, append(where.Args(), params.Limit, params.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("files: list: %w", err)
	}
	defer rows.Close()

	var out []*File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("files: scan: %w", err)
		}
		out = append(out, f)
	}
	return out, total, rows.Err()
}

// Delete removes the metadata row and returns it so the caller can remove the object.
func (r *Repository) Delete(ctx context.Context, orgID, id string) (*File, error) {
	f, err := scanFile(r.db.QueryRow(ctx, `DELETE FROM files WHERE id = $1 AND org_id = $2 RETURNING `+fileColumns, id, orgID))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("files: delete: %w", err)
	}
	return f, nil
}
