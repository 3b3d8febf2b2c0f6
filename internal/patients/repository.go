package patients

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/wolfman30/clinicdesk/internal/apperr"
	"github.com/wolfman30/clinicdesk/internal/database"
)

var ErrNotFound = apperr.NotFound("patient not found")

const patientColumns = `id, org_id, patient_number, first_name, last_name, date_of_birth, gender,
	phone, email, address, blood_group, allergies, emergency_contact_name, emergency_contact_phone,
	notes, status, created_at, updated_at`

var sortColumns = map[string]string{
	"patient_number": "patient_number",
	"first_name":     "first_name",
	"last_name":      "last_name",
	"date_of_birth":  "date_of_birth",
	"created_at":     "created_at",
}

// Repository stores patients in Postgres.
type Repository struct {
	db database.Querier
}

func NewRepository(db database.Querier) *Repository {
	if db == nil {
		panic("patients: database required")
	}
	return &Repository{db: db}
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.OrgID, &p.PatientNumber, &p.FirstName, &p.LastName, &p.DateOfBirth, &p.Gender,
		&p.Phone, &p.Email, &p.Address, &p.BloodGroup, &p.Allergies, &p.EmergencyContactName, &p.EmergencyContactPhone,
		&p.Notes, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// newPatientNumber derives a short human readable identifier.
func newPatientNumber() string {
	return "P" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func (r *Repository) Create(ctx context.Context, orgID string, req *CreateRequest) (*Patient, error) {
	number := req.PatientNumber
	if number == "" {
		number = newPatientNumber()
	}
	query := `
		INSERT INTO patients (id, org_id, patient_number, first_name, last_name, date_of_birth, gender,
			phone, email, address, blood_group, allergies, emergency_contact_name, emergency_contact_phone, notes, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, 'active')
		RETURNING ` + patientColumns
	p, err := scanPatient(r.db.QueryRow(ctx, query,
		uuid.NewString(), orgID, number, req.FirstName, req.LastName, req.dob, req.Gender,
		req.Phone, req.Email, req.Address, req.BloodGroup, req.Allergies,
		req.EmergencyContactName, req.EmergencyContactPhone, req.Notes,
	))
	if err != nil {
		return nil, fmt.Errorf("patients: insert: %w", database.Classify(err))
	}
	return p, nil
}

func (r *Repository) Get(ctx context.Context, orgID, id string) (*Patient, error) {
	p, err := scanPatient(r.db.QueryRow(ctx, `SELECT `+patientColumns+` FROM patients WHERE id = $1 AND org_id = $2`, id, orgID))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("patients: select: %w", err)
	}
	return p, nil
}

func (r *Repository) List(ctx context.Context, orgID string, filter Filter, params database.ListParams) ([]*Patient, int64, error) {
	where := database.NewWhere("org_id", orgID)
	if filter.Status != "" {
		where.Add("status = ?", filter.Status)
	}
	if filter.Gender != "" {
		where.Add("gender = ?", filter.Gender)
	}
	if params.Search != "" {
		where.AddSearch(database.ContainsPattern(params.Search), "first_name", "last_name", "patient_number", "phone", "email")
	}

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM patients`+where.SQL(), where.Args()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("patients: count: %w", err)
	}

	orderBy := params.OrderBy(sortColumns, "last_name ASC, first_name ASC")
	query := `SELECT ` + patientColumns + ` FROM patients` + where.SQL() +
		` ORDER BY ` + orderBy + ` LIMIT ` + where.Next(1) + ` OFFSET ` + where.Next(2)
	rows, err := r.db.Query(ctx, query, append(where.Args(), params.Limit, params.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("patients: list: %w", err)
	}
	defer rows.Close()

	var out []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("patients: scan: %w", err)
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

func (r *Repository) Update(ctx context.Context, orgID, id string, req *UpdateRequest) (*Patient, error) {
	query := `
		UPDATE patients SET
			first_name = COALESCE($3, first_name),
			last_name = COALESCE($4, last_name),
			date_of_birth = COALESCE($5, date_of_birth),
			gender = COALESCE($6, gender),
			phone = COALESCE($7, phone),
			email = COALESCE($8, email),
			address = COALESCE($9, address),
			blood_group = COALESCE($10, blood_group),
			allergies = COALESCE($11, allergies),
			emergency_contact_name = COALESCE($12, emergency_contact_name),
			emergency_contact_phone = COALESCE($13, emergency_contact_phone),
			notes = COALESCE($14, notes),
			status = COALESCE($15, status),
			updated_at = now()
		WHERE id = $1 AND org_id = $2
		RETURNING ` + patientColumns
	p, err := scanPatient(r.db.QueryRow(ctx, query, id, orgID,
		req.FirstName, req.LastName, req.dob, req.Gender, req.Phone, req.Email, req.Address,
		req.BloodGroup, req.Allergies, req.EmergencyContactName, req.EmergencyContactPhone, req.Notes, req.Status,
	))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("patients: update: %w", database.Classify(err))
	}
	return p, nil
}

func (r *Repository) Delete(ctx context.Context, orgID, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM patients WHERE id = $1 AND org_id = $2`, id, orgID)
	if err != nil {
		return fmt.Errorf("patients: delete: %w", database.ClassifyDelete(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// PatientContact returns the display name and email used for notifications.
func (r *Repository) PatientContact(ctx context.Context, orgID, patientID string) (string, string, error) {
	var first, last string
	var email *string
	err := r.db.QueryRow(ctx, `SELECT first_name, last_name, email FROM patients WHERE id = $1 AND org_id = $2`, patientID, orgID).
		Scan(&first, &last, &email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", "", ErrNotFound
		}
		return "", "", fmt.Errorf("patients: contact: %w", err)
	}
	name := strings.TrimSpace(first + " " + last)
	if email == nil {
		return name, "", nil
	}
	return name, *email, nil
}
