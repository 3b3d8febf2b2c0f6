package search

import (
	"context"

	"github.com/wolfman30/clinicdesk/internal/database"
)

// Repository implements Source with ILIKE lookups.
type Repository struct {
	db database.Querier
}

func NewRepository(db database.Querier) *Repository {
	if db == nil {
		panic("search: database required")
	}
	return &Repository{db: db}
}

func (r *Repository) Patients(ctx context.Context, orgID, pattern string, limit int) ([]PatientHit, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, patient_number, first_name, last_name, date_of_birth, phone, email
		FROM patients
		WHERE org_id = $1 AND (
			first_name ILIKE $2 OR last_name ILIKE $2 OR patient_number ILIKE $2
			OR phone ILIKE $2 OR email ILIKE $2)
		ORDER BY last_name, first_name
		LIMIT $3`, orgID, pattern, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hits := []PatientHit{}
	for rows.Next() {
		var h PatientHit
		if err := rows.Scan(&h.ID, &h.PatientNumber, &h.FirstName, &h.LastName, &h.DateOfBirth, &h.Phone, &h.Email); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (r *Repository) Employees(ctx context.Context, orgID, pattern string, limit int) ([]EmployeeHit, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, employee_number, first_name, last_name, email, department, position
		FROM employees
		WHERE org_id = $1 AND (
			first_name ILIKE $2 OR last_name ILIKE $2 OR employee_number ILIKE $2 OR email ILIKE $2)
		ORDER BY last_name, first_name
		LIMIT $3`, orgID, pattern, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hits := []EmployeeHit{}
	for rows.Next() {
		var h EmployeeHit
		if err := rows.Scan(&h.ID, &h.EmployeeNumber, &h.FirstName, &h.LastName, &h.Email, &h.Department, &h.Position); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}
