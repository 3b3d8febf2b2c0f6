package employees

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/wolfman30/clinicdesk/internal/apperr"
	"github.com/wolfman30/clinicdesk/internal/database"
)

var ErrNotFound = apperr.NotFound("employee not found")

const employeeColumns = `id, org_id, employee_number, first_name, last_name, email, phone,
	department, position, hire_date, status, created_at, updated_at`

var sortColumns = map[string]string{
	"employee_number": "employee_number",
	"first_name":      "first_name",
	"last_name":       "last_name",
	"department":      "department",
	"hire_date":       "hire_date",
	"created_at":      "created_at",
}

type Repository struct {
	db database.Querier
}

func NewRepository(db database.Querier) *Repository {
	if db == nil {
		panic("employees: database required")
	}
	return &Repository{db: db}
}

func scanEmployee(row pgx.Row) (*Employee, error) {
	var e Employee
	err := row.Scan(&e.ID, &e.OrgID, &e.EmployeeNumber, &e.FirstName, &e.LastName, &e.Email, &e.Phone,
		&e.Department, &e.Position, &e.HireDate, &e.Status, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func newEmployeeNumber() string {
	return "E" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func (r *Repository) Create(ctx context.Context, orgID string, req *CreateRequest) (*Employee, error) {
	number := req.EmployeeNumber
	if number == "" {
		number = newEmployeeNumber()
	}
	query := `
		INSERT INTO employees (id, org_id, employee_number, first_name, last_name, email, phone,
			department, position, hire_date, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 'active')
		RETURNING ` + employeeColumns
	e, err := scanEmployee(r.db.QueryRow(ctx, query,
		uuid.NewString(), orgID, number, req.FirstName, req.LastName, req.Email, req.Phone,
		req.Department, req.Position, req.hireDate,
	))
	if err != nil {
		return nil, fmt.Errorf("employees: insert: %w", database.Classify(err))
	}
	return e, nil
}

func (r *Repository) Get(ctx context.Context, orgID, id string) (*Employee, error) {
	e, err := scanEmployee(r.db.QueryRow(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id = $1 AND org_id = $2`, id, orgID))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("employees: select: %w", err)
	}
	return e, nil
}

func (r *Repository) List(ctx context.Context, orgID string, filter Filter, params database.ListParams) ([]*Employee, int64, error) {
	where := database.NewWhere("org_id", orgID)
	if filter.Status != "" {
		where.Add("status = ?", filter.Status)
	}
	if filter.Department != "" {
		where.Add("lower(department) = lower(?)", filter.Department)
	}
	if filter.Position != "" {
		where.Add("lower(position) = lower(?)", filter.Position)
	}
	if params.Search != "" {
		where.AddSearch(database.ContainsPattern(params.Search), "first_name", "last_name", "employee_number", "email")
	}

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM employees`+where.SQL(), where.Args()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("employees: count: %w", err)
	}

	orderBy := params.OrderBy(sortColumns, "last_name ASC, first_name ASC")
	query := `SELECT ` + employeeColumns + ` FROM employees` + where.SQL() +
		` ORDER BY ` + orderBy + ` LIMIT ` + where.Next(1) + ` OFFSET ` + where.Next(2)
	rows, err := r.db.Query(ctx, query, append(where.Args(), params.Limit, params.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("employees: list: %w", err)
	}
	defer rows.Close()

	var out []*Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("employees: scan: %w", err)
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

func (r *Repository) Update(ctx context.Context, orgID, id string, req *UpdateRequest) (*Employee, error) {
	query := `
		UPDATE employees SET
			first_name = COALESCE($3, first_name),
			last_name = COALESCE($4, last_name),
			email = COALESCE($5, email),
			phone = COALESCE($6, phone),
			department = COALESCE($7, department),
			position = COALESCE($8, position),
			hire_date = COALESCE($9, hire_date),
			status = COALESCE($10, status),
			updated_at = now()
		WHERE id = $1 AND org_id = $2
		RETURNING ` + employeeColumns
	e, err := scanEmployee(r.db.QueryRow(ctx, query, id, orgID,
		req.FirstName, req.LastName, req.Email, req.Phone, req.Department, req.Position, req.hireDate, req.Status,
	))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("employees: update: %w", database.Classify(err))
	}
	return e, nil
}

func (r *Repository) Delete(ctx context.Context, orgID, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM employees WHERE id = $1 AND org_id = $2`, id, orgID)
	if err != nil {
		return fmt.Errorf("employees: delete: %w", database.ClassifyDelete(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
