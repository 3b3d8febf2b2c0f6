package auth

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/wolfman30/clinicdesk/internal/database"
)

const userColumns = `id, org_id, email, full_name, employee_id, active, password_hash, created_at`

// UserRepository stores accounts in Postgres.
type UserRepository struct {
	db database.Querier
}

func NewUserRepository(db database.Querier) *UserRepository {
	if db == nil {
		panic("auth: database required")
	}
	return &UserRepository{db: db}
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.OrgID, &u.Email, &u.FullName, &u.EmployeeID, &u.Active, &u.PasswordHash, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) Create(ctx context.Context, orgID string, req *CreateUserRequest, passwordHash string) (*User, error) {
	query := `
		INSERT INTO users (id, org_id, email, full_name, employee_id, active, password_hash)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6)
		RETURNING ` + userColumns
	user, err := scanUser(r.db.QueryRow(ctx, query, uuid.NewString(), orgID, req.Email, req.FullName, req.EmployeeID, passwordHash))
	if err != nil {
		return nil, fmt.Errorf("auth: insert user: %w", database.Classify(err))
	}
	return user, nil
}

// GetByEmail looks up an account across organizations. Emails are globally unique.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	user, err := scanUser(r.db.QueryRow(ctx, query, email))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("auth: select user by email: %w", err)
	}
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, orgID, id string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 AND org_id = $2`
	user, err := scanUser(r.db.QueryRow(ctx, query, id, orgID))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("auth: select user: %w", err)
	}
	return user, nil
}

func (r *UserRepository) List(ctx context.Context, orgID string, params database.ListParams) ([]*User, int64, error) {
	where := database.NewWhere("org_id", orgID)
	if params.Search != "" {
		where.AddSearch(database.ContainsPattern(params.Search), "email", "full_name")
	}

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`+where.SQL(), where.Args()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("auth: count users: %w", err)
	}

	orderBy := params.OrderBy(map[string]string{"email": "email", "full_name": "full_name", "created_at": "created_at"}, "full_name ASC")
	query := `SELECT ` + userColumns + ` FROM users` + where.SQL() +
		` ORDER BY ` + orderBy + ` LIMIT ` + where.Next(1) + ` OFFSET ` + where.Next(2)
	args := append(where.Args(), params.Limit, params.Offset())
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("auth: list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("auth: scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

func (r *UserRepository) SetActive(ctx context.Context, orgID, id string, active bool) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET active = $3, updated_at = now() WHERE id = $1 AND org_id = $2`, id, orgID, active)
	if err != nil {
		return fmt.Errorf("auth: update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
