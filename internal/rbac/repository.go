package rbac

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/wolfman30/clinicdesk/internal/database"
)

const roleSelect = `
	SELECT r.id, r.org_id, r.name, r.description, r.system, r.created_at,
		COALESCE(array_agg(rp.permission_code ORDER BY rp.permission_code)
			FILTER (WHERE rp.permission_code IS NOT NULL), '{}') AS permissions
	FROM roles r
	LEFT JOIN role_permissions rp ON rp.role_id = r.id`

const roleGroupBy = ` GROUP BY r.id, r.org_id, r.name, r.description, r.system, r.created_at`

// Repository stores roles and assignments in Postgres.
type Repository struct {
	pool database.Pool
}

func NewRepository(pool database.Pool) *Repository {
	if pool == nil {
		panic("rbac: database required")
	}
	return &Repository{pool: pool}
}

func scanRole(row pgx.Row) (*Role, error) {
	var role Role
	if err := row.Scan(&role.ID, &role.OrgID, &role.Name, &role.Description, &role.System, &role.CreatedAt, &role.Permissions); err != nil {
		return nil, err
	}
	if role.Permissions == nil {
		role.Permissions = []string{}
	}
	return &role, nil
}

func (r *Repository) ListRoles(ctx context.Context, orgID string) ([]*Role, error) {
	rows, err := r.pool.Query(ctx, roleSelect+` WHERE r.org_id = $1`+roleGroupBy+` ORDER BY r.name`, orgID)
	if err != nil {
		return nil, fmt.Errorf("rbac: list roles: %w", err)
	}
	defer rows.Close()

	var roles []*Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("rbac: scan role: %w", err)
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (r *Repository) GetRole(ctx context.Context, orgID, id string) (*Role, error) {
	return r.getRole(ctx, r.pool, orgID, id)
}

func (r *Repository) getRole(ctx context.Context, q database.Querier, orgID, id string) (*Role, error) {
	role, err := scanRole(q.QueryRow(ctx, roleSelect+` WHERE r.id = $1 AND r.org_id = $2`+roleGroupBy, id, orgID))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("rbac: get role: %w", err)
	}
	return role, nil
}

func (r *Repository) CreateRole(ctx context.Context, orgID string, req *RoleRequest) (*Role, error) {
	return r.createRole(ctx, orgID, req, false)
}

func (r *Repository) createRole(ctx context.Context, orgID string, req *RoleRequest, system bool) (*Role, error) {
	id := uuid.NewString()
	var role *Role
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO roles (id, org_id, name, description, system)
			VALUES ($1, $2, $3, $4, $5)
		`, id, orgID, req.Name, req.Description, system); err != nil {
			return fmt.Errorf("rbac: insert role: %w", database.Classify(err))
		}
		if err := replacePermissions(ctx, tx, id, req.Permissions); err != nil {
			return err
		}
		var err error
		role, err = r.getRole(ctx, tx, orgID, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return role, nil
}

func (r *Repository) UpdateRole(ctx context.Context, orgID, id string, req *RoleRequest) (*Role, error) {
	var role *Role
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockEditableRole(ctx, tx, orgID, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE roles SET name = $3, description = $4, updated_at = now()
			WHERE id = $1 AND org_id = $2
		`, id, orgID, req.Name, req.Description); err != nil {
			return fmt.Errorf("rbac: update role: %w", database.Classify(err))
		}
		if err := replacePermissions(ctx, tx, id, req.Permissions); err != nil {
			return err
		}
		var err error
		role, err = r.getRole(ctx, tx, orgID, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return role, nil
}

func (r *Repository) DeleteRole(ctx context.Context, orgID, id string) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockEditableRole(ctx, tx, orgID, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM roles WHERE id = $1 AND org_id = $2`, id, orgID); err != nil {
			return fmt.Errorf("rbac: delete role: %w", err)
		}
		return nil
	})
}

func lockEditableRole(ctx context.Context, tx pgx.Tx, orgID, id string) error {
	var system bool
	err := tx.QueryRow(ctx, `SELECT system FROM roles WHERE id = $1 AND org_id = $2 FOR UPDATE`, id, orgID).Scan(&system)
	if err != nil {
		if database.IsNoRows(err) {
			return ErrRoleNotFound
		}
		return fmt.Errorf("rbac: lock role: %w", err)
	}
	if system {
		return ErrSystemRole
	}
	return nil
}

func replacePermissions(ctx context.Context, tx pgx.Tx, roleID string, codes []string) error {
	if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
		return fmt.Errorf("rbac: clear permissions: %w", err)
	}
	if len(codes) == 0 {
		return nil
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO role_permissions (role_id, permission_code)
		SELECT $1, unnest($2::text[])
	`, roleID, codes); err != nil {
		return fmt.Errorf("rbac: insert permissions: %w", err)
	}
	return nil
}

// UserRoles lists the roles assigned to a user.
func (r *Repository) UserRoles(ctx context.Context, orgID, userID string) ([]*Role, error) {
	rows, err := r.pool.Query(ctx, roleSelect+`
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1 AND r.org_id = $2`+roleGroupBy+` ORDER BY r.name`, userID, orgID)
	if err != nil {
		return nil, fmt.Errorf("rbac: user roles: %w", err)
	}
	defer rows.Close()

	var roles []*Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("rbac: scan role: %w", err)
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// SetUserRoles replaces the user's assignments with roleIDs.
func (r *Repository) SetUserRoles(ctx context.Context, orgID, userID string, roleIDs []string) error {
	ids := uniqueStrings(roleIDs)
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1 AND org_id = $2)`, userID, orgID).Scan(&exists); err != nil {
			return fmt.Errorf("rbac: check user: %w", err)
		}
		if !exists {
			return errUserNotFound
		}
		if len(ids) > 0 {
			var found int
			if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM roles WHERE org_id = $1 AND id = ANY($2::uuid[])`, orgID, ids).Scan(&found); err != nil {
				return fmt.Errorf("rbac: check roles: %w", err)
			}
			if found != len(ids) {
				return ErrUnknownRoleIDs
			}
		}
		if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, userID); err != nil {
			return fmt.Errorf("rbac: clear user roles: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO user_roles (user_id, role_id)
			SELECT $1, unnest($2::uuid[])
		`, userID, ids); err != nil {
			return fmt.Errorf("rbac: assign roles: %w", err)
		}
		return nil
	})
}

// UserAccess returns role names and the union of their permission codes.
// Holders of the admin role receive the full catalog.
func (r *Repository) UserAccess(ctx context.Context, orgID, userID string) ([]string, []string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT r.name,
			COALESCE(array_agg(rp.permission_code) FILTER (WHERE rp.permission_code IS NOT NULL), '{}')
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id AND r.org_id = $2
		LEFT JOIN role_permissions rp ON rp.role_id = r.id
		WHERE ur.user_id = $1
		GROUP BY r.name
		ORDER BY r.name
	`, userID, orgID)
	if err != nil {
		return nil, nil, fmt.Errorf("rbac: user access: %w", err)
	}
	defer rows.Close()

	roles := []string{}
	permSet := map[string]struct{}{}
	admin := false
	for rows.Next() {
		var name string
		var codes []string
		if err := rows.Scan(&name, &codes); err != nil {
			return nil, nil, fmt.Errorf("rbac: scan access: %w", err)
		}
		roles = append(roles, name)
		if name == RoleAdmin {
			admin = true
		}
		for _, c := range codes {
			permSet[c] = struct{}{}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	if admin {
		return roles, AllCodes(), nil
	}
	perms := make([]string, 0, len(permSet))
	for c := range permSet {
		perms = append(perms, c)
	}
	sort.Strings(perms)
	return roles, perms, nil
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok || s == "" {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
