package rbac

import (
	"context"
	"fmt"
)

// defaultRoles are created for every organization. They are marked system and
// cannot be edited through the API.
var defaultRoles = []RoleRequest{
	{
		Name:        RoleAdmin,
		Description: "Full access to every feature",
	},
	{
		Name:        "doctor",
		Description: "Clinical staff",
		Permissions: []string{PatientsRead, PatientsWrite, AppointmentsRead, AppointmentsWrite, VisitsRead, VisitsWrite, FilesRead, FilesWrite, DashboardRead},
	},
	{
		Name:        "receptionist",
		Description: "Front desk",
		Permissions: []string{PatientsRead, PatientsWrite, EmployeesRead, AppointmentsRead, AppointmentsWrite, VisitsRead, InvoicesRead, FilesRead, DashboardRead},
	},
	{
		Name:        "accountant",
		Description: "Billing",
		Permissions: []string{PatientsRead, InvoicesRead, InvoicesWrite, DashboardRead},
	},
}

// SeedDefaultRoles creates the built-in roles that do not exist yet and
// returns how many were inserted.
func (r *Repository) SeedDefaultRoles(ctx context.Context, orgID string) (int, error) {
	created := 0
	for _, def := range defaultRoles {
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM roles WHERE org_id = $1 AND name = $2)`, orgID, def.Name).Scan(&exists); err != nil {
			return created, fmt.Errorf("rbac: check role %s: %w", def.Name, err)
		}
		if exists {
			continue
		}
		req := def
		if err := req.Validate(); err != nil {
			return created, err
		}
		if _, err := r.createRole(ctx, orgID, &req, true); err != nil {
			return created, fmt.Errorf("rbac: seed role %s: %w", def.Name, err)
		}
		created++
	}
	return created, nil
}
