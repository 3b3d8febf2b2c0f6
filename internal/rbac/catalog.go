// Package rbac manages roles, their permission codes, and role assignment.
package rbac

import (
	"sort"

	"github.com/wolfman30/clinicdesk/internal/auth"
)

// RoleAdmin holds every permission.
const RoleAdmin = auth.RoleAdmin

// Permission codes checked by route guards.
const (
	PatientsRead      = "patients.read"
	PatientsWrite     = "patients.write"
	EmployeesRead     = "employees.read"
	EmployeesWrite    = "employees.write"
	LeavesApprove     = "leaves.approve"
	AppointmentsRead  = "appointments.read"
	AppointmentsWrite = "appointments.write"
	VisitsRead        = "visits.read"
	VisitsWrite       = "visits.write"
	InvoicesRead      = "invoices.read"
	InvoicesWrite     = "invoices.write"
	MasterDataManage  = "masterdata.manage"
	FilesRead         = "files.read"
	FilesWrite        = "files.write"
	RolesManage       = "roles.manage"
	UsersManage       = "users.manage"
	SettingsManage    = "settings.manage"
	AuditRead         = "audit.read"
	DashboardRead     = "dashboard.read"
)

// Permission describes a grantable capability.
type Permission struct {
	Code        string `json:"code"`
	Group       string `json:"group"`
	Description string `json:"description"`
}

var catalog = []Permission{
	{PatientsRead, "patients", "View patients"},
	{PatientsWrite, "patients", "Create, edit and delete patients"},
	{EmployeesRead, "employees", "View employees and leave requests"},
	{EmployeesWrite, "employees", "Create, edit and delete employees"},
	{LeavesApprove, "employees", "Approve or reject leave requests"},
	{AppointmentsRead, "appointments", "View appointments"},
	{AppointmentsWrite, "appointments", "Book, reschedule and change appointment status"},
	{VisitsRead, "visits", "View visits"},
	{VisitsWrite, "visits", "Start, complete and edit visits"},
	{InvoicesRead, "billing", "View invoices and payments"},
	{InvoicesWrite, "billing", "Issue invoices and record payments"},
	{MasterDataManage, "settings", "Manage appointment types, reasons, leave types and holidays"},
	{FilesRead, "files", "Download patient documents"},
	{FilesWrite, "files", "Upload and delete patient documents"},
	{RolesManage, "access", "Manage roles and assignments"},
	{UsersManage, "access", "Manage user accounts"},
	{SettingsManage, "settings", "Change organization settings"},
	{AuditRead, "access", "Read the audit trail"},
	{DashboardRead, "dashboard", "View dashboard figures"},
}

var catalogIndex = func() map[string]Permission {
	idx := make(map[string]Permission, len(catalog))
	for _, p := range catalog {
		idx[p.Code] = p
	}
	return idx
}()

// Catalog returns every known permission ordered by group then code.
func Catalog() []Permission {
	out := append([]Permission(nil), catalog...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Group != out[j].Group {
			return out[i].Group < out[j].Group
		}
		return out[i].Code < out[j].Code
	})
	return out
}

// Known reports whether code is in the catalog.
func Known(code string) bool {
	_, ok := catalogIndex[code]
	return ok
}

// AllCodes lists every permission code.
func AllCodes() []string {
	codes := make([]string, 0, len(catalog))
	for _, p := range catalog {
		codes = append(codes, p.Code)
	}
	sort.Strings(codes)
	return codes
}
