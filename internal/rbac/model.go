package rbac

import (
	"sort"
	"strings"
	"time"

	"github.com/wolfman30/clinicdesk/internal/apperr"
)

// Role groups permission codes under a name.
type Role struct {
	ID          string    `json:"id"`
	OrgID       string    `json:"org_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	System      bool      `json:"system"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"created_at"`
}

// RoleRequest creates or replaces a role.
type RoleRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

func (r *RoleRequest) Validate() error {
	r.Name = strings.ToLower(strings.TrimSpace(r.Name))
	r.Description = strings.TrimSpace(r.Description)
	if r.Name == "" {
		return apperr.Invalid("name is required")
	}
	if len(r.Name) > 64 {
		return apperr.Invalid("name must be at most 64 characters")
	}
	seen := make(map[string]struct{}, len(r.Permissions))
	perms := make([]string, 0, len(r.Permissions))
	for _, code := range r.Permissions {
		code = strings.TrimSpace(code)
		if !Known(code) {
			return apperr.Invalidf("unknown permission %q", code)
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		perms = append(perms, code)
	}
	sort.Strings(perms)
	r.Permissions = perms
	return nil
}

// AssignRolesRequest replaces a user's roles.
type AssignRolesRequest struct {
	RoleIDs []string `json:"role_ids"`
}
