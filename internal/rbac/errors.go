package rbac

import "github.com/wolfman30/clinicdesk/internal/apperr"

var (
	ErrRoleNotFound   = apperr.NotFound("role not found")
	ErrSystemRole     = apperr.Conflict("built-in roles cannot be modified")
	ErrUnknownRoleIDs = apperr.Invalid("one or more roles do not exist")
)

var errUserNotFound = apperr.NotFound("user not found")
