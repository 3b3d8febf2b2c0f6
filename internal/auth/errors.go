package auth

import "github.com/wolfman30/clinicdesk/internal/apperr"

var (
	ErrInvalidCredentials = apperr.Unauthorized("invalid email or password")
	ErrUserInactive       = apperr.Unauthorized("account is disabled")
	ErrUserNotFound       = apperr.NotFound("user not found")
)
