package auth

import (
	"net/mail"
	"strings"
	"time"

	"github.com/wolfman30/clinicdesk/internal/apperr"
)

// User is an account able to sign in to one organization.
type User struct {
	ID           string    `json:"id"`
	OrgID        string    `json:"org_id"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name"`
	EmployeeID   *string   `json:"employee_id,omitempty"`
	Active       bool      `json:"active"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is returned on successful sign-in.
type LoginResponse struct {
	AccessToken string   `json:"access_token"`
	TokenType   string   `json:"token_type"`
	ExpiresIn   int64    `json:"expires_in"`
	User        *Profile `json:"user"`
}

// Profile is the signed-in user with effective access.
type Profile struct {
	*User
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// CreateUserRequest is the body of POST /users.
type CreateUserRequest struct {
	Email      string  `json:"email"`
	Password   string  `json:"password"`
	FullName   string  `json:"full_name"`
	EmployeeID *string `json:"employee_id,omitempty"`
}

func (r *CreateUserRequest) Validate() error {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.FullName = strings.TrimSpace(r.FullName)
	if r.Email == "" {
		return apperr.Invalid("email is required")
	}
	if _, err := mail.ParseAddress(r.Email); err != nil {
		return apperr.Invalid("email is invalid")
	}
	if err := CheckPassword(r.Password); err != nil {
		return err
	}
	if r.FullName == "" {
		return apperr.Invalid("full_name is required")
	}
	return nil
}
