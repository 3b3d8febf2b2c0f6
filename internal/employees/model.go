package employees

import (
	"net/mail"
	"strings"
	"time"

	"github.com/wolfman30/clinicdesk/internal/apperr"
)

const (
	StatusActive     = "active"
	StatusOnLeave    = "on_leave"
	StatusTerminated = "terminated"
)

var statuses = map[string]bool{StatusActive: true, StatusOnLeave: true, StatusTerminated: true}

// Employee is a staff member: providers, nurses, front desk, billing.
type Employee struct {
	ID             string     `json:"id"`
	OrgID          string     `json:"org_id"`
	EmployeeNumber string     `json:"employee_number"`
	FirstName      string     `json:"first_name"`
	LastName       string     `json:"last_name"`
	Email          string     `json:"email"`
	Phone          *string    `json:"phone,omitempty"`
	Department     *string    `json:"department,omitempty"`
	Position       *string    `json:"position,omitempty"`
	HireDate       *time.Time `json:"hire_date,omitempty"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type CreateRequest struct {
	EmployeeNumber string  `json:"employee_number"`
	FirstName      string  `json:"first_name"`
	LastName       string  `json:"last_name"`
	Email          string  `json:"email"`
	Phone          *string `json:"phone"`
	Department     *string `json:"department"`
	Position       *string `json:"position"`
	HireDate       string  `json:"hire_date"`

	hireDate *time.Time
}

func (r *CreateRequest) Validate() error {
	r.EmployeeNumber = strings.ToUpper(strings.TrimSpace(r.EmployeeNumber))
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	if r.FirstName == "" || r.LastName == "" {
		return apperr.Invalid("first_name and last_name are required")
	}
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	if _, err := mail.ParseAddress(r.Email); err != nil {
		return apperr.Invalid("a valid email is required")
	}
	hire, err := parseDate(r.HireDate)
	if err != nil {
		return err
	}
	r.hireDate = hire
	r.Phone = trimOptional(r.Phone)
	r.Department = trimOptional(r.Department)
	r.Position = trimOptional(r.Position)
	return nil
}

// UpdateRequest is a partial update; nil fields are unchanged.
type UpdateRequest struct {
	FirstName  *string `json:"first_name"`
	LastName   *string `json:"last_name"`
	Email      *string `json:"email"`
	Phone      *string `json:"phone"`
	Department *string `json:"department"`
	Position   *string `json:"position"`
	HireDate   *string `json:"hire_date"`
	Status     *string `json:"status"`

	hireDate *time.Time
}

func (r *UpdateRequest) Validate() error {
	for _, name := range []*string{r.FirstName, r.LastName} {
		if name != nil && strings.TrimSpace(*name) == "" {
			return apperr.Invalid("first_name and last_name cannot be blank")
		}
	}
	r.FirstName = trimOptional(r.FirstName)
	r.LastName = trimOptional(r.LastName)
	if r.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*r.Email))
		if _, err := mail.ParseAddress(email); err != nil {
			return apperr.Invalid("email is not a valid address")
		}
		r.Email = &email
	}
	if r.Status != nil {
		s := strings.ToLower(strings.TrimSpace(*r.Status))
		if !statuses[s] {
			return apperr.Invalid("status must be one of active, on_leave, terminated")
		}
		r.Status = &s
	}
	if r.HireDate != nil {
		hire, err := parseDate(*r.HireDate)
		if err != nil {
			return err
		}
		r.hireDate = hire
	}
	r.Phone = trimOptional(r.Phone)
	r.Department = trimOptional(r.Department)
	r.Position = trimOptional(r.Position)
	return nil
}

type Filter struct {
	Status     string
	Department string
	Position   string
}

func parseDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	d, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, apperr.Invalid("hire_date must be YYYY-MM-DD")
	}
	return &d, nil
}

func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
