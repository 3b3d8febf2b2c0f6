// Package masterdata manages per-organization reference data: appointment
// types, cancel reasons, leave types and holidays.
package masterdata

import (
	"regexp"
	"strings"
	"time"

	"github.com/wolfman30/clinicdesk/internal/apperr"
)

var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

type AppointmentType struct {
	ID              string    `json:"id"`
	OrgID           string    `json:"org_id"`
	Name            string    `json:"name"`
	Description     *string   `json:"description,omitempty"`
	DurationMinutes int       `json:"duration_minutes"`
	PriceCents      int64     `json:"price_cents"`
	Color           *string   `json:"color,omitempty"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type CancelReason struct {
	ID          string    `json:"id"`
	OrgID       string    `json:"org_id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type LeaveType struct {
	ID          string    `json:"id"`
	OrgID       string    `json:"org_id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	DaysPerYear int       `json:"days_per_year"`
	Paid        bool      `json:"paid"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Holiday struct {
	ID        string    `json:"id"`
	OrgID     string    `json:"org_id"`
	Name      string    `json:"name"`
	Date      time.Time `json:"date"`
	Recurring bool      `json:"recurring"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AppointmentTypeRequest creates (all required fields set) or patches an appointment type.
type AppointmentTypeRequest struct {
	Name            *string `json:"name"`
	Description     *string `json:"description"`
	DurationMinutes *int    `json:"duration_minutes"`
	PriceCents      *int64  `json:"price_cents"`
	Color           *string `json:"color"`
	Active          *bool   `json:"active"`
}

func (r *AppointmentTypeRequest) Validate(create bool) error {
	var err error
	if r.Name, err = checkName(r.Name, create); err != nil {
		return err
	}
	if create && r.DurationMinutes == nil {
		return apperr.Invalid("duration_minutes is required")
	}
	if r.DurationMinutes != nil && (*r.DurationMinutes < 5 || *r.DurationMinutes > 480) {
		return apperr.Invalid("duration_minutes must be between 5 and 480")
	}
	if r.PriceCents != nil && *r.PriceCents < 0 {
		return apperr.Invalid("price_cents cannot be negative")
	}
	if r.Color = trimOptional(r.Color); r.Color != nil && !colorPattern.MatchString(*r.Color) {
		return apperr.Invalid("color must be a hex value such as #1e88e5")
	}
	r.Description = trimOptional(r.Description)
	return nil
}

type CancelReasonRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Active      *bool   `json:"active"`
}

func (r *CancelReasonRequest) Validate(create bool) error {
	var err error
	if r.Name, err = checkName(r.Name, create); err != nil {
		return err
	}
	r.Description = trimOptional(r.Description)
	return nil
}

type LeaveTypeRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	DaysPerYear *int    `json:"days_per_year"`
	Paid        *bool   `json:"paid"`
	Active      *bool   `json:"active"`
}

func (r *LeaveTypeRequest) Validate(create bool) error {
	var err error
	if r.Name, err = checkName(r.Name, create); err != nil {
		return err
	}
	if create && r.DaysPerYear == nil {
		return apperr.Invalid("days_per_year is required")
	}
	if r.DaysPerYear != nil && (*r.DaysPerYear < 0 || *r.DaysPerYear > 366) {
		return apperr.Invalid("days_per_year must be between 0 and 366")
	}
	r.Description = trimOptional(r.Description)
	return nil
}

type HolidayRequest struct {
	Name      *string `json:"name"`
	Date      *string `json:"date"`
	Recurring *bool   `json:"recurring"`

	date *time.Time
}

func (r *HolidayRequest) Validate(create bool) error {
	var err error
	if r.Name, err = checkName(r.Name, create); err != nil {
		return err
	}
	if create && r.Date == nil {
		return apperr.Invalid("date is required")
	}
	if r.Date != nil {
		d, err := time.Parse("2006-01-02", strings.TrimSpace(*r.Date))
		if err != nil {
			return apperr.Invalid("date must be YYYY-MM-DD")
		}
		r.date = &d
	}
	return nil
}

func checkName(name *string, required bool) (*string, error) {
	name = trimOptional(name)
	if name == nil {
		if required {
			return nil, apperr.Invalid("name is required")
		}
		return nil, nil
	}
	if len(*name) > 120 {
		return nil, apperr.Invalid("name must be at most 120 characters")
	}
	return name, nil
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
