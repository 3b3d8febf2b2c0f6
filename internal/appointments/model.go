// Package appointments schedules patient appointments with providers and
// drives them through their status workflow.
package appointments

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/clinicdesk/internal/apperr"
	"github.com/wolfman30/clinicdesk/internal/events"
)

const (
	StatusScheduled = "scheduled"
	StatusConfirmed = "confirmed"
	StatusCheckedIn = "checked_in"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusNoShow    = "no_show"
)

// Workflow actions exposed as POST /appointments/{id}/<action>.
const (
	ActionConfirm  = "confirm"
	ActionCheckIn  = "check-in"
	ActionComplete = "complete"
	ActionCancel   = "cancel"
	ActionNoShow   = "no-show"
)

type transition struct {
	to        string
	from      []string
	eventType string
	verb      string
}

var transitions = map[string]transition{
	ActionConfirm:  {to: StatusConfirmed, from: []string{StatusScheduled}, eventType: events.AppointmentConfirmed, verb: "confirm"},
	ActionCheckIn:  {to: StatusCheckedIn, from: []string{StatusScheduled, StatusConfirmed}, eventType: events.AppointmentCheckedIn, verb: "check in"},
	ActionComplete: {to: StatusCompleted, from: []string{StatusCheckedIn}, eventType: events.AppointmentCompleted, verb: "complete"},
	ActionCancel:   {to: StatusCancelled, from: []string{StatusScheduled, StatusConfirmed}, eventType: events.AppointmentCancelled, verb: "cancel"},
	ActionNoShow:   {to: StatusNoShow, from: []string{StatusScheduled, StatusConfirmed}, eventType: events.AppointmentNoShow, verb: "mark as no-show"},
}

// editable statuses allow rescheduling and field updates.
var editable = []string{StatusScheduled, StatusConfirmed}

func validStatus(s string) bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusCheckedIn, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

type Appointment struct {
	ID                  string     `json:"id"`
	OrgID               string     `json:"org_id"`
	PatientID           string     `json:"patient_id"`
	EmployeeID          string     `json:"employee_id"`
	AppointmentTypeID   *string    `json:"appointment_type_id,omitempty"`
	StartsAt            time.Time  `json:"starts_at"`
	EndsAt              time.Time  `json:"ends_at"`
	Status              string     `json:"status"`
	Notes               *string    `json:"notes,omitempty"`
	CancelReasonID      *string    `json:"cancel_reason_id,omitempty"`
	CancelNote          *string    `json:"cancel_note,omitempty"`
	ConfirmedAt         *time.Time `json:"confirmed_at,omitempty"`
	CheckedInAt         *time.Time `json:"checked_in_at,omitempty"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	CancelledAt         *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
	PatientName         string     `json:"patient_name"`
	EmployeeName        string     `json:"employee_name"`
	AppointmentTypeName *string    `json:"appointment_type_name,omitempty"`
}

type CreateRequest struct {
	PatientID         string     `json:"patient_id"`
	EmployeeID        string     `json:"employee_id"`
	AppointmentTypeID *string    `json:"appointment_type_id"`
	StartsAt          time.Time  `json:"starts_at"`
	EndsAt            *time.Time `json:"ends_at"`
	Notes             *string    `json:"notes"`
}

func (r *CreateRequest) Validate() error {
	r.PatientID = strings.TrimSpace(r.PatientID)
	r.EmployeeID = strings.TrimSpace(r.EmployeeID)
	if err := checkUUID("patient_id", r.PatientID); err != nil {
		return err
	}
	if err := checkUUID("employee_id", r.EmployeeID); err != nil {
		return err
	}
	if r.AppointmentTypeID = trimOptional(r.AppointmentTypeID); r.AppointmentTypeID != nil {
		if err := checkUUID("appointment_type_id", *r.AppointmentTypeID); err != nil {
			return err
		}
	}
	if r.StartsAt.IsZero() {
		return apperr.Invalid("starts_at is required")
	}
	if r.EndsAt != nil && !r.EndsAt.After(r.StartsAt) {
		return apperr.Invalid("ends_at must be after starts_at")
	}
	r.Notes = trimOptional(r.Notes)
	return nil
}

// UpdateRequest patches an appointment that has not started yet.
type UpdateRequest struct {
	EmployeeID        *string    `json:"employee_id"`
	AppointmentTypeID *string    `json:"appointment_type_id"`
	StartsAt          *time.Time `json:"starts_at"`
	EndsAt            *time.Time `json:"ends_at"`
	Notes             *string    `json:"notes"`
}

func (r *UpdateRequest) Validate() error {
	if r.EmployeeID = trimOptional(r.EmployeeID); r.EmployeeID != nil {
		if err := checkUUID("employee_id", *r.EmployeeID); err != nil {
			return err
		}
	}
	if r.AppointmentTypeID = trimOptional(r.AppointmentTypeID); r.AppointmentTypeID != nil {
		if err := checkUUID("appointment_type_id", *r.AppointmentTypeID); err != nil {
			return err
		}
	}
	if r.StartsAt != nil && r.EndsAt != nil && !r.EndsAt.After(*r.StartsAt) {
		return apperr.Invalid("ends_at must be after starts_at")
	}
	r.Notes = trimOptional(r.Notes)
	return nil
}

// CancelRequest names a configured cancel reason, free text, or both.
type CancelRequest struct {
	CancelReasonID *string `json:"cancel_reason_id"`
	Reason         *string `json:"reason"`
}

func (r *CancelRequest) Validate() error {
	r.CancelReasonID = trimOptional(r.CancelReasonID)
	r.Reason = trimOptional(r.Reason)
	if r.CancelReasonID == nil && r.Reason == nil {
		return apperr.Invalid("cancel_reason_id or reason is required")
	}
	if r.CancelReasonID != nil {
		if err := checkUUID("cancel_reason_id", *r.CancelReasonID); err != nil {
			return err
		}
	}
	if r.Reason != nil && len(*r.Reason) > 500 {
		return apperr.Invalid("reason must be at most 500 characters")
	}
	return nil
}

type Filter struct {
	Status     string
	PatientID  string
	EmployeeID string
	From       *time.Time
	To         *time.Time
}

func checkUUID(field, v string) error {
	if v == "" {
		return apperr.Invalidf("%s is required", field)
	}
	if _, err := uuid.Parse(v); err != nil {
		return apperr.Invalidf("%s must be a valid id", field)
	}
	return nil
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
