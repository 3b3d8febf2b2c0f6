// Package visits records patient encounters, optionally tied to an appointment.
package visits

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/clinicdesk/internal/apperr"
)

const (
	StatusWaiting    = "waiting"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

const (
	ActionStart    = "start"
	ActionComplete = "complete"
	ActionCancel   = "cancel"
)

type Visit struct {
	ID             string     `json:"id"`
	OrgID          string     `json:"org_id"`
	PatientID      string     `json:"patient_id"`
	AppointmentID  *string    `json:"appointment_id,omitempty"`
	EmployeeID     *string    `json:"employee_id,omitempty"`
	Status         string     `json:"status"`
	ChiefComplaint *string    `json:"chief_complaint,omitempty"`
	Diagnosis      *string    `json:"diagnosis,omitempty"`
	Notes          *string    `json:"notes,omitempty"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	PatientName    string     `json:"patient_name"`
}

type CreateRequest struct {
	PatientID      string  `json:"patient_id"`
	AppointmentID  *string `json:"appointment_id"`
	EmployeeID     *string `json:"employee_id"`
	ChiefComplaint *string `json:"chief_complaint"`
	Notes          *string `json:"notes"`
}

func (r *CreateRequest) Validate() error {
	r.PatientID = strings.TrimSpace(r.PatientID)
	if r.PatientID == "" {
		return apperr.Invalid("patient_id is required")
	}
	if err := checkUUID("patient_id", &r.PatientID); err != nil {
		return err
	}
	r.AppointmentID = trimOptional(r.AppointmentID)
	if err := checkUUID("appointment_id", r.AppointmentID); err != nil {
		return err
	}
	r.EmployeeID = trimOptional(r.EmployeeID)
	if err := checkUUID("employee_id", r.EmployeeID); err != nil {
		return err
	}
	r.ChiefComplaint = trimOptional(r.ChiefComplaint)
	r.Notes = trimOptional(r.Notes)
	return nil
}

type UpdateRequest struct {
	EmployeeID     *string `json:"employee_id"`
	ChiefComplaint *string `json:"chief_complaint"`
	Diagnosis      *string `json:"diagnosis"`
	Notes          *string `json:"notes"`
}

func (r *UpdateRequest) Validate() error {
	r.EmployeeID = trimOptional(r.EmployeeID)
	if err := checkUUID("employee_id", r.EmployeeID); err != nil {
		return err
	}
	r.ChiefComplaint = trimOptional(r.ChiefComplaint)
	r.Diagnosis = trimOptional(r.Diagnosis)
	r.Notes = trimOptional(r.Notes)
	return nil
}

// CompleteRequest carries the clinical outcome recorded when a visit ends.
type CompleteRequest struct {
	Diagnosis *string `json:"diagnosis"`
	Notes     *string `json:"notes"`
}

func (r *CompleteRequest) Validate() error {
	r.Diagnosis = trimOptional(r.Diagnosis)
	r.Notes = trimOptional(r.Notes)
	return nil
}

type Filter struct {
	Status        string
	PatientID     string
	AppointmentID string
}

func validStatus(s string) bool {
	switch s {
	case StatusWaiting, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

func checkUUID(field string, v *string) error {
	if v == nil {
		return nil
	}
	if _, err := uuid.Parse(*v); err != nil {
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
