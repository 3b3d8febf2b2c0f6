package events

import "time"

const (
	AppointmentCreated   = "appointment.created"
	AppointmentConfirmed = "appointment.confirmed"
	AppointmentCheckedIn = "appointment.checked_in"
	AppointmentCompleted = "appointment.completed"
	AppointmentCancelled = "appointment.cancelled"
	AppointmentNoShow    = "appointment.no_show"

	VisitStarted   = "visit.started"
	VisitCompleted = "visit.completed"

	InvoiceIssued          = "invoice.issued"
	InvoiceVoided          = "invoice.voided"
	InvoicePaymentRecorded = "invoice.payment_recorded"
)

// AppointmentChangedV1 is emitted on appointment creation and every status change.
type AppointmentChangedV1 struct {
	Type           string    `json:"-"`
	AppointmentID  string    `json:"appointment_id"`
	PatientID      string    `json:"patient_id"`
	EmployeeID     string    `json:"employee_id"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	StartsAt       time.Time `json:"starts_at"`
	EndsAt         time.Time `json:"ends_at"`
	CancelReason   string    `json:"cancel_reason,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

func (e AppointmentChangedV1) EventType() string { return e.Type }

// VisitChangedV1 is emitted when a visit starts or completes.
type VisitChangedV1 struct {
	Type          string    `json:"-"`
	VisitID       string    `json:"visit_id"`
	PatientID     string    `json:"patient_id"`
	AppointmentID string    `json:"appointment_id,omitempty"`
	Status        string    `json:"status"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func (e VisitChangedV1) EventType() string { return e.Type }

// InvoiceChangedV1 is emitted when an invoice is issued, voided or paid against.
type InvoiceChangedV1 struct {
	Type         string    `json:"-"`
	InvoiceID    string    `json:"invoice_id"`
	PatientID    string    `json:"patient_id"`
	Number       string    `json:"number"`
	Status       string    `json:"status"`
	TotalCents   int64     `json:"total_cents"`
	PaidCents    int64     `json:"paid_cents"`
	PaymentCents int64     `json:"payment_cents,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

func (e InvoiceChangedV1) EventType() string { return e.Type }
