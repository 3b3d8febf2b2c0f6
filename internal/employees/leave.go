package employees

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/clinicdesk/internal/apperr"
)

const (
	LeavePending   = "pending"
	LeaveApproved  = "approved"
	LeaveRejected  = "rejected"
	LeaveCancelled = "cancelled"
)

const (
	LeaveActionApprove = "approve"
	LeaveActionReject  = "reject"
	LeaveActionCancel  = "cancel"
)

var leaveStatuses = map[string]bool{LeavePending: true, LeaveApproved: true, LeaveRejected: true, LeaveCancelled: true}

// leaveTransitions only leave pending; decided requests are final.
var leaveTransitions = map[string]string{
	LeaveActionApprove: LeaveApproved,
	LeaveActionReject:  LeaveRejected,
	LeaveActionCancel:  LeaveCancelled,
}

// Leave is a request for time off against a leave type.
type Leave struct {
	ID            string     `json:"id"`
	OrgID         string     `json:"org_id"`
	EmployeeID    string     `json:"employee_id"`
	LeaveTypeID   string     `json:"leave_type_id"`
	LeaveTypeName string     `json:"leave_type_name"`
	StartDate     time.Time  `json:"start_date"`
	EndDate       time.Time  `json:"end_date"`
	Days          int        `json:"days"`
	Reason        *string    `json:"reason,omitempty"`
	Status        string     `json:"status"`
	DecidedBy     *string    `json:"decided_by,omitempty"`
	DecidedAt     *time.Time `json:"decided_at,omitempty"`
	DecisionNote  *string    `json:"decision_note,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type LeaveRequest struct {
	LeaveTypeID string  `json:"leave_type_id"`
	StartDate   string  `json:"start_date"`
	EndDate     string  `json:"end_date"`
	Reason      *string `json:"reason"`

	start, end time.Time
}

func (r *LeaveRequest) Validate() error {
	r.LeaveTypeID = strings.TrimSpace(r.LeaveTypeID)
	if _, err := uuid.Parse(r.LeaveTypeID); err != nil {
		return apperr.Invalid("leave_type_id must be a valid id")
	}
	var err error
	if r.start, err = time.Parse("2006-01-02", strings.TrimSpace(r.StartDate)); err != nil {
		return apperr.Invalid("start_date must be YYYY-MM-DD")
	}
	if r.end, err = time.Parse("2006-01-02", strings.TrimSpace(r.EndDate)); err != nil {
		return apperr.Invalid("end_date must be YYYY-MM-DD")
	}
	if r.end.Before(r.start) {
		return apperr.Invalid("end_date cannot be before start_date")
	}
	if r.end.Year() != r.start.Year() {
		return apperr.Invalid("a leave request cannot span calendar years")
	}
	r.Reason = trimOptional(r.Reason)
	if r.Reason != nil && len(*r.Reason) > 500 {
		return apperr.Invalid("reason must be at most 500 characters")
	}
	return nil
}

// DecisionRequest optionally annotates an approve, reject or cancel.
type DecisionRequest struct {
	Note *string `json:"note"`
}

func (r *DecisionRequest) Validate() error {
	r.Note = trimOptional(r.Note)
	if r.Note != nil && len(*r.Note) > 500 {
		return apperr.Invalid("note must be at most 500 characters")
	}
	return nil
}

// BusinessDays counts the weekdays in [start, end] that are not holidays.
func BusinessDays(start, end time.Time, holidays []time.Time) int {
	off := make(map[string]bool, len(holidays))
	for _, h := range holidays {
		off[h.Format("2006-01-02")] = true
	}
	days := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		if off[d.Format("2006-01-02")] {
			continue
		}
		days++
	}
	return days
}
