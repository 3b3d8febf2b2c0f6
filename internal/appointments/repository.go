package appointments

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/wolfman30/clinicdesk/internal/apperr"
	"github.com/wolfman30/clinicdesk/internal/database"
	"github.com/wolfman30/clinicdesk/internal/events"
)

var (
	ErrNotFound     = apperr.NotFound("appointment not found")
	ErrOverlap      = apperr.Conflict("the provider already has an appointment in this time range")
	ErrTypeNotFound = apperr.Invalid("appointment type not found or inactive")
	ErrNotEditable  = apperr.Conflict("only scheduled or confirmed appointments can be changed")
	errReasonLookup = apperr.Invalid("cancel reason not found")
)

const appointmentFrom = `
	FROM appointments a
	JOIN patients p ON p.id = a.patient_id
	JOIN employees e ON e.id = a.employee_id
	LEFT JOIN appointment_types t ON t.id = a.appointment_type_id`

const appointmentSelect = `
	SELECT a.id, a.org_id, a.patient_id, a.employee_id, a.appointment_type_id, a.starts_at, a.ends_at, a.status,
		a.notes, a.cancel_reason_id, a.cancel_note, a.confirmed_at, a.checked_in_at, a.completed_at, a.cancelled_at,
		a.created_at, a.updated_at,
		p.first_name || ' ' || p.last_name, e.first_name || ' ' || e.last_name, t.name` + appointmentFrom

var sortColumns = map[string]string{
	"starts_at":  "a.starts_at",
	"status":     "a.status",
	"created_at": "a.created_at",
}

// active statuses occupy the provider's calendar.
var active = []string{StatusScheduled, StatusConfirmed, StatusCheckedIn}

// Repository stores appointments in Postgres and records their events in the outbox.
type Repository struct {
	pool database.Pool
}

func NewRepository(pool database.Pool) *Repository {
	if pool == nil {
		panic("appointments: database required")
	}
	return &Repository{pool: pool}
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.OrgID, &a.PatientID, &a.EmployeeID, &a.AppointmentTypeID, &a.StartsAt, &a.EndsAt, &a.Status,
		&a.Notes, &a.CancelReasonID, &a.CancelNote, &a.ConfirmedAt, &a.CheckedInAt, &a.CompletedAt, &a.CancelledAt,
		&a.CreatedAt, &a.UpdatedAt,
		&a.PatientName, &a.EmployeeName, &a.AppointmentTypeName)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func get(ctx context.Context, q database.Querier, orgID, id string) (*Appointment, error) {
	a, err := scanAppointment(q.QueryRow(ctx, appointmentSelect+` WHERE a.id = $1 AND a.org_id = $2`, id, orgID))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("appointments: select: %w", err)
	}
	return a, nil
}

func (r *Repository) Get(ctx context.Context, orgID, id string) (*Appointment, error) {
	return get(ctx, r.pool, orgID, id)
}

// TypeDuration returns the default length of an active appointment type.
func (r *Repository) TypeDuration(ctx context.Context, orgID, typeID string) (time.Duration, error) {
	var minutes int
	err := r.pool.QueryRow(ctx, `SELECT duration_minutes FROM appointment_types WHERE id = $1 AND org_id = $2 AND active`, typeID, orgID).Scan(&minutes)
	if err != nil {
		if database.IsNoRows(err) {
			return 0, ErrTypeNotFound
		}
		return 0, fmt.Errorf("appointments: type duration: %w", err)
	}
	return time.Duration(minutes) * time.Minute, nil
}

// checkOverlap serializes bookings per provider and rejects overlapping slots.
func checkOverlap(ctx context.Context, tx pgx.Tx, orgID, employeeID, excludeID string, start, end time.Time) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "appointments:"+orgID+":"+employeeID); err != nil {
		return fmt.Errorf("appointments: lock provider: %w", err)
	}
	var overlaps bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE org_id = $1 AND employee_id = $2 AND id <> $3
				AND status = ANY($4) AND starts_at < $6 AND ends_at > $5
		)`, orgID, employeeID, excludeID, active, start, end).Scan(&overlaps)
	if err != nil {
		return fmt.Errorf("appointments: overlap check: %w", err)
	}
	if overlaps {
		return ErrOverlap
	}
	return nil
}

func appendEvent(ctx context.Context, tx pgx.Tx, a *Appointment, eventType, previous, reason string, at time.Time) error {
	_, err := events.Append(ctx, tx, a.OrgID, events.Aggregate("appointment", a.ID), events.AppointmentChangedV1{
		Type:           eventType,
		AppointmentID:  a.ID,
		PatientID:      a.PatientID,
		EmployeeID:     a.EmployeeID,
		Status:         a.Status,
		PreviousStatus: previous,
		StartsAt:       a.StartsAt,
		EndsAt:         a.EndsAt,
		CancelReason:   reason,
		OccurredAt:     at,
	})
	return err
}

// Create inserts a scheduled appointment. req.EndsAt must be resolved.
func (r *Repository) Create(ctx context.Context, orgID string, req *CreateRequest) (*Appointment, error) {
	if req.EndsAt == nil {
		return nil, apperr.Invalid("ends_at is required")
	}
	var out *Appointment
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		id := uuid.NewString()
		if err := checkOverlap(ctx, tx, orgID, req.EmployeeID, id, req.StartsAt, *req.EndsAt); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO appointments (id, org_id, patient_id, employee_id, appointment_type_id, starts_at, ends_at, status, notes)
			VALUES ($1, $2, $3, $4, $5, $6, $7, 'scheduled', $8)`,
			id, orgID, req.PatientID, req.EmployeeID, req.AppointmentTypeID, req.StartsAt, *req.EndsAt, req.Notes)
		if err != nil {
			return fmt.Errorf("appointments: insert: %w", database.Classify(err))
		}
		if out, err = get(ctx, tx, orgID, id); err != nil {
			return err
		}
		return appendEvent(ctx, tx, out, events.AppointmentCreated, "", "", out.CreatedAt)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repository) List(ctx context.Context, orgID string, filter Filter, params database.ListParams) ([]*Appointment, int64, error) {
	where := database.NewWhere("a.org_id", orgID)
	if filter.Status != "" {
		where.Add("a.status = ?", filter.Status)
	}
	if filter.PatientID != "" {
		where.Add("a.patient_id = ?", filter.PatientID)
	}
	if filter.EmployeeID != "" {
		where.Add("a.employee_id = ?", filter.EmployeeID)
	}
	if filter.From != nil {
		where.Add("a.starts_at >= ?", *filter.From)
	}
	if filter.To != nil {
		where.Add("a.starts_at < ?", *filter.To)
	}
	if params.Search != "" {
		where.AddSearch(database.ContainsPattern(params.Search), "p.first_name", "p.last_name", "e.first_name", "e.last_name")
	}

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+appointmentFrom+where.SQL(), where.Args()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("appointments: count: %w", err)
	}

	query := appointmentSelect + where.SQL() +
		` ORDER BY ` + params.OrderBy(sortColumns, "a.starts_at ASC") + ` LIMIT ` + where.Next(1) + ` OFFSET ` + where.Next(2)
	rows, err := r.pool.Query(ctx, query, append(where.Args(), params.Limit, params.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("appointments: list: %w", err)
	}
	defer rows.Close()

	var out []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("appointments: scan: %w", err)
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

// Update reschedules or edits a scheduled or confirmed appointment.
func (r *Repository) Update(ctx context.Context, orgID, id string, req *UpdateRequest) (*Appointment, error) {
	var out *Appointment
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var status, employeeID string
		var start, end time.Time
		err := tx.QueryRow(ctx, `SELECT status, employee_id, starts_at, ends_at FROM appointments WHERE id = $1 AND org_id = $2 FOR UPDATE`, id, orgID).
			Scan(&status, &employeeID, &start, &end)
		if err != nil {
			if database.IsNoRows(err) {
				return ErrNotFound
			}
			return fmt.Errorf("appointments: lock: %w", err)
		}
		if !slices.Contains(editable, status) {
			return ErrNotEditable
		}
		if req.EmployeeID != nil {
			employeeID = *req.EmployeeID
		}
		if req.StartsAt != nil {
			start = *req.StartsAt
		}
		if req.EndsAt != nil {
			end = *req.EndsAt
		}
		if !end.After(start) {
			return apperr.Invalid("ends_at must be after starts_at")
		}
		if err := checkOverlap(ctx, tx, orgID, employeeID, id, start, end); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			UPDATE appointments SET
				employee_id = $3,
				appointment_type_id = COALESCE($4, appointment_type_id),
				starts_at = $5,
				ends_at = $6,
				notes = COALESCE($7, notes),
				updated_at = now()
			WHERE id = $1 AND org_id = $2`,
			id, orgID, employeeID, req.AppointmentTypeID, start, end, req.Notes)
		if err != nil {
			return fmt.Errorf("appointments: update: %w", database.Classify(err))
		}
		out, err = get(ctx, tx, orgID, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repository) Delete(ctx context.Context, orgID, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM appointments WHERE id = $1 AND org_id = $2`, id, orgID)
	if err != nil {
		return fmt.Errorf("appointments: delete: %w", database.ClassifyDelete(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Transition applies a workflow action in its own transaction.
func (r *Repository) Transition(ctx context.Context, orgID, id, action string, cancel *CancelRequest) (*Appointment, error) {
	var out *Appointment
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		out, err = TransitionTx(ctx, tx, orgID, id, action, cancel)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

var stampColumn = map[string]string{
	StatusConfirmed: "confirmed_at",
	StatusCheckedIn: "checked_in_at",
	StatusCompleted: "completed_at",
	StatusCancelled: "cancelled_at",
}

// TransitionTx applies a workflow action inside tx and appends the matching
// event. A prior status the action does not accept yields a conflict.
func TransitionTx(ctx context.Context, tx pgx.Tx, orgID, id, action string, cancel *CancelRequest) (*Appointment, error) {
	t, ok := transitions[action]
	if !ok {
		return nil, apperr.Invalidf("unknown appointment action %q", action)
	}
	if t.to == StatusCancelled && cancel == nil {
		return nil, apperr.Invalid("cancel_reason_id or reason is required")
	}

	var previous string
	err := tx.QueryRow(ctx, `SELECT status FROM appointments WHERE id = $1 AND org_id = $2 FOR UPDATE`, id, orgID).Scan(&previous)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("appointments: lock: %w", err)
	}
	if !slices.Contains(t.from, previous) {
		return nil, apperr.Conflictf("cannot %s an appointment that is %s", t.verb, strings.ReplaceAll(previous, "_", " "))
	}

	var reasonID, note *string
	reasonText := ""
	if cancel != nil && t.to == StatusCancelled {
		reasonID, note = cancel.CancelReasonID, cancel.Reason
		if note != nil {
			reasonText = *note
		}
		if reasonID != nil {
			var name string
			err := tx.QueryRow(ctx, `SELECT name FROM cancel_reasons WHERE id = $1 AND org_id = $2`, *reasonID, orgID).Scan(&name)
			if err != nil {
				if database.IsNoRows(err) {
					return nil, errReasonLookup
				}
				return nil, fmt.Errorf("appointments: cancel reason: %w", err)
			}
			if reasonText == "" {
				reasonText = name
			}
		}
	}

	stamp := ""
	if col, ok := stampColumn[t.to]; ok {
		stamp = col + " = now(), "
	}
	tag, err := tx.Exec(ctx, `
		UPDATE appointments SET status = $3, `+stamp+`
			cancel_reason_id = COALESCE($5, cancel_reason_id),
			cancel_note = COALESCE($6, cancel_note),
			updated_at = now()
		WHERE id = $1 AND org_id = $2 AND status = ANY($4)`,
		id, orgID, t.to, t.from, reasonID, note)
	if err != nil {
		return nil, fmt.Errorf("appointments: transition: %w", database.Classify(err))
	}
	if tag.RowsAffected() == 0 {
		return nil, apperr.Conflictf("cannot %s an appointment that is %s", t.verb, strings.ReplaceAll(previous, "_", " "))
	}

	a, err := get(ctx, tx, orgID, id)
	if err != nil {
		return nil, err
	}
	if err := appendEvent(ctx, tx, a, t.eventType, previous, reasonText, a.UpdatedAt); err != nil {
		return nil, err
	}
	return a, nil
}
