package visits

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/wolfman30/clinicdesk/internal/apperr"
	"github.com/wolfman30/clinicdesk/internal/appointments"
	"github.com/wolfman30/clinicdesk/internal/database"
	"github.com/wolfman30/clinicdesk/internal/events"
	"github.com/wolfman30/clinicdesk/pkg/logging"
)

var (
	ErrNotFound            = apperr.NotFound("visit not found")
	ErrAppointmentMismatch = apperr.Invalid("appointment does not exist or belongs to another patient")
)

const visitSelect = `
	SELECT v.id, v.org_id, v.patient_id, v.appointment_id, v.employee_id, v.status, v.chief_complaint,
		v.diagnosis, v.notes, v.started_at, v.completed_at, v.created_at, v.updated_at,
		p.first_name || ' ' || p.last_name
	FROM visits v
	JOIN patients p ON p.id = v.patient_id`

var sortColumns = map[string]string{
	"created_at": "v.created_at",
	"started_at": "v.started_at",
	"status":     "v.status",
}

type visitTransition struct {
	to        string
	from      []string
	stamp     string
	eventType string
	apptStep  string
}

var transitions = map[string]visitTransition{
	ActionStart:    {to: StatusInProgress, from: []string{StatusWaiting}, stamp: "started_at", eventType: events.VisitStarted, apptStep: appointments.ActionCheckIn},
	ActionComplete: {to: StatusCompleted, from: []string{StatusInProgress}, stamp: "completed_at", eventType: events.VisitCompleted, apptStep: appointments.ActionComplete},
	ActionCancel:   {to: StatusCancelled, from: []string{StatusWaiting, StatusInProgress}},
}

// Repository stores visits in Postgres and keeps linked appointments in step.
type Repository struct {
	pool   database.Pool
	logger *logging.Logger
}

func NewRepository(pool database.Pool, logger *logging.Logger) *Repository {
	if pool == nil {
		panic("visits: database required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Repository{pool: pool, logger: logger}
}

func scanVisit(row pgx.Row) (*Visit, error) {
	var v Visit
	err := row.Scan(&v.ID, &v.OrgID, &v.PatientID, &v.AppointmentID, &v.EmployeeID, &v.Status, &v.ChiefComplaint,
		&v.Diagnosis, &v.Notes, &v.StartedAt, &v.CompletedAt, &v.CreatedAt, &v.UpdatedAt, &v.PatientName)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func get(ctx context.Context, q database.Querier, orgID, id string) (*Visit, error) {
	v, err := scanVisit(q.QueryRow(ctx, visitSelect+` WHERE v.id = $1 AND v.org_id = $2`, id, orgID))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("visits: select: %w", err)
	}
	return v, nil
}

func (r *Repository) Get(ctx context.Context, orgID, id string) (*Visit, error) {
	return get(ctx, r.pool, orgID, id)
}

func (r *Repository) Create(ctx context.Context, orgID string, req *CreateRequest) (*Visit, error) {
	var out *Visit
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		employeeID := req.EmployeeID
		if req.AppointmentID != nil {
			var patientID, apptEmployee string
			err := tx.QueryRow(ctx, `SELECT patient_id, employee_id FROM appointments WHERE id = $1 AND org_id = $2`, *req.AppointmentID, orgID).
				Scan(&patientID, &apptEmployee)
			if err != nil {
				if database.IsNoRows(err) {
					return ErrAppointmentMismatch
				}
				return fmt.Errorf("visits: appointment lookup: %w", err)
			}
			if patientID != req.PatientID {
				return ErrAppointmentMismatch
			}
			if employeeID == nil {
				employeeID = &apptEmployee
			}
		}
		id := uuid.NewString()
		_, err := tx.Exec(ctx, `
			INSERT INTO visits (id, org_id, patient_id, appointment_id, employee_id, status, chief_complaint, notes)
			VALUES ($1, $2, $3, $4, $5, 'waiting', $6, $7)`,
			id, orgID, req.PatientID, req.AppointmentID, employeeID, req.ChiefComplaint, req.Notes)
		if err != nil {
			return fmt.Errorf("visits: insert: %w", database.Classify(err))
		}
		out, err = get(ctx, tx, orgID, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repository) List(ctx context.Context, orgID string, filter Filter, params database.ListParams) ([]*Visit, int64, error) {
	where := database.NewWhere("v.org_id", orgID)
	if filter.Status != "" {
		where.Add("v.status = ?", filter.Status)
	}
	if filter.PatientID != "" {
		where.Add("v.patient_id = ?", filter.PatientID)
	}
	if filter.AppointmentID != "" {
		where.Add("v.appointment_id = ?", filter.AppointmentID)
	}
	if params.Search != "" {
		where.AddSearch(database.ContainsPattern(params.Search), "p.first_name", "p.last_name", "v.chief_complaint", "v.diagnosis")
	}

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM visits v JOIN patients p ON p.id = v.patient_id`+where.SQL(), where.Args()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("visits: count: %w", err)
	}

	query := visitSelect + where.SQL() +
		` ORDER BY ` + params.OrderBy(sortColumns, "v.created_at DESC") + ` LIMIT ` + where.Next(1) + ` OFFSET ` + where.Next(2)
	rows, err := r.pool.Query(ctx, query, append(where.Args(), params.Limit, params.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("visits: list: %w", err)
	}
	defer rows.Close()

	var out []*Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("visits: scan: %w", err)
		}
		out = append(out, v)
	}
	return out, total, rows.Err()
}

// Update edits clinical notes. Completed and cancelled visits are read only.
func (r *Repository) Update(ctx context.Context, orgID, id string, req *UpdateRequest) (*Visit, error) {
	var out *Visit
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE visits SET
				employee_id = COALESCE($3, employee_id),
				chief_complaint = COALESCE($4, chief_complaint),
				diagnosis = COALESCE($5, diagnosis),
				notes = COALESCE($6, notes),
				updated_at = now()
			WHERE id = $1 AND org_id = $2 AND status IN ('waiting', 'in_progress')`,
			id, orgID, req.EmployeeID, req.ChiefComplaint, req.Diagnosis, req.Notes)
		if err != nil {
			return fmt.Errorf("visits: update: %w", database.Classify(err))
		}
		current, err := get(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return apperr.Conflictf("cannot edit a visit that is %s", current.Status)
		}
		out = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repository) Delete(ctx context.Context, orgID, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM visits WHERE id = $1 AND org_id = $2`, id, orgID)
	if err != nil {
		return fmt.Errorf("visits: delete: %w", database.ClassifyDelete(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Transition starts, completes or cancels a visit. Starting checks the linked
// appointment in and completing completes it, in the same transaction.
func (r *Repository) Transition(ctx context.Context, orgID, id, action string, outcome *CompleteRequest) (*Visit, error) {
	t, ok := transitions[action]
	if !ok {
		return nil, apperr.Invalidf("unknown visit action %q", action)
	}
	var out *Visit
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var status string
		var appointmentID *string
		err := tx.QueryRow(ctx, `SELECT status, appointment_id FROM visits WHERE id = $1 AND org_id = $2 FOR UPDATE`, id, orgID).
			Scan(&status, &appointmentID)
		if err != nil {
			if database.IsNoRows(err) {
				return ErrNotFound
			}
			return fmt.Errorf("visits: lock: %w", err)
		}
		if !slices.Contains(t.from, status) {
			return apperr.Conflictf("cannot %s a visit that is %s", action, strings.ReplaceAll(status, "_", " "))
		}

		var diagnosis, notes *string
		if outcome != nil {
			diagnosis, notes = outcome.Diagnosis, outcome.Notes
		}
		stamp := ""
		if t.stamp != "" {
			stamp = t.stamp + " = now(), "
		}
		tag, err := tx.Exec(ctx, `
			UPDATE visits SET status = $3, `+stamp+`
				diagnosis = COALESCE($5, diagnosis),
				notes = COALESCE($6, notes),
				updated_at = now()
			WHERE id = $1 AND org_id = $2 AND status = ANY($4)`,
			id, orgID, t.to, t.from, diagnosis, notes)
		if err != nil {
			return fmt.Errorf("visits: transition: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return apperr.Conflictf("cannot %s a visit that is %s", action, strings.ReplaceAll(status, "_", " "))
		}

		if appointmentID != nil && t.apptStep != "" {
			if _, err := appointments.TransitionTx(ctx, tx, orgID, *appointmentID, t.apptStep, nil); err != nil {
				if !apperr.Is(err, apperr.KindConflict) {
					return err
				}
				r.logger.Warn("linked appointment not advanced", "org_id", orgID, "visit_id", id,
					"appointment_id", *appointmentID, "step", t.apptStep, "reason", err.Error())
			}
		}

		out, err = get(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		if t.eventType == "" {
			return nil
		}
		evt := events.VisitChangedV1{
			Type:       t.eventType,
			VisitID:    out.ID,
			PatientID:  out.PatientID,
			Status:     out.Status,
			OccurredAt: out.UpdatedAt,
		}
		if out.AppointmentID != nil {
			evt.AppointmentID = *out.AppointmentID
		}
		_, err = events.Append(ctx, tx, orgID, events.Aggregate("visit", out.ID), evt)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
