package employees

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/wolfman30/clinicdesk/internal/apperr"
	"github.com/wolfman30/clinicdesk/internal/database"
	"github.com/wolfman30/clinicdesk/internal/masterdata"
)

var (
	ErrLeaveNotFound     = apperr.NotFound("leave request not found")
	ErrLeaveTypeNotFound = apperr.Invalid("leave type not found or inactive")
	ErrLeaveOverlap      = apperr.Conflict("leave overlaps another pending or approved request")
	ErrNoWorkingDays     = apperr.Invalid("leave covers no working days")
	ErrEmployeeInactive  = apperr.Conflict("terminated employees cannot request leave")
)

const leaveSelect = `
	SELECT l.id, l.org_id, l.employee_id, l.leave_type_id, t.name, l.start_date, l.end_date, l.days, l.reason,
		l.status, l.decided_by, l.decided_at, l.decision_note, l.created_at, l.updated_at
	FROM leaves l
	JOIN leave_types t ON t.id = l.leave_type_id`

var leaveSortColumns = map[string]string{
	"start_date": "l.start_date",
	"created_at": "l.created_at",
	"status":     "l.status",
}

// LeaveRepository stores leave requests. Creation and decisions run in
// transactions that lock the employee's leave rows.
type LeaveRepository struct {
	pool database.Pool
}

func NewLeaveRepository(pool database.Pool) *LeaveRepository {
	if pool == nil {
		panic("employees: database required")
	}
	return &LeaveRepository{pool: pool}
}

func scanLeave(row pgx.Row) (*Leave, error) {
	var l Leave
	err := row.Scan(&l.ID, &l.OrgID, &l.EmployeeID, &l.LeaveTypeID, &l.LeaveTypeName, &l.StartDate, &l.EndDate, &l.Days, &l.Reason,
		&l.Status, &l.DecidedBy, &l.DecidedAt, &l.DecisionNote, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func getLeave(ctx context.Context, q database.Querier, orgID, id string) (*Leave, error) {
	l, err := scanLeave(q.QueryRow(ctx, leaveSelect+` WHERE l.id = $1 AND l.org_id = $2`, id, orgID))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, ErrLeaveNotFound
		}
		return nil, fmt.Errorf("employees: select leave: %w", err)
	}
	return l, nil
}

func (r *LeaveRepository) Get(ctx context.Context, orgID, id string) (*Leave, error) {
	return getLeave(ctx, r.pool, orgID, id)
}

// Create files a pending leave request. The day count excludes weekends and
// holidays, and the request must fit in the leave type's yearly allowance
// counting pending and approved requests.
func (r *LeaveRepository) Create(ctx context.Context, orgID, employeeID string, req *LeaveRequest) (*Leave, error) {
	var out *Leave
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var status string
		err := tx.QueryRow(ctx, `SELECT status FROM employees WHERE id = $1 AND org_id = $2 FOR UPDATE`, employeeID, orgID).Scan(&status)
		if err != nil {
			if database.IsNoRows(err) {
				return ErrNotFound
			}
			return fmt.Errorf("employees: lock employee: %w", err)
		}
		if status == StatusTerminated {
			return ErrEmployeeInactive
		}

		var allowance int
		err = tx.QueryRow(ctx, `SELECT days_per_year FROM leave_types WHERE id = $1 AND org_id = $2 AND active`,
			req.LeaveTypeID, orgID).Scan(&allowance)
		if err != nil {
			if database.IsNoRows(err) {
				return ErrLeaveTypeNotFound
			}
			return fmt.Errorf("employees: leave type: %w", err)
		}

		var overlap bool
		err = tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM leaves
				WHERE org_id = $1 AND employee_id = $2 AND status = ANY($3)
				  AND start_date <= $5 AND end_date >= $4
			)`, orgID, employeeID, []string{LeavePending, LeaveApproved}, req.start, req.end).Scan(&overlap)
		if err != nil {
			return fmt.Errorf("employees: leave overlap: %w", err)
		}
		if overlap {
			return ErrLeaveOverlap
		}

		holidays, err := masterdata.NewRepository(tx).HolidayDates(ctx, orgID, req.start, req.end)
		if err != nil {
			return err
		}
		days := BusinessDays(req.start, req.end, holidays)
		if days == 0 {
			return ErrNoWorkingDays
		}

		if allowance > 0 {
			var used int
			err = tx.QueryRow(ctx, `
				SELECT COALESCE(SUM(days), 0) FROM leaves
				WHERE org_id = $1 AND employee_id = $2 AND leave_type_id = $3 AND status = ANY($4)
				  AND EXTRACT(YEAR FROM start_date) = $5`,
				orgID, employeeID, req.LeaveTypeID, []string{LeavePending, LeaveApproved}, req.start.Year()).Scan(&used)
			if err != nil {
				return fmt.Errorf("employees: leave usage: %w", err)
			}
			if used+days > allowance {
				return apperr.Invalidf("leave exceeds the remaining allowance of %d days", max(allowance-used, 0))
			}
		}

		id := uuid.NewString()
		_, err = tx.Exec(ctx, `
			INSERT INTO leaves (id, org_id, employee_id, leave_type_id, start_date, end_date, days, reason, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending')`,
			id, orgID, employeeID, req.LeaveTypeID, req.start, req.end, days, req.Reason)
		if err != nil {
			return fmt.Errorf("employees: insert leave: %w", database.Classify(err))
		}
		out, err = getLeave(ctx, tx, orgID, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListForEmployee pages an employee's leave requests, newest first.
func (r *LeaveRepository) ListForEmployee(ctx context.Context, orgID, employeeID, status string, params database.ListParams) ([]*Leave, int64, error) {
	where := database.NewWhere("l.org_id", orgID)
	where.Add("l.employee_id = ?", employeeID)
	if status != "" {
		where.Add("l.status = ?", status)
	}

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM leaves l`+where.SQL(), where.Args()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("employees: count leaves: %w", err)
	}
	query := leaveSelect + where.SQL() +
		` ORDER BY ` + params.OrderBy(leaveSortColumns, "l.start_date DESC") + ` LIMIT ` + where.Next(1) + ` OFFSET ` + where.Next(2)
	rows, err := r.pool.Query(ctx, query, append(where.Args(), params.Limit, params.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("employees: list leaves: %w", err)
	}
	defer rows.Close()

	var out []*Leave
	for rows.Next() {
		l, err := scanLeave(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("employees: scan leave: %w", err)
		}
		out = append(out, l)
	}
	return out, total, rows.Err()
}

// Decide applies approve, reject or cancel to a pending request.
func (r *LeaveRepository) Decide(ctx context.Context, orgID, id, action, actorID string, req *DecisionRequest) (*Leave, error) {
	to, ok := leaveTransitions[action]
	if !ok {
		return nil, apperr.NotFound("unknown leave action")
	}
	var actor *string
	if actorID != "" {
		actor = &actorID
	}
	var note *string
	if req != nil {
		note = req.Note
	}
	var out *Leave
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var status string
		err := tx.QueryRow(ctx, `SELECT status FROM leaves WHERE id = $1 AND org_id = $2 FOR UPDATE`, id, orgID).Scan(&status)
		if err != nil {
			if database.IsNoRows(err) {
				return ErrLeaveNotFound
			}
			return fmt.Errorf("employees: lock leave: %w", err)
		}
		if status != LeavePending {
			return apperr.Conflictf("cannot %s a leave request that is %s", action, status)
		}
		tag, err := tx.Exec(ctx, `
			UPDATE leaves SET status = $3, decided_by = $4, decided_at = $5, decision_note = $6, updated_at = now()
			WHERE id = $1 AND org_id = $2 AND status = 'pending'`,
			id, orgID, to, actor, time.Now().UTC(), note)
		if err != nil {
			return fmt.Errorf("employees: decide leave: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return apperr.Conflictf("cannot %s a leave request that is no longer pending", action)
		}
		out, err = getLeave(ctx, tx, orgID, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func validLeaveStatus(s string) bool {
	return leaveStatuses[strings.ToLower(s)]
}
