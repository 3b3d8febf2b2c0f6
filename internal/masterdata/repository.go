package masterdata

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/wolfman30/clinicdesk/internal/apperr"
	"github.com/wolfman30/clinicdesk/internal/database"
)

var (
	ErrAppointmentTypeNotFound = apperr.NotFound("appointment type not found")
	ErrCancelReasonNotFound    = apperr.NotFound("cancel reason not found")
	ErrLeaveTypeNotFound       = apperr.NotFound("leave type not found")
	ErrHolidayNotFound         = apperr.NotFound("holiday not found")
)

const (
	appointmentTypeColumns = `id, org_id, name, description, duration_minutes, price_cents, color, active, created_at, updated_at`
	cancelReasonColumns    = `id, org_id, name, description, active, created_at, updated_at`
	leaveTypeColumns       = `id, org_id, name, description, days_per_year, paid, active, created_at, updated_at`
	holidayColumns         = `id, org_id, name, date, recurring, created_at, updated_at`
)

var (
	nameSort    = map[string]string{"name": "name", "created_at": "created_at"}
	holidaySort = map[string]string{"name": "name", "date": "date", "created_at": "created_at"}
)

// Repository stores reference data in Postgres.
type Repository struct {
	db database.Querier
}

func NewRepository(db database.Querier) *Repository {
	if db == nil {
		panic("masterdata: database required")
	}
	return &Repository{db: db}
}

func scanAppointmentType(row pgx.Row) (*AppointmentType, error) {
	var t AppointmentType
	if err := row.Scan(&t.ID, &t.OrgID, &t.Name, &t.Description, &t.DurationMinutes, &t.PriceCents, &t.Color, &t.Active, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func scanCancelReason(row pgx.Row) (*CancelReason, error) {
	var c CancelReason
	if err := row.Scan(&c.ID, &c.OrgID, &c.Name, &c.Description, &c.Active, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func scanLeaveType(row pgx.Row) (*LeaveType, error) {
	var l LeaveType
	if err := row.Scan(&l.ID, &l.OrgID, &l.Name, &l.Description, &l.DaysPerYear, &l.Paid, &l.Active, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	return &l, nil
}

func scanHoliday(row pgx.Row) (*Holiday, error) {
	var h Holiday
	if err := row.Scan(&h.ID, &h.OrgID, &h.Name, &h.Date, &h.Recurring, &h.CreatedAt, &h.UpdatedAt); err != nil {
		return nil, err
	}
	return &h, nil
}

// listQuery runs the count and page queries shared by every reference table.
func listQuery[T any](ctx context.Context, db database.Querier, table, columns string, where *database.Where,
	orderBy string, params database.ListParams, scan func(pgx.Row) (*T, error)) ([]*T, int64, error) {
	var total int64
	if err := db.QueryRow(ctx, `SELECT COUNT(*) FROM `+table+where.SQL(), where.Args()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("masterdata: count %s: %w", table, err)
	}
	query := `SELECT ` + columns + ` FROM ` + table + where.SQL() +
		` ORDER BY ` + orderBy + ` LIMIT ` + where.Next(1) + ` OFFSET ` + where.Next(2)
	rows, err := db.Query(ctx, query, append(where.Args(), params.Limit, params.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("masterdata: list %s: %w", table, err)
	}
	defer rows.Close()

	var out []*T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("masterdata: scan %s: %w", table, err)
		}
		out = append(out, item)
	}
	return out, total, rows.Err()
}

func nameWhere(orgID string, activeOnly bool, params database.ListParams) *database.Where {
	where := database.NewWhere("org_id", orgID)
	if activeOnly {
		where.Add("active = ?", true)
	}
	if params.Search != "" {
		where.AddSearch(database.ContainsPattern(params.Search), "name")
	}
	return where
}

func (r *Repository) deleteFrom(ctx context.Context, table, orgID, id string, notFound error) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM `+table+` WHERE id = $1 AND org_id = $2`, id, orgID)
	if err != nil {
		return fmt.Errorf("masterdata: delete %s: %w", table, database.ClassifyDelete(err))
	}
	if tag.RowsAffected() == 0 {
		return notFound
	}
	return nil
}

func (r *Repository) ListAppointmentTypes(ctx context.Context, orgID string, activeOnly bool, params database.ListParams) ([]*AppointmentType, int64, error) {
	return listQuery(ctx, r.db, "appointment_types", appointmentTypeColumns, nameWhere(orgID, activeOnly, params),
		params.OrderBy(nameSort, "name ASC"), params, scanAppointmentType)
}

func (r *Repository) GetAppointmentType(ctx context.Context, orgID, id string) (*AppointmentType, error) {
	t, err := scanAppointmentType(r.db.QueryRow(ctx, `SELECT `+appointmentTypeColumns+` FROM appointment_types WHERE id = $1 AND org_id = $2`, id, orgID))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, ErrAppointmentTypeNotFound
		}
		return nil, fmt.Errorf("masterdata: select appointment type: %w", err)
	}
	return t, nil
}

func (r *Repository) CreateAppointmentType(ctx context.Context, orgID string, req *AppointmentTypeRequest) (*AppointmentType, error) {
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	var price int64
	if req.PriceCents != nil {
		price = *req.PriceCents
	}
	t, err := scanAppointmentType(r.db.QueryRow(ctx, `
		INSERT INTO appointment_types (id, org_id, name, description, duration_minutes, price_cents, color, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+appointmentTypeColumns,
		uuid.NewString(), orgID, *req.Name, req.Description, *req.DurationMinutes, price, req.Color, active))
	if err != nil {
		return nil, fmt.Errorf("masterdata: insert appointment type: %w", database.Classify(err))
	}
	return t, nil
}

func (r *Repository) UpdateAppointmentType(ctx context.Context, orgID, id string, req *AppointmentTypeRequest) (*AppointmentType, error) {
	t, err := scanAppointmentType(r.db.QueryRow(ctx, `
		UPDATE appointment_types SET
			name = COALESCE($3, name),
			description = COALESCE($4, description),
			duration_minutes = COALESCE($5, duration_minutes),
			price_cents = COALESCE($6, price_cents),
			color = COALESCE($7, color),
			active = COALESCE($8, active),
			updated_at = now()
		WHERE id = $1 AND org_id = $2
		RETURNING `+appointmentTypeColumns,
		id, orgID, req.Name, req.Description, req.DurationMinutes, req.PriceCents, req.Color, req.Active))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, ErrAppointmentTypeNotFound
		}
		return nil, fmt.Errorf("masterdata: update appointment type: %w", database.Classify(err))
	}
	return t, nil
}

func (r *Repository) DeleteAppointmentType(ctx context.Context, orgID, id string) error {
	return r.deleteFrom(ctx, "appointment_types", orgID, id, ErrAppointmentTypeNotFound)
}

func (r *Repository) ListCancelReasons(ctx context.Context, orgID string, activeOnly bool, params database.ListParams) ([]*CancelReason, int64, error) {
	return listQuery(ctx, r.db, "cancel_reasons", cancelReasonColumns, nameWhere(orgID, activeOnly, params),
		params.OrderBy(nameSort, "name ASC"), params, scanCancelReason)
}

func (r *Repository) CreateCancelReason(ctx context.Context, orgID string, req *CancelReasonRequest) (*CancelReason, error) {
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	c, err := scanCancelReason(r.db.QueryRow(ctx, `
		INSERT INTO cancel_reasons (id, org_id, name, description, active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+cancelReasonColumns,
		uuid.NewString(), orgID, *req.Name, req.Description, active))
	if err != nil {
		return nil, fmt.Errorf("masterdata: insert cancel reason: %w", database.Classify(err))
	}
	return c, nil
}

func (r *Repository) UpdateCancelReason(ctx context.Context, orgID, id string, req *CancelReasonRequest) (*CancelReason, error) {
	c, err := scanCancelReason(r.db.QueryRow(ctx, `
		UPDATE cancel_reasons SET
			name = COALESCE($3, name),
			description = COALESCE($4, description),
			active = COALESCE($5, active),
			updated_at = now()
		WHERE id = $1 AND org_id = $2
		RETURNING `+cancelReasonColumns,
		id, orgID, req.Name, req.Description, req.Active))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, ErrCancelReasonNotFound
		}
		return nil, fmt.Errorf("masterdata: update cancel reason: %w", database.Classify(err))
	}
	return c, nil
}

func (r *Repository) DeleteCancelReason(ctx context.Context, orgID, id string) error {
	return r.deleteFrom(ctx, "cancel_reasons", orgID, id, ErrCancelReasonNotFound)
}

func (r *Repository) ListLeaveTypes(ctx context.Context, orgID string, activeOnly bool, params database.ListParams) ([]*LeaveType, int64, error) {
	return listQuery(ctx, r.db, "leave_types", leaveTypeColumns, nameWhere(orgID, activeOnly, params),
		params.OrderBy(nameSort, "name ASC"), params, scanLeaveType)
}

func (r *Repository) CreateLeaveType(ctx context.Context, orgID string, req *LeaveTypeRequest) (*LeaveType, error) {
	active, paid := true, true
	if req.Active != nil {
		active = *req.Active
	}
	if req.Paid != nil {
		paid = *req.Paid
	}
	l, err := scanLeaveType(r.db.QueryRow(ctx, `
		INSERT INTO leave_types (id, org_id, name, description, days_per_year, paid, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+leaveTypeColumns,
		uuid.NewString(), orgID, *req.Name, req.Description, *req.DaysPerYear, paid, active))
	if err != nil {
		return nil, fmt.Errorf("masterdata: insert leave type: %w", database.Classify(err))
	}
	return l, nil
}

func (r *Repository) UpdateLeaveType(ctx context.Context, orgID, id string, req *LeaveTypeRequest) (*LeaveType, error) {
	l, err := scanLeaveType(r.db.QueryRow(ctx, `
		UPDATE leave_types SET
			name = COALESCE($3, name),
			description = COALESCE($4, description),
			days_per_year = COALESCE($5, days_per_year),
			paid = COALESCE($6, paid),
			active = COALESCE($7, active),
			updated_at = now()
		WHERE id = $1 AND org_id = $2
		RETURNING `+leaveTypeColumns,
		id, orgID, req.Name, req.Description, req.DaysPerYear, req.Paid, req.Active))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, ErrLeaveTypeNotFound
		}
		return nil, fmt.Errorf("masterdata: update leave type: %w", database.Classify(err))
	}
	return l, nil
}

func (r *Repository) DeleteLeaveType(ctx context.Context, orgID, id string) error {
	return r.deleteFrom(ctx, "leave_types", orgID, id, ErrLeaveTypeNotFound)
}

// ListHolidays filters by calendar year when year > 0. Recurring holidays
// match every year.
func (r *Repository) ListHolidays(ctx context.Context, orgID string, year int, params database.ListParams) ([]*Holiday, int64, error) {
	where := database.NewWhere("org_id", orgID)
	if year > 0 {
		where.Add("(recurring OR EXTRACT(YEAR FROM date) = ?)", year)
	}
	if params.Search != "" {
		where.AddSearch(database.ContainsPattern(params.Search), "name")
	}
	return listQuery(ctx, r.db, "holidays", holidayColumns, where,
		params.OrderBy(holidaySort, "date ASC"), params, scanHoliday)
}

func (r *Repository) CreateHoliday(ctx context.Context, orgID string, req *HolidayRequest) (*Holiday, error) {
	recurring := false
	if req.Recurring != nil {
		recurring = *req.Recurring
	}
	h, err := scanHoliday(r.db.QueryRow(ctx, `
		INSERT INTO holidays (id, org_id, name, date, recurring)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+holidayColumns,
		uuid.NewString(), orgID, *req.Name, *req.date, recurring))
	if err != nil {
		return nil, fmt.Errorf("masterdata: insert holiday: %w", database.Classify(err))
	}
	return h, nil
}

func (r *Repository) UpdateHoliday(ctx context.Context, orgID, id string, req *HolidayRequest) (*Holiday, error) {
	h, err := scanHoliday(r.db.QueryRow(ctx, `
		UPDATE holidays SET
			name = COALESCE($3, name),
			date = COALESCE($4, date),
			recurring = COALESCE($5, recurring),
			updated_at = now()
		WHERE id = $1 AND org_id = $2
		RETURNING `+holidayColumns,
		id, orgID, req.Name, req.date, req.Recurring))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, ErrHolidayNotFound
		}
		return nil, fmt.Errorf("masterdata: update holiday: %w", database.Classify(err))
	}
	return h, nil
}

func (r *Repository) DeleteHoliday(ctx context.Context, orgID, id string) error {
	return r.deleteFrom(ctx, "holidays", orgID, id, ErrHolidayNotFound)
}

// HolidayDates returns the holiday dates falling in [from, to], expanding
// recurring holidays into each year of the range.
func (r *Repository) HolidayDates(ctx context.Context, orgID string, from, to time.Time) ([]time.Time, error) {
	rows, err := r.db.Query(ctx, `
		SELECT date, recurring FROM holidays
		WHERE org_id = $1 AND (recurring OR date BETWEEN $2 AND $3)`, orgID, from, to)
	if err != nil {
		return nil, fmt.Errorf("masterdata: holiday dates: %w", err)
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var d time.Time
		var recurring bool
		if err := rows.Scan(&d, &recurring); err != nil {
			return nil, fmt.Errorf("masterdata: scan holiday date: %w", err)
		}
		if !recurring {
			dates = append(dates, d)
			continue
		}
		for y := from.Year(); y <= to.Year(); y++ {
			occurrence := time.Date(y, d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
			if !occurrence.Before(dayStart(from)) && !occurrence.After(dayStart(to)) {
				dates = append(dates, occurrence)
			}
		}
	}
	return dates, rows.Err()
}

func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
