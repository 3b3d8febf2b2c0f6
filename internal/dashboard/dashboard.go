// Package dashboard aggregates the figures shown on the clinic home screen.
package dashboard

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/wolfman30/clinicdesk/internal/apperr"
	"github.com/wolfman30/clinicdesk/internal/http/httpx"
	"github.com/wolfman30/clinicdesk/internal/settings"
	"github.com/wolfman30/clinicdesk/pkg/logging"
)

// Summary is the response of GET /api/v1/dashboard/summary.
type Summary struct {
	OrgID                   string           `json:"org_id"`
	Date                    string           `json:"date"`
	Timezone                string           `json:"timezone"`
	Currency                string           `json:"currency"`
	Patients                int64            `json:"patients"`
	ActiveEmployees         int64            `json:"active_employees"`
	AppointmentsToday       map[string]int64 `json:"appointments_today"`
	VisitsInProgress        int64            `json:"visits_in_progress"`
	PendingLeaves           int64            `json:"pending_leaves"`
	OutstandingBalanceCents int64            `json:"outstanding_balance_cents"`
	RevenueMonthCents       int64            `json:"revenue_month_cents"`
}

// statsDB is the subset of the pool used by Repository.
type statsDB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Repository runs the summary queries.
type Repository struct {
	db statsDB
}

func NewRepository(db statsDB) *Repository {
	if db == nil {
		panic("dashboard: database required")
	}
	return &Repository{db: db}
}

// Window is the day and month, in the clinic's timezone, the summary covers.
type Window struct {
	DayStart, DayEnd     time.Time
	MonthStart, MonthEnd time.Time
}

// WindowFor returns the local day and month containing day.
func WindowFor(day time.Time, loc *time.Location) Window {
	local := day.In(loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	monthStart := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	return Window{
		DayStart:   dayStart,
		DayEnd:     dayStart.AddDate(0, 0, 1),
		MonthStart: monthStart,
		MonthEnd:   monthStart.AddDate(0, 1, 0),
	}
}

func (r *Repository) Summary(ctx context.Context, orgID string, win Window) (*Summary, error) {
	s := &Summary{OrgID: orgID, AppointmentsToday: map[string]int64{}}

	counts := []struct {
		name  string
		query string
		args  []any
		dst   *int64
	}{
		{"patients", `SELECT COUNT(*) FROM patients WHERE org_id = $1 AND status = 'active'`, nil, &s.Patients},
		{"employees", `SELECT COUNT(*) FROM employees WHERE org_id = $1 AND status = 'active'`, nil, &s.ActiveEmployees},
		{"visits", `SELECT COUNT(*) FROM visits WHERE org_id = $1 AND status = 'in_progress'`, nil, &s.VisitsInProgress},
		{"leaves", `SELECT COUNT(*) FROM leaves WHERE org_id = $1 AND status = 'pending'`, nil, &s.PendingLeaves},
		{"outstanding", `SELECT COALESCE(SUM(total_cents - paid_cents), 0) FROM invoices WHERE org_id = $1 AND status IN ('issued', 'partially_paid')`, nil, &s.OutstandingBalanceCents},
		{"revenue", `SELECT COALESCE(SUM(amount_cents), 0) FROM payments WHERE org_id = $1 AND paid_at >= $2 AND paid_at < $3`,
			[]any{win.MonthStart, win.MonthEnd}, &s.RevenueMonthCents},
	}
	for _, c := range counts {
		if err := r.db.QueryRow(ctx, c.query, append([]any{orgID}, c.args...)...).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("dashboard: %s: %w", c.name, err)
		}
	}

	rows, err := r.db.Query(ctx, `
		SELECT status, COUNT(*) FROM appointments
		WHERE org_id = $1 AND starts_at >= $2 AND starts_at < $3
		GROUP BY status`, orgID, win.DayStart, win.DayEnd)
	if err != nil {
		return nil, fmt.Errorf("dashboard: appointments: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("dashboard: scan appointments: %w", err)
		}
		s.AppointmentsToday[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dashboard: appointments: %w", err)
	}
	return s, nil
}

// Handler serves GET /api/v1/dashboard/summary?date=YYYY-MM-DD.
type Handler struct {
	repo     *Repository
	settings settings.Reader
	logger   *logging.Logger
	now      func() time.Time
}

func NewHandler(repo *Repository, cfg settings.Reader, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{repo: repo, settings: cfg, logger: logger, now: time.Now}
}

func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	orgID, err := httpx.OrgID(r)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	cfg := settings.Default(orgID)
	if h.settings != nil {
		if cfg, err = h.settings.Get(r.Context(), orgID); err != nil {
			httpx.WriteError(w, r, h.logger, err)
			return
		}
	}
	loc := cfg.Location()

	day := h.now()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.ParseInLocation("2006-01-02", raw, loc)
		if err != nil {
			httpx.WriteError(w, r, h.logger, apperr.Invalid("date must be YYYY-MM-DD"))
			return
		}
		day = parsed
	}
	win := WindowFor(day, loc)

	summary, err := h.repo.Summary(r.Context(), orgID, win)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	summary.Date = win.DayStart.Format("2006-01-02")
	summary.Timezone = loc.String()
	summary.Currency = cfg.Currency
	httpx.WriteJSON(w, http.StatusOK, summary)
}
