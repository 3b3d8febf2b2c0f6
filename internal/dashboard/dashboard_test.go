package dashboard

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/clinicdesk/internal/settings"
	"github.com/wolfman30/clinicdesk/internal/tenancy"
	"github.com/wolfman30/clinicdesk/pkg/logging"
)

func TestWindowForUsesClinicTimezone(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 02:30 UTC on March 1st is still February 28th in New York.
	win := WindowFor(time.Date(2026, 3, 1, 2, 30, 0, 0, time.UTC), loc)
	assert.Equal(t, time.Date(2026, 2, 28, 0, 0, 0, 0, loc), win.DayStart)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, loc), win.DayEnd)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, loc), win.MonthStart)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, loc), win.MonthEnd)
}

func expectCounts(mock pgxmock.PgxPoolIface, win Window) {
	count := func(n int64) *pgxmock.Rows { return pgxmock.NewRows([]string{"count"}).AddRow(n) }
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM patients`).WithArgs("org-1").WillReturnRows(count(120))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM employees`).WithArgs("org-1").WillReturnRows(count(14))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM visits`).WithArgs("org-1").WillReturnRows(count(2))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM leaves`).WithArgs("org-1").WillReturnRows(count(3))
	mock.ExpectQuery(`SUM\(total_cents - paid_cents\)`).WithArgs("org-1").WillReturnRows(count(45000))
	mock.ExpectQuery(`SUM\(amount_cents\), 0\) FROM payments`).
		WithArgs("org-1", win.MonthStart, win.MonthEnd).WillReturnRows(count(812500))
	mock.ExpectQuery(`FROM appointments`).
		WithArgs("org-1", win.DayStart, win.DayEnd).
		WillReturnRows(pgxmock.NewRows([]string{"status", "count"}).
			AddRow("scheduled", int64(6)).
			AddRow("checked_in", int64(1)))
}

func TestRepositorySummary(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	win := WindowFor(time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC), time.UTC)
	expectCounts(mock, win)

	s, err := NewRepository(mock).Summary(context.Background(), "org-1", win)
	require.NoError(t, err)
	assert.Equal(t, int64(120), s.Patients)
	assert.Equal(t, int64(14), s.ActiveEmployees)
	assert.Equal(t, int64(45000), s.OutstandingBalanceCents)
	assert.Equal(t, int64(812500), s.RevenueMonthCents)
	assert.Equal(t, map[string]int64{"scheduled": 6, "checked_in": 1}, s.AppointmentsToday)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositorySummaryError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`FROM patients`).WillReturnError(errors.New("timeout"))
	_, err = NewRepository(mock).Summary(context.Background(), "org-1", Window{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dashboard: patients")
}

type fixedSettings struct{ cfg *settings.Settings }

func (f fixedSettings) Get(context.Context, string) (*settings.Settings, error) { return f.cfg, nil }

func TestHandlerSummary(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cfg := settings.Default("org-1")
	cfg.Currency = "EUR"
	h := NewHandler(NewRepository(mock), fixedSettings{cfg}, logging.New("error"))

	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	expectCounts(mock, WindowFor(day, time.UTC))

	req := httptest.NewRequest(http.MethodGet, "/dashboard/summary?date=2026-03-02", nil)
	req = req.WithContext(tenancy.WithOrgID(req.Context(), "org-1"))
	rr := httptest.NewRecorder()
	h.Summary(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), `"date":"2026-03-02"`)
	assert.Contains(t, rr.Body.String(), `"currency":"EUR"`)
	assert.Contains(t, rr.Body.String(), `"appointments_today":{"checked_in":1,"scheduled":6}`)
	require.NoError(t, mock.ExpectationsWereMet())

	req = httptest.NewRequest(http.MethodGet, "/dashboard/summary?date=tomorrow", nil)
	req = req.WithContext(tenancy.WithOrgID(req.Context(), "org-1"))
	rr = httptest.NewRecorder()
	h.Summary(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
