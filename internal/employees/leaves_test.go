package employees

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/clinicdesk/internal/apperr"
	"github.com/wolfman30/clinicdesk/internal/database"
	"github.com/wolfman30/clinicdesk/internal/tenancy"
	"github.com/wolfman30/clinicdesk/pkg/logging"
)

const (
	leaveID     = "44444444-4444-4444-4444-444444444444"
	leaveTypeID = "55555555-5555-5555-5555-555555555555"
)

var leaveCols = []string{"id", "org_id", "employee_id", "leave_type_id", "name", "start_date", "end_date", "days", "reason",
	"status", "decided_by", "decided_at", "decision_note", "created_at", "updated_at"}

func day(s string) time.Time {
	d, _ := time.Parse("2006-01-02", s)
	return d
}

func leaveRow(status string, days int) *pgxmock.Rows {
	now := time.Date(2026, 2, 20, 9, 0, 0, 0, time.UTC)
	return pgxmock.NewRows(leaveCols).AddRow(leaveID, "org-1", employeeID, leaveTypeID, "Annual leave",
		day("2026-03-02"), day("2026-03-06"), days, nil, status, nil, nil, nil, now, now)
}

func TestBusinessDays(t *testing.T) {
	tests := []struct {
		name     string
		start    string
		end      string
		holidays []time.Time
		want     int
	}{
		{"single weekday", "2026-03-02", "2026-03-02", nil, 1},
		{"full week", "2026-03-02", "2026-03-08", nil, 5},
		{"weekend only", "2026-03-07", "2026-03-08", nil, 0},
		{"holiday excluded", "2026-03-02", "2026-03-06", []time.Time{day("2026-03-04")}, 4},
		{"holiday on weekend ignored", "2026-03-02", "2026-03-08", []time.Time{day("2026-03-07")}, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BusinessDays(day(tt.start), day(tt.end), tt.holidays))
		})
	}
}

func TestLeaveRequestValidate(t *testing.T) {
	tests := []struct {
		name string
		req  LeaveRequest
		msg  string
	}{
		{"bad type", LeaveRequest{LeaveTypeID: "annual"}, "leave_type_id must be a valid id"},
		{"bad start", LeaveRequest{LeaveTypeID: leaveTypeID, StartDate: "03/02/2026"}, "start_date must be YYYY-MM-DD"},
		{"reversed", LeaveRequest{LeaveTypeID: leaveTypeID, StartDate: "2026-03-06", EndDate: "2026-03-02"}, "end_date cannot be before start_date"},
		{"spans years", LeaveRequest{LeaveTypeID: leaveTypeID, StartDate: "2026-12-28", EndDate: "2027-01-04"}, "a leave request cannot span calendar years"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			require.Error(t, err)
			assert.Equal(t, tt.msg, err.Error())
		})
	}
}

func expectLeaveChecks(mock pgxmock.PgxPoolIface, used int) {
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status FROM employees").
		WithArgs(employeeID, "org-1").
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow(StatusActive))
	mock.ExpectQuery("SELECT days_per_year FROM leave_types").
		WithArgs(leaveTypeID, "org-1").
		WillReturnRows(pgxmock.NewRows([]string{"days_per_year"}).AddRow(20))
	mock.ExpectQuery("FROM leaves").
		WithArgs("org-1", employeeID, []string{LeavePending, LeaveApproved}, day("2026-03-02"), day("2026-03-06")).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("SELECT date, recurring FROM holidays").
		WillReturnRows(pgxmock.NewRows([]string{"date", "recurring"}).AddRow(day("2026-03-04"), false))
	mock.ExpectQuery("SELECT COALESCE\\(SUM\\(days\\), 0\\) FROM leaves").
		WithArgs("org-1", employeeID, leaveTypeID, []string{LeavePending, LeaveApproved}, 2026).
		WillReturnRows(pgxmock.NewRows([]string{"sum"}).AddRow(used))
}

func validLeaveRequest(t *testing.T) *LeaveRequest {
	req := &LeaveRequest{LeaveTypeID: leaveTypeID, StartDate: "2026-03-02", EndDate: "2026-03-06"}
	require.NoError(t, req.Validate())
	return req
}

func TestLeaveCreateCountsWorkingDays(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	expectLeaveChecks(mock, 14)
	mock.ExpectExec("INSERT INTO leaves").
		WithArgs(pgxmock.AnyArg(), "org-1", employeeID, leaveTypeID, day("2026-03-02"), day("2026-03-06"), 4, (*string)(nil)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("FROM leaves l").WillReturnRows(leaveRow(LeavePending, 4))
	mock.ExpectCommit()

	leave, err := NewLeaveRepository(mock).Create(context.Background(), "org-1", employeeID, validLeaveRequest(t))
	require.NoError(t, err)
	assert.Equal(t, 4, leave.Days)
	assert.Equal(t, LeavePending, leave.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLeaveCreateExceedsAllowance(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	expectLeaveChecks(mock, 18)
	mock.ExpectRollback()

	_, err = NewLeaveRepository(mock).Create(context.Background(), "org-1", employeeID, validLeaveRequest(t))
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindInvalid))
	assert.Equal(t, "leave exceeds the remaining allowance of 2 days", err.Error())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLeaveCreateRejectsTerminatedEmployee(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status FROM employees").
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow(StatusTerminated))
	mock.ExpectRollback()

	_, err = NewLeaveRepository(mock).Create(context.Background(), "org-1", employeeID, validLeaveRequest(t))
	assert.ErrorIs(t, err, ErrEmployeeInactive)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLeaveDecide(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewLeaveRepository(mock)
	actor := "user-9"

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status FROM leaves").
		WithArgs(leaveID, "org-1").
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow(LeavePending))
	mock.ExpectExec("UPDATE leaves SET status").
		WithArgs(leaveID, "org-1", LeaveApproved, &actor, pgxmock.AnyArg(), (*string)(nil)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery("FROM leaves l").WillReturnRows(leaveRow(LeaveApproved, 4))
	mock.ExpectCommit()

	leave, err := repo.Decide(context.Background(), "org-1", leaveID, LeaveActionApprove, actor, &DecisionRequest{})
	require.NoError(t, err)
	assert.Equal(t, LeaveApproved, leave.Status)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status FROM leaves").
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow(LeaveApproved))
	mock.ExpectRollback()

	_, err = repo.Decide(context.Background(), "org-1", leaveID, LeaveActionCancel, actor, nil)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.Equal(t, "cannot cancel a leave request that is approved", err.Error())
	require.NoError(t, mock.ExpectationsWereMet())
}

type leaveStub struct {
	actor  string
	action string
}

func (s *leaveStub) Create(_ context.Context, _, employeeID string, req *LeaveRequest) (*Leave, error) {
	return &Leave{ID: leaveID, EmployeeID: employeeID, LeaveTypeID: req.LeaveTypeID, Days: 3, Status: LeavePending}, nil
}

func (s *leaveStub) ListForEmployee(context.Context, string, string, string, database.ListParams) ([]*Leave, int64, error) {
	return []*Leave{{ID: leaveID, Status: LeavePending}}, 1, nil
}

func (s *leaveStub) Decide(_ context.Context, _, id, action, actorID string, _ *DecisionRequest) (*Leave, error) {
	s.actor, s.action = actorID, action
	return &Leave{ID: id, Status: leaveTransitions[action]}, nil
}

func serveLeaves(h *LeaveHandler, method, path, body string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := tenancy.WithUserID(tenancy.WithOrgID(req.Context(), "org-1"), "user-9")
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Get("/employees/{id}/leaves", h.List)
	r.Post("/employees/{id}/leaves", h.Create)
	r.Post("/leaves/{id}/{action}", h.Decide)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rr
}

func TestLeaveHandler(t *testing.T) {
	store := &leaveStub{}
	h := NewLeaveHandler(store, nil, logging.New("error"))

	rr := serveLeaves(h, http.MethodPost, "/employees/"+employeeID+"/leaves",
		`{"leave_type_id":"`+leaveTypeID+`","start_date":"2026-03-02","end_date":"2026-03-04"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), `"status":"pending"`)

	rr = serveLeaves(h, http.MethodGet, "/employees/"+employeeID+"/leaves?status=bogus", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serveLeaves(h, http.MethodGet, "/employees/"+employeeID+"/leaves", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"total":1`)

	rr = serveLeaves(h, http.MethodPost, "/leaves/"+leaveID+"/approve", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "user-9", store.actor)
	assert.Contains(t, rr.Body.String(), `"status":"approved"`)

	rr = serveLeaves(h, http.MethodPost, "/leaves/"+leaveID+"/escalate", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
