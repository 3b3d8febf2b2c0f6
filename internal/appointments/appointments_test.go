package appointments

import (
	"context"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/clinicdesk/internal/apperr"
	"github.com/wolfman30/clinicdesk/internal/database"
	"github.com/wolfman30/clinicdesk/internal/observability/metrics"
	"github.com/wolfman30/clinicdesk/internal/settings"
	"github.com/wolfman30/clinicdesk/internal/tenancy"
	"github.com/wolfman30/clinicdesk/pkg/logging"
)

const (
	apptID     = "33333333-3333-3333-3333-333333333333"
	patientID  = "11111111-1111-1111-1111-111111111111"
	employeeID = "44444444-4444-4444-4444-444444444444"
	typeID     = "22222222-2222-2222-2222-222222222222"
	reasonID   = "55555555-5555-5555-5555-555555555555"
)

var apptCols = []string{"id", "org_id", "patient_id", "employee_id", "appointment_type_id", "starts_at", "ends_at", "status",
	"notes", "cancel_reason_id", "cancel_note", "confirmed_at", "checked_in_at", "completed_at", "cancelled_at",
	"created_at", "updated_at", "patient_name", "employee_name", "type_name"}

var start = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func apptRow(status string) *pgxmock.Rows {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	return pgxmock.NewRows(apptCols).AddRow(apptID, "org-1", patientID, employeeID, nil, start, start.Add(30*time.Minute), status,
		nil, nil, nil, nil, nil, nil, nil, now, now, "Ada Park", "Grace Hopper", nil)
}

func ptr[T any](v T) *T { return &v }

func TestCreateRequestValidate(t *testing.T) {
	req := &CreateRequest{PatientID: patientID, EmployeeID: employeeID, AppointmentTypeID: ptr(typeID), StartsAt: start}
	require.NoError(t, req.Validate())

	end := start.Add(-time.Minute)
	tests := []struct {
		name string
		req  CreateRequest
		msg  string
	}{
		{"missing patient", CreateRequest{EmployeeID: employeeID, StartsAt: start}, "patient_id is required"},
		{"bad employee", CreateRequest{PatientID: patientID, EmployeeID: "x", StartsAt: start}, "employee_id must be a valid id"},
		{"missing start", CreateRequest{PatientID: patientID, EmployeeID: employeeID}, "starts_at is required"},
		{"end before start", CreateRequest{PatientID: patientID, EmployeeID: employeeID, StartsAt: start, EndsAt: &end}, "ends_at must be after starts_at"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			require.Error(t, err)
			assert.Equal(t, tt.msg, err.Error())
		})
	}
}

func TestCancelRequestValidate(t *testing.T) {
	assert.Error(t, (&CancelRequest{Reason: ptr("  ")}).Validate())
	assert.Error(t, (&CancelRequest{CancelReasonID: ptr("nope")}).Validate())
	assert.NoError(t, (&CancelRequest{Reason: ptr("Feeling better")}).Validate())
	assert.NoError(t, (&CancelRequest{CancelReasonID: ptr(reasonID)}).Validate())
}

func expectLock(mock pgxmock.PgxPoolIface, status string) {
	mock.ExpectQuery(`SELECT status FROM appointments WHERE id = \$1 AND org_id = \$2 FOR UPDATE`).
		WithArgs(apptID, "org-1").
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow(status))
}

func TestTransitionConfirm(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	expectLock(mock, StatusScheduled)
	mock.ExpectExec(regexp.QuoteMeta(`WHERE id = $1 AND org_id = $2 AND status = ANY($4)`)).
		WithArgs(apptID, "org-1", StatusConfirmed, []string{StatusScheduled}, (*string)(nil), (*string)(nil)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery("FROM appointments a").WithArgs(apptID, "org-1").WillReturnRows(apptRow(StatusConfirmed))
	mock.ExpectExec("INSERT INTO outbox").
		WithArgs(pgxmock.AnyArg(), "org-1", "appointment:"+apptID, "appointment.confirmed", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	a, err := NewRepository(mock).Transition(context.Background(), "org-1", apptID, ActionConfirm, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, a.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionRejectsInvalidPriorState(t *testing.T) {
	tests := []struct {
		action string
		from   string
		msg    string
	}{
		{ActionConfirm, StatusCompleted, "cannot confirm an appointment that is completed"},
		{ActionConfirm, StatusConfirmed, "cannot confirm an appointment that is confirmed"},
		{ActionComplete, StatusScheduled, "cannot complete an appointment that is scheduled"},
		{ActionCheckIn, StatusNoShow, "cannot check in an appointment that is no show"},
		{ActionNoShow, StatusCheckedIn, "cannot mark as no-show an appointment that is checked in"},
	}
	for _, tt := range tests {
		t.Run(tt.action+" from "+tt.from, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			mock.ExpectBegin()
			expectLock(mock, tt.from)
			mock.ExpectRollback()

			_, err = NewRepository(mock).Transition(context.Background(), "org-1", apptID, tt.action, nil)
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindConflict))
			assert.Equal(t, tt.msg, err.Error())
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestTransitionCancelLooksUpReason(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cancel := &CancelRequest{CancelReasonID: ptr(reasonID)}
	mock.ExpectBegin()
	expectLock(mock, StatusConfirmed)
	mock.ExpectQuery("SELECT name FROM cancel_reasons").
		WithArgs(reasonID, "org-1").
		WillReturnRows(pgxmock.NewRows([]string{"name"}).AddRow("Weather"))
	mock.ExpectExec("cancelled_at = now()").
		WithArgs(apptID, "org-1", StatusCancelled, []string{StatusScheduled, StatusConfirmed}, cancel.CancelReasonID, (*string)(nil)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery("FROM appointments a").WithArgs(apptID, "org-1").WillReturnRows(apptRow(StatusCancelled))
	mock.ExpectExec("INSERT INTO outbox").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	a, err := NewRepository(mock).Transition(context.Background(), "org-1", apptID, ActionCancel, cancel)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, a.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionCancelRequiresReason(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()
	_, err = NewRepository(mock).Transition(context.Background(), "org-1", apptID, ActionCancel, nil)
	assert.True(t, apperr.Is(err, apperr.KindInvalid))
}

func TestTransitionNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(apptID, "org-1").WillReturnRows(pgxmock.NewRows([]string{"status"}))
	mock.ExpectRollback()

	_, err = NewRepository(mock).Transition(context.Background(), "org-1", apptID, ActionConfirm, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateRejectsOverlap(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	end := start.Add(30 * time.Minute)
	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").
		WithArgs("appointments:org-1:" + employeeID).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("org-1", employeeID, pgxmock.AnyArg(), active, start, end).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	req := &CreateRequest{PatientID: patientID, EmployeeID: employeeID, StartsAt: start, EndsAt: &end}
	_, err = NewRepository(mock).Create(context.Background(), "org-1", req)
	assert.ErrorIs(t, err, ErrOverlap)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryListFilters(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	from := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE a.org_id = $1 AND a.status = $2 AND a.employee_id = $3 AND a.starts_at >= $4 AND a.starts_at < $5`)).
		WithArgs("org-1", StatusScheduled, employeeID, from, to).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1)))
	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY a.starts_at ASC LIMIT $6 OFFSET $7`)).
		WithArgs("org-1", StatusScheduled, employeeID, from, to, 20, 0).
		WillReturnRows(apptRow(StatusScheduled))

	items, total, err := NewRepository(mock).List(context.Background(), "org-1",
		Filter{Status: StatusScheduled, EmployeeID: employeeID, From: &from, To: &to}, database.ListParams{}.Normalize())
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, items, 1)
	assert.Equal(t, "Ada Park", items[0].PatientName)
}

type fixedSettings struct{ cfg *settings.Settings }

func (f fixedSettings) Get(context.Context, string) (*settings.Settings, error) { return f.cfg, nil }

func TestServiceCreateEnforcesWorkingHours(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cfg := settings.Default("org-1")
	cfg.EnforceWorkingHours = true
	svc := NewService(NewRepository(mock), fixedSettings{cfg}, nil, logging.New("error"))

	// 07:00 on a Monday is before opening.
	early := time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT duration_minutes FROM appointment_types").
		WithArgs(typeID, "org-1").
		WillReturnRows(pgxmock.NewRows([]string{"duration_minutes"}).AddRow(45))

	req := &CreateRequest{PatientID: patientID, EmployeeID: employeeID, AppointmentTypeID: ptr(typeID), StartsAt: early}
	_, err = svc.Create(context.Background(), "org-1", req)
	assert.ErrorIs(t, err, errOutsideHours)
	require.NotNil(t, req.EndsAt)
	assert.Equal(t, early.Add(45*time.Minute), *req.EndsAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestServiceCreateRejectsOffSlotStart(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cfg := settings.Default("org-1")
	cfg.AppointmentSlotMinutes = 30
	svc := NewService(NewRepository(mock), fixedSettings{cfg}, nil, logging.New("error"))

	end := start.Add(25 * time.Minute)
	req := &CreateRequest{PatientID: patientID, EmployeeID: employeeID, StartsAt: start.Add(10 * time.Minute), EndsAt: &end}
	_, err = svc.Create(context.Background(), "org-1", req)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindInvalid))
	assert.Equal(t, "starts_at must fall on a 30-minute slot boundary", err.Error())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestServiceCreateUntypedUsesSlotLength(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cfg := settings.Default("org-1")
	cfg.AppointmentSlotMinutes = 45
	cfg.EnforceWorkingHours = true
	svc := NewService(NewRepository(mock), fixedSettings{cfg}, nil, logging.New("error"))

	// 16:30 plus a 45 minute slot runs past the 17:00 close.
	late := time.Date(2026, 3, 2, 16, 30, 0, 0, time.UTC)
	req := &CreateRequest{PatientID: patientID, EmployeeID: employeeID, StartsAt: late}
	require.NoError(t, req.Validate())
	_, err = svc.Create(context.Background(), "org-1", req)
	assert.ErrorIs(t, err, errOutsideHours)
	require.NotNil(t, req.EndsAt)
	assert.Equal(t, late.Add(45*time.Minute), *req.EndsAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestServiceTransitionMetrics(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	reg := prometheus.NewRegistry()
	svc := NewService(NewRepository(mock), nil, metrics.NewDomainMetrics(reg), logging.New("error"))

	mock.ExpectBegin()
	expectLock(mock, StatusCompleted)
	mock.ExpectRollback()

	_, err = svc.Transition(context.Background(), "org-1", apptID, ActionConfirm, nil)
	require.Error(t, err)

	expected := `
# HELP clinicdesk_workflow_status_transitions_total Status transitions by entity, target status and outcome
# TYPE clinicdesk_workflow_status_transitions_total counter
clinicdesk_workflow_status_transitions_total{entity="appointment",outcome="rejected",to="confirmed"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "clinicdesk_workflow_status_transitions_total"))
}

type stubStore struct {
	Store
	status string
	last   *CancelRequest
}

func (s *stubStore) Transition(_ context.Context, _, id, action string, cancel *CancelRequest) (*Appointment, error) {
	t := transitions[action]
	if s.status != t.from[0] {
		return nil, apperr.Conflictf("cannot %s an appointment that is %s", t.verb, s.status)
	}
	s.status, s.last = t.to, cancel
	return &Appointment{ID: id, Status: t.to}, nil
}

func serve(h *Handler, method, path, body string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(tenancy.WithOrgID(req.Context(), "org-1")))
		})
	})
	r.Get("/appointments", h.List)
	r.Post("/appointments/{id}/{action}", h.Transition)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rr
}

func TestHandlerTransitions(t *testing.T) {
	store := &stubStore{status: StatusScheduled}
	h := NewHandler(store, nil, logging.New("error"))

	rr := serve(h, http.MethodPost, "/appointments/"+apptID+"/confirm", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), `"status":"confirmed"`)

	rr = serve(h, http.MethodPost, "/appointments/"+apptID+"/confirm", "")
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, rr.Body.String(), "cannot confirm an appointment that is confirmed")

	rr = serve(h, http.MethodPost, "/appointments/"+apptID+"/teleport", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = serve(h, http.MethodPost, "/appointments/"+apptID+"/cancel", `{}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlerCancel(t *testing.T) {
	store := &stubStore{status: StatusScheduled}
	h := NewHandler(store, nil, logging.New("error"))

	rr := serve(h, http.MethodPost, "/appointments/"+apptID+"/cancel", `{"reason":"  Travelling "}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.NotNil(t, store.last)
	assert.Equal(t, "Travelling", *store.last.Reason)
}

func TestHandlerListRejectsBadFilter(t *testing.T) {
	h := NewHandler(&stubStore{}, nil, logging.New("error"))

	rr := serve(h, http.MethodGet, "/appointments?status=lost", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = serve(h, http.MethodGet, "/appointments?from=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = serve(h, http.MethodGet, "/appointments?from=2026-03-05&to=2026-03-01", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
