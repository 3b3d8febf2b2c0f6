package search

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/clinicdesk/internal/observability/metrics"
	"github.com/wolfman30/clinicdesk/internal/tenancy"
	"github.com/wolfman30/clinicdesk/pkg/logging"
)

var (
	patientCols  = []string{"id", "patient_number", "first_name", "last_name", "date_of_birth", "phone", "email"}
	employeeCols = []string{"id", "employee_number", "first_name", "last_name", "email", "department", "position"}
)

func TestClampLimit(t *testing.T) {
	for in, want := range map[int]int{-3: 1, 0: 1, 1: 1, 10: 10, 50: 50, 51: 50, 1000: 50} {
		assert.Equal(t, want, ClampLimit(in), "limit %d", in)
	}
}

func TestSearchBlankTermSkipsQueries(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	svc := NewService(NewRepository(mock), nil, logging.New("error"))
	for _, term := range []string{"", "   ", "\t\n"} {
		res, err := svc.Search(context.Background(), "org-1", term, 10)
		require.NoError(t, err)
		assert.Empty(t, res.Patients)
		assert.Empty(t, res.Employees)
		assert.NotNil(t, res.Patients)
		assert.NotNil(t, res.Employees)
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

type fakeSource struct {
	mu       sync.Mutex
	patterns []string
	limits   []int
}

func (f *fakeSource) record(pattern string, limit int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patterns = append(f.patterns, pattern)
	f.limits = append(f.limits, limit)
}

func (f *fakeSource) Patients(_ context.Context, _, pattern string, limit int) ([]PatientHit, error) {
	f.record(pattern, limit)
	return []PatientHit{{ID: "p-1", LastName: "Lee"}, {ID: "p-2", LastName: "Moss"}}, nil
}

func (f *fakeSource) Employees(_ context.Context, _, pattern string, limit int) ([]EmployeeHit, error) {
	f.record(pattern, limit)
	return nil, nil
}

func TestSearchQueriesBothCategories(t *testing.T) {
	reg := prometheus.NewRegistry()
	src := &fakeSource{}
	svc := NewService(src, metrics.NewDomainMetrics(reg), logging.New("error"))

	res, err := svc.Search(context.Background(), "org-1", "  ann_ ", 200)
	require.NoError(t, err)
	require.Len(t, res.Patients, 2)
	assert.Equal(t, "Lee", res.Patients[0].LastName)
	assert.NotNil(t, res.Employees)
	assert.Empty(t, res.Employees)
	assert.Equal(t, []string{`%ann\_%`, `%ann\_%`}, src.patterns)
	assert.Equal(t, []int{50, 50}, src.limits)
	assert.Equal(t, 2, testutil.CollectAndCount(reg, "clinicdesk_search_query_latency_seconds"))
}

func TestRepositoryQueries(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewRepository(mock)

	mock.ExpectQuery("(?s)FROM patients.*ORDER BY last_name, first_name\\s+LIMIT \\$3").
		WithArgs("org-1", "%lee%", 5).
		WillReturnRows(pgxmock.NewRows(patientCols).
			AddRow("p-1", "P0001", "Ann", "Lee", nil, nil, nil))
	patients, err := repo.Patients(context.Background(), "org-1", "%lee%", 5)
	require.NoError(t, err)
	require.Len(t, patients, 1)
	assert.Equal(t, "P0001", patients[0].PatientNumber)

	mock.ExpectQuery("(?s)FROM employees.*ORDER BY last_name, first_name").
		WithArgs("org-1", "%lee%", 5).
		WillReturnRows(pgxmock.NewRows(employeeCols))
	employees, err := repo.Employees(context.Background(), "org-1", "%lee%", 5)
	require.NoError(t, err)
	assert.NotNil(t, employees)
	assert.Empty(t, employees)
	require.NoError(t, mock.ExpectationsWereMet())
}

type failingSource struct{ calls chan string }

func (f failingSource) Patients(_ context.Context, _, _ string, _ int) ([]PatientHit, error) {
	f.calls <- "patients"
	return nil, errors.New("relation \"patients\" does not exist")
}

func (f failingSource) Employees(_ context.Context, _, _ string, _ int) ([]EmployeeHit, error) {
	f.calls <- "employees"
	return []EmployeeHit{{ID: "e-1"}}, nil
}

func TestSearchFailsWhenAnyQueryFails(t *testing.T) {
	src := failingSource{calls: make(chan string, 2)}
	svc := NewService(src, nil, logging.New("error"))

	res, err := svc.Search(context.Background(), "org-1", "lee", 10)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Len(t, src.calls, 2)
}

type recordingSearcher struct {
	term  string
	limit int
	err   error
}

func (s *recordingSearcher) Search(_ context.Context, _, term string, limit int) (*Result, error) {
	s.term, s.limit = term, limit
	if s.err != nil {
		return nil, s.err
	}
	return emptyResult(), nil
}

func get(h http.Handler, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req = req.WithContext(tenancy.WithOrgID(req.Context(), "org-1"))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHandler(t *testing.T) {
	s := &recordingSearcher{}
	h := NewHandler(s, 0, logging.New("error"))

	rr := get(h, "/global-search?search=grace")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"patients":[],"employees":[]}`, rr.Body.String())
	assert.Equal(t, "grace", s.term)
	assert.Equal(t, DefaultLimit, s.limit)

	get(h, "/global-search?search=grace&limit=25")
	assert.Equal(t, 25, s.limit)

	s.err = errors.New("search: patients: connection refused")
	rr = get(h, "/global-search?search=grace")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), "internal server error")
	assert.NotContains(t, rr.Body.String(), "connection refused")
}
