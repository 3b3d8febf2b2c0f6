package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/clinicdesk/internal/auth"
	"github.com/wolfman30/clinicdesk/internal/database"
	"github.com/wolfman30/clinicdesk/internal/observability/metrics"
	"github.com/wolfman30/clinicdesk/internal/patients"
	"github.com/wolfman30/clinicdesk/internal/rbac"
	"github.com/wolfman30/clinicdesk/internal/search"
	"github.com/wolfman30/clinicdesk/pkg/logging"
)

type patientStore struct {
	patients.Store
	orgs []string
}

func (s *patientStore) List(_ context.Context, orgID string, _ patients.Filter, _ database.ListParams) ([]*patients.Patient, int64, error) {
	s.orgs = append(s.orgs, orgID)
	return []*patients.Patient{{ID: "p-1", OrgID: orgID, FirstName: "Ada", LastName: "Park"}}, 1, nil
}

type noSearch struct{}

func (noSearch) Search(context.Context, string, string, int) (*search.Result, error) {
	return &search.Result{Patients: []search.PatientHit{}, Employees: []search.EmployeeHit{}}, nil
}

type testRouter struct {
	http.Handler
	issuer   *auth.TokenIssuer
	patients *patientStore
	registry *prometheus.Registry
}

func newTestRouter(t *testing.T, checks map[string]Pinger) *testRouter {
	t.Helper()
	logger := logging.New("error")
	reg := prometheus.NewRegistry()
	issuer := auth.NewTokenIssuer("test-secret", "clinicdesk", time.Hour)
	store := &patientStore{}

	h := New(&Config{
		Logger:         logger,
		HTTPMetrics:    metrics.NewHTTPMetrics(reg),
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Health:         NewHealthHandler(checks, logger),
		Tokens:         issuer,
		Patients:       patients.NewHandler(store, nil, logger),
		Search:         search.NewHandler(noSearch{}, 10, logger),
	})
	return &testRouter{Handler: h, issuer: issuer, patients: store, registry: reg}
}

func (tr *testRouter) do(t *testing.T, method, path string, roles, perms []string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if roles != nil || perms != nil {
		token, _, err := tr.issuer.Issue(&auth.User{ID: "user-1", OrgID: "org-7", Email: "a@clinic.test"}, roles, perms)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	tr.ServeHTTP(rr, req)
	return rr
}

func TestRouterHealthEndpoint(t *testing.T) {
	router := newTestRouter(t, map[string]Pinger{
		"database": PingFunc(func(context.Context) error { return nil }),
	})
	rr := router.do(t, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok","database":"ok"}`, rr.Body.String())

	router = newTestRouter(t, map[string]Pinger{
		"redis": PingFunc(func(context.Context) error { return errors.New("dial tcp: refused") }),
	})
	rr = router.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.JSONEq(t, `{"status":"degraded","redis":"unavailable"}`, rr.Body.String())
}

func TestRouterRequiresToken(t *testing.T) {
	router := newTestRouter(t, nil)
	rr := router.do(t, http.MethodGet, "/api/v1/patients", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Empty(t, router.patients.orgs)
}

func TestRouterChecksPermissions(t *testing.T) {
	router := newTestRouter(t, nil)

	rr := router.do(t, http.MethodGet, "/api/v1/patients", []string{"receptionist"}, []string{rbac.AppointmentsRead})
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Contains(t, rr.Body.String(), "missing permission patients.read")

	rr = router.do(t, http.MethodGet, "/api/v1/patients", []string{"receptionist"}, []string{rbac.PatientsRead})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, []string{"org-7"}, router.patients.orgs)

	rr = router.do(t, http.MethodGet, "/api/v1/patients", []string{rbac.RoleAdmin}, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRouterGlobalSearchNeedsOnlyAuthentication(t *testing.T) {
	router := newTestRouter(t, nil)
	rr := router.do(t, http.MethodGet, "/api/v1/global-search?search=%20", []string{"nurse"}, []string{})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"patients":[],"employees":[]}`, rr.Body.String())
}

func TestRouterUnmountedRoutes(t *testing.T) {
	router := newTestRouter(t, nil)
	rr := router.do(t, http.MethodGet, "/api/v1/invoices", []string{rbac.RoleAdmin}, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRouterRecordsRouteMetrics(t *testing.T) {
	router := newTestRouter(t, nil)
	router.do(t, http.MethodGet, "/api/v1/patients", []string{rbac.RoleAdmin}, nil)

	rr := router.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Regexp(t, `clinicdesk_http_requests_total\{method="GET",route="/api/v1/patients/?",status="200"\} 1`, rr.Body.String())
}
