package employees

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
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/clinicdesk/internal/database"
	"github.com/wolfman30/clinicdesk/internal/tenancy"
	"github.com/wolfman30/clinicdesk/pkg/logging"
)

const employeeID = "22222222-2222-2222-2222-222222222222"

var employeeCols = []string{"id", "org_id", "employee_number", "first_name", "last_name", "email", "phone",
	"department", "position", "hire_date", "status", "created_at", "updated_at"}

func employeeRow(rows *pgxmock.Rows) *pgxmock.Rows {
	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	dept := "Cardiology"
	return rows.AddRow(employeeID, "org-1", "E0001", "Grace", "Hopper", "grace@clinic.test", nil,
		&dept, nil, nil, StatusActive, now, now)
}

func TestCreateRequestValidate(t *testing.T) {
	req := &CreateRequest{FirstName: "Grace", LastName: "Hopper", Email: " Grace@Clinic.Test ", HireDate: "2024-09-01"}
	require.NoError(t, req.Validate())
	assert.Equal(t, "grace@clinic.test", req.Email)
	require.NotNil(t, req.hireDate)

	assert.Error(t, (&CreateRequest{FirstName: "Grace", LastName: "Hopper", Email: "nope"}).Validate())
	assert.Error(t, (&CreateRequest{FirstName: "Grace", LastName: "Hopper", Email: "g@c.test", HireDate: "09/01/2024"}).Validate())
	assert.Error(t, (&CreateRequest{LastName: "Hopper", Email: "g@c.test"}).Validate())
}

func TestUpdateRequestValidateStatus(t *testing.T) {
	status := "On_Leave"
	req := &UpdateRequest{Status: &status}
	require.NoError(t, req.Validate())
	assert.Equal(t, StatusOnLeave, *req.Status)

	bad := "retired"
	assert.Error(t, (&UpdateRequest{Status: &bad}).Validate())
}

func TestRepositoryListByDepartment(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM employees WHERE org_id = $1 AND lower(department) = lower($2) AND (first_name ILIKE $3 OR last_name ILIKE $3 OR employee_number ILIKE $3 OR email ILIKE $3)`)).
		WithArgs("org-1", "cardiology", "%hop%").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1)))
	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY last_name ASC, first_name ASC LIMIT $4 OFFSET $5`)).
		WithArgs("org-1", "cardiology", "%hop%", 20, 0).
		WillReturnRows(employeeRow(pgxmock.NewRows(employeeCols)))

	items, total, err := NewRepository(mock).List(context.Background(), "org-1", Filter{Department: "cardiology"}, database.ListParams{Search: "hop"}.Normalize())
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, items, 1)
	assert.Equal(t, "Cardiology", *items[0].Department)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryDeleteMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("DELETE FROM employees").WithArgs(employeeID, "org-1").WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err = NewRepository(mock).Delete(context.Background(), "org-1", employeeID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepositoryUpdate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	position := "Attending"
	req := &UpdateRequest{Position: &position}
	require.NoError(t, req.Validate())
	mock.ExpectQuery("UPDATE employees SET").
		WithArgs(employeeID, "org-1", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), &position, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(employeeRow(pgxmock.NewRows(employeeCols)))

	e, err := NewRepository(mock).Update(context.Background(), "org-1", employeeID, req)
	require.NoError(t, err)
	assert.Equal(t, "E0001", e.EmployeeNumber)
	require.NoError(t, mock.ExpectationsWereMet())
}

type memoryStore struct {
	employees map[string]*Employee
}

func (m *memoryStore) Create(_ context.Context, orgID string, req *CreateRequest) (*Employee, error) {
	e := &Employee{ID: employeeID, OrgID: orgID, FirstName: req.FirstName, LastName: req.LastName, Email: req.Email, Status: StatusActive}
	m.employees[e.ID] = e
	return e, nil
}

func (m *memoryStore) Get(_ context.Context, _, id string) (*Employee, error) {
	if e, ok := m.employees[id]; ok {
		return e, nil
	}
	return nil, ErrNotFound
}

func (m *memoryStore) List(context.Context, string, Filter, database.ListParams) ([]*Employee, int64, error) {
	return nil, 0, nil
}

func (m *memoryStore) Update(_ context.Context, _, id string, _ *UpdateRequest) (*Employee, error) {
	return m.Get(context.Background(), "", id)
}

func (m *memoryStore) Delete(_ context.Context, _, id string) error {
	if _, ok := m.employees[id]; !ok {
		return ErrNotFound
	}
	delete(m.employees, id)
	return nil
}

func serve(h *Handler, method, path, body string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(tenancy.WithOrgID(req.Context(), "org-1")))
		})
	})
	r.Get("/employees", h.List)
	r.Post("/employees", h.Create)
	r.Get("/employees/{id}", h.Get)
	r.Patch("/employees/{id}", h.Update)
	r.Delete("/employees/{id}", h.Delete)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rr
}

func TestHandlerFlow(t *testing.T) {
	h := NewHandler(&memoryStore{employees: map[string]*Employee{}}, nil, logging.New("error"))

	rr := serve(h, http.MethodGet, "/employees", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"data":[],"meta":{"total":0,"page":1,"limit":20}}`, rr.Body.String())

	rr = serve(h, http.MethodPost, "/employees", `{"first_name":"Grace","last_name":"Hopper","email":"grace@clinic.test"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = serve(h, http.MethodPatch, "/employees/"+employeeID, `{"status":"fired"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(h, http.MethodDelete, "/employees/"+employeeID, "")
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = serve(h, http.MethodDelete, "/employees/"+employeeID, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
