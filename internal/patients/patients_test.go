package patients

import (
	"context"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/clinicdesk/internal/database"
	"github.com/wolfman30/clinicdesk/internal/tenancy"
	"github.com/wolfman30/clinicdesk/pkg/logging"
)

const patientID = "11111111-1111-1111-1111-111111111111"

var patientCols = []string{"id", "org_id", "patient_number", "first_name", "last_name", "date_of_birth", "gender",
	"phone", "email", "address", "blood_group", "allergies", "emergency_contact_name", "emergency_contact_phone",
	"notes", "status", "created_at", "updated_at"}

func patientRow(rows *pgxmock.Rows, id, first, last string) *pgxmock.Rows {
	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	email := strings.ToLower(first) + "@example.com"
	return rows.AddRow(id, "org-1", "P0001", first, last, nil, "female",
		nil, &email, nil, nil, nil, nil, nil, nil, StatusActive, now, now)
}

func TestCreateRequestValidate(t *testing.T) {
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	email := " Ada@Example.com "
	req := &CreateRequest{FirstName: " Ada ", LastName: "Park", DateOfBirth: "1990-04-12", Email: &email, Gender: "Female"}
	require.NoError(t, req.Validate(now))
	assert.Equal(t, "Ada", req.FirstName)
	assert.Equal(t, "female", req.Gender)
	assert.Equal(t, "ada@example.com", *req.Email)
	require.NotNil(t, req.dob)

	tests := []struct {
		name string
		req  CreateRequest
	}{
		{"missing names", CreateRequest{FirstName: "Ada"}},
		{"bad gender", CreateRequest{FirstName: "A", LastName: "B", Gender: "robot"}},
		{"bad dob", CreateRequest{FirstName: "A", LastName: "B", DateOfBirth: "12/04/1990"}},
		{"future dob", CreateRequest{FirstName: "A", LastName: "B", DateOfBirth: "2030-01-01"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.req.Validate(now))
		})
	}
}

func TestUpdateRequestValidate(t *testing.T) {
	blank := "  "
	assert.Error(t, (&UpdateRequest{FirstName: &blank}).Validate(time.Now()))

	status := "Inactive"
	req := &UpdateRequest{Status: &status}
	require.NoError(t, req.Validate(time.Now()))
	assert.Equal(t, StatusInactive, *req.Status)

	bad := "archived"
	assert.Error(t, (&UpdateRequest{Status: &bad}).Validate(time.Now()))
}

func TestRepositoryCreateGeneratesNumber(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	req := &CreateRequest{FirstName: "Ada", LastName: "Park"}
	require.NoError(t, req.Validate(time.Now()))

	mock.ExpectQuery("INSERT INTO patients").
		WithArgs(pgxmock.AnyArg(), "org-1", pgxmock.AnyArg(), "Ada", "Park", pgxmock.AnyArg(), "unknown",
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(patientRow(pgxmock.NewRows(patientCols), patientID, "Ada", "Park"))

	p, err := NewRepository(mock).Create(context.Background(), "org-1", req)
	require.NoError(t, err)
	assert.Equal(t, "Ada Park", p.FullName())
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Regexp(t, `^P[0-9A-F]{8}$`, newPatientNumber())
}

func TestRepositoryCreateDuplicateNumber(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	req := &CreateRequest{PatientNumber: "p-1", FirstName: "Ada", LastName: "Park"}
	require.NoError(t, req.Validate(time.Now()))
	mock.ExpectQuery("INSERT INTO patients").WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "patients_org_id_patient_number_key"})

	_, err = NewRepository(mock).Create(context.Background(), "org-1", req)
	assert.ErrorIs(t, err, database.ErrDuplicate)
}

func TestRepositoryGetNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`FROM patients WHERE id = \$1 AND org_id = \$2`).
		WithArgs(patientID, "org-1").
		WillReturnRows(pgxmock.NewRows(patientCols))

	_, err = NewRepository(mock).Get(context.Background(), "org-1", patientID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepositoryListFilters(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM patients WHERE org_id = $1 AND status = $2 AND (first_name ILIKE $3 OR last_name ILIKE $3 OR patient_number ILIKE $3 OR phone ILIKE $3 OR email ILIKE $3)`)).
		WithArgs("org-1", StatusActive, "%park%").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1)))
	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY date_of_birth DESC LIMIT $4 OFFSET $5`)).
		WithArgs("org-1", StatusActive, "%park%", 20, 0).
		WillReturnRows(patientRow(pgxmock.NewRows(patientCols), patientID, "Ada", "Park"))

	params := database.ListParams{Search: "park", Sort: "date_of_birth", Order: "desc"}.Normalize()
	items, total, err := NewRepository(mock).List(context.Background(), "org-1", Filter{Status: StatusActive}, params)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, items, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryUpdateNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("UPDATE patients SET").WillReturnRows(pgxmock.NewRows(patientCols))

	_, err = NewRepository(mock).Update(context.Background(), "org-1", patientID, &UpdateRequest{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepositoryDeleteReferenced(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("DELETE FROM patients").
		WithArgs(patientID, "org-1").
		WillReturnError(&pgconn.PgError{Code: "23503", ConstraintName: "appointments_patient_id_fkey"})

	err = NewRepository(mock).Delete(context.Background(), "org-1", patientID)
	assert.ErrorIs(t, err, database.ErrInUse)
}

func TestRepositoryPatientContact(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	email := "ada@example.com"
	mock.ExpectQuery("SELECT first_name, last_name, email FROM patients").
		WithArgs(patientID, "org-1").
		WillReturnRows(pgxmock.NewRows([]string{"first_name", "last_name", "email"}).AddRow("Ada", "Park", &email))

	name, got, err := NewRepository(mock).PatientContact(context.Background(), "org-1", patientID)
	require.NoError(t, err)
	assert.Equal(t, "Ada Park", name)
	assert.Equal(t, email, got)
}

type memoryStore struct {
	patients map[string]*Patient
	deleted  []string
}

func (m *memoryStore) Create(_ context.Context, orgID string, req *CreateRequest) (*Patient, error) {
	p := &Patient{ID: patientID, OrgID: orgID, FirstName: req.FirstName, LastName: req.LastName, Gender: req.Gender, Status: StatusActive}
	m.patients[p.ID] = p
	return p, nil
}

func (m *memoryStore) Get(_ context.Context, _, id string) (*Patient, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (m *memoryStore) List(context.Context, string, Filter, database.ListParams) ([]*Patient, int64, error) {
	var out []*Patient
	for _, p := range m.patients {
		out = append(out, p)
	}
	return out, int64(len(out)), nil
}

func (m *memoryStore) Update(_ context.Context, _, id string, req *UpdateRequest) (*Patient, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrNotFound
	}
	if req.Phone != nil {
		p.Phone = req.Phone
	}
	return p, nil
}

func (m *memoryStore) Delete(_ context.Context, _, id string) error {
	m.deleted = append(m.deleted, id)
	return nil
}

func serve(h *Handler, method, path, body string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(tenancy.WithOrgID(req.Context(), "org-1")))
		})
	})
	r.Get("/patients", h.List)
	r.Post("/patients", h.Create)
	r.Get("/patients/{id}", h.Get)
	r.Patch("/patients/{id}", h.Update)
	r.Delete("/patients/{id}", h.Delete)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rr
}

func TestHandlerCRUD(t *testing.T) {
	store := &memoryStore{patients: map[string]*Patient{}}
	h := NewHandler(store, nil, logging.New("error"))

	rr := serve(h, http.MethodPost, "/patients", `{"first_name":"Ada","last_name":"Park"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = serve(h, http.MethodGet, "/patients", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"meta":{"total":1,"page":1,"limit":20}`)

	rr = serve(h, http.MethodPatch, "/patients/"+patientID, `{"phone":"+1 555 0101"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"phone":"+1 555 0101"`)

	rr = serve(h, http.MethodDelete, "/patients/"+patientID, "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, []string{patientID}, store.deleted)
}

func TestHandlerErrors(t *testing.T) {
	h := NewHandler(&memoryStore{patients: map[string]*Patient{}}, nil, logging.New("error"))

	rr := serve(h, http.MethodPost, "/patients", `{"first_name":"Ada"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), `"message":"first_name and last_name are required"`)

	rr = serve(h, http.MethodPost, "/patients", `{"first_name":"Ada","last_name":"Park","shoe_size":9}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(h, http.MethodGet, "/patients/"+patientID, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = serve(h, http.MethodGet, "/patients/123", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
