package rbac

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
	"github.com/wolfman30/clinicdesk/internal/apperr"
	"github.com/wolfman30/clinicdesk/internal/tenancy"
	"github.com/wolfman30/clinicdesk/pkg/logging"
)

func TestRoleRequestValidate(t *testing.T) {
	req := RoleRequest{Name: "  Nurse ", Permissions: []string{VisitsWrite, PatientsRead, VisitsWrite}}
	require.NoError(t, req.Validate())
	assert.Equal(t, "nurse", req.Name)
	assert.Equal(t, []string{PatientsRead, VisitsWrite}, req.Permissions)

	bad := RoleRequest{Name: "nurse", Permissions: []string{"patients.fly"}}
	assert.True(t, apperr.Is(bad.Validate(), apperr.KindInvalid))

	empty := RoleRequest{}
	assert.True(t, apperr.Is(empty.Validate(), apperr.KindInvalid))
}

func TestCatalogIsSortedAndKnown(t *testing.T) {
	perms := Catalog()
	require.NotEmpty(t, perms)
	for i := 1; i < len(perms); i++ {
		prev, cur := perms[i-1], perms[i]
		assert.True(t, prev.Group < cur.Group || (prev.Group == cur.Group && prev.Code < cur.Code))
	}
	for _, code := range AllCodes() {
		assert.True(t, Known(code))
	}
	assert.False(t, Known("root"))
}

func TestUserAccessMergesPermissions(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM user_roles ur").
		WithArgs("user-1", "org-1").
		WillReturnRows(pgxmock.NewRows([]string{"name", "codes"}).
			AddRow("doctor", []string{VisitsWrite, PatientsRead}).
			AddRow("receptionist", []string{PatientsRead, AppointmentsWrite}))

	roles, perms, err := NewRepository(mock).UserAccess(context.Background(), "org-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"doctor", "receptionist"}, roles)
	assert.Equal(t, []string{AppointmentsWrite, PatientsRead, VisitsWrite}, perms)
}

func TestUserAccessAdminGetsCatalog(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM user_roles ur").
		WithArgs("user-1", "org-1").
		WillReturnRows(pgxmock.NewRows([]string{"name", "codes"}).AddRow(RoleAdmin, []string{}))

	_, perms, err := NewRepository(mock).UserAccess(context.Background(), "org-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, AllCodes(), perms)
}

func TestSeedDefaultRolesSkipsExisting(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	for _, def := range defaultRoles {
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("org-1", def.Name).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	}

	created, err := NewRepository(mock).SeedDefaultRoles(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Equal(t, 0, created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSeedDefaultRolesCreatesMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("org-1", RoleAdmin).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO roles").
		WithArgs(pgxmock.AnyArg(), "org-1", RoleAdmin, "Full access to every feature", true).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("DELETE FROM role_permissions").
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE r.id = $1 AND r.org_id = $2")).
		WithArgs(pgxmock.AnyArg(), "org-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "org_id", "name", "description", "system", "created_at", "permissions"}).
			AddRow("role-1", "org-1", RoleAdmin, "Full access to every feature", true, time.Now(), []string{}))
	mock.ExpectCommit()
	for _, def := range defaultRoles[1:] {
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("org-1", def.Name).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	}

	created, err := NewRepository(mock).SeedDefaultRoles(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Equal(t, 1, created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteSystemRoleRejected(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT system FROM roles").
		WithArgs("role-1", "org-1").
		WillReturnRows(pgxmock.NewRows([]string{"system"}).AddRow(true))
	mock.ExpectRollback()

	err = NewRepository(mock).DeleteRole(context.Background(), "org-1", "role-1")
	assert.ErrorIs(t, err, ErrSystemRole)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetUserRolesRejectsForeignRoles(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("user-1", "org-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM roles")).
		WithArgs("org-1", []string{"r1", "r2"}).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	err = NewRepository(mock).SetUserRoles(context.Background(), "org-1", "user-1", []string{"r1", "r2", "r1"})
	assert.ErrorIs(t, err, ErrUnknownRoleIDs)
	require.NoError(t, mock.ExpectationsWereMet())
}

type memoryStore struct {
	roles map[string]*Role
}

func (m *memoryStore) ListRoles(context.Context, string) ([]*Role, error) {
	var out []*Role
	for _, r := range m.roles {
		out = append(out, r)
	}
	return out, nil
}

func (m *memoryStore) GetRole(_ context.Context, _, id string) (*Role, error) {
	if r, ok := m.roles[id]; ok {
		return r, nil
	}
	return nil, ErrRoleNotFound
}

func (m *memoryStore) CreateRole(_ context.Context, orgID string, req *RoleRequest) (*Role, error) {
	r := &Role{ID: "11111111-1111-1111-1111-111111111111", OrgID: orgID, Name: req.Name, Permissions: req.Permissions}
	m.roles[r.ID] = r
	return r, nil
}

func (m *memoryStore) UpdateRole(_ context.Context, _, id string, _ *RoleRequest) (*Role, error) {
	r, ok := m.roles[id]
	if !ok {
		return nil, ErrRoleNotFound
	}
	if r.System {
		return nil, ErrSystemRole
	}
	return r, nil
}

func (m *memoryStore) DeleteRole(context.Context, string, string) error { return nil }

func (m *memoryStore) UserRoles(context.Context, string, string) ([]*Role, error) { return nil, nil }

func (m *memoryStore) SetUserRoles(context.Context, string, string, []string) error { return nil }

func serve(t *testing.T, h *Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(tenancy.WithOrgID(req.Context(), "org-1")))
		})
	})
	r.Get("/roles", h.ListRoles)
	r.Post("/roles", h.CreateRole)
	r.Patch("/roles/{id}", h.UpdateRole)
	r.Get("/permissions", h.ListPermissions)
	r.Get("/users/{id}/roles", h.UserRoles)

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestHandlerCreateAndUpdateRole(t *testing.T) {
	store := &memoryStore{roles: map[string]*Role{
		"22222222-2222-2222-2222-222222222222": {ID: "22222222-2222-2222-2222-222222222222", Name: RoleAdmin, System: true},
	}}
	h := NewHandler(store, logging.New("error"))

	rr := serve(t, h, http.MethodPost, "/roles", `{"name":"Nurse","permissions":["visits.write"]}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Contains(t, rr.Body.String(), `"name":"nurse"`)

	rr = serve(t, h, http.MethodPost, "/roles", `{"name":"Nurse","permissions":["launch.missiles"]}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(t, h, http.MethodPatch, "/roles/22222222-2222-2222-2222-222222222222", `{"name":"admin"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = serve(t, h, http.MethodPatch, "/roles/not-a-uuid", `{"name":"admin"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlerListEndpoints(t *testing.T) {
	h := NewHandler(&memoryStore{roles: map[string]*Role{}}, logging.New("error"))

	rr := serve(t, h, http.MethodGet, "/roles", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"data":[],"meta":{"total":0,"page":1,"limit":0}}`, rr.Body.String())

	rr = serve(t, h, http.MethodGet, "/permissions", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"code":"patients.read"`)

	rr = serve(t, h, http.MethodGet, "/users/33333333-3333-3333-3333-333333333333/roles", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"data":[]}`, rr.Body.String())
}
