package auth

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/clinicdesk/internal/database"
)

var userCols = []string{"id", "org_id", "email", "full_name", "employee_id", "active", "password_hash", "created_at"}

func TestUserRepositoryGetByEmail(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE lower(email) = lower($1)`)).
		WithArgs("ann@clinic.test").
		WillReturnRows(pgxmock.NewRows(userCols).AddRow("user-1", "org-1", "ann@clinic.test", "Ann", nil, true, "hash", now))

	repo := NewUserRepository(mock)
	user, err := repo.GetByEmail(context.Background(), "ann@clinic.test")
	require.NoError(t, err)
	assert.Equal(t, "org-1", user.OrgID)
	assert.Nil(t, user.EmployeeID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryGetByIDNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`FROM users WHERE id = \$1 AND org_id = \$2`).
		WithArgs("user-9", "org-1").
		WillReturnRows(pgxmock.NewRows(userCols))

	_, err = NewUserRepository(mock).GetByID(context.Background(), "org-1", "user-9")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserRepositoryListPaged(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM users WHERE org_id = $1 AND (email ILIKE $2 OR full_name ILIKE $2)`)).
		WithArgs("org-1", "%ann%").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1)))
	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY full_name ASC LIMIT $3 OFFSET $4`)).
		WithArgs("org-1", "%ann%", 10, 10).
		WillReturnRows(pgxmock.NewRows(userCols).AddRow("user-1", "org-1", "ann@clinic.test", "Ann", nil, true, "hash", time.Now()))

	users, total, err := NewUserRepository(mock).List(context.Background(), "org-1", database.ListParams{Page: 2, Limit: 10, Search: "ann"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, users, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositorySetActiveMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("UPDATE users SET active").
		WithArgs("user-1", "org-1", false).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = NewUserRepository(mock).SetActive(context.Background(), "org-1", "user-1", false)
	assert.ErrorIs(t, err, ErrUserNotFound)
}
