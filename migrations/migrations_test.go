package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEveryUpHasDown(t *testing.T) {
	names, err := fs.Glob(FS, "*.up.sql")
	require.NoError(t, err)
	require.NotEmpty(t, names)

	for _, up := range names {
		down := strings.TrimSuffix(up, ".up.sql") + ".down.sql"
		_, err := fs.Stat(FS, down)
		assert.NoError(t, err, "missing %s", down)
	}
}

func TestSourceDriverReadsVersions(t *testing.T) {
	src, err := iofs.New(FS, ".")
	require.NoError(t, err)
	defer src.Close()

	first, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), first)

	count := 1
	for v := first; ; count++ {
		next, err := src.Next(v)
		if err != nil {
			break
		}
		v = next
	}
	assert.Equal(t, 6, count)
}

func TestTenantTablesCarryOrgID(t *testing.T) {
	tables := []string{"patients", "employees", "appointments", "visits", "invoices", "payments", "leaves", "files",
		"appointment_types", "cancel_reasons", "leave_types", "holidays", "roles", "users"}
	var schema strings.Builder
	names, err := fs.Glob(FS, "*.up.sql")
	require.NoError(t, err)
	for _, name := range names {
		data, err := fs.ReadFile(FS, name)
		require.NoError(t, err)
		schema.Write(data)
	}

	for _, table := range tables {
		idx := strings.Index(schema.String(), "CREATE TABLE IF NOT EXISTS "+table+" (")
		require.GreaterOrEqual(t, idx, 0, table)
		body := schema.String()[idx:]
		body = body[:strings.Index(body, ");")]
		assert.Contains(t, body, "org_id UUID NOT NULL", table)
	}
}
