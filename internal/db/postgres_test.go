package db

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationNames_SortedSQLOnly(t *testing.T) {
	fsys := fstest.MapFS{
		"0002_more.sql": {Data: []byte("SELECT 1")},
		"0001_auth.sql": {Data: []byte("SELECT 1")},
		"README.md":     {Data: []byte("docs")},
		"embed.go":      {Data: []byte("package migrations")},
		"nested/x.sql":  {Data: []byte("SELECT 1")},
	}

	names, err := migrationNames(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_auth.sql", "0002_more.sql"}, names)
}

func TestMigrationsFS_Embedded(t *testing.T) {
	names, err := migrationNames(MigrationsFS(""))
	require.NoError(t, err)
	assert.Contains(t, names, "0001_auth.sql")
}
