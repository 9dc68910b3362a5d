package db

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMigrateURL(t *testing.T) {
	require.Equal(t, "pgx5://u:p@localhost:5432/app?sslmode=disable", MigrateURL("postgres://u:p@localhost:5432/app?sslmode=disable"))
	require.Equal(t, "pgx5://localhost/app", MigrateURL("postgresql://localhost/app"))
	require.Equal(t, "pgx5://already", MigrateURL("pgx5://already"))
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	ups, err := fs.Glob(migrationsFS, "migrations/*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(migrationsFS, "migrations/*.down.sql")
	require.NoError(t, err)
	require.NotEmpty(t, ups)
	require.Len(t, downs, len(ups))
}

func TestMoney(t *testing.T) {
	v, err := Money("12.50")
	require.NoError(t, err)
	require.Equal(t, "12.5", v.String())

	v, err = Money("")
	require.NoError(t, err)
	require.True(t, v.IsZero())

	_, err = Money("twelve")
	require.Error(t, err)
}
