package persistence_test

import (
	"context"
	"testing"

	"github.com/goliatone/go-identity/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationDialect(t *testing.T) {
	assert.Equal(t, "pg", persistence.Config{Driver: "postgres"}.MigrationDialect())
	assert.Equal(t, "pg", persistence.Config{Driver: "PGX"}.MigrationDialect())
	assert.Equal(t, "sqlite", persistence.Config{Driver: "sqlite"}.MigrationDialect())
	assert.Equal(t, "sqlite", persistence.Config{}.MigrationDialect())
}

func TestOpenSQLite(t *testing.T) {
	db, err := persistence.Open(persistence.Config{Driver: persistence.DriverSQLite, DSN: "file::memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var n int
	require.NoError(t, db.NewRaw("SELECT 1").Scan(context.Background(), &n))
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, db.DB.Stats().MaxOpenConnections)
}
