package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskmaster/taskflow/internal/infrastructure/config"
)

func TestOpenSQLite(t *testing.T) {
	db, err := Open(config.StorageConfig{Driver: config.DriverSQLite, Path: t.TempDir()})
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, "sqlite", db.Driver())
	assert.NoError(t, db.HealthCheck(context.Background()))

	version, dirty, err := db.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	// re-running is a no-op
	assert.NoError(t, db.Migrate())

	var count int
	require.NoError(t, db.DB.Get(&count, `SELECT COUNT(*) FROM kv_store`))
	assert.Equal(t, 0, count)

	info := db.GetConnectionInfo()
	assert.Equal(t, "sqlite", info["driver"])
}

func TestOpenRejectsFileDriver(t *testing.T) {
	_, err := Open(config.StorageConfig{Driver: config.DriverFile, Path: t.TempDir()})
	assert.Error(t, err)
}
