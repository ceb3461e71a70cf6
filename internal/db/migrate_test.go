package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingVersionsSorted(t *testing.T) {
	for _, dir := range []string{"migrations/postgres", "migrations/sqlite"} {
		versions, err := pendingVersions(dir)
		require.NoError(t, err)
		require.NotEmpty(t, versions)
		assert.IsIncreasing(t, versions)
	}
}

func TestRunSQLiteMigrationsIdempotent(t *testing.T) {
	ctx := context.Background()
	conn, err := OpenSQLite(ctx, "file::memory:")
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, RunSQLiteMigrations(ctx, conn))
	require.NoError(t, RunSQLiteMigrations(ctx, conn))

	var applied int
	require.NoError(t, conn.GetContext(ctx, &applied, "SELECT COUNT(*) FROM schema_migrations"))
	versions, err := pendingVersions("migrations/sqlite")
	require.NoError(t, err)
	assert.Equal(t, len(versions), applied)

	var settingsRows int
	require.NoError(t, conn.GetContext(ctx, &settingsRows, "SELECT COUNT(*) FROM store_settings"))
	assert.Equal(t, 1, settingsRows)
}
