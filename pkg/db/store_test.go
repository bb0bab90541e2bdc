package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_SQLiteRunsMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "test.db")

	database, err := Open(Config{Driver: "sqlite", DSN: path})
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(database) })

	for _, table := range []string{"conversations", "messages", "uploaded_files", "sessions"} {
		assert.True(t, database.Migrator().HasTable(table), "missing table %s", table)
	}

	// Reopening applies no migration twice.
	require.NoError(t, Close(database))
	again, err := Open(Config{Driver: "sqlite", DSN: path})
	require.NoError(t, err)
	require.NoError(t, Close(again))
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle", DSN: "x"})
	assert.Error(t, err)
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "a.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", sqliteDSN("a.db"))
	assert.Equal(t, "a.db?mode=rwc&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", sqliteDSN("a.db?mode=rwc"))
	assert.Equal(t, "a.db?_pragma=foreign_keys(1)", sqliteDSN("a.db?_pragma=foreign_keys(1)"))
}
