package database_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/classboard/core"
	"github.com/trezcool/classboard/storage/database"
)

func TestSQLiteDSN(t *testing.T) {
	dsn := database.SQLiteDSN("/tmp/x.db")
	assert.Contains(t, dsn, "file:/tmp/x.db?")
	assert.Contains(t, dsn, "_txlock=immediate")
	assert.Contains(t, dsn, "_foreign_keys=on")
}

func TestOpen_UnsupportedEngine(t *testing.T) {
	for _, engine := range []string{database.EngineMemory, "mysql", ""} {
		t.Run(engine, func(t *testing.T) {
			conf := core.NewTestConfig()
			conf.Database.Engine = engine
			_, err := database.Open(conf)
			assert.ErrorIs(t, err, database.ErrUnsupportedEngine)
		})
	}
}

func TestMigrate(t *testing.T) {
	conf := core.NewTestConfig()
	conf.Database.Engine = database.EngineSQLite
	conf.Database.Path = filepath.Join(t.TempDir(), "nested", "classboard.db")

	db, err := database.Open(conf)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	require.NoError(t, database.Migrate(db))
	require.NoError(t, database.Migrate(db), "migrating twice is a no-op")

	for _, table := range []string{"account", "complaint", "note"} {
		var count int
		require.NoError(t, db.Get(&count, "SELECT COUNT(*) FROM "+table))
		assert.Zero(t, count)
	}

	require.NoError(t, database.Run(db, "down"))
	var count int
	assert.Error(t, db.Get(&count, "SELECT COUNT(*) FROM account"), "down drops the tables")
}

func TestCreateIfNotExist_SkipsNonPostgres(t *testing.T) {
	conf := core.NewTestConfig()
	conf.Database.Engine = database.EngineSQLite
	assert.NoError(t, database.CreateIfNotExist(conf))
}
