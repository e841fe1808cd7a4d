package migrations

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/syndtr/goleveldb/leveldb"

	"github.com/energywebfoundation/worker-contract-sub000/config"
)

func TestMigrateDbDir(t *testing.T) {
	// Prepare
	cfg := config.Config{
		DataDir: t.TempDir(),
		DbDir:   t.TempDir(),
	}
	for _, name := range []string{"ledger", "accounts"} {
		oldDb, err := leveldb.OpenFile(filepath.Join(cfg.DataDir, name), nil)
		require.NoError(t, err)
		require.NoError(t, oldDb.Put([]byte(name+"key"), []byte("value"), nil))
		require.NoError(t, oldDb.Close())
	}
	// Act
	require.NoError(t, migrateDbDir(context.Background(), &cfg))

	// Verify
	for name, dir := range map[string]string{"ledger": cfg.LedgerDbDir(), "accounts": cfg.AccountsDbDir()} {
		db, err := leveldb.OpenFile(dir, nil)
		require.NoError(t, err)
		v, err := db.Get([]byte(name+"key"), nil)
		require.NoError(t, err)
		require.Equal(t, []byte("value"), v)
		require.NoError(t, db.Close())
		require.NoDirExists(t, filepath.Join(cfg.DataDir, name))
	}
}

func TestMigrateDbDir_NothingToMigrate(t *testing.T) {
	cfg := config.Config{
		DataDir: t.TempDir(),
		DbDir:   t.TempDir(),
	}
	require.NoError(t, migrateDbDir(context.Background(), &cfg))
	require.NoDirExists(t, cfg.LedgerDbDir())
}
