package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/stretchr/testify/require"

	"github.com/energywebfoundation/worker-contract-sub000/types"
)

func TestReadingNonExistingConfigFile(t *testing.T) {
	cfg := Config{
		ConfigFile: "non-existing-file",
	}
	_, err := ReadConfigFile(&cfg)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestReadConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.ConfigFile = filepath.Join(dir, "config.ini")
	err := os.WriteFile(cfg.ConfigFile, []byte(`
dbdir = /tmp/db
sweep-interval = 1m
ledger.owner = 0x00000000000000000000000000000000000000a0
ledger.majority = 60
`), 0o600)
	require.NoError(t, err)

	cfg, err = ReadConfigFile(cfg)
	require.NoError(t, err)
	require.Equal(t, "/tmp/db", cfg.DbDir)
	require.Equal(t, time.Minute, cfg.SweepInterval)
	require.Equal(t, types.MustAddress("0x00000000000000000000000000000000000000a0"), cfg.Ledger.Owner)
	require.Equal(t, uint64(60), cfg.Ledger.Majority)
	require.Equal(t, "1", cfg.Ledger.RewardAmount)
}

func TestReadConfigFilePathNotSet(t *testing.T) {
	cfg, err := ReadConfigFile(&Config{})
	require.NoError(t, err)
	require.Equal(t, &Config{}, cfg)
}

func TestLedgerFlags(t *testing.T) {
	cfg := DefaultConfig()
	_, err := flags.ParseArgs(cfg, []string{
		"--ledger.claim-manager", "0x00000000000000000000000000000000000000c0",
		"--ledger.meta-tokens",
		"--webhook", "http://a", "--webhook", "http://b",
	})
	require.NoError(t, err)
	require.Equal(t, types.MustAddress("0x00000000000000000000000000000000000000c0"), cfg.Ledger.ClaimManager)
	require.True(t, cfg.Ledger.MetaTokens)
	require.Equal(t, []string{"http://a", "http://b"}, cfg.Webhooks)
}

func TestSetupConfigMovesDefaultDirs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Dir = t.TempDir()
	cfg, err := SetupConfig(cfg)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(cfg.Dir, "db"), cfg.DbDir)
	require.Equal(t, filepath.Join(cfg.Dir, "db", "ledger"), cfg.LedgerDbDir())
	require.Equal(t, filepath.Join(cfg.Dir, "logs", "greenproofd.log"), cfg.LogFile().Name)
}
