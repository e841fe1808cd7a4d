package migrations

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/energywebfoundation/worker-contract-sub000/config"
	"github.com/energywebfoundation/worker-contract-sub000/db"
)

// migrateDbDir relocates stores that older layouts kept in the data
// directory.
func migrateDbDir(ctx context.Context, cfg *config.Config) error {
	for target, old := range map[string]string{
		cfg.LedgerDbDir():   filepath.Join(cfg.DataDir, "ledger"),
		cfg.AccountsDbDir(): filepath.Join(cfg.DataDir, "accounts"),
	} {
		if err := db.Relocate(ctx, target, old); err != nil {
			return fmt.Errorf("migrating DB %s -> %s: %w", old, target, err)
		}
	}
	return nil
}
