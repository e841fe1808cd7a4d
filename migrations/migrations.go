// Package migrations brings the on-disk layout and the ledger schema up to
// what this build expects.
package migrations

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/energywebfoundation/worker-contract-sub000/config"
	"github.com/energywebfoundation/worker-contract-sub000/db"
	"github.com/energywebfoundation/worker-contract-sub000/logging"
)

// SchemaVersion is the ledger schema this build reads and writes.
var SchemaVersion = uint32(len(steps))

// steps[i] upgrades a store from version i to i+1.
var steps = []func(tx *db.Tx) error{
	// version 1 only stamps stores created before versioning
	func(*db.Tx) error { return nil },
}

// Migrate moves stores into the configured DB directory. It must run
// before any store is opened.
func Migrate(ctx context.Context, cfg *config.Config) error {
	ctx = logging.NewContext(ctx, logging.FromContext(ctx).Named("migrations"))
	if err := migrateDbDir(ctx, cfg); err != nil {
		return err
	}
	return nil
}

// Upgrade applies the schema steps the ledger store is missing.
func Upgrade(ctx context.Context, database *db.DB) error {
	logger := logging.FromContext(ctx).Named("migrations")
	var version uint32
	err := database.View(ctx, func(r db.Reader) error {
		var err error
		version, err = db.Version(r)
		return err
	})
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	if version > SchemaVersion {
		return fmt.Errorf("store schema version %d is newer than supported %d", version, SchemaVersion)
	}

	for ; version < SchemaVersion; version++ {
		next := version + 1
		_, err := database.Update(ctx, time.Now(), func(tx *db.Tx) error {
			if err := steps[version](tx); err != nil {
				return err
			}
			return db.SetVersion(tx, next)
		})
		if err != nil {
			return fmt.Errorf("upgrading schema to version %d: %w", next, err)
		}
		logger.Info("upgraded ledger schema", zap.Uint32("version", next))
	}
	return nil
}
