package db

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"go.uber.org/zap"

	"github.com/energywebfoundation/worker-contract-sub000/logging"
)

const relocateBatchSize = 1024

var versionKey = []byte("schema/version")

// Relocate moves a store from oldDir to targetDir. It is a no-op when both
// are the same or when nothing exists at oldDir. The target must not hold a
// store yet.
func Relocate(ctx context.Context, targetDir, oldDir string) error {
	log := logging.FromContext(ctx).With(zap.String("from", oldDir), zap.String("to", targetDir))
	if oldDir == targetDir {
		log.Debug("store already in place")
		return nil
	}

	src, err := leveldb.OpenFile(oldDir, &opt.Options{ErrorIfMissing: true})
	switch {
	case os.IsNotExist(err):
		log.Debug("no store to relocate")
		return nil
	case err != nil:
		return fmt.Errorf("opening store to relocate: %w", err)
	}
	defer src.Close()

	dst, err := leveldb.OpenFile(targetDir, &opt.Options{ErrorIfExist: true})
	if err != nil {
		return fmt.Errorf("opening relocation target: %w", err)
	}
	defer dst.Close()

	log.Info("relocating store")
	var copied int
	batch := new(leveldb.Batch)
	iter := src.NewIterator(nil, nil)
	for iter.Next() {
		batch.Put(iter.Key(), iter.Value())
		if batch.Len() < relocateBatchSize {
			continue
		}
		copied += batch.Len()
		if err := dst.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
			iter.Release()
			return fmt.Errorf("writing relocated keys: %w", err)
		}
		batch.Reset()
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return fmt.Errorf("reading store to relocate: %w", err)
	}
	copied += batch.Len()
	if err := dst.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("writing relocated keys: %w", err)
	}

	if err := src.Close(); err != nil {
		return fmt.Errorf("closing relocated store: %w", err)
	}
	if err := os.RemoveAll(oldDir); err != nil {
		return fmt.Errorf("removing relocated store: %w", err)
	}
	log.Info("store relocated", zap.Int("keys", copied))
	return nil
}

// Version returns the schema version recorded in the store, 0 for a fresh store.
func Version(r Reader) (uint32, error) {
	var version uint32
	err := r.Get(versionKey, &version)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	return version, err
}

func SetVersion(tx *Tx, version uint32) error {
	return tx.Put(versionKey, version)
}
