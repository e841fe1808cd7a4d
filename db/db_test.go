package db_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/energywebfoundation/worker-contract-sub000/db"
	"github.com/energywebfoundation/worker-contract-sub000/events"
	"github.com/energywebfoundation/worker-contract-sub000/types"
)

type record struct {
	Owner  types.Address
	Hashes []types.Hash
	Amount uint64
	Closed bool
}

func openDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, database.Close()) })
	return database
}

func TestUpdateCommits(t *testing.T) {
	database := openDB(t)
	ctx := context.Background()
	now := time.Unix(1000, 0)
	in := record{
		Owner:  types.MustAddress("0x0000000000000000000000000000000000000001"),
		Hashes: []types.Hash{types.HashFromString("a"), types.HashFromString("b")},
		Amount: 7,
	}

	var committed bool
	emitted, err := database.Update(ctx, now, func(tx *db.Tx) error {
		require.Equal(t, now, tx.Now())
		require.NoError(t, tx.Put([]byte("rec"), in))
		tx.Emit(events.RewardsActivated{})
		tx.OnCommit(func(context.Context) { committed = true })

		// writes are visible inside the transaction
		var out record
		require.NoError(t, tx.Get([]byte("rec"), &out))
		require.Equal(t, in, out)
		return nil
	})
	require.NoError(t, err)
	require.True(t, committed)
	require.Equal(t, []events.Event{events.RewardsActivated{}}, emitted)

	require.NoError(t, database.View(ctx, func(r db.Reader) error {
		var out record
		require.NoError(t, r.Get([]byte("rec"), &out))
		require.Equal(t, in, out)
		return nil
	}))
}

func TestUpdateDiscardsOnError(t *testing.T) {
	database := openDB(t)
	ctx := context.Background()
	failure := errors.New("rejected")

	var committed bool
	emitted, err := database.Update(ctx, time.Now(), func(tx *db.Tx) error {
		require.NoError(t, tx.Put([]byte("rec"), uint64(1)))
		tx.Emit(events.RewardsActivated{})
		tx.OnCommit(func(context.Context) { committed = true })
		return failure
	})
	require.ErrorIs(t, err, failure)
	require.Nil(t, emitted)
	require.False(t, committed)

	require.NoError(t, database.View(ctx, func(r db.Reader) error {
		ok, err := r.Has([]byte("rec"))
		require.NoError(t, err)
		require.False(t, ok)

		var v uint64
		require.ErrorIs(t, r.Get([]byte("rec"), &v), db.ErrNotFound)
		found, err := db.Lookup(r, []byte("rec"), &v)
		require.NoError(t, err)
		require.False(t, found)
		return nil
	}))
}

func TestUpdateHonorsCanceledContext(t *testing.T) {
	database := openDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := database.Update(ctx, time.Now(), func(tx *db.Tx) error {
		t.Fatal("must not run")
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestViewHonorsCanceledContext(t *testing.T) {
	database := openDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := database.View(ctx, func(r db.Reader) error {
		t.Fatal("must not run")
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestIterate(t *testing.T) {
	database := openDB(t)
	ctx := context.Background()
	_, err := database.Update(ctx, time.Now(), func(tx *db.Tx) error {
		for i := uint64(0); i < 5; i++ {
			require.NoError(t, tx.Put(db.SeqKey("seq", i), i*10))
		}
		require.NoError(t, tx.Put(db.Key("other", "x"), uint64(99)))
		require.NoError(t, tx.Delete(db.SeqKey("seq", 3)))
		return nil
	})
	require.NoError(t, err)

	collect := func(r db.Reader, from []byte) []uint64 {
		var values []uint64
		require.NoError(t, r.Iterate([]byte("seq/"), from, func(_ []byte, decode func(v any) error) error {
			var v uint64
			require.NoError(t, decode(&v))
			values = append(values, v)
			return nil
		}))
		return values
	}
	require.NoError(t, database.View(ctx, func(r db.Reader) error {
		require.Equal(t, []uint64{0, 10, 20, 40}, collect(r, nil))
		require.Equal(t, []uint64{20, 40}, collect(r, db.SeqKey("seq", 2)))
		return nil
	}))
}

func TestSchemaVersion(t *testing.T) {
	database := openDB(t)
	ctx := context.Background()
	require.NoError(t, database.View(ctx, func(r db.Reader) error {
		v, err := db.Version(r)
		require.NoError(t, err)
		require.Zero(t, v)
		return nil
	}))
	_, err := database.Update(ctx, time.Now(), func(tx *db.Tx) error {
		return db.SetVersion(tx, 2)
	})
	require.NoError(t, err)
	require.NoError(t, database.View(ctx, func(r db.Reader) error {
		v, err := db.Version(r)
		require.NoError(t, err)
		require.EqualValues(t, 2, v)
		return nil
	}))
}
