package workers_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/energywebfoundation/worker-contract-sub000/db"
	"github.com/energywebfoundation/worker-contract-sub000/events"
	"github.com/energywebfoundation/worker-contract-sub000/roles"
	"github.com/energywebfoundation/worker-contract-sub000/types"
	"github.com/energywebfoundation/worker-contract-sub000/workers"
)

var workerRole = roles.Defaults[roles.Worker].Name

type fixture struct {
	db       *db.DB
	oracle   *roles.MemoryOracle
	registry *workers.Registry
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	database, err := db.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, database.Close()) })
	_, err = database.Update(context.Background(), time.Now(), func(tx *db.Tx) error {
		return roles.Put(tx, roles.Worker, roles.Defaults[roles.Worker])
	})
	require.NoError(t, err)

	oracle := roles.NewMemoryOracle()
	return &fixture{
		db:       database,
		oracle:   oracle,
		registry: workers.New(roles.NewChecker(oracle)),
		now:      time.Unix(1_700_000_000, 0),
	}
}

func (f *fixture) add(addr types.Address) ([]events.Event, error) {
	return f.db.Update(context.Background(), f.now, func(tx *db.Tx) error {
		return f.registry.Add(context.Background(), tx, addr)
	})
}

func (f *fixture) remove(addr types.Address) ([]events.Event, error) {
	return f.db.Update(context.Background(), f.now, func(tx *db.Tx) error {
		return f.registry.Remove(context.Background(), tx, addr)
	})
}

func (f *fixture) view(t *testing.T, fn func(r db.Reader)) {
	require.NoError(t, f.db.View(context.Background(), func(r db.Reader) error {
		fn(r)
		return nil
	}))
}

func address(b byte) types.Address {
	var a types.Address
	a[19] = b
	return a
}

func TestAddWorker(t *testing.T) {
	f := newFixture(t)
	w := address(1)

	_, err := f.add(w)
	require.ErrorIs(t, err, workers.ErrNotEnrolledWorker)
	require.EqualError(t, err, `NotEnrolledWorker("0x0000000000000000000000000000000000000001")`)

	f.oracle.Grant(w, workerRole, 1)
	emitted, err := f.add(w)
	require.NoError(t, err)
	require.Equal(t, []events.Event{events.WorkerAdded{Worker: w, Time: f.now.Unix()}}, emitted)

	_, err = f.add(w)
	require.ErrorIs(t, err, workers.ErrAlreadyWhitelistedWorker)

	f.view(t, func(r db.Reader) {
		ok, err := workers.IsWhitelisted(r, w)
		require.NoError(t, err)
		require.True(t, ok)
	})
}

func TestAddRevokedWorker(t *testing.T) {
	f := newFixture(t)
	w := address(1)
	f.oracle.Grant(w, workerRole, 1)
	f.oracle.Revoke(w, workerRole)

	_, err := f.add(w)
	require.ErrorIs(t, err, workers.ErrNotEnrolledWorker)
}

func TestRemoveWorker(t *testing.T) {
	f := newFixture(t)
	w := address(1)

	_, err := f.remove(w)
	require.ErrorIs(t, err, workers.ErrNotWhitelisted)

	f.oracle.Grant(w, workerRole, 1)
	_, err = f.add(w)
	require.NoError(t, err)

	// the claim must be revoked first
	_, err = f.remove(w)
	require.ErrorIs(t, err, workers.ErrNotRevokedWorker)

	f.oracle.Revoke(w, workerRole)
	emitted, err := f.remove(w)
	require.NoError(t, err)
	require.Equal(t, []events.Event{events.WorkerRemoved{Worker: w, Time: f.now.Unix()}}, emitted)

	f.view(t, func(r db.Reader) {
		ok, err := workers.IsWhitelisted(r, w)
		require.NoError(t, err)
		require.False(t, ok)
		count, err := workers.Count(r)
		require.NoError(t, err)
		require.Zero(t, count)
	})
}

func TestListKeepsInsertionOrder(t *testing.T) {
	f := newFixture(t)
	added := []types.Address{address(9), address(3), address(7), address(1)}
	for _, w := range added {
		f.oracle.Grant(w, workerRole, 1)
		_, err := f.add(w)
		require.NoError(t, err)
	}

	f.oracle.Revoke(address(3), workerRole)
	_, err := f.remove(address(3))
	require.NoError(t, err)

	// re-added workers go to the back
	f.oracle.Grant(address(3), workerRole, 1)
	_, err = f.add(address(3))
	require.NoError(t, err)

	f.view(t, func(r db.Reader) {
		list, err := workers.List(r)
		require.NoError(t, err)
		require.Equal(t, []types.Address{address(9), address(7), address(1), address(3)}, list)
		count, err := workers.Count(r)
		require.NoError(t, err)
		require.EqualValues(t, 4, count)
	})
}

func TestListEmpty(t *testing.T) {
	f := newFixture(t)
	f.view(t, func(r db.Reader) {
		list, err := workers.List(r)
		require.NoError(t, err)
		require.Empty(t, list)
	})
}
