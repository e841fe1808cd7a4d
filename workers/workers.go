// Package workers keeps the whitelist of addresses allowed to vote.
//
// Membership is anchored to the claims oracle rather than to the caller:
// anyone may add an address the oracle vouches for, and anyone may remove an
// address whose claim the oracle no longer honors.
package workers

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/energywebfoundation/worker-contract-sub000/db"
	"github.com/energywebfoundation/worker-contract-sub000/events"
	"github.com/energywebfoundation/worker-contract-sub000/logging"
	"github.com/energywebfoundation/worker-contract-sub000/roles"
	"github.com/energywebfoundation/worker-contract-sub000/types"
)

var (
	ErrNotEnrolledWorker        = types.NewFailure(types.ErrAuthorization, "NotEnrolledWorker")
	ErrAlreadyWhitelistedWorker = types.NewFailure(types.ErrStateConflict, "AlreadyWhitelistedWorker")
	ErrNotWhitelisted           = types.NewFailure(types.ErrAuthorization, "NotWhitelisted")
	ErrNotRevokedWorker         = types.NewFailure(types.ErrStateConflict, "NotRevokedWorker")
)

var workersMetric = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "greenproof",
	Subsystem: "workers",
	Name:      "whitelisted",
	Help:      "Number of whitelisted workers",
})

const (
	memberPrefix = "workers/member"
	orderPrefix  = "workers/order"
)

var metaKey = []byte("workers/meta")

type member struct {
	Seq uint64
}

type meta struct {
	Next  uint64
	Count uint64
}

func memberKey(addr types.Address) []byte {
	return db.Key(memberPrefix, addr.Hex())
}

type Registry struct {
	checker *roles.Checker
}

func New(checker *roles.Checker) *Registry {
	return &Registry{checker: checker}
}

func (r *Registry) Add(ctx context.Context, tx *db.Tx, addr types.Address) error {
	ok, err := r.checker.Enrolled(ctx, tx, roles.Worker, addr)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotEnrolledWorker.With(addr)
	}
	present, err := IsWhitelisted(tx, addr)
	if err != nil {
		return err
	}
	if present {
		return ErrAlreadyWhitelistedWorker.With(addr)
	}

	m, err := readMeta(tx)
	if err != nil {
		return err
	}
	if err := tx.Put(memberKey(addr), member{Seq: m.Next}); err != nil {
		return err
	}
	if err := tx.Put(db.SeqKey(orderPrefix, m.Next), addr); err != nil {
		return err
	}
	m.Next++
	m.Count++
	if err := tx.Put(metaKey, m); err != nil {
		return err
	}

	tx.Emit(events.WorkerAdded{Worker: addr, Time: tx.Now().Unix()})
	tx.OnCommit(func(ctx context.Context) {
		workersMetric.Inc()
		logging.FromContext(ctx).Info("worker whitelisted", zap.Stringer("worker", addr))
	})
	return nil
}

func (r *Registry) Remove(ctx context.Context, tx *db.Tx, addr types.Address) error {
	var mem member
	found, err := db.Lookup(tx, memberKey(addr), &mem)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotWhitelisted.With(addr)
	}
	ok, err := r.checker.Enrolled(ctx, tx, roles.Worker, addr)
	if err != nil {
		return err
	}
	if ok {
		return ErrNotRevokedWorker.With(addr)
	}

	m, err := readMeta(tx)
	if err != nil {
		return err
	}
	if err := tx.Delete(memberKey(addr)); err != nil {
		return err
	}
	if err := tx.Delete(db.SeqKey(orderPrefix, mem.Seq)); err != nil {
		return err
	}
	m.Count--
	if err := tx.Put(metaKey, m); err != nil {
		return err
	}

	tx.Emit(events.WorkerRemoved{Worker: addr, Time: tx.Now().Unix()})
	tx.OnCommit(func(ctx context.Context) {
		workersMetric.Dec()
		logging.FromContext(ctx).Info("worker removed", zap.Stringer("worker", addr))
	})
	return nil
}

func IsWhitelisted(r db.Reader, addr types.Address) (bool, error) {
	return r.Has(memberKey(addr))
}

// List returns the whitelisted workers in the order they were added.
func List(r db.Reader) ([]types.Address, error) {
	workers := []types.Address{}
	err := r.Iterate([]byte(orderPrefix+"/"), nil, func(_ []byte, decode func(v any) error) error {
		var addr types.Address
		if err := decode(&addr); err != nil {
			return err
		}
		workers = append(workers, addr)
		return nil
	})
	return workers, err
}

func Count(r db.Reader) (uint64, error) {
	m, err := readMeta(r)
	return m.Count, err
}

func readMeta(r db.Reader) (meta, error) {
	var m meta
	err := r.Get(metaKey, &m)
	if errors.Is(err, db.ErrNotFound) {
		return meta{}, nil
	}
	return m, err
}
