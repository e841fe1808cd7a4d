// Package db is the ledger's transactional state store.
//
// Every mutating operation runs inside Update: a leveldb transaction whose
// writes, together with the events emitted while it ran, become visible
// atomically on commit or vanish on any error.
package db

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	xdr "github.com/nullstyle/go-xdr/xdr3"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/util"
	"go.uber.org/zap"

	"github.com/energywebfoundation/worker-contract-sub000/events"
	"github.com/energywebfoundation/worker-contract-sub000/logging"
)

var ErrNotFound = leveldb.ErrNotFound

// Reader is the read side shared by transactions and snapshots.
// Keys handed to an Iterate callback are only valid during the call.
type Reader interface {
	Get(key []byte, v any) error
	Has(key []byte) (bool, error)
	Iterate(prefix, from []byte, fn func(key []byte, decode func(v any) error) error) error
}

type DB struct {
	db *leveldb.DB
	// leveldb allows a single open transaction; mu queues writers
	// instead of failing them.
	mu sync.Mutex
}

func Open(path string) (*DB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database @ %s: %w", path, err)
	}
	return &DB{db: db}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Update runs fn in a transaction. The transaction commits when fn returns
// nil; hooks registered with Tx.OnCommit run after the commit succeeded.
// The events emitted by fn are returned only when the commit succeeded.
func (d *DB) Update(ctx context.Context, now time.Time, fn func(tx *Tx) error) ([]events.Event, error) {
	tx, err := d.commit(ctx, now, fn)
	if err != nil {
		return nil, err
	}
	// hooks may open units of work of their own
	for _, hook := range tx.hooks {
		hook(ctx)
	}
	return tx.emitted, nil
}

func (d *DB) commit(ctx context.Context, now time.Time, fn func(tx *Tx) error) (*Tx, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	trans, err := d.db.OpenTransaction()
	if err != nil {
		return nil, fmt.Errorf("opening transaction: %w", err)
	}
	tx := &Tx{trans: trans, now: now}
	if err := fn(tx); err != nil {
		trans.Discard()
		return nil, err
	}
	if err := trans.Commit(); err != nil {
		trans.Discard()
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return tx, nil
}

// View runs fn against a consistent snapshot of committed state.
func (d *DB) View(ctx context.Context, fn func(r Reader) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	snap, err := d.db.GetSnapshot()
	if err != nil {
		return fmt.Errorf("taking snapshot: %w", err)
	}
	defer snap.Release()
	return fn(snapshot{snap})
}

// Tx is a unit of work. It is not safe for concurrent use.
type Tx struct {
	trans   *leveldb.Transaction
	now     time.Time
	emitted []events.Event
	hooks   []func(ctx context.Context)
}

// Now is the timestamp every rule of the unit of work evaluates against.
func (tx *Tx) Now() time.Time {
	return tx.now
}

func (tx *Tx) Get(key []byte, v any) error {
	data, err := tx.trans.Get(key, nil)
	if err != nil {
		return err
	}
	return decode(data, v)
}

func (tx *Tx) Has(key []byte) (bool, error) {
	return tx.trans.Has(key, nil)
}

func (tx *Tx) Put(key []byte, v any) error {
	data, err := encode(v)
	if err != nil {
		return fmt.Errorf("encoding %q: %w", key, err)
	}
	return tx.trans.Put(key, data, nil)
}

func (tx *Tx) Delete(key []byte) error {
	return tx.trans.Delete(key, nil)
}

func (tx *Tx) Iterate(prefix, from []byte, fn func(key []byte, decode func(v any) error) error) error {
	return iterate(tx.trans.NewIterator(rangeOf(prefix, from), nil), fn)
}

// Lookup reads key into v and reports whether it existed.
func Lookup(r Reader, key []byte, v any) (bool, error) {
	err := r.Get(key, v)
	switch {
	case errors.Is(err, ErrNotFound):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("reading %q: %w", key, err)
	}
	return true, nil
}

func (tx *Tx) Emit(ev events.Event) {
	tx.emitted = append(tx.emitted, ev)
}

func (tx *Tx) Emitted() []events.Event {
	return tx.emitted
}

// OnCommit registers fn to run once the transaction has been committed.
// Nothing registered runs if the transaction is discarded.
func (tx *Tx) OnCommit(fn func(ctx context.Context)) {
	tx.hooks = append(tx.hooks, fn)
}

type snapshot struct {
	snap *leveldb.Snapshot
}

func (s snapshot) Get(key []byte, v any) error {
	data, err := s.snap.Get(key, nil)
	if err != nil {
		return err
	}
	return decode(data, v)
}

func (s snapshot) Has(key []byte) (bool, error) {
	return s.snap.Has(key, nil)
}

func (s snapshot) Iterate(prefix, from []byte, fn func(key []byte, decode func(v any) error) error) error {
	return iterate(s.snap.NewIterator(rangeOf(prefix, from), nil), fn)
}

func rangeOf(prefix, from []byte) *util.Range {
	r := util.BytesPrefix(prefix)
	if from != nil && bytes.Compare(from, r.Start) > 0 {
		r.Start = from
	}
	return r
}

func iterate(iter iterator.Iterator, fn func(key []byte, decode func(v any) error) error) error {
	defer iter.Release()
	for iter.Next() {
		value := iter.Value()
		if err := fn(iter.Key(), func(v any) error { return decode(value, v) }); err != nil {
			return err
		}
	}
	return iter.Error()
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	// records are stored by value
	v = reflect.Indirect(reflect.ValueOf(v)).Interface()
	if _, err := xdr.Marshal(&buf, v); err != nil {
		return nil, fmt.Errorf("serialization failure: %w", err)
	}
	return buf.Bytes(), nil
}

func decode(data []byte, v any) error {
	if _, err := xdr.Unmarshal(bytes.NewReader(data), v); err != nil {
		return fmt.Errorf("failed to deserialize: %w", err)
	}
	return nil
}

// Key joins a prefix with string parts separated by '/'.
func Key(prefix string, parts ...string) []byte {
	var buf bytes.Buffer
	buf.WriteString(prefix)
	for _, p := range parts {
		buf.WriteByte('/')
		buf.WriteString(p)
	}
	return buf.Bytes()
}

// SeqKey appends n in big endian so keys sort numerically.
func SeqKey(prefix string, n uint64) []byte {
	key := make([]byte, len(prefix)+9)
	copy(key, prefix)
	key[len(prefix)] = '/'
	binary.BigEndian.PutUint64(key[len(prefix)+1:], n)
	return key
}

// Compact is run on shutdown by the server to keep the store small.
func (d *DB) Compact(ctx context.Context) {
	if err := d.db.CompactRange(util.Range{}); err != nil {
		logging.FromContext(ctx).Warn("failed to compact database", zap.Error(err))
	}
}
