// Package greenproof composes the ledger modules over one store.
//
// Every mutating operation runs as one unit of work: the operation's rules
// are applied inside a store transaction, the events it emitted are
// journaled in the same transaction and the transaction commits. Any
// failure discards the whole unit. Once committed, the journaled events are
// handed to the broadcaster and queued reward transfers are executed.
package greenproof

import (
	"context"
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/energywebfoundation/worker-contract-sub000/admin"
	"github.com/energywebfoundation/worker-contract-sub000/certificates"
	"github.com/energywebfoundation/worker-contract-sub000/db"
	"github.com/energywebfoundation/worker-contract-sub000/events"
	"github.com/energywebfoundation/worker-contract-sub000/logging"
	"github.com/energywebfoundation/worker-contract-sub000/merkle"
	"github.com/energywebfoundation/worker-contract-sub000/metatoken"
	"github.com/energywebfoundation/worker-contract-sub000/rewards"
	"github.com/energywebfoundation/worker-contract-sub000/roles"
	"github.com/energywebfoundation/worker-contract-sub000/types"
	"github.com/energywebfoundation/worker-contract-sub000/voting"
	"github.com/energywebfoundation/worker-contract-sub000/workers"
)

var (
	ErrPausedContract = types.NewFailure(types.ErrPaused, "PausedContract")
	ErrNotPaused      = types.NewFailure(types.ErrStateConflict, "NotPaused")
	errInvalidUpdate  = types.NewFailure(types.ErrValidation, "Error")
	errSameValue      = types.NewFailure(types.ErrStateConflict, "Error")
)

var operationsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "greenproof",
	Subsystem: "ledger",
	Name:      "operations_total",
	Help:      "Number of ledger operations by name and result",
}, []string{"operation", "result"})

//go:generate mockgen -package mocks -destination mocks/broadcaster.go . Broadcaster

// Broadcaster receives the journal records of every committed unit of work.
type Broadcaster interface {
	Broadcast(ctx context.Context, records []events.Record)
}

type nopBroadcaster struct{}

func (nopBroadcaster) Broadcast(context.Context, []events.Record) {}

// State is the ledger-wide configuration kept in the store.
type State struct {
	Owner              types.Address
	ClaimManager       types.Address
	RevocationRegistry types.Address
	Paused             bool
}

var stateKey = []byte("ledger/state")

func GetState(r db.Reader) (*State, error) {
	state := &State{}
	if err := r.Get(stateKey, state); err != nil {
		return nil, fmt.Errorf("reading ledger state: %w", err)
	}
	return state, nil
}

// Receipt describes a committed operation.
type Receipt struct {
	Op     string          `json:"operation"`
	Value  any             `json:"value,omitempty"`
	Events []events.Record `json:"events"`
}

type Ledger struct {
	cfg         Config
	db          *db.DB
	now         func() time.Time
	broadcaster Broadcaster

	workers *workers.Registry
	voting  *voting.Engine
	rewards *rewards.Ledger
	certs   *certificates.Ledger
	meta    *metatoken.Ledger
}

type newLedgerOptionFunc func(*newLedgerOptions)

type newLedgerOptions struct {
	cfg         Config
	clock       func() time.Time
	verifier    merkle.Verifier
	broadcaster Broadcaster
}

func WithConfig(cfg Config) newLedgerOptionFunc {
	return func(opts *newLedgerOptions) {
		opts.cfg = cfg
	}
}

// WithClock replaces the wall clock operations are evaluated against.
func WithClock(clock func() time.Time) newLedgerOptionFunc {
	return func(opts *newLedgerOptions) {
		opts.clock = clock
	}
}

func WithVerifier(verifier merkle.Verifier) newLedgerOptionFunc {
	return func(opts *newLedgerOptions) {
		opts.verifier = verifier
	}
}

func WithBroadcaster(b Broadcaster) newLedgerOptionFunc {
	return func(opts *newLedgerOptions) {
		opts.broadcaster = b
	}
}

// New opens the ledger stored in database, initializing it from the
// configuration on first use.
func New(
	ctx context.Context,
	database *db.DB,
	oracle roles.Oracle,
	payer rewards.Payer,
	opts ...newLedgerOptionFunc,
) (*Ledger, error) {
	options := newLedgerOptions{
		cfg:         DefaultConfig(),
		clock:       time.Now,
		broadcaster: nopBroadcaster{},
	}
	for _, opt := range opts {
		opt(&options)
	}
	cfg := options.cfg
	reward, err := cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("invalid ledger configuration: %w", err)
	}
	if options.verifier == nil {
		options.verifier, err = merkle.NewCachedVerifier(merkle.Plain, cfg.ProofCacheSize)
		if err != nil {
			return nil, fmt.Errorf("creating proof cache: %w", err)
		}
	}

	checker := roles.NewChecker(oracle)
	rewardLedger := rewards.New(database, payer)
	meta := metatoken.New(metatoken.Config{IssuanceEnabled: cfg.MetaTokens}, checker)
	l := &Ledger{
		cfg:         cfg,
		db:          database,
		now:         options.clock,
		broadcaster: options.broadcaster,
		workers:     workers.New(checker),
		voting:      voting.New(voting.Config{TimeLimit: cfg.VotingTimeLimit, Majority: cfg.Majority}, rewardLedger),
		rewards:     rewardLedger,
		certs: certificates.New(certificates.Config{
			RevocablePeriod: cfg.RevocablePeriod,
			MaxBatch:        cfg.MaxBatchIssuance,
		}, checker, options.verifier, meta),
		meta: meta,
	}
	if err := l.init(ctx, reward); err != nil {
		return nil, err
	}
	logging.FromContext(ctx).Info("ledger opened", zap.Inline(&l.cfg))
	return l, nil
}

// init records the initial configuration unless the store already has one.
func (l *Ledger) init(ctx context.Context, reward *uint256.Int) error {
	var initialized bool
	err := l.db.View(ctx, func(r db.Reader) error {
		var err error
		initialized, err = r.Has(stateKey)
		return err
	})
	if err != nil || initialized {
		return err
	}

	_, err = l.commit(ctx, "init", func(tx *db.Tx) error {
		state := &State{
			Owner:              l.cfg.Owner,
			ClaimManager:       l.cfg.ClaimManager,
			RevocationRegistry: l.cfg.RevocationRegistry,
		}
		if err := tx.Put(stateKey, state); err != nil {
			return err
		}
		tx.Emit(events.OwnershipTransferred{New: l.cfg.Owner})
		for _, kind := range roles.Kinds {
			if err := roles.Put(tx, kind, roles.Defaults[kind]); err != nil {
				return err
			}
		}
		if err := rewards.Init(tx, reward, !l.cfg.DisableRewards); err != nil {
			return err
		}
		adminID := l.cfg.Admin
		if adminID.IsZero() {
			adminID = l.cfg.Owner
		}
		return admin.SetAdmin(tx, adminID)
	})
	if err != nil {
		return fmt.Errorf("initializing ledger: %w", err)
	}
	logging.FromContext(ctx).Info("initialized new ledger", zap.Stringer("owner", l.cfg.Owner))
	return nil
}

// update runs fn as operation op of caller. Operations declared as admin
// functions are refused to anyone but the admin.
func (l *Ledger) update(ctx context.Context, caller types.Address, op string, fn func(tx *db.Tx) error) (*Receipt, error) {
	return l.commit(ctx, op, func(tx *db.Tx) error {
		if err := admin.Authorize(tx, op, caller); err != nil {
			return err
		}
		return fn(tx)
	})
}

func (l *Ledger) commit(ctx context.Context, op string, fn func(tx *db.Tx) error) (*Receipt, error) {
	var records []events.Record
	_, err := l.db.Update(ctx, l.now(), func(tx *db.Tx) error {
		if err := fn(tx); err != nil {
			return err
		}
		var err error
		records, err = events.Append(tx, tx.Now(), tx.Emitted())
		return err
	})
	if err != nil {
		operationsMetric.WithLabelValues(op, "failed").Inc()
		return nil, err
	}
	operationsMetric.WithLabelValues(op, "ok").Inc()
	l.broadcaster.Broadcast(ctx, records)
	return &Receipt{Op: op, Events: records}, nil
}

// View runs fn against a consistent snapshot of the ledger. Every read of
// the module packages accepts the reader.
func (l *Ledger) View(ctx context.Context, fn func(r db.Reader) error) error {
	return l.db.View(ctx, fn)
}

// Events returns up to limit journaled events after sequence number since.
func (l *Ledger) Events(ctx context.Context, since uint64, limit int) ([]events.Record, error) {
	var records []events.Record
	err := l.db.View(ctx, func(r db.Reader) error {
		var err error
		records, err = events.Since(r, since, limit)
		return err
	})
	return records, err
}

// Now is the time operations are currently evaluated at.
func (l *Ledger) Now() time.Time {
	return l.now()
}

func requireOwner(r db.Reader, caller types.Address) (*State, error) {
	state, err := GetState(r)
	if err != nil {
		return nil, err
	}
	if caller != state.Owner {
		return nil, admin.ErrNotAuthorized.With("Owner", caller)
	}
	return state, nil
}

func whenNotPaused(r db.Reader) error {
	state, err := GetState(r)
	if err != nil {
		return err
	}
	if state.Paused {
		return ErrPausedContract.With()
	}
	return nil
}

func (l *Ledger) ownerUpdate(ctx context.Context, caller types.Address, op string, fn func(tx *db.Tx, state *State) error) (*Receipt, error) {
	return l.update(ctx, caller, op, func(tx *db.Tx) error {
		state, err := requireOwner(tx, caller)
		if err != nil {
			return err
		}
		return fn(tx, state)
	})
}

func (l *Ledger) TransferOwnership(ctx context.Context, caller, newOwner types.Address) (*Receipt, error) {
	return l.ownerUpdate(ctx, caller, OpTransferOwnership, func(tx *db.Tx, state *State) error {
		if newOwner.IsZero() {
			return errInvalidUpdate.With("Cannot update to null address")
		}
		tx.Emit(events.OwnershipTransferred{Previous: state.Owner, New: newOwner})
		state.Owner = newOwner
		return tx.Put(stateKey, state)
	})
}

func (l *Ledger) Pause(ctx context.Context, caller types.Address) (*Receipt, error) {
	return l.ownerUpdate(ctx, caller, OpPause, func(tx *db.Tx, state *State) error {
		if state.Paused {
			return ErrPausedContract.With()
		}
		state.Paused = true
		tx.Emit(events.Paused{Account: caller})
		return tx.Put(stateKey, state)
	})
}

func (l *Ledger) Unpause(ctx context.Context, caller types.Address) (*Receipt, error) {
	return l.ownerUpdate(ctx, caller, OpUnpause, func(tx *db.Tx, state *State) error {
		if !state.Paused {
			return ErrNotPaused.With()
		}
		state.Paused = false
		tx.Emit(events.Unpaused{Account: caller})
		return tx.Put(stateKey, state)
	})
}

func (l *Ledger) UpdateClaimManager(ctx context.Context, caller, claimManager types.Address) (*Receipt, error) {
	return l.ownerUpdate(ctx, caller, OpUpdateClaimManager, func(tx *db.Tx, state *State) error {
		switch {
		case claimManager.IsZero():
			return errInvalidUpdate.With("Cannot update to null address")
		case claimManager == state.ClaimManager:
			return errSameValue.With("Same address")
		}
		tx.Emit(events.ClaimManagerUpdated{Previous: state.ClaimManager, New: claimManager})
		state.ClaimManager = claimManager
		return tx.Put(stateKey, state)
	})
}

func (l *Ledger) UpdateClaimRevocationRegistry(ctx context.Context, caller, registry types.Address) (*Receipt, error) {
	return l.ownerUpdate(ctx, caller, OpUpdateClaimRevocationRegistry, func(tx *db.Tx, state *State) error {
		switch {
		case registry.IsZero():
			return errInvalidUpdate.With("Revocation Registry: null address")
		case registry == state.RevocationRegistry:
			return errSameValue.With("Revocation Registry: Same address")
		}
		tx.Emit(events.ClaimsRevocationRegistryUpdated{Previous: state.RevocationRegistry, New: registry})
		state.RevocationRegistry = registry
		return tx.Put(stateKey, state)
	})
}

// UpdateRoleVersion changes the claim version the oracle is queried with for kind.
func (l *Ledger) UpdateRoleVersion(ctx context.Context, caller types.Address, kind roles.Kind, version uint64) (*Receipt, error) {
	return l.ownerUpdate(ctx, caller, "update"+string(kind)+"Version", func(tx *db.Tx, _ *State) error {
		role, err := roles.Get(tx, kind)
		if err != nil {
			return err
		}
		if role.Version == version {
			return errSameValue.With("Same version")
		}
		tx.Emit(events.RoleVersionUpdated{Role: string(kind), Previous: role.Version, New: version})
		role.Version = version
		return roles.Put(tx, kind, role)
	})
}

func (l *Ledger) SetAdmin(ctx context.Context, caller, adminID types.Address) (*Receipt, error) {
	return l.ownerUpdate(ctx, caller, OpSetAdmin, func(tx *db.Tx, _ *State) error {
		if adminID.IsZero() {
			return errInvalidUpdate.With("Cannot update to null address")
		}
		return admin.SetAdmin(tx, adminID)
	})
}

func (l *Ledger) DeclareSingleAdminFunction(ctx context.Context, caller types.Address, op string) (*Receipt, error) {
	return l.ownerUpdate(ctx, caller, OpDeclareSingleAdminFunction, func(tx *db.Tx, _ *State) error {
		return admin.DeclareSingle(tx, op)
	})
}

func (l *Ledger) DeclareBatchAdminFunctions(ctx context.Context, caller types.Address, ops []string) (*Receipt, error) {
	return l.ownerUpdate(ctx, caller, OpDeclareBatchAdminFunctions, func(tx *db.Tx, _ *State) error {
		return admin.DeclareBatch(tx, ops)
	})
}

func (l *Ledger) RemoveSingleAdminFunction(ctx context.Context, caller types.Address, op string) (*Receipt, error) {
	return l.ownerUpdate(ctx, caller, OpRemoveSingleAdminFunction, func(tx *db.Tx, _ *State) error {
		return admin.RemoveSingle(tx, op)
	})
}

func (l *Ledger) RemoveBatchAdminFunctions(ctx context.Context, caller types.Address, ops []string) (*Receipt, error) {
	return l.ownerUpdate(ctx, caller, OpRemoveBatchAdminFunctions, func(tx *db.Tx, _ *State) error {
		return admin.RemoveBatch(tx, ops)
	})
}
