// Package rewards pays the workers whose votes produced a winning match.
//
// Each winner is owed a fixed reward. Rewards are paid on the spot while the
// pool is enabled and funded; otherwise they wait in a FIFO queue until an
// explicit payout or a replenishment drains it. Value leaves the ledger only
// after the unit of work that decided the payment committed.
package rewards

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/energywebfoundation/worker-contract-sub000/db"
	"github.com/energywebfoundation/worker-contract-sub000/events"
	"github.com/energywebfoundation/worker-contract-sub000/logging"
	"github.com/energywebfoundation/worker-contract-sub000/types"
)

var (
	ErrRewardsDisabled       = types.NewFailure(types.ErrStateConflict, "RewardsDisabled")
	ErrNoFundsProvided       = types.NewFailure(types.ErrValidation, "NoFundsProvided")
	ErrRewardStateNotChanged = types.NewFailure(types.ErrStateConflict, "RewardStateNotChanged")
	ErrPoolOverflow          = types.NewFailure(types.ErrValidation, "PoolOverflow")
)

var (
	paidMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "greenproof",
		Subsystem: "rewards",
		Name:      "payments_total",
		Help:      "Number of reward transfers by result",
	}, []string{"result"})
	queuedMetric = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "greenproof",
		Subsystem: "rewards",
		Name:      "queued_total",
		Help:      "Number of rewards queued for lack of funds",
	})
)

//go:generate mockgen -package mocks -destination mocks/payer.go . Payer

// Payer moves value to a winner outside the ledger.
type Payer interface {
	Pay(ctx context.Context, to types.Address, amount *uint256.Int) error
}

// Pool is the reward pool state.
type Pool struct {
	Balance uint256.Int
	Reward  uint256.Int
	Enabled bool
	// Head is the sequence number of the oldest queued reward,
	// Tail the one the next queued reward gets.
	Head uint64
	Tail uint64
}

func (p *Pool) Queued() uint64 {
	return p.Tail - p.Head
}

// Pending is a reward owed to a winner.
type Pending struct {
	Winner types.Address
	Amount uint256.Int
}

const queuePrefix = "rewards/queue"

var poolKey = []byte("rewards/pool")

type Ledger struct {
	db    *db.DB
	payer Payer
}

func New(database *db.DB, payer Payer) *Ledger {
	return &Ledger{db: database, payer: payer}
}

// Init sets up the pool unless it already exists.
func Init(tx *db.Tx, reward *uint256.Int, enabled bool) error {
	ok, err := tx.Has(poolKey)
	if err != nil || ok {
		return err
	}
	return tx.Put(poolKey, &Pool{Reward: *reward, Enabled: enabled})
}

func GetPool(r db.Reader) (*Pool, error) {
	pool := &Pool{}
	if err := r.Get(poolKey, pool); err != nil {
		return nil, fmt.Errorf("reading reward pool: %w", err)
	}
	return pool, nil
}

// PendingRewards lists the queued rewards, oldest first.
func PendingRewards(r db.Reader) ([]Pending, error) {
	pending := []Pending{}
	err := r.Iterate([]byte(queuePrefix+"/"), nil, func(_ []byte, decode func(v any) error) error {
		var p Pending
		if err := decode(&p); err != nil {
			return err
		}
		pending = append(pending, p)
		return nil
	})
	return pending, err
}

// Reward pays every winner the pool reward, queueing what cannot be paid.
func (l *Ledger) Reward(ctx context.Context, tx *db.Tx, winners []types.Address) error {
	pool, err := GetPool(tx)
	if err != nil {
		return err
	}
	var paid uint64
	for _, w := range winners {
		if pool.Enabled && !pool.Balance.Lt(&pool.Reward) {
			pool.Balance.Sub(&pool.Balance, &pool.Reward)
			l.schedule(tx, w, &pool.Reward)
			paid++
			continue
		}
		if err := enqueue(tx, pool, w, &pool.Reward); err != nil {
			return err
		}
	}
	if paid > 0 {
		tx.Emit(events.RewardsPaidOut{Count: paid})
	}
	return tx.Put(poolKey, pool)
}

// PayReward pays at most max queued rewards, oldest first, while funds last.
func (l *Ledger) PayReward(ctx context.Context, tx *db.Tx, max uint64) (uint64, error) {
	pool, err := GetPool(tx)
	if err != nil {
		return 0, err
	}
	if !pool.Enabled {
		return 0, ErrRewardsDisabled.With()
	}
	paid, err := l.drain(tx, pool, max)
	if err != nil {
		return 0, err
	}
	tx.Emit(events.RewardsPaidOut{Count: paid})
	return paid, tx.Put(poolKey, pool)
}

// Replenish adds amount to the pool and drains the whole queue as far as
// the new balance allows.
func (l *Ledger) Replenish(ctx context.Context, tx *db.Tx, amount *uint256.Int) (uint64, error) {
	pool, err := GetPool(tx)
	if err != nil {
		return 0, err
	}
	if !pool.Enabled {
		return 0, ErrRewardsDisabled.With()
	}
	if amount.IsZero() {
		return 0, ErrNoFundsProvided.With()
	}
	if err := deposit(pool, amount); err != nil {
		return 0, err
	}
	tx.Emit(events.Replenished{Amount: amount.Clone()})

	paid, err := l.drain(tx, pool, math.MaxUint64)
	if err != nil {
		return 0, err
	}
	tx.Emit(events.RewardsPaidOut{Count: paid})
	return paid, tx.Put(poolKey, pool)
}

// Fund deposits amount without paying anything out.
func (l *Ledger) Fund(tx *db.Tx, amount *uint256.Int) error {
	if amount.IsZero() {
		return ErrNoFundsProvided.With()
	}
	pool, err := GetPool(tx)
	if err != nil {
		return err
	}
	if err := deposit(pool, amount); err != nil {
		return err
	}
	return tx.Put(poolKey, pool)
}

func (l *Ledger) SetEnabled(tx *db.Tx, enabled bool) error {
	pool, err := GetPool(tx)
	if err != nil {
		return err
	}
	if pool.Enabled == enabled {
		return ErrRewardStateNotChanged.With(enabled)
	}
	pool.Enabled = enabled
	if enabled {
		tx.Emit(events.RewardsActivated{})
	} else {
		tx.Emit(events.RewardsDeactivated{})
	}
	return tx.Put(poolKey, pool)
}

func deposit(pool *Pool, amount *uint256.Int) error {
	if _, overflow := pool.Balance.AddOverflow(&pool.Balance, amount); overflow {
		return ErrPoolOverflow.With(amount)
	}
	return nil
}

// drain pays queued rewards in order until the queue is empty, the head
// reward exceeds the balance or max payments were made.
func (l *Ledger) drain(tx *db.Tx, pool *Pool, max uint64) (uint64, error) {
	var paid uint64
	for pool.Head < pool.Tail && paid < max {
		key := db.SeqKey(queuePrefix, pool.Head)
		var next Pending
		if err := tx.Get(key, &next); err != nil {
			return paid, fmt.Errorf("reading queued reward %d: %w", pool.Head, err)
		}
		if pool.Balance.Lt(&next.Amount) {
			break
		}
		pool.Balance.Sub(&pool.Balance, &next.Amount)
		if err := tx.Delete(key); err != nil {
			return paid, err
		}
		pool.Head++
		l.schedule(tx, next.Winner, &next.Amount)
		paid++
	}
	return paid, nil
}

func enqueue(tx *db.Tx, pool *Pool, winner types.Address, amount *uint256.Int) error {
	if err := tx.Put(db.SeqKey(queuePrefix, pool.Tail), &Pending{Winner: winner, Amount: *amount}); err != nil {
		return err
	}
	pool.Tail++
	tx.OnCommit(func(context.Context) { queuedMetric.Inc() })
	return nil
}

// schedule transfers amount to winner once tx committed.
func (l *Ledger) schedule(tx *db.Tx, winner types.Address, amount *uint256.Int) {
	amount = amount.Clone()
	tx.OnCommit(func(ctx context.Context) {
		log := logging.FromContext(ctx).With(zap.Stringer("winner", winner), zap.String("amount", amount.Dec()))
		if err := l.payer.Pay(ctx, winner, amount); err != nil {
			paidMetric.WithLabelValues("failed").Inc()
			log.Warn("reward transfer failed, queueing it again", zap.Error(err))
			if err := l.requeue(ctx, winner, amount); err != nil {
				log.Error("failed to queue failed reward", zap.Error(err))
			}
			return
		}
		paidMetric.WithLabelValues("paid").Inc()
		log.Debug("reward paid")
	})
}

// requeue returns a failed transfer to the pool and queues it again.
func (l *Ledger) requeue(ctx context.Context, winner types.Address, amount *uint256.Int) error {
	_, err := l.db.Update(context.WithoutCancel(ctx), time.Now(), func(tx *db.Tx) error {
		pool, err := GetPool(tx)
		if err != nil {
			return err
		}
		if err := deposit(pool, amount); err != nil {
			return err
		}
		if err := enqueue(tx, pool, winner, amount); err != nil {
			return err
		}
		return tx.Put(poolKey, pool)
	})
	return err
}
