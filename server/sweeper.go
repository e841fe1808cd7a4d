package server

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/energywebfoundation/worker-contract-sub000/db"
	"github.com/energywebfoundation/worker-contract-sub000/greenproof"
	"github.com/energywebfoundation/worker-contract-sub000/logging"
	"github.com/energywebfoundation/worker-contract-sub000/types"
	"github.com/energywebfoundation/worker-contract-sub000/voting"
)

// sweeper cancels timed out voting sessions on behalf of the owner, one
// page of input hashes per unit of work.
type sweeper struct {
	ledger   *greenproof.Ledger
	interval time.Duration
	pageSize uint64
}

func newSweeper(ledger *greenproof.Ledger, interval time.Duration, pageSize uint64) *sweeper {
	if pageSize == 0 {
		pageSize = 1
	}
	return &sweeper{ledger: ledger, interval: interval, pageSize: pageSize}
}

func (s *sweeper) Run(ctx context.Context) error {
	logger := logging.FromContext(ctx).Named("sweeper")
	ctx = logging.NewContext(ctx, logger)
	logger.Info("cancelling expired votings periodically", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			expired, err := s.sweep(ctx)
			if err != nil {
				logger.Warn("sweep failed", zap.Error(err))
				continue
			}
			if expired > 0 {
				logger.Info("cancelled expired votings", zap.Int("expired", expired))
			}
		}
	}
}

// sweep walks all votings once and returns how many sessions expired.
func (s *sweeper) sweep(ctx context.Context) (int, error) {
	var (
		owner types.Address
		total uint64
	)
	err := s.ledger.View(ctx, func(r db.Reader) error {
		state, err := greenproof.GetState(r)
		if err != nil {
			return err
		}
		owner = state.Owner
		total, err = voting.NumberOfVotings(r)
		return err
	})
	if err != nil {
		return 0, err
	}

	var expired int
	for start := uint64(0); start < total; start += s.pageSize {
		if err := ctx.Err(); err != nil {
			return expired, nil
		}
		n, _, err := s.ledger.CancelExpiredVotings(ctx, owner, start, s.pageSize, 0, math.MaxUint64)
		if err != nil {
			return expired, err
		}
		expired += n
	}
	return expired, nil
}
