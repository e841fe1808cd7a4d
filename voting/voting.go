// Package voting runs the majority votes workers hold over matching results.
//
// Each input hash has one session. Workers vote for an output hash; a
// candidate output wins once enough workers agree, after which the session
// starts a new round so the same input can be replayed. Won outputs are kept
// in order and can never be voted on again.
package voting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/energywebfoundation/worker-contract-sub000/db"
	"github.com/energywebfoundation/worker-contract-sub000/events"
	"github.com/energywebfoundation/worker-contract-sub000/logging"
	"github.com/energywebfoundation/worker-contract-sub000/types"
	"github.com/energywebfoundation/worker-contract-sub000/workers"
)

var (
	ErrAlreadyVoted             = types.NewFailure(types.ErrStateConflict, "AlreadyVoted")
	ErrSessionCannotBeRestarted = types.NewFailure(types.ErrStateConflict, "SessionCannotBeRestarted")
)

var (
	votesMetric = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "greenproof",
		Subsystem: "voting",
		Name:      "votes_total",
		Help:      "Number of accepted votes",
	})
	outcomesMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "greenproof",
		Subsystem: "voting",
		Name:      "outcomes_total",
		Help:      "Number of finished voting rounds by outcome",
	}, []string{"outcome"})
	expiredMetric = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "greenproof",
		Subsystem: "voting",
		Name:      "expired_sessions_total",
		Help:      "Number of candidate sessions cancelled for running out of time",
	})
)

//go:generate mockgen -package mocks -destination mocks/rewarder.go . Rewarder

// Rewarder pays the workers who voted for a winning output.
type Rewarder interface {
	Reward(ctx context.Context, tx *db.Tx, winners []types.Address) error
}

type Config struct {
	// TimeLimit bounds how long a candidate may collect votes.
	TimeLimit time.Duration
	// Majority is the percentage of whitelisted workers that must agree.
	Majority uint64
}

const (
	sessionPrefix = "voting/session"
	indexPrefix   = "voting/index"
)

var countKey = []byte("voting/count")

func sessionKey(input types.Hash) []byte {
	return db.Key(sessionPrefix, input.Hex())
}

type Engine struct {
	cfg      Config
	rewarder Rewarder
}

func New(cfg Config, rewarder Rewarder) *Engine {
	return &Engine{cfg: cfg, rewarder: rewarder}
}

// Vote records the vote of worker for output as the result of input.
func (e *Engine) Vote(ctx context.Context, tx *db.Tx, worker types.Address, input, output types.Hash) error {
	ok, err := workers.IsWhitelisted(tx, worker)
	if err != nil {
		return err
	}
	if !ok {
		return workers.ErrNotWhitelisted.With(worker)
	}

	session, err := e.load(tx, input)
	if err != nil {
		return err
	}
	c := session.candidate(output)
	if c.Status == StatusActive && e.timedOut(c, tx.Now()) {
		session.expire(c)
		tx.Emit(events.VotingSessionExpired{InputHash: input, OutputHash: output})
		tx.OnCommit(func(context.Context) { expiredMetric.Inc() })
	}
	if session.hasActiveVote(worker) {
		return ErrAlreadyVoted.With(worker)
	}
	if c.Status == StatusWon {
		return ErrSessionCannotBeRestarted.With(input, output)
	}

	if c.Status != StatusActive {
		c.Status = StatusActive
		c.StartedAt = tx.Now().Unix()
	}
	c.Voters = append(c.Voters, worker)
	session.ActiveVoters = append(session.ActiveVoters, worker)
	tx.OnCommit(func(ctx context.Context) {
		votesMetric.Inc()
		logging.FromContext(ctx).Debug("vote recorded",
			zap.Stringer("worker", worker),
			zap.Stringer("input", input),
			zap.Stringer("output", output),
		)
	})

	count, err := workers.Count(tx)
	if err != nil {
		return err
	}
	if uint64(len(c.Voters)) >= Threshold(count, e.cfg.Majority) {
		if err := e.win(ctx, tx, session, c); err != nil {
			return err
		}
	} else {
		done, err := everyoneVoted(tx, session)
		if err != nil {
			return err
		}
		if done {
			session.nextRound()
			tx.Emit(events.NoConsensusReached{InputHash: input})
			tx.OnCommit(func(ctx context.Context) {
				outcomesMetric.WithLabelValues("no_consensus").Inc()
				logging.FromContext(ctx).Info("no consensus reached", zap.Stringer("input", input))
			})
		}
	}
	return tx.Put(sessionKey(input), session)
}

func (e *Engine) win(ctx context.Context, tx *db.Tx, session *Session, c *Candidate) error {
	winners := append([]types.Address(nil), c.Voters...)
	c.Status = StatusWon
	session.Winners = append(session.Winners, c.Output)
	for _, w := range winners {
		session.reveal(w, c.Output)
	}
	session.nextRound()

	input, output := session.Input, c.Output
	tx.Emit(events.WinningMatch{InputHash: input, OutputHash: output, VoteCount: uint64(len(winners))})
	tx.Emit(events.ConsensusReached{InputHash: input, OutputHash: output})
	tx.OnCommit(func(ctx context.Context) {
		outcomesMetric.WithLabelValues("consensus").Inc()
		logging.FromContext(ctx).Info("consensus reached",
			zap.Stringer("input", input),
			zap.Stringer("output", output),
			zap.Int("votes", len(winners)),
		)
	})
	if err := e.rewarder.Reward(ctx, tx, winners); err != nil {
		return fmt.Errorf("rewarding winners of %s: %w", input, err)
	}
	return nil
}

// everyoneVoted reports whether every currently whitelisted worker holds a
// vote in the open round.
func everyoneVoted(r db.Reader, session *Session) (bool, error) {
	current, err := workers.List(r)
	if err != nil {
		return false, err
	}
	active := toSet(session.ActiveVoters)
	for _, w := range current {
		if !active.Contains(w) {
			return false, nil
		}
	}
	return true, nil
}

func (e *Engine) timedOut(c *Candidate, now time.Time) bool {
	return now.Sub(time.Unix(c.StartedAt, 0)) > e.cfg.TimeLimit
}

// load returns the session of input, creating and indexing it on first use.
func (e *Engine) load(tx *db.Tx, input types.Hash) (*Session, error) {
	session := &Session{}
	found, err := db.Lookup(tx, sessionKey(input), session)
	if err != nil {
		return nil, err
	}
	if found {
		return session, nil
	}

	n, err := NumberOfVotings(tx)
	if err != nil {
		return nil, err
	}
	if err := tx.Put(db.SeqKey(indexPrefix, n), input); err != nil {
		return nil, err
	}
	if err := tx.Put(countKey, n+1); err != nil {
		return nil, err
	}
	return &Session{Input: input}, nil
}

// CancelExpired expires the timed out candidates of the input hashes in
// [startVoting, startVoting+maxVotings), looking at candidates
// [startSession, startSession+maxSessions) of each. It returns how many
// candidates it expired.
func (e *Engine) CancelExpired(ctx context.Context, tx *db.Tx, startVoting, maxVotings, startSession, maxSessions uint64) (int, error) {
	total, err := NumberOfVotings(tx)
	if err != nil {
		return 0, err
	}
	var expired int
	for i := startVoting; i < total && i-startVoting < maxVotings; i++ {
		var input types.Hash
		if err := tx.Get(db.SeqKey(indexPrefix, i), &input); err != nil {
			return expired, fmt.Errorf("reading voting %d: %w", i, err)
		}
		session := &Session{}
		if err := tx.Get(sessionKey(input), session); err != nil {
			return expired, fmt.Errorf("reading session %s: %w", input, err)
		}

		var changed bool
		for j := startSession; j < uint64(len(session.Candidates)) && j-startSession < maxSessions; j++ {
			c := &session.Candidates[j]
			if c.Status != StatusActive || !e.timedOut(c, tx.Now()) {
				continue
			}
			session.expire(c)
			tx.Emit(events.VotingSessionExpired{InputHash: input, OutputHash: c.Output})
			changed = true
			expired++
		}
		if changed {
			if err := tx.Put(sessionKey(input), session); err != nil {
				return expired, err
			}
		}
	}

	if expired > 0 {
		tx.OnCommit(func(ctx context.Context) {
			expiredMetric.Add(float64(expired))
			logging.FromContext(ctx).Info("expired voting sessions cancelled", zap.Int("count", expired))
		})
	}
	return expired, nil
}

// GetSession returns the state of input, or nil when nobody voted on it yet.
func GetSession(r db.Reader, input types.Hash) (*Session, error) {
	session := &Session{}
	found, err := db.Lookup(r, sessionKey(input), session)
	if err != nil || !found {
		return nil, err
	}
	return session, nil
}

// WinningMatches lists the outputs that won for input, oldest first.
func WinningMatches(r db.Reader, input types.Hash) ([]types.Hash, error) {
	session, err := GetSession(r, input)
	if err != nil || session == nil {
		return []types.Hash{}, err
	}
	return append([]types.Hash{}, session.Winners...), nil
}

// Winners lists the workers whose votes made output win for input.
func Winners(r db.Reader, input, output types.Hash) ([]types.Address, error) {
	session, err := GetSession(r, input)
	if err != nil || session == nil {
		return []types.Address{}, err
	}
	c := session.find(output)
	if c == nil || c.Status != StatusWon {
		return []types.Address{}, nil
	}
	return append([]types.Address{}, c.Voters...), nil
}

// WorkerVotes lists the winning outputs worker voted for on input.
func WorkerVotes(r db.Reader, input types.Hash, worker types.Address) ([]types.Hash, error) {
	session, err := GetSession(r, input)
	if err != nil || session == nil {
		return []types.Hash{}, err
	}
	return append([]types.Hash{}, session.revealed(worker)...), nil
}

func NumberOfVotings(r db.Reader) (uint64, error) {
	var n uint64
	err := r.Get(countKey, &n)
	if errors.Is(err, db.ErrNotFound) {
		return 0, nil
	}
	return n, err
}

// VoteIDs lists every input hash voted on, in order of the first vote.
func VoteIDs(r db.Reader) ([]types.Hash, error) {
	ids := []types.Hash{}
	err := r.Iterate([]byte(indexPrefix+"/"), nil, func(_ []byte, decode func(v any) error) error {
		var id types.Hash
		if err := decode(&id); err != nil {
			return err
		}
		ids = append(ids, id)
		return nil
	})
	return ids, err
}
