// Package broadcaster delivers the journal records of committed units of
// work to in-process subscribers and remote sinks.
package broadcaster

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/energywebfoundation/worker-contract-sub000/events"
	"github.com/energywebfoundation/worker-contract-sub000/logging"
)

const (
	DefaultBroadcastTimeout = 30 * time.Second
	DefaultSubscriberBuffer = 256
)

var (
	deliveredMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "greenproof",
		Subsystem: "broadcaster",
		Name:      "deliveries_total",
		Help:      "Number of record batches delivered to sinks by result",
	}, []string{"result"})
	subscribersMetric = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "greenproof",
		Subsystem: "broadcaster",
		Name:      "subscribers",
		Help:      "Number of live event subscriptions",
	})
	droppedMetric = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "greenproof",
		Subsystem: "broadcaster",
		Name:      "dropped_subscribers_total",
		Help:      "Number of subscriptions closed for falling behind",
	})
)

//go:generate mockgen -package mocks -destination mocks/sink.go . Sink

// Sink is a remote receiver of committed records.
type Sink interface {
	Publish(ctx context.Context, records []events.Record) error
	Target() string
}

type Broadcaster struct {
	sinks            []Sink
	broadcastTimeout time.Duration
	ackThreshold     uint

	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*Subscription
}

func New(sinks []Sink, disableSinks bool, broadcastTimeout time.Duration, ackThreshold uint) (*Broadcaster, error) {
	b := &Broadcaster{
		broadcastTimeout: broadcastTimeout,
		subs:             make(map[uint64]*Subscription),
	}
	if disableSinks || len(sinks) == 0 {
		return b, nil
	}
	if ackThreshold < 1 {
		return nil, errors.New("successful broadcast threshold must be greater than 0")
	}
	if len(sinks) < int(ackThreshold) {
		return nil, fmt.Errorf("number of sinks (%d) must be greater than the successful broadcast threshold (%d)", len(sinks), ackThreshold)
	}
	if broadcastTimeout <= 0 {
		b.broadcastTimeout = DefaultBroadcastTimeout
	}
	b.sinks = sinks
	b.ackThreshold = ackThreshold
	return b, nil
}

// Broadcast hands records to every subscriber and sink. Failures are
// logged; the records stay in the journal either way.
func (b *Broadcaster) Broadcast(ctx context.Context, records []events.Record) {
	if len(records) == 0 {
		return
	}
	b.notify(ctx, records)
	if err := b.Publish(ctx, records); err != nil {
		logging.FromContext(ctx).Error("event broadcast failed", zap.Uint64("first_seq", records[0].Seq), zap.Error(err))
	}
}

// Publish delivers records to all sinks concurrently and fails when fewer
// than the ack threshold accepted them.
func (b *Broadcaster) Publish(ctx context.Context, records []events.Record) error {
	if len(b.sinks) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.broadcastTimeout)
	defer cancel()

	errs := make([]error, len(b.sinks))
	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(len(b.sinks))
	for i, sink := range b.sinks {
		i, sink := i, sink
		go func() {
			defer wg.Done()
			errs[i] = sink.Publish(ctx, records)
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	var numAcks int
	var result *multierror.Error
	for i, err := range errs {
		if err == nil {
			numAcks++
			deliveredMetric.WithLabelValues("ok").Inc()
			continue
		}
		deliveredMetric.WithLabelValues("failed").Inc()
		result = multierror.Append(result, fmt.Errorf("publishing to %q after %v: %w", b.sinks[i].Target(), elapsed, err))
	}
	if numAcks < int(b.ackThreshold) {
		return result.ErrorOrNil()
	}
	if result != nil {
		logging.FromContext(ctx).Warn("broadcast failed on some sinks",
			zap.Int("failed", len(b.sinks)-numAcks),
			zap.Int("sinks", len(b.sinks)),
			zap.Error(result),
		)
	}
	logging.FromContext(ctx).Debug("broadcast completed",
		zap.Duration("elapsed", elapsed),
		zap.Int("records", len(records)),
	)
	return nil
}

// Subscription receives every record broadcast after it was created. C is
// closed when the subscription is cancelled or fell behind by more than its
// buffer.
type Subscription struct {
	C <-chan events.Record

	id      uint64
	ch      chan events.Record
	b       *Broadcaster
	dropped bool
}

// Subscribe registers a subscriber buffering up to buffer records.
func (b *Broadcaster) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	ch := make(chan events.Record, buffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub := &Subscription{C: ch, id: b.nextID, ch: ch, b: b}
	b.subs[sub.id] = sub
	subscribersMetric.Inc()
	return sub
}

// Dropped reports whether the subscription was closed for falling behind.
func (s *Subscription) Dropped() bool {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	return s.dropped
}

func (s *Subscription) Close() {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	s.b.remove(s)
}

// remove must be called with b.mu held.
func (b *Broadcaster) remove(s *Subscription) {
	if _, ok := b.subs[s.id]; !ok {
		return
	}
	delete(b.subs, s.id)
	close(s.ch)
	subscribersMetric.Dec()
}

func (b *Broadcaster) notify(ctx context.Context, records []events.Record) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		for _, record := range records {
			select {
			case sub.ch <- record:
				continue
			default:
			}
			logging.FromContext(ctx).Warn("dropping slow event subscriber", zap.Uint64("subscription", sub.id))
			sub.dropped = true
			droppedMetric.Inc()
			b.remove(sub)
			break
		}
	}
}
