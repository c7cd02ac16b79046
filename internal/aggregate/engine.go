// Package aggregate derives the running balance and per-category spend from
// ledger snapshots and streams them to subscribers.
package aggregate

import (
	"context"
	"fmt"
	"sync"

	"fintrack/internal/broadcast"
	"fintrack/internal/core"
	"fintrack/internal/ledger"
	"fintrack/internal/log"
)

var _ ledger.CommitListener = (*Engine)(nil)

// Engine recomputes both aggregates from the full snapshot on every commit.
// It never patches a previous value, so a replaced or deleted transaction
// can't leave a stale contribution behind.
type Engine struct {
	bus    *broadcast.Broadcaster[core.Aggregate]
	logger *log.Logger
}

func NewEngine(logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Engine{
		bus:    broadcast.New[core.Aggregate](),
		logger: logger.WithComponent(log.ComponentAggregate),
	}
}

// OnCommit is called by the ledger store from inside its write path.
func (e *Engine) OnCommit(ctx context.Context, snap ledger.Snapshot) error {
	agg, err := core.ComputeAggregate(snap.Transactions)
	if err != nil {
		return fmt.Errorf("recompute aggregate at version %d: %w", snap.Version, err)
	}
	agg.Version = snap.Version

	if err := e.bus.Publish(agg); err != nil {
		return fmt.Errorf("publish aggregate: %w", err)
	}
	e.logger.DebugContext(ctx, "Aggregate recomputed",
		log.FieldVersion, agg.Version,
		"balance", agg.Balance.String(),
		"categories", len(agg.CategorySpend))
	return nil
}

// Subscribe returns the current aggregate followed by every later one, in
// commit order. Each value is a private copy.
func (e *Engine) Subscribe(ctx context.Context) (<-chan core.Aggregate, func()) {
	src, cancel := e.bus.Subscribe(ctx)
	out := make(chan core.Aggregate)
	done := make(chan struct{})
	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(done)
			cancel()
		})
	}
	go func() {
		defer close(out)
		for agg := range src {
			select {
			case out <- agg.Clone():
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, stop
}

// Latest returns the most recent aggregate, or a zero one before the first commit.
func (e *Engine) Latest() core.Aggregate {
	agg, ok := e.bus.Latest()
	if !ok {
		empty, _ := core.ComputeAggregate(nil)
		return empty
	}
	return agg.Clone()
}

// Subscribers returns the number of live subscriptions.
func (e *Engine) Subscribers() int {
	return e.bus.Subscribers()
}

// Close ends every subscription after queued values are delivered.
func (e *Engine) Close() {
	e.bus.Close()
}
