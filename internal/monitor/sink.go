package monitor

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/core"
	"fintrack/internal/log"
)

// AlertSink receives the single alert produced by each budget run.
type AlertSink interface {
	Notify(ctx context.Context, alert core.Alert) error
}

// SinkFunc adapts a function to AlertSink.
type SinkFunc func(ctx context.Context, alert core.Alert) error

func (f SinkFunc) Notify(ctx context.Context, alert core.Alert) error {
	return f(ctx, alert)
}

// LogSink writes alerts to the structured log.
type LogSink struct {
	events *log.StructuredLogger
}

func NewLogSink(logger *log.Logger) *LogSink {
	if logger == nil {
		logger = log.NewNop()
	}
	return &LogSink{events: log.NewStructuredLogger(logger.WithComponent(log.ComponentMonitor))}
}

func (s *LogSink) Notify(ctx context.Context, alert core.Alert) error {
	s.events.LogAlert(ctx, alert)
	return nil
}

// ChannelSink queues alerts on a buffered channel for in-process consumers.
type ChannelSink struct {
	ch chan core.Alert
}

func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{ch: make(chan core.Alert, buffer)}
}

// Notify blocks until there is room or ctx ends.
func (s *ChannelSink) Notify(ctx context.Context, alert core.Alert) error {
	select {
	case s.ch <- alert:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *ChannelSink) Alerts() <-chan core.Alert { return s.ch }

// MultiSink fans an alert out to every sink concurrently and joins the errors.
// One failing sink never stops delivery to the others.
type MultiSink []AlertSink

func (m MultiSink) Notify(ctx context.Context, alert core.Alert) error {
	var g errgroup.Group
	// Group.Wait reports only the first failure, so every sink's error is
	// kept at its index and joined in sink order.
	errs := make([]error, len(m))
	for i, sink := range m {
		i, sink := i, sink
		g.Go(func() error {
			if err := sink.Notify(ctx, alert); err != nil {
				errs[i] = fmt.Errorf("sink %d: %w", i, err)
				return errs[i]
			}
			return nil
		})
	}
	if g.Wait() == nil {
		return nil
	}
	return errors.Join(errs...)
}
