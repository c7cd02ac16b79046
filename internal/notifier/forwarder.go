// Package notifier delivers budget alerts received from the message broker
// to their final destinations.
package notifier

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/cache"
	"fintrack/internal/log"
	"fintrack/internal/monitor"
)

// ForwarderConfig holds configuration for the forwarder
type ForwarderConfig struct {
	// MaxRetries is how many deliveries of one message are attempted before
	// it is dropped (default: 3)
	MaxRetries int

	// SeenSize bounds how many message ids are remembered (default: 1024)
	SeenSize int

	// SeenTTL is how long a message id is remembered (default: 24h)
	SeenTTL time.Duration
}

// DefaultForwarderConfig returns sensible defaults
func DefaultForwarderConfig() ForwarderConfig {
	return ForwarderConfig{
		MaxRetries: 3,
		SeenSize:   1024,
		SeenTTL:    24 * time.Hour,
	}
}

// Stats counts what the forwarder has done since it was created.
type Stats struct {
	Delivered  int64
	Duplicates int64
	Failed     int64
	Dropped    int64
}

// Forwarder hands each alert message to a sink. Redelivered messages that
// were already delivered are acknowledged without notifying again, and a
// message that keeps failing is dropped after MaxRetries attempts so it
// cannot block the queue.
type Forwarder struct {
	sink     monitor.AlertSink
	config   ForwarderConfig
	logger   *log.Logger
	events   *log.StructuredLogger
	attempts *cache.LRUCache[int]
	done     *cache.LRUCache[struct{}]

	delivered  atomic.Int64
	duplicates atomic.Int64
	failed     atomic.Int64
	dropped    atomic.Int64
}

// NewForwarder creates a new forwarder
func NewForwarder(sink monitor.AlertSink, config ForwarderConfig, logger *log.Logger) *Forwarder {
	def := DefaultForwarderConfig()
	if config.MaxRetries <= 0 {
		config.MaxRetries = def.MaxRetries
	}
	if config.SeenSize <= 0 {
		config.SeenSize = def.SeenSize
	}
	if config.SeenTTL <= 0 {
		config.SeenTTL = def.SeenTTL
	}
	if logger == nil {
		logger = log.NewNop()
	}
	logger = logger.WithComponent(log.ComponentNotifier)
	return &Forwarder{
		sink:     sink,
		config:   config,
		logger:   logger,
		events:   log.NewStructuredLogger(logger),
		attempts: cache.NewLRUCache[int](config.SeenSize, config.SeenTTL),
		done:     cache.NewLRUCache[struct{}](config.SeenSize, config.SeenTTL),
	}
}

// Caches returns the forwarder's caches so a cache.Manager can sweep them.
func (f *Forwarder) Caches() []cache.Cleaner {
	return []cache.Cleaner{f.attempts, f.done}
}

// HandleAlertMessage is an amqp.Client consumer handler. Returning an error
// asks the broker to redeliver.
func (f *Forwarder) HandleAlertMessage(ctx context.Context, msg *amqp.AlertMessage) error {
	if _, seen := f.done.Get(msg.MessageID); seen {
		f.duplicates.Add(1)
		f.logger.DebugContext(ctx, "Skipping already delivered alert", "message_id", msg.MessageID)
		return nil
	}

	attempt, _ := f.attempts.Get(msg.MessageID)
	attempt++

	if err := f.sink.Notify(ctx, msg.Alert); err != nil {
		f.failed.Add(1)
		f.logger.WarnContext(ctx, "Alert delivery failed",
			"message_id", msg.MessageID,
			"attempt", attempt,
			"max_retries", f.config.MaxRetries,
			log.FieldError, err)

		if attempt >= f.config.MaxRetries {
			f.dropped.Add(1)
			f.attempts.Delete(msg.MessageID)
			f.logger.ErrorContext(ctx, "Dropping alert after max retries",
				"message_id", msg.MessageID,
				log.FieldAlertKind, msg.Alert.Kind,
				log.FieldError, err)
			return nil
		}
		f.attempts.Set(msg.MessageID, attempt)
		return fmt.Errorf("deliver alert %s: %w", msg.MessageID, err)
	}

	f.attempts.Delete(msg.MessageID)
	f.done.Set(msg.MessageID, struct{}{})
	f.delivered.Add(1)
	f.events.LogAlert(ctx, msg.Alert)
	return nil
}

func (f *Forwarder) Stats() Stats {
	return Stats{
		Delivered:  f.delivered.Load(),
		Duplicates: f.duplicates.Load(),
		Failed:     f.failed.Load(),
		Dropped:    f.dropped.Load(),
	}
}
