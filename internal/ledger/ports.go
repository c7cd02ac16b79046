package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fintrack/internal/core"
)

// Storage is the durable collaborator behind a Store. Implementations own
// their format, timeouts and retries; the Store never retries a call.
type Storage interface {
	// Put inserts tx or replaces the record with the same ID.
	Put(ctx context.Context, tx core.Transaction) error
	GetAll(ctx context.Context) ([]core.Transaction, error)
	// DeleteByID removes the record if present. Missing IDs are not an error.
	DeleteByID(ctx context.Context, id string) error
	// QueryRange returns records with start <= timestamp < end.
	QueryRange(ctx context.Context, start, end time.Time) ([]core.Transaction, error)
	Close() error
}

// CommitListener is notified after every committed mutation, in commit order.
// The snapshot must be treated as read-only.
type CommitListener interface {
	OnCommit(ctx context.Context, snap Snapshot) error
}

// CommitListenerFunc adapts a function to CommitListener.
type CommitListenerFunc func(ctx context.Context, snap Snapshot) error

func (f CommitListenerFunc) OnCommit(ctx context.Context, snap Snapshot) error {
	return f(ctx, snap)
}

// Snapshot is a point-in-time copy of every known transaction, newest first.
// Version counts the mutations committed since the store was opened.
type Snapshot struct {
	Transactions []core.Transaction
	Version      uint64
}

var (
	ErrStorage = errors.New("storage failure")
	ErrClosed  = errors.New("ledger store closed")
)

// StorageError wraps a failure reported by the Storage collaborator.
// errors.Is(err, ErrStorage) holds for every StorageError.
type StorageError struct {
	Op  string
	ID  string
	Err error
}

func (e *StorageError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("storage %s %s: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }
