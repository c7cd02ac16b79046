// Package ledger owns the authoritative set of transactions.
//
// Writes are serialized and follow a validate, commit, publish sequence: a
// mutation only becomes visible to readers and listeners after the Storage
// collaborator has accepted it. Reads are served from an immutable in-memory
// state that is swapped atomically, so readers never wait on storage I/O and
// never observe a half applied write.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/log"
)

type state struct {
	byID    map[string]core.Transaction
	ordered []core.Transaction
	version uint64
}

func newState(txs []core.Transaction, version uint64) *state {
	byID := make(map[string]core.Transaction, len(txs))
	for _, tx := range txs {
		byID[tx.ID] = tx
	}
	return buildState(byID, version)
}

func buildState(byID map[string]core.Transaction, version uint64) *state {
	ordered := make([]core.Transaction, 0, len(byID))
	for _, tx := range byID {
		ordered = append(ordered, tx)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if !ordered[i].Timestamp.Equal(ordered[j].Timestamp) {
			return ordered[i].Timestamp.After(ordered[j].Timestamp)
		}
		return ordered[i].ID < ordered[j].ID
	})
	return &state{byID: byID, ordered: ordered, version: version}
}

func (s *state) with(tx core.Transaction) *state {
	byID := make(map[string]core.Transaction, len(s.byID)+1)
	for id, existing := range s.byID {
		byID[id] = existing
	}
	byID[tx.ID] = tx
	return buildState(byID, s.version+1)
}

func (s *state) without(id string) *state {
	byID := make(map[string]core.Transaction, len(s.byID))
	for existingID, existing := range s.byID {
		if existingID != id {
			byID[existingID] = existing
		}
	}
	return buildState(byID, s.version+1)
}

func (s *state) snapshot() Snapshot {
	txs := make([]core.Transaction, len(s.ordered))
	copy(txs, s.ordered)
	return Snapshot{Transactions: txs, Version: s.version}
}

// Store is the process-scoped ledger. Construct it with Open and pass it
// explicitly to every consumer.
type Store struct {
	storage   Storage
	logger    *log.Logger
	events    *log.StructuredLogger
	listeners []CommitListener

	writeMu sync.Mutex

	mu     sync.RWMutex
	cur    *state
	closed bool
}

// Open loads every record from storage and hands the initial snapshot to
// each listener before returning.
func Open(ctx context.Context, storage Storage, logger *log.Logger, listeners ...CommitListener) (*Store, error) {
	if storage == nil {
		return nil, fmt.Errorf("open ledger: storage is nil")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	logger = logger.WithComponent(log.ComponentLedger)

	txs, err := storage.GetAll(ctx)
	if err != nil {
		return nil, &StorageError{Op: "get_all", Err: err}
	}
	for i := range txs {
		txs[i] = txs[i].Normalized()
	}

	s := &Store{
		storage:   storage,
		logger:    logger,
		events:    log.NewStructuredLogger(logger),
		listeners: listeners,
		cur:       newState(txs, 0),
	}

	s.notify(ctx, s.cur)
	logger.InfoContext(ctx, "Ledger loaded", "transactions", len(txs))
	return s, nil
}

func (s *Store) load() *state {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

func (s *Store) swap(next *state) {
	s.mu.Lock()
	s.cur = next
	s.mu.Unlock()
}

func (s *Store) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Upsert inserts tx or replaces the record with the same ID. Listeners are
// notified exactly once, after storage has committed the write.
func (s *Store) Upsert(ctx context.Context, tx core.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	tx = tx.Normalized()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.isClosed() {
		return ErrClosed
	}

	if err := s.storage.Put(ctx, tx); err != nil {
		s.logger.ErrorContext(ctx, "Storage rejected upsert",
			log.FieldTransactionID, tx.ID, log.FieldError, err)
		return &StorageError{Op: "put", ID: tx.ID, Err: err}
	}

	next := s.load().with(tx)
	s.swap(next)
	s.events.LogCommitted(ctx, log.OpUpsert, tx, next.version)
	s.notify(ctx, next)
	return nil
}

// UpsertAll commits each transaction in order, stopping at the first failure.
// It returns how many were committed.
func (s *Store) UpsertAll(ctx context.Context, txs []core.Transaction) (int, error) {
	for i, tx := range txs {
		if err := s.Upsert(ctx, tx); err != nil {
			return i, fmt.Errorf("upsert %d of %d: %w", i+1, len(txs), err)
		}
	}
	return len(txs), nil
}

// DeleteByID removes the record with id. Deleting an unknown id succeeds
// without notifying listeners.
func (s *Store) DeleteByID(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return &core.ValidationError{Field: "id", Err: core.ErrEmptyID}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.isClosed() {
		return ErrClosed
	}

	if err := s.storage.DeleteByID(ctx, id); err != nil {
		s.logger.ErrorContext(ctx, "Storage rejected delete",
			log.FieldTransactionID, id, log.FieldError, err)
		return &StorageError{Op: "delete", ID: id, Err: err}
	}

	cur := s.load()
	existing, ok := cur.byID[id]
	if !ok {
		s.logger.DebugContext(ctx, "Delete of unknown transaction", log.FieldTransactionID, id)
		return nil
	}

	next := cur.without(id)
	s.swap(next)
	s.events.LogCommitted(ctx, log.OpDelete, existing, next.version)
	s.notify(ctx, next)
	return nil
}

// Clear deletes every known transaction, one committed mutation at a time.
func (s *Store) Clear(ctx context.Context) error {
	for _, tx := range s.load().ordered {
		if err := s.DeleteByID(ctx, tx.ID); err != nil {
			return err
		}
	}
	return nil
}

// GetByID returns the record for id and whether it exists.
func (s *Store) GetByID(id string) (core.Transaction, bool) {
	tx, ok := s.load().byID[id]
	return tx, ok
}

// QueryRange asks storage for the records with start <= timestamp < end.
// An empty or inverted range yields an empty result.
func (s *Store) QueryRange(ctx context.Context, start, end time.Time) ([]core.Transaction, error) {
	if !start.Before(end) {
		return []core.Transaction{}, nil
	}
	txs, err := s.storage.QueryRange(ctx, start, end)
	if err != nil {
		return nil, &StorageError{Op: "query_range", Err: err}
	}
	if txs == nil {
		txs = []core.Transaction{}
	}
	return txs, nil
}

// All returns a copy of the current snapshot.
func (s *Store) All() Snapshot {
	return s.load().snapshot()
}

// ByKind returns the known transactions of kind k, newest first.
func (s *Store) ByKind(k core.Kind) []core.Transaction {
	return s.filter(func(tx core.Transaction) bool { return tx.Kind == k })
}

// ByCategory returns the known transactions in category, newest first.
func (s *Store) ByCategory(category string) []core.Transaction {
	return s.filter(func(tx core.Transaction) bool { return tx.Category == category })
}

func (s *Store) filter(keep func(core.Transaction) bool) []core.Transaction {
	out := []core.Transaction{}
	for _, tx := range s.load().ordered {
		if keep(tx) {
			out = append(out, tx)
		}
	}
	return out
}

// Version is the number of mutations committed since Open.
func (s *Store) Version() uint64 {
	return s.load().version
}

// Close rejects further writes. Reads keep serving the last snapshot. The
// storage collaborator is left to its owner.
func (s *Store) Close() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// notify runs with writeMu held so listeners see commits in order.
func (s *Store) notify(ctx context.Context, st *state) {
	for _, l := range s.listeners {
		if err := l.OnCommit(ctx, st.snapshot()); err != nil {
			s.logger.ErrorContext(ctx, "Commit listener failed",
				log.FieldVersion, st.version, log.FieldError, err)
		}
	}
}
