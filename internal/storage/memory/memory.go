package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"fintrack/internal/core"
)

// Store keeps transactions in a map. Nothing survives a restart.
type Store struct {
	mu    sync.Mutex
	items map[string]core.Transaction
}

func New(seed ...core.Transaction) *Store {
	s := &Store{items: make(map[string]core.Transaction, len(seed))}
	for _, tx := range seed {
		s.items[tx.ID] = tx.Normalized()
	}
	return s
}

// NewFromFile seeds the store from a JSON array of transactions. A missing
// file yields an empty store. Entries without an id get a fresh one.
func NewFromFile(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seed []core.Transaction
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	for i := range seed {
		if seed[i].ID == "" {
			seed[i].ID = uuid.NewString()
		}
		if err := seed[i].Validate(); err != nil {
			return nil, fmt.Errorf("seed entry %d: %w", i, err)
		}
	}
	return New(seed...), nil
}

func (s *Store) Put(ctx context.Context, tx core.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[tx.ID] = tx.Normalized()
	return nil
}

func (s *Store) GetAll(ctx context.Context) ([]core.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Transaction, 0, len(s.items))
	for _, tx := range s.items {
		out = append(out, tx)
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *Store) DeleteByID(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
	return nil
}

func (s *Store) QueryRange(ctx context.Context, start, end time.Time) ([]core.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	from, to := core.CeilMillis(start), core.CeilMillis(end)
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []core.Transaction{}
	for _, tx := range s.items {
		ms := core.ToMillis(tx.Timestamp)
		if ms >= from && ms < to {
			out = append(out, tx)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

// Len returns the number of stored transactions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) Close() error { return nil }

func sortNewestFirst(txs []core.Transaction) {
	sort.Slice(txs, func(i, j int) bool {
		if !txs[i].Timestamp.Equal(txs[j].Timestamp) {
			return txs[i].Timestamp.After(txs[j].Timestamp)
		}
		return txs[i].ID < txs[j].ID
	})
}
