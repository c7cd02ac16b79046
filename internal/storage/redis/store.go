package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/log"
)

// DefaultKeyPrefix namespaces every key the store writes.
const DefaultKeyPrefix = "fintrack"

// Config holds connection settings.
type Config struct {
	URL       string
	Password  string
	KeyPrefix string
}

// Store keeps one JSON record per transaction plus a sorted set scored by
// timestamp milliseconds, which serves range queries.
type Store struct {
	client *redis.Client
	prefix string
	own    bool
	logger *log.Logger
}

type record struct {
	ID          string `json:"id"`
	Amount      string `json:"amount"`
	Kind        string `json:"kind"`
	Category    string `json:"category"`
	TimestampMs int64  `json:"timestamp_ms"`
	Note        string `json:"note,omitempty"`
}

// Open parses cfg.URL, connects and pings.
func Open(ctx context.Context, cfg Config, logger *log.Logger) (*Store, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	s := NewStore(client, cfg.KeyPrefix, logger)
	s.own = true
	return s, nil
}

// NewStore wraps an existing client. Close leaves the client open.
func NewStore(client *redis.Client, prefix string, logger *log.Logger) *Store {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{
		client: client,
		prefix: prefix,
		logger: logger.WithComponent(log.ComponentStorage).With(log.FieldBackend, "redis"),
	}
}

func (s *Store) recordKey(id string) string {
	return fmt.Sprintf("%s:tx:%s", s.prefix, id)
}

func (s *Store) indexKey() string {
	return s.prefix + ":tx:by_time"
}

func (s *Store) Put(ctx context.Context, tx core.Transaction) error {
	rec := record{
		ID:          tx.ID,
		Amount:      tx.Amount.String(),
		Kind:        string(tx.Kind),
		Category:    tx.Category,
		TimestampMs: core.ToMillis(tx.Timestamp),
		Note:        tx.Note,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal transaction: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.recordKey(tx.ID), data, 0)
	pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(rec.TimestampMs), Member: tx.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.ErrorContext(ctx, "redis error", log.FieldOperation, log.OpUpsert, log.FieldTransactionID, tx.ID, log.FieldError, err)
		return fmt.Errorf("failed to store transaction %s: %w", tx.ID, err)
	}
	return nil
}

func (s *Store) DeleteByID(ctx context.Context, id string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.recordKey(id))
	pipe.ZRem(ctx, s.indexKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete transaction %s: %w", id, err)
	}
	return nil
}

func (s *Store) GetAll(ctx context.Context) ([]core.Transaction, error) {
	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list transaction ids: %w", err)
	}
	return s.load(ctx, ids)
}

func (s *Store) QueryRange(ctx context.Context, start, end time.Time) ([]core.Transaction, error) {
	ids, err := s.client.ZRangeByScore(ctx, s.indexKey(), &redis.ZRangeBy{
		Min: strconv.FormatInt(core.CeilMillis(start), 10),
		Max: "(" + strconv.FormatInt(core.CeilMillis(end), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query transaction ids: %w", err)
	}
	return s.load(ctx, ids)
}

// load fetches the records for ids in one pipeline. Ids whose record has
// vanished since the index read are skipped.
func (s *Store) load(ctx context.Context, ids []string) ([]core.Transaction, error) {
	txs := make([]core.Transaction, 0, len(ids))
	if len(ids) == 0 {
		return txs, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, s.recordKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}

	for i, cmd := range cmds {
		val, err := cmd.Result()
		if err == redis.Nil {
			s.logger.DebugContext(ctx, "index entry without record", log.FieldTransactionID, ids[i])
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load transaction %s: %w", ids[i], err)
		}
		tx, err := decode(val)
		if err != nil {
			return nil, fmt.Errorf("transaction %s: %w", ids[i], err)
		}
		txs = append(txs, tx)
	}

	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].Timestamp.Equal(txs[j].Timestamp) {
			return txs[i].Timestamp.After(txs[j].Timestamp)
		}
		return txs[i].ID < txs[j].ID
	})
	return txs, nil
}

func decode(val string) (core.Transaction, error) {
	var rec record
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return core.Transaction{}, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	amount, err := decimal.NewFromString(rec.Amount)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse amount %q: %w", rec.Amount, err)
	}
	kind, err := core.ParseKind(rec.Kind)
	if err != nil {
		return core.Transaction{}, err
	}
	return core.Transaction{
		ID:        rec.ID,
		Amount:    amount,
		Kind:      kind,
		Category:  rec.Category,
		Timestamp: core.FromMillis(rec.TimestampMs),
		Note:      rec.Note,
	}, nil
}

// Ping reports whether redis is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	if s.own {
		return s.client.Close()
	}
	return nil
}
