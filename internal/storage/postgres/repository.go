package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

// Repository stores transactions in PostgreSQL. Amounts are NUMERIC and
// travel as text so no precision is lost on the way in or out.
type Repository struct {
	pool *pgxpool.Pool
	own  bool
}

// NewRepository wraps an existing pool. Close leaves the pool open.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Open migrates the schema, connects and returns a repository that owns its
// pool.
func Open(ctx context.Context, cfg Config) (*Repository, error) {
	if err := RunMigrations(cfg.URL); err != nil {
		return nil, err
	}
	pool, err := NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Repository{pool: pool, own: true}, nil
}

func (r *Repository) Put(ctx context.Context, tx core.Transaction) error {
	query := `
		INSERT INTO transactions (id, amount, kind, category, occurred_at, note)
		VALUES ($1, $2::numeric, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			amount = EXCLUDED.amount,
			kind = EXCLUDED.kind,
			category = EXCLUDED.category,
			occurred_at = EXCLUDED.occurred_at,
			note = EXCLUDED.note,
			updated_at = NOW()
	`
	_, err := r.pool.Exec(ctx, query,
		tx.ID,
		tx.Amount.String(),
		string(tx.Kind),
		tx.Category,
		tx.Timestamp.UTC(),
		tx.Note,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert transaction %s: %w", tx.ID, err)
	}
	return nil
}

func (r *Repository) GetAll(ctx context.Context) ([]core.Transaction, error) {
	query := `
		SELECT id, amount::text, kind, category, occurred_at, note
		FROM transactions
		ORDER BY occurred_at DESC, id ASC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	return scanTransactions(rows)
}

func (r *Repository) DeleteByID(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM transactions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete transaction %s: %w", id, err)
	}
	return nil
}

func (r *Repository) QueryRange(ctx context.Context, start, end time.Time) ([]core.Transaction, error) {
	query := `
		SELECT id, amount::text, kind, category, occurred_at, note
		FROM transactions
		WHERE occurred_at >= $1 AND occurred_at < $2
		ORDER BY occurred_at DESC, id ASC
	`
	from, to := core.FromMillis(core.CeilMillis(start)), core.FromMillis(core.CeilMillis(end))
	rows, err := r.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions in range: %w", err)
	}
	return scanTransactions(rows)
}

// Ping reports whether the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *Repository) Close() error {
	if r.own && r.pool != nil {
		r.pool.Close()
	}
	return nil
}

func scanTransactions(rows pgx.Rows) ([]core.Transaction, error) {
	defer rows.Close()

	txs := []core.Transaction{}
	for rows.Next() {
		var (
			tx     core.Transaction
			amount string
			kind   string
		)
		if err := rows.Scan(&tx.ID, &amount, &kind, &tx.Category, &tx.Timestamp, &tx.Note); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("transaction %s: parse amount %q: %w", tx.ID, amount, err)
		}
		k, err := core.ParseKind(kind)
		if err != nil {
			return nil, fmt.Errorf("transaction %s: %w", tx.ID, err)
		}
		tx.Amount = d
		tx.Kind = k
		tx.Timestamp = tx.Timestamp.UTC()
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return txs, nil
}
