package storage

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type TransactionRow struct {
	ID          string
	Amount      string
	Kind        string
	Category    string
	TimestampMs int64
	Note        string
}

type AlertRow struct {
	ID               int64
	Kind             string
	Period           string
	Category         string
	Spent            string
	BudgetLimit      string
	TransactionCount int64
	TopCategory      string
	TopAmount        string
	WindowStartMs    int64
	WindowEndMs      int64
	RaisedAtMs       int64
}

const upsertTransaction = `
INSERT INTO transactions (id, amount, kind, category, timestamp_ms, note)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    amount = excluded.amount,
    kind = excluded.kind,
    category = excluded.category,
    timestamp_ms = excluded.timestamp_ms,
    note = excluded.note,
    updated_at = CURRENT_TIMESTAMP
`

func (q *Queries) UpsertTransaction(ctx context.Context, arg TransactionRow) error {
	_, err := q.db.ExecContext(ctx, upsertTransaction,
		arg.ID, arg.Amount, arg.Kind, arg.Category, arg.TimestampMs, arg.Note)
	return err
}

const listTransactions = `
SELECT id, amount, kind, category, timestamp_ms, note
FROM transactions
ORDER BY timestamp_ms DESC, id ASC
`

func (q *Queries) ListTransactions(ctx context.Context) ([]TransactionRow, error) {
	rows, err := q.db.QueryContext(ctx, listTransactions)
	if err != nil {
		return nil, err
	}
	return scanTransactions(rows)
}

const listTransactionsInRange = `
SELECT id, amount, kind, category, timestamp_ms, note
FROM transactions
WHERE timestamp_ms >= ? AND timestamp_ms < ?
ORDER BY timestamp_ms DESC, id ASC
`

func (q *Queries) ListTransactionsInRange(ctx context.Context, fromMs, toMs int64) ([]TransactionRow, error) {
	rows, err := q.db.QueryContext(ctx, listTransactionsInRange, fromMs, toMs)
	if err != nil {
		return nil, err
	}
	return scanTransactions(rows)
}

const deleteTransaction = `DELETE FROM transactions WHERE id = ?`

func (q *Queries) DeleteTransaction(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, deleteTransaction, id)
	return err
}

const countTransactions = `SELECT COUNT(*) FROM transactions`

func (q *Queries) CountTransactions(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, countTransactions)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const insertAlert = `
INSERT INTO alerts (
    kind, period, category, spent, budget_limit, transaction_count,
    top_category, top_amount, window_start_ms, window_end_ms, raised_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

func (q *Queries) InsertAlert(ctx context.Context, arg AlertRow) (int64, error) {
	res, err := q.db.ExecContext(ctx, insertAlert,
		arg.Kind, arg.Period, arg.Category, arg.Spent, arg.BudgetLimit, arg.TransactionCount,
		arg.TopCategory, arg.TopAmount, arg.WindowStartMs, arg.WindowEndMs, arg.RaisedAtMs)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const listRecentAlerts = `
SELECT id, kind, period, category, spent, budget_limit, transaction_count,
       top_category, top_amount, window_start_ms, window_end_ms, raised_at_ms
FROM alerts
ORDER BY raised_at_ms DESC, id DESC
LIMIT ?
`

func (q *Queries) ListRecentAlerts(ctx context.Context, limit int64) ([]AlertRow, error) {
	rows, err := q.db.QueryContext(ctx, listRecentAlerts, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []AlertRow
	for rows.Next() {
		var i AlertRow
		if err := rows.Scan(
			&i.ID, &i.Kind, &i.Period, &i.Category, &i.Spent, &i.BudgetLimit, &i.TransactionCount,
			&i.TopCategory, &i.TopAmount, &i.WindowStartMs, &i.WindowEndMs, &i.RaisedAtMs,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func scanTransactions(rows *sql.Rows) ([]TransactionRow, error) {
	defer rows.Close()
	var items []TransactionRow
	for rows.Next() {
		var i TransactionRow
		if err := rows.Scan(&i.ID, &i.Amount, &i.Kind, &i.Category, &i.TimestampMs, &i.Note); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
