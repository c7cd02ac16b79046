package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/log"

	_ "modernc.org/sqlite"
)

// SQLiteRepository persists transactions and alert history in a single
// SQLite file. It satisfies ledger.Storage and monitor.AlertSink.
type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	logger  *log.Logger
}

func NewSQLiteRepository(dbPath string, logger *log.Logger) (*SQLiteRepository, error) {
	if logger == nil {
		logger = log.NewNop()
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		logger:  logger.WithComponent(log.ComponentStorage).With(log.FieldBackend, "sqlite"),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Put(ctx context.Context, tx core.Transaction) error {
	if err := r.queries.UpsertTransaction(ctx, toRow(tx)); err != nil {
		return fmt.Errorf("upsert transaction %s: %w", tx.ID, err)
	}
	r.logger.DebugContext(ctx, "Transaction saved to SQLite", log.FieldTransactionID, tx.ID)
	return nil
}

func (r *SQLiteRepository) GetAll(ctx context.Context) ([]core.Transaction, error) {
	rows, err := r.queries.ListTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return fromRows(rows)
}

func (r *SQLiteRepository) DeleteByID(ctx context.Context, id string) error {
	if err := r.queries.DeleteTransaction(ctx, id); err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) QueryRange(ctx context.Context, start, end time.Time) ([]core.Transaction, error) {
	rows, err := r.queries.ListTransactionsInRange(ctx, core.CeilMillis(start), core.CeilMillis(end))
	if err != nil {
		return nil, fmt.Errorf("list transactions in range: %w", err)
	}
	return fromRows(rows)
}

func (r *SQLiteRepository) Count(ctx context.Context) (int64, error) {
	return r.queries.CountTransactions(ctx)
}

// Notify records the alert in the alerts table.
func (r *SQLiteRepository) Notify(ctx context.Context, a core.Alert) error {
	id, err := r.queries.InsertAlert(ctx, AlertRow{
		Kind:             string(a.Kind),
		Period:           a.Period,
		Category:         a.Category,
		Spent:            a.Spent.String(),
		BudgetLimit:      a.Limit.String(),
		TransactionCount: int64(a.TransactionCount),
		TopCategory:      a.TopCategory,
		TopAmount:        a.TopAmount.String(),
		WindowStartMs:    core.ToMillis(a.WindowStart),
		WindowEndMs:      core.ToMillis(a.WindowEnd),
		RaisedAtMs:       core.ToMillis(a.RaisedAt),
	})
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	r.logger.DebugContext(ctx, "Alert saved to SQLite", "id", id, log.FieldAlertKind, a.Kind)
	return nil
}

// RecentAlerts returns up to limit alerts, newest first.
func (r *SQLiteRepository) RecentAlerts(ctx context.Context, limit int) ([]core.Alert, error) {
	rows, err := r.queries.ListRecentAlerts(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	alerts := make([]core.Alert, 0, len(rows))
	for _, row := range rows {
		a, err := alertFromRow(row)
		if err != nil {
			return nil, fmt.Errorf("alert %d: %w", row.ID, err)
		}
		alerts = append(alerts, a)
	}
	return alerts, nil
}

func toRow(tx core.Transaction) TransactionRow {
	return TransactionRow{
		ID:          tx.ID,
		Amount:      tx.Amount.String(),
		Kind:        string(tx.Kind),
		Category:    tx.Category,
		TimestampMs: core.ToMillis(tx.Timestamp),
		Note:        tx.Note,
	}
}

func fromRows(rows []TransactionRow) ([]core.Transaction, error) {
	txs := make([]core.Transaction, 0, len(rows))
	for _, row := range rows {
		amount, err := decimal.NewFromString(row.Amount)
		if err != nil {
			return nil, fmt.Errorf("transaction %s: parse amount %q: %w", row.ID, row.Amount, err)
		}
		kind, err := core.ParseKind(row.Kind)
		if err != nil {
			return nil, fmt.Errorf("transaction %s: %w", row.ID, err)
		}
		txs = append(txs, core.Transaction{
			ID:        row.ID,
			Amount:    amount,
			Kind:      kind,
			Category:  row.Category,
			Timestamp: core.FromMillis(row.TimestampMs),
			Note:      row.Note,
		})
	}
	return txs, nil
}

func alertFromRow(row AlertRow) (core.Alert, error) {
	var err error
	parse := func(s string) decimal.Decimal {
		d, perr := decimal.NewFromString(s)
		if perr != nil && err == nil {
			err = perr
		}
		return d
	}
	a := core.Alert{
		Kind:             core.AlertKind(row.Kind),
		Period:           row.Period,
		Category:         row.Category,
		Spent:            parse(row.Spent),
		Limit:            parse(row.BudgetLimit),
		TransactionCount: int(row.TransactionCount),
		TopCategory:      row.TopCategory,
		TopAmount:        parse(row.TopAmount),
		WindowStart:      core.FromMillis(row.WindowStartMs),
		WindowEnd:        core.FromMillis(row.WindowEndMs),
		RaisedAt:         core.FromMillis(row.RaisedAtMs),
	}
	return a, err
}
