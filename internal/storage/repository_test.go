package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/core"
	"fintrack/internal/ledger"
	"fintrack/internal/monitor"
)

var (
	_ ledger.Storage    = (*SQLiteRepository)(nil)
	_ monitor.AlertSink = (*SQLiteRepository)(nil)
)

func newRepo(t *testing.T) (*SQLiteRepository, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "fintrack.db")
	repo, err := NewSQLiteRepository(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo, path
}

func sample(id string, amount string, kind core.Kind, category string, at time.Time) core.Transaction {
	return core.Transaction{
		ID:        id,
		Amount:    decimal.RequireFromString(amount),
		Kind:      kind,
		Category:  category,
		Timestamp: at,
		Note:      "note " + id,
	}
}

func TestSQLiteRepository_PutAndGetAll(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)
	base := time.Date(2024, 6, 5, 9, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Put(ctx, sample("a", "12.34", core.KindExpense, "Food", base)))
	require.NoError(t, repo.Put(ctx, sample("b", "1000", core.KindIncome, "Salary", base.Add(time.Hour))))

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "b", all[0].ID)
	assert.True(t, all[1].Amount.Equal(decimal.RequireFromString("12.34")))
	assert.Equal(t, core.KindExpense, all[1].Kind)
	assert.Equal(t, "note a", all[1].Note)
	assert.True(t, all[1].Timestamp.Equal(base))
}

func TestSQLiteRepository_PutReplaces(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)
	at := time.Date(2024, 6, 5, 9, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Put(ctx, sample("t1", "10", core.KindExpense, "Food", at)))
	require.NoError(t, repo.Put(ctx, sample("t1", "20", core.KindIncome, "Gift", at)))

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].Amount.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, core.KindIncome, all[0].Kind)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSQLiteRepository_DeleteAbsentIsNoop(t *testing.T) {
	repo, _ := newRepo(t)
	assert.NoError(t, repo.DeleteByID(context.Background(), "absent"))
}

func TestSQLiteRepository_QueryRangeBoundaries(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)
	start := time.Date(2024, 6, 5, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	require.NoError(t, repo.Put(ctx, sample("at-start", "1", core.KindExpense, "Food", start)))
	require.NoError(t, repo.Put(ctx, sample("inside", "1", core.KindExpense, "Food", start.Add(time.Hour))))
	require.NoError(t, repo.Put(ctx, sample("at-end", "1", core.KindExpense, "Food", end)))
	require.NoError(t, repo.Put(ctx, sample("before", "1", core.KindExpense, "Food", start.Add(-time.Millisecond))))

	got, err := repo.QueryRange(ctx, start, end)
	require.NoError(t, err)
	ids := []string{}
	for _, tx := range got {
		ids = append(ids, tx.ID)
	}
	assert.Equal(t, []string{"inside", "at-start"}, ids)

	empty, err := repo.QueryRange(ctx, end.Add(time.Hour), end.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, empty)

	// sub-millisecond bounds around the "at-start" record
	half := 500 * time.Microsecond
	got, err = repo.QueryRange(ctx, start.Add(-half), start.Add(half))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "at-start", got[0].ID)

	got, err = repo.QueryRange(ctx, start.Add(half), start.Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSQLiteRepository_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	repo, path := newRepo(t)
	require.NoError(t, repo.Put(ctx, sample("keep", "5", core.KindExpense, "Bills", time.Now())))
	require.NoError(t, repo.Close())

	reopened, err := NewSQLiteRepository(path, nil)
	require.NoError(t, err)
	defer reopened.Close()

	all, err := reopened.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "keep", all[0].ID)
}

func TestSQLiteRepository_BacksLedgerStore(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)
	at := time.Date(2024, 6, 5, 9, 0, 0, 0, time.UTC)

	store, err := ledger.Open(ctx, repo, nil)
	require.NoError(t, err)
	require.NoError(t, store.Upsert(ctx, sample("t1", "100", core.KindExpense, "Food", at)))
	require.NoError(t, store.DeleteByID(ctx, "t1"))

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSQLiteRepository_AlertHistory(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)
	raised := time.Date(2024, 6, 5, 18, 0, 0, 0, time.UTC)

	over := core.NewOverBudgetAlert("Food", decimal.NewFromInt(300), decimal.NewFromInt(250))
	over.WindowStart = raised.Truncate(24 * time.Hour)
	over.WindowEnd = raised
	over.RaisedAt = raised
	require.NoError(t, repo.Notify(ctx, over))

	beat := core.NewHeartbeatAlert(2, "Transport", decimal.NewFromInt(40))
	beat.Period = "this week"
	beat.RaisedAt = raised.Add(time.Hour)
	require.NoError(t, repo.Notify(ctx, beat))

	alerts, err := repo.RecentAlerts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, core.AlertHeartbeat, alerts[0].Kind)
	assert.Equal(t, "Transport", alerts[0].TopCategory)
	assert.Equal(t, beat.Message(), alerts[0].Message())
	assert.Contains(t, alerts[0].Message(), "This week:")
	assert.Equal(t, core.AlertOverBudget, alerts[1].Kind)
	assert.Equal(t, over.Message(), alerts[1].Message())
	assert.True(t, alerts[1].WindowEnd.Equal(raised))

	one, err := repo.RecentAlerts(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, one, 1)
}
