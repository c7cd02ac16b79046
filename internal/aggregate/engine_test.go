package aggregate

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/core"
	"fintrack/internal/ledger"
	"fintrack/internal/storage/memory"
)

var ts = time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)

func newTx(id string, amount int64, kind core.Kind, category string) core.Transaction {
	return core.Transaction{
		ID:        id,
		Amount:    decimal.NewFromInt(amount),
		Kind:      kind,
		Category:  category,
		Timestamp: ts,
	}
}

func setup(t *testing.T, seed ...core.Transaction) (*ledger.Store, *Engine) {
	t.Helper()
	engine := NewEngine(nil)
	t.Cleanup(engine.Close)
	store, err := ledger.Open(context.Background(), memory.New(seed...), nil, engine)
	require.NoError(t, err)
	return store, engine
}

func next(t *testing.T, ch <-chan core.Aggregate) core.Aggregate {
	t.Helper()
	select {
	case agg, ok := <-ch:
		require.True(t, ok, "subscription closed")
		return agg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for aggregate")
	}
	return core.Aggregate{}
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestScenarios(t *testing.T) {
	ctx := context.Background()
	store, engine := setup(t)

	// A
	require.NoError(t, store.Upsert(ctx, newTx("t1", 100, core.KindExpense, "Food")))
	require.NoError(t, store.Upsert(ctx, newTx("t2", 500, core.KindIncome, "Salary")))
	agg := engine.Latest()
	assert.True(t, agg.Balance.Equal(dec(400)), "balance %s", agg.Balance)
	assert.True(t, agg.CategorySpend["Food"].Equal(dec(100)))

	// B
	t1, ok := store.GetByID("t1")
	require.True(t, ok)
	t1.Amount = dec(150)
	require.NoError(t, store.Upsert(ctx, t1))
	assert.True(t, engine.Latest().Balance.Equal(dec(350)))

	// C
	require.NoError(t, store.DeleteByID(ctx, "t2"))
	agg = engine.Latest()
	assert.True(t, agg.Balance.Equal(dec(-150)), "balance %s", agg.Balance)
	assert.Equal(t, uint64(4), agg.Version)
}

func TestUpsertChangingKindMovesContribution(t *testing.T) {
	ctx := context.Background()
	store, engine := setup(t)

	require.NoError(t, store.Upsert(ctx, newTx("t1", 80, core.KindExpense, "Food")))
	require.NoError(t, store.Upsert(ctx, newTx("t1", 80, core.KindIncome, "Gift")))

	agg := engine.Latest()
	assert.True(t, agg.Balance.Equal(dec(80)))
	_, hasFood := agg.CategorySpend["Food"]
	assert.False(t, hasFood, "replaced expense must not linger in category spend")
	assert.Empty(t, agg.CategorySpend)
}

func TestIncomeNeverCountsAsSpend(t *testing.T) {
	ctx := context.Background()
	store, engine := setup(t)
	require.NoError(t, store.Upsert(ctx, newTx("i1", 1000, core.KindIncome, "Food")))
	assert.Empty(t, engine.Latest().CategorySpend)
}

func TestSubscribeReplaysCurrentThenLive(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store, engine := setup(t, newTx("seed", 40, core.KindExpense, "Bills"))
	require.NoError(t, store.Upsert(ctx, newTx("t1", 10, core.KindExpense, "Food")))

	ch, stop := engine.Subscribe(ctx)
	defer stop()

	first := next(t, ch)
	assert.Equal(t, uint64(1), first.Version)
	assert.True(t, first.Balance.Equal(dec(-50)))

	require.NoError(t, store.Upsert(ctx, newTx("t2", 100, core.KindIncome, "Salary")))
	second := next(t, ch)
	assert.Equal(t, uint64(2), second.Version)
	assert.True(t, second.Balance.Equal(dec(50)))
}

func TestSubscriberSeesEveryVersionInOrder(t *testing.T) {
	ctx := context.Background()
	store, engine := setup(t)

	ch, stop := engine.Subscribe(ctx)
	defer stop()
	assert.Equal(t, uint64(0), next(t, ch).Version)

	const writes = 50
	for i := 0; i < writes; i++ {
		require.NoError(t, store.Upsert(ctx, newTx(fmt.Sprintf("t%d", i), 1, core.KindExpense, "Food")))
	}

	for v := uint64(1); v <= writes; v++ {
		agg := next(t, ch)
		require.Equal(t, v, agg.Version)
		assert.True(t, agg.CategorySpend["Food"].Equal(dec(int64(v))))
	}
}

func TestSubscriberCopiesAreIsolated(t *testing.T) {
	ctx := context.Background()
	store, engine := setup(t)
	require.NoError(t, store.Upsert(ctx, newTx("t1", 10, core.KindExpense, "Food")))

	ch, stop := engine.Subscribe(ctx)
	defer stop()
	agg := next(t, ch)
	agg.CategorySpend["Food"] = dec(999)

	assert.True(t, engine.Latest().CategorySpend["Food"].Equal(dec(10)))
}

func TestStopClosesSubscription(t *testing.T) {
	_, engine := setup(t)
	ch, stop := engine.Subscribe(context.Background())
	next(t, ch)
	stop()
	stop()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not closed")
	}
}

func TestBalanceMatchesFinalSnapshot(t *testing.T) {
	ctx := context.Background()
	store, engine := setup(t)
	rng := rand.New(rand.NewSource(7))
	kinds := []core.Kind{core.KindIncome, core.KindExpense}
	cats := []string{"Food", "Transport", "Bills"}

	for i := 0; i < 300; i++ {
		id := fmt.Sprintf("t%d", rng.Intn(40))
		if rng.Intn(4) == 0 {
			require.NoError(t, store.DeleteByID(ctx, id))
			continue
		}
		tx := newTx(id, int64(1+rng.Intn(500)), kinds[rng.Intn(2)], cats[rng.Intn(3)])
		require.NoError(t, store.Upsert(ctx, tx))
	}

	want := decimal.Zero
	spend := map[string]decimal.Decimal{}
	for _, tx := range store.All().Transactions {
		switch tx.Kind {
		case core.KindIncome:
			want = want.Add(tx.Amount)
		case core.KindExpense:
			want = want.Sub(tx.Amount)
			spend[tx.Category] = spend[tx.Category].Add(tx.Amount)
		}
	}

	agg := engine.Latest()
	assert.True(t, agg.Balance.Equal(want), "balance %s want %s", agg.Balance, want)
	require.Len(t, agg.CategorySpend, len(spend))
	for cat, amount := range spend {
		assert.True(t, agg.CategorySpend[cat].Equal(amount), "category %s", cat)
	}
}

func TestLatestBeforeAnyCommit(t *testing.T) {
	engine := NewEngine(nil)
	defer engine.Close()
	agg := engine.Latest()
	assert.True(t, agg.Balance.IsZero())
	assert.NotNil(t, agg.CategorySpend)
}

func TestOnCommitRejectsUnknownKind(t *testing.T) {
	engine := NewEngine(nil)
	defer engine.Close()
	err := engine.OnCommit(context.Background(), ledger.Snapshot{
		Transactions: []core.Transaction{newTx("x", 1, "transfer", "Food")},
	})
	assert.ErrorIs(t, err, core.ErrInvalidKind)
}
