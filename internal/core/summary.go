package core

import (
	"sort"

	"github.com/shopspring/decimal"
)

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

// Aggregate holds the figures derived from a ledger snapshot.
type Aggregate struct {
	Balance          decimal.Decimal            `json:"balance"`
	CategorySpend    map[string]decimal.Decimal `json:"category_spend"`
	TransactionCount int                        `json:"transaction_count"`
	Version          uint64                     `json:"version"`
}

// ComputeAggregate folds every transaction into a fresh Aggregate.
// Income adds to the balance only; expenses subtract from the balance and
// accumulate under their category.
func ComputeAggregate(txs []Transaction) (Aggregate, error) {
	agg := Aggregate{
		Balance:       decimal.Zero,
		CategorySpend: make(map[string]decimal.Decimal),
	}
	for _, tx := range txs {
		signed, err := tx.SignedAmount()
		if err != nil {
			return Aggregate{}, err
		}
		agg.Balance = agg.Balance.Add(signed)

		switch tx.Kind {
		case KindExpense:
			agg.CategorySpend[tx.Category] = agg.CategorySpend[tx.Category].Add(tx.Amount)
		case KindIncome:
		}
		agg.TransactionCount++
	}
	return agg, nil
}

// Categories lists the category spend sorted by amount, largest first, with
// ties broken by name.
func (a Aggregate) Categories() []CategoryAmount {
	out := make([]CategoryAmount, 0, len(a.CategorySpend))
	for name, amount := range a.CategorySpend {
		out = append(out, CategoryAmount{Name: name, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Amount.Cmp(out[j].Amount); c != 0 {
			return c > 0
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Clone returns a deep copy so subscribers can't mutate shared maps.
func (a Aggregate) Clone() Aggregate {
	spend := make(map[string]decimal.Decimal, len(a.CategorySpend))
	for k, v := range a.CategorySpend {
		spend[k] = v
	}
	a.CategorySpend = spend
	return a
}
