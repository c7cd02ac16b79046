package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"fintrack/internal/core"
)

// sanitizeInput removes potentially dangerous characters and trims whitespace
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	// Remove control characters except tab, newline, carriage return
	result := strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1 // remove character
		}
		return r
	}, s)
	return result
}

// summaryResponse adds the per-category spend as a sorted list next to the
// raw aggregate so clients do not have to order map keys themselves.
type summaryResponse struct {
	core.Aggregate
	Categories []core.CategoryAmount `json:"categories"`
}

func newSummaryResponse(agg core.Aggregate) summaryResponse {
	return summaryResponse{Aggregate: agg, Categories: agg.Categories()}
}

type transactionList struct {
	Transactions []core.Transaction `json:"transactions"`
	Count        int                `json:"count"`
	Version      uint64             `json:"version"`
}

// filterTransactions keeps the transactions matching kind and category.
// Empty filters match everything.
func filterTransactions(txs []core.Transaction, kind core.Kind, category string) []core.Transaction {
	if kind == "" && category == "" {
		return txs
	}
	out := make([]core.Transaction, 0, len(txs))
	for _, tx := range txs {
		if kind != "" && tx.Kind != kind {
			continue
		}
		if category != "" && !strings.EqualFold(tx.Category, category) {
			continue
		}
		out = append(out, tx)
	}
	return out
}

// writeEvent writes one server-sent event and flushes it.
func writeEvent(w http.ResponseWriter, flusher http.Flusher, event string, id uint64, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", id, event, data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
