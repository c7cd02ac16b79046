package google

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

// Column order of the alerts tab:
// Raised | Kind | Title | Message | Category | Spent | Limit | Transactions | Top category | Top amount | Period
const alertColumns = 11

func alertRow(a core.Alert) []any {
	return []any{
		a.RaisedAt.UTC().Format(time.RFC3339),
		string(a.Kind),
		a.Title(),
		a.Message(),
		a.Category,
		core.FormatAmount(a.Spent),
		core.FormatAmount(a.Limit),
		a.TransactionCount,
		a.TopCategory,
		core.FormatAmount(a.TopAmount),
		a.Period,
	}
}

// parseAlertRows converts the values matrix returned by the Sheets API back
// into alerts. A header row or any row with an unknown kind or unparsable
// time is ignored.
func parseAlertRows(values [][]interface{}) []core.Alert {
	var alerts []core.Alert
	for _, raw := range values {
		row := toStrings(raw)
		if len(row) < 2 {
			continue
		}
		for len(row) < alertColumns {
			row = append(row, "")
		}
		kind := core.AlertKind(row[1])
		if kind != core.AlertOverBudget && kind != core.AlertHeartbeat {
			continue
		}
		raised, err := time.Parse(time.RFC3339, row[0])
		if err != nil {
			continue
		}
		count, _ := strconv.Atoi(row[7])
		alerts = append(alerts, core.Alert{
			Kind:             kind,
			RaisedAt:         raised,
			Category:         row[4],
			Spent:            parseAmount(row[5]),
			Limit:            parseAmount(row[6]),
			TransactionCount: count,
			TopCategory:      row[8],
			TopAmount:        parseAmount(row[9]),
			Period:           row[10],
		})
	}
	return alerts
}

func parseAmount(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := core.ParseAmount(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
