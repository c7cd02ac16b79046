package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	AlertOverBudget AlertKind = "over_budget"
	AlertHeartbeat  AlertKind = "heartbeat"
)

// AlertKind distinguishes an over-budget warning from a routine status report.
type AlertKind string

// Alert is produced once per budget check. Over-budget alerts fill Category,
// Spent and Limit; heartbeats fill TransactionCount, TopCategory and TopAmount.
// TransactionCount covers every transaction in the window, income included.
// A heartbeat with an empty TopCategory means no expenses were found.
type Alert struct {
	Kind AlertKind `json:"kind"`
	// Period names the checked window in words ("today", "this week").
	// Empty reads as today.
	Period string `json:"period,omitempty"`

	Category string          `json:"category,omitempty"`
	Spent    decimal.Decimal `json:"spent"`
	Limit    decimal.Decimal `json:"limit"`

	TransactionCount int             `json:"transaction_count"`
	TopCategory      string          `json:"top_category,omitempty"`
	TopAmount        decimal.Decimal `json:"top_amount"`

	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	RaisedAt    time.Time `json:"raised_at"`
}

func NewOverBudgetAlert(category string, spent, limit decimal.Decimal) Alert {
	return Alert{
		Kind:     AlertOverBudget,
		Category: category,
		Spent:    spent,
		Limit:    limit,
	}
}

func NewHeartbeatAlert(count int, topCategory string, topAmount decimal.Decimal) Alert {
	return Alert{
		Kind:             AlertHeartbeat,
		TransactionCount: count,
		TopCategory:      topCategory,
		TopAmount:        topAmount,
	}
}

// Title is a short headline suitable for a notification.
func (a Alert) Title() string {
	switch a.Kind {
	case AlertOverBudget:
		return "Budget Alert!"
	case AlertHeartbeat:
		return "Budget check"
	default:
		return "Alert"
	}
}

// Message renders the alert body shown to the user.
func (a Alert) Message() string {
	switch a.Kind {
	case AlertOverBudget:
		return fmt.Sprintf("You've spent %s on %s (%s budget)",
			FormatAmount(a.Spent), a.Category, FormatAmount(a.Limit))
	case AlertHeartbeat:
		period := a.period()
		if a.TopCategory == "" {
			return fmt.Sprintf("No expenses %s! Budget check working.", period)
		}
		return fmt.Sprintf("Budget check working! %s: %s %s across %d transactions",
			strings.ToUpper(period[:1])+period[1:], a.TopCategory, FormatAmount(a.TopAmount), a.TransactionCount)
	default:
		return fmt.Sprintf("unknown alert kind %q", a.Kind)
	}
}

func (a Alert) period() string {
	if p := strings.TrimSpace(a.Period); p != "" {
		return p
	}
	return "today"
}
