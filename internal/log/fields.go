package log

import (
	"fmt"

	"fintrack/internal/core"
)

// Common field names for structured logging
const (
	FieldComponent     = "component"
	FieldRequestID     = "request_id"
	FieldClientIP      = "client_ip"
	FieldMethod        = "method"
	FieldPath          = "path"
	FieldQuery         = "query"
	FieldStatusCode    = "status_code"
	FieldDuration      = "duration_ms"
	FieldDurationHuman = "duration_human"
	FieldUserAgent     = "user_agent"
	FieldSuccess       = "success"
	FieldError         = "error"
	FieldOperation     = "operation"
	FieldVersion       = "version"

	FieldTransactionID = "transaction_id"
	FieldAmount        = "amount"
	FieldKind          = "kind"
	FieldCategory      = "category"

	FieldAlertKind   = "alert_kind"
	FieldSpent       = "spent"
	FieldLimit       = "limit"
	FieldWindowStart = "window_start"
	FieldWindowEnd   = "window_end"
	FieldBackend     = "backend"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentLedger    = "ledger"
	ComponentAggregate = "aggregate"
	ComponentMonitor   = "monitor"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentSheets    = "sheets"
	ComponentCache     = "cache"
	ComponentRateLimit = "rate_limit"
	ComponentBackend   = "backend"
	ComponentNotifier  = "notifier"
)

// Operations defines standard operation names
const (
	OpUpsert     = "upsert"
	OpRead       = "read"
	OpDelete     = "delete"
	OpList       = "list"
	OpQueryRange = "query_range"
	OpRecompute  = "recompute"
	OpBudgetRun  = "budget_run"
	OpNotify     = "notify"
	OpPublish    = "publish"
	OpConsume    = "consume"
	OpShutdown   = "shutdown"
	OpStartup    = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithRequestID adds request ID field
func (f LogFields) WithRequestID(requestID string) LogFields {
	f[FieldRequestID] = requestID
	return f
}

// WithClientIP adds client IP field
func (f LogFields) WithClientIP(ip string) LogFields {
	f[FieldClientIP] = ip
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithTransaction adds transaction-related fields
func (f LogFields) WithTransaction(tx core.Transaction) LogFields {
	f[FieldTransactionID] = tx.ID
	f[FieldAmount] = tx.Amount.String()
	f[FieldKind] = tx.Kind.String()
	f[FieldCategory] = tx.Category
	return f
}

// WithAlert adds alert-related fields
func (f LogFields) WithAlert(a core.Alert) LogFields {
	f[FieldAlertKind] = string(a.Kind)
	switch a.Kind {
	case core.AlertOverBudget:
		f[FieldCategory] = a.Category
		f[FieldSpent] = a.Spent.String()
		f[FieldLimit] = a.Limit.String()
	case core.AlertHeartbeat:
		f["transaction_count"] = a.TransactionCount
		if a.TopCategory != "" {
			f["top_category"] = a.TopCategory
			f["top_amount"] = a.TopAmount.String()
		}
	}
	return f
}

// WithHTTPRequest adds HTTP request fields
func (f LogFields) WithHTTPRequest(method, path, query, userAgent string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldQuery] = query
	f[FieldUserAgent] = userAgent
	return f
}

// WithHTTPResponse adds HTTP response fields
func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64, success bool) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = success
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}

func (f LogFields) String() string {
	return fmt.Sprint(map[string]any(f))
}
