package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/log"
)

// DefaultLimit is the per-category spend limit used when none is configured.
var DefaultLimit = decimal.NewFromInt(250)

var (
	ErrRunFailed     = errors.New("budget run failed")
	ErrRunInProgress = errors.New("budget run already in progress")
)

// State is the lifecycle position of a Monitor.
type State int32

const (
	StateIdle State = iota
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// Outcome records how the most recent run ended.
type Outcome int32

const (
	OutcomeNone Outcome = iota
	OutcomeSucceeded
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Run stages reported by RunError.
const (
	StageQuery  = "query"
	StageNotify = "notify"
)

// RunError reports a run that ended without delivering an alert.
type RunError struct {
	Stage string
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("budget run failed at %s: %v", e.Stage, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

func (e *RunError) Is(target error) bool { return target == ErrRunFailed }

// Querier is the read side of the ledger the monitor depends on.
type Querier interface {
	QueryRange(ctx context.Context, start, end time.Time) ([]core.Transaction, error)
}

// Config controls budget evaluation.
type Config struct {
	Limit    decimal.Decimal
	Window   WindowStrategy
	Location *time.Location
	Now      func() time.Time
}

// Result is what a successful run produced.
type Result struct {
	Alert        core.Alert            `json:"alert"`
	WindowStart  time.Time             `json:"window_start"`
	WindowEnd    time.Time             `json:"window_end"`
	Transactions int                   `json:"transactions"`
	Spend        []core.CategoryAmount `json:"spend"`
}

// Monitor evaluates spending in the current window against a single limit
// shared by every category and emits exactly one alert per successful run.
type Monitor struct {
	querier Querier
	sink    AlertSink
	config  Config
	logger  *log.Logger

	state   atomic.Int32
	outcome atomic.Int32

	mu      sync.Mutex
	lastRun time.Time
	lastErr error
}

func New(querier Querier, sink AlertSink, config Config, logger *log.Logger) *Monitor {
	if logger == nil {
		logger = log.NewNop()
	}
	if config.Limit.IsZero() {
		config.Limit = DefaultLimit
	}
	if config.Window == nil {
		config.Window = DailyWindow{}
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Monitor{
		querier: querier,
		sink:    sink,
		config:  config,
		logger:  logger.WithComponent(log.ComponentMonitor),
	}
}

func (m *Monitor) State() State { return State(m.state.Load()) }

func (m *Monitor) LastOutcome() Outcome { return Outcome(m.outcome.Load()) }

// LastRun returns when the last run finished and the error it ended with.
func (m *Monitor) LastRun() (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRun, m.lastErr
}

func (m *Monitor) Limit() decimal.Decimal { return m.config.Limit }

// Run performs one check against the current time.
func (m *Monitor) Run(ctx context.Context) (Result, error) {
	return m.RunAt(ctx, m.config.Now())
}

// RunAt performs one check with now as the end of the window.
func (m *Monitor) RunAt(ctx context.Context, now time.Time) (Result, error) {
	if !m.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return Result{}, ErrRunInProgress
	}
	defer m.state.Store(int32(StateIdle))

	res, err := m.run(ctx, now.In(m.config.Location))

	outcome := OutcomeSucceeded
	if err != nil {
		outcome = OutcomeFailed
		m.logger.ErrorContext(ctx, "Budget run failed",
			log.FieldOperation, log.OpBudgetRun,
			log.FieldWindowStart, res.WindowStart,
			log.FieldWindowEnd, res.WindowEnd,
			log.FieldError, err)
	} else {
		m.logger.InfoContext(ctx, "Budget run completed",
			log.FieldOperation, log.OpBudgetRun,
			log.FieldAlertKind, res.Alert.Kind,
			"transactions", res.Transactions)
	}
	m.outcome.Store(int32(outcome))

	m.mu.Lock()
	m.lastRun = now
	m.lastErr = err
	m.mu.Unlock()

	return res, err
}

func (m *Monitor) run(ctx context.Context, now time.Time) (Result, error) {
	start, end := m.config.Window.Bounds(now)
	res := Result{WindowStart: start, WindowEnd: end}

	if err := ctx.Err(); err != nil {
		return res, &RunError{Stage: StageQuery, Err: err}
	}
	txs, err := m.querier.QueryRange(ctx, start, end)
	if err != nil {
		return res, &RunError{Stage: StageQuery, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return res, &RunError{Stage: StageQuery, Err: err}
	}

	alert, spend := Evaluate(txs, m.config.Limit)
	alert.Period = windowLabel(m.config.Window)
	alert.WindowStart = start
	alert.WindowEnd = end
	alert.RaisedAt = now
	res.Alert = alert
	res.Transactions = len(txs)
	res.Spend = spend

	if m.sink != nil {
		if err := m.sink.Notify(ctx, alert); err != nil {
			return res, &RunError{Stage: StageNotify, Err: err}
		}
	}
	return res, nil
}

// Evaluate decides the alert for a window's transactions. Expense totals are
// returned per category in the order each category was first seen. The
// first category whose total exceeds limit wins; otherwise a heartbeat names
// the largest category, the first one seen on ties.
func Evaluate(txs []core.Transaction, limit decimal.Decimal) (core.Alert, []core.CategoryAmount) {
	spend := []core.CategoryAmount{}
	index := map[string]int{}
	for _, tx := range txs {
		switch tx.Kind {
		case core.KindExpense:
			i, ok := index[tx.Category]
			if !ok {
				i = len(spend)
				index[tx.Category] = i
				spend = append(spend, core.CategoryAmount{Name: tx.Category, Amount: decimal.Zero})
			}
			spend[i].Amount = spend[i].Amount.Add(tx.Amount)
		case core.KindIncome:
		}
	}

	for _, c := range spend {
		if c.Amount.GreaterThan(limit) {
			return core.NewOverBudgetAlert(c.Name, c.Amount, limit), spend
		}
	}

	if len(spend) == 0 {
		return core.NewHeartbeatAlert(len(txs), "", decimal.Zero), spend
	}
	top := spend[0]
	for _, c := range spend[1:] {
		if c.Amount.GreaterThan(top.Amount) {
			top = c
		}
	}
	return core.NewHeartbeatAlert(len(txs), top.Name, top.Amount), spend
}
