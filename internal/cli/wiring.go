package cli

import (
	"context"
	"os"

	"fintrack/internal/amqp"
	"fintrack/internal/backend"
	"fintrack/internal/config"
	"fintrack/internal/log"
	"fintrack/internal/monitor"
	gsheet "fintrack/internal/sheets/google"
	"fintrack/internal/worker"
)

// AlertSinks is every destination a budget run notifies.
type AlertSinks struct {
	Sink monitor.MultiSink
	// Reader serves alert history to the API; nil when nothing records it.
	Reader backend.AlertHistory

	amqpClient *amqp.Client
}

// Close releases the AMQP connection, if any.
func (s *AlertSinks) Close() {
	if s.amqpClient != nil {
		_ = s.amqpClient.Close()
	}
}

// InitAlertSinks always logs alerts. It adds the backend's alert history,
// the AMQP exchange when AMQP_URL is set and the Google Sheet when
// GOOGLE_SPREADSHEET_ID is set. Optional sinks that fail to start are
// skipped with a warning.
func InitAlertSinks(ctx context.Context, logger *log.Logger, cfg *config.Config, history backend.AlertHistory) *AlertSinks {
	out := &AlertSinks{Sink: monitor.MultiSink{monitor.NewLogSink(logger)}}

	if history != nil {
		out.Sink = append(out.Sink, history)
		out.Reader = history
	}

	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, alerts will not be published", log.FieldError, err)
		} else {
			out.amqpClient = client
			out.Sink = append(out.Sink, client)
			logger.Info("AMQP alert publishing enabled", "exchange", cfg.AMQPExchange)
		}
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided")
	}

	if cfg.GoogleSpreadsheetID != "" {
		sheets, err := gsheet.New(ctx, gsheet.Config{
			SpreadsheetID: cfg.GoogleSpreadsheetID,
			AlertsSheet:   cfg.GoogleAlertsSheetName,
		}, logger)
		if err != nil {
			logger.Warn("Failed to initialize Google Sheets client, alerts will not be exported", log.FieldError, err)
		} else {
			out.Sink = append(out.Sink, sheets)
			if out.Reader == nil {
				out.Reader = sheets
			}
			logger.Info("Google Sheets alert export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
		}
	}

	return out
}

// InitMonitor builds the budget monitor from BUDGET_* settings.
// Exits the process on invalid settings.
func InitMonitor(logger *log.Logger, cfg *config.Config, querier monitor.Querier, sink monitor.AlertSink) *monitor.Monitor {
	window, err := monitor.GetWindowStrategy(cfg.BudgetWindow)
	if err != nil {
		logger.Error("Invalid budget window", log.FieldError, err)
		os.Exit(1)
	}
	loc, err := cfg.Location()
	if err != nil {
		logger.Error("Invalid budget timezone", log.FieldError, err)
		os.Exit(1)
	}
	return monitor.New(querier, sink, monitor.Config{
		Limit:    cfg.BudgetLimit,
		Window:   window,
		Location: loc,
	}, logger)
}

// SchedulerConfig maps BUDGET_CHECK_INTERVAL, BUDGET_RUN_TIMEOUT and
// BUDGET_RUN_ON_START onto the scheduler.
func SchedulerConfig(cfg *config.Config) worker.SchedulerConfig {
	return worker.SchedulerConfig{
		Interval:   cfg.BudgetCheckInterval,
		RunTimeout: cfg.BudgetRunTimeout,
		RunOnStart: cfg.BudgetRunOnStart,
	}
}

// BackendCleanup runs the backend's cleanup and logs a failure.
func BackendCleanup(logger *log.Logger, res *backend.BackendResult) {
	if res == nil || res.Cleanup == nil {
		return
	}
	if err := res.Cleanup(); err != nil {
		logger.Error("Backend cleanup failed", log.FieldError, err)
	}
}
