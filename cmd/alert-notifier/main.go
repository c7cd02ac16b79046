package main

import (
	"context"
	"errors"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/cache"
	"fintrack/internal/cli"
	"fintrack/internal/log"
	"fintrack/internal/monitor"
	"fintrack/internal/notifier"
	gsheet "fintrack/internal/sheets/google"
)

// alert-notifier consumes budget alerts from AMQP and delivers them: every
// alert is logged, and appended to the Google Sheet when one is configured.
func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger().WithComponent(log.ComponentNotifier)
	logger.Info("Starting alert-notifier", log.FieldOperation, log.OpStartup)

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for alert-notifier")
		return
	}

	sinks := monitor.MultiSink{monitor.NewLogSink(logger)}
	if cfg.GoogleSpreadsheetID != "" {
		sheets, err := gsheet.New(context.Background(), gsheet.Config{
			SpreadsheetID: cfg.GoogleSpreadsheetID,
			AlertsSheet:   cfg.GoogleAlertsSheetName,
		}, logger)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
			return
		}
		sinks = append(sinks, sheets)
		logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		return
	}

	forwarder := notifier.NewForwarder(sinks, notifier.DefaultForwarderConfig(), logger)
	caches := cache.NewManager(logger)
	for _, c := range forwarder.Caches() {
		caches.Register(c)
	}
	caches.StartCleanup(time.Hour)

	runCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		caches.Stop()
		_ = client.Close()
		stats := forwarder.Stats()
		logger.Info("Alert forwarding summary",
			"delivered", stats.Delivered,
			"duplicates", stats.Duplicates,
			"failed", stats.Failed,
			"dropped", stats.Dropped)
	})

	go func() {
		for {
			err := client.ConsumeAlerts(runCtx, forwarder.HandleAlertMessage)
			if runCtx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			logger.Error("Message consumption stopped, retrying", log.FieldError, err)
			select {
			case <-runCtx.Done():
				return
			case <-time.After(5 * time.Second):
			}
		}
	}()

	cli.WaitForShutdown(runCtx, done)
}
