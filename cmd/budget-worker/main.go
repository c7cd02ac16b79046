package main

import (
	"context"
	"time"

	"fintrack/internal/cli"
	"fintrack/internal/log"
	"fintrack/internal/worker"
)

// budget-worker runs the budget monitor on its own, reading the shared
// backend directly. Use it when the API is scaled out and exactly one
// process should raise alerts.
func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger().WithComponent(log.ComponentWorker)
	logger.Info("Starting budget-worker", log.FieldOperation, log.OpStartup)

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.DataBackend == "memory" {
		logger.Warn("budget-worker is using the memory backend; it only sees the seed file, not writes made by other processes")
	}

	ctx := context.Background()
	res := cli.InitBackend(ctx, logger, cfg)
	sinks := cli.InitAlertSinks(ctx, logger, cfg, res.History)

	mon := cli.InitMonitor(logger, cfg, res.Backend, sinks.Sink)
	sched := worker.NewScheduler(mon, cli.SchedulerConfig(cfg), logger)

	logger.Info("Budget monitor configured",
		"interval", cfg.BudgetCheckInterval,
		"window", cfg.BudgetWindow,
		log.FieldLimit, cfg.BudgetLimit.String(),
		log.FieldBackend, cfg.DataBackend)

	runCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := sched.Stop(shutdownCtx); err != nil {
			logger.Warn("Budget scheduler did not stop cleanly", log.FieldError, err)
		}
		sinks.Close()
		cli.BackendCleanup(logger, res)
	})

	if err := sched.Start(runCtx); err != nil {
		logger.Error("Failed to start budget scheduler", log.FieldError, err)
		cli.BackendCleanup(logger, res)
		return
	}

	cli.WaitForShutdown(runCtx, done)

	stats := sched.Stats()
	logger.Info("budget-worker shutdown complete",
		"runs", stats.Runs,
		"succeeded", stats.Succeeded,
		"failed", stats.Failed,
		"skipped", stats.Skipped)
}
