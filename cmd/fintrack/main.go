package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/aggregate"
	"fintrack/internal/cli"
	apphttp "fintrack/internal/http"
	"fintrack/internal/ledger"
	"fintrack/internal/log"
	"fintrack/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()
	logger.Info("Starting fintrack", log.FieldOperation, log.OpStartup)

	cfg := cli.LoadAndValidateConfig(logger)

	ctx := context.Background()
	res := cli.InitBackend(ctx, logger, cfg)

	engine := aggregate.NewEngine(logger)
	store, err := ledger.Open(ctx, res.Backend, logger, engine)
	if err != nil {
		logger.Error("Failed to load ledger", log.FieldError, err, log.FieldBackend, cfg.DataBackend)
		cli.BackendCleanup(logger, res)
		os.Exit(1)
	}

	sinks := cli.InitAlertSinks(ctx, logger, cfg, res.History)
	mon := cli.InitMonitor(logger, cfg, store, sinks.Sink)
	sched := worker.NewScheduler(mon, cli.SchedulerConfig(cfg), logger)

	opts := apphttp.DefaultOptions()
	opts.Logger = logger
	opts.AllowedOrigins = cfg.AllowedOrigins
	opts.RateLimit.RequestsPerSecond = cfg.RateLimitRPS
	opts.RateLimit.Burst = cfg.RateLimitBurst

	deps := apphttp.Dependencies{
		Ledger:    store,
		Summaries: engine,
		Scheduler: sched,
		Monitor:   mon,
		Alerts:    sinks.Reader,
		Storage:   res.Backend,
	}
	srv := apphttp.NewServer(":"+cfg.Port, deps, opts)
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	runCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if err := sched.Stop(shutdownCtx); err != nil {
			logger.Warn("Budget scheduler did not stop cleanly", log.FieldError, err)
		}
		_ = store.Close()
		engine.Close()
		sinks.Close()
		cli.BackendCleanup(logger, res)
	})

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return sched.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("Starting HTTP server",
			"port", cfg.Port,
			log.FieldBackend, cfg.DataBackend,
			"budget_window", cfg.BudgetWindow,
			"budget_limit", cfg.BudgetLimit.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		_ = srv.Shutdown(context.Background())
		cli.BackendCleanup(logger, res)
		os.Exit(1)
	}

	<-done
	logger.Info("Server stopped gracefully")
}
