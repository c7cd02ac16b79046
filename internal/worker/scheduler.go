package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"fintrack/internal/log"
	"fintrack/internal/monitor"
)

// BudgetRunner is the job a Scheduler drives on every tick.
type BudgetRunner interface {
	Run(ctx context.Context) (monitor.Result, error)
}

// SchedulerConfig holds configuration for the budget scheduler
type SchedulerConfig struct {
	// Interval between budget runs (default: 24h)
	Interval time.Duration

	// RunTimeout bounds a single run (default: 30s)
	RunTimeout time.Duration

	// RunOnStart triggers a run as soon as the scheduler starts (default: true)
	RunOnStart bool
}

// DefaultSchedulerConfig returns sensible defaults
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:   24 * time.Hour,
		RunTimeout: 30 * time.Second,
		RunOnStart: true,
	}
}

// Stats counts what the scheduler has done since it was created.
type Stats struct {
	Runs      int64 `json:"runs"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
	Skipped   int64 `json:"skipped"`
}

// Scheduler is the external trigger that invokes the budget monitor on an
// interval. Ticks never overlap: a tick that fires while a run is still in
// flight is skipped.
type Scheduler struct {
	runner BudgetRunner
	config SchedulerConfig
	logger *log.Logger

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	trigger chan chan runReply

	runs, succeeded, failed, skipped atomic.Int64
}

type runReply struct {
	result monitor.Result
	err    error
}

func NewScheduler(runner BudgetRunner, config SchedulerConfig, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.NewNop()
	}
	if config.Interval <= 0 {
		config.Interval = DefaultSchedulerConfig().Interval
	}
	if config.RunTimeout <= 0 {
		config.RunTimeout = DefaultSchedulerConfig().RunTimeout
	}
	return &Scheduler{
		runner:  runner,
		config:  config,
		logger:  logger.WithComponent(log.ComponentWorker),
		trigger: make(chan chan runReply),
	}
}

// Start begins the scheduling loop. Returns an error if already running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("budget scheduler is already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	go s.runLoop(ctx, stopCh, doneCh)

	s.logger.InfoContext(ctx, "Budget scheduler started",
		"interval", s.config.Interval,
		"run_on_start", s.config.RunOnStart)
	return nil
}

// Stop signals the loop and waits for the in-flight run to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	stopCh, doneCh := s.stopCh, s.doneCh
	s.running = false
	s.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		s.logger.InfoContext(ctx, "Budget scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.WarnContext(ctx, "Budget scheduler stop timed out")
		return ctx.Err()
	}
}

// Run blocks until ctx is cancelled. It is Start and Stop in one call, for
// use under an errgroup.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), s.config.RunTimeout)
	defer cancel()
	return s.Stop(stopCtx)
}

// IsRunning returns whether the scheduler loop is active
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Trigger asks the loop for an immediate run and waits for its result. It
// goes through the loop so a manual run never overlaps a scheduled one.
func (s *Scheduler) Trigger(ctx context.Context) (monitor.Result, error) {
	s.mu.Lock()
	running, doneCh := s.running, s.doneCh
	s.mu.Unlock()
	if !running {
		return s.runOnce(ctx, nil)
	}

	reply := make(chan runReply, 1)
	select {
	case s.trigger <- reply:
	case <-doneCh:
		return monitor.Result{}, errors.New("budget scheduler stopped")
	case <-ctx.Done():
		return monitor.Result{}, ctx.Err()
	}
	select {
	case r := <-reply:
		return r.result, r.err
	case <-ctx.Done():
		return monitor.Result{}, ctx.Err()
	}
}

func (s *Scheduler) Stats() Stats {
	return Stats{
		Runs:      s.runs.Load(),
		Succeeded: s.succeeded.Load(),
		Failed:    s.failed.Load(),
		Skipped:   s.skipped.Load(),
	}
}

// runLoop is the main scheduling loop
func (s *Scheduler) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if s.config.RunOnStart {
		s.tick(ctx, stopCh)
	}

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, stopCh)
		case reply := <-s.trigger:
			res, err := s.runOnce(ctx, stopCh)
			reply <- runReply{result: res, err: err}
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, stopCh <-chan struct{}) {
	res, err := s.runOnce(ctx, stopCh)
	if err != nil {
		return
	}
	s.logger.InfoContext(ctx, "Budget check complete",
		log.FieldAlertKind, res.Alert.Kind,
		"next_check", time.Now().Add(s.config.Interval).Format(time.RFC3339))
}

// runOnce executes one bounded run. A stop request cancels the run.
func (s *Scheduler) runOnce(ctx context.Context, stopCh <-chan struct{}) (monitor.Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, s.config.RunTimeout)
	defer cancel()

	if stopCh != nil {
		go func() {
			select {
			case <-stopCh:
				cancel()
			case <-runCtx.Done():
			}
		}()
	}

	s.runs.Add(1)
	res, err := s.runner.Run(runCtx)
	switch {
	case errors.Is(err, monitor.ErrRunInProgress):
		s.skipped.Add(1)
		s.logger.WarnContext(ctx, "Budget run skipped, previous run still in progress")
	case err != nil:
		s.failed.Add(1)
		s.logger.ErrorContext(ctx, "Budget run failed", log.FieldError, err)
	default:
		s.succeeded.Add(1)
	}
	return res, err
}
