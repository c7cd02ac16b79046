package http

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/shopspring/decimal"

	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/ledger"
	"fintrack/internal/log"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/middleware/security"
	"fintrack/internal/middleware/trace"
	"fintrack/internal/monitor"
	"fintrack/internal/worker"
)

// Ledger is the slice of ledger.Store the handlers use.
type Ledger interface {
	Upsert(ctx context.Context, tx core.Transaction) error
	UpsertAll(ctx context.Context, txs []core.Transaction) (int, error)
	DeleteByID(ctx context.Context, id string) error
	GetByID(id string) (core.Transaction, bool)
	QueryRange(ctx context.Context, start, end time.Time) ([]core.Transaction, error)
	All() ledger.Snapshot
	Version() uint64
}

// Summaries serves the live aggregate.
type Summaries interface {
	Latest() core.Aggregate
	Subscribe(ctx context.Context) (<-chan core.Aggregate, func())
}

// BudgetScheduler runs budget checks on demand.
type BudgetScheduler interface {
	Trigger(ctx context.Context) (monitor.Result, error)
	Stats() worker.Stats
	IsRunning() bool
}

// BudgetStatus exposes the monitor's last known state.
type BudgetStatus interface {
	State() monitor.State
	LastOutcome() monitor.Outcome
	LastRun() (time.Time, error)
	Limit() decimal.Decimal
}

// AlertReader lists recently delivered alerts, newest first.
type AlertReader interface {
	RecentAlerts(ctx context.Context, limit int) ([]core.Alert, error)
}

// Pinger reports whether the storage backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies wires the server to the rest of the application. Alerts and
// Storage may be nil.
type Dependencies struct {
	Ledger    Ledger
	Summaries Summaries
	Scheduler BudgetScheduler
	Monitor   BudgetStatus
	Alerts    AlertReader
	Storage   Pinger
}

// Options tunes the HTTP edge.
type Options struct {
	AllowedOrigins []string
	RateLimit      ratelimit.Config
	RangeCacheSize int
	RangeCacheTTL  time.Duration
	Logger         *log.Logger
}

// DefaultOptions returns options suitable for local development.
func DefaultOptions() Options {
	return Options{
		AllowedOrigins: []string{"*"},
		RateLimit:      ratelimit.DefaultConfig(),
		RangeCacheSize: 128,
		RangeCacheTTL:  5 * time.Minute,
	}
}

// Server is the JSON API in front of the ledger.
type Server struct {
	http.Server

	deps   Dependencies
	logger *log.Logger

	detector    *security.Detector
	rateLimiter *ratelimit.Limiter
	tracer      *trace.Middleware

	rangeCache   *cache.LRUCache[core.Aggregate]
	cacheManager *cache.Manager
	// purgedAt is the aggregate version of the last purge.
	purgedAt atomic.Uint64

	// streamCtx is cancelled first on Shutdown so open summary streams end
	// and the listener can drain. Request contexts do not derive from it.
	streamCtx     context.Context
	cancelStreams context.CancelFunc
	bg            sync.WaitGroup
	started       time.Time
	stopOnce      sync.Once
}

// NewServer builds the router and the background cache invalidation. Call
// Shutdown to release both.
func NewServer(addr string, deps Dependencies, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.NewNop()
	}
	if opts.RangeCacheSize <= 0 {
		opts.RangeCacheSize = DefaultOptions().RangeCacheSize
	}
	if opts.RangeCacheTTL <= 0 {
		opts.RangeCacheTTL = DefaultOptions().RangeCacheTTL
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = DefaultOptions().AllowedOrigins
	}

	logger := opts.Logger.WithComponent(log.ComponentHTTP)
	streamCtx, cancel := context.WithCancel(context.Background())

	s := &Server{
		deps:          deps,
		logger:        logger,
		detector:      security.NewDetector(),
		rateLimiter:   ratelimit.NewLimiter(opts.RateLimit),
		rangeCache:    cache.NewLRUCache[core.Aggregate](opts.RangeCacheSize, opts.RangeCacheTTL),
		cacheManager:  cache.NewManager(opts.Logger),
		streamCtx:     streamCtx,
		cancelStreams: cancel,
		started:       time.Now(),
	}
	s.tracer = trace.NewMiddleware(opts.Logger, s.detector.ExtractClientIP)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(opts.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.cacheManager.Register(s.rangeCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	if deps.Summaries != nil {
		s.bg.Add(1)
		go s.invalidateOnCommit()
	}

	return s
}

func (s *Server) routes(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.tracer.Middleware)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(s.detector.Middleware(s.logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{"Accept", "Content-Type", "Last-Event-ID"},
		ExposedHeaders: []string{"Location", VersionHeader},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", s.handleMetrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.rateLimiter.Middleware(s.detector.ExtractClientIP, nil))

		r.Get("/categories", s.handleCategories)

		r.Get("/transactions", s.handleListTransactions)
		r.Post("/transactions", s.handleCreateTransaction)
		r.Post("/transactions/batch", s.handleBatchTransactions)
		r.Get("/transactions/{id}", s.handleGetTransaction)
		r.Put("/transactions/{id}", s.handlePutTransaction)
		r.Delete("/transactions/{id}", s.handleDeleteTransaction)

		r.Get("/summary", s.handleSummary)
		r.Get("/summary/range", s.handleRangeSummary)
		r.Get("/summary/stream", s.handleSummaryStream)

		r.Get("/budget", s.handleBudgetStatus)
		r.Post("/budget/check", s.handleBudgetCheck)
		r.Get("/alerts", s.handleAlerts)
	})

	return r
}

// invalidateOnCommit drops cached range summaries whenever the aggregate
// moves. Entries are keyed by ledger version as well, so this only frees
// memory early.
func (s *Server) invalidateOnCommit() {
	defer s.bg.Done()
	updates, cancel := s.deps.Summaries.Subscribe(s.streamCtx)
	defer cancel()
	for agg := range updates {
		s.rangeCache.Purge()
		s.purgedAt.Store(agg.Version)
	}
}

// Shutdown ends open summary streams, then waits for in-flight requests to
// finish before stopping the background workers.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		s.logger.Info("Shutting down HTTP server", log.FieldOperation, log.OpShutdown)
		s.cancelStreams()
		err = s.Server.Shutdown(ctx)
		s.rateLimiter.Stop()
		s.cacheManager.Stop()
		s.bg.Wait()
	})
	return err
}
