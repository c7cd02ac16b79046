package http

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/aggregate"
	"fintrack/internal/core"
	"fintrack/internal/ledger"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/monitor"
	"fintrack/internal/storage/memory"
	"fintrack/internal/worker"
)

var testNow = time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)

// alertLog is an in-memory alert history.
type alertLog struct {
	mu     sync.Mutex
	alerts []core.Alert
}

func (l *alertLog) Notify(ctx context.Context, a core.Alert) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.alerts = append(l.alerts, a)
	return nil
}

func (l *alertLog) RecentAlerts(ctx context.Context, limit int) ([]core.Alert, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]core.Alert, 0, limit)
	for i := len(l.alerts) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, l.alerts[i])
	}
	return out, nil
}

type testEnv struct {
	srv     *Server
	store   *ledger.Store
	engine  *aggregate.Engine
	history *alertLog
}

// backingStore is what the test server needs from storage.
type backingStore interface {
	ledger.Storage
	Pinger
}

func newTestEnv(t *testing.T, withHistory bool) *testEnv {
	t.Helper()
	return newTestEnvWith(t, memory.New(), withHistory)
}

func newTestEnvWith(t *testing.T, backing backingStore, withHistory bool) *testEnv {
	t.Helper()

	engine := aggregate.NewEngine(nil)
	store, err := ledger.Open(context.Background(), backing, nil, engine)
	require.NoError(t, err)

	env := &testEnv{store: store, engine: engine, history: &alertLog{}}

	mon := monitor.New(store, env.history, monitor.Config{
		Limit:    decimal.NewFromInt(50),
		Window:   monitor.DailyWindow{},
		Location: time.UTC,
		Now:      func() time.Time { return testNow },
	}, nil)
	sched := worker.NewScheduler(mon, worker.DefaultSchedulerConfig(), nil)

	deps := Dependencies{
		Ledger:    store,
		Summaries: engine,
		Scheduler: sched,
		Monitor:   mon,
		Storage:   backing,
	}
	if withHistory {
		deps.Alerts = env.history
	}

	opts := DefaultOptions()
	opts.RateLimit = ratelimit.Config{
		RequestsPerSecond: 1000,
		Burst:             1000,
		CleanupInterval:   time.Minute,
		StaleAfter:        time.Minute,
	}
	env.srv = NewServer(":0", deps, opts)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = env.srv.Shutdown(ctx)
		_ = store.Close()
		engine.Close()
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

// waitForPurge blocks until the range cache has seen the latest commit.
func (e *testEnv) waitForPurge(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool {
		return e.srv.purgedAt.Load() == e.store.Version()
	}, 2*time.Second, 5*time.Millisecond)
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), v), "body: %s", rr.Body.String())
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t, false)

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := env.do(t, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, rr.Code, path)
		assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"), path)
	}
}

func TestTransactionLifecycle(t *testing.T) {
	env := newTestEnv(t, false)

	rr := env.do(t, http.MethodPost, "/api/v1/transactions",
		`{"kind":"expense","amount":"12.50","category":"food","timestamp":"2024-06-01T10:00:00Z"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var created core.Transaction
	decodeBody(t, rr, &created)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "Food", created.Category)
	assert.Equal(t, "/api/v1/transactions/"+created.ID, rr.Header().Get("Location"))
	assert.Equal(t, "1", rr.Header().Get(VersionHeader))

	rr = env.do(t, http.MethodGet, "/api/v1/transactions/"+created.ID, "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(t, http.MethodPut, "/api/v1/transactions/"+created.ID,
		`{"kind":"expense","amount":"20","category":"Food","timestamp":"2024-06-01T10:00:00Z"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	tx, ok := env.store.GetByID(created.ID)
	require.True(t, ok)
	assert.True(t, tx.Amount.Equal(decimal.NewFromInt(20)))

	rr = env.do(t, http.MethodPut, "/api/v1/transactions/fresh",
		`{"kind":"income","amount":"100","category":"Salary","timestamp":"2024-06-01T09:00:00Z"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var list transactionList
	decodeBody(t, env.do(t, http.MethodGet, "/api/v1/transactions", ""), &list)
	assert.Equal(t, 2, list.Count)
	assert.Equal(t, created.ID, list.Transactions[0].ID, "newest first")

	rr = env.do(t, http.MethodDelete, "/api/v1/transactions/"+created.ID, "")
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/v1/transactions/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = env.do(t, http.MethodDelete, "/api/v1/transactions/never-existed", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestCreateTransactionValidation(t *testing.T) {
	env := newTestEnv(t, false)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantField  string
	}{
		{"malformed json", `{"kind":`, http.StatusBadRequest, ""},
		{"array body", `[{"kind":"expense"}]`, http.StatusBadRequest, ""},
		{"bad kind", `{"kind":"loan","amount":"5","category":"Food"}`, http.StatusUnprocessableEntity, "kind"},
		{"negative amount", `{"kind":"expense","amount":"-5","category":"Food"}`, http.StatusUnprocessableEntity, "amount"},
		{"unknown category", `{"kind":"expense","amount":"5","category":"Yachts"}`, http.StatusUnprocessableEntity, "category"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/api/v1/transactions", tt.body)
			require.Equal(t, tt.wantStatus, rr.Code, rr.Body.String())
			var body ErrorBody
			decodeBody(t, rr, &body)
			assert.Equal(t, tt.wantField, body.Field)
		})
	}
	assert.Equal(t, uint64(0), env.store.Version(), "rejected requests must not commit")
}

func TestBatchTransactions(t *testing.T) {
	env := newTestEnv(t, false)

	rr := env.do(t, http.MethodPost, "/api/v1/transactions/batch", `[
		{"id":"a","kind":"expense","amount":"5","category":"Food","timestamp":"2024-06-01T08:00:00Z"},
		{"id":"b","kind":"income","amount":"50","category":"Gift","timestamp":"2024-06-01T09:00:00Z"}
	]`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var res batchResult
	decodeBody(t, rr, &res)
	assert.Equal(t, 2, res.Committed)
	assert.Equal(t, uint64(2), res.Version)

	rr = env.do(t, http.MethodPost, "/api/v1/transactions/batch", `[
		{"id":"c","kind":"expense","amount":"5","category":"Food"},
		{"id":"d","kind":"expense","amount":"abc","category":"Food"}
	]`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	res = batchResult{}
	decodeBody(t, rr, &res)
	require.NotNil(t, res.Index)
	assert.Equal(t, 1, *res.Index)
	assert.Equal(t, "amount", res.Field)
	_, committed := env.store.GetByID("c")
	assert.False(t, committed, "an invalid element rejects the whole batch")

	rr = env.do(t, http.MethodPost, "/api/v1/transactions/batch", `[]`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/v1/transactions/batch", `{"id":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestListTransactionsFilters(t *testing.T) {
	env := newTestEnv(t, false)
	rr := env.do(t, http.MethodPost, "/api/v1/transactions/batch", `[
		{"id":"1","kind":"expense","amount":"5","category":"Food","timestamp":"2024-05-31T23:59:59Z"},
		{"id":"2","kind":"expense","amount":"7","category":"Transport","timestamp":"2024-06-01T00:00:00Z"},
		{"id":"3","kind":"income","amount":"9","category":"Salary","timestamp":"2024-06-01T12:00:00Z"},
		{"id":"4","kind":"expense","amount":"3","category":"Food","timestamp":"2024-06-02T00:00:00Z"}
	]`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	tests := []struct {
		query   string
		wantIDs []string
	}{
		{"", []string{"4", "3", "2", "1"}},
		{"?from=2024-06-01&to=2024-06-02", []string{"3", "2"}},
		{"?from=2024-06-01&to=2024-06-02&kind=expense", []string{"2"}},
		{"?category=food", []string{"4", "1"}},
		{"?kind=income", []string{"3"}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rr := env.do(t, http.MethodGet, "/api/v1/transactions"+tt.query, "")
			require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
			var list transactionList
			decodeBody(t, rr, &list)
			ids := make([]string, 0, len(list.Transactions))
			for _, tx := range list.Transactions {
				ids = append(ids, tx.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/v1/transactions?kind=loan", "").Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/v1/transactions?from=2024-06-02&to=2024-06-01", "").Code)
}

func TestSummaryAndRangeCache(t *testing.T) {
	env := newTestEnv(t, false)
	rr := env.do(t, http.MethodPost, "/api/v1/transactions/batch", `[
		{"id":"a","kind":"income","amount":"100","category":"Salary","timestamp":"2024-06-01T08:00:00Z"},
		{"id":"b","kind":"expense","amount":"30","category":"Food","timestamp":"2024-06-01T09:00:00Z"}
	]`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var summary summaryResponse
	decodeBody(t, env.do(t, http.MethodGet, "/api/v1/summary", ""), &summary)
	assert.True(t, summary.Balance.Equal(decimal.NewFromInt(70)), "balance %s", summary.Balance)
	assert.Equal(t, 2, summary.TransactionCount)
	assert.Equal(t, uint64(2), summary.Version)
	require.Len(t, summary.Categories, 1)
	assert.Equal(t, "Food", summary.Categories[0].Name)

	path := "/api/v1/summary/range?from=2024-06-01T08:30:00Z&to=2024-06-02"
	env.waitForPurge(t)
	rr = env.do(t, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "MISS", rr.Header().Get("X-Cache"))
	decodeBody(t, rr, &summary)
	assert.True(t, summary.Balance.Equal(decimal.NewFromInt(-30)))

	rr = env.do(t, http.MethodGet, path, "")
	assert.Equal(t, "HIT", rr.Header().Get("X-Cache"))

	rr = env.do(t, http.MethodPost, "/api/v1/transactions",
		`{"kind":"expense","amount":"5","category":"Bills","timestamp":"2024-06-01T10:00:00Z"}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	env.waitForPurge(t)
	rr = env.do(t, http.MethodGet, path, "")
	assert.Equal(t, "MISS", rr.Header().Get("X-Cache"), "a commit must invalidate cached ranges")
	decodeBody(t, rr, &summary)
	assert.True(t, summary.Balance.Equal(decimal.NewFromInt(-35)))

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/v1/summary/range?from=2024-06-01", "").Code)
}

func TestSummaryStream(t *testing.T) {
	env := newTestEnv(t, false)
	ts := httptest.NewServer(env.srv.Handler)
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/api/v1/summary/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	first := readSummaryEvent(t, reader)
	assert.Equal(t, uint64(0), first.Version)

	rr := env.do(t, http.MethodPost, "/api/v1/transactions",
		`{"kind":"income","amount":"10","category":"Gift","timestamp":"2024-06-01T10:00:00Z"}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	next := readSummaryEvent(t, reader)
	assert.Equal(t, uint64(1), next.Version)
	assert.True(t, next.Balance.Equal(decimal.NewFromInt(10)))
}

func readSummaryEvent(t *testing.T, r *bufio.Reader) summaryResponse {
	t.Helper()
	type result struct {
		summary summaryResponse
		err     error
	}
	ch := make(chan result, 1)
	go func() {
		var data string
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				ch <- result{err: err}
				return
			}
			line = strings.TrimRight(line, "\n")
			switch {
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			case line == "" && data != "":
				var s summaryResponse
				ch <- result{summary: s, err: json.Unmarshal([]byte(data), &s)}
				return
			}
		}
	}()

	select {
	case res := <-ch:
		require.NoError(t, res.err)
		return res.summary
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for summary event")
		return summaryResponse{}
	}
}

func TestBudgetCheckAndAlerts(t *testing.T) {
	env := newTestEnv(t, true)

	rr := env.do(t, http.MethodPost, "/api/v1/transactions",
		`{"kind":"expense","amount":"80","category":"Food","timestamp":"2024-06-01T10:00:00Z"}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	var status budgetStatusResponse
	decodeBody(t, env.do(t, http.MethodGet, "/api/v1/budget", ""), &status)
	assert.Equal(t, "idle", status.State)
	assert.Equal(t, "none", status.LastOutcome)
	assert.Nil(t, status.LastRun)

	rr = env.do(t, http.MethodPost, "/api/v1/budget/check", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var check struct {
		Alert struct {
			Kind     core.AlertKind `json:"kind"`
			Category string         `json:"category"`
			Title    string         `json:"title"`
		} `json:"alert"`
		Transactions int `json:"transactions"`
	}
	decodeBody(t, rr, &check)
	assert.Equal(t, core.AlertOverBudget, check.Alert.Kind)
	assert.Equal(t, "Food", check.Alert.Category)
	assert.NotEmpty(t, check.Alert.Title)
	assert.Equal(t, 1, check.Transactions)

	status = budgetStatusResponse{}
	decodeBody(t, env.do(t, http.MethodGet, "/api/v1/budget", ""), &status)
	assert.Equal(t, "succeeded", status.LastOutcome)
	require.NotNil(t, status.LastRun)
	require.NotNil(t, status.Scheduler)
	assert.Equal(t, int64(1), status.Scheduler.Succeeded)
	assert.True(t, status.Limit.Equal(decimal.NewFromInt(50)))

	var alerts struct {
		Alerts []alertView `json:"alerts"`
		Count  int         `json:"count"`
	}
	decodeBody(t, env.do(t, http.MethodGet, "/api/v1/alerts?limit=5", ""), &alerts)
	require.Equal(t, 1, alerts.Count)
	assert.Equal(t, core.AlertOverBudget, alerts.Alerts[0].Kind)
}

func TestAlertsWithoutHistory(t *testing.T) {
	env := newTestEnv(t, false)

	rr := env.do(t, http.MethodGet, "/api/v1/alerts", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"alerts":[],"count":0}`, rr.Body.String())
}

func TestRateLimitedAPI(t *testing.T) {
	env := newTestEnv(t, false)
	env.srv.rateLimiter.Stop()
	env.srv.rateLimiter = ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerSecond: 0.001,
		Burst:             1,
		CleanupInterval:   time.Minute,
		StaleAfter:        time.Minute,
	})
	env.srv.Handler = env.srv.routes([]string{"*"})

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/summary", "").Code)
	rr := env.do(t, http.MethodGet, "/api/v1/summary", "")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "1", rr.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/healthz", "").Code, "health checks are not rate limited")
}

func TestMetricsAndUnknownRoute(t *testing.T) {
	env := newTestEnv(t, false)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/nope", "").Code)

	rr := env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "http_requests_total")
	assert.Contains(t, body, "ledger_version 0")
	assert.Contains(t, body, "budget_runs_total 0")
}

// slowStorage holds every Put for delay, signalling entered when the first
// one starts.
type slowStorage struct {
	*memory.Store
	delay   time.Duration
	entered chan struct{}
	once    sync.Once
}

func (s *slowStorage) Put(ctx context.Context, tx core.Transaction) error {
	s.once.Do(func() { close(s.entered) })
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.Store.Put(ctx, tx)
}

func TestShutdownDrainsInFlightWrites(t *testing.T) {
	backing := &slowStorage{Store: memory.New(), delay: 300 * time.Millisecond, entered: make(chan struct{})}
	env := newTestEnvWith(t, backing, false)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	served := make(chan error, 1)
	go func() { served <- env.srv.Serve(ln) }()

	status := make(chan int, 1)
	go func() {
		resp, err := http.Post("http://"+ln.Addr().String()+"/api/v1/transactions", "application/json",
			strings.NewReader(`{"kind":"expense","amount":"9.90","category":"food","timestamp":"2024-06-01T10:00:00Z"}`))
		if err != nil {
			status <- 0
			return
		}
		resp.Body.Close()
		status <- resp.StatusCode
	}()

	select {
	case <-backing.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("request never reached storage")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, env.srv.Shutdown(ctx))

	assert.Equal(t, http.StatusCreated, <-status)
	assert.Len(t, env.store.All().Transactions, 1)
	assert.ErrorIs(t, <-served, http.ErrServerClosed)
}
