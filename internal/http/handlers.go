package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"fintrack/internal/core"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]interface{})

	if s.deps.Storage != nil {
		if err := s.deps.Storage.Ping(ctx); err != nil {
			checks["storage"] = fmt.Sprintf("failed: %v", err)
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["storage"] = "ok"
		}
	} else {
		checks["storage"] = "not_configured"
	}

	if s.deps.Ledger != nil {
		checks["ledger"] = map[string]interface{}{
			"version": s.deps.Ledger.Version(),
			"status":  "ok",
		}
	} else {
		checks["ledger"] = "not_configured"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	}

	if s.deps.Scheduler != nil {
		checks["budget_scheduler"] = map[string]interface{}{
			"running": s.deps.Scheduler.IsRunning(),
			"status":  "ok",
		}
	}

	checks["rate_limiter"] = map[string]interface{}{
		"active_clients": s.rateLimiter.ActiveClients(),
		"status":         "ok",
	}

	NewResponse().Status(httpStatus).JSON(map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	securityMetrics := s.detector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	traceMetrics := s.tracer.GetMetrics()
	cacheStats := s.rangeCache.Stats()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	metric := func(name, help, kind string, value interface{}) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s %s\n", name, kind)
		fmt.Fprintf(w, "%s %v\n\n", name, value)
	}

	metric("http_requests_total", "Total number of HTTP requests", "counter", traceMetrics.TotalRequests)
	metric("http_response_time_avg_microseconds", "Average response time", "gauge", traceMetrics.AverageResponseTime)
	metric("rate_limit_hits_total", "Requests rejected by the rate limiter", "counter", rateLimitMetrics.TotalHits)
	metric("rate_limit_clients", "Clients tracked by the rate limiter", "gauge", rateLimitMetrics.ClientCount)
	metric("suspicious_requests_total", "Requests matching scanner patterns", "counter", securityMetrics.SuspiciousRequests)
	metric("invalid_ip_attempts_total", "Forwarded headers carrying invalid IPs", "counter", securityMetrics.InvalidIPAttempts)
	metric("range_cache_hits_total", "Range summary cache hits", "counter", cacheStats.Hits)
	metric("range_cache_misses_total", "Range summary cache misses", "counter", cacheStats.Misses)
	metric("range_cache_evictions_total", "Range summary cache evictions", "counter", cacheStats.Evictions)
	metric("range_cache_entries", "Range summary cache entries", "gauge", cacheStats.Size)

	if s.deps.Ledger != nil {
		metric("ledger_version", "Mutations committed since start", "counter", s.deps.Ledger.Version())
	}
	if s.deps.Scheduler != nil {
		stats := s.deps.Scheduler.Stats()
		metric("budget_runs_total", "Budget checks attempted", "counter", stats.Runs)
		metric("budget_runs_failed_total", "Budget checks that failed", "counter", stats.Failed)
		metric("budget_runs_skipped_total", "Budget checks skipped while another ran", "counter", stats.Skipped)
	}
}

// handleCategories lists the recognized categories per kind.
func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(map[string][]string{
		string(core.KindExpense): core.CategoriesFor(core.KindExpense),
		string(core.KindIncome):  core.CategoriesFor(core.KindIncome),
	}).Write(w)
}
