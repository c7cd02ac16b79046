package http

import (
	"fmt"
	"net/http"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/log"
)

// streamKeepAlive is how often an idle summary stream sends a comment line.
const streamKeepAlive = 15 * time.Second

// handleSummary returns the aggregate of the latest commit.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	agg := s.deps.Summaries.Latest()
	NewResponse().Version(agg.Version).JSON(newSummaryResponse(agg)).Write(w)
}

// handleRangeSummary aggregates the transactions in [from, to). Results are
// cached per ledger version, so a cached entry never outlives a commit.
func (s *Server) handleRangeSummary(w http.ResponseWriter, r *http.Request) {
	rng, _, err := ParseRangeParams(r.URL.Query(), true)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	version := s.deps.Ledger.Version()
	key := fmt.Sprintf("%d|%d|%d", version, core.ToMillis(rng.From), core.ToMillis(rng.To))
	if agg, ok := s.rangeCache.Get(key); ok {
		NewResponse().Version(agg.Version).Header("X-Cache", "HIT").JSON(newSummaryResponse(agg)).Write(w)
		return
	}

	txs, err := s.deps.Ledger.QueryRange(r.Context(), rng.From, rng.To)
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Range query failed",
			log.FieldOperation, log.OpQueryRange, log.FieldError, err)
		ErrorFor(err).Write(w)
		return
	}
	agg, err := core.ComputeAggregate(txs)
	if err != nil {
		ErrorFor(err).Write(w)
		return
	}
	agg.Version = version
	s.rangeCache.Set(key, agg)

	NewResponse().Version(version).Header("X-Cache", "MISS").JSON(newSummaryResponse(agg)).Write(w)
}

// handleSummaryStream sends the current aggregate as a server-sent event and
// then one event per commit, in commit order, until the client goes away or
// the server shuts down.
func (s *Server) handleSummaryStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		InternalServerError("streaming unsupported").Write(w)
		return
	}

	ctx := r.Context()
	updates, cancel := s.deps.Summaries.Subscribe(ctx)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	logger := log.FromContext(ctx)
	logger.DebugContext(ctx, "Summary stream opened")
	defer logger.DebugContext(ctx, "Summary stream closed")

	keepAlive := time.NewTicker(streamKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case agg, ok := <-updates:
			if !ok {
				return
			}
			if err := writeEvent(w, flusher, "summary", agg.Version, newSummaryResponse(agg)); err != nil {
				return
			}
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-ctx.Done():
			return
		case <-s.streamCtx.Done():
			return
		}
	}
}
