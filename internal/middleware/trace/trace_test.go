package trace

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"

	"fintrack/internal/log"
)

func TestMiddleware_LogsAndPropagatesRequestID(t *testing.T) {
	var buf bytes.Buffer
	cfg := log.DefaultConfig()
	cfg.Output = &buf
	cfg.Format = "json"
	m := NewMiddleware(log.New(cfg), func(*http.Request) string { return "192.0.2.1" })

	var seenID string
	var flushable bool
	h := chimiddleware.RequestID(m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = GetRequestID(r.Context())
		_, flushable = w.(http.Flusher)
		w.WriteHeader(http.StatusNotFound)
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/transactions/x", nil))

	assert.NotEmpty(t, seenID)
	assert.True(t, flushable, "wrapped writer must keep http.Flusher")
	out := buf.String()
	assert.True(t, strings.Contains(out, `"status_code":404`), out)
	assert.True(t, strings.Contains(out, seenID), out)
	assert.Equal(t, int64(1), m.GetMetrics().TotalRequests)
}

func TestMiddleware_GeneratesIDWithoutChi(t *testing.T) {
	m := NewMiddleware(nil, nil)
	var id string
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id = GetRequestID(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, strings.HasPrefix(id, "req_"), id)
}
