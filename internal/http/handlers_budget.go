package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/monitor"
	"fintrack/internal/worker"
)

const (
	defaultAlertLimit = 20
	maxAlertLimit     = 200
)

type budgetStatusResponse struct {
	State       string          `json:"state"`
	LastOutcome string          `json:"last_outcome"`
	LastRun     *time.Time      `json:"last_run,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
	Limit       decimal.Decimal `json:"limit"`
	Scheduler   *worker.Stats   `json:"scheduler,omitempty"`
}

type alertView struct {
	core.Alert
	Title   string `json:"title"`
	Message string `json:"message"`
}

// handleBudgetCheck runs a budget check now and returns the alert it
// produced. A check already in flight yields 409.
func (s *Server) handleBudgetCheck(w http.ResponseWriter, r *http.Request) {
	if s.deps.Scheduler == nil {
		ServiceUnavailableError("budget monitor not configured").Write(w)
		return
	}

	res, err := s.deps.Scheduler.Trigger(r.Context())
	if err != nil {
		if !errors.Is(err, monitor.ErrRunInProgress) {
			log.FromContext(r.Context()).ErrorContext(r.Context(), "Manual budget check failed",
				log.FieldOperation, log.OpBudgetRun, log.FieldError, err)
		}
		ErrorFor(err).Write(w)
		return
	}

	NewResponse().JSON(map[string]interface{}{
		"alert":          alertView{Alert: res.Alert, Title: res.Alert.Title(), Message: res.Alert.Message()},
		"window_start":   res.WindowStart,
		"window_end":     res.WindowEnd,
		"transactions":   res.Transactions,
		"category_spend": res.Spend,
	}).Write(w)
}

func (s *Server) handleBudgetStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Monitor == nil {
		ServiceUnavailableError("budget monitor not configured").Write(w)
		return
	}

	resp := budgetStatusResponse{
		State:       s.deps.Monitor.State().String(),
		LastOutcome: s.deps.Monitor.LastOutcome().String(),
		Limit:       s.deps.Monitor.Limit(),
	}
	if at, err := s.deps.Monitor.LastRun(); !at.IsZero() {
		at = at.UTC()
		resp.LastRun = &at
		if err != nil {
			resp.LastError = err.Error()
		}
	}
	if s.deps.Scheduler != nil {
		stats := s.deps.Scheduler.Stats()
		resp.Scheduler = &stats
	}

	NewResponse().JSON(resp).Write(w)
}

// handleAlerts lists delivered alerts, newest first. Without an alert
// history the list is empty.
func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	limit := ParseLimit(r.URL.Query(), defaultAlertLimit, maxAlertLimit)

	views := []alertView{}
	if s.deps.Alerts != nil {
		alerts, err := s.deps.Alerts.RecentAlerts(r.Context(), limit)
		if err != nil {
			log.FromContext(r.Context()).ErrorContext(r.Context(), "Reading alert history failed",
				log.FieldOperation, log.OpRead, log.FieldError, err)
			ErrorResponse(http.StatusBadGateway, "alert history unavailable").Write(w)
			return
		}
		for _, a := range alerts {
			views = append(views, alertView{Alert: a, Title: a.Title(), Message: a.Message()})
		}
	}

	NewResponse().JSON(map[string]interface{}{
		"alerts": views,
		"count":  len(views),
	}).Write(w)
}
