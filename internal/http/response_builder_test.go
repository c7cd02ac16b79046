package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"fintrack/internal/core"
	"fintrack/internal/ledger"
	"fintrack/internal/monitor"
)

func TestResponseBuilder_Basic(t *testing.T) {
	w := httptest.NewRecorder()

	NewResponse().
		Status(http.StatusCreated).
		Header("Location", "/x").
		Version(7).
		JSON(map[string]string{"ok": "yes"}).
		Write(w)

	if w.Code != http.StatusCreated {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusCreated)
	}
	if got := w.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := w.Header().Get(VersionHeader); got != "7" {
		t.Errorf("%s = %q, want 7", VersionHeader, got)
	}
	if got := w.Header().Get("Location"); got != "/x" {
		t.Errorf("Location = %q", got)
	}
	if w.Body.String() != `{"ok":"yes"}` {
		t.Errorf("Body = %q", w.Body.String())
	}
}

func TestResponseBuilder_NoBody(t *testing.T) {
	w := httptest.NewRecorder()
	NewResponse().Status(http.StatusNoContent).Write(w)

	if w.Code != http.StatusNoContent {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusNoContent)
	}
	if w.Body.Len() != 0 {
		t.Errorf("Body = %q, want empty", w.Body.String())
	}
}

func TestResponseBuilder_UnencodablePayload(t *testing.T) {
	w := httptest.NewRecorder()
	NewResponse().JSON(map[string]interface{}{"ch": make(chan int)}).Write(w)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestErrorFor(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantField  string
		wantError  string
	}{
		{
			name:       "validation",
			err:        &core.ValidationError{Field: "amount", Err: core.ErrInvalidAmount},
			wantStatus: http.StatusUnprocessableEntity,
			wantField:  "amount",
		},
		{
			name:       "wrapped validation",
			err:        fmt.Errorf("upsert 2 of 3: %w", &core.ValidationError{Field: "kind", Err: core.ErrInvalidKind}),
			wantStatus: http.StatusUnprocessableEntity,
			wantField:  "kind",
		},
		{
			name:       "closed ledger",
			err:        ledger.ErrClosed,
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "storage failure hides details",
			err:        &ledger.StorageError{Op: "put", ID: "a", Err: errors.New("disk on fire")},
			wantStatus: http.StatusBadGateway,
			wantError:  "storage unavailable",
		},
		{
			name:       "run in progress",
			err:        monitor.ErrRunInProgress,
			wantStatus: http.StatusConflict,
		},
		{
			name:       "run failed",
			err:        &monitor.RunError{Stage: monitor.StageNotify, Err: errors.New("sink down")},
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "anything else",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantError:  "internal error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			ErrorFor(tt.err).Write(w)

			if w.Code != tt.wantStatus {
				t.Errorf("Status code = %d, want %d", w.Code, tt.wantStatus)
			}
			var body ErrorBody
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", body.Field, tt.wantField)
			}
			if tt.wantError != "" && body.Error != tt.wantError {
				t.Errorf("Error = %q, want %q", body.Error, tt.wantError)
			}
			if body.Error == "" {
				t.Error("Error message is empty")
			}
		})
	}
}
