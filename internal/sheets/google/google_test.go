package google

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/monitor"
)

var _ monitor.AlertSink = (*Client)(nil)

func TestNewFromEnv_MissingSpreadsheetID(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", "")

	_, err := NewFromEnv(context.Background(), nil)
	if err == nil {
		t.Fatal("expected error for missing GOOGLE_SPREADSHEET_ID")
	}
	if err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNew_MissingCredentials(t *testing.T) {
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	t.Setenv("GOOGLE_OAUTH_CLIENT_JSON", "")
	t.Setenv("GOOGLE_OAUTH_CLIENT_FILE", "")

	_, err := New(context.Background(), Config{SpreadsheetID: "test-id"}, nil)
	if err == nil {
		t.Fatal("expected error without credentials")
	}
	if !strings.Contains(err.Error(), "missing service account credentials") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadCredentials(t *testing.T) {
	logger := log.NewNop()

	t.Run("inline wins", func(t *testing.T) {
		got, err := loadCredentials(Config{CredentialsJSON: `{"a":1}`, CredentialsFile: "/nope"}, logger)
		if err != nil || string(got) != `{"a":1}` {
			t.Fatalf("got %q, %v", got, err)
		}
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "sa.json")
		if err := os.WriteFile(path, []byte(`{"b":2}`), 0o600); err != nil {
			t.Fatal(err)
		}
		got, err := loadCredentials(Config{CredentialsFile: path}, logger)
		if err != nil || string(got) != `{"b":2}` {
			t.Fatalf("got %q, %v", got, err)
		}
	})

	t.Run("application default path", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "adc.json")
		if err := os.WriteFile(path, []byte(`{"c":3}`), 0o600); err != nil {
			t.Fatal(err)
		}
		t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
		t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
		t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", path)
		got, err := loadCredentials(Config{}, logger)
		if err != nil || string(got) != `{"c":3}` {
			t.Fatalf("got %q, %v", got, err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := loadCredentials(Config{CredentialsFile: "/does/not/exist.json"}, logger); err == nil {
			t.Fatal("expected error for missing file")
		}
	})
}

func TestClient_NotifyWithoutService(t *testing.T) {
	c := &Client{spreadsheetID: "test", alertsSheet: "2025 Alerts", logger: log.NewNop()}

	err := c.Notify(context.Background(), core.NewHeartbeatAlert(0, "", decimal.Zero))
	if err == nil || !strings.Contains(err.Error(), "not initialized") {
		t.Fatalf("expected not initialized error, got %v", err)
	}
	if _, err := c.RecentAlerts(context.Background(), 5); err == nil {
		t.Fatal("expected error without service")
	}
}

func TestYearPrefixedName(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"Alerts", "2025 Alerts"},
		{"2024 Alerts", "2024 Alerts"},
		{"  ", ""},
		{"1800s Alerts", "2025 1800s Alerts"},
	}
	for _, tt := range tests {
		if got := yearPrefixedName(tt.base, 2025); got != tt.want {
			t.Errorf("yearPrefixedName(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}

func TestNew_OAuthWithoutToken(t *testing.T) {
	t.Setenv("GOOGLE_OAUTH_CLIENT_JSON", `{"installed":{"client_id":"id","client_secret":"s","auth_uri":"https://a","token_uri":"https://t","redirect_uris":["http://localhost"]}}`)
	t.Setenv("GOOGLE_OAUTH_TOKEN_JSON", "")
	t.Setenv("GOOGLE_OAUTH_TOKEN_FILE", "")

	_, err := New(context.Background(), Config{SpreadsheetID: "test-id"}, nil)
	if err == nil || !strings.Contains(err.Error(), "no token") {
		t.Fatalf("err = %v, want missing token error", err)
	}
}

func TestNew_OAuthInvalidClient(t *testing.T) {
	t.Setenv("GOOGLE_OAUTH_CLIENT_JSON", `{"bogus":true}`)
	t.Setenv("GOOGLE_OAUTH_TOKEN_FILE", "")
	t.Setenv("GOOGLE_OAUTH_TOKEN_JSON", `{"access_token":"x"}`)

	_, err := New(context.Background(), Config{SpreadsheetID: "test-id"}, nil)
	if err == nil || !strings.Contains(err.Error(), "oauth config") {
		t.Fatalf("err = %v, want oauth config error", err)
	}
}
