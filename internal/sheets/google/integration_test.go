//go:build integration

package google

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

// Integration tests require real Google Sheets credentials
// Run with: go test -tags=integration ./internal/sheets/google

func TestIntegration_AppendAndReadAlert(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	if os.Getenv("GOOGLE_SPREADSHEET_ID") == "" {
		t.Skip("GOOGLE_SPREADSHEET_ID not set, skipping integration test")
	}
	if os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON") == "" &&
		os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE") == "" &&
		os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") == "" {
		t.Skip("service account credentials not configured, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	client, err := NewFromEnv(ctx, nil)
	if err != nil {
		t.Fatalf("NewFromEnv: %v", err)
	}

	alert := core.NewHeartbeatAlert(1, "Integration", decimal.RequireFromString("1.23"))
	alert.RaisedAt = time.Now().UTC().Truncate(time.Second)
	if err := client.Notify(ctx, alert); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	alerts, err := client.RecentAlerts(ctx, 1)
	if err != nil {
		t.Fatalf("RecentAlerts: %v", err)
	}
	if len(alerts) != 1 || alerts[0].TopCategory != "Integration" {
		t.Fatalf("unexpected alerts: %+v", alerts)
	}
}
