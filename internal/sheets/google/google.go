package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	gsheet "google.golang.org/api/sheets/v4"

	"fintrack/internal/core"
	"fintrack/internal/log"
)

// DefaultAlertsSheet is the base tab name; the current year is prefixed.
const DefaultAlertsSheet = "Alerts"

// Client appends budget alerts to a spreadsheet tab, one row per alert.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	alertsSheet   string
	logger        *log.Logger
}

// Config selects the spreadsheet and credentials. When neither credential
// field is set, GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE and
// GOOGLE_APPLICATION_CREDENTIALS are consulted in that order.
type Config struct {
	SpreadsheetID   string
	AlertsSheet     string
	CredentialsJSON string
	CredentialsFile string
}

// NewFromEnv creates a client from GOOGLE_SPREADSHEET_ID and
// GOOGLE_ALERTS_SHEET_NAME.
func NewFromEnv(ctx context.Context, logger *log.Logger) (*Client, error) {
	return New(ctx, Config{
		SpreadsheetID: strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID")),
		AlertsSheet:   strings.TrimSpace(os.Getenv("GOOGLE_ALERTS_SHEET_NAME")),
	}, logger)
}

func New(ctx context.Context, cfg Config, logger *log.Logger) (*Client, error) {
	if cfg.SpreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	logger = logger.WithComponent(log.ComponentSheets)

	opts, err := clientOptions(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	logger.InfoContext(ctx, "Google Sheets service created successfully")

	base := cfg.AlertsSheet
	if base == "" {
		base = DefaultAlertsSheet
	}
	return &Client{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		alertsSheet:   yearPrefixedName(base, time.Now().Year()),
		logger:        logger,
	}, nil
}

func loadCredentials(cfg Config, logger *log.Logger) ([]byte, error) {
	inline := cfg.CredentialsJSON
	file := cfg.CredentialsFile
	if inline == "" && file == "" {
		inline = strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
		file = strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	}
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case inline != "":
		logger.Debug("Using inline JSON credentials")
		return []byte(inline), nil
	case file != "":
		logger.Debug("Reading credentials from file", "path", file)
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// Notify appends the alert as a new row. It satisfies monitor.AlertSink.
func (c *Client) Notify(ctx context.Context, a core.Alert) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!A:K", c.alertsSheet)
	vr := &gsheet.ValueRange{Values: [][]any{alertRow(a)}}

	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append alert to sheet %s: %w", c.alertsSheet, err)
	}

	ref := ""
	if resp.Updates != nil {
		ref = resp.Updates.UpdatedRange
	}
	c.logger.InfoContext(ctx, "Alert appended to Google Sheets",
		log.FieldAlertKind, a.Kind,
		"sheets_ref", ref)
	return nil
}

// RecentAlerts reads the alerts tab and returns up to limit rows, newest
// first. Rows that do not parse are skipped.
func (c *Client) RecentAlerts(ctx context.Context, limit int) ([]core.Alert, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!A:K", c.alertsSheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", c.alertsSheet, err)
	}
	alerts := parseAlertRows(resp.Values)
	for i, j := 0, len(alerts)-1; i < j; i, j = i+1, j-1 {
		alerts[i], alerts[j] = alerts[j], alerts[i]
	}
	if limit > 0 && len(alerts) > limit {
		alerts = alerts[:limit]
	}
	return alerts, nil
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
