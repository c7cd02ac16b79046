package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"fintrack/internal/log"
)

// OAuthClient is the OAuth client JSON from GOOGLE_OAUTH_CLIENT_JSON or
// GOOGLE_OAUTH_CLIENT_FILE, or nil when neither is set.
func OAuthClient() ([]byte, error) {
	return readInlineOrFile("GOOGLE_OAUTH_CLIENT_JSON", "GOOGLE_OAUTH_CLIENT_FILE")
}

// OAuthConfig parses an OAuth client for the Sheets scope.
func OAuthConfig(clientJSON []byte) (*oauth2.Config, error) {
	cfg, err := googleoauth.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	return cfg, nil
}

// SaveToken writes tok to path readable only by the owner.
func SaveToken(path string, tok *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open token file: %w", err)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return nil
}

// clientOptions prefers a user token saved by oauth-init and falls back to
// service account credentials.
func clientOptions(ctx context.Context, cfg Config, logger *log.Logger) ([]goption.ClientOption, error) {
	ts, err := oauthTokenSource(ctx)
	if err != nil {
		return nil, err
	}
	if ts != nil {
		logger.Debug("Using OAuth user token")
		return []goption.ClientOption{goption.WithTokenSource(ts)}, nil
	}

	creds, err := loadCredentials(cfg, logger)
	if err != nil {
		return nil, err
	}
	return []goption.ClientOption{
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope),
	}, nil
}

// oauthTokenSource returns nil without error when no OAuth client is set.
func oauthTokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	client, err := OAuthClient()
	if err != nil || client == nil {
		return nil, err
	}
	tokenJSON, err := readInlineOrFile("GOOGLE_OAUTH_TOKEN_JSON", "GOOGLE_OAUTH_TOKEN_FILE")
	if err != nil {
		return nil, err
	}
	if tokenJSON == nil {
		return nil, errors.New("OAuth client set but no token (run oauth-init, then set GOOGLE_OAUTH_TOKEN_FILE)")
	}

	cfg, err := OAuthConfig(client)
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(tokenJSON, &tok); err != nil {
		return nil, fmt.Errorf("decode oauth token: %w", err)
	}
	return cfg.TokenSource(ctx, &tok), nil
}

func readInlineOrFile(inlineKey, fileKey string) ([]byte, error) {
	if inline := strings.TrimSpace(os.Getenv(inlineKey)); inline != "" {
		return []byte(inline), nil
	}
	path := strings.TrimSpace(os.Getenv(fileKey))
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", fileKey, err)
	}
	return data, nil
}
