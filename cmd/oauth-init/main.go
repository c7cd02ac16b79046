package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"golang.org/x/oauth2"

	"fintrack/internal/cli"
	"fintrack/internal/log"
	gsheet "fintrack/internal/sheets/google"
)

// oauth-init mints a user token for the Google Sheets alert export. The
// OAuth client must list http://localhost:<OAUTH_REDIRECT_PORT>/callback as
// an authorized redirect URI.
func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()

	clientJSON, err := gsheet.OAuthClient()
	if err != nil {
		fatal(logger, "Failed to read OAuth client", err)
	}
	if clientJSON == nil {
		fatal(logger, "Set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE", nil)
	}
	cfg, err := gsheet.OAuthConfig(clientJSON)
	if err != nil {
		fatal(logger, "Invalid OAuth client", err)
	}

	port := getenv("OAUTH_REDIRECT_PORT", "8085")
	cfg.RedirectURL = "http://localhost:" + port + "/callback"
	state := randomState()

	codeCh := make(chan string, 1)
	mux := http.NewServeMux()
	srv := &http.Server{Addr: "localhost:" + port, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if e := q.Get("error"); e != "" {
			http.Error(w, "OAuth error: "+e, http.StatusBadRequest)
			return
		}
		if q.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}
		fmt.Fprintln(w, "You may close this window and return to the terminal.")
		select {
		case codeCh <- q.Get("code"):
		default:
		}
	})
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fatal(logger, "Callback server failed", err)
		}
	}()
	defer srv.Close()

	fmt.Printf("Open this URL to authorize:\n%s\n", cfg.AuthCodeURL(state, oauth2.AccessTypeOffline))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)

	select {
	case code := <-codeCh:
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		tok, err := cfg.Exchange(ctx, code)
		if err != nil {
			fatal(logger, "Token exchange failed", err)
		}
		out := getenv("GOOGLE_OAUTH_TOKEN_FILE", "token.json")
		if err := gsheet.SaveToken(out, tok); err != nil {
			fatal(logger, "Failed to save token", err)
		}
		logger.Info("Saved OAuth token", "path", out)
	case <-time.After(5 * time.Minute):
		fatal(logger, "Authorization timed out", nil)
	case <-sigCh:
		fatal(logger, "Interrupted", nil)
	}
}

func randomState() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "fintrack"
	}
	return hex.EncodeToString(b)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func fatal(logger *log.Logger, msg string, err error) {
	if err != nil {
		logger.Error(msg, log.FieldError, err)
	} else {
		logger.Error(msg)
	}
	os.Exit(1)
}
