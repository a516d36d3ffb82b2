// oauth-init performs the one-time OAuth consent flow for the hearth sheets
// exporter. It opens a local callback server, prints the consent URL, and
// saves the exchanged token where GOOGLE_OAUTH_TOKEN_FILE points. Run it
// once per Google account; hearth-exporter refreshes the token on its own
// afterwards.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"

	sheetsexport "hearth/internal/sheets/google"
)

const consentTimeout = 5 * time.Minute

func main() {
	clientJSON, err := loadClientCredentials()
	if err != nil {
		log.Fatalf("oauth-init: %v", err)
	}

	cfg, err := googleoauth.ConfigFromJSON(clientJSON, sheetsexport.OAuthScope)
	if err != nil {
		log.Fatalf("oauth-init: parse client credentials: %v", err)
	}

	// The OAuth client must list this callback among its authorized
	// redirect URIs.
	port := envOr("OAUTH_REDIRECT_PORT", "8085")
	cfg.RedirectURL = "http://localhost:" + port + "/callback"

	codeCh := make(chan string, 1)
	mux := http.NewServeMux()
	srv := &http.Server{Addr: ":" + port, Handler: mux}
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		if errStr := r.URL.Query().Get("error"); errStr != "" {
			http.Error(w, "consent denied: "+errStr, http.StatusBadRequest)
			return
		}
		fmt.Fprintln(w, "Authorization received. You can close this window.")
		codeCh <- r.URL.Query().Get("code")
		go func() {
			time.Sleep(500 * time.Millisecond)
			_ = srv.Close()
		}()
	})
	go func() { _ = srv.ListenAndServe() }()

	fmt.Printf("Authorize the hearth exporter by opening:\n\n%s\n\n", cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline))

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	select {
	case code := <-codeCh:
		tok, err := cfg.Exchange(context.Background(), code)
		if err != nil {
			log.Fatalf("oauth-init: token exchange: %v", err)
		}
		path := envOr("GOOGLE_OAUTH_TOKEN_FILE", "token.json")
		if err := saveToken(path, tok); err != nil {
			log.Fatalf("oauth-init: %v", err)
		}
		fmt.Printf("Token saved to %s; hearth-exporter can use it now.\n", path)
	case <-time.After(consentTimeout):
		log.Fatalf("oauth-init: authorization timed out after %v", consentTimeout)
	case <-interrupt:
		log.Fatalf("oauth-init: interrupted")
	}
}

func loadClientCredentials() ([]byte, error) {
	if inline := os.Getenv("GOOGLE_OAUTH_CLIENT_JSON"); inline != "" {
		return []byte(inline), nil
	}
	if file := os.Getenv("GOOGLE_OAUTH_CLIENT_FILE"); file != "" {
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read client credentials: %w", err)
		}
		return b, nil
	}
	return nil, fmt.Errorf("set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE")
}

func saveToken(path string, tok *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("open token file: %w", err)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
