// Package auth provides bearer tokens for spreadsheet access using OAuth2 authorization code flow.
// On a cache miss it prints consent URL, waits for the browser redirect on a local listener
// and exchanges the received code for an access token. Tokens are cached for TTL.
package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const (
	// DefaultTTL is how long a cached token is considered valid
	DefaultTTL = 59 * time.Minute
	// DefaultPort is the local port receiving oauth redirect
	DefaultPort = 8080

	callbackReply = "Go back to your terminal. You can close this tab."
)

// Scopes requested from the user, read-only access to drive and spreadsheets
var Scopes = []string{
	"https://www.googleapis.com/auth/drive.readonly",
	"https://www.googleapis.com/auth/spreadsheets.readonly",
}

var (
	// ErrUnexpectedToken returned if token endpoint responded without access token
	ErrUnexpectedToken = errors.New("unexpected token response, no access token")
	// ErrCodeMissing returned if redirect request has no authorization code
	ErrCodeMissing = errors.New("no authorization code in redirect request")
	// ErrStateMismatch returned if redirect request carries a foreign state
	ErrStateMismatch = errors.New("state mismatch in redirect request")
)

// TokenExchangeError wraps failed code to token exchange
type TokenExchangeError struct {
	Err error
}

func (e *TokenExchangeError) Error() string {
	return fmt.Sprintf("can't exchange code for token: %v", e.Err)
}

// Unwrap returns the exchange error
func (e *TokenExchangeError) Unwrap() error { return e.Err }

// NewConfig makes oauth2 config for google endpoints with read-only scopes
func NewConfig(clientID, clientSecret string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     endpoints.Google,
		Scopes:       Scopes,
	}
}

// TokenProvider makes bearer tokens with interactive consent. Cache is optional,
// Port 0 picks a free port, TTL 0 means DefaultTTL and nil Prompt prints to stderr.
type TokenProvider struct {
	Config *oauth2.Config
	Port   int
	Cache  Cache
	TTL    time.Duration
	Prompt io.Writer

	mu  sync.Mutex
	now func() time.Time
}

// Token returns cached token if it is still fresh, otherwise runs the consent flow
// and caches the new token. Failure to save the token is not fatal.
func (p *TokenProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Cache != nil {
		rec, err := p.Cache.Load()
		switch {
		case err != nil:
			log.Printf("[DEBUG] no cached token, %v", err)
		case rec.Secret != "" && p.timeNow().Sub(rec.Created) < p.ttl():
			log.Printf("[DEBUG] using cached token, created %s", rec.Created.Format(time.RFC3339))
			return rec.Secret, nil
		default:
			log.Printf("[DEBUG] cached token expired, created %s", rec.Created.Format(time.RFC3339))
		}
	}

	token, err := p.authorize(ctx)
	if err != nil {
		return "", err
	}

	if p.Cache != nil {
		if err := p.Cache.Save(CachedToken{Secret: token, Created: p.timeNow()}); err != nil {
			log.Printf("[WARN] can't save token to cache, %v", err)
		}
	}
	return token, nil
}

// authorize runs authorization code flow with redirect to a local listener
func (p *TokenProvider) authorize(ctx context.Context) (string, error) {
	if p.Config == nil {
		return "", errors.New("no oauth config")
	}

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", p.Port))
	if err != nil {
		return "", fmt.Errorf("can't listen for oauth redirect: %w", err)
	}

	cfg := *p.Config
	cfg.RedirectURL = fmt.Sprintf("http://localhost:%d", ln.Addr().(*net.TCPAddr).Port)
	state := uuid.NewString()

	prompt := p.Prompt
	if prompt == nil {
		prompt = os.Stderr
	}
	fmt.Fprintf(prompt, "Open this link in your browser to allow spreadsheet access:\n%s\n", cfg.AuthCodeURL(state))

	type callback struct {
		code string
		err  error
	}
	resCh := make(chan callback, 1)
	srv := &http.Server{ReadHeaderTimeout: 10 * time.Second}
	srv.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		res := callback{code: q.Get("code")}
		switch {
		case q.Get("state") != state:
			res.err = ErrStateMismatch
		case res.code == "":
			res.err = ErrCodeMissing
		}
		_, _ = io.WriteString(w, callbackReply)
		select {
		case resCh <- res:
		default:
		}
	})

	go func() {
		if e := srv.Serve(ln); e != nil && !errors.Is(e, http.ErrServerClosed) {
			log.Printf("[WARN] oauth redirect listener failed, %v", e)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if e := srv.Shutdown(shutdownCtx); e != nil {
			log.Printf("[DEBUG] oauth redirect listener shutdown, %v", e)
		}
	}()

	var res callback
	select {
	case res = <-resCh:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	if res.err != nil {
		return "", res.err
	}

	tok, err := cfg.Exchange(ctx, res.code)
	if err != nil {
		return "", &TokenExchangeError{Err: err}
	}
	if tok == nil || tok.AccessToken == "" {
		return "", ErrUnexpectedToken
	}
	log.Printf("[INFO] access token received, expires %s", tok.Expiry.Format(time.RFC3339))
	return tok.AccessToken, nil
}

func (p *TokenProvider) ttl() time.Duration {
	if p.TTL <= 0 {
		return DefaultTTL
	}
	return p.TTL
}

func (p *TokenProvider) timeNow() time.Time {
	if p.now == nil {
		return time.Now()
	}
	return p.now()
}

// StaticToken is a token provider returning a fixed token, for pre-issued tokens
type StaticToken string

// Token returns the token itself
func (s StaticToken) Token(context.Context) (string, error) {
	if s == "" {
		return "", ErrUnexpectedToken
	}
	return string(s), nil
}
