// Package auth keeps a Dropbox access token fresh.
//
// A short-lived access token is obtained from a long-lived refresh token
// through the OAuth2 refresh grant and persisted so later processes can
// reuse it until it expires.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/flashbackbot/filestore/internal/remote"
	"github.com/flashbackbot/filestore/internal/storage"
)

// DropboxTokenURL is the Dropbox OAuth2 token endpoint.
const DropboxTokenURL = "https://api.dropboxapi.com/oauth2/token"

const refreshAttempts = 3

// Credentials are the long-lived values used to mint access tokens.
type Credentials struct {
	AppKey       string
	AppSecret    string
	RefreshToken string
}

func (c Credentials) validate() error {
	if c.AppKey == "" || c.AppSecret == "" || c.RefreshToken == "" {
		return fmt.Errorf("%w: refresh token, app key and app secret must be provided", storage.ErrCredential)
	}
	return nil
}

// Refresher implements remote.TokenSource. It serves the stored token while
// it is valid and refreshes it otherwise.
type Refresher struct {
	cfg          oauth2.Config
	refreshToken string
	store        TokenStore
	client       *http.Client
	logger       *slog.Logger
	now          func() time.Time

	mu      sync.Mutex
	current *oauth2.Token
}

// Option configures a Refresher.
type Option func(*Refresher)

// WithTokenURL overrides the token endpoint.
func WithTokenURL(url string) Option {
	return func(r *Refresher) { r.cfg.Endpoint.TokenURL = url }
}

// WithHTTPClient sets the client used for refresh requests.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Refresher) { r.client = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Refresher) { r.logger = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Refresher) { r.now = now }
}

// NewRefresher validates creds and creates a Refresher. A nil store keeps
// the token in memory only.
func NewRefresher(creds Credentials, store TokenStore, opts ...Option) (*Refresher, error) {
	if err := creds.validate(); err != nil {
		return nil, err
	}
	if store == nil {
		store = &MemoryTokenStore{}
	}
	r := &Refresher{
		cfg: oauth2.Config{
			ClientID:     creds.AppKey,
			ClientSecret: creds.AppSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  DropboxTokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		refreshToken: creds.RefreshToken,
		store:        store,
		logger:       storage.DiscardLogger(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Token returns a valid access token, refreshing and persisting a new one
// when the stored token is missing or expired.
func (r *Refresher) Token(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == nil {
		tok, err := r.store.Load()
		if err != nil {
			r.logger.Warn("could not load stored access token", "err", err)
		}
		r.current = tok
	}
	if r.valid(r.current) {
		return r.current.AccessToken, nil
	}

	r.logger.Info("access token is invalid, expired or missing, fetching a new one")
	tok, err := remote.Retry(ctx, refreshAttempts, func() (*oauth2.Token, error) {
		return r.refresh(ctx)
	})
	if err != nil {
		return "", fmt.Errorf("refresh access token: %w", err)
	}
	r.current = tok
	if err := r.store.Save(tok); err != nil {
		r.logger.Warn("could not persist access token", "err", err)
	}
	r.logger.Info("access token refreshed", "expires_at", tok.Expiry.Local().Format(time.DateTime))
	return tok.AccessToken, nil
}

func (r *Refresher) valid(tok *oauth2.Token) bool {
	return tok != nil && tok.AccessToken != "" && r.now().Before(tok.Expiry)
}

func (r *Refresher) refresh(ctx context.Context) (*oauth2.Token, error) {
	if r.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.client)
	}
	src := r.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: r.refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, classify(err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("%w: no access token in response", storage.ErrCredential)
	}
	if tok.Expiry.IsZero() {
		return nil, fmt.Errorf("%w: no expiration time in response", storage.ErrCredential)
	}
	return tok, nil
}

func classify(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.Response != nil && re.Response.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("%w: %v", storage.ErrTransient, err)
		}
		return fmt.Errorf("%w: %v", storage.ErrCredential, err)
	}
	return fmt.Errorf("%w: %v", storage.ErrTransient, err)
}

var _ remote.TokenSource = (*Refresher)(nil)
