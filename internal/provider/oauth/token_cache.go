// Package oauth caches client-credentials bearer tokens.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/JakeFAU/rescue-radar/internal/animal"
	"github.com/JakeFAU/rescue-radar/internal/clock"
)

// DefaultRefreshMargin is how long before expiry a token is replaced.
const DefaultRefreshMargin = 60 * time.Second

// defaultLifetime applies when the token endpoint omits expires_in.
const defaultLifetime = time.Hour

// ErrNoToken is returned when the token endpoint answers without an access token.
var ErrNoToken = errors.New("token endpoint returned no access token")

// Config configures the client-credentials exchange.
type Config struct {
	ClientID      string
	ClientSecret  string
	TokenURL      string
	RefreshMargin time.Duration
}

// Entry is the cached token.
type Entry struct {
	Token     string
	ExpiresAt time.Time
}

// TokenCache hands out a bearer token, fetching a new one only when the cached
// one is missing or close to expiry. Concurrent callers share one fetch.
type TokenCache struct {
	source func(ctx context.Context) (*oauth2.Token, error)
	clock  animal.Clock
	margin time.Duration

	mu    sync.Mutex
	entry Entry
}

// New creates a TokenCache. httpClient and clk may be nil.
func New(cfg Config, httpClient *http.Client, clk animal.Clock) *TokenCache {
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	source := func(ctx context.Context) (*oauth2.Token, error) {
		if httpClient != nil {
			ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
		}
		return cc.Token(ctx)
	}
	return newWithSource(source, cfg.RefreshMargin, clk)
}

func newWithSource(source func(context.Context) (*oauth2.Token, error), margin time.Duration, clk animal.Clock) *TokenCache {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if margin <= 0 {
		margin = DefaultRefreshMargin
	}
	return &TokenCache{source: source, clock: clk, margin: margin}
}

// Token returns a valid bearer token.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entry.Token != "" && c.clock.Now().Add(c.margin).Before(c.entry.ExpiresAt) {
		return c.entry.Token, nil
	}
	return c.fetchLocked(ctx)
}

// ForceRefresh discards the cached token and fetches a new one.
func (c *TokenCache) ForceRefresh(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entry = Entry{}
	return c.fetchLocked(ctx)
}

// Snapshot returns the cached entry.
func (c *TokenCache) Snapshot() Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entry
}

func (c *TokenCache) fetchLocked(ctx context.Context) (string, error) {
	tok, err := c.source(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch token: %w", err)
	}
	if tok == nil || tok.AccessToken == "" {
		return "", ErrNoToken
	}
	expires := tok.Expiry
	if expires.IsZero() {
		expires = c.clock.Now().Add(defaultLifetime)
	}
	c.entry = Entry{Token: tok.AccessToken, ExpiresAt: expires}
	return tok.AccessToken, nil
}
