// Package petfinder is the client for the Petfinder v2 API.
package petfinder

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/rescue-radar/internal/animal"
	"github.com/JakeFAU/rescue-radar/internal/formatter"
	"github.com/JakeFAU/rescue-radar/internal/policy/ratelimit"
	"github.com/JakeFAU/rescue-radar/internal/provider"
	"github.com/JakeFAU/rescue-radar/internal/provider/oauth"
)

// Name is the provider namespace.
const Name = "petfinder"

// DefaultBaseURL is the public API root.
const DefaultBaseURL = "https://api.petfinder.com"

// MaxPageSize is the largest page the API serves.
const MaxPageSize = 100

// Config configures the client.
type Config struct {
	BaseURL       string
	ClientID      string
	ClientSecret  string
	PageSize      int
	RefreshMargin time.Duration
}

// Client talks to Petfinder with an OAuth2 bearer token.
type Client struct {
	transport *provider.Transport
	tokens    *oauth.TokenCache
	pageSize  int
	logger    *zap.Logger
}

// New creates a Client. httpClient, limiter, clk and logger may be nil.
func New(
	cfg Config,
	httpClient *http.Client,
	limiter *ratelimit.Limiter,
	clk animal.Clock,
	logger *zap.Logger,
) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	transport, err := provider.NewTransport(Name, cfg.BaseURL, httpClient, limiter, logger)
	if err != nil {
		return nil, fmt.Errorf("create petfinder transport: %w", err)
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	tokens := oauth.New(oauth.Config{
		ClientID:      cfg.ClientID,
		ClientSecret:  cfg.ClientSecret,
		TokenURL:      strings.TrimRight(cfg.BaseURL, "/") + "/v2/oauth2/token",
		RefreshMargin: cfg.RefreshMargin,
	}, transport.HTTPClient(), clk)
	return &Client{transport: transport, tokens: tokens, pageSize: pageSize, logger: logger}, nil
}

// Name implements provider.Client.
func (c *Client) Name() string { return Name }

// Kind implements provider.Client.
func (c *Client) Kind() formatter.SourceKind { return formatter.SourcePetfinder }

type searchResponse struct {
	Animals    []formatter.PetfinderRaw `json:"animals"`
	Pagination struct {
		CountPerPage int `json:"count_per_page"`
		TotalCount   int `json:"total_count"`
		CurrentPage  int `json:"current_page"`
		TotalPages   int `json:"total_pages"`
	} `json:"pagination"`
}

// Search implements provider.Client.
func (c *Client) Search(ctx context.Context, q provider.Query) (provider.Page, error) {
	var resp searchResponse
	raw, err := c.do(ctx, provider.Request{Path: "/v2/animals", Query: c.searchParams(q)}, &resp)
	if err != nil {
		return provider.Page{}, fmt.Errorf("petfinder search: %w", err)
	}
	records := make([]formatter.RawRecord, 0, len(resp.Animals))
	for _, a := range resp.Animals {
		records = append(records, a)
	}
	page := resp.Pagination.CurrentPage
	if page == 0 {
		page = max(q.Page, 1)
	}
	return provider.Page{
		Records:    records,
		Page:       page,
		TotalPages: resp.Pagination.TotalPages,
		Raw:        raw,
	}, nil
}

// GetByID implements provider.Client.
func (c *Client) GetByID(ctx context.Context, nativeID string) (formatter.RawRecord, error) {
	if _, err := strconv.ParseInt(nativeID, 10, 64); err != nil {
		return nil, fmt.Errorf("petfinder get %q: %w", nativeID, provider.ErrNotFound)
	}
	var resp struct {
		Animal *formatter.PetfinderRaw `json:"animal"`
	}
	if _, err := c.do(ctx, provider.Request{Path: "/v2/animals/" + url.PathEscape(nativeID)}, &resp); err != nil {
		return nil, fmt.Errorf("petfinder get %s: %w", nativeID, err)
	}
	if resp.Animal == nil {
		return nil, fmt.Errorf("petfinder get %s: %w", nativeID, provider.ErrNotFound)
	}
	return *resp.Animal, nil
}

// ListBreeds implements provider.Client.
func (c *Client) ListBreeds(ctx context.Context) ([]string, error) {
	var resp struct {
		Breeds []struct {
			Name string `json:"name"`
		} `json:"breeds"`
	}
	if _, err := c.do(ctx, provider.Request{Path: "/v2/types/dog/breeds"}, &resp); err != nil {
		return nil, fmt.Errorf("petfinder breeds: %w", err)
	}
	out := make([]string, 0, len(resp.Breeds))
	for _, b := range resp.Breeds {
		if b.Name != "" {
			out = append(out, b.Name)
		}
	}
	return out, nil
}

// do sends an authorized request, refreshing the token once on a 401.
func (c *Client) do(ctx context.Context, req provider.Request, out any) ([]byte, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, errors.Join(provider.ErrUnavailable, err)
	}
	req.Header = http.Header{"Authorization": {"Bearer " + token}}
	raw, err := c.transport.DoJSON(ctx, req, out)
	if err == nil || !errors.Is(err, provider.ErrUnauthorized) {
		return raw, err
	}

	c.logger.Info("petfinder token rejected, refreshing")
	token, err = c.tokens.ForceRefresh(ctx)
	if err != nil {
		return nil, errors.Join(provider.ErrUnavailable, err)
	}
	req.Header = http.Header{"Authorization": {"Bearer " + token}}
	raw, err = c.transport.DoJSON(ctx, req, out)
	if err != nil && errors.Is(err, provider.ErrUnauthorized) {
		return nil, fmt.Errorf("%w: token rejected after refresh: %w", provider.ErrUnavailable, err)
	}
	return raw, err
}

func (c *Client) searchParams(q provider.Query) url.Values {
	v := url.Values{}
	v.Set("type", "dog")
	v.Set("status", "adoptable")
	limit := q.Limit
	if limit <= 0 || limit > c.pageSize {
		limit = c.pageSize
	}
	v.Set("limit", strconv.Itoa(limit))
	v.Set("page", strconv.Itoa(max(q.Page, 1)))

	f := q.Filter
	if loc := location(f.Location); loc != "" {
		v.Set("location", loc)
	}
	if f.Breed != "" {
		v.Set("breed", f.Breed)
	}
	if f.Age != "" && f.Age != animal.AgeUnknown {
		v.Set("age", strings.ToLower(string(f.Age)))
	}
	if size := sizeParam(f.Size); size != "" {
		v.Set("size", size)
	}
	if f.Gender != "" && f.Gender != animal.GenderUnknown {
		v.Set("gender", strings.ToLower(string(f.Gender)))
	}
	if f.GoodWithChildren {
		v.Set("good_with_children", "true")
	}
	if f.GoodWithDogs {
		v.Set("good_with_dogs", "true")
	}
	if f.GoodWithCats {
		v.Set("good_with_cats", "true")
	}
	if f.SpecialNeeds {
		v.Set("special_needs", "true")
	}
	if !f.PublishedSince.IsZero() {
		v.Set("after", f.PublishedSince.UTC().Format(time.RFC3339))
		v.Set("sort", "recent")
	}
	return v
}

func location(loc animal.Location) string {
	switch {
	case loc.Postcode != "":
		return loc.Postcode
	case loc.City != "" && loc.State != "":
		return loc.City + ", " + loc.State
	default:
		return loc.State
	}
}

func sizeParam(s animal.Size) string {
	switch s {
	case animal.SizeSmall:
		return "small"
	case animal.SizeMedium:
		return "medium"
	case animal.SizeLarge:
		return "large"
	case animal.SizeExtraLarge:
		return "xlarge"
	default:
		return ""
	}
}
