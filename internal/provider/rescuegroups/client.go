// Package rescuegroups is the client for the RescueGroups.org v5 public API.
//
// Responses follow JSON:API: photos, organizations, locations and statuses
// arrive in a shared "included" array and animals point into it through
// relationships.
package rescuegroups

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/rescue-radar/internal/animal"
	"github.com/JakeFAU/rescue-radar/internal/formatter"
	"github.com/JakeFAU/rescue-radar/internal/policy/ratelimit"
	"github.com/JakeFAU/rescue-radar/internal/provider"
)

// Name is the provider namespace.
const Name = "rescuegroups"

// DefaultBaseURL is the public API root.
const DefaultBaseURL = "https://api.rescuegroups.org"

// MaxPageSize is the largest page the API serves.
const MaxPageSize = 250

// DefaultRadiusMiles bounds postcode searches.
const DefaultRadiusMiles = 50

const (
	contentType = "application/vnd.api+json"
	includes    = "pictures,orgs,locations,statuses"
	maxBreedPgs = 5
)

// Config configures the client.
type Config struct {
	BaseURL     string
	APIKey      string
	PageSize    int
	RadiusMiles int
}

// Client talks to RescueGroups with an API key header.
type Client struct {
	transport *provider.Transport
	apiKey    string
	pageSize  int
	radius    int
}

// New creates a Client. httpClient, limiter and logger may be nil.
func New(cfg Config, httpClient *http.Client, limiter *ratelimit.Limiter, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	transport, err := provider.NewTransport(Name, cfg.BaseURL, httpClient, limiter, logger)
	if err != nil {
		return nil, fmt.Errorf("create rescuegroups transport: %w", err)
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = 100
	}
	radius := cfg.RadiusMiles
	if radius <= 0 {
		radius = DefaultRadiusMiles
	}
	return &Client{transport: transport, apiKey: cfg.APIKey, pageSize: pageSize, radius: radius}, nil
}

// Name implements provider.Client.
func (c *Client) Name() string { return Name }

// Kind implements provider.Client.
func (c *Client) Kind() formatter.SourceKind { return formatter.SourceRescueGroups }

type filter struct {
	FieldName string `json:"fieldName"`
	Operation string `json:"operation"`
	Criteria  any    `json:"criteria"`
}

type filterRadius struct {
	Miles      int    `json:"miles"`
	Postalcode string `json:"postalcode"`
}

type searchBody struct {
	Data struct {
		Filters      []filter      `json:"filters,omitempty"`
		FilterRadius *filterRadius `json:"filterRadius,omitempty"`
	} `json:"data"`
}

type document struct {
	Meta struct {
		Count        int `json:"count"`
		PageReturned int `json:"pageReturned"`
		Pages        int `json:"pages"`
	} `json:"meta"`
	Data     json.RawMessage              `json:"data"`
	Included []formatter.IncludedResource `json:"included"`
}

// animals decodes data as a list, accepting a single resource too.
func (d document) animals() ([]formatter.RescueGroupsRaw, error) {
	body := bytes.TrimSpace(d.Data)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return nil, nil
	}
	var out []formatter.RescueGroupsRaw
	if body[0] == '[' {
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, fmt.Errorf("decode animals: %w", err)
		}
	} else {
		var one formatter.RescueGroupsRaw
		if err := json.Unmarshal(body, &one); err != nil {
			return nil, fmt.Errorf("decode animal: %w", err)
		}
		out = []formatter.RescueGroupsRaw{one}
	}
	table := formatter.NewSideTable(d.Included)
	for i := range out {
		out[i].Included = table
	}
	return out, nil
}

// Search implements provider.Client.
func (c *Client) Search(ctx context.Context, q provider.Query) (provider.Page, error) {
	limit := q.Limit
	if limit <= 0 || limit > c.pageSize {
		limit = c.pageSize
	}
	page := max(q.Page, 1)
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("page", strconv.Itoa(page))
	params.Set("include", includes)
	params.Set("sort", "-animals.createdDate")

	var doc document
	raw, err := c.transport.DoJSON(ctx, provider.Request{
		Method:      http.MethodPost,
		Path:        "/v5/public/animals/search/available/dogs/",
		Query:       params,
		Header:      c.header(),
		Body:        c.searchBody(q.Filter),
		ContentType: contentType,
	}, &doc)
	if err != nil {
		return provider.Page{}, fmt.Errorf("rescuegroups search: %w", err)
	}
	animals, err := doc.animals()
	if err != nil {
		return provider.Page{}, fmt.Errorf("rescuegroups search: %w", err)
	}
	records := make([]formatter.RawRecord, 0, len(animals))
	for _, a := range animals {
		records = append(records, a)
	}
	if doc.Meta.PageReturned > 0 {
		page = doc.Meta.PageReturned
	}
	return provider.Page{Records: records, Page: page, TotalPages: doc.Meta.Pages, Raw: raw}, nil
}

// GetByID implements provider.Client.
func (c *Client) GetByID(ctx context.Context, nativeID string) (formatter.RawRecord, error) {
	params := url.Values{}
	params.Set("include", includes)
	var doc document
	_, err := c.transport.DoJSON(ctx, provider.Request{
		Path:   "/v5/public/animals/" + url.PathEscape(nativeID),
		Query:  params,
		Header: c.header(),
	}, &doc)
	if err != nil {
		return nil, fmt.Errorf("rescuegroups get %s: %w", nativeID, err)
	}
	animals, err := doc.animals()
	if err != nil {
		return nil, fmt.Errorf("rescuegroups get %s: %w", nativeID, err)
	}
	if len(animals) == 0 {
		return nil, fmt.Errorf("rescuegroups get %s: %w", nativeID, provider.ErrNotFound)
	}
	return animals[0], nil
}

// ListBreeds implements provider.Client.
func (c *Client) ListBreeds(ctx context.Context) ([]string, error) {
	var out []string
	for page := 1; page <= maxBreedPgs; page++ {
		params := url.Values{}
		params.Set("limit", strconv.Itoa(MaxPageSize))
		params.Set("page", strconv.Itoa(page))
		var resp struct {
			Meta struct {
				Pages int `json:"pages"`
			} `json:"meta"`
			Data []struct {
				Attributes struct {
					Name string `json:"name"`
				} `json:"attributes"`
			} `json:"data"`
		}
		_, err := c.transport.DoJSON(ctx, provider.Request{
			Path:   "/v5/public/animals/species/8/breeds/",
			Query:  params,
			Header: c.header(),
		}, &resp)
		if err != nil {
			return nil, fmt.Errorf("rescuegroups breeds: %w", err)
		}
		for _, b := range resp.Data {
			if b.Attributes.Name != "" {
				out = append(out, b.Attributes.Name)
			}
		}
		if page >= resp.Meta.Pages {
			break
		}
	}
	return out, nil
}

func (c *Client) header() http.Header {
	return http.Header{"Authorization": {c.apiKey}}
}

func (c *Client) searchBody(f animal.Filter) searchBody {
	var body searchBody
	add := func(field, op string, criteria any) {
		body.Data.Filters = append(body.Data.Filters, filter{FieldName: field, Operation: op, Criteria: criteria})
	}

	switch {
	case f.Location.Postcode != "":
		body.Data.FilterRadius = &filterRadius{Miles: c.radius, Postalcode: f.Location.Postcode}
	default:
		if f.Location.State != "" {
			add("locations.state", "equal", f.Location.State)
		}
		if f.Location.City != "" {
			add("locations.city", "equal", f.Location.City)
		}
	}
	if f.Breed != "" {
		add("animals.breedPrimary", "equal", f.Breed)
	}
	if f.Age != "" && f.Age != animal.AgeUnknown {
		add("animals.ageGroup", "equal", string(f.Age))
	}
	if size := sizeGroup(f.Size); size != "" {
		add("animals.sizeGroup", "equal", size)
	}
	if f.Gender != "" && f.Gender != animal.GenderUnknown {
		add("animals.sex", "equal", string(f.Gender))
	}
	if f.GoodWithChildren {
		add("animals.isKidsOk", "equal", true)
	}
	if f.GoodWithDogs {
		add("animals.isDogsOk", "equal", true)
	}
	if f.GoodWithCats {
		add("animals.isCatsOk", "equal", true)
	}
	if f.SpecialNeeds {
		add("animals.isSpecialNeeds", "equal", true)
	}
	if !f.PublishedSince.IsZero() {
		add("animals.createdDate", "greaterthan", f.PublishedSince.UTC().Format(time.RFC3339))
	}
	return body
}

func sizeGroup(s animal.Size) string {
	switch s {
	case animal.SizeSmall, animal.SizeMedium, animal.SizeLarge:
		return string(s)
	case animal.SizeExtraLarge:
		return "X-Large"
	default:
		return ""
	}
}
