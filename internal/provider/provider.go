// Package provider defines the contract shared by the external listing
// providers and the HTTP plumbing their clients are built on.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/JakeFAU/rescue-radar/internal/animal"
	"github.com/JakeFAU/rescue-radar/internal/formatter"
	"github.com/JakeFAU/rescue-radar/internal/policy/ratelimit"
)

var (
	// ErrUnavailable covers timeouts, 5xx responses and repeated auth failures.
	ErrUnavailable = errors.New("provider unavailable")
	// ErrUnauthorized is returned for 401 and 403 responses.
	ErrUnauthorized = errors.New("provider unauthorized")
	// ErrNotFound is returned when the provider has no record with the requested id.
	ErrNotFound = errors.New("provider record not found")
	// ErrRateLimited matches *ratelimit.RetryAfterError.
	ErrRateLimited = ratelimit.ErrRateLimited
)

// Query is a single page request against a provider.
type Query struct {
	Filter animal.Filter
	// Page is 1-based.
	Page  int
	Limit int
}

// Page is one page of provider results.
type Page struct {
	Records    []formatter.RawRecord
	Page       int
	TotalPages int
	// Raw is the undecoded response body, kept for archiving.
	Raw []byte
}

// HasMore reports whether another page follows this one.
func (p Page) HasMore() bool {
	return p.Page < p.TotalPages
}

// Client is an external listing provider.
type Client interface {
	// Name is the provider namespace used in record ids.
	Name() string
	Kind() formatter.SourceKind
	Search(ctx context.Context, q Query) (Page, error)
	GetByID(ctx context.Context, nativeID string) (formatter.RawRecord, error)
	ListBreeds(ctx context.Context) ([]string, error)
}

// HTTPError is a non-2xx provider response.
type HTTPError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s http error: status=%d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s http error: status=%d body=%s", e.Provider, e.StatusCode, e.Body)
}

// Unwrap classifies the status code.
func (e *HTTPError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return ErrUnavailable
	}
}

// RetryAfter returns the retry hint carried by err, if any.
func RetryAfter(err error) (time.Duration, bool) {
	var ra *ratelimit.RetryAfterError
	if errors.As(err, &ra) {
		return ra.After, true
	}
	return 0, false
}
