package resolver

import (
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/rescue-radar/internal/provider"
)

var (
	// ErrInvalidInput matches *InvalidInputError.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound is returned by GetByID when no source knows the id.
	ErrNotFound = errors.New("dog not found")
	// ErrNoResults matches *ExhaustedError.
	ErrNoResults = errors.New("all sources exhausted")
)

// InvalidInputError rejects a criterion before any source is consulted.
type InvalidInputError struct {
	Field  string
	Value  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// Unwrap returns ErrInvalidInput.
func (e *InvalidInputError) Unwrap() error {
	return ErrInvalidInput
}

// ExhaustedError reports that every consulted source failed and nothing was found.
type ExhaustedError struct {
	// AllRateLimited is set when every provider failure was a rate limit.
	AllRateLimited bool
	// RetryAfter is the shortest wait hinted by a rate-limited provider.
	RetryAfter time.Duration
}

func (e *ExhaustedError) Error() string {
	if e.AllRateLimited {
		return fmt.Sprintf("%s: rate limited, retry after %s", ErrNoResults, e.RetryAfter)
	}
	return ErrNoResults.Error()
}

// Unwrap returns ErrNoResults, plus provider.ErrRateLimited when the
// exhaustion is retryable.
func (e *ExhaustedError) Unwrap() []error {
	if e.AllRateLimited {
		return []error{ErrNoResults, provider.ErrRateLimited}
	}
	return []error{ErrNoResults}
}

// failures tracks which sources failed during one request. A request is
// exhausted when every provider consulted failed, or when the store failed
// and there was no provider to fall back to.
type failures struct {
	storeFailed    bool
	providers      int
	providerFailed int
	rateLimited    int
	retryAfter     time.Duration
}

func (f *failures) storeFail() {
	f.storeFailed = true
}

func (f *failures) providerOK() {
	f.providers++
}

func (f *failures) providerFail(err error) {
	f.providers++
	f.providerFailed++
	if after, ok := provider.RetryAfter(err); ok {
		f.rateLimited++
		// The earliest moment any provider can serve again.
		if f.retryAfter == 0 || after < f.retryAfter {
			f.retryAfter = after
		}
	}
}

func (f *failures) exhausted() bool {
	if f.providers == 0 {
		return f.storeFailed
	}
	return f.providerFailed == f.providers
}

func (f *failures) err() *ExhaustedError {
	return &ExhaustedError{
		AllRateLimited: f.rateLimited > 0 && f.rateLimited == f.providerFailed,
		RetryAfter:     f.retryAfter,
	}
}
