package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/rescue-radar/internal/metrics"
	"github.com/JakeFAU/rescue-radar/internal/policy/ratelimit"
)

// DefaultTimeout bounds a single provider request.
const DefaultTimeout = 15 * time.Second

const maxBodyBytes = 8 << 20

// Request describes one provider call.
type Request struct {
	Method      string
	Path        string
	Query       url.Values
	Header      http.Header
	Body        any
	ContentType string
}

// Transport sends rate-limited JSON requests to one provider.
type Transport struct {
	name    string
	baseURL string
	http    *http.Client
	limiter *ratelimit.Limiter
	logger  *zap.Logger
}

// NewTransport creates a Transport. A nil httpClient gets DefaultTimeout.
func NewTransport(
	name string,
	baseURL string,
	httpClient *http.Client,
	limiter *ratelimit.Limiter,
	logger *zap.Logger,
) (*Transport, error) {
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid %s base url: %w", name, err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	if limiter == nil {
		limiter = ratelimit.New(name, ratelimit.Config{}, nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transport{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		limiter: limiter,
		logger:  logger,
	}, nil
}

// HTTPClient returns the underlying client.
func (t *Transport) HTTPClient() *http.Client {
	return t.http
}

// Do waits for a rate-limit slot, sends the request and returns the body of a
// 2xx response. A 429 penalizes the limiter and comes back as a
// *ratelimit.RetryAfterError.
func (t *Transport) Do(ctx context.Context, req Request) ([]byte, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	httpReq, err := t.newRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := t.http.Do(httpReq)
	if err != nil {
		metrics.ObserveProviderRequest(t.name, "error", time.Since(start))
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s request: %w", t.name, ctxErr)
		}
		return nil, fmt.Errorf("%s request: %w", t.name, errors.Join(ErrUnavailable, err))
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			t.logger.Debug("close response body", zap.Error(cerr))
		}
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		metrics.ObserveProviderRequest(t.name, "error", time.Since(start))
		return nil, fmt.Errorf("%s read body: %w", t.name, errors.Join(ErrUnavailable, err))
	}
	metrics.ObserveProviderRequest(t.name, strconv.Itoa(resp.StatusCode), time.Since(start))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		after := parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		t.limiter.Penalize(after)
		t.logger.Warn("provider throttled request",
			zap.String("provider", t.name),
			zap.Duration("retry_after", after))
		return nil, &ratelimit.RetryAfterError{Provider: t.name, After: after}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, &HTTPError{
			Provider:   t.name,
			StatusCode: resp.StatusCode,
			Body:       truncate(strings.TrimSpace(string(raw)), 512),
		}
	}
	return raw, nil
}

// DoJSON is Do followed by decoding the body into out.
func (t *Transport) DoJSON(ctx context.Context, req Request, out any) ([]byte, error) {
	raw, err := t.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if out == nil || len(raw) == 0 {
		return raw, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("%s decode response: %w", t.name, errors.Join(ErrUnavailable, err))
	}
	return raw, nil
}

func (t *Transport) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	full := t.baseURL + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		full += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("%s marshal request: %w", t.name, err)
		}
		body = bytes.NewReader(b)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, full, body)
	if err != nil {
		return nil, fmt.Errorf("%s new request: %w", t.name, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		ct := req.ContentType
		if ct == "" {
			ct = "application/json"
		}
		httpReq.Header.Set("Content-Type", ct)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Set(k, v)
		}
	}
	return httpReq, nil
}

const defaultRetryAfter = 30 * time.Second

// parseRetryAfter reads delta-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return defaultRetryAfter
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
		return 0
	}
	return defaultRetryAfter
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
