// Package datasource fetches the raw market data chartscout screens:
// the KOSPI/KOSDAQ listing, daily price history, and news headlines.
package datasource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/seenimoa/chartscout/internal/infra"
	"github.com/seenimoa/chartscout/pkg/models"
)

// ListingSource supplies every tradable instrument of a market segment with
// its latest close, volume and percent change, as printed by the source.
type ListingSource interface {
	FetchListing(ctx context.Context, market models.Market) ([]models.ListingRow, error)
}

// HistorySource supplies daily bars for one instrument. An empty or short
// series is a normal result, not an error.
type HistorySource interface {
	FetchHistory(ctx context.Context, code string, from, to time.Time) (models.HistorySeries, error)
}

// HeadlineSource supplies recent market headlines, newest first.
type HeadlineSource interface {
	FetchHeadlines(ctx context.Context, limit int) ([]models.NewsArticle, error)
}

// --- Sentinel errors ---

var (
	// ErrSourceUnavailable wraps network and parse failures of an upstream source.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrInsufficientHistory marks a series shorter than the indicators need.
	ErrInsufficientHistory = errors.New("insufficient history")

	// ErrMalformedRecord marks a listing row whose numeric fields cannot be coerced.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrTickerNotFound is returned when a code cannot be resolved.
	ErrTickerNotFound = errors.New("ticker not found")

	// ErrUnsupportedMarket is returned for a segment the source does not list.
	ErrUnsupportedMarket = errors.New("unsupported market")
)

// ErrHTTP wraps an HTTP error with status code.
type ErrHTTP struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("HTTP %d %s: %s", e.StatusCode, e.Status, e.Body)
}

// --- Shared HTTP client ---

// DefaultUserAgent is the user agent string used for HTTP requests.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// Option configures a source.
type Option func(*client)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) { c.http = hc }
}

// WithBaseURL overrides the upstream base URL (used by tests and mirrors).
func WithBaseURL(u string) Option {
	return func(c *client) { c.baseURL = u }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithLimiter throttles requests to the upstream host.
func WithLimiter(l *infra.Limiter) Option {
	return func(c *client) { c.limiter = l }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *client) {
		if l != nil {
			c.log = l
		}
	}
}

type client struct {
	http      *http.Client
	baseURL   string
	userAgent string
	limiter   *infra.Limiter
	log       *zap.Logger
}

func newClient(baseURL string, opts []Option) client {
	c := client{
		http:      &http.Client{Timeout: 30 * time.Second},
		baseURL:   baseURL,
		userAgent: DefaultUserAgent,
		log:       zap.NewNop(),
	}
	for _, o := range opts {
		o(&c)
	}
	return c
}

// get performs a rate-limited GET and returns the body and response headers.
// The caller is responsible for closing the returned ReadCloser.
func (c *client) get(ctx context.Context, url string, headers map[string]string) (io.ReadCloser, http.Header, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json, text/html, */*")
	req.Header.Set("Accept-Language", "ko-KR,ko;q=0.9,en-US;q=0.8")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("HTTP GET %s: %w", url, err)
	}
	c.log.Debug("http get", zap.String("url", url), zap.Int("status", resp.StatusCode), zap.Duration("took", time.Since(start)))

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, nil, &ErrHTTP{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(body),
		}
	}

	return resp.Body, resp.Header, nil
}
