// Package scrape contains the shared HTTP client and the per-source
// adapters that turn upstream pages and APIs into normalized Documents.
package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"clipbrief/internal/logger"
	"clipbrief/internal/ratelimit"
	"clipbrief/internal/urlguard"
)

const (
	defaultTimeout = 30 * time.Second
	maxAttempts    = 3
	browserUA      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	acceptHeader   = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"
	acceptLanguage = "zh-TW,zh;q=0.9,en-US;q=0.8,en;q=0.7"
)

// Client is the shared outbound HTTP client. Every adapter request goes
// through it: the URL guard runs first, then the per-host rate limiter,
// then the request with retry.
type Client struct {
	http    *http.Client
	limiter *ratelimit.Limiter
	backoff func(attempt int) time.Duration
	guard   func(string) error
}

// NewClient builds a client with the given timeout and limiter. A zero
// timeout falls back to 30 seconds; a nil limiter allows 60 requests
// per host per minute.
func NewClient(timeout time.Duration, limiter *ratelimit.Limiter) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if limiter == nil {
		limiter = ratelimit.New(60)
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		limiter: limiter,
		backoff: defaultBackoff,
		guard:   urlguard.Check,
	}
}

// defaultBackoff grows 1s, 2s, 4s, ... capped at 10s.
func defaultBackoff(attempt int) time.Duration {
	d := time.Second << attempt
	if d > 10*time.Second {
		d = 10 * time.Second
	}
	return d
}

type requestOpt func(*http.Request)

func withHeader(key, value string) requestOpt {
	return func(r *http.Request) { r.Header.Set(key, value) }
}

func withCookie(c *http.Cookie) requestOpt {
	return func(r *http.Request) { r.AddCookie(c) }
}

// Get fetches rawURL and returns the response body. Retries up to three
// attempts on transport errors and 5xx responses; 4xx responses fail
// immediately.
func (c *Client) Get(ctx context.Context, rawURL string, opts ...requestOpt) ([]byte, error) {
	if err := c.guard(rawURL); err != nil {
		return nil, err
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing %q: %v", ErrTransport, rawURL, err)
	}
	if err := c.limiter.Wait(ctx, u.Hostname()); err != nil {
		return nil, fmt.Errorf("%w: rate limit wait: %v", ErrTransport, err)
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			logger.Debug("retrying fetch", "url", rawURL, "attempt", attempt+1)
			t := time.NewTimer(c.backoff(attempt - 1))
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, fmt.Errorf("%w: %v", ErrTransport, ctx.Err())
			case <-t.C:
			}
		}

		body, retryable, err := c.do(ctx, rawURL, opts)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}
	return nil, lastErr
}

func (c *Client) do(ctx context.Context, rawURL string, opts []requestOpt) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("%w: building request for %q: %v", ErrTransport, rawURL, err)
	}
	req.Header.Set("User-Agent", browserUA)
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Accept-Language", acceptLanguage)
	for _, opt := range opts {
		opt(req)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, true, fmt.Errorf("%w: %s returned %d", ErrTransport, rawURL, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, false, fmt.Errorf("%w: %s returned %d", ErrTransport, rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("%w: reading body of %s: %v", ErrTransport, rawURL, err)
	}
	return body, false, nil
}

// GetDocument fetches rawURL and parses the body as HTML.
func (c *Client) GetDocument(ctx context.Context, rawURL string, opts ...requestOpt) (*goquery.Document, error) {
	body, err := c.Get(ctx, rawURL, opts...)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing HTML from %s: %v", ErrTransport, rawURL, err)
	}
	return doc, nil
}
