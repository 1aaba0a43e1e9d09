// Package fetch implements the transport capability consumed by the portal
// client: it turns an endpoint plus query/form parameters into a parsed HTML
// document, or a TransportError.
package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/corpix/uarand"
	"github.com/uwinops/lancer/internal/fingerprint"
	"github.com/uwinops/lancer/pkg/httpclient"
	"github.com/uwinops/lancer/pkg/ratelimit"
)

// TransportError reports a failed portal request: a network failure, timeout,
// or non-2xx response. It is always fatal to the enclosing scrape operation;
// no retries happen at this layer.
type TransportError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("portal request failed (url=%s, status=%d)", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("portal request failed (url=%s): %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Config configures a Fetcher.
type Config struct {
	Timeout           time.Duration
	RequestsPerSecond float64
	Jitter            float64
	Fingerprint       fingerprint.Profile
}

// Fetcher issues rate-limited, browser-fingerprinted requests and parses the
// responses with goquery. A single Fetcher holds one cookie jar, so the
// portlet session set up by the first request carries through the rest.
type Fetcher struct {
	client  *httpclient.Client
	limiter *ratelimit.Limiter
}

// New creates a Fetcher from cfg.
func New(cfg Config) (*Fetcher, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Fingerprint == "" {
		cfg.Fingerprint = fingerprint.ProfileChrome
	}

	transport, err := fingerprint.Transport(cfg.Fingerprint)
	if err != nil {
		return nil, fmt.Errorf("fetch: setup transport: %w", err)
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: 5,
		UseCookieJar: true,
		Transport:    transport,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch: create client: %w", err)
	}

	return &Fetcher{
		client:  client,
		limiter: ratelimit.New(cfg.RequestsPerSecond, cfg.Jitter),
	}, nil
}

// Get fetches rawURL with the given query string and parses the response body.
func (f *Fetcher) Get(ctx context.Context, rawURL string, query url.Values) (*goquery.Document, error) {
	return f.do(ctx, http.MethodGet, rawURL, query, nil)
}

// PostForm fetches rawURL with the given query string and URL-encoded form
// body and parses the response body.
func (f *Fetcher) PostForm(ctx context.Context, rawURL string, query, form url.Values) (*goquery.Document, error) {
	return f.do(ctx, http.MethodPost, rawURL, query, form)
}

func (f *Fetcher) do(ctx context.Context, method, rawURL string, query, form url.Values) (*goquery.Document, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, &TransportError{URL: rawURL, Err: err}
	}

	target := rawURL
	if len(query) > 0 {
		target = rawURL + "?" + query.Encode()
	}

	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("fetch: create request: %w", err)
	}

	req.Header.Set("User-Agent", uarand.GetRandom())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := f.client.Do(ctx, req)
	if err != nil {
		return nil, &TransportError{URL: target, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{URL: target, StatusCode: resp.StatusCode}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch: parse document: %w", err)
	}
	return doc, nil
}

// Close releases the fetcher's rate limiter.
func (f *Fetcher) Close() {
	f.limiter.Stop()
}
