// Package fetcher retrieves HTML pages and extracts elements by CSS selector.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/ternarybob/agenthub/internal/common"
	"github.com/ternarybob/agenthub/internal/models"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
)

const (
	// DefaultSelector is used when a subscription gives no selector
	DefaultSelector = "a[href]"

	// DefaultTimeout bounds a single fetch
	DefaultTimeout = 10 * time.Second

	// DefaultMaxBodySize caps the bytes read from one response
	DefaultMaxBodySize = 5 * 1024 * 1024
)

// Client fetches pages over HTTP and extracts items with goquery
type Client struct {
	httpClient  *http.Client
	limiter     *rate.Limiter
	logger      arbor.ILogger
	userAgent   string
	timeout     time.Duration
	maxBodySize int64
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithRateLimit paces outgoing requests. A non-positive rate disables pacing.
func WithRateLimit(requestsPerSecond float64, burst int) ClientOption {
	return func(c *Client) {
		if requestsPerSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
}

// WithTimeout sets the per-fetch timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(userAgent string) ClientOption {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// WithMaxBodySize caps the response bytes parsed.
func WithMaxBodySize(n int64) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxBodySize = n
		}
	}
}

// NewClient creates a fetcher client
func NewClient(logger arbor.ILogger, opts ...ClientOption) *Client {
	c := &Client{
		httpClient:  &http.Client{},
		logger:      logger,
		timeout:     DefaultTimeout,
		maxBodySize: DefaultMaxBodySize,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// NewClientFromConfig builds a client from the [fetcher] config section
func NewClientFromConfig(config common.FetcherConfig, logger arbor.ILogger) *Client {
	return NewClient(logger,
		WithTimeout(common.ParseDurationOr(config.Timeout, DefaultTimeout)),
		WithUserAgent(config.UserAgent),
		WithMaxBodySize(config.MaxBodySize),
		WithRateLimit(config.RequestsPerSecond, config.Burst),
	)
}

// ValidateSelector reports whether selector is a parseable CSS selector.
// An empty selector is valid and means DefaultSelector.
func ValidateSelector(selector string) error {
	if strings.TrimSpace(selector) == "" {
		return nil
	}
	if _, err := cascadia.Compile(selector); err != nil {
		return common.NewValidationError("selector", fmt.Sprintf("invalid CSS selector: %v", err))
	}
	return nil
}

// FetchItems downloads rawURL and returns the text and resolved href of every
// element matching selector, in document order.
func (c *Client) FetchItems(ctx context.Context, rawURL, selector string) ([]models.FetchedItem, error) {
	if strings.TrimSpace(selector) == "" {
		selector = DefaultSelector
	}
	matcher, err := cascadia.Compile(selector)
	if err != nil {
		return nil, &common.UpstreamError{Kind: common.UpstreamParse, URL: rawURL, Err: err}
	}

	doc, base, err := c.fetchDocument(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	var items []models.FetchedItem
	doc.FindMatcher(matcher).Each(func(i int, s *goquery.Selection) {
		item := models.FetchedItem{Title: strings.TrimSpace(s.Text())}
		if href, ok := s.Attr("href"); ok && strings.TrimSpace(href) != "" {
			item.Link = resolveURL(base, href)
		}
		items = append(items, item)
	})

	c.logger.Debug().
		Str("url", rawURL).
		Str("selector", selector).
		Int("items", len(items)).
		Msg("Page fetched")

	return items, nil
}

func (c *Client) fetchDocument(ctx context.Context, rawURL string) (*goquery.Document, *url.URL, error) {
	base, err := url.Parse(rawURL)
	if err != nil || base.Host == "" {
		return nil, nil, &common.UpstreamError{Kind: common.UpstreamNetwork, URL: rawURL, Err: fmt.Errorf("invalid URL")}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, nil, &common.UpstreamError{Kind: common.UpstreamTimeout, URL: rawURL, Err: fmt.Errorf("rate limit wait: %w", err)}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, nil, &common.UpstreamError{Kind: common.UpstreamNetwork, URL: rawURL, Err: err}
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, classifyTransportError(rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, nil, &common.UpstreamError{Kind: common.UpstreamStatus, URL: rawURL, Err: &common.StatusError{Code: resp.StatusCode}}
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, c.maxBodySize))
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, classifyTransportError(rawURL, err)
		}
		return nil, nil, &common.UpstreamError{Kind: common.UpstreamParse, URL: rawURL, Err: fmt.Errorf("failed to parse HTML: %w", err)}
	}

	// Redirects change the base for relative links
	if resp.Request != nil && resp.Request.URL != nil {
		base = resp.Request.URL
	}

	return doc, base, nil
}

func classifyTransportError(rawURL string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &common.UpstreamError{Kind: common.UpstreamTimeout, URL: rawURL, Err: err}
	}
	return &common.UpstreamError{Kind: common.UpstreamNetwork, URL: rawURL, Err: err}
}

// resolveURL resolves href against base. Unparseable hrefs are returned unchanged.
func resolveURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
