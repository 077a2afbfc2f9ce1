// Package client provides the ISS HTTP client with rate limiting, response
// caching, and error classification.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/moex-iss-client/pkg/cache"
	"github.com/Sternrassler/moex-iss-client/pkg/iss"
	"github.com/Sternrassler/moex-iss-client/pkg/ratelimit"
	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for ISS client operations.
var (
	issRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "iss_requests_total",
		Help: "Total ISS requests by endpoint and status",
	}, []string{"endpoint", "status"})

	issRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "iss_request_duration_seconds",
		Help:    "ISS request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"endpoint"})

	issErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "iss_errors_total",
		Help: "Total ISS errors by class",
	}, []string{"class"})
)

const (
	// DefaultBaseURL is the public ISS root.
	DefaultBaseURL = "https://iss.moex.com/iss"

	// DefaultPageSize is the number of rows ISS returns per listing page.
	DefaultPageSize = 100

	// DefaultTimeout bounds one HTTP call.
	DefaultTimeout = 30 * time.Second
)

// Client is the ISS client.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	rateLimiter *ratelimit.Tracker
	cache       *cache.Manager
	config      Config
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the ISS API. Defaults to DefaultBaseURL.
	BaseURL string

	// User-Agent header sent with every request.
	UserAgent string

	// Timeout for a single HTTP call.
	Timeout time.Duration

	// PageSize is the listing page size used to validate offsets.
	PageSize int

	// Redis enables the response cache and the shared cooldown. Optional.
	Redis *redis.Client

	// CacheTTL applies when ISS sends no Expires header.
	CacheTTL time.Duration

	// Rate limiting
	RateLimit float64 // Requests per second
	Burst     int
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(redis *redis.Client, userAgent string) Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		UserAgent: userAgent,
		Timeout:   DefaultTimeout,
		PageSize:  DefaultPageSize,
		Redis:     redis,
		CacheTTL:  cache.DefaultTTL,
		RateLimit: ratelimit.DefaultRPS,
		Burst:     ratelimit.DefaultBurst,
	}
}

// New creates a new ISS client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}

	logger := log.With().Str("component", "iss-client").Logger()

	var cacheManager *cache.Manager
	if cfg.Redis != nil {
		cacheManager = cache.NewManager(cfg.Redis)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		rateLimiter: ratelimit.NewTracker(ratelimit.Config{
			RPS:   cfg.RateLimit,
			Burst: cfg.Burst,
		}, cfg.Redis, logger),
		cache:  cacheManager,
		config: cfg,
		logger: logger,
	}, nil
}

// PageSize returns the configured listing page size.
func (c *Client) PageSize() int {
	return c.config.PageSize
}

// Get performs one GET against an ISS path and returns the decoded body.
// With Redis configured, responses are served from the cache, and a body is
// cached only when it parses as an ISS document.
// Errors are *ISSError for transport and HTTP failures; when ctx itself ends
// the bare context error is returned.
func (c *Client) Get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	body, commit, err := c.fetch(ctx, path, params)
	if err != nil {
		return nil, err
	}
	_, decodeErr := iss.Decode(body)
	commit(decodeErr == nil)
	return body, nil
}

// commitFunc settles the cache entry of one fetch: a fresh body is stored
// when ok, a cached body is evicted when not ok.
type commitFunc func(ok bool)

func (c *Client) fetch(ctx context.Context, path string, params url.Values) ([]byte, commitFunc, error) {
	endpoint := endpointLabel(path)

	startTime := time.Now()
	defer func() {
		issRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	key := cache.Key{Path: path, Query: params}
	if c.cache != nil {
		entry, err := c.cache.Get(ctx, key)
		switch {
		case err == nil:
			c.logger.Debug().Str("endpoint", path).Msg("Cache hit")
			issRequestsTotal.WithLabelValues(endpoint, "cached").Inc()
			return entry.Data, func(ok bool) {
				if ok {
					return
				}
				if err := c.cache.Delete(ctx, key); err != nil {
					c.logger.Warn().Err(err).Str("endpoint", path).Msg("Failed to evict unusable cache entry")
				}
			}, nil
		case !errors.Is(err, cache.ErrCacheMiss):
			c.logger.Warn().Err(err).Str("endpoint", path).Msg("Cache get error")
		}
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, nil, fmt.Errorf("rate limit wait: %w", err)
	}

	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "gzip")

	c.logger.Debug().
		Str("endpoint", path).
		Str("query", params.Encode()).
		Msg("Executing ISS request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		errClass := c.classifyError(nil, err)
		issErrorsTotal.WithLabelValues(string(errClass)).Inc()
		issRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, nil, &ISSError{
			ErrorClass: errClass,
			Endpoint:   path,
			Message:    "request failed",
			Err:        err,
		}
	}
	defer resp.Body.Close()

	if err := c.rateLimiter.UpdateFromResponse(ctx, resp.StatusCode, resp.Header); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to update rate limit state")
	}

	if resp.StatusCode >= 400 {
		_, _ = io.Copy(io.Discard, resp.Body)
		errClass := c.classifyError(resp, nil)
		issErrorsTotal.WithLabelValues(string(errClass)).Inc()
		issRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

		c.logger.Warn().
			Str("endpoint", path).
			Int("status", resp.StatusCode).
			Str("error_class", string(errClass)).
			Msg("ISS request error")

		return nil, nil, &ISSError{
			StatusCode: resp.StatusCode,
			ErrorClass: errClass,
			Endpoint:   path,
			Message:    resp.Status,
		}
	}

	body, err := readBody(resp)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		issErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		issRequestsTotal.WithLabelValues(endpoint, "body_error").Inc()
		return nil, nil, &ISSError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassNetwork,
			Endpoint:   path,
			Message:    "read body",
			Err:        err,
		}
	}
	issRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	commit := func(ok bool) {
		if !ok || c.cache == nil {
			return
		}
		entry := cache.NewEntry(resp, body, c.config.CacheTTL)
		if err := c.cache.Set(ctx, key, entry); err != nil {
			c.logger.Warn().Err(err).Str("endpoint", path).Msg("Failed to cache response")
			return
		}
		c.logger.Debug().
			Str("endpoint", path).
			Dur("ttl", entry.TTL()).
			Msg("Cached response")
	}

	return body, commit, nil
}

// GetDocument performs one GET and decodes the ISS JSON document. Only
// documents that decode are cached.
func (c *Client) GetDocument(ctx context.Context, path string, params url.Values) (iss.Document, error) {
	body, commit, err := c.fetch(ctx, path, params)
	if err != nil {
		return nil, err
	}
	doc, err := iss.Decode(body)
	commit(err == nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// FetchPage retrieves one page of a listing starting at offset start.
// start must be a non-negative multiple of the page size. An empty page
// (no rows) means the listing is exhausted; a missing section is reported
// as iss.ErrMalformedResponse and such a response is never cached.
func (c *Client) FetchPage(ctx context.Context, q Query, start int) (*iss.Page, error) {
	if start < 0 || start%c.config.PageSize != 0 {
		return nil, fmt.Errorf("%w: %d (page size %d)", ErrInvalidOffset, start, c.config.PageSize)
	}

	body, commit, err := c.fetch(ctx, q.path(), q.Values(start))
	if err != nil {
		return nil, err
	}

	doc, err := iss.Decode(body)
	if err != nil {
		commit(false)
		return nil, fmt.Errorf("%s start=%d: %w", q.path(), start, err)
	}
	page, err := doc.Page(q.section())
	commit(err == nil)
	if err != nil {
		return nil, fmt.Errorf("%s start=%d: %w", q.path(), start, err)
	}
	return page, nil
}

// classifyError categorizes an error for observability and handling.
func (c *Client) classifyError(resp *http.Response, err error) ErrorClass {
	if err != nil {
		return ErrorClassNetwork
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return ErrorClassClient
	case resp.StatusCode >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// readBody reads the response body, decoding gzip when the server used it.
func readBody(resp *http.Response) ([]byte, error) {
	var r io.Reader = resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		defer gz.Close()
		r = gz
	}
	return io.ReadAll(r)
}

// endpointLabel collapses security ids out of a path so metric label
// cardinality stays bounded.
func endpointLabel(path string) string {
	parts := strings.Split(path, "/")
	for i := 1; i < len(parts); i++ {
		if parts[i-1] != "securities" || parts[i] == "" {
			continue
		}
		if strings.HasSuffix(parts[i], ".json") {
			parts[i] = "{secid}.json"
		} else {
			parts[i] = "{secid}"
		}
	}
	return strings.Join(parts, "/")
}

// Close releases resources held by the client.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// GetCache returns the cache manager, nil without Redis.
func (c *Client) GetCache() *cache.Manager {
	return c.cache
}
