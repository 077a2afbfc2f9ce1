package config

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/Sternrassler/moex-iss-client/pkg/client"
	"github.com/Sternrassler/moex-iss-client/pkg/logging"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	u, err := url.Parse(c.ISS.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("iss.base_url must be an absolute URL, got %q", c.ISS.BaseURL)
	}
	if c.ISS.UserAgent == "" {
		return errors.New("iss.user_agent is required")
	}
	if c.ISS.Timeout <= 0 {
		return errors.New("iss.timeout must be positive")
	}
	// ISS serves listings in pages of a fixed size; any other step skips
	// or repeats rows.
	if c.ISS.PageSize != client.DefaultPageSize {
		return fmt.Errorf("iss.page_size must be %d (fixed by ISS), got %d", client.DefaultPageSize, c.ISS.PageSize)
	}

	if c.Retry.ListingDelay < 0 || c.Retry.DetailDelay < 0 {
		return errors.New("retry delays must not be negative")
	}
	if c.Retry.ListingMaxAttempts < 0 {
		return errors.New("retry.listing_max_attempts must be >= 0")
	}
	if c.Retry.DetailMaxAttempts < 1 {
		return errors.New("retry.detail_max_attempts must be >= 1")
	}

	if c.RateLimit.RPS <= 0 {
		return fmt.Errorf("rate_limit.rps must be positive, got %g", c.RateLimit.RPS)
	}
	if c.RateLimit.Burst < 1 {
		return errors.New("rate_limit.burst must be >= 1")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return errors.New("redis.addr is required when redis is enabled")
	}

	if c.Sweep.Concurrency < 1 {
		return errors.New("sweep.concurrency must be >= 1")
	}

	if !logging.LogLevel(c.Log.Level).Valid() {
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}

	return nil
}
