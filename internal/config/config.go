// Package config loads client, sweep and server settings from a YAML file
// and MOEX_* environment variables.
package config

import (
	"time"

	"github.com/Sternrassler/moex-iss-client/pkg/bonds"
	"github.com/Sternrassler/moex-iss-client/pkg/cache"
	"github.com/Sternrassler/moex-iss-client/pkg/client"
	"github.com/Sternrassler/moex-iss-client/pkg/logging"
	"github.com/Sternrassler/moex-iss-client/pkg/ratelimit"
	"github.com/Sternrassler/moex-iss-client/pkg/retry"
	"github.com/redis/go-redis/v9"
)

// Config is the root configuration.
type Config struct {
	ISS       ISSConfig       `yaml:"iss" envconfig:"ISS"`
	Retry     RetryConfig     `yaml:"retry" envconfig:"RETRY"`
	RateLimit RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
	Redis     RedisConfig     `yaml:"redis" envconfig:"REDIS"`
	Sweep     SweepConfig     `yaml:"sweep" envconfig:"SWEEP"`
	Log       LogConfig       `yaml:"log" envconfig:"LOG"`
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
}

// ISSConfig holds API access settings.
type ISSConfig struct {
	BaseURL   string        `yaml:"base_url" envconfig:"BASE_URL"`
	UserAgent string        `yaml:"user_agent" envconfig:"USER_AGENT"`
	Timeout   time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
	// PageSize must match the ISS listing page size.
	PageSize int `yaml:"page_size" envconfig:"PAGE_SIZE"`
}

// RetryConfig holds the listing and detail retry policies.
// ListingMaxAttempts 0 retries listings forever.
type RetryConfig struct {
	ListingDelay       time.Duration `yaml:"listing_delay" envconfig:"LISTING_DELAY"`
	ListingMaxAttempts int           `yaml:"listing_max_attempts" envconfig:"LISTING_MAX_ATTEMPTS"`
	ListingMaxElapsed  time.Duration `yaml:"listing_max_elapsed" envconfig:"LISTING_MAX_ELAPSED"`
	DetailDelay        time.Duration `yaml:"detail_delay" envconfig:"DETAIL_DELAY"`
	DetailMaxAttempts  int           `yaml:"detail_max_attempts" envconfig:"DETAIL_MAX_ATTEMPTS"`
}

// RateLimitConfig paces outgoing requests.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps" envconfig:"RPS"`
	Burst int     `yaml:"burst" envconfig:"BURST"`
}

// RedisConfig enables the response cache and the shared cooldown.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled" envconfig:"ENABLED"`
	Addr     string        `yaml:"addr" envconfig:"ADDR"`
	Password string        `yaml:"password" envconfig:"PASSWORD"`
	DB       int           `yaml:"db" envconfig:"DB"`
	CacheTTL time.Duration `yaml:"cache_ttl" envconfig:"CACHE_TTL"`
}

// SweepConfig controls bond sweeps.
type SweepConfig struct {
	Board       string `yaml:"board" envconfig:"BOARD"`
	Concurrency int    `yaml:"concurrency" envconfig:"CONCURRENCY"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL"`
	Pretty bool   `yaml:"pretty" envconfig:"PRETTY"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr" envconfig:"ADDR"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ISS: ISSConfig{
			BaseURL:   client.DefaultBaseURL,
			UserAgent: "moex-iss-client/0.1.0",
			Timeout:   client.DefaultTimeout,
			PageSize:  client.DefaultPageSize,
		},
		Retry: RetryConfig{
			ListingDelay:      retry.DefaultListingDelay,
			DetailDelay:       retry.DefaultDetailDelay,
			DetailMaxAttempts: retry.DefaultDetailAttempts,
		},
		RateLimit: RateLimitConfig{
			RPS:   ratelimit.DefaultRPS,
			Burst: ratelimit.DefaultBurst,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			CacheTTL: cache.DefaultTTL,
		},
		Sweep: SweepConfig{
			Board:       bonds.DefaultBoard,
			Concurrency: 1,
		},
		Log: LogConfig{
			Level: string(logging.LevelInfo),
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    5 * time.Minute,
			ShutdownTimeout: 30 * time.Second,
		},
	}
}

// applyDefaults fills zero values left by a partial file.
func (c *Config) applyDefaults() {
	d := Default()

	if c.ISS.BaseURL == "" {
		c.ISS.BaseURL = d.ISS.BaseURL
	}
	if c.ISS.UserAgent == "" {
		c.ISS.UserAgent = d.ISS.UserAgent
	}
	if c.ISS.Timeout == 0 {
		c.ISS.Timeout = d.ISS.Timeout
	}
	if c.ISS.PageSize == 0 {
		c.ISS.PageSize = d.ISS.PageSize
	}
	if c.Retry.ListingDelay == 0 {
		c.Retry.ListingDelay = d.Retry.ListingDelay
	}
	if c.Retry.DetailDelay == 0 {
		c.Retry.DetailDelay = d.Retry.DetailDelay
	}
	if c.Retry.DetailMaxAttempts == 0 {
		c.Retry.DetailMaxAttempts = d.Retry.DetailMaxAttempts
	}
	if c.RateLimit.RPS == 0 {
		c.RateLimit.RPS = d.RateLimit.RPS
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = d.RateLimit.Burst
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = d.Redis.Addr
	}
	if c.Redis.CacheTTL == 0 {
		c.Redis.CacheTTL = d.Redis.CacheTTL
	}
	if c.Sweep.Board == "" {
		c.Sweep.Board = d.Sweep.Board
	}
	if c.Sweep.Concurrency == 0 {
		c.Sweep.Concurrency = d.Sweep.Concurrency
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = d.Server.ReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = d.Server.WriteTimeout
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = d.Server.ShutdownTimeout
	}
}

// ListingPolicy returns the retry policy for listing pages.
func (c *Config) ListingPolicy() retry.Policy {
	p := retry.Unbounded()
	p.Delay = c.Retry.ListingDelay
	p.MaxAttempts = c.Retry.ListingMaxAttempts
	p.MaxElapsed = c.Retry.ListingMaxElapsed
	return p
}

// DetailPolicy returns the retry policy for per-bond details.
func (c *Config) DetailPolicy() retry.Policy {
	p := retry.Bounded(c.Retry.DetailMaxAttempts)
	p.Delay = c.Retry.DetailDelay
	return p
}

// RedisOptions returns connection options, or nil when Redis is disabled.
func (c *Config) RedisOptions() *redis.Options {
	if !c.Redis.Enabled {
		return nil
	}
	return &redis.Options{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
	}
}

// ClientConfig returns the ISS client configuration. rdb may be nil.
func (c *Config) ClientConfig(rdb *redis.Client) client.Config {
	cfg := client.DefaultConfig(rdb, c.ISS.UserAgent)
	cfg.BaseURL = c.ISS.BaseURL
	cfg.Timeout = c.ISS.Timeout
	cfg.PageSize = c.ISS.PageSize
	cfg.CacheTTL = c.Redis.CacheTTL
	cfg.RateLimit = c.RateLimit.RPS
	cfg.Burst = c.RateLimit.Burst
	return cfg
}

// BondsConfig returns the bond service configuration.
func (c *Config) BondsConfig() bonds.Config {
	return bonds.Config{
		Board:         c.Sweep.Board,
		Concurrency:   c.Sweep.Concurrency,
		ListingPolicy: c.ListingPolicy(),
		DetailPolicy:  c.DetailPolicy(),
		PageSize:      c.ISS.PageSize,
	}
}

// LoggingConfig returns the logger configuration; output goes to stderr.
func (c *Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.Log.Level)
	cfg.Pretty = c.Log.Pretty
	return cfg
}
