package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Prometheus metrics for rate limiting.
var (
	issRateLimitWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "iss_rate_limit_wait_seconds",
		Help:    "Time spent waiting for the rate limiter before a request",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30},
	})

	issRateLimitCooldownsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "iss_rate_limit_cooldowns_total",
		Help: "Total number of cooldowns entered, by triggering status",
	}, []string{"cause"})

	issRateLimitCooldownActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "iss_rate_limit_cooldown_active",
		Help: "Number of requests currently paused by a cooldown",
	})
)

// Config holds limiter settings.
type Config struct {
	// RPS is the steady request rate. Zero or less selects DefaultRPS.
	RPS float64

	// Burst is the token bucket size. Zero or less selects DefaultBurst.
	Burst int
}

// Tracker paces outgoing requests and tracks overload cooldowns.
// A nil redis client keeps the cooldown in process memory.
type Tracker struct {
	limiter *rate.Limiter
	redis   *redis.Client
	logger  zerolog.Logger

	mu    sync.Mutex
	local State
}

// NewTracker creates a new rate limit tracker.
func NewTracker(cfg Config, redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	if cfg.RPS <= 0 {
		cfg.RPS = DefaultRPS
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultBurst
	}
	return &Tracker{
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		redis:   redisClient,
		logger:  logger,
	}
}

// GetState returns the current cooldown state, from Redis when configured.
func (t *Tracker) GetState(ctx context.Context) (*State, error) {
	if t.redis == nil {
		t.mu.Lock()
		s := t.local
		t.mu.Unlock()
		s.LastUpdate = time.Now()
		return &s, nil
	}

	untilMs, err := t.redis.Get(ctx, RedisKeyCooldownUntil).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get cooldown: %w", err)
	}
	if errors.Is(err, redis.Nil) {
		return &State{LastUpdate: time.Now()}, nil
	}

	cause, err := t.redis.Get(ctx, RedisKeyCooldownCause).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get cooldown cause: %w", err)
	}

	return &State{
		CooldownUntil: time.UnixMilli(untilMs),
		Cause:         cause,
		LastUpdate:    time.Now(),
	}, nil
}

// Wait blocks until a request may be sent: first until any active cooldown
// has passed, then for a token from the bucket.
func (t *Tracker) Wait(ctx context.Context) error {
	start := time.Now()
	defer func() {
		issRateLimitWaitSeconds.Observe(time.Since(start).Seconds())
	}()

	state, err := t.GetState(ctx)
	if err != nil {
		// Shared state unavailable: fall back to local pacing only.
		t.logger.Warn().Err(err).Msg("Rate limit state unavailable")
	} else if state.InCooldown() {
		wait := state.TimeUntilResume()
		t.logger.Warn().
			Str("cause", state.Cause).
			Dur("wait_duration", wait).
			Msg("ISS cooldown active - pausing request")

		if err := t.sleepCooldown(ctx, wait); err != nil {
			return err
		}
	}

	return t.limiter.Wait(ctx)
}

func (t *Tracker) sleepCooldown(ctx context.Context, wait time.Duration) error {
	issRateLimitCooldownActive.Inc()
	defer issRateLimitCooldownActive.Dec()

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// UpdateFromResponse enters a cooldown when the response signals overload
// (429 or 503). Other statuses are ignored. A cooldown already running
// longer than the new one is kept.
func (t *Tracker) UpdateFromResponse(ctx context.Context, status int, headers http.Header) error {
	if status != http.StatusTooManyRequests && status != http.StatusServiceUnavailable {
		return nil
	}

	wait := parseRetryAfter(headers.Get("Retry-After"), time.Now())
	until := time.Now().Add(wait)
	cause := strconv.Itoa(status)

	issRateLimitCooldownsTotal.WithLabelValues(cause).Inc()
	t.logger.Warn().
		Int("status", status).
		Dur("cooldown", wait).
		Time("until", until).
		Msg("ISS overload response - entering cooldown")

	if t.redis == nil {
		t.mu.Lock()
		if until.After(t.local.CooldownUntil) {
			t.local = State{CooldownUntil: until, Cause: cause, LastUpdate: time.Now()}
		}
		t.mu.Unlock()
		return nil
	}

	if cur, err := t.GetState(ctx); err == nil && !until.After(cur.CooldownUntil) {
		return nil
	}

	pipe := t.redis.Pipeline()
	pipe.Set(ctx, RedisKeyCooldownUntil, until.UnixMilli(), wait)
	pipe.Set(ctx, RedisKeyCooldownCause, cause, wait)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store cooldown in redis: %w", err)
	}
	return nil
}

// parseRetryAfter accepts delta-seconds or an HTTP date. Missing or invalid
// values yield DefaultCooldown; results are capped at MaxCooldown.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return DefaultCooldown
	}

	var d time.Duration
	if secs, err := strconv.Atoi(v); err == nil {
		d = time.Duration(secs) * time.Second
	} else if at, err := http.ParseTime(v); err == nil {
		d = at.Sub(now)
	} else {
		return DefaultCooldown
	}

	switch {
	case d <= 0:
		return DefaultCooldown
	case d > MaxCooldown:
		return MaxCooldown
	}
	return d
}
