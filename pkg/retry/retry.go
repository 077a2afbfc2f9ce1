// Package retry wraps a single fallible operation (one page fetch, one entity
// detail fetch) with fixed-delay retry.
//
// Two policies are used against ISS:
//
//   - Unbounded: retry the same operation forever with a fixed delay. Bulk
//     listing queries use it so that a long outage only pauses the sweep.
//     The process can hang on a permanent outage; every 10th consecutive
//     failure is logged at error level so this is visible to the operator.
//   - Bounded: retry up to MaxAttempts times, then give up with
//     ErrRetryExhausted. Per-entity detail fetches use it and turn the error
//     into an "unavailable" result for that entity.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for retry operations.
var (
	issRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "iss_retries_total",
		Help: "Total number of failed attempts that were retried, by policy",
	}, []string{"policy"})

	issRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "iss_retry_exhausted_total",
		Help: "Total number of operations that gave up after exhausting a policy",
	}, []string{"policy"})
)

var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

const (
	// DefaultListingDelay is the pause between attempts of the unbounded policy.
	DefaultListingDelay = 5 * time.Second

	// DefaultDetailDelay is the pause between attempts of the bounded policy.
	DefaultDetailDelay = 3 * time.Second

	// DefaultDetailAttempts is the attempt budget of the bounded policy.
	DefaultDetailAttempts = 3

	// escalateEvery controls how often an unbounded policy logs at error level.
	escalateEvery = 10
)

// Policy describes how an operation is retried.
type Policy struct {
	// Name labels metrics and logs ("listing", "detail").
	Name string

	// MaxAttempts is the total number of attempts, including the first.
	// Zero means unbounded.
	MaxAttempts int

	// Delay is the fixed pause between attempts.
	Delay time.Duration

	// MaxElapsed stops retrying once this much time has passed since the
	// first attempt. Zero disables the limit.
	MaxElapsed time.Duration

	// Logger receives one event per failed attempt. Defaults to the global logger.
	Logger *zerolog.Logger

	// Sleep waits between attempts. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Unbounded returns the bulk listing policy: retry forever every 5s.
func Unbounded() Policy {
	return Policy{Name: "listing", Delay: DefaultListingDelay}
}

// Bounded returns the per-entity policy: n attempts, 3s apart.
// n <= 0 selects the default of 3.
func Bounded(n int) Policy {
	if n <= 0 {
		n = DefaultDetailAttempts
	}
	return Policy{Name: "detail", MaxAttempts: n, Delay: DefaultDetailDelay}
}

// Unlimited reports whether the policy never gives up on its own.
func (p Policy) Unlimited() bool {
	return p.MaxAttempts <= 0 && p.MaxElapsed <= 0
}

// IsZero reports whether p was left unset.
func (p Policy) IsZero() bool {
	return p.Name == "" && p.MaxAttempts == 0 && p.Delay == 0 && p.MaxElapsed == 0 && p.Sleep == nil
}

// Do runs fn until it succeeds, returns a non-retryable error, the policy is
// exhausted, or ctx is done. op identifies the operation in logs (an entity
// id, a page offset).
func (p Policy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	logger := p.logger()
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	name := p.Name
	if name == "" {
		name = "default"
	}

	start := time.Now()
	var lastErr error

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info().
					Str("policy", name).
					Str("op", op).
					Int("attempt", attempt).
					Msg("Operation succeeded after retry")
			}
			return nil
		}
		lastErr = err

		if !Retryable(err) {
			return err
		}

		evt := logger.Warn()
		if p.Unlimited() && attempt%escalateEvery == 0 {
			evt = logger.Error()
		}
		evt.Err(err).
			Str("policy", name).
			Str("op", op).
			Int("attempt", attempt).
			Int("max_attempts", p.MaxAttempts).
			Dur("delay", p.Delay).
			Msg("Attempt failed")

		if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
			break
		}
		if p.MaxElapsed > 0 && time.Since(start)+p.Delay > p.MaxElapsed {
			break
		}

		issRetriesTotal.WithLabelValues(name).Inc()

		if err := sleep(ctx, p.Delay); err != nil {
			logger.Warn().
				Str("policy", name).
				Str("op", op).
				Int("attempt", attempt).
				Msg("Context cancelled during retry delay")
			return fmt.Errorf("%w: %v", ErrContextCancelled, err)
		}
	}

	issRetryExhaustedTotal.WithLabelValues(name).Inc()
	logger.Error().
		Err(lastErr).
		Str("policy", name).
		Str("op", op).
		Int("max_attempts", p.MaxAttempts).
		Dur("elapsed", time.Since(start)).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w for %s: %w", ErrRetryExhausted, op, lastErr)
}

func (p Policy) logger() *zerolog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	l := log.With().Str("component", "retry").Logger()
	return &l
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
