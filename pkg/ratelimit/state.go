// Package ratelimit paces requests to ISS and backs off after the server
// signals overload.
//
// Pacing is a token bucket (golang.org/x/time/rate). When ISS answers 429 or
// 503 the tracker enters a cooldown taken from the Retry-After header; with
// Redis configured the cooldown is shared by every process pointed at the
// same Redis, so parallel sweeps stop together.
package ratelimit

import (
	"time"
)

// Redis keys for shared rate limit state.
const (
	RedisKeyCooldownUntil = "iss:rate_limit:cooldown_until"
	RedisKeyCooldownCause = "iss:rate_limit:cooldown_cause"
)

// Defaults for pacing and cooldown.
const (
	// DefaultRPS is the steady request rate against ISS.
	DefaultRPS = 5.0

	// DefaultBurst is the token bucket size.
	DefaultBurst = 5

	// DefaultCooldown applies when an overload response has no Retry-After.
	DefaultCooldown = 5 * time.Second

	// MaxCooldown caps a Retry-After value.
	MaxCooldown = 5 * time.Minute
)

// State is the current cooldown state.
type State struct {
	// CooldownUntil is when requests may resume. Zero means no cooldown.
	CooldownUntil time.Time `json:"cooldown_until"`

	// Cause is the status that triggered the cooldown ("429", "503").
	Cause string `json:"cause"`

	// LastUpdate is when this state was read or written.
	LastUpdate time.Time `json:"last_update"`
}

// InCooldown reports whether requests must wait.
func (s *State) InCooldown() bool {
	return time.Now().Before(s.CooldownUntil)
}

// TimeUntilResume returns the remaining cooldown.
// Returns 0 if no cooldown is active.
func (s *State) TimeUntilResume() time.Duration {
	d := time.Until(s.CooldownUntil)
	if d < 0 {
		return 0
	}
	return d
}
