// Package ratelimit enforces a per-user fixed-window request limit on
// audio generation. Each user gets a counter that resets when the window
// elapses; requests beyond the limit are rejected with the time until the
// window resets.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

const (
	// DefaultMaxRequests is the per-window request allowance.
	DefaultMaxRequests = 10

	// DefaultWindow is the fixed window length.
	DefaultWindow = 60 * time.Second
)

// Config configures a limiter. Zero values take the package defaults.
type Config struct {
	MaxRequests int
	Window      time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxRequests <= 0 {
		c.MaxRequests = DefaultMaxRequests
	}
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	return c
}

// Decision is the outcome of a rate limit check.
type Decision struct {
	// Allowed reports whether the request may proceed.
	Allowed bool `json:"allowed"`

	// Remaining is how many requests are left in the current window.
	Remaining int `json:"remaining"`

	// RetryAfter is how long until the window resets. Zero when the
	// request is allowed.
	RetryAfter time.Duration `json:"retry_after"`
}

// Err returns a LimitError for denied decisions, nil otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &LimitError{RetryAfter: d.RetryAfter}
}

// LimitError reports a rejected request and when to retry.
type LimitError struct {
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter.Round(time.Second))
}

// Limiter checks whether a user may issue another generation request.
type Limiter interface {
	Allow(ctx context.Context, userID string) (Decision, error)
}
