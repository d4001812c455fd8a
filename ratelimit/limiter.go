// Package ratelimit gates outbound requests with a metered token bucket.
//
// Permits refill continuously at a fixed rate up to the bucket capacity,
// so sustained load is paced smoothly instead of in bursty windows.
// A Limiter is meant to be constructed once per client and shared by
// every request that client issues.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// ErrCostExceedsCapacity is returned when a single acquisition asks for
// more permits than the bucket can ever hold.
var ErrCostExceedsCapacity = errors.New("ratelimit: cost exceeds capacity")

// Config describes a bucket.
type Config struct {
	// Capacity is the maximum number of permits the bucket holds.
	Capacity int `yaml:"capacity"`
	// RefillRate is the number of permits added per second.
	RefillRate float64 `yaml:"refill_rate"`
	// InitialFill is the number of permits available at construction.
	// Nil means a full bucket.
	InitialFill *int `yaml:"initial_fill,omitempty"`
}

// Validate checks that the bucket can make progress.
func (c Config) Validate() error {
	if c.Capacity < 1 {
		return fmt.Errorf("ratelimit: capacity must be at least 1, got %d", c.Capacity)
	}
	if c.RefillRate <= 0 {
		return fmt.Errorf("ratelimit: refill rate must be positive, got %v", c.RefillRate)
	}
	if c.InitialFill != nil && (*c.InitialFill < 0 || *c.InitialFill > c.Capacity) {
		return fmt.Errorf("ratelimit: initial fill %d outside [0, %d]", *c.InitialFill, c.Capacity)
	}
	return nil
}

// Limiter is a token bucket safe for concurrent use. Waiters are served in
// reservation order, so no waiter starves while the bucket refills.
//
// A nil *Limiter admits every acquisition immediately.
type Limiter struct {
	bucket   *rate.Limiter
	capacity int
}

// New creates a Limiter from cfg.
func New(cfg Config) (*Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	bucket := rate.NewLimiter(rate.Limit(cfg.RefillRate), cfg.Capacity)
	if cfg.InitialFill != nil {
		// A fresh bucket is full; drain the difference so the first
		// callers see the configured fill.
		if drain := cfg.Capacity - *cfg.InitialFill; drain > 0 {
			bucket.ReserveN(time.Now(), drain)
		}
	}
	return &Limiter{bucket: bucket, capacity: cfg.Capacity}, nil
}

// Acquire suspends the caller until cost permits are available and takes
// them. If ctx ends first, the pending request is withdrawn without
// consuming capacity and ctx's error is returned. A cost below 1 counts
// as 1.
func (l *Limiter) Acquire(ctx context.Context, cost int) error {
	if l == nil {
		return nil
	}
	if cost < 1 {
		cost = 1
	}
	if cost > l.capacity {
		return fmt.Errorf("%w: %d > %d", ErrCostExceedsCapacity, cost, l.capacity)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	reservation := l.bucket.ReserveN(time.Now(), cost)
	delay := reservation.Delay()
	if delay == 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		reservation.Cancel()
		return ctx.Err()
	}
}

// TryAcquire takes cost permits only if they are available right now.
func (l *Limiter) TryAcquire(cost int) bool {
	if l == nil {
		return true
	}
	if cost < 1 {
		cost = 1
	}
	return l.bucket.AllowN(time.Now(), cost)
}

// Available returns the permits currently in the bucket. The value is
// negative while reservations are outstanding.
func (l *Limiter) Available() float64 {
	if l == nil {
		return 0
	}
	return l.bucket.Tokens()
}

// Capacity returns the maximum number of permits.
func (l *Limiter) Capacity() int {
	if l == nil {
		return 0
	}
	return l.capacity
}
