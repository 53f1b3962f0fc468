// Package budget paces outbound work over a sliding one-minute window.
package budget

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/teranos/briefing/errors"
)

// ErrRateLimited marks an Allow that was rejected because the window is full.
var ErrRateLimited = errors.New("rate limit exceeded")

// Limiter enforces max calls per time window using sliding window algorithm.
// A limit of zero or less disables limiting.
type Limiter struct {
	maxCallsPerMinute int
	window            time.Duration
	mu                sync.Mutex
	callTimes         []time.Time
	timeNow           func() time.Time // Injectable for testing
	pollInterval      time.Duration
}

// NewLimiter creates a rate limiter with real time
func NewLimiter(maxCallsPerMinute int) *Limiter {
	return NewLimiterWithClock(maxCallsPerMinute, time.Now)
}

// NewLimiterWithClock creates a rate limiter with injectable clock (for testing)
func NewLimiterWithClock(maxCallsPerMinute int, timeNow func() time.Time) *Limiter {
	capacity := maxCallsPerMinute
	if capacity < 0 {
		capacity = 0
	}
	return &Limiter{
		maxCallsPerMinute: maxCallsPerMinute,
		window:            60 * time.Second,
		callTimes:         make([]time.Time, 0, capacity),
		timeNow:           timeNow,
		pollInterval:      100 * time.Millisecond,
	}
}

// Allow checks if a call is allowed under rate limits.
// Returns an error marked ErrRateLimited if the window is full.
func (r *Limiter) Allow() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.maxCallsPerMinute <= 0 {
		return nil
	}

	now := r.timeNow()
	r.removeExpiredCalls(now)

	if len(r.callTimes) >= r.maxCallsPerMinute {
		err := errors.Mark(errors.Newf("rate limit exceeded: %d calls per minute (limit: %d)",
			len(r.callTimes), r.maxCallsPerMinute), ErrRateLimited)
		err = errors.WithDetail(err, fmt.Sprintf("Current calls in window: %d", len(r.callTimes)))
		err = errors.WithDetail(err, fmt.Sprintf("Retry after: %s", r.retryAfter(now)))
		return err
	}

	r.callTimes = append(r.callTimes, now)
	return nil
}

// Wait blocks until a call is allowed under rate limits
// Returns error if context is cancelled
func (r *Limiter) Wait(ctx context.Context) error {
	for {
		err := r.Allow()
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrRateLimited) {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.pollInterval):
		}
	}
}

// SetLimit changes the per-minute limit. Calls already in the window still count.
func (r *Limiter) SetLimit(maxCallsPerMinute int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.maxCallsPerMinute = maxCallsPerMinute
}

// Limit returns the configured per-minute limit.
func (r *Limiter) Limit() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxCallsPerMinute
}

// removeExpiredCalls removes call timestamps that are outside the sliding window
// Must be called with lock held
func (r *Limiter) removeExpiredCalls(now time.Time) {
	cutoff := now.Add(-r.window)

	// timestamps are ordered
	expired := 0
	for _, callTime := range r.callTimes {
		if !callTime.After(cutoff) {
			expired++
		} else {
			break
		}
	}

	r.callTimes = r.callTimes[expired:]
}

// retryAfter is how long until the oldest call leaves the window.
// Must be called with lock held
func (r *Limiter) retryAfter(now time.Time) time.Duration {
	if len(r.callTimes) == 0 {
		return 0
	}
	return r.callTimes[0].Add(r.window).Sub(now)
}

// Reset clears the rate limiter state
func (r *Limiter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.callTimes = r.callTimes[:0]
}

// Stats returns current rate limiter statistics.
// remaining is -1 when limiting is disabled.
func (r *Limiter) Stats() (callsInWindow int, remaining int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.maxCallsPerMinute <= 0 {
		return 0, -1
	}

	r.removeExpiredCalls(r.timeNow())

	callsInWindow = len(r.callTimes)
	remaining = r.maxCallsPerMinute - callsInWindow
	if remaining < 0 {
		remaining = 0
	}

	return callsInWindow, remaining
}
