package mail

import (
	"context"

	"github.com/teranos/briefing/errors"
	"github.com/teranos/briefing/pulse/budget"
)

// RateLimited paces an inner transport to a per-minute budget. Send blocks
// until the window has room or ctx is done.
type RateLimited struct {
	inner   Transport
	limiter *budget.Limiter
}

// NewRateLimited wraps inner. maxPerMinute <= 0 disables pacing.
func NewRateLimited(inner Transport, maxPerMinute int) *RateLimited {
	return &RateLimited{inner: inner, limiter: budget.NewLimiter(maxPerMinute)}
}

// Send waits for budget, then delegates.
func (r *RateLimited) Send(ctx context.Context, msg Message) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", errors.Mark(errors.Wrap(err, "waiting for mail budget"), errors.ErrTransport)
	}
	return r.inner.Send(ctx, msg)
}

// SetLimit changes the per-minute budget; used on config reload.
func (r *RateLimited) SetLimit(maxPerMinute int) {
	r.limiter.SetLimit(maxPerMinute)
}

// Stats returns sends in the current window and the remaining budget
// (-1 when unlimited).
func (r *RateLimited) Stats() (sent int, remaining int) {
	return r.limiter.Stats()
}

// Inner returns the wrapped transport.
func (r *RateLimited) Inner() Transport {
	return r.inner
}
