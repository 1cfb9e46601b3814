package crawler

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// DefaultMaxAttempts is the retry bound used when none is configured.
const DefaultMaxAttempts = 5

// ExponentialRetryPolicy retries every failure except cancellation and
// permanent refusals, doubling the pause per attempt up to a ceiling. The
// returned pause is drawn from [d/2, d) so concurrent workers spread out.
type ExponentialRetryPolicy struct {
	maxAttempts int
	initial     time.Duration
	ceiling     time.Duration
}

// NewExponentialRetryPolicy builds a policy. A zero initial delay disables
// backoff; non-positive attempts or ceiling fall back to defaults.
func NewExponentialRetryPolicy(maxAttempts int, initial, ceiling time.Duration) *ExponentialRetryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if ceiling <= 0 {
		ceiling = 5 * time.Second
	}
	return &ExponentialRetryPolicy{
		maxAttempts: maxAttempts,
		initial:     max(initial, 0),
		ceiling:     ceiling,
	}
}

// MaxAttempts is the total number of attempts allowed per URL.
func (p *ExponentialRetryPolicy) MaxAttempts() int { return p.maxAttempts }

// ShouldRetry implements RetryPolicy. attempt counts the attempts made so far.
func (p *ExponentialRetryPolicy) ShouldRetry(err error, attempt int) bool {
	switch {
	case err == nil, attempt >= p.maxAttempts:
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	default:
		return !errors.Is(err, ErrPermanent)
	}
}

// Backoff implements RetryPolicy.
func (p *ExponentialRetryPolicy) Backoff(attempt int) time.Duration {
	if p.initial == 0 {
		return 0
	}
	d := p.initial
	for i := 0; i < attempt && d < p.ceiling; i++ {
		d *= 2
	}
	d = min(d, p.ceiling)
	half := d / 2
	if half <= 0 {
		return d
	}
	return half + rand.N(half)
}
