package crawler

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/beer-ratings-crawler/internal/metrics"
)

// Throttle is the process-wide request pacer. Every outbound request goes
// through one shared instance so the politeness budget applies to the source
// as a whole rather than per worker.
//
// Before each attempt a jittered interval |Normal(target, target/2)| is drawn
// and a start slot is reserved at least that long after the previous slot. The
// reservation is serialised; the transfer itself is not, so while one caller
// sleeps or downloads, others can reserve and wait for their own slot.
type Throttle struct {
	transport Transport
	retry     RetryPolicy
	clock     Clock
	sleeper   Sleeper
	logger    *zap.Logger
	interval  time.Duration

	mu       sync.Mutex
	rng      *rand.Rand
	nextSlot time.Time
}

// ThrottleOption customises a Throttle.
type ThrottleOption func(*Throttle)

// WithClock overrides the time source.
func WithClock(c Clock) ThrottleOption {
	return func(t *Throttle) { t.clock = c }
}

// WithSleeper overrides how the throttle suspends.
func WithSleeper(s Sleeper) ThrottleOption {
	return func(t *Throttle) { t.sleeper = s }
}

// WithSeed makes the jitter sequence deterministic.
func WithSeed(seed uint64) ThrottleOption {
	return func(t *Throttle) { t.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) ThrottleOption {
	return func(t *Throttle) {
		if l != nil {
			t.logger = l
		}
	}
}

// NewThrottle wraps transport with pacing and retries. A zero interval
// disables pacing.
func NewThrottle(transport Transport, retry RetryPolicy, interval time.Duration, opts ...ThrottleOption) *Throttle {
	t := &Throttle{
		transport: transport,
		retry:     retry,
		clock:     systemClock{},
		sleeper:   TimerSleeper{},
		logger:    zap.NewNop(),
		interval:  interval,
		rng:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.retry == nil {
		t.retry = NewExponentialRetryPolicy(DefaultMaxAttempts, 0, 0)
	}
	return t
}

// Fetch paces, performs and retries a GET until it yields a non-empty 2xx
// response. Exhausting the retry bound returns a *NetworkError.
func (t *Throttle) Fetch(ctx context.Context, url string) (Response, error) {
	var lastErr error
	attempt := 0
	for {
		attempt++
		if err := t.wait(ctx); err != nil {
			return Response{}, fmt.Errorf("throttle wait: %w", err)
		}

		resp, err := t.transport.Fetch(ctx, url)
		if err == nil {
			err = checkResponse(resp)
		}
		if err == nil {
			metrics.ObserveFetchAttempt("ok")
			return resp, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Response{}, fmt.Errorf("fetch %s: %w", url, ctxErr)
		}

		lastErr = err
		metrics.ObserveFetchAttempt("error")
		if !t.retry.ShouldRetry(err, attempt) {
			break
		}
		backoff := t.retry.Backoff(attempt)
		t.logger.Warn("fetch attempt failed; retrying",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		if err := t.sleeper.Sleep(ctx, backoff); err != nil {
			return Response{}, fmt.Errorf("retry backoff: %w", err)
		}
	}
	metrics.ObserveFetchFailure()
	return Response{}, &NetworkError{URL: url, Attempts: attempt, Err: lastErr}
}

func (t *Throttle) wait(ctx context.Context) error {
	d := t.reserve()
	if d <= 0 {
		return ctx.Err()
	}
	metrics.ObserveThrottleWait(d)
	return t.sleeper.Sleep(ctx, d)
}

// reserve claims the next start slot and returns how long to wait for it.
func (t *Throttle) reserve() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock.Now()
	slot := t.nextSlot
	if slot.Before(now) {
		slot = now
	}
	t.nextSlot = slot.Add(t.jitter())
	return slot.Sub(now)
}

// jitter draws |Normal(interval, interval/2)|. Callers hold t.mu.
func (t *Throttle) jitter() time.Duration {
	if t.interval <= 0 {
		return 0
	}
	mean := float64(t.interval)
	return time.Duration(math.Abs(t.rng.NormFloat64()*mean/2 + mean))
}

func checkResponse(resp Response) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{StatusCode: resp.StatusCode}
	}
	if len(resp.Body) == 0 {
		return ErrEmptyBody
	}
	return nil
}

// TimerSleeper sleeps on a timer and wakes early when ctx is done.
type TimerSleeper struct{}

// Sleep implements Sleeper.
func (TimerSleeper) Sleep(ctx context.Context, d time.Duration) error {
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

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
