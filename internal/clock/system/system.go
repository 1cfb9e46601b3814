// Package system provides the wall clock the pipeline runs on.
package system

import (
	"context"
	"time"
)

// Clock reads time.Now and sleeps on real timers. It satisfies both
// crawler.Clock and crawler.Sleeper.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now keeps the monotonic reading, so pacing ignores wall clock steps.
func (Clock) Now() time.Time {
	return time.Now()
}

// Sleep waits for d or until ctx ends.
func (Clock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
