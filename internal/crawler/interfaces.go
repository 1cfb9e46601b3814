package crawler

import (
	"context"
	"time"

	"github.com/JakeFAU/beer-ratings-crawler/internal/entity"
)

// Transport performs a single HTTP GET without pacing or retries.
type Transport interface {
	Fetch(ctx context.Context, url string) (Response, error)
}

// Fetcher is what the planner calls; the Throttle satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Response, error)
}

// SnapshotStore persists one page per (entity, offset). A stored page is
// immutable and doubles as the crawl checkpoint.
type SnapshotStore interface {
	Has(ref entity.Ref, offset int) (bool, error)
	Save(ctx context.Context, ref entity.Ref, offset int, body []byte) error
	Load(ref entity.Ref, offset int) ([]byte, error)
	Clear(ref entity.Ref) error
}

// Layout knows the source's markup and URL scheme for each entity kind.
type Layout interface {
	DeclaredCount(kind entity.Kind, page []byte) (int, error)
	PageURL(kind entity.Kind, seedURL string, offset int) string
}

// RetryPolicy decides whether and when a failed attempt is retried.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Sleeper suspends the caller; it must return early when ctx ends.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}
