// Package memory provides the in-process queue a phase runs on.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/beer-ratings-crawler/internal/entity"
	"github.com/JakeFAU/beer-ratings-crawler/internal/queue"
)

// Queue is a bounded channel of refs. Producers hold a read lock while they
// send, so several may enqueue at once and Close waits for them to finish.
type Queue struct {
	refs chan entity.Ref

	mu     sync.RWMutex
	closed bool
}

var _ queue.Queue = (*Queue)(nil)

// NewQueue returns a queue holding up to depth refs. A depth below one
// yields an unbuffered queue.
func NewQueue(depth int) *Queue {
	return &Queue{refs: make(chan entity.Ref, max(depth, 0))}
}

// Enqueue implements queue.Queue.
func (q *Queue) Enqueue(ctx context.Context, ref entity.Ref) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return queue.ErrClosed
	}
	select {
	case q.refs <- ref:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("enqueue %s canceled: %w", ref, ctx.Err())
	}
}

// Dequeue implements queue.Queue. Refs queued before Close are still
// delivered.
func (q *Queue) Dequeue(ctx context.Context) (entity.Ref, error) {
	select {
	case ref, ok := <-q.refs:
		if !ok {
			return entity.Ref{}, queue.ErrClosed
		}
		return ref, nil
	case <-ctx.Done():
		return entity.Ref{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	}
}

// Len reports how many refs are waiting.
func (q *Queue) Len() int { return len(q.refs) }

// Close implements queue.Queue.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.refs)
	}
}
