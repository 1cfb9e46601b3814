// Package dispatcher contains tests for worker coordination.
package dispatcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/beer-ratings-crawler/internal/entity"
	"github.com/JakeFAU/beer-ratings-crawler/internal/queue"
	"github.com/JakeFAU/beer-ratings-crawler/internal/queue/memory"
	"github.com/JakeFAU/beer-ratings-crawler/internal/worker"
)

func refs(n int) []entity.Ref {
	out := make([]entity.Ref, n)
	for i := range out {
		out[i] = entity.NewRef(entity.KindBeer, "1", string(rune('a'+i)))
	}
	return out
}

func pool(q queue.Queue, n int, h worker.Handler) []*worker.Worker {
	ws := make([]*worker.Worker, n)
	for i := range ws {
		ws[i] = worker.New(i, "test", q, h, zap.NewNop())
	}
	return ws
}

// TestDispatcherRunDrainsQueue ensures every ref is handled exactly once.
func TestDispatcherRunDrainsQueue(t *testing.T) {
	t.Parallel()

	// Arrange
	var mu sync.Mutex
	seen := map[string]int{}
	h := worker.HandlerFunc(func(_ context.Context, ref entity.Ref) error {
		mu.Lock()
		defer mu.Unlock()
		seen[ref.String()]++
		if ref.ID() == "c" {
			return errors.New("entity failure")
		}
		return nil
	})
	q := memory.NewQueue(2)
	d := New(q, pool(q, 3, h))

	// Act
	stats, err := d.Run(context.Background(), refs(10))

	// Assert
	require.NoError(t, err)
	assert.Len(t, seen, 10)
	for ref, n := range seen {
		assert.Equal(t, 1, n, ref)
	}
	assert.Equal(t, worker.Stats{Succeeded: 9, Failed: 1}, stats)
}

// TestDispatcherRunAbortsOnFatal verifies one fatal error stops the pool.
func TestDispatcherRunAbortsOnFatal(t *testing.T) {
	t.Parallel()

	var handled atomic.Int64
	h := worker.HandlerFunc(func(context.Context, entity.Ref) error {
		handled.Add(1)
		return worker.Fatal(errors.New("disk gone"))
	})
	q := memory.NewQueue(1)
	d := New(q, pool(q, 2, h))

	_, err := d.Run(context.Background(), refs(20))

	require.Error(t, err)
	assert.True(t, worker.IsFatal(err))
	assert.Less(t, handled.Load(), int64(20))
}

// TestDispatcherRunStopsOnCancel verifies cancellation ends the run cleanly.
func TestDispatcherRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{}, 1)
	h := worker.HandlerFunc(func(ctx context.Context, _ entity.Ref) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return ctx.Err()
	})
	q := memory.NewQueue(1)
	d := New(q, pool(q, 1, h))

	done := make(chan error, 1)
	go func() {
		_, err := d.Run(ctx, refs(5))
		done <- err
	}()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("worker did not begin")
	}
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after context cancel")
	}
}

// TestDispatcherEnqueueForwardsErrors verifies queue errors are wrapped for callers.
func TestDispatcherEnqueueForwardsErrors(t *testing.T) {
	t.Parallel()

	q := new(queue.MockQueue)
	ref := entity.NewRef(entity.KindStyle, "1")
	q.On("Enqueue", mock.Anything, ref).Return(errors.New("boom"))
	d := New(q, nil)

	err := d.Enqueue(context.Background(), ref)

	require.EqualError(t, err, "queue enqueue: boom")
	q.AssertExpectations(t)
}
