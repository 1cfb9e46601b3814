// Package dispatcher manages worker fan-out over the entity queue.
package dispatcher

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/beer-ratings-crawler/internal/entity"
	"github.com/JakeFAU/beer-ratings-crawler/internal/queue"
	"github.com/JakeFAU/beer-ratings-crawler/internal/worker"
)

// Dispatcher fans out queue work to a fixed pool of workers.
type Dispatcher struct {
	queue   queue.Queue
	workers []*worker.Worker
}

// New creates a Dispatcher.
func New(q queue.Queue, workers []*worker.Worker) *Dispatcher {
	return &Dispatcher{
		queue:   q,
		workers: workers,
	}
}

// Run feeds refs to the queue, closes it, and blocks until every worker has
// drained it. The first fatal worker error cancels the rest and is returned.
func (d *Dispatcher) Run(ctx context.Context, refs []entity.Ref) (worker.Stats, error) {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer d.queue.Close()
		for _, ref := range refs {
			if err := d.Enqueue(gctx, ref); err != nil {
				if gctx.Err() != nil {
					return nil
				}
				return err
			}
		}
		return nil
	})
	for _, w := range d.workers {
		g.Go(func() error {
			return w.Run(gctx)
		})
	}

	err := g.Wait()
	var total worker.Stats
	for _, w := range d.workers {
		s := w.Stats()
		total.Succeeded += s.Succeeded
		total.Failed += s.Failed
	}
	return total, err
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, ref entity.Ref) error {
	if err := d.queue.Enqueue(ctx, ref); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}
