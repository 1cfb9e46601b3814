// Package worker runs per-entity phase handlers off the work queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/beer-ratings-crawler/internal/entity"
	"github.com/JakeFAU/beer-ratings-crawler/internal/metrics"
	"github.com/JakeFAU/beer-ratings-crawler/internal/queue"
	"github.com/JakeFAU/beer-ratings-crawler/internal/storage/local"
)

// Handler processes one entity for a phase.
type Handler interface {
	Handle(ctx context.Context, ref entity.Ref) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ref entity.Ref) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, ref entity.Ref) error {
	return f(ctx, ref)
}

type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// Fatal marks err as one that must stop the whole run.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// IsFatal reports whether err stops the run: anything marked with Fatal and
// any filesystem failure.
func IsFatal(err error) bool {
	var f *fatalError
	return errors.As(err, &f) || local.IsFatal(err)
}

// Stats counts entity outcomes for one worker.
type Stats struct {
	Succeeded int
	Failed    int
}

// Worker consumes refs and runs the handler for each.
type Worker struct {
	id      int
	phase   string
	queue   queue.Queue
	handler Handler
	logger  *zap.Logger

	succeeded atomic.Int64
	failed    atomic.Int64
}

// New constructs a Worker.
func New(id int, phase string, q queue.Queue, handler Handler, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		id:      id,
		phase:   phase,
		queue:   q,
		handler: handler,
		logger:  logger.With(zap.String("phase", phase), zap.Int("worker", id)),
	}
}

// Run blocks, consuming refs until the queue is drained or the context
// finishes. Entity failures are logged and skipped; only a fatal error is
// returned.
func (w *Worker) Run(ctx context.Context) error {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	for {
		ref, err := w.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("worker %d dequeue: %w", w.id, err)
		}
		if err := w.process(ctx, ref); err != nil {
			return err
		}
	}
}

// Stats returns the outcome counts so far.
func (w *Worker) Stats() Stats {
	return Stats{Succeeded: int(w.succeeded.Load()), Failed: int(w.failed.Load())}
}

func (w *Worker) process(ctx context.Context, ref entity.Ref) error {
	start := time.Now()
	err := w.handler.Handle(ctx, ref)
	switch {
	case err == nil:
		w.succeeded.Add(1)
		metrics.ObserveEntity(w.phase, "ok")
		w.logger.Info("entity processed",
			zap.Stringer("entity", ref),
			zap.Duration("elapsed", time.Since(start)),
		)
		return nil
	case IsFatal(err):
		metrics.ObserveEntity(w.phase, "fatal")
		w.logger.Error("fatal error, aborting run", zap.Stringer("entity", ref), zap.Error(err))
		return err
	case ctx.Err() != nil:
		metrics.ObserveEntity(w.phase, "canceled")
		w.logger.Warn("entity interrupted", zap.Stringer("entity", ref))
		return nil
	default:
		w.failed.Add(1)
		metrics.ObserveEntity(w.phase, "failed")
		w.logger.Error("entity failed, skipped", zap.Stringer("entity", ref), zap.Error(err))
		return nil
	}
}
