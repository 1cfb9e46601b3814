// Package queue defines the work queue feeding entity refs to workers.
package queue

import (
	"context"
	"errors"

	"github.com/JakeFAU/beer-ratings-crawler/internal/entity"
)

// ErrClosed is returned by Dequeue once a closed queue has been drained.
var ErrClosed = errors.New("queue closed")

// Queue hands entity refs to workers.
type Queue interface {
	// Enqueue blocks while the queue is full or until ctx ends.
	Enqueue(ctx context.Context, ref entity.Ref) error

	// Dequeue blocks until a ref is available, the queue is closed and
	// drained (ErrClosed), or ctx ends.
	Dequeue(ctx context.Context) (entity.Ref, error)

	// Close stops further enqueues. It is safe to call more than once.
	Close()
}
