package record

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/beer-ratings-crawler/internal/metrics"
)

const defaultSinkBuffer = 64

// Stats counts records appended by a Sink.
type Stats struct {
	Ratings int
	Reviews int
}

// Sink is the single writer for the ratings and reviews streams. Producers
// hand it one batch per beer; a background goroutine owns both streams so
// batches are never interleaved.
type Sink struct {
	ratings *StreamWriter
	reviews *StreamWriter
	batches chan []RatingRecord
	doneCh  chan struct{}
	logger  *zap.Logger

	mu    sync.Mutex
	err   error
	stats Stats

	closeOnce sync.Once
}

// NewSink starts the writer goroutine.
func NewSink(ratings, reviews *StreamWriter, buffer int, logger *zap.Logger) *Sink {
	if buffer <= 0 {
		buffer = defaultSinkBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Sink{
		ratings: ratings,
		reviews: reviews,
		batches: make(chan []RatingRecord, buffer),
		doneCh:  make(chan struct{}),
		logger:  logger,
	}
	go s.run()
	return s
}

// Submit queues a batch. It blocks while the buffer is full and fails once
// the writer has hit an error.
func (s *Sink) Submit(ctx context.Context, batch []RatingRecord) error {
	if err := s.Err(); err != nil {
		return err
	}
	if len(batch) == 0 {
		return nil
	}
	select {
	case s.batches <- batch:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("submit records: %w", ctx.Err())
	}
}

// Err returns the first write error, if any.
func (s *Sink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close drains queued batches, closes both streams and returns the totals.
// No Submit may be in flight or follow.
func (s *Sink) Close() (Stats, error) {
	s.closeOnce.Do(func() { close(s.batches) })
	<-s.doneCh

	for _, w := range []*StreamWriter{s.ratings, s.reviews} {
		if err := w.Close(); err != nil {
			s.setErr(err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats, s.err
}

func (s *Sink) run() {
	defer close(s.doneCh)
	for batch := range s.batches {
		if s.Err() != nil {
			continue
		}
		if err := s.write(batch); err != nil {
			s.logger.Error("record stream write failed", zap.Error(err))
			s.setErr(err)
		}
	}
}

func (s *Sink) write(batch []RatingRecord) error {
	var ratings, reviews int
	for _, r := range batch {
		if err := s.ratings.Write(r); err != nil {
			return err
		}
		ratings++
		metrics.ObserveRecord(s.ratings.Name())
		if r.IsReview {
			if err := s.reviews.Write(r); err != nil {
				return err
			}
			reviews++
			metrics.ObserveRecord(s.reviews.Name())
		}
	}
	s.mu.Lock()
	s.stats.Ratings += ratings
	s.stats.Reviews += reviews
	s.mu.Unlock()
	return nil
}

func (s *Sink) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}
