package worker

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/JakeFAU/beer-ratings-crawler/internal/catalog"
	"github.com/JakeFAU/beer-ratings-crawler/internal/entity"
	"github.com/JakeFAU/beer-ratings-crawler/internal/metrics"
	"github.com/JakeFAU/beer-ratings-crawler/internal/reconcile"
	"github.com/JakeFAU/beer-ratings-crawler/internal/record"
	"github.com/JakeFAU/beer-ratings-crawler/internal/review"
)

// RecordSink accepts one beer's records at a time.
type RecordSink interface {
	Submit(ctx context.Context, batch []record.RatingRecord) error
}

// CountReconciler corrects declared counts.
type CountReconciler interface {
	Reconcile(ref entity.Ref, declared, actual reconcile.Counts) (bool, error)
}

// RatingsHandler parses a beer's snapshots into rating records, hands them to
// the sink and reconciles the beer's declared counts.
type RatingsHandler struct {
	store      SnapshotReader
	beers      *catalog.Table
	parser     review.Parser
	sink       RecordSink
	reconciler CountReconciler
	logger     *zap.Logger

	corrected atomic.Int64
}

// NewRatingsHandler builds a RatingsHandler.
func NewRatingsHandler(
	store SnapshotReader,
	beers *catalog.Table,
	parser review.Parser,
	sink RecordSink,
	reconciler CountReconciler,
	logger *zap.Logger,
) *RatingsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RatingsHandler{
		store:      store,
		beers:      beers,
		parser:     parser,
		sink:       sink,
		reconciler: reconciler,
		logger:     logger,
	}
}

// Handle implements Handler. Beers whose declared rating count is not
// positive are skipped without error.
func (h *RatingsHandler) Handle(ctx context.Context, ref entity.Ref) error {
	row, ok := h.beers.Get(ref.Keys...)
	if !ok {
		return fmt.Errorf("entity %s not in %s", ref, catalog.Beers.File)
	}
	declared, ok := declaredCounts(row)
	if !ok {
		h.logger.Debug("beer has no ratings, skipped", zap.Stringer("entity", ref))
		return nil
	}

	pages, err := h.pages(ref)
	if err != nil {
		return err
	}

	res := h.parser.Parse(beerOf(ref, row), pages)
	if len(res.Diagnostics) > 0 {
		metrics.ObserveExtractDiagnostics("reviews", len(res.Diagnostics))
		for _, d := range res.Diagnostics {
			h.logger.Warn("rating block degraded", zap.Stringer("entity", ref), zap.Error(d))
		}
	}

	if err := h.sink.Submit(ctx, res.Records); err != nil {
		if ctx.Err() != nil {
			return err
		}
		return Fatal(err)
	}

	fixed, err := h.reconciler.Reconcile(ref, declared, reconcile.Counts{Ratings: res.Ratings, Reviews: res.Reviews})
	if err != nil {
		return err
	}
	if fixed {
		h.corrected.Add(1)
	}
	return nil
}

// Corrected returns how many beers had their counts rewritten.
func (h *RatingsHandler) Corrected() int {
	return int(h.corrected.Load())
}

func (h *RatingsHandler) pages(ref entity.Ref) ([]review.Page, error) {
	offsets, err := h.store.Offsets(ref)
	if err != nil {
		return nil, err
	}
	pages := make([]review.Page, 0, len(offsets))
	for _, off := range offsets {
		body, err := h.store.Load(ref, off)
		if err != nil {
			if IsFatal(err) {
				return nil, err
			}
			h.logger.Warn("snapshot unreadable, skipped",
				zap.Stringer("entity", ref), zap.Int("offset", off), zap.Error(err))
			continue
		}
		mod, err := h.store.ModTime(ref, off)
		if err != nil {
			h.logger.Warn("snapshot time unknown, skipped",
				zap.Stringer("entity", ref), zap.Int("offset", off), zap.Error(err))
			continue
		}
		pages = append(pages, review.Page{Offset: off, Body: body, ModTime: mod})
	}
	return pages, nil
}

func declaredCounts(row catalog.Row) (reconcile.Counts, bool) {
	ratings, err := strconv.Atoi(row["nbr_ratings"])
	if err != nil || ratings <= 0 {
		return reconcile.Counts{}, false
	}
	// A missing review count compares as zero.
	reviews, _ := strconv.Atoi(row["nbr_reviews"])
	return reconcile.Counts{Ratings: ratings, Reviews: reviews}, true
}

func beerOf(ref entity.Ref, row catalog.Row) review.Beer {
	beer := review.Beer{
		Ref:         ref,
		Name:        row["beer_name"],
		BreweryName: row["brewery_name"],
		Style:       row["style"],
	}
	if v, err := strconv.ParseFloat(row["abv"], 64); err == nil && !math.IsNaN(v) {
		beer.ABV = &v
	}
	return beer
}
