package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/beer-ratings-crawler/internal/crawler"
	"github.com/JakeFAU/beer-ratings-crawler/internal/entity"
	"github.com/JakeFAU/beer-ratings-crawler/internal/source"
)

// Planner is the slice of crawler.Planner the crawl handler needs.
type Planner interface {
	PlanAndFetch(ctx context.Context, ref entity.Ref, seedURL string, step int) (crawler.PlanResult, error)
}

// CrawlHandler fetches every page of an entity through the planner.
type CrawlHandler struct {
	planner Planner
	table   *source.Table
	logger  *zap.Logger

	mu      sync.Mutex
	flagged []entity.Ref
}

// NewCrawlHandler builds a CrawlHandler.
func NewCrawlHandler(planner Planner, table *source.Table, logger *zap.Logger) *CrawlHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CrawlHandler{planner: planner, table: table, logger: logger}
}

// Handle implements Handler.
func (h *CrawlHandler) Handle(ctx context.Context, ref entity.Ref) error {
	profile, err := h.table.Profile(ref.Kind)
	if err != nil {
		return err
	}
	seed, err := h.table.SeedURL(ref)
	if err != nil {
		return err
	}
	res, err := h.planner.PlanAndFetch(ctx, ref, seed, profile.Step)
	if err != nil {
		return err
	}
	if res.NeedsReconcile {
		h.mu.Lock()
		h.flagged = append(h.flagged, ref)
		h.mu.Unlock()
	}
	h.logger.Debug("entity crawled",
		zap.Stringer("entity", ref),
		zap.Int("declared", res.Declared),
		zap.Int("pages", len(res.Offsets)),
		zap.Int("fetched", res.Fetched),
		zap.Int("skipped", res.Skipped),
	)
	return nil
}

// Flagged returns the entities whose declared count could not be read.
func (h *CrawlHandler) Flagged() []entity.Ref {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]entity.Ref(nil), h.flagged...)
}
