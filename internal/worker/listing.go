package worker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/beer-ratings-crawler/internal/catalog"
	"github.com/JakeFAU/beer-ratings-crawler/internal/entity"
	"github.com/JakeFAU/beer-ratings-crawler/internal/extract"
	"github.com/JakeFAU/beer-ratings-crawler/internal/metrics"
	"github.com/JakeFAU/beer-ratings-crawler/internal/source"
)

// SnapshotReader reads persisted pages.
type SnapshotReader interface {
	Offsets(ref entity.Ref) ([]int, error)
	Load(ref entity.Ref, offset int) ([]byte, error)
	ModTime(ref entity.Ref, offset int) (time.Time, error)
}

// ListingHandler turns an entity's listing pages into rows of the child
// catalog, e.g. a style's beers or a place's breweries. When the kind has a
// detail pattern set, page 0 also updates the entity's own row.
type ListingHandler struct {
	store  SnapshotReader
	table  *source.Table
	own    *catalog.Table
	into   *catalog.Table
	logger *zap.Logger
}

// NewListingHandler builds a ListingHandler. own holds the entities being
// walked and into receives the listed children.
func NewListingHandler(store SnapshotReader, table *source.Table, own, into *catalog.Table, logger *zap.Logger) *ListingHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ListingHandler{store: store, table: table, own: own, into: into, logger: logger}
}

// Handle implements Handler.
func (h *ListingHandler) Handle(ctx context.Context, ref entity.Ref) error {
	profile, err := h.table.Profile(ref.Kind)
	if err != nil {
		return err
	}
	if profile.Listing == nil {
		return fmt.Errorf("kind %s has no listing pages", ref.Kind)
	}
	key, err := h.table.Key(ref)
	if err != nil {
		return err
	}
	inherited := catalog.Row{}
	if parent, ok := h.own.Get(key...); ok {
		for child, col := range profile.Inherit {
			inherited[child] = parent[col]
		}
	}

	offsets, err := h.store.Offsets(ref)
	if err != nil {
		return err
	}
	if len(offsets) == 0 {
		return fmt.Errorf("entity %s has no snapshots", ref)
	}

	added := 0
	for _, off := range offsets {
		if err := ctx.Err(); err != nil {
			return err
		}
		body, err := h.store.Load(ref, off)
		if err != nil {
			if IsFatal(err) {
				return err
			}
			h.logger.Warn("snapshot unreadable, skipped",
				zap.Stringer("entity", ref), zap.Int("offset", off), zap.Error(err))
			continue
		}
		res := extract.Extract(body, *profile.Listing)
		h.report(ref, off, profile.Listing.Name, res.Diagnostics)
		for _, t := range res.Tuples {
			row := catalog.Row(t)
			for col, v := range inherited {
				if row[col] == "" {
					row[col] = v
				}
			}
			if h.into.Upsert(row) {
				added++
			}
		}
		if off == 0 && profile.Detail != nil {
			h.applyDetail(ref, key, profile, body)
		}
	}
	h.logger.Debug("listing extracted",
		zap.Stringer("entity", ref), zap.Int("pages", len(offsets)), zap.Int("added", added))
	return nil
}

func (h *ListingHandler) applyDetail(ref entity.Ref, key []string, profile *source.Profile, body []byte) {
	res := extract.Extract(body, *profile.Detail)
	h.report(ref, 0, profile.Detail.Name, res.Diagnostics)
	row := catalog.Row{}
	if len(res.Tuples) > 0 {
		row = catalog.Row(res.Tuples[0])
	}
	if n, err := profile.Count.Read(extract.Normalize(body)); err == nil {
		row["nbr_beers"] = strconv.Itoa(n)
	}
	if len(row) == 0 {
		return
	}
	merged := catalog.Row{}
	for i, col := range profile.Targets.Key {
		merged[col] = key[i]
	}
	for col, v := range row {
		merged[col] = v
	}
	h.own.Upsert(merged)
}

func (h *ListingHandler) report(ref entity.Ref, offset int, set string, diags []error) {
	if len(diags) == 0 {
		return
	}
	metrics.ObserveExtractDiagnostics(set, len(diags))
	for _, d := range diags {
		h.logger.Debug("item dropped",
			zap.Stringer("entity", ref), zap.Int("offset", offset), zap.Error(d))
	}
}
