package worker

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/JakeFAU/beer-ratings-crawler/internal/catalog"
	"github.com/JakeFAU/beer-ratings-crawler/internal/entity"
	"github.com/JakeFAU/beer-ratings-crawler/internal/extract"
	"github.com/JakeFAU/beer-ratings-crawler/internal/metrics"
	"github.com/JakeFAU/beer-ratings-crawler/internal/source"
)

const nan = "nan"

// InfoHandler reads a beer's page 0 and stores its declared counts, scores
// and ABV in the beers catalog. Pages without a score block get -1 counts so
// the ratings phase skips them.
type InfoHandler struct {
	store  SnapshotReader
	table  *source.Table
	beers  *catalog.Table
	logger *zap.Logger
}

// NewInfoHandler builds an InfoHandler.
func NewInfoHandler(store SnapshotReader, table *source.Table, beers *catalog.Table, logger *zap.Logger) *InfoHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InfoHandler{store: store, table: table, beers: beers, logger: logger}
}

// Handle implements Handler.
func (h *InfoHandler) Handle(_ context.Context, ref entity.Ref) error {
	if ref.Kind != entity.KindBeer {
		return fmt.Errorf("info expects a beer, got %s", ref)
	}
	profile, err := h.table.Profile(ref.Kind)
	if err != nil {
		return err
	}
	body, err := h.store.Load(ref, 0)
	if err != nil {
		return err
	}

	res := extract.Extract(body, *profile.Detail)
	if len(res.Diagnostics) > 0 {
		metrics.ObserveExtractDiagnostics(profile.Detail.Name, len(res.Diagnostics))
	}
	row := missingScores()
	if len(res.Tuples) > 0 {
		row = detailRow(res.Tuples[0])
	} else {
		h.logger.Debug("no score block on page 0", zap.Stringer("entity", ref))
	}
	if !h.beers.Set(ref.Keys, row) {
		return fmt.Errorf("entity %s not in %s", ref, catalog.Beers.File)
	}
	return nil
}

func missingScores() catalog.Row {
	return catalog.Row{
		"nbr_ratings": "-1",
		"nbr_reviews": "-1",
		"avg":         nan,
		"ba_score":    nan,
		"bros_score":  nan,
		"abv":         nan,
	}
}

func detailRow(t extract.Tuple) catalog.Row {
	row := catalog.Row{
		"nbr_ratings": intOr(t["nbr_ratings"], "-1"),
		"nbr_reviews": intOr(t["nbr_reviews"], "0"),
		"avg":         floatOr(t["avg"]),
		"ba_score":    floatOr(t["ba_score"]),
		"bros_score":  floatOr(t["bros_score"]),
		"abv":         floatOr(t["abv"]),
	}
	// The site shows an average of 0 for unrated beers.
	if row["nbr_ratings"] == "0" {
		row["avg"] = nan
	}
	return row
}

func intOr(raw, fallback string) string {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return strconv.Itoa(n)
}

func floatOr(raw string) string {
	if _, err := strconv.ParseFloat(raw, 64); err != nil {
		return nan
	}
	return raw
}
