// Package reconcile corrects stored rating counts with the counts actually
// extracted from snapshots.
package reconcile

import (
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/JakeFAU/beer-ratings-crawler/internal/catalog"
	"github.com/JakeFAU/beer-ratings-crawler/internal/entity"
	"github.com/JakeFAU/beer-ratings-crawler/internal/metrics"
)

// Counts is a pair of rating and review totals for one beer.
type Counts struct {
	Ratings int
	Reviews int
}

// CountStore persists the counts attached to an entity.
type CountStore interface {
	SetCounts(ref entity.Ref, c Counts) error
}

// Reconciler overwrites declared counts that disagree with extracted ones.
type Reconciler struct {
	store  CountStore
	logger *zap.Logger
}

// New returns a Reconciler writing to store.
func New(store CountStore, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{store: store, logger: logger}
}

// Reconcile stores actual when it differs from declared and reports whether
// a correction was made. Drift itself is never an error; only a failing store
// is.
func (r *Reconciler) Reconcile(ref entity.Ref, declared, actual Counts) (bool, error) {
	if declared == actual {
		return false, nil
	}
	if err := r.store.SetCounts(ref, actual); err != nil {
		return false, fmt.Errorf("reconcile %s: %w", ref, err)
	}
	metrics.ObserveCountCorrection()
	r.logger.Debug("declared counts corrected",
		zap.Stringer("entity", ref),
		zap.Int("declared_ratings", declared.Ratings),
		zap.Int("actual_ratings", actual.Ratings),
		zap.Int("declared_reviews", declared.Reviews),
		zap.Int("actual_reviews", actual.Reviews),
	)
	return true, nil
}

// CatalogStore writes counts into the nbr_ratings and nbr_reviews columns of
// a catalog table keyed by the entity's keys.
type CatalogStore struct {
	Table *catalog.Table
}

// SetCounts implements CountStore.
func (s CatalogStore) SetCounts(ref entity.Ref, c Counts) error {
	ok := s.Table.Set(ref.Keys, catalog.Row{
		"nbr_ratings": strconv.Itoa(c.Ratings),
		"nbr_reviews": strconv.Itoa(c.Reviews),
	})
	if !ok {
		return fmt.Errorf("no catalog row for %s", ref)
	}
	return nil
}
