package crawler

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/beer-ratings-crawler/internal/entity"
	"github.com/JakeFAU/beer-ratings-crawler/internal/metrics"
)

// Offsets returns the page offsets covering n items at step items per page:
// 0, step, ..., floor((n-1)/step)*step. An empty entity still has page 0.
func Offsets(n, step int) []int {
	if n <= 0 || step <= 0 {
		return []int{0}
	}
	last := (n - 1) / step * step
	out := make([]int, 0, last/step+1)
	for off := 0; off <= last; off += step {
		out = append(out, off)
	}
	return out
}

// Planner materialises every page of an entity into the snapshot store.
// Resumption relies only on what the store already holds.
type Planner struct {
	fetcher Fetcher
	store   SnapshotStore
	layout  Layout
	logger  *zap.Logger
	fresh   bool
}

// NewPlanner wires a planner. When fresh is set the entity's snapshot tree is
// cleared before planning.
func NewPlanner(fetcher Fetcher, store SnapshotStore, layout Layout, logger *zap.Logger, fresh bool) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{
		fetcher: fetcher,
		store:   store,
		layout:  layout,
		logger:  logger,
		fresh:   fresh,
	}
}

// PlanAndFetch loads or fetches page 0, reads the declared item count and then
// visits the continuation offsets in ascending order, fetching only pages the
// store does not have yet. A missing count marker is not an error: the entity
// is flagged for reconciliation and no further pages are fetched.
func (p *Planner) PlanAndFetch(ctx context.Context, ref entity.Ref, seedURL string, step int) (PlanResult, error) {
	res := PlanResult{Ref: ref}
	if err := ref.Validate(); err != nil {
		return res, err
	}
	if step <= 0 {
		return res, fmt.Errorf("entity %s: step must be positive, got %d", ref, step)
	}
	if p.fresh {
		if err := p.store.Clear(ref); err != nil {
			return res, fmt.Errorf("clear %s: %w", ref, err)
		}
	}

	first, fetched, err := p.firstPage(ctx, ref, seedURL)
	if err != nil {
		return res, err
	}
	if fetched {
		res.Fetched++
	} else {
		res.Skipped++
	}

	n, err := p.layout.DeclaredCount(ref.Kind, first)
	if err != nil {
		p.logger.Warn("declared count unavailable; entity needs reconciliation",
			zap.Stringer("entity", ref),
			zap.Error(err),
		)
		n = 0
		res.NeedsReconcile = true
	}
	res.Declared = n
	res.Offsets = Offsets(n, step)

	for _, offset := range res.Offsets[1:] {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		ok, err := p.store.Has(ref, offset)
		if err != nil {
			return res, fmt.Errorf("check %s offset %d: %w", ref, offset, err)
		}
		if ok {
			res.Skipped++
			metrics.ObserveSnapshot("skipped")
			continue
		}
		url := p.layout.PageURL(ref.Kind, seedURL, offset)
		if err := p.fetchAndSave(ctx, ref, url, offset); err != nil {
			return res, err
		}
		res.Fetched++
	}
	return res, nil
}

func (p *Planner) firstPage(ctx context.Context, ref entity.Ref, seedURL string) ([]byte, bool, error) {
	ok, err := p.store.Has(ref, 0)
	if err != nil {
		return nil, false, fmt.Errorf("check %s offset 0: %w", ref, err)
	}
	if ok {
		body, err := p.store.Load(ref, 0)
		if err != nil {
			return nil, false, fmt.Errorf("load %s offset 0: %w", ref, err)
		}
		metrics.ObserveSnapshot("skipped")
		return body, false, nil
	}
	url := p.layout.PageURL(ref.Kind, seedURL, 0)
	resp, err := p.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, false, fmt.Errorf("entity %s offset 0: %w", ref, err)
	}
	if err := p.store.Save(ctx, ref, 0, resp.Body); err != nil {
		return nil, false, fmt.Errorf("save %s offset 0: %w", ref, err)
	}
	metrics.ObserveSnapshot("saved")
	return resp.Body, true, nil
}

func (p *Planner) fetchAndSave(ctx context.Context, ref entity.Ref, url string, offset int) error {
	resp, err := p.fetcher.Fetch(ctx, url)
	if err != nil {
		return fmt.Errorf("entity %s offset %d: %w", ref, offset, err)
	}
	if err := p.store.Save(ctx, ref, offset, resp.Body); err != nil {
		return fmt.Errorf("save %s offset %d: %w", ref, offset, err)
	}
	metrics.ObserveSnapshot("saved")
	p.logger.Debug("page saved",
		zap.Stringer("entity", ref),
		zap.Int("offset", offset),
		zap.Int("bytes", len(resp.Body)),
	)
	return nil
}

// Audit compares the offsets an entity should have against what is persisted.
// Without page 0 nothing else can be known, so only page 0 is expected.
func (p *Planner) Audit(ref entity.Ref, step int) (AuditResult, error) {
	res := AuditResult{Ref: ref, Expected: []int{0}}
	ok, err := p.store.Has(ref, 0)
	if err != nil {
		return res, fmt.Errorf("check %s offset 0: %w", ref, err)
	}
	if !ok {
		res.Missing = []int{0}
		return res, nil
	}
	body, err := p.store.Load(ref, 0)
	if err != nil {
		return res, fmt.Errorf("load %s offset 0: %w", ref, err)
	}
	n, err := p.layout.DeclaredCount(ref.Kind, body)
	if err != nil && !errors.Is(err, ErrDeclaredCountMissing) {
		return res, fmt.Errorf("declared count %s: %w", ref, err)
	}
	res.Declared = n
	res.Expected = Offsets(n, step)
	for _, offset := range res.Expected[1:] {
		ok, err := p.store.Has(ref, offset)
		if err != nil {
			return res, fmt.Errorf("check %s offset %d: %w", ref, offset, err)
		}
		if !ok {
			res.Missing = append(res.Missing, offset)
		}
	}
	return res, nil
}
