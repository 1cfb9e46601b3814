package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/beer-ratings-crawler/internal/archive"
	"github.com/JakeFAU/beer-ratings-crawler/internal/catalog"
	"github.com/JakeFAU/beer-ratings-crawler/internal/crawler"
	"github.com/JakeFAU/beer-ratings-crawler/internal/entity"
	"github.com/JakeFAU/beer-ratings-crawler/internal/hash/sha256"
	"github.com/JakeFAU/beer-ratings-crawler/internal/reconcile"
	"github.com/JakeFAU/beer-ratings-crawler/internal/record"
	"github.com/JakeFAU/beer-ratings-crawler/internal/review"
	"github.com/JakeFAU/beer-ratings-crawler/internal/storage/gcs"
	"github.com/JakeFAU/beer-ratings-crawler/internal/worker"
)

// Stream file names under the parsed directory.
const (
	RatingsFile = "ratings.txt.gz"
	ReviewsFile = "reviews.txt.gz"
)

// CrawlReport summarises a crawl phase.
type CrawlReport struct {
	worker.Stats
	// Flagged lists entities whose page 0 carried no declared count.
	Flagged []entity.Ref
}

// RatingsReport summarises the ratings extraction.
type RatingsReport struct {
	worker.Stats
	Ratings   int
	Reviews   int
	Corrected int
}

// Crawl fetches every page of every entity of kind listed in its catalog.
func (a *App) Crawl(ctx context.Context, kind entity.Kind, fresh bool) (CrawlReport, error) {
	refs, err := a.targets(kind)
	if err != nil {
		return CrawlReport{}, err
	}
	opts := []crawler.ThrottleOption{
		crawler.WithClock(a.clock),
		crawler.WithSleeper(a.sleeper),
		crawler.WithLogger(a.logger.Named("throttle")),
	}
	throttle := crawler.NewThrottle(
		a.transport,
		crawler.NewExponentialRetryPolicy(
			a.cfg.Crawler.MaxRetries,
			time.Duration(a.cfg.Crawler.BackoffInitialMs)*time.Millisecond,
			time.Duration(a.cfg.Crawler.BackoffMaxMs)*time.Millisecond,
		),
		a.cfg.Interval(),
		opts...,
	)
	planner := crawler.NewPlanner(throttle, a.snapshots, a.source, a.logger, fresh)
	handler := worker.NewCrawlHandler(planner, a.source, a.logger)

	stats, err := a.runPhase(ctx, "crawl-"+string(kind), refs, handler)
	report := CrawlReport{Stats: stats, Flagged: handler.Flagged()}
	for _, ref := range report.Flagged {
		a.logger.Warn("declared count missing, only page 0 kept", zap.Stringer("entity", ref))
	}
	return report, err
}

// ExtractListings reads the listing pages of every entity of kind into the
// kind's child catalog and saves both catalogs.
func (a *App) ExtractListings(ctx context.Context, kind entity.Kind) (worker.Stats, error) {
	profile, err := a.source.Profile(kind)
	if err != nil {
		return worker.Stats{}, err
	}
	if profile.Listing == nil {
		return worker.Stats{}, fmt.Errorf("kind %s has no listing pages", kind)
	}
	own, err := a.catalog(profile.Targets)
	if err != nil {
		return worker.Stats{}, err
	}
	into, err := a.catalog(profile.ListingInto)
	if err != nil {
		return worker.Stats{}, err
	}
	refs, err := a.targets(kind)
	if err != nil {
		return worker.Stats{}, err
	}

	handler := worker.NewListingHandler(a.snapshots, a.source, own, into, a.logger)
	stats, runErr := a.runPhase(ctx, "listings-"+string(kind), refs, handler)
	if err := saveAll(into, own); err != nil {
		return stats, errors.Join(runErr, err)
	}
	return stats, runErr
}

// ExtractInfo fills the beer catalog's detail columns from each beer's page 0.
func (a *App) ExtractInfo(ctx context.Context) (worker.Stats, error) {
	beers, err := a.catalog(catalog.Beers)
	if err != nil {
		return worker.Stats{}, err
	}
	refs, err := a.targets(entity.KindBeer)
	if err != nil {
		return worker.Stats{}, err
	}
	handler := worker.NewInfoHandler(a.snapshots, a.source, beers, a.logger)
	stats, runErr := a.runPhase(ctx, "info", refs, handler)
	if err := beers.Save(); err != nil {
		return stats, errors.Join(runErr, err)
	}
	return stats, runErr
}

// ExtractRatings rewrites the ratings and reviews streams from the beer
// snapshots and corrects declared counts in the beer catalog.
func (a *App) ExtractRatings(ctx context.Context) (RatingsReport, error) {
	var report RatingsReport
	beers, err := a.catalog(catalog.Beers)
	if err != nil {
		return report, err
	}
	refs, err := a.targets(entity.KindBeer)
	if err != nil {
		return report, err
	}
	loc, err := a.cfg.Location()
	if err != nil {
		return report, err
	}

	dir := a.cfg.ParsedDir()
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return report, fmt.Errorf("create %s: %w", dir, err)
	}
	ratingsFile, err := os.Create(filepath.Join(dir, RatingsFile))
	if err != nil {
		return report, fmt.Errorf("create ratings stream: %w", err)
	}
	defer func() { _ = ratingsFile.Close() }()
	reviewsFile, err := os.Create(filepath.Join(dir, ReviewsFile))
	if err != nil {
		return report, fmt.Errorf("create reviews stream: %w", err)
	}
	defer func() { _ = reviewsFile.Close() }()

	sink := record.NewSink(
		record.NewStreamWriter("ratings", ratingsFile, true),
		record.NewStreamWriter("reviews", reviewsFile, false),
		a.cfg.Crawler.QueueDepth,
		a.logger,
	)
	handler := worker.NewRatingsHandler(
		a.snapshots,
		beers,
		review.Parser{MinReviewChars: a.cfg.Parser.ReviewMinChars, Location: loc},
		sink,
		reconcile.New(reconcile.CatalogStore{Table: beers}, a.logger),
		a.logger,
	)

	stats, runErr := a.runPhase(ctx, "ratings", refs, handler)
	written, sinkErr := sink.Close()
	report = RatingsReport{
		Stats:     stats,
		Ratings:   written.Ratings,
		Reviews:   written.Reviews,
		Corrected: handler.Corrected(),
	}

	errs := []error{runErr, sinkErr, ratingsFile.Sync(), reviewsFile.Sync(), beers.Save()}
	a.logger.Info("record streams written",
		zap.Int("ratings", report.Ratings),
		zap.Int("reviews", report.Reviews),
		zap.Int("counts_corrected", report.Corrected))
	return report, errors.Join(errs...)
}

// Users tallies reviewers from the ratings stream into the users catalog.
func (a *App) Users(_ context.Context) (int, error) {
	path := filepath.Join(a.cfg.ParsedDir(), RatingsFile)
	// #nosec G304 -- the stream lives under the configured data root.
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open ratings stream: %w", err)
	}
	defer func() { _ = f.Close() }()

	tallies, err := record.TallyUsers(f)
	if err != nil {
		return 0, fmt.Errorf("tally users: %w", err)
	}
	users, err := a.catalog(catalog.Users)
	if err != nil {
		return 0, err
	}
	for _, u := range tallies {
		users.Upsert(catalog.Row{
			"user_name":   u.UserName,
			"user_id":     u.UserID,
			"nbr_ratings": strconv.Itoa(u.NbrRatings),
			"nbr_reviews": strconv.Itoa(u.NbrReviews),
		})
	}
	if err := users.Save(); err != nil {
		return 0, err
	}
	a.logger.Info("users tallied", zap.Int("users", len(tallies)))
	return len(tallies), nil
}

// Audit compares the expected pages of every entity of kind with the pages
// persisted. It fetches nothing.
func (a *App) Audit(ctx context.Context, kind entity.Kind) ([]crawler.AuditResult, error) {
	profile, err := a.source.Profile(kind)
	if err != nil {
		return nil, err
	}
	refs, err := a.targets(kind)
	if err != nil {
		return nil, err
	}
	planner := crawler.NewPlanner(nil, a.snapshots, a.source, a.logger, false)
	results := make([]crawler.AuditResult, 0, len(refs))
	incomplete := 0
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := planner.Audit(ref, profile.Step)
		if err != nil {
			return results, err
		}
		if !res.Complete() {
			incomplete++
		}
		results = append(results, res)
	}
	a.logger.Info("audit finished",
		zap.String("kind", string(kind)),
		zap.Int("entities", len(results)),
		zap.Int("incomplete", incomplete))
	return results, nil
}

// Archive uploads the record streams and catalogs to the configured bucket
// under the run id.
func (a *App) Archive(ctx context.Context) ([]archive.Entry, error) {
	if a.cfg.Archive.GCSBucket == "" {
		return nil, errors.New("archive.gcs_bucket is not set")
	}
	store, err := gcs.Dial(ctx, gcs.Config{Bucket: a.cfg.Archive.GCSBucket, Prefix: a.cfg.Archive.Prefix})
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			a.logger.Warn("close storage client", zap.Error(cerr))
		}
	}()
	return a.ArchiveTo(ctx, store)
}

// ArchiveTo uploads the run's outputs through up.
func (a *App) ArchiveTo(ctx context.Context, up archive.Uploader) ([]archive.Entry, error) {
	dir := a.cfg.ParsedDir()
	paths := []string{filepath.Join(dir, RatingsFile), filepath.Join(dir, ReviewsFile)}
	for _, spec := range []catalog.Spec{catalog.Styles, catalog.Places, catalog.Breweries, catalog.Beers, catalog.Users} {
		paths = append(paths, filepath.Join(dir, spec.File))
	}
	return archive.New(up, sha256.New(), a.logger).Upload(ctx, a.runID, paths)
}

func saveAll(tables ...*catalog.Table) error {
	var errs []error
	for _, t := range tables {
		errs = append(errs, t.Save())
	}
	return errors.Join(errs...)
}
