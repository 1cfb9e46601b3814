// Package app holds the long-lived services of one command invocation and
// runs the batch phases on top of them.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/beer-ratings-crawler/internal/catalog"
	"github.com/JakeFAU/beer-ratings-crawler/internal/clock/system"
	"github.com/JakeFAU/beer-ratings-crawler/internal/config"
	"github.com/JakeFAU/beer-ratings-crawler/internal/crawler"
	"github.com/JakeFAU/beer-ratings-crawler/internal/dispatcher"
	"github.com/JakeFAU/beer-ratings-crawler/internal/entity"
	collyfetcher "github.com/JakeFAU/beer-ratings-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/beer-ratings-crawler/internal/metrics"
	queuemem "github.com/JakeFAU/beer-ratings-crawler/internal/queue/memory"
	"github.com/JakeFAU/beer-ratings-crawler/internal/source"
	"github.com/JakeFAU/beer-ratings-crawler/internal/storage/local"
	"github.com/JakeFAU/beer-ratings-crawler/internal/worker"
)

// App is the dependency container shared by the commands.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	runID     string
	snapshots *local.SnapshotStore
	source    *source.Table
	transport crawler.Transport
	sleeper   crawler.Sleeper
	clock     crawler.Clock

	mu       sync.Mutex
	catalogs map[string]*catalog.Table
}

// Option customises an App.
type Option func(*App)

// WithTransport replaces the colly transport.
func WithTransport(t crawler.Transport) Option {
	return func(a *App) { a.transport = t }
}

// WithSleeper replaces the timer used for pacing and backoff.
func WithSleeper(s crawler.Sleeper) Option {
	return func(a *App) { a.sleeper = s }
}

// WithClock replaces the throttle's time source.
func WithClock(c crawler.Clock) Option {
	return func(a *App) { a.clock = c }
}

// New builds the container. The snapshot tree is created under the data
// root if it does not exist.
func New(cfg config.Config, logger *zap.Logger, runID string, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()

	store, err := local.New(local.Config{Root: cfg.SnapshotDir()})
	if err != nil {
		return nil, fmt.Errorf("init snapshot store: %w", err)
	}
	wall := system.New()
	a := &App{
		cfg:       cfg,
		logger:    logger,
		runID:     runID,
		snapshots: store,
		source: source.NewTable(cfg.Source.BaseURL, source.Steps{
			Style:   cfg.Steps.Style,
			Place:   cfg.Steps.Place,
			Brewery: cfg.Steps.Brewery,
			Beer:    cfg.Steps.Beer,
		}),
		sleeper:  wall,
		clock:    wall,
		catalogs: make(map[string]*catalog.Table),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.transport == nil {
		a.transport = collyfetcher.New(collyfetcher.Config{
			UserAgent:     cfg.Crawler.UserAgent,
			RespectRobots: cfg.Crawler.RespectRobots,
			Timeout:       time.Duration(cfg.Crawler.RequestTimeoutSeconds) * time.Second,
		}, logger.Named("fetcher"))
	}
	return a, nil
}

// Logger returns the run logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// RunID identifies this invocation.
func (a *App) RunID() string {
	return a.runID
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// Close writes the metrics textfile and flushes the logger.
func (a *App) Close() error {
	err := metrics.WriteTextfile(a.cfg.MetricsPath())
	if err != nil {
		a.logger.Warn("metrics textfile not written", zap.Error(err))
	}
	_ = a.logger.Sync()
	return err
}

// catalog opens a catalog once per run so that every phase sees the same rows.
func (a *App) catalog(spec catalog.Spec) (*catalog.Table, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if t, ok := a.catalogs[spec.File]; ok {
		return t, nil
	}
	t, err := catalog.Open(a.cfg.ParsedDir(), spec)
	if err != nil {
		return nil, err
	}
	a.catalogs[spec.File] = t
	return t, nil
}

// targets lists the entities of kind from the kind's catalog. Rows without a
// usable key are logged and left out.
func (a *App) targets(kind entity.Kind) ([]entity.Ref, error) {
	profile, err := a.source.Profile(kind)
	if err != nil {
		return nil, err
	}
	tbl, err := a.catalog(profile.Targets)
	if err != nil {
		return nil, err
	}
	rows := tbl.Rows()
	refs := make([]entity.Ref, 0, len(rows))
	for i, row := range rows {
		ref, err := a.source.Ref(kind, row)
		if err != nil {
			a.logger.Warn("catalog row skipped",
				zap.String("catalog", profile.Targets.File), zap.Int("row", i+1), zap.Error(err))
			continue
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// runPhase drains refs through a fresh queue and worker pool.
func (a *App) runPhase(ctx context.Context, phase string, refs []entity.Ref, handler worker.Handler) (worker.Stats, error) {
	start := time.Now()
	a.logger.Info("phase started", zap.String("phase", phase), zap.Int("entities", len(refs)))

	q := queuemem.NewQueue(a.cfg.Crawler.QueueDepth)
	n := a.cfg.WorkerCount()
	workers := make([]*worker.Worker, 0, n)
	for i := range n {
		workers = append(workers, worker.New(i, phase, q, handler, a.logger))
	}
	stats, err := dispatcher.New(q, workers).Run(ctx, refs)

	fields := []zap.Field{
		zap.String("phase", phase),
		zap.Int("succeeded", stats.Succeeded),
		zap.Int("failed", stats.Failed),
		zap.Duration("elapsed", time.Since(start)),
	}
	if err != nil {
		a.logger.Error("phase aborted", append(fields, zap.Error(err))...)
		return stats, fmt.Errorf("%s: %w", phase, err)
	}
	if ctx.Err() != nil {
		a.logger.Warn("phase interrupted", fields...)
		return stats, ctx.Err()
	}
	a.logger.Info("phase finished", fields...)
	return stats, nil
}
