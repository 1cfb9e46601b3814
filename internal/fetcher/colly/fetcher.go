// Package collyfetcher implements the crawler Transport using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/beer-ratings-crawler/internal/crawler"
)

const defaultTimeout = 30 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	Headers       http.Header
}

// Fetcher performs one GET per call. Pacing and retries belong to the
// throttle wrapping it, so the fetcher reports every status code as is.
type Fetcher struct {
	headers http.Header
	base    *colly.Collector
	robots  *robotsGate
	logger  *zap.Logger

	warned sync.Map
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher. Every Fetch clones one base collector, so the
// connection pool and the robots.txt cache are shared across calls.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	base := colly.NewCollector(
		colly.Async(false),
		// Retries revisit the same URL and non-2xx bodies must reach the throttle.
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
	)
	if cfg.UserAgent != "" {
		base.UserAgent = cfg.UserAgent
	}
	base.IgnoreRobotsTxt = !cfg.RespectRobots
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	f := &Fetcher{headers: cfg.Headers.Clone(), base: base, logger: logger}
	pages := pageTransport()
	if cfg.RespectRobots {
		f.robots = newRobotsGate(pages)
		base.WithTransport(f.robots)
	} else {
		base.WithTransport(pages)
	}
	base.SetRequestTimeout(timeout)
	return f
}

// Fetch executes a single HTTP GET.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (crawler.Response, error) {
	if err := ctx.Err(); err != nil {
		return crawler.Response{}, fmt.Errorf("colly fetch canceled: %w", err)
	}

	v := &visit{start: time.Now()}
	c := f.base.Clone()
	f.attach(c, v)

	done := make(chan error, 1)
	go func() { done <- c.Visit(rawURL) }()

	var err error
	select {
	case <-ctx.Done():
		return crawler.Response{}, fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err = <-done:
	}
	f.noteRobots(rawURL)

	switch {
	case errors.Is(err, colly.ErrRobotsTxtBlocked), errors.Is(err, colly.ErrForbiddenURL):
		return crawler.Response{}, crawler.Permanent(fmt.Errorf("colly visit refused: %w", err))
	case err != nil:
		return crawler.Response{}, fmt.Errorf("colly visit failed: %w", err)
	case v.err != nil:
		return crawler.Response{}, fmt.Errorf("colly response failed: %w", v.err)
	}
	return v.resp, nil
}

// visit collects what the callbacks of one cloned collector observe.
type visit struct {
	start time.Time
	resp  crawler.Response
	err   error
}

func (f *Fetcher) attach(hooks collectorHooks, v *visit) {
	hooks.OnRequest(func(r *colly.Request) {
		for key, values := range f.headers {
			for _, val := range values {
				r.Headers.Add(key, val)
			}
		}
	})
	hooks.OnResponse(func(r *colly.Response) {
		v.resp = crawler.Response{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(v.start),
		}
	})
	hooks.OnError(func(_ *colly.Response, err error) {
		v.err = err
	})
}

// noteRobots warns once per host whose robots.txt could not be read.
func (f *Fetcher) noteRobots(rawURL string) {
	if f.robots == nil {
		return
	}
	u, err := url.Parse(rawURL)
	if err != nil || !f.robots.Unreachable(u.Host) {
		return
	}
	if _, seen := f.warned.LoadOrStore(u.Host, struct{}{}); !seen {
		f.logger.Warn("robots.txt unreachable; treated as allow-all", zap.String("host", u.Host))
	}
}

func pageTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: time.Second,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
	}
}
