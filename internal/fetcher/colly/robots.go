package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/beer-ratings-crawler/internal/crawler"
)

const allowAllRobots = "User-agent: *\nAllow: /"

// robotsGate fronts the page transport when robots.txt is honoured. colly
// asks for robots.txt once per host through it. Probes that keep timing out
// are answered with an allow-all file and the host is remembered as
// unreachable, so a flaky robots.txt never stalls the crawl.
type robotsGate struct {
	next    http.RoundTripper
	backoff []time.Duration
	sleeper crawler.Sleeper

	mu          sync.Mutex
	unreachable map[string]bool
}

func newRobotsGate(next http.RoundTripper) *robotsGate {
	return &robotsGate{
		next:        next,
		backoff:     []time.Duration{250 * time.Millisecond, 500 * time.Millisecond, time.Second},
		sleeper:     crawler.TimerSleeper{},
		unreachable: make(map[string]bool),
	}
}

func (g *robotsGate) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil || req.URL == nil {
		return nil, errors.New("robots gate: nil request")
	}
	if !strings.EqualFold(req.URL.Path, "/robots.txt") {
		return g.next.RoundTrip(req)
	}
	return g.probe(req)
}

func (g *robotsGate) probe(req *http.Request) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		resp, err := g.next.RoundTrip(req.Clone(req.Context()))
		if err == nil {
			return resp, nil
		}
		if !isTimeout(err) {
			return nil, fmt.Errorf("robots.txt probe: %w", err)
		}
		if attempt == len(g.backoff) {
			break
		}
		if err := g.sleeper.Sleep(req.Context(), g.backoff[attempt]); err != nil {
			return nil, fmt.Errorf("robots.txt probe: %w", err)
		}
	}

	g.mu.Lock()
	g.unreachable[req.URL.Host] = true
	g.mu.Unlock()
	return &http.Response{
		StatusCode:    http.StatusOK,
		Status:        "200 OK",
		Body:          io.NopCloser(strings.NewReader(allowAllRobots)),
		ContentLength: int64(len(allowAllRobots)),
		Header:        make(http.Header),
		Request:       req,
	}, nil
}

// Unreachable reports whether host's robots.txt was replaced by allow-all.
func (g *robotsGate) Unreachable(host string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.unreachable[host]
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "tls: handshake timeout")
}
