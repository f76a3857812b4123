// Package fetch downloads large URL sets concurrently, re-trying server
// failures in whole passes.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/i474232898/weather-diary/internal/observability"
)

// DefaultRetryPasses is how many passes re-attempt failed URLs after the
// initial one.
const DefaultRetryPasses = 20

var errServerStatus = errors.New("server error")

// Page is a fetched response. Any status below 500 counts as fetched.
type Page struct {
	URL    string
	Status int
	Body   []byte
	// Pass is 0 for the initial pass, n for the n-th retry pass.
	Pass int
}

// Config controls an Engine.
type Config struct {
	RetryPasses int
	// MaxInFlight caps concurrent requests per pass; 0 means no cap.
	MaxInFlight int
	Headers     map[string]string
	UserAgents  []string
}

// Engine issues GET requests in passes with a barrier between them.
type Engine struct {
	client  *http.Client
	cfg     Config
	logger  *slog.Logger
	metrics *observability.Metrics
}

func NewEngine(client *http.Client, cfg Config, logger *slog.Logger, metrics *observability.Metrics) *Engine {
	if client == nil {
		client = http.DefaultClient
	}
	if cfg.RetryPasses < 0 {
		cfg.RetryPasses = 0
	}
	return &Engine{
		client:  client,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
	}
}

// FetchAll retrieves every URL. URLs that fail with a 5xx status or a
// transport error are re-attempted in up to RetryPasses further passes;
// whatever still fails after the last pass is logged and left out. Each URL
// appears at most once in the result, in no particular order.
func (e *Engine) FetchAll(ctx context.Context, urls []string) ([]Page, error) {
	var (
		mu    sync.Mutex
		pages = make([]Page, 0, len(urls))
	)
	collect := func(p Page) {
		mu.Lock()
		pages = append(pages, p)
		mu.Unlock()
	}

	retry := NewRetrySet()
	if err := e.runPass(ctx, 0, urls, retry, collect); err != nil {
		return pages, err
	}

	for pass := 1; pass <= e.cfg.RetryPasses && retry.Len() > 0; pass++ {
		pending := retry.Snapshot()
		e.logger.Info("retrying failed urls", "pass", pass, "count", len(pending))
		e.metrics.FetchRetries.Add(float64(len(pending)))
		if err := e.runPass(ctx, pass, pending, retry, collect); err != nil {
			return pages, err
		}
	}

	for _, u := range retry.Snapshot() {
		e.logger.Warn("abandoning url", "url", u, "passes", e.cfg.RetryPasses)
		e.metrics.FetchAbandoned.Inc()
	}
	return pages, nil
}

// runPass fetches urls concurrently and returns once every request resolved.
func (e *Engine) runPass(ctx context.Context, pass int, urls []string, retry *RetrySet, collect func(Page)) error {
	start := time.Now()
	defer func() { e.metrics.FetchPassDuration.Observe(time.Since(start).Seconds()) }()

	var g errgroup.Group
	if e.cfg.MaxInFlight > 0 {
		g.SetLimit(e.cfg.MaxInFlight)
	}

	for _, u := range urls {
		g.Go(func() error {
			page, err := e.get(ctx, u)
			if err != nil {
				retry.Add(u)
				e.logger.Debug("fetch failed", "url", u, "pass", pass, "error", err)
				return nil
			}
			retry.Remove(u)
			page.Pass = pass
			e.metrics.PagesFetched.WithLabelValues(statusClass(page.Status)).Inc()
			collect(page)
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

func (e *Engine) get(ctx context.Context, url string) (Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Page{}, err
	}
	for k, v := range e.cfg.Headers {
		req.Header.Set(k, v)
	}
	if ua := e.userAgent(); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return Page{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return Page{}, fmt.Errorf("%w: %d", errServerStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Page{}, fmt.Errorf("read body: %w", err)
	}
	return Page{URL: url, Status: resp.StatusCode, Body: body}, nil
}

func (e *Engine) userAgent() string {
	if len(e.cfg.UserAgents) == 0 {
		return ""
	}
	return e.cfg.UserAgents[rand.IntN(len(e.cfg.UserAgents))]
}

func statusClass(status int) string {
	return fmt.Sprintf("%dxx", status/100)
}
