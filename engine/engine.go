// Package engine drives result collection across pages.
//
// One Engine run executes a single traversal strategy — pagination,
// infinite scroll, or breadth-first link traversal — feeding each page's
// items to a sink. Every remote action is preceded by the rate limiter
// and wrapped by the retry policy. A failure that exhausts retries
// aborts the run but returns whatever items were already sunk: progress
// made before a fatal failure is never discarded.
package engine

import (
	"context"
	"time"

	"github.com/drover-io/drover/log"
	"github.com/drover-io/drover/metrics"
	"github.com/drover-io/drover/pace"
	"github.com/drover-io/drover/types"
)

// Strategy selects the traversal variant. Dispatched once per run.
type Strategy string

const (
	// StrategyPagination advances through numbered result pages.
	StrategyPagination Strategy = "pagination"
	// StrategyInfiniteScroll scrolls a feed until it stops growing.
	StrategyInfiniteScroll Strategy = "infinite_scroll"
	// StrategyDepth walks links breadth-first from a seed URL.
	StrategyDepth Strategy = "depth"
)

// Valid reports whether s names a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyPagination, StrategyInfiniteScroll, StrategyDepth:
		return true
	}
	return false
}

// PageDriver abstracts the remote actions a traversal needs. The task
// layer implements it on top of the correlation bridge.
type PageDriver interface {
	// ExtractPage returns the items currently visible on the page.
	ExtractPage(ctx context.Context) ([]map[string]any, error)
	// NextPage advances to the next result page.
	// Returns false when there is no next page.
	NextPage(ctx context.Context) (bool, error)
	// ScrollToBottom scrolls the page to its bottom.
	ScrollToBottom(ctx context.Context) error
	// Navigate loads the given URL.
	Navigate(ctx context.Context, url string) error
	// ExtractLinks returns the outbound links on the current page.
	ExtractLinks(ctx context.Context) ([]string, error)
}

// Sink receives each page's items as they are collected.
type Sink func(items []map[string]any) error

// ProgressFunc observes traversal progress events.
type ProgressFunc func(event string, data map[string]any)

// Options configures one Engine run.
type Options struct {
	// Strategy is the traversal variant; required.
	Strategy Strategy
	// MaxItems is the hard item cap (default 50).
	MaxItems int
	// MaxPages is the pagination page cap (default 5).
	MaxPages int
	// MaxDepth is the depth-traversal depth cap (default 2).
	MaxDepth int
	// MaxVisited caps the visited set in depth traversal (default 100).
	MaxVisited int
	// SameDomainOnly restricts depth traversal to the seed's domain.
	SameDomainOnly bool
	// StartURL seeds depth traversal; required for StrategyDepth.
	StartURL string
	// ScrollDelay is the wait after each scroll (default 1s).
	ScrollDelay time.Duration
	// StableStreak is the number of consecutive extracts with an
	// unchanged item count that ends infinite scroll (default 3).
	StableStreak int
}

func (o *Options) withDefaults() Options {
	opts := *o
	if opts.MaxItems <= 0 {
		opts.MaxItems = 50
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 5
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 2
	}
	if opts.MaxVisited <= 0 {
		opts.MaxVisited = 100
	}
	if opts.ScrollDelay <= 0 {
		opts.ScrollDelay = time.Second
	}
	if opts.StableStreak <= 0 {
		opts.StableStreak = 3
	}
	return opts
}

// TraversalContext is the mutable state of one run. Owned exclusively
// by that run and discarded at its end. Visited only grows.
type TraversalContext struct {
	Strategy       Strategy
	Visited        map[string]struct{}
	ItemsCollected int
	PagesVisited   int
	CurrentDepth   int
	StableStreak   int
}

// Engine runs one traversal strategy to completion.
type Engine struct {
	driver    PageDriver
	sink      Sink
	limiter   pace.RateLimiter
	retry     pace.RetryPolicy
	progress  ProgressFunc
	logger    *log.Logger
	collector *metrics.Collector
	sleep     pace.SleepFunc
}

// Config assembles an Engine.
type Config struct {
	// Driver performs the remote actions; required.
	Driver PageDriver
	// Sink receives collected items; required.
	Sink Sink
	// Limiter paces actions against the remote executor.
	Limiter pace.RateLimiter
	// Retry wraps each action.
	Retry pace.RetryPolicy
	// Progress observes traversal progress; may be nil.
	Progress ProgressFunc
	// Logger is required.
	Logger *log.Logger
	// Collector receives traversal counters; may be nil.
	Collector *metrics.Collector
	// Sleep is the suspend function; nil means real sleeping.
	Sleep pace.SleepFunc
}

// New creates an Engine.
func New(cfg Config) *Engine {
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = pace.Sleep
	}
	return &Engine{
		driver:    cfg.Driver,
		sink:      cfg.Sink,
		limiter:   cfg.Limiter,
		retry:     cfg.Retry,
		progress:  cfg.Progress,
		logger:    cfg.Logger,
		collector: cfg.Collector,
		sleep:     sleep,
	}
}

// Run executes the configured strategy and returns all collected items.
// On failure the returned slice still holds everything sunk so far.
func (e *Engine) Run(ctx context.Context, opts Options) ([]map[string]any, error) {
	if !opts.Strategy.Valid() {
		return nil, types.NewTaskError(types.CodeConfigError, "unknown iteration strategy: %q", opts.Strategy)
	}
	resolved := opts.withDefaults()

	tc := &TraversalContext{
		Strategy: resolved.Strategy,
		Visited:  make(map[string]struct{}),
	}

	switch resolved.Strategy {
	case StrategyPagination:
		return e.runPagination(ctx, resolved, tc)
	case StrategyInfiniteScroll:
		return e.runInfiniteScroll(ctx, resolved, tc)
	default:
		return e.runDepth(ctx, resolved, tc)
	}
}

// act applies the rate limiter then the retry policy to one remote
// action. Retries are counted on the collector.
func (e *Engine) act(ctx context.Context, op func(ctx context.Context) error) error {
	if err := e.limiter.Wait(ctx); err != nil {
		return err
	}
	retry := e.retry
	prev := retry.OnRetry
	retry.OnRetry = func(attempt int, err error) {
		e.collector.IncRetries()
		if prev != nil {
			prev(attempt, err)
		}
	}
	return retry.Run(ctx, op)
}

// extract runs the extraction action under pacing and retry.
func (e *Engine) extract(ctx context.Context) ([]map[string]any, error) {
	var items []map[string]any
	err := e.act(ctx, func(ctx context.Context) error {
		var opErr error
		items, opErr = e.driver.ExtractPage(ctx)
		return opErr
	})
	return items, err
}

// collect sinks items and updates the traversal context.
func (e *Engine) collect(tc *TraversalContext, results *[]map[string]any, items []map[string]any) error {
	if len(items) == 0 {
		return nil
	}
	if err := e.sink(items); err != nil {
		return err
	}
	*results = append(*results, items...)
	tc.ItemsCollected += len(items)
	e.collector.AddItems(len(items))
	return nil
}

func (e *Engine) emit(event string, data map[string]any) {
	if e.progress != nil {
		e.progress(event, data)
	}
}
