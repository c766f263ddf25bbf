package rates

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTTL     = 24 * time.Hour
	DefaultTimeout = 10 * time.Second

	slotKey = "latest"
)

// Cache holds a single rate snapshot and refreshes it from a Source once it is
// older than the freshness window. A failed refresh is returned to the caller;
// the previous snapshot is never served in its place.
type Cache struct {
	source  Source
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time
	log     *slog.Logger

	group singleflight.Group

	mu   sync.RWMutex
	snap *Snapshot
}

type Option func(*Cache)

func WithTTL(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithTimeout bounds each upstream fetch.
func WithTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.log = l
		}
	}
}

func NewCache(source Source, opts ...Option) *Cache {
	c := &Cache{
		source:  source,
		ttl:     DefaultTTL,
		timeout: DefaultTimeout,
		now:     time.Now,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Convert returns amount expressed in currency to, given it is expressed in
// currency from. Codes are case-insensitive.
func (c *Cache) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	snap, err := c.Latest(ctx)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("convert %s to %s: %w", from, to, err)
	}

	from, to = strings.ToUpper(strings.TrimSpace(from)), strings.ToUpper(strings.TrimSpace(to))
	fromRate, ok := snap.Rates[from]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("convert: %w: %q", ErrUnknownCurrency, from)
	}
	toRate, ok := snap.Rates[to]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("convert: %w: %q", ErrUnknownCurrency, to)
	}

	return amount.Div(fromRate).Mul(toRate), nil
}

// Latest returns a fresh snapshot, refreshing it first when needed. Concurrent
// callers share a single upstream fetch.
func (c *Cache) Latest(ctx context.Context) (Snapshot, error) {
	if snap, ok := c.fresh(); ok {
		return snap, nil
	}

	ch := c.group.DoChan(slotKey, func() (any, error) {
		// Another flight may have completed between the check above and now.
		if snap, ok := c.fresh(); ok {
			return snap, nil
		}
		return c.refresh(ctx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return Snapshot{}, res.Err
		}
		return res.Val.(Snapshot), nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// Snapshot returns the cached snapshot, fresh or not, without contacting the source.
func (c *Cache) Snapshot() (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap == nil {
		return Snapshot{}, false
	}
	return cloneSnapshot(*c.snap), true
}

func (c *Cache) fresh() (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap == nil || c.now().Sub(c.snap.FetchedAt) >= c.ttl {
		return Snapshot{}, false
	}
	return *c.snap, true
}

func (c *Cache) refresh(ctx context.Context) (Snapshot, error) {
	// The fetch is shared, so it must outlive any single caller giving up.
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	start := c.now()
	snap, err := c.fetch(fetchCtx)
	if err != nil {
		if !errors.Is(err, ErrUpstreamUnavailable) {
			err = fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
		}
		c.log.ErrorContext(ctx, "Exchange rate refresh failed", "error", err)
		return Snapshot{}, err
	}

	snap.Rates = normalize(snap.Rates)
	snap.FetchedAt = c.now()

	c.mu.Lock()
	c.snap = &snap
	c.mu.Unlock()

	c.log.InfoContext(ctx, "Exchange rates refreshed",
		"base", snap.Base,
		"currencies", len(snap.Rates),
		"duration", c.now().Sub(start))
	return snap, nil
}

// fetch returns when the source does or when ctx expires, whichever is first,
// so a source that ignores its context still cannot hang callers.
func (c *Cache) fetch(ctx context.Context) (Snapshot, error) {
	type result struct {
		snap Snapshot
		err  error
	}
	done := make(chan result, 1)
	go func() {
		snap, err := c.source.Fetch(ctx)
		done <- result{snap, err}
	}()

	select {
	case r := <-done:
		return r.snap, r.err
	case <-ctx.Done():
		return Snapshot{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, ctx.Err())
	}
}

func normalize(rates map[string]decimal.Decimal) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(rates))
	for code, rate := range rates {
		if rate.IsPositive() {
			out[strings.ToUpper(code)] = rate
		}
	}
	return out
}

func cloneSnapshot(s Snapshot) Snapshot {
	s.Rates = maps.Clone(s.Rates)
	return s
}
