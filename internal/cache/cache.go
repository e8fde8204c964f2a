// Package cache implements the two-tier plot cache: a bounded in-memory LRU
// in front of the durable store, with TTL tiers, stale-while-revalidate, and
// proactive per-area warming.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/plotwise/landmatch/internal/areas"
	"github.com/plotwise/landmatch/internal/geo"
	"github.com/plotwise/landmatch/internal/model"
	"github.com/plotwise/landmatch/internal/observability"
	"github.com/plotwise/landmatch/internal/store"
)

// DefaultCapacity bounds the in-memory tier.
const DefaultCapacity = 500

// flagTimeout bounds the fire-and-forget revalidation write so an unhealthy
// store cannot pile up goroutines.
const flagTimeout = 5 * time.Second

// TTLPolicy groups the freshness windows by data volatility class. A record
// obeys the tightest tier applicable to its fields.
type TTLPolicy struct {
	// GeneralAttributes governs records carrying provider attributes,
	// which churn the fastest.
	GeneralAttributes time.Duration
	// LandStatus governs status-bearing records without attributes.
	LandStatus time.Duration
	// Coordinates governs bare-coordinate records; plot geometry is the
	// most stable thing we hold.
	Coordinates time.Duration
	// StaleGrace is the window past TTL during which an expired entry may
	// still be served if the caller opts in.
	StaleGrace time.Duration
}

// DefaultTTLPolicy returns the production freshness windows.
func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		GeneralAttributes: 7 * 24 * time.Hour,
		LandStatus:        30 * 24 * time.Hour,
		Coordinates:       90 * 24 * time.Hour,
		StaleGrace:        48 * time.Hour,
	}
}

// TTLFor picks the tightest tier applicable to a record.
func (p TTLPolicy) TTLFor(r model.PlotRecord) time.Duration {
	if len(r.Attributes) > 0 {
		return p.GeneralAttributes
	}
	if r.LandStatus != "" {
		return p.LandStatus
	}
	return p.Coordinates
}

// Tier names which cache tier satisfied a lookup.
type Tier string

const (
	TierMemory  Tier = "memory"
	TierDurable Tier = "durable"
)

// LookupOptions control a single read.
type LookupOptions struct {
	// ForceRefresh bypasses both tiers entirely; the caller intends to
	// query live sources and write through.
	ForceRefresh bool
	// AllowStale permits serving an expired entry within the grace window;
	// the durable row is flagged for revalidation in the background.
	AllowStale bool
}

// LookupResult is a cache hit. A nil result is a miss.
type LookupResult struct {
	Entry model.CacheEntry
	Tier  Tier
	Stale bool
}

// PlotCache is the two-tier cache. It is safe for concurrent use and scoped
// to one service instance; cross-instance consistency is the durable store's
// upsert semantics.
type PlotCache struct {
	store   store.PlotStore
	areas   *areas.Table
	memory  *memoryTier
	policy  TTLPolicy
	clock   clockwork.Clock
	metrics *observability.Metrics
}

// Option customizes a PlotCache.
type Option func(*PlotCache)

// WithCapacity overrides the in-memory tier bound.
func WithCapacity(n int) Option {
	return func(c *PlotCache) { c.memory = newMemoryTier(n) }
}

// WithTTLPolicy overrides the freshness windows.
func WithTTLPolicy(p TTLPolicy) Option {
	return func(c *PlotCache) { c.policy = p }
}

// WithClock injects the time source. Tests use a fake clock.
func WithClock(clk clockwork.Clock) Option {
	return func(c *PlotCache) { c.clock = clk }
}

// WithMetrics wires cache instrumentation.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *PlotCache) { c.metrics = m }
}

// New builds a PlotCache over the given durable store and area table.
func New(st store.PlotStore, tbl *areas.Table, opts ...Option) *PlotCache {
	c := &PlotCache{
		store:  st,
		areas:  tbl,
		memory: newMemoryTier(DefaultCapacity),
		policy: DefaultTTLPolicy(),
		clock:  clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type freshness int

const (
	fresh freshness = iota
	staleWithinGrace
	expired
)

func (c *PlotCache) freshnessOf(e model.CacheEntry, now time.Time) freshness {
	age := now.Sub(e.LastVerified)
	ttl := c.policy.TTLFor(e.Record)
	switch {
	case age < ttl:
		return fresh
	case age < ttl+c.policy.StaleGrace:
		return staleWithinGrace
	default:
		return expired
	}
}

// GetPlotData looks a plot up by land number. A nil result means the caller
// must query live sources; store read failures are logged and treated as
// misses so the request can fail open.
func (c *PlotCache) GetPlotData(ctx context.Context, landNumber string, opts LookupOptions) *LookupResult {
	key := model.NormalizeLandNumber(landNumber)
	if key == "" {
		return nil
	}
	if opts.ForceRefresh {
		c.countLookup(TierMemory, "miss")
		return nil
	}

	now := c.clock.Now()
	if entry, ok := c.memory.get(key); ok {
		switch c.freshnessOf(entry, now) {
		case fresh:
			c.countLookup(TierMemory, "hit")
			return &LookupResult{Entry: entry, Tier: TierMemory}
		case staleWithinGrace:
			if opts.AllowStale {
				c.countLookup(TierMemory, "stale")
				c.flagAsync(key)
				return &LookupResult{Entry: entry, Tier: TierMemory, Stale: true}
			}
		}
	}

	entry, err := c.store.GetPlot(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			zap.L().Warn("durable cache read failed, treating as miss",
				zap.String("land_number", key), zap.Error(err))
		}
		c.countLookup(TierDurable, "miss")
		return nil
	}

	switch c.freshnessOf(*entry, now) {
	case fresh:
		c.warmMemory(key, *entry)
		c.countLookup(TierDurable, "hit")
		return &LookupResult{Entry: *entry, Tier: TierDurable}
	case staleWithinGrace:
		if opts.AllowStale {
			c.warmMemory(key, *entry)
			c.countLookup(TierDurable, "stale")
			c.flagAsync(key)
			return &LookupResult{Entry: *entry, Tier: TierDurable, Stale: true}
		}
	}
	c.countLookup(TierDurable, "miss")
	return nil
}

// SetPlotData writes a record through both tiers. The area is canonicalized
// before the write so the durable store never holds a raw free-text area.
// The returned entry carries the post-write cache version.
func (c *PlotCache) SetPlotData(ctx context.Context, record model.PlotRecord, src model.VerificationSource) (model.CacheEntry, error) {
	record.Area = c.areas.Canonical(record.Area)

	entry := model.CacheEntry{
		Record:             record,
		LastVerified:       c.clock.Now().UTC(),
		VerificationSource: src,
	}
	version, err := c.store.UpsertPlot(ctx, entry)
	if err != nil {
		return model.CacheEntry{}, eris.Wrapf(err, "cache: write through %s", record.LandNumber)
	}
	entry.CacheVersion = version

	c.memory.put(model.NormalizeLandNumber(record.LandNumber), entry)
	c.updateGauge()
	return entry, nil
}

// SearchCached returns the durable entries within the radius that are still
// servable under the TTL policy. Stale-within-grace entries are included only
// when allowStale is set, and are flagged for revalidation.
func (c *PlotCache) SearchCached(ctx context.Context, center geo.Point, radiusMeters float64, allowStale bool) ([]model.CacheEntry, error) {
	entries, err := c.store.SearchRadius(ctx, center, radiusMeters)
	if err != nil {
		return nil, eris.Wrap(err, "cache: radius search")
	}

	now := c.clock.Now()
	servable := make([]model.CacheEntry, 0, len(entries))
	for _, e := range entries {
		switch c.freshnessOf(e, now) {
		case fresh:
			servable = append(servable, e)
		case staleWithinGrace:
			if allowStale {
				c.flagAsync(model.NormalizeLandNumber(e.Record.LandNumber))
				servable = append(servable, e)
			}
		}
	}
	return servable, nil
}

// Invalidate drops the in-memory entry and flags the durable row for
// revalidation. The durable row itself is never deleted.
func (c *PlotCache) Invalidate(ctx context.Context, landNumber string) error {
	key := model.NormalizeLandNumber(landNumber)
	c.memory.remove(key)
	c.updateGauge()
	if err := c.store.FlagRevalidation(ctx, key); err != nil {
		return eris.Wrapf(err, "cache: invalidate %s", key)
	}
	return nil
}

// MemoryStats describes the in-memory tier for the diagnostic endpoint.
type MemoryStats struct {
	Entries  int `json:"entries"`
	Capacity int `json:"capacity"`
}

func (c *PlotCache) MemoryStats() MemoryStats {
	return MemoryStats{Entries: c.memory.len(), Capacity: c.memory.capacity}
}

// StoreStats aggregates durable-tier counts. The fresh/stale boundary uses
// the general-attribute tier, the tightest window in the policy.
func (c *PlotCache) StoreStats(ctx context.Context) (*store.Stats, error) {
	return c.store.Stats(ctx, c.policy.GeneralAttributes)
}

// TTLPolicy returns the active freshness windows.
func (c *PlotCache) TTLPolicy() TTLPolicy {
	return c.policy
}

func (c *PlotCache) warmMemory(key string, entry model.CacheEntry) {
	c.memory.put(key, entry)
	c.updateGauge()
}

// flagAsync marks the durable row for revalidation without blocking the
// caller. Failures are logged, never surfaced.
func (c *PlotCache) flagAsync(key string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), flagTimeout)
		defer cancel()
		if err := c.store.FlagRevalidation(ctx, key); err != nil {
			zap.L().Warn("failed to flag revalidation",
				zap.String("land_number", key), zap.Error(err))
		}
	}()
}

func (c *PlotCache) countLookup(tier Tier, result string) {
	if c.metrics == nil {
		return
	}
	c.metrics.CacheLookups.WithLabelValues(string(tier), result).Inc()
}

func (c *PlotCache) updateGauge() {
	if c.metrics == nil {
		return
	}
	c.metrics.CacheEntries.Set(float64(c.memory.len()))
}
