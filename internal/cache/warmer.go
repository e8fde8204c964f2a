package cache

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/plotwise/landmatch/internal/geo"
	"github.com/plotwise/landmatch/internal/model"
	"github.com/plotwise/landmatch/internal/observability"
	"github.com/plotwise/landmatch/internal/store"
)

const (
	// DefaultCooldown gates re-warming of the same area.
	DefaultCooldown = 24 * time.Hour
	// DefaultBatchSize is how many writes happen between pauses.
	DefaultBatchSize = 10
	// DefaultPause is the fixed delay between batches, respecting upstream
	// rate limits.
	DefaultPause = time.Second
)

// SourceFetcher pulls live records for an area. The warmer only ever talks to
// the authoritative source through this function.
type SourceFetcher func(ctx context.Context, center geo.Point, radiusMeters float64) ([]model.PlotRecord, error)

// Warmer proactively populates the plot cache for a named area.
type Warmer struct {
	cache     *PlotCache
	store     store.PlotStore
	clock     clockwork.Clock
	metrics   *observability.Metrics
	cooldown  time.Duration
	batchSize int
	pause     time.Duration
}

// WarmerOption customizes a Warmer.
type WarmerOption func(*Warmer)

// WithCooldown overrides the per-area cooldown window.
func WithCooldown(d time.Duration) WarmerOption {
	return func(w *Warmer) { w.cooldown = d }
}

// WithPacing overrides how often and how long the warmer pauses between
// write batches.
func WithPacing(batchSize int, pause time.Duration) WarmerOption {
	return func(w *Warmer) {
		w.batchSize = batchSize
		w.pause = pause
	}
}

// WithWarmerClock injects the time source. Tests use a fake clock.
func WithWarmerClock(clk clockwork.Clock) WarmerOption {
	return func(w *Warmer) { w.clock = clk }
}

// WithWarmerMetrics wires warming instrumentation.
func WithWarmerMetrics(m *observability.Metrics) WarmerOption {
	return func(w *Warmer) { w.metrics = m }
}

// NewWarmer builds a Warmer writing through the given cache. The store handle
// is used for the per-area warming log.
func NewWarmer(c *PlotCache, st store.PlotStore, opts ...WarmerOption) *Warmer {
	w := &Warmer{
		cache:     c,
		store:     st,
		clock:     clockwork.NewRealClock(),
		cooldown:  DefaultCooldown,
		batchSize: DefaultBatchSize,
		pause:     DefaultPause,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WarmArea populates the cache for one area. If the area was warmed within
// the cooldown window it is a no-op returning 0 without calling fetch.
// Returns the number of records written.
func (w *Warmer) WarmArea(ctx context.Context, area string, center geo.Point, radiusMeters float64, fetch SourceFetcher) (int, error) {
	lastWarmed, err := w.store.LastWarmed(ctx, area)
	if err != nil {
		return 0, eris.Wrapf(err, "warmer: read warming log for %s", area)
	}
	now := w.clock.Now()
	if !lastWarmed.IsZero() && now.Sub(lastWarmed) < w.cooldown {
		zap.L().Info("area within warming cooldown, skipping",
			zap.String("area", area),
			zap.Time("last_warmed", lastWarmed))
		return 0, nil
	}

	records, err := fetch(ctx, center, radiusMeters)
	if err != nil {
		return 0, eris.Wrapf(err, "warmer: fetch %s", area)
	}

	written := 0
	for i, rec := range records {
		if i > 0 && i%w.batchSize == 0 {
			select {
			case <-ctx.Done():
				return written, eris.Wrapf(ctx.Err(), "warmer: canceled after %d records", written)
			case <-w.clock.After(w.pause):
			}
		}
		if _, err := w.cache.SetPlotData(ctx, rec, model.VerifyAPIWebhook); err != nil {
			// One bad record does not abort the sweep.
			zap.L().Warn("warming write failed",
				zap.String("area", area),
				zap.String("land_number", rec.LandNumber),
				zap.Error(err))
			continue
		}
		written++
	}

	if err := w.store.RecordWarming(ctx, area, written, w.clock.Now()); err != nil {
		return written, eris.Wrapf(err, "warmer: record warming for %s", area)
	}
	if w.metrics != nil {
		w.metrics.WarmedRecords.Add(float64(written))
	}
	zap.L().Info("area warmed",
		zap.String("area", area),
		zap.Int("records", written))
	return written, nil
}
