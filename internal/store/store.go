// Package store implements the durable tier of the plot cache: upsert-by-key
// plot rows, radius search, revalidation flagging, and the per-area warming
// log. Postgres is the production driver; SQLite serves local development.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/plotwise/landmatch/internal/geo"
	"github.com/plotwise/landmatch/internal/model"
)

// ErrNotFound is returned when no row exists for the requested key.
var ErrNotFound = eris.New("store: not found")

// Stats is the point-in-time view served by the diagnostic endpoint.
type Stats struct {
	TotalEntries      int            `json:"total_entries"`
	FreshEntries      int            `json:"fresh_entries"`
	StaleEntries      int            `json:"stale_entries"`
	NeedsRevalidation int            `json:"needs_revalidation"`
	ByArea            map[string]int `json:"by_area"`
	BySource          map[string]int `json:"by_source"`
	CollectedAt       time.Time      `json:"collected_at"`
}

// PlotStore is the persistence interface for the plot cache.
//
// Upserts are last-write-wins on the normalized land number; that upsert
// semantic is the only cross-instance consistency mechanism, there is no
// distributed locking. Rows are never deleted by the service: invalidation
// flags them for revalidation instead, durable data is evidence.
type PlotStore interface {
	// UpsertPlot writes a cache entry, inserting or replacing the row for
	// its land number and incrementing the stored cache version. Returns
	// the version after the write.
	UpsertPlot(ctx context.Context, entry model.CacheEntry) (int, error)

	// BulkImport upserts many entries at once, for operator-driven ingest.
	// Entries without a usable land number are skipped. Returns the number
	// of rows written.
	BulkImport(ctx context.Context, entries []model.CacheEntry) (int, error)

	// GetPlot returns the entry for a normalized land number, or ErrNotFound.
	GetPlot(ctx context.Context, landNumber string) (*model.CacheEntry, error)

	// SearchRadius returns all entries within radiusMeters of center, with
	// each record's distance from center populated.
	SearchRadius(ctx context.Context, center geo.Point, radiusMeters float64) ([]model.CacheEntry, error)

	// FlagRevalidation marks the row for background refresh. Missing rows
	// are a no-op, not an error.
	FlagRevalidation(ctx context.Context, landNumber string) error

	// LastWarmed returns when the area was last proactively warmed, or the
	// zero time if never.
	LastWarmed(ctx context.Context, area string) (time.Time, error)

	// RecordWarming upserts the warming log row for an area (one row per
	// area, last-write-wins).
	RecordWarming(ctx context.Context, area string, recordCount int, warmedAt time.Time) error

	// Stats aggregates cache counts by freshness, area, and source. ttl
	// decides the fresh/stale boundary.
	Stats(ctx context.Context, ttl time.Duration) (*Stats, error)

	// Lifecycle.
	Migrate(ctx context.Context) error
	Close() error
}
