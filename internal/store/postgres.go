package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/plotwise/landmatch/internal/db"
	"github.com/plotwise/landmatch/internal/geo"
	"github.com/plotwise/landmatch/internal/model"
)

// PostgresStore implements PlotStore using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const plotColumns = `land_number, plot_id, area, latitude, longitude, land_status, source_kind,
	confidence, attributes, cache_version, needs_revalidation, verification_source, last_verified`

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}

	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool; used by tests with pgxmock.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS plot_cache (
	land_number         TEXT PRIMARY KEY,
	plot_id             TEXT NOT NULL,
	area                TEXT NOT NULL,
	latitude            DOUBLE PRECISION NOT NULL,
	longitude           DOUBLE PRECISION NOT NULL,
	land_status         TEXT,
	source_kind         TEXT NOT NULL,
	confidence          DOUBLE PRECISION NOT NULL,
	attributes          JSONB,
	cache_version       INTEGER NOT NULL DEFAULT 1,
	needs_revalidation  BOOLEAN NOT NULL DEFAULT FALSE,
	verification_source TEXT NOT NULL DEFAULT 'user_search',
	last_verified       TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_plot_cache_area ON plot_cache(area);
CREATE INDEX IF NOT EXISTS idx_plot_cache_lat_lon ON plot_cache(latitude, longitude);
CREATE INDEX IF NOT EXISTS idx_plot_cache_reval ON plot_cache(needs_revalidation) WHERE needs_revalidation;

CREATE TABLE IF NOT EXISTS warming_log (
	area         TEXT PRIMARY KEY,
	id           UUID NOT NULL,
	warmed_at    TIMESTAMPTZ NOT NULL,
	record_count INTEGER NOT NULL DEFAULT 0
);
`

// Migrate applies the cache schema. Statements are idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// UpsertPlot writes an entry keyed by normalized land number. On conflict the
// row is replaced and its cache version incremented; a successful write also
// clears the revalidation flag, since the row was just re-verified.
func (s *PostgresStore) UpsertPlot(ctx context.Context, entry model.CacheEntry) (int, error) {
	r := entry.Record

	key := model.NormalizeLandNumber(r.LandNumber)
	if key == "" {
		return 0, eris.New("postgres: upsert: empty land number")
	}

	var attrs []byte
	if len(r.Attributes) > 0 {
		var err error
		attrs, err = json.Marshal(r.Attributes)
		if err != nil {
			return 0, eris.Wrap(err, "postgres: marshal attributes")
		}
	}

	var version int
	err := s.pool.QueryRow(ctx, `
		INSERT INTO plot_cache (`+plotColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1, FALSE, $10, $11)
		ON CONFLICT (land_number) DO UPDATE SET
			plot_id = EXCLUDED.plot_id,
			area = EXCLUDED.area,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			land_status = EXCLUDED.land_status,
			source_kind = EXCLUDED.source_kind,
			confidence = EXCLUDED.confidence,
			attributes = EXCLUDED.attributes,
			cache_version = plot_cache.cache_version + 1,
			needs_revalidation = FALSE,
			verification_source = EXCLUDED.verification_source,
			last_verified = EXCLUDED.last_verified
		RETURNING cache_version`,
		key, r.PlotID, r.Area, r.Latitude, r.Longitude, nilIfEmpty(r.LandStatus),
		string(r.SourceKind), r.ConfidenceScore, attrs,
		string(entry.VerificationSource), entry.LastVerified,
	).Scan(&version)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: upsert plot %s", key)
	}
	return version, nil
}

// BulkImport upserts entries through a temp table and COPY, one round trip
// for the whole batch. Conflicting rows are replaced and their version bumped.
func (s *PostgresStore) BulkImport(ctx context.Context, entries []model.CacheEntry) (int, error) {
	rows := make([][]any, 0, len(entries))
	for _, e := range entries {
		r := e.Record
		key := model.NormalizeLandNumber(r.LandNumber)
		if key == "" {
			continue
		}
		var attrs []byte
		if len(r.Attributes) > 0 {
			data, err := json.Marshal(r.Attributes)
			if err != nil {
				return 0, eris.Wrapf(err, "postgres: bulk import: marshal attributes for %s", key)
			}
			attrs = data
		}
		rows = append(rows, []any{
			key, r.PlotID, r.Area, r.Latitude, r.Longitude, nilIfEmpty(r.LandStatus),
			string(r.SourceKind), r.ConfidenceScore, attrs, 1, false,
			string(e.VerificationSource), e.LastVerified,
		})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table: "plot_cache",
		Columns: []string{
			"land_number", "plot_id", "area", "latitude", "longitude", "land_status",
			"source_kind", "confidence", "attributes", "cache_version",
			"needs_revalidation", "verification_source", "last_verified",
		},
		ConflictKeys: []string{"land_number"},
		SetExprs: map[string]string{
			"cache_version":      "plot_cache.cache_version + 1",
			"needs_revalidation": "FALSE",
		},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: bulk import")
	}
	return int(n), nil
}

// GetPlot returns the entry for a normalized land number.
func (s *PostgresStore) GetPlot(ctx context.Context, landNumber string) (*model.CacheEntry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+plotColumns+` FROM plot_cache WHERE land_number = $1`,
		model.NormalizeLandNumber(landNumber),
	)

	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "postgres: get plot %s", landNumber)
	}
	return entry, nil
}

// SearchRadius returns all cached plots within radiusMeters of center. A
// bounding-box index scan prefilters candidates; exact great-circle distance
// is applied in Go so both drivers share one distance definition.
func (s *PostgresStore) SearchRadius(ctx context.Context, center geo.Point, radiusMeters float64) ([]model.CacheEntry, error) {
	minLat, maxLat, minLon, maxLon := geo.BoundingBox(center, radiusMeters)

	rows, err := s.pool.Query(ctx,
		`SELECT `+plotColumns+` FROM plot_cache
		 WHERE latitude BETWEEN $1 AND $2 AND longitude BETWEEN $3 AND $4`,
		minLat, maxLat, minLon, maxLon,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: search radius")
	}
	defer rows.Close()

	var entries []model.CacheEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan radius row")
		}
		p := geo.Point{Latitude: entry.Record.Latitude, Longitude: entry.Record.Longitude}
		dist := geo.DistanceMeters(center, p)
		if dist > radiusMeters {
			continue
		}
		entry.Record.DistanceFromCenterMeters = dist
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate radius rows")
	}
	return entries, nil
}

// FlagRevalidation marks a row for background refresh.
func (s *PostgresStore) FlagRevalidation(ctx context.Context, landNumber string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE plot_cache SET needs_revalidation = TRUE WHERE land_number = $1`,
		model.NormalizeLandNumber(landNumber),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: flag revalidation %s", landNumber)
	}
	return nil
}

// LastWarmed returns the warming timestamp for an area, zero if never warmed.
func (s *PostgresStore) LastWarmed(ctx context.Context, area string) (time.Time, error) {
	var warmedAt time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT warmed_at FROM warming_log WHERE area = $1`, area,
	).Scan(&warmedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, eris.Wrapf(err, "postgres: last warmed %s", area)
	}
	return warmedAt, nil
}

// RecordWarming upserts the warming log row for an area.
func (s *PostgresStore) RecordWarming(ctx context.Context, area string, recordCount int, warmedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO warming_log (area, id, warmed_at, record_count)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (area) DO UPDATE SET
			warmed_at = EXCLUDED.warmed_at,
			record_count = EXCLUDED.record_count`,
		area, uuid.New().String(), warmedAt, recordCount,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: record warming %s", area)
	}
	return nil
}

// Stats aggregates cache counts by freshness, area, and source.
func (s *PostgresStore) Stats(ctx context.Context, ttl time.Duration) (*Stats, error) {
	stats := &Stats{
		ByArea:      make(map[string]int),
		BySource:    make(map[string]int),
		CollectedAt: time.Now().UTC(),
	}

	cutoff := stats.CollectedAt.Add(-ttl)
	err := s.pool.QueryRow(ctx, `
		SELECT count(*),
		       count(*) FILTER (WHERE last_verified >= $1),
		       count(*) FILTER (WHERE needs_revalidation)
		FROM plot_cache`, cutoff,
	).Scan(&stats.TotalEntries, &stats.FreshEntries, &stats.NeedsRevalidation)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stats totals")
	}
	stats.StaleEntries = stats.TotalEntries - stats.FreshEntries

	rows, err := s.pool.Query(ctx,
		`SELECT area, source_kind, count(*) FROM plot_cache GROUP BY area, source_kind`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stats groups")
	}
	defer rows.Close()

	for rows.Next() {
		var area, kind string
		var n int
		if err := rows.Scan(&area, &kind, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan stats row")
		}
		stats.ByArea[area] += n
		stats.BySource[kind] += n
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate stats rows")
	}
	return stats, nil
}

// scanEntry reads one plot_cache row in plotColumns order.
func scanEntry(row pgx.Row) (*model.CacheEntry, error) {
	var entry model.CacheEntry
	var landStatus *string
	var attrs []byte
	var sourceKind, verificationSource string

	err := row.Scan(
		&entry.Record.LandNumber, &entry.Record.PlotID, &entry.Record.Area,
		&entry.Record.Latitude, &entry.Record.Longitude, &landStatus,
		&sourceKind, &entry.Record.ConfidenceScore, &attrs,
		&entry.CacheVersion, &entry.NeedsRevalidation, &verificationSource,
		&entry.LastVerified,
	)
	if err != nil {
		return nil, err
	}

	if landStatus != nil {
		entry.Record.LandStatus = *landStatus
	}
	entry.Record.SourceKind = model.SourceKind(sourceKind)
	entry.Record.IsFallback = entry.Record.SourceKind == model.SourceFallback
	entry.VerificationSource = model.VerificationSource(verificationSource)

	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &entry.Record.Attributes); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal attributes")
		}
	}
	return &entry, nil
}

// nilIfEmpty returns nil for empty strings, allowing NULL storage.
func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
