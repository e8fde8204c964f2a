package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/plotwise/landmatch/internal/geo"
	"github.com/plotwise/landmatch/internal/model"
)

// SQLiteStore implements PlotStore using modernc.org/sqlite. It exists for
// local development and tests; production runs on Postgres.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: sqlDB}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS plot_cache (
	land_number         TEXT PRIMARY KEY,
	plot_id             TEXT NOT NULL,
	area                TEXT NOT NULL,
	latitude            REAL NOT NULL,
	longitude           REAL NOT NULL,
	land_status         TEXT,
	source_kind         TEXT NOT NULL,
	confidence          REAL NOT NULL,
	attributes          TEXT,
	cache_version       INTEGER NOT NULL DEFAULT 1,
	needs_revalidation  INTEGER NOT NULL DEFAULT 0,
	verification_source TEXT NOT NULL DEFAULT 'user_search',
	last_verified       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_plot_cache_area ON plot_cache(area);
CREATE INDEX IF NOT EXISTS idx_plot_cache_lat_lon ON plot_cache(latitude, longitude);

CREATE TABLE IF NOT EXISTS warming_log (
	area         TEXT PRIMARY KEY,
	id           TEXT NOT NULL,
	warmed_at    TEXT NOT NULL,
	record_count INTEGER NOT NULL DEFAULT 0
);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertPlot(ctx context.Context, entry model.CacheEntry) (int, error) {
	return upsertPlotTx(ctx, s.db, entry)
}

// rowQuerier is satisfied by *sql.DB and *sql.Tx.
type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func upsertPlotTx(ctx context.Context, q rowQuerier, entry model.CacheEntry) (int, error) {
	r := entry.Record

	key := model.NormalizeLandNumber(r.LandNumber)
	if key == "" {
		return 0, eris.New("sqlite: upsert: empty land number")
	}

	var attrs any
	if len(r.Attributes) > 0 {
		data, err := json.Marshal(r.Attributes)
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: marshal attributes")
		}
		attrs = string(data)
	}

	var version int
	err := q.QueryRowContext(ctx, `
		INSERT INTO plot_cache (land_number, plot_id, area, latitude, longitude, land_status,
			source_kind, confidence, attributes, cache_version, needs_revalidation,
			verification_source, last_verified)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, 0, ?, ?)
		ON CONFLICT (land_number) DO UPDATE SET
			plot_id = excluded.plot_id,
			area = excluded.area,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			land_status = excluded.land_status,
			source_kind = excluded.source_kind,
			confidence = excluded.confidence,
			attributes = excluded.attributes,
			cache_version = plot_cache.cache_version + 1,
			needs_revalidation = 0,
			verification_source = excluded.verification_source,
			last_verified = excluded.last_verified
		RETURNING cache_version`,
		key, r.PlotID, r.Area, r.Latitude, r.Longitude, nilIfEmpty(r.LandStatus),
		string(r.SourceKind), r.ConfidenceScore, attrs,
		string(entry.VerificationSource), entry.LastVerified.UTC().Format(time.RFC3339Nano),
	).Scan(&version)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: upsert plot %s", key)
	}
	return version, nil
}

// BulkImport upserts entries one statement at a time inside a transaction.
// SQLite has no COPY; at local-development volumes this is fine.
func (s *SQLiteStore) BulkImport(ctx context.Context, entries []model.CacheEntry) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: bulk import: begin tx")
	}
	defer tx.Rollback()

	written := 0
	for _, e := range entries {
		if model.NormalizeLandNumber(e.Record.LandNumber) == "" {
			continue
		}
		if _, err := upsertPlotTx(ctx, tx, e); err != nil {
			return 0, eris.Wrap(err, "sqlite: bulk import")
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: bulk import: commit")
	}
	return written, nil
}

func (s *SQLiteStore) GetPlot(ctx context.Context, landNumber string) (*model.CacheEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT land_number, plot_id, area, latitude, longitude, land_status, source_kind,
		       confidence, attributes, cache_version, needs_revalidation, verification_source, last_verified
		FROM plot_cache WHERE land_number = ?`,
		model.NormalizeLandNumber(landNumber),
	)

	entry, err := scanSQLiteEntry(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "sqlite: get plot %s", landNumber)
	}
	return entry, nil
}

func (s *SQLiteStore) SearchRadius(ctx context.Context, center geo.Point, radiusMeters float64) ([]model.CacheEntry, error) {
	minLat, maxLat, minLon, maxLon := geo.BoundingBox(center, radiusMeters)

	rows, err := s.db.QueryContext(ctx, `
		SELECT land_number, plot_id, area, latitude, longitude, land_status, source_kind,
		       confidence, attributes, cache_version, needs_revalidation, verification_source, last_verified
		FROM plot_cache
		WHERE latitude BETWEEN ? AND ? AND longitude BETWEEN ? AND ?`,
		minLat, maxLat, minLon, maxLon,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: search radius")
	}
	defer rows.Close()

	var entries []model.CacheEntry
	for rows.Next() {
		entry, err := scanSQLiteEntry(rows.Scan)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan radius row")
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
		return nil, eris.Wrap(err, "sqlite: iterate radius rows")
	}
	return entries, nil
}

func (s *SQLiteStore) FlagRevalidation(ctx context.Context, landNumber string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE plot_cache SET needs_revalidation = 1 WHERE land_number = ?`,
		model.NormalizeLandNumber(landNumber),
	)
	return eris.Wrapf(err, "sqlite: flag revalidation %s", landNumber)
}

func (s *SQLiteStore) LastWarmed(ctx context.Context, area string) (time.Time, error) {
	var warmedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT warmed_at FROM warming_log WHERE area = ?`, area,
	).Scan(&warmedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, eris.Wrapf(err, "sqlite: last warmed %s", area)
	}
	t, err := time.Parse(time.RFC3339Nano, warmedAt)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "sqlite: parse warmed_at for %s", area)
	}
	return t, nil
}

func (s *SQLiteStore) RecordWarming(ctx context.Context, area string, recordCount int, warmedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO warming_log (area, id, warmed_at, record_count)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (area) DO UPDATE SET
			warmed_at = excluded.warmed_at,
			record_count = excluded.record_count`,
		area, uuid.New().String(), warmedAt.UTC().Format(time.RFC3339Nano), recordCount,
	)
	return eris.Wrapf(err, "sqlite: record warming %s", area)
}

func (s *SQLiteStore) Stats(ctx context.Context, ttl time.Duration) (*Stats, error) {
	stats := &Stats{
		ByArea:      make(map[string]int),
		BySource:    make(map[string]int),
		CollectedAt: time.Now().UTC(),
	}

	cutoff := stats.CollectedAt.Add(-ttl).Format(time.RFC3339Nano)
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*),
		       count(CASE WHEN last_verified >= ? THEN 1 END),
		       count(CASE WHEN needs_revalidation = 1 THEN 1 END)
		FROM plot_cache`, cutoff,
	).Scan(&stats.TotalEntries, &stats.FreshEntries, &stats.NeedsRevalidation)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stats totals")
	}
	stats.StaleEntries = stats.TotalEntries - stats.FreshEntries

	rows, err := s.db.QueryContext(ctx,
		`SELECT area, source_kind, count(*) FROM plot_cache GROUP BY area, source_kind`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stats groups")
	}
	defer rows.Close()

	for rows.Next() {
		var area, kind string
		var n int
		if err := rows.Scan(&area, &kind, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan stats row")
		}
		stats.ByArea[area] += n
		stats.BySource[kind] += n
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate stats rows")
	}
	return stats, nil
}

// scanSQLiteEntry reads one plot_cache row; timestamps are stored as
// RFC3339 text in this driver.
func scanSQLiteEntry(scan func(...any) error) (*model.CacheEntry, error) {
	var entry model.CacheEntry
	var landStatus, attrs sql.NullString
	var sourceKind, verificationSource, lastVerified string
	var needsReval int

	err := scan(
		&entry.Record.LandNumber, &entry.Record.PlotID, &entry.Record.Area,
		&entry.Record.Latitude, &entry.Record.Longitude, &landStatus,
		&sourceKind, &entry.Record.ConfidenceScore, &attrs,
		&entry.CacheVersion, &needsReval, &verificationSource, &lastVerified,
	)
	if err != nil {
		return nil, err
	}

	if landStatus.Valid {
		entry.Record.LandStatus = landStatus.String
	}
	entry.Record.SourceKind = model.SourceKind(sourceKind)
	entry.Record.IsFallback = entry.Record.SourceKind == model.SourceFallback
	entry.NeedsRevalidation = needsReval == 1
	entry.VerificationSource = model.VerificationSource(verificationSource)

	if attrs.Valid && attrs.String != "" {
		if err := json.Unmarshal([]byte(attrs.String), &entry.Record.Attributes); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal attributes")
		}
	}

	t, err := time.Parse(time.RFC3339Nano, lastVerified)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: parse last_verified")
	}
	entry.LastVerified = t
	return &entry, nil
}
