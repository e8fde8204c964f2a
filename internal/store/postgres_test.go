package store

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plotwise/landmatch/internal/geo"
	"github.com/plotwise/landmatch/internal/model"
)

func testEntry() model.CacheEntry {
	return model.CacheEntry{
		Record: model.PlotRecord{
			PlotID:          model.NewPlotID(model.SourceAuthoritative, "613-1254"),
			LandNumber:      "613-1254",
			Area:            "Al Barsha South",
			Latitude:        25.0660,
			Longitude:       55.1710,
			LandStatus:      "Freehold",
			SourceKind:      model.SourceAuthoritative,
			ConfidenceScore: 1.0,
		},
		LastVerified:       time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		VerificationSource: model.VerifyUserSearch,
	}
}

func TestPostgresUpsertPlot(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	entry := testEntry()
	mock.ExpectQuery(`INSERT INTO plot_cache`).
		WithArgs(
			"613-1254", entry.Record.PlotID, "Al Barsha South", 25.0660, 55.1710,
			"Freehold", "authoritative", 1.0, []byte(nil), "user_search", entry.LastVerified,
		).
		WillReturnRows(pgxmock.NewRows([]string{"cache_version"}).AddRow(1))

	s := NewPostgresFromPool(mock)
	version, err := s.UpsertPlot(context.Background(), entry)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpsertPlot_NormalizesKey(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	entry := testEntry()
	entry.Record.LandNumber = "  613-1254 "
	entry.Record.LandStatus = ""

	mock.ExpectQuery(`INSERT INTO plot_cache`).
		WithArgs(
			"613-1254", entry.Record.PlotID, "Al Barsha South", 25.0660, 55.1710,
			nil, "authoritative", 1.0, []byte(nil), "user_search", entry.LastVerified,
		).
		WillReturnRows(pgxmock.NewRows([]string{"cache_version"}).AddRow(4))

	s := NewPostgresFromPool(mock)
	version, err := s.UpsertPlot(context.Background(), entry)
	require.NoError(t, err)
	assert.Equal(t, 4, version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpsertPlot_EmptyLandNumber(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	entry := testEntry()
	entry.Record.LandNumber = "   "

	s := NewPostgresFromPool(mock)
	_, err = s.UpsertPlot(context.Background(), entry)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty land number")
}

func plotRowColumns() []string {
	return []string{
		"land_number", "plot_id", "area", "latitude", "longitude", "land_status",
		"source_kind", "confidence", "attributes", "cache_version",
		"needs_revalidation", "verification_source", "last_verified",
	}
}

func TestPostgresGetPlot_Hit(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	status := "Freehold"
	verified := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT .+ FROM plot_cache WHERE land_number`).
		WithArgs("613-1254").
		WillReturnRows(pgxmock.NewRows(plotRowColumns()).AddRow(
			"613-1254", "abcd1234abcd1234", "Al Barsha South", 25.0660, 55.1710, &status,
			"authoritative", 1.0, []byte(`{"municipality_number":"3731"}`), 3,
			false, "user_search", verified,
		))

	s := NewPostgresFromPool(mock)
	entry, err := s.GetPlot(context.Background(), "613-1254")

	require.NoError(t, err)
	assert.Equal(t, "Freehold", entry.Record.LandStatus)
	assert.Equal(t, 3, entry.CacheVersion)
	assert.Equal(t, model.VerifyUserSearch, entry.VerificationSource)
	assert.Equal(t, "3731", entry.Record.Attributes["municipality_number"])
	assert.False(t, entry.Record.IsFallback)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetPlot_Miss(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT .+ FROM plot_cache WHERE land_number`).
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows(plotRowColumns()))

	s := NewPostgresFromPool(mock)
	_, err = s.GetPlot(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSearchRadius_FiltersExactDistance(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	verified := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	center := geo.Point{Latitude: 25.0657, Longitude: 55.1713}

	// Two rows inside the bounding box; the second is a box corner outside
	// the true circle and must be dropped by the exact distance check.
	mock.ExpectQuery(`SELECT .+ FROM plot_cache\s+WHERE latitude BETWEEN`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(plotRowColumns()).
			AddRow("near", "id1", "Arjan", 25.0660, 55.1713, nil, "authoritative", 1.0, []byte(nil), 1, false, "user_search", verified).
			AddRow("corner", "id2", "Arjan", 25.0657+0.0045, 55.1713+0.0049, nil, "authoritative", 1.0, []byte(nil), 1, false, "user_search", verified),
		)

	s := NewPostgresFromPool(mock)
	entries, err := s.SearchRadius(context.Background(), center, 500)

	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "near", entries[0].Record.LandNumber)
	assert.Greater(t, entries[0].Record.DistanceFromCenterMeters, 0.0)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFlagRevalidation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`UPDATE plot_cache SET needs_revalidation = TRUE`).
		WithArgs("613-1254").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	s := NewPostgresFromPool(mock)
	require.NoError(t, s.FlagRevalidation(context.Background(), " 613-1254 "))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLastWarmed_NeverWarmed(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT warmed_at FROM warming_log`).
		WithArgs("Al Barsha South").
		WillReturnRows(pgxmock.NewRows([]string{"warmed_at"}))

	s := NewPostgresFromPool(mock)
	warmedAt, err := s.LastWarmed(context.Background(), "Al Barsha South")

	require.NoError(t, err)
	assert.True(t, warmedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRecordWarming(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	warmedAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(`INSERT INTO warming_log`).
		WithArgs("Al Barsha South", pgxmock.AnyArg(), warmedAt, 42).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	s := NewPostgresFromPool(mock)
	require.NoError(t, s.RecordWarming(context.Background(), "Al Barsha South", 42, warmedAt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStats(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT count\(\*\)`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"count", "fresh", "reval"}).AddRow(10, 7, 2))
	mock.ExpectQuery(`SELECT area, source_kind, count\(\*\) FROM plot_cache GROUP BY`).
		WillReturnRows(pgxmock.NewRows([]string{"area", "source_kind", "count"}).
			AddRow("Al Barsha South", "authoritative", 6).
			AddRow("Al Barsha South", "fallback", 1).
			AddRow("Arjan", "authoritative", 3),
		)

	s := NewPostgresFromPool(mock)
	stats, err := s.Stats(context.Background(), 7*24*time.Hour)

	require.NoError(t, err)
	assert.Equal(t, 10, stats.TotalEntries)
	assert.Equal(t, 7, stats.FreshEntries)
	assert.Equal(t, 3, stats.StaleEntries)
	assert.Equal(t, 2, stats.NeedsRevalidation)
	assert.Equal(t, 7, stats.ByArea["Al Barsha South"])
	assert.Equal(t, 9, stats.BySource["authoritative"])
	require.NoError(t, mock.ExpectationsWereMet())
}
