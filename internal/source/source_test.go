package source

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/plotwise/landmatch/internal/areas"
	landgeo "github.com/plotwise/landmatch/internal/geo"
	"github.com/plotwise/landmatch/internal/model"
	"github.com/plotwise/landmatch/pkg/ddagis"
	"github.com/plotwise/landmatch/pkg/landstatus"
)

var center = landgeo.Point{Latitude: 25.0657, Longitude: 55.1713}

// squareAround builds a small closed polygon ring centered on (lat, lon).
func squareAround(lat, lon, half float64) *geom.Polygon {
	p := geom.NewPolygon(geom.XY)
	_, err := p.SetCoords([][]geom.Coord{{
		{lon - half, lat - half}, {lon + half, lat - half},
		{lon + half, lat + half}, {lon - half, lat + half},
		{lon - half, lat - half},
	}})
	if err != nil {
		panic(err)
	}
	return p
}

type fakeGIS struct {
	features []ddagis.Feature
	err      error
}

func (f *fakeGIS) QueryParcels(_ context.Context, _, _, _ float64) ([]ddagis.Feature, error) {
	return f.features, f.err
}

type fakeStatus struct {
	rows []landstatus.Record
	err  error
}

func (f *fakeStatus) QueryRadius(_ context.Context, _, _, _ float64) ([]landstatus.Record, error) {
	return f.rows, f.err
}

func TestAuthoritative_BuildsRecords(t *testing.T) {
	gis := &fakeGIS{features: []ddagis.Feature{
		{
			LandNumber:  "613-1254",
			ProjectName: "AL BARSHA SOUTH FOURTH",
			Geometry:    squareAround(25.0660, 55.1710, 0.0005),
			RawGeometry: json.RawMessage(`{"type":"Polygon"}`),
			Attributes:  map[string]any{"municipality_number": "3731"},
		},
	}}

	src := NewAuthoritative(gis, areas.Default())
	records, err := src.Query(context.Background(), center, 500)

	require.NoError(t, err)
	require.Len(t, records, 1)

	r := records[0]
	assert.Equal(t, model.SourceAuthoritative, r.SourceKind)
	assert.Equal(t, "Al Barsha South", r.Area, "area must be canonical, never the raw project name")
	assert.Equal(t, 1.0, r.ConfidenceScore)
	assert.False(t, r.IsFallback)
	assert.Empty(t, r.LandStatus, "status only ever comes from the fallback source")
	assert.InDelta(t, 25.0660, r.Latitude, 1e-6)
	assert.Greater(t, r.DistanceFromCenterMeters, 0.0)
	assert.NotEmpty(t, r.Geometry)
	assert.Equal(t, model.NewPlotID(model.SourceAuthoritative, "613-1254"), r.PlotID)
}

func TestAuthoritative_SkipsFeaturesWithoutGeometry(t *testing.T) {
	gis := &fakeGIS{features: []ddagis.Feature{
		{LandNumber: "613-1", ProjectName: "Arjan"},
		{LandNumber: "613-2", ProjectName: "Arjan", Geometry: squareAround(25.0655, 55.1715, 0.0005)},
	}}

	src := NewAuthoritative(gis, areas.Default())
	records, err := src.Query(context.Background(), center, 500)

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "613-2", records[0].LandNumber)
}

func TestAuthoritative_FiltersBeyondToleranceRadius(t *testing.T) {
	gis := &fakeGIS{features: []ddagis.Feature{
		// ~1.1km north of center: outside 500m * 1.1.
		{LandNumber: "far", ProjectName: "Arjan", Geometry: squareAround(25.0757, 55.1713, 0.0005)},
		// ~50m away: inside.
		{LandNumber: "near", ProjectName: "Arjan", Geometry: squareAround(25.0660, 55.1713, 0.0005)},
	}}

	src := NewAuthoritative(gis, areas.Default())
	records, err := src.Query(context.Background(), center, 500)

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "near", records[0].LandNumber)
}

func TestAuthoritative_PropagatesError(t *testing.T) {
	src := NewAuthoritative(&fakeGIS{err: assert.AnError}, areas.Default())
	_, err := src.Query(context.Background(), center, 500)
	require.Error(t, err)
}

func TestFallback_BuildsRecords(t *testing.T) {
	status := &fakeStatus{rows: []landstatus.Record{
		{
			ParcelNumber:      "613-1254",
			AreaName:          "al barsha south fourth",
			Latitude:          25.0660,
			Longitude:         55.1710,
			LandStatus:        "Freehold",
			CertificateNumber: "CRT-99120",
		},
	}}

	src := NewFallback(status, areas.Default())
	records, err := src.Query(context.Background(), center, 500)

	require.NoError(t, err)
	require.Len(t, records, 1)

	r := records[0]
	assert.Equal(t, model.SourceFallback, r.SourceKind)
	assert.True(t, r.IsFallback)
	assert.Equal(t, "Al Barsha South", r.Area)
	assert.Equal(t, "Freehold", r.LandStatus)
	assert.Equal(t, model.ConfidenceFallback, r.ConfidenceScore)
	assert.Equal(t, "CRT-99120", r.Attributes["certificate_number"])
}

func TestFallback_FiltersBeyondToleranceRadius(t *testing.T) {
	status := &fakeStatus{rows: []landstatus.Record{
		{ParcelNumber: "far", AreaName: "Arjan", Latitude: 25.0757, Longitude: 55.1713, LandStatus: "Freehold"},
	}}

	src := NewFallback(status, areas.Default())
	records, err := src.Query(context.Background(), center, 500)

	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestMatchKeyAgreementAcrossSources(t *testing.T) {
	// The same physical plot reported by both providers must produce the
	// same MatchKey even when spellings differ.
	gis := &fakeGIS{features: []ddagis.Feature{
		{LandNumber: " 613-1254 ", ProjectName: "AL BARSHA SOUTH FOURTH", Geometry: squareAround(25.0660, 55.1710, 0.0005)},
	}}
	status := &fakeStatus{rows: []landstatus.Record{
		{ParcelNumber: "613-1254", AreaName: "al barsha south 4", Latitude: 25.0660, Longitude: 55.1710, LandStatus: "Freehold"},
	}}

	auth, err := NewAuthoritative(gis, areas.Default()).Query(context.Background(), center, 500)
	require.NoError(t, err)
	fb, err := NewFallback(status, areas.Default()).Query(context.Background(), center, 500)
	require.NoError(t, err)

	require.Len(t, auth, 1)
	require.Len(t, fb, 1)
	assert.Equal(t,
		model.MatchKey(auth[0].LandNumber, auth[0].Area),
		model.MatchKey(fb[0].LandNumber, fb[0].Area),
	)
}
