package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

func TestDistanceMeters_ZeroForSamePoint(t *testing.T) {
	p := Point{Latitude: 25.0657, Longitude: 55.1713}
	assert.Equal(t, 0.0, DistanceMeters(p, p))
}

func TestDistanceMeters_KnownPairs(t *testing.T) {
	// Dubai Marina to Downtown Dubai is roughly 21-22 km.
	marina := Point{Latitude: 25.0772, Longitude: 55.1369}
	downtown := Point{Latitude: 25.1972, Longitude: 55.2744}

	d := DistanceMeters(marina, downtown)
	assert.InDelta(t, 19300, d, 1500)

	// Symmetry.
	assert.InDelta(t, d, DistanceMeters(downtown, marina), 0.001)
}

func TestDistanceMeters_SmallOffset(t *testing.T) {
	// ~0.001 degrees of latitude is about 111 meters everywhere.
	a := Point{Latitude: 25.0657, Longitude: 55.1713}
	b := Point{Latitude: 25.0667, Longitude: 55.1713}
	assert.InDelta(t, 111, DistanceMeters(a, b), 2)
}

func TestPolygonCentroid_FirstRing(t *testing.T) {
	// Closed square ring: repeated first vertex must not skew the mean.
	poly := geom.NewPolygon(geom.XY)
	_, err := poly.SetCoords([][]geom.Coord{{
		{55.0, 25.0}, {55.2, 25.0}, {55.2, 25.2}, {55.0, 25.2}, {55.0, 25.0},
	}})
	require.NoError(t, err)

	c, ok := PolygonCentroid(poly)
	require.True(t, ok)
	assert.InDelta(t, 25.1, c.Latitude, 1e-9)
	assert.InDelta(t, 55.1, c.Longitude, 1e-9)
}

func TestPolygonCentroid_IgnoresHoles(t *testing.T) {
	poly := geom.NewPolygon(geom.XY)
	_, err := poly.SetCoords([][]geom.Coord{
		{{55.0, 25.0}, {55.2, 25.0}, {55.2, 25.2}, {55.0, 25.2}, {55.0, 25.0}},
		{{55.05, 25.05}, {55.06, 25.05}, {55.06, 25.06}, {55.05, 25.05}},
	})
	require.NoError(t, err)

	c, ok := PolygonCentroid(poly)
	require.True(t, ok)
	assert.InDelta(t, 55.1, c.Longitude, 1e-9)
}

func TestPolygonCentroid_Empty(t *testing.T) {
	_, ok := PolygonCentroid(nil)
	assert.False(t, ok)

	_, ok = PolygonCentroid(geom.NewPolygon(geom.XY))
	assert.False(t, ok)
}

func TestBoundingBox_ContainsCircle(t *testing.T) {
	center := Point{Latitude: 25.0657, Longitude: 55.1713}
	minLat, maxLat, minLon, maxLon := BoundingBox(center, 1000)

	assert.Less(t, minLat, center.Latitude)
	assert.Greater(t, maxLat, center.Latitude)
	assert.Less(t, minLon, center.Longitude)
	assert.Greater(t, maxLon, center.Longitude)

	// A point 1000m due north must fall inside the box.
	north := Point{Latitude: center.Latitude + 1000.0/111000, Longitude: center.Longitude}
	assert.LessOrEqual(t, north.Latitude, maxLat)
}
