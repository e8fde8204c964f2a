// Package geo provides the great-circle and centroid math shared by the
// source adapters and the consolidation engine.
package geo

import (
	"math"

	"github.com/twpayne/go-geom"
)

// earthRadiusMeters is the mean Earth radius used for haversine distances.
const earthRadiusMeters = 6371000

// Point is a WGS84 coordinate pair.
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// DistanceMeters returns the great-circle (haversine) distance between two
// points in meters.
func DistanceMeters(a, b Point) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon

	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}

// PolygonCentroid returns the mean coordinate of the polygon's first (outer)
// ring. A point approximation is enough here: the consolidation radius filter
// carries a tolerance for exactly this error.
func PolygonCentroid(p *geom.Polygon) (Point, bool) {
	if p == nil || p.NumLinearRings() == 0 {
		return Point{}, false
	}
	ring := p.LinearRing(0)
	n := ring.NumCoords()
	if n == 0 {
		return Point{}, false
	}

	// Shapefile-style rings repeat the first vertex at the end; skip the
	// duplicate so it does not skew the mean.
	coords := ring.Coords()
	if n > 1 && coords[0].Equal(geom.XY, coords[n-1]) {
		coords = coords[:n-1]
	}

	var sumX, sumY float64
	for _, c := range coords {
		sumX += c.X()
		sumY += c.Y()
	}
	count := float64(len(coords))
	return Point{Latitude: sumY / count, Longitude: sumX / count}, true
}

// BoundingBox returns the min/max latitude and longitude of a circle of the
// given radius around center. Used as a cheap prefilter before exact distance
// checks.
func BoundingBox(center Point, radiusMeters float64) (minLat, maxLat, minLon, maxLon float64) {
	dLat := radiusMeters / earthRadiusMeters * 180 / math.Pi
	minLat = center.Latitude - dLat
	maxLat = center.Latitude + dLat

	cosLat := math.Cos(center.Latitude * math.Pi / 180)
	if cosLat < 1e-9 {
		// Polar query circle wraps all longitudes.
		return minLat, maxLat, -180, 180
	}
	dLon := dLat / cosLat
	return minLat, maxLat, center.Longitude - dLon, center.Longitude + dLon
}
