package source

import (
	"context"

	"go.uber.org/zap"

	"github.com/plotwise/landmatch/internal/areas"
	"github.com/plotwise/landmatch/internal/geo"
	"github.com/plotwise/landmatch/internal/model"
	"github.com/plotwise/landmatch/pkg/ddagis"
)

// Authoritative adapts the polygon-based GIS provider. Its records carry
// geometry and full confidence but never a land status.
type Authoritative struct {
	gis   ddagis.Client
	areas *areas.Table
}

// NewAuthoritative creates the authoritative source adapter.
func NewAuthoritative(gis ddagis.Client, tbl *areas.Table) *Authoritative {
	return &Authoritative{gis: gis, areas: tbl}
}

// Kind implements Client.
func (s *Authoritative) Kind() model.SourceKind { return model.SourceAuthoritative }

// Query implements Client. Features without usable geometry are skipped: a
// parcel with no centroid has no distance and cannot be placed in a radius
// result.
func (s *Authoritative) Query(ctx context.Context, center geo.Point, radiusMeters float64) ([]model.PlotRecord, error) {
	features, err := s.gis.QueryParcels(ctx, center.Latitude, center.Longitude, radiusMeters)
	if err != nil {
		return nil, err
	}

	records := make([]model.PlotRecord, 0, len(features))
	for _, f := range features {
		centroid, ok := geo.PolygonCentroid(f.Geometry)
		if !ok {
			zap.L().Debug("authoritative: skipping feature without geometry",
				zap.String("land_number", f.LandNumber),
			)
			continue
		}

		dist := geo.DistanceMeters(center, centroid)
		if dist > radiusMeters*radiusTolerance {
			continue
		}

		records = append(records, model.PlotRecord{
			PlotID:                   model.NewPlotID(model.SourceAuthoritative, f.LandNumber),
			LandNumber:               f.LandNumber,
			Area:                     s.areas.Canonical(f.ProjectName),
			Latitude:                 centroid.Latitude,
			Longitude:                centroid.Longitude,
			DistanceFromCenterMeters: dist,
			SourceKind:               model.SourceAuthoritative,
			ConfidenceScore:          model.ConfidenceAuthoritative,
			Geometry:                 f.RawGeometry,
			Attributes:               f.Attributes,
		})
	}
	return records, nil
}
