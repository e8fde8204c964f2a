package source

import (
	"context"

	"github.com/plotwise/landmatch/internal/areas"
	"github.com/plotwise/landmatch/internal/geo"
	"github.com/plotwise/landmatch/internal/model"
	"github.com/plotwise/landmatch/pkg/landstatus"
)

// Fallback adapts the point-radius status provider. Its records carry the
// authoritative land status string but reduced confidence when unmatched.
type Fallback struct {
	status landstatus.Client
	areas  *areas.Table
}

// NewFallback creates the fallback source adapter.
func NewFallback(status landstatus.Client, tbl *areas.Table) *Fallback {
	return &Fallback{status: status, areas: tbl}
}

// Kind implements Client.
func (s *Fallback) Kind() model.SourceKind { return model.SourceFallback }

// Query implements Client.
func (s *Fallback) Query(ctx context.Context, center geo.Point, radiusMeters float64) ([]model.PlotRecord, error) {
	rows, err := s.status.QueryRadius(ctx, center.Latitude, center.Longitude, radiusMeters)
	if err != nil {
		return nil, err
	}

	records := make([]model.PlotRecord, 0, len(rows))
	for _, row := range rows {
		point := geo.Point{Latitude: row.Latitude, Longitude: row.Longitude}
		dist := geo.DistanceMeters(center, point)
		if dist > radiusMeters*radiusTolerance {
			continue
		}

		var attrs map[string]any
		if row.CertificateNumber != "" {
			attrs = map[string]any{"certificate_number": row.CertificateNumber}
		}

		records = append(records, model.PlotRecord{
			PlotID:                   model.NewPlotID(model.SourceFallback, row.ParcelNumber),
			LandNumber:               row.ParcelNumber,
			Area:                     s.areas.Canonical(row.AreaName),
			Latitude:                 row.Latitude,
			Longitude:                row.Longitude,
			DistanceFromCenterMeters: dist,
			LandStatus:               row.LandStatus,
			SourceKind:               model.SourceFallback,
			IsFallback:               true,
			ConfidenceScore:          model.ConfidenceFallback,
			Attributes:               attrs,
		})
	}
	return records, nil
}
