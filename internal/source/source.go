// Package source adapts the upstream provider clients to the common query
// contract the parallel engine consumes. Adapters own record construction:
// canonical area names, deterministic plot ids, and centroid distances are
// all assigned here so downstream stages never see raw provider fields.
package source

import (
	"context"

	"github.com/plotwise/landmatch/internal/geo"
	"github.com/plotwise/landmatch/internal/model"
)

// radiusTolerance widens the adapter-level distance filter to absorb
// polygon-centroid approximation error.
const radiusTolerance = 1.1

// Client is a single upstream source.
type Client interface {
	Kind() model.SourceKind
	Query(ctx context.Context, center geo.Point, radiusMeters float64) ([]model.PlotRecord, error)
}
