package server

import (
	"cmp"
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/plotwise/landmatch/internal/engine"
	"github.com/plotwise/landmatch/internal/geo"
	"github.com/plotwise/landmatch/internal/model"
)

// Radius bounds for a search request, in meters.
const (
	minRadiusMeters     = 1
	maxRadiusMeters     = 50000
	defaultRadiusMeters = 1000
)

type searchRequest struct {
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
	RadiusMeters *float64 `json:"radius_meters"`
	ForceRefresh bool     `json:"force_refresh"`
}

type searchResponse struct {
	Success  bool           `json:"success"`
	Data     searchData     `json:"data"`
	Metadata searchMetadata `json:"metadata"`
}

type searchData struct {
	Plots            []model.PlotRecord `json:"plots"`
	Center           centerPoint        `json:"center"`
	SearchParameters searchParameters   `json:"search_parameters"`
}

type centerPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type searchParameters struct {
	RadiusMeters float64 `json:"radius_meters"`
	ResultSource string  `json:"result_source"` // "cache" or "live"
}

type searchMetadata struct {
	TotalCount            int            `json:"total_count"`
	GISDDACount           int            `json:"gis_dda_count"`
	PropertyStatusCount   int            `json:"property_status_count"`
	FallbackCount         int            `json:"fallback_count"`
	FreeholdEnrichedCount int            `json:"freehold_enriched_count"`
	ExecutionTimeMs       int64          `json:"execution_time_ms"`
	APIPerformance        apiPerformance `json:"api_performance"`
	DataSources           dataSources    `json:"data_sources"`
}

type apiPerformance struct {
	GISDDAMs         int64 `json:"gis_dda_ms"`
	PropertyStatusMs int64 `json:"property_status_ms"`
}

type dataSources struct {
	GISDDAAvailable         bool   `json:"gis_dda_available"`
	GISDDAError             string `json:"gis_dda_error,omitempty"`
	PropertyStatusAvailable bool   `json:"property_status_available"`
	PropertyStatusError     string `json:"property_status_error,omitempty"`
}

// validate returns a field-specific message, or "" when the request is good.
func (r *searchRequest) validate() string {
	switch {
	case r.Latitude == nil:
		return "latitude is required"
	case *r.Latitude < -90 || *r.Latitude > 90:
		return "latitude must be between -90 and 90"
	case r.Longitude == nil:
		return "longitude is required"
	case *r.Longitude < -180 || *r.Longitude > 180:
		return "longitude must be between -180 and 180"
	case r.RadiusMeters != nil && (*r.RadiusMeters < minRadiusMeters || *r.RadiusMeters > maxRadiusMeters):
		return "radius_meters must be between 1 and 50000"
	}
	return ""
}

func (r *searchRequest) radius() float64 {
	if r.RadiusMeters == nil {
		return defaultRadiusMeters
	}
	return *r.RadiusMeters
}

// handleSearch is the main lookup path: cache first, live sources on a miss,
// write-through on the way out. A single failed source degrades the response,
// it never fails it; cache trouble fails open to a live query.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.countRequest("invalid")
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		s.countRequest("invalid")
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	ctx := r.Context()
	start := time.Now()
	center := geo.Point{Latitude: *req.Latitude, Longitude: *req.Longitude}
	radius := req.radius()

	if !req.ForceRefresh {
		cached, err := s.cache.SearchCached(ctx, center, radius, true)
		if err != nil {
			zap.L().Warn("cached search failed, querying live sources", zap.Error(err))
		} else if len(cached) > 0 {
			s.respondFromCache(w, cached, center, radius, start)
			return
		}
	}

	out := s.engine.Query(ctx, center, radius)
	cons := engine.Consolidate(out.Authoritative.Records, out.Fallback.Records, radius)
	s.observeSources(out)

	for _, rec := range cons.Records {
		if _, err := s.cache.SetPlotData(ctx, rec, model.VerifyUserSearch); err != nil {
			zap.L().Warn("write-through failed",
				zap.String("land_number", rec.LandNumber),
				zap.Error(err))
		}
	}

	outcome := "success"
	if !out.Authoritative.Success || !out.Fallback.Success {
		outcome = "degraded"
	}
	s.countRequest(outcome)
	if s.metrics != nil {
		s.metrics.ConsolidatedRecords.Observe(float64(cons.TotalCount))
	}

	plots := cons.Records
	if plots == nil {
		plots = []model.PlotRecord{}
	}
	writeJSON(w, http.StatusOK, searchResponse{
		Success: true,
		Data: searchData{
			Plots:  plots,
			Center: centerPoint{Latitude: center.Latitude, Longitude: center.Longitude},
			SearchParameters: searchParameters{
				RadiusMeters: radius,
				ResultSource: "live",
			},
		},
		Metadata: searchMetadata{
			TotalCount:            cons.TotalCount,
			GISDDACount:           cons.AuthoritativeCount,
			PropertyStatusCount:   cons.FallbackCount,
			FallbackCount:         cons.FallbackOnlyCount,
			FreeholdEnrichedCount: cons.EnrichedCount,
			ExecutionTimeMs:       time.Since(start).Milliseconds(),
			APIPerformance: apiPerformance{
				GISDDAMs:         out.Authoritative.ElapsedMs,
				PropertyStatusMs: out.Fallback.ElapsedMs,
			},
			DataSources: dataSources{
				GISDDAAvailable:         out.Authoritative.Success,
				GISDDAError:             out.Authoritative.Error,
				PropertyStatusAvailable: out.Fallback.Success,
				PropertyStatusError:     out.Fallback.Error,
			},
		},
	})
}

// respondFromCache serves a search entirely from the durable tier. The
// sources were not queried so no per-source timings or errors are reported.
func (s *Server) respondFromCache(w http.ResponseWriter, entries []model.CacheEntry, center geo.Point, radius float64, start time.Time) {
	plots := make([]model.PlotRecord, 0, len(entries))
	var authCount, fbOnly, enriched int
	for _, e := range entries {
		rec := e.Record
		switch rec.SourceKind {
		case model.SourceAuthoritative:
			authCount++
			if rec.LandStatus != "" {
				enriched++
			}
		case model.SourceFallback:
			fbOnly++
		}
		plots = append(plots, rec)
	}
	slices.SortStableFunc(plots, func(a, b model.PlotRecord) int {
		return cmp.Compare(a.DistanceFromCenterMeters, b.DistanceFromCenterMeters)
	})

	s.countRequest("success")
	if s.metrics != nil {
		s.metrics.ConsolidatedRecords.Observe(float64(len(plots)))
	}

	writeJSON(w, http.StatusOK, searchResponse{
		Success: true,
		Data: searchData{
			Plots:  plots,
			Center: centerPoint{Latitude: center.Latitude, Longitude: center.Longitude},
			SearchParameters: searchParameters{
				RadiusMeters: radius,
				ResultSource: "cache",
			},
		},
		Metadata: searchMetadata{
			TotalCount:            len(plots),
			GISDDACount:           authCount,
			PropertyStatusCount:   len(plots) - authCount,
			FallbackCount:         fbOnly,
			FreeholdEnrichedCount: enriched,
			ExecutionTimeMs:       time.Since(start).Milliseconds(),
			DataSources: dataSources{
				GISDDAAvailable:         true,
				PropertyStatusAvailable: true,
			},
		},
	})
}

func (s *Server) observeSources(out engine.QueryOutput) {
	if s.metrics == nil {
		return
	}
	record := func(source string, res engine.SourceResult) {
		outcome := "success"
		if !res.Success {
			outcome = "error"
		}
		s.metrics.SourceRequests.WithLabelValues(source, outcome).Inc()
		s.metrics.SourceDuration.WithLabelValues(source).Observe(float64(res.ElapsedMs) / 1000)
	}
	record("authoritative", out.Authoritative)
	record("fallback", out.Fallback)
}
