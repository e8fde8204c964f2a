package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/plotwise/landmatch/internal/cache"
	"github.com/plotwise/landmatch/internal/model"
	"github.com/plotwise/landmatch/internal/store"
)

type plotResponse struct {
	Success bool     `json:"success"`
	Data    plotData `json:"data"`
}

type plotData struct {
	Entry model.CacheEntry `json:"entry"`
	Tier  cache.Tier       `json:"tier"`
	Stale bool             `json:"stale"`
}

// handleGetPlot serves one cached plot by land number. This endpoint never
// queries live sources; a cold key is a 404.
func (s *Server) handleGetPlot(w http.ResponseWriter, r *http.Request) {
	landNumber := chi.URLParam(r, "landNumber")

	res := s.cache.GetPlotData(r.Context(), landNumber, cache.LookupOptions{
		ForceRefresh: r.URL.Query().Get("force_refresh") == "true",
		AllowStale:   r.URL.Query().Get("allow_stale") != "false",
	})
	if res == nil {
		writeError(w, http.StatusNotFound, "plot not cached")
		return
	}

	writeJSON(w, http.StatusOK, plotResponse{
		Success: true,
		Data: plotData{
			Entry: res.Entry,
			Tier:  res.Tier,
			Stale: res.Stale,
		},
	})
}

type cacheStatsResponse struct {
	Success bool           `json:"success"`
	Data    cacheStatsData `json:"data"`
}

type cacheStatsData struct {
	Durable *store.Stats      `json:"durable"`
	Memory  cache.MemoryStats `json:"memory"`
}

// handleCacheStats reports durable-tier freshness/area/source counts plus
// in-memory occupancy for operational visibility.
func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.cache.StoreStats(r.Context())
	if err != nil {
		zap.L().Error("cache stats query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to collect cache statistics")
		return
	}

	writeJSON(w, http.StatusOK, cacheStatsResponse{
		Success: true,
		Data: cacheStatsData{
			Durable: stats,
			Memory:  s.cache.MemoryStats(),
		},
	})
}
