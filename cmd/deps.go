package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/plotwise/landmatch/internal/areas"
	"github.com/plotwise/landmatch/internal/cache"
	"github.com/plotwise/landmatch/internal/engine"
	"github.com/plotwise/landmatch/internal/observability"
	"github.com/plotwise/landmatch/internal/source"
	"github.com/plotwise/landmatch/internal/store"
	"github.com/plotwise/landmatch/pkg/ddagis"
	"github.com/plotwise/landmatch/pkg/landstatus"
)

func initStore(ctx context.Context) (store.PlotStore, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "landmatch.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initCache(st store.PlotStore, metrics *observability.Metrics) *cache.PlotCache {
	day := 24 * time.Hour
	return cache.New(st, areas.Default(),
		cache.WithCapacity(cfg.Cache.Capacity),
		cache.WithTTLPolicy(cache.TTLPolicy{
			GeneralAttributes: time.Duration(cfg.Cache.AttributeTTLDays) * day,
			LandStatus:        time.Duration(cfg.Cache.StatusTTLDays) * day,
			Coordinates:       time.Duration(cfg.Cache.CoordinateTTLDays) * day,
			StaleGrace:        time.Duration(cfg.Cache.StaleGraceHours) * time.Hour,
		}),
		cache.WithMetrics(metrics),
	)
}

func initSources() (authoritative, fallback source.Client) {
	tbl := areas.Default()
	gis := ddagis.NewClient(cfg.DDAGIS.APIKey, cfg.DDAGIS.BaseURL)
	status := landstatus.NewClient(cfg.LandStatus.APIKey, cfg.LandStatus.BaseURL)

	authoritative = source.WithBreaker(
		source.NewAuthoritative(gis, tbl),
		source.NewBreaker(source.DefaultTripThreshold, source.DefaultResetAfter),
	)
	fallback = source.WithBreaker(
		source.NewFallback(status, tbl),
		source.NewBreaker(source.DefaultTripThreshold, source.DefaultResetAfter),
	)
	return authoritative, fallback
}

func initEngine(authoritative, fallback source.Client) *engine.ParallelQuery {
	return engine.NewParallelQuery(authoritative, fallback,
		engine.WithTimeouts(
			time.Duration(cfg.Engine.AuthoritativeTimeoutSecs)*time.Second,
			time.Duration(cfg.Engine.FallbackTimeoutSecs)*time.Second,
		),
	)
}
