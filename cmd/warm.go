package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/plotwise/landmatch/internal/cache"
	"github.com/plotwise/landmatch/internal/geo"
	"github.com/plotwise/landmatch/internal/observability"
)

var (
	warmArea   string
	warmLat    float64
	warmLon    float64
	warmRadius float64
	warmForce  bool
)

var warmCmd = &cobra.Command{
	Use:   "warm",
	Short: "Pre-populate the cache for an area",
	Long:  "Fetches plots around the given center from the authoritative source and writes them through the cache. Areas warmed within the cooldown window are skipped.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("warm"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		metrics := observability.NewMetrics()
		plotCache := initCache(st, metrics)
		authoritative, _ := initSources()

		opts := []cache.WarmerOption{
			cache.WithCooldown(time.Duration(cfg.Warmer.CooldownHours) * time.Hour),
			cache.WithPacing(cfg.Warmer.BatchSize, time.Duration(cfg.Warmer.PauseMillis)*time.Millisecond),
			cache.WithWarmerMetrics(metrics),
		}
		if warmForce {
			opts = append(opts, cache.WithCooldown(0))
		}

		warmer := cache.NewWarmer(plotCache, st, opts...)

		center := geo.Point{Latitude: warmLat, Longitude: warmLon}
		written, err := warmer.WarmArea(ctx, warmArea, center, warmRadius, authoritative.Query)
		if err != nil {
			return eris.Wrapf(err, "warm %s", warmArea)
		}

		zap.L().Info("warm complete",
			zap.String("area", warmArea),
			zap.Int("written", written),
		)
		return nil
	},
}

func init() {
	warmCmd.Flags().StringVar(&warmArea, "area", "", "area name (required)")
	warmCmd.Flags().Float64Var(&warmLat, "lat", 0, "center latitude (required)")
	warmCmd.Flags().Float64Var(&warmLon, "lon", 0, "center longitude (required)")
	warmCmd.Flags().Float64Var(&warmRadius, "radius", 2000, "radius in meters")
	warmCmd.Flags().BoolVar(&warmForce, "force", false, "ignore the warming cooldown")
	_ = warmCmd.MarkFlagRequired("area")
	_ = warmCmd.MarkFlagRequired("lat")
	_ = warmCmd.MarkFlagRequired("lon")
	rootCmd.AddCommand(warmCmd)
}
