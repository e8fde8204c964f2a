package engine

import (
	"slices"

	"go.uber.org/zap"

	"github.com/plotwise/landmatch/internal/model"
)

// consolidationTolerance widens the final radius bound to absorb
// polygon-centroid approximation error.
const consolidationTolerance = 1.1

// Consolidation is the merged, sorted, radius-bounded record set plus the
// counts exposed in response metadata. Counts are observability only; nothing
// branches on them.
type Consolidation struct {
	Records            []model.PlotRecord
	TotalCount         int
	AuthoritativeCount int
	FallbackCount      int
	FallbackOnlyCount  int
	EnrichedCount      int
	DuplicateKeyCount  int
}

// enrichStatus copies only the land status from a fallback record onto an
// authoritative one. The one-field contract is the point: geometry,
// coordinates, confidence, and attributes of the authoritative record are
// never touched.
func enrichStatus(dst *model.PlotRecord, src model.PlotRecord) {
	dst.LandStatus = src.LandStatus
}

// Consolidate merges the two source result lists into one authoritative set.
//
// Authoritative records are enriched with the fallback's land status when a
// MatchKey counterpart exists; unconsumed fallback records are emitted
// standalone at reduced confidence. The enrichment pass always runs before
// standalone emission, so scoring is deterministic regardless of which source
// responded first. Same-source MatchKey duplicates: first encountered wins;
// collisions are counted and logged, never silently absorbed into zero.
func Consolidate(authoritative, fallback []model.PlotRecord, radiusMeters float64) Consolidation {
	c := Consolidation{
		AuthoritativeCount: len(authoritative),
		FallbackCount:      len(fallback),
	}

	// MatchKey -> fallback record index. First record wins on duplicates.
	fallbackByKey := make(map[string]int, len(fallback))
	for i, r := range fallback {
		key := model.MatchKey(r.LandNumber, r.Area)
		if _, exists := fallbackByKey[key]; exists {
			c.DuplicateKeyCount++
			zap.L().Warn("duplicate fallback match key, keeping first",
				zap.String("match_key", key),
				zap.String("land_number", r.LandNumber),
			)
			continue
		}
		fallbackByKey[key] = i
	}

	consumed := make(map[string]bool, len(fallbackByKey))
	merged := make([]model.PlotRecord, 0, len(authoritative)+len(fallback))

	seenAuth := make(map[string]bool, len(authoritative))
	for _, r := range authoritative {
		key := model.MatchKey(r.LandNumber, r.Area)
		if seenAuth[key] {
			c.DuplicateKeyCount++
			zap.L().Warn("duplicate authoritative match key, keeping first",
				zap.String("match_key", key),
				zap.String("land_number", r.LandNumber),
			)
			continue
		}
		seenAuth[key] = true

		if i, ok := fallbackByKey[key]; ok {
			consumed[key] = true
			if fallback[i].LandStatus != "" {
				enrichStatus(&r, fallback[i])
				c.EnrichedCount++
			}
		}
		merged = append(merged, r)
	}

	for i, r := range fallback {
		key := model.MatchKey(r.LandNumber, r.Area)
		if consumed[key] || fallbackByKey[key] != i {
			continue
		}
		merged = append(merged, r)
		c.FallbackOnlyCount++
	}

	slices.SortStableFunc(merged, func(a, b model.PlotRecord) int {
		switch {
		case a.DistanceFromCenterMeters < b.DistanceFromCenterMeters:
			return -1
		case a.DistanceFromCenterMeters > b.DistanceFromCenterMeters:
			return 1
		default:
			return 0
		}
	})

	bound := radiusMeters * consolidationTolerance
	final := merged[:0]
	for _, r := range merged {
		if r.DistanceFromCenterMeters <= bound {
			final = append(final, r)
		}
	}

	c.Records = final
	c.TotalCount = len(final)
	return c
}
