package engine

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plotwise/landmatch/internal/model"
)

func authRecord(landNumber, area string, dist float64) model.PlotRecord {
	return model.PlotRecord{
		PlotID:                   model.NewPlotID(model.SourceAuthoritative, landNumber),
		LandNumber:               landNumber,
		Area:                     area,
		DistanceFromCenterMeters: dist,
		SourceKind:               model.SourceAuthoritative,
		ConfidenceScore:          model.ConfidenceAuthoritative,
	}
}

func fallbackRecord(landNumber, area, status string, dist float64) model.PlotRecord {
	return model.PlotRecord{
		PlotID:                   model.NewPlotID(model.SourceFallback, landNumber),
		LandNumber:               landNumber,
		Area:                     area,
		DistanceFromCenterMeters: dist,
		LandStatus:               status,
		SourceKind:               model.SourceFallback,
		IsFallback:               true,
		ConfidenceScore:          model.ConfidenceFallback,
	}
}

func TestConsolidate_ReferenceScenario(t *testing.T) {
	// Three authoritative features, two fallback plots, one shared MatchKey
	// carrying a Freehold status. Expect 4 records: 3 authoritative (1
	// enriched), 1 fallback-only, sorted ascending by distance, all within
	// 500 * 1.1.
	auth := []model.PlotRecord{
		authRecord("613-1254", "Al Barsha South", 450),
		authRecord("613-2000", "Al Barsha South", 120),
		authRecord("613-3000", "Arjan", 300),
	}
	fb := []model.PlotRecord{
		fallbackRecord("613-1254", "Al Barsha South", "Freehold", 455),
		fallbackRecord("613-8000", "Arjan", "Leasehold", 520),
	}

	c := Consolidate(auth, fb, 500)

	require.Equal(t, 4, c.TotalCount)
	assert.Equal(t, 3, c.AuthoritativeCount)
	assert.Equal(t, 2, c.FallbackCount)
	assert.Equal(t, 1, c.FallbackOnlyCount)
	assert.Equal(t, 1, c.EnrichedCount)

	// Sorted ascending by distance.
	for i := 1; i < len(c.Records); i++ {
		assert.LessOrEqual(t, c.Records[i-1].DistanceFromCenterMeters, c.Records[i].DistanceFromCenterMeters)
	}

	// All within the tolerance radius.
	for _, r := range c.Records {
		assert.LessOrEqual(t, r.DistanceFromCenterMeters, 550.0)
	}

	// The enriched record keeps authoritative provenance and full confidence.
	var enriched *model.PlotRecord
	for i := range c.Records {
		if c.Records[i].LandNumber == "613-1254" {
			enriched = &c.Records[i]
		}
	}
	require.NotNil(t, enriched)
	assert.Equal(t, "Freehold", enriched.LandStatus)
	assert.Equal(t, 1.0, enriched.ConfidenceScore)
	assert.Equal(t, model.SourceAuthoritative, enriched.SourceKind)
	assert.False(t, enriched.IsFallback)

	// The fallback-only record keeps reduced confidence.
	var standalone *model.PlotRecord
	for i := range c.Records {
		if c.Records[i].LandNumber == "613-8000" {
			standalone = &c.Records[i]
		}
	}
	require.NotNil(t, standalone)
	assert.Equal(t, model.ConfidenceFallback, standalone.ConfidenceScore)
	assert.True(t, standalone.IsFallback)
}

func TestConsolidate_OrderIndependent(t *testing.T) {
	auth := []model.PlotRecord{
		authRecord("a-1", "Arjan", 100),
		authRecord("a-2", "Arjan", 200),
		authRecord("a-3", "Meydan", 300),
	}
	fb := []model.PlotRecord{
		fallbackRecord("a-2", "Arjan", "Freehold", 210),
		fallbackRecord("f-1", "Meydan", "Granted", 150),
	}

	base := Consolidate(auth, fb, 500)

	for range 10 {
		shuffledAuth := slicesClone(auth)
		shuffledFb := slicesClone(fb)
		rand.Shuffle(len(shuffledAuth), func(i, j int) {
			shuffledAuth[i], shuffledAuth[j] = shuffledAuth[j], shuffledAuth[i]
		})
		rand.Shuffle(len(shuffledFb), func(i, j int) {
			shuffledFb[i], shuffledFb[j] = shuffledFb[j], shuffledFb[i]
		})

		got := Consolidate(shuffledAuth, shuffledFb, 500)
		assert.Equal(t, base.Records, got.Records)
		assert.Equal(t, base.EnrichedCount, got.EnrichedCount)
		assert.Equal(t, base.FallbackOnlyCount, got.FallbackOnlyCount)
	}
}

func slicesClone(in []model.PlotRecord) []model.PlotRecord {
	out := make([]model.PlotRecord, len(in))
	copy(out, in)
	return out
}

func TestConsolidate_EnrichmentCopiesOnlyStatus(t *testing.T) {
	auth := authRecord("613-1254", "Al Barsha South", 100)
	auth.Latitude = 25.0660
	auth.Longitude = 55.1710
	auth.Geometry = []byte(`{"type":"Polygon"}`)
	auth.Attributes = map[string]any{"municipality_number": "3731"}

	fb := fallbackRecord("613-1254", "Al Barsha South", "Freehold", 105)
	fb.Latitude = 25.9999
	fb.Longitude = 55.9999
	fb.Attributes = map[string]any{"certificate_number": "CRT-1"}

	c := Consolidate([]model.PlotRecord{auth}, []model.PlotRecord{fb}, 500)

	require.Len(t, c.Records, 1)
	got := c.Records[0]
	assert.Equal(t, "Freehold", got.LandStatus)
	// Everything else stays authoritative.
	assert.InDelta(t, 25.0660, got.Latitude, 1e-9)
	assert.InDelta(t, 55.1710, got.Longitude, 1e-9)
	assert.Equal(t, "3731", got.Attributes["municipality_number"])
	assert.NotContains(t, got.Attributes, "certificate_number")
	assert.NotEmpty(t, got.Geometry)
}

func TestConsolidate_MatchWithoutStatusConsumesKey(t *testing.T) {
	// A fallback counterpart with no status string still represents the same
	// physical plot; it must not be emitted a second time.
	auth := []model.PlotRecord{authRecord("613-1254", "Al Barsha South", 100)}
	fb := []model.PlotRecord{fallbackRecord("613-1254", "Al Barsha South", "", 105)}

	c := Consolidate(auth, fb, 500)

	require.Len(t, c.Records, 1)
	assert.Equal(t, 0, c.EnrichedCount)
	assert.Equal(t, 0, c.FallbackOnlyCount)
	assert.Empty(t, c.Records[0].LandStatus)
}

func TestConsolidate_NoMatchDegradesToSeparateRecords(t *testing.T) {
	// Different areas break the MatchKey even with equal land numbers:
	// false positives are avoided by using both fields.
	auth := []model.PlotRecord{authRecord("613-1254", "Al Barsha South", 100)}
	fb := []model.PlotRecord{fallbackRecord("613-1254", "Dubai Marina", "Freehold", 105)}

	c := Consolidate(auth, fb, 500)

	require.Len(t, c.Records, 2)
	assert.Equal(t, 1, c.FallbackOnlyCount)
	assert.Equal(t, 0, c.EnrichedCount)
}

func TestConsolidate_DuplicateSameSourceKeyFirstWins(t *testing.T) {
	fb := []model.PlotRecord{
		fallbackRecord("613-1254", "Arjan", "Freehold", 100),
		fallbackRecord("613-1254", "Arjan", "Leasehold", 200),
	}

	c := Consolidate(nil, fb, 500)

	require.Len(t, c.Records, 1)
	assert.Equal(t, "Freehold", c.Records[0].LandStatus)
	assert.Equal(t, 1, c.DuplicateKeyCount)
}

func TestConsolidate_RadiusBound(t *testing.T) {
	auth := []model.PlotRecord{
		authRecord("in", "Arjan", 549),
		authRecord("edge", "Arjan", 550),
		authRecord("out", "Arjan", 551),
	}

	c := Consolidate(auth, nil, 500)

	require.Len(t, c.Records, 2)
	for _, r := range c.Records {
		assert.LessOrEqual(t, r.DistanceFromCenterMeters, 500*1.1)
	}
}

func TestConsolidate_BothEmpty(t *testing.T) {
	c := Consolidate(nil, nil, 500)
	assert.Empty(t, c.Records)
	assert.Equal(t, 0, c.TotalCount)
}
