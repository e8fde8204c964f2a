// Package model defines the plot record types shared across the lookup service.
package model

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// SourceKind identifies which upstream provider produced a record.
type SourceKind string

const (
	// SourceAuthoritative is the polygon-based GIS provider.
	SourceAuthoritative SourceKind = "authoritative"
	// SourceFallback is the radius-based status provider.
	SourceFallback SourceKind = "fallback"
)

// Confidence scores by provenance. Enrichment never degrades confidence:
// an authoritative record stays at 1.0 even after copying the fallback status.
const (
	ConfidenceAuthoritative = 1.0
	ConfidenceFallback      = 0.65
)

// VerificationSource records how a cache entry was last verified.
type VerificationSource string

const (
	VerifyUserSearch   VerificationSource = "user_search"
	VerifyAPIWebhook   VerificationSource = "api_webhook"
	VerifyManualImport VerificationSource = "manual_import"
)

// PlotRecord is a single land plot observation from one provider, or the
// consolidated view of both.
type PlotRecord struct {
	PlotID                   string         `json:"plot_id"`
	LandNumber               string         `json:"land_number"`
	Area                     string         `json:"area"`
	Latitude                 float64        `json:"latitude"`
	Longitude                float64        `json:"longitude"`
	DistanceFromCenterMeters float64        `json:"distance_from_center_meters"`
	LandStatus               string         `json:"land_status,omitempty"`
	SourceKind               SourceKind     `json:"source_kind"`
	IsFallback               bool           `json:"is_fallback"`
	ConfidenceScore          float64        `json:"confidence_score"`
	Geometry                 json.RawMessage `json:"geometry,omitempty"`
	Attributes               map[string]any `json:"attributes,omitempty"`
}

// CacheEntry wraps a PlotRecord with the metadata the durable tier tracks.
type CacheEntry struct {
	Record             PlotRecord         `json:"record"`
	LastVerified       time.Time          `json:"last_verified"`
	CacheVersion       int                `json:"cache_version"`
	NeedsRevalidation  bool               `json:"needs_revalidation"`
	VerificationSource VerificationSource `json:"verification_source"`
}

var fold = cases.Fold()

// NormalizeLandNumber lowercases, trims, and collapses internal whitespace so
// identifiers compare equal regardless of upstream formatting.
func NormalizeLandNumber(s string) string {
	return strings.Join(strings.Fields(fold.String(s)), " ")
}

// MatchKey is the sole correlation key across sources: normalized land number
// plus normalized area. Stable and case/whitespace-insensitive.
func MatchKey(landNumber, area string) string {
	return NormalizeLandNumber(landNumber) + "-" + NormalizeLandNumber(area)
}

// NewPlotID derives a deterministic identifier from the source kind and the
// normalized land number. The same input always yields the same id.
func NewPlotID(kind SourceKind, landNumber string) string {
	h := sha256.Sum256([]byte(string(kind) + "|" + NormalizeLandNumber(landNumber)))
	return fmt.Sprintf("%x", h[:8])
}
