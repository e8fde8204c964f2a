// Package ddagis provides a client for the DDA GIS parcel query service, the
// polygon-based spatial provider. It exposes the provider's query contract
// only; mapping features into plot records happens in internal/source.
package ddagis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// Client defines the DDA GIS query operations.
type Client interface {
	// QueryParcels returns all parcel features whose polygons intersect the
	// circle around (lat, lon) with the given radius in meters.
	QueryParcels(ctx context.Context, lat, lon, radiusMeters float64) ([]Feature, error)
}

// Feature is a single parcel feature as reported by the GIS service.
type Feature struct {
	// LandNumber is the parcel register identifier, free-form as upstream
	// reports it.
	LandNumber string
	// ProjectName is the free-text area or project name attached to the
	// parcel. Never canonical; callers must normalize it.
	ProjectName string
	// Geometry is the parcel polygon in WGS84, nil when upstream omitted it.
	Geometry *geom.Polygon
	// RawGeometry preserves the GeoJSON geometry for downstream consumers.
	RawGeometry json.RawMessage
	// Attributes carries the remaining provider fields through opaquely.
	Attributes map[string]any
}

type queryResponse struct {
	Features []struct {
		Attributes map[string]any  `json:"attributes"`
		Geometry   json.RawMessage `json:"geometry"`
	} `json:"features"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a DDA GIS client.
func NewClient(apiKey, baseURL string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) QueryParcels(ctx context.Context, lat, lon, radiusMeters float64) ([]Feature, error) {
	reqURL := fmt.Sprintf("%s/parcels/query?lat=%f&lon=%f&radius_m=%f&f=json", c.baseURL, lat, lon, radiusMeters)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "ddagis: create request")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	body, statusCode, err := retryDo(ctx, c.http, req)
	if err != nil {
		return nil, eris.Wrap(err, "ddagis: request failed")
	}
	if statusCode != http.StatusOK {
		return nil, eris.Errorf("ddagis: unexpected status %d: %s", statusCode, truncate(body, 200))
	}

	var parsed queryResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "ddagis: unmarshal response")
	}

	features := make([]Feature, 0, len(parsed.Features))
	for _, f := range parsed.Features {
		feat := Feature{
			Attributes:  f.Attributes,
			RawGeometry: f.Geometry,
		}
		if s, ok := f.Attributes["land_number"].(string); ok {
			feat.LandNumber = s
		}
		if s, ok := f.Attributes["project_name"].(string); ok {
			feat.ProjectName = s
		}
		if len(f.Geometry) > 0 {
			var g geom.T
			if err := geojson.Unmarshal(f.Geometry, &g); err == nil {
				if poly, ok := g.(*geom.Polygon); ok {
					feat.Geometry = poly
				}
			}
			// Malformed or non-polygon geometry is not fatal; the feature
			// still carries its attributes and raw payload.
		}
		features = append(features, feat)
	}
	return features, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// retryableStatusCode returns true if the HTTP status code should trigger a retry.
func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable
}

// retryDo executes an HTTP request with exponential backoff retries on
// transient failures (429, 500, 502, 503). The backoff stays short so the
// per-source timeout in the query engine still governs total latency.
func retryDo(ctx context.Context, hc *http.Client, req *http.Request) ([]byte, int, error) {
	const maxAttempts = 3
	backoff := 500 * time.Millisecond

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		retryReq := req.Clone(ctx)

		resp, err := hc.Do(retryReq)
		if err != nil {
			lastErr = err
			if attempt < maxAttempts {
				select {
				case <-ctx.Done():
					return nil, 0, ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= 2
				continue
			}
			return nil, 0, lastErr
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, resp.StatusCode, eris.Wrap(readErr, "ddagis: read response body")
		}

		if retryableStatusCode(resp.StatusCode) && attempt < maxAttempts {
			lastErr = eris.Errorf("ddagis: status %d: %s", resp.StatusCode, truncate(body, 200))
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}

		return body, resp.StatusCode, nil
	}

	return nil, 0, lastErr
}
