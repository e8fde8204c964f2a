// Package engine runs the two upstream sources concurrently and consolidates
// their results into one authoritative record set.
package engine

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/plotwise/landmatch/internal/geo"
	"github.com/plotwise/landmatch/internal/model"
	"github.com/plotwise/landmatch/internal/source"
)

// Default per-source timeouts. The polygon service is slower than the status
// store, so it gets a longer leash.
const (
	DefaultAuthoritativeTimeout = 10 * time.Second
	DefaultFallbackTimeout      = 8 * time.Second
)

// SourceResult is the outcome of one source query. A failed source is a
// normal value, never a request failure.
type SourceResult struct {
	Records   []model.PlotRecord
	Success   bool
	Error     string
	ElapsedMs int64
}

// QueryOutput holds both source outcomes for one request.
type QueryOutput struct {
	Authoritative SourceResult
	Fallback      SourceResult
}

// ParallelQuery issues both source queries concurrently, each bounded by its
// own timeout.
type ParallelQuery struct {
	authoritative source.Client
	fallback      source.Client

	authoritativeTimeout time.Duration
	fallbackTimeout      time.Duration
}

// Option configures the engine.
type Option func(*ParallelQuery)

// WithTimeouts overrides the per-source timeouts.
func WithTimeouts(authoritative, fallback time.Duration) Option {
	return func(e *ParallelQuery) {
		if authoritative > 0 {
			e.authoritativeTimeout = authoritative
		}
		if fallback > 0 {
			e.fallbackTimeout = fallback
		}
	}
}

// NewParallelQuery creates the engine over the two source adapters.
func NewParallelQuery(authoritative, fallback source.Client, opts ...Option) *ParallelQuery {
	e := &ParallelQuery{
		authoritative:        authoritative,
		fallback:             fallback,
		authoritativeTimeout: DefaultAuthoritativeTimeout,
		fallbackTimeout:      DefaultFallbackTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Query launches both sources simultaneously and always returns a response.
// A timeout or error on one source converts to a failed SourceResult for that
// source only; it never aborts or taints the other. Each source runs under
// its own child context so a timeout actually tears down the in-flight call.
func (e *ParallelQuery) Query(ctx context.Context, center geo.Point, radiusMeters float64) QueryOutput {
	var out QueryOutput

	// Errors are captured in the per-source results, so the group never
	// cancels one source because of the other.
	g := new(errgroup.Group)
	g.Go(func() error {
		out.Authoritative = e.querySource(ctx, e.authoritative, e.authoritativeTimeout, center, radiusMeters)
		return nil
	})
	g.Go(func() error {
		out.Fallback = e.querySource(ctx, e.fallback, e.fallbackTimeout, center, radiusMeters)
		return nil
	})
	_ = g.Wait()

	return out
}

func (e *ParallelQuery) querySource(ctx context.Context, src source.Client, timeout time.Duration, center geo.Point, radiusMeters float64) SourceResult {
	srcCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	records, err := src.Query(srcCtx, center, radiusMeters)
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		zap.L().Warn("source query failed",
			zap.String("source", string(src.Kind())),
			zap.Int64("elapsed_ms", elapsed),
			zap.Error(err),
		)
		return SourceResult{Success: false, Error: err.Error(), ElapsedMs: elapsed}
	}

	return SourceResult{Records: records, Success: true, ElapsedMs: elapsed}
}
