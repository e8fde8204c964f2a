package source

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/plotwise/landmatch/internal/geo"
	"github.com/plotwise/landmatch/internal/model"
)

const (
	// DefaultTripThreshold is how many consecutive upstream failures open
	// the breaker.
	DefaultTripThreshold = 5
	// DefaultResetAfter is how long an open breaker waits before letting a
	// probe query through.
	DefaultResetAfter = 30 * time.Second
)

// ErrBreakerOpen is returned without touching the upstream when the breaker
// is open. The engine treats it like any other source failure, so a tripped
// source degrades the response instead of stalling it.
var ErrBreakerOpen = eris.New("source: breaker open")

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateProbing
)

func (s breakerState) String() string {
	switch s {
	case stateClosed:
		return "closed"
	case stateOpen:
		return "open"
	case stateProbing:
		return "probing"
	default:
		return "unknown"
	}
}

// Breaker short-circuits queries to an upstream that keeps failing. Closed
// passes everything through; after threshold consecutive failures it opens
// and rejects immediately; once resetAfter elapses a single probe query is
// allowed, and its outcome decides whether the breaker closes again.
type Breaker struct {
	threshold  int
	resetAfter time.Duration

	mu          sync.Mutex
	state       breakerState
	failures    int
	lastFailure time.Time

	now func() time.Time
}

// NewBreaker builds a Breaker. Non-positive arguments fall back to the
// package defaults.
func NewBreaker(threshold int, resetAfter time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = DefaultTripThreshold
	}
	if resetAfter <= 0 {
		resetAfter = DefaultResetAfter
	}
	return &Breaker{
		threshold:  threshold,
		resetAfter: resetAfter,
		now:        time.Now,
	}
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateOpen:
		if b.now().Sub(b.lastFailure) < b.resetAfter {
			return false
		}
		b.state = stateProbing
		return true
	default:
		return true
	}
}

func (b *Breaker) record(err error, kind model.SourceKind) {
	// A caller hanging up is not an upstream failure.
	if errors.Is(err, context.Canceled) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		if b.state != stateClosed {
			zap.L().Info("source breaker closed",
				zap.String("source", string(kind)))
		}
		b.state = stateClosed
		b.failures = 0
		return
	}

	b.failures++
	b.lastFailure = b.now()
	if b.state == stateProbing || b.failures >= b.threshold {
		if b.state != stateOpen {
			zap.L().Warn("source breaker opened",
				zap.String("source", string(kind)),
				zap.Int("consecutive_failures", b.failures))
		}
		b.state = stateOpen
	}
}

// State reports the breaker position, accounting for an elapsed reset window.
func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == stateOpen && b.now().Sub(b.lastFailure) >= b.resetAfter {
		return stateProbing.String()
	}
	return b.state.String()
}

type guardedClient struct {
	inner   Client
	breaker *Breaker
}

// WithBreaker wraps a source client so repeated upstream failures are
// short-circuited instead of re-queried on every request.
func WithBreaker(c Client, b *Breaker) Client {
	return &guardedClient{inner: c, breaker: b}
}

func (g *guardedClient) Kind() model.SourceKind { return g.inner.Kind() }

func (g *guardedClient) Query(ctx context.Context, center geo.Point, radiusMeters float64) ([]model.PlotRecord, error) {
	if !g.breaker.allow() {
		return nil, eris.Wrapf(ErrBreakerOpen, "source: %s", g.inner.Kind())
	}
	records, err := g.inner.Query(ctx, center, radiusMeters)
	g.breaker.record(err, g.inner.Kind())
	return records, err
}
