package query

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/antonvlk/meteohub/internal/cache"
	"github.com/antonvlk/meteohub/internal/models"
	"github.com/antonvlk/meteohub/internal/store"
	apperrors "github.com/antonvlk/meteohub/pkg/errors"
)

// queryKey identifies one cached question: which question was asked, the
// normalized selector, and the window size. Zone and sensor values are
// free-form strings, so the key keeps them as separate fields; flattening
// them into one string would let different selectors collide.
type queryKey struct {
	kind       string
	zone       string
	sensorKind string
	minutes    int
}

func keyFor(kind string, selector store.Selector, minutes int) queryKey {
	return queryKey{
		kind:       kind,
		zone:       strings.TrimSpace(selector.Zone),
		sensorKind: strings.TrimSpace(selector.SensorKind),
		minutes:    minutes,
	}
}

// CachedEngine debounces the query engine: identical questions asked
// within the ttl share one answer, and concurrent identical questions
// share one store round trip.
type CachedEngine struct {
	engine  *Engine
	current *cache.Cache[queryKey, *models.Reading]
	ago     *cache.Cache[queryKey, *models.Reading]
	trend   *cache.Cache[queryKey, TrendResult]
}

// NewCachedEngine wraps engine with per question-kind result caches.
func NewCachedEngine(engine *Engine, ttl time.Duration) (*CachedEngine, error) {
	if engine == nil {
		return nil, errors.New("query engine: engine is required")
	}
	return &CachedEngine{
		engine:  engine,
		current: cache.New[queryKey, *models.Reading](ttl),
		ago:     cache.New[queryKey, *models.Reading](ttl),
		trend:   cache.New[queryKey, TrendResult](ttl),
	}, nil
}

// Current answers like Engine.Current, served from the cache when fresh.
func (ce *CachedEngine) Current(ctx context.Context, selector store.Selector) (*models.Reading, error) {
	if ce == nil {
		return nil, errors.New("query engine: cached engine not initialised")
	}
	reading, err := ce.current.GetOrCompute(ctx, keyFor("current", selector, 0), func(ctx context.Context) (*models.Reading, error) {
		return ce.engine.Current(ctx, selector)
	})
	return reading, mapWaitErr(err)
}

// Ago answers like Engine.Ago. The cached answer can lag real time by up
// to the ttl, which is the debounce contract.
func (ce *CachedEngine) Ago(ctx context.Context, selector store.Selector, minutes int) (*models.Reading, error) {
	if ce == nil {
		return nil, errors.New("query engine: cached engine not initialised")
	}
	reading, err := ce.ago.GetOrCompute(ctx, keyFor("ago", selector, minutes), func(ctx context.Context) (*models.Reading, error) {
		return ce.engine.Ago(ctx, selector, minutes)
	})
	return reading, mapWaitErr(err)
}

// Trend answers like Engine.Trend, served from the cache when fresh.
func (ce *CachedEngine) Trend(ctx context.Context, selector store.Selector, minutes int) (TrendResult, error) {
	if ce == nil {
		return TrendResult{}, errors.New("query engine: cached engine not initialised")
	}
	result, err := ce.trend.GetOrCompute(ctx, keyFor("trend", selector, minutes), func(ctx context.Context) (TrendResult, error) {
		return ce.engine.Trend(ctx, selector, minutes)
	})
	return result, mapWaitErr(err)
}

// Overview passes through uncached; it is a diagnostics surface and every
// insert would invalidate it anyway.
func (ce *CachedEngine) Overview(ctx context.Context) ([]store.SensorOverview, error) {
	if ce == nil {
		return nil, errors.New("query engine: cached engine not initialised")
	}
	return ce.engine.Overview(ctx)
}

// InvalidateFor drops cached answers a freshly stored reading could have
// changed: entries scoped to its zone and kind, plus the unfiltered ones.
// It reports how many entries were dropped.
func (ce *CachedEngine) InvalidateFor(reading models.Reading) int {
	if ce == nil {
		return 0
	}
	match := func(key queryKey) bool {
		return (key.zone == "" || key.zone == reading.Zone) &&
			(key.sensorKind == "" || key.sensorKind == reading.SensorKind)
	}
	return ce.current.Invalidate(match) +
		ce.ago.Invalidate(match) +
		ce.trend.Invalidate(match)
}

// mapWaitErr folds a cache wait cut short by the caller's own context into
// the retryable unavailability sentinel. Errors the engine already
// classified pass through untouched.
func mapWaitErr(err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperrors.ErrStoreUnavailable.WithInternal(err)
	}
	return err
}
