package query

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/antonvlk/meteohub/internal/models"
	"github.com/antonvlk/meteohub/internal/store"
	apperrors "github.com/antonvlk/meteohub/pkg/errors"
	"github.com/antonvlk/meteohub/pkg/logger"
	"github.com/antonvlk/meteohub/pkg/metrics"
)

// ReadingSource is the slice of the reading store the engine queries.
type ReadingSource interface {
	QueryLatest(ctx context.Context, selector store.Selector) (*models.Reading, error)
	QueryAt(ctx context.Context, selector store.Selector, at time.Time) (*models.Reading, error)
	QueryRange(ctx context.Context, selector store.Selector, from, to time.Time) ([]models.Reading, error)
	Overview(ctx context.Context) ([]store.SensorOverview, error)
}

// Delta describes how one measurement moved between the endpoints of a
// trend window.
type Delta struct {
	Start  float64 `json:"start"`
	End    float64 `json:"end"`
	Change float64 `json:"change"`
}

// TrendResult summarises the readings inside a trend window. Fewer than
// two samples leave every delta nil; that is an answer, not a failure.
type TrendResult struct {
	SampleCount int             `json:"sample_count"`
	Start       *models.Reading `json:"start,omitempty"`
	End         *models.Reading `json:"end,omitempty"`
	Temperature *Delta          `json:"temperature,omitempty"`
	Humidity    *Delta          `json:"humidity,omitempty"`
	Pressure    *Delta          `json:"pressure,omitempty"`
}

// Engine answers time-oriented questions on top of the store primitives.
type Engine struct {
	source ReadingSource
	now    func() time.Time
	log    *zap.Logger
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine constructs a query engine over the supplied reading source.
func NewEngine(source ReadingSource, opts ...Option) (*Engine, error) {
	if source == nil {
		return nil, errors.New("query engine: reading source is required")
	}
	e := &Engine{
		source: source,
		now:    time.Now,
		log:    logger.WithModule("query"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e, nil
}

// Current returns the latest reading matching the selector, or nil when
// nothing has been recorded yet.
func (e *Engine) Current(ctx context.Context, selector store.Selector) (*models.Reading, error) {
	if e == nil {
		return nil, errors.New("query engine: engine not initialised")
	}
	defer observe("current", time.Now())

	return e.source.QueryLatest(ensuredContext(ctx), selector)
}

// Ago returns the reading that was current the given number of minutes
// before now. Asking about an instant older than retained history clamps
// to the oldest reading on record.
func (e *Engine) Ago(ctx context.Context, selector store.Selector, minutes int) (*models.Reading, error) {
	if e == nil {
		return nil, errors.New("query engine: engine not initialised")
	}
	if minutes <= 0 {
		return nil, apperrors.NewValidation("minutes must be greater than zero")
	}
	defer observe("ago", time.Now())

	target := e.now().UTC().Add(-time.Duration(minutes) * time.Minute)
	return e.source.QueryAt(ensuredContext(ctx), selector, target)
}

// Trend compares the endpoints of the window [now-minutes, now]. The
// change is the plain endpoint difference per measurement; a measurement
// absent from either endpoint yields no delta for it.
func (e *Engine) Trend(ctx context.Context, selector store.Selector, minutes int) (TrendResult, error) {
	if e == nil {
		return TrendResult{}, errors.New("query engine: engine not initialised")
	}
	if minutes <= 0 {
		return TrendResult{}, apperrors.NewValidation("minutes must be greater than zero")
	}
	defer observe("trend", time.Now())

	to := e.now().UTC()
	from := to.Add(-time.Duration(minutes) * time.Minute)
	readings, err := e.source.QueryRange(ensuredContext(ctx), selector, from, to)
	if err != nil {
		return TrendResult{}, err
	}

	result := TrendResult{SampleCount: len(readings)}
	if len(readings) == 0 {
		return result, nil
	}
	first := readings[0]
	last := readings[len(readings)-1]
	result.Start = &first
	result.End = &last
	if len(readings) < 2 {
		return result, nil
	}
	result.Temperature = deltaBetween(first.Temperature, last.Temperature)
	result.Humidity = deltaBetween(first.Humidity, last.Humidity)
	result.Pressure = deltaBetween(first.Pressure, last.Pressure)

	e.log.Debug("trend computed",
		zap.String("zone", selector.Zone),
		zap.String("sensor_kind", selector.SensorKind),
		zap.Int("minutes", minutes),
		zap.Int("samples", result.SampleCount),
	)
	return result, nil
}

// Overview reports the per sensor kind and zone summary.
func (e *Engine) Overview(ctx context.Context) ([]store.SensorOverview, error) {
	if e == nil {
		return nil, errors.New("query engine: engine not initialised")
	}
	defer observe("overview", time.Now())

	return e.source.Overview(ensuredContext(ctx))
}

func deltaBetween(start, end *float64) *Delta {
	if start == nil || end == nil {
		return nil
	}
	return &Delta{Start: *start, End: *end, Change: *end - *start}
}

func observe(kind string, start time.Time) {
	metrics.QueryLatency.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

func ensuredContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
