package ingest

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/antonvlk/meteohub/internal/models"
	"github.com/antonvlk/meteohub/pkg/logger"
	"github.com/antonvlk/meteohub/pkg/metrics"
)

// Inserter is the slice of the reading store the ingest path writes through.
type Inserter interface {
	Insert(ctx context.Context, reading models.Reading) (uint64, error)
}

// Defaults replace the "unknown" sentinels for payloads that do not name
// their zone or source. Empty fields leave the sentinels in place.
type Defaults struct {
	Zone   string
	Source string
}

// ZoneOverrides pins readings of a sensor kind to a fixed zone, for stations
// whose sensor placement is known ahead of time regardless of what the
// firmware reports.
type ZoneOverrides struct {
	Force bool
	Zones map[string]string // sensor kind -> zone
}

func (z ZoneOverrides) zoneFor(kind string) (string, bool) {
	if !z.Force {
		return "", false
	}
	zone, ok := z.Zones[kind]
	if !ok {
		return "", false
	}
	zone = strings.TrimSpace(zone)
	if zone == "" {
		return "", false
	}
	return zone, true
}

// Service drives the write path: normalize, stamp, store, account.
type Service struct {
	store     Inserter
	now       func() time.Time
	defaults  Defaults
	overrides ZoneOverrides
	onStored  func(models.Reading)
	log       *zap.Logger
}

// Option customises a Service.
type Option func(*Service)

// WithClock substitutes the time source, primarily for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithDefaults sets the station-level zone and source used when a payload
// names neither.
func WithDefaults(defaults Defaults) Option {
	return func(s *Service) {
		s.defaults = defaults
	}
}

// WithZoneOverrides enables the forced sensor-kind to zone mapping.
func WithZoneOverrides(overrides ZoneOverrides) Option {
	return func(s *Service) {
		s.overrides = overrides
	}
}

// WithStoredHook registers a callback invoked after each stored reading. The
// bootstrap uses it to drop cached query results for the affected selector.
func WithStoredHook(fn func(models.Reading)) Option {
	return func(s *Service) {
		s.onStored = fn
	}
}

// NewService constructs the ingest service once a store is supplied.
func NewService(store Inserter, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("ingest service: store is required")
	}

	svc := &Service{
		store: store,
		now:   time.Now,
		log:   logger.WithModule("ingest"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Ingest normalizes and persists one device payload, returning the stored
// reading. The timestamp is always assigned server-side; device clocks are
// not trusted.
func (s *Service) Ingest(ctx context.Context, payload map[string]any) (models.Reading, error) {
	if s == nil {
		return models.Reading{}, errors.New("ingest service: service not initialised")
	}
	ctx = ensuredContext(ctx)

	reading, reason, err := normalize(payload)
	if err != nil {
		metrics.IngestRejected.WithLabelValues(reason).Inc()
		return models.Reading{}, err
	}

	reading.Timestamp = s.now().UTC()
	if reading.Zone == UnknownValue {
		if zone := strings.TrimSpace(s.defaults.Zone); zone != "" {
			reading.Zone = zone
		}
	}
	if reading.Source == UnknownValue {
		if source := strings.TrimSpace(s.defaults.Source); source != "" {
			reading.Source = source
		}
	}
	// a forced placement wins over whatever the payload or defaults said
	if zone, ok := s.overrides.zoneFor(reading.SensorKind); ok {
		reading.Zone = zone
	}

	id, err := s.store.Insert(ctx, reading)
	if err != nil {
		return models.Reading{}, err
	}
	reading.ID = id

	metrics.ReadingsIngested.WithLabelValues(reading.SensorKind, reading.Zone).Inc()
	if s.onStored != nil {
		s.onStored(reading)
	}

	s.log.Debug("reading stored",
		zap.Uint64("id", id),
		zap.String("sensor_kind", reading.SensorKind),
		zap.String("zone", reading.Zone),
	)

	return reading, nil
}

func ensuredContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
