package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/antonvlk/meteohub/internal/models"
	apperrors "github.com/antonvlk/meteohub/pkg/errors"
	"github.com/antonvlk/meteohub/pkg/logger"
)

// DefaultTimeout bounds every store operation unless overridden.
const DefaultTimeout = 5 * time.Second

// DefaultRetention keeps 90 days of readings, matching the station default.
const DefaultRetention = 90 * 24 * time.Hour

// Selector narrows queries to a zone and/or sensor kind. Empty fields match
// everything.
type Selector struct {
	Zone       string
	SensorKind string
}

// RetentionPolicy bounds how far back readings are kept. A zero Duration
// falls back to DefaultRetention.
type RetentionPolicy struct {
	Duration time.Duration
}

// SensorOverview summarises stored readings for one (sensor kind, zone) pair.
type SensorOverview struct {
	SensorKind string    `json:"sensor_kind"`
	Zone       string    `json:"zone"`
	Count      int64     `json:"count"`
	Newest     time.Time `json:"newest"`
}

// ReadingStore owns the persisted readings table. Inserts and retention
// sweeps serialize on an internal mutex (single-writer discipline); reads
// proceed concurrently under WAL.
type ReadingStore struct {
	db      *gorm.DB
	timeout time.Duration
	now     func() time.Time
	writeMu chan struct{}
	log     *zap.Logger
}

// Option customises a ReadingStore.
type Option func(*ReadingStore)

// WithTimeout overrides the per-operation timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(s *ReadingStore) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// WithClock substitutes the time source, primarily for tests.
func WithClock(now func() time.Time) Option {
	return func(s *ReadingStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewReadingStore constructs the store once a database handle is supplied.
func NewReadingStore(db *gorm.DB, opts ...Option) (*ReadingStore, error) {
	if db == nil {
		return nil, errors.New("reading store: db is required")
	}

	s := &ReadingStore{
		db:      db,
		timeout: DefaultTimeout,
		now:     time.Now,
		writeMu: make(chan struct{}, 1),
		log:     logger.WithModule("store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// acquireWrite takes the writer slot, bounded by ctx so a caller's deadline
// also covers time spent waiting behind another writer.
func (s *ReadingStore) acquireWrite(ctx context.Context) error {
	select {
	case s.writeMu <- struct{}{}:
		return nil
	case <-ctx.Done():
		return apperrors.ErrStoreUnavailable.WithInternal(fmt.Errorf("reading store: waiting for writer: %w", ctx.Err()))
	}
}

func (s *ReadingStore) releaseWrite() {
	<-s.writeMu
}

// opContext derives the bounded context every store operation runs under.
func (s *ReadingStore) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// scoped applies the selector filters to a readings query.
func (s *ReadingStore) scoped(ctx context.Context, selector Selector) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&models.Reading{})
	if zone := strings.TrimSpace(selector.Zone); zone != "" {
		q = q.Where("zone = ?", zone)
	}
	if kind := strings.TrimSpace(selector.SensorKind); kind != "" {
		q = q.Where("sensor_kind = ?", kind)
	}
	return q
}

// mapError folds timeouts and lock contention into the retryable
// unavailability sentinel; everything else passes through annotated.
func (s *ReadingStore) mapError(op string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return apperrors.ErrStoreUnavailable.WithInternal(fmt.Errorf("reading store: %s: %w", op, err))
	case isBusy(err):
		return apperrors.ErrStoreUnavailable.WithInternal(fmt.Errorf("reading store: %s: %w", op, err))
	default:
		return fmt.Errorf("reading store: %s: %w", op, err)
	}
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "SQLITE_BUSY")
}

func ensuredContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
