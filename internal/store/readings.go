package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/antonvlk/meteohub/internal/database"
	"github.com/antonvlk/meteohub/internal/models"
	apperrors "github.com/antonvlk/meteohub/pkg/errors"
	"github.com/antonvlk/meteohub/pkg/metrics"
)

// readingColumns is the persisted column set Initialize verifies against.
var readingColumns = []string{
	"id", "timestamp", "zone", "source", "sensor_kind",
	"temperature", "humidity", "pressure",
}

// Initialize prepares the schema. It is idempotent: missing tables and
// indexes are created; an existing readings table is verified against the
// expected columns and recorded schema version, and any drift fails with
// ErrSchemaMismatch rather than being repaired in place.
func (s *ReadingStore) Initialize(ctx context.Context) error {
	if s == nil {
		return errors.New("reading store: store not initialised")
	}
	ctx = ensuredContext(ctx)
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if s.db.WithContext(ctx).Migrator().HasTable(&models.Reading{}) {
		if err := s.verifySchema(ctx); err != nil {
			return apperrors.ErrSchemaMismatch.WithInternal(err)
		}
	}

	if err := database.AutoMigrate(s.db.WithContext(ctx)); err != nil {
		return fmt.Errorf("reading store: migrate: %w", err)
	}

	if err := database.EnsureSchemaVersion(ctx, s.db); err != nil {
		return apperrors.ErrSchemaMismatch.WithInternal(err)
	}

	return nil
}

func (s *ReadingStore) verifySchema(ctx context.Context) error {
	columns, err := s.db.WithContext(ctx).Migrator().ColumnTypes(&models.Reading{})
	if err != nil {
		return fmt.Errorf("inspect readings table: %w", err)
	}

	present := make(map[string]bool, len(columns))
	for _, column := range columns {
		present[column.Name()] = true
	}

	for _, required := range readingColumns {
		if !present[required] {
			return fmt.Errorf("readings table is missing column %q", required)
		}
	}
	return nil
}

// Insert appends one reading and returns its assigned row id. Timestamps are
// normalised to UTC before storage so their on-disk text ordering matches
// chronological ordering.
func (s *ReadingStore) Insert(ctx context.Context, reading models.Reading) (uint64, error) {
	if s == nil {
		return 0, errors.New("reading store: store not initialised")
	}
	if !reading.HasMeasurement() {
		return 0, apperrors.NewValidation("reading has no measurements")
	}
	if reading.Timestamp.IsZero() {
		return 0, apperrors.NewValidation("reading timestamp is required")
	}
	ctx = ensuredContext(ctx)
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if err := s.acquireWrite(ctx); err != nil {
		return 0, err
	}
	defer s.releaseWrite()

	reading.ID = 0 // row ids are always assigned by the store
	reading.Timestamp = reading.Timestamp.UTC()

	if err := s.db.WithContext(ctx).Create(&reading).Error; err != nil {
		return 0, s.mapError("insert reading", err)
	}
	return reading.ID, nil
}

// QueryLatest returns the newest reading matching the selector, or nil when
// no reading matches. Equal timestamps resolve to the latest inserted row.
func (s *ReadingStore) QueryLatest(ctx context.Context, selector Selector) (*models.Reading, error) {
	if s == nil {
		return nil, errors.New("reading store: store not initialised")
	}
	ctx = ensuredContext(ctx)
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var reading models.Reading
	err := s.scoped(ctx, selector).
		Order("timestamp DESC, id DESC").
		Limit(1).
		Take(&reading).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, s.mapError("query latest", err)
	}
	return &reading, nil
}

// QueryAt answers "what was known at target": the newest reading at or before
// the target instant, falling back to the earliest reading after it when the
// history does not reach back that far. Nil when the selector matches nothing.
func (s *ReadingStore) QueryAt(ctx context.Context, selector Selector, target time.Time) (*models.Reading, error) {
	if s == nil {
		return nil, errors.New("reading store: store not initialised")
	}
	ctx = ensuredContext(ctx)
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	target = target.UTC()

	var reading models.Reading
	err := s.scoped(ctx, selector).
		Where("timestamp <= ?", target).
		Order("timestamp DESC, id DESC").
		Limit(1).
		Take(&reading).Error
	if err == nil {
		return &reading, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, s.mapError("query at", err)
	}

	err = s.scoped(ctx, selector).
		Where("timestamp > ?", target).
		Order("timestamp ASC, id ASC").
		Limit(1).
		Take(&reading).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, s.mapError("query at fallback", err)
	}
	return &reading, nil
}

// QueryRange returns readings with from <= timestamp <= to, ascending by
// (timestamp, id). The result is a materialized slice, never a live cursor.
func (s *ReadingStore) QueryRange(ctx context.Context, selector Selector, from, to time.Time) ([]models.Reading, error) {
	if s == nil {
		return nil, errors.New("reading store: store not initialised")
	}
	ctx = ensuredContext(ctx)
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var readings []models.Reading
	err := s.scoped(ctx, selector).
		Where("timestamp >= ? AND timestamp <= ?", from.UTC(), to.UTC()).
		Order("timestamp ASC, id ASC").
		Find(&readings).Error
	if err != nil {
		return nil, s.mapError("query range", err)
	}
	return readings, nil
}

// ApplyRetention deletes readings older than the policy window and reports
// how many rows went away. Sweeps take the writer slot, and repeat runs
// delete nothing until time advances past the boundary again.
func (s *ReadingStore) ApplyRetention(ctx context.Context, policy RetentionPolicy) (int64, error) {
	if s == nil {
		return 0, errors.New("reading store: store not initialised")
	}
	ctx = ensuredContext(ctx)
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	duration := policy.Duration
	if duration <= 0 {
		duration = DefaultRetention
	}
	cutoff := s.now().UTC().Add(-duration)

	if err := s.acquireWrite(ctx); err != nil {
		return 0, err
	}
	defer s.releaseWrite()

	result := s.db.WithContext(ctx).
		Where("timestamp < ?", cutoff).
		Delete(&models.Reading{})
	if result.Error != nil {
		return 0, s.mapError("apply retention", result.Error)
	}

	deleted := result.RowsAffected
	if deleted > 0 {
		metrics.RetentionDeleted.Add(float64(deleted))
		if err := s.reclaimSpace(ctx); err != nil {
			s.log.Warn("incremental vacuum failed", zap.Error(err))
		}
		s.log.Info("retention sweep removed readings",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff),
		)
	}
	return deleted, nil
}

// reclaimSpace hands freed pages back to the filesystem after a sweep.
func (s *ReadingStore) reclaimSpace(ctx context.Context) error {
	if s.db.Dialector.Name() != "sqlite" {
		return nil
	}
	return s.db.WithContext(ctx).Exec("PRAGMA incremental_vacuum").Error
}

// Overview summarises the store per (sensor kind, zone) for diagnostics.
func (s *ReadingStore) Overview(ctx context.Context) ([]SensorOverview, error) {
	if s == nil {
		return nil, errors.New("reading store: store not initialised")
	}
	ctx = ensuredContext(ctx)
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	type groupRow struct {
		SensorKind string
		Zone       string
		Count      int64
	}

	var groups []groupRow
	err := s.db.WithContext(ctx).
		Model(&models.Reading{}).
		Select("sensor_kind, zone, COUNT(*) AS count").
		Group("sensor_kind").
		Group("zone").
		Order("sensor_kind ASC, zone ASC").
		Scan(&groups).Error
	if err != nil {
		return nil, s.mapError("overview", err)
	}

	overview := make([]SensorOverview, 0, len(groups))
	for _, group := range groups {
		latest, err := s.QueryLatest(ctx, Selector{Zone: group.Zone, SensorKind: group.SensorKind})
		if err != nil {
			return nil, err
		}
		if latest == nil {
			// the group vanished under a concurrent sweep
			continue
		}
		overview = append(overview, SensorOverview{
			SensorKind: group.SensorKind,
			Zone:       group.Zone,
			Count:      group.Count,
			Newest:     latest.Timestamp,
		})
	}
	return overview, nil
}
