package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/antonvlk/meteohub/internal/store"
	"github.com/antonvlk/meteohub/pkg/logger"
)

const (
	defaultSweepSpec      = "@hourly"
	defaultCheckpointSpec = "@daily"
)

// RetentionStore is the slice of the reading store the sweeper drives.
type RetentionStore interface {
	ApplyRetention(ctx context.Context, policy store.RetentionPolicy) (int64, error)
}

// Sweeper coordinates background maintenance: enforcing the retention window
// on stored readings and folding the WAL back into the database file. A nil
// dependency results in the corresponding job being skipped.
type Sweeper struct {
	readings RetentionStore
	db       *gorm.DB
	policy   store.RetentionPolicy
	cron     *cron.Cron
	now      func() time.Time
	log      *zap.Logger
	enabled  bool

	sweepSchedule      string
	checkpointSchedule string
}

// Option customises the Sweeper.
type Option func(*Sweeper)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(s *Sweeper) {
		if c != nil {
			s.cron = c
		}
	}
}

// WithNow overrides the clock used for maintenance bookkeeping.
func WithNow(now func() time.Time) Option {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// WithDatabase enables the WAL checkpoint job on the supplied connection.
func WithDatabase(db *gorm.DB) Option {
	return func(s *Sweeper) {
		s.db = db
	}
}

// WithSweepSchedule overrides the cron specification for the retention sweep.
func WithSweepSchedule(spec string) Option {
	return func(s *Sweeper) {
		if spec != "" {
			s.sweepSchedule = spec
		}
	}
}

// WithCheckpointSchedule overrides the cron specification for the WAL checkpoint.
func WithCheckpointSchedule(spec string) Option {
	return func(s *Sweeper) {
		if spec != "" {
			s.checkpointSchedule = spec
		}
	}
}

// NewSweeper constructs a Sweeper with sensible defaults.
func NewSweeper(readings RetentionStore, policy store.RetentionPolicy, opts ...Option) *Sweeper {
	sweeper := &Sweeper{
		readings:           readings,
		policy:             policy,
		now:                time.Now,
		sweepSchedule:      defaultSweepSpec,
		checkpointSchedule: defaultCheckpointSpec,
		log:                logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(sweeper)
	}

	if sweeper.cron == nil {
		sweeper.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	sweeper.enabled = sweeper.readings != nil || sweeper.db != nil

	return sweeper
}

// Start registers the maintenance jobs with the cron scheduler and launches
// it if at least one job is enabled.
func (s *Sweeper) Start() error {
	if !s.enabled {
		return nil
	}

	if s.readings != nil {
		if _, err := s.cron.AddFunc(s.sweepSchedule, func() {
			ctx := context.Background()
			if _, err := s.readings.ApplyRetention(ctx, s.policy); err != nil {
				s.log.Warn("retention sweep failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if s.db != nil {
		if _, err := s.cron.AddFunc(s.checkpointSchedule, func() {
			ctx := context.Background()
			if err := CheckpointWAL(ctx, s.db); err != nil {
				s.log.Warn("wal checkpoint failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	s.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (s *Sweeper) Stop() context.Context {
	if s.cron == nil {
		return context.Background()
	}
	return s.cron.Stop()
}

// RunOnce executes all configured maintenance routines sequentially. Used in
// tests and during graceful shutdown.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	start := s.now()
	var errs error

	if s.readings != nil {
		if _, err := s.readings.ApplyRetention(ctx, s.policy); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if s.db != nil {
		if err := CheckpointWAL(ctx, s.db); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	s.log.Debug("maintenance pass complete", zap.Duration("took", s.now().Sub(start)))
	return errs
}

// CheckpointWAL folds the write-ahead log back into the main database file so
// the sidecar files stay small on mostly idle stations. Non-SQLite and
// non-WAL connections are a no-op.
func CheckpointWAL(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return errors.New("checkpoint: db is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if db.Dialector.Name() != "sqlite" {
		return nil
	}

	if err := db.WithContext(ctx).Exec("PRAGMA wal_checkpoint(TRUNCATE)").Error; err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	return nil
}
