package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/antonvlk/meteohub/internal/api"
	"github.com/antonvlk/meteohub/internal/app"
	"github.com/antonvlk/meteohub/internal/app/maintenance"
	"github.com/antonvlk/meteohub/internal/database"
	"github.com/antonvlk/meteohub/internal/ingest"
	"github.com/antonvlk/meteohub/internal/models"
	"github.com/antonvlk/meteohub/internal/query"
	"github.com/antonvlk/meteohub/internal/store"
	"github.com/antonvlk/meteohub/pkg/logger"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB       *gorm.DB
	Readings *store.ReadingStore
	Ingest   *ingest.Service
	Queries  *query.CachedEngine
	Sweeper  *maintenance.Sweeper
	Router   *gin.Engine
}

// bootstrapRuntime initialises the database, the reading store, the query
// stack and the HTTP router. A schema mismatch aborts startup: the station
// never rewrites a store it does not recognise.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	stack.Readings, err = store.NewReadingStore(stack.DB, store.WithTimeout(cfg.Store.Timeout))
	if err != nil {
		return nil, fmt.Errorf("initialise reading store: %w", err)
	}
	if err := stack.Readings.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("initialise reading store: %w", err)
	}

	stationID, err := database.EnsureStationInstanceID(ctx, stack.DB)
	if err != nil {
		return nil, fmt.Errorf("ensure station identity: %w", err)
	}
	log.Info("station identity", zap.String("instance_id", stationID))

	engine, err := query.NewEngine(stack.Readings)
	if err != nil {
		return nil, fmt.Errorf("initialise query engine: %w", err)
	}
	stack.Queries, err = query.NewCachedEngine(engine, cfg.Cache.TTL)
	if err != nil {
		return nil, fmt.Errorf("initialise query cache: %w", err)
	}

	stack.Ingest, err = ingest.NewService(stack.Readings,
		ingest.WithDefaults(cfg.Ingest.ServiceDefaults()),
		ingest.WithZoneOverrides(cfg.Ingest.ZoneOverrides()),
		ingest.WithStoredHook(func(r models.Reading) {
			stack.Queries.InvalidateFor(r)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise ingest service: %w", err)
	}

	stack.Sweeper = maintenance.NewSweeper(stack.Readings,
		store.RetentionPolicy{Duration: cfg.Retention.Duration},
		maintenance.WithDatabase(stack.DB),
		maintenance.WithSweepSchedule(cfg.Retention.Schedule),
	)
	if err := stack.Sweeper.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	stack.Router, err = api.NewRouter(stack.DB, stack.Ingest, stack.Queries, cfg)
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Sweeper != nil {
		drainCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		select {
		case <-s.Sweeper.Stop().Done():
			// scheduler drained; fold the WAL and sweep once more before exit
			if err := s.Sweeper.RunOnce(drainCtx); err != nil {
				log.Warn("maintenance shutdown pass failed", zap.Error(err))
			}
		case <-drainCtx.Done():
			log.Warn("maintenance jobs still running at shutdown")
		}
		cancel()
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := convertDatabaseConfig(cfg)
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected",
		zap.String("driver", dbCfg.Driver),
		zap.String("path", dbCfg.Path),
	)

	return db, nil
}

func convertDatabaseConfig(cfg *app.Config) database.Config {
	dbCfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:   strings.TrimSpace(cfg.Database.Path),
		DSN:    strings.TrimSpace(cfg.Database.DSN),
	}
	if dbCfg.Driver == "" {
		dbCfg.Driver = "sqlite"
	}
	return dbCfg
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
