package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/antonvlk/meteohub/internal/app"
	"github.com/antonvlk/meteohub/internal/handlers"
	"github.com/antonvlk/meteohub/internal/ingest"
	"github.com/antonvlk/meteohub/internal/middleware"
)

// NewRouter builds the Gin engine, wires middleware and registers the
// station's routes.
func NewRouter(db *gorm.DB, svc *ingest.Service, queries handlers.QueryService, cfg *app.Config) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if svc == nil {
		return nil, fmt.Errorf("ingest service must be provided")
	}
	if queries == nil {
		return nil, fmt.Errorf("query service must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}

	loc := time.UTC
	if tz := strings.TrimSpace(cfg.Display.Timezone); tz != "" {
		parsed, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("display timezone %q: %w", tz, err)
		}
		loc = parsed
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())

	// Health endpoint
	r.GET("/health", handlers.Health(db))

	readingsHandler, err := handlers.NewReadingsHandler(svc, queries,
		handlers.WithDefaultTrendMinutes(cfg.Query.DefaultTrendMinutes),
		handlers.WithDisplayLocation(loc),
	)
	if err != nil {
		return nil, err
	}

	sensorsHandler, err := handlers.NewSensorsHandler(queries, db, loc)
	if err != nil {
		return nil, err
	}

	api := r.Group("/api")
	{
		api.POST("/ingest", readingsHandler.Ingest)

		readings := api.Group("/readings")
		{
			readings.GET("/current", readingsHandler.Current)
			readings.GET("/ago", readingsHandler.Ago)
			readings.GET("/trend", readingsHandler.Trend)
		}

		api.GET("/sensors", sensorsHandler.List)
	}

	// Metrics endpoint
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
