package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/antonvlk/meteohub/internal/ingest"
	"github.com/antonvlk/meteohub/internal/models"
	"github.com/antonvlk/meteohub/internal/query"
	"github.com/antonvlk/meteohub/internal/store"
	apperrors "github.com/antonvlk/meteohub/pkg/errors"
	"github.com/antonvlk/meteohub/pkg/response"
)

// QueryService is the slice of the query engine the HTTP layer consumes.
// Both query.Engine and query.CachedEngine satisfy it.
type QueryService interface {
	Current(ctx context.Context, selector store.Selector) (*models.Reading, error)
	Ago(ctx context.Context, selector store.Selector, minutes int) (*models.Reading, error)
	Trend(ctx context.Context, selector store.Selector, minutes int) (query.TrendResult, error)
	Overview(ctx context.Context) ([]store.SensorOverview, error)
}

// ReadingsHandler serves the ingest endpoint and the current/ago/trend
// query surface.
type ReadingsHandler struct {
	ingest       *ingest.Service
	queries      QueryService
	trendMinutes int
	loc          *time.Location
}

// ReadingsOption customises a ReadingsHandler.
type ReadingsOption func(*ReadingsHandler)

// WithDefaultTrendMinutes sets the window used when a trend request names none.
func WithDefaultTrendMinutes(minutes int) ReadingsOption {
	return func(h *ReadingsHandler) {
		if minutes > 0 {
			h.trendMinutes = minutes
		}
	}
}

// WithDisplayLocation sets the timezone used for the human-facing local_time
// field. Stored timestamps stay UTC.
func WithDisplayLocation(loc *time.Location) ReadingsOption {
	return func(h *ReadingsHandler) {
		if loc != nil {
			h.loc = loc
		}
	}
}

func NewReadingsHandler(svc *ingest.Service, queries QueryService, opts ...ReadingsOption) (*ReadingsHandler, error) {
	if svc == nil {
		return nil, errors.New("readings handler: ingest service is required")
	}
	if queries == nil {
		return nil, errors.New("readings handler: query service is required")
	}

	h := &ReadingsHandler{
		ingest:       svc,
		queries:      queries,
		trendMinutes: 30,
		loc:          time.UTC,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// POST /api/ingest
func (h *ReadingsHandler) Ingest(c *gin.Context) {
	var payload map[string]any
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, apperrors.NewValidation("body must be a JSON object"))
		return
	}

	reading, err := h.ingest.Ingest(requestContext(c), payload)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, renderReading(reading, h.loc))
}

// GET /api/readings/current
func (h *ReadingsHandler) Current(c *gin.Context) {
	selector := selectorFromQuery(c)

	reading, err := h.queries.Current(requestContext(c), selector)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, renderOptionalReading(reading, h.loc),
		&response.Meta{Zone: selector.Zone})
}

// GET /api/readings/ago
func (h *ReadingsHandler) Ago(c *gin.Context) {
	selector := selectorFromQuery(c)
	minutes, err := minutesFromQuery(c, 0)
	if err != nil {
		response.Error(c, err)
		return
	}

	reading, err := h.queries.Ago(requestContext(c), selector, minutes)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, renderOptionalReading(reading, h.loc),
		&response.Meta{Minutes: minutes, Zone: selector.Zone})
}

// GET /api/readings/trend
func (h *ReadingsHandler) Trend(c *gin.Context) {
	selector := selectorFromQuery(c)
	minutes, err := minutesFromQuery(c, h.trendMinutes)
	if err != nil {
		response.Error(c, err)
		return
	}

	trend, err := h.queries.Trend(requestContext(c), selector, minutes)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, renderTrend(trend, h.loc),
		&response.Meta{Minutes: minutes, Zone: selector.Zone})
}
