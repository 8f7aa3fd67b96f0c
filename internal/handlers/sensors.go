package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/antonvlk/meteohub/internal/database"
	"github.com/antonvlk/meteohub/internal/store"
	"github.com/antonvlk/meteohub/pkg/response"
)

// SensorsHandler reports which (sensor kind, zone) pairs the station has seen
// and when each last spoke, together with the station identity.
type SensorsHandler struct {
	queries QueryService
	db      *gorm.DB
	loc     *time.Location
}

func NewSensorsHandler(queries QueryService, db *gorm.DB, loc *time.Location) (*SensorsHandler, error) {
	if queries == nil {
		return nil, errors.New("sensors handler: query service is required")
	}
	if db == nil {
		return nil, errors.New("sensors handler: db is required")
	}
	if loc == nil {
		loc = time.UTC
	}
	return &SensorsHandler{queries: queries, db: db, loc: loc}, nil
}

type sensorPayload struct {
	store.SensorOverview
	NewestLocal string `json:"newest_local,omitempty"`
}

// GET /api/sensors
func (h *SensorsHandler) List(c *gin.Context) {
	ctx := requestContext(c)

	overview, err := h.queries.Overview(ctx)
	if err != nil {
		response.Error(c, err)
		return
	}

	stationID, err := database.EnsureStationInstanceID(ctx, h.db)
	if err != nil {
		response.Error(c, err)
		return
	}

	sensors := make([]sensorPayload, 0, len(overview))
	for _, entry := range overview {
		payload := sensorPayload{SensorOverview: entry}
		if h.loc != time.UTC {
			payload.NewestLocal = entry.Newest.In(h.loc).Format(time.RFC3339)
		}
		sensors = append(sensors, payload)
	}

	response.SuccessWithMeta(c, http.StatusOK, gin.H{
		"station_id": stationID,
		"sensors":    sensors,
	}, &response.Meta{Count: len(sensors)})
}
