package handlers_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/antonvlk/meteohub/internal/handlers/testutil"
)

type sensorsBody struct {
	StationID string `json:"station_id"`
	Sensors   []struct {
		SensorKind  string    `json:"sensor_kind"`
		Zone        string    `json:"zone"`
		Count       int64     `json:"count"`
		Newest      time.Time `json:"newest"`
		NewestLocal string    `json:"newest_local"`
	} `json:"sensors"`
}

func TestSensorsHandler_ListsSeenSensors(t *testing.T) {
	env := testutil.NewEnv(t)

	ingestReading(env, map[string]any{"t_dht": 21.0, "zone": "indoor"})
	env.Clock.Advance(time.Minute)
	ingestReading(env, map[string]any{"t_dht": 21.5, "zone": "indoor"})
	env.Clock.Advance(time.Minute)
	ingestReading(env, map[string]any{"t_bme": 14.0, "p_bme": 1009.1, "zone": "outdoor"})

	w := env.Request(http.MethodGet, "/api/sensors", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := testutil.DecodeResponse(t, w)
	require.True(t, resp.Success)
	require.NotNil(t, resp.Meta)
	require.Equal(t, 2, resp.Meta.Count)

	var body sensorsBody
	testutil.DecodeInto(t, resp.Data, &body)

	require.NoError(t, uuid.Validate(body.StationID))
	require.Len(t, body.Sensors, 2)

	// overview sorts by sensor kind, then zone
	require.Equal(t, "bme", body.Sensors[0].SensorKind)
	require.Equal(t, "outdoor", body.Sensors[0].Zone)
	require.Equal(t, int64(1), body.Sensors[0].Count)
	require.Equal(t, "dht", body.Sensors[1].SensorKind)
	require.Equal(t, int64(2), body.Sensors[1].Count)

	// the identity must survive across calls
	again := testutil.DecodeResponse(t, env.Request(http.MethodGet, "/api/sensors", nil))
	var repeat sensorsBody
	testutil.DecodeInto(t, again.Data, &repeat)
	require.Equal(t, body.StationID, repeat.StationID)
}

func TestSensorsHandler_EmptyStation(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodGet, "/api/sensors", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := testutil.DecodeResponse(t, w)
	require.True(t, resp.Success)
	require.Equal(t, 0, resp.Meta.Count)

	var body sensorsBody
	testutil.DecodeInto(t, resp.Data, &body)
	require.NotEmpty(t, body.StationID)
	require.Empty(t, body.Sensors)
}

func TestHealthEndpoint(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := testutil.DecodeResponse(t, w)
	require.True(t, resp.Success)

	var body map[string]string
	testutil.DecodeInto(t, resp.Data, &body)
	require.Equal(t, "ok", body["status"])
	require.Equal(t, "up", body["database"])
}

func TestMetricsEndpoint(t *testing.T) {
	env := testutil.NewEnv(t)

	ingestReading(env, map[string]any{"t_dht": 21.0, "zone": "indoor"})

	w := env.Request(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "meteohub_readings_ingested_total")
}

func TestUnknownRouteReturnsEnvelope(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodGet, "/api/nope", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	resp := testutil.DecodeResponse(t, w)
	require.False(t, resp.Success)
	require.Equal(t, "NOT_FOUND", resp.Error.Code)
}
