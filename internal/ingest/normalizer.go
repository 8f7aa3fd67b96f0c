package ingest

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/antonvlk/meteohub/internal/models"
	apperrors "github.com/antonvlk/meteohub/pkg/errors"
)

// UnknownValue is the sentinel stored when a payload omits zone or source.
const UnknownValue = "unknown"

// Rejection reasons recorded by the ingest metrics.
const (
	RejectReasonBadPayload  = "bad_payload"
	RejectReasonNoKnownKeys = "no_known_keys"
	RejectReasonBadValue    = "bad_value"
)

// tagGeneric marks aliases that do not identify a sensor family.
const tagGeneric = ""

// fieldAlias is one accepted payload key together with the sensor family it implies.
type fieldAlias struct {
	key string
	tag string
}

// aliasGroup lists the accepted aliases for one canonical measurement in
// priority order: the first present, parseable value wins and later aliases
// are ignored. Family-specific aliases come before generic ones, so a device
// reporting both resolves deterministically.
type aliasGroup struct {
	field   string
	aliases []fieldAlias
	assign  func(*models.Reading, float64)
}

var measurementAliases = []aliasGroup{
	{
		field: "temperature",
		aliases: []fieldAlias{
			{"t_dht", models.SensorKindDHT},
			{"temperature_dht", models.SensorKindDHT},
			{"t_bme", models.SensorKindBME},
			{"temperature", tagGeneric},
			{"temp", tagGeneric},
			{"lt_bme", models.SensorKindBME},
		},
		assign: func(r *models.Reading, v float64) { r.Temperature = &v },
	},
	{
		field: "humidity",
		aliases: []fieldAlias{
			{"h_dht", models.SensorKindDHT},
			{"humidity_dht", models.SensorKindDHT},
			{"h_bme", models.SensorKindBME},
			{"humidity", tagGeneric},
			{"hum", tagGeneric},
		},
		assign: func(r *models.Reading, v float64) { r.Humidity = &v },
	},
	{
		// only the BME280 carries a pressure sensor, so every pressure
		// alias marks the reading as bme
		field: "pressure",
		aliases: []fieldAlias{
			{"pressure", models.SensorKindBME},
			{"press", models.SensorKindBME},
			{"p_bme", models.SensorKindBME},
		},
		assign: func(r *models.Reading, v float64) { r.Pressure = &v },
	},
}

var (
	zoneAliases   = []string{"zone"}
	sourceAliases = []string{"source", "device", "device_id"}
)

// Normalize maps an arbitrary device payload onto a canonical Reading.
// Unrecognised keys are ignored; a payload that yields no measurement at all
// fails validation. Zone and source fall back to the "unknown" sentinel so the
// reading stays storable. The sensor kind is derived from which alias family
// supplied the stored values: any DHT alias makes the reading dht, otherwise
// any BME alias makes it bme, and purely generic aliases yield other.
func Normalize(payload map[string]any) (models.Reading, error) {
	reading, _, err := normalize(payload)
	return reading, err
}

func normalize(payload map[string]any) (models.Reading, string, error) {
	if len(payload) == 0 {
		return models.Reading{}, RejectReasonBadPayload, apperrors.NewValidation("payload is empty")
	}

	reading := models.Reading{Zone: UnknownValue, Source: UnknownValue}

	sawMeasurementKey := false
	matchedTags := make([]string, 0, len(measurementAliases))
	for _, group := range measurementAliases {
		for _, alias := range group.aliases {
			raw, present := payload[alias.key]
			if !present {
				continue
			}
			sawMeasurementKey = true
			value, ok := coerceFloat(raw)
			if !ok {
				// unparseable alias is treated as absent, not fatal
				continue
			}
			group.assign(&reading, value)
			matchedTags = append(matchedTags, alias.tag)
			break
		}
	}

	if !reading.HasMeasurement() {
		if !sawMeasurementKey {
			return models.Reading{}, RejectReasonNoKnownKeys, apperrors.NewValidation("payload contains no recognised measurement keys")
		}
		return models.Reading{}, RejectReasonBadValue, apperrors.NewValidation("measurement values are not numeric")
	}

	reading.SensorKind = kindForTags(matchedTags)

	if zone, ok := lookupString(payload, zoneAliases); ok {
		reading.Zone = zone
	}
	if source, ok := lookupString(payload, sourceAliases); ok {
		reading.Source = source
	}

	return reading, "", nil
}

func kindForTags(tags []string) string {
	kind := models.SensorKindOther
	for _, tag := range tags {
		switch tag {
		case models.SensorKindDHT:
			return models.SensorKindDHT
		case models.SensorKindBME:
			kind = models.SensorKindBME
		}
	}
	return kind
}

// coerceFloat accepts the numeric shapes a JSON payload can carry plus
// numeric strings. NaN and infinities are treated as absent.
func coerceFloat(value any) (float64, bool) {
	var f float64
	switch v := value.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func lookupString(payload map[string]any, keys []string) (string, bool) {
	for _, key := range keys {
		raw, present := payload[key]
		if !present {
			continue
		}
		if s, ok := stringValue(raw); ok {
			return s, true
		}
	}
	return "", false
}

func stringValue(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		trimmed := strings.TrimSpace(v)
		return trimmed, trimmed != ""
	case json.Number:
		return v.String(), true
	case float64, int, int64:
		return fmt.Sprintf("%v", v), true
	default:
		return "", false
	}
}
