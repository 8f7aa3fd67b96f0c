package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/antonvlk/meteohub/internal/models"
	"github.com/antonvlk/meteohub/internal/query"
)

// readingPayload adorns a stored reading with a human-facing timestamp in the
// configured display timezone. The canonical timestamp stays UTC.
type readingPayload struct {
	models.Reading
	LocalTime string `json:"local_time,omitempty"`
}

type trendPayload struct {
	SampleCount int             `json:"sample_count"`
	Start       *readingPayload `json:"start,omitempty"`
	End         *readingPayload `json:"end,omitempty"`
	Temperature *query.Delta    `json:"temperature,omitempty"`
	Humidity    *query.Delta    `json:"humidity,omitempty"`
	Pressure    *query.Delta    `json:"pressure,omitempty"`
}

func renderReading(r models.Reading, loc *time.Location) readingPayload {
	payload := readingPayload{Reading: r}
	if loc != nil && loc != time.UTC {
		payload.LocalTime = r.Timestamp.In(loc).Format(time.RFC3339)
	}
	return payload
}

// renderOptionalReading maps a missing reading to the explicit no-data payload
// so clients can tell "nothing stored yet" apart from a failure.
func renderOptionalReading(r *models.Reading, loc *time.Location) any {
	if r == nil {
		return gin.H{"no_data": true}
	}
	return renderReading(*r, loc)
}

func renderTrend(t query.TrendResult, loc *time.Location) trendPayload {
	payload := trendPayload{
		SampleCount: t.SampleCount,
		Temperature: t.Temperature,
		Humidity:    t.Humidity,
		Pressure:    t.Pressure,
	}
	if t.Start != nil {
		start := renderReading(*t.Start, loc)
		payload.Start = &start
	}
	if t.End != nil {
		end := renderReading(*t.End, loc)
		payload.End = &end
	}
	return payload
}
