package models

import "time"

// Sensor kinds derived from which alias group matched during normalization.
const (
	SensorKindDHT   = "dht"
	SensorKindBME   = "bme"
	SensorKindOther = "other"
)

// Reading is a single immutable sensor observation. Rows are append-only:
// corrections arrive as new readings and nothing in the repository updates or
// rewrites a stored row. The integer primary key doubles as the insertion-order
// tie-break when two readings share a timestamp.
type Reading struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Timestamp   time.Time `gorm:"not null;index:idx_readings_timestamp;index:idx_readings_kind_timestamp,priority:2,sort:desc" json:"timestamp"`
	Zone        string    `gorm:"not null" json:"zone"`
	Source      string    `gorm:"not null" json:"source"`
	SensorKind  string    `gorm:"not null;index:idx_readings_kind_timestamp,priority:1" json:"sensor_kind"`
	Temperature *float64  `json:"temperature,omitempty"`
	Humidity    *float64  `json:"humidity,omitempty"`
	Pressure    *float64  `json:"pressure,omitempty"`
}

// TableName pins the table name regardless of gorm's pluralisation rules.
func (Reading) TableName() string {
	return "readings"
}

// HasMeasurement reports whether at least one measurement field is populated.
func (r Reading) HasMeasurement() bool {
	return r.Temperature != nil || r.Humidity != nil || r.Pressure != nil
}
