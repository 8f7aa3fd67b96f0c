package models

import "time"

// Well-known system setting keys.
const (
	SettingSchemaVersion     = "schema.version"
	SettingStationInstanceID = "station.instance_id"
)

// SystemSetting persists station-wide values that should survive restarts,
// such as the schema version and the generated station instance id.
type SystemSetting struct {
	Key       string    `gorm:"primaryKey"`
	Value     string    `gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
