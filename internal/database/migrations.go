package database

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/antonvlk/meteohub/internal/models"
)

// CurrentSchemaVersion identifies the readings schema this build expects.
// Bump it together with any change to the persisted column set.
const CurrentSchemaVersion = "1"

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Reading{},
		&models.SystemSetting{},
	)
}

// EnsureSchemaVersion records the expected schema version on first boot and
// reports drift when a previously recorded version differs. A mismatch is not
// repaired here: a live store with foreign data is never rewritten in place.
func EnsureSchemaVersion(ctx context.Context, db *gorm.DB) error {
	stored, err := GetSystemSetting(ctx, db, models.SettingSchemaVersion)
	if err != nil {
		return err
	}

	if stored == "" {
		return UpsertSystemSetting(ctx, db, models.SettingSchemaVersion, CurrentSchemaVersion)
	}

	if stored != CurrentSchemaVersion {
		return fmt.Errorf("stored schema version %s, expected %s", stored, CurrentSchemaVersion)
	}

	return nil
}
