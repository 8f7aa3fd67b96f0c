package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	govalidator "github.com/go-playground/validator/v10"
	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/antonvlk/meteohub/pkg/validator"
)

func init() {
	// the schedule must parse with the same parser the sweeper hands to cron,
	// not the stock tag's regexp approximation
	err := validator.RegisterValidation("cron", func(fl govalidator.FieldLevel) bool {
		_, parseErr := cron.ParseStandard(fl.Field().String())
		return parseErr == nil
	})
	if err != nil {
		panic(err)
	}
}

// Config represents the runtime configuration for the MeteoHub station.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Store     StoreConfig     `mapstructure:"store"`
	Retention RetentionConfig `mapstructure:"retention"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Query     QueryConfig     `mapstructure:"query"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Display   DisplayConfig   `mapstructure:"display"`
}

// ServerConfig configures the HTTP server and logging.
type ServerConfig struct {
	Port      int    `mapstructure:"port" validate:"gte=1,lte=65535"`
	LogLevel  string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string `mapstructure:"log_format" validate:"oneof=json console"`
}

// DatabaseConfig describes where the readings database lives.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" validate:"oneof=sqlite"`
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
}

// StoreConfig bounds store operations.
type StoreConfig struct {
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// RetentionConfig controls how long readings are kept and when the
// sweeper runs.
type RetentionConfig struct {
	Duration time.Duration `mapstructure:"duration" validate:"gt=0"`
	Schedule string        `mapstructure:"sweep_schedule" validate:"required,cron"`
}

// CacheConfig controls the query result cache. A zero ttl disables it.
type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl" validate:"gte=0"`
}

// QueryConfig carries query surface defaults.
type QueryConfig struct {
	DefaultTrendMinutes int `mapstructure:"default_trend_minutes" validate:"gte=1"`
}

// IngestConfig shapes how incoming payloads are tagged before storage.
type IngestConfig struct {
	DefaultZone   string            `mapstructure:"default_zone"`
	DefaultSource string            `mapstructure:"default_source"`
	ForceZone     bool              `mapstructure:"force_zone"`
	Zones         map[string]string `mapstructure:"zone_overrides"`
}

// DisplayConfig controls human-facing rendering.
type DisplayConfig struct {
	Timezone string `mapstructure:"timezone" validate:"required,timezone"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("METEOHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate reports configuration values the station cannot run with.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config: config is nil")
	}
	if err := validator.ValidateStruct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/meteohub.sqlite")

	v.SetDefault("store.timeout", "5s")

	v.SetDefault("retention.duration", "2160h") // 90 days
	v.SetDefault("retention.sweep_schedule", "@hourly")

	v.SetDefault("cache.ttl", "2s")

	v.SetDefault("query.default_trend_minutes", 30)

	v.SetDefault("ingest.default_zone", "")
	v.SetDefault("ingest.default_source", "")
	v.SetDefault("ingest.force_zone", false)

	v.SetDefault("display.timezone", "UTC")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
