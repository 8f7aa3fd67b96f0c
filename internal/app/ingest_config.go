package app

import (
	"strings"

	"github.com/antonvlk/meteohub/internal/ingest"
)

// ServiceDefaults converts the ingest configuration into the station-level
// defaults the ingest service applies.
func (c IngestConfig) ServiceDefaults() ingest.Defaults {
	return ingest.Defaults{
		Zone:   strings.TrimSpace(c.DefaultZone),
		Source: strings.TrimSpace(c.DefaultSource),
	}
}

// ZoneOverrides converts the forced zone mapping into the ingest package
// representation. Sensor kinds are lowercased; blank pairs are dropped.
func (c IngestConfig) ZoneOverrides() ingest.ZoneOverrides {
	zones := make(map[string]string, len(c.Zones))
	for kind, zone := range c.Zones {
		kind = strings.ToLower(strings.TrimSpace(kind))
		zone = strings.TrimSpace(zone)
		if kind == "" || zone == "" {
			continue
		}
		zones[kind] = zone
	}
	return ingest.ZoneOverrides{Force: c.ForceZone, Zones: zones}
}
