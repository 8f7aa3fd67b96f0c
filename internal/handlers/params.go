package handlers

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/antonvlk/meteohub/internal/store"
	apperrors "github.com/antonvlk/meteohub/pkg/errors"
	"github.com/antonvlk/meteohub/pkg/validator"
)

// selectorFromQuery reads the zone/sensor narrowing parameters shared by the
// readings endpoints. Blank values match everything.
func selectorFromQuery(c *gin.Context) store.Selector {
	return store.Selector{
		Zone:       strings.TrimSpace(c.Query("zone")),
		SensorKind: strings.TrimSpace(c.Query("sensor")),
	}
}

// minutesFromQuery parses and validates the minutes window parameter. The
// check runs at the edge so a bad request names the offending parameter; the
// query engine keeps its own guard for programmatic callers.
func minutesFromQuery(c *gin.Context, fallback int) (int, error) {
	minutes := parseIntQuery(c, "minutes", fallback)
	if err := validator.ValidateVar(minutes, "gte=1"); err != nil {
		return 0, apperrors.NewValidation("minutes must be a positive integer")
	}
	return minutes, nil
}

// parseIntQuery returns the integer query value, or fallback when the
// parameter is absent or unparseable.
func parseIntQuery(c *gin.Context, key string, fallback int) int {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
