package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	apperrors "github.com/antonvlk/meteohub/pkg/errors"
	"github.com/antonvlk/meteohub/pkg/response"
)

// Health reports liveness and verifies the database still answers. A failed
// ping surfaces as 503 so supervisors can restart the station.
func Health(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db == nil {
			response.Error(c, apperrors.ErrStoreUnavailable.WithMessage("database is not configured"))
			return
		}

		ctx, cancel := context.WithTimeout(requestContext(c), 2*time.Second)
		defer cancel()

		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			response.Error(c, apperrors.ErrStoreUnavailable.
				WithMessage("database ping failed").WithInternal(err))
			return
		}

		response.Success(c, http.StatusOK, gin.H{"status": "ok", "database": "up"})
	}
}
