package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/documenso/documenso-sub011/pkg/response"
)

// Health returns a readiness payload including a database ping.
func Health(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		dbStatus := "ok"

		if db != nil {
			ctx, cancel := context.WithTimeout(requestContext(c), 2*time.Second)
			defer cancel()

			sqlDB, err := db.DB()
			if err == nil {
				err = sqlDB.PingContext(ctx)
			}
			if err != nil {
				dbStatus = "unreachable"
			}
		}

		if dbStatus != "ok" {
			response.Success(c, http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": dbStatus})
			return
		}
		response.Success(c, http.StatusOK, gin.H{"status": "ok", "database": dbStatus})
	}
}
