package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/sari/payments/pkg/response"
)

// @Summary      Health check
// @Description  Returns service status. Reports the database as down when it does not answer a ping.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /healthz [get]
func ApiHealthz(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := map[string]string{"status": "ok"}
		if db != nil {
			status["database"] = "ok"
			if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
				status["database"] = "down"
				c.JSON(http.StatusServiceUnavailable, response.ErrorT[any](response.APIResponseCodeError, status))
				return
			}
		}
		c.JSON(http.StatusOK, response.OKT(status))
	}
}

func RegisterHealthRoutes(r gin.IRouter, db *gorm.DB) {
	r.GET("/healthz", ApiHealthz(db))
}
