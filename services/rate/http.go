package rate

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type upsertRequest struct {
	Region         string `json:"region" binding:"required"`
	PointsPerNight int64  `json:"points_per_night" binding:"required,gt=0"`
}

func registerRoutes(router *gin.Engine, svc *Service) {
	v1 := router.Group("/v1")

	v1.GET("/rates", func(c *gin.Context) {
		rates, err := svc.List(c.Request.Context())
		if err != nil {
			c.Error(err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"data": rates})
	})

	v1.PUT("/rates", func(c *gin.Context) {
		var req upsertRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error()}})
			return
		}

		rate, err := svc.Upsert(c.Request.Context(), req.Region, req.PointsPerNight)
		if err != nil {
			c.Error(err)
			return
		}

		c.JSON(http.StatusOK, rate)
	})
}
