package rewards

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

type awardRequest struct {
	UserID  string  `json:"user_id" binding:"required"`
	Trigger Trigger `json:"trigger" binding:"required"`
	Context Context `json:"context"`
}

func registerRoutes(router *gin.Engine, svc *Service) {
	v1 := router.Group("/v1")

	// Called by collaborator flows (property creation, verification
	// approval, subscription webhook...) when their event occurs.
	v1.POST("/rewards/award", func(c *gin.Context) {
		var req awardRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error()}})
			return
		}

		entry, err := svc.Award(c.Request.Context(), req.UserID, req.Trigger, req.Context)
		if err != nil {
			if errors.Is(err, ErrAlreadyAwarded) {
				c.JSON(http.StatusOK, gin.H{"awarded": false, "reason": "already_awarded"})
				return
			}
			c.Error(err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"awarded":        true,
			"transaction_id": entry.ID,
			"amount":         entry.Amount,
		})
	})
}
