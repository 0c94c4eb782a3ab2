package booking

import (
	"net/http"
	"strconv"
	"time"

	"racestay-engine/pkg/errutil"

	"github.com/gin-gonic/gin"
)

// actorHeader identifies the acting user. Authentication itself happens
// upstream at the gateway; the engine only needs the resolved identity.
const actorHeader = "X-USER-ID"

type requestBookingBody struct {
	HostID      string    `json:"host_id" binding:"required"`
	PropertyID  string    `json:"property_id" binding:"required"`
	RaceID      string    `json:"race_id" binding:"required"`
	Region      string    `json:"region" binding:"required"`
	CheckIn     time.Time `json:"check_in" binding:"required"`
	CheckOut    time.Time `json:"check_out" binding:"required"`
	GuestsCount int       `json:"guests_count" binding:"required"`
}

type respondBody struct {
	Decision Decision `json:"decision" binding:"required"`
	Message  string   `json:"message"`
}

type cancelBody struct {
	CancelledBy CancelledBy `json:"cancelled_by" binding:"required"`
	Reason      string      `json:"reason"`
}

func registerRoutes(router *gin.Engine, svc *Service) {
	v1 := router.Group("/v1")

	v1.POST("/bookings", func(c *gin.Context) {
		actor, ok := actorID(c)
		if !ok {
			return
		}

		var body requestBookingBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error()}})
			return
		}

		bk, err := svc.RequestBooking(c.Request.Context(), RequestParams{
			GuestID:     actor,
			HostID:      body.HostID,
			PropertyID:  body.PropertyID,
			RaceID:      body.RaceID,
			Region:      body.Region,
			CheckIn:     body.CheckIn,
			CheckOut:    body.CheckOut,
			GuestsCount: body.GuestsCount,
		})
		if err != nil {
			c.Error(err)
			return
		}

		c.JSON(http.StatusCreated, bk)
	})

	v1.GET("/bookings/:booking_id", func(c *gin.Context) {
		bk, err := svc.Get(c.Request.Context(), c.Param("booking_id"))
		if err != nil {
			c.Error(err)
			return
		}

		c.JSON(http.StatusOK, bk)
	})

	v1.GET("/users/:user_id/bookings", func(c *gin.Context) {
		limit := 0
		if raw := c.Query("limit"); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
				limit = parsed
			}
		}

		bookings, err := svc.ListForUser(c.Request.Context(), c.Param("user_id"), limit)
		if err != nil {
			c.Error(err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"data": bookings})
	})

	v1.POST("/bookings/:booking_id/respond", func(c *gin.Context) {
		actor, ok := actorID(c)
		if !ok {
			return
		}

		var body respondBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error()}})
			return
		}

		bk, err := svc.RespondToBooking(c.Request.Context(), c.Param("booking_id"), actor, body.Decision, body.Message)
		if err != nil {
			c.Error(err)
			return
		}

		c.JSON(http.StatusOK, bk)
	})

	v1.POST("/bookings/:booking_id/confirm", func(c *gin.Context) {
		actor, ok := actorID(c)
		if !ok {
			return
		}

		bk, err := svc.ConfirmBooking(c.Request.Context(), c.Param("booking_id"), actor)
		if err != nil {
			c.Error(err)
			return
		}

		c.JSON(http.StatusOK, bk)
	})

	v1.POST("/bookings/:booking_id/cancel", func(c *gin.Context) {
		actor, ok := actorID(c)
		if !ok {
			return
		}

		var body cancelBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error()}})
			return
		}

		bk, err := svc.CancelBooking(c.Request.Context(), c.Param("booking_id"), actor, body.CancelledBy, body.Reason)
		if err != nil {
			c.Error(err)
			return
		}

		c.JSON(http.StatusOK, bk)
	})

	v1.POST("/bookings/:booking_id/complete", func(c *gin.Context) {
		actor, ok := actorID(c)
		if !ok {
			return
		}

		bk, err := svc.CompleteBooking(c.Request.Context(), c.Param("booking_id"), actor, false)
		if err != nil {
			c.Error(err)
			return
		}

		c.JSON(http.StatusOK, bk)
	})

	// The gateway only routes operator traffic to /v1/admin, so the
	// forced completion stays out of reach of regular hosts.
	admin := router.Group("/v1/admin")

	admin.POST("/bookings/:booking_id/complete", func(c *gin.Context) {
		bk, err := svc.Get(c.Request.Context(), c.Param("booking_id"))
		if err != nil {
			c.Error(err)
			return
		}

		bk, err = svc.CompleteBooking(c.Request.Context(), bk.ID, bk.HostID, true)
		if err != nil {
			c.Error(err)
			return
		}

		c.JSON(http.StatusOK, bk)
	})
}

func actorID(c *gin.Context) (string, bool) {
	actor := c.GetHeader(actorHeader)
	if actor == "" {
		c.Error(errutil.Unauthorized("missing "+actorHeader+" header", nil))
		return "", false
	}
	return actor, true
}
