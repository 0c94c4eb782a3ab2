package ledger

import (
	"net/http"
	"strconv"

	"racestay-engine/pkg/db/pagination"

	"github.com/gin-gonic/gin"
)

const defaultHistoryLimit = 50

type transactionResponse struct {
	ID              string `json:"id"`
	UserID          string `json:"user_id"`
	Amount          int64  `json:"amount"`
	Kind            Kind   `json:"kind"`
	BookingID       string `json:"booking_id,omitempty"`
	TransactionCode string `json:"transaction_code"`
	Description     string `json:"description,omitempty"`
	CreatedAt       string `json:"created_at"`
}

func toResponse(t *Transaction) transactionResponse {
	return transactionResponse{
		ID:              t.ID,
		UserID:          t.UserID,
		Amount:          t.Amount,
		Kind:            t.Kind,
		BookingID:       t.BookingID,
		TransactionCode: t.TransactionCode,
		Description:     t.Description,
		CreatedAt:       t.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

func registerRoutes(router *gin.Engine, svc *Service) {
	v1 := router.Group("/v1")

	v1.GET("/users/:user_id/balance", func(c *gin.Context) {
		balance, err := svc.GetBalance(c.Request.Context(), c.Param("user_id"))
		if err != nil {
			c.Error(err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"user_id": c.Param("user_id"),
			"balance": balance,
		})
	})

	v1.GET("/users/:user_id/transactions", func(c *gin.Context) {
		p := pagination.Pagination{Cursor: c.Query("cursor")}
		if raw := c.Query("limit"); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
				p.Limit = parsed
			}
		}

		entries, page, err := svc.History(c.Request.Context(), c.Param("user_id"), p)
		if err != nil {
			c.Error(err)
			return
		}

		out := make([]transactionResponse, 0, len(entries))
		for _, entry := range entries {
			out = append(out, toResponse(entry))
		}

		c.JSON(http.StatusOK, gin.H{"data": out, "page": page})
	})

	v1.GET("/users/:user_id/ledger/audit", func(c *gin.Context) {
		audit, err := svc.AuditBalance(c.Request.Context(), c.Param("user_id"))
		if err != nil {
			c.Error(err)
			return
		}

		valid, err := svc.VerifyChain(c.Request.Context(), c.Param("user_id"))
		if err != nil {
			c.Error(err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"balance":     audit,
			"chain_valid": valid,
		})
	})

	// Administrative repair for a cached balance that drifted from the
	// transaction fold.
	v1.POST("/users/:user_id/ledger/rebuild", func(c *gin.Context) {
		balance, err := svc.RebuildBalance(c.Request.Context(), c.Param("user_id"))
		if err != nil {
			c.Error(err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"user_id": c.Param("user_id"),
			"balance": balance,
		})
	})
}
