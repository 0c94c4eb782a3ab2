package middleware

import (
	"errors"
	"net/http"

	"racestay-engine/pkg/errutil"

	"github.com/gin-gonic/gin"
)

// Error renders the last handler error as a JSON body using the domain
// status code when the error carries one.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}

		var be errutil.BaseError
		if errors.As(last.Err, &be) {
			c.JSON(be.Code.HTTPStatus(), be.JSON())
			return
		}

		var coder interface{ Status() errutil.CoreStatus }
		if errors.As(last.Err, &coder) {
			c.JSON(coder.Status().HTTPStatus(), gin.H{
				"error": gin.H{
					"code":    coder.Status(),
					"message": last.Err.Error(),
				},
			})
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    errutil.StatusInternal,
				"message": last.Err.Error(),
			},
		})
	}
}
