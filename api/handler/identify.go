package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/pricewatch/models"
	"github.com/use-agent/pricewatch/platform"
)

// Identify returns a handler for GET /api/v1/identify?url=...
// It reports which retailer a URL belongs to without loading it.
func Identify() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.Query("url")
		if raw == "" {
			c.JSON(http.StatusBadRequest, models.NewErrorResponse(models.ErrCodeInvalidInput, "query parameter url is required"))
			return
		}

		p, productID, ok := platform.Identify(raw)
		c.JSON(http.StatusOK, models.IdentifyResponse{
			Supported: ok,
			Platform:  p,
			ProductID: productID,
		})
	}
}
