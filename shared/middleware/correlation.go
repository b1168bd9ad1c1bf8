package middleware

import (
	"venue-server/shared/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CorrelationIDHeader is propagated end to end: inbound, downstream and in the response.
const CorrelationIDHeader = "X-Correlation-Id"

const maxCorrelationIDLength = 128

// CorrelationID copies the inbound correlation id or generates one, stores it in the
// gin context and echoes it in the response.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(CorrelationIDHeader)
		if id == "" || len(id) > maxCorrelationIDLength {
			id = uuid.NewString()
		}
		c.Set(models.GinCorrelationIDKey, id)
		c.Header(CorrelationIDHeader, id)
		c.Next()
	}
}

// CorrelationIDFrom returns the id stored by CorrelationID, or "".
func CorrelationIDFrom(c *gin.Context) string {
	return c.GetString(models.GinCorrelationIDKey)
}
