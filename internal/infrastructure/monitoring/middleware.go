package monitoring

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// Middleware creates Gin middleware that counts requests against the
// collector's own HTTP surface.
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		metrics.RecordReceive("http", strconv.Itoa(c.Writer.Status()))
	}
}
