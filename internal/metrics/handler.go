package metrics

import (
	"github.com/gin-gonic/gin"
)

// Handler exposes the scoped registry as a Prometheus scrape endpoint.
func Handler(reg *Registry) gin.HandlerFunc {
	h := reg.HTTPHandler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
