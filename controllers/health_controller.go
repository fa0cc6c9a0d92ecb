package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthController reports service liveness and database reachability.
type HealthController struct {
	service string
	ping    func(ctx context.Context) error
}

func NewHealthController(service string, ping func(ctx context.Context) error) *HealthController {
	return &HealthController{service: service, ping: ping}
}

// Health handles GET /health
func (hc *HealthController) Health(c *gin.Context) {
	if hc.ping != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := hc.ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"service":  hc.service,
				"database": err.Error(),
			})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": hc.service})
}
