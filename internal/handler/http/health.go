package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Check reports the health of one dependency. A nil error means up.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

type HealthChecker struct {
	checks []Check
}

func NewHealthChecker(checks ...Check) *HealthChecker {
	return &HealthChecker{checks: checks}
}

func (h *HealthChecker) Register(r *gin.Engine) {
	r.GET("/healthz", h.Handle)
}

func (h *HealthChecker) Handle(c *gin.Context) {
	status := http.StatusOK
	deps := gin.H{}

	for _, check := range h.checks {
		if err := check.Fn(c.Request.Context()); err != nil {
			deps[check.Name] = gin.H{"status": "down", "error": err.Error()}
			status = http.StatusServiceUnavailable
		} else {
			deps[check.Name] = gin.H{"status": "up"}
		}
	}

	overall := "healthy"
	if status != http.StatusOK {
		overall = "unhealthy"
	}

	c.JSON(status, gin.H{
		"status":       overall,
		"dependencies": deps,
	})
}
