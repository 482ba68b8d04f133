package handlers

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"fixunreads/internal/middleware"
)

// NewRouter wires the admin API. Every /api/admin route needs adminToken and
// is rate limited per client.
func NewRouter(h *RepairHandler, adminToken string, limiter *middleware.RateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.SecurityHeaders())
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	r.GET("/health", h.Health)

	admin := r.Group("/api/admin")
	admin.Use(middleware.RateLimitMiddleware(limiter))
	admin.Use(middleware.RequireAdminToken(adminToken))
	{
		admin.POST("/repair", h.Repair)
	}

	return r
}
