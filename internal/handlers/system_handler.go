package handlers

import (
	"context"
	"net/http"
	"time"

	"go-ops-dashboard/internal/database"
	"go-ops-dashboard/internal/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// --- GET: /health ---
// Health reports whether the database answers. It stays outside auth for load balancers.
func Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := database.Ping(ctx); err != nil {
		logger.FromGin(c).Error("Health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "offline", "database": "unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "online", "database": "ok"})
}

// --- GET: /api/audit ---
func GetAuditLog(c *gin.Context) {
	var f database.AuditFilter
	if err := c.ShouldBindQuery(&f); err != nil {
		badRequest(c, err)
		return
	}
	entries, meta, err := database.ListAudit(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	listResponse(c, entries, meta)
}
