package handlers

import (
	"net/http"

	"go-ops-dashboard/internal/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AskRequest struct {
	Message string `json:"message" binding:"required,max=2000"`
}

func AskAI(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message is required", "code": "INVALID_INPUT"})
		return
	}

	// 1. The assistant only runs with an API key configured
	if !assistant.Enabled() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "AI assistant is not configured", "code": "UNAVAILABLE"})
		return
	}

	// 2. Run the AI Agent
	reply, err := assistant.Ask(c.Request.Context(), req.Message)
	if err != nil {
		logger.FromGin(c).Error("Assistant failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "The assistant could not answer", "code": "UPSTREAM"})
		return
	}

	// 3. Return the Answer
	c.JSON(http.StatusOK, gin.H{"reply": reply})
}
