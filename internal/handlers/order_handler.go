package handlers

import (
	"net/http"

	"go-ops-dashboard/internal/database"
	"go-ops-dashboard/internal/models"

	"github.com/gin-gonic/gin"
)

type TransitionRequest struct {
	Status string `json:"status" binding:"required,order_status"`
	Note   string `json:"note" binding:"max=500"`
}

type AssignRequest struct {
	AgentID uint `json:"agent_id" binding:"required"`
}

func GetOrders(c *gin.Context) {
	var f database.OrderFilter
	if err := c.ShouldBindQuery(&f); err != nil {
		badRequest(c, err)
		return
	}
	orders, meta, err := database.ListOrders(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	listResponse(c, orders, meta)
}

func GetOrder(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	order, err := database.GetOrder(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func GetOrderByReference(c *gin.Context) {
	order, err := database.GetOrderByReference(c.Request.Context(), c.Param("reference"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// --- POST: Create an order with price and cost snapshots ---
func AddOrder(c *gin.Context) {
	var input database.OrderInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	order, err := database.CreateOrder(c.Request.Context(), currentUser(c), input)
	if err != nil {
		respondError(c, err)
		return
	}
	invalidateReports(c)
	c.JSON(http.StatusCreated, order)
}

// UpdateOrder edits a pending order
func UpdateOrder(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var input database.OrderUpdate
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	order, err := database.UpdateOrder(c.Request.Context(), currentUser(c), id, input)
	if err != nil {
		respondError(c, err)
		return
	}
	invalidateReports(c)
	c.JSON(http.StatusOK, order)
}

// TransitionOrder moves an order to its next status, dispatching or taking
// back agent stock when it ships or comes back.
func TransitionOrder(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var input TransitionRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	order, err := database.TransitionOrder(c.Request.Context(), currentUser(c), id, models.OrderStatus(input.Status), input.Note)
	if err != nil {
		respondError(c, err)
		return
	}
	invalidateReports(c)
	c.JSON(http.StatusOK, order)
}

func AssignAgent(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var input AssignRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	order, err := database.AssignAgent(c.Request.Context(), currentUser(c), id, input.AgentID)
	if err != nil {
		respondError(c, err)
		return
	}
	invalidateReports(c)
	c.JSON(http.StatusOK, order)
}

func DeleteOrder(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := database.DeleteOrder(c.Request.Context(), currentUser(c), id); err != nil {
		respondError(c, err)
		return
	}
	invalidateReports(c)
	c.JSON(http.StatusOK, gin.H{"message": "Order deleted successfully"})
}
