package handlers

import (
	"net/http"
	"time"

	"go-ops-dashboard/internal/database"
	"go-ops-dashboard/internal/finance"

	"github.com/gin-gonic/gin"
)

type MoveRequest struct {
	ProductID uint   `json:"product_id" binding:"required"`
	Type      string `json:"type" binding:"required,oneof=ASSIGN RETURN DEFECTIVE RETURN_DEFECTIVE MISSING RECOVER"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
	Note      string `json:"note" binding:"max=500"`
}

func GetAgents(c *gin.Context) {
	agents, err := database.ListAgents(c.Request.Context(), c.Query("active") == "true")
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, agents)
}

func GetAgent(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	agent, err := database.GetAgent(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, agent)
}

func AddAgent(c *gin.Context) {
	var input database.AgentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	agent, err := database.CreateAgent(c.Request.Context(), currentUser(c), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, agent)
}

func UpdateAgent(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var input database.AgentUpdate
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	agent, err := database.UpdateAgent(c.Request.Context(), currentUser(c), id, input)
	if err != nil {
		respondError(c, err)
		return
	}
	invalidateReports(c)
	c.JSON(http.StatusOK, agent)
}

func DeleteAgent(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := database.DeleteAgent(c.Request.Context(), currentUser(c), id); err != nil {
		respondError(c, err)
		return
	}
	invalidateReports(c)
	c.JSON(http.StatusOK, gin.H{"message": "Agent deleted successfully"})
}

func GetAgentStock(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	held, err := database.ListAgentStock(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, held)
}

// MoveStock moves units between the warehouse and an agent, or between the
// agent's own counters.
func MoveStock(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var input MoveRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	held, err := database.MoveStock(c.Request.Context(), currentUser(c), id, input.ProductID, input.Type, input.Quantity, input.Note)
	if err != nil {
		respondError(c, err)
		return
	}
	invalidateReports(c)
	c.JSON(http.StatusOK, held)
}

func GetMovements(c *gin.Context) {
	var f database.MovementFilter
	if err := c.ShouldBindQuery(&f); err != nil {
		badRequest(c, err)
		return
	}
	movements, meta, err := database.ListMovements(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	listResponse(c, movements, meta)
}

func GetReconciliation(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	rec, err := database.ReconcileAgent(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// GetSettlement reports the agent's cash position, all time unless a period is given
func GetSettlement(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var window *finance.Window
	if c.Query("period") != "" {
		p, err := finance.Resolve(c.Query("period"), c.Query("from"), c.Query("to"), time.Now())
		if err != nil {
			respondError(c, err)
			return
		}
		window = &p.Current
	}
	settlement, err := database.AgentSettlement(c.Request.Context(), id, window)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, settlement)
}

func GetBalances(c *gin.Context) {
	balances, err := database.AgentBalances(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, balances)
}

func GetPayments(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var p database.Page
	if err := c.ShouldBindQuery(&p); err != nil {
		badRequest(c, err)
		return
	}
	payments, meta, err := database.ListPayments(c.Request.Context(), id, p)
	if err != nil {
		respondError(c, err)
		return
	}
	listResponse(c, payments, meta)
}

func AddPayment(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var input database.PaymentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	payment, err := database.CreatePayment(c.Request.Context(), currentUser(c), id, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, payment)
}

func DeletePayment(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := database.DeletePayment(c.Request.Context(), currentUser(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Payment deleted successfully"})
}
