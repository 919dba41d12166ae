package handlers

import (
	"net/http"

	"go-ops-dashboard/internal/database"

	"github.com/gin-gonic/gin"
)

func GetExpenses(c *gin.Context) {
	var f database.ExpenseFilter
	if err := c.ShouldBindQuery(&f); err != nil {
		badRequest(c, err)
		return
	}
	expenses, meta, err := database.ListExpenses(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	listResponse(c, expenses, meta)
}

func GetExpense(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	expense, err := database.GetExpense(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, expense)
}

func AddExpense(c *gin.Context) {
	var input database.ExpenseInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	expense, err := database.CreateExpense(c.Request.Context(), currentUser(c), input)
	if err != nil {
		respondError(c, err)
		return
	}
	invalidateReports(c)
	c.JSON(http.StatusCreated, expense)
}

func UpdateExpense(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var input database.ExpenseUpdate
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	expense, err := database.UpdateExpense(c.Request.Context(), currentUser(c), id, input)
	if err != nil {
		respondError(c, err)
		return
	}
	invalidateReports(c)
	c.JSON(http.StatusOK, expense)
}

func DeleteExpense(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := database.DeleteExpense(c.Request.Context(), currentUser(c), id); err != nil {
		respondError(c, err)
		return
	}
	invalidateReports(c)
	c.JSON(http.StatusOK, gin.H{"message": "Expense deleted successfully"})
}
