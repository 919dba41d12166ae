package handlers

import (
	"net/http"
	"strconv"

	"go-ops-dashboard/internal/database"

	"github.com/gin-gonic/gin"
)

// GetCustomers lists customers with their order figures
func GetCustomers(c *gin.Context) {
	var f database.CustomerFilter
	if err := c.ShouldBindQuery(&f); err != nil {
		badRequest(c, err)
		return
	}
	rows, meta, err := database.ListCustomers(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	listResponse(c, rows, meta)
}

func GetCustomer(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	recent, _ := strconv.Atoi(c.Query("recent"))
	detail, err := database.GetCustomerDetail(c.Request.Context(), id, recent)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func AddCustomer(c *gin.Context) {
	var input database.CustomerInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	customer, err := database.CreateCustomer(c.Request.Context(), currentUser(c), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, customer)
}

func UpdateCustomer(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var input database.CustomerUpdate
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	customer, err := database.UpdateCustomer(c.Request.Context(), currentUser(c), id, input)
	if err != nil {
		respondError(c, err)
		return
	}
	invalidateReports(c)
	c.JSON(http.StatusOK, customer)
}

func DeleteCustomer(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := database.DeleteCustomer(c.Request.Context(), currentUser(c), id); err != nil {
		respondError(c, err)
		return
	}
	invalidateReports(c)
	c.JSON(http.StatusOK, gin.H{"message": "Customer deleted successfully"})
}
