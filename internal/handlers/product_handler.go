package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go-ops-dashboard/internal/database"
	"go-ops-dashboard/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var imageExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true}

type RestockRequest struct {
	Quantity int    `json:"quantity" binding:"required,min=1"`
	Note     string `json:"note" binding:"max=500"`
}

type AdjustRequest struct {
	Delta int    `json:"delta" binding:"required"`
	Note  string `json:"note" binding:"required,max=500"`
}

// invalidateReports drops cached dashboards after a change that moves the numbers
func invalidateReports(c *gin.Context) {
	if err := reportCache.DeletePrefix(c.Request.Context(), dashboardPrefix); err != nil {
		logger.FromGin(c).Warn("Failed to invalidate dashboard cache", zap.Error(err))
	}
}

// --- GET: List products ---
func GetProducts(c *gin.Context) {
	var f database.ProductFilter
	if err := c.ShouldBindQuery(&f); err != nil {
		badRequest(c, err)
		return
	}
	products, meta, err := database.ListProducts(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	listResponse(c, products, meta)
}

func GetCategories(c *gin.Context) {
	categories, err := database.ListCategories(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, categories)
}

func GetProduct(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	product, err := database.GetProduct(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

// --- POST: Add a new product ---
func AddProduct(c *gin.Context) {
	var input database.ProductInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	product, err := database.CreateProduct(c.Request.Context(), currentUser(c), input)
	if err != nil {
		respondError(c, err)
		return
	}
	invalidateReports(c)
	c.JSON(http.StatusCreated, product)
}

// --- PUT: Partial update; stock only moves through restock/adjust ---
func UpdateProduct(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var input database.ProductUpdate
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	product, err := database.UpdateProduct(c.Request.Context(), currentUser(c), id, input)
	if err != nil {
		respondError(c, err)
		return
	}
	invalidateReports(c)
	c.JSON(http.StatusOK, product)
}

// --- DELETE: Soft delete, refused while orders or agents reference the product ---
func DeleteProduct(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := database.DeleteProduct(c.Request.Context(), currentUser(c), id); err != nil {
		respondError(c, err)
		return
	}
	invalidateReports(c)
	c.JSON(http.StatusOK, gin.H{"message": "Product deleted successfully"})
}

func RestockProduct(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var input RestockRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	product, err := database.RestockProduct(c.Request.Context(), currentUser(c), id, input.Quantity, input.Note)
	if err != nil {
		respondError(c, err)
		return
	}
	invalidateReports(c)
	c.JSON(http.StatusOK, product)
}

func AdjustProduct(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var input AdjustRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	product, err := database.AdjustProduct(c.Request.Context(), currentUser(c), id, input.Delta, input.Note)
	if err != nil {
		respondError(c, err)
		return
	}
	invalidateReports(c)
	c.JSON(http.StatusOK, product)
}

// --- UPLOAD: Handle Image Files ---
func UploadImage(c *gin.Context) {
	// 1. Get the file from the request
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded", "code": "INVALID_INPUT"})
		return
	}

	// 2. Only allow images
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !imageExtensions[ext] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Only jpg, jpeg, png and webp images are allowed", "code": "INVALID_INPUT"})
		return
	}

	// 3. Store under a generated name so uploads never collide or escape the folder
	if err := os.MkdirAll(uploadsDir, 0o755); err != nil {
		respondError(c, err)
		return
	}
	filename := uuid.NewString() + ext
	if err := c.SaveUploadedFile(file, filepath.Join(uploadsDir, filename)); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "File uploaded successfully",
		"url":     baseURL + "/uploads/" + filename,
	})
}
