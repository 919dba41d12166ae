package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go-ops-dashboard/internal/ai"
	"go-ops-dashboard/internal/cache"
	"go-ops-dashboard/internal/logger"
	"go-ops-dashboard/internal/middleware"
	"go-ops-dashboard/internal/models"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Options carries what the handlers need beyond the database
type Options struct {
	Logger            *zap.Logger
	Cache             cache.Cache
	CacheTTL          time.Duration
	Assistant         *ai.Assistant
	AllowRegistration bool
	CORSAllowOrigins  []string
	UploadsDir        string
	BaseURL           string
	WebDir            string
}

var (
	reportCache cache.Cache = cache.NewMemory()
	reportTTL               = time.Minute
	assistant   *ai.Assistant
	uploadsDir              = "./uploads"
	baseURL                 = "http://localhost:8080"
)

// NewRouter builds the gin engine with every route registered
func NewRouter(opts Options) *gin.Engine {
	RegisterValidators()

	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Cache != nil {
		reportCache = opts.Cache
	}
	reportTTL = opts.CacheTTL
	assistant = opts.Assistant
	if opts.UploadsDir != "" {
		uploadsDir = opts.UploadsDir
	}
	if opts.BaseURL != "" {
		baseURL = opts.BaseURL
	}

	r := gin.New()
	r.Use(logger.RequestIDMiddleware(), logger.GinMiddleware(opts.Logger), logger.Recovery(opts.Logger))
	if len(opts.CORSAllowOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     opts.CORSAllowOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", logger.RequestIDHeader},
			ExposeHeaders:    []string{"Content-Length", "Content-Disposition", logger.RequestIDHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.GET("/health", Health)
	r.POST("/login", Login)
	if opts.AllowRegistration {
		r.POST("/register", Register)
		opts.Logger.Warn("Registration route is OPEN. Disable it in production")
	}
	r.Static("/uploads", uploadsDir)

	api := r.Group("/api")
	api.Use(middleware.AuthMiddleware())
	{
		// every signed-in role
		api.GET("/me", Me)
		api.GET("/products", GetProducts)
		api.GET("/products/categories", GetCategories)
		api.GET("/products/:id", GetProduct)
		api.GET("/customers", GetCustomers)
		api.GET("/customers/:id", GetCustomer)
		api.POST("/customers", AddCustomer)
		api.PUT("/customers/:id", UpdateCustomer)
		api.GET("/agents", GetAgents)
		api.GET("/orders", GetOrders)
		api.GET("/orders/:id", GetOrder)
		api.GET("/orders/reference/:reference", GetOrderByReference)
		api.POST("/orders", AddOrder)
		api.PUT("/orders/:id", UpdateOrder)
		api.POST("/orders/:id/status", TransitionOrder)
		api.POST("/orders/:id/agent", AssignAgent)
		api.GET("/rates", GetRates)

		manager := api.Group("/")
		manager.Use(middleware.RequireRole(models.RoleAdmin, models.RoleManager))
		{
			manager.GET("/dashboard", GetDashboard)
			manager.POST("/products", AddProduct)
			manager.PUT("/products/:id", UpdateProduct)
			manager.POST("/products/:id/restock", RestockProduct)
			manager.POST("/products/:id/adjust", AdjustProduct)
			manager.POST("/upload", UploadImage)
			manager.GET("/movements", GetMovements)

			manager.GET("/agents/:id", GetAgent)
			manager.POST("/agents", AddAgent)
			manager.PUT("/agents/:id", UpdateAgent)
			manager.GET("/agents/:id/stock", GetAgentStock)
			manager.POST("/agents/:id/stock", MoveStock)
			manager.GET("/agents/:id/reconciliation", GetReconciliation)
			manager.GET("/agents/:id/settlement", GetSettlement)
			manager.GET("/agents/:id/payments", GetPayments)
			manager.POST("/agents/:id/payments", AddPayment)
			manager.GET("/settlements", GetBalances)

			manager.GET("/expenses", GetExpenses)
			manager.GET("/expenses/:id", GetExpense)
			manager.POST("/expenses", AddExpense)
			manager.PUT("/expenses/:id", UpdateExpense)

			manager.GET("/reports/summary", GetSummary)
			manager.GET("/reports/trend", GetTrend)
			manager.GET("/reports/products", GetProductReport)
			manager.GET("/reports/agents", GetAgentReport)
			manager.GET("/reports/expenses", GetExpenseReport)
			manager.GET("/reports/valuation", GetStockValuation)
		}

		admin := api.Group("/")
		admin.Use(middleware.RequireRole(models.RoleAdmin))
		{
			admin.POST("/ask", AskAI)
			admin.GET("/users", GetUsers)
			admin.PUT("/users/:id/role", SetUserRole)
			admin.PUT("/rates/:currency", SetRate)
			admin.GET("/audit", GetAuditLog)
			admin.GET("/reports/export", ExportReport)

			admin.DELETE("/products/:id", DeleteProduct)
			admin.DELETE("/agents/:id", DeleteAgent)
			admin.DELETE("/customers/:id", DeleteCustomer)
			admin.DELETE("/orders/:id", DeleteOrder)
			admin.DELETE("/expenses/:id", DeleteExpense)
			admin.DELETE("/payments/:id", DeletePayment)
		}
	}

	if opts.WebDir != "" {
		serveSPA(r, opts.WebDir)
	}
	return r
}

// serveSPA serves the built frontend; unknown non-API paths get index.html so
// client-side routing survives a refresh.
func serveSPA(r *gin.Engine, dir string) {
	r.Static("/assets", filepath.Join(dir, "assets"))
	index := filepath.Join(dir, "index.html")
	r.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, gin.H{"error": "Route not found", "code": "NOT_FOUND"})
			return
		}
		if _, err := os.Stat(index); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Route not found", "code": "NOT_FOUND"})
			return
		}
		c.File(index)
	})
}
