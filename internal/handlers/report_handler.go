package handlers

import (
	"bytes"
	"net/http"
	"time"

	"go-ops-dashboard/internal/cache"
	"go-ops-dashboard/internal/database"
	"go-ops-dashboard/internal/export"
	"go-ops-dashboard/internal/finance"
	"go-ops-dashboard/internal/logger"
	"go-ops-dashboard/internal/money"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

const dashboardPrefix = "dashboard:"

type RateRequest struct {
	Rate decimal.Decimal `json:"rate"`
}

// ExportQuery selects what /reports/export produces. The order and expense
// filters are read from the same query string.
type ExportQuery struct {
	Dataset string `form:"dataset" binding:"required,oneof=orders expenses summary"`
	Format  string `form:"format" binding:"omitempty,oneof=csv xlsx"`
}

// resolvePeriod reads period, from and to from the query string
func resolvePeriod(c *gin.Context) (finance.Period, bool) {
	p, err := finance.Resolve(c.Query("period"), c.Query("from"), c.Query("to"), time.Now())
	if err != nil {
		respondError(c, err)
		return p, false
	}
	return p, true
}

// --- GET: /api/dashboard ---
// Headline comparison, low stock and the latest orders, cached briefly.
func GetDashboard(c *gin.Context) {
	p, ok := resolvePeriod(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	key := dashboardPrefix + p.Name + ":" + c.Query("from") + ":" + c.Query("to")

	dashboard, err := cache.Remember(ctx, reportCache, logger.FromGin(c), key, reportTTL, func() (*database.Dashboard, error) {
		return database.LoadDashboard(ctx, p)
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dashboard)
}

// GetSummary compares the period with the one before it
func GetSummary(c *gin.Context) {
	p, ok := resolvePeriod(c)
	if !ok {
		return
	}
	cmp, err := database.ComparePeriod(c.Request.Context(), p)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cmp)
}

func GetTrend(c *gin.Context) {
	p, ok := resolvePeriod(c)
	if !ok {
		return
	}
	points, err := database.TrendReport(c.Request.Context(), p.Current, c.DefaultQuery("granularity", finance.ByDay))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"period": p, "points": points})
}

func GetProductReport(c *gin.Context) {
	p, ok := resolvePeriod(c)
	if !ok {
		return
	}
	rows, err := database.ProductReport(c.Request.Context(), p.Current)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"period": p, "products": rows})
}

func GetAgentReport(c *gin.Context) {
	p, ok := resolvePeriod(c)
	if !ok {
		return
	}
	rows, err := database.AgentReport(c.Request.Context(), p.Current)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"period": p, "agents": rows})
}

func GetExpenseReport(c *gin.Context) {
	p, ok := resolvePeriod(c)
	if !ok {
		return
	}
	rows, err := database.ExpenseReport(c.Request.Context(), p.Current)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"period": p, "categories": rows})
}

// --- GET: /api/reports/valuation ---
// GetStockValuation values warehouse and agent-held stock at cost
func GetStockValuation(c *gin.Context) {
	valuation, err := database.StockValuation(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, valuation)
}

// --- GET: /api/reports/export ---
func ExportReport(c *gin.Context) {
	var q ExportQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	if q.Format == "" {
		q.Format = export.CSV
	}
	ctx := c.Request.Context()

	// 1. Build the table for the requested dataset
	var table export.Table
	switch q.Dataset {
	case "orders":
		var f database.OrderFilter
		if err := c.ShouldBindQuery(&f); err != nil {
			badRequest(c, err)
			return
		}
		orders, err := database.ExportOrders(ctx, f)
		if err != nil {
			respondError(c, err)
			return
		}
		table = export.OrdersTable(orders)
	case "expenses":
		var f database.ExpenseFilter
		if err := c.ShouldBindQuery(&f); err != nil {
			badRequest(c, err)
			return
		}
		expenses, err := database.ExportExpenses(ctx, f)
		if err != nil {
			respondError(c, err)
			return
		}
		table = export.ExpensesTable(expenses)
	case "summary":
		p, ok := resolvePeriod(c)
		if !ok {
			return
		}
		cmp, err := database.ComparePeriod(ctx, p)
		if err != nil {
			respondError(c, err)
			return
		}
		table = export.SummaryTable(cmp)
	}

	// 2. Render fully before sending so a failure can still answer with JSON
	var buf bytes.Buffer
	if err := export.Write(&buf, q.Format, table); err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+table.Filename(q.Format))
	c.Data(http.StatusOK, export.ContentType(q.Format), buf.Bytes())
}

func GetRates(c *gin.Context) {
	rates, err := database.ListRates(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"base":      database.BaseCurrency,
		"supported": money.Supported(),
		"rates":     rates,
	})
}

// SetRate upserts the value of one currency in the base currency
func SetRate(c *gin.Context) {
	var input RateRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	rate, err := database.SetRate(c.Request.Context(), currentUser(c), c.Param("currency"), input.Rate)
	if err != nil {
		respondError(c, err)
		return
	}
	invalidateReports(c)
	c.JSON(http.StatusOK, rate)
}
