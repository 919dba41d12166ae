package database

import (
	"context"

	"go-ops-dashboard/internal/finance"
	"go-ops-dashboard/internal/models"
	"go-ops-dashboard/internal/money"

	"gorm.io/gorm"
)

// LoadDataset fetches everything the financial reports need for one window
func LoadDataset(ctx context.Context, w finance.Window) (finance.Dataset, error) {
	return loadDataset(DB.WithContext(ctx), w)
}

func loadDataset(db *gorm.DB, w finance.Window) (finance.Dataset, error) {
	var d finance.Dataset

	// 1. Delivered orders carry revenue and cost
	err := db.Preload("Items").
		Where("status = ? AND delivered_at >= ? AND delivered_at < ?", models.StatusDelivered, w.Start, w.End).
		Find(&d.Delivered).Error
	if err != nil {
		return d, err
	}

	// 2. Returns only count
	err = db.Where("status = ? AND returned_at >= ? AND returned_at < ?", models.StatusReturned, w.Start, w.End).
		Find(&d.Returned).Error
	if err != nil {
		return d, err
	}

	// 3. Orders taken in the window
	err = db.Model(&models.Order{}).
		Where("created_at >= ? AND created_at < ?", w.Start, w.End).
		Count(&d.CreatedCount).Error
	if err != nil {
		return d, err
	}

	// 4. Money spent
	err = db.Where("spent_at >= ? AND spent_at < ?", w.Start, w.End).
		Order("spent_at").
		Find(&d.Expenses).Error
	if err != nil {
		return d, err
	}

	// 5. Agents for commissions
	var agents []models.Agent
	if err := db.Find(&agents).Error; err != nil {
		return d, err
	}
	d.Agents = make(map[uint]models.Agent, len(agents))
	for _, a := range agents {
		d.Agents[a.ID] = a
	}
	return d, nil
}

func datasetAndRates(ctx context.Context, w finance.Window) (finance.Dataset, *money.Rates, error) {
	d, err := LoadDataset(ctx, w)
	if err != nil {
		return d, nil, err
	}
	rates, err := LoadRates(ctx)
	return d, rates, err
}

// FinancialSummary is the summary of one window
func FinancialSummary(ctx context.Context, w finance.Window) (finance.Summary, error) {
	d, rates, err := datasetAndRates(ctx, w)
	if err != nil {
		return finance.Summary{}, err
	}
	return finance.Summarize(d, rates)
}

// ComparePeriod summarizes the period and the window before it
func ComparePeriod(ctx context.Context, p finance.Period) (finance.Comparison, error) {
	cur, err := FinancialSummary(ctx, p.Current)
	if err != nil {
		return finance.Comparison{}, err
	}
	prev, err := FinancialSummary(ctx, p.Previous)
	if err != nil {
		return finance.Comparison{}, err
	}
	return finance.Compare(p, cur, prev), nil
}

func TrendReport(ctx context.Context, w finance.Window, granularity string) ([]finance.TrendPoint, error) {
	// Reject oversized windows before loading them
	if _, err := finance.Buckets(w, granularity); err != nil {
		return nil, err
	}
	d, rates, err := datasetAndRates(ctx, w)
	if err != nil {
		return nil, err
	}
	return finance.Trend(w, granularity, d, rates)
}

func ProductReport(ctx context.Context, w finance.Window) ([]finance.ProductPerformance, error) {
	d, rates, err := datasetAndRates(ctx, w)
	if err != nil {
		return nil, err
	}

	ids := make(map[uint]bool)
	for _, o := range d.Delivered {
		for _, item := range o.Items {
			ids[item.ProductID] = true
		}
	}
	for _, e := range d.Expenses {
		if e.ProductID != nil {
			ids[*e.ProductID] = true
		}
	}
	products := make(map[uint]models.Product, len(ids))
	if len(ids) > 0 {
		list := make([]uint, 0, len(ids))
		for id := range ids {
			list = append(list, id)
		}
		var rows []models.Product
		if err := DB.WithContext(ctx).Unscoped().Where("id IN ?", list).Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, p := range rows {
			products[p.ID] = p
		}
	}
	return finance.ProductBreakdown(d, products, rates)
}

func AgentReport(ctx context.Context, w finance.Window) ([]finance.AgentPerformance, error) {
	d, rates, err := datasetAndRates(ctx, w)
	if err != nil {
		return nil, err
	}
	return finance.AgentBreakdown(d, rates)
}

func ExpenseReport(ctx context.Context, w finance.Window) ([]finance.ExpenseShare, error) {
	d, rates, err := datasetAndRates(ctx, w)
	if err != nil {
		return nil, err
	}
	return finance.ExpenseBreakdown(d.Expenses, rates)
}

// StockValuation prices all sellable stock at cost
func StockValuation(ctx context.Context) (finance.Valuation, error) {
	db := DB.WithContext(ctx)
	var products []models.Product
	if err := db.Order("name").Find(&products).Error; err != nil {
		return finance.Valuation{}, err
	}
	var held []models.AgentStock
	if err := db.Where("quantity > 0").Find(&held).Error; err != nil {
		return finance.Valuation{}, err
	}
	rates, err := LoadRates(ctx)
	if err != nil {
		return finance.Valuation{}, err
	}
	return finance.Value(products, held, rates)
}

// Dashboard is the landing page payload
type Dashboard struct {
	Comparison   finance.Comparison `json:"comparison"`
	LowStock     []models.Product   `json:"low_stock"`
	RecentOrders []models.Order     `json:"recent_orders"`
}

func LoadDashboard(ctx context.Context, p finance.Period) (*Dashboard, error) {
	cmp, err := ComparePeriod(ctx, p)
	if err != nil {
		return nil, err
	}
	low, err := LowStockProducts(ctx, 10)
	if err != nil {
		return nil, err
	}
	recent, err := RecentOrders(ctx, 10)
	if err != nil {
		return nil, err
	}
	return &Dashboard{Comparison: cmp, LowStock: low, RecentOrders: recent}, nil
}
