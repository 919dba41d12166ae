package finance

import (
	"sort"
	"time"

	"go-ops-dashboard/internal/apperr"
	"go-ops-dashboard/internal/models"
	"go-ops-dashboard/internal/money"

	"github.com/shopspring/decimal"
)

// Trend granularities
const (
	ByDay   = "day"
	ByMonth = "month"
)

// Bucket limits per granularity: a leap year of days, ten years of months
const (
	maxDayBuckets   = 366
	maxMonthBuckets = 120
)

// TrendPoint is one chart bucket
type TrendPoint struct {
	Label     string          `json:"label"`
	Start     time.Time       `json:"start"`
	Revenue   decimal.Decimal `json:"revenue"`
	COGS      decimal.Decimal `json:"cogs"`
	Expenses  decimal.Decimal `json:"expenses"`
	NetProfit decimal.Decimal `json:"net_profit"`
	Delivered int             `json:"delivered"`
}

// Buckets lays out the empty trend points covering w. It fails when the
// window needs more buckets than the granularity allows.
func Buckets(w Window, granularity string) ([]TrendPoint, error) {
	var step func(time.Time) time.Time
	var label func(time.Time) string
	var first time.Time
	var limit int

	switch granularity {
	case "", ByDay:
		step = func(t time.Time) time.Time { return t.AddDate(0, 0, 1) }
		label = func(t time.Time) string { return t.Format(dateLayout) }
		first = startOfDay(w.Start)
		limit = maxDayBuckets
	case ByMonth:
		step = func(t time.Time) time.Time { return t.AddDate(0, 1, 0) }
		label = func(t time.Time) string { return t.Format("2006-01") }
		first = startOfMonth(w.Start)
		limit = maxMonthBuckets
	default:
		return nil, apperr.Wrap(apperr.ErrInvalidInput, "granularity must be day or month")
	}

	var points []TrendPoint
	for t := first; t.Before(w.End); t = step(t) {
		if len(points) == limit {
			return nil, apperr.Wrap(apperr.ErrInvalidInput,
				"a %s trend covers at most %d buckets, shorten the period", granularityName(granularity), limit)
		}
		points = append(points, TrendPoint{Label: label(t), Start: t})
	}
	return points, nil
}

// Trend buckets the dataset across w. Buckets with no activity are kept so
// charts get a continuous axis.
func Trend(w Window, granularity string, d Dataset, rates *money.Rates) ([]TrendPoint, error) {
	points, err := Buckets(w, granularity)
	if err != nil {
		return nil, err
	}
	bucket := func(t time.Time) int {
		if !t.Before(w.End) {
			return -1
		}
		i := sort.Search(len(points), func(i int) bool { return points[i].Start.After(t) })
		return i - 1
	}

	for _, o := range d.Delivered {
		if o.DeliveredAt == nil {
			continue
		}
		i := bucket(o.DeliveredAt.In(w.Start.Location()))
		if i < 0 {
			continue
		}
		revenue, cost, commission, err := orderFigures(o, d.Agents, rates)
		if err != nil {
			return nil, err
		}
		p := &points[i]
		p.Revenue = p.Revenue.Add(revenue)
		p.COGS = p.COGS.Add(cost)
		p.NetProfit = p.NetProfit.Add(revenue).Sub(cost).Sub(commission)
		p.Delivered++
	}
	for _, e := range d.Expenses {
		i := bucket(e.SpentAt.In(w.Start.Location()))
		if i < 0 {
			continue
		}
		amount, err := rates.Convert(e.Amount, money.Currency(e.Currency))
		if err != nil {
			return nil, err
		}
		points[i].Expenses = points[i].Expenses.Add(amount)
		points[i].NetProfit = points[i].NetProfit.Sub(amount)
	}

	for i := range points {
		points[i].Revenue = money.Round(points[i].Revenue)
		points[i].COGS = money.Round(points[i].COGS)
		points[i].Expenses = money.Round(points[i].Expenses)
		points[i].NetProfit = money.Round(points[i].NetProfit)
	}
	return points, nil
}

func granularityName(g string) string {
	if g == "" {
		return ByDay
	}
	return g
}

// ProductPerformance is the sales and ad efficiency of one product
type ProductPerformance struct {
	ProductID   uint            `json:"product_id"`
	SKU         string          `json:"sku"`
	Name        string          `json:"name"`
	Units       int             `json:"units"`
	Revenue     decimal.Decimal `json:"revenue"`
	COGS        decimal.Decimal `json:"cogs"`
	GrossProfit decimal.Decimal `json:"gross_profit"`
	Margin      decimal.Decimal `json:"margin"`
	AdSpend     decimal.Decimal `json:"ad_spend"`
	ROAS        decimal.Decimal `json:"roas"`
}

// ProductBreakdown aggregates delivered order lines and product-attributed
// ad spend per product, highest revenue first. Item revenue excludes
// shipping fees and order-level discounts.
func ProductBreakdown(d Dataset, products map[uint]models.Product, rates *money.Rates) ([]ProductPerformance, error) {
	rows := make(map[uint]*ProductPerformance)
	get := func(id uint) *ProductPerformance {
		r, ok := rows[id]
		if !ok {
			p := products[id]
			r = &ProductPerformance{ProductID: id, SKU: p.SKU, Name: p.Name}
			rows[id] = r
		}
		return r
	}

	for _, o := range d.Delivered {
		for _, item := range o.Items {
			qty := decimal.NewFromInt(int64(item.Quantity))
			revenue, err := rates.Convert(item.UnitPrice.Mul(qty), money.Currency(o.Currency))
			if err != nil {
				return nil, err
			}
			cost, err := rates.Convert(item.UnitCost.Mul(qty), money.Currency(item.CostCurrency))
			if err != nil {
				return nil, err
			}
			r := get(item.ProductID)
			r.Units += item.Quantity
			r.Revenue = r.Revenue.Add(revenue)
			r.COGS = r.COGS.Add(cost)
		}
	}
	for _, e := range d.Expenses {
		if e.Category != models.ExpenseAds || e.ProductID == nil {
			continue
		}
		amount, err := rates.Convert(e.Amount, money.Currency(e.Currency))
		if err != nil {
			return nil, err
		}
		r := get(*e.ProductID)
		r.AdSpend = r.AdSpend.Add(amount)
	}

	out := make([]ProductPerformance, 0, len(rows))
	for _, r := range rows {
		r.Revenue = money.Round(r.Revenue)
		r.COGS = money.Round(r.COGS)
		r.AdSpend = money.Round(r.AdSpend)
		r.GrossProfit = r.Revenue.Sub(r.COGS)
		r.Margin = Percent(r.GrossProfit, r.Revenue)
		r.ROAS = ratio(r.Revenue, r.AdSpend)
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Revenue.Equal(out[j].Revenue) {
			return out[i].Revenue.GreaterThan(out[j].Revenue)
		}
		return out[i].ProductID < out[j].ProductID
	})
	return out, nil
}

// AgentPerformance is the delivery record of one agent
type AgentPerformance struct {
	AgentID      uint            `json:"agent_id"`
	Name         string          `json:"name"`
	Region       string          `json:"region"`
	Delivered    int             `json:"delivered"`
	Returned     int             `json:"returned"`
	DeliveryRate decimal.Decimal `json:"delivery_rate"`
	Collected    decimal.Decimal `json:"collected"`
}

// AgentBreakdown aggregates deliveries and returns per agent, highest
// collected revenue first. Orders without an agent are ignored.
func AgentBreakdown(d Dataset, rates *money.Rates) ([]AgentPerformance, error) {
	rows := make(map[uint]*AgentPerformance)
	get := func(id uint) *AgentPerformance {
		r, ok := rows[id]
		if !ok {
			a := d.Agents[id]
			r = &AgentPerformance{AgentID: id, Name: a.Name, Region: a.Region}
			rows[id] = r
		}
		return r
	}

	for _, o := range d.Delivered {
		if o.AgentID == nil {
			continue
		}
		revenue, err := OrderRevenue(o, rates)
		if err != nil {
			return nil, err
		}
		r := get(*o.AgentID)
		r.Delivered++
		r.Collected = r.Collected.Add(revenue)
	}
	for _, o := range d.Returned {
		if o.AgentID == nil {
			continue
		}
		get(*o.AgentID).Returned++
	}

	out := make([]AgentPerformance, 0, len(rows))
	for _, r := range rows {
		r.Collected = money.Round(r.Collected)
		r.DeliveryRate = Percent(decimal.NewFromInt(int64(r.Delivered)), decimal.NewFromInt(int64(r.Delivered+r.Returned)))
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Collected.Equal(out[j].Collected) {
			return out[i].Collected.GreaterThan(out[j].Collected)
		}
		return out[i].AgentID < out[j].AgentID
	})
	return out, nil
}

// ExpenseShare is the total of one expense category
type ExpenseShare struct {
	Category string          `json:"category"`
	Count    int             `json:"count"`
	Amount   decimal.Decimal `json:"amount"`
	Share    decimal.Decimal `json:"share"`
}

// ExpenseBreakdown totals expenses per category, largest first
func ExpenseBreakdown(expenses []models.Expense, rates *money.Rates) ([]ExpenseShare, error) {
	totals := make(map[string]*ExpenseShare)
	grand := decimal.Zero
	for _, e := range expenses {
		amount, err := rates.Convert(e.Amount, money.Currency(e.Currency))
		if err != nil {
			return nil, err
		}
		r, ok := totals[e.Category]
		if !ok {
			r = &ExpenseShare{Category: e.Category}
			totals[e.Category] = r
		}
		r.Count++
		r.Amount = r.Amount.Add(amount)
		grand = grand.Add(amount)
	}

	out := make([]ExpenseShare, 0, len(totals))
	for _, r := range totals {
		r.Share = Percent(r.Amount, grand)
		r.Amount = money.Round(r.Amount)
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Amount.Equal(out[j].Amount) {
			return out[i].Amount.GreaterThan(out[j].Amount)
		}
		return out[i].Category < out[j].Category
	})
	return out, nil
}

// CustomerStats are the relationship figures shown next to a customer
type CustomerStats struct {
	Orders      int             `json:"orders"`
	Delivered   int             `json:"delivered"`
	Returned    int             `json:"returned"`
	TotalSpent  decimal.Decimal `json:"total_spent"`
	LastOrderAt *time.Time      `json:"last_order_at"`
}

// CustomerRollup computes CustomerStats per customer id
func CustomerRollup(orders []models.Order, rates *money.Rates) (map[uint]CustomerStats, error) {
	out := make(map[uint]CustomerStats)
	for _, o := range orders {
		s := out[o.CustomerID]
		s.Orders++
		switch o.Status {
		case models.StatusDelivered:
			revenue, err := OrderRevenue(o, rates)
			if err != nil {
				return nil, err
			}
			s.Delivered++
			s.TotalSpent = money.Round(s.TotalSpent.Add(revenue))
		case models.StatusReturned:
			s.Returned++
		}
		if s.LastOrderAt == nil || o.CreatedAt.After(*s.LastOrderAt) {
			created := o.CreatedAt
			s.LastOrderAt = &created
		}
		out[o.CustomerID] = s
	}
	return out, nil
}
