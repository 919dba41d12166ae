package finance

import (
	"sort"

	"go-ops-dashboard/internal/models"
	"go-ops-dashboard/internal/money"

	"github.com/shopspring/decimal"
)

// ValuationItem is one product row of the valuation report
type ValuationItem struct {
	ProductID    uint            `json:"product_id"`
	Name         string          `json:"name"`
	WarehouseQty int             `json:"warehouse_qty"`
	AgentQty     int             `json:"agent_qty"`
	Quantity     int             `json:"quantity"`
	CostPrice    decimal.Decimal `json:"cost_price"` // base currency
	TotalCost    decimal.Decimal `json:"total_cost"`
}

// CategoryGroup is one category table of the valuation report
type CategoryGroup struct {
	CategoryName string          `json:"category_name"`
	Items        []ValuationItem `json:"items"`
	Subtotal     decimal.Decimal `json:"subtotal"`
}

// Valuation is the cost value of all sellable stock
type Valuation struct {
	Currency   money.Currency  `json:"currency"`
	Categories []CategoryGroup `json:"categories"`
	GrandTotal decimal.Decimal `json:"grand_total"`
}

// Value prices every good unit, in the warehouse or with agents, at cost.
// Defective and missing units are excluded.
func Value(products []models.Product, held []models.AgentStock, rates *money.Rates) (Valuation, error) {
	withAgents := make(map[uint]int)
	for _, h := range held {
		withAgents[h.ProductID] += h.Quantity
	}

	groups := make(map[string]*CategoryGroup)
	grand := decimal.Zero
	for _, p := range products {
		name := p.Category
		if name == "" {
			name = "Uncategorized"
		}
		g, ok := groups[name]
		if !ok {
			g = &CategoryGroup{CategoryName: name, Items: []ValuationItem{}}
			groups[name] = g
		}

		cost, err := rates.Convert(p.CostPrice, money.Currency(p.Currency))
		if err != nil {
			return Valuation{}, err
		}
		qty := p.WarehouseQty + withAgents[p.ID]
		unit := money.Round(cost)
		total := unit.Mul(decimal.NewFromInt(int64(qty)))

		g.Items = append(g.Items, ValuationItem{
			ProductID:    p.ID,
			Name:         p.Name,
			WarehouseQty: p.WarehouseQty,
			AgentQty:     withAgents[p.ID],
			Quantity:     qty,
			CostPrice:    unit,
			TotalCost:    total,
		})
		g.Subtotal = g.Subtotal.Add(total)
		grand = grand.Add(total)
	}

	v := Valuation{Currency: rates.Base(), GrandTotal: grand, Categories: make([]CategoryGroup, 0, len(groups))}
	for _, g := range groups {
		v.Categories = append(v.Categories, *g)
	}
	sort.Slice(v.Categories, func(i, j int) bool {
		return v.Categories[i].CategoryName < v.Categories[j].CategoryName
	})
	return v, nil
}
