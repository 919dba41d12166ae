// Package finance computes the business figures shown on the dashboard:
// revenue, cost and profit roll-ups across currencies, period comparisons,
// breakdowns, agent settlements and stock valuation. Everything here works
// on rows already fetched from the database.
package finance

import (
	"go-ops-dashboard/internal/models"
	"go-ops-dashboard/internal/money"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Dataset is everything a summary needs for one window
type Dataset struct {
	Delivered    []models.Order // delivered inside the window, items loaded
	Returned     []models.Order // returned inside the window
	CreatedCount int64          // orders created inside the window
	Expenses     []models.Expense
	Agents       map[uint]models.Agent
}

// Summary is the financial picture of one window, in the base currency
type Summary struct {
	Currency          money.Currency  `json:"currency"`
	Revenue           decimal.Decimal `json:"revenue"`
	COGS              decimal.Decimal `json:"cogs"`
	Expenses          decimal.Decimal `json:"expenses"`
	AdSpend           decimal.Decimal `json:"ad_spend"`
	Commissions       decimal.Decimal `json:"commissions"`
	GrossProfit       decimal.Decimal `json:"gross_profit"`
	NetProfit         decimal.Decimal `json:"net_profit"`
	GrossMargin       decimal.Decimal `json:"gross_margin"`
	NetMargin         decimal.Decimal `json:"net_margin"`
	ROI               decimal.Decimal `json:"roi"`
	ROAS              decimal.Decimal `json:"roas"`
	OrdersCreated     int64           `json:"orders_created"`
	Delivered         int64           `json:"delivered"`
	Returned          int64           `json:"returned"`
	DeliveryRate      decimal.Decimal `json:"delivery_rate"`
	AverageOrderValue decimal.Decimal `json:"average_order_value"`
}

// Percent returns num/den as a percentage rounded to cents; zero when den is zero
func Percent(num, den decimal.Decimal) decimal.Decimal {
	if den.IsZero() {
		return decimal.Zero
	}
	return num.Div(den).Mul(hundred).Round(2)
}

func ratio(num, den decimal.Decimal) decimal.Decimal {
	if den.IsZero() {
		return decimal.Zero
	}
	return num.Div(den).Round(2)
}

// OrderRevenue is the order total in the base currency
func OrderRevenue(o models.Order, rates *money.Rates) (decimal.Decimal, error) {
	return rates.Convert(o.Total, money.Currency(o.Currency))
}

// OrderCost is the cost of goods of the order in the base currency
func OrderCost(o models.Order, rates *money.Rates) (decimal.Decimal, error) {
	cost := decimal.Zero
	for _, item := range o.Items {
		line, err := rates.Convert(item.UnitCost.Mul(decimal.NewFromInt(int64(item.Quantity))), money.Currency(item.CostCurrency))
		if err != nil {
			return decimal.Zero, err
		}
		cost = cost.Add(line)
	}
	return cost, nil
}

// Commission is what the delivering agent earns for the order
func Commission(o models.Order, agents map[uint]models.Agent, rates *money.Rates) (decimal.Decimal, error) {
	if o.AgentID == nil {
		return decimal.Zero, nil
	}
	agent, ok := agents[*o.AgentID]
	if !ok {
		return decimal.Zero, nil
	}
	return rates.Convert(agent.CommissionPerOrder, money.Currency(agent.Currency))
}

// orderFigures converts revenue, cost and commission of one delivered order
func orderFigures(o models.Order, agents map[uint]models.Agent, rates *money.Rates) (revenue, cost, commission decimal.Decimal, err error) {
	if revenue, err = OrderRevenue(o, rates); err != nil {
		return
	}
	if cost, err = OrderCost(o, rates); err != nil {
		return
	}
	commission, err = Commission(o, agents, rates)
	return
}

// Summarize reduces a dataset into a Summary. It fails when an amount is in
// a currency the rate table cannot convert.
func Summarize(d Dataset, rates *money.Rates) (Summary, error) {
	s := Summary{
		Currency:      rates.Base(),
		OrdersCreated: d.CreatedCount,
		Delivered:     int64(len(d.Delivered)),
		Returned:      int64(len(d.Returned)),
	}

	for _, o := range d.Delivered {
		revenue, cost, commission, err := orderFigures(o, d.Agents, rates)
		if err != nil {
			return Summary{}, err
		}
		s.Revenue = s.Revenue.Add(revenue)
		s.COGS = s.COGS.Add(cost)
		s.Commissions = s.Commissions.Add(commission)
	}
	for _, e := range d.Expenses {
		amount, err := rates.Convert(e.Amount, money.Currency(e.Currency))
		if err != nil {
			return Summary{}, err
		}
		s.Expenses = s.Expenses.Add(amount)
		if e.Category == models.ExpenseAds {
			s.AdSpend = s.AdSpend.Add(amount)
		}
	}

	s.Revenue = money.Round(s.Revenue)
	s.COGS = money.Round(s.COGS)
	s.Expenses = money.Round(s.Expenses)
	s.AdSpend = money.Round(s.AdSpend)
	s.Commissions = money.Round(s.Commissions)

	s.GrossProfit = s.Revenue.Sub(s.COGS)
	s.NetProfit = s.GrossProfit.Sub(s.Expenses).Sub(s.Commissions)
	s.GrossMargin = Percent(s.GrossProfit, s.Revenue)
	s.NetMargin = Percent(s.NetProfit, s.Revenue)
	s.ROI = Percent(s.NetProfit, s.COGS.Add(s.Expenses).Add(s.Commissions))
	s.ROAS = ratio(s.Revenue, s.AdSpend)
	s.DeliveryRate = Percent(decimal.NewFromInt(s.Delivered), decimal.NewFromInt(s.Delivered+s.Returned))
	s.AverageOrderValue = ratio(s.Revenue, decimal.NewFromInt(s.Delivered))
	return s, nil
}

// PercentChange is the change from prev to cur in percent of |prev|. A
// change from zero reports +/-100, and zero to zero reports 0.
func PercentChange(cur, prev decimal.Decimal) decimal.Decimal {
	if prev.IsZero() {
		switch cur.Sign() {
		case 0:
			return decimal.Zero
		case 1:
			return hundred
		default:
			return hundred.Neg()
		}
	}
	return cur.Sub(prev).Div(prev.Abs()).Mul(hundred).Round(2)
}

// Changes holds the percentage change of each headline metric
type Changes struct {
	Revenue           decimal.Decimal `json:"revenue"`
	COGS              decimal.Decimal `json:"cogs"`
	Expenses          decimal.Decimal `json:"expenses"`
	AdSpend           decimal.Decimal `json:"ad_spend"`
	GrossProfit       decimal.Decimal `json:"gross_profit"`
	NetProfit         decimal.Decimal `json:"net_profit"`
	ROAS              decimal.Decimal `json:"roas"`
	OrdersCreated     decimal.Decimal `json:"orders_created"`
	Delivered         decimal.Decimal `json:"delivered"`
	Returned          decimal.Decimal `json:"returned"`
	AverageOrderValue decimal.Decimal `json:"average_order_value"`
}

// Comparison puts a window next to the one before it
type Comparison struct {
	Period   Period  `json:"period"`
	Current  Summary `json:"current"`
	Previous Summary `json:"previous"`
	Changes  Changes `json:"changes"`
}

// Compare builds the period-over-period comparison
func Compare(p Period, cur, prev Summary) Comparison {
	count := func(n int64) decimal.Decimal { return decimal.NewFromInt(n) }
	return Comparison{
		Period:   p,
		Current:  cur,
		Previous: prev,
		Changes: Changes{
			Revenue:           PercentChange(cur.Revenue, prev.Revenue),
			COGS:              PercentChange(cur.COGS, prev.COGS),
			Expenses:          PercentChange(cur.Expenses, prev.Expenses),
			AdSpend:           PercentChange(cur.AdSpend, prev.AdSpend),
			GrossProfit:       PercentChange(cur.GrossProfit, prev.GrossProfit),
			NetProfit:         PercentChange(cur.NetProfit, prev.NetProfit),
			ROAS:              PercentChange(cur.ROAS, prev.ROAS),
			OrdersCreated:     PercentChange(count(cur.OrdersCreated), count(prev.OrdersCreated)),
			Delivered:         PercentChange(count(cur.Delivered), count(prev.Delivered)),
			Returned:          PercentChange(count(cur.Returned), count(prev.Returned)),
			AverageOrderValue: PercentChange(cur.AverageOrderValue, prev.AverageOrderValue),
		},
	}
}
