package finance

import (
	"go-ops-dashboard/internal/models"
	"go-ops-dashboard/internal/money"

	"github.com/shopspring/decimal"
)

// Settlement is the cash position between the company and one agent, in the
// base currency. A positive balance is money the agent still owes.
type Settlement struct {
	AgentID       uint            `json:"agent_id"`
	AgentName     string          `json:"agent_name"`
	Currency      money.Currency  `json:"currency"`
	Delivered     int             `json:"delivered"`
	Collected     decimal.Decimal `json:"collected"`
	Commission    decimal.Decimal `json:"commission"`
	MissingUnits  int             `json:"missing_units"`
	MissingCharge decimal.Decimal `json:"missing_charge"`
	Paid          decimal.Decimal `json:"paid"`
	Balance       decimal.Decimal `json:"balance"`
}

// Settle computes the settlement from the agent's delivered orders, the
// stock rows carrying missing units (products loaded) and the payments
// received.
func Settle(agent models.Agent, delivered []models.Order, held []models.AgentStock, payments []models.AgentPayment, rates *money.Rates) (Settlement, error) {
	s := Settlement{AgentID: agent.ID, AgentName: agent.Name, Currency: rates.Base()}

	perOrder, err := rates.Convert(agent.CommissionPerOrder, money.Currency(agent.Currency))
	if err != nil {
		return Settlement{}, err
	}
	for _, o := range delivered {
		revenue, err := OrderRevenue(o, rates)
		if err != nil {
			return Settlement{}, err
		}
		s.Delivered++
		s.Collected = s.Collected.Add(revenue)
		s.Commission = s.Commission.Add(perOrder)
	}
	for _, h := range held {
		if h.Missing <= 0 {
			continue
		}
		s.MissingUnits += h.Missing
		charge, err := rates.Convert(h.Product.CostPrice.Mul(decimal.NewFromInt(int64(h.Missing))), money.Currency(h.Product.Currency))
		if err != nil {
			return Settlement{}, err
		}
		s.MissingCharge = s.MissingCharge.Add(charge)
	}
	for _, p := range payments {
		paid, err := rates.Convert(p.Amount, money.Currency(p.Currency))
		if err != nil {
			return Settlement{}, err
		}
		s.Paid = s.Paid.Add(paid)
	}

	s.Collected = money.Round(s.Collected)
	s.Commission = money.Round(s.Commission)
	s.MissingCharge = money.Round(s.MissingCharge)
	s.Paid = money.Round(s.Paid)
	s.Balance = s.Collected.Sub(s.Commission).Add(s.MissingCharge).Sub(s.Paid)
	return s, nil
}
