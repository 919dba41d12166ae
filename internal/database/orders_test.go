package database_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"go-ops-dashboard/internal/apperr"
	"go-ops-dashboard/internal/database"
	"go-ops-dashboard/internal/finance"
	"go-ops-dashboard/internal/models"
	"go-ops-dashboard/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orderFixture struct {
	product  *models.Product
	agent    *models.Agent
	customer *models.Customer
}

func setupOrders(t *testing.T) orderFixture {
	t.Helper()
	testutil.SetupDB(t)
	f := orderFixture{
		product:  testutil.CreateProduct(t, "SKU-1", "4.00", "10.00", 20),
		agent:    testutil.CreateAgent(t, "Karim", "1.50"),
		customer: testutil.CreateCustomer(t, "Sara", "0600000001"),
	}
	_, err := database.MoveStock(context.Background(), 1, f.agent.ID, f.product.ID, models.MoveAssign, 10, "")
	require.NoError(t, err)
	return f
}

func (f orderFixture) create(t *testing.T, qty int) *models.Order {
	t.Helper()
	order, err := database.CreateOrder(context.Background(), 1, database.OrderInput{
		CustomerID:  f.customer.ID,
		AgentID:     &f.agent.ID,
		ShippingFee: decimal.NewFromInt(3),
		Discount:    decimal.NewFromInt(1),
		Items:       []database.OrderItemInput{{ProductID: f.product.ID, Quantity: qty}},
	})
	require.NoError(t, err)
	return order
}

func deliver(t *testing.T, id uint) *models.Order {
	t.Helper()
	ctx := context.Background()
	var order *models.Order
	var err error
	for _, s := range []models.OrderStatus{models.StatusConfirmed, models.StatusShipped, models.StatusDelivered} {
		order, err = database.TransitionOrder(ctx, 1, id, s, "")
		require.NoError(t, err)
	}
	return order
}

func TestCreateOrder(t *testing.T) {
	f := setupOrders(t)
	ctx := context.Background()

	order := f.create(t, 2)
	assert.True(t, strings.HasPrefix(order.Reference, "ORD-"))
	assert.Len(t, order.Reference, 12)
	assert.Equal(t, models.StatusPending, order.Status)
	assert.Equal(t, "USD", order.Currency)
	assert.True(t, decimal.NewFromInt(20).Equal(order.Subtotal))
	assert.True(t, decimal.NewFromInt(22).Equal(order.Total))
	require.Len(t, order.Items, 1)
	assert.True(t, decimal.NewFromInt(4).Equal(order.Items[0].UnitCost), "cost is snapshotted")
	assert.Equal(t, "Sara", order.Customer.Name)

	byRef, err := database.GetOrderByReference(ctx, strings.ToLower(order.Reference))
	require.NoError(t, err)
	assert.Equal(t, order.ID, byRef.ID)

	_, err = database.SetRate(ctx, 1, "MAD", decimal.RequireFromString("0.1"))
	require.NoError(t, err)

	tests := []struct {
		name string
		in   database.OrderInput
		want error
	}{
		{"no items", database.OrderInput{CustomerID: f.customer.ID}, apperr.ErrInvalidInput},
		{"unknown customer", database.OrderInput{CustomerID: 99, Items: []database.OrderItemInput{{ProductID: f.product.ID, Quantity: 1}}}, apperr.ErrNotFound},
		{"unknown product", database.OrderInput{CustomerID: f.customer.ID, Items: []database.OrderItemInput{{ProductID: 99, Quantity: 1}}}, apperr.ErrNotFound},
		{"zero quantity", database.OrderInput{CustomerID: f.customer.ID, Items: []database.OrderItemInput{{ProductID: f.product.ID}}}, apperr.ErrInvalidInput},
		{"discount too large", database.OrderInput{CustomerID: f.customer.ID, Discount: decimal.NewFromInt(100), Items: []database.OrderItemInput{{ProductID: f.product.ID, Quantity: 1}}}, apperr.ErrInvalidInput},
		{"foreign currency without price", database.OrderInput{CustomerID: f.customer.ID, Currency: "MAD", Items: []database.OrderItemInput{{ProductID: f.product.ID, Quantity: 1}}}, apperr.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := database.CreateOrder(ctx, 1, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	price := decimal.NewFromInt(95)
	mad, err := database.CreateOrder(ctx, 1, database.OrderInput{
		CustomerID: f.customer.ID,
		Currency:   "mad",
		Items:      []database.OrderItemInput{{ProductID: f.product.ID, Quantity: 1, UnitPrice: &price}},
	})
	require.NoError(t, err)
	assert.Equal(t, "MAD", mad.Currency)
	assert.Equal(t, "USD", mad.Items[0].CostCurrency)
}

func TestAmountsNeedAnExchangeRate(t *testing.T) {
	f := setupOrders(t)
	ctx := context.Background()
	price := decimal.NewFromInt(10)
	eurOrder := database.OrderInput{
		CustomerID:  f.customer.ID,
		AgentID:     &f.agent.ID,
		Currency:    "EUR",
		ShippingFee: decimal.NewFromInt(3),
		Discount:    decimal.NewFromInt(1),
		Items:       []database.OrderItemInput{{ProductID: f.product.ID, Quantity: 2, UnitPrice: &price}},
	}

	t.Run("writes in a currency without a rate are rejected", func(t *testing.T) {
		_, err := database.CreateOrder(ctx, 1, eurOrder)
		assert.ErrorIs(t, err, apperr.ErrInvalidInput)
		_, meta, err := database.ListOrders(ctx, database.OrderFilter{})
		require.NoError(t, err)
		assert.Zero(t, meta.Total, "nothing is written")

		_, err = database.CreatePayment(ctx, 1, f.agent.ID, database.PaymentInput{Amount: decimal.NewFromInt(5), Currency: "EUR"})
		assert.ErrorIs(t, err, apperr.ErrInvalidInput)
		_, err = database.CreateExpense(ctx, 1, database.ExpenseInput{Category: models.ExpenseRent, Amount: decimal.NewFromInt(5), Currency: "EUR"})
		assert.ErrorIs(t, err, apperr.ErrInvalidInput)
		_, err = database.CreateProduct(ctx, 1, database.ProductInput{SKU: "EU-1", Name: "Euro mug", Currency: "EUR"})
		assert.ErrorIs(t, err, apperr.ErrInvalidInput)
		_, err = database.CreateAgent(ctx, 1, database.AgentInput{Name: "Lena", Currency: "EUR"})
		assert.ErrorIs(t, err, apperr.ErrInvalidInput)
		eur := "EUR"
		_, err = database.UpdateAgent(ctx, 1, f.agent.ID, database.AgentUpdate{Currency: &eur})
		assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	})

	now := time.Now()
	window := finance.Window{Start: now.Add(-time.Hour), End: now.Add(time.Hour)}

	t.Run("reports fail instead of dropping unconvertible amounts", func(t *testing.T) {
		order := f.create(t, 2)
		deliver(t, order.ID)
		require.NoError(t, database.DB.Model(&models.Order{}).Where("id = ?", order.ID).Update("currency", "EUR").Error)

		_, err := database.FinancialSummary(ctx, window)
		assert.ErrorIs(t, err, apperr.ErrInvalidInput)
		_, err = database.AgentSettlement(ctx, f.agent.ID, nil)
		assert.ErrorIs(t, err, apperr.ErrInvalidInput)
		_, err = database.AgentBalances(ctx)
		assert.ErrorIs(t, err, apperr.ErrInvalidInput)
		_, err = database.GetCustomerDetail(ctx, f.customer.ID, 5)
		assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	})

	t.Run("a stored rate makes them count", func(t *testing.T) {
		_, err := database.SetRate(ctx, 1, "EUR", decimal.RequireFromString("1.1"))
		require.NoError(t, err)

		s, err := database.FinancialSummary(ctx, window)
		require.NoError(t, err)
		assert.Equal(t, "24.2", s.Revenue.String())
		assert.Equal(t, "8", s.COGS.String())
		assert.Equal(t, int64(1), s.Delivered)

		settlement, err := database.AgentSettlement(ctx, f.agent.ID, nil)
		require.NoError(t, err)
		assert.Equal(t, "24.2", settlement.Collected.String())
		assert.Equal(t, "22.7", settlement.Balance.String())

		created, err := database.CreateOrder(ctx, 1, eurOrder)
		require.NoError(t, err)
		assert.Equal(t, "EUR", created.Currency)
		assert.Equal(t, "22", created.Total.String())
	})
}

func TestOrderLifecycle(t *testing.T) {
	f := setupOrders(t)
	ctx := context.Background()
	order := f.create(t, 3)

	_, err := database.TransitionOrder(ctx, 1, order.ID, models.StatusDelivered, "")
	assert.ErrorIs(t, err, apperr.ErrInvalidState, "pending cannot jump to delivered")

	_, err = database.TransitionOrder(ctx, 1, order.ID, "lost", "")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	confirmed, err := database.TransitionOrder(ctx, 1, order.ID, models.StatusConfirmed, "")
	require.NoError(t, err)
	require.NotNil(t, confirmed.ConfirmedAt)

	shipped, err := database.TransitionOrder(ctx, 1, order.ID, models.StatusShipped, "")
	require.NoError(t, err)
	require.NotNil(t, shipped.ShippedAt)
	assert.Equal(t, confirmed.ConfirmedAt.Unix(), shipped.ConfirmedAt.Unix(), "earlier stamps are kept")

	held, err := database.ListAgentStock(ctx, f.agent.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, held[0].Quantity, "shipping takes units from the agent")

	_, err = database.UpdateOrder(ctx, 1, order.ID, database.OrderUpdate{})
	assert.ErrorIs(t, err, apperr.ErrInvalidState, "only pending orders are editable")
	_, err = database.AssignAgent(ctx, 1, order.ID, f.agent.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	returned, err := database.TransitionOrder(ctx, 1, order.ID, models.StatusReturned, "customer refused")
	require.NoError(t, err)
	require.NotNil(t, returned.ReturnedAt)
	assert.True(t, returned.Status.IsTerminal())

	held, err = database.ListAgentStock(ctx, f.agent.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, held[0].Quantity, "returns go back to the agent")

	moves, _, err := database.ListMovements(ctx, database.MovementFilter{OrderID: order.ID})
	require.NoError(t, err)
	require.Len(t, moves, 2)
	assert.Equal(t, models.MoveRedeliver, moves[0].Type)
	assert.Equal(t, models.MoveDispatch, moves[1].Type)

	report, err := database.ReconcileAgent(ctx, f.agent.ID)
	require.NoError(t, err)
	assert.True(t, report.Balanced)
	assert.Equal(t, 0, report.Rows[0].Dispatched)
}

func TestShippingNeedsAgentWithStock(t *testing.T) {
	f := setupOrders(t)
	ctx := context.Background()

	order, err := database.CreateOrder(ctx, 1, database.OrderInput{
		CustomerID: f.customer.ID,
		Items:      []database.OrderItemInput{{ProductID: f.product.ID, Quantity: 11}},
	})
	require.NoError(t, err)
	_, err = database.TransitionOrder(ctx, 1, order.ID, models.StatusConfirmed, "")
	require.NoError(t, err)

	_, err = database.TransitionOrder(ctx, 1, order.ID, models.StatusShipped, "")
	assert.ErrorIs(t, err, apperr.ErrInvalidState, "no agent assigned")

	_, err = database.AssignAgent(ctx, 1, order.ID, f.agent.ID)
	require.NoError(t, err)
	_, err = database.TransitionOrder(ctx, 1, order.ID, models.StatusShipped, "")
	assert.ErrorIs(t, err, apperr.ErrInsufficientStock, "agent holds 10, order needs 11")

	got, err := database.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, got.Status, "failed transition changes nothing")
}

func TestUpdateAndDeleteOrder(t *testing.T) {
	f := setupOrders(t)
	ctx := context.Background()
	order := f.create(t, 1)

	fee := decimal.NewFromInt(5)
	notes := "call before delivery"
	updated, err := database.UpdateOrder(ctx, 1, order.ID, database.OrderUpdate{
		ShippingFee: &fee,
		Notes:       &notes,
		Items:       []database.OrderItemInput{{ProductID: f.product.ID, Quantity: 4}},
	})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(40).Equal(updated.Subtotal))
	assert.True(t, decimal.NewFromInt(44).Equal(updated.Total))
	assert.Equal(t, notes, updated.Notes)
	require.Len(t, updated.Items, 1)
	assert.Equal(t, 4, updated.Items[0].Quantity)

	list, meta, err := database.ListOrders(ctx, database.OrderFilter{Status: "pending", CustomerID: f.customer.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), meta.Total)
	assert.Equal(t, "Sara", list[0].Customer.Name)
	require.NotNil(t, list[0].Agent)

	_, _, err = database.ListOrders(ctx, database.OrderFilter{From: "yesterday"})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	require.NoError(t, database.DeleteOrder(ctx, 1, order.ID))
	_, err = database.GetOrder(ctx, order.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	delivered := deliver(t, f.create(t, 1).ID)
	assert.ErrorIs(t, database.DeleteOrder(ctx, 1, delivered.ID), apperr.ErrInvalidState)
}

func TestSettlementAndReports(t *testing.T) {
	f := setupOrders(t)
	ctx := context.Background()

	// two delivered orders of 22.00 and one return
	deliver(t, f.create(t, 2).ID)
	deliver(t, f.create(t, 2).ID)
	returned := f.create(t, 1)
	for _, s := range []models.OrderStatus{models.StatusConfirmed, models.StatusShipped, models.StatusReturned} {
		_, err := database.TransitionOrder(ctx, 1, returned.ID, s, "")
		require.NoError(t, err)
	}

	_, err := database.MoveStock(ctx, 1, f.agent.ID, f.product.ID, models.MoveMissing, 1, "")
	require.NoError(t, err)
	_, err = database.CreatePayment(ctx, 1, f.agent.ID, database.PaymentInput{Amount: decimal.NewFromInt(20)})
	require.NoError(t, err)
	_, err = database.CreatePayment(ctx, 1, f.agent.ID, database.PaymentInput{Amount: decimal.Zero})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = database.CreateExpense(ctx, 1, database.ExpenseInput{
		Category:  models.ExpenseAds,
		Amount:    decimal.NewFromInt(8),
		ProductID: &f.product.ID,
	})
	require.NoError(t, err)
	_, err = database.CreateExpense(ctx, 1, database.ExpenseInput{Category: models.ExpenseRent, Amount: decimal.NewFromInt(2)})
	require.NoError(t, err)

	t.Run("settlement", func(t *testing.T) {
		s, err := database.AgentSettlement(ctx, f.agent.ID, nil)
		require.NoError(t, err)
		assert.Equal(t, 2, s.Delivered)
		assert.Equal(t, "44", s.Collected.String())
		assert.Equal(t, "3", s.Commission.String())
		assert.Equal(t, 1, s.MissingUnits)
		assert.Equal(t, "4", s.MissingCharge.String())
		assert.Equal(t, "20", s.Paid.String())
		assert.Equal(t, "25", s.Balance.String())

		all, err := database.AgentBalances(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.True(t, s.Balance.Equal(all[0].Balance))

		payments, _, err := database.ListPayments(ctx, f.agent.ID, database.Page{})
		require.NoError(t, err)
		require.Len(t, payments, 1)
		require.NoError(t, database.DeletePayment(ctx, 1, payments[0].ID))
		s, err = database.AgentSettlement(ctx, f.agent.ID, nil)
		require.NoError(t, err)
		assert.Equal(t, "45", s.Balance.String())
	})

	now := time.Now()
	window := finance.Window{Start: now.Add(-time.Hour), End: now.Add(time.Hour)}

	t.Run("summary", func(t *testing.T) {
		s, err := database.FinancialSummary(ctx, window)
		require.NoError(t, err)
		assert.Equal(t, "44", s.Revenue.String())
		assert.Equal(t, "16", s.COGS.String())
		assert.Equal(t, "10", s.Expenses.String())
		assert.Equal(t, "8", s.AdSpend.String())
		assert.Equal(t, "3", s.Commissions.String())
		assert.Equal(t, "15", s.NetProfit.String())
		assert.Equal(t, int64(3), s.OrdersCreated)
		assert.Equal(t, int64(2), s.Delivered)
		assert.Equal(t, int64(1), s.Returned)
		assert.Equal(t, "5.5", s.ROAS.String())

		empty, err := database.FinancialSummary(ctx, finance.Window{Start: now.AddDate(-1, 0, 0), End: now.AddDate(-1, 0, 1)})
		require.NoError(t, err)
		assert.True(t, empty.Revenue.IsZero())
	})

	t.Run("comparison", func(t *testing.T) {
		p := finance.Period{Name: "custom", Current: window, Previous: finance.Window{Start: window.Start.Add(-2 * time.Hour), End: window.Start}}
		cmp, err := database.ComparePeriod(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, "100", cmp.Changes.Revenue.String())
	})

	t.Run("breakdowns", func(t *testing.T) {
		products, err := database.ProductReport(ctx, window)
		require.NoError(t, err)
		require.Len(t, products, 1)
		assert.Equal(t, 4, products[0].Units)
		assert.Equal(t, "8", products[0].AdSpend.String())
		assert.Equal(t, "SKU-1", products[0].SKU)

		agents, err := database.AgentReport(ctx, window)
		require.NoError(t, err)
		require.Len(t, agents, 1)
		assert.Equal(t, 2, agents[0].Delivered)
		assert.Equal(t, 1, agents[0].Returned)

		expenses, err := database.ExpenseReport(ctx, window)
		require.NoError(t, err)
		require.Len(t, expenses, 2)
		assert.Equal(t, models.ExpenseAds, expenses[0].Category)
		assert.Equal(t, "80", expenses[0].Share.String())

		trend, err := database.TrendReport(ctx, finance.Window{Start: now.AddDate(0, 0, -1), End: now.AddDate(0, 0, 1)}, finance.ByDay)
		require.NoError(t, err)
		delivered := 0
		for _, pt := range trend {
			delivered += pt.Delivered
		}
		assert.Equal(t, 2, delivered)
	})

	t.Run("customer figures", func(t *testing.T) {
		detail, err := database.GetCustomerDetail(ctx, f.customer.ID, 2)
		require.NoError(t, err)
		assert.Equal(t, 3, detail.Stats.Orders)
		assert.Equal(t, 2, detail.Stats.Delivered)
		assert.Equal(t, 1, detail.Stats.Returned)
		assert.Equal(t, "44", detail.Stats.TotalSpent.String())
		assert.Len(t, detail.RecentOrders, 2)

		assert.ErrorIs(t, database.DeleteCustomer(ctx, 1, f.customer.ID), apperr.ErrInvalidState)
	})

	t.Run("dashboard", func(t *testing.T) {
		p, err := finance.Resolve(finance.PeriodToday, "", "", now)
		require.NoError(t, err)
		d, err := database.LoadDashboard(ctx, p)
		require.NoError(t, err)
		assert.Len(t, d.RecentOrders, 3)
		assert.Empty(t, d.LowStock)
	})
}

func TestExpenses(t *testing.T) {
	testutil.SetupDB(t)
	ctx := context.Background()

	_, err := database.CreateExpense(ctx, 1, database.ExpenseInput{Category: "FOOD", Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	missing := uint(42)
	_, err = database.CreateExpense(ctx, 1, database.ExpenseInput{Category: models.ExpenseAds, Amount: decimal.NewFromInt(1), ProductID: &missing})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = database.SetRate(ctx, 1, "MAD", decimal.RequireFromString("0.1"))
	require.NoError(t, err)

	spent := time.Date(2026, 3, 10, 12, 0, 0, 0, time.Local)
	e, err := database.CreateExpense(ctx, 1, database.ExpenseInput{
		Category: models.ExpenseShipping,
		Amount:   decimal.RequireFromString("120.456"),
		Currency: "MAD",
		SpentAt:  spent,
	})
	require.NoError(t, err)
	assert.Equal(t, "120.46", e.Amount.StringFixed(2))

	list, _, err := database.ListExpenses(ctx, database.ExpenseFilter{From: "2026-03-10", To: "2026-03-10"})
	require.NoError(t, err)
	assert.Len(t, list, 1)
	list, _, err = database.ListExpenses(ctx, database.ExpenseFilter{From: "2026-03-11"})
	require.NoError(t, err)
	assert.Empty(t, list)

	category := models.ExpenseOther
	updated, err := database.UpdateExpense(ctx, 1, e.ID, database.ExpenseUpdate{Category: &category})
	require.NoError(t, err)
	assert.Equal(t, models.ExpenseOther, updated.Category)

	require.NoError(t, database.DeleteExpense(ctx, 1, e.ID))
	_, err = database.GetExpense(ctx, e.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
