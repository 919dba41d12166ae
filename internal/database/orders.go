package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go-ops-dashboard/internal/apperr"
	"go-ops-dashboard/internal/models"
	"go-ops-dashboard/internal/money"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OrderItemInput is one requested order line. UnitPrice defaults to the
// product's sell price.
type OrderItemInput struct {
	ProductID uint             `json:"product_id" binding:"required"`
	Quantity  int              `json:"quantity" binding:"required,min=1"`
	UnitPrice *decimal.Decimal `json:"unit_price"`
}

// OrderInput is the payload for a new order
type OrderInput struct {
	CustomerID  uint             `json:"customer_id" binding:"required"`
	AgentID     *uint            `json:"agent_id"`
	Currency    string           `json:"currency" binding:"omitempty,currency"`
	ShippingFee decimal.Decimal  `json:"shipping_fee"`
	Discount    decimal.Decimal  `json:"discount"`
	Notes       string           `json:"notes"`
	Items       []OrderItemInput `json:"items" binding:"required,min=1,dive"`
}

// OrderUpdate edits a pending order. A nil Items leaves the lines untouched.
type OrderUpdate struct {
	ShippingFee *decimal.Decimal `json:"shipping_fee"`
	Discount    *decimal.Decimal `json:"discount"`
	Notes       *string          `json:"notes"`
	Items       []OrderItemInput `json:"items" binding:"omitempty,min=1,dive"`
}

// OrderFilter narrows the order list. From and To are inclusive dates on the
// creation time.
type OrderFilter struct {
	Page
	Status     string `form:"status" binding:"omitempty,order_status"`
	AgentID    uint   `form:"agent_id"`
	CustomerID uint   `form:"customer_id"`
	From       string `form:"from"`
	To         string `form:"to"`
	Search     string `form:"search"`
}

// NewReference returns a fresh order reference such as ORD-1A2B3C4D
func NewReference() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "ORD-" + strings.ToUpper(id[:8])
}

// buildItems snapshots price and cost for each line and returns the subtotal
func buildItems(tx *gorm.DB, currency money.Currency, in []OrderItemInput) ([]models.OrderItem, decimal.Decimal, error) {
	if len(in) == 0 {
		return nil, decimal.Zero, apperr.Wrap(apperr.ErrInvalidInput, "an order needs at least one item")
	}
	subtotal := decimal.Zero
	items := make([]models.OrderItem, 0, len(in))
	for _, line := range in {
		if line.Quantity < 1 {
			return nil, decimal.Zero, apperr.Wrap(apperr.ErrInvalidInput, "quantity must be at least 1")
		}
		var product models.Product
		if err := tx.First(&product, line.ProductID).Error; err != nil {
			return nil, decimal.Zero, notFound(err, "product", line.ProductID)
		}

		price := product.SellPrice
		if line.UnitPrice != nil {
			if line.UnitPrice.IsNegative() {
				return nil, decimal.Zero, apperr.Wrap(apperr.ErrInvalidInput, "unit price cannot be negative")
			}
			price = money.Round(*line.UnitPrice)
		} else if product.Currency != string(currency) {
			return nil, decimal.Zero, apperr.Wrap(apperr.ErrInvalidInput,
				"%s is priced in %s, give a unit price in %s", product.SKU, product.Currency, currency)
		}

		items = append(items, models.OrderItem{
			ProductID:    product.ID,
			Quantity:     line.Quantity,
			UnitPrice:    price,
			UnitCost:     product.CostPrice,
			CostCurrency: product.Currency,
		})
		subtotal = subtotal.Add(price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return items, subtotal, nil
}

func orderTotal(subtotal, shipping, discount decimal.Decimal) (decimal.Decimal, error) {
	if shipping.IsNegative() || discount.IsNegative() {
		return decimal.Zero, apperr.Wrap(apperr.ErrInvalidInput, "shipping fee and discount cannot be negative")
	}
	total := subtotal.Add(shipping).Sub(discount)
	if total.IsNegative() {
		return decimal.Zero, apperr.Wrap(apperr.ErrInvalidInput, "discount exceeds the order value")
	}
	return money.Round(total), nil
}

func activeAgent(tx *gorm.DB, id uint) error {
	var agent models.Agent
	if err := tx.First(&agent, id).Error; err != nil {
		return notFound(err, "agent", id)
	}
	if !agent.Active {
		return apperr.Wrap(apperr.ErrInvalidState, "agent %s is inactive", agent.Name)
	}
	return nil
}

func CreateOrder(ctx context.Context, userID uint, in OrderInput) (*models.Order, error) {
	currency := BaseCurrency
	if in.Currency != "" {
		c, err := money.Parse(in.Currency)
		if err != nil {
			return nil, err
		}
		currency = c
	}

	var order models.Order
	err := DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. Check who the order is for and who delivers it
		var customer models.Customer
		if err := tx.First(&customer, in.CustomerID).Error; err != nil {
			return notFound(err, "customer", in.CustomerID)
		}
		if in.AgentID != nil {
			if err := activeAgent(tx, *in.AgentID); err != nil {
				return err
			}
		}
		if err := requireRate(tx, currency); err != nil {
			return err
		}

		// 2. Price the lines
		items, subtotal, err := buildItems(tx, currency, in.Items)
		if err != nil {
			return err
		}
		total, err := orderTotal(subtotal, in.ShippingFee, in.Discount)
		if err != nil {
			return err
		}

		// 3. Save header and lines
		order = models.Order{
			Reference:   NewReference(),
			CustomerID:  customer.ID,
			AgentID:     in.AgentID,
			Status:      models.StatusPending,
			Currency:    string(currency),
			Subtotal:    money.Round(subtotal),
			ShippingFee: money.Round(in.ShippingFee),
			Discount:    money.Round(in.Discount),
			Total:       total,
			Notes:       in.Notes,
			CreatedBy:   userID,
		}
		if err := tx.Omit(clause.Associations).Create(&order).Error; err != nil {
			return duplicate(err, "order "+order.Reference)
		}
		for i := range items {
			items[i].OrderID = order.ID
		}
		if err := tx.Omit(clause.Associations).Create(&items).Error; err != nil {
			return err
		}

		return Record(tx, userID, "create", "order", order.ID, map[string]any{
			"reference": order.Reference,
			"total":     order.Total.String(),
			"currency":  order.Currency,
		})
	})
	if err != nil {
		return nil, err
	}
	return GetOrder(ctx, order.ID)
}

// GetOrder loads an order with its customer, agent and lines
func GetOrder(ctx context.Context, id uint) (*models.Order, error) {
	var order models.Order
	err := DB.WithContext(ctx).
		Preload("Customer").
		Preload("Agent").
		Preload("Items.Product", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		First(&order, id).Error
	if err != nil {
		return nil, notFound(err, "order", id)
	}
	return &order, nil
}

// GetOrderByReference finds an order by its reference, case-insensitively
func GetOrderByReference(ctx context.Context, ref string) (*models.Order, error) {
	var order models.Order
	err := DB.WithContext(ctx).
		Where("reference = ?", strings.ToUpper(strings.TrimSpace(ref))).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Wrap(apperr.ErrNotFound, "order %s not found", ref)
	}
	if err != nil {
		return nil, err
	}
	return GetOrder(ctx, order.ID)
}

func parseDay(s string) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", s, time.Local)
	if err != nil {
		return t, apperr.Wrap(apperr.ErrInvalidInput, "%q is not a date (YYYY-MM-DD)", s)
	}
	return t, nil
}

// dateRange applies inclusive From/To days to column
func dateRange(q *gorm.DB, column, from, to string) (*gorm.DB, error) {
	if from != "" {
		start, err := parseDay(from)
		if err != nil {
			return nil, err
		}
		q = q.Where(column+" >= ?", start)
	}
	if to != "" {
		end, err := parseDay(to)
		if err != nil {
			return nil, err
		}
		q = q.Where(column+" < ?", end.AddDate(0, 0, 1))
	}
	return q, nil
}

func orderQuery(ctx context.Context, f OrderFilter) (*gorm.DB, error) {
	q := DB.WithContext(ctx).Model(&models.Order{})
	if f.Status != "" {
		status := models.OrderStatus(f.Status)
		if !status.IsValid() {
			return nil, apperr.Wrap(apperr.ErrInvalidInput, "unknown status %q", f.Status)
		}
		q = q.Where("status = ?", status)
	}
	if f.AgentID != 0 {
		q = q.Where("agent_id = ?", f.AgentID)
	}
	if f.CustomerID != 0 {
		q = q.Where("customer_id = ?", f.CustomerID)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		q = q.Where("reference LIKE ?", like(strings.ToUpper(s)))
	}
	q, err := dateRange(q, "created_at", f.From, f.To)
	if err != nil {
		return nil, err
	}
	return q.Order("created_at desc, id desc"), nil
}

func ListOrders(ctx context.Context, f OrderFilter) ([]models.Order, Meta, error) {
	q, err := orderQuery(ctx, f)
	if err != nil {
		return nil, Meta{}, err
	}
	var orders []models.Order
	meta, err := paginate(q, f.Page, &orders, "Customer", "Agent")
	return orders, meta, err
}

// ExportOrders returns every order matching f, ignoring pagination
func ExportOrders(ctx context.Context, f OrderFilter) ([]models.Order, error) {
	q, err := orderQuery(ctx, f)
	if err != nil {
		return nil, err
	}
	var orders []models.Order
	err = q.Preload("Customer").Preload("Agent").Find(&orders).Error
	return orders, err
}

// RecentOrders returns the newest orders with customer and agent
func RecentOrders(ctx context.Context, limit int) ([]models.Order, error) {
	var orders []models.Order
	err := DB.WithContext(ctx).
		Preload("Customer").Preload("Agent").
		Order("created_at desc, id desc").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

func lockOrder(tx *gorm.DB, id uint) (*models.Order, error) {
	var order models.Order
	if err := tx.Clauses(forUpdate).First(&order, id).Error; err != nil {
		return nil, notFound(err, "order", id)
	}
	if err := tx.Where("order_id = ?", id).Order("id").Find(&order.Items).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateOrder edits a pending order and recomputes its totals
func UpdateOrder(ctx context.Context, userID, id uint, in OrderUpdate) (*models.Order, error) {
	err := DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := lockOrder(tx, id)
		if err != nil {
			return err
		}
		if order.Status != models.StatusPending {
			return apperr.Wrap(apperr.ErrInvalidState, "only pending orders can be edited, %s is %s", order.Reference, order.Status)
		}

		subtotal := order.Subtotal
		if in.Items != nil {
			items, sum, err := buildItems(tx, money.Currency(order.Currency), in.Items)
			if err != nil {
				return err
			}
			if err := tx.Where("order_id = ?", id).Delete(&models.OrderItem{}).Error; err != nil {
				return err
			}
			for i := range items {
				items[i].OrderID = id
			}
			if err := tx.Omit(clause.Associations).Create(&items).Error; err != nil {
				return err
			}
			subtotal = money.Round(sum)
		}

		shipping, discount := order.ShippingFee, order.Discount
		if in.ShippingFee != nil {
			shipping = money.Round(*in.ShippingFee)
		}
		if in.Discount != nil {
			discount = money.Round(*in.Discount)
		}
		total, err := orderTotal(subtotal, shipping, discount)
		if err != nil {
			return err
		}

		updates := map[string]any{
			"subtotal":     subtotal,
			"shipping_fee": shipping,
			"discount":     discount,
			"total":        total,
		}
		if in.Notes != nil {
			updates["notes"] = *in.Notes
		}
		if err := tx.Model(order).Omit(clause.Associations).Updates(updates).Error; err != nil {
			return err
		}
		return Record(tx, userID, "update", "order", id, map[string]any{
			"total":         total.String(),
			"items_changed": in.Items != nil,
		})
	})
	if err != nil {
		return nil, err
	}
	return GetOrder(ctx, id)
}

// AssignAgent sets the delivering agent of a pending or confirmed order
func AssignAgent(ctx context.Context, userID, orderID, agentID uint) (*models.Order, error) {
	err := DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := lockOrder(tx, orderID)
		if err != nil {
			return err
		}
		if order.Status != models.StatusPending && order.Status != models.StatusConfirmed {
			return apperr.Wrap(apperr.ErrInvalidState, "agent cannot change once the order is %s", order.Status)
		}
		if err := activeAgent(tx, agentID); err != nil {
			return err
		}
		if err := tx.Model(order).Omit(clause.Associations).Update("agent_id", agentID).Error; err != nil {
			return err
		}
		return Record(tx, userID, "assign_agent", "order", orderID, map[string]uint{"agent_id": agentID})
	})
	if err != nil {
		return nil, err
	}
	return GetOrder(ctx, orderID)
}

// TransitionOrder moves an order to next. Shipping takes the units from the
// assigned agent; a return gives them back. Each timestamp is set only the
// first time its status is reached.
func TransitionOrder(ctx context.Context, userID, orderID uint, next models.OrderStatus, note string) (*models.Order, error) {
	if !next.IsValid() {
		return nil, apperr.Wrap(apperr.ErrInvalidInput, "unknown status %q", next)
	}

	err := DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. Lock the order and check the move is allowed
		order, err := lockOrder(tx, orderID)
		if err != nil {
			return err
		}
		if !order.Status.CanTransition(next) {
			return apperr.Wrap(apperr.ErrInvalidState, "order %s cannot go from %s to %s", order.Reference, order.Status, next)
		}

		from := order.Status
		now := time.Now()
		updates := map[string]any{"status": next}
		stamp := func(column string, current *time.Time) {
			if current == nil {
				updates[column] = now
			}
		}

		// 2. Move stock for shipping and returns
		switch next {
		case models.StatusConfirmed:
			stamp("confirmed_at", order.ConfirmedAt)
		case models.StatusShipped:
			if order.AgentID == nil {
				return apperr.Wrap(apperr.ErrInvalidState, "assign an agent before shipping %s", order.Reference)
			}
			for _, item := range order.Items {
				memo := fmt.Sprintf("order %s shipped", order.Reference)
				if _, err := applyAgentMove(tx, userID, *order.AgentID, item.ProductID, &order.ID, models.MoveDispatch, item.Quantity, memo); err != nil {
					return err
				}
			}
			stamp("shipped_at", order.ShippedAt)
		case models.StatusDelivered:
			stamp("delivered_at", order.DeliveredAt)
		case models.StatusReturned:
			for _, item := range order.Items {
				memo := fmt.Sprintf("order %s returned", order.Reference)
				if _, err := applyAgentMove(tx, userID, *order.AgentID, item.ProductID, &order.ID, models.MoveRedeliver, item.Quantity, memo); err != nil {
					return err
				}
			}
			stamp("returned_at", order.ReturnedAt)
		case models.StatusCancelled:
			stamp("cancelled_at", order.CancelledAt)
		}

		// 3. Save and audit
		if err := tx.Model(order).Omit(clause.Associations).Updates(updates).Error; err != nil {
			return err
		}
		return Record(tx, userID, "transition", "order", orderID, map[string]any{
			"from": from,
			"to":   next,
			"note": note,
		})
	})
	if err != nil {
		return nil, err
	}
	return GetOrder(ctx, orderID)
}

// DeleteOrder removes a pending or cancelled order; neither has moved stock
func DeleteOrder(ctx context.Context, userID, id uint) error {
	return DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := lockOrder(tx, id)
		if err != nil {
			return err
		}
		if order.Status != models.StatusPending && order.Status != models.StatusCancelled {
			return apperr.Wrap(apperr.ErrInvalidState, "%s orders cannot be deleted", order.Status)
		}
		if err := tx.Where("order_id = ?", id).Delete(&models.OrderItem{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.Order{}, id).Error; err != nil {
			return err
		}
		return Record(tx, userID, "delete", "order", id, map[string]string{"reference": order.Reference})
	})
}
