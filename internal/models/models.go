package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Roles, from most to least privileged
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleStaff   = "staff"
)

// ValidRole reports whether r is a known role
func ValidRole(r string) bool {
	return r == RoleAdmin || r == RoleManager || r == RoleStaff
}

// User - someone allowed into the back office
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"uniqueIndex;size:50" json:"username"`
	PasswordHash string    `json:"-"`
	Role         string    `gorm:"size:20" json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Product - a catalog entry and its warehouse stock
type Product struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	SKU               string          `gorm:"uniqueIndex;size:64" json:"sku"`
	Name              string          `gorm:"size:200" json:"name"`
	Category          string          `gorm:"size:100;index" json:"category"`
	ImageURL          string          `json:"image_url"`
	CostPrice         decimal.Decimal `gorm:"type:decimal(14,2)" json:"cost_price"`
	SellPrice         decimal.Decimal `gorm:"type:decimal(14,2)" json:"sell_price"`
	Currency          string          `gorm:"size:3" json:"currency"`
	WarehouseQty      int             `json:"warehouse_qty"`
	DefectiveQty      int             `json:"defective_qty"`
	LowStockThreshold int             `json:"low_stock_threshold"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	DeletedAt         gorm.DeletedAt  `gorm:"index" json:"-"`
}

// IsLowStock reports whether the warehouse has fallen to the alert threshold
func (p Product) IsLowStock() bool {
	return p.WarehouseQty <= p.LowStockThreshold
}

// Customer - the person an order ships to
type Customer struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:150" json:"name"`
	Phone     string    `gorm:"uniqueIndex;size:30" json:"phone"`
	Email     string    `gorm:"size:150" json:"email"`
	City      string    `gorm:"size:100;index" json:"city"`
	Address   string    `json:"address"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Agent - a delivery agent holding consigned stock and collecting cash on delivery
type Agent struct {
	ID                 uint            `gorm:"primaryKey" json:"id"`
	Name               string          `gorm:"size:150" json:"name"`
	Phone              string          `gorm:"size:30" json:"phone"`
	Region             string          `gorm:"size:100;index" json:"region"`
	CommissionPerOrder decimal.Decimal `gorm:"type:decimal(14,2)" json:"commission_per_order"`
	Currency           string          `gorm:"size:3" json:"currency"`
	Active             bool            `json:"active"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// AgentStock - units of one product currently held by one agent
type AgentStock struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	AgentID   uint      `gorm:"uniqueIndex:idx_agent_product" json:"agent_id"`
	ProductID uint      `gorm:"uniqueIndex:idx_agent_product" json:"product_id"`
	Product   Product   `json:"product"`
	Quantity  int       `json:"quantity"`  // good units ready to dispatch
	Defective int       `json:"defective"` // damaged units still with the agent
	Missing   int       `json:"missing"`   // units the agent cannot account for
	UpdatedAt time.Time `json:"updated_at"`
}

// Stock movement types
const (
	MoveRestock         = "RESTOCK"
	MoveAdjust          = "ADJUST"
	MoveAssign          = "ASSIGN"
	MoveReturn          = "RETURN"
	MoveDefective       = "DEFECTIVE"
	MoveReturnDefective = "RETURN_DEFECTIVE"
	MoveMissing         = "MISSING"
	MoveRecover         = "RECOVER"
	MoveDispatch        = "DISPATCH"
	MoveRedeliver       = "REDELIVER"
)

// StockMovement - append-only history of every stock change
type StockMovement struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ProductID uint      `gorm:"index" json:"product_id"`
	AgentID   *uint     `gorm:"index" json:"agent_id,omitempty"`
	OrderID   *uint     `gorm:"index" json:"order_id,omitempty"`
	Type      string    `gorm:"size:20;index" json:"type"`
	Quantity  int       `json:"quantity"`
	Note      string    `json:"note"`
	UserID    uint      `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// OrderStatus is the lifecycle state of an order
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusConfirmed OrderStatus = "confirmed"
	StatusShipped   OrderStatus = "shipped"
	StatusDelivered OrderStatus = "delivered"
	StatusReturned  OrderStatus = "returned"
	StatusCancelled OrderStatus = "cancelled"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusShipped, StatusCancelled},
	StatusShipped:   {StatusDelivered, StatusReturned},
}

// IsValid reports whether s is a known status
func (s OrderStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusShipped, StatusDelivered, StatusReturned, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible
func (s OrderStatus) IsTerminal() bool {
	return len(orderTransitions[s]) == 0
}

// CanTransition reports whether an order may move from s to next
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Order - a customer order and its fulfilment trail
type Order struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	Reference   string          `gorm:"uniqueIndex;size:20" json:"reference"`
	CustomerID  uint            `gorm:"index" json:"customer_id"`
	Customer    Customer        `json:"customer"`
	AgentID     *uint           `gorm:"index" json:"agent_id"`
	Agent       *Agent          `json:"agent,omitempty"`
	Status      OrderStatus     `gorm:"size:20;index" json:"status"`
	Currency    string          `gorm:"size:3" json:"currency"`
	Subtotal    decimal.Decimal `gorm:"type:decimal(14,2)" json:"subtotal"`
	ShippingFee decimal.Decimal `gorm:"type:decimal(14,2)" json:"shipping_fee"`
	Discount    decimal.Decimal `gorm:"type:decimal(14,2)" json:"discount"`
	Total       decimal.Decimal `gorm:"type:decimal(14,2)" json:"total"`
	Notes       string          `json:"notes"`
	CreatedBy   uint            `json:"created_by"`
	ConfirmedAt *time.Time      `json:"confirmed_at"`
	ShippedAt   *time.Time      `json:"shipped_at"`
	DeliveredAt *time.Time      `gorm:"index" json:"delivered_at"`
	ReturnedAt  *time.Time      `json:"returned_at"`
	CancelledAt *time.Time      `json:"cancelled_at"`
	CreatedAt   time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Items       []OrderItem     `gorm:"foreignKey:OrderID" json:"items"`
}

// OrderItem - one line of an order, with price and cost frozen at order time
type OrderItem struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	OrderID      uint            `gorm:"index" json:"order_id"`
	ProductID    uint            `gorm:"index" json:"product_id"`
	Product      Product         `json:"product"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `gorm:"type:decimal(14,2)" json:"unit_price"`
	UnitCost     decimal.Decimal `gorm:"type:decimal(14,2)" json:"unit_cost"`
	CostCurrency string          `gorm:"size:3" json:"cost_currency"`
}

// Expense categories
const (
	ExpenseAds       = "ADS"
	ExpenseShipping  = "SHIPPING"
	ExpensePackaging = "PACKAGING"
	ExpenseSalary    = "SALARY"
	ExpenseRent      = "RENT"
	ExpenseSoftware  = "SOFTWARE"
	ExpenseOther     = "OTHER"
)

// ExpenseCategories lists every category in display order
var ExpenseCategories = []string{
	ExpenseAds, ExpenseShipping, ExpensePackaging, ExpenseSalary, ExpenseRent, ExpenseSoftware, ExpenseOther,
}

// ValidExpenseCategory reports whether c is a known category
func ValidExpenseCategory(c string) bool {
	for _, known := range ExpenseCategories {
		if c == known {
			return true
		}
	}
	return false
}

// Expense - money spent running the business
type Expense struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	Category    string          `gorm:"size:20;index" json:"category"`
	Amount      decimal.Decimal `gorm:"type:decimal(14,2)" json:"amount"`
	Currency    string          `gorm:"size:3" json:"currency"`
	SpentAt     time.Time       `gorm:"index" json:"spent_at"`
	ProductID   *uint           `gorm:"index" json:"product_id"`
	Description string          `json:"description"`
	CreatedBy   uint            `json:"created_by"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// AgentPayment - cash remitted by an agent to the company
type AgentPayment struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	AgentID   uint            `gorm:"index" json:"agent_id"`
	Amount    decimal.Decimal `gorm:"type:decimal(14,2)" json:"amount"`
	Currency  string          `gorm:"size:3" json:"currency"`
	PaidAt    time.Time       `gorm:"index" json:"paid_at"`
	Note      string          `json:"note"`
	CreatedBy uint            `json:"created_by"`
	CreatedAt time.Time       `json:"created_at"`
}

// ExchangeRate - value of one unit of Currency in the base currency
type ExchangeRate struct {
	Currency   string          `gorm:"primaryKey;size:3" json:"currency"`
	RateToBase decimal.Decimal `gorm:"type:decimal(18,8)" json:"rate_to_base"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// AuditLog - who changed what
type AuditLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index" json:"user_id"`
	Action    string    `gorm:"size:50" json:"action"`
	Entity    string    `gorm:"size:50;index" json:"entity"`
	EntityID  uint      `json:"entity_id"`
	Details   string    `json:"details"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// All lists every model for auto-migration
func All() []any {
	return []any{
		&User{},
		&Product{},
		&Customer{},
		&Agent{},
		&AgentStock{},
		&StockMovement{},
		&Order{},
		&OrderItem{},
		&Expense{},
		&AgentPayment{},
		&ExchangeRate{},
		&AuditLog{},
	}
}
