package database

import (
	"context"
	"sort"
	"time"

	"go-ops-dashboard/internal/apperr"
	"go-ops-dashboard/internal/finance"
	"go-ops-dashboard/internal/models"
	"go-ops-dashboard/internal/money"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PaymentInput records cash remitted by an agent. A zero PaidAt means now.
type PaymentInput struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency" binding:"omitempty,currency"`
	PaidAt   time.Time       `json:"paid_at"`
	Note     string          `json:"note" binding:"max=500"`
}

func CreatePayment(ctx context.Context, userID, agentID uint, in PaymentInput) (*models.AgentPayment, error) {
	if !in.Amount.IsPositive() {
		return nil, apperr.Wrap(apperr.ErrInvalidInput, "amount must be positive")
	}
	currency := BaseCurrency
	if in.Currency != "" {
		c, err := money.Parse(in.Currency)
		if err != nil {
			return nil, err
		}
		currency = c
	}
	paidAt := in.PaidAt
	if paidAt.IsZero() {
		paidAt = time.Now()
	}

	payment := models.AgentPayment{
		AgentID:   agentID,
		Amount:    money.Round(in.Amount),
		Currency:  string(currency),
		PaidAt:    paidAt,
		Note:      in.Note,
		CreatedBy: userID,
	}
	err := DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var agent models.Agent
		if err := tx.First(&agent, agentID).Error; err != nil {
			return notFound(err, "agent", agentID)
		}
		if err := requireRate(tx, currency); err != nil {
			return err
		}
		if err := tx.Create(&payment).Error; err != nil {
			return err
		}
		return Record(tx, userID, "create", "agent_payment", payment.ID, map[string]any{
			"agent_id": agentID,
			"amount":   payment.Amount.String(),
			"currency": payment.Currency,
		})
	})
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// ListPayments returns an agent's payments, newest first
func ListPayments(ctx context.Context, agentID uint, p Page) ([]models.AgentPayment, Meta, error) {
	if _, err := GetAgent(ctx, agentID); err != nil {
		return nil, Meta{}, err
	}
	q := DB.WithContext(ctx).Model(&models.AgentPayment{}).
		Where("agent_id = ?", agentID).
		Order("paid_at desc, id desc")
	var payments []models.AgentPayment
	meta, err := paginate(q, p, &payments)
	return payments, meta, err
}

func DeletePayment(ctx context.Context, userID, id uint) error {
	return DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var payment models.AgentPayment
		if err := tx.First(&payment, id).Error; err != nil {
			return notFound(err, "payment", id)
		}
		if err := tx.Delete(&payment).Error; err != nil {
			return err
		}
		return Record(tx, userID, "delete", "agent_payment", id, map[string]any{
			"agent_id": payment.AgentID,
			"amount":   payment.Amount.String(),
		})
	})
}

// settlementInputs are the rows a settlement is computed from, grouped by agent
type settlementInputs struct {
	delivered map[uint][]models.Order
	held      map[uint][]models.AgentStock
	payments  map[uint][]models.AgentPayment
}

// loadSettlementInputs fetches delivered orders, missing stock and payments
// for the given agents (all agents when ids is empty). A nil window means
// all time; missing stock is always the current position.
func loadSettlementInputs(db *gorm.DB, ids []uint, w *finance.Window) (settlementInputs, error) {
	in := settlementInputs{
		delivered: make(map[uint][]models.Order),
		held:      make(map[uint][]models.AgentStock),
		payments:  make(map[uint][]models.AgentPayment),
	}
	scope := func(q *gorm.DB) *gorm.DB {
		if len(ids) > 0 {
			return q.Where("agent_id IN ?", ids)
		}
		return q
	}

	oq := scope(db.Select("id", "agent_id", "status", "currency", "total", "delivered_at").
		Where("status = ? AND agent_id IS NOT NULL", models.StatusDelivered))
	if w != nil {
		oq = oq.Where("delivered_at >= ? AND delivered_at < ?", w.Start, w.End)
	}
	var orders []models.Order
	if err := oq.Find(&orders).Error; err != nil {
		return in, err
	}
	for _, o := range orders {
		in.delivered[*o.AgentID] = append(in.delivered[*o.AgentID], o)
	}

	var held []models.AgentStock
	err := scope(db.Preload("Product", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		Where("missing > 0")).
		Find(&held).Error
	if err != nil {
		return in, err
	}
	for _, h := range held {
		in.held[h.AgentID] = append(in.held[h.AgentID], h)
	}

	pq := scope(db.Model(&models.AgentPayment{}))
	if w != nil {
		pq = pq.Where("paid_at >= ? AND paid_at < ?", w.Start, w.End)
	}
	var payments []models.AgentPayment
	if err := pq.Find(&payments).Error; err != nil {
		return in, err
	}
	for _, p := range payments {
		in.payments[p.AgentID] = append(in.payments[p.AgentID], p)
	}
	return in, nil
}

// AgentSettlement is the cash position of one agent, all time when w is nil
func AgentSettlement(ctx context.Context, agentID uint, w *finance.Window) (*finance.Settlement, error) {
	agent, err := GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	db := DB.WithContext(ctx)
	in, err := loadSettlementInputs(db, []uint{agentID}, w)
	if err != nil {
		return nil, err
	}
	rates, err := LoadRates(ctx)
	if err != nil {
		return nil, err
	}
	s, err := finance.Settle(*agent, in.delivered[agentID], in.held[agentID], in.payments[agentID], rates)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// AgentBalances settles every agent, largest amount owed first
func AgentBalances(ctx context.Context) ([]finance.Settlement, error) {
	agents, err := ListAgents(ctx, false)
	if err != nil {
		return nil, err
	}
	in, err := loadSettlementInputs(DB.WithContext(ctx), nil, nil)
	if err != nil {
		return nil, err
	}
	rates, err := LoadRates(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]finance.Settlement, 0, len(agents))
	for _, a := range agents {
		s, err := finance.Settle(a, in.delivered[a.ID], in.held[a.ID], in.payments[a.ID], rates)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Balance.GreaterThan(out[j].Balance)
	})
	return out, nil
}
