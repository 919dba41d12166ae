package database

import (
	"context"
	"strings"

	"go-ops-dashboard/internal/apperr"
	"go-ops-dashboard/internal/models"
	"go-ops-dashboard/internal/money"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AgentInput is the payload for a new delivery agent
type AgentInput struct {
	Name               string          `json:"name" binding:"required,max=150"`
	Phone              string          `json:"phone" binding:"max=30"`
	Region             string          `json:"region" binding:"max=100"`
	CommissionPerOrder decimal.Decimal `json:"commission_per_order"`
	Currency           string          `json:"currency" binding:"omitempty,currency"`
}

// AgentUpdate changes only the fields that are set
type AgentUpdate struct {
	Name               *string          `json:"name" binding:"omitempty,max=150"`
	Phone              *string          `json:"phone" binding:"omitempty,max=30"`
	Region             *string          `json:"region" binding:"omitempty,max=100"`
	CommissionPerOrder *decimal.Decimal `json:"commission_per_order"`
	Currency           *string          `json:"currency" binding:"omitempty,currency"`
	Active             *bool            `json:"active"`
}

// ListAgents returns agents by name. activeOnly hides deactivated agents.
func ListAgents(ctx context.Context, activeOnly bool) ([]models.Agent, error) {
	q := DB.WithContext(ctx).Order("name, id")
	if activeOnly {
		q = q.Where("active = ?", true)
	}
	var agents []models.Agent
	err := q.Find(&agents).Error
	return agents, err
}

func GetAgent(ctx context.Context, id uint) (*models.Agent, error) {
	var agent models.Agent
	if err := DB.WithContext(ctx).First(&agent, id).Error; err != nil {
		return nil, notFound(err, "agent", id)
	}
	return &agent, nil
}

func CreateAgent(ctx context.Context, userID uint, in AgentInput) (*models.Agent, error) {
	if in.CommissionPerOrder.IsNegative() {
		return nil, apperr.Wrap(apperr.ErrInvalidInput, "commission cannot be negative")
	}
	currency := BaseCurrency
	if in.Currency != "" {
		c, err := money.Parse(in.Currency)
		if err != nil {
			return nil, err
		}
		currency = c
	}

	agent := models.Agent{
		Name:               strings.TrimSpace(in.Name),
		Phone:              strings.TrimSpace(in.Phone),
		Region:             strings.TrimSpace(in.Region),
		CommissionPerOrder: money.Round(in.CommissionPerOrder),
		Currency:           string(currency),
		Active:             true,
	}
	err := DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireRate(tx, currency); err != nil {
			return err
		}
		if err := tx.Create(&agent).Error; err != nil {
			return err
		}
		return Record(tx, userID, "create", "agent", agent.ID, map[string]string{"name": agent.Name})
	})
	if err != nil {
		return nil, err
	}
	return &agent, nil
}

func UpdateAgent(ctx context.Context, userID, id uint, in AgentUpdate) (*models.Agent, error) {
	updates := map[string]any{}
	if in.Name != nil {
		updates["name"] = strings.TrimSpace(*in.Name)
	}
	if in.Phone != nil {
		updates["phone"] = strings.TrimSpace(*in.Phone)
	}
	if in.Region != nil {
		updates["region"] = strings.TrimSpace(*in.Region)
	}
	if in.CommissionPerOrder != nil {
		if in.CommissionPerOrder.IsNegative() {
			return nil, apperr.Wrap(apperr.ErrInvalidInput, "commission cannot be negative")
		}
		updates["commission_per_order"] = money.Round(*in.CommissionPerOrder)
	}
	var currency money.Currency
	if in.Currency != nil {
		c, err := money.Parse(*in.Currency)
		if err != nil {
			return nil, err
		}
		currency = c
		updates["currency"] = string(c)
	}
	if in.Active != nil {
		updates["active"] = *in.Active
	}

	err := DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var agent models.Agent
		if err := tx.First(&agent, id).Error; err != nil {
			return notFound(err, "agent", id)
		}
		if currency != "" {
			if err := requireRate(tx, currency); err != nil {
				return err
			}
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&agent).Updates(updates).Error; err != nil {
			return err
		}
		return Record(tx, userID, "update", "agent", id, updates)
	})
	if err != nil {
		return nil, err
	}
	return GetAgent(ctx, id)
}

// DeleteAgent removes an agent with no history. Agents that delivered
// orders, hold stock or remitted payments should be deactivated instead.
func DeleteAgent(ctx context.Context, userID, id uint) error {
	return DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var agent models.Agent
		if err := tx.First(&agent, id).Error; err != nil {
			return notFound(err, "agent", id)
		}

		checks := []struct {
			model any
			where string
			what  string
		}{
			{&models.Order{}, "agent_id = ?", "orders"},
			{&models.AgentPayment{}, "agent_id = ?", "payments"},
			{&models.StockMovement{}, "agent_id = ?", "stock history"},
		}
		for _, c := range checks {
			var n int64
			if err := tx.Model(c.model).Where(c.where, id).Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				return apperr.Wrap(apperr.ErrInvalidState, "agent %s has %s, deactivate it instead", agent.Name, c.what)
			}
		}

		if err := tx.Where("agent_id = ?", id).Delete(&models.AgentStock{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&agent).Error; err != nil {
			return err
		}
		return Record(tx, userID, "delete", "agent", id, map[string]string{"name": agent.Name})
	})
}
