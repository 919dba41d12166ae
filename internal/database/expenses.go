package database

import (
	"context"
	"time"

	"go-ops-dashboard/internal/apperr"
	"go-ops-dashboard/internal/models"
	"go-ops-dashboard/internal/money"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ExpenseInput is the payload for a new expense. A zero SpentAt means now.
type ExpenseInput struct {
	Category    string          `json:"category" binding:"required,expense_category"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency" binding:"omitempty,currency"`
	SpentAt     time.Time       `json:"spent_at"`
	ProductID   *uint           `json:"product_id"`
	Description string          `json:"description" binding:"max=500"`
}

// ExpenseUpdate changes only the fields that are set
type ExpenseUpdate struct {
	Category    *string          `json:"category" binding:"omitempty,expense_category"`
	Amount      *decimal.Decimal `json:"amount"`
	Currency    *string          `json:"currency" binding:"omitempty,currency"`
	SpentAt     *time.Time       `json:"spent_at"`
	ProductID   *uint            `json:"product_id"`
	Description *string          `json:"description" binding:"omitempty,max=500"`
}

// ExpenseFilter narrows the expense list. From and To are inclusive days.
type ExpenseFilter struct {
	Page
	Category  string `form:"category" binding:"omitempty,expense_category"`
	ProductID uint   `form:"product_id"`
	From      string `form:"from"`
	To        string `form:"to"`
}

func productExists(tx *gorm.DB, id uint) error {
	var product models.Product
	if err := tx.Select("id").First(&product, id).Error; err != nil {
		return notFound(err, "product", id)
	}
	return nil
}

func expenseQuery(ctx context.Context, f ExpenseFilter) (*gorm.DB, error) {
	q := DB.WithContext(ctx).Model(&models.Expense{})
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	if f.ProductID != 0 {
		q = q.Where("product_id = ?", f.ProductID)
	}
	q, err := dateRange(q, "spent_at", f.From, f.To)
	if err != nil {
		return nil, err
	}
	return q.Order("spent_at desc, id desc"), nil
}

func ListExpenses(ctx context.Context, f ExpenseFilter) ([]models.Expense, Meta, error) {
	q, err := expenseQuery(ctx, f)
	if err != nil {
		return nil, Meta{}, err
	}
	var expenses []models.Expense
	meta, err := paginate(q, f.Page, &expenses)
	return expenses, meta, err
}

// ExportExpenses returns every expense matching f, ignoring pagination
func ExportExpenses(ctx context.Context, f ExpenseFilter) ([]models.Expense, error) {
	q, err := expenseQuery(ctx, f)
	if err != nil {
		return nil, err
	}
	var expenses []models.Expense
	err = q.Find(&expenses).Error
	return expenses, err
}

func GetExpense(ctx context.Context, id uint) (*models.Expense, error) {
	var expense models.Expense
	if err := DB.WithContext(ctx).First(&expense, id).Error; err != nil {
		return nil, notFound(err, "expense", id)
	}
	return &expense, nil
}

func CreateExpense(ctx context.Context, userID uint, in ExpenseInput) (*models.Expense, error) {
	if !models.ValidExpenseCategory(in.Category) {
		return nil, apperr.Wrap(apperr.ErrInvalidInput, "unknown expense category %q", in.Category)
	}
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
	spentAt := in.SpentAt
	if spentAt.IsZero() {
		spentAt = time.Now()
	}

	expense := models.Expense{
		Category:    in.Category,
		Amount:      money.Round(in.Amount),
		Currency:    string(currency),
		SpentAt:     spentAt,
		ProductID:   in.ProductID,
		Description: in.Description,
		CreatedBy:   userID,
	}
	err := DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireRate(tx, currency); err != nil {
			return err
		}
		if in.ProductID != nil {
			if err := productExists(tx, *in.ProductID); err != nil {
				return err
			}
		}
		if err := tx.Create(&expense).Error; err != nil {
			return err
		}
		return Record(tx, userID, "create", "expense", expense.ID, map[string]string{
			"category": expense.Category,
			"amount":   expense.Amount.String(),
			"currency": expense.Currency,
		})
	})
	if err != nil {
		return nil, err
	}
	return &expense, nil
}

func UpdateExpense(ctx context.Context, userID, id uint, in ExpenseUpdate) (*models.Expense, error) {
	updates := map[string]any{}
	if in.Category != nil {
		if !models.ValidExpenseCategory(*in.Category) {
			return nil, apperr.Wrap(apperr.ErrInvalidInput, "unknown expense category %q", *in.Category)
		}
		updates["category"] = *in.Category
	}
	if in.Amount != nil {
		if !in.Amount.IsPositive() {
			return nil, apperr.Wrap(apperr.ErrInvalidInput, "amount must be positive")
		}
		updates["amount"] = money.Round(*in.Amount)
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
	if in.SpentAt != nil {
		updates["spent_at"] = *in.SpentAt
	}
	if in.Description != nil {
		updates["description"] = *in.Description
	}

	err := DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var expense models.Expense
		if err := tx.First(&expense, id).Error; err != nil {
			return notFound(err, "expense", id)
		}
		if currency != "" {
			if err := requireRate(tx, currency); err != nil {
				return err
			}
		}
		if in.ProductID != nil {
			// zero detaches the expense from its product
			if *in.ProductID == 0 {
				updates["product_id"] = nil
			} else {
				if err := productExists(tx, *in.ProductID); err != nil {
					return err
				}
				updates["product_id"] = *in.ProductID
			}
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&expense).Updates(updates).Error; err != nil {
			return err
		}
		return Record(tx, userID, "update", "expense", id, updates)
	})
	if err != nil {
		return nil, err
	}
	return GetExpense(ctx, id)
}

func DeleteExpense(ctx context.Context, userID, id uint) error {
	return DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var expense models.Expense
		if err := tx.First(&expense, id).Error; err != nil {
			return notFound(err, "expense", id)
		}
		if err := tx.Delete(&expense).Error; err != nil {
			return err
		}
		return Record(tx, userID, "delete", "expense", id, map[string]string{
			"category": expense.Category,
			"amount":   expense.Amount.String(),
		})
	})
}
