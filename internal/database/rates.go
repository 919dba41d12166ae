package database

import (
	"context"

	"go-ops-dashboard/internal/apperr"
	"go-ops-dashboard/internal/models"
	"go-ops-dashboard/internal/money"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BaseCurrency is the reporting currency. Amounts recorded without a
// currency are taken to be in it.
var BaseCurrency = money.USD

// LoadRates builds the conversion table from the stored exchange rates.
// Rows for unsupported currencies or with a non-positive rate are skipped.
func LoadRates(ctx context.Context) (*money.Rates, error) {
	return loadRates(DB.WithContext(ctx))
}

func loadRates(db *gorm.DB) (*money.Rates, error) {
	var rows []models.ExchangeRate
	if err := db.Find(&rows).Error; err != nil {
		return nil, err
	}
	rates := money.NewRates(BaseCurrency)
	for _, row := range rows {
		c, err := money.Parse(row.Currency)
		if err != nil {
			continue
		}
		_ = rates.Set(c, row.RateToBase)
	}
	return rates, nil
}

// requireRate fails with INVALID_INPUT when amounts in c cannot be rolled up
// into the base currency because no rate is stored for it.
func requireRate(tx *gorm.DB, c money.Currency) error {
	rates, err := loadRates(tx)
	if err != nil {
		return err
	}
	_, err = rates.Convert(decimal.Zero, c)
	return err
}

func ListRates(ctx context.Context) ([]models.ExchangeRate, error) {
	var rows []models.ExchangeRate
	err := DB.WithContext(ctx).Order("currency").Find(&rows).Error
	return rows, err
}

// SetRate creates or replaces the rate of one currency
func SetRate(ctx context.Context, userID uint, code string, rate decimal.Decimal) (*models.ExchangeRate, error) {
	c, err := money.Parse(code)
	if err != nil {
		return nil, err
	}
	if c == BaseCurrency {
		return nil, apperr.Wrap(apperr.ErrInvalidInput, "%s is the base currency, its rate is always 1", c)
	}
	if !rate.IsPositive() {
		return nil, apperr.Wrap(apperr.ErrInvalidInput, "rate must be positive")
	}

	row := models.ExchangeRate{Currency: string(c), RateToBase: rate}
	err = DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "currency"}},
			DoUpdates: clause.AssignmentColumns([]string{"rate_to_base", "updated_at"}),
		}).Create(&row).Error
		if err != nil {
			return err
		}
		return Record(tx, userID, "set_rate", "exchange_rate", 0, map[string]string{
			"currency": row.Currency,
			"rate":     rate.String(),
		})
	})
	if err != nil {
		return nil, err
	}
	return &row, nil
}
