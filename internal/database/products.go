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

// ProductFilter narrows the product list
type ProductFilter struct {
	Page
	Search   string `form:"search"`
	Category string `form:"category"`
	LowStock bool   `form:"low_stock"`
}

// ProductInput is the payload for a new product. WarehouseQty is the opening
// stock and is recorded as a restock.
type ProductInput struct {
	SKU               string          `json:"sku" binding:"required,max=64"`
	Name              string          `json:"name" binding:"required,max=200"`
	Category          string          `json:"category" binding:"max=100"`
	ImageURL          string          `json:"image_url"`
	CostPrice         decimal.Decimal `json:"cost_price"`
	SellPrice         decimal.Decimal `json:"sell_price"`
	Currency          string          `json:"currency" binding:"omitempty,currency"`
	WarehouseQty      int             `json:"warehouse_qty" binding:"min=0"`
	LowStockThreshold int             `json:"low_stock_threshold" binding:"min=0"`
}

// ProductUpdate changes only the fields that are set. Stock levels move
// through restock and adjust instead.
type ProductUpdate struct {
	SKU               *string          `json:"sku" binding:"omitempty,max=64"`
	Name              *string          `json:"name" binding:"omitempty,max=200"`
	Category          *string          `json:"category" binding:"omitempty,max=100"`
	ImageURL          *string          `json:"image_url"`
	CostPrice         *decimal.Decimal `json:"cost_price"`
	SellPrice         *decimal.Decimal `json:"sell_price"`
	Currency          *string          `json:"currency" binding:"omitempty,currency"`
	LowStockThreshold *int             `json:"low_stock_threshold" binding:"omitempty,min=0"`
}

func checkPrices(cost, sell decimal.Decimal) error {
	if cost.IsNegative() || sell.IsNegative() {
		return apperr.Wrap(apperr.ErrInvalidInput, "prices cannot be negative")
	}
	return nil
}

func ListProducts(ctx context.Context, f ProductFilter) ([]models.Product, Meta, error) {
	q := DB.WithContext(ctx).Model(&models.Product{})
	if s := strings.TrimSpace(f.Search); s != "" {
		q = q.Where("name LIKE ? OR sku LIKE ?", like(s), like(s))
	}
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	if f.LowStock {
		q = q.Where("warehouse_qty <= low_stock_threshold")
	}
	var products []models.Product
	meta, err := paginate(q.Order("name, id"), f.Page, &products)
	return products, meta, err
}

func GetProduct(ctx context.Context, id uint) (*models.Product, error) {
	var product models.Product
	if err := DB.WithContext(ctx).First(&product, id).Error; err != nil {
		return nil, notFound(err, "product", id)
	}
	return &product, nil
}

// ListCategories returns the distinct product categories in use
func ListCategories(ctx context.Context) ([]string, error) {
	var categories []string
	err := DB.WithContext(ctx).Model(&models.Product{}).
		Where("category <> ''").
		Distinct().Order("category").
		Pluck("category", &categories).Error
	return categories, err
}

// LowStockProducts returns products at or below their alert threshold,
// emptiest first. limit <= 0 returns all of them.
func LowStockProducts(ctx context.Context, limit int) ([]models.Product, error) {
	q := DB.WithContext(ctx).
		Where("warehouse_qty <= low_stock_threshold").
		Order("warehouse_qty, name")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var products []models.Product
	err := q.Find(&products).Error
	return products, err
}

func CreateProduct(ctx context.Context, userID uint, in ProductInput) (*models.Product, error) {
	if err := checkPrices(in.CostPrice, in.SellPrice); err != nil {
		return nil, err
	}
	if in.WarehouseQty < 0 || in.LowStockThreshold < 0 {
		return nil, apperr.Wrap(apperr.ErrInvalidInput, "quantities cannot be negative")
	}
	currency := BaseCurrency
	if in.Currency != "" {
		c, err := money.Parse(in.Currency)
		if err != nil {
			return nil, err
		}
		currency = c
	}

	product := models.Product{
		SKU:               strings.TrimSpace(in.SKU),
		Name:              strings.TrimSpace(in.Name),
		Category:          strings.TrimSpace(in.Category),
		ImageURL:          in.ImageURL,
		CostPrice:         money.Round(in.CostPrice),
		SellPrice:         money.Round(in.SellPrice),
		Currency:          string(currency),
		WarehouseQty:      in.WarehouseQty,
		LowStockThreshold: in.LowStockThreshold,
	}

	err := DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireRate(tx, currency); err != nil {
			return err
		}
		if err := tx.Create(&product).Error; err != nil {
			return duplicate(err, "product with SKU "+product.SKU)
		}
		if product.WarehouseQty > 0 {
			opening := models.StockMovement{
				ProductID: product.ID,
				Type:      models.MoveRestock,
				Quantity:  product.WarehouseQty,
				Note:      "opening stock",
				UserID:    userID,
			}
			if err := tx.Create(&opening).Error; err != nil {
				return err
			}
		}
		return Record(tx, userID, "create", "product", product.ID, map[string]any{"sku": product.SKU})
	})
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func UpdateProduct(ctx context.Context, userID, id uint, in ProductUpdate) (*models.Product, error) {
	updates := map[string]any{}
	if in.SKU != nil {
		updates["sku"] = strings.TrimSpace(*in.SKU)
	}
	if in.Name != nil {
		updates["name"] = strings.TrimSpace(*in.Name)
	}
	if in.Category != nil {
		updates["category"] = strings.TrimSpace(*in.Category)
	}
	if in.ImageURL != nil {
		updates["image_url"] = *in.ImageURL
	}
	if in.CostPrice != nil {
		if in.CostPrice.IsNegative() {
			return nil, apperr.Wrap(apperr.ErrInvalidInput, "prices cannot be negative")
		}
		updates["cost_price"] = money.Round(*in.CostPrice)
	}
	if in.SellPrice != nil {
		if in.SellPrice.IsNegative() {
			return nil, apperr.Wrap(apperr.ErrInvalidInput, "prices cannot be negative")
		}
		updates["sell_price"] = money.Round(*in.SellPrice)
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
	if in.LowStockThreshold != nil {
		if *in.LowStockThreshold < 0 {
			return nil, apperr.Wrap(apperr.ErrInvalidInput, "threshold cannot be negative")
		}
		updates["low_stock_threshold"] = *in.LowStockThreshold
	}

	var product models.Product
	err := DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&product, id).Error; err != nil {
			return notFound(err, "product", id)
		}
		// Stored prices are read in the product currency, so a new currency
		// comes with both prices restated in it.
		if currency != "" && string(currency) != product.Currency {
			if in.CostPrice == nil || in.SellPrice == nil {
				return apperr.Wrap(apperr.ErrInvalidInput,
					"changing the currency to %s needs cost_price and sell_price in %s", currency, currency)
			}
			if err := requireRate(tx, currency); err != nil {
				return err
			}
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&product).Updates(updates).Error; err != nil {
			return duplicate(err, "product with that SKU")
		}
		return Record(tx, userID, "update", "product", product.ID, updates)
	})
	if err != nil {
		return nil, err
	}
	return GetProduct(ctx, id)
}

// DeleteProduct soft-deletes a product. Products that appear on orders or
// are still held by agents cannot be removed.
func DeleteProduct(ctx context.Context, userID, id uint) error {
	return DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var product models.Product
		if err := tx.First(&product, id).Error; err != nil {
			return notFound(err, "product", id)
		}

		var lines int64
		if err := tx.Model(&models.OrderItem{}).Where("product_id = ?", id).Count(&lines).Error; err != nil {
			return err
		}
		if lines > 0 {
			return apperr.Wrap(apperr.ErrInvalidState, "product %s is referenced by %d order lines", product.SKU, lines)
		}

		var held int64
		err := tx.Model(&models.AgentStock{}).
			Where("product_id = ? AND (quantity > 0 OR defective > 0 OR missing > 0)", id).
			Count(&held).Error
		if err != nil {
			return err
		}
		if held > 0 {
			return apperr.Wrap(apperr.ErrInvalidState, "product %s is still held by agents", product.SKU)
		}

		if err := tx.Delete(&product).Error; err != nil {
			return err
		}
		return Record(tx, userID, "delete", "product", id, map[string]any{"sku": product.SKU})
	})
}
