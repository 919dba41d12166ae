package database

import (
	"context"
	"strings"

	"go-ops-dashboard/internal/apperr"
	"go-ops-dashboard/internal/finance"
	"go-ops-dashboard/internal/models"

	"gorm.io/gorm"
)

// CustomerFilter narrows the customer list. Search matches name, phone or city.
type CustomerFilter struct {
	Page
	Search string `form:"search"`
	City   string `form:"city"`
}

// CustomerInput is the payload for a new customer
type CustomerInput struct {
	Name    string `json:"name" binding:"required,max=150"`
	Phone   string `json:"phone" binding:"required,max=30"`
	Email   string `json:"email" binding:"omitempty,email,max=150"`
	City    string `json:"city" binding:"max=100"`
	Address string `json:"address"`
	Notes   string `json:"notes"`
}

// CustomerUpdate changes only the fields that are set
type CustomerUpdate struct {
	Name    *string `json:"name" binding:"omitempty,max=150"`
	Phone   *string `json:"phone" binding:"omitempty,max=30"`
	Email   *string `json:"email" binding:"omitempty,email,max=150"`
	City    *string `json:"city" binding:"omitempty,max=100"`
	Address *string `json:"address"`
	Notes   *string `json:"notes"`
}

// CustomerRow is a customer with its relationship figures
type CustomerRow struct {
	models.Customer
	Stats finance.CustomerStats `json:"stats"`
}

// CustomerDetail is the customer page: figures plus latest orders
type CustomerDetail struct {
	Customer     models.Customer       `json:"customer"`
	Stats        finance.CustomerStats `json:"stats"`
	RecentOrders []models.Order        `json:"recent_orders"`
}

func ListCustomers(ctx context.Context, f CustomerFilter) ([]CustomerRow, Meta, error) {
	db := DB.WithContext(ctx)
	q := db.Model(&models.Customer{})
	if s := strings.TrimSpace(f.Search); s != "" {
		q = q.Where("name LIKE ? OR phone LIKE ? OR city LIKE ?", like(s), like(s), like(s))
	}
	if f.City != "" {
		q = q.Where("city = ?", f.City)
	}
	var customers []models.Customer
	meta, err := paginate(q.Order("name, id"), f.Page, &customers)
	if err != nil {
		return nil, Meta{}, err
	}

	ids := make([]uint, len(customers))
	for i, c := range customers {
		ids[i] = c.ID
	}
	var orders []models.Order
	if len(ids) > 0 {
		err := db.Select("id", "customer_id", "status", "currency", "total", "created_at").
			Where("customer_id IN ?", ids).
			Find(&orders).Error
		if err != nil {
			return nil, Meta{}, err
		}
	}
	rates, err := LoadRates(ctx)
	if err != nil {
		return nil, Meta{}, err
	}
	stats, err := finance.CustomerRollup(orders, rates)
	if err != nil {
		return nil, Meta{}, err
	}

	rows := make([]CustomerRow, len(customers))
	for i, c := range customers {
		rows[i] = CustomerRow{Customer: c, Stats: stats[c.ID]}
	}
	return rows, meta, nil
}

func GetCustomer(ctx context.Context, id uint) (*models.Customer, error) {
	var customer models.Customer
	if err := DB.WithContext(ctx).First(&customer, id).Error; err != nil {
		return nil, notFound(err, "customer", id)
	}
	return &customer, nil
}

// GetCustomerDetail loads a customer, its figures and its recent orders
func GetCustomerDetail(ctx context.Context, id uint, recent int) (*CustomerDetail, error) {
	if recent <= 0 {
		recent = 10
	}
	customer, err := GetCustomer(ctx, id)
	if err != nil {
		return nil, err
	}
	db := DB.WithContext(ctx)

	var orders []models.Order
	err = db.Select("id", "customer_id", "status", "currency", "total", "created_at").
		Where("customer_id = ?", id).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	rates, err := LoadRates(ctx)
	if err != nil {
		return nil, err
	}

	stats, err := finance.CustomerRollup(orders, rates)
	if err != nil {
		return nil, err
	}
	detail := &CustomerDetail{Customer: *customer, Stats: stats[id]}
	err = db.Preload("Agent").Preload("Items").
		Where("customer_id = ?", id).
		Order("created_at desc, id desc").
		Limit(recent).
		Find(&detail.RecentOrders).Error
	if err != nil {
		return nil, err
	}
	return detail, nil
}

func CreateCustomer(ctx context.Context, userID uint, in CustomerInput) (*models.Customer, error) {
	customer := models.Customer{
		Name:    strings.TrimSpace(in.Name),
		Phone:   strings.TrimSpace(in.Phone),
		Email:   strings.TrimSpace(in.Email),
		City:    strings.TrimSpace(in.City),
		Address: in.Address,
		Notes:   in.Notes,
	}
	if customer.Name == "" || customer.Phone == "" {
		return nil, apperr.Wrap(apperr.ErrInvalidInput, "name and phone are required")
	}
	err := DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&customer).Error; err != nil {
			return duplicate(err, "customer with phone "+customer.Phone)
		}
		return Record(tx, userID, "create", "customer", customer.ID, nil)
	})
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

func UpdateCustomer(ctx context.Context, userID, id uint, in CustomerUpdate) (*models.Customer, error) {
	updates := map[string]any{}
	set := func(col string, v *string, trim bool) {
		if v == nil {
			return
		}
		if trim {
			updates[col] = strings.TrimSpace(*v)
			return
		}
		updates[col] = *v
	}
	set("name", in.Name, true)
	set("phone", in.Phone, true)
	set("email", in.Email, true)
	set("city", in.City, true)
	set("address", in.Address, false)
	set("notes", in.Notes, false)
	if v, ok := updates["name"]; ok && v == "" {
		return nil, apperr.Wrap(apperr.ErrInvalidInput, "name cannot be empty")
	}
	if v, ok := updates["phone"]; ok && v == "" {
		return nil, apperr.Wrap(apperr.ErrInvalidInput, "phone cannot be empty")
	}

	err := DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var customer models.Customer
		if err := tx.First(&customer, id).Error; err != nil {
			return notFound(err, "customer", id)
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&customer).Updates(updates).Error; err != nil {
			return duplicate(err, "customer with that phone")
		}
		return Record(tx, userID, "update", "customer", id, updates)
	})
	if err != nil {
		return nil, err
	}
	return GetCustomer(ctx, id)
}

// DeleteCustomer removes a customer that never ordered
func DeleteCustomer(ctx context.Context, userID, id uint) error {
	return DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var customer models.Customer
		if err := tx.First(&customer, id).Error; err != nil {
			return notFound(err, "customer", id)
		}
		var n int64
		if err := tx.Model(&models.Order{}).Where("customer_id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return apperr.Wrap(apperr.ErrInvalidState, "customer has %d orders", n)
		}
		if err := tx.Delete(&customer).Error; err != nil {
			return err
		}
		return Record(tx, userID, "delete", "customer", id, map[string]string{"phone": customer.Phone})
	})
}
