// Package testutil provides an in-memory database and fixtures for tests.
package testutil

import (
	"context"
	"testing"

	"go-ops-dashboard/internal/auth"
	"go-ops-dashboard/internal/database"
	"go-ops-dashboard/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupDB points database.DB at a fresh migrated SQLite database for the
// duration of the test.
func SetupDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	// every connection to :memory: is a separate database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	prev := database.DB
	database.DB = db
	require.NoError(t, database.Migrate())

	t.Cleanup(func() {
		database.DB = prev
		_ = sqlDB.Close()
	})
	return db
}

// CreateUser stores a user with password "secret123"
func CreateUser(t *testing.T, username, role string) *models.User {
	t.Helper()
	user, err := database.CreateUser(context.Background(), username, "secret123", role)
	require.NoError(t, err)
	return user
}

// Token signs a bearer token for user
func Token(t *testing.T, user *models.User) string {
	t.Helper()
	token, _, err := auth.GenerateToken(user.ID, user.Role)
	require.NoError(t, err)
	return token
}

// CreateProduct stores a product priced in the base currency with qty units
// in the warehouse.
func CreateProduct(t *testing.T, sku string, cost, sell string, qty int) *models.Product {
	t.Helper()
	product, err := database.CreateProduct(context.Background(), 0, database.ProductInput{
		SKU:               sku,
		Name:              "Product " + sku,
		Category:          "General",
		CostPrice:         decimal.RequireFromString(cost),
		SellPrice:         decimal.RequireFromString(sell),
		WarehouseQty:      qty,
		LowStockThreshold: 2,
	})
	require.NoError(t, err)
	return product
}

// CreateAgent stores an active agent paid commission per delivered order
func CreateAgent(t *testing.T, name, commission string) *models.Agent {
	t.Helper()
	agent, err := database.CreateAgent(context.Background(), 0, database.AgentInput{
		Name:               name,
		Region:             "North",
		CommissionPerOrder: decimal.RequireFromString(commission),
	})
	require.NoError(t, err)
	return agent
}

// CreateCustomer stores a customer with the given phone number
func CreateCustomer(t *testing.T, name, phone string) *models.Customer {
	t.Helper()
	customer, err := database.CreateCustomer(context.Background(), 0, database.CustomerInput{
		Name:  name,
		Phone: phone,
		City:  "Casablanca",
	})
	require.NoError(t, err)
	return customer
}
