package database

import (
	"context"
	"errors"

	"go-ops-dashboard/internal/apperr"
	"go-ops-dashboard/internal/models"
	"go-ops-dashboard/internal/stock"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var forUpdate = clause.Locking{Strength: "UPDATE"}

// RestockProduct adds qty units to the warehouse
func RestockProduct(ctx context.Context, userID, productID uint, qty int, note string) (*models.Product, error) {
	return moveWarehouse(ctx, userID, productID, models.MoveRestock, qty, note)
}

// AdjustProduct corrects the warehouse count by a signed delta
func AdjustProduct(ctx context.Context, userID, productID uint, delta int, note string) (*models.Product, error) {
	return moveWarehouse(ctx, userID, productID, models.MoveAdjust, delta, note)
}

func moveWarehouse(ctx context.Context, userID, productID uint, kind string, qty int, note string) (*models.Product, error) {
	var product models.Product
	err := DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. Lock the product row
		if err := tx.Clauses(forUpdate).First(&product, productID).Error; err != nil {
			return notFound(err, "product", productID)
		}

		// 2. Apply the movement rules
		next, err := stock.Apply(stock.Levels{Warehouse: product.WarehouseQty, WarehouseDefective: product.DefectiveQty}, kind, qty)
		if err != nil {
			return err
		}
		if err := tx.Model(&product).Update("warehouse_qty", next.Warehouse).Error; err != nil {
			return err
		}
		product.WarehouseQty = next.Warehouse

		// 3. Write the history
		movement := models.StockMovement{ProductID: product.ID, Type: kind, Quantity: qty, Note: note, UserID: userID}
		if err := tx.Create(&movement).Error; err != nil {
			return err
		}
		return Record(tx, userID, kind, "product", product.ID, map[string]any{"quantity": qty, "note": note})
	})
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// MoveStock applies a manual agent movement (ASSIGN, RETURN, DEFECTIVE,
// RETURN_DEFECTIVE, MISSING, RECOVER) and returns the agent's updated row.
func MoveStock(ctx context.Context, userID, agentID, productID uint, kind string, qty int, note string) (*models.AgentStock, error) {
	if !stock.ManualAgentMoves[kind] {
		return nil, apperr.Wrap(apperr.ErrInvalidInput, "%q is not a manual stock movement", kind)
	}
	var held *models.AgentStock
	err := DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		held, err = applyAgentMove(tx, userID, agentID, productID, nil, kind, qty, note)
		if err != nil {
			return err
		}
		return Record(tx, userID, kind, "agent", agentID, map[string]any{
			"product_id": productID,
			"quantity":   qty,
			"note":       note,
		})
	})
	if err != nil {
		return nil, err
	}
	return held, nil
}

// applyAgentMove locks the product and the agent's row for it, applies one
// movement and writes it to the history. It must run inside a transaction.
func applyAgentMove(tx *gorm.DB, userID, agentID, productID uint, orderID *uint, kind string, qty int, note string) (*models.AgentStock, error) {
	var agent models.Agent
	if err := tx.First(&agent, agentID).Error; err != nil {
		return nil, notFound(err, "agent", agentID)
	}
	if kind == models.MoveAssign && !agent.Active {
		return nil, apperr.Wrap(apperr.ErrInvalidState, "agent %s is inactive", agent.Name)
	}

	var product models.Product
	if err := tx.Unscoped().Clauses(forUpdate).First(&product, productID).Error; err != nil {
		return nil, notFound(err, "product", productID)
	}
	if kind == models.MoveAssign && product.DeletedAt.Valid {
		return nil, apperr.Wrap(apperr.ErrInvalidState, "product %s has been deleted", product.SKU)
	}

	var held models.AgentStock
	err := tx.Clauses(forUpdate).Where("agent_id = ? AND product_id = ?", agentID, productID).First(&held).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		held = models.AgentStock{AgentID: agentID, ProductID: productID}
	} else if err != nil {
		return nil, err
	}

	before := stock.Levels{
		Warehouse:          product.WarehouseQty,
		WarehouseDefective: product.DefectiveQty,
		Held:               held.Quantity,
		Defective:          held.Defective,
		Missing:            held.Missing,
	}
	after, err := stock.Apply(before, kind, qty)
	if err != nil {
		return nil, err
	}

	if after.Warehouse != before.Warehouse || after.WarehouseDefective != before.WarehouseDefective {
		err := tx.Unscoped().Model(&product).Updates(map[string]any{
			"warehouse_qty": after.Warehouse,
			"defective_qty": after.WarehouseDefective,
		}).Error
		if err != nil {
			return nil, err
		}
		product.WarehouseQty = after.Warehouse
		product.DefectiveQty = after.WarehouseDefective
	}

	held.Quantity = after.Held
	held.Defective = after.Defective
	held.Missing = after.Missing
	if held.ID == 0 {
		err = tx.Omit(clause.Associations).Create(&held).Error
	} else {
		err = tx.Model(&held).Updates(map[string]any{
			"quantity":  held.Quantity,
			"defective": held.Defective,
			"missing":   held.Missing,
		}).Error
	}
	if err != nil {
		return nil, err
	}

	movement := models.StockMovement{
		ProductID: productID,
		AgentID:   &agentID,
		OrderID:   orderID,
		Type:      kind,
		Quantity:  qty,
		Note:      note,
		UserID:    userID,
	}
	if err := tx.Create(&movement).Error; err != nil {
		return nil, err
	}

	held.Product = product
	return &held, nil
}

// ListAgentStock returns what an agent currently holds, by product name
func ListAgentStock(ctx context.Context, agentID uint) ([]models.AgentStock, error) {
	if _, err := GetAgent(ctx, agentID); err != nil {
		return nil, err
	}
	var rows []models.AgentStock
	err := DB.WithContext(ctx).
		Preload("Product", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		Where("agent_id = ?", agentID).
		Order("product_id").
		Find(&rows).Error
	return rows, err
}

// MovementFilter narrows the movement history
type MovementFilter struct {
	Page
	ProductID uint   `form:"product_id"`
	AgentID   uint   `form:"agent_id"`
	OrderID   uint   `form:"order_id"`
	Type      string `form:"type"`
}

// ListMovements returns the newest movements first
func ListMovements(ctx context.Context, f MovementFilter) ([]models.StockMovement, Meta, error) {
	q := DB.WithContext(ctx).Model(&models.StockMovement{})
	if f.ProductID != 0 {
		q = q.Where("product_id = ?", f.ProductID)
	}
	if f.AgentID != 0 {
		q = q.Where("agent_id = ?", f.AgentID)
	}
	if f.OrderID != 0 {
		q = q.Where("order_id = ?", f.OrderID)
	}
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	var movements []models.StockMovement
	meta, err := paginate(q.Order("created_at desc, id desc"), f.Page, &movements)
	return movements, meta, err
}

// ReconcileAgent compares the agent's stored counters with its movement
// history.
func ReconcileAgent(ctx context.Context, agentID uint) (*stock.Reconciliation, error) {
	if _, err := GetAgent(ctx, agentID); err != nil {
		return nil, err
	}
	db := DB.WithContext(ctx)

	var movements []models.StockMovement
	if err := db.Where("agent_id = ?", agentID).Order("id").Find(&movements).Error; err != nil {
		return nil, err
	}
	held, err := ListAgentStock(ctx, agentID)
	if err != nil {
		return nil, err
	}

	report := stock.Reconcile(agentID, movements, held)

	// rows coming only from history have no product loaded
	var unnamed []uint
	for _, r := range report.Rows {
		if r.ProductName == "" {
			unnamed = append(unnamed, r.ProductID)
		}
	}
	if len(unnamed) > 0 {
		var products []models.Product
		if err := db.Unscoped().Where("id IN ?", unnamed).Find(&products).Error; err != nil {
			return nil, err
		}
		names := make(map[uint]string, len(products))
		for _, p := range products {
			names[p.ID] = p.Name
		}
		for i := range report.Rows {
			if report.Rows[i].ProductName == "" {
				report.Rows[i].ProductName = names[report.Rows[i].ProductID]
			}
		}
	}
	return &report, nil
}
