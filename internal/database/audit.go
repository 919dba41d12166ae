package database

import (
	"context"
	"encoding/json"

	"go-ops-dashboard/internal/models"

	"gorm.io/gorm"
)

// Record writes an audit entry using tx, so it commits or rolls back with
// the change it describes.
func Record(tx *gorm.DB, userID uint, action, entity string, entityID uint, details any) error {
	entry := models.AuditLog{
		UserID:   userID,
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
	}
	if details != nil {
		b, err := json.Marshal(details)
		if err != nil {
			return err
		}
		entry.Details = string(b)
	}
	return tx.Create(&entry).Error
}

// AuditFilter narrows the audit trail
type AuditFilter struct {
	Page
	Entity string `form:"entity"`
	UserID uint   `form:"user_id"`
}

// ListAudit returns the newest entries first
func ListAudit(ctx context.Context, f AuditFilter) ([]models.AuditLog, Meta, error) {
	q := DB.WithContext(ctx).Model(&models.AuditLog{})
	if f.Entity != "" {
		q = q.Where("entity = ?", f.Entity)
	}
	if f.UserID != 0 {
		q = q.Where("user_id = ?", f.UserID)
	}
	var entries []models.AuditLog
	meta, err := paginate(q.Order("created_at desc, id desc"), f.Page, &entries)
	return entries, meta, err
}
