package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"transport-backend/internal/models"

	"gorm.io/gorm"
)

type LogOptions struct {
	UserID      uint
	UserRole    models.UserRole
	EntityType  string
	EntityID    uint
	Action      models.AuditAction
	Description string
	Before      any
	After       any
}

// WriteLog stores one audit entry. Pass the transaction the audited change
// runs in so both commit or roll back together.
func WriteLog(db *gorm.DB, opts LogOptions) error {
	log := models.AuditLog{
		UserID:      opts.UserID,
		UserRole:    opts.UserRole,
		EntityType:  opts.EntityType,
		EntityID:    opts.EntityID,
		Action:      opts.Action,
		Description: opts.Description,
		BeforeData:  encode(opts.Before),
		AfterData:   encode(opts.After),
	}

	if err := db.Create(&log).Error; err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

// empty snapshots are stored as the JSON literal null
func encode(v any) string {
	if v == nil {
		return "null"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

type Filter struct {
	EntityType string
	EntityID   uint
	UserID     uint
	Limit      int
}

const defaultLimit = 200

func List(ctx context.Context, db *gorm.DB, f Filter) ([]models.AuditLog, error) {
	q := db.WithContext(ctx).Model(&models.AuditLog{})
	if f.EntityType != "" {
		q = q.Where("entity_type = ?", f.EntityType)
	}
	if f.EntityID > 0 {
		q = q.Where("entity_id = ?", f.EntityID)
	}
	if f.UserID > 0 {
		q = q.Where("user_id = ?", f.UserID)
	}
	limit := f.Limit
	if limit <= 0 || limit > defaultLimit {
		limit = defaultLimit
	}

	var logs []models.AuditLog
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	return logs, nil
}
